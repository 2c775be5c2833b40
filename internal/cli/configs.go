package cli

import (
	"github.com/spf13/cobra"
)

// NewConfigsCommand creates the configs command.
func NewConfigsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "configs",
		Short: "Print the loaded configuration",
		Long: `Print the configuration after defaults, the config file, .env and
PINEFARM_* environment variables have been applied.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rootOpts.init(); err != nil {
				return err
			}
			formatter := rootOpts.formatter(cmd)
			if rootOpts.Format == "json" {
				return formatter.Success(rootOpts.Config)
			}
			data, err := rootOpts.Config.Marshal()
			if err != nil {
				return formatter.Fail(ExitFailure, "failed to render config", err)
			}
			_, err = formatter.Writer.Write(data)
			return err
		},
	}
}
