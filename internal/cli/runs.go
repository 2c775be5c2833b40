package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nnpdf/pinefarm/internal/store"
)

// RunsOptions holds flags for the runs command.
type RunsOptions struct {
	*RootOptions
	Dataset string
	Theory  int
	Limit   int
}

// RunEntry is one ledger row in CLI output.
type RunEntry struct {
	ID        string `json:"id"`
	Seq       int64  `json:"seq"`
	Dataset   string `json:"dataset"`
	TheoryID  int    `json:"theory_id"`
	Provider  string `json:"provider"`
	Timestamp string `json:"timestamp"`
	Status    string `json:"status"`
	Grid      string `json:"grid,omitempty"`
	Error     string `json:"error,omitempty"`
}

// NewRunsCommand creates the runs command.
func NewRunsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs",
		Long: `List the runs recorded in the ledger, oldest first.

Example:
  pinefarm runs
  pinefarm runs --dataset POS_G --theory 400 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRuns(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Dataset, "dataset", "", "only runs of this dataset")
	cmd.Flags().IntVar(&opts.Theory, "theory", -1, "only runs of this theory ID")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of runs (0 = all)")

	return cmd
}

func runRuns(opts *RunsOptions, cmd *cobra.Command) error {
	if err := opts.init(); err != nil {
		return err
	}
	formatter := opts.formatter(cmd)

	st, err := store.Open(opts.Config.Paths.Ledger)
	if err != nil {
		return formatter.Fail(ExitCommandError, "failed to open ledger", err)
	}
	defer st.Close()

	filter := store.ListFilter{Dataset: opts.Dataset, Limit: opts.Limit}
	if opts.Theory >= 0 {
		filter.TheoryID = &opts.Theory
	}
	runs, err := st.ListRuns(cmd.Context(), filter)
	if err != nil {
		return formatter.Fail(ExitFailure, "failed to list runs", err)
	}

	entries := make([]RunEntry, len(runs))
	for i, r := range runs {
		entries[i] = RunEntry{
			ID:        r.ID,
			Seq:       r.Seq,
			Dataset:   r.Dataset,
			TheoryID:  r.TheoryID,
			Provider:  r.Provider,
			Timestamp: r.Timestamp,
			Status:    string(r.Status),
			Grid:      r.Grid,
			Error:     r.Error,
		}
	}
	if opts.Format == "json" {
		return formatter.Success(entries)
	}

	if len(entries) == 0 {
		fmt.Fprintln(formatter.Writer, "no runs recorded")
		return nil
	}
	tw := tabwriter.NewWriter(formatter.Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tID\tDATASET\tTHEORY\tPROVIDER\tTIMESTAMP\tSTATUS")
	for _, e := range entries {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%s\t%s\n",
			e.Seq, e.ID, e.Dataset, e.TheoryID, e.Provider, e.Timestamp, e.Status)
	}
	return tw.Flush()
}
