// Command pinefarm generates, normalizes and merges interpolation grids.
package main

import (
	"fmt"
	"os"

	"github.com/nnpdf/pinefarm/internal/cli"
)

// version is overridden with -ldflags "-X main.version=...".
var version = ""

func main() {
	if version != "" {
		cli.Version = version
	}
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
