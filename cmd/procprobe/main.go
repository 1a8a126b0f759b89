// Command procprobe smoke-tests stored procedures and parameterized SQL.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/procprobe/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		var exitErr *cli.ExitError
		// Exit code 1 from a completed run was already reported in the summary.
		if !errors.As(err, &exitErr) || exitErr.Code != cli.ExitFailure {
			fmt.Fprintln(os.Stderr, "procprobe:", err)
		}
		os.Exit(cli.GetExitCode(err))
	}
}
