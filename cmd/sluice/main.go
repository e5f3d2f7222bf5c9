package main

import (
	"fmt"
	"os"

	"github.com/sluicedb/sluice/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		// Subcommands set SilenceErrors, so print here with the exit
		// code the error carries.
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
