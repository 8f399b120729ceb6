package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dennisdiepolder/switchboard/internal/cli"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "callsim",
		Short: "Call center simulator for switchboard",
		Long: `callsim drives tiered call routing: run simulates callers against an
in-process call center, generate feeds calls to a running server.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(cli.RunCmd())
	rootCmd.AddCommand(cli.GenerateCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
