package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/sidebar/internal/cli"
	"github.com/example/sidebar/internal/version"
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "sb",
		Short:   "sidebar - context orchestration for branching investigations",
		Version: version.String(),
		Long: `sidebar manages a forest of conversation contexts: branch
sub-investigations, cross-reference findings, merge results back, and keep
an append-only audit log as the ground truth behind every snapshot.`,
	}

	// Add subcommands
	rootCmd.AddCommand(cli.ContextCmd())
	rootCmd.AddCommand(cli.CrossRefCmd())
	rootCmd.AddCommand(cli.GraphCmd())
	rootCmd.AddCommand(cli.FocusCmd())
	rootCmd.AddCommand(cli.StatusCmd())
	rootCmd.AddCommand(cli.VerifyCmd())
	rootCmd.AddCommand(cli.AuditCmd())
	rootCmd.AddCommand(cli.DevCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
