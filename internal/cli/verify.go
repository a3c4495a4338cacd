package cli

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/example/sidebar/internal/wire"
)

// VerifyCmd returns the verify command
func VerifyCmd() *cobra.Command {
	var full bool

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check snapshots against the audit log",
		Long: `Verify that every context snapshot agrees with the audit log. The
log is ground truth: a spot check compares entry counts against snapshot
presence, and --full replays every context from genesis and diffs the
result field by field. Discrepancies are reported, never repaired.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			if !full {
				report, err := wire.VerifyService().SpotCheck(ctx)
				if err != nil {
					return fmt.Errorf("spot check failed: %w", err)
				}
				if len(report.Discrepancies) == 0 {
					fmt.Printf("✓ Spot check clean: %d snapshots, %d audited contexts\n",
						report.Contexts, report.AuditedIDs)
					return nil
				}
				printDiscrepancies(report.Discrepancies)
				return fmt.Errorf("%d discrepancies found", len(report.Discrepancies))
			}

			report, err := wire.VerifyService().FullReplay(ctx)
			if err != nil {
				return fmt.Errorf("replay failed: %w", err)
			}
			if len(report.Discrepancies) == 0 {
				fmt.Printf("✓ Full replay clean: %d contexts reconstructed from the log\n", report.Replayed)
				return nil
			}
			fmt.Printf("Replayed %d contexts, %d clean\n", report.Replayed, report.Clean)
			printDiscrepancies(report.Discrepancies)
			return fmt.Errorf("%d discrepancies found", len(report.Discrepancies))
		},
	}

	cmd.Flags().BoolVar(&full, "full", false, "replay every context from genesis")
	return cmd
}

func printDiscrepancies(discrepancies []string) {
	for _, d := range discrepancies {
		fmt.Printf("  %s %s\n", color.New(color.FgRed).Sprint("✗"), d)
	}
}
