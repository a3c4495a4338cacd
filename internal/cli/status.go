package cli

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/example/sidebar/internal/models"
	"github.com/example/sidebar/internal/oerr"
	"github.com/example/sidebar/internal/ports/primary"
	"github.com/example/sidebar/internal/wire"
)

// StatusCmd returns the status command, a one-screen answer to "where am I
// right now?": current focus, the forest by status, and anything that needs
// operator attention.
func StatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show focus, forest counts and pending attention items",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			focus, err := wire.OrchestratorService().Focus(ctx)
			switch {
			case oerr.IsNotFound(err):
				fmt.Println("Focus: (none)")
			case err != nil:
				return err
			default:
				fmt.Printf("Focus: %s [%s] %s\n", focus.ShortID, colorizeStatus(focus.Status), focus.TaskDescription)
			}
			fmt.Println()

			contexts, err := wire.OrchestratorService().List(ctx, primary.ContextFilters{})
			if err != nil {
				return err
			}
			byStatus := map[models.ContextStatus]int{}
			roots := 0
			for _, c := range contexts {
				byStatus[c.Status]++
				if c.ParentShortID == "" {
					roots++
				}
			}
			fmt.Printf("Contexts: %d (%d roots)\n", len(contexts), roots)
			for _, s := range []models.ContextStatus{
				models.StatusActive, models.StatusTesting, models.StatusPaused,
				models.StatusWaiting, models.StatusReviewing, models.StatusConsolidating,
				models.StatusMerged, models.StatusArchived, models.StatusFailed,
			} {
				if byStatus[s] > 0 {
					fmt.Printf("  %s: %d\n", colorizeStatus(s), byStatus[s])
				}
			}
			fmt.Println()

			flagged, err := wire.CrossRefService().ListClusterFlagged(ctx)
			if err != nil {
				return err
			}
			pending, err := wire.CrossRefService().ListPendingValidations(ctx)
			if err != nil {
				return err
			}
			queued := wire.OrchestratorService().QueuedWrites(ctx)

			if len(flagged) == 0 && len(pending) == 0 && len(queued) == 0 {
				fmt.Println("Nothing needs attention.")
				return nil
			}
			if len(flagged) > 0 {
				color.Magenta("Cluster-flagged cross-refs: %d (run `sb crossref flagged`)", len(flagged))
			}
			if len(pending) > 0 {
				fmt.Printf("Cross-refs awaiting validation: %d (run `sb crossref pending`)\n", len(pending))
			}
			if len(queued) > 0 {
				color.Red("Queued writes in the emergency cache: %d (run `sb context queue flush`)", len(queued))
			}
			return nil
		},
	}
}
