package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/sidebar/internal/oerr"
	"github.com/example/sidebar/internal/wire"
)

// FocusCmd returns the focus command
func FocusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "focus [context]",
		Short: "Set or show the current session focus",
		Long: `Focus on a context for the current session. With no argument, shows
where the focus currently lands after the fallback chain: the recorded
focus if still live, its nearest non-terminal ancestor otherwise, and
finally any active root.

Examples:
  sb focus SB-3
  sb focus`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			if len(args) == 1 {
				if err := wire.OrchestratorService().SetFocus(ctx, args[0]); err != nil {
					return fmt.Errorf("failed to set focus: %w", err)
				}
				fmt.Printf("✓ Focused %s\n", args[0])
				return nil
			}

			view, err := wire.OrchestratorService().Focus(ctx)
			if err != nil {
				if oerr.IsNotFound(err) {
					fmt.Println("No focus set and no active root to fall back to.")
					return nil
				}
				return fmt.Errorf("failed to resolve focus: %w", err)
			}

			fmt.Printf("Focus: %s [%s] %s\n", view.ShortID, view.Status, view.TaskDescription)
			return nil
		},
	}

	return cmd
}
