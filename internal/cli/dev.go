package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/sidebar/internal/db"
	"github.com/example/sidebar/internal/models"
	"github.com/example/sidebar/internal/ports/primary"
	"github.com/example/sidebar/internal/wire"
)

// DevCmd returns the dev command group for development utilities.
func DevCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dev",
		Short: "Development utilities (use via sb-dev shim)",
		Long: `Development utilities for working with the sidebar dev database.

These commands are intended to be run via the sb-dev shim, which sets
SIDEBAR_DB_PATH to ~/.sidebar/dev.db. Running without the shim will error
to prevent accidental modification of the production database.`,
	}

	cmd.AddCommand(devResetCmd())
	return cmd
}

func devResetCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Reset dev database with fresh fixtures",
		Long: `Delete the dev database and recreate it with fixture data.

Fixtures are written through the normal service layer, so the audit log
and snapshot table stay consistent and 'sb verify --full' passes on a
fresh dev database.

Safety: requires SIDEBAR_DB_PATH to be set (via the sb-dev shim).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			dbPath := os.Getenv("SIDEBAR_DB_PATH")
			if dbPath == "" {
				return fmt.Errorf("SIDEBAR_DB_PATH not set - use 'sb-dev dev reset' instead of 'sb dev reset'\n\nThis safety check prevents accidental reset of your production database")
			}

			if !force {
				fmt.Printf("This will delete and recreate: %s\n", dbPath)
				fmt.Print("Continue? [y/N] ")
				var response string
				fmt.Scanln(&response)
				if response != "y" && response != "Y" {
					fmt.Println("Aborted.")
					return nil
				}
			}

			if err := os.Remove(dbPath); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("failed to delete database: %w", err)
			}
			fmt.Printf("✓ Deleted %s\n", dbPath)

			if err := seedFixtures(); err != nil {
				return fmt.Errorf("failed to seed fixtures: %w", err)
			}
			fmt.Println("✓ Created fresh database and seeded fixture data")

			fmt.Println("\nDev database reset complete!")
			fmt.Println("\nSeeded entities:")
			fmt.Println("  - 2 root contexts, 2 children")
			fmt.Println("  - 1 cross-reference with a mirror")
			fmt.Println("  - memory exchanges on every context")

			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Skip confirmation prompt")
	return cmd
}

// seedFixtures drives a small but realistic workload through the services:
// a forest with two trees, some memory, and a cross-reference between them.
func seedFixtures() error {
	ctx := context.Background()
	orch := wire.OrchestratorService()

	auth, err := orch.CreateRoot(ctx, primary.CreateRootRequest{
		Task:            "investigate intermittent login failures",
		SuccessCriteria: "root cause identified and documented",
		Priority:        "high",
	})
	if err != nil {
		return err
	}
	exchanges := []primary.AppendExchangeRequest{
		{ShortID: auth.ShortID, Role: "user", Content: "login fails roughly once per hundred attempts"},
		{ShortID: auth.ShortID, Role: "assistant", Content: "failures correlate with token refresh; branching to check clock skew"},
	}
	for _, ex := range exchanges {
		if err := orch.AppendExchange(ctx, ex); err != nil {
			return err
		}
	}
	skew, err := orch.SpawnChild(ctx, primary.SpawnChildRequest{
		ParentShortID: auth.ShortID,
		Reason:        "check clock skew between auth nodes",
	})
	if err != nil {
		return err
	}
	if err := orch.AppendExchange(ctx, primary.AppendExchangeRequest{
		ShortID: skew.ShortID, Role: "assistant", Content: "node 3 drifts 40s; ntp unit is masked",
	}); err != nil {
		return err
	}

	deploy, err := orch.CreateRoot(ctx, primary.CreateRootRequest{
		Task: "review last week's deploy pipeline changes",
	})
	if err != nil {
		return err
	}
	if _, err := orch.SpawnChild(ctx, primary.SpawnChildRequest{
		ParentShortID: deploy.ShortID,
		Reason:        "diff the ntp role against the previous release",
	}); err != nil {
		return err
	}

	if _, err := wire.CrossRefService().Add(ctx, primary.AddCrossRefRequest{
		SourceShortID: skew.ShortID,
		TargetShortID: deploy.ShortID,
		RefType:       models.RefInforms,
		Strength:      models.StrengthStrong,
		Confidence:    0.7,
		Reason:        "deploy changes touched the ntp role on the drifting node",
	}); err != nil {
		return err
	}

	if err := orch.SetFocus(ctx, skew.ShortID); err != nil {
		return err
	}
	return db.Close()
}
