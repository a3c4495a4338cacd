package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/example/sidebar/internal/models"
	"github.com/example/sidebar/internal/oerr"
	"github.com/example/sidebar/internal/ports/primary"
	"github.com/example/sidebar/internal/wire"
)

// ContextCmd returns the context command
func ContextCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "context",
		Short: "Manage conversation contexts",
		Long:  `Create, branch, inspect and close conversation contexts in the sidebar forest.`,
	}

	cmd.AddCommand(contextCreateCmd())
	cmd.AddCommand(contextSpawnCmd())
	cmd.AddCommand(contextForkCmd())
	cmd.AddCommand(contextListCmd())
	cmd.AddCommand(contextShowCmd())
	cmd.AddCommand(contextPauseCmd())
	cmd.AddCommand(contextResumeCmd())
	cmd.AddCommand(contextMergeCmd())
	cmd.AddCommand(contextArchiveCmd())
	cmd.AddCommand(contextFailCmd())
	cmd.AddCommand(contextReparentCmd())
	cmd.AddCommand(contextAppendCmd())
	cmd.AddCommand(contextQueueCmd())

	return cmd
}

func contextCreateCmd() *cobra.Command {
	var criteria, priority, conversation string

	cmd := &cobra.Command{
		Use:   "create [task]",
		Short: "Create a new root context",
		Long: `Create a new root context anchoring a fresh investigation tree.

Examples:
  sb context create "investigate checkout latency"
  sb context create "migrate billing schema" --criteria "all rows copied" --priority high`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := wire.OrchestratorService().CreateRoot(context.Background(), primary.CreateRootRequest{
				Task:            args[0],
				SuccessCriteria: criteria,
				Priority:        priority,
				ConversationID:  conversation,
			})
			if err != nil {
				return fmt.Errorf("failed to create context: %w", err)
			}

			fmt.Printf("✓ Created context %s: %s\n", resp.ShortID, resp.Context.TaskDescription)
			return nil
		},
	}

	cmd.Flags().StringVar(&criteria, "criteria", "", "success criteria for the context")
	cmd.Flags().StringVar(&priority, "priority", "", "priority (low, normal, high, urgent)")
	cmd.Flags().StringVar(&conversation, "conversation", "", "external conversation id to bind")
	return cmd
}

func contextSpawnCmd() *cobra.Command {
	var inherit int
	var priority string

	cmd := &cobra.Command{
		Use:   "spawn [parent] [reason]",
		Short: "Branch a child context under a parent",
		Long: `Branch a sub-investigation under an existing context. The child
inherits a snapshot of the parent's most recent exchanges; the snapshot is
copied once and never tracks the parent afterward.

Examples:
  sb context spawn SB-1 "dig into the slow query"
  sb context spawn SB-1 "check cache hit rates" --inherit 5`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := wire.OrchestratorService().SpawnChild(context.Background(), primary.SpawnChildRequest{
				ParentShortID: args[0],
				Reason:        args[1],
				InheritLastN:  inherit,
				Priority:      priority,
			})
			if err != nil {
				return fmt.Errorf("failed to spawn child: %w", err)
			}

			fmt.Printf("✓ Spawned %s under %s (%d exchanges inherited)\n",
				resp.ShortID, args[0], resp.Context.InheritedCount)
			return nil
		},
	}

	cmd.Flags().IntVar(&inherit, "inherit", 0, "exchanges to inherit from the parent (0 = configured default, negative = all)")
	cmd.Flags().StringVar(&priority, "priority", "", "priority (low, normal, high, urgent)")
	return cmd
}

func contextForkCmd() *cobra.Command {
	var task string

	cmd := &cobra.Command{
		Use:   "fork [source]",
		Short: "Fork a fresh context from any context, terminal ones included",
		Long: `Fork a fresh root-level context from an existing one. Unlike spawn,
fork works on merged, archived and failed contexts: the fork carries lineage
via forked_from and a combined snapshot of the source's memory, but is
otherwise independent.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := wire.OrchestratorService().Fork(context.Background(), primary.ForkRequest{
				SourceShortID: args[0],
				Task:          task,
			})
			if err != nil {
				return fmt.Errorf("failed to fork: %w", err)
			}

			fmt.Printf("✓ Forked %s from %s\n", resp.ShortID, args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&task, "task", "", "task for the fork (defaults to the source's task)")
	return cmd
}

func contextListCmd() *cobra.Command {
	var status string
	var rootsOnly bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List contexts",
		RunE: func(cmd *cobra.Command, args []string) error {
			views, err := wire.OrchestratorService().List(context.Background(), primary.ContextFilters{
				Status:    models.ContextStatus(status),
				RootsOnly: rootsOnly,
			})
			if err != nil {
				return fmt.Errorf("failed to list contexts: %w", err)
			}

			if len(views) == 0 {
				fmt.Println("No contexts found.")
				fmt.Println()
				fmt.Println("Create your first context:")
				fmt.Println("  sb context create \"my investigation\"")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTATUS\tPARENT\tREFS\tTASK")
			for _, v := range views {
				parent := v.ParentShortID
				if parent == "" {
					parent = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
					v.ShortID, colorizeStatus(v.Status), parent, v.CrossRefCount, v.TaskDescription)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	cmd.Flags().BoolVar(&rootsOnly, "roots", false, "only show root contexts")
	return cmd
}

func contextShowCmd() *cobra.Command {
	var showMemory bool

	cmd := &cobra.Command{
		Use:   "show [context]",
		Short: "Show context details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := wire.OrchestratorService().Get(context.Background(), args[0])
			if err != nil {
				return fmt.Errorf("failed to get context: %w", err)
			}

			fmt.Printf("\nContext: %s [%s]\n", v.ShortID, colorizeStatus(v.Status))
			fmt.Printf("Task:     %s\n", v.TaskDescription)
			if v.SuccessCriteria != "" {
				fmt.Printf("Criteria: %s\n", v.SuccessCriteria)
			}
			fmt.Printf("Priority: %s\n", v.Priority)
			if v.ParentShortID != "" {
				fmt.Printf("Parent:   %s\n", v.ParentShortID)
			}
			if len(v.ChildShortIDs) > 0 {
				fmt.Printf("Children: %v\n", v.ChildShortIDs)
			}
			if v.ForkedFrom != "" {
				fmt.Printf("Forked from: %s\n", v.ForkedFrom)
			}
			if v.FailureReason != "" {
				fmt.Printf("Failure:  %s\n", v.FailureReason)
			}
			fmt.Printf("Memory:   %d inherited, %d local\n", v.InheritedCount, v.LocalCount)
			fmt.Printf("Refs:     %d\n", v.CrossRefCount)
			fmt.Printf("Created:  %s\n", v.CreatedAt)
			fmt.Printf("Activity: %s\n", v.LastActivity)

			if showMemory && len(v.LocalMemory) > 0 {
				fmt.Println()
				fmt.Println("Local memory:")
				for _, e := range v.LocalMemory {
					fmt.Printf("  [%s] %s\n", e.Role, e.Content)
				}
			}
			fmt.Println()
			return nil
		},
	}

	cmd.Flags().BoolVar(&showMemory, "memory", false, "include local memory exchanges")
	return cmd
}

func contextPauseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pause [context]",
		Short: "Pause an active context",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := wire.OrchestratorService().Pause(context.Background(), args[0]); err != nil {
				return fmt.Errorf("failed to pause: %w", err)
			}
			fmt.Printf("✓ Paused %s\n", args[0])
			return nil
		},
	}
}

func contextResumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume [context]",
		Short: "Resume a paused context",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := wire.OrchestratorService().Resume(context.Background(), args[0]); err != nil {
				return fmt.Errorf("failed to resume: %w", err)
			}
			fmt.Printf("✓ Resumed %s\n", args[0])
			return nil
		},
	}
}

func contextMergeCmd() *cobra.Command {
	var summary string

	cmd := &cobra.Command{
		Use:   "merge [context]",
		Short: "Merge a child context back into its parent",
		Long: `Fold a child's local memory into its parent and mark the child
merged. Roots cannot be merged; archive or fail them instead.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := wire.OrchestratorService().Merge(context.Background(), primary.MergeRequest{
				ShortID: args[0],
				Summary: summary,
			})
			if err != nil {
				return fmt.Errorf("failed to merge: %w", err)
			}

			fmt.Printf("✓ Merged %s into %s (%d exchanges folded)\n",
				resp.ShortID, resp.ParentShortID, resp.FoldedExchanges)
			return nil
		},
	}

	cmd.Flags().StringVar(&summary, "summary", "", "one-line summary folded into the parent")
	return cmd
}

func contextArchiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "archive [context]",
		Short: "Archive a context (terminal)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := wire.OrchestratorService().Archive(context.Background(), args[0]); err != nil {
				return fmt.Errorf("failed to archive: %w", err)
			}
			fmt.Printf("✓ Archived %s\n", args[0])
			return nil
		},
	}
}

func contextFailCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fail [context] [reason]",
		Short: "Mark a context failed (terminal)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := wire.OrchestratorService().Fail(context.Background(), args[0], args[1]); err != nil {
				return fmt.Errorf("failed to fail context: %w", err)
			}
			fmt.Printf("✓ Failed %s: %s\n", args[0], args[1])
			return nil
		},
	}
}

func contextReparentCmd() *cobra.Command {
	var newParent, reason string

	cmd := &cobra.Command{
		Use:   "reparent [context]",
		Short: "Move a context and its subtree under a new parent",
		Long: `Move a context and all its descendants under a new parent. Omit
--under to promote the context to a root of its own. Moves that would make
a context its own ancestor are rejected before anything changes.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := wire.OrchestratorService().Reparent(context.Background(), primary.ReparentRequest{
				ShortID:          args[0],
				NewParentShortID: newParent,
				Reason:           reason,
			})
			if err != nil {
				if oerr.IsCycle(err) {
					return fmt.Errorf("refused: %w", err)
				}
				return fmt.Errorf("failed to reparent: %w", err)
			}

			dest := resp.NewParentShortID
			if dest == "" {
				dest = "root"
			}
			fmt.Printf("✓ Moved %s to %s", resp.ShortID, dest)
			if len(resp.MovedDescendants) > 0 {
				fmt.Printf(" (with %v)", resp.MovedDescendants)
			}
			fmt.Println()
			return nil
		},
	}

	cmd.Flags().StringVar(&newParent, "under", "", "new parent context (omit to promote to root)")
	cmd.Flags().StringVar(&reason, "reason", "", "why the context is moving")
	return cmd
}

func contextAppendCmd() *cobra.Command {
	var role string

	cmd := &cobra.Command{
		Use:   "append [context] [content]",
		Short: "Append an exchange to a context's local memory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			err := wire.OrchestratorService().AppendExchange(context.Background(), primary.AppendExchangeRequest{
				ShortID: args[0],
				Role:    role,
				Content: args[1],
			})
			if err != nil {
				return fmt.Errorf("failed to append: %w", err)
			}
			fmt.Printf("✓ Appended to %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&role, "role", "user", "role of the exchange (user, assistant, summary)")
	return cmd
}

func contextQueueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and flush the emergency write cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			queued := wire.OrchestratorService().QueuedWrites(context.Background())
			if len(queued) == 0 {
				fmt.Println("Emergency cache is empty.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CONTEXT\tOPERATION\tQUEUED\tATTEMPTS")
			for _, q := range queued {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", q.ShortID, q.Operation, q.QueuedAt, q.Attempts)
			}
			return w.Flush()
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "flush",
		Short: "Retry every queued write",
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := wire.OrchestratorService().FlushQueue(context.Background())
			if err != nil {
				return fmt.Errorf("failed to flush queue: %w", err)
			}

			fmt.Printf("✓ Flushed %d/%d queued writes (%d remaining)\n",
				report.Succeeded, report.Retried, report.Remaining)
			for _, c := range report.Conflicts {
				color.Yellow("  conflict: %s", c)
			}
			for _, f := range report.Failures {
				fmt.Printf("  still failing: %s\n", f)
			}
			return nil
		},
	})
	return cmd
}

// colorizeStatus renders a context status with its conventional color.
func colorizeStatus(status models.ContextStatus) string {
	switch status {
	case models.StatusActive:
		return color.New(color.FgGreen).Sprint(status)
	case models.StatusTesting, models.StatusReviewing:
		return color.New(color.FgCyan).Sprint(status)
	case models.StatusPaused, models.StatusWaiting:
		return color.New(color.FgYellow).Sprint(status)
	case models.StatusFailed:
		return color.New(color.FgRed).Sprint(status)
	case models.StatusMerged, models.StatusArchived:
		return color.New(color.Faint).Sprint(status)
	default:
		return string(status)
	}
}
