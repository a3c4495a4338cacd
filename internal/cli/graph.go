package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/example/sidebar/internal/ports/primary"
	"github.com/example/sidebar/internal/wire"
)

// GraphCmd returns the graph command
func GraphCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Explore the projected context graph",
		Long: `Render and interact with the read-only graph projection: contexts
and cross-refs as positioned points, tree edges along parent pointers. The
projection is derived state; deleting it loses nothing.`,
	}

	cmd.AddCommand(graphRenderCmd())
	cmd.AddCommand(graphGrabCmd())
	cmd.AddCommand(graphReleaseCmd())
	cmd.AddCommand(graphPlaceCmd())
	cmd.AddCommand(graphCushionCmd())

	return cmd
}

func graphRenderCmd() *cobra.Command {
	var expanded bool
	var relax int

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render the current projection",
		RunE: func(cmd *cobra.Command, args []string) error {
			view, err := wire.ProjectionService().Render(context.Background(), primary.RenderRequest{
				Expanded: expanded,
				Relax:    relax,
			})
			if err != nil {
				return fmt.Errorf("failed to render graph: %w", err)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "POINT\tX\tY\tFLAGS")
			for _, p := range view.Points {
				flags := ""
				if p.Staged {
					flags += color.New(color.FgYellow).Sprint("staged ")
				}
				if p.GrabbedBy != "" {
					flags += color.New(color.FgCyan).Sprintf("grabbed by %s ", p.GrabbedBy)
				}
				fmt.Fprintf(w, "%s\t%.1f\t%.1f\t%s\n", p.ID, p.X, p.Y, flags)
				if expanded && p.Meta != nil {
					for k, v := range p.Meta {
						fmt.Fprintf(w, "  %s\t%v\t\t\n", k, v)
					}
				}
			}
			if err := w.Flush(); err != nil {
				return err
			}

			fmt.Printf("\n%d points, %d edges", len(view.Points), len(view.Edges))
			if len(view.Cushion) > 0 {
				fmt.Printf(", %d staged", len(view.Cushion))
			}
			fmt.Println()
			return nil
		},
	}

	cmd.Flags().BoolVar(&expanded, "expanded", false, "inline full metadata per point")
	cmd.Flags().IntVar(&relax, "relax", 0, "layout iterations (0 = configured default)")
	return cmd
}

func graphGrabCmd() *cobra.Command {
	var actor string

	cmd := &cobra.Command{
		Use:   "grab [point]",
		Short: "Place an advisory claim on a point",
		Long: `Claim a point for focused work. Claims are advisory: they never
block anyone. If someone else already holds the point, the collision spawns
a joint investigation context under it so both of you have a place to
converge.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := wire.ProjectionService().Grab(context.Background(), primary.GrabRequest{
				PointID: args[0],
				Actor:   actor,
			})
			if err != nil {
				return fmt.Errorf("failed to grab point: %w", err)
			}

			if resp.Collision {
				fmt.Printf("Point %s is held by %s\n", resp.PointID, resp.HeldBy)
				if resp.JointShortID != "" {
					fmt.Printf("✓ Spawned joint investigation %s\n", resp.JointShortID)
				}
				return nil
			}
			fmt.Printf("✓ Grabbed %s\n", resp.PointID)
			return nil
		},
	}

	cmd.Flags().StringVar(&actor, "as", "", "actor claiming the point")
	return cmd
}

func graphReleaseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "release [point]",
		Short: "Drop an advisory claim",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := wire.ProjectionService().Release(context.Background(), args[0]); err != nil {
				return fmt.Errorf("failed to release point: %w", err)
			}
			fmt.Printf("✓ Released %s\n", args[0])
			return nil
		},
	}
}

func graphPlaceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "place [point] [x] [y]",
		Short: "Place a staged point on the board",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			x, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("bad x coordinate %q", args[1])
			}
			y, err := strconv.ParseFloat(args[2], 64)
			if err != nil {
				return fmt.Errorf("bad y coordinate %q", args[2])
			}

			err = wire.ProjectionService().Place(context.Background(), primary.PlaceRequest{
				PointID: args[0],
				X:       x,
				Y:       y,
			})
			if err != nil {
				return fmt.Errorf("failed to place point: %w", err)
			}
			fmt.Printf("✓ Placed %s at (%.1f, %.1f)\n", args[0], x, y)
			return nil
		},
	}
}

func graphCushionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cushion",
		Short: "List staged points awaiting placement",
		RunE: func(cmd *cobra.Command, args []string) error {
			staged, err := wire.ProjectionService().Cushion(context.Background())
			if err != nil {
				return fmt.Errorf("failed to list cushion: %w", err)
			}
			if len(staged) == 0 {
				fmt.Println("Cushion is empty.")
				return nil
			}
			for _, id := range staged {
				fmt.Printf("  %s\n", id)
			}
			return nil
		},
	}
}
