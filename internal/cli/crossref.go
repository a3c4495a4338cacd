package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/example/sidebar/internal/models"
	"github.com/example/sidebar/internal/ports/primary"
	"github.com/example/sidebar/internal/wire"
)

// CrossRefCmd returns the crossref command
func CrossRefCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crossref",
		Short: "Manage cross-references between contexts",
		Long: `Create, query, validate and revoke cross-references. Every edge is
mirrored on its target; revocation marks the record and keeps it.`,
	}

	cmd.AddCommand(crossRefAddCmd())
	cmd.AddCommand(crossRefQueryCmd())
	cmd.AddCommand(crossRefUpdateCmd())
	cmd.AddCommand(crossRefRevokeCmd())
	cmd.AddCommand(crossRefValidateCmd())
	cmd.AddCommand(crossRefFlaggedCmd())
	cmd.AddCommand(crossRefPendingCmd())

	return cmd
}

func crossRefAddCmd() *cobra.Command {
	var strength, reason, method, suggestedBy string
	var confidence float64

	cmd := &cobra.Command{
		Use:   "add [source] [target] [type]",
		Short: "Add a cross-reference between two contexts",
		Long: `Add a directed cross-reference. The target automatically receives a
mirror edge, so the link is discoverable from both sides.

Types: cites, related_to, derived_from, contradicts, supersedes, obsoletes,
implements, blocks, depends_on, informs.

Examples:
  sb crossref add SB-2 SB-5 contradicts --strength strong --reason "timings disagree"
  sb crossref add SB-1 SB-3 informs --suggested-by analyzer-2`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			view, err := wire.CrossRefService().Add(context.Background(), primary.AddCrossRefRequest{
				SourceShortID:   args[0],
				TargetShortID:   args[1],
				RefType:         models.RefType(args[2]),
				Strength:        models.Strength(strength),
				Confidence:      confidence,
				Reason:          reason,
				DiscoveryMethod: method,
				SuggestedBy:     suggestedBy,
			})
			if err != nil {
				return fmt.Errorf("failed to add cross-ref: %w", err)
			}

			fmt.Printf("✓ Linked %s -> %s (%s, %s)\n",
				view.SourceShortID, view.TargetShortID, view.RefType, view.Strength)
			if view.ClusterFlagged {
				fmt.Println(color.New(color.FgHiMagenta).Sprintf(
					"  flagged for consensus review: %d sources suggest this link", view.SuggestionCount))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&strength, "strength", string(models.StrengthNormal), "speculative, weak, normal, strong or definitive")
	cmd.Flags().Float64Var(&confidence, "confidence", 0.5, "confidence in [0,1]")
	cmd.Flags().StringVar(&reason, "reason", "", "why the contexts are linked")
	cmd.Flags().StringVar(&method, "method", "", "how the link was discovered")
	cmd.Flags().StringVar(&suggestedBy, "suggested-by", "", "originating source for consensus clustering")
	return cmd
}

func crossRefQueryCmd() *cobra.Command {
	var refType, minStrength string
	var includeRevoked bool

	cmd := &cobra.Command{
		Use:   "query [context]",
		Short: "List cross-references touching a context",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			views, err := wire.CrossRefService().Query(context.Background(), primary.QueryCrossRefsRequest{
				ShortID:        args[0],
				RefType:        models.RefType(refType),
				MinStrength:    models.Strength(minStrength),
				IncludeRevoked: includeRevoked,
			})
			if err != nil {
				return fmt.Errorf("failed to query cross-refs: %w", err)
			}

			if len(views) == 0 {
				fmt.Println("No cross-refs found.")
				return nil
			}
			printCrossRefs(views)
			return nil
		},
	}

	cmd.Flags().StringVar(&refType, "type", "", "filter by ref type")
	cmd.Flags().StringVar(&minStrength, "min-strength", "", "minimum strength to include")
	cmd.Flags().BoolVar(&includeRevoked, "revoked", false, "include revoked edges")
	return cmd
}

func crossRefUpdateCmd() *cobra.Command {
	var strength, reason string
	var confidence float64

	cmd := &cobra.Command{
		Use:   "update [source] [target]",
		Short: "Update cross-reference metadata",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := primary.UpdateCrossRefRequest{
				SourceShortID: args[0],
				TargetShortID: args[1],
				Strength:      models.Strength(strength),
				Reason:        reason,
			}
			if cmd.Flags().Changed("confidence") {
				req.Confidence = confidence
				req.ConfidenceSet = true
			}
			if err := wire.CrossRefService().Update(context.Background(), req); err != nil {
				return fmt.Errorf("failed to update cross-ref: %w", err)
			}

			fmt.Printf("✓ Updated %s -> %s\n", args[0], args[1])
			return nil
		},
	}

	cmd.Flags().StringVar(&strength, "strength", "", "new strength")
	cmd.Flags().Float64Var(&confidence, "confidence", 0, "new confidence in [0,1]")
	cmd.Flags().StringVar(&reason, "reason", "", "new reason")
	return cmd
}

func crossRefRevokeCmd() *cobra.Command {
	var replacements []string
	var corrected string

	cmd := &cobra.Command{
		Use:   "revoke [source] [target] [reason]",
		Short: "Revoke a cross-reference (record is kept)",
		Long: `Mark a cross-reference and its mirror revoked. The reason is
mandatory and the record survives for audit; revoked edges simply stop
matching queries.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			err := wire.CrossRefService().Revoke(context.Background(), primary.RevokeCrossRefRequest{
				SourceShortID:          args[0],
				TargetShortID:          args[1],
				Reason:                 args[2],
				ReplacementRefs:        replacements,
				CorrectedUnderstanding: corrected,
			})
			if err != nil {
				return fmt.Errorf("failed to revoke cross-ref: %w", err)
			}

			fmt.Printf("✓ Revoked %s -> %s: %s\n", args[0], args[1], args[2])
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&replacements, "replaced-by", nil, "edges superseding this one")
	cmd.Flags().StringVar(&corrected, "corrected", "", "corrected understanding replacing the link")
	return cmd
}

func crossRefValidateCmd() *cobra.Command {
	var notes string

	cmd := &cobra.Command{
		Use:   "validate [source] [target] [verdict]",
		Short: "Record a human verdict on a cross-reference",
		Long: `Record a human validation verdict (true, false or not_sure). Every
verdict appends to the edge's validation history; nothing is overwritten.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			err := wire.CrossRefService().Validate(context.Background(), primary.ValidateCrossRefRequest{
				SourceShortID: args[0],
				TargetShortID: args[1],
				State:         models.ValidationState(args[2]),
				Notes:         notes,
			})
			if err != nil {
				return fmt.Errorf("failed to validate cross-ref: %w", err)
			}

			fmt.Printf("✓ Validated %s -> %s as %s\n", args[0], args[1], args[2])
			return nil
		},
	}

	cmd.Flags().StringVar(&notes, "notes", "", "notes attached to the verdict")
	return cmd
}

func crossRefFlaggedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "flagged",
		Short: "List edges flagged by consensus clustering",
		RunE: func(cmd *cobra.Command, args []string) error {
			views, err := wire.CrossRefService().ListClusterFlagged(context.Background())
			if err != nil {
				return fmt.Errorf("failed to list flagged cross-refs: %w", err)
			}
			if len(views) == 0 {
				fmt.Println("No cluster-flagged cross-refs.")
				return nil
			}
			printCrossRefs(views)
			return nil
		},
	}
}

func crossRefPendingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List edges awaiting human validation, urgent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			views, err := wire.CrossRefService().ListPendingValidations(context.Background())
			if err != nil {
				return fmt.Errorf("failed to list pending validations: %w", err)
			}
			if len(views) == 0 {
				fmt.Println("No cross-refs awaiting validation.")
				return nil
			}
			printCrossRefs(views)
			return nil
		},
	}
}

func printCrossRefs(views []*primary.CrossRefView) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SOURCE\tTARGET\tTYPE\tSTRENGTH\tCONF\tFLAGS")
	for _, v := range views {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.2f\t%s\n",
			v.SourceShortID, v.TargetShortID, v.RefType, v.Strength, v.Confidence, crossRefFlags(v))
	}
	w.Flush()
}

func crossRefFlags(v *primary.CrossRefView) string {
	flags := ""
	if v.Mirror {
		flags += "mirror "
	}
	if v.ClusterFlagged {
		flags += color.New(color.FgHiMagenta).Sprint("clustered ")
	}
	if v.HumanValidated != "" {
		flags += fmt.Sprintf("validated=%s ", v.HumanValidated)
	} else if v.ValidationPriority == models.ValidationPriorityUrgent {
		flags += color.New(color.FgYellow).Sprint("urgent ")
	}
	if v.Revoked {
		flags += color.New(color.FgRed).Sprint("revoked ")
	}
	return flags
}
