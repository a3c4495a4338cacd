package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/sidebar/internal/models"
	"github.com/example/sidebar/internal/ports/primary"
	"github.com/example/sidebar/internal/wire"
)

// AuditCmd returns the audit command
func AuditCmd() *cobra.Command {
	var (
		contextID string
		eventType string
		since     string
		until     string
		contains  string
	)

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Query the append-only audit log",
		Long: `Query the audit log, the ground truth every snapshot is checked
against. Entries are printed in seq order. Filters combine: a context,
an event type, a time range, and a payload substring can all be given
at once. Timestamps accept RFC 3339 or a plain date (2026-01-31).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := primary.AuditQueryRequest{
				ShortID:   contextID,
				EventType: models.EventType(eventType),
				Contains:  contains,
			}
			var err error
			if req.Since, err = parseAuditTime(since); err != nil {
				return fmt.Errorf("invalid --since: %w", err)
			}
			if req.Until, err = parseAuditTime(until); err != nil {
				return fmt.Errorf("invalid --until: %w", err)
			}

			entries, err := wire.AuditService().Query(context.Background(), req)
			if err != nil {
				return fmt.Errorf("audit query failed: %w", err)
			}
			if len(entries) == 0 {
				fmt.Println("No matching audit entries.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SEQ\tTIME\tEVENT\tCONTEXT\tACTOR\tPAYLOAD")
			for _, e := range entries {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
					e.Seq, e.Timestamp, e.EventType, e.ShortID, e.Actor, e.Payload)
			}
			w.Flush()
			return nil
		},
	}

	cmd.Flags().StringVar(&contextID, "context", "", "only entries for this context (short id)")
	cmd.Flags().StringVar(&eventType, "type", "", "only entries of this event type (e.g. STATUS_CHANGED)")
	cmd.Flags().StringVar(&since, "since", "", "only entries at or after this time")
	cmd.Flags().StringVar(&until, "until", "", "only entries at or before this time")
	cmd.Flags().StringVar(&contains, "contains", "", "only entries whose payload contains this substring")
	return cmd
}

func parseAuditTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("want RFC 3339 or YYYY-MM-DD, got %q", s)
}
