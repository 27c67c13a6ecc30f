package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/neboloop/sessionkeeper/internal/journal"
)

// StatusCmd prints recent journal entries.
func StatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show recent keeper events",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := *KeeperConfig
			if _, err := os.Stat(c.Journal.Path); err != nil {
				return fmt.Errorf("no journal at %s: %w", c.Journal.Path, err)
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			j, err := journal.Open(ctx, c.Journal.Path)
			if err != nil {
				return err
			}
			defer j.Close()
			return printStatus(ctx, cmd.OutOrStdout(), j, statusLimit, time.Now())
		},
	}
	cmd.Flags().IntVarP(&statusLimit, "limit", "n", 20, "number of events to show")
	return cmd
}

func printStatus(ctx context.Context, out io.Writer, j *journal.Journal, limit int, now time.Time) error {
	entries, err := j.Recent(ctx, limit)
	if err != nil {
		return err
	}
	counts, err := j.CountByKind(ctx, now.Add(-24*time.Hour))
	if err != nil {
		return err
	}

	if len(entries) > 0 {
		for _, e := range entries {
			if e.Kind == journal.KindTransition {
				fmt.Fprintf(out, "State: %s (since %s)\n\n", e.To, e.At.Format(time.RFC3339))
				break
			}
		}
	}

	fmt.Fprintln(out, "Last 24h:")
	kinds := make([]string, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	for _, k := range kinds {
		fmt.Fprintf(out, "  %-18s %d\n", k, counts[k])
	}
	if len(kinds) == 0 {
		fmt.Fprintln(out, "  (no events)")
	}

	fmt.Fprintln(out, "\nRecent events:")
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tKIND\tDETAIL")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", e.At.Format("2006-01-02 15:04:05"), e.Kind, describe(e))
	}
	return tw.Flush()
}

func describe(e journal.Entry) string {
	switch e.Kind {
	case journal.KindTransition:
		return fmt.Sprintf("%s -> %s: %s", e.From, e.To, e.Message)
	case journal.KindFault:
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	case journal.KindRestart, journal.KindTerminal:
		return fmt.Sprintf("attempt %d: %s", e.Attempt, e.Message)
	default:
		if e.Op != "" {
			return fmt.Sprintf("%s %s", e.Op, e.Message)
		}
		return e.Message
	}
}
