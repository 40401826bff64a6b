package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/graham/backend/internal/domain/billing"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type usageReader interface {
	UnbilledUsage(ctx context.Context, userID string, periodEnd time.Time) (billing.UsageSummary, error)
}

func newUsageCmd(opts *rootOptions) *cobra.Command {
	var before string

	cmd := &cobra.Command{
		Use:   "usage <userId>",
		Short: "Print a user's unbilled usage",
		Example: `  # Everything not yet billed
  billingctl usage user_2a9

  # What the next monthly run would bill
  billingctl usage user_2a9 --before 2026-10-01T00:00:00Z`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			periodEnd := time.Now().UTC()
			if before != "" {
				parsed, err := time.Parse(time.RFC3339, before)
				if err != nil {
					return fmt.Errorf("--before must be an RFC3339 timestamp: %w", err)
				}
				// Usage at exactly the boundary belongs to the next period
				periodEnd = parsed.UTC().Add(-time.Microsecond)
			}

			container, log, err := openContainer(opts)
			if err != nil {
				return err
			}
			defer func() {
				if err := container.Close(); err != nil {
					log.Warn("Error closing resources", zap.Error(err))
				}
			}()
			return runUsage(cmd.Context(), container.Aggregator, cmd.OutOrStdout(), opts.output, args[0], periodEnd)
		},
	}

	cmd.Flags().StringVar(&before, "before", "", "only count usage strictly before this RFC3339 time (default: now)")
	return cmd
}

func runUsage(ctx context.Context, reader usageReader, w io.Writer, output, userID string, periodEnd time.Time) error {
	summary, err := reader.UnbilledUsage(ctx, userID, periodEnd)
	if err != nil {
		return fmt.Errorf("usage: %w", err)
	}
	if output == "json" {
		return printJSON(w, summary)
	}

	fmt.Fprintf(w, "User:      %s\n", userID)
	fmt.Fprintf(w, "Through:   %s\n", periodEnd.Format(time.RFC3339))
	fmt.Fprintf(w, "Records:   %d\n", len(summary.Records))
	fmt.Fprintf(w, "Seconds:   %s\n", summary.TotalSeconds.String())
	fmt.Fprintf(w, "Minutes:   %d\n", summary.TotalMinutes)
	return nil
}
