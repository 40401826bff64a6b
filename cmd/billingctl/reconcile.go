package main

import (
	"context"
	"fmt"
	"io"

	billingapp "github.com/graham/backend/internal/application/billing"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type monthlyBiller interface {
	RunMonthlyBilling(ctx context.Context, trigger string) (*billingapp.ReconcileResult, error)
}

func newReconcileCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Run one monthly billing reconciliation now",
		Long: `Report every user's unbilled usage from before the start of the current
UTC month to Stripe and mark the reported records billed.

The run takes the same run lock as the scheduled job, so it refuses to start
while another replica is reconciling the same period.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			container, log, err := openContainer(opts)
			if err != nil {
				return err
			}
			defer func() {
				if err := container.Close(); err != nil {
					log.Warn("Error closing resources", zap.Error(err))
				}
			}()
			return runReconcile(cmd.Context(), container.Reconciler, cmd.OutOrStdout(), opts.output)
		},
	}
}

func runReconcile(ctx context.Context, biller monthlyBiller, w io.Writer, output string) error {
	result, err := biller.RunMonthlyBilling(ctx, billingapp.TriggerManual)
	if err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}
	if output == "json" {
		if err := printJSON(w, result); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(w, "Period:    %s .. %s\n", result.PeriodStart.Format("2006-01-02"), result.PeriodEnd.Format("2006-01-02 15:04:05"))
		fmt.Fprintf(w, "Invoiced:  %d users, %d minutes\n", len(result.InvoicedUsers), result.TotalMinutes)
		fmt.Fprintf(w, "Skipped:   %d users\n", result.SkippedUsers)
		fmt.Fprintf(w, "Failed:    %d users\n", len(result.Failures))
		for _, f := range result.Failures {
			fmt.Fprintf(w, "  %s  %s  %s\n", f.UserID, f.Code, f.Error)
		}
		fmt.Fprintf(w, "Duration:  %s\n", result.Duration)
	}
	if len(result.Failures) > 0 {
		return fmt.Errorf("%d users could not be billed", len(result.Failures))
	}
	return nil
}
