package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/graham/backend/internal/domain/billing"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type invoiceLister interface {
	FindByUser(ctx context.Context, userID string, limit int) ([]*billing.BillingRecord, error)
}

type invoiceRow struct {
	ID                  string    `json:"id"`
	PeriodStart         time.Time `json:"periodStart"`
	PeriodEnd           time.Time `json:"periodEnd"`
	Minutes             int64     `json:"minutes"`
	Amount              string    `json:"amount"`
	Currency            string    `json:"currency"`
	Status              string    `json:"status"`
	StripeUsageRecordID string    `json:"stripeUsageRecordId"`
}

func newInvoicesCmd(opts *rootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "invoices <userId>",
		Short: "List the billing records committed for a user, newest first",
		Args:  cobra.ExactArgs(1),
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
			return runInvoices(cmd.Context(), container.BillingRecords, cmd.OutOrStdout(), opts.output, args[0], limit)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 12, "maximum records to list, 0 for all")
	return cmd
}

func runInvoices(ctx context.Context, lister invoiceLister, w io.Writer, output, userID string, limit int) error {
	records, err := lister.FindByUser(ctx, userID, limit)
	if err != nil {
		return fmt.Errorf("invoices: %w", err)
	}

	rows := make([]invoiceRow, 0, len(records))
	for _, r := range records {
		rows = append(rows, invoiceRow{
			ID:                  r.ID.String(),
			PeriodStart:         r.PeriodStart,
			PeriodEnd:           r.PeriodEnd,
			Minutes:             r.Minutes,
			Amount:              decimal.New(r.AmountCents, -2).StringFixed(2),
			Currency:            r.Currency,
			Status:              r.Status.String(),
			StripeUsageRecordID: r.StripeUsageRecordID,
		})
	}
	if output == "json" {
		return printJSON(w, rows)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PERIOD\tMINUTES\tAMOUNT\tSTATUS\tSTRIPE RECORD")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%d\t%s %s\t%s\t%s\n",
			r.PeriodStart.Format("2006-01"), r.Minutes, r.Amount, r.Currency, r.Status, r.StripeUsageRecordID)
	}
	return tw.Flush()
}
