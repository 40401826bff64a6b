package telemetry

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// ErrMeterNil is returned when a metrics set is built without a meter
var ErrMeterNil = errors.New("telemetry: meter cannot be nil")

// BillingMetrics tracks the usage ledger and reconciliation runs.
type BillingMetrics struct {
	usageRecorded   *Counter
	minutesRecorded *Counter
	usersInvoiced   *Counter
	userFailures    *Counter
	minutesReported *Counter
	runDuration     *Histogram
}

// NewBillingMetrics registers the billing instruments on meter.
func NewBillingMetrics(meter metric.Meter) (*BillingMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}

	var (
		bm  BillingMetrics
		err error
	)
	if bm.usageRecorded, err = NewCounter(meter, "graham_usage_records_total", "Usage records written to the ledger", "{records}"); err != nil {
		return nil, err
	}
	if bm.minutesRecorded, err = NewCounter(meter, "graham_usage_minutes_recorded_total", "Billable minutes written to the ledger", "min"); err != nil {
		return nil, err
	}
	if bm.usersInvoiced, err = NewCounter(meter, "graham_billing_users_invoiced_total", "Users whose usage was reported upstream", "{users}"); err != nil {
		return nil, err
	}
	if bm.userFailures, err = NewCounter(meter, "graham_billing_user_failures_total", "Users that failed reconciliation", "{users}"); err != nil {
		return nil, err
	}
	if bm.minutesReported, err = NewCounter(meter, "graham_billing_minutes_reported_total", "Minutes reported to the payment processor", "min"); err != nil {
		return nil, err
	}
	if bm.runDuration, err = NewHistogram(meter, "graham_billing_run_duration_seconds", "Reconciliation run duration", "s",
		1, 5, 15, 30, 60, 300, 900, 3600); err != nil {
		return nil, err
	}
	return &bm, nil
}

// RecordUsage counts one ledger write of minutes.
func (m *BillingMetrics) RecordUsage(ctx context.Context, minutes int64) {
	if m == nil {
		return
	}
	m.usageRecorded.Inc(ctx)
	m.minutesRecorded.Add(ctx, minutes)
}

// RecordInvoiced counts a successfully reconciled user.
func (m *BillingMetrics) RecordInvoiced(ctx context.Context, minutes int64) {
	if m == nil {
		return
	}
	m.usersInvoiced.Inc(ctx)
	m.minutesReported.Add(ctx, minutes)
}

// RecordFailure counts a user that failed reconciliation for reason.
func (m *BillingMetrics) RecordFailure(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.userFailures.Inc(ctx, AttrReason.String(reason))
}

// RecordRun records the duration of a reconciliation run.
func (m *BillingMetrics) RecordRun(ctx context.Context, d time.Duration, trigger string) {
	if m == nil {
		return
	}
	m.runDuration.RecordDuration(ctx, d, AttrTrigger.String(trigger))
}
