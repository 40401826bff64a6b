package billing

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/graham/backend/internal/domain/billing"
	"github.com/graham/backend/internal/domain/shared"
	infraBilling "github.com/graham/backend/internal/infrastructure/billing"
	"github.com/graham/backend/internal/infrastructure/telemetry"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Run triggers reported in metrics and logs
const (
	TriggerScheduled = "scheduled"
	TriggerManual    = "manual"
)

const runLockPrefix = "billing:run:"

// ErrRunInProgress is returned when another reconciliation run holds the run lock
var ErrRunInProgress = shared.NewDomainError(shared.CodeConflict, "billing run already in progress")

// ReconcileFailure is one user that could not be billed in a run
type ReconcileFailure struct {
	UserID string `json:"userId"`
	Code   string `json:"code"`
	Error  string `json:"error"`
}

// ReconcileResult summarises one reconciliation run
type ReconcileResult struct {
	PeriodStart   time.Time          `json:"periodStart"`
	PeriodEnd     time.Time          `json:"periodEnd"`
	InvoicedUsers []string           `json:"invoicedUsers"`
	Failures      []ReconcileFailure `json:"failures"`
	SkippedUsers  int                `json:"skippedUsers"`
	TotalMinutes  int64              `json:"totalMinutes"`
	Duration      time.Duration      `json:"duration"`
}

// Reconciler reports each user's unbilled minutes to Stripe once per period
// and flips exactly the reported records to billed.
type Reconciler struct {
	aggregator        *UsageAggregator
	subscriptionRepo  billing.SubscriptionRepository
	ledger            billing.BillingLedger
	stripe            StripeGateway
	runLock           shared.IdempotencyStore
	metrics           *telemetry.BillingMetrics
	logger            *zap.Logger
	ratePerMinute     decimal.Decimal
	currency          string
	workers           int
	stripeCallTimeout time.Duration
	runLockTTL        time.Duration
	nowFunc           func() time.Time
}

// ReconcilerConfig contains the dependencies and settings of Reconciler.
// RunLock and Metrics are optional.
type ReconcilerConfig struct {
	Aggregator        *UsageAggregator
	SubscriptionRepo  billing.SubscriptionRepository
	Ledger            billing.BillingLedger
	Stripe            StripeGateway
	RunLock           shared.IdempotencyStore
	Metrics           *telemetry.BillingMetrics
	Logger            *zap.Logger
	RatePerMinute     decimal.Decimal
	Currency          string
	Workers           int
	StripeCallTimeout time.Duration
	RunLockTTL        time.Duration
}

// NewReconciler creates a new Reconciler
func NewReconciler(cfg ReconcilerConfig) *Reconciler {
	r := &Reconciler{
		aggregator:        cfg.Aggregator,
		subscriptionRepo:  cfg.SubscriptionRepo,
		ledger:            cfg.Ledger,
		stripe:            cfg.Stripe,
		runLock:           cfg.RunLock,
		metrics:           cfg.Metrics,
		logger:            cfg.Logger,
		ratePerMinute:     cfg.RatePerMinute,
		currency:          cfg.Currency,
		workers:           cfg.Workers,
		stripeCallTimeout: cfg.StripeCallTimeout,
		runLockTTL:        cfg.RunLockTTL,
		nowFunc:           time.Now,
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	if r.ratePerMinute.IsZero() {
		r.ratePerMinute = decimal.RequireFromString("0.25")
	}
	if r.currency == "" {
		r.currency = "usd"
	}
	if r.workers <= 0 {
		r.workers = 1
	}
	if r.stripeCallTimeout <= 0 {
		r.stripeCallTimeout = 15 * time.Second
	}
	if r.runLockTTL <= 0 {
		r.runLockTTL = 2 * time.Hour
	}
	return r
}

// RunMonthlyBilling reconciles all usage recorded before the start of the current UTC month.
// Per-user failures are collected in the result; the returned error is reserved
// for failures that stop the whole run.
func (r *Reconciler) RunMonthlyBilling(ctx context.Context, trigger string) (*ReconcileResult, error) {
	start := r.nowFunc()
	period := billing.PreviousMonth(start)

	log := r.logger.With(
		zap.String("trigger", trigger),
		zap.String("period", period.Label()),
		zap.Time("period_end", period.End))

	release, err := r.acquireRunLock(ctx, period)
	if err != nil {
		log.Warn("Billing run not started", zap.Error(err))
		return nil, err
	}
	defer release()

	log.Info("Starting monthly billing run")

	users, err := r.aggregator.UsersWithUnbilledUsage(ctx, period.End)
	if err != nil {
		return nil, err
	}

	result := &ReconcileResult{
		PeriodStart:   period.Start,
		PeriodEnd:     period.End,
		InvoicedUsers: []string{},
		Failures:      []ReconcileFailure{},
	}

	var (
		mu  sync.Mutex
		g   errgroup.Group
		sem = semaphore.NewWeighted(int64(r.workers))
	)
	for i, userID := range users {
		if err := sem.Acquire(ctx, 1); err != nil {
			mu.Lock()
			for _, pending := range users[i:] {
				result.Failures = append(result.Failures, failureFor(pending, err))
			}
			mu.Unlock()
			break
		}
		g.Go(func() error {
			defer sem.Release(1)

			minutes, billed, err := r.reconcileUser(ctx, userID, period)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				result.Failures = append(result.Failures, failureFor(userID, err))
				r.metrics.RecordFailure(ctx, failureCode(err))
				log.Error("Failed to bill user", zap.String("user_id", userID), zap.Error(err))
			case billed:
				result.InvoicedUsers = append(result.InvoicedUsers, userID)
				result.TotalMinutes += minutes
				r.metrics.RecordInvoiced(ctx, minutes)
			default:
				result.SkippedUsers++
			}
			return nil
		})
	}
	_ = g.Wait()

	result.Duration = r.nowFunc().Sub(start)
	r.metrics.RecordRun(ctx, result.Duration, trigger)

	log.Info("Monthly billing run completed",
		zap.Int("users", len(users)),
		zap.Int("invoiced", len(result.InvoicedUsers)),
		zap.Int("failed", len(result.Failures)),
		zap.Int("skipped", result.SkippedUsers),
		zap.Int64("minutes", result.TotalMinutes),
		zap.Duration("duration", result.Duration))

	return result, nil
}

// reconcileUser bills one user's unbilled usage. It reports false without error
// when there is nothing to bill.
func (r *Reconciler) reconcileUser(ctx context.Context, userID string, period billing.BillingPeriod) (int64, bool, error) {
	summary, err := r.aggregator.UnbilledUsage(ctx, userID, period.End)
	if err != nil {
		return 0, false, err
	}
	if summary.IsEmpty() {
		return 0, false, nil
	}

	sub, err := r.subscriptionRepo.FindByUserID(ctx, userID)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return 0, false, err
	}
	if !sub.HasStripeSubscription() {
		return 0, false, shared.NewDomainError(shared.CodeInvalidState, "user has no Stripe subscription")
	}

	item, err := r.getSubscriptionItem(ctx, *sub.StripeSubscriptionID)
	if err != nil {
		return 0, false, err
	}

	amount := billing.AmountCents(summary.TotalMinutes, r.ratePerMinute)
	record, err := billing.NewBillingRecord(userID, summary, period, amount, r.currency)
	if err != nil {
		return 0, false, err
	}

	output, err := r.reportUsage(ctx, infraBilling.UsageReportInput{
		UserID:             userID,
		SubscriptionItemID: item.ID,
		Quantity:           summary.TotalMinutes,
		Action:             infraBilling.UsageActionIncrement,
		IdempotencyKey:     record.IdempotencyKey,
	})
	if err != nil {
		return 0, false, err
	}

	if err := record.MarkReported(item.ID, output.UsageRecordID); err != nil {
		return 0, false, err
	}

	if err := r.ledger.Commit(ctx, record, summary.RecordIDs()); err != nil {
		// Stripe accepted the usage but the ledger did not. A same-day re-run
		// over the same record set reuses the idempotency key.
		r.logger.Error("Usage reported but ledger commit failed",
			zap.String("user_id", userID),
			zap.String("idempotency_key", record.IdempotencyKey),
			zap.String("stripe_usage_record_id", output.UsageRecordID),
			zap.Error(err))
		return 0, false, err
	}

	r.logger.Info("User billed",
		zap.String("user_id", userID),
		zap.String("billing_record_id", record.ID.String()),
		zap.Int64("minutes", record.Minutes),
		zap.Int64("amount_cents", record.AmountCents),
		zap.Int("records", len(summary.Records)))

	return summary.TotalMinutes, true, nil
}

func (r *Reconciler) getSubscriptionItem(ctx context.Context, subscriptionID string) (*infraBilling.SubscriptionItem, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.stripeCallTimeout)
	defer cancel()
	return r.stripe.GetSubscriptionItem(callCtx, subscriptionID)
}

func (r *Reconciler) reportUsage(ctx context.Context, input infraBilling.UsageReportInput) (*infraBilling.UsageReportOutput, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.stripeCallTimeout)
	defer cancel()
	return r.stripe.ReportUsage(callCtx, input)
}

// acquireRunLock claims the run lock for period and returns its release func
func (r *Reconciler) acquireRunLock(ctx context.Context, period billing.BillingPeriod) (func(), error) {
	if r.runLock == nil {
		return func() {}, nil
	}
	key := runLockPrefix + period.Label()
	claimed, err := r.runLock.Claim(ctx, key, r.runLockTTL)
	if err != nil {
		return nil, shared.NewPersistenceError("failed to acquire billing run lock", err)
	}
	if !claimed {
		return nil, ErrRunInProgress
	}
	return func() {
		// The run context may already be cancelled
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := r.runLock.Release(releaseCtx, key); err != nil {
			r.logger.Warn("Failed to release billing run lock", zap.String("key", key), zap.Error(err))
		}
	}, nil
}

func failureFor(userID string, err error) ReconcileFailure {
	return ReconcileFailure{UserID: userID, Code: failureCode(err), Error: err.Error()}
}

func failureCode(err error) string {
	if code := shared.CodeOf(err); code != "" {
		return code
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return "TIMEOUT"
	}
	return "UNKNOWN"
}
