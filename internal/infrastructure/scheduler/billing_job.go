package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/graham/backend/internal/application/billing"
	"go.uber.org/zap"
)

// MonthlyBillingJobName is the registered name of the reconciliation job
const MonthlyBillingJobName = "monthly-billing"

// MonthlyBiller runs a reconciliation pass. *billing.Reconciler satisfies it.
type MonthlyBiller interface {
	RunMonthlyBilling(ctx context.Context, trigger string) (*billing.ReconcileResult, error)
}

// NewMonthlyBillingJob wraps the reconciler as a scheduler job. Per-user
// failures are reported in the log; only run-level errors fail the job.
func NewMonthlyBillingJob(biller MonthlyBiller, logger *zap.Logger) JobFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context, job *Job) error {
		result, err := biller.RunMonthlyBilling(ctx, job.Trigger)
		if errors.Is(err, billing.ErrRunInProgress) {
			logger.Info("Monthly billing already running elsewhere", zap.String("job_id", job.ID.String()))
			return nil
		}
		if err != nil {
			return fmt.Errorf("monthly billing: %w", err)
		}
		for _, failure := range result.Failures {
			logger.Warn("User left unbilled",
				zap.String("job_id", job.ID.String()),
				zap.String("user_id", failure.UserID),
				zap.String("code", failure.Code),
				zap.String("error", failure.Error))
		}
		return nil
	}
}
