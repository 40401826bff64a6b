package billing

import (
	"context"
	"strings"
	"time"

	"github.com/graham/backend/internal/domain/billing"
	"github.com/graham/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// UsageAggregator sums unbilled usage. It only reads the ledger.
type UsageAggregator struct {
	usageRepo billing.UsageRecordRepository
	logger    *zap.Logger
}

// NewUsageAggregator creates a new UsageAggregator
func NewUsageAggregator(usageRepo billing.UsageRecordRepository, logger *zap.Logger) *UsageAggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UsageAggregator{usageRepo: usageRepo, logger: logger}
}

// UnbilledUsage returns the unbilled usage of userID with a timestamp at or before periodEnd
func (a *UsageAggregator) UnbilledUsage(ctx context.Context, userID string, periodEnd time.Time) (billing.UsageSummary, error) {
	if strings.TrimSpace(userID) == "" {
		return billing.UsageSummary{}, shared.NewValidationError("userId is required")
	}
	if periodEnd.IsZero() {
		return billing.UsageSummary{}, shared.NewValidationError("periodEnd is required")
	}

	records, err := a.usageRepo.FindUnbilled(ctx, userID, periodEnd.UTC())
	if err != nil {
		a.logger.Error("Failed to load unbilled usage",
			zap.String("user_id", userID),
			zap.Time("period_end", periodEnd),
			zap.Error(err))
		return billing.UsageSummary{}, err
	}
	return billing.NewUsageSummary(records), nil
}

// UsersWithUnbilledUsage lists the users holding unbilled usage up to periodEnd
func (a *UsageAggregator) UsersWithUnbilledUsage(ctx context.Context, periodEnd time.Time) ([]string, error) {
	if periodEnd.IsZero() {
		return nil, shared.NewValidationError("periodEnd is required")
	}
	users, err := a.usageRepo.FindUsersWithUnbilled(ctx, periodEnd.UTC())
	if err != nil {
		a.logger.Error("Failed to list users with unbilled usage",
			zap.Time("period_end", periodEnd),
			zap.Error(err))
		return nil, err
	}
	return users, nil
}
