package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/graham/backend/internal/domain/shared"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/subscription"
	"github.com/stripe/stripe-go/v81/usagerecord"
	"go.uber.org/zap"
)

// ReportUsage creates a usage record against a metered subscription item
func (a *StripeAdapter) ReportUsage(ctx context.Context, input UsageReportInput) (*UsageReportOutput, error) {
	a.logger.Debug("Reporting usage to Stripe",
		zap.String("user_id", input.UserID),
		zap.String("subscription_item_id", input.SubscriptionItemID),
		zap.Int64("quantity", input.Quantity))

	if input.SubscriptionItemID == "" {
		return nil, shared.NewValidationError("stripe: subscription item ID is required")
	}
	if input.Quantity < 0 {
		return nil, shared.NewValidationError("stripe: quantity cannot be negative")
	}

	action := input.Action
	if action == "" {
		action = UsageActionIncrement
	}

	params := &stripe.UsageRecordParams{
		SubscriptionItem: stripe.String(input.SubscriptionItemID),
		Quantity:         stripe.Int64(input.Quantity),
		Action:           stripe.String(action),
	}
	params.Context = ctx
	if !input.Timestamp.IsZero() {
		params.Timestamp = stripe.Int64(input.Timestamp.Unix())
	}
	if input.IdempotencyKey != "" {
		params.SetIdempotencyKey(input.IdempotencyKey)
	}

	var record *stripe.UsageRecord
	err := a.guard(ctx, "create usage record", func() error {
		var callErr error
		record, callErr = usagerecord.New(params)
		return callErr
	})
	if err != nil {
		a.logger.Error("Failed to report usage to Stripe",
			zap.String("user_id", input.UserID),
			zap.String("subscription_item_id", input.SubscriptionItemID),
			zap.Error(err))
		return nil, err
	}

	a.logger.Info("Reported usage to Stripe",
		zap.String("user_id", input.UserID),
		zap.String("usage_record_id", record.ID),
		zap.String("subscription_item_id", record.SubscriptionItem),
		zap.Int64("quantity", record.Quantity))

	return &UsageReportOutput{
		UsageRecordID:      record.ID,
		SubscriptionItemID: record.SubscriptionItem,
		Quantity:           record.Quantity,
		Timestamp:          time.Unix(record.Timestamp, 0).UTC(),
		Action:             action,
	}, nil
}

// GetSubscriptionItem returns the item usage should be reported against.
// The first metered item wins; a single-item subscription falls back to that item.
func (a *StripeAdapter) GetSubscriptionItem(ctx context.Context, subscriptionID string) (*SubscriptionItem, error) {
	a.logger.Debug("Getting subscription item",
		zap.String("subscription_id", subscriptionID))

	sub, err := a.getSubscriptionWithItems(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.Items == nil || len(sub.Items.Data) == 0 {
		return nil, shared.NewUpstreamError(fmt.Sprintf("stripe: subscription %s has no items", subscriptionID), nil)
	}

	for _, item := range sub.Items.Data {
		if isMetered(item) {
			return toSubscriptionItem(subscriptionID, item), nil
		}
	}
	return toSubscriptionItem(subscriptionID, sub.Items.Data[0]), nil
}

// GetSubscriptionDetails fetches the live subscription state
func (a *StripeAdapter) GetSubscriptionDetails(ctx context.Context, subscriptionID string) (*SubscriptionDetails, error) {
	sub, err := a.getSubscriptionWithItems(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}

	details := &SubscriptionDetails{
		ID:                sub.ID,
		Status:            string(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}
	if sub.Customer != nil {
		details.CustomerID = sub.Customer.ID
	}
	if sub.CurrentPeriodEnd > 0 {
		details.CurrentPeriodEnd = time.Unix(sub.CurrentPeriodEnd, 0).UTC()
	}
	if sub.CancelAt > 0 {
		cancelAt := time.Unix(sub.CancelAt, 0).UTC()
		details.CancelAt = &cancelAt
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		details.PriceID = sub.Items.Data[0].Price.ID
	}
	return details, nil
}

// getSubscriptionWithItems retrieves a subscription with its items
func (a *StripeAdapter) getSubscriptionWithItems(ctx context.Context, subscriptionID string) (*stripe.Subscription, error) {
	if subscriptionID == "" {
		return nil, shared.NewValidationError("stripe: subscription ID is required")
	}

	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	params.AddExpand("items")

	var sub *stripe.Subscription
	err := a.guard(ctx, "get subscription", func() error {
		var callErr error
		sub, callErr = subscription.Get(subscriptionID, params)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func isMetered(item *stripe.SubscriptionItem) bool {
	return item.Price != nil && item.Price.Recurring != nil &&
		string(item.Price.Recurring.UsageType) == meteredUsageType
}

func toSubscriptionItem(subscriptionID string, item *stripe.SubscriptionItem) *SubscriptionItem {
	out := &SubscriptionItem{
		ID:             item.ID,
		SubscriptionID: subscriptionID,
		Metered:        isMetered(item),
	}
	if item.Price != nil {
		out.PriceID = item.Price.ID
	}
	return out
}
