package billing

import (
	"context"

	infraBilling "github.com/graham/backend/internal/infrastructure/billing"
)

// StripeGateway is the subset of the payment processor the billing services call.
// *infraBilling.StripeAdapter satisfies it.
type StripeGateway interface {
	// GetSubscriptionItem returns the metered item of a subscription
	GetSubscriptionItem(ctx context.Context, subscriptionID string) (*infraBilling.SubscriptionItem, error)

	// ReportUsage creates a usage record against a subscription item
	ReportUsage(ctx context.Context, input infraBilling.UsageReportInput) (*infraBilling.UsageReportOutput, error)

	// GetSubscriptionDetails fetches the live subscription state
	GetSubscriptionDetails(ctx context.Context, subscriptionID string) (*infraBilling.SubscriptionDetails, error)
}

var _ StripeGateway = (*infraBilling.StripeAdapter)(nil)
