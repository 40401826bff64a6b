package billing

import "time"

const (
	// UsageActionIncrement adds the quantity to the current period total
	UsageActionIncrement = "increment"
	// UsageActionSet overwrites the current period total
	UsageActionSet = "set"

	meteredUsageType = "metered"
)

// SubscriptionItem is the metered line of a Stripe subscription
type SubscriptionItem struct {
	ID             string
	SubscriptionID string
	PriceID        string
	Metered        bool
}

// UsageReportInput contains input for reporting usage to Stripe
type UsageReportInput struct {
	UserID             string    // Owner of the usage, used for logging only
	SubscriptionItemID string    // Stripe subscription item ID (si_xxx)
	Quantity           int64     // Whole minutes to report
	Timestamp          time.Time // When the usage occurred (optional, defaults to now)
	Action             string    // "increment" (default) or "set"
	IdempotencyKey     string    // Optional idempotency key for deduplication
}

// UsageReportOutput contains the result of reporting usage to Stripe
type UsageReportOutput struct {
	UsageRecordID      string
	SubscriptionItemID string
	Quantity           int64
	Timestamp          time.Time
	Action             string
}

// SubscriptionDetails is the live view of a subscription used to enrich the local mirror
type SubscriptionDetails struct {
	ID                string
	CustomerID        string
	Status            string
	PriceID           string
	CurrentPeriodEnd  time.Time
	CancelAtPeriodEnd bool
	CancelAt          *time.Time
}
