package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// UsageRecordRepository persists and queries the usage ledger
type UsageRecordRepository interface {
	// Save persists a new usage record.
	// Returns shared.ErrAlreadyExists when the idempotency key is taken.
	Save(ctx context.Context, record *UsageRecord) error

	// FindByID retrieves a usage record by its ID
	FindByID(ctx context.Context, id uuid.UUID) (*UsageRecord, error)

	// FindByIdempotencyKey retrieves the record a caller key was recorded under
	FindByIdempotencyKey(ctx context.Context, userID, key string) (*UsageRecord, error)

	// FindUnbilled returns the user's unbilled records with timestamp <= periodEnd, oldest first
	FindUnbilled(ctx context.Context, userID string, periodEnd time.Time) ([]*UsageRecord, error)

	// FindUsersWithUnbilled lists distinct users with unbilled records up to periodEnd
	FindUsersWithUnbilled(ctx context.Context, periodEnd time.Time) ([]string, error)
}

// BillingRecordRepository reads billing receipts
type BillingRecordRepository interface {
	// FindByID retrieves a billing record by its ID
	FindByID(ctx context.Context, id uuid.UUID) (*BillingRecord, error)

	// FindByIdempotencyKey returns the record already committed for a usage set
	FindByIdempotencyKey(ctx context.Context, key string) (*BillingRecord, error)

	// FindByUser lists a user's billing records, newest first
	FindByUser(ctx context.Context, userID string, limit int) ([]*BillingRecord, error)
}

// BillingLedger commits the outcome of reconciling one user
type BillingLedger interface {
	// Commit atomically marks exactly usageIDs as billed against record and
	// stores record. If any id is missing or already billed nothing is written
	// and an error matching shared.ErrConflict is returned.
	Commit(ctx context.Context, record *BillingRecord, usageIDs []uuid.UUID) error
}

// SubscriptionRepository persists the subscription mirror
type SubscriptionRepository interface {
	// FindByUserID retrieves the mirror of a user
	FindByUserID(ctx context.Context, userID string) (*Subscription, error)

	// FindByCustomerID retrieves the mirror by Stripe customer id
	FindByCustomerID(ctx context.Context, customerID string) (*Subscription, error)

	// FindBySubscriptionID retrieves the mirror by Stripe subscription id
	FindBySubscriptionID(ctx context.Context, subscriptionID string) (*Subscription, error)

	// Save inserts or replaces the mirror row
	Save(ctx context.Context, sub *Subscription) error
}
