package billing

import (
	"strings"
	"time"

	"github.com/graham/backend/internal/domain/shared"
)

// SubscriptionGracePeriod tolerates clock skew and late webhooks after the period end
const SubscriptionGracePeriod = 24 * time.Hour

// SubscriptionStatus mirrors the payment processor's subscription state
type SubscriptionStatus string

const (
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusInactive SubscriptionStatus = "inactive"
	SubscriptionStatusPastDue  SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
	SubscriptionStatusTrialing SubscriptionStatus = "trialing"
)

// Subscription is the local mirror of a user's Stripe subscription.
// The payment processor owns this state; the mirror is updated from webhooks.
type Subscription struct {
	UserID                 string
	StripeCustomerID       *string
	StripeSubscriptionID   *string
	StripePriceID          *string
	StripeCurrentPeriodEnd *time.Time
	SubscriptionStatus     *SubscriptionStatus
	SubscriptionCancelAt   *time.Time
	SubscriptionName       *string
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// NewSubscription creates an empty mirror row for a user
func NewSubscription(userID string) (*Subscription, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, shared.NewValidationError("userId is required")
	}
	now := time.Now().UTC()
	return &Subscription{UserID: userID, CreatedAt: now, UpdatedAt: now}, nil
}

// IsSubscribed is true iff a price id exists and the current period end,
// extended by the grace period, is still in the future.
func (s *Subscription) IsSubscribed(now time.Time) bool {
	if s == nil || s.StripePriceID == nil || *s.StripePriceID == "" {
		return false
	}
	if s.StripeCurrentPeriodEnd == nil {
		return false
	}
	return s.StripeCurrentPeriodEnd.Add(SubscriptionGracePeriod).After(now)
}

// HasStripeSubscription returns true if usage can be reported for this user
func (s *Subscription) HasStripeSubscription() bool {
	return s != nil && s.StripeSubscriptionID != nil && *s.StripeSubscriptionID != ""
}

// SubscriptionUpdate is an explicit partial update of the mirror.
// Nil fields are left untouched; the Clear flags null the column.
type SubscriptionUpdate struct {
	StripeCustomerID       *string
	StripeSubscriptionID   *string
	StripePriceID          *string
	StripeCurrentPeriodEnd *time.Time
	SubscriptionStatus     *SubscriptionStatus
	SubscriptionCancelAt   *time.Time
	SubscriptionName       *string

	ClearSubscriptionID bool
	ClearPriceID        bool
	ClearCancelAt       bool
}

// IsEmpty returns true if the update changes nothing
func (u SubscriptionUpdate) IsEmpty() bool {
	return u.StripeCustomerID == nil &&
		u.StripeSubscriptionID == nil &&
		u.StripePriceID == nil &&
		u.StripeCurrentPeriodEnd == nil &&
		u.SubscriptionStatus == nil &&
		u.SubscriptionCancelAt == nil &&
		u.SubscriptionName == nil &&
		!u.ClearSubscriptionID &&
		!u.ClearPriceID &&
		!u.ClearCancelAt
}

// Validate rejects contradictory or empty updates
func (u SubscriptionUpdate) Validate() error {
	if u.IsEmpty() {
		return shared.NewValidationError("subscription update has no fields")
	}
	if u.ClearSubscriptionID && u.StripeSubscriptionID != nil {
		return shared.NewValidationError("cannot set and clear subscription id together")
	}
	if u.ClearPriceID && u.StripePriceID != nil {
		return shared.NewValidationError("cannot set and clear price id together")
	}
	if u.ClearCancelAt && u.SubscriptionCancelAt != nil {
		return shared.NewValidationError("cannot set and clear cancel_at together")
	}
	return nil
}

// Apply validates u and writes it onto s
func (s *Subscription) Apply(u SubscriptionUpdate, now time.Time) error {
	if err := u.Validate(); err != nil {
		return err
	}
	if u.StripeCustomerID != nil {
		s.StripeCustomerID = u.StripeCustomerID
	}
	if u.StripeSubscriptionID != nil {
		s.StripeSubscriptionID = u.StripeSubscriptionID
	}
	if u.StripePriceID != nil {
		s.StripePriceID = u.StripePriceID
	}
	if u.StripeCurrentPeriodEnd != nil {
		end := u.StripeCurrentPeriodEnd.UTC()
		s.StripeCurrentPeriodEnd = &end
	}
	if u.SubscriptionStatus != nil {
		s.SubscriptionStatus = u.SubscriptionStatus
	}
	if u.SubscriptionCancelAt != nil {
		at := u.SubscriptionCancelAt.UTC()
		s.SubscriptionCancelAt = &at
	}
	if u.SubscriptionName != nil {
		s.SubscriptionName = u.SubscriptionName
	}
	if u.ClearSubscriptionID {
		s.StripeSubscriptionID = nil
	}
	if u.ClearPriceID {
		s.StripePriceID = nil
	}
	if u.ClearCancelAt {
		s.SubscriptionCancelAt = nil
	}
	s.UpdatedAt = now.UTC()
	return nil
}
