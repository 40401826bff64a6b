package billing

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/graham/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// MaxIdempotencyKeyLength bounds caller supplied idempotency keys
const MaxIdempotencyKeyLength = 255

// Duration bounds for a single usage event. SecondsUsed is stored with
// millisecond precision, and no call outlives a day.
const (
	MaxDurationSeconds = 24 * 60 * 60
	DurationScale      = 3
)

// maxDurationExponent and minDurationExponent bound the decimal exponent
// before any arithmetic, which would otherwise rescale to it
const (
	maxDurationExponent = 5
	minDurationExponent = -18
)

var maxDuration = decimal.NewFromInt(MaxDurationSeconds)

// ValidateDuration checks that seconds is a positive duration of at most
// MaxDurationSeconds with at most DurationScale fractional digits
func ValidateDuration(seconds decimal.Decimal) error {
	if !seconds.IsPositive() {
		return shared.NewValidationError("durationInSeconds must be a positive number")
	}
	if exp := seconds.Exponent(); exp > maxDurationExponent || exp < minDurationExponent {
		return shared.NewValidationError("durationInSeconds is out of range")
	}
	if seconds.GreaterThan(maxDuration) {
		return shared.NewValidationError(fmt.Sprintf("durationInSeconds cannot exceed %d", MaxDurationSeconds))
	}
	if !seconds.Equal(seconds.Truncate(DurationScale)) {
		return shared.NewValidationError(fmt.Sprintf("durationInSeconds supports at most %d decimal places", DurationScale))
	}
	return nil
}

// UsageRecord is one metered unit of agent call time attributable to a user.
// Records are append-only: the only mutation is the one-way flip of Billed
// performed by the reconciler.
type UsageRecord struct {
	shared.BaseEntity
	UserID          string          // Identity provider user id
	AgentID         uuid.UUID       // Agent that handled the call
	SecondsUsed     decimal.Decimal // Duration as reported by the caller
	MinutesUsed     int64           // Billable whole minutes, ceil(SecondsUsed/60)
	Timestamp       time.Time       // Server-assigned event time
	Billed          bool            // Set once the usage was reported upstream
	BilledAt        *time.Time      // When Billed was set
	BillingRecordID *uuid.UUID      // Billing record that consumed this usage
	IdempotencyKey  *string         // Optional caller key, unique when set
}

// NewUsageRecord validates the input and creates an unbilled usage record stamped at now
func NewUsageRecord(userID string, agentID uuid.UUID, seconds decimal.Decimal, now time.Time) (*UsageRecord, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, shared.NewValidationError("userId is required")
	}
	if agentID == uuid.Nil {
		return nil, shared.NewValidationError("agentId is required")
	}
	if err := ValidateDuration(seconds); err != nil {
		return nil, err
	}

	now = now.UTC()
	return &UsageRecord{
		BaseEntity:  shared.NewBaseEntityAt(now),
		UserID:      userID,
		AgentID:     agentID,
		SecondsUsed: seconds,
		MinutesUsed: MinutesFromSeconds(seconds),
		Timestamp:   now,
	}, nil
}

// WithIdempotencyKey attaches a caller supplied deduplication key
func (r *UsageRecord) WithIdempotencyKey(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return shared.NewValidationError("idempotencyKey cannot be blank")
	}
	if len(key) > MaxIdempotencyKeyLength {
		return shared.NewValidationError("idempotencyKey is too long")
	}
	r.IdempotencyKey = &key
	return nil
}

// MarkBilled flips the record to billed. A record can only be billed once.
func (r *UsageRecord) MarkBilled(billingRecordID uuid.UUID, at time.Time) error {
	if r.Billed {
		return shared.NewDomainError(shared.CodeInvalidState, "usage record is already billed")
	}
	at = at.UTC()
	r.Billed = true
	r.BilledAt = &at
	r.BillingRecordID = &billingRecordID
	r.Touch(at)
	return nil
}

// IsBillableAt reports whether the record is unbilled and falls inside a period ending at periodEnd
func (r *UsageRecord) IsBillableAt(periodEnd time.Time) bool {
	return !r.Billed && !r.Timestamp.After(periodEnd)
}
