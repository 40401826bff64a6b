package billing

import (
	"strings"
	"time"

	"github.com/graham/backend/internal/domain/shared"
)

// BillingRecordStatus tracks a billing record through reconciliation
type BillingRecordStatus string

const (
	// BillingRecordStatusPending is set before the upstream report is confirmed
	BillingRecordStatusPending BillingRecordStatus = "PENDING"

	// BillingRecordStatusReported means the usage was accepted upstream
	BillingRecordStatusReported BillingRecordStatus = "REPORTED"
)

// String returns the string representation of BillingRecordStatus
func (s BillingRecordStatus) String() string {
	return string(s)
}

// IsValid returns true if the status is known
func (s BillingRecordStatus) IsValid() bool {
	switch s {
	case BillingRecordStatusPending, BillingRecordStatusReported:
		return true
	}
	return false
}

// BillingRecord is the local receipt of one user's usage reported for a period
type BillingRecord struct {
	shared.BaseEntity
	UserID              string
	Minutes             int64
	AmountCents         int64
	Currency            string
	Status              BillingRecordStatus
	SubscriptionItemID  string
	StripeUsageRecordID string
	IdempotencyKey      string
	PeriodStart         time.Time
	PeriodEnd           time.Time
}

// NewBillingRecord creates a pending billing record for a user's usage summary
func NewBillingRecord(userID string, summary UsageSummary, period BillingPeriod, amountCents int64, currency string) (*BillingRecord, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, shared.NewValidationError("userId is required")
	}
	if summary.IsEmpty() {
		return nil, shared.NewValidationError("nothing to bill")
	}
	if amountCents < 0 {
		return nil, shared.NewValidationError("amount cannot be negative")
	}

	return &BillingRecord{
		BaseEntity:     shared.NewBaseEntity(),
		UserID:         userID,
		Minutes:        summary.TotalMinutes,
		AmountCents:    amountCents,
		Currency:       strings.ToLower(currency),
		Status:         BillingRecordStatusPending,
		IdempotencyKey: summary.IdempotencyKey(userID),
		PeriodStart:    period.Start,
		PeriodEnd:      period.End,
	}, nil
}

// MarkReported records the upstream identifiers once the usage was accepted
func (b *BillingRecord) MarkReported(subscriptionItemID, usageRecordID string) error {
	if b.Status == BillingRecordStatusReported {
		return shared.NewDomainError(shared.CodeInvalidState, "billing record is already reported")
	}
	b.SubscriptionItemID = subscriptionItemID
	b.StripeUsageRecordID = usageRecordID
	b.Status = BillingRecordStatusReported
	b.Touch(time.Now())
	return nil
}
