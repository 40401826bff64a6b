package billing

import (
	"time"

	"github.com/graham/backend/internal/domain/shared"
)

// BillingPeriod is a closed [Start, End] window in UTC
type BillingPeriod struct {
	Start time.Time
	End   time.Time
}

// NewBillingPeriod validates and creates a billing period
func NewBillingPeriod(start, end time.Time) (BillingPeriod, error) {
	if end.Before(start) {
		return BillingPeriod{}, shared.NewValidationError("period end cannot be before period start")
	}
	return BillingPeriod{Start: start.UTC(), End: end.UTC()}, nil
}

// PreviousMonth returns the calendar month before the one containing now.
// End is one microsecond before the month boundary, the finest precision postgres stores.
func PreviousMonth(now time.Time) BillingPeriod {
	now = now.UTC()
	currentStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return BillingPeriod{
		Start: currentStart.AddDate(0, -1, 0),
		End:   currentStart.Add(-time.Microsecond),
	}
}

// Contains returns true if t falls within the period
func (p BillingPeriod) Contains(t time.Time) bool {
	return !t.Before(p.Start) && !t.After(p.End)
}

// Label returns the period as YYYY-MM of its start
func (p BillingPeriod) Label() string {
	return p.Start.Format("2006-01")
}
