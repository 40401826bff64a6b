package billing

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// UsageSummary is the aggregate over a set of unbilled usage records
type UsageSummary struct {
	TotalMinutes int64           `json:"totalMinutes"`
	TotalSeconds decimal.Decimal `json:"totalSeconds"`
	Records      []*UsageRecord  `json:"records"`
}

// NewUsageSummary sums minutes and seconds across records
func NewUsageSummary(records []*UsageRecord) UsageSummary {
	summary := UsageSummary{
		TotalSeconds: decimal.Zero,
		Records:      records,
	}
	if summary.Records == nil {
		summary.Records = []*UsageRecord{}
	}
	for _, r := range records {
		summary.TotalMinutes += r.MinutesUsed
		summary.TotalSeconds = summary.TotalSeconds.Add(r.SecondsUsed)
	}
	return summary
}

// IsEmpty returns true when nothing is billable
func (s UsageSummary) IsEmpty() bool {
	return s.TotalMinutes == 0
}

// RecordIDs returns the ids of the aggregated records in ascending order
func (s UsageSummary) RecordIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(s.Records))
	for _, r := range s.Records {
		ids = append(ids, r.ID)
	}
	sort.Slice(ids, func(i, j int) bool {
		return ids[i].String() < ids[j].String()
	})
	return ids
}

// IdempotencyKey derives a stable key for reporting this exact set of records
// for userID. A re-run over the same record set within Stripe's key retention
// window (about a day) is deduplicated upstream. Later re-runs, or runs that
// picked up new records, use a new key.
func (s UsageSummary) IdempotencyKey(userID string) string {
	ids := s.RecordIDs()
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, id.String())
	}
	sum := sha256.Sum256([]byte(userID + "|" + strings.Join(parts, ",")))
	return "usage-" + hex.EncodeToString(sum[:16])
}
