package billing

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRecord(t *testing.T, userID string, seconds int64) *UsageRecord {
	t.Helper()
	r, err := NewUsageRecord(userID, uuid.New(), decimal.NewFromInt(seconds), time.Now())
	require.NoError(t, err)
	return r
}

func TestNewUsageSummary(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		s := NewUsageSummary(nil)
		assert.Equal(t, int64(0), s.TotalMinutes)
		assert.True(t, s.TotalSeconds.IsZero())
		assert.NotNil(t, s.Records)
		assert.True(t, s.IsEmpty())
	})

	t.Run("sums minutes per record", func(t *testing.T) {
		s := NewUsageSummary([]*UsageRecord{
			newTestRecord(t, "u1", 30),
			newTestRecord(t, "u1", 30),
		})
		assert.Equal(t, int64(2), s.TotalMinutes)
		assert.True(t, decimal.NewFromInt(60).Equal(s.TotalSeconds))
		assert.Len(t, s.Records, 2)
		assert.False(t, s.IsEmpty())
	})
}

func TestUsageSummary_IdempotencyKey(t *testing.T) {
	a := newTestRecord(t, "u1", 30)
	b := newTestRecord(t, "u1", 90)

	forward := NewUsageSummary([]*UsageRecord{a, b})
	reversed := NewUsageSummary([]*UsageRecord{b, a})

	assert.Equal(t, forward.IdempotencyKey("u1"), reversed.IdempotencyKey("u1"))
	assert.NotEqual(t, forward.IdempotencyKey("u1"), forward.IdempotencyKey("u2"))
	assert.NotEqual(t, forward.IdempotencyKey("u1"), NewUsageSummary([]*UsageRecord{a}).IdempotencyKey("u1"))
	assert.Regexp(t, `^usage-[0-9a-f]{32}$`, forward.IdempotencyKey("u1"))
	assert.Equal(t, forward.RecordIDs(), reversed.RecordIDs())
}
