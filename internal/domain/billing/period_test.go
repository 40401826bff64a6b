package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreviousMonth(t *testing.T) {
	p := PreviousMonth(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))

	assert.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), p.Start)
	assert.Equal(t, time.Date(2026, 2, 28, 23, 59, 59, 999999000, time.UTC), p.End)
	assert.Equal(t, "2026-02", p.Label())

	jan := PreviousMonth(time.Date(2026, 1, 15, 8, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC), jan.Start)
	assert.True(t, jan.Contains(time.Date(2025, 12, 31, 23, 59, 59, 0, time.UTC)))
	assert.False(t, jan.Contains(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))
}

func TestNewBillingPeriod(t *testing.T) {
	start := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	_, err := NewBillingPeriod(start, start.Add(-time.Second))
	assert.Error(t, err)

	p, err := NewBillingPeriod(start, start.AddDate(0, 1, 0))
	require.NoError(t, err)
	assert.True(t, p.Contains(start))
}
