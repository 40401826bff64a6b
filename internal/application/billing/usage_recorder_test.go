package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/graham/backend/internal/domain/agent"
	"github.com/graham/backend/internal/domain/shared"
	"github.com/graham/backend/internal/infrastructure/cache"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func decimalSeconds(s int64) decimal.Decimal {
	return decimal.NewFromInt(s)
}

func newTestRecorder(t *testing.T, ledger *memoryLedger, opts ...func(*UsageRecorderConfig)) *UsageRecorder {
	t.Helper()
	cfg := UsageRecorderConfig{UsageRepo: ledger}
	for _, opt := range opts {
		opt(&cfg)
	}
	recorder := NewUsageRecorder(cfg)
	recorder.nowFunc = func() time.Time { return time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC) }
	return recorder
}

func withStore(t *testing.T) func(*UsageRecorderConfig) {
	store := cache.NewInMemoryIdempotencyStore()
	t.Cleanup(func() { _ = store.Close() })
	return func(cfg *UsageRecorderConfig) { cfg.Idempotency = store }
}

func TestUsageRecorder_RecordUsage_RoundsUpToWholeMinutes(t *testing.T) {
	ledger := newMemoryLedger()
	recorder := newTestRecorder(t, ledger)

	record, err := recorder.RecordUsage(context.Background(), RecordUsageInput{
		UserID:          "user_1",
		AgentID:         uuid.NewString(),
		DurationSeconds: decimalSeconds(90),
	})

	require.NoError(t, err)
	assert.Equal(t, int64(2), record.MinutesUsed)
	assert.False(t, record.Billed)
	assert.Equal(t, time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC), record.Timestamp)

	stored, err := ledger.FindByID(context.Background(), record.ID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(90).Equal(stored.SecondsUsed))
}

func TestUsageRecorder_RecordUsage_Validation(t *testing.T) {
	tests := []struct {
		name     string
		input    RecordUsageInput
		wantCode string
	}{
		{"missing user", RecordUsageInput{AgentID: uuid.NewString(), DurationSeconds: decimalSeconds(10)}, shared.CodeUnauthorized},
		{"missing agent", RecordUsageInput{UserID: "u", DurationSeconds: decimalSeconds(10)}, shared.CodeValidation},
		{"malformed agent", RecordUsageInput{UserID: "u", AgentID: "agent-7", DurationSeconds: decimalSeconds(10)}, shared.CodeValidation},
		{"zero duration", RecordUsageInput{UserID: "u", AgentID: uuid.NewString(), DurationSeconds: decimal.Zero}, shared.CodeValidation},
		{"negative duration", RecordUsageInput{UserID: "u", AgentID: uuid.NewString(), DurationSeconds: decimalSeconds(-5)}, shared.CodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger := newMemoryLedger()
			recorder := newTestRecorder(t, ledger)

			record, err := recorder.RecordUsage(context.Background(), tt.input)

			assert.Nil(t, record)
			assert.Equal(t, tt.wantCode, shared.CodeOf(err))
			assert.Empty(t, ledger.records)
		})
	}
}

func TestUsageRecorder_RecordUsage_RequireIdempotencyKey(t *testing.T) {
	recorder := newTestRecorder(t, newMemoryLedger(), func(cfg *UsageRecorderConfig) {
		cfg.RequireIdempotencyKey = true
	})

	_, err := recorder.RecordUsage(context.Background(), RecordUsageInput{
		UserID:          "user_1",
		AgentID:         uuid.NewString(),
		DurationSeconds: decimalSeconds(30),
	})

	assert.Equal(t, shared.CodeValidation, shared.CodeOf(err))
}

func TestUsageRecorder_RecordUsage_ReplayReturnsExistingRecord(t *testing.T) {
	ledger := newMemoryLedger()
	recorder := newTestRecorder(t, ledger, withStore(t))
	input := RecordUsageInput{
		UserID:          "user_1",
		AgentID:         uuid.NewString(),
		DurationSeconds: decimalSeconds(45),
		IdempotencyKey:  "call-123",
	}

	first, err := recorder.RecordUsage(context.Background(), input)
	require.NoError(t, err)
	second, err := recorder.RecordUsage(context.Background(), input)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, ledger.records, 1)
}

func TestUsageRecorder_RecordUsage_ReplayWithoutStoreHitsUniqueIndex(t *testing.T) {
	ledger := newMemoryLedger()
	recorder := newTestRecorder(t, ledger)
	input := RecordUsageInput{
		UserID:          "user_1",
		AgentID:         uuid.NewString(),
		DurationSeconds: decimalSeconds(45),
		IdempotencyKey:  "call-123",
	}

	first, err := recorder.RecordUsage(context.Background(), input)
	require.NoError(t, err)
	second, err := recorder.RecordUsage(context.Background(), input)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, ledger.records, 1)
}

func TestUsageRecorder_RecordUsage_InFlightKeyIsConflict(t *testing.T) {
	ledger := newMemoryLedger()
	store := cache.NewInMemoryIdempotencyStore()
	defer store.Close()
	recorder := newTestRecorder(t, ledger, func(cfg *UsageRecorderConfig) { cfg.Idempotency = store })

	claimed, err := store.Claim(context.Background(), usageClaimKey("user_1", "call-9"), time.Minute)
	require.NoError(t, err)
	require.True(t, claimed)

	_, err = recorder.RecordUsage(context.Background(), RecordUsageInput{
		UserID:          "user_1",
		AgentID:         uuid.NewString(),
		DurationSeconds: decimalSeconds(45),
		IdempotencyKey:  "call-9",
	})

	assert.ErrorIs(t, err, shared.ErrConflict)
	assert.Empty(t, ledger.records)
}

func TestUsageRecorder_RecordUsage_SaveFailureReleasesKey(t *testing.T) {
	ledger := newMemoryLedger()
	ledger.saveErr = errors.New("connection reset")
	store := cache.NewInMemoryIdempotencyStore()
	defer store.Close()
	recorder := newTestRecorder(t, ledger, func(cfg *UsageRecorderConfig) { cfg.Idempotency = store })

	_, err := recorder.RecordUsage(context.Background(), RecordUsageInput{
		UserID:          "user_1",
		AgentID:         uuid.NewString(),
		DurationSeconds: decimalSeconds(45),
		IdempotencyKey:  "call-1",
	})

	assert.Equal(t, shared.CodePersistence, shared.CodeOf(err))
	held, err := store.IsClaimed(context.Background(), usageClaimKey("user_1", "call-1"))
	require.NoError(t, err)
	assert.False(t, held)
}

func TestUsageRecorder_RecordUsage_AgentOwnership(t *testing.T) {
	agentID := uuid.New()

	t.Run("owned agent", func(t *testing.T) {
		agents := new(MockAgentRepository)
		agents.On("FindByIDForUser", mock.Anything, "user_1", agentID).
			Return(&agent.Agent{UserID: "user_1"}, nil)
		recorder := newTestRecorder(t, newMemoryLedger(), func(cfg *UsageRecorderConfig) { cfg.AgentRepo = agents })

		_, err := recorder.RecordUsage(context.Background(), RecordUsageInput{
			UserID: "user_1", AgentID: agentID.String(), DurationSeconds: decimalSeconds(5),
		})

		assert.NoError(t, err)
		agents.AssertExpectations(t)
	})

	t.Run("foreign agent", func(t *testing.T) {
		agents := new(MockAgentRepository)
		agents.On("FindByIDForUser", mock.Anything, "user_2", agentID).Return(nil, shared.ErrNotFound)
		ledger := newMemoryLedger()
		recorder := newTestRecorder(t, ledger, func(cfg *UsageRecorderConfig) { cfg.AgentRepo = agents })

		_, err := recorder.RecordUsage(context.Background(), RecordUsageInput{
			UserID: "user_2", AgentID: agentID.String(), DurationSeconds: decimalSeconds(5),
		})

		assert.Equal(t, shared.CodeValidation, shared.CodeOf(err))
		assert.Empty(t, ledger.records)
	})
}
