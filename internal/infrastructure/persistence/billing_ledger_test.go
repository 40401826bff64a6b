package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/graham/backend/internal/domain/billing"
	"github.com/graham/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ledgerFixture struct {
	usage   *UsageRecordRepository
	records *BillingRecordRepository
	ledger  *BillingLedger
	period  billing.BillingPeriod
}

func newLedgerFixture(t *testing.T) ledgerFixture {
	db := setupTestDB(t)
	return ledgerFixture{
		usage:   NewUsageRecordRepository(db),
		records: NewBillingRecordRepository(db),
		ledger:  NewBillingLedger(db),
		period:  billing.PreviousMonth(time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)),
	}
}

func (f ledgerFixture) seed(t *testing.T, userID string, seconds ...int64) billing.UsageSummary {
	t.Helper()
	ctx := context.Background()
	for i, s := range seconds {
		r := newUsage(t, userID, s, f.period.End.Add(-time.Duration(i+1)*time.Hour))
		require.NoError(t, f.usage.Save(ctx, r))
	}
	records, err := f.usage.FindUnbilled(ctx, userID, f.period.End)
	require.NoError(t, err)
	return billing.NewUsageSummary(records)
}

func (f ledgerFixture) reportedRecord(t *testing.T, userID string, summary billing.UsageSummary) *billing.BillingRecord {
	t.Helper()
	record, err := billing.NewBillingRecord(userID, summary, f.period, summary.TotalMinutes*25, "USD")
	require.NoError(t, err)
	require.NoError(t, record.MarkReported("si_123", "mbur_123"))
	return record
}

func TestBillingLedger_Commit(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	summary := f.seed(t, "user_1", 30, 30)
	require.Equal(t, int64(2), summary.TotalMinutes)
	record := f.reportedRecord(t, "user_1", summary)

	require.NoError(t, f.ledger.Commit(ctx, record, summary.RecordIDs()))

	t.Run("usage is no longer unbilled", func(t *testing.T) {
		remaining, err := f.usage.FindUnbilled(ctx, "user_1", f.period.End)
		require.NoError(t, err)
		assert.Empty(t, remaining)
	})

	t.Run("usage rows point at the billing record", func(t *testing.T) {
		for _, id := range summary.RecordIDs() {
			u, err := f.usage.FindByID(ctx, id)
			require.NoError(t, err)
			assert.True(t, u.Billed)
			require.NotNil(t, u.BillingRecordID)
			assert.Equal(t, record.ID, *u.BillingRecordID)
			assert.NotNil(t, u.BilledAt)
		}
	})

	t.Run("billing record is stored as reported", func(t *testing.T) {
		stored, err := f.records.FindByIdempotencyKey(ctx, record.IdempotencyKey)
		require.NoError(t, err)
		assert.Equal(t, billing.BillingRecordStatusReported, stored.Status)
		assert.Equal(t, int64(2), stored.Minutes)
		assert.Equal(t, int64(50), stored.AmountCents)
		assert.Equal(t, "usd", stored.Currency)
		assert.Equal(t, "mbur_123", stored.StripeUsageRecordID)
		assert.True(t, f.period.End.Equal(stored.PeriodEnd))

		byUser, err := f.records.FindByUser(ctx, "user_1", 0)
		require.NoError(t, err)
		require.Len(t, byUser, 1)
		assert.Equal(t, record.ID, byUser[0].ID)
	})
}

func TestBillingLedger_CommitRollsBackWhenUsageAlreadyBilled(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	summary := f.seed(t, "user_1", 60, 60)
	first := f.reportedRecord(t, "user_1", summary)
	require.NoError(t, f.ledger.Commit(ctx, first, summary.RecordIDs()[:1]))

	second, err := billing.NewBillingRecord("user_1", summary, f.period, 50, "usd")
	require.NoError(t, err)
	second.IdempotencyKey = "usage-other"

	err = f.ledger.Commit(ctx, second, summary.RecordIDs())

	assert.ErrorIs(t, err, shared.ErrConflict)

	_, err = f.records.FindByIdempotencyKey(ctx, "usage-other")
	assert.ErrorIs(t, err, shared.ErrNotFound)

	remaining, err := f.usage.FindUnbilled(ctx, "user_1", f.period.End)
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}

func TestBillingLedger_CommitRejectsUnknownIDs(t *testing.T) {
	f := newLedgerFixture(t)
	summary := f.seed(t, "user_1", 10)
	record := f.reportedRecord(t, "user_1", summary)

	err := f.ledger.Commit(context.Background(), record, []uuid.UUID{uuid.New()})

	assert.ErrorIs(t, err, shared.ErrConflict)
}

func TestBillingLedger_CommitDuplicateKey(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	summary := f.seed(t, "user_1", 10)
	record := f.reportedRecord(t, "user_1", summary)
	require.NoError(t, f.ledger.Commit(ctx, record, summary.RecordIDs()))

	replay := f.reportedRecord(t, "user_1", summary)
	err := f.ledger.Commit(ctx, replay, summary.RecordIDs())

	assert.ErrorIs(t, err, shared.ErrAlreadyExists)
}

func TestBillingLedger_Validation(t *testing.T) {
	f := newLedgerFixture(t)

	err := f.ledger.Commit(context.Background(), nil, []uuid.UUID{uuid.New()})
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	summary := f.seed(t, "user_1", 10)
	err = f.ledger.Commit(context.Background(), f.reportedRecord(t, "user_1", summary), nil)
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestBillingLedger_RollbackOnUpdateFailure(t *testing.T) {
	db, mock, mockDB := newMockDB(t)
	defer mockDB.Close()
	ledger := NewBillingLedger(db)

	rec := &billing.BillingRecord{
		BaseEntity:     shared.NewBaseEntity(),
		UserID:         "user_1",
		Minutes:        1,
		Currency:       "usd",
		Status:         billing.BillingRecordStatusReported,
		IdempotencyKey: "usage-abc",
	}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "billing_records"`).WillReturnResult(sqlmockResult(1))
	mock.ExpectExec(`UPDATE "usage_records"`).WillReturnError(errors.New("deadlock detected"))
	mock.ExpectRollback()

	err := ledger.Commit(context.Background(), rec, []uuid.UUID{uuid.New()})

	require.Error(t, err)
	assert.Equal(t, shared.CodePersistence, shared.CodeOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}
