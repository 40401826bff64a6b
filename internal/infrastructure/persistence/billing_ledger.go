package persistence

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/graham/backend/internal/domain/billing"
	"github.com/graham/backend/internal/domain/shared"
	"github.com/graham/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// BillingLedger implements billing.BillingLedger.
// The usage rows are flipped with a guarded UPDATE so that a concurrent run
// that already billed any of them makes the whole commit roll back.
type BillingLedger struct {
	db *gorm.DB
}

// NewBillingLedger creates a new billing ledger
func NewBillingLedger(db *gorm.DB) *BillingLedger {
	return &BillingLedger{db: db}
}

// Commit marks exactly usageIDs as billed and stores record in one transaction
func (l *BillingLedger) Commit(ctx context.Context, record *billing.BillingRecord, usageIDs []uuid.UUID) error {
	if record == nil {
		return shared.NewValidationError("billing record is required")
	}
	if len(usageIDs) == 0 {
		return shared.NewValidationError("no usage records to bill")
	}

	billedAt := record.UpdatedAt
	if billedAt.IsZero() {
		billedAt = record.CreatedAt
	}

	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(models.BillingRecordModelFromDomain(record)).Error; err != nil {
			return wrapDBError("insert billing record", err)
		}

		result := tx.Model(&models.UsageRecordModel{}).
			Where("id IN ? AND billed = ?", usageIDs, false).
			Updates(map[string]any{
				"billed":            true,
				"billed_at":         billedAt,
				"billing_record_id": record.ID,
				"updated_at":        billedAt,
			})
		if result.Error != nil {
			return wrapDBError("mark usage billed", result.Error)
		}
		if result.RowsAffected != int64(len(usageIDs)) {
			return shared.ErrConflict.WithCause(fmt.Errorf(
				"expected to bill %d usage records, updated %d", len(usageIDs), result.RowsAffected))
		}
		return nil
	})
}
