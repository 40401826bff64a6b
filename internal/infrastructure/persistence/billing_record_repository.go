package persistence

import (
	"context"

	"github.com/google/uuid"
	"github.com/graham/backend/internal/domain/billing"
	"github.com/graham/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

const defaultBillingRecordLimit = 24

// BillingRecordRepository implements billing.BillingRecordRepository on GORM
type BillingRecordRepository struct {
	db *gorm.DB
}

// NewBillingRecordRepository creates a new billing record repository
func NewBillingRecordRepository(db *gorm.DB) *BillingRecordRepository {
	return &BillingRecordRepository{db: db}
}

// FindByID retrieves a billing record by its ID
func (r *BillingRecordRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.BillingRecord, error) {
	var model models.BillingRecordModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, wrapDBError("find billing record", err)
	}
	return model.ToDomain(), nil
}

// FindByIdempotencyKey returns the record committed for a usage set
func (r *BillingRecordRepository) FindByIdempotencyKey(ctx context.Context, key string) (*billing.BillingRecord, error) {
	var model models.BillingRecordModel
	if err := r.db.WithContext(ctx).Where("idempotency_key = ?", key).First(&model).Error; err != nil {
		return nil, wrapDBError("find billing record by idempotency key", err)
	}
	return model.ToDomain(), nil
}

// FindByUser lists a user's billing records, newest period first
func (r *BillingRecordRepository) FindByUser(ctx context.Context, userID string, limit int) ([]*billing.BillingRecord, error) {
	if limit <= 0 {
		limit = defaultBillingRecordLimit
	}

	var rows []models.BillingRecordModel
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("billing_period_end DESC").
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrapDBError("list billing records", err)
	}

	records := make([]*billing.BillingRecord, len(rows))
	for i := range rows {
		records[i] = rows[i].ToDomain()
	}
	return records, nil
}
