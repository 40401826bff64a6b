package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/graham/backend/internal/domain/billing"
	"github.com/graham/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// UsageRecordRepository implements billing.UsageRecordRepository on GORM
type UsageRecordRepository struct {
	db *gorm.DB
}

// NewUsageRecordRepository creates a new usage record repository
func NewUsageRecordRepository(db *gorm.DB) *UsageRecordRepository {
	return &UsageRecordRepository{db: db}
}

// Save persists a new usage record
func (r *UsageRecordRepository) Save(ctx context.Context, record *billing.UsageRecord) error {
	model := models.UsageRecordModelFromDomain(record)
	return wrapDBError("save usage record", r.db.WithContext(ctx).Create(model).Error)
}

// FindByID retrieves a usage record by its ID
func (r *UsageRecordRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.UsageRecord, error) {
	var model models.UsageRecordModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, wrapDBError("find usage record", err)
	}
	return model.ToDomain(), nil
}

// FindByIdempotencyKey retrieves the record a caller key was recorded under
func (r *UsageRecordRepository) FindByIdempotencyKey(ctx context.Context, userID, key string) (*billing.UsageRecord, error) {
	var model models.UsageRecordModel
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND idempotency_key = ?", userID, key).
		First(&model).Error
	if err != nil {
		return nil, wrapDBError("find usage record by idempotency key", err)
	}
	return model.ToDomain(), nil
}

// FindUnbilled returns the user's unbilled records up to and including periodEnd, oldest first
func (r *UsageRecordRepository) FindUnbilled(ctx context.Context, userID string, periodEnd time.Time) ([]*billing.UsageRecord, error) {
	var rows []models.UsageRecordModel
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND billed = ? AND timestamp <= ?", userID, false, periodEnd.UTC()).
		Order("timestamp ASC").
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapDBError("find unbilled usage", err)
	}

	records := make([]*billing.UsageRecord, len(rows))
	for i := range rows {
		records[i] = rows[i].ToDomain()
	}
	return records, nil
}

// FindUsersWithUnbilled lists distinct users holding unbilled usage up to periodEnd
func (r *UsageRecordRepository) FindUsersWithUnbilled(ctx context.Context, periodEnd time.Time) ([]string, error) {
	var userIDs []string
	err := r.db.WithContext(ctx).
		Model(&models.UsageRecordModel{}).
		Where("billed = ? AND timestamp <= ?", false, periodEnd.UTC()).
		Distinct().
		Order("user_id ASC").
		Pluck("user_id", &userIDs).Error
	if err != nil {
		return nil, wrapDBError("list users with unbilled usage", err)
	}
	return userIDs, nil
}
