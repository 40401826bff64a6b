package persistence

import (
	"context"

	"github.com/graham/backend/internal/domain/billing"
	"github.com/graham/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SubscriptionRepository implements billing.SubscriptionRepository on GORM
type SubscriptionRepository struct {
	db *gorm.DB
}

// NewSubscriptionRepository creates a new subscription repository
func NewSubscriptionRepository(db *gorm.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

// FindByUserID retrieves the mirror of a user
func (r *SubscriptionRepository) FindByUserID(ctx context.Context, userID string) (*billing.Subscription, error) {
	return r.findOne(ctx, "user_id = ?", userID)
}

// FindByCustomerID retrieves the mirror by Stripe customer id
func (r *SubscriptionRepository) FindByCustomerID(ctx context.Context, customerID string) (*billing.Subscription, error) {
	return r.findOne(ctx, "stripe_customer_id = ?", customerID)
}

// FindBySubscriptionID retrieves the mirror by Stripe subscription id
func (r *SubscriptionRepository) FindBySubscriptionID(ctx context.Context, subscriptionID string) (*billing.Subscription, error) {
	return r.findOne(ctx, "stripe_subscription_id = ?", subscriptionID)
}

func (r *SubscriptionRepository) findOne(ctx context.Context, query string, arg string) (*billing.Subscription, error) {
	var model models.SubscriptionModel
	if err := r.db.WithContext(ctx).Where(query, arg).First(&model).Error; err != nil {
		return nil, wrapDBError("find subscription", err)
	}
	return model.ToDomain(), nil
}

// Save inserts or replaces the mirror row keyed by user id
func (r *SubscriptionRepository) Save(ctx context.Context, sub *billing.Subscription) error {
	model := models.SubscriptionModelFromDomain(sub)
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"stripe_customer_id",
				"stripe_subscription_id",
				"stripe_price_id",
				"stripe_current_period_end",
				"subscription_status",
				"subscription_cancel_at",
				"subscription_name",
				"updated_at",
			}),
		}).
		Create(model).Error
	return wrapDBError("save subscription", err)
}
