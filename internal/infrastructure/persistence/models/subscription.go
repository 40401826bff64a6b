package models

import (
	"time"

	"github.com/graham/backend/internal/domain/billing"
)

// SubscriptionModel mirrors the Stripe subscription of a single user
type SubscriptionModel struct {
	UserID                 string     `gorm:"type:varchar(255);primaryKey"`
	StripeCustomerID       *string    `gorm:"type:varchar(255);uniqueIndex"`
	StripeSubscriptionID   *string    `gorm:"type:varchar(255);uniqueIndex"`
	StripePriceID          *string    `gorm:"type:varchar(255)"`
	StripeCurrentPeriodEnd *time.Time `gorm:"column:stripe_current_period_end"`
	SubscriptionStatus     *string    `gorm:"type:varchar(32)"`
	SubscriptionCancelAt   *time.Time
	SubscriptionName       *string   `gorm:"type:varchar(100)"`
	CreatedAt              time.Time `gorm:"not null"`
	UpdatedAt              time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (SubscriptionModel) TableName() string {
	return "subscriptions"
}

// ToDomain converts the persistence model to a domain Subscription
func (m *SubscriptionModel) ToDomain() *billing.Subscription {
	s := &billing.Subscription{
		UserID:               m.UserID,
		StripeCustomerID:     m.StripeCustomerID,
		StripeSubscriptionID: m.StripeSubscriptionID,
		StripePriceID:        m.StripePriceID,
		SubscriptionName:     m.SubscriptionName,
		CreatedAt:            m.CreatedAt.UTC(),
		UpdatedAt:            m.UpdatedAt.UTC(),
	}
	if m.StripeCurrentPeriodEnd != nil {
		end := m.StripeCurrentPeriodEnd.UTC()
		s.StripeCurrentPeriodEnd = &end
	}
	if m.SubscriptionCancelAt != nil {
		at := m.SubscriptionCancelAt.UTC()
		s.SubscriptionCancelAt = &at
	}
	if m.SubscriptionStatus != nil {
		status := billing.SubscriptionStatus(*m.SubscriptionStatus)
		s.SubscriptionStatus = &status
	}
	return s
}

// FromDomain populates the persistence model from a domain Subscription
func (m *SubscriptionModel) FromDomain(s *billing.Subscription) {
	m.UserID = s.UserID
	m.StripeCustomerID = s.StripeCustomerID
	m.StripeSubscriptionID = s.StripeSubscriptionID
	m.StripePriceID = s.StripePriceID
	m.StripeCurrentPeriodEnd = s.StripeCurrentPeriodEnd
	m.SubscriptionCancelAt = s.SubscriptionCancelAt
	m.SubscriptionName = s.SubscriptionName
	m.CreatedAt = s.CreatedAt
	m.UpdatedAt = s.UpdatedAt
	m.SubscriptionStatus = nil
	if s.SubscriptionStatus != nil {
		status := string(*s.SubscriptionStatus)
		m.SubscriptionStatus = &status
	}
}

// SubscriptionModelFromDomain creates a new persistence model from a domain Subscription
func SubscriptionModelFromDomain(s *billing.Subscription) *SubscriptionModel {
	m := &SubscriptionModel{}
	m.FromDomain(s)
	return m
}
