package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/graham/backend/internal/domain/billing"
	"github.com/shopspring/decimal"
)

// UsageRecordModel is the persistence model for a call usage row
type UsageRecordModel struct {
	BaseModel
	UserID          string          `gorm:"type:varchar(255);not null;index:idx_usage_records_user_billed,priority:1"`
	AgentID         uuid.UUID       `gorm:"type:uuid;not null;index"`
	SecondsUsed     decimal.Decimal `gorm:"type:decimal(12,3);not null"`
	MinutesUsed     int64           `gorm:"not null"`
	Timestamp       time.Time       `gorm:"not null;index:idx_usage_records_user_billed,priority:3"`
	Billed          bool            `gorm:"not null;index:idx_usage_records_user_billed,priority:2"`
	BilledAt        *time.Time
	BillingRecordID *uuid.UUID `gorm:"type:uuid;index"`
	IdempotencyKey  *string    `gorm:"type:varchar(255)"`
}

// TableName returns the table name for GORM
func (UsageRecordModel) TableName() string {
	return "usage_records"
}

// ToDomain converts the persistence model to a domain UsageRecord
func (m *UsageRecordModel) ToDomain() *billing.UsageRecord {
	r := &billing.UsageRecord{
		BaseEntity:      m.BaseModel.ToDomain(),
		UserID:          m.UserID,
		AgentID:         m.AgentID,
		SecondsUsed:     m.SecondsUsed,
		MinutesUsed:     m.MinutesUsed,
		Timestamp:       m.Timestamp.UTC(),
		Billed:          m.Billed,
		BillingRecordID: m.BillingRecordID,
		IdempotencyKey:  m.IdempotencyKey,
	}
	if m.BilledAt != nil {
		at := m.BilledAt.UTC()
		r.BilledAt = &at
	}
	return r
}

// FromDomain populates the persistence model from a domain UsageRecord
func (m *UsageRecordModel) FromDomain(r *billing.UsageRecord) {
	m.FromDomainBaseEntity(r.BaseEntity)
	m.UserID = r.UserID
	m.AgentID = r.AgentID
	m.SecondsUsed = r.SecondsUsed
	m.MinutesUsed = r.MinutesUsed
	m.Timestamp = r.Timestamp
	m.Billed = r.Billed
	m.BilledAt = r.BilledAt
	m.BillingRecordID = r.BillingRecordID
	m.IdempotencyKey = r.IdempotencyKey
}

// UsageRecordModelFromDomain creates a new persistence model from a domain UsageRecord
func UsageRecordModelFromDomain(r *billing.UsageRecord) *UsageRecordModel {
	m := &UsageRecordModel{}
	m.FromDomain(r)
	return m
}

// BillingRecordModel is the persistence model for one reconciled invoice line
type BillingRecordModel struct {
	BaseModel
	UserID              string    `gorm:"type:varchar(255);not null;index"`
	Minutes             int64     `gorm:"not null"`
	AmountCents         int64     `gorm:"not null"`
	Currency            string    `gorm:"type:varchar(3);not null"`
	Status              string    `gorm:"type:varchar(20);not null"`
	SubscriptionItemID  string    `gorm:"type:varchar(255)"`
	StripeUsageRecordID string    `gorm:"type:varchar(255)"`
	IdempotencyKey      string    `gorm:"type:varchar(255);not null;uniqueIndex"`
	PeriodStart         time.Time `gorm:"column:billing_period_start;not null"`
	PeriodEnd           time.Time `gorm:"column:billing_period_end;not null"`
}

// TableName returns the table name for GORM
func (BillingRecordModel) TableName() string {
	return "billing_records"
}

// ToDomain converts the persistence model to a domain BillingRecord
func (m *BillingRecordModel) ToDomain() *billing.BillingRecord {
	return &billing.BillingRecord{
		BaseEntity:          m.BaseModel.ToDomain(),
		UserID:              m.UserID,
		Minutes:             m.Minutes,
		AmountCents:         m.AmountCents,
		Currency:            m.Currency,
		Status:              billing.BillingRecordStatus(m.Status),
		SubscriptionItemID:  m.SubscriptionItemID,
		StripeUsageRecordID: m.StripeUsageRecordID,
		IdempotencyKey:      m.IdempotencyKey,
		PeriodStart:         m.PeriodStart.UTC(),
		PeriodEnd:           m.PeriodEnd.UTC(),
	}
}

// FromDomain populates the persistence model from a domain BillingRecord
func (m *BillingRecordModel) FromDomain(r *billing.BillingRecord) {
	m.FromDomainBaseEntity(r.BaseEntity)
	m.UserID = r.UserID
	m.Minutes = r.Minutes
	m.AmountCents = r.AmountCents
	m.Currency = r.Currency
	m.Status = string(r.Status)
	m.SubscriptionItemID = r.SubscriptionItemID
	m.StripeUsageRecordID = r.StripeUsageRecordID
	m.IdempotencyKey = r.IdempotencyKey
	m.PeriodStart = r.PeriodStart
	m.PeriodEnd = r.PeriodEnd
}

// BillingRecordModelFromDomain creates a new persistence model from a domain BillingRecord
func BillingRecordModelFromDomain(r *billing.BillingRecord) *BillingRecordModel {
	m := &BillingRecordModel{}
	m.FromDomain(r)
	return m
}
