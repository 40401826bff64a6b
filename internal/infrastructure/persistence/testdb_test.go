package persistence

import (
	"database/sql"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// SQLite-compatible shadow models used to create the schema in tests

type usageRecordSQLite struct {
	ID              string    `gorm:"primaryKey"`
	CreatedAt       time.Time `gorm:"not null"`
	UpdatedAt       time.Time `gorm:"not null"`
	UserID          string    `gorm:"not null;uniqueIndex:idx_usage_user_key,priority:1"`
	AgentID         string    `gorm:"not null"`
	SecondsUsed     string    `gorm:"not null"`
	MinutesUsed     int64     `gorm:"not null"`
	Timestamp       time.Time `gorm:"not null"`
	Billed          bool      `gorm:"not null;default:false"`
	BilledAt        *time.Time
	BillingRecordID *string
	IdempotencyKey  *string `gorm:"uniqueIndex:idx_usage_user_key,priority:2"`
}

func (usageRecordSQLite) TableName() string { return "usage_records" }

type billingRecordSQLite struct {
	ID                  string    `gorm:"primaryKey"`
	CreatedAt           time.Time `gorm:"not null"`
	UpdatedAt           time.Time `gorm:"not null"`
	UserID              string    `gorm:"not null"`
	Minutes             int64     `gorm:"not null"`
	AmountCents         int64     `gorm:"not null"`
	Currency            string    `gorm:"not null"`
	Status              string    `gorm:"not null"`
	SubscriptionItemID  string
	StripeUsageRecordID string
	IdempotencyKey      string    `gorm:"not null;uniqueIndex"`
	PeriodStart         time.Time `gorm:"column:billing_period_start;not null"`
	PeriodEnd           time.Time `gorm:"column:billing_period_end;not null"`
}

func (billingRecordSQLite) TableName() string { return "billing_records" }

type subscriptionSQLite struct {
	UserID                 string  `gorm:"primaryKey"`
	StripeCustomerID       *string `gorm:"uniqueIndex"`
	StripeSubscriptionID   *string `gorm:"uniqueIndex"`
	StripePriceID          *string
	StripeCurrentPeriodEnd *time.Time
	SubscriptionStatus     *string
	SubscriptionCancelAt   *time.Time
	SubscriptionName       *string
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

func (subscriptionSQLite) TableName() string { return "subscriptions" }

type agentSQLite struct {
	ID           string    `gorm:"primaryKey"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
	UserID       string    `gorm:"not null;index"`
	Name         string    `gorm:"not null"`
	SystemPrompt string
	VoiceID      string
	VoiceName    string
	PhoneNumber  string
}

func (agentSQLite) TableName() string { return "agents" }

// setupTestDB opens a private in-memory SQLite database with the full schema
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// every new connection to :memory: would see an empty database
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	err = db.AutoMigrate(&usageRecordSQLite{}, &billingRecordSQLite{}, &subscriptionSQLite{}, &agentSQLite{})
	require.NoError(t, err)

	return db
}

// newMockDB creates a GORM handle on a sqlmock postgres connection
func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()

	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	return gormDB, mock, mockDB
}

func sqlmockResult(rows int64) driver.Result {
	return sqlmock.NewResult(0, rows)
}
