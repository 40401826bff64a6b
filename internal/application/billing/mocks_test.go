package billing

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/graham/backend/internal/domain/agent"
	"github.com/graham/backend/internal/domain/billing"
	"github.com/graham/backend/internal/domain/shared"
	infraBilling "github.com/graham/backend/internal/infrastructure/billing"
	"github.com/stretchr/testify/mock"
)

// MockStripeGateway is a mock implementation of StripeGateway
type MockStripeGateway struct {
	mock.Mock
}

func (m *MockStripeGateway) GetSubscriptionItem(ctx context.Context, subscriptionID string) (*infraBilling.SubscriptionItem, error) {
	args := m.Called(ctx, subscriptionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*infraBilling.SubscriptionItem), args.Error(1)
}

func (m *MockStripeGateway) ReportUsage(ctx context.Context, input infraBilling.UsageReportInput) (*infraBilling.UsageReportOutput, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*infraBilling.UsageReportOutput), args.Error(1)
}

func (m *MockStripeGateway) GetSubscriptionDetails(ctx context.Context, subscriptionID string) (*infraBilling.SubscriptionDetails, error) {
	args := m.Called(ctx, subscriptionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*infraBilling.SubscriptionDetails), args.Error(1)
}

// MockSubscriptionRepository is a mock implementation of billing.SubscriptionRepository
type MockSubscriptionRepository struct {
	mock.Mock
}

func (m *MockSubscriptionRepository) FindByUserID(ctx context.Context, userID string) (*billing.Subscription, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Subscription), args.Error(1)
}

func (m *MockSubscriptionRepository) FindByCustomerID(ctx context.Context, customerID string) (*billing.Subscription, error) {
	args := m.Called(ctx, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Subscription), args.Error(1)
}

func (m *MockSubscriptionRepository) FindBySubscriptionID(ctx context.Context, subscriptionID string) (*billing.Subscription, error) {
	args := m.Called(ctx, subscriptionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Subscription), args.Error(1)
}

func (m *MockSubscriptionRepository) Save(ctx context.Context, sub *billing.Subscription) error {
	args := m.Called(ctx, sub)
	return args.Error(0)
}

// MockAgentRepository is a mock implementation of agent.Repository
type MockAgentRepository struct {
	mock.Mock
}

func (m *MockAgentRepository) FindByID(ctx context.Context, id uuid.UUID) (*agent.Agent, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*agent.Agent), args.Error(1)
}

func (m *MockAgentRepository) FindByIDForUser(ctx context.Context, userID string, id uuid.UUID) (*agent.Agent, error) {
	args := m.Called(ctx, userID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*agent.Agent), args.Error(1)
}

func (m *MockAgentRepository) Save(ctx context.Context, a *agent.Agent) error {
	args := m.Called(ctx, a)
	return args.Error(0)
}

// memoryLedger is an in-memory usage ledger implementing both
// billing.UsageRecordRepository and billing.BillingLedger
type memoryLedger struct {
	mu        sync.Mutex
	records   map[uuid.UUID]*billing.UsageRecord
	invoices  []*billing.BillingRecord
	saveErr   error
	commitErr error
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{records: make(map[uuid.UUID]*billing.UsageRecord)}
}

func (l *memoryLedger) Save(ctx context.Context, record *billing.UsageRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.saveErr != nil {
		return l.saveErr
	}
	if record.IdempotencyKey != nil {
		for _, r := range l.records {
			if r.UserID == record.UserID && r.IdempotencyKey != nil && *r.IdempotencyKey == *record.IdempotencyKey {
				return shared.ErrAlreadyExists
			}
		}
	}
	cp := *record
	l.records[record.ID] = &cp
	return nil
}

func (l *memoryLedger) FindByID(ctx context.Context, id uuid.UUID) (*billing.UsageRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.records[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (l *memoryLedger) FindByIdempotencyKey(ctx context.Context, userID, key string) (*billing.UsageRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, r := range l.records {
		if r.UserID == userID && r.IdempotencyKey != nil && *r.IdempotencyKey == key {
			cp := *r
			return &cp, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (l *memoryLedger) FindUnbilled(ctx context.Context, userID string, periodEnd time.Time) ([]*billing.UsageRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := []*billing.UsageRecord{}
	for _, r := range l.records {
		if r.UserID == userID && r.IsBillableAt(periodEnd) {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (l *memoryLedger) FindUsersWithUnbilled(ctx context.Context, periodEnd time.Time) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	seen := map[string]bool{}
	users := []string{}
	for _, r := range l.records {
		if r.IsBillableAt(periodEnd) && !seen[r.UserID] {
			seen[r.UserID] = true
			users = append(users, r.UserID)
		}
	}
	sort.Strings(users)
	return users, nil
}

func (l *memoryLedger) Commit(ctx context.Context, record *billing.BillingRecord, usageIDs []uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.commitErr != nil {
		return l.commitErr
	}
	for _, id := range usageIDs {
		r, ok := l.records[id]
		if !ok || r.Billed {
			return shared.ErrConflict
		}
	}
	for _, id := range usageIDs {
		if err := l.records[id].MarkBilled(record.ID, time.Now()); err != nil {
			return err
		}
	}
	l.invoices = append(l.invoices, record)
	return nil
}

func (l *memoryLedger) billingRecords() []*billing.BillingRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*billing.BillingRecord(nil), l.invoices...)
}

// seed inserts an unbilled record for userID at ts
func (l *memoryLedger) seed(userID string, seconds int64, ts time.Time) *billing.UsageRecord {
	r, err := billing.NewUsageRecord(userID, uuid.New(), decimalSeconds(seconds), ts)
	if err != nil {
		panic(err)
	}
	l.mu.Lock()
	l.records[r.ID] = r
	l.mu.Unlock()
	return r
}

func strPtr(s string) *string { return &s }
