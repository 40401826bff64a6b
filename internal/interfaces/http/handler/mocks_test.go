package handler

import (
	"context"
	"time"

	agentapp "github.com/graham/backend/internal/application/agent"
	billingapp "github.com/graham/backend/internal/application/billing"
	"github.com/graham/backend/internal/domain/billing"
	"github.com/graham/backend/internal/infrastructure/scheduler"
	"github.com/stretchr/testify/mock"
)

type mockRecorder struct{ mock.Mock }

func (m *mockRecorder) RecordUsage(ctx context.Context, in billingapp.RecordUsageInput) (*billing.UsageRecord, error) {
	args := m.Called(ctx, in)
	if r := args.Get(0); r != nil {
		return r.(*billing.UsageRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockReader struct{ mock.Mock }

func (m *mockReader) UnbilledUsage(ctx context.Context, userID string, periodEnd time.Time) (billing.UsageSummary, error) {
	args := m.Called(ctx, userID, periodEnd)
	return args.Get(0).(billing.UsageSummary), args.Error(1)
}

type mockSubscriptions struct{ mock.Mock }

func (m *mockSubscriptions) Status(ctx context.Context, userID string) (*billingapp.SubscriptionStatus, error) {
	args := m.Called(ctx, userID)
	if s := args.Get(0); s != nil {
		return s.(*billingapp.SubscriptionStatus), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockAgents struct{ mock.Mock }

func (m *mockAgents) Update(ctx context.Context, userID, agentID string, req agentapp.UpdateAgentRequest) (*agentapp.AgentResponse, error) {
	args := m.Called(ctx, userID, agentID, req)
	if r := args.Get(0); r != nil {
		return r.(*agentapp.AgentResponse), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockWebhooks struct{ mock.Mock }

func (m *mockWebhooks) ProcessWebhook(ctx context.Context, payload []byte, signature string) (*billingapp.WebhookResult, error) {
	args := m.Called(ctx, payload, signature)
	if r := args.Get(0); r != nil {
		return r.(*billingapp.WebhookResult), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockSubmitter struct{ mock.Mock }

func (m *mockSubmitter) Submit(name, trigger string) (*scheduler.Job, error) {
	args := m.Called(name, trigger)
	if j := args.Get(0); j != nil {
		return j.(*scheduler.Job), args.Error(1)
	}
	return nil, args.Error(1)
}
