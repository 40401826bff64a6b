package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/graham/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/form"
	"go.uber.org/zap"
)

// mockBackend implements stripe.Backend for testing
type mockBackend struct {
	handler func(method, path string, params stripe.ParamsContainer) ([]byte, error)
}

func (m *mockBackend) Call(method, path, key string, params stripe.ParamsContainer, v stripe.LastResponseSetter) error {
	data, err := m.handler(method, path, params)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func (m *mockBackend) CallStreaming(method, path, key string, params stripe.ParamsContainer, v stripe.StreamingLastResponseSetter) error {
	return nil
}

func (m *mockBackend) CallRaw(method, path, key string, body *form.Values, params *stripe.Params, v stripe.LastResponseSetter) error {
	return nil
}

func (m *mockBackend) CallMultipart(method, path, key, boundary string, body *bytes.Buffer, params *stripe.Params, v stripe.LastResponseSetter) error {
	return nil
}

func (m *mockBackend) SetMaxNetworkRetries(maxNetworkRetries int64) {}

// testConfig returns a valid test configuration
func testConfig() *StripeConfig {
	return &StripeConfig{
		SecretKey:       "sk_test_123456789",
		WebhookSecret:   "whsec_test_123456789",
		IsTestMode:      true,
		DefaultCurrency: "usd",
		PriceIDs: map[string]string{
			"starter":      "price_starter_test",
			"professional": "price_professional_test",
		},
		BreakerFailures: 3,
		BreakerDelay:    time.Minute,
	}
}

// testLogger returns a no-op logger for testing
func testLogger() *zap.Logger {
	return zap.NewNop()
}

// setupMockBackend sets up a mock Stripe backend for testing
func setupMockBackend(handler func(method, path string, params stripe.ParamsContainer) ([]byte, error)) func() {
	mock := &mockBackend{handler: handler}
	stripe.SetBackend(stripe.APIBackend, mock)
	return func() {
		stripe.SetBackend(stripe.APIBackend, nil)
	}
}

func meteredSubscription(id string, items ...*stripe.SubscriptionItem) *stripe.Subscription {
	return &stripe.Subscription{
		ID:                id,
		Status:            stripe.SubscriptionStatusActive,
		Customer:          &stripe.Customer{ID: "cus_123"},
		CurrentPeriodEnd:  time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC).Unix(),
		CancelAtPeriodEnd: true,
		Items:             &stripe.SubscriptionItemList{Data: items},
	}
}

func item(id, priceID string, usageType stripe.PriceRecurringUsageType) *stripe.SubscriptionItem {
	return &stripe.SubscriptionItem{
		ID: id,
		Price: &stripe.Price{
			ID:        priceID,
			Recurring: &stripe.PriceRecurring{UsageType: usageType},
		},
	}
}

func TestNewStripeAdapter_Success(t *testing.T) {
	adapter, err := NewStripeAdapter(testConfig(), testLogger())

	require.NoError(t, err)
	assert.NotNil(t, adapter)
	assert.Equal(t, "closed", adapter.BreakerState())
}

func TestNewStripeAdapter_InvalidConfig(t *testing.T) {
	tests := []struct {
		name        string
		config      *StripeConfig
		expectedErr string
	}{
		{
			name:        "missing secret key",
			config:      &StripeConfig{IsTestMode: true, DefaultCurrency: "usd"},
			expectedErr: "secret key is required",
		},
		{
			name:        "test mode with live key",
			config:      &StripeConfig{SecretKey: "sk_live_123456789", IsTestMode: true, DefaultCurrency: "usd"},
			expectedErr: "test mode enabled but secret key is not a test key",
		},
		{
			name:        "live mode with test key",
			config:      &StripeConfig{SecretKey: "sk_test_123456789", DefaultCurrency: "usd"},
			expectedErr: "live mode enabled but secret key is not a live key",
		},
		{
			name:        "missing currency",
			config:      &StripeConfig{SecretKey: "sk_test_123456789", IsTestMode: true},
			expectedErr: "default currency is required",
		},
		{
			name:        "negative rate",
			config:      &StripeConfig{SecretKey: "sk_test_123456789", IsTestMode: true, DefaultCurrency: "usd", RequestsPerSecond: -1},
			expectedErr: "requests per second cannot be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter, err := NewStripeAdapter(tt.config, testLogger())

			assert.Error(t, err)
			assert.Nil(t, adapter)
			assert.Contains(t, err.Error(), tt.expectedErr)
		})
	}
}

func TestStripeConfig_GetPriceID(t *testing.T) {
	cfg := testConfig()

	id, err := cfg.GetPriceID("starter")
	require.NoError(t, err)
	assert.Equal(t, "price_starter_test", id)

	_, err = cfg.GetPriceID("enterprise")
	assert.Error(t, err)
}

func TestReportUsage_Success(t *testing.T) {
	adapter, err := NewStripeAdapter(testConfig(), testLogger())
	require.NoError(t, err)

	periodEnd := time.Date(2026, 9, 30, 23, 59, 59, 0, time.UTC)
	var gotKey string

	cleanup := setupMockBackend(func(method, path string, params stripe.ParamsContainer) ([]byte, error) {
		if method == http.MethodPost && path == "/v1/subscription_items/si_test123/usage_records" {
			p := params.(*stripe.UsageRecordParams)
			gotKey = *p.IdempotencyKey
			return json.Marshal(&stripe.UsageRecord{
				ID:               "mbur_test123",
				SubscriptionItem: "si_test123",
				Quantity:         *p.Quantity,
				Timestamp:        *p.Timestamp,
			})
		}
		return nil, fmt.Errorf("unexpected call: %s %s", method, path)
	})
	defer cleanup()

	output, err := adapter.ReportUsage(context.Background(), UsageReportInput{
		UserID:             "user_1",
		SubscriptionItemID: "si_test123",
		Quantity:           42,
		Timestamp:          periodEnd,
		IdempotencyKey:     "usage-abc",
	})

	require.NoError(t, err)
	assert.Equal(t, "mbur_test123", output.UsageRecordID)
	assert.Equal(t, "si_test123", output.SubscriptionItemID)
	assert.Equal(t, int64(42), output.Quantity)
	assert.Equal(t, UsageActionIncrement, output.Action)
	assert.True(t, periodEnd.Equal(output.Timestamp))
	assert.Equal(t, "usage-abc", gotKey)
}

func TestReportUsage_Validation(t *testing.T) {
	adapter, err := NewStripeAdapter(testConfig(), testLogger())
	require.NoError(t, err)

	_, err = adapter.ReportUsage(context.Background(), UsageReportInput{Quantity: 1})
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	_, err = adapter.ReportUsage(context.Background(), UsageReportInput{SubscriptionItemID: "si_1", Quantity: -1})
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestReportUsage_RateLimitedMapsToUpstream(t *testing.T) {
	adapter, err := NewStripeAdapter(testConfig(), testLogger())
	require.NoError(t, err)

	cleanup := setupMockBackend(func(method, path string, params stripe.ParamsContainer) ([]byte, error) {
		return nil, &stripe.Error{HTTPStatusCode: http.StatusTooManyRequests, Msg: "slow down"}
	})
	defer cleanup()

	_, err = adapter.ReportUsage(context.Background(), UsageReportInput{SubscriptionItemID: "si_1", Quantity: 3})

	require.Error(t, err)
	assert.Equal(t, shared.CodeUpstream, shared.CodeOf(err))
	assert.Contains(t, err.Error(), "rate limited")
	assert.True(t, IsRateLimited(err))
}

func TestReportUsage_CircuitOpensAfterConsecutiveFailures(t *testing.T) {
	adapter, err := NewStripeAdapter(testConfig(), testLogger())
	require.NoError(t, err)

	var calls atomic.Int32
	cleanup := setupMockBackend(func(method, path string, params stripe.ParamsContainer) ([]byte, error) {
		calls.Add(1)
		return nil, &stripe.Error{HTTPStatusCode: http.StatusInternalServerError, Msg: "boom"}
	})
	defer cleanup()

	input := UsageReportInput{SubscriptionItemID: "si_1", Quantity: 1}
	for range 3 {
		_, err = adapter.ReportUsage(context.Background(), input)
		require.Error(t, err)
	}
	assert.Equal(t, "open", adapter.BreakerState())

	_, err = adapter.ReportUsage(context.Background(), input)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit open")
	assert.Equal(t, int32(3), calls.Load())
}

func TestReportUsage_CanceledContext(t *testing.T) {
	cfg := testConfig()
	cfg.RequestsPerSecond = 0.001
	cfg.Burst = 1
	adapter, err := NewStripeAdapter(cfg, testLogger())
	require.NoError(t, err)

	cleanup := setupMockBackend(func(method, path string, params stripe.ParamsContainer) ([]byte, error) {
		return json.Marshal(&stripe.UsageRecord{ID: "mbur_1", SubscriptionItem: "si_1", Quantity: 1})
	})
	defer cleanup()

	_, err = adapter.ReportUsage(context.Background(), UsageReportInput{SubscriptionItemID: "si_1", Quantity: 1})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = adapter.ReportUsage(ctx, UsageReportInput{SubscriptionItemID: "si_1", Quantity: 1})
	require.Error(t, err)
	assert.Equal(t, shared.CodeUpstream, shared.CodeOf(err))
}

func TestGetSubscriptionItem_PrefersMeteredItem(t *testing.T) {
	adapter, err := NewStripeAdapter(testConfig(), testLogger())
	require.NoError(t, err)

	cleanup := setupMockBackend(func(method, path string, params stripe.ParamsContainer) ([]byte, error) {
		if method == http.MethodGet && path == "/v1/subscriptions/sub_123" {
			return json.Marshal(meteredSubscription("sub_123",
				item("si_flat", "price_flat", stripe.PriceRecurringUsageTypeLicensed),
				item("si_metered", "price_minutes", stripe.PriceRecurringUsageTypeMetered),
			))
		}
		return nil, fmt.Errorf("unexpected call: %s %s", method, path)
	})
	defer cleanup()

	got, err := adapter.GetSubscriptionItem(context.Background(), "sub_123")

	require.NoError(t, err)
	assert.Equal(t, "si_metered", got.ID)
	assert.Equal(t, "price_minutes", got.PriceID)
	assert.Equal(t, "sub_123", got.SubscriptionID)
	assert.True(t, got.Metered)
}

func TestGetSubscriptionItem_FallsBackToFirstItem(t *testing.T) {
	adapter, err := NewStripeAdapter(testConfig(), testLogger())
	require.NoError(t, err)

	cleanup := setupMockBackend(func(method, path string, params stripe.ParamsContainer) ([]byte, error) {
		return json.Marshal(meteredSubscription("sub_123", item("si_only", "price_flat", stripe.PriceRecurringUsageTypeLicensed)))
	})
	defer cleanup()

	got, err := adapter.GetSubscriptionItem(context.Background(), "sub_123")

	require.NoError(t, err)
	assert.Equal(t, "si_only", got.ID)
	assert.False(t, got.Metered)
}

func TestGetSubscriptionItem_NoItems(t *testing.T) {
	adapter, err := NewStripeAdapter(testConfig(), testLogger())
	require.NoError(t, err)

	cleanup := setupMockBackend(func(method, path string, params stripe.ParamsContainer) ([]byte, error) {
		return json.Marshal(meteredSubscription("sub_empty"))
	})
	defer cleanup()

	_, err = adapter.GetSubscriptionItem(context.Background(), "sub_empty")

	require.Error(t, err)
	assert.Equal(t, shared.CodeUpstream, shared.CodeOf(err))
	assert.Contains(t, err.Error(), "has no items")
}

func TestGetSubscriptionItem_RequiresID(t *testing.T) {
	adapter, err := NewStripeAdapter(testConfig(), testLogger())
	require.NoError(t, err)

	_, err = adapter.GetSubscriptionItem(context.Background(), "")
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestGetSubscriptionDetails(t *testing.T) {
	adapter, err := NewStripeAdapter(testConfig(), testLogger())
	require.NoError(t, err)

	cleanup := setupMockBackend(func(method, path string, params stripe.ParamsContainer) ([]byte, error) {
		return json.Marshal(meteredSubscription("sub_123", item("si_1", "price_minutes", stripe.PriceRecurringUsageTypeMetered)))
	})
	defer cleanup()

	details, err := adapter.GetSubscriptionDetails(context.Background(), "sub_123")

	require.NoError(t, err)
	assert.Equal(t, "sub_123", details.ID)
	assert.Equal(t, "cus_123", details.CustomerID)
	assert.Equal(t, "active", details.Status)
	assert.Equal(t, "price_minutes", details.PriceID)
	assert.True(t, details.CancelAtPeriodEnd)
	assert.Nil(t, details.CancelAt)
	assert.Equal(t, time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC), details.CurrentPeriodEnd)
}

func TestGetSubscriptionItem_CustomerErrorsKeepCircuitClosed(t *testing.T) {
	adapter, err := NewStripeAdapter(testConfig(), testLogger())
	require.NoError(t, err)

	cleanup := setupMockBackend(func(method, path string, params stripe.ParamsContainer) ([]byte, error) {
		if path == "/v1/subscriptions/sub_good" {
			return json.Marshal(meteredSubscription("sub_good", item("si_good", "price_minutes", stripe.PriceRecurringUsageTypeMetered)))
		}
		return nil, &stripe.Error{HTTPStatusCode: http.StatusNotFound, Msg: "No such subscription"}
	})
	defer cleanup()

	for _, id := range []string{"sub_bad_a", "sub_bad_b", "sub_bad_c", "sub_bad_d"} {
		_, err := adapter.GetSubscriptionItem(context.Background(), id)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "resource not found")
	}
	assert.Equal(t, "closed", adapter.BreakerState())

	got, err := adapter.GetSubscriptionItem(context.Background(), "sub_good")
	require.NoError(t, err)
	assert.Equal(t, "si_good", got.ID)
}

func TestIsBreakerFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"not found", &stripe.Error{HTTPStatusCode: http.StatusNotFound}, false},
		{"invalid request", &stripe.Error{HTTPStatusCode: http.StatusBadRequest}, false},
		{"rate limited", &stripe.Error{HTTPStatusCode: http.StatusTooManyRequests}, true},
		{"server error", &stripe.Error{HTTPStatusCode: http.StatusBadGateway}, true},
		{"call deadline", fmt.Errorf("post: %w", context.DeadlineExceeded), false},
		{"canceled", context.Canceled, false},
		{"transport", fmt.Errorf("dial tcp: connection refused"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isBreakerFailure(tt.err))
		})
	}
}
