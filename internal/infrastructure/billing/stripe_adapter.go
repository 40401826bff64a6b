package billing

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/graham/backend/internal/domain/shared"
	"github.com/stripe/stripe-go/v81"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// StripeAdapter performs the Stripe calls needed for metered billing.
// Every call waits on a shared token bucket and runs through a circuit breaker.
type StripeAdapter struct {
	config  *StripeConfig
	logger  *zap.Logger
	limiter *rate.Limiter
	breaker circuitbreaker.CircuitBreaker[any]
}

// NewStripeAdapter creates a new Stripe adapter
func NewStripeAdapter(config *StripeConfig, logger *zap.Logger) (*StripeAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	config.InitStripeClient()

	limit := rate.Inf
	if config.RequestsPerSecond > 0 {
		limit = rate.Limit(config.RequestsPerSecond)
	}
	burst := config.Burst
	if burst <= 0 {
		burst = 1
	}

	failures := config.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	delay := config.BreakerDelay
	if delay <= 0 {
		delay = DefaultStripeConfig().BreakerDelay
	}

	breaker := circuitbreaker.NewBuilder[any]().
		WithFailureThreshold(failures).
		WithDelay(delay).
		HandleIf(func(_ any, err error) bool {
			return isBreakerFailure(err)
		}).
		OnStateChanged(func(event circuitbreaker.StateChangedEvent) {
			logger.Warn("Stripe circuit breaker state change",
				zap.String("from_state", breakerStateName(event.OldState)),
				zap.String("to_state", breakerStateName(event.NewState)))
		}).
		Build()

	return &StripeAdapter{
		config:  config,
		logger:  logger,
		limiter: rate.NewLimiter(limit, burst),
		breaker: breaker,
	}, nil
}

// Config returns the adapter configuration
func (a *StripeAdapter) Config() *StripeConfig {
	return a.config
}

// BreakerState returns the circuit breaker state for health reporting
func (a *StripeAdapter) BreakerState() string {
	return breakerStateName(a.breaker.State())
}

func breakerStateName(state circuitbreaker.State) string {
	switch state {
	case circuitbreaker.ClosedState:
		return "closed"
	case circuitbreaker.HalfOpenState:
		return "half-open"
	case circuitbreaker.OpenState:
		return "open"
	default:
		return "unknown"
	}
}

// isBreakerFailure reports whether err says Stripe itself is unhealthy.
// Request errors scoped to one customer (4xx other than 429) and expiry of
// the caller's own deadline leave the circuit closed.
func isBreakerFailure(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return stripeErr.HTTPStatusCode >= http.StatusInternalServerError ||
			stripeErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	return true
}

// guard runs fn behind the rate limiter and circuit breaker and maps the
// result into the domain error taxonomy.
func (a *StripeAdapter) guard(ctx context.Context, operation string, fn func() error) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return shared.NewUpstreamError(fmt.Sprintf("stripe: %s: rate limiter wait aborted", operation), err)
	}

	_, err := failsafe.With[any](a.breaker).WithContext(ctx).Get(func() (any, error) {
		return nil, fn()
	})
	if err == nil {
		return nil
	}
	return mapStripeError(operation, err)
}

func mapStripeError(operation string, err error) error {
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return shared.NewUpstreamError(fmt.Sprintf("stripe: %s: circuit open", operation), err)
	}

	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		switch {
		case stripeErr.HTTPStatusCode == http.StatusTooManyRequests:
			return shared.NewUpstreamError(fmt.Sprintf("stripe: %s: rate limited", operation), err)
		case stripeErr.HTTPStatusCode == http.StatusNotFound:
			return shared.NewUpstreamError(fmt.Sprintf("stripe: %s: resource not found", operation), err)
		case stripeErr.HTTPStatusCode >= 500:
			return shared.NewUpstreamError(fmt.Sprintf("stripe: %s: service unavailable", operation), err)
		}
	}
	return shared.NewUpstreamError(fmt.Sprintf("stripe: %s failed", operation), err)
}

// IsRateLimited reports whether err came from a Stripe 429
func IsRateLimited(err error) bool {
	var stripeErr *stripe.Error
	return errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == http.StatusTooManyRequests
}
