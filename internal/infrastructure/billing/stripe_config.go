package billing

import (
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v81"
)

// StripeConfig holds configuration for Stripe integration
type StripeConfig struct {
	// SecretKey is the Stripe secret API key (sk_test_xxx or sk_live_xxx)
	SecretKey string `json:"secret_key" mapstructure:"secret_key"`

	// WebhookSecret is the secret for verifying webhook signatures
	WebhookSecret string `json:"webhook_secret" mapstructure:"webhook_secret"`

	// IsTestMode indicates if using Stripe test mode
	IsTestMode bool `json:"is_test_mode" mapstructure:"is_test_mode"`

	// DefaultCurrency is the currency billing records are stored in
	DefaultCurrency string `json:"default_currency" mapstructure:"default_currency"`

	// PriceIDs maps plan slugs to Stripe Price IDs
	PriceIDs map[string]string `json:"price_ids" mapstructure:"price_ids"`

	// RequestsPerSecond caps outbound calls; zero disables the limiter
	RequestsPerSecond float64 `json:"requests_per_second" mapstructure:"requests_per_second"`

	// Burst is the limiter bucket size
	Burst int `json:"burst" mapstructure:"burst"`

	// MaxNetworkRetries is passed to the stripe-go backend
	MaxNetworkRetries int64 `json:"max_network_retries" mapstructure:"max_network_retries"`

	// BreakerFailures is the consecutive failure count that opens the circuit
	BreakerFailures uint `json:"breaker_failures" mapstructure:"breaker_failures"`

	// BreakerDelay is how long the circuit stays open before probing again
	BreakerDelay time.Duration `json:"breaker_delay" mapstructure:"breaker_delay"`
}

// DefaultStripeConfig returns a default configuration for development/testing
func DefaultStripeConfig() *StripeConfig {
	return &StripeConfig{
		IsTestMode:        true,
		DefaultCurrency:   "usd",
		PriceIDs:          map[string]string{},
		RequestsPerSecond: 20,
		Burst:             5,
		BreakerFailures:   5,
		BreakerDelay:      30 * time.Second,
	}
}

// Validate validates the Stripe configuration
func (c *StripeConfig) Validate() error {
	if c.SecretKey == "" {
		return fmt.Errorf("stripe: secret key is required")
	}

	if c.IsTestMode {
		if !strings.HasPrefix(c.SecretKey, "sk_test") && !strings.HasPrefix(c.SecretKey, "rk_test") {
			return fmt.Errorf("stripe: test mode enabled but secret key is not a test key")
		}
	} else {
		if !strings.HasPrefix(c.SecretKey, "sk_live") && !strings.HasPrefix(c.SecretKey, "rk_live") {
			return fmt.Errorf("stripe: live mode enabled but secret key is not a live key")
		}
	}

	if c.DefaultCurrency == "" {
		return fmt.Errorf("stripe: default currency is required")
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("stripe: requests per second cannot be negative")
	}

	return nil
}

// GetPriceID returns the Stripe Price ID for a given plan slug
func (c *StripeConfig) GetPriceID(plan string) (string, error) {
	priceID, exists := c.PriceIDs[plan]
	if !exists || priceID == "" {
		return "", fmt.Errorf("stripe: no price ID configured for plan: %s", plan)
	}
	return priceID, nil
}

// InitStripeClient initializes the Stripe client with the configured API key
func (c *StripeConfig) InitStripeClient() {
	stripe.Key = c.SecretKey
	if c.MaxNetworkRetries > 0 {
		stripe.SetBackend(stripe.APIBackend, stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
			MaxNetworkRetries: stripe.Int64(c.MaxNetworkRetries),
		}))
	}
}
