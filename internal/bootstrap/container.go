// Package bootstrap builds the service graph shared by the server and the
// operator CLI from a loaded configuration.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	agentapp "github.com/graham/backend/internal/application/agent"
	billingapp "github.com/graham/backend/internal/application/billing"
	"github.com/graham/backend/internal/domain/billing"
	"github.com/graham/backend/internal/domain/shared"
	infraBilling "github.com/graham/backend/internal/infrastructure/billing"
	"github.com/graham/backend/internal/infrastructure/cache"
	"github.com/graham/backend/internal/infrastructure/config"
	"github.com/graham/backend/internal/infrastructure/logger"
	"github.com/graham/backend/internal/infrastructure/persistence"
	"github.com/graham/backend/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// Container holds the wired services and the resources they own
type Container struct {
	cfg Config

	Database    *persistence.Database
	Idempotency shared.IdempotencyStore
	Stripe      *infraBilling.StripeAdapter
	Catalog     *billing.PlanCatalog
	Metrics     *telemetry.BillingMetrics

	Recorder      *billingapp.UsageRecorder
	Aggregator    *billingapp.UsageAggregator
	Reconciler    *billingapp.Reconciler
	Subscriptions *billingapp.SubscriptionService
	Webhooks      *billingapp.StripeWebhookService
	Agents        *agentapp.AgentService

	BillingRecords billing.BillingRecordRepository
}

// Config selects what New wires
type Config struct {
	*config.Config

	// Meter records billing metrics; nil uses the global provider
	Meter metric.Meter

	// RequireRedis fails New instead of falling back to the in-memory store
	RequireRedis bool
}

// New opens the database and Redis and wires every application service.
// The caller must Close the container.
func New(cfg Config, log *zap.Logger) (*Container, error) {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Container{cfg: cfg}

	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level), cfg.Database.SlowThreshold)
	db, err := persistence.NewDatabaseWithCustomLogger(&cfg.Database, gormLog)
	if err != nil {
		return nil, err
	}
	c.Database = db

	if err := telemetry.RegisterDBTracing(db.DB, telemetry.DBTracingConfig{
		Enabled:      cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
		WithoutQuery: cfg.Telemetry.DBWithoutVariables,
	}, log); err != nil {
		return nil, errors.Join(err, c.Close())
	}

	c.Idempotency, err = cache.NewIdempotencyStoreFactory(cfg.Redis,
		cache.WithLogger(log),
		cache.WithInMemoryFallback(!cfg.RequireRedis),
	).CreateStore()
	if err != nil {
		return nil, errors.Join(err, c.Close())
	}

	c.Stripe, err = infraBilling.NewStripeAdapter(&infraBilling.StripeConfig{
		SecretKey:         cfg.Stripe.SecretKey,
		WebhookSecret:     cfg.Stripe.WebhookSecret,
		IsTestMode:        cfg.Stripe.IsTestMode,
		DefaultCurrency:   cfg.Stripe.DefaultCurrency,
		PriceIDs:          cfg.Stripe.PriceIDs,
		RequestsPerSecond: cfg.Stripe.RequestsPerSecond,
		Burst:             cfg.Stripe.Burst,
		MaxNetworkRetries: cfg.Stripe.MaxNetworkRetries,
		BreakerFailures:   cfg.Billing.BreakerFailures,
		BreakerDelay:      cfg.Billing.BreakerDelay,
	}, log)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("stripe: %w", err), c.Close())
	}

	meter := cfg.Meter
	if meter == nil {
		meter = otel.Meter("graham/billing")
	}
	c.Metrics, err = telemetry.NewBillingMetrics(meter)
	if err != nil {
		return nil, errors.Join(err, c.Close())
	}

	c.wire(log)
	return c, nil
}

func (c *Container) wire(log *zap.Logger) {
	cfg := c.cfg
	usageRepo := persistence.NewUsageRecordRepository(c.Database.DB)
	agentRepo := persistence.NewAgentRepository(c.Database.DB)
	subscriptionRepo := persistence.NewSubscriptionRepository(c.Database.DB)
	ledger := persistence.NewBillingLedger(c.Database.DB)
	c.BillingRecords = persistence.NewBillingRecordRepository(c.Database.DB)

	c.Catalog = billing.NewPlanCatalog(billing.DefaultPlans, cfg.Stripe.PriceIDs)

	c.Recorder = billingapp.NewUsageRecorder(billingapp.UsageRecorderConfig{
		UsageRepo:             usageRepo,
		AgentRepo:             agentRepo,
		Idempotency:           c.Idempotency,
		Metrics:               c.Metrics,
		Logger:                log.Named("usage"),
		RequireIdempotencyKey: cfg.Usage.RequireIdempotencyKey,
		IdempotencyTTL:        cfg.Usage.IdempotencyTTL,
	})
	c.Aggregator = billingapp.NewUsageAggregator(usageRepo, log.Named("usage"))
	c.Reconciler = billingapp.NewReconciler(billingapp.ReconcilerConfig{
		Aggregator:        c.Aggregator,
		SubscriptionRepo:  subscriptionRepo,
		Ledger:            ledger,
		Stripe:            c.Stripe,
		RunLock:           c.Idempotency,
		Metrics:           c.Metrics,
		Logger:            log.Named("reconciler"),
		RatePerMinute:     cfg.Billing.RatePerMinute,
		Currency:          cfg.Stripe.DefaultCurrency,
		Workers:           cfg.Billing.Workers,
		StripeCallTimeout: cfg.Billing.StripeCallTimeout,
		RunLockTTL:        cfg.Billing.RunLockTTL,
	})
	c.Subscriptions = billingapp.NewSubscriptionService(subscriptionRepo, c.Catalog, c.Stripe, log.Named("subscription"))
	c.Webhooks = billingapp.NewStripeWebhookService(billingapp.StripeWebhookServiceConfig{
		WebhookSecret:    cfg.Stripe.WebhookSecret,
		SubscriptionRepo: subscriptionRepo,
		Catalog:          c.Catalog,
		Stripe:           c.Stripe,
		Dedupe:           c.Idempotency,
		Logger:           log.Named("webhook"),
	})
	c.Agents = agentapp.NewAgentService(agentRepo, log.Named("agent"))
}

// PingDatabase checks the database connection
func (c *Container) PingDatabase(ctx context.Context) error {
	return c.Database.Ping(ctx)
}

// PingIdempotency checks Redis. The in-memory store is always reachable.
func (c *Container) PingIdempotency(ctx context.Context) error {
	if p, ok := c.Idempotency.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Close releases the idempotency store and the database
func (c *Container) Close() error {
	var errs []error
	if closer, ok := c.Idempotency.(interface{ Close() error }); ok {
		errs = append(errs, closer.Close())
	}
	if c.Database != nil {
		errs = append(errs, c.Database.Close())
	}
	return errors.Join(errs...)
}
