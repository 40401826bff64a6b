package router

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/graham/backend/internal/infrastructure/logger"
	"github.com/graham/backend/internal/interfaces/http/handler"
	"github.com/graham/backend/internal/interfaces/http/middleware"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// Handlers are the HTTP handlers mounted by NewEngine
type Handlers struct {
	Usage        *handler.UsageHandler
	Subscription *handler.SubscriptionHandler
	Agent        *handler.AgentHandler
	Webhook      *handler.StripeWebhookHandler
	Admin        *handler.AdminHandler
	Health       *handler.HealthHandler
}

// Config wires the middleware chain. RateLimiter and Meter are optional.
type Config struct {
	Logger       *zap.Logger
	Validator    middleware.TokenValidator
	AdminToken   string
	CORS         middleware.CORSConfig
	Tracing      middleware.TracingConfig
	Meter        metric.Meter
	RateLimiter  *middleware.RateLimiter
	MaxBodyBytes int64
}

// NewEngine builds the gin engine with the global middleware chain and every route
func NewEngine(cfg Config, h Handlers) (*gin.Engine, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}

	metrics, err := middleware.HTTPMetrics(cfg.Meter)
	if err != nil {
		return nil, fmt.Errorf("http metrics: %w", err)
	}

	engine := gin.New()
	engine.Use(
		logger.Recovery(cfg.Logger),
		middleware.RequestID(),
		middleware.Tracing(cfg.Tracing),
		logger.GinMiddleware(cfg.Logger),
		metrics,
		middleware.CORS(cfg.CORS),
		middleware.BodyLimit(cfg.MaxBodyBytes),
	)

	engine.GET("/health", h.Health.Live)
	engine.GET("/health/ready", h.Health.Ready)

	NewRouter(engine).
		Register(userRoutes(cfg, h)).
		Register(NewRouteGroup("webhooks", "/webhooks").
			POST("/stripe", h.Webhook.HandleStripeWebhook)).
		Register(NewRouteGroup("admin", "/admin").
			Use(middleware.AdminToken(cfg.AdminToken)).
			POST("/billing/run", h.Admin.RunBilling)).
		Setup()

	return engine, nil
}

// userRoutes are the routes called on behalf of an authenticated user
func userRoutes(cfg Config, h Handlers) *RouteGroup {
	recordUsage := []gin.HandlerFunc{h.Usage.RecordUsage}
	if cfg.RateLimiter != nil {
		recordUsage = append([]gin.HandlerFunc{middleware.RateLimit(cfg.RateLimiter)}, recordUsage...)
	}

	g := NewRouteGroup("user", "").
		Use(middleware.JWTAuth(middleware.JWTMiddlewareConfig{
			Validator: cfg.Validator,
			Logger:    cfg.Logger,
		}))
	g.POST("/usage", recordUsage...).
		GET("/usage/unbilled", h.Usage.GetUnbilled).
		GET("/billing/subscription", h.Subscription.GetSubscription).
		PATCH("/agents/:id", h.Agent.UpdateAgent)
	// Path used by the voice agent worker
	g.Group("livekit", "/livekit").POST("/track-usage", recordUsage...)
	return g
}
