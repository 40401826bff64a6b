package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/graham/backend/internal/bootstrap"
	"github.com/graham/backend/internal/infrastructure/auth"
	"github.com/graham/backend/internal/infrastructure/config"
	"github.com/graham/backend/internal/infrastructure/logger"
	"github.com/graham/backend/internal/infrastructure/scheduler"
	"github.com/graham/backend/internal/infrastructure/telemetry"
	"github.com/graham/backend/internal/interfaces/http/handler"
	"github.com/graham/backend/internal/interfaces/http/middleware"
	"github.com/graham/backend/internal/interfaces/http/router"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelCfg := telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}
	tracerProvider, err := telemetry.NewTracerProvider(ctx, otelCfg, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Config:         otelCfg,
		ExportInterval: cfg.Telemetry.MetricsInterval,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	logProvider, err := telemetry.NewLoggerProvider(ctx, otelCfg, log)
	if err != nil {
		log.Fatal("Failed to initialize log provider", zap.Error(err))
	}
	log = logProvider.Bridge(log, zapcore.InfoLevel)

	log.Info("Starting Graham billing service",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.Bool("telemetry", cfg.Telemetry.Enabled),
	)

	meter := meterProvider.Meter("graham/billing")
	container, err := bootstrap.New(bootstrap.Config{
		Config:       cfg,
		Meter:        meter,
		RequireRedis: cfg.IsProduction(),
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize services", zap.Error(err))
	}
	defer func() {
		if err := container.Close(); err != nil {
			log.Error("Error closing resources", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	registry := scheduler.NewRegistry()
	registry.Register(scheduler.MonthlyBillingJobName, scheduler.NewMonthlyBillingJob(container.Reconciler, log.Named("billing-job")))

	jobs, err := scheduler.NewScheduler(scheduler.SchedulerConfig{
		Enabled:           cfg.Scheduler.Enabled,
		MaxConcurrentJobs: cfg.Scheduler.MaxConcurrentJobs,
		JobTimeout:        cfg.Scheduler.JobTimeout,
		RetryAttempts:     cfg.Scheduler.RetryAttempts,
		RetryDelay:        cfg.Scheduler.RetryDelay,
	}, registry, log.Named("scheduler"))
	if err != nil {
		log.Fatal("Failed to create scheduler", zap.Error(err))
	}
	if err := jobs.Start(ctx); err != nil {
		log.Fatal("Failed to start scheduler", zap.Error(err))
	}

	var trigger *scheduler.MonthlyTrigger
	if cfg.Scheduler.Enabled {
		trigger, err = scheduler.NewMonthlyTrigger(scheduler.MonthlyTriggerConfig{
			JobName:       scheduler.MonthlyBillingJobName,
			Day:           cfg.Scheduler.BillingDay,
			Hour:          cfg.Scheduler.BillingHour,
			Minute:        cfg.Scheduler.BillingMinute,
			CheckInterval: cfg.Scheduler.CheckInterval,
		}, jobs, log.Named("trigger"))
		if err != nil {
			log.Fatal("Failed to create monthly trigger", zap.Error(err))
		}
		if err := trigger.Start(ctx); err != nil {
			log.Fatal("Failed to start monthly trigger", zap.Error(err))
		}
	} else {
		log.Info("Monthly trigger disabled; billing runs only via the admin endpoint")
	}

	var limiter *middleware.RateLimiter
	if cfg.HTTP.RateLimitRPS > 0 {
		limiter = middleware.NewRateLimiter(cfg.HTTP.RateLimitRPS, cfg.HTTP.RateLimitBurst)
		go limiter.Run(ctx)
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	cors := middleware.DefaultCORSConfig()
	cors.AllowOrigins = cfg.HTTP.CORSAllowOrigins

	engine, err := router.NewEngine(router.Config{
		Logger:     log,
		Validator:  auth.NewJWTService(cfg.JWT),
		AdminToken: cfg.Billing.AdminToken,
		CORS:       cors,
		Tracing: middleware.TracingConfig{
			ServiceName: cfg.Telemetry.ServiceName,
			Enabled:     tracerProvider.IsEnabled(),
		},
		Meter:        meter,
		RateLimiter:  limiter,
		MaxBodyBytes: cfg.HTTP.MaxBodySize,
	}, router.Handlers{
		Usage:        handler.NewUsageHandler(container.Recorder, container.Aggregator),
		Subscription: handler.NewSubscriptionHandler(container.Subscriptions),
		Agent:        handler.NewAgentHandler(container.Agents),
		Webhook:      handler.NewStripeWebhookHandler(container.Webhooks),
		Admin:        handler.NewAdminHandler(jobs),
		Health: handler.NewHealthHandler(map[string]handler.HealthCheck{
			"database": container.PingDatabase,
			"redis":    container.PingIdempotency,
		}),
	})
	if err != nil {
		log.Fatal("Failed to build HTTP engine", zap.Error(err))
	}
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Fatal("Invalid trusted proxies", zap.Error(err))
		}
	}

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if trigger != nil {
		if err := trigger.Stop(shutdownCtx); err != nil {
			log.Warn("Monthly trigger stop timed out", zap.Error(err))
		}
	}
	if err := jobs.Stop(shutdownCtx); err != nil {
		log.Warn("Scheduler stop timed out", zap.Error(err))
	}
	for name, shutdown := range map[string]func(context.Context) error{
		"tracer": tracerProvider.Shutdown,
		"meter":  meterProvider.Shutdown,
		"logs":   logProvider.Shutdown,
	} {
		if err := shutdown(shutdownCtx); err != nil {
			log.Warn("Telemetry shutdown failed", zap.String("provider", name), zap.Error(err))
		}
	}

	log.Info("Server exited gracefully")
}
