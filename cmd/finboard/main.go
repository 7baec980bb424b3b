package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"finboard/internal/auth"
	"finboard/internal/backend"
	"finboard/internal/cache"
	"finboard/internal/cli"
	"finboard/internal/core"
	apphttp "finboard/internal/http"
	"finboard/internal/log"
	"finboard/internal/metrics"
	"finboard/internal/middleware/ratelimit"
	"finboard/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), log.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	ctx := context.Background()
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err.Error())
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger).CreateBackend(ctx, bcfg)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err.Error(), "backend", cfg.DataBackend)
		os.Exit(1)
	}

	tokens, err := auth.NewTokens(auth.TokenConfig{
		Secret:   cfg.JWTSecret,
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.TokenTTL,
	})
	if err != nil {
		logger.Error("Failed to configure tokens", log.FieldError, err.Error())
		os.Exit(1)
	}

	m := metrics.New()
	opts := []services.Option{
		services.WithRecorder(m),
		services.WithOverviewCache(cache.NewLRUCache[core.MonthOverview](cfg.CacheSize, cfg.CacheTTL)),
	}
	if res.Publisher != nil {
		opts = append(opts, services.WithPublisher(res.Publisher))
	}
	expenses := services.NewExpenseService(res.Backend, opts...)

	srv := apphttp.NewServer(apphttp.Config{
		Addr:            ":" + cfg.Port,
		DefaultPageSize: cfg.DefaultPageSize,
		MaxPageSize:     cfg.MaxPageSize,
		RateLimit: ratelimit.Config{
			RequestsPerSecond: cfg.RateLimitRPS,
			Burst:             cfg.RateLimitBurst,
		},
		TrustedProxies: cfg.TrustedProxies,
		Logger:         logger,
		Metrics:        m,
		Ready:          res.Backend,
	}, expenses, auth.NewService(res.Backend, tokens))

	shutdownCtx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err.Error())
		}
		if res.Cleanup != nil {
			if err := res.Cleanup(); err != nil {
				logger.Error("Backend cleanup error", log.FieldError, err.Error())
			}
		}
	})

	logger.Info("Starting finboard server", "port", cfg.Port, "backend", cfg.DataBackend)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err.Error(), "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(shutdownCtx, done)
	logger.Info("Server stopped gracefully")
}
