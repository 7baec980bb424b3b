package main

import (
	"context"
	"flag"
	"os"

	"finboard/internal/auth"
	"finboard/internal/backend"
	"finboard/internal/cli"
	"finboard/internal/log"
	"finboard/internal/seed"
	"finboard/internal/services"
)

func main() {
	path := flag.String("file", "data/seed.yaml", "seed document to load")
	flag.Parse()

	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), log.ComponentSeed)
	cfg := cli.LoadAndValidateConfig(logger)

	doc, err := seed.Load(*path)
	if err != nil {
		logger.Error("Failed to load seed document", log.FieldError, err.Error(), "path", *path)
		os.Exit(1)
	}

	ctx := context.Background()
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err.Error())
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger).CreateBackend(ctx, bcfg)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err.Error())
		os.Exit(1)
	}
	defer func() {
		if res.Cleanup != nil {
			_ = res.Cleanup()
		}
	}()
	if cfg.DataBackend == string(backend.MemoryBackend) {
		logger.Warn("Seeding the memory backend; data is lost when this process exits")
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

	var opts []services.Option
	if res.Publisher != nil {
		opts = append(opts, services.WithPublisher(res.Publisher))
	}
	out, err := seed.Apply(ctx, doc, auth.NewService(res.Backend, tokens), services.NewExpenseService(res.Backend, opts...), logger)
	if err != nil {
		logger.Error("Seeding failed", log.FieldError, err.Error())
		os.Exit(1)
	}
	logger.Info("Seed complete",
		"users_created", out.UsersCreated,
		"users_reused", out.UsersReused,
		"expenses_added", out.ExpensesAdded)
}
