package main

import (
	"context"
	"errors"
	"os"
	"time"

	"finboard/internal/amqp"
	"finboard/internal/cli"
	"finboard/internal/log"
	gsheet "finboard/internal/sheets/google"
	"finboard/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), log.ComponentWorker)
	cfg := cli.LoadAndValidateConfig(logger)
	if err := cfg.ValidateWorker(); err != nil {
		logger.Error("Worker configuration validation failed", log.FieldError, err.Error())
		os.Exit(1)
	}

	logger.Info("Starting finboard-worker")

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	sheets, err := gsheet.New(ctx, cfg.GoogleSpreadsheetID, cfg.GoogleSheetName)
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", log.FieldError, err.Error())
		os.Exit(1)
	}
	if err := sheets.EnsureHeader(ctx); err != nil {
		logger.Error("Failed to prepare sheet", log.FieldError, err.Error(), "sheet", cfg.GoogleSheetName)
		os.Exit(1)
	}
	logger.Info("Google Sheets mirror ready", "spreadsheet_id", cfg.GoogleSpreadsheetID, "sheet", cfg.GoogleSheetName)

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err.Error())
		os.Exit(1)
	}
	defer client.Close()

	w := worker.NewSyncWorker(sheets, logger)
	if err := client.ConsumeExpenseEvents(ctx, w.HandleEvent); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", log.FieldError, err.Error())
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker shutdown complete")
}
