// Package app wires the full dependency graph for the binaries.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fintrack/receipt-processor/internal/classify"
	"github.com/fintrack/receipt-processor/internal/config"
	"github.com/fintrack/receipt-processor/internal/expense"
	"github.com/fintrack/receipt-processor/internal/extract"
	"github.com/fintrack/receipt-processor/internal/llm"
	"github.com/fintrack/receipt-processor/internal/llm/ollama"
	"github.com/fintrack/receipt-processor/internal/llm/openai"
	"github.com/fintrack/receipt-processor/internal/ocr"
	"github.com/fintrack/receipt-processor/internal/pipeline"
	"github.com/fintrack/receipt-processor/internal/repository"
	"github.com/fintrack/receipt-processor/internal/service"
)

// App holds the constructed dependency graph and its closable resources.
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Service *service.ReceiptService

	postgres *repository.PostgresDB
	mongo    *repository.MongoDB
}

// New builds the graph: stores, extraction strategies, the structuring
// engine, the pipeline, and the boundary service.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	postgres, err := repository.NewPostgresDB(ctx, logger, &cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	mongo, err := repository.NewMongoDB(ctx, logger, cfg.MongoDB)
	if err != nil {
		postgres.Close()
		return nil, fmt.Errorf("mongodb: %w", err)
	}

	jobs := repository.NewJobRepository(logger, postgres)
	files := repository.NewFileRepository(logger, postgres)
	txs := repository.NewTransactionRepository(logger, postgres)
	audit := repository.NewProcessingLogRepository(logger, mongo)

	runner := ocr.ExecRunner{}
	engine := ocr.NewTesseract(ocr.Config{
		Tesseract: cfg.OCR.Tesseract,
		PSM:       cfg.OCR.PSM,
	}, runner, logger)

	imageExtractor := extract.NewImageExtractor(extract.ImageConfig{
		Languages: cfg.OCR.Languages,
		TempDir:   cfg.Pipeline.TempDir,
	}, engine, logger)
	pdfExtractor := extract.NewPDFExtractor(extract.PDFConfig{
		Pdftotext:     cfg.OCR.Pdftotext,
		MinTextLength: cfg.Pipeline.MinTextLength,
		MaxPages:      cfg.Pipeline.MaxPDFPages,
	}, runner, imageExtractor, logger)
	documentExtractor := extract.NewDocumentExtractor(extract.DocumentConfig{
		MaxRows: cfg.Pipeline.MaxDocumentRows,
	}, logger)
	router := extract.NewRouter(imageExtractor, pdfExtractor, documentExtractor)

	primary := openai.NewClient(openai.Config{
		APIKey:      cfg.Provider.Primary.APIKey,
		BaseURL:     cfg.Provider.Primary.BaseURL,
		Model:       cfg.Provider.Primary.Model,
		Temperature: cfg.Provider.Primary.Temperature,
		Timeout:     cfg.Provider.Primary.Timeout,
	}, logger)

	var backup llm.Provider
	if cfg.Provider.Backup.Enabled {
		backup = ollama.NewClient(ollama.Config{
			BaseURL: cfg.Provider.Backup.BaseURL,
			Model:   cfg.Provider.Backup.Model,
			Timeout: cfg.Provider.Backup.Timeout,
		}, logger)
	}
	structurer := llm.NewEngine(llm.EngineConfig{
		MaxTransactions: cfg.Pipeline.MaxTransactionsPerFile,
	}, primary, backup, logger)

	classifier := classify.NewClassifier(classify.Config{
		MaxImageBytes:          cfg.Pipeline.MaxImageBytes,
		MaxPDFBytes:            cfg.Pipeline.MaxPDFBytes,
		MaxDocumentBytes:       cfg.Pipeline.MaxDocumentBytes,
		MaxPDFPages:            cfg.Pipeline.MaxPDFPages,
		MaxTransactionsPerFile: cfg.Pipeline.MaxTransactionsPerFile,
	}, logger)

	processor := pipeline.NewProcessor(cfg.Pipeline, jobs, files, txs, audit, router, structurer, logger)
	batch := pipeline.NewBatchRunner(processor, jobs, cfg.Pipeline.ConcurrentLimit, logger)
	expenses := expense.NewClient(cfg.Expense, logger)

	svc := service.NewReceiptService(classifier, jobs, files, txs, audit, processor, batch, expenses, logger)

	return &App{
		Config:   cfg,
		Logger:   logger,
		Service:  svc,
		postgres: postgres,
		mongo:    mongo,
	}, nil
}

// Close releases the database handles.
func (a *App) Close(ctx context.Context) {
	if a.mongo != nil {
		if err := a.mongo.Close(ctx); err != nil {
			a.Logger.Error("Failed to close MongoDB", "error", err)
		}
	}
	if a.postgres != nil {
		a.postgres.Close()
	}
}
