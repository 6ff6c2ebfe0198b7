// receipt-batch drains pending uploads through the pipeline and runs the
// audit retention sweep. Intended for cron.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fintrack/receipt-processor/internal/app"
	"github.com/fintrack/receipt-processor/internal/config"
	"github.com/fintrack/receipt-processor/internal/logger"
)

func main() {
	var (
		limit = flag.Int("limit", 20, "maximum number of jobs to process in this run")
		purge = flag.Bool("purge-audit", false, "also purge audit entries past the retention window")
	)
	flag.Parse()

	cfg, err := config.LoadConfig("receiptproc")
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(cfg)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error("Failed to initialize application", "error", err)
		os.Exit(1)
	}
	defer application.Close(context.Background())

	res, err := application.Service.ProcessBatch(ctx, *limit)
	if err != nil {
		log.Error("Batch run failed", "error", err)
		os.Exit(1)
	}
	log.Info("Batch run finished",
		"total", res.Total,
		"succeeded", res.Succeeded,
		"failed", res.Failed,
		"duration_ms", res.Duration.Milliseconds())

	if *purge {
		removed, err := application.Service.PurgeAudit(ctx, cfg.Pipeline.AuditRetentionDays)
		if err != nil {
			log.Error("Audit purge failed", "error", err)
			os.Exit(1)
		}
		log.Info("Audit purge finished", "removed", removed)
	}

	if res.Failed > 0 {
		os.Exit(1)
	}
}
