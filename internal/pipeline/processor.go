// Package pipeline orchestrates a receipt job through its stages:
// extraction, structuring, and batch persistence. The job row is the state
// machine; every stage attempt leaves an audit entry.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/fintrack/receipt-processor/internal/common"
	"github.com/fintrack/receipt-processor/internal/config"
	"github.com/fintrack/receipt-processor/internal/entity"
	"github.com/fintrack/receipt-processor/internal/extract"
	"github.com/fintrack/receipt-processor/internal/llm"
	"github.com/fintrack/receipt-processor/internal/repository"
)

// Audit step names.
const (
	StepPipeline  = "pipeline"
	StepExtract   = "extract"
	StepStructure = "structure"
	StepPersist   = "persist"
)

// Processor runs one job end to end. It is safe for concurrent use; each
// job works on its own temp file and its own rows.
type Processor struct {
	cfg       config.PipelineConfig
	jobs      repository.JobRepository
	files     repository.FileRepository
	txs       repository.TransactionRepository
	audit     repository.ProcessingLogRepository
	extractor extract.TextExtractor
	engine    llm.Structurer
	logger    *slog.Logger
}

func NewProcessor(
	cfg config.PipelineConfig,
	jobs repository.JobRepository,
	files repository.FileRepository,
	txs repository.TransactionRepository,
	audit repository.ProcessingLogRepository,
	extractor extract.TextExtractor,
	engine llm.Structurer,
	logger *slog.Logger,
) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		cfg:       cfg,
		jobs:      jobs,
		files:     files,
		txs:       txs,
		audit:     audit,
		extractor: extractor,
		engine:    engine,
		logger:    logger,
	}
}

// Process drives a job from UPLOADED to COMPLETED. On any stage failure the
// job is moved to FAILED with the failure message; the original file and
// audit trail are kept so the job can be reset and retried.
func (p *Processor) Process(ctx context.Context, job *entity.Job) error {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.ProcessTimeout)
	defer cancel()

	start := time.Now()
	log := p.logger.With("job_id", job.ID.String())

	if err := p.jobs.MarkProcessing(ctx, job.ID); err != nil {
		return fmt.Errorf("claim job: %w", err)
	}
	p.appendAudit(ctx, entity.NewLogEntry(job.ID, StepPipeline, entity.StepStarted, "processing started").
		WithMetadata(map[string]any{"file_type": job.FileType, "file_size": job.FileSize, "retry_count": job.RetryCount}))

	extraction, err := p.runExtraction(ctx, job, log)
	if err != nil {
		return p.fail(ctx, job.ID, StepExtract, start, err)
	}

	if err := p.jobs.SaveExtraction(ctx, job.ID, extraction); err != nil {
		return p.fail(ctx, job.ID, StepExtract, start, err)
	}

	structuring, err := p.runStructuring(ctx, job, extraction, log)
	if err != nil {
		return p.fail(ctx, job.ID, StepStructure, start, err)
	}

	if err := p.persistBatch(ctx, job, structuring); err != nil {
		return p.fail(ctx, job.ID, StepPersist, start, err)
	}

	p.appendAudit(ctx, entity.NewLogEntry(job.ID, StepPipeline, entity.StepCompleted, "processing completed").
		WithDuration(time.Since(start)).
		WithMetadata(map[string]any{
			"transactions": len(structuring.Candidates),
			"provider":     structuring.Provider,
			"method":       extraction.Method,
		}))
	log.Info("pipeline.job.ok",
		"duration_ms", time.Since(start).Milliseconds(),
		"transactions", len(structuring.Candidates),
		"method", extraction.Method,
		"provider", structuring.Provider)
	return nil
}

func (p *Processor) runExtraction(ctx context.Context, job *entity.Job, log *slog.Logger) (entity.ExtractionResult, error) {
	p.appendAudit(ctx, entity.NewLogEntry(job.ID, StepExtract, entity.StepStarted, "text extraction started"))

	content, err := p.files.Fetch(ctx, job.ID, job.UserID)
	if err != nil {
		return entity.ExtractionResult{}, fmt.Errorf("fetch file: %w", err)
	}

	path, cleanup, err := p.tempFile(job, content)
	if err != nil {
		return entity.ExtractionResult{}, err
	}
	defer cleanup()

	extractCtx, cancel := context.WithTimeout(ctx, p.cfg.ExtractionTimeout)
	defer cancel()

	res, err := p.extractor.Extract(extractCtx, extract.Input{
		Path:    path,
		Content: content,
		Ext:     job.FileType,
	})
	if err != nil {
		p.appendAudit(ctx, entity.NewLogEntry(job.ID, StepExtract, entity.StepFailed, "text extraction failed").WithError(err))
		return entity.ExtractionResult{}, fmt.Errorf("%w: %v", common.ErrExtractionFailed, err)
	}
	if res.Text == "" {
		err := common.NewValidationError(common.CodeUnreadableContent, "no text could be extracted from the file", nil)
		p.appendAudit(ctx, entity.NewLogEntry(job.ID, StepExtract, entity.StepFailed, "text extraction failed").WithError(err))
		return entity.ExtractionResult{}, err
	}

	p.appendAudit(ctx, entity.NewLogEntry(job.ID, StepExtract, entity.StepCompleted, "text extraction completed").
		WithDuration(res.Duration).
		WithMetadata(map[string]any{
			"method":     res.Method,
			"confidence": res.Confidence,
			"pages":      res.Pages,
			"chars":      len(res.Text),
			"warnings":   res.Warnings,
		}))
	log.Info("pipeline.extract.ok", "method", res.Method, "confidence", res.Confidence, "chars", len(res.Text))
	return res, nil
}

func (p *Processor) runStructuring(ctx context.Context, job *entity.Job, extraction entity.ExtractionResult, log *slog.Logger) (entity.StructuringResult, error) {
	p.appendAudit(ctx, entity.NewLogEntry(job.ID, StepStructure, entity.StepStarted, "structuring started"))

	structCtx, cancel := context.WithTimeout(ctx, p.cfg.StructuringTimeout)
	defer cancel()

	res, err := p.engine.Structure(structCtx, llm.StructureRequest{
		JobID:                job.ID,
		Text:                 extraction.Text,
		Filename:             job.OriginalFilename,
		ExtractionConfidence: extraction.Confidence,
		ExtractionMethod:     extraction.Method,
	})
	if err != nil {
		p.appendAudit(ctx, entity.NewLogEntry(job.ID, StepStructure, entity.StepFailed, "structuring failed").WithError(err))
		return entity.StructuringResult{}, err
	}

	p.appendAudit(ctx, entity.NewLogEntry(job.ID, StepStructure, entity.StepCompleted, "structuring completed").
		WithDuration(res.Duration).
		WithMetadata(map[string]any{
			"provider":   res.Provider,
			"candidates": len(res.Candidates),
			"confidence": res.OverallConfidence,
		}))
	log.Info("pipeline.structure.ok", "provider", res.Provider, "candidates", len(res.Candidates))
	return res, nil
}

func (p *Processor) persistBatch(ctx context.Context, job *entity.Job, structuring entity.StructuringResult) error {
	batch, err := entity.NewTransactionBatch(job.ID, job.UserID, structuring.Candidates, p.cfg.MaxTransactionsPerFile)
	if err != nil {
		return err
	}
	if err := p.txs.CreateBatch(ctx, job.ID, batch, structuring.Provider, structuring.Duration.Milliseconds()); err != nil {
		return err
	}
	p.appendAudit(ctx, entity.NewLogEntry(job.ID, StepPersist, entity.StepCompleted, "transaction batch persisted").
		WithMetadata(map[string]any{"count": len(batch)}))
	return nil
}

// fail records the terminal failure on both the job row and the audit
// trail, then returns the original error.
func (p *Processor) fail(ctx context.Context, jobID uuid.UUID, step string, start time.Time, cause error) error {
	// Deadline expiry on ctx must not block the failure bookkeeping.
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
	}

	msg := failureMessage(cause)
	if err := p.jobs.MarkFailed(ctx, jobID, msg); err != nil {
		p.logger.Error("pipeline.mark_failed.error", "job_id", jobID.String(), "error", err)
	}
	p.appendAudit(ctx, entity.NewLogEntry(jobID, step, entity.StepFailed, msg).
		WithDuration(time.Since(start)).
		WithError(cause))
	p.logger.Error("pipeline.job.failed", "job_id", jobID.String(), "step", step, "error", cause)
	return cause
}

// failureMessage keeps the user-visible error short and stable.
func failureMessage(err error) string {
	switch {
	case errors.Is(err, common.ErrNoTransactions):
		return "no transactions could be identified in this file"
	case errors.Is(err, common.ErrStructuringFailed):
		return "transaction structuring failed"
	case errors.Is(err, common.ErrExtractionFailed):
		return "text extraction failed"
	case errors.Is(err, context.DeadlineExceeded):
		return "processing timed out"
	default:
		var verr *common.ValidationError
		if errors.As(err, &verr) {
			return verr.Message
		}
		return err.Error()
	}
}

// tempFile writes the upload bytes to a job-scoped scratch file for
// strategies that shell out to external binaries.
func (p *Processor) tempFile(job *entity.Job, content []byte) (string, func(), error) {
	dir := p.cfg.TempDir
	if dir == "" {
		dir = os.TempDir()
	}
	path := filepath.Join(dir, job.Filename)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		return "", nil, fmt.Errorf("write temp file: %w", err)
	}
	return path, func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			p.logger.Warn("pipeline.temp.cleanup_failed", "path", path, "error", err)
		}
	}, nil
}

// appendAudit tolerates audit store outages; the pipeline never fails a
// job because the trail could not be written.
func (p *Processor) appendAudit(ctx context.Context, entry *entity.ProcessingLogEntry) {
	if p.audit == nil {
		return
	}
	if err := p.audit.Append(ctx, entry); err != nil {
		p.logger.Warn("pipeline.audit.append_failed", "step", entry.Step, "error", err)
	}
}
