// Package service is the boundary layer: upload validation, job lifecycle
// operations, and the transaction approval workflow.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fintrack/receipt-processor/constants"
	"github.com/fintrack/receipt-processor/internal/classify"
	"github.com/fintrack/receipt-processor/internal/common"
	"github.com/fintrack/receipt-processor/internal/entity"
	"github.com/fintrack/receipt-processor/internal/expense"
	"github.com/fintrack/receipt-processor/internal/pipeline"
	"github.com/fintrack/receipt-processor/internal/repository"
)

// ReceiptService exposes every operation the HTTP and batch surfaces need.
type ReceiptService struct {
	classifier *classify.Classifier
	jobs       repository.JobRepository
	files      repository.FileRepository
	txs        repository.TransactionRepository
	audit      repository.ProcessingLogRepository
	processor  *pipeline.Processor
	batch      *pipeline.BatchRunner
	expenses   expense.Creator
	logger     *slog.Logger
}

func NewReceiptService(
	classifier *classify.Classifier,
	jobs repository.JobRepository,
	files repository.FileRepository,
	txs repository.TransactionRepository,
	audit repository.ProcessingLogRepository,
	processor *pipeline.Processor,
	batch *pipeline.BatchRunner,
	expenses expense.Creator,
	logger *slog.Logger,
) *ReceiptService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReceiptService{
		classifier: classifier,
		jobs:       jobs,
		files:      files,
		txs:        txs,
		audit:      audit,
		processor:  processor,
		batch:      batch,
		expenses:   expenses,
		logger:     logger,
	}
}

// CreateJob validates an upload and persists the job plus the original
// bytes. Validation failures create no state.
func (s *ReceiptService) CreateJob(ctx context.Context, userID uuid.UUID, originalFilename, mimeType string, content []byte) (*entity.Job, error) {
	if _, err := s.classifier.Classify(originalFilename, int64(len(content))); err != nil {
		return nil, err
	}
	ext := constants.NormalizeExt(filepath.Ext(originalFilename))
	if err := s.classifier.ValidateContent(content, ext); err != nil {
		return nil, err
	}

	job, err := entity.NewJob(userID, originalFilename, content, ext, mimeType)
	if err != nil {
		return nil, err
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, err
	}
	if err := s.files.Store(ctx, job.ID, job.UserID, content); err != nil {
		// The job row without its bytes is unprocessable and would be
		// re-claimed by every batch run; undo the upload entirely.
		s.logger.Error("service.upload.store_failed", "job_id", job.ID.String(), "error", err)
		if derr := s.jobs.Delete(ctx, job.ID); derr != nil {
			s.logger.Error("service.upload.delete_error", "job_id", job.ID.String(), "error", derr)
		}
		return nil, err
	}

	s.appendAudit(ctx, entity.NewLogEntry(job.ID, "upload", entity.StepCompleted, "file accepted").
		WithMetadata(map[string]any{
			"original_filename": job.OriginalFilename,
			"file_type":         job.FileType,
			"file_size":         job.FileSize,
			"checksum":          job.Checksum,
		}))
	s.logger.Info("service.upload.ok", "job_id", job.ID.String(), "file_type", job.FileType, "size", job.FileSize)
	return job, nil
}

// ProcessJob runs the pipeline for one job synchronously.
func (s *ReceiptService) ProcessJob(ctx context.Context, jobID, userID uuid.UUID) (*entity.Job, error) {
	job, err := s.jobs.GetByID(ctx, jobID, userID)
	if err != nil {
		return nil, err
	}
	if job.Status != constants.JobStatusUploaded {
		return nil, fmt.Errorf("%w: job %s is %s, expected %s",
			common.ErrInvalidTransition, jobID, job.Status, constants.JobStatusUploaded)
	}
	if err := s.processor.Process(ctx, job); err != nil {
		// The job row now carries the failure; return it with the error.
		if failed, gerr := s.jobs.GetByID(ctx, jobID, userID); gerr == nil {
			return failed, err
		}
		return nil, err
	}
	return s.jobs.GetByID(ctx, jobID, userID)
}

// ProcessBatch drains pending uploads through the worker pool.
func (s *ReceiptService) ProcessBatch(ctx context.Context, limit int) (pipeline.BatchResult, error) {
	return s.batch.Run(ctx, limit)
}

func (s *ReceiptService) GetJob(ctx context.Context, jobID, userID uuid.UUID) (*entity.Job, error) {
	return s.jobs.GetByID(ctx, jobID, userID)
}

func (s *ReceiptService) ListJobs(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*entity.Job, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.jobs.List(ctx, userID, limit, offset)
}

// GetJobAudit returns the full audit trail for a job the user owns.
func (s *ReceiptService) GetJobAudit(ctx context.Context, jobID, userID uuid.UUID) ([]*entity.ProcessingLogEntry, error) {
	if _, err := s.jobs.GetByID(ctx, jobID, userID); err != nil {
		return nil, err
	}
	return s.audit.ListByJob(ctx, jobID)
}

// ResetJob moves a FAILED job back to UPLOADED for another attempt.
func (s *ReceiptService) ResetJob(ctx context.Context, jobID, userID uuid.UUID) (*entity.Job, error) {
	if err := s.jobs.Reset(ctx, jobID, userID); err != nil {
		return nil, err
	}
	s.appendAudit(ctx, entity.NewLogEntry(jobID, "reset", entity.StepCompleted, "job reset for retry"))
	return s.jobs.GetByID(ctx, jobID, userID)
}

func (s *ReceiptService) GetPendingTransactions(ctx context.Context, userID uuid.UUID, limit int) ([]*entity.Transaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.txs.GetPending(ctx, userID, limit)
}

// ApproveTransaction approves a pending transaction and then attempts the
// downstream expense creation. A failed expense call leaves the transaction
// APPROVED so the export can be retried.
func (s *ReceiptService) ApproveTransaction(ctx context.Context, txID, userID uuid.UUID) (*entity.Transaction, error) {
	if err := s.txs.Approve(ctx, txID, userID); err != nil {
		return nil, err
	}
	tx, err := s.txs.GetByID(ctx, txID, userID)
	if err != nil {
		return nil, err
	}
	s.appendAudit(ctx, entity.NewLogEntry(tx.JobID, "approve", entity.StepCompleted, "transaction approved").
		WithTransaction(txID))

	if s.expenses != nil {
		if tx, err = s.exportExpense(ctx, tx); err != nil {
			s.logger.Warn("service.expense.deferred", "transaction_id", txID.String(), "error", err)
		}
	}
	return tx, nil
}

// ExportExpense retries expense creation for an already approved
// transaction.
func (s *ReceiptService) ExportExpense(ctx context.Context, txID, userID uuid.UUID) (*entity.Transaction, error) {
	tx, err := s.txs.GetByID(ctx, txID, userID)
	if err != nil {
		return nil, err
	}
	if tx.Status != constants.TxStatusApproved {
		return nil, fmt.Errorf("%w: transaction %s is %s, expected %s",
			common.ErrInvalidTransition, txID, tx.Status, constants.TxStatusApproved)
	}
	tx, err = s.exportExpense(ctx, tx)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

func (s *ReceiptService) exportExpense(ctx context.Context, tx *entity.Transaction) (*entity.Transaction, error) {
	expenseID, err := s.expenses.CreateExpense(ctx, tx)
	if err != nil {
		s.appendAudit(ctx, entity.NewLogEntry(tx.JobID, "expense", entity.StepFailed, "expense creation failed").
			WithTransaction(tx.ID).WithError(err))
		return tx, err
	}
	if err := s.txs.MarkExpenseCreated(ctx, tx.ID, tx.UserID, expenseID); err != nil {
		return tx, err
	}
	s.appendAudit(ctx, entity.NewLogEntry(tx.JobID, "expense", entity.StepCompleted, "expense created").
		WithTransaction(tx.ID).
		WithMetadata(map[string]any{"expense_id": expenseID}))
	return s.txs.GetByID(ctx, tx.ID, tx.UserID)
}

// RejectTransaction rejects a pending transaction. The reason is required
// and kept for the audit trail.
func (s *ReceiptService) RejectTransaction(ctx context.Context, txID, userID uuid.UUID, reason string) (*entity.Transaction, error) {
	reason = strings.TrimSpace(reason)
	if err := s.txs.Reject(ctx, txID, userID, reason); err != nil {
		return nil, err
	}
	tx, err := s.txs.GetByID(ctx, txID, userID)
	if err != nil {
		return nil, err
	}
	s.appendAudit(ctx, entity.NewLogEntry(tx.JobID, "reject", entity.StepCompleted, "transaction rejected").
		WithTransaction(txID).
		WithMetadata(map[string]any{"reason": reason}))
	return tx, nil
}

// PurgeAudit removes audit entries older than the retention window.
func (s *ReceiptService) PurgeAudit(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		retentionDays = 30
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	return s.audit.PurgeOlderThan(ctx, cutoff)
}

func (s *ReceiptService) appendAudit(ctx context.Context, entry *entity.ProcessingLogEntry) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Append(ctx, entry); err != nil {
		s.logger.Warn("service.audit.append_failed", "step", entry.Step, "error", err)
	}
}
