package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/fintrack/receipt-processor/constants"
	"github.com/fintrack/receipt-processor/internal/common"
	"github.com/fintrack/receipt-processor/internal/entity"
)

// JobRepository is the persisted job state machine. The orchestrator is the
// only writer of extraction fields; forward-only transitions are enforced
// in SQL by guarding on the expected current status.
type JobRepository interface {
	Create(ctx context.Context, job *entity.Job) error
	GetByID(ctx context.Context, id, userID uuid.UUID) (*entity.Job, error)
	List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*entity.Job, error)
	ListByStatus(ctx context.Context, status constants.JobStatus, limit int) ([]*entity.Job, error)
	MarkProcessing(ctx context.Context, id uuid.UUID) error
	SaveExtraction(ctx context.Context, id uuid.UUID, res entity.ExtractionResult) error
	MarkFailed(ctx context.Context, id uuid.UUID, message string) error
	Reset(ctx context.Context, id, userID uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
}

const jobColumns = `id, user_id, filename, original_filename, file_size, file_type, mime_type,
		checksum, status, error_message, retry_count, ocr_text, ocr_confidence,
		extraction_method, ai_provider, ai_processing_ms,
		total_transactions, processed_transactions, approved_transactions,
		created_at, updated_at, processing_started_at, processing_completed_at`

// PostgresJobRepository implements JobRepository for PostgreSQL.
type PostgresJobRepository struct {
	querier Querier
	logger  *slog.Logger
}

func NewJobRepository(logger *slog.Logger, db *PostgresDB) JobRepository {
	return &PostgresJobRepository{querier: db.Pool(), logger: logger}
}

// NewJobRepositoryWithQuerier wires an explicit querier; used by tests and
// by stores that share a transaction.
func NewJobRepositoryWithQuerier(logger *slog.Logger, q Querier) *PostgresJobRepository {
	return &PostgresJobRepository{querier: q, logger: logger}
}

func (r *PostgresJobRepository) Create(ctx context.Context, job *entity.Job) error {
	query := `
		INSERT INTO receipt_jobs (id, user_id, filename, original_filename, file_size, file_type,
			mime_type, checksum, status, retry_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := r.querier.Exec(ctx, query,
		job.ID, job.UserID, job.Filename, job.OriginalFilename, job.FileSize,
		job.FileType, job.MimeType, job.Checksum, string(job.Status),
		job.RetryCount, job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create job", "job_id", job.ID.String(), "error", err)
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

func (r *PostgresJobRepository) GetByID(ctx context.Context, id, userID uuid.UUID) (*entity.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM receipt_jobs WHERE id = $1 AND user_id = $2`

	job, err := scanJob(r.querier.QueryRow(ctx, query, id, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		r.logger.Error("Failed to get job", "job_id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

func (r *PostgresJobRepository) List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*entity.Job, error) {
	query := `SELECT ` + jobColumns + `
		FROM receipt_jobs WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.querier.Query(ctx, query, userID, limit, offset)
	if err != nil {
		r.logger.Error("Failed to list jobs", "user_id", userID.String(), "error", err)
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()
	return scanJobs(rows)
}

func (r *PostgresJobRepository) ListByStatus(ctx context.Context, status constants.JobStatus, limit int) ([]*entity.Job, error) {
	query := `SELECT ` + jobColumns + `
		FROM receipt_jobs WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2`

	rows, err := r.querier.Query(ctx, query, string(status), limit)
	if err != nil {
		r.logger.Error("Failed to list jobs by status", "status", status, "error", err)
		return nil, fmt.Errorf("failed to list jobs by status: %w", err)
	}
	defer rows.Close()
	return scanJobs(rows)
}

// MarkProcessing transitions UPLOADED -> PROCESSING and stamps the start
// time. A zero-row update means the job was not UPLOADED.
func (r *PostgresJobRepository) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE receipt_jobs
		SET status = $2, processing_started_at = $3, error_message = NULL, updated_at = $3
		WHERE id = $1 AND status = $4
	`
	tag, err := r.querier.Exec(ctx, query, id,
		string(constants.JobStatusProcessing), time.Now().UTC(), string(constants.JobStatusUploaded))
	if err != nil {
		r.logger.Error("Failed to mark job processing", "job_id", id.String(), "error", err)
		return fmt.Errorf("failed to mark job processing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: job %s is not in %s", common.ErrInvalidTransition, id, constants.JobStatusUploaded)
	}
	return nil
}

// SaveExtraction persists the stage-1 artifacts and transitions
// PROCESSING -> OCR_COMPLETED.
func (r *PostgresJobRepository) SaveExtraction(ctx context.Context, id uuid.UUID, res entity.ExtractionResult) error {
	query := `
		UPDATE receipt_jobs
		SET status = $2, ocr_text = $3, ocr_confidence = $4, extraction_method = $5, updated_at = $6
		WHERE id = $1 AND status = $7
	`
	tag, err := r.querier.Exec(ctx, query, id,
		string(constants.JobStatusOCRCompleted), res.Text, res.Confidence, res.Method,
		time.Now().UTC(), string(constants.JobStatusProcessing))
	if err != nil {
		r.logger.Error("Failed to save extraction", "job_id", id.String(), "error", err)
		return fmt.Errorf("failed to save extraction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: job %s is not in %s", common.ErrInvalidTransition, id, constants.JobStatusProcessing)
	}
	return nil
}

// MarkFailed transitions any in-flight state to FAILED with the captured
// error message.
func (r *PostgresJobRepository) MarkFailed(ctx context.Context, id uuid.UUID, message string) error {
	query := `
		UPDATE receipt_jobs
		SET status = $2, error_message = $3, processing_completed_at = $4, updated_at = $4
		WHERE id = $1 AND status IN ($5, $6)
	`
	tag, err := r.querier.Exec(ctx, query, id,
		string(constants.JobStatusFailed), message, time.Now().UTC(),
		string(constants.JobStatusProcessing), string(constants.JobStatusOCRCompleted))
	if err != nil {
		r.logger.Error("Failed to mark job failed", "job_id", id.String(), "error", err)
		return fmt.Errorf("failed to mark job failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: job %s is not in flight", common.ErrInvalidTransition, id)
	}
	return nil
}

// Reset returns a FAILED job to UPLOADED for a manual retry, incrementing
// the retry counter and clearing the stale extraction artifacts.
func (r *PostgresJobRepository) Reset(ctx context.Context, id, userID uuid.UUID) error {
	query := `
		UPDATE receipt_jobs
		SET status = $3, retry_count = retry_count + 1, error_message = NULL,
			ocr_text = NULL, ocr_confidence = 0, extraction_method = NULL,
			processing_started_at = NULL, processing_completed_at = NULL, updated_at = $4
		WHERE id = $1 AND user_id = $2 AND status = $5
	`
	tag, err := r.querier.Exec(ctx, query, id, userID,
		string(constants.JobStatusUploaded), time.Now().UTC(), string(constants.JobStatusFailed))
	if err != nil {
		r.logger.Error("Failed to reset job", "job_id", id.String(), "error", err)
		return fmt.Errorf("failed to reset job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: job %s is not %s", common.ErrInvalidTransition, id, constants.JobStatusFailed)
	}
	return nil
}

// Delete removes a job row entirely. Used to undo an upload whose bytes
// never made it into the file store; dependent rows go with it via the
// cascading foreign keys.
func (r *PostgresJobRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.querier.Exec(ctx, `DELETE FROM receipt_jobs WHERE id = $1`, id)
	if err != nil {
		r.logger.Error("Failed to delete job", "job_id", id.String(), "error", err)
		return fmt.Errorf("failed to delete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: job %s", common.ErrNotFound, id)
	}
	return nil
}

func scanJob(row pgx.Row) (*entity.Job, error) {
	var j entity.Job
	var status string
	var errMsg, ocrText, method, provider *string
	err := row.Scan(
		&j.ID, &j.UserID, &j.Filename, &j.OriginalFilename, &j.FileSize, &j.FileType,
		&j.MimeType, &j.Checksum, &status, &errMsg, &j.RetryCount, &ocrText,
		&j.OCRConfidence, &method, &provider, &j.AIProcessingMS,
		&j.TotalTransactions, &j.ProcessedTransactions, &j.ApprovedTransactions,
		&j.CreatedAt, &j.UpdatedAt, &j.ProcessingStartedAt, &j.ProcessingCompletedAt,
	)
	if err != nil {
		return nil, err
	}
	j.Status = constants.JobStatus(status)
	if errMsg != nil {
		j.ErrorMessage = *errMsg
	}
	if ocrText != nil {
		j.OCRText = *ocrText
	}
	if method != nil {
		j.ExtractionMethod = *method
	}
	if provider != nil {
		j.AIProvider = *provider
	}
	return &j, nil
}

func scanJobs(rows pgx.Rows) ([]*entity.Job, error) {
	var out []*entity.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job row: %w", err)
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("job rows: %w", err)
	}
	return out, nil
}
