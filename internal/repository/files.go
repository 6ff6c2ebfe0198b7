package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/fintrack/receipt-processor/internal/common"
)

// FileRepository stores the original upload bytes so the pipeline can
// re-extract on retry without the caller re-uploading.
type FileRepository interface {
	Store(ctx context.Context, jobID, userID uuid.UUID, content []byte) error
	Fetch(ctx context.Context, jobID, userID uuid.UUID) ([]byte, error)
	Delete(ctx context.Context, jobID, userID uuid.UUID) error
}

type PostgresFileRepository struct {
	querier Querier
	logger  *slog.Logger
}

func NewFileRepository(logger *slog.Logger, db *PostgresDB) FileRepository {
	return &PostgresFileRepository{querier: db.Pool(), logger: logger}
}

func NewFileRepositoryWithQuerier(logger *slog.Logger, q Querier) *PostgresFileRepository {
	return &PostgresFileRepository{querier: q, logger: logger}
}

func (r *PostgresFileRepository) Store(ctx context.Context, jobID, userID uuid.UUID, content []byte) error {
	if len(content) == 0 {
		return fmt.Errorf("%w: file content is empty", common.ErrInvalidInput)
	}
	query := `
		INSERT INTO receipt_files (job_id, user_id, content, created_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := r.querier.Exec(ctx, query, jobID, userID, content, time.Now().UTC())
	if err != nil {
		r.logger.Error("Failed to store file", "job_id", jobID.String(), "size", len(content), "error", err)
		return fmt.Errorf("failed to store file: %w", err)
	}
	return nil
}

func (r *PostgresFileRepository) Fetch(ctx context.Context, jobID, userID uuid.UUID) ([]byte, error) {
	query := `SELECT content FROM receipt_files WHERE job_id = $1 AND user_id = $2`

	var content []byte
	err := r.querier.QueryRow(ctx, query, jobID, userID).Scan(&content)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		r.logger.Error("Failed to fetch file", "job_id", jobID.String(), "error", err)
		return nil, fmt.Errorf("failed to fetch file: %w", err)
	}
	return content, nil
}

func (r *PostgresFileRepository) Delete(ctx context.Context, jobID, userID uuid.UUID) error {
	query := `DELETE FROM receipt_files WHERE job_id = $1 AND user_id = $2`

	tag, err := r.querier.Exec(ctx, query, jobID, userID)
	if err != nil {
		r.logger.Error("Failed to delete file", "job_id", jobID.String(), "error", err)
		return fmt.Errorf("failed to delete file: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrNotFound
	}
	return nil
}
