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

// TransactionRepository owns the transaction rows and the job counter
// invariant: every mutation recomputes the parent job's counters in the
// same SQL transaction.
type TransactionRepository interface {
	// CreateBatch atomically inserts the full batch, stamps the structuring
	// artifacts on the job, recomputes counters and transitions the job
	// OCR_COMPLETED -> COMPLETED. Partial batches are never visible.
	CreateBatch(ctx context.Context, jobID uuid.UUID, txs []*entity.Transaction, provider string, processingMS int64) error
	GetByID(ctx context.Context, id, userID uuid.UUID) (*entity.Transaction, error)
	GetPending(ctx context.Context, userID uuid.UUID, limit int) ([]*entity.Transaction, error)
	Approve(ctx context.Context, id, userID uuid.UUID) error
	Reject(ctx context.Context, id, userID uuid.UUID, reason string) error
	MarkExpenseCreated(ctx context.Context, id, userID uuid.UUID, expenseID string) error
}

const txColumns = `id, job_id, user_id, seq, amount, currency_code, merchant_name, description,
		tx_date, category_suggestion, confidence, raw_snippet, status, rejection_reason,
		expense_id, created_at, updated_at`

const insertTxQuery = `
		INSERT INTO receipt_transactions (id, job_id, user_id, seq, amount, currency_code,
			merchant_name, description, tx_date, category_suggestion, confidence,
			raw_snippet, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

// recountJobQuery recomputes the denormalized counters from the child rows.
const recountJobQuery = `
		UPDATE receipt_jobs SET
			total_transactions = (SELECT COUNT(*) FROM receipt_transactions WHERE job_id = $1),
			processed_transactions = (SELECT COUNT(*) FROM receipt_transactions WHERE job_id = $1 AND status <> 'PENDING'),
			approved_transactions = (SELECT COUNT(*) FROM receipt_transactions WHERE job_id = $1 AND status IN ('APPROVED', 'EXPENSE_CREATED')),
			updated_at = $2
		WHERE id = $1
	`

// promoteJobQuery moves a COMPLETED job to APPROVED once every transaction
// has left PENDING.
const promoteJobQuery = `
		UPDATE receipt_jobs SET status = 'APPROVED', updated_at = $2
		WHERE id = $1 AND status = 'COMPLETED'
		  AND total_transactions > 0 AND processed_transactions = total_transactions
	`

// PostgresTransactionRepository implements TransactionRepository.
type PostgresTransactionRepository struct {
	db     TxQuerier
	logger *slog.Logger
}

func NewTransactionRepository(logger *slog.Logger, db *PostgresDB) TransactionRepository {
	return &PostgresTransactionRepository{db: db.Pool(), logger: logger}
}

// NewTransactionRepositoryWithQuerier wires an explicit querier; used by
// tests.
func NewTransactionRepositoryWithQuerier(logger *slog.Logger, db TxQuerier) *PostgresTransactionRepository {
	return &PostgresTransactionRepository{db: db, logger: logger}
}

func (r *PostgresTransactionRepository) CreateBatch(ctx context.Context, jobID uuid.UUID, txs []*entity.Transaction, provider string, processingMS int64) error {
	if len(txs) == 0 {
		return fmt.Errorf("transaction batch is empty")
	}

	dbTx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer func() {
		_ = dbTx.Rollback(ctx)
	}()

	now := time.Now().UTC()
	for _, t := range txs {
		_, err := dbTx.Exec(ctx, insertTxQuery,
			t.ID, t.JobID, t.UserID, t.Seq, t.Amount, t.CurrencyCode,
			t.MerchantName, t.Description, t.TxDate, t.CategorySuggestion,
			t.Confidence, t.RawSnippet, string(t.Status), t.CreatedAt, t.UpdatedAt,
		)
		if err != nil {
			r.logger.Error("Failed to insert transaction", "job_id", jobID.String(), "seq", t.Seq, "error", err)
			return fmt.Errorf("failed to insert transaction %d: %w", t.Seq, err)
		}
	}

	completeQuery := `
		UPDATE receipt_jobs SET
			status = $2, ai_provider = $3, ai_processing_ms = $4,
			total_transactions = $5, processed_transactions = 0, approved_transactions = 0,
			processing_completed_at = $6, updated_at = $6
		WHERE id = $1 AND status = $7
	`
	tag, err := dbTx.Exec(ctx, completeQuery, jobID,
		string(constants.JobStatusCompleted), provider, processingMS,
		len(txs), now, string(constants.JobStatusOCRCompleted))
	if err != nil {
		r.logger.Error("Failed to complete job", "job_id", jobID.String(), "error", err)
		return fmt.Errorf("failed to complete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: job %s is not in %s", common.ErrInvalidTransition, jobID, constants.JobStatusOCRCompleted)
	}

	if err := dbTx.Commit(ctx); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

func (r *PostgresTransactionRepository) GetByID(ctx context.Context, id, userID uuid.UUID) (*entity.Transaction, error) {
	query := `SELECT ` + txColumns + ` FROM receipt_transactions WHERE id = $1 AND user_id = $2`

	t, err := scanTransaction(r.db.QueryRow(ctx, query, id, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		r.logger.Error("Failed to get transaction", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return t, nil
}

// GetPending serves the sequential approval workflow: pending transactions
// in ascending (job, seq) order.
func (r *PostgresTransactionRepository) GetPending(ctx context.Context, userID uuid.UUID, limit int) ([]*entity.Transaction, error) {
	query := `SELECT ` + txColumns + `
		FROM receipt_transactions
		WHERE user_id = $1 AND status = 'PENDING'
		ORDER BY job_id ASC, seq ASC
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, userID, limit)
	if err != nil {
		r.logger.Error("Failed to get pending transactions", "user_id", userID.String(), "error", err)
		return nil, fmt.Errorf("failed to get pending transactions: %w", err)
	}
	defer rows.Close()

	var out []*entity.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction row: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("transaction rows: %w", err)
	}
	return out, nil
}

func (r *PostgresTransactionRepository) Approve(ctx context.Context, id, userID uuid.UUID) error {
	query := `
		UPDATE receipt_transactions
		SET status = 'APPROVED', updated_at = $3
		WHERE id = $1 AND user_id = $2 AND status = 'PENDING'
		RETURNING job_id
	`
	return r.mutateAndRecount(ctx, id, "approve", query, id, userID, time.Now().UTC())
}

func (r *PostgresTransactionRepository) Reject(ctx context.Context, id, userID uuid.UUID, reason string) error {
	if reason == "" {
		return fmt.Errorf("%w: rejection requires a reason", common.ErrInvalidInput)
	}
	query := `
		UPDATE receipt_transactions
		SET status = 'REJECTED', rejection_reason = $3, updated_at = $4
		WHERE id = $1 AND user_id = $2 AND status = 'PENDING'
		RETURNING job_id
	`
	return r.mutateAndRecount(ctx, id, "reject", query, id, userID, reason, time.Now().UTC())
}

// MarkExpenseCreated links the external expense id to an approved
// transaction and makes it terminal.
func (r *PostgresTransactionRepository) MarkExpenseCreated(ctx context.Context, id, userID uuid.UUID, expenseID string) error {
	if expenseID == "" {
		return fmt.Errorf("%w: expense id is required", common.ErrInvalidInput)
	}
	query := `
		UPDATE receipt_transactions
		SET status = 'EXPENSE_CREATED', expense_id = $3, updated_at = $4
		WHERE id = $1 AND user_id = $2 AND status = 'APPROVED'
		RETURNING job_id
	`
	return r.mutateAndRecount(ctx, id, "mark expense created", query, id, userID, expenseID, time.Now().UTC())
}

// mutateAndRecount wraps a single-row workflow mutation and the counter
// recompute (plus the COMPLETED -> APPROVED promotion check) in one SQL
// transaction.
func (r *PostgresTransactionRepository) mutateAndRecount(ctx context.Context, id uuid.UUID, op, query string, args ...interface{}) error {
	dbTx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin %s: %w", op, err)
	}
	defer func() {
		_ = dbTx.Rollback(ctx)
	}()

	var jobID uuid.UUID
	if err := dbTx.QueryRow(ctx, query, args...).Scan(&jobID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: %s is not allowed for transaction %s in its current status", common.ErrInvalidTransition, op, id)
		}
		r.logger.Error("Failed to "+op+" transaction", "id", id.String(), "error", err)
		return fmt.Errorf("failed to %s transaction: %w", op, err)
	}

	now := time.Now().UTC()
	if _, err := dbTx.Exec(ctx, recountJobQuery, jobID, now); err != nil {
		r.logger.Error("Failed to recount job", "job_id", jobID.String(), "error", err)
		return fmt.Errorf("failed to recount job counters: %w", err)
	}
	if _, err := dbTx.Exec(ctx, promoteJobQuery, jobID, now); err != nil {
		r.logger.Error("Failed to promote job", "job_id", jobID.String(), "error", err)
		return fmt.Errorf("failed to promote job: %w", err)
	}

	if err := dbTx.Commit(ctx); err != nil {
		return fmt.Errorf("commit %s: %w", op, err)
	}
	return nil
}

func scanTransaction(row pgx.Row) (*entity.Transaction, error) {
	var t entity.Transaction
	var status string
	var rejection, expenseID *string
	err := row.Scan(
		&t.ID, &t.JobID, &t.UserID, &t.Seq, &t.Amount, &t.CurrencyCode,
		&t.MerchantName, &t.Description, &t.TxDate, &t.CategorySuggestion,
		&t.Confidence, &t.RawSnippet, &status, &rejection, &expenseID,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.Status = constants.TxStatus(status)
	if rejection != nil {
		t.RejectionReason = *rejection
	}
	if expenseID != nil {
		t.ExpenseID = *expenseID
	}
	return &t, nil
}
