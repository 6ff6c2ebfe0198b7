package entity

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fintrack/receipt-processor/constants"
)

// Transaction is one candidate financial event extracted from a job.
// Rows are created only once, atomically, as a batch when structuring
// succeeds.
type Transaction struct {
	ID     uuid.UUID
	JobID  uuid.UUID
	UserID uuid.UUID
	Seq    int // 1-based index within the job

	Amount             decimal.Decimal // strictly positive
	CurrencyCode       string
	MerchantName       string
	Description        string
	TxDate             time.Time
	CategorySuggestion string
	Confidence         float32 // [0,1]
	RawSnippet         string

	Status          constants.TxStatus
	RejectionReason string
	ExpenseID       string // id assigned by the expense collaborator

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewTransactionBatch assigns identities and 1-based sequence numbers to a
// cleaned candidate list. Candidates must already satisfy the field
// invariants (positive amount, clamped confidence); this enforces the batch
// ceiling and the per-row basics.
func NewTransactionBatch(jobID, userID uuid.UUID, candidates []Candidate, maxPerJob int) ([]*Transaction, error) {
	if len(candidates) == 0 {
		return nil, fmt.Errorf("transaction batch is empty")
	}
	if maxPerJob > 0 && len(candidates) > maxPerJob {
		return nil, fmt.Errorf("transaction batch exceeds ceiling: %d > %d", len(candidates), maxPerJob)
	}
	now := time.Now().UTC()
	out := make([]*Transaction, 0, len(candidates))
	for i, c := range candidates {
		if !c.Amount.IsPositive() {
			return nil, fmt.Errorf("candidate %d: amount must be positive, got %s", i+1, c.Amount)
		}
		if c.Confidence < 0 || c.Confidence > 1 {
			return nil, fmt.Errorf("candidate %d: confidence out of range: %f", i+1, c.Confidence)
		}
		out = append(out, &Transaction{
			ID:                 uuid.New(),
			JobID:              jobID,
			UserID:             userID,
			Seq:                i + 1,
			Amount:             c.Amount,
			CurrencyCode:       c.Currency,
			MerchantName:       c.Merchant,
			Description:        c.Description,
			TxDate:             c.Date,
			CategorySuggestion: c.Category,
			Confidence:         c.Confidence,
			RawSnippet:         c.Snippet,
			Status:             constants.TxStatusPending,
			CreatedAt:          now,
			UpdatedAt:          now,
		})
	}
	return out, nil
}

// Candidate is a cleaned structuring result row, pre-identity.
type Candidate struct {
	Amount      decimal.Decimal
	Currency    string
	Merchant    string
	Description string
	Date        time.Time
	Category    string
	Confidence  float32
	Snippet     string
}
