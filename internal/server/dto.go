package server

import (
	"time"

	"github.com/fintrack/receipt-processor/internal/entity"
)

// jobResponse is the wire shape of a job. Extraction text is intentionally
// omitted from list responses; GET by id includes it.
type jobResponse struct {
	ID                    string     `json:"id"`
	OriginalFilename      string     `json:"original_filename"`
	FileType              string     `json:"file_type"`
	FileSize              int64      `json:"file_size"`
	Status                string     `json:"status"`
	ErrorMessage          string     `json:"error_message,omitempty"`
	RetryCount            int        `json:"retry_count"`
	OCRText               string     `json:"ocr_text,omitempty"`
	OCRConfidence         float32    `json:"ocr_confidence"`
	ExtractionMethod      string     `json:"extraction_method,omitempty"`
	AIProvider            string     `json:"ai_provider,omitempty"`
	AIProcessingMS        int64      `json:"ai_processing_ms"`
	TotalTransactions     int        `json:"total_transactions"`
	ProcessedTransactions int        `json:"processed_transactions"`
	ApprovedTransactions  int        `json:"approved_transactions"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
	ProcessingStartedAt   *time.Time `json:"processing_started_at,omitempty"`
	ProcessingCompletedAt *time.Time `json:"processing_completed_at,omitempty"`
}

func toJobResponse(j *entity.Job, includeText bool) jobResponse {
	r := jobResponse{
		ID:                    j.ID.String(),
		OriginalFilename:      j.OriginalFilename,
		FileType:              j.FileType,
		FileSize:              j.FileSize,
		Status:                string(j.Status),
		ErrorMessage:          j.ErrorMessage,
		RetryCount:            j.RetryCount,
		OCRConfidence:         j.OCRConfidence,
		ExtractionMethod:      j.ExtractionMethod,
		AIProvider:            j.AIProvider,
		AIProcessingMS:        j.AIProcessingMS,
		TotalTransactions:     j.TotalTransactions,
		ProcessedTransactions: j.ProcessedTransactions,
		ApprovedTransactions:  j.ApprovedTransactions,
		CreatedAt:             j.CreatedAt,
		UpdatedAt:             j.UpdatedAt,
		ProcessingStartedAt:   j.ProcessingStartedAt,
		ProcessingCompletedAt: j.ProcessingCompletedAt,
	}
	if includeText {
		r.OCRText = j.OCRText
	}
	return r
}

func toJobListResponse(jobs []*entity.Job) []jobResponse {
	out := make([]jobResponse, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, toJobResponse(j, false))
	}
	return out
}

type transactionResponse struct {
	ID                 string    `json:"id"`
	JobID              string    `json:"job_id"`
	Seq                int       `json:"seq"`
	Amount             string    `json:"amount"`
	CurrencyCode       string    `json:"currency_code"`
	MerchantName       string    `json:"merchant_name"`
	Description        string    `json:"description"`
	TxDate             string    `json:"tx_date"`
	CategorySuggestion string    `json:"category_suggestion,omitempty"`
	Confidence         float32   `json:"confidence"`
	RawSnippet         string    `json:"raw_snippet,omitempty"`
	Status             string    `json:"status"`
	RejectionReason    string    `json:"rejection_reason,omitempty"`
	ExpenseID          string    `json:"expense_id,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func toTransactionResponse(t *entity.Transaction) transactionResponse {
	return transactionResponse{
		ID:                 t.ID.String(),
		JobID:              t.JobID.String(),
		Seq:                t.Seq,
		Amount:             t.Amount.StringFixed(2),
		CurrencyCode:       t.CurrencyCode,
		MerchantName:       t.MerchantName,
		Description:        t.Description,
		TxDate:             t.TxDate.Format("2006-01-02"),
		CategorySuggestion: t.CategorySuggestion,
		Confidence:         t.Confidence,
		RawSnippet:         t.RawSnippet,
		Status:             string(t.Status),
		RejectionReason:    t.RejectionReason,
		ExpenseID:          t.ExpenseID,
		CreatedAt:          t.CreatedAt,
		UpdatedAt:          t.UpdatedAt,
	}
}

func toTransactionListResponse(txs []*entity.Transaction) []transactionResponse {
	out := make([]transactionResponse, 0, len(txs))
	for _, t := range txs {
		out = append(out, toTransactionResponse(t))
	}
	return out
}
