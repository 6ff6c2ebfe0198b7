// Package llm is the structuring engine: it turns normalized text into a
// bounded, validated list of transaction candidates via an external
// reasoning provider.
package llm

import (
	"context"

	"github.com/google/uuid"

	"github.com/fintrack/receipt-processor/internal/entity"
)

// Provider is the reasoning capability: a bounded prompt in, free-form text
// expected to contain a JSON object out. May fail with auth/timeout/rate
// errors.
type Provider interface {
	Name() string
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// StructureRequest carries everything the engine needs for one job.
type StructureRequest struct {
	JobID                uuid.UUID
	Text                 string
	Filename             string
	ExtractionConfidence float32
	ExtractionMethod     string
}

// Structurer is the interface the pipeline depends on.
type Structurer interface {
	Structure(ctx context.Context, req StructureRequest) (entity.StructuringResult, error)
}

// rawTransaction is the provider-facing JSON shape, before cleaning.
// Amount is typed loosely because providers return both numbers and
// formatted strings.
type rawTransaction struct {
	MerchantName       string   `json:"merchant_name"`
	Amount             any      `json:"amount"`
	Currency           string   `json:"currency"`
	TransactionDate    string   `json:"transaction_date"`
	Description        string   `json:"description"`
	CategorySuggestion string   `json:"category_suggestion"`
	Confidence         *float64 `json:"confidence"`
	RawTextSnippet     string   `json:"raw_text_snippet"`
}

type rawResponse struct {
	Transactions []rawTransaction `json:"transactions"`
}
