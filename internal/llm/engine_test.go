package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fintrack/receipt-processor/internal/common"
)

type fakeProvider struct {
	name    string
	content string
	err     error
	calls   int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Complete(_ context.Context, _, _ string) (string, error) {
	f.calls++
	return f.content, f.err
}

func structureReq() StructureRequest {
	return StructureRequest{
		JobID:                uuid.New(),
		Text:                 "COFFEE HOUSE\nLatte 4.50\nTotal 4.50",
		Filename:             "receipt.jpg",
		ExtractionConfidence: 0.9,
		ExtractionMethod:     "image-ocr",
	}
}

func TestEngineStructure(t *testing.T) {
	goodResponse := `{"transactions": [
		{"merchant_name": "Coffee House", "amount": "4.50", "currency": "USD",
		 "transaction_date": "2024-03-01", "description": "Latte", "confidence": 0.9}
	]}`

	t.Run("primary success", func(t *testing.T) {
		primary := &fakeProvider{name: "openai/gpt-4o-mini", content: goodResponse}
		backup := &fakeProvider{name: "ollama/llama3.1", content: goodResponse}
		engine := NewEngine(EngineConfig{MaxTransactions: 5}, primary, backup, nil)

		res, err := engine.Structure(context.Background(), structureReq())
		require.NoError(t, err)
		require.Len(t, res.Candidates, 1)
		assert.Equal(t, "openai/gpt-4o-mini", res.Provider)
		assert.Equal(t, "Coffee House", res.Candidates[0].Merchant)
		assert.Equal(t, "4.5", res.Candidates[0].Amount.String())
		assert.Equal(t, 1, primary.calls)
		assert.Equal(t, 0, backup.calls)
	})

	t.Run("falls back to backup exactly once", func(t *testing.T) {
		primary := &fakeProvider{name: "openai/gpt-4o-mini", err: errors.New("rate limited")}
		backup := &fakeProvider{name: "ollama/llama3.1", content: goodResponse}
		engine := NewEngine(EngineConfig{MaxTransactions: 5}, primary, backup, nil)

		res, err := engine.Structure(context.Background(), structureReq())
		require.NoError(t, err)
		assert.Equal(t, "ollama/llama3.1", res.Provider)
		assert.Equal(t, 1, primary.calls)
		assert.Equal(t, 1, backup.calls)
	})

	t.Run("both providers fail", func(t *testing.T) {
		primary := &fakeProvider{name: "p", err: errors.New("timeout")}
		backup := &fakeProvider{name: "b", err: errors.New("connection refused")}
		engine := NewEngine(EngineConfig{MaxTransactions: 5}, primary, backup, nil)

		_, err := engine.Structure(context.Background(), structureReq())
		require.ErrorIs(t, err, common.ErrStructuringFailed)
		assert.Equal(t, 1, primary.calls)
		assert.Equal(t, 1, backup.calls)
	})

	t.Run("no backup configured", func(t *testing.T) {
		primary := &fakeProvider{name: "p", err: errors.New("timeout")}
		engine := NewEngine(EngineConfig{MaxTransactions: 5}, primary, nil, nil)

		_, err := engine.Structure(context.Background(), structureReq())
		require.ErrorIs(t, err, common.ErrStructuringFailed)
	})

	t.Run("truncates over-long batch", func(t *testing.T) {
		long := `{"transactions": [
			{"amount": "1.00"}, {"amount": "2.00"}, {"amount": "3.00"},
			{"amount": "4.00"}, {"amount": "5.00"}, {"amount": "6.00"},
			{"amount": "7.00"}
		]}`
		primary := &fakeProvider{name: "p", content: long}
		engine := NewEngine(EngineConfig{MaxTransactions: 5}, primary, nil, nil)

		res, err := engine.Structure(context.Background(), structureReq())
		require.NoError(t, err)
		assert.Len(t, res.Candidates, 5)
		assert.Equal(t, "1", res.Candidates[0].Amount.String())
		assert.Equal(t, "5", res.Candidates[4].Amount.String())
	})

	t.Run("zero valid candidates", func(t *testing.T) {
		primary := &fakeProvider{name: "p", content: `{"transactions": []}`}
		engine := NewEngine(EngineConfig{MaxTransactions: 5}, primary, nil, nil)

		_, err := engine.Structure(context.Background(), structureReq())
		require.ErrorIs(t, err, common.ErrNoTransactions)
	})

	t.Run("all candidates dropped during cleaning", func(t *testing.T) {
		primary := &fakeProvider{name: "p", content: `{"transactions": [{"amount": "n/a"}]}`}
		engine := NewEngine(EngineConfig{MaxTransactions: 5}, primary, nil, nil)

		_, err := engine.Structure(context.Background(), structureReq())
		require.ErrorIs(t, err, common.ErrNoTransactions)
	})

	t.Run("fenced response with prose", func(t *testing.T) {
		primary := &fakeProvider{name: "p", content: "Sure! Here you go:\n```json\n" + goodResponse + "\n```"}
		engine := NewEngine(EngineConfig{MaxTransactions: 5}, primary, nil, nil)

		res, err := engine.Structure(context.Background(), structureReq())
		require.NoError(t, err)
		assert.Len(t, res.Candidates, 1)
	})

	t.Run("schema violation", func(t *testing.T) {
		primary := &fakeProvider{name: "p", content: `{"transactions": "not an array"}`}
		engine := NewEngine(EngineConfig{MaxTransactions: 5}, primary, nil, nil)

		_, err := engine.Structure(context.Background(), structureReq())
		require.ErrorIs(t, err, common.ErrStructuringFailed)
	})

	t.Run("out-of-range confidence is clamped, not rejected", func(t *testing.T) {
		primary := &fakeProvider{name: "p", content: `{"transactions": [
			{"amount": "4.50", "confidence": 1.5},
			{"amount": "2.00", "confidence": -0.2}
		]}`}
		engine := NewEngine(EngineConfig{MaxTransactions: 5}, primary, nil, nil)

		res, err := engine.Structure(context.Background(), structureReq())
		require.NoError(t, err)
		require.Len(t, res.Candidates, 2)
		assert.Equal(t, float32(1), res.Candidates[0].Confidence)
		assert.Equal(t, float32(0), res.Candidates[1].Confidence)
	})

	t.Run("extra response keys are tolerated", func(t *testing.T) {
		primary := &fakeProvider{name: "p", content: `{
			"success": true,
			"document_language": "en",
			"processing_notes": "clear scan",
			"transactions": [
				{"merchant_name": "Coffee House", "amount": "4.50", "line_number": 3}
			]
		}`}
		engine := NewEngine(EngineConfig{MaxTransactions: 5}, primary, nil, nil)

		res, err := engine.Structure(context.Background(), structureReq())
		require.NoError(t, err)
		require.Len(t, res.Candidates, 1)
		assert.Equal(t, "Coffee House", res.Candidates[0].Merchant)
	})

	t.Run("overall confidence blends extraction and candidates", func(t *testing.T) {
		primary := &fakeProvider{name: "p", content: `{"transactions": [{"amount": "9.99", "confidence": 1.0}]}`}
		engine := NewEngine(EngineConfig{MaxTransactions: 5}, primary, nil, nil)

		req := structureReq()
		req.ExtractionConfidence = 1.0
		res, err := engine.Structure(context.Background(), req)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, res.OverallConfidence, 1e-6)
	})
}
