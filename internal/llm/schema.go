package llm

// BuildTransactionsJSONSchema returns a JSON-Schema (draft 2020-12 subset)
// as a generic map. We send it to the provider as a structured output
// constraint and also use it locally to validate the response. The schema is
// deliberately permissive: the array is unbounded (an over-long response is
// truncated by the engine), extra keys the provider emits alongside the
// transactions are ignored, and out-of-range confidences are clamped by the
// cleaner rather than rejected here.
func BuildTransactionsJSONSchema() map[string]any {
	item := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"merchant_name":       map[string]any{"type": "string"},
			"amount":              map[string]any{"type": []string{"number", "string"}},
			"currency":            map[string]any{"type": "string", "minLength": 3, "maxLength": 3},
			"transaction_date":    map[string]any{"type": "string"},
			"description":         map[string]any{"type": "string"},
			"category_suggestion": map[string]any{"type": "string"},
			"confidence":          map[string]any{"type": "number"},
			"raw_text_snippet":    map[string]any{"type": "string"},
		},
		"required": []string{"amount"},
	}

	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"transactions": map[string]any{
				"type":  "array",
				"items": item,
			},
		},
		"required": []string{"transactions"},
	}
}
