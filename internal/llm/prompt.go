package llm

import (
	"fmt"
	"strings"
	"time"
)

// maxPromptTextChars bounds the document text fed to the provider.
const maxPromptTextChars = 6000

// BuildSystemPrompt composes the system message with the transaction
// ceiling and strict-but-practical formatting rules.
func BuildSystemPrompt(maxTransactions int) string {
	parts := []string{
		"You are a financial document parser. Return ONLY JSON that matches the provided JSON Schema.",
		fmt.Sprintf("The JSON object has one key, 'transactions': an array of at most %d transaction objects.", maxTransactions),
		"Each transaction has: merchant_name, amount, currency, transaction_date, description, category_suggestion, confidence, raw_text_snippet.",
		"Use ISO-8601 dates (YYYY-MM-DD). If the date cannot be determined, use today's date: " + time.Now().UTC().Format("2006-01-02") + ".",
		"Currency must be a 3-letter ISO 4217 code; default to USD if uncertain.",
		"Amount is the positive total of the purchase. OMIT any transaction whose amount cannot be determined.",
		"raw_text_snippet is a short verbatim excerpt of the source text the transaction was derived from.",
		"confidence is a number in [0,1] reflecting how certain you are about the extracted fields.",
		"Never output null. If a field is not present, omit it.",
	}
	return strings.Join(parts, " ")
}

// BuildUserPrompt packages the filename hint and the extracted text,
// truncated to keep the prompt bounded.
func BuildUserPrompt(req StructureRequest) string {
	var b strings.Builder
	if f := strings.TrimSpace(req.Filename); f != "" {
		b.WriteString("Filename: ")
		b.WriteString(f)
		b.WriteString("\n")
	}
	b.WriteString("Extraction method: ")
	b.WriteString(req.ExtractionMethod)
	b.WriteString("\n\nDocument text (first ~6k chars):\n")

	text := strings.TrimSpace(req.Text)
	if len(text) > maxPromptTextChars {
		b.WriteString(text[:maxPromptTextChars])
		b.WriteString("\n…(truncated)")
	} else {
		b.WriteString(text)
	}
	return b.String()
}
