package llm

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/fintrack/receipt-processor/internal/entity"
)

const (
	defaultConfidence = 0.6
	maxSnippetChars   = 500
)

// dateFormats is the ordered list tried against provider dates. ISO first,
// then the common regional and written forms.
var dateFormats = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"02/01/2006",
	"01-02-2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"2 Jan 2006",
	"02.01.2006",
}

// ParseAmount disambiguates thousands vs decimal separators and returns a
// strictly positive decimal. The tie-break rules are a documented
// best-effort policy:
//   - both '.' and ',' present: the right-most one is the decimal separator
//   - only ',' present: a trailing 2-digit group implies decimal, otherwise
//     thousands ("1,234" -> 1234)
//
// Negative, zero, and non-numeric values are errors; the caller drops the
// candidate rather than guessing.
func ParseAmount(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	// strip currency symbols, codes and spaces; keep digits and separators
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' || r == '.' || r == ',' || r == '-' {
			b.WriteRune(r)
		}
	}
	s = b.String()
	if s == "" || !strings.ContainsAny(s, "0123456789") {
		return decimal.Decimal{}, fmt.Errorf("no numeric value in %q", raw)
	}

	lastDot := strings.LastIndexByte(s, '.')
	lastComma := strings.LastIndexByte(s, ',')
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastDot > lastComma {
			// '.' is decimal, ',' is thousands
			s = strings.ReplaceAll(s, ",", "")
		} else {
			// ',' is decimal, '.' is thousands
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		}
	case lastComma >= 0:
		tail := s[lastComma+1:]
		switch {
		case len(tail) == 2 && strings.Count(s, ",") == 1:
			s = strings.Replace(s, ",", ".", 1)
		case len(tail) == 2:
			// "1,234,56" mixes grouping with a decimal comma; guessing
			// here silently corrupts the amount
			return decimal.Decimal{}, fmt.Errorf("ambiguous separators in %q", raw)
		default:
			s = strings.ReplaceAll(s, ",", "")
		}
	case strings.Count(s, ".") > 1:
		// multiple dots: all but the last are thousands separators
		i := strings.LastIndexByte(s, '.')
		s = strings.ReplaceAll(s[:i], ".", "") + s[i:]
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse amount %q: %w", raw, err)
	}
	if !d.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("amount must be positive, got %s", d)
	}
	return d, nil
}

// parseDate tries the ordered format list; an unparsable date yields the
// current date rather than failing the record.
func parseDate(raw string, now time.Time) time.Time {
	s := strings.TrimSpace(raw)
	for _, layout := range dateFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return now.Truncate(24 * time.Hour)
}

// cleanCandidates converts raw provider transactions into validated
// candidates. Individual malformed candidates are dropped rather than
// failing the batch.
func cleanCandidates(raws []rawTransaction, now time.Time, logger *slog.Logger) []entity.Candidate {
	out := make([]entity.Candidate, 0, len(raws))
	for i, r := range raws {
		amount, err := ParseAmount(amountString(r.Amount))
		if err != nil {
			logger.Warn("llm.clean.candidate_dropped", "index", i, "reason", err.Error())
			continue
		}

		merchant := strings.TrimSpace(r.MerchantName)
		if merchant == "" {
			merchant = "Unknown Merchant"
		}
		description := strings.TrimSpace(r.Description)
		if description == "" {
			description = "Purchase from " + merchant
		}
		currency := strings.ToUpper(strings.TrimSpace(r.Currency))
		if len(currency) != 3 {
			currency = "USD"
		}

		conf := float32(defaultConfidence)
		if r.Confidence != nil {
			conf = clamp01(float32(*r.Confidence))
		}

		snippet := truncateSnippet(strings.TrimSpace(r.RawTextSnippet), maxSnippetChars)

		out = append(out, entity.Candidate{
			Amount:      amount,
			Currency:    currency,
			Merchant:    merchant,
			Description: description,
			Date:        parseDate(r.TransactionDate, now),
			Category:    strings.TrimSpace(r.CategorySuggestion),
			Confidence:  conf,
			Snippet:     snippet,
		})
	}
	return out
}

// truncateSnippet caps the snippet at max bytes without splitting a rune,
// so the stored value stays valid UTF-8.
func truncateSnippet(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func amountString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return decimal.NewFromFloat(t).String()
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
