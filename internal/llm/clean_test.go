package llm

import (
	"log/slog"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{name: "plain decimal", raw: "14.99", want: "14.99"},
		{name: "us thousands", raw: "1,234.56", want: "1234.56"},
		{name: "eu thousands", raw: "1.234,56", want: "1234.56"},
		{name: "comma decimal", raw: "12,50", want: "12.5"},
		{name: "comma thousands no decimals", raw: "1,234", want: "1234"},
		{name: "multiple commas", raw: "1,234,567", want: "1234567"},
		{name: "grouping mixed with decimal comma", raw: "1,234,56", wantErr: true},
		{name: "currency symbol", raw: "$49.00", want: "49"},
		{name: "currency code", raw: "EUR 99,95", want: "99.95"},
		{name: "whitespace", raw: "  7.25  ", want: "7.25"},
		{name: "multiple dots", raw: "1.234.567.89", want: "1234567.89"},
		{name: "zero", raw: "0.00", wantErr: true},
		{name: "negative", raw: "-12.00", wantErr: true},
		{name: "no digits", raw: "free", wantErr: true},
		{name: "empty", raw: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAmount(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestParseDate(t *testing.T) {
	now := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)

	tests := []struct {
		name string
		raw  string
		want time.Time
	}{
		{name: "iso", raw: "2024-01-31", want: time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)},
		{name: "slash ymd", raw: "2024/01/31", want: time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)},
		{name: "us style", raw: "01/31/2024", want: time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)},
		{name: "written long", raw: "January 31, 2024", want: time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)},
		{name: "garbage falls back to today", raw: "sometime last week", want: now.Truncate(24 * time.Hour)},
		{name: "empty falls back to today", raw: "", want: now.Truncate(24 * time.Hour)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseDate(tt.raw, now))
		})
	}
}

func TestCleanCandidates(t *testing.T) {
	now := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	logger := slog.Default()
	conf := func(v float64) *float64 { return &v }

	t.Run("fills defaults for missing fields", func(t *testing.T) {
		raws := []rawTransaction{
			{Amount: "19.99"},
		}
		got := cleanCandidates(raws, now, logger)
		require.Len(t, got, 1)
		assert.Equal(t, "Unknown Merchant", got[0].Merchant)
		assert.Equal(t, "Purchase from Unknown Merchant", got[0].Description)
		assert.Equal(t, "USD", got[0].Currency)
		assert.Equal(t, now, got[0].Date)
		assert.InDelta(t, defaultConfidence, got[0].Confidence, 1e-6)
	})

	t.Run("drops unparsable amounts, keeps the rest", func(t *testing.T) {
		raws := []rawTransaction{
			{MerchantName: "Coffee Shop", Amount: "4.50"},
			{MerchantName: "Mystery", Amount: "n/a"},
			{MerchantName: "Grocer", Amount: float64(23.10)},
		}
		got := cleanCandidates(raws, now, logger)
		require.Len(t, got, 2)
		assert.Equal(t, "Coffee Shop", got[0].Merchant)
		assert.Equal(t, "Grocer", got[1].Merchant)
	})

	t.Run("clamps confidence and normalizes currency", func(t *testing.T) {
		raws := []rawTransaction{
			{Amount: "10.00", Currency: "eur", Confidence: conf(1.7)},
			{Amount: "5.00", Currency: "EU", Confidence: conf(-0.2)},
		}
		got := cleanCandidates(raws, now, logger)
		require.Len(t, got, 2)
		assert.Equal(t, "EUR", got[0].Currency)
		assert.Equal(t, float32(1), got[0].Confidence)
		assert.Equal(t, "USD", got[1].Currency)
		assert.Equal(t, float32(0), got[1].Confidence)
	})

	t.Run("caps the snippet", func(t *testing.T) {
		long := make([]byte, maxSnippetChars+100)
		for i := range long {
			long[i] = 'x'
		}
		raws := []rawTransaction{{Amount: "1.00", RawTextSnippet: string(long)}}
		got := cleanCandidates(raws, now, logger)
		require.Len(t, got, 1)
		assert.Len(t, got[0].Snippet, maxSnippetChars)
	})

	t.Run("snippet cap keeps valid utf-8", func(t *testing.T) {
		long := strings.Repeat("€", 200) // 600 bytes, no rune boundary at 500
		raws := []rawTransaction{{Amount: "1.00", RawTextSnippet: long}}
		got := cleanCandidates(raws, now, logger)
		require.Len(t, got, 1)
		assert.True(t, utf8.ValidString(got[0].Snippet))
		assert.LessOrEqual(t, len(got[0].Snippet), maxSnippetChars)
		assert.Equal(t, strings.Repeat("€", 166), got[0].Snippet)
	})
}
