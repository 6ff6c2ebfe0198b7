package classify

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/xuri/excelize/v2"

	"github.com/fintrack/receipt-processor/constants"
)

var (
	reAmountLine = regexp.MustCompile(`\d{1,3}(,\d{3})*(\.\d{2})|\d+\.\d{2}`)
	reCurrToken  = regexp.MustCompile(`(?i)\b(usd|eur|gbp|cad|aud|inr|jpy)\b|[$£€¥]`)
)

// EstimateTransactions guesses how many transactions a file is likely to
// contain, using format-appropriate heuristics. Images count as one receipt;
// text-like inputs count lines carrying both an amount and a currency hint;
// spreadsheets count data rows; PDFs estimate two receipts per page, capped
// at the per-file ceiling (page count itself is bounded separately against
// MaxPDFPages).
func (c *Classifier) EstimateTransactions(content []byte, ext string) int {
	e := constants.NormalizeExt(ext)
	switch constants.MapExtToFormat(e) {
	case constants.IMAGE:
		return 1
	case constants.PDF:
		return capEstimate(pdfPageCount(content)*2, c.cfg.MaxTransactionsPerFile)
	case constants.DOCUMENT:
		switch e {
		case "xlsx":
			return c.estimateSheetRows(content)
		case "csv", "tsv":
			return countDataLines(content)
		default:
			return countAmountLines(content)
		}
	}
	return 1
}

func pdfPageCount(content []byte) int {
	doc, err := fitz.NewFromMemory(content)
	if err != nil {
		// unreadable here is not fatal; extraction will report properly
		return 1
	}
	defer doc.Close()
	n := doc.NumPage()
	if n < 1 {
		return 1
	}
	return n
}

func capEstimate(est, max int) int {
	if est > max {
		return max
	}
	return est
}

func (c *Classifier) estimateSheetRows(content []byte) int {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return 1
	}
	defer f.Close()

	total := 0
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			continue
		}
		// assume one header row per non-empty sheet
		if len(rows) > 1 {
			total += len(rows) - 1
		}
	}
	if total < 1 {
		return 1
	}
	return total
}

// countDataLines counts non-empty lines minus a header.
func countDataLines(content []byte) int {
	n := 0
	for _, ln := range strings.Split(string(content), "\n") {
		if strings.TrimSpace(ln) != "" {
			n++
		}
	}
	if n > 1 {
		n--
	}
	if n < 1 {
		return 1
	}
	return n
}

// countAmountLines counts lines that look like purchases: an amount plus a
// currency-ish token.
func countAmountLines(content []byte) int {
	n := 0
	for _, ln := range strings.Split(string(content), "\n") {
		if reAmountLine.MatchString(ln) && reCurrToken.MatchString(ln) {
			n++
		}
	}
	if n < 1 {
		return 1
	}
	return n
}
