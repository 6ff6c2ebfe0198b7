package classify

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fintrack/receipt-processor/constants"
	"github.com/fintrack/receipt-processor/internal/common"
)

func TestClassify(t *testing.T) {
	c := NewClassifier(Config{
		MaxImageBytes:    10 << 20,
		MaxPDFBytes:      25 << 20,
		MaxDocumentBytes: 5 << 20,
	}, nil)

	tests := []struct {
		name     string
		filename string
		size     int64
		want     constants.FormatFamily
		wantCode string
	}{
		{name: "jpeg", filename: "receipt.jpg", size: 1024, want: constants.IMAGE},
		{name: "heic", filename: "IMG_0042.HEIC", size: 1024, want: constants.IMAGE},
		{name: "pdf", filename: "statement.pdf", size: 2048, want: constants.PDF},
		{name: "csv", filename: "export.csv", size: 512, want: constants.DOCUMENT},
		{name: "docx", filename: "notes.docx", size: 512, want: constants.DOCUMENT},
		{name: "bmp", filename: "scan.bmp", size: 1024, want: constants.IMAGE},
		{name: "tiff", filename: "scan.tiff", size: 1024, want: constants.IMAGE},
		{name: "webp", filename: "photo.webp", size: 1024, want: constants.IMAGE},
		{name: "legacy xls", filename: "export.xls", size: 512, wantCode: common.CodeUnsupportedExtension},
		{name: "unknown extension", filename: "archive.rar", size: 100, wantCode: common.CodeUnsupportedExtension},
		{name: "no extension", filename: "receipt", size: 100, wantCode: common.CodeUnsupportedExtension},
		{name: "empty file", filename: "a.jpg", size: 0, wantCode: common.CodeEmptyFile},
		{name: "oversized image", filename: "a.png", size: 11 << 20, wantCode: common.CodeFileTooLarge},
		{name: "oversized document", filename: "a.csv", size: 6 << 20, wantCode: common.CodeFileTooLarge},
		{name: "pdf within its larger ceiling", filename: "a.pdf", size: 20 << 20, want: constants.PDF},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Classify(tt.filename, tt.size)
			if tt.wantCode != "" {
				var verr *common.ValidationError
				require.True(t, errors.As(err, &verr))
				assert.Equal(t, tt.wantCode, verr.Code)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEstimateTransactions(t *testing.T) {
	c := NewClassifier(Config{MaxTransactionsPerFile: 5}, nil)

	t.Run("images count as one", func(t *testing.T) {
		assert.Equal(t, 1, c.EstimateTransactions([]byte("binary"), "jpg"))
	})

	t.Run("csv counts data lines minus header", func(t *testing.T) {
		csv := "date,merchant,amount\nr1\nr2\nr3\n"
		assert.Equal(t, 3, c.EstimateTransactions([]byte(csv), "csv"))
	})

	t.Run("csv single line still estimates one", func(t *testing.T) {
		assert.Equal(t, 1, c.EstimateTransactions([]byte("only,one,line\n"), "csv"))
	})

	t.Run("text counts amount plus currency lines", func(t *testing.T) {
		txt := strings.Join([]string{
			"COFFEE HOUSE",
			"Latte $4.50",
			"Muffin $3.25",
			"Subtotal 7.75", // no currency token
			"Total USD 7.75",
		}, "\n")
		assert.Equal(t, 3, c.EstimateTransactions([]byte(txt), "txt"))
	})

	t.Run("text with no amounts estimates one", func(t *testing.T) {
		assert.Equal(t, 1, c.EstimateTransactions([]byte("hello world"), "txt"))
	})

	t.Run("pdf estimate never exceeds the per-file ceiling", func(t *testing.T) {
		// unreadable content counts as one page, two receipts
		assert.Equal(t, 2, c.EstimateTransactions([]byte("not a pdf"), "pdf"))
		assert.Equal(t, 5, capEstimate(10*2, 5))
		assert.Equal(t, 4, capEstimate(2*2, 5))
	})
}

func TestValidateContent(t *testing.T) {
	c := NewClassifier(Config{MaxTransactionsPerFile: 3}, nil)

	t.Run("within ceiling", func(t *testing.T) {
		csv := "h\nr1\nr2\nr3\n"
		require.NoError(t, c.ValidateContent([]byte(csv), "csv"))
	})

	t.Run("over ceiling", func(t *testing.T) {
		csv := "h\nr1\nr2\nr3\nr4\nr5\n"
		err := c.ValidateContent([]byte(csv), "csv")
		var verr *common.ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Equal(t, common.CodeTooManyTransactions, verr.Code)
	})

	t.Run("unknown extension", func(t *testing.T) {
		err := c.ValidateContent([]byte("x"), "exe")
		var verr *common.ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Equal(t, common.CodeUnsupportedExtension, verr.Code)
	})

	t.Run("pdf pages checked against the page limit, not the estimate cap", func(t *testing.T) {
		pc := NewClassifier(Config{MaxPDFPages: 10, MaxTransactionsPerFile: 5}, nil)
		require.NoError(t, pc.checkPDFPages(10))

		err := pc.checkPDFPages(11)
		var verr *common.ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Equal(t, common.CodeTooManyPages, verr.Code)
	})
}
