// Package classify routes a stored file to one of the three extraction
// strategy families and rejects unsupported or oversized inputs before any
// extraction work begins.
package classify

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fintrack/receipt-processor/constants"
	"github.com/fintrack/receipt-processor/internal/common"
)

// Config holds per-family size ceilings and the transaction estimate cap.
type Config struct {
	MaxImageBytes          int64
	MaxPDFBytes            int64
	MaxDocumentBytes       int64
	MaxPDFPages            int
	MaxTransactionsPerFile int
}

type Classifier struct {
	cfg    Config
	logger *slog.Logger
}

func NewClassifier(cfg Config, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxImageBytes <= 0 {
		cfg.MaxImageBytes = 10 << 20
	}
	if cfg.MaxPDFBytes <= 0 {
		cfg.MaxPDFBytes = 25 << 20
	}
	if cfg.MaxDocumentBytes <= 0 {
		cfg.MaxDocumentBytes = 5 << 20
	}
	if cfg.MaxPDFPages <= 0 {
		cfg.MaxPDFPages = 10
	}
	if cfg.MaxTransactionsPerFile <= 0 {
		cfg.MaxTransactionsPerFile = 5
	}
	return &Classifier{cfg: cfg, logger: logger}
}

// Classify maps a filename and size to a strategy family. It returns a
// typed ValidationError for unknown extensions and per-family size ceiling
// breaches; no job state may be created on error.
func (c *Classifier) Classify(filename string, size int64) (constants.FormatFamily, error) {
	ext := constants.NormalizeExt(filepath.Ext(filename))
	family := constants.MapExtToFormat(ext)
	if family == "" {
		c.logger.Warn("classify.unsupported_extension", "filename", filename, "ext", ext)
		return "", common.NewValidationError(common.CodeUnsupportedExtension,
			fmt.Sprintf("unsupported extension: %q", ext), nil)
	}
	if size <= 0 {
		return "", common.NewValidationError(common.CodeEmptyFile, "file is empty", nil)
	}

	var ceiling int64
	switch family {
	case constants.IMAGE:
		ceiling = c.cfg.MaxImageBytes
	case constants.PDF:
		ceiling = c.cfg.MaxPDFBytes
	case constants.DOCUMENT:
		ceiling = c.cfg.MaxDocumentBytes
	}
	if size > ceiling {
		c.logger.Warn("classify.file_too_large",
			"filename", filename, "family", family, "size", size, "ceiling", ceiling)
		return "", common.NewValidationError(common.CodeFileTooLarge,
			fmt.Sprintf("%s file of %d bytes exceeds the %d byte ceiling", family, size, ceiling), nil)
	}

	c.logger.Debug("classify.ok", "filename", filename, "family", family, "size", size)
	return family, nil
}

// ValidateContent runs the cheap transaction estimate and rejects inputs
// that clearly exceed the per-file ceiling, so reasoning provider budget is
// not wasted on oversized documents.
func (c *Classifier) ValidateContent(content []byte, ext string) error {
	family := constants.MapExtToFormat(ext)
	if family == "" {
		return common.NewValidationError(common.CodeUnsupportedExtension,
			fmt.Sprintf("unsupported extension: %q", ext), nil)
	}
	if family == constants.PDF {
		if err := c.checkPDFPages(pdfPageCount(content)); err != nil {
			return err
		}
	}
	est := c.EstimateTransactions(content, ext)
	if est > c.cfg.MaxTransactionsPerFile {
		c.logger.Warn("classify.too_many_transactions", "ext", ext, "estimate", est, "max", c.cfg.MaxTransactionsPerFile)
		return common.NewValidationError(common.CodeTooManyTransactions,
			fmt.Sprintf("file appears to contain ~%d transactions, limit is %d", est, c.cfg.MaxTransactionsPerFile), nil)
	}
	return nil
}

// checkPDFPages rejects PDFs with more pages than the pipeline is willing
// to OCR.
func (c *Classifier) checkPDFPages(pages int) error {
	if pages > c.cfg.MaxPDFPages {
		c.logger.Warn("classify.too_many_pages", "pages", pages, "max", c.cfg.MaxPDFPages)
		return common.NewValidationError(common.CodeTooManyPages,
			fmt.Sprintf("PDF has %d pages, limit is %d", pages, c.cfg.MaxPDFPages), nil)
	}
	return nil
}
