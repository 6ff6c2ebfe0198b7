// Package extract implements the three text extraction strategies: image,
// portable-document, and structured-document. Each turns raw bytes into
// normalized text with a confidence in [0,1]. No interpretation, currency
// detection, or language assumption happens here; that is deferred to the
// structuring engine.
package extract

import (
	"context"

	"github.com/fintrack/receipt-processor/internal/entity"
)

// Input carries the file under extraction. Path points at the job-scoped
// temp copy (used by strategies that shell out); Content holds the same
// bytes for in-process decoding.
type Input struct {
	Path    string
	Content []byte
	Ext     string // normalized extension
}

// TextExtractor is Stage 1: file -> text.
type TextExtractor interface {
	Extract(ctx context.Context, in Input) (entity.ExtractionResult, error)
}

// Extraction method names, reported on the job.
const (
	MethodImageOCR = "image-ocr"
	MethodPDFText  = "pdf-text"
	MethodPDFOCR   = "pdf-ocr"
	MethodDocument = "document-parse"
)
