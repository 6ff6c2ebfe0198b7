package extract

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"log/slog"
	"strings"
	"time"

	"github.com/gen2brain/go-fitz"

	"github.com/fintrack/receipt-processor/internal/entity"
	"github.com/fintrack/receipt-processor/internal/ocr"
)

// PDFConfig bounds the portable-document strategy.
type PDFConfig struct {
	Pdftotext     string // binary name or absolute path; if empty -> "pdftotext"
	MinTextLength int    // below this, the text layer is treated as absent
	MaxPages      int    // page cap for the OCR fallback
}

// textBackend is one way of pulling the text layer out of a PDF. Backends
// are tried in order and scored by extracted text length.
type textBackend struct {
	name string
	run  func(ctx context.Context, in Input) (text string, pages int, err error)
}

// PDFExtractor tries the text-layer backends first and keeps the richest
// result; image-only documents fall back to rendering each page and running
// the image strategy per page.
type PDFExtractor struct {
	cfg      PDFConfig
	runner   ocr.Runner
	imageOCR *ImageExtractor
	backends []textBackend
	logger   *slog.Logger
}

func NewPDFExtractor(cfg PDFConfig, runner ocr.Runner, imageOCR *ImageExtractor, logger *slog.Logger) *PDFExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pdftotext == "" {
		cfg.Pdftotext = "pdftotext"
	}
	if cfg.MinTextLength <= 0 {
		cfg.MinTextLength = 50
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 10
	}
	if runner == nil {
		runner = ocr.ExecRunner{}
	}
	e := &PDFExtractor{cfg: cfg, runner: runner, imageOCR: imageOCR, logger: logger}
	e.backends = []textBackend{
		{name: "fitz", run: e.fitzText},
		{name: "pdftotext", run: e.pdftotextText},
	}
	return e
}

func (e *PDFExtractor) Extract(ctx context.Context, in Input) (entity.ExtractionResult, error) {
	start := time.Now()

	var best string
	var bestPages int
	var warnings []string
	for _, b := range e.backends {
		text, pages, err := b.run(ctx, in)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v", b.name, err))
			continue
		}
		// longest text wins; a cheap proxy for richness
		if len(text) > len(best) {
			best, bestPages = text, pages
		}
	}

	if len(strings.TrimSpace(best)) >= e.cfg.MinTextLength {
		e.logger.Debug("extract.pdf.text_layer", "chars", len(best), "pages", bestPages)
		return entity.ExtractionResult{
			Text:       Normalize(best),
			Confidence: 0.95, // deterministic text layer
			Method:     MethodPDFText,
			Pages:      bestPages,
			Duration:   time.Since(start),
			Warnings:   warnings,
		}, nil
	}

	// image-only document: render each page and OCR it
	e.logger.Info("extract.pdf.ocr_fallback", "text_chars", len(best), "min", e.cfg.MinTextLength)
	res, err := e.ocrPages(ctx, in)
	if err != nil {
		return entity.ExtractionResult{}, err
	}
	res.Warnings = append(warnings, res.Warnings...)
	res.Duration = time.Since(start)
	return res, nil
}

// fitzText extracts the text layer page by page in-process.
func (e *PDFExtractor) fitzText(_ context.Context, in Input) (string, int, error) {
	doc, err := fitz.NewFromMemory(in.Content)
	if err != nil {
		return "", 0, fmt.Errorf("open pdf: %w", err)
	}
	defer doc.Close()

	var b strings.Builder
	n := doc.NumPage()
	for i := 0; i < n; i++ {
		text, err := doc.Text(i)
		if err != nil {
			return "", 0, fmt.Errorf("page %d text: %w", i+1, err)
		}
		if b.Len() > 0 {
			b.WriteString("\n\f\n")
		}
		b.WriteString(text)
	}
	return b.String(), n, nil
}

// pdftotextText shells out to pdftotext with -layout so table-like regions
// keep their column alignment in the serialized rows.
func (e *PDFExtractor) pdftotextText(ctx context.Context, in Input) (string, int, error) {
	out, errb, err := e.runner.Run(ctx, e.cfg.Pdftotext, "-layout", "-enc", "UTF-8", "-eol", "unix", in.Path, "-")
	if err != nil {
		return "", 0, fmt.Errorf("pdftotext: %w (stderr: %s)", err, strings.TrimSpace(string(errb)))
	}
	text := string(out)
	// a form-feed \f is the default page separator
	pages := 1 + strings.Count(text, "\f")
	return text, pages, nil
}

// ocrPages renders each page at 2x and reuses the image strategy,
// averaging per-page confidence across pages, capped at MaxPages.
func (e *PDFExtractor) ocrPages(ctx context.Context, in Input) (entity.ExtractionResult, error) {
	doc, err := fitz.NewFromMemory(in.Content)
	if err != nil {
		return entity.ExtractionResult{}, fmt.Errorf("open pdf for ocr: %w", err)
	}
	defer doc.Close()

	n := doc.NumPage()
	if n > e.cfg.MaxPages {
		n = e.cfg.MaxPages
	}
	if n == 0 {
		return entity.ExtractionResult{}, fmt.Errorf("pdf has no pages")
	}

	var b strings.Builder
	var confSum float64
	var warnings []string
	pagesOCRed := 0
	for i := 0; i < n; i++ {
		img, err := doc.ImageDPI(i, 144)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("render page %d: %v", i+1, err))
			continue
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			warnings = append(warnings, fmt.Sprintf("encode page %d: %v", i+1, err))
			continue
		}
		pageRes, err := e.imageOCR.Extract(ctx, Input{
			Path:    in.Path,
			Content: buf.Bytes(),
			Ext:     "png",
		})
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("ocr page %d: %v", i+1, err))
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\f\n")
		}
		b.WriteString(pageRes.Text)
		confSum += float64(pageRes.Confidence)
		pagesOCRed++
	}
	if pagesOCRed == 0 {
		return entity.ExtractionResult{}, fmt.Errorf("ocr produced no pages: %s", strings.Join(warnings, "; "))
	}

	return entity.ExtractionResult{
		Text:       Normalize(b.String()),
		Confidence: float32(confSum / float64(pagesOCRed)),
		Method:     MethodPDFOCR,
		Pages:      pagesOCRed,
		Warnings:   warnings,
	}, nil
}
