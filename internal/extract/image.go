package extract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gen2brain/heic"
	_ "golang.org/x/image/bmp"  // register BMP decoder
	_ "golang.org/x/image/tiff" // register TIFF decoder
	_ "golang.org/x/image/webp" // register WebP decoder

	"github.com/fintrack/receipt-processor/constants"
	"github.com/fintrack/receipt-processor/internal/entity"
	"github.com/fintrack/receipt-processor/internal/ocr"
)

// ImageConfig bounds the image strategy.
type ImageConfig struct {
	Languages string // tesseract language hint set
	TempDir   string // scratch dir for the preprocessed PNG; "" -> system default
}

// ImageExtractor preprocesses a photo deterministically, runs the OCR
// engine, and reconstructs reading order from block bounding boxes.
type ImageExtractor struct {
	cfg    ImageConfig
	engine ocr.Engine
	logger *slog.Logger
}

func NewImageExtractor(cfg ImageConfig, engine ocr.Engine, logger *slog.Logger) *ImageExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Languages == "" {
		cfg.Languages = "eng"
	}
	return &ImageExtractor{cfg: cfg, engine: engine, logger: logger}
}

func (e *ImageExtractor) Extract(ctx context.Context, in Input) (entity.ExtractionResult, error) {
	start := time.Now()

	img, err := decodeImage(in.Content, in.Ext)
	if err != nil {
		return entity.ExtractionResult{}, fmt.Errorf("decode image: %w", err)
	}

	prepped := preprocess(img)

	tmp, err := os.CreateTemp(e.cfg.TempDir, "prep-*.png")
	if err != nil {
		return entity.ExtractionResult{}, fmt.Errorf("create temp image: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = os.Remove(tmpPath)
	}()
	if err := png.Encode(tmp, prepped); err != nil {
		_ = tmp.Close()
		return entity.ExtractionResult{}, fmt.Errorf("encode preprocessed image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return entity.ExtractionResult{}, fmt.Errorf("close temp image: %w", err)
	}

	blocks, err := e.engine.Recognize(ctx, tmpPath, e.cfg.Languages)
	if err != nil {
		return entity.ExtractionResult{}, fmt.Errorf("ocr: %w", err)
	}

	text, conf := joinBlocks(blocks)
	e.logger.Debug("extract.image.ok",
		"file", filepath.Base(in.Path), "blocks", len(blocks), "confidence", conf)

	return entity.ExtractionResult{
		Text:       Normalize(text),
		Confidence: conf,
		Method:     MethodImageOCR,
		Pages:      1,
		Duration:   time.Since(start),
	}, nil
}

// decodeImage handles HEIC explicitly; everything else goes through the
// registered stdlib decoders.
func decodeImage(content []byte, ext string) (image.Image, error) {
	if constants.IsHEICExt(ext) {
		img, err := heic.Decode(bytes.NewReader(content))
		if err != nil {
			return nil, fmt.Errorf("decode heic: %w", err)
		}
		return img, nil
	}
	img, _, err := image.Decode(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}
	return img, nil
}

// joinBlocks reconstructs reading order: blocks are bucketed into visual
// lines top-to-bottom, each line is ordered left-to-right, and per-block
// confidences are averaged. Bucketing keeps the result independent of the
// input order even when vertical spans overlap in chains.
func joinBlocks(blocks []ocr.Block) (string, float32) {
	if len(blocks) == 0 {
		return "", 0
	}
	sorted := make([]ocr.Block, len(blocks))
	copy(sorted, blocks)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Y != sorted[j].Y {
			return sorted[i].Y < sorted[j].Y
		}
		return sorted[i].X < sorted[j].X
	})

	// a block joins the current line while its vertical center falls inside
	// the line's span
	var lines [][]ocr.Block
	bottom := 0
	for _, bl := range sorted {
		center := bl.Y + bl.H/2
		if len(lines) == 0 || center >= bottom {
			lines = append(lines, []ocr.Block{bl})
			bottom = bl.Y + bl.H
			continue
		}
		last := len(lines) - 1
		lines[last] = append(lines[last], bl)
		if bl.Y+bl.H > bottom {
			bottom = bl.Y + bl.H
		}
	}

	var b strings.Builder
	var sum float64
	for li, line := range lines {
		sort.SliceStable(line, func(i, j int) bool { return line[i].X < line[j].X })
		if li > 0 {
			b.WriteString("\n")
		}
		for bi, bl := range line {
			if bi > 0 {
				b.WriteString(" ")
			}
			b.WriteString(bl.Text)
			sum += float64(bl.Confidence)
		}
	}
	return b.String(), float32(sum / float64(len(sorted)))
}
