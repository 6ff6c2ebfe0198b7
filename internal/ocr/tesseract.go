// Package ocr wraps the external OCR engine behind a narrow interface: an
// image in, positioned text blocks with confidences out.
package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// Block is one recognized line of text with its bounding box and a
// confidence in [0,1].
type Block struct {
	X, Y, W, H int
	Text       string
	Confidence float32
}

// Engine is the OCR capability consumed by the image strategy.
type Engine interface {
	Recognize(ctx context.Context, imagePath string, languages string) ([]Block, error)
}

// Config for the tesseract engine.
type Config struct {
	Tesseract string // binary name or absolute path; if empty -> "tesseract"
	PSM       int    // page segmentation mode; 0 leaves the default
	OEM       int    // engine mode; 1 = LSTM; 0 leaves the default
}

// Tesseract shells out via the Runner seam and parses TSV output into line
// blocks.
type Tesseract struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewTesseract(cfg Config, runner Runner, logger *slog.Logger) *Tesseract {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Tesseract{cfg: cfg, runner: runner, logger: logger}
}

// Recognize runs tesseract in TSV mode and groups word rows into line
// blocks. Word confidences (0..100) are averaged per line and scaled to 0..1.
func (t *Tesseract) Recognize(ctx context.Context, imagePath string, languages string) ([]Block, error) {
	if languages == "" {
		languages = "eng"
	}
	args := []string{imagePath, "stdout", "-l", languages}
	if t.cfg.PSM > 0 {
		args = append(args, "--psm", strconv.Itoa(t.cfg.PSM))
	}
	if t.cfg.OEM > 0 {
		args = append(args, "--oem", strconv.Itoa(t.cfg.OEM))
	}
	args = append(args, "tsv")

	out, errb, err := t.runner.Run(ctx, t.cfg.Tesseract, args...)
	if err != nil {
		return nil, fmt.Errorf("tesseract: %w (stderr: %s)", err, truncate(string(errb), 512))
	}

	blocks := parseTSV(string(out))
	t.logger.Debug("ocr.recognize.ok", "image", imagePath, "blocks", len(blocks))
	return blocks, nil
}

// lineKey identifies a line within the tesseract page structure.
type lineKey struct {
	page, block, par, line int
}

type lineAcc struct {
	words   []string
	sumConf float64
	nConf   int
	x0, y0  int
	x1, y1  int
	order   int
}

// parseTSV groups tesseract word rows into line blocks. Columns:
// level page block par line word left top width height conf text.
func parseTSV(tsv string) []Block {
	lines := strings.Split(tsv, "\n")
	acc := make(map[lineKey]*lineAcc)
	order := 0

	for i, ln := range lines {
		if i == 0 || len(ln) == 0 {
			continue // skip header
		}
		cols := strings.Split(ln, "\t")
		if len(cols) < 12 {
			continue // malformed row
		}
		text := strings.TrimSpace(cols[11])
		if text == "" {
			continue
		}
		conf, err := strconv.ParseFloat(cols[10], 64)
		if err != nil || conf < 0 {
			continue // -1 marks structural rows, not words
		}
		key := lineKey{atoi(cols[1]), atoi(cols[2]), atoi(cols[3]), atoi(cols[4])}
		left, top := atoi(cols[6]), atoi(cols[7])
		right, bottom := left+atoi(cols[8]), top+atoi(cols[9])

		la, ok := acc[key]
		if !ok {
			la = &lineAcc{x0: left, y0: top, x1: right, y1: bottom, order: order}
			acc[key] = la
			order++
		}
		la.words = append(la.words, text)
		la.sumConf += conf
		la.nConf++
		if left < la.x0 {
			la.x0 = left
		}
		if top < la.y0 {
			la.y0 = top
		}
		if right > la.x1 {
			la.x1 = right
		}
		if bottom > la.y1 {
			la.y1 = bottom
		}
	}

	out := make([]Block, len(acc))
	for _, la := range acc {
		out[la.order] = Block{
			X:          la.x0,
			Y:          la.y0,
			W:          la.x1 - la.x0,
			H:          la.y1 - la.y0,
			Text:       strings.Join(la.words, " "),
			Confidence: float32(la.sumConf / float64(la.nConf) / 100.0),
		}
	}
	return out
}

func atoi(s string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(s))
	return n
}
