package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/fintrack/receipt-processor/internal/entity"
)

// DocumentConfig bounds the structured-document strategy.
type DocumentConfig struct {
	MaxRows int // row cap on the serialized output
}

// DocumentExtractor parses container formats (delimited text, spreadsheets,
// JSON, XML, word-processor documents) directly into a row/field text
// serialization. Parsing is deterministic, so confidence is fixed near its
// maximum per format.
type DocumentExtractor struct {
	cfg    DocumentConfig
	logger *slog.Logger
}

func NewDocumentExtractor(cfg DocumentConfig, logger *slog.Logger) *DocumentExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = 200
	}
	return &DocumentExtractor{cfg: cfg, logger: logger}
}

func (e *DocumentExtractor) Extract(ctx context.Context, in Input) (entity.ExtractionResult, error) {
	start := time.Now()

	var rows []string
	var conf float32
	var err error

	switch in.Ext {
	case "csv":
		rows, err = e.delimitedRows(in.Content, ',')
		conf = 0.95
	case "tsv":
		rows, err = e.delimitedRows(in.Content, '\t')
		conf = 0.95
	case "xlsx":
		rows, err = e.sheetRows(in.Content)
		conf = 0.98
	case "json":
		rows, err = e.jsonRows(in.Content)
		conf = 0.90
	case "xml":
		rows, err = e.xmlRows(in.Content)
		conf = 0.90
	case "docx":
		rows, err = e.docxRows(in.Content)
		conf = 0.95
	case "txt", "log", "md":
		rows = textRows(in.Content)
		conf = 1.0
	default:
		return entity.ExtractionResult{}, fmt.Errorf("unsupported document extension: %q", in.Ext)
	}
	if err != nil {
		return entity.ExtractionResult{}, err
	}
	if len(rows) > e.cfg.MaxRows {
		rows = rows[:e.cfg.MaxRows]
	}

	_ = ctx
	e.logger.Debug("extract.document.ok", "ext", in.Ext, "rows", len(rows))

	return entity.ExtractionResult{
		Text:       Normalize(strings.Join(rows, "\n")),
		Confidence: conf,
		Method:     MethodDocument,
		Pages:      1,
		Duration:   time.Since(start),
	}, nil
}

// delimitedRows serializes each record as " | "-joined fields.
func (e *DocumentExtractor) delimitedRows(content []byte, delim rune) ([]string, error) {
	r := csv.NewReader(bytes.NewReader(content))
	r.Comma = delim
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var rows []string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse delimited row %d: %w", len(rows)+1, err)
		}
		rows = append(rows, strings.Join(rec, " | "))
		if len(rows) > e.cfg.MaxRows {
			break
		}
	}
	return rows, nil
}

func (e *DocumentExtractor) sheetRows(content []byte) ([]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("open spreadsheet: %w", err)
	}
	defer f.Close()

	var rows []string
	for _, sheet := range f.GetSheetList() {
		recs, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
		}
		if len(recs) == 0 {
			continue
		}
		rows = append(rows, "Sheet: "+sheet)
		for _, rec := range recs {
			rows = append(rows, strings.Join(rec, " | "))
			if len(rows) > e.cfg.MaxRows {
				return rows, nil
			}
		}
	}
	return rows, nil
}

// jsonRows renders the document as sorted "key: value" lines, flattening
// nested objects with dotted paths.
func (e *DocumentExtractor) jsonRows(content []byte) ([]string, error) {
	var v any
	if err := json.Unmarshal(content, &v); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}
	flat := map[string]string{}
	flattenJSON("", v, flat)

	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rows := make([]string, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, k+": "+flat[k])
	}
	return rows, nil
}

func flattenJSON(prefix string, v any, out map[string]string) {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			p := k
			if prefix != "" {
				p = prefix + "." + k
			}
			flattenJSON(p, child, out)
		}
	case []any:
		for i, child := range t {
			flattenJSON(fmt.Sprintf("%s[%d]", prefix, i), child, out)
		}
	case nil:
		out[prefix] = ""
	default:
		out[prefix] = fmt.Sprintf("%v", t)
	}
}

// xmlRows walks the token stream and emits "element: text" rows.
func (e *DocumentExtractor) xmlRows(content []byte) ([]string, error) {
	dec := xml.NewDecoder(bytes.NewReader(content))
	var rows []string
	var current string
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			current = t.Name.Local
		case xml.CharData:
			text := strings.TrimSpace(string(t))
			if text != "" && current != "" {
				rows = append(rows, current+": "+text)
			}
		}
		if len(rows) > e.cfg.MaxRows {
			break
		}
	}
	return rows, nil
}

// docxRows pulls paragraph and table-cell text out of word/document.xml.
func (e *DocumentExtractor) docxRows(content []byte) ([]string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("open docx: %w", err)
	}
	var docXML []byte
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			rc, err := f.Open()
			if err != nil {
				return nil, fmt.Errorf("open document.xml: %w", err)
			}
			docXML, err = io.ReadAll(rc)
			_ = rc.Close()
			if err != nil {
				return nil, fmt.Errorf("read document.xml: %w", err)
			}
			break
		}
	}
	if docXML == nil {
		return nil, fmt.Errorf("docx has no word/document.xml")
	}

	// paragraphs (w:p) become rows; table cells (w:tc) within a row (w:tr)
	// join with " | "
	dec := xml.NewDecoder(bytes.NewReader(docXML))
	var rows []string
	var para strings.Builder
	var tableRow []string
	inCell := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse document.xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "tc" {
				inCell = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "p":
				text := strings.TrimSpace(para.String())
				para.Reset()
				if text == "" {
					break
				}
				if inCell {
					tableRow = append(tableRow, text)
				} else {
					rows = append(rows, text)
				}
			case "tc":
				inCell = false
			case "tr":
				if len(tableRow) > 0 {
					rows = append(rows, strings.Join(tableRow, " | "))
					tableRow = nil
				}
			}
		case xml.CharData:
			para.Write(t)
		}
		if len(rows) > e.cfg.MaxRows {
			break
		}
	}
	return rows, nil
}

// textRows decodes plain text, tolerating a UTF-8 BOM.
func textRows(content []byte) []string {
	content = bytes.TrimPrefix(content, []byte{0xEF, 0xBB, 0xBF})
	return strings.Split(string(content), "\n")
}
