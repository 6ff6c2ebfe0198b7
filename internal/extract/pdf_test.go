package extract

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRunner struct {
	stdout  []byte
	stderr  []byte
	err     error
	gotName string
	gotArgs []string
}

func (s *stubRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	s.gotName = name
	s.gotArgs = args
	return s.stdout, s.stderr, s.err
}

func TestPDFExtractorTextLayer(t *testing.T) {
	layer := "STORE RECEIPT\nItem A    12.00\nItem B     8.50\nTotal     20.50\nThank you for shopping"
	runner := &stubRunner{stdout: []byte(layer)}
	e := NewPDFExtractor(PDFConfig{MinTextLength: 50}, runner, nil, nil)

	// content is not a valid PDF, so the in-process backend contributes a
	// warning and the external tool result wins
	res, err := e.Extract(context.Background(), Input{Path: "/tmp/x.pdf", Content: []byte("junk"), Ext: "pdf"})
	require.NoError(t, err)
	assert.Equal(t, MethodPDFText, res.Method)
	assert.Equal(t, float32(0.95), res.Confidence)
	assert.Equal(t, 1, res.Pages)
	assert.Contains(t, res.Text, "Total 20.50")
	require.NotEmpty(t, res.Warnings)
	assert.Contains(t, res.Warnings[0], "fitz")

	assert.Equal(t, "pdftotext", runner.gotName)
	assert.Equal(t, []string{"-layout", "-enc", "UTF-8", "-eol", "unix", "/tmp/x.pdf", "-"}, runner.gotArgs)
}

func TestPDFExtractorPageCount(t *testing.T) {
	layer := strings.Repeat("page text with enough characters to pass the minimum\n", 2)
	runner := &stubRunner{stdout: []byte(layer + "\fsecond page\fthird page")}
	e := NewPDFExtractor(PDFConfig{MinTextLength: 10}, runner, nil, nil)

	res, err := e.Extract(context.Background(), Input{Path: "/tmp/x.pdf", Content: []byte("junk"), Ext: "pdf"})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Pages)
}

func TestPDFExtractorFallbackOnUnreadable(t *testing.T) {
	// both text backends fail and the bytes cannot be rendered either
	runner := &stubRunner{err: errors.New("pdftotext not installed")}
	e := NewPDFExtractor(PDFConfig{MinTextLength: 50}, runner, nil, nil)

	_, err := e.Extract(context.Background(), Input{Path: "/tmp/x.pdf", Content: []byte("junk"), Ext: "pdf"})
	require.Error(t, err)
}

func TestPDFExtractorShortTextTriggersFallback(t *testing.T) {
	// a text layer below the minimum is treated as absent
	runner := &stubRunner{stdout: []byte("scan01")}
	e := NewPDFExtractor(PDFConfig{MinTextLength: 50}, runner, nil, nil)

	_, err := e.Extract(context.Background(), Input{Path: "/tmp/x.pdf", Content: []byte("junk"), Ext: "pdf"})
	// not a renderable document, so the OCR fallback reports the failure
	require.Error(t, err)
}
