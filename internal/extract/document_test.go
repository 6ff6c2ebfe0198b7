package extract

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentExtractorCSV(t *testing.T) {
	csvContent := []byte("date,merchant,amount\n2024-03-01,Coffee House,4.50\n2024-03-02,Grocer,23.10\n")
	e := NewDocumentExtractor(DocumentConfig{}, nil)

	res, err := e.Extract(context.Background(), Input{Content: csvContent, Ext: "csv"})
	require.NoError(t, err)
	assert.Equal(t, MethodDocument, res.Method)
	assert.Equal(t, float32(0.95), res.Confidence)
	assert.Equal(t, "date | merchant | amount\n2024-03-01 | Coffee House | 4.50\n2024-03-02 | Grocer | 23.10", res.Text)
}

func TestDocumentExtractorCSVRaggedRows(t *testing.T) {
	csvContent := []byte("a,b,c\n1,2\nonly one\n")
	e := NewDocumentExtractor(DocumentConfig{}, nil)

	res, err := e.Extract(context.Background(), Input{Content: csvContent, Ext: "csv"})
	require.NoError(t, err)
	assert.Contains(t, res.Text, "1 | 2")
	assert.Contains(t, res.Text, "only one")
}

func TestDocumentExtractorTSV(t *testing.T) {
	tsvContent := []byte("merchant\tamount\nDiner\t12,50\n")
	e := NewDocumentExtractor(DocumentConfig{}, nil)

	res, err := e.Extract(context.Background(), Input{Content: tsvContent, Ext: "tsv"})
	require.NoError(t, err)
	assert.Equal(t, "merchant | amount\nDiner | 12,50", res.Text)
}

func TestDocumentExtractorJSON(t *testing.T) {
	jsonContent := []byte(`{"merchant": "Coffee House", "total": 4.5, "items": [{"name": "Latte"}], "meta": null}`)
	e := NewDocumentExtractor(DocumentConfig{}, nil)

	res, err := e.Extract(context.Background(), Input{Content: jsonContent, Ext: "json"})
	require.NoError(t, err)
	assert.Equal(t, float32(0.90), res.Confidence)
	// keys come out sorted
	assert.Equal(t, "items[0].name: Latte\nmerchant: Coffee House\nmeta:\ntotal: 4.5", res.Text)
}

func TestDocumentExtractorJSONInvalid(t *testing.T) {
	e := NewDocumentExtractor(DocumentConfig{}, nil)
	_, err := e.Extract(context.Background(), Input{Content: []byte("{not json"), Ext: "json"})
	require.Error(t, err)
}

func TestDocumentExtractorXML(t *testing.T) {
	xmlContent := []byte(`<receipt><merchant>Coffee House</merchant><total>4.50</total></receipt>`)
	e := NewDocumentExtractor(DocumentConfig{}, nil)

	res, err := e.Extract(context.Background(), Input{Content: xmlContent, Ext: "xml"})
	require.NoError(t, err)
	assert.Equal(t, "merchant: Coffee House\ntotal: 4.50", res.Text)
}

func TestDocumentExtractorPlainText(t *testing.T) {
	txt := []byte("\xEF\xBB\xBFCOFFEE HOUSE\nLatte\t4.50\n\n\n\nThank you\n")
	e := NewDocumentExtractor(DocumentConfig{}, nil)

	res, err := e.Extract(context.Background(), Input{Content: txt, Ext: "txt"})
	require.NoError(t, err)
	assert.Equal(t, float32(1.0), res.Confidence)
	assert.Equal(t, "COFFEE HOUSE\nLatte 4.50\n\nThank you", res.Text)
}

func TestDocumentExtractorRowCap(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 50; i++ {
		sb.WriteString("row,value\n")
	}
	e := NewDocumentExtractor(DocumentConfig{MaxRows: 10}, nil)

	res, err := e.Extract(context.Background(), Input{Content: []byte(sb.String()), Ext: "csv"})
	require.NoError(t, err)
	assert.Len(t, strings.Split(res.Text, "\n"), 10)
}

func TestDocumentExtractorUnsupportedExtension(t *testing.T) {
	e := NewDocumentExtractor(DocumentConfig{}, nil)
	_, err := e.Extract(context.Background(), Input{Content: []byte("x"), Ext: "exe"})
	require.Error(t, err)
}
