package ingest

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOCR struct {
	text string
	err  error
}

func (f fakeOCR) ExtractText(context.Context, []byte) (string, error) {
	return f.text, f.err
}

func buildDocx(t *testing.T, paragraphs ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)

	var body strings.Builder
	for _, p := range paragraphs {
		body.WriteString(`<w:p><w:r><w:t>` + p + `</w:t></w:r></w:p>`)
	}
	_, err = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>` +
		`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		body.String() + `</w:body></w:document>`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestIngest_Outcomes(t *testing.T) {
	ctx := context.Background()
	ing := New(WithOCR(fakeOCR{text: "scanned receipt total 42"}))

	tests := []struct {
		name       string
		path       string
		content    []byte
		outcome    Outcome
		wantChunks int
	}{
		{"small txt", "notes.txt", []byte(strings.Repeat("x", 50)), OutcomeOK, 1},
		{"long txt", "notes.txt", []byte(strings.Repeat("x", 500)), OutcomeOK, 3},
		{"empty txt", "empty.txt", []byte("   \n"), OutcomeEmpty, 0},
		{"upper-case extension", "NOTES.TXT", []byte("hello"), OutcomeOK, 1},
		{"executable", "setup.exe", []byte{0x4d, 0x5a}, OutcomeUnsupported, 0},
		{"legacy doc", "old.doc", []byte{0xd0, 0xcf}, OutcomeUnsupported, 0},
		{"no extension", "README", []byte("hello"), OutcomeUnsupported, 0},
		{"broken pdf", "paper.pdf", []byte("not a pdf"), OutcomeFailed, 0},
		{"broken docx", "report.docx", []byte("not a zip"), OutcomeFailed, 0},
		{"binary txt", "blob.txt", []byte{0xff, 0xfe, 0xfd}, OutcomeFailed, 0},
		{"image via ocr", "scan.jpg", []byte{0xff, 0xd8}, OutcomeOK, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ing.Ingest(ctx, tt.path, tt.content)
			assert.Equal(t, tt.outcome, res.Outcome, "outcome %s", res.Outcome)
			assert.Len(t, res.Chunks, tt.wantChunks)
			if res.Outcome == OutcomeUnsupported {
				assert.ErrorIs(t, res.Err, ErrUnsupported)
			}
			assert.Equal(t, tt.outcome == OutcomeUnsupported || tt.outcome == OutcomeFailed, res.Degraded())
		})
	}
}

func TestIngest_ChunkMetadata(t *testing.T) {
	res := New().Ingest(context.Background(), "/data/uploads/s1/guide.txt", []byte(strings.Repeat("a", 300)))
	require.Equal(t, OutcomeOK, res.Outcome)
	require.Len(t, res.Chunks, 2)

	for i, c := range res.Chunks {
		assert.Equal(t, i, c.Index)
		assert.Equal(t, "guide.txt", c.Source["source"])
		assert.Equal(t, ".txt", c.Source["extension"])
	}
}

func TestIngest_Docx(t *testing.T) {
	content := buildDocx(t, "First paragraph.", "Second paragraph.")

	res := New().Ingest(context.Background(), "report.docx", content)
	require.Equal(t, OutcomeOK, res.Outcome)
	require.Len(t, res.Chunks, 1)
	assert.Equal(t, "First paragraph.\nSecond paragraph.", res.Chunks[0].Text)
}

func TestIngest_MarkdownIsStripped(t *testing.T) {
	md := "# Title\n\nSome **bold** text with a [link](http://example.com).\n\n- item one\n- item two\n"

	res := New().Ingest(context.Background(), "readme.md", []byte(md))
	require.Equal(t, OutcomeOK, res.Outcome)

	text := res.Chunks[0].Text
	assert.Contains(t, text, "Title")
	assert.Contains(t, text, "Some bold text with a link.")
	assert.Contains(t, text, "item one")
	assert.NotContains(t, text, "**")
	assert.NotContains(t, text, "http://example.com")
	assert.NotContains(t, text, "# ")
}

func TestIngest_OCRFailureIsFailedNotEmpty(t *testing.T) {
	ing := New(WithOCR(fakeOCR{err: errors.New("model not loaded")}))

	res := ing.Ingest(context.Background(), "scan.png", []byte{0x89})
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.ErrorContains(t, res.Err, "model not loaded")
}

func TestIngest_ImagesUnsupportedWithoutOCR(t *testing.T) {
	res := New().Ingest(context.Background(), "scan.jpg", []byte{0xff})
	assert.Equal(t, OutcomeUnsupported, res.Outcome)
}

func TestIngest_ParserPanicIsRecovered(t *testing.T) {
	ing := New(WithParser(".bad", ParserFunc(func(context.Context, []byte) (string, error) {
		panic("boom")
	})))

	res := ing.Ingest(context.Background(), "x.bad", nil)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.ErrorContains(t, res.Err, "boom")
}

func TestIngestFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o644))

	ing := New(WithChunkSize(5), WithChunkOverlap(0))
	res := ing.IngestFile(context.Background(), path)
	require.Equal(t, OutcomeOK, res.Outcome)
	assert.Len(t, res.Chunks, 3)

	missing := ing.IngestFile(context.Background(), filepath.Join(dir, "missing.txt"))
	assert.Equal(t, OutcomeFailed, missing.Outcome)

	unsupported := ing.IngestFile(context.Background(), filepath.Join(dir, "missing.exe"))
	assert.Equal(t, OutcomeUnsupported, unsupported.Outcome)
}
