// Package ingest turns uploaded files into ordered, overlapping text chunks.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"doc-chat-be/internal/pkg/logger"
	"doc-chat-be/pkg/utils"
)

const (
	DefaultChunkSize    = 200
	DefaultChunkOverlap = 20
)

var ErrUnsupported = errors.New("unsupported file type")

// Outcome classifies an ingestion so callers can tell a benign empty document from a failure.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeEmpty
	OutcomeUnsupported
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeEmpty:
		return "empty"
	case OutcomeUnsupported:
		return "unsupported"
	case OutcomeFailed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

type Chunk struct {
	Text   string
	Index  int
	Source map[string]interface{}
}

type Result struct {
	Chunks  []Chunk
	Outcome Outcome
	Err     error
}

// Degraded reports whether the file contributed nothing because of a problem.
func (r Result) Degraded() bool {
	return r.Outcome == OutcomeUnsupported || r.Outcome == OutcomeFailed
}

// Parser extracts raw text from file content.
type Parser interface {
	Parse(ctx context.Context, content []byte) (string, error)
}

type ParserFunc func(ctx context.Context, content []byte) (string, error)

func (f ParserFunc) Parse(ctx context.Context, content []byte) (string, error) {
	return f(ctx, content)
}

type Ingestor struct {
	chunkSize int
	overlap   int
	parsers   map[string]Parser
	logger    logger.ILogger
}

type Option func(*Ingestor)

func WithChunkSize(size int) Option {
	return func(i *Ingestor) {
		if size > 0 {
			i.chunkSize = size
		}
	}
}

func WithChunkOverlap(overlap int) Option {
	return func(i *Ingestor) {
		if overlap >= 0 {
			i.overlap = overlap
		}
	}
}

// WithParser registers (or replaces) the parser for a lower-case extension such as ".pdf".
func WithParser(ext string, p Parser) Option {
	return func(i *Ingestor) {
		i.parsers[strings.ToLower(ext)] = p
	}
}

func WithLogger(l logger.ILogger) Option {
	return func(i *Ingestor) {
		i.logger = l
	}
}

// New builds an Ingestor with the text, markdown, docx and pdf parsers.
// Image parsers need an OCR extractor and are registered with WithParser (see ImageParser).
func New(opts ...Option) *Ingestor {
	i := &Ingestor{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
		parsers: map[string]Parser{
			".txt":  ParserFunc(parseText),
			".md":   ParserFunc(parseMarkdown),
			".docx": ParserFunc(parseDocx),
			".pdf":  ParserFunc(parsePDF),
		},
		logger: logger.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.overlap >= i.chunkSize {
		i.overlap = 0
	}
	return i
}

func (i *Ingestor) Supports(filePath string) bool {
	_, ok := i.parsers[strings.ToLower(filepath.Ext(filePath))]
	return ok
}

// IngestFile reads filePath from disk and ingests it.
func (i *Ingestor) IngestFile(ctx context.Context, filePath string) Result {
	if !i.Supports(filePath) {
		return i.unsupported(filePath)
	}
	content, err := os.ReadFile(filePath)
	if err != nil {
		return i.failed(filePath, fmt.Errorf("read file: %w", err))
	}
	return i.Ingest(ctx, filePath, content)
}

// Ingest parses content according to the extension of filePath and splits it into chunks.
// It never returns a bare error: every problem is folded into the Result.
func (i *Ingestor) Ingest(ctx context.Context, filePath string, content []byte) (res Result) {
	ext := strings.ToLower(filepath.Ext(filePath))
	parser, ok := i.parsers[ext]
	if !ok {
		return i.unsupported(filePath)
	}

	defer func() {
		// Third-party parsers (pdf in particular) panic on malformed input.
		if r := recover(); r != nil {
			res = i.failed(filePath, fmt.Errorf("parser panic: %v", r))
		}
	}()

	text, err := parser.Parse(ctx, content)
	if err != nil {
		return i.failed(filePath, err)
	}

	pieces := utils.SplitText(text, i.chunkSize, i.overlap)
	if len(pieces) == 0 {
		i.logger.Info("Ingestor", "No extractable text", map[string]interface{}{"file_path": filePath})
		return Result{Outcome: OutcomeEmpty}
	}

	chunks := make([]Chunk, len(pieces))
	for idx, p := range pieces {
		chunks[idx] = Chunk{
			Text:  p,
			Index: idx,
			Source: map[string]interface{}{
				"source":    filepath.Base(filePath),
				"extension": ext,
			},
		}
	}

	i.logger.Debug("Ingestor", "Document split", map[string]interface{}{
		"file_path": filePath,
		"chunks":    len(chunks),
	})
	return Result{Chunks: chunks, Outcome: OutcomeOK}
}

func (i *Ingestor) unsupported(filePath string) Result {
	i.logger.Warn("Ingestor", "Unsupported file type", map[string]interface{}{"file_path": filePath})
	return Result{Outcome: OutcomeUnsupported, Err: fmt.Errorf("%w: %s", ErrUnsupported, filepath.Ext(filePath))}
}

func (i *Ingestor) failed(filePath string, err error) Result {
	i.logger.Error("Ingestor", "Failed to parse document", map[string]interface{}{
		"file_path": filePath,
		"error":     err.Error(),
	})
	return Result{Outcome: OutcomeFailed, Err: err}
}
