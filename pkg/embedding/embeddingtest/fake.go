// Package embeddingtest provides a deterministic embedder for tests.
package embeddingtest

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"unicode"

	"doc-chat-be/pkg/embedding"
)

const dims = 32

var ErrInjected = errors.New("embedding failure injected")

// Embedder hashes runes into a small normalized vector. Texts sharing words land close together.
type Embedder struct {
	Model string
	// FailOn makes Generate fail for any text containing it.
	FailOn string
	calls  atomic.Int64
}

var _ embedding.EmbeddingProvider = (*Embedder)(nil)

func New() *Embedder {
	return &Embedder{Model: "fake-embed"}
}

func (e *Embedder) Generate(ctx context.Context, text string, taskType string) (*embedding.EmbeddingResponse, error) {
	e.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e.FailOn != "" && strings.Contains(text, e.FailOn) {
		return nil, ErrInjected
	}

	vec := make([]float32, dims)
	for _, word := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		var h uint32 = 2166136261
		for _, r := range word {
			h ^= uint32(r)
			h *= 16777619
		}
		vec[h%dims]++
	}
	vec[dims-1] += 0.01

	return &embedding.EmbeddingResponse{
		Embedding: embedding.EmbeddingResponseEmbedding{Values: embedding.NormalizeVector(vec)},
	}, nil
}

func (e *Embedder) ModelName() string { return e.Model }

// Calls reports how many times Generate ran.
func (e *Embedder) Calls() int64 { return e.calls.Load() }
