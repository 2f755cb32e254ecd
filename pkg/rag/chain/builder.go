// Package chain builds the per-turn processors that turn a user message into a token stream.
package chain

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"doc-chat-be/internal/entity"
	"doc-chat-be/internal/pkg/logger"
	"doc-chat-be/pkg/llm"
	"doc-chat-be/pkg/rag/index"
	"doc-chat-be/pkg/rag/prompt"
)

// Mode is decided once per turn, before the processor is built.
type Mode int

const (
	// ModeBase answers from chat history alone.
	ModeBase Mode = iota
	// ModeRetrieval grounds the answer in chunks retrieved from the index.
	ModeRetrieval
)

func (m Mode) String() string {
	switch m {
	case ModeBase:
		return "base"
	case ModeRetrieval:
		return "retrieval"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

var ErrUnknownMode = errors.New("unknown chain mode")

// Searcher is the slice of the index the chain needs.
type Searcher interface {
	Search(ctx context.Context, query string, filter index.Filter, topK int) ([]*entity.ScoredDocumentChunk, error)
}

// TurnProcessor produces the answer for one user message as a lazy token stream.
// The channel is closed after the final token; a token carrying Err is final.
type TurnProcessor interface {
	Mode() Mode
	Process(ctx context.Context, history []llm.Message, input string) (<-chan llm.StreamToken, error)
}

type Builder struct {
	provider llm.LLMProvider
	searcher Searcher
	logger   logger.ILogger
	// trace receives full prompts and answers; kept apart from the main log.
	trace logger.ILogger
}

type Option func(*Builder)

func WithLogger(l logger.ILogger) Option {
	return func(b *Builder) { b.logger = l }
}

func WithTraceLogger(l logger.ILogger) Option {
	return func(b *Builder) { b.trace = l }
}

func NewBuilder(provider llm.LLMProvider, searcher Searcher, opts ...Option) *Builder {
	b := &Builder{
		provider: provider,
		searcher: searcher,
		logger:   logger.NewNopLogger(),
		trace:    logger.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build returns a fresh processor. Processors hold no state beyond their configuration.
func (b *Builder) Build(mode Mode, filter index.Filter, topK int) (TurnProcessor, error) {
	switch mode {
	case ModeBase:
		return &baseProcessor{b: b}, nil
	case ModeRetrieval:
		if err := filter.Validate(); err != nil {
			return nil, err
		}
		if topK <= 0 {
			topK = 5
		}
		return &retrievalProcessor{b: b, filter: filter, topK: topK}, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownMode, int(mode))
	}
}

type baseProcessor struct {
	b *Builder
}

func (p *baseProcessor) Mode() Mode { return ModeBase }

func (p *baseProcessor) Process(ctx context.Context, history []llm.Message, input string) (<-chan llm.StreamToken, error) {
	return p.b.stream(ctx, ModeBase, prompt.Compose(prompt.BaseSystem(), history, input))
}

type retrievalProcessor struct {
	b      *Builder
	filter index.Filter
	topK   int
}

func (p *retrievalProcessor) Mode() Mode { return ModeRetrieval }

func (p *retrievalProcessor) Process(ctx context.Context, history []llm.Message, input string) (<-chan llm.StreamToken, error) {
	// 1. Rewrite the question so retrieval does not depend on earlier turns
	query, err := p.b.contextualize(ctx, history, input)
	if err != nil {
		return nil, err
	}

	// 2. Retrieve
	results, err := p.b.searcher.Search(ctx, query, p.filter, p.topK)
	if err != nil {
		return nil, fmt.Errorf("retrieve context: %w", err)
	}
	contexts := make([]string, len(results))
	for i, r := range results {
		contexts[i] = r.Chunk.Content
	}

	p.b.logger.Debug("ChainBuilder", "Context retrieved", map[string]interface{}{
		"session_id": p.filter.SessionID,
		"query":      query,
		"chunks":     len(contexts),
	})

	// 3. Answer grounded in the retrieved context
	return p.b.stream(ctx, ModeRetrieval, prompt.Compose(prompt.RetrievalSystem(contexts), history, input))
}

var thinkBlock = regexp.MustCompile(`(?s)<think>.*?</think>`)

// StripThinking removes reasoning blocks some models emit before their reply.
func StripThinking(s string) string {
	return strings.TrimSpace(thinkBlock.ReplaceAllString(s, ""))
}

func (b *Builder) contextualize(ctx context.Context, history []llm.Message, input string) (string, error) {
	if len(history) == 0 {
		return input, nil
	}

	messages := prompt.Compose(prompt.ContextualizeSystem(), history, input)
	b.trace.Info("ChainBuilder", "Contextualize prompt", map[string]interface{}{"messages": messages})

	out, err := b.provider.Chat(ctx, messages, llm.WithTemperature(0))
	if err != nil {
		return "", fmt.Errorf("contextualize question: %w", err)
	}

	query := StripThinking(out)
	b.trace.Info("ChainBuilder", "Contextualized question", map[string]interface{}{
		"input": input,
		"query": query,
	})
	if query == "" {
		return input, nil
	}
	return query, nil
}

// stream starts generation and tees the fragments into the trace log once the answer ends.
func (b *Builder) stream(ctx context.Context, mode Mode, messages []llm.Message) (<-chan llm.StreamToken, error) {
	b.trace.Info("ChainBuilder", "Answer prompt", map[string]interface{}{
		"mode":     mode.String(),
		"messages": messages,
	})

	upstream, err := b.provider.ChatStream(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("start generation: %w", err)
	}

	out := make(chan llm.StreamToken)
	go func() {
		defer close(out)

		var answer strings.Builder
		for tok := range upstream {
			answer.WriteString(tok.Content)
			select {
			case out <- tok:
			case <-ctx.Done():
				// Drain so the provider goroutine can exit.
				for range upstream {
				}
				return
			}
			if tok.Err != nil {
				b.trace.Error("ChainBuilder", "Generation failed", map[string]interface{}{
					"mode":  mode.String(),
					"error": tok.Err.Error(),
				})
				return
			}
		}
		b.trace.Info("ChainBuilder", "Answer generated", map[string]interface{}{
			"mode":   mode.String(),
			"answer": answer.String(),
		})
	}()
	return out, nil
}
