// Package llmtest provides a scripted LLM provider for tests.
package llmtest

import (
	"context"
	"sync"

	"doc-chat-be/pkg/llm"
)

// Provider answers every Chat with ChatReply and streams StreamParts from ChatStream.
// Every request is recorded so tests can inspect the prompts.
type Provider struct {
	ChatReply   string
	ChatErr     error
	StreamParts []string
	// StreamErr, when set, is delivered after StreamParts as the final token.
	StreamErr error
	// OpenErr makes ChatStream fail before any token.
	OpenErr error

	mu       sync.Mutex
	requests [][]llm.Message
}

var _ llm.LLMProvider = (*Provider)(nil)

func (p *Provider) record(history []llm.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := make([]llm.Message, len(history))
	copy(cp, history)
	p.requests = append(p.requests, cp)
}

// Requests returns every message list sent so far, oldest first.
func (p *Provider) Requests() [][]llm.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]llm.Message, len(p.requests))
	copy(out, p.requests)
	return out
}

func (p *Provider) Chat(ctx context.Context, history []llm.Message, opts ...llm.Option) (string, error) {
	p.record(history)
	if p.ChatErr != nil {
		return "", p.ChatErr
	}
	return p.ChatReply, nil
}

func (p *Provider) ChatStream(ctx context.Context, history []llm.Message, opts ...llm.Option) (<-chan llm.StreamToken, error) {
	p.record(history)
	if p.OpenErr != nil {
		return nil, p.OpenErr
	}

	ch := make(chan llm.StreamToken)
	go func() {
		defer close(ch)
		send := func(tok llm.StreamToken) bool {
			select {
			case ch <- tok:
				return true
			case <-ctx.Done():
				return false
			}
		}
		for _, part := range p.StreamParts {
			if !send(llm.StreamToken{Content: part}) {
				return
			}
		}
		if p.StreamErr != nil {
			send(llm.StreamToken{Done: true, Err: p.StreamErr})
			return
		}
		send(llm.StreamToken{Done: true})
	}()
	return ch, nil
}

func (p *Provider) Generate(ctx context.Context, prompt string, opts ...llm.Option) (string, error) {
	return p.Chat(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}}, opts...)
}
