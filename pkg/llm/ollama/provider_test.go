package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"doc-chat-be/pkg/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChat_MapsRolesAndReturnsContent(t *testing.T) {
	var got ollamaChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(ollamaChatResponse{Message: ollamaMessage{Role: "assistant", Content: "hi there"}, Done: true})
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL, "deepseek-r1:7b")
	out, err := p.Chat(context.Background(), []llm.Message{
		{Role: "system", Content: "be brief"},
		{Role: "model", Content: "earlier"},
		{Role: "user", Content: "hello"},
	}, llm.WithTemperature(0.1))

	require.NoError(t, err)
	assert.Equal(t, "hi there", out)
	assert.False(t, got.Stream)
	assert.Equal(t, "deepseek-r1:7b", got.Model)
	assert.Equal(t, "assistant", got.Messages[1].Role)
	assert.InDelta(t, 0.1, got.Options.Temperature, 1e-9)
}

func TestChat_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewOllamaProvider(srv.URL, "missing").Chat(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}

func TestChatStream_ForwardsDeltas(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, part := range []string{"Hel", "lo", "!"} {
			fmt.Fprintf(w, `{"message":{"role":"assistant","content":%q},"done":false}`+"\n", part)
		}
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":""},"done":true}`)
	}))
	defer srv.Close()

	ch, err := NewOllamaProvider(srv.URL, "m").ChatStream(context.Background(), []llm.Message{{Role: "user", Content: "hi"}})
	require.NoError(t, err)

	var sb strings.Builder
	var last llm.StreamToken
	for tok := range ch {
		require.NoError(t, tok.Err)
		sb.WriteString(tok.Content)
		last = tok
	}
	assert.Equal(t, "Hello!", sb.String())
	assert.True(t, last.Done)
}

func TestChatStream_TruncatedStreamReportsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":"partial"},"done":false}`)
	}))
	defer srv.Close()

	ch, err := NewOllamaProvider(srv.URL, "m").ChatStream(context.Background(), nil)
	require.NoError(t, err)

	var errs []error
	for tok := range ch {
		if tok.Err != nil {
			errs = append(errs, tok.Err)
		}
	}
	require.Len(t, errs, 1)
}

func TestChatStream_InlineError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"error":"out of memory"}`)
	}))
	defer srv.Close()

	ch, err := NewOllamaProvider(srv.URL, "m").ChatStream(context.Background(), nil)
	require.NoError(t, err)

	tok := <-ch
	require.Error(t, tok.Err)
	assert.Contains(t, tok.Err.Error(), "out of memory")
}
