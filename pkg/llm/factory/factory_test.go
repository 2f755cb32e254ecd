package factory

import (
	"testing"

	"doc-chat-be/pkg/llm/ollama"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLLMProvider(t *testing.T) {
	p, err := NewLLMProvider("ollama", "deepseek-r1:7b", "")
	require.NoError(t, err)

	op, ok := p.(*ollama.OllamaProvider)
	require.True(t, ok)
	assert.Equal(t, "http://localhost:11434", op.BaseURL)
	assert.Equal(t, "deepseek-r1:7b", op.ModelName)

	_, err = NewLLMProvider("openai", "gpt", "")
	assert.Error(t, err)
}
