package anthropic_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kiranshivaraju/logresolver/internal/ai/anthropic"
	"github.com/kiranshivaraju/logresolver/internal/ai/transport"
	"github.com/kiranshivaraju/logresolver/internal/config"
	"github.com/kiranshivaraju/logresolver/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComplete_Success(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "sk-ant-test", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"part one "},{"type":"tool_use"},{"type":"text","text":"part two"}]}`))
	}))
	defer srv.Close()

	p := anthropic.NewProvider(config.AnthropicConfig{BaseURL: srv.URL, APIKey: "sk-ant-test", Model: "claude"},
		transport.Options{RequestsPerSecond: 10, Timeout: 5 * time.Second, MaxTokens: 1000})
	out, err := p.Complete(context.Background(), models.CompletionRequest{System: "sys", Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, "part one part two", out)

	assert.Equal(t, "sys", got["system"])
	assert.InDelta(t, 1000, got["max_tokens"], 1e-9)
	msgs, ok := got["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 1)
}

func TestComplete_Overloaded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(529)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"overloaded_error"}}`))
	}))
	defer srv.Close()

	p := anthropic.NewProvider(config.AnthropicConfig{BaseURL: srv.URL, APIKey: "k", Model: "claude"},
		transport.Options{RequestsPerSecond: 10, Timeout: 5 * time.Second})
	_, err := p.Complete(context.Background(), models.CompletionRequest{Prompt: "p"})
	assert.ErrorIs(t, err, transport.ErrProviderUnavailable)
}

func TestComplete_NoTextBlocks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"content":[]}`))
	}))
	defer srv.Close()

	p := anthropic.NewProvider(config.AnthropicConfig{BaseURL: srv.URL, APIKey: "k", Model: "claude"},
		transport.Options{RequestsPerSecond: 10, Timeout: 5 * time.Second})
	_, err := p.Complete(context.Background(), models.CompletionRequest{Prompt: "p"})
	assert.ErrorIs(t, err, transport.ErrInvalidResponse)
}
