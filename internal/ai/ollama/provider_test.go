package ollama_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kiranshivaraju/logresolver/internal/ai/ollama"
	"github.com/kiranshivaraju/logresolver/internal/ai/transport"
	"github.com/kiranshivaraju/logresolver/internal/config"
	"github.com/kiranshivaraju/logresolver/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComplete_Success(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"ROOT CAUSE: disk full"},"done":true}`))
	}))
	defer srv.Close()

	p := ollama.NewProvider(config.OllamaConfig{BaseURL: srv.URL, Model: "llama3"},
		transport.Options{RequestsPerSecond: 10, Timeout: 5 * time.Second})
	out, err := p.Complete(context.Background(), models.CompletionRequest{System: "s", Prompt: "p", Temperature: 0.3, MaxTokens: 200})
	require.NoError(t, err)
	assert.Equal(t, "ROOT CAUSE: disk full", out)

	assert.Equal(t, "llama3", got["model"])
	assert.Equal(t, false, got["stream"])
	opts, ok := got["options"].(map[string]any)
	require.True(t, ok)
	assert.InDelta(t, 200, opts["num_predict"], 1e-9)
}

func TestComplete_EmptyMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"message":{"content":""},"done":true}`))
	}))
	defer srv.Close()

	p := ollama.NewProvider(config.OllamaConfig{BaseURL: srv.URL, Model: "llama3"},
		transport.Options{RequestsPerSecond: 10, Timeout: 5 * time.Second})
	_, err := p.Complete(context.Background(), models.CompletionRequest{Prompt: "p"})
	assert.ErrorIs(t, err, transport.ErrInvalidResponse)
}

func TestComplete_ModelNotPulled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"model 'llama3' not found"}`))
	}))
	defer srv.Close()

	p := ollama.NewProvider(config.OllamaConfig{BaseURL: srv.URL, Model: "llama3"},
		transport.Options{RequestsPerSecond: 10, Timeout: 5 * time.Second})
	_, err := p.Complete(context.Background(), models.CompletionRequest{Prompt: "p"})
	require.ErrorIs(t, err, transport.ErrProviderUnavailable)
	assert.Contains(t, err.Error(), "not found")
}
