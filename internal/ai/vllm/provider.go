// Package vllm serves completions from a vLLM server through its
// OpenAI-compatible API.
package vllm

import (
	"strings"

	"github.com/kiranshivaraju/logresolver/internal/ai/openai"
	"github.com/kiranshivaraju/logresolver/internal/ai/transport"
	"github.com/kiranshivaraju/logresolver/internal/config"
)

// NewProvider returns an OpenAI-compatible provider pointed at {base}/v1.
func NewProvider(cfg config.VLLMConfig, opts transport.Options) *openai.Provider {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if !strings.HasSuffix(base, "/v1") {
		base += "/v1"
	}
	return openai.NewCompatible("vllm", config.OpenAIConfig{BaseURL: base, Model: cfg.Model}, opts, nil)
}
