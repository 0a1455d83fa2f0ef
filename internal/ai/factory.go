package ai

import (
	"fmt"

	"github.com/kiranshivaraju/logresolver/internal/ai/anthropic"
	"github.com/kiranshivaraju/logresolver/internal/ai/ollama"
	"github.com/kiranshivaraju/logresolver/internal/ai/openai"
	"github.com/kiranshivaraju/logresolver/internal/ai/transport"
	"github.com/kiranshivaraju/logresolver/internal/ai/vllm"
	"github.com/kiranshivaraju/logresolver/internal/config"
	"github.com/kiranshivaraju/logresolver/pkg/models"
)

// NewProvider constructs the completion provider named by cfg.Provider.
// Called once at server startup.
func NewProvider(cfg config.AIConfig) (models.Completer, error) {
	opts := transport.Options{
		RequestsPerSecond: cfg.RequestsPerSecond,
		Timeout:           cfg.InferenceTimeout,
		MaxTokens:         cfg.MaxTokens,
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 5
	}

	switch cfg.Provider {
	case "ollama":
		return ollama.NewProvider(cfg.Ollama, opts), nil
	case "vllm":
		return vllm.NewProvider(cfg.VLLM, opts), nil
	case "openai":
		return openai.NewProvider(cfg.OpenAI, opts), nil
	case "openrouter":
		return openai.NewCompatible("openrouter", cfg.OpenRouter, opts, map[string]string{
			"HTTP-Referer": "https://github.com/kiranshivaraju/logresolver",
			"X-Title":      "logresolver",
		}), nil
	case "anthropic":
		return anthropic.NewProvider(cfg.Anthropic, opts), nil
	default:
		return nil, fmt.Errorf("unknown AI provider %q: must be one of ollama, vllm, openai, openrouter, anthropic", cfg.Provider)
	}
}
