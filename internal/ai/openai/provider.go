// Package openai implements models.Completer against any OpenAI-compatible
// chat completions endpoint (OpenAI, OpenRouter, vLLM).
package openai

import (
	"context"
	"fmt"
	"strings"

	"github.com/kiranshivaraju/logresolver/internal/ai/transport"
	"github.com/kiranshivaraju/logresolver/internal/config"
	"github.com/kiranshivaraju/logresolver/pkg/models"
)

// Provider calls POST {base}/chat/completions.
type Provider struct {
	name    string
	baseURL string
	apiKey  string
	model   string
	headers map[string]string
	opts    transport.Options
	client  *transport.Client
}

var _ models.Completer = (*Provider)(nil)

// NewProvider creates an OpenAI provider.
func NewProvider(cfg config.OpenAIConfig, opts transport.Options) *Provider {
	return NewCompatible("openai", cfg, opts, nil)
}

// NewCompatible creates a provider named name for an OpenAI-compatible API.
// headers are added to every request.
func NewCompatible(name string, cfg config.OpenAIConfig, opts transport.Options, headers map[string]string) *Provider {
	return &Provider{
		name:    name,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		headers: headers,
		opts:    opts,
		client:  transport.NewClient(name, cfg.Model, opts.RequestsPerSecond, opts.Timeout),
	}
}

func (p *Provider) Name() string  { return p.name }
func (p *Provider) Model() string { return p.model }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Complete sends one chat completion and returns the first choice's content.
func (p *Provider) Complete(ctx context.Context, req models.CompletionRequest) (string, error) {
	body := chatRequest{
		Model:       p.model,
		Temperature: req.Temperature,
		MaxTokens:   p.opts.MaxTokensFor(req.MaxTokens),
	}
	if req.System != "" {
		body.Messages = append(body.Messages, chatMessage{Role: "system", Content: req.System})
	}
	body.Messages = append(body.Messages, chatMessage{Role: "user", Content: req.Prompt})

	headers := make(map[string]string, len(p.headers)+1)
	for k, v := range p.headers {
		headers[k] = v
	}
	if p.apiKey != "" {
		headers["Authorization"] = "Bearer " + p.apiKey
	}

	var resp chatResponse
	if err := p.client.PostJSON(ctx, p.baseURL+"/chat/completions", headers, body, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("%w: %s: empty completion", transport.ErrInvalidResponse, p.name)
	}
	return resp.Choices[0].Message.Content, nil
}
