// Package ollama implements models.Completer against the Ollama chat API.
package ollama

import (
	"context"
	"fmt"
	"strings"

	"github.com/kiranshivaraju/logresolver/internal/ai/transport"
	"github.com/kiranshivaraju/logresolver/internal/config"
	"github.com/kiranshivaraju/logresolver/pkg/models"
)

type Provider struct {
	baseURL string
	model   string
	opts    transport.Options
	client  *transport.Client
}

var _ models.Completer = (*Provider)(nil)

func NewProvider(cfg config.OllamaConfig, opts transport.Options) *Provider {
	return &Provider{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		opts:    opts,
		client:  transport.NewClient("ollama", cfg.Model, opts.RequestsPerSecond, opts.Timeout),
	}
}

func (p *Provider) Name() string  { return "ollama" }
func (p *Provider) Model() string { return p.model }

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

type chatRequest struct {
	Model    string      `json:"model"`
	Messages []message   `json:"messages"`
	Stream   bool        `json:"stream"`
	Options  chatOptions `json:"options"`
}

type chatResponse struct {
	Message message `json:"message"`
	Done    bool    `json:"done"`
}

// Complete calls POST /api/chat with streaming disabled.
func (p *Provider) Complete(ctx context.Context, req models.CompletionRequest) (string, error) {
	body := chatRequest{
		Model: p.model,
		Options: chatOptions{
			Temperature: req.Temperature,
			NumPredict:  p.opts.MaxTokensFor(req.MaxTokens),
		},
	}
	if req.System != "" {
		body.Messages = append(body.Messages, message{Role: "system", Content: req.System})
	}
	body.Messages = append(body.Messages, message{Role: "user", Content: req.Prompt})

	var resp chatResponse
	if err := p.client.PostJSON(ctx, p.baseURL+"/api/chat", nil, body, &resp); err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.Message.Content) == "" {
		return "", fmt.Errorf("%w: ollama: empty completion", transport.ErrInvalidResponse)
	}
	return resp.Message.Content, nil
}
