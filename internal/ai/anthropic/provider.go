// Package anthropic implements models.Completer against the Anthropic
// Messages API.
package anthropic

import (
	"context"
	"fmt"
	"strings"

	"github.com/kiranshivaraju/logresolver/internal/ai/transport"
	"github.com/kiranshivaraju/logresolver/internal/config"
	"github.com/kiranshivaraju/logresolver/pkg/models"
)

const apiVersion = "2023-06-01"

type Provider struct {
	baseURL string
	apiKey  string
	model   string
	opts    transport.Options
	client  *transport.Client
}

var _ models.Completer = (*Provider)(nil)

func NewProvider(cfg config.AnthropicConfig, opts transport.Options) *Provider {
	return &Provider{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		opts:    opts,
		client:  transport.NewClient("anthropic", cfg.Model, opts.RequestsPerSecond, opts.Timeout),
	}
}

func (p *Provider) Name() string  { return "anthropic" }
func (p *Provider) Model() string { return p.model }

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesRequest struct {
	Model       string    `json:"model"`
	System      string    `json:"system,omitempty"`
	Messages    []message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// Complete calls POST /v1/messages and joins the text blocks of the reply.
func (p *Provider) Complete(ctx context.Context, req models.CompletionRequest) (string, error) {
	body := messagesRequest{
		Model:       p.model,
		System:      req.System,
		Messages:    []message{{Role: "user", Content: req.Prompt}},
		MaxTokens:   p.opts.MaxTokensFor(req.MaxTokens),
		Temperature: req.Temperature,
	}
	headers := map[string]string{
		"x-api-key":         p.apiKey,
		"anthropic-version": apiVersion,
	}

	var resp messagesResponse
	if err := p.client.PostJSON(ctx, p.baseURL+"/v1/messages", headers, body, &resp); err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", fmt.Errorf("%w: anthropic: empty completion", transport.ErrInvalidResponse)
	}
	return sb.String(), nil
}
