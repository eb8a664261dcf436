package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/fetch"
)

const defaultAnthropicMaxTokens = 4096

// AnthropicProvider uses the messages API. System turns go to the top-level field.
type AnthropicProvider struct {
	fetcher   *fetch.Fetcher
	apiKey    string
	apiURL    string
	model     string
	maxTokens int
}

func NewAnthropicProvider(cfg Config, fetcher *fetch.Fetcher) *AnthropicProvider {
	apiURL := strings.TrimRight(cfg.APIURL, "/")
	if apiURL == "" {
		apiURL = "https://api.anthropic.com"
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}
	return &AnthropicProvider{
		fetcher:   fetcher,
		apiKey:    cfg.APIKey,
		apiURL:    apiURL,
		model:     cfg.Model,
		maxTokens: maxTokens,
	}
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
}

type anthropicContent struct {
	Type   string           `json:"type"`
	Text   string           `json:"text,omitempty"`
	Source *anthropicSource `json:"source,omitempty"`
}

type anthropicSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type anthropicResponse struct {
	Content []anthropicContent `json:"content"`
}

func anthropicMessagesFrom(messages []Message) ([]anthropicMessage, string) {
	var system []string
	out := make([]anthropicMessage, 0, len(messages))
	for _, m := range messages {
		if m.Role == RoleSystem {
			system = append(system, m.Content)
			continue
		}
		content := make([]anthropicContent, 0, len(m.Images)+1)
		for _, img := range m.Images {
			content = append(content, anthropicContent{
				Type: "image",
				Source: &anthropicSource{
					Type:      "base64",
					MediaType: mimeOrDefault(img),
					Data:      base64.StdEncoding.EncodeToString(img.Data),
				},
			})
		}
		content = append(content, anthropicContent{Type: "text", Text: m.Content})
		out = append(out, anthropicMessage{Role: m.Role, Content: content})
	}
	return out, strings.Join(system, "\n\n")
}

func (p *AnthropicProvider) Chat(ctx context.Context, messages []Message) (string, error) {
	if p.model == "" {
		return "", errors.New("anthropic model is required")
	}
	req := anthropicRequest{Model: p.model, MaxTokens: p.maxTokens}
	req.Messages, req.System = anthropicMessagesFrom(messages)

	header := http.Header{}
	if p.apiKey != "" {
		header.Set("X-API-Key", p.apiKey)
	}
	header.Set("Anthropic-Version", "2023-06-01")

	resp, err := p.fetcher.Post(ctx, p.apiURL+"/v1/messages", fetch.Options{JSON: req, Header: header})
	if err != nil {
		return "", fmt.Errorf("anthropic: %w", err)
	}
	var out anthropicResponse
	if err := resp.DecodeJSON(&out); err != nil {
		return "", fmt.Errorf("anthropic: %w", err)
	}
	var sb strings.Builder
	for _, c := range out.Content {
		if c.Type == "text" {
			sb.WriteString(c.Text)
		}
	}
	return sb.String(), nil
}
