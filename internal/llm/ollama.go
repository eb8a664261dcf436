package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/fetch"
)

const defaultOllamaURL = "http://localhost:11434"

// OllamaProvider uses the native /api/chat endpoint, which accepts images.
type OllamaProvider struct {
	fetcher *fetch.Fetcher
	apiURL  string
	model   string
}

func NewOllamaProvider(cfg Config, fetcher *fetch.Fetcher) *OllamaProvider {
	apiURL := strings.TrimSuffix(strings.TrimRight(cfg.APIURL, "/"), "/v1")
	if apiURL == "" {
		apiURL = defaultOllamaURL
	}
	return &OllamaProvider{fetcher: fetcher, apiURL: apiURL, model: cfg.Model}
}

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
}

type ollamaResponse struct {
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Error string `json:"error"`
}

func (p *OllamaProvider) Chat(ctx context.Context, messages []Message) (string, error) {
	if p.model == "" {
		return "", errors.New("ollama model is required")
	}
	req := ollamaRequest{Model: p.model, Messages: make([]ollamaMessage, 0, len(messages))}
	for _, m := range messages {
		om := ollamaMessage{Role: m.Role, Content: m.Content}
		for _, img := range m.Images {
			om.Images = append(om.Images, base64.StdEncoding.EncodeToString(img.Data))
		}
		req.Messages = append(req.Messages, om)
	}

	resp, err := p.fetcher.Post(ctx, p.apiURL+"/api/chat", fetch.Options{JSON: req})
	if err != nil {
		return "", fmt.Errorf("ollama: %w", err)
	}
	var out ollamaResponse
	if err := resp.DecodeJSON(&out); err != nil {
		return "", fmt.Errorf("ollama: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("ollama: %s", out.Error)
	}
	return out.Message.Content, nil
}
