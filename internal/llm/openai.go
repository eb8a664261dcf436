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

// OpenAIProvider speaks the chat completions API, including compatible servers.
type OpenAIProvider struct {
	fetcher   *fetch.Fetcher
	apiKey    string
	apiURL    string
	model     string
	maxTokens int
}

func NewOpenAIProvider(cfg Config, fetcher *fetch.Fetcher) *OpenAIProvider {
	apiURL := strings.TrimRight(cfg.APIURL, "/")
	if apiURL == "" {
		apiURL = "https://api.openai.com/v1"
	}
	return &OpenAIProvider{
		fetcher:   fetcher,
		apiKey:    cfg.APIKey,
		apiURL:    apiURL,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
	}
}

type openAIRequest struct {
	Model     string          `json:"model"`
	Messages  []openAIMessage `json:"messages"`
	Stream    bool            `json:"stream"`
	MaxTokens int             `json:"max_tokens,omitempty"`
}

// Content is a string, or a list of parts when images are attached.
type openAIMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type openAIPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *openAIImageURL `json:"image_url,omitempty"`
}

type openAIImageURL struct {
	URL string `json:"url"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (p *OpenAIProvider) Chat(ctx context.Context, messages []Message) (string, error) {
	if p.model == "" {
		return "", errors.New("openai model is required")
	}
	req := openAIRequest{Model: p.model, MaxTokens: p.maxTokens, Messages: make([]openAIMessage, 0, len(messages))}
	for _, m := range messages {
		if len(m.Images) == 0 {
			req.Messages = append(req.Messages, openAIMessage{Role: m.Role, Content: m.Content})
			continue
		}
		parts := []openAIPart{{Type: "text", Text: m.Content}}
		for _, img := range m.Images {
			parts = append(parts, openAIPart{
				Type:     "image_url",
				ImageURL: &openAIImageURL{URL: "data:" + mimeOrDefault(img) + ";base64," + base64.StdEncoding.EncodeToString(img.Data)},
			})
		}
		req.Messages = append(req.Messages, openAIMessage{Role: m.Role, Content: parts})
	}

	header := http.Header{}
	if p.apiKey != "" {
		header.Set("Authorization", "Bearer "+p.apiKey)
	}
	resp, err := p.fetcher.Post(ctx, p.apiURL+"/chat/completions", fetch.Options{JSON: req, Header: header})
	if err != nil {
		return "", fmt.Errorf("openai: %w", err)
	}
	var out openAIResponse
	if err := resp.DecodeJSON(&out); err != nil {
		return "", fmt.Errorf("openai: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", errors.New("openai: response has no choices")
	}
	return out.Choices[0].Message.Content, nil
}
