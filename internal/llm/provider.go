// Package llm talks to chat models. Every provider returns the full reply
// text of a single, non-streaming completion.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/config"
	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/fetch"
)

// Roles
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Image is an inline picture sent to vision models.
type Image struct {
	MIME string
	Data []byte
}

// Message is one chat turn.
type Message struct {
	Role    string
	Content string
	Images  []Image
}

// Provider completes a conversation.
type Provider interface {
	Chat(ctx context.Context, messages []Message) (string, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, messages []Message) (string, error)

// Chat calls f.
func (f ProviderFunc) Chat(ctx context.Context, messages []Message) (string, error) {
	return f(ctx, messages)
}

// Config selects and parameterizes a provider.
type Config struct {
	Provider  string
	Model     string
	APIKey    string
	APIURL    string
	MaxTokens int
}

// ConfigFrom builds the chat model config.
func ConfigFrom(cfg config.LLMConfig) Config {
	return Config{
		Provider:  cfg.Provider,
		Model:     cfg.Model,
		APIKey:    cfg.APIKey,
		APIURL:    cfg.APIURL,
		MaxTokens: cfg.MaxTokens,
	}
}

// VisionConfigFrom is ConfigFrom with the vision model, falling back to the chat model.
func VisionConfigFrom(cfg config.LLMConfig) Config {
	c := ConfigFrom(cfg)
	if cfg.VisionModel != "" {
		c.Model = cfg.VisionModel
	}
	return c
}

// NewProvider returns the provider named by cfg.Provider.
func NewProvider(cfg Config, fetcher *fetch.Fetcher) (Provider, error) {
	if fetcher == nil {
		fetcher = fetch.New(nil, fetch.DefaultPolicy(), nil)
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "ollama", "":
		return NewOllamaProvider(cfg, fetcher), nil
	case "openai":
		return NewOpenAIProvider(cfg, fetcher), nil
	case "anthropic":
		return NewAnthropicProvider(cfg, fetcher), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
}

func mimeOrDefault(img Image) string {
	if img.MIME == "" {
		return "image/png"
	}
	return img.MIME
}
