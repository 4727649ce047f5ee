package models

import (
	"context"
	"fmt"
	"strings"
)

// NewChatProvider constructs the provider named by the config string. A
// "cached:" prefix wraps the named provider in an LRU response cache, e.g.
// "cached:openai".
func NewChatProvider(ctx context.Context, provider, model, baseURL string) (ChatModel, error) {
	if inner, ok := strings.CutPrefix(provider, "cached:"); ok {
		base, err := NewChatProvider(ctx, inner, model, baseURL)
		if err != nil {
			return nil, err
		}
		return NewCachedChat(base, defaultCacheCapacity, defaultCacheTTL), nil
	}

	switch provider {
	case "openai":
		return NewOpenAIChat(baseURL, model), nil
	case "anthropic", "claude":
		return NewAnthropicChat(model), nil
	case "gemini", "google":
		return NewGeminiChat(ctx, model)
	case "ollama":
		return NewOllamaChat(model)
	case "dummy":
		return NewDummyChat(""), nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", provider)
	}
}

// flattenTranscript renders the history as a plain prompt for providers
// without a structured chat API. Tool messages keep their payload so the
// model still sees what the tools returned.
func flattenTranscript(messages []Message) string {
	var b strings.Builder
	for _, msg := range messages {
		if strings.TrimSpace(msg.Content) == "" {
			continue
		}
		switch msg.Role {
		case RoleAssistant:
			b.WriteString("Assistant: ")
		case RoleTool:
			b.WriteString("Tool result: ")
		default:
			b.WriteString("User: ")
		}
		b.WriteString(msg.Content)
		b.WriteString("\n")
	}
	return b.String()
}
