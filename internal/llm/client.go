// Package llm builds the OpenAI-compatible client shared by transcription and chat.
package llm

import (
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// NewClient returns a go-openai client. baseURL may be empty for the public
// API; otherwise it must include the version prefix (e.g. http://host/v1).
func NewClient(apiKey, baseURL string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return openai.NewClientWithConfig(cfg)
}
