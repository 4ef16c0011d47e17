// Package llm holds the generation model clients and the health-tracked
// dispatcher that routes prompts through the fallback chain.
package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Response is a completed generation from one model.
type Response struct {
	Text        string
	TotalTokens int
}

// Client invokes a single generation model. Implementations are safe for
// concurrent use.
type Client interface {
	Name() string
	Invoke(ctx context.Context, prompt string, maxTokens int) (Response, error)
}

// ClientConfig carries the backend endpoints shared by client constructors.
type ClientConfig struct {
	OpenAIAPIKey  string
	OpenAIBaseURL string // defaults to the public API
	OllamaURL     string
	HTTPClient    *http.Client
}

const defaultOpenAIBaseURL = "https://api.openai.com"

// NewClient builds a client from a "provider/model" id. Supported providers
// are "openai" and "ollama".
func NewClient(id string, cfg ClientConfig) (Client, error) {
	provider, modelName, ok := strings.Cut(id, "/")
	if !ok {
		return nil, fmt.Errorf("llm: model id %q is not provider/model", id)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}

	switch provider {
	case "openai":
		base := cfg.OpenAIBaseURL
		if base == "" {
			base = defaultOpenAIBaseURL
		}
		return &OpenAIClient{
			id:      id,
			model:   modelName,
			apiKey:  cfg.OpenAIAPIKey,
			baseURL: strings.TrimRight(base, "/"),
			http:    httpClient,
		}, nil
	case "ollama":
		if cfg.OllamaURL == "" {
			return nil, fmt.Errorf("llm: model %q needs OLLAMA_URL", id)
		}
		return &OllamaClient{
			id:      id,
			model:   modelName,
			baseURL: strings.TrimRight(cfg.OllamaURL, "/"),
			http:    httpClient,
		}, nil
	default:
		return nil, fmt.Errorf("llm: unsupported provider %q in model id %q", provider, id)
	}
}
