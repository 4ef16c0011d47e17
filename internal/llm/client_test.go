package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientParsesID(t *testing.T) {
	c, err := NewClient("openai/gpt-4o-mini", ClientConfig{OpenAIAPIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "openai/gpt-4o-mini", c.Name())

	c, err = NewClient("ollama/llama3", ClientConfig{OllamaURL: "http://localhost:11434"})
	require.NoError(t, err)
	assert.Equal(t, "ollama/llama3", c.Name())
}

func TestNewClientRejectsBadIDs(t *testing.T) {
	_, err := NewClient("gpt-4o-mini", ClientConfig{})
	assert.Error(t, err)

	_, err = NewClient("anthropic/claude", ClientConfig{})
	assert.Error(t, err)

	_, err = NewClient("ollama/llama3", ClientConfig{})
	assert.Error(t, err, "ollama models need a base URL")
}

func TestOpenAIClientInvoke(t *testing.T) {
	var gotAuth string
	var gotReq openAIChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": "the answer [1]"}}},
			"usage":   map[string]int{"total_tokens": 123},
		})
	}))
	defer srv.Close()

	c, err := NewClient("openai/gpt-4o-mini", ClientConfig{
		OpenAIAPIKey:  "secret",
		OpenAIBaseURL: srv.URL,
	})
	require.NoError(t, err)

	resp, err := c.Invoke(context.Background(), "question", 500)

	require.NoError(t, err)
	assert.Equal(t, "the answer [1]", resp.Text)
	assert.Equal(t, 123, resp.TotalTokens)
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, "gpt-4o-mini", gotReq.Model)
	assert.Equal(t, 500, gotReq.MaxTokens)
	require.Len(t, gotReq.Messages, 1)
	assert.Equal(t, "question", gotReq.Messages[0].Content)
}

func TestOpenAIClientNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c, err := NewClient("openai/gpt-4o-mini", ClientConfig{OpenAIBaseURL: srv.URL})
	require.NoError(t, err)

	_, err = c.Invoke(context.Background(), "q", 10)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.Equal(t, ClassTransient, Classify(err))
}

func TestOllamaClientInvoke(t *testing.T) {
	var gotReq ollamaChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		json.NewEncoder(w).Encode(map[string]any{
			"message":           map[string]string{"role": "assistant", "content": "local answer"},
			"prompt_eval_count": 40,
			"eval_count":        60,
		})
	}))
	defer srv.Close()

	c, err := NewClient("ollama/llama3", ClientConfig{OllamaURL: srv.URL})
	require.NoError(t, err)

	resp, err := c.Invoke(context.Background(), "question", 200)

	require.NoError(t, err)
	assert.Equal(t, "local answer", resp.Text)
	assert.Equal(t, 100, resp.TotalTokens)
	assert.Equal(t, "llama3", gotReq.Model)
	assert.False(t, gotReq.Stream)
	assert.Equal(t, 200, gotReq.Options.NumPredict)
}

func TestOllamaClientNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	c, err := NewClient("ollama/missing", ClientConfig{OllamaURL: srv.URL})
	require.NoError(t, err)

	_, err = c.Invoke(context.Background(), "q", 10)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, ClassPermanent, Classify(err))
}
