package extract_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/reviewlens/reviewlens/internal/config"
	"github.com/reviewlens/reviewlens/internal/extract"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIComplete_Success(t *testing.T) {
	var gotAuth, gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices": [{"message": {"role": "assistant", "content": "{\"findings\": []}"}}]}`))
	}))
	defer srv.Close()

	p := extract.NewOpenAIProvider(config.OpenAIConfig{
		BaseURL: srv.URL,
		APIKey:  "sk-test",
		Model:   "gpt-4o-mini",
	}, 5*time.Second)

	out, err := p.Complete(context.Background(), extract.CompletionRequest{
		System:    "system prompt",
		Prompt:    "user prompt",
		MaxTokens: 4096,
	})
	require.NoError(t, err)

	assert.Equal(t, `{"findings": []}`, out)
	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "/v1/chat/completions", gotPath)
	assert.Equal(t, "gpt-4o-mini", gotBody["model"])

	msgs := gotBody["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
}

func TestOpenAIComplete_RemoteError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error": {"message": "rate limit"}}`))
	}))
	defer srv.Close()

	p := extract.NewOpenAIProvider(config.OpenAIConfig{BaseURL: srv.URL, APIKey: "sk-test"}, 5*time.Second)
	_, err := p.Complete(context.Background(), extract.CompletionRequest{Prompt: "hi"})

	var re *extract.RemoteError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, http.StatusTooManyRequests, re.StatusCode)
	assert.Contains(t, re.Body, "rate limit")
	assert.True(t, extract.Retryable(err))
}

func TestOpenAIComplete_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"choices": []}`))
	}))
	defer srv.Close()

	p := extract.NewOpenAIProvider(config.OpenAIConfig{BaseURL: srv.URL, APIKey: "sk-test"}, 5*time.Second)
	_, err := p.Complete(context.Background(), extract.CompletionRequest{Prompt: "hi"})
	assert.ErrorIs(t, err, extract.ErrParse)
}
