package perplexity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-qualifier/internal/resilience"
)

func fastRetry() Option {
	return WithRetry(resilience.RetryConfig{MaxAttempts: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond})
}

func TestChatCompletion_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer pplx-key", r.Header.Get("Authorization"))

		var req ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "sonar", req.Model)
		assert.Equal(t, "month", req.SearchRecencyFilter)
		require.Len(t, req.Messages, 1)

		json.NewEncoder(w).Encode(ChatCompletionResponse{ //nolint:errcheck
			ID:        "cmpl-1",
			Choices:   []Choice{{Message: Message{Role: "assistant", Content: "Acme AS har varslet omstilling."}}},
			Citations: []string{"https://e24.no/acme"},
			SearchResults: []SearchResult{
				{Title: "Acme varsler omstilling", URL: "https://e24.no/acme", Date: "2026-10-01"},
			},
			Usage: Usage{PromptTokens: 40, CompletionTokens: 20},
		})
	}))
	defer srv.Close()

	client := NewClient("pplx-key", WithBaseURL(srv.URL))
	resp, err := client.ChatCompletion(context.Background(), ChatCompletionRequest{
		Messages:            []Message{{Role: "user", Content: "Acme AS restrukturering"}},
		SearchRecencyFilter: "month",
	})
	require.NoError(t, err)
	assert.Equal(t, "Acme AS har varslet omstilling.", resp.Text())
	require.Len(t, resp.SearchResults, 1)
	assert.Equal(t, "https://e24.no/acme", resp.SearchResults[0].URL)
}

func TestChatCompletion_ModelOverride(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "sonar-pro", req.Model)
		json.NewEncoder(w).Encode(ChatCompletionResponse{}) //nolint:errcheck
	}))
	defer srv.Close()

	client := NewClient("k", WithBaseURL(srv.URL), WithModel("sonar-pro"))
	resp, err := client.ChatCompletion(context.Background(), ChatCompletionRequest{})
	require.NoError(t, err)
	assert.Empty(t, resp.Text())
}

func TestChatCompletion_RetriesTransient(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(ChatCompletionResponse{Choices: []Choice{{Message: Message{Content: "ok"}}}}) //nolint:errcheck
	}))
	defer srv.Close()

	client := NewClient("k", WithBaseURL(srv.URL), fastRetry())
	resp, err := client.ChatCompletion(context.Background(), ChatCompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text())
	assert.Equal(t, int32(2), calls.Load())
}

func TestChatCompletion_ClientError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"invalid key"}`)) //nolint:errcheck
	}))
	defer srv.Close()

	client := NewClient("bad", WithBaseURL(srv.URL), fastRetry())
	_, err := client.ChatCompletion(context.Background(), ChatCompletionRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
	assert.False(t, resilience.IsTransient(err))
}

func TestChatCompletion_BadJSON(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{broken`)) //nolint:errcheck
	}))
	defer srv.Close()

	client := NewClient("k", WithBaseURL(srv.URL))
	_, err := client.ChatCompletion(context.Background(), ChatCompletionRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal")
}
