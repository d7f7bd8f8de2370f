package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPClient_GetJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "강남 맛집", r.URL.Query().Get("query"))
		assert.Equal(t, "secret", r.Header.Get("X-Naver-Client-Secret"))
		_, _ = w.Write([]byte(`{"total":1}`))
	}))
	defer server.Close()

	var out struct {
		Total int `json:"total"`
	}
	err := NewHTTPClient().GetJSON(context.Background(), server.URL,
		url.Values{"query": {"강남 맛집"}},
		http.Header{"X-Naver-Client-Secret": {"secret"}}, &out)

	require.NoError(t, err)
	assert.Equal(t, 1, out.Total)
}

func TestHTTPClient_PostJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_ = json.NewEncoder(w).Encode(map[string]any{"echo": body["query"]})
	}))
	defer server.Close()

	var out map[string]string
	err := NewHTTPClient().PostJSON(context.Background(), server.URL, nil, map[string]string{"query": "LLM RAG"}, &out)

	require.NoError(t, err)
	assert.Equal(t, "LLM RAG", out["echo"])
}

func TestHTTPClient_StatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	err := NewHTTPClient().GetJSON(context.Background(), server.URL, nil, nil, nil)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusTooManyRequests, statusErr.StatusCode)
	assert.Equal(t, "quota exceeded", statusErr.Body)
	assert.Contains(t, err.Error(), "429 Too Many Requests")
}

func TestHTTPClient_RateLimitHonorsContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := NewHTTPClient(WithRateLimit(0.1, 1), WithHTTPClient(server.Client()))
	require.NoError(t, client.GetJSON(context.Background(), server.URL, nil, nil, nil))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := client.GetJSON(ctx, server.URL, nil, nil, nil)

	assert.Error(t, err, "second request must wait for a token and hit the deadline")
}

func TestHTTPClient_BadJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>`))
	}))
	defer server.Close()

	var out map[string]any
	err := NewHTTPClient().GetJSON(context.Background(), server.URL, nil, nil, &out)

	assert.ErrorContains(t, err, "decode response")
}
