package googleauth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/ahrav/go-maestro/internal/ports"
)

func newTokenServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.Form.Get("grant_type"))
		assert.Equal(t, "refresh-1", r.Form.Get("refresh_token"))
		time.Sleep(20 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"fresh","token_type":"Bearer","expires_in":3600}`))
	}))
	t.Cleanup(server.Close)
	return server, &hits
}

func testConfig(tokenURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     "client",
		ClientSecret: "secret",
		Endpoint:     oauth2.Endpoint{TokenURL: tokenURL, AuthStyle: oauth2.AuthStyleInParams},
	}
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "token.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestReadToken_PythonLayout(t *testing.T) {
	path := writeFile(t, `{"token":"ya29.abc","refresh_token":"refresh-1","token_uri":"https://oauth2.googleapis.com/token",
		"client_id":"c","client_secret":"s","scopes":["x"],"expiry":"2025-08-14T01:02:03.123456Z"}`)

	tok, err := ReadToken(path)

	require.NoError(t, err)
	assert.Equal(t, "ya29.abc", tok.AccessToken)
	assert.Equal(t, "refresh-1", tok.RefreshToken)
	assert.Equal(t, 2025, tok.Expiry.Year())
}

func TestWriteToken_Atomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "token.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"access_token":"old"}`), 0o600))

	err := WriteToken(path, &oauth2.Token{AccessToken: "new", RefreshToken: "r", TokenType: "Bearer"})
	require.NoError(t, err)

	tok, err := ReadToken(path)
	require.NoError(t, err)
	assert.Equal(t, "new", tok.AccessToken)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files are cleaned up")
}

func TestTokenSource_ValidTokenIsNotRefreshed(t *testing.T) {
	server, hits := newTokenServer(t)
	path := writeFile(t, `{"access_token":"current","refresh_token":"refresh-1","expiry":"`+
		time.Now().Add(time.Hour).UTC().Format(time.RFC3339)+`"}`)

	ts, err := NewTokenSourceFromConfig(context.Background(), testConfig(server.URL), path, nil)
	require.NoError(t, err)

	tok, err := ts.Token()

	require.NoError(t, err)
	assert.Equal(t, "current", tok.AccessToken)
	assert.Equal(t, int32(0), hits.Load())
}

func TestTokenSource_ConcurrentRefreshIsShared(t *testing.T) {
	// Given an expired token on disk
	server, hits := newTokenServer(t)
	path := writeFile(t, `{"access_token":"expired","refresh_token":"refresh-1","expiry":"2020-01-01T00:00:00Z"}`)
	ts, err := NewTokenSourceFromConfig(context.Background(), testConfig(server.URL), path, nil)
	require.NoError(t, err)

	// When many goroutines ask for a token at once
	var wg sync.WaitGroup
	tokens := make([]string, 10)
	for i := range tokens {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok, err := ts.Token()
			if assert.NoError(t, err) {
				tokens[i] = tok.AccessToken
			}
		}()
	}
	wg.Wait()

	// Then one refresh happened and it was persisted with the refresh token kept
	assert.Equal(t, int32(1), hits.Load())
	for _, tok := range tokens {
		assert.Equal(t, "fresh", tok)
	}
	onDisk, err := ReadToken(path)
	require.NoError(t, err)
	assert.Equal(t, "fresh", onDisk.AccessToken)
	assert.Equal(t, "refresh-1", onDisk.RefreshToken)
}

func TestNewTokenSource_MissingCredentials(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "no token file"},
		{name: "expired without refresh token", content: `{"access_token":"x","expiry":"2020-01-01T00:00:00Z"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "token.json")
			if tt.content != "" {
				path = writeFile(t, tt.content)
			}

			_, err := NewTokenSourceFromConfig(context.Background(), testConfig("http://unused"), path, nil)

			assert.ErrorIs(t, err, ports.ErrMissingCredentials)
		})
	}

	t.Run("no client secrets", func(t *testing.T) {
		_, err := NewTokenSource(context.Background(), filepath.Join(t.TempDir(), "missing.json"), "token.json", nil)
		assert.ErrorIs(t, err, ports.ErrMissingCredentials)
	})
}
