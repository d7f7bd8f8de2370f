// Package googleauth supplies OAuth2 credentials for the Gmail and Calendar
// tools from a pre-authorized token file. The interactive consent flow is
// out of scope: the token file must already hold a refresh token.
package googleauth

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/sync/singleflight"
	calendar "google.golang.org/api/calendar/v3"
	gmail "google.golang.org/api/gmail/v1"

	"github.com/ahrav/go-maestro/internal/ports"
)

// refreshBuffer is how long before expiry a token is treated as stale.
const refreshBuffer = 5 * time.Minute

// DefaultScopes covers reading and drafting mail and managing calendar
// events.
var DefaultScopes = []string{
	gmail.GmailReadonlyScope,
	gmail.GmailComposeScope,
	calendar.CalendarScope,
}

// fileToken accepts both the oauth2.Token layout and the layout written by
// Google's Python client ("token" instead of "access_token").
type fileToken struct {
	AccessToken  string    `json:"access_token,omitempty"`
	Token        string    `json:"token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	RefreshToken string    `json:"refresh_token"`
	Expiry       time.Time `json:"expiry,omitempty"`
}

// ReadToken loads a token file.
func ReadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read token file %s", path)
	}
	var ft fileToken
	if err := json.Unmarshal(data, &ft); err != nil {
		return nil, errors.Wrapf(err, "parse token file %s", path)
	}
	tok := &oauth2.Token{
		AccessToken:  ft.AccessToken,
		TokenType:    ft.TokenType,
		RefreshToken: ft.RefreshToken,
		Expiry:       ft.Expiry,
	}
	if tok.AccessToken == "" {
		tok.AccessToken = ft.Token
	}
	return tok, nil
}

// WriteToken replaces path with tok. The file is written to a temporary
// sibling and renamed so readers never observe a partial token.
func WriteToken(path string, tok *oauth2.Token) error {
	data, err := json.MarshalIndent(fileToken{
		AccessToken:  tok.AccessToken,
		TokenType:    tok.TokenType,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	}, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal token")
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "create temp token file")
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "write temp token file")
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "chmod temp token file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close temp token file")
	}
	if err := os.Rename(tmpName, path); err != nil {
		return errors.Wrapf(err, "replace token file %s", path)
	}
	return nil
}

// TokenSource is an oauth2.TokenSource backed by a token file. Concurrent
// callers share one refresh, and a refreshed token is persisted before it
// is handed out.
type TokenSource struct {
	ctx    context.Context
	config *oauth2.Config
	path   string
	logger *zap.Logger

	group singleflight.Group
	mu    sync.RWMutex
	token *oauth2.Token
}

// NewTokenSource reads the OAuth client secrets file and the token file.
func NewTokenSource(ctx context.Context, credentialsFile, tokenFile string, logger *zap.Logger, scopes ...string) (*TokenSource, error) {
	secrets, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, errors.Wrapf(ports.ErrMissingCredentials, "read client secrets %s: %v", credentialsFile, err)
	}
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}
	cfg, err := google.ConfigFromJSON(secrets, scopes...)
	if err != nil {
		return nil, errors.Wrap(err, "parse client secrets")
	}
	return NewTokenSourceFromConfig(ctx, cfg, tokenFile, logger)
}

// NewTokenSourceFromConfig builds a TokenSource for an existing config.
func NewTokenSourceFromConfig(ctx context.Context, cfg *oauth2.Config, tokenFile string, logger *zap.Logger) (*TokenSource, error) {
	tok, err := ReadToken(tokenFile)
	if err != nil {
		return nil, errors.Wrap(ports.ErrMissingCredentials, err.Error())
	}
	if tok.RefreshToken == "" && !tok.Valid() {
		return nil, errors.Wrapf(ports.ErrMissingCredentials, "token file %s has no refresh token", tokenFile)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenSource{
		ctx:    ctx,
		config: cfg,
		path:   tokenFile,
		logger: logger.Named("googleauth"),
		token:  tok,
	}, nil
}

// Token returns a valid access token, refreshing it when it is within
// five minutes of expiry.
func (s *TokenSource) Token() (*oauth2.Token, error) {
	s.mu.RLock()
	tok := s.token
	s.mu.RUnlock()
	if fresh(tok) {
		return tok, nil
	}

	v, err, _ := s.group.Do("refresh", func() (any, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if fresh(s.token) {
			return s.token, nil
		}

		stale := *s.token
		stale.Expiry = time.Now().Add(-time.Second)
		refreshed, err := s.config.TokenSource(s.ctx, &stale).Token()
		if err != nil {
			return nil, errors.Wrap(err, "refresh google token")
		}
		if err := WriteToken(s.path, refreshed); err != nil {
			s.logger.Warn("persist refreshed token failed", zap.String("path", s.path), zap.Error(err))
		} else {
			s.logger.Debug("google token refreshed", zap.Time("expiry", refreshed.Expiry))
		}
		s.token = refreshed
		return refreshed, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*oauth2.Token), nil
}

// HTTPClient returns a client that authorizes requests with s.
func (s *TokenSource) HTTPClient(ctx context.Context) *http.Client {
	return oauth2.NewClient(ctx, s)
}

func fresh(tok *oauth2.Token) bool {
	if tok == nil || tok.AccessToken == "" {
		return false
	}
	if tok.Expiry.IsZero() {
		return true
	}
	return tok.Expiry.After(time.Now().Add(refreshBuffer))
}
