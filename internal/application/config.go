package application

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/Laisky/zap"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-maestro/internal/ports"
)

// Defaults applied to fields the configuration file leaves out.
const (
	DefaultModel       = "openai/gpt-4.1-mini"
	DefaultRoundLimit  = 8
	DefaultMaxDepth    = 2
	DefaultTurnTimeout = 3 * time.Minute
	DefaultTimezone    = "Asia/Seoul"
	DefaultCacheTTL    = 10 * time.Minute
	DefaultDatabase    = "maestro.db"
)

// Config is the top-level runtime configuration of the maestro binary.
// It is loaded from YAML after ${VAR} references have been expanded from
// the environment, so secrets stay in .env files rather than in the
// checked-in configuration.
type Config struct {
	// Model is the default "provider/model" for every agent that does not
	// name its own.
	Model string `yaml:"model" validate:"required,modelformat"`

	// Roster is the path of the agent roster file. Relative paths are
	// resolved against the directory of the configuration file.
	Roster string `yaml:"roster" validate:"required"`

	// RoundLimit caps model requests per agent per turn.
	RoundLimit int `yaml:"round_limit" validate:"min=1,max=20"`

	// MaxDepth caps delegation depth; the orchestrator runs at depth 0.
	MaxDepth int `yaml:"max_depth" validate:"min=1,max=5"`

	// TurnTimeout is the end-to-end deadline of one user turn.
	TurnTimeout time.Duration `yaml:"turn_timeout" validate:"min=0"`

	// Timezone is the IANA zone used for the current-date context and for
	// calendar events.
	Timezone string `yaml:"timezone" validate:"required,timezone"`

	Log          LogConfig          `yaml:"log"`
	LLM          LLMConfig          `yaml:"llm"`
	Budget       BudgetConfig       `yaml:"budget"`
	Cache        CacheConfig        `yaml:"cache"`
	Storage      StorageConfig      `yaml:"storage"`
	Integrations IntegrationsConfig `yaml:"integrations"`
	Eval         EvalConfig         `yaml:"eval"`
}

// LogConfig selects the zap encoder and level.
type LogConfig struct {
	Level       string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Development bool   `yaml:"development"`
}

// LLMConfig tunes the middleware chain wrapped around every chat client.
type LLMConfig struct {
	// Timeout bounds a single provider request.
	Timeout time.Duration `yaml:"timeout" validate:"min=0"`

	// RequestsPerSecond and Burst configure the token-bucket rate limiter.
	// Zero disables rate limiting.
	RequestsPerSecond float64 `yaml:"requests_per_second" validate:"min=0"`
	Burst             int     `yaml:"burst" validate:"min=0"`

	// MaxRetries applies to retryable provider errors only.
	MaxRetries int `yaml:"max_retries" validate:"min=0,max=10"`

	// BreakerFailures consecutive failures open the circuit for
	// BreakerCooldown. Zero disables the breaker.
	BreakerFailures int           `yaml:"breaker_failures" validate:"min=0"`
	BreakerCooldown time.Duration `yaml:"breaker_cooldown" validate:"min=0"`

	// TokenEstimator picks how prompt sizes are estimated for debug logs.
	TokenEstimator string `yaml:"token_estimator" validate:"omitempty,oneof=simple word character tiktoken"`

	// Temperature is the sampling temperature of every agent. Unset leaves
	// the provider default; 0 pins routing for reproducible evaluations.
	Temperature *float64 `yaml:"temperature" validate:"omitempty,min=0,max=2"`

	// MaxTokens caps each model reply. Zero uses the client default.
	MaxTokens int `yaml:"max_tokens" validate:"min=0"`
}

// BudgetConfig caps the resources of every agent turn, nested specialist
// turns included. Zero leaves a limit off.
type BudgetConfig struct {
	MaxTokens int64 `yaml:"max_tokens" validate:"min=0"`
	MaxCalls  int64 `yaml:"max_calls" validate:"min=0"`
}

// Enabled reports whether any limit is set.
func (b BudgetConfig) Enabled() bool { return b.MaxTokens > 0 || b.MaxCalls > 0 }

// CacheConfig controls the read-only tool result cache.
type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	TTL     time.Duration `yaml:"ttl" validate:"min=0"`
}

// StorageConfig locates the sqlite database shared by the cart and the
// document store.
type StorageConfig struct {
	Database string `yaml:"database" validate:"required"`
}

// IntegrationsConfig holds credentials for every external API. Only
// enabled integrations are validated and wired.
type IntegrationsConfig struct {
	Naver   NaverConfig   `yaml:"naver"`
	Weather WeatherConfig `yaml:"weather"`
	Search  SearchConfig  `yaml:"search"`
	Stock   StockConfig   `yaml:"stock"`
	Google  GoogleConfig  `yaml:"google"`
}

// NaverConfig configures the Naver open API used by place and shopping
// search.
type NaverConfig struct {
	Enabled      bool   `yaml:"enabled"`
	BaseURL      string `yaml:"base_url" validate:"omitempty,url"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

// WeatherConfig configures Kakao geocoding and Open-Meteo forecasts.
// Without a Kakao key every location falls back to the default
// coordinates, so the key is optional.
type WeatherConfig struct {
	Enabled     bool   `yaml:"enabled"`
	KakaoAPIKey string `yaml:"kakao_api_key"`
	GeocodeURL  string `yaml:"geocode_url" validate:"omitempty,url"`
	ForecastURL string `yaml:"forecast_url" validate:"omitempty,url"`
}

// SearchConfig configures Tavily web search.
type SearchConfig struct {
	Enabled bool   `yaml:"enabled"`
	BaseURL string `yaml:"base_url" validate:"omitempty,url"`
	APIKey  string `yaml:"api_key"`
}

// StockConfig configures the Yahoo Finance chart API. It needs no key.
type StockConfig struct {
	Enabled bool   `yaml:"enabled"`
	BaseURL string `yaml:"base_url" validate:"omitempty,url"`
}

// GoogleConfig points at the OAuth client secret and the pre-authorized
// token used by the mail and calendar specialists.
type GoogleConfig struct {
	Enabled         bool   `yaml:"enabled"`
	CredentialsFile string `yaml:"credentials_file"`
	TokenFile       string `yaml:"token_file"`
}

// EvalConfig configures `maestro eval`.
type EvalConfig struct {
	Cases       string `yaml:"cases"`
	Concurrency int    `yaml:"concurrency" validate:"min=0,max=16"`
	Mode        string `yaml:"mode" validate:"omitempty,oneof=strict lenient both"`
}

// LoadDotEnv loads KEY=VALUE files into the process environment. Missing
// files are skipped; variables that are already set win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// LoadConfig reads, expands, decodes and validates the configuration file
// at path.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer f.Close()

	cfg, err := ParseConfig(f)
	if err != nil {
		return nil, err
	}

	if cfg.Roster != "" && !filepath.IsAbs(cfg.Roster) {
		cfg.Roster = filepath.Join(filepath.Dir(path), cfg.Roster)
	}
	if cfg.Eval.Cases != "" && !filepath.IsAbs(cfg.Eval.Cases) {
		cfg.Eval.Cases = filepath.Join(filepath.Dir(path), cfg.Eval.Cases)
	}
	return cfg, nil
}

// ParseConfig decodes a configuration document. ${VAR} references are
// expanded from the environment before decoding and unknown fields are
// rejected.
func ParseConfig(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	expanded := os.ExpandEnv(string(raw))

	cfg := &Config{}
	decoder := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("YAML decode failed: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.RoundLimit == 0 {
		c.RoundLimit = DefaultRoundLimit
	}
	if c.MaxDepth == 0 {
		c.MaxDepth = DefaultMaxDepth
	}
	if c.TurnTimeout == 0 {
		c.TurnTimeout = DefaultTurnTimeout
	}
	if c.Timezone == "" {
		c.Timezone = DefaultTimezone
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = DefaultCacheTTL
	}
	if c.Storage.Database == "" {
		c.Storage.Database = DefaultDatabase
	}
	if c.Eval.Concurrency == 0 {
		c.Eval.Concurrency = 1
	}
	if c.Eval.Mode == "" {
		c.Eval.Mode = "both"
	}
}

// Validate runs the struct tag rules and then checks that every enabled
// integration has its credentials. Missing credentials wrap
// ports.ErrMissingCredentials so startup can fail before any request.
func (c *Config) Validate() error {
	v, err := newValidator()
	if err != nil {
		return err
	}
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("struct validation failed: %w", err)
	}

	in := c.Integrations
	required := []struct {
		key     string
		enabled bool
		value   string
	}{
		{"integrations.naver.client_id", in.Naver.Enabled, in.Naver.ClientID},
		{"integrations.naver.client_secret", in.Naver.Enabled, in.Naver.ClientSecret},
		{"integrations.search.api_key", in.Search.Enabled, in.Search.APIKey},
		{"integrations.google.credentials_file", in.Google.Enabled, in.Google.CredentialsFile},
		{"integrations.google.token_file", in.Google.Enabled, in.Google.TokenFile},
	}
	for _, r := range required {
		if r.enabled && r.value == "" {
			return ports.NewConfigError(r.key, ports.ErrMissingCredentials)
		}
	}
	return nil
}

// Location loads the configured time zone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, ports.NewConfigError("timezone", err)
	}
	return loc, nil
}

// NewLogger builds the root zap logger described by cfg.
func NewLogger(cfg LogConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		level, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, ports.NewConfigError("log.level", err)
		}
		zc.Level = level
	}
	return zc.Build()
}

func newValidator() (*validator.Validate, error) {
	v := validator.New()
	if err := registerValidators(v); err != nil {
		return nil, fmt.Errorf("failed to register validators: %w", err)
	}
	return v, nil
}
