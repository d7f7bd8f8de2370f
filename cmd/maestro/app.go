package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Laisky/zap"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
	"gorm.io/gorm"

	"github.com/ahrav/go-maestro/infrastructure/cache"
	"github.com/ahrav/go-maestro/infrastructure/googleauth"
	"github.com/ahrav/go-maestro/infrastructure/llm"
	"github.com/ahrav/go-maestro/infrastructure/middleware"
	"github.com/ahrav/go-maestro/infrastructure/store"
	"github.com/ahrav/go-maestro/infrastructure/tools"
	calendartools "github.com/ahrav/go-maestro/infrastructure/tools/calendar"
	"github.com/ahrav/go-maestro/infrastructure/tools/cart"
	"github.com/ahrav/go-maestro/infrastructure/tools/document"
	"github.com/ahrav/go-maestro/infrastructure/tools/mail"
	"github.com/ahrav/go-maestro/infrastructure/tools/naver"
	"github.com/ahrav/go-maestro/infrastructure/tools/search"
	"github.com/ahrav/go-maestro/infrastructure/tools/stock"
	"github.com/ahrav/go-maestro/infrastructure/tools/weather"
	"github.com/ahrav/go-maestro/internal/application"
	"github.com/ahrav/go-maestro/internal/domain"
	"github.com/ahrav/go-maestro/internal/ports"
)

// Tool HTTP clients share one limiter per integration.
const (
	toolRequestsPerSecond = 5
	toolBurst             = 5

	retryBaseDelay   = 500 * time.Millisecond
	retryMaxDelay    = 10 * time.Second
	cacheCleanup     = time.Minute
	metricsReadLimit = 5 * time.Second
)

// app holds the process-wide dependencies of one command.
type app struct {
	cfg      *application.Config
	logger   *zap.Logger
	location *time.Location
	metrics  *middleware.PrometheusMetrics
	db       *gorm.DB

	models  *llm.Registry
	results *cache.MemoryStore
	servers []*http.Server
}

// newApp loads configuration and opens the shared database. Model clients
// and tools are built on demand because import-docs needs neither.
func newApp(opts globalOptions) (*app, error) {
	if len(opts.envFiles) > 0 {
		if err := application.LoadDotEnv(opts.envFiles...); err != nil {
			return nil, err
		}
	}
	cfg, err := application.LoadConfig(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.verbose {
		cfg.Log.Level = "debug"
	}

	logger, err := application.NewLogger(cfg.Log)
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	db, err := store.Open(cfg.Storage.Database)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		logger:   logger,
		location: loc,
		metrics:  middleware.NewPrometheusMetrics(prometheus.NewRegistry()),
		db:       db,
	}
	if opts.metricsAddr != "" {
		a.serveMetrics(opts.metricsAddr)
	}
	return a, nil
}

func (a *app) serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: metricsReadLimit}
	a.servers = append(a.servers, srv)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server stopped", zap.String("addr", addr), zap.Error(err))
		}
	}()
	a.logger.Info("serving metrics", zap.String("addr", addr))
}

// Close releases the database and stops the metrics server.
func (a *app) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for _, srv := range a.servers {
		_ = srv.Shutdown(ctx)
	}
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	_ = a.logger.Sync()
}

// modelRegistry builds the provider registry with the configured
// middleware chain around every client.
func (a *app) modelRegistry() (*llm.Registry, error) {
	if a.models != nil {
		return a.models, nil
	}

	c := a.cfg.LLM
	chain := []llm.Middleware{
		llm.TracingMiddleware("maestro"),
		llm.MetricsMiddleware(a.metrics),
	}
	if c.BreakerFailures > 0 {
		chain = append(chain, llm.CircuitBreakerMiddlewareWithMetrics(c.BreakerFailures, c.BreakerCooldown,
			llm.CollectorBreakerMetrics(a.metrics, "providers")))
	}
	if c.RequestsPerSecond > 0 {
		burst := max(c.Burst, 1)
		chain = append(chain, llm.RateLimitMiddleware(rate.Limit(c.RequestsPerSecond), burst))
	}
	if c.MaxRetries > 0 {
		chain = append(chain, llm.RetryMiddleware(c.MaxRetries, retryBaseDelay, retryMaxDelay))
	}
	if c.Timeout > 0 {
		chain = append(chain, llm.TimeoutMiddleware(c.Timeout))
	}

	estimator, err := llm.NewTokenEstimator(c.TokenEstimator)
	if err != nil {
		return nil, ports.NewConfigError("llm.token_estimator", err)
	}

	provider, _, _ := strings.Cut(a.cfg.Model, "/")
	registry, err := llm.NewRegistry(llm.RegistryConfig{
		Providers:         llm.DefaultProviders,
		DefaultProvider:   provider,
		DefaultTimeout:    c.Timeout,
		DefaultMiddleware: chain,
		TokenEstimator:    estimator,
	})
	if err != nil {
		return nil, ports.NewConfigError("model", err)
	}
	a.models = registry
	return registry, nil
}

// toolset builds every tool whose integration is enabled. Read-only tools
// are wrapped in the result cache when caching is on.
func (a *app) toolset(ctx context.Context) (*tools.Registry, error) {
	in := a.cfg.Integrations
	var built []ports.Tool

	cartStore, err := cart.NewStore(a.db)
	if err != nil {
		return nil, err
	}
	docStore, err := document.NewStore(a.db)
	if err != nil {
		return nil, err
	}
	built = append(built, cart.Tool(cartStore), document.Tool(docStore))

	newHTTP := func() *tools.HTTPClient {
		return tools.NewHTTPClient(tools.WithRateLimit(toolRequestsPerSecond, toolBurst))
	}

	if in.Naver.Enabled {
		client, err := naver.NewClient(in.Naver.BaseURL, in.Naver.ClientID, in.Naver.ClientSecret, newHTTP())
		if err != nil {
			return nil, ports.NewConfigError("integrations.naver", err)
		}
		built = append(built, naver.PlaceTool(client), naver.ShoppingTool(client))
	}
	if in.Weather.Enabled {
		client := weather.NewClient(weather.Config{
			KakaoAPIKey: in.Weather.KakaoAPIKey,
			GeocodeURL:  in.Weather.GeocodeURL,
			ForecastURL: in.Weather.ForecastURL,
			Location:    a.location,
		}, newHTTP(), a.logger)
		built = append(built, weather.Tool(client, time.Now))
	}
	if in.Search.Enabled {
		client, err := search.NewClient(in.Search.BaseURL, in.Search.APIKey, newHTTP())
		if err != nil {
			return nil, ports.NewConfigError("integrations.search", err)
		}
		built = append(built, search.GeneralTool(client), search.TechNewsTool(client), search.LinksTool(client))
	}
	if in.Stock.Enabled {
		client := stock.NewClient(in.Stock.BaseURL, a.location, newHTTP())
		built = append(built, stock.PriceTool(client), stock.RecommendTool(client))
	}
	if in.Google.Enabled {
		google, err := a.googleTools(ctx)
		if err != nil {
			return nil, err
		}
		built = append(built, google...)
	}

	if a.cfg.Cache.Enabled {
		a.results = cache.NewMemoryStore(cacheCleanup)
		for i, t := range built {
			built[i] = tools.WithCache(t, a.results, a.cfg.Cache.TTL, a.logger.Named("cache"))
		}
	}
	return tools.NewRegistry(built...)
}

func (a *app) googleTools(ctx context.Context) ([]ports.Tool, error) {
	g := a.cfg.Integrations.Google
	ts, err := googleauth.NewTokenSource(ctx, g.CredentialsFile, g.TokenFile, a.logger)
	if err != nil {
		return nil, ports.NewConfigError("integrations.google", err)
	}
	httpClient := option.WithHTTPClient(ts.HTTPClient(ctx))

	gmailSvc, err := gmail.NewService(ctx, httpClient)
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}
	calSvc, err := calendar.NewService(ctx, httpClient)
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}

	registry, err := a.modelRegistry()
	if err != nil {
		return nil, err
	}
	summarizer, err := registry.GetClient(a.cfg.Model)
	if err != nil {
		return nil, err
	}

	mails := mail.NewService(gmailSvc, summarizer, a.logger)
	events := calendartools.NewService(calSvc, a.location, a.logger)
	return []ports.Tool{
		mail.FindTool(mails),
		mail.DraftTool(mails),
		mail.SummarizeTool(mails),
		calendartools.CreateTool(events),
		calendartools.ListTool(events),
		calendartools.ModifyTool(events),
		calendartools.DeleteTool(events),
	}, nil
}

// orchestrator assembles the agent tree from the roster.
func (a *app) orchestrator(ctx context.Context) (ports.Agent, error) {
	roster, err := application.LoadRoster(a.cfg.Roster)
	if err != nil {
		return nil, err
	}
	available, err := a.toolset(ctx)
	if err != nil {
		return nil, err
	}
	registry, err := a.modelRegistry()
	if err != nil {
		return nil, err
	}
	if err := registry.CheckCredentials(roster.ModelSpecs(a.cfg.Model)...); err != nil {
		return nil, err
	}

	opts := application.BuildOptions{
		DefaultModel: a.cfg.Model,
		RoundLimit:   a.cfg.RoundLimit,
		MaxDepth:     a.cfg.MaxDepth,
		Temperature:  a.cfg.LLM.Temperature,
		MaxTokens:    a.cfg.LLM.MaxTokens,
		AgentOptions: []application.AgentOption{application.WithMetrics(a.metrics)},
		Logger:       a.logger,
	}
	if a.cfg.Budget.Enabled() {
		opts.Wrap = middleware.BudgetWrapper(middleware.BudgetFromConfig(a.cfg.Budget), a.metrics)
	}
	return application.BuildOrchestrator(roster, available, registry.GetClient, opts)
}

// today is the current-date context for interactive turns.
func (a *app) today() string {
	return domain.FormatToday(time.Now().In(a.location))
}
