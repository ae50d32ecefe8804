package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/websters/query-api/db"
	"github.com/websters/query-api/internal/auth"
	"github.com/websters/query-api/internal/chat"
	"github.com/websters/query-api/internal/config"
	"github.com/websters/query-api/internal/knowledge"
	"github.com/websters/query-api/internal/observability"
	"github.com/websters/query-api/internal/preferences"
	"github.com/websters/query-api/internal/query"
	"github.com/websters/query-api/internal/rag"
	"github.com/websters/query-api/internal/sqlc"
	"github.com/websters/query-api/internal/websearch"
)

// Setup creates and initializes the application.
// Returns an App with embedded cleanup; call Close() to release.
func Setup(ctx context.Context, cfg *config.Config) (_ *App, retErr error) {
	a := &App{Config: cfg}
	logger := slog.Default()

	// On error, clean up everything already initialized
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				slog.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	// Tracing must be registered before Genkit initialization so the
	// span processor sees every model call.
	a.otelCleanup = provideOtelShutdown(ctx, cfg)

	pool, err := provideDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.DBPool = pool

	g, err := provideGenkit(ctx)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	embedder := googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	if embedder == nil {
		return nil, fmt.Errorf("embedder %q not found", cfg.EmbedderModel)
	}
	a.Embedder = embedder

	queries := sqlc.New(pool)
	modelName := qualifiedModelName(cfg.ModelName)

	a.Knowledge = knowledge.New(queries, embedder, logger.With("component", "knowledge"))
	a.Pipeline = rag.New(g, a.Knowledge, modelName, logger.With("component", "rag"))

	prefs, err := preferences.Load(cfg.PreferencesPath, logger)
	if err != nil {
		return nil, fmt.Errorf("loading source preferences: %w", err)
	}
	a.Preferences = prefs

	a.WebEngine = provideWebEngine(g, modelName, cfg, logger)

	a.Chat = chat.New(queries, logger.With("component", "chat"))

	a.Auth, err = auth.NewService(queries, cfg.JWTSecret,
		time.Duration(cfg.TokenTTLMinutes)*time.Minute, logger.With("component", "auth"))
	if err != nil {
		return nil, fmt.Errorf("creating auth service: %w", err)
	}

	a.Service = query.New(a.Pipeline, prefs, a.WebEngine, a.Chat, logger.With("component", "query"))
	a.Service.MaxWebResults = cfg.SearchMaxResults

	return a, nil
}

// qualifiedModelName prefixes bare Gemini model names with the
// googlegenai provider so Genkit lookups resolve.
func qualifiedModelName(name string) string {
	if strings.Contains(name, "/") {
		return name
	}
	return "googleai/" + name
}

// provideOtelShutdown sets up OTLP tracing before Genkit initialization.
func provideOtelShutdown(ctx context.Context, cfg *config.Config) func() {
	if !cfg.OTLP.Enabled {
		return func() {}
	}

	shutdown, err := observability.Setup(ctx, observability.Config{
		Endpoint:    cfg.OTLP.Endpoint,
		Environment: cfg.OTLP.Environment,
		ServiceName: cfg.OTLP.ServiceName,
	})
	if err != nil {
		slog.Warn("setting up tracing", "error", err)
		return func() {}
	}

	//nolint:contextcheck // Independent context: shutdown runs during teardown when parent is canceled
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			slog.Warn("shutting down tracer provider", "error", err)
		}
	}
}

// provideGenkit initializes Genkit with the Gemini plugin. The plugin
// reads GEMINI_API_KEY from the environment; config.Validate already
// checked it is set.
func provideGenkit(ctx context.Context) (*genkit.Genkit, error) {
	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	if g == nil {
		return nil, errors.New("initializing genkit with gemini provider")
	}
	return g, nil
}

// provideDBPool creates a PostgreSQL connection pool and runs migrations.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}

// provideWebEngine assembles the search provider, page fetcher, and
// enrichment engine. A missing Serper credential is a supported
// degraded mode: searches return no results and combined answers fall
// back to local-only.
func provideWebEngine(g *genkit.Genkit, modelName string, cfg *config.Config, logger *slog.Logger) *websearch.Engine {
	provider := websearch.NewSerperClient(cfg.SerperAPIKey, logger.With("component", "serper"))
	fetcher := websearch.NewFetcher(
		time.Duration(cfg.FetchTimeoutMS)*time.Millisecond,
		logger.With("component", "fetch"),
	)
	return websearch.NewEngine(g, modelName, provider, fetcher, logger.With("component", "websearch"))
}
