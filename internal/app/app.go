// Package app assembles the application: configuration, database pool,
// Genkit, stores, the web-search engine, and the query service.
//
// Setup builds everything in dependency order and returns an App whose
// Close releases resources in reverse. Components never reach for
// globals; every dependency is passed through a constructor.
package app

import (
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/websters/query-api/internal/auth"
	"github.com/websters/query-api/internal/chat"
	"github.com/websters/query-api/internal/config"
	"github.com/websters/query-api/internal/knowledge"
	"github.com/websters/query-api/internal/preferences"
	"github.com/websters/query-api/internal/query"
	"github.com/websters/query-api/internal/rag"
	"github.com/websters/query-api/internal/websearch"
)

// App is the application container.
type App struct {
	Config *config.Config

	Genkit   *genkit.Genkit
	Embedder ai.Embedder
	DBPool   *pgxpool.Pool

	Knowledge   *knowledge.Store
	Pipeline    *rag.Pipeline
	Preferences *preferences.Preferences
	WebEngine   *websearch.Engine
	Chat        *chat.Store
	Auth        *auth.Service
	Service     *query.Service

	otelCleanup func()
}

// Close releases all resources. Background chat persistence is joined
// before the pool closes so in-flight writes land.
func (a *App) Close() error {
	slog.Info("shutting down application")

	if a.Service != nil {
		a.Service.Wait()
	}

	if a.DBPool != nil {
		a.DBPool.Close()
		slog.Info("database pool closed")
	}

	if a.otelCleanup != nil {
		a.otelCleanup()
	}

	return nil
}
