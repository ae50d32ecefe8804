// Package api is the JSON HTTP surface: query endpoints, the auth
// boundary, and per-user chat history.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/websters/query-api/internal/chat"
	"github.com/websters/query-api/internal/knowledge"
	"github.com/websters/query-api/internal/query"
)

// QueryService is the orchestration capability the handlers expose;
// satisfied by *query.Service.
type QueryService interface {
	Query(ctx context.Context, req query.Request) (*query.BasicResult, error)
	QueryLocal(ctx context.Context, req query.Request) (*query.LocalResult, error)
	QueryCombined(ctx context.Context, req query.Request) (*query.CombinedResult, error)
	Enrich(ctx context.Context, req query.EnrichRequest) (*query.EnrichResult, error)
}

// ChatStore is the history capability the chat handlers need;
// satisfied by *chat.Store.
type ChatStore interface {
	List(ctx context.Context, userID string, limit, offset int32) ([]*chat.Message, error)
	Get(ctx context.Context, userID string, id uuid.UUID) (*chat.Message, error)
	Delete(ctx context.Context, userID string, id uuid.UUID) error
}

// AuthService is the credential boundary; satisfied by *auth.Service.
type AuthService interface {
	Login(ctx context.Context, username, password string) (string, time.Time, error)
}

// Index is the read-only view of the document index used by health and
// filter-option endpoints; satisfied by *knowledge.Store.
type Index interface {
	Count(ctx context.Context, filters knowledge.Filters) (int, error)
	ListFilterValues(ctx context.Context) (knowledge.FilterValues, error)
}

// ServerConfig contains the dependencies for the API server.
type ServerConfig struct {
	Logger   *slog.Logger
	Queries  QueryService  // Required
	Chat     ChatStore     // Optional: nil disables chat endpoints
	Auth     AuthService   // Optional: nil disables /api/auth/login
	Index    Index         // Optional: nil degrades /health and disables /api/filters
	Verifier TokenVerifier // Optional: nil means all callers are anonymous

	// CORSOrigins are the browser origins allowed to call the API.
	// Empty disables CORS handling.
	CORSOrigins []string
}

// Server is the JSON API HTTP server.
type Server struct {
	handler http.Handler
}

// NewServer creates the server with all routes and middleware
// configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Queries == nil {
		return nil, errors.New("query service is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()

	qh := &queryHandler{service: cfg.Queries, logger: logger}
	mux.HandleFunc("POST /api/query", qh.basic)
	mux.HandleFunc("POST /api/query/local", qh.local)
	mux.HandleFunc("POST /api/query/combined", qh.combined)
	mux.HandleFunc("POST /api/enrich", qh.enrich)

	if cfg.Auth != nil {
		ah := &authHandler{auth: cfg.Auth, logger: logger}
		mux.HandleFunc("POST /api/auth/login", ah.login)
	}

	if cfg.Chat != nil {
		ch := &chatHandler{store: cfg.Chat, logger: logger}
		mux.HandleFunc("GET /api/chat/messages", ch.list)
		mux.HandleFunc("GET /api/chat/messages/{id}", ch.get)
		mux.HandleFunc("DELETE /api/chat/messages/{id}", ch.remove)
	}

	if cfg.Index != nil {
		fh := &filtersHandler{index: cfg.Index, logger: logger}
		mux.HandleFunc("GET /api/filters", fh.options)
	}

	// Middleware stack, outermost first:
	//   Recovery -> Logging -> CORS -> Auth -> Routes
	var handler http.Handler = mux
	handler = authMiddleware(cfg.Verifier, logger)(handler)
	if len(cfg.CORSOrigins) > 0 {
		handler = corsMiddleware(cfg.CORSOrigins)(handler)
	}
	handler = loggingMiddleware(logger)(handler)
	handler = recoveryMiddleware(logger)(handler)

	// Health probes bypass the middleware stack.
	topMux := http.NewServeMux()
	topMux.Handle("GET /health", &healthHandler{index: cfg.Index, logger: logger})
	topMux.Handle("/", handler)

	return &Server{handler: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}
