package api

import (
	"log/slog"
	"net/http"

	"github.com/websters/query-api/internal/knowledge"
)

// healthHandler reports liveness plus a cheap index probe. It sits
// outside the middleware stack so probes never need credentials and
// never spam the request log.
type healthHandler struct {
	index  Index
	logger *slog.Logger
}

type healthResponse struct {
	Status    string `json:"status"`
	Documents int    `json:"documents,omitempty"`
}

func (h *healthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.index == nil {
		writeJSON(w, http.StatusOK, healthResponse{Status: "degraded"})
		return
	}

	count, err := h.index.Count(r.Context(), knowledge.Filters{})
	if err != nil {
		h.logger.Warn("health probe failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unhealthy"})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Documents: count})
}
