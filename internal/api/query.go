package api

import (
	"log/slog"
	"net/http"

	"github.com/websters/query-api/internal/query"
)

// queryHandler serves the retrieval and enrichment endpoints. Callers
// may be anonymous; identity only gates history persistence.
type queryHandler struct {
	service QueryService
	logger  *slog.Logger
}

func (h *queryHandler) basic(w http.ResponseWriter, r *http.Request) {
	var req query.Request
	if !decodeJSON(w, r, &req) {
		return
	}
	if userID, ok := userIDFromContext(r.Context()); ok {
		req.UserID = userID
	}

	result, err := h.service.Query(r.Context(), req)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *queryHandler) local(w http.ResponseWriter, r *http.Request) {
	var req query.Request
	if !decodeJSON(w, r, &req) {
		return
	}
	if userID, ok := userIDFromContext(r.Context()); ok {
		req.UserID = userID
	}

	result, err := h.service.QueryLocal(r.Context(), req)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *queryHandler) combined(w http.ResponseWriter, r *http.Request) {
	var req query.Request
	if !decodeJSON(w, r, &req) {
		return
	}
	if userID, ok := userIDFromContext(r.Context()); ok {
		req.UserID = userID
	}

	result, err := h.service.QueryCombined(r.Context(), req)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *queryHandler) enrich(w http.ResponseWriter, r *http.Request) {
	var req query.EnrichRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if userID, ok := userIDFromContext(r.Context()); ok {
		req.UserID = userID
	}

	result, err := h.service.Enrich(r.Context(), req)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
