package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"
)

// chatHandler serves per-user history. Every endpoint requires an
// authenticated caller; the store enforces ownership on top of that.
type chatHandler struct {
	store  ChatStore
	logger *slog.Logger
}

func (h *chatHandler) list(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	limit := queryInt32(r, "limit")
	offset := queryInt32(r, "offset")

	messages, err := h.store.List(r.Context(), userID, limit, offset)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

func (h *chatHandler) get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	msg, err := h.store.Get(r.Context(), userID, id)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (h *chatHandler) remove(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.store.Delete(r.Context(), userID, id); err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "message id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

// queryInt32 reads a numeric query parameter, treating absent or
// malformed values as zero so the store applies its defaults.
func queryInt32(r *http.Request, name string) int32 {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0
	}
	n, err := strconv.ParseInt(raw, 10, 32)
	if err != nil || n < 0 {
		return 0
	}
	return int32(n)
}
