package api

import (
	"log/slog"
	"net/http"
)

type filtersHandler struct {
	index  Index
	logger *slog.Logger
}

func (h *filtersHandler) options(w http.ResponseWriter, r *http.Request) {
	values, err := h.index.ListFilterValues(r.Context())
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, values)
}
