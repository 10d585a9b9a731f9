package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nomis52/gopipeline/history"
)

const defaultHistoryLimit = 50

// HistoryHandler handles GET /api/history?limit=N.
type HistoryHandler struct {
	provider HistoryProvider
}

// NewHistoryHandler creates a new HistoryHandler.
func NewHistoryHandler(provider HistoryProvider) *HistoryHandler {
	return &HistoryHandler{
		provider: provider,
	}
}

// ServeHTTP implements http.Handler.
func (h *HistoryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", s))
			return
		}
		limit = n
	}

	runs, err := h.provider.History(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if runs == nil {
		runs = []history.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// HistoryRunHandler handles GET /api/history/{id}.
type HistoryRunHandler struct {
	getter RunGetter
}

// NewHistoryRunHandler creates a new HistoryRunHandler.
func NewHistoryRunHandler(getter RunGetter) *HistoryRunHandler {
	return &HistoryRunHandler{
		getter: getter,
	}
}

// ServeHTTP implements http.Handler.
func (h *HistoryRunHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	run, err := h.getter.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, history.ErrNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}
