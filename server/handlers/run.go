package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nomis52/gopipeline/registry"
	"github.com/nomis52/gopipeline/runner"
)

// RunResponse is returned when a run is accepted.
type RunResponse struct {
	Pipeline string `json:"pipeline"`
}

// RunHandler handles POST /api/pipelines/{name}/run.
type RunHandler struct {
	runner PipelineRunner
}

// NewRunHandler creates a new RunHandler.
func NewRunHandler(r PipelineRunner) *RunHandler {
	return &RunHandler{
		runner: r,
	}
}

// ServeHTTP implements http.Handler.
func (h *RunHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	ctx := runner.WithTrigger(r.Context(), runner.TriggerAPI)

	if err := h.runner.Start(ctx, name); err != nil {
		switch {
		case errors.Is(err, registry.ErrNotFound):
			writeError(w, http.StatusNotFound, err)
		case errors.Is(err, runner.ErrRunInProgress):
			writeError(w, http.StatusConflict, err)
		default:
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}

	writeJSON(w, http.StatusAccepted, RunResponse{Pipeline: name})
}
