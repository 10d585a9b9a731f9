package handlers

import (
	"net/http"
	"time"

	"github.com/nomis52/gopipeline/runner"
	"github.com/nomis52/gopipeline/server/types"
)

// NextRunResponse is the JSON response for the next run information.
type NextRunResponse struct {
	Scheduled bool       `json:"scheduled"`
	NextRun   *time.Time `json:"next_run,omitempty"`
}

// APIStatusResponse is the consolidated response for /api/status.
type APIStatusResponse struct {
	Server    types.ServerProperties `json:"server"`
	Pipelines []runner.RunStatus     `json:"pipelines"`
	NextRun   NextRunResponse        `json:"next_run"`
}

// APIStatusHandler handles requests for the consolidated status endpoint.
type APIStatusHandler struct {
	props    types.ServerProperties
	statuses StatusProvider
	schedule NextRunProvider
}

// NewAPIStatusHandler creates a new APIStatusHandler.
func NewAPIStatusHandler(props types.ServerProperties, statuses StatusProvider, schedule NextRunProvider) *APIStatusHandler {
	return &APIStatusHandler{
		props:    props,
		statuses: statuses,
		schedule: schedule,
	}
}

// ServeHTTP implements http.Handler.
func (h *APIStatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	next := h.schedule.NextRun()
	writeJSON(w, http.StatusOK, APIStatusResponse{
		Server:    h.props,
		Pipelines: h.statuses.Statuses(),
		NextRun: NextRunResponse{
			Scheduled: next != nil,
			NextRun:   next,
		},
	})
}
