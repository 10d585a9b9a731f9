package handlers

import (
	"net/http"

	"github.com/nomis52/gopipeline/runner"
	"github.com/nomis52/gopipeline/server/types"
)

// PipelineResponse is one entry of GET /api/pipelines.
type PipelineResponse struct {
	types.PipelineInfo
	Status runner.RunStatus `json:"status"`
}

// PipelinesHandler lists the configured pipelines with their status.
type PipelinesHandler struct {
	configProvider ConfigProvider
	statusProvider StatusProvider
}

// NewPipelinesHandler creates a new PipelinesHandler.
func NewPipelinesHandler(cp ConfigProvider, sp StatusProvider) *PipelinesHandler {
	return &PipelinesHandler{
		configProvider: cp,
		statusProvider: sp,
	}
}

// ServeHTTP implements http.Handler.
func (h *PipelinesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	pipelines := h.configProvider.Config().Pipelines
	resp := make([]PipelineResponse, 0, len(pipelines))
	for _, p := range pipelines {
		kinds := make([]string, 0, len(p.Steps))
		for _, s := range p.Steps {
			kinds = append(kinds, s.Kind)
		}
		resp = append(resp, PipelineResponse{
			PipelineInfo: types.PipelineInfo{
				Name:        p.Name,
				Description: p.Description,
				Schedule:    p.Schedule,
				Steps:       kinds,
			},
			Status: h.statusProvider.Status(p.Name),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
