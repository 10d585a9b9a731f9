// Package types provides shared types for the server package and its subpackages.
package types

import (
	"time"

	"github.com/nomis52/gopipeline/buildinfo"
)

// ServerProperties holds metadata about the running server instance.
type ServerProperties struct {
	Build     buildinfo.Properties `json:"build"`
	StartedAt time.Time            `json:"started_at"`
	Hostname  string               `json:"hostname"`
}

// PipelineInfo describes a configured pipeline.
type PipelineInfo struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Schedule    string   `json:"schedule,omitempty"`
	Steps       []string `json:"steps"`
}
