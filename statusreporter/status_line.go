package statusreporter

import (
	"log/slog"

	"github.com/nomis52/gopipeline/pipeline"
)

// StatusLine reports status for one component: each update is logged and
// stored in the shared collection.
type StatusLine struct {
	logger     *slog.Logger
	collection *StatusCollection
	id         pipeline.ComponentID
}

// NewStatusLine binds a status line to id. A nil collection means updates
// are only logged.
func NewStatusLine(id pipeline.ComponentID, logger *slog.Logger, collection *StatusCollection) *StatusLine {
	return &StatusLine{
		logger:     logger,
		collection: collection,
		id:         id,
	}
}

// Set logs status and stores it.
func (sl *StatusLine) Set(status string) {
	sl.logger.Info(status, "component_id", sl.id.ShortString())
	if sl.collection != nil {
		sl.collection.Set(sl.id, status)
	}
}

// ID returns the component the line is bound to.
func (sl *StatusLine) ID() pipeline.ComponentID {
	return sl.id
}
