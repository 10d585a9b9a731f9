package handlers

import (
	"net/http"

	"github.com/nomis52/gopipeline/buildinfo"
)

// HandleHealth reports liveness with a plain "ok" and the build commit in
// the X-Build-Commit header.
func HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Header().Set("X-Build-Commit", buildinfo.Get().GitCommit)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
