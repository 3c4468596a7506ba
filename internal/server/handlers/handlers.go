// Package handlers implements HTTP request handlers for the baton API.
package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/baton-ci/baton/internal/journal"
	"github.com/baton-ci/baton/pkg/types"
)

// Runner starts orchestrations. Implemented by orchestrator.Orchestrator.
type Runner interface {
	Start(ctx context.Context, req types.TriggerRequest, cfg types.PollConfig) string
	HasBackend(kind types.BackendKind) bool
}

// Handlers contains all HTTP handler dependencies.
type Handlers struct {
	runner   Runner
	journal  journal.Store
	defaults types.PollConfig
	logger   *slog.Logger
}

// New creates a new Handlers instance.
func New(runner Runner, store journal.Store, defaults types.PollConfig, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		runner:   runner,
		journal:  store,
		defaults: defaults,
		logger:   logger,
	}
}

// writeJSON encodes v to the response with the given status.
func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encoding response failed", "error", err)
	}
}

// writeError logs the internal error and returns a sanitized JSON error to the client.
func (h *Handlers) writeError(w http.ResponseWriter, status int, msg string, err error) {
	if err != nil {
		h.logger.Error(msg, "error", err, "status", status)
	}
	h.writeJSON(w, status, map[string]string{"error": msg})
}
