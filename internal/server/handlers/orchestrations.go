package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/baton-ci/baton/internal/journal"
	"github.com/baton-ci/baton/pkg/types"
)

// createRequest is the POST /orchestrations body.
type createRequest struct {
	Backend  types.BackendKind  `json:"backend"`
	Owner    string             `json:"owner,omitempty"`
	Project  string             `json:"project,omitempty"`
	Workflow string             `json:"workflow"`
	Ref      string             `json:"ref,omitempty"`
	Inputs   map[string]string  `json:"inputs,omitempty"`
	Poll     types.PollSettings `json:"poll,omitempty"`
}

// CreateOrchestration accepts a trigger request, starts the orchestration in
// the background, and returns 202 with its id. The caller polls the record
// endpoint for the reference URL (available once correlated) and the verdict.
func (h *Handlers) CreateOrchestration(w http.ResponseWriter, r *http.Request) {
	var body createRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", err)
		return
	}
	if body.Workflow == "" {
		h.writeError(w, http.StatusBadRequest, "workflow is required", nil)
		return
	}
	if body.Backend == "" {
		h.writeError(w, http.StatusBadRequest, "backend is required", nil)
		return
	}
	if !h.runner.HasBackend(body.Backend) {
		h.writeError(w, http.StatusBadRequest, "no backend configured for kind "+string(body.Backend), nil)
		return
	}

	cfg := mergePoll(h.defaults, body.Poll)
	if err := cfg.Validate(); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	req := types.TriggerRequest{
		Backend:  body.Backend,
		Owner:    body.Owner,
		Project:  body.Project,
		Workflow: body.Workflow,
		Ref:      body.Ref,
		Inputs:   body.Inputs,
	}

	// The orchestration outlives this request; detach its context from
	// the request's cancellation while keeping the request-scoped values.
	id := h.runner.Start(context.WithoutCancel(r.Context()), req, cfg)

	h.writeJSON(w, http.StatusAccepted, map[string]string{"id": id})
}

// GetOrchestration returns one journal record.
func (h *Handlers) GetOrchestration(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "orchestrationID")
	rec, err := h.journal.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, journal.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "orchestration not found", nil)
			return
		}
		h.writeError(w, http.StatusInternalServerError, "failed to load orchestration", err)
		return
	}
	h.writeJSON(w, http.StatusOK, rec)
}

// ListOrchestrations returns recent journal records, newest first.
func (h *Handlers) ListOrchestrations(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer", nil)
			return
		}
		limit = n
	}

	recs, err := h.journal.List(r.Context(), limit)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to list orchestrations", err)
		return
	}
	if recs == nil {
		recs = []journal.Record{}
	}
	h.writeJSON(w, http.StatusOK, recs)
}

// mergePoll applies per-request overrides on top of the server defaults.
func mergePoll(def types.PollConfig, s types.PollSettings) types.PollConfig {
	cfg := def
	if s.PollIntervalSeconds > 0 {
		cfg.Interval = time.Duration(s.PollIntervalSeconds) * time.Second
	}
	if s.MaxWaitMinutes > 0 {
		cfg.MaxWait = time.Duration(s.MaxWaitMinutes) * time.Minute
	}
	if s.ClockSkewSeconds > 0 {
		cfg.ClockSkew = time.Duration(s.ClockSkewSeconds) * time.Second
	}
	if s.RetryBudget > 0 {
		cfg.RetryBudget = s.RetryBudget
	}
	if s.CancelledIsFailure {
		cfg.CancelledIsFailure = true
	}
	return cfg
}
