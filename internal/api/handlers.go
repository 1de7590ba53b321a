package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/perf-brain/internal/domain"
	"github.com/ignite/perf-brain/internal/engine"
	"github.com/ignite/perf-brain/internal/engine/face"
	"github.com/ignite/perf-brain/internal/pkg/httputil"
)

// Brain is the engine surface the handlers use.
type Brain interface {
	RunCycle(ctx context.Context, req engine.CycleRequest) (*face.BrainState, error)
	Latest(ctx context.Context, orgID string) (*face.BrainState, error)
	History(ctx context.Context, orgID string, limit int) ([]face.StateSummary, error)
	Actions(ctx context.Context, orgID string) ([]face.ActionPayload, error)
	Narrative(ctx context.Context, orgID string, persona face.Persona) (string, error)
}

// Handlers contains HTTP handlers
type Handlers struct {
	brain Brain
}

func NewHandlers(brain Brain) *Handlers {
	return &Handlers{brain: brain}
}

// RunCycle runs a cycle synchronously and returns the new snapshot.
//
//	POST /api/orgs/{orgID}/brain/cycles?trigger=manual&persona=analyst
func (h *Handlers) RunCycle(w http.ResponseWriter, r *http.Request) {
	req := engine.CycleRequest{OrganizationID: chi.URLParam(r, "orgID")}

	if v := r.URL.Query().Get("trigger"); v != "" {
		trigger, ok := engine.ParseTrigger(v)
		if !ok {
			httputil.BadRequest(w, "unknown trigger "+v)
			return
		}
		req.Trigger = trigger
	}
	if v := r.URL.Query().Get("persona"); v != "" {
		persona, ok := face.ParsePersona(v)
		if !ok {
			httputil.BadRequest(w, "unknown persona "+v)
			return
		}
		req.Persona = persona
	}

	st, err := h.brain.RunCycle(r.Context(), req)
	switch {
	case err == nil:
		httputil.Created(w, st)
	case errors.Is(err, domain.ErrCycleInProgress):
		httputil.Conflict(w, string(domain.ErrCycleInProgress), "a brain cycle is already running for this organization")
	case errors.Is(err, domain.ErrCycleTimeout):
		httputil.ErrorCode(w, http.StatusGatewayTimeout, string(domain.ErrCycleTimeout), "brain cycle timed out")
	default:
		httputil.InternalError(w, err)
	}
}

// GetLatest returns the current snapshot.
//
//	GET /api/orgs/{orgID}/brain
func (h *Handlers) GetLatest(w http.ResponseWriter, r *http.Request) {
	st, err := h.brain.Latest(r.Context(), chi.URLParam(r, "orgID"))
	if err != nil {
		h.readError(w, err)
		return
	}
	httputil.OK(w, st)
}

// GetHistory lists snapshot summaries newest first.
//
//	GET /api/orgs/{orgID}/brain/history?limit=30
func (h *Handlers) GetHistory(w http.ResponseWriter, r *http.Request) {
	limit := httputil.QueryInt(r, "limit", 30, 1, 365)
	items, err := h.brain.History(r.Context(), chi.URLParam(r, "orgID"), limit)
	if err != nil {
		h.readError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"items": items, "count": len(items)})
}

//	GET /api/orgs/{orgID}/brain/actions
func (h *Handlers) GetActions(w http.ResponseWriter, r *http.Request) {
	actions, err := h.brain.Actions(r.Context(), chi.URLParam(r, "orgID"))
	if err != nil {
		h.readError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"actions": actions})
}

// GetNarrative renders the current snapshot for another persona.
//
//	GET /api/orgs/{orgID}/brain/narrative?persona=analyst
func (h *Handlers) GetNarrative(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("persona")
	persona, ok := face.ParsePersona(raw)
	if !ok {
		httputil.BadRequest(w, "persona must be one of executive, operator, analyst")
		return
	}
	text, err := h.brain.Narrative(r.Context(), chi.URLParam(r, "orgID"), persona)
	if err != nil {
		h.readError(w, err)
		return
	}
	httputil.OK(w, map[string]string{"persona": string(persona), "narrative": text})
}

func (h *Handlers) readError(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrNotFound) {
		httputil.NotFound(w, "no brain state for this organization")
		return
	}
	httputil.InternalError(w, err)
}
