package http

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/Aristman/ride-core/internal/domain/plan"
	"github.com/Aristman/ride-core/internal/port/storage"
	"github.com/Aristman/ride-core/internal/service"
)

// Handlers holds the services the HTTP layer fronts.
type Handlers struct {
	Orchestrator *service.OrchestratorService
	Store        storage.Store
	Tracker      *service.ProgressTracker
}

func NewHandlers(orch *service.OrchestratorService, store storage.Store, tracker *service.ProgressTracker) *Handlers {
	return &Handlers{Orchestrator: orch, Store: store, Tracker: tracker}
}

type createPlanRequest struct {
	Request string `json:"request"`
	Wait    bool   `json:"wait"`
}

// CreatePlan builds a plan from a natural-language request. With wait=true
// the plan runs to completion before the response; otherwise execution
// continues in the background.
func (h *Handlers) CreatePlan(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[createPlanRequest](w, r)
	if !ok {
		return
	}
	if req.Request == "" {
		writeError(w, http.StatusBadRequest, "request is required")
		return
	}

	var p *plan.Plan
	var err error
	if req.Wait {
		p, err = h.Orchestrator.Run(r.Context(), req.Request)
	} else {
		p, err = h.Orchestrator.Start(r.Context(), req.Request)
	}
	if err != nil {
		writeDomainError(w, err, "plan not found")
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// ListPlans returns plans. Query parameters: state filters by exact state,
// q searches by request text, finished=true pages finished plans with
// limit/offset. Default is the active set.
func (h *Handlers) ListPlans(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var plans []plan.Plan
	var err error
	switch {
	case q.Get("q") != "":
		plans, err = h.Store.SearchByRequest(r.Context(), q.Get("q"))
	case q.Get("state") != "":
		plans, err = h.Store.ListByState(r.Context(), plan.State(q.Get("state")))
	case q.Get("finished") == "true":
		limit, _ := strconv.Atoi(q.Get("limit"))
		offset, _ := strconv.Atoi(q.Get("offset"))
		plans, err = h.Store.ListFinished(r.Context(), nil, limit, offset)
	default:
		plans, err = h.Store.ListActive(r.Context())
	}
	if err != nil {
		writeDomainError(w, err, "plans not found")
		return
	}
	if plans == nil {
		plans = []plan.Plan{}
	}
	writeJSON(w, http.StatusOK, plans)
}

func (h *Handlers) GetPlan(w http.ResponseWriter, r *http.Request) {
	p, err := h.Store.Load(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "plan not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handlers) DeletePlan(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	if err := h.Store.Delete(r.Context(), id); err != nil {
		writeDomainError(w, err, "plan not found")
		return
	}
	h.Tracker.Forget(id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) CancelPlan(w http.ResponseWriter, r *http.Request) {
	p, err := h.Orchestrator.Cancel(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "plan not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handlers) PausePlan(w http.ResponseWriter, r *http.Request) {
	p, err := h.Orchestrator.Pause(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "plan not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handlers) ResumePlan(w http.ResponseWriter, r *http.Request) {
	p, err := h.Orchestrator.Resume(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "plan not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type provideInputRequest struct {
	Input string `json:"input"`
}

func (h *Handlers) ProvideInput(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[provideInputRequest](w, r)
	if !ok {
		return
	}
	if req.Input == "" {
		writeError(w, http.StatusBadRequest, "input is required")
		return
	}

	p, err := h.Orchestrator.ProvideInput(r.Context(), urlParam(r, "id"), req.Input)
	if err != nil {
		writeDomainError(w, err, "plan not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// GetProgress returns the live progress snapshot when the plan is being
// tracked, falling back to a recompute from storage.
func (h *Handlers) GetProgress(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	if prog, ok := h.Tracker.Progress(id); ok {
		writeJSON(w, http.StatusOK, prog)
		return
	}

	p, err := h.Store.Load(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "plan not found")
		return
	}
	writeJSON(w, http.StatusOK, plan.ComputeProgress(p))
}

func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Store.Stats(r.Context())
	if err != nil {
		writeDomainError(w, err, "stats unavailable")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type cleanupRequest struct {
	OlderThan string       `json:"older_than"`
	States    []plan.State `json:"states,omitempty"`
}

func (h *Handlers) Cleanup(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[cleanupRequest](w, r)
	if !ok {
		return
	}
	olderThan, err := time.ParseDuration(req.OlderThan)
	if err != nil || olderThan < 0 {
		writeError(w, http.StatusBadRequest, "older_than must be a non-negative duration")
		return
	}

	removed, err := h.Store.Cleanup(r.Context(), olderThan, req.States)
	if err != nil {
		writeDomainError(w, err, "cleanup failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

func (h *Handlers) Backup(w http.ResponseWriter, r *http.Request) {
	data, err := h.Store.Backup(r.Context())
	if err != nil {
		writeDomainError(w, err, "backup failed")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="plans-backup.json"`)
	_, _ = w.Write(data)
}

func (h *Handlers) Restore(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 64<<20)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "backup payload too large")
		return
	}

	if err := h.Store.Restore(r.Context(), data); err != nil {
		writeError(w, http.StatusBadRequest, "invalid backup payload")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
