package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"recon-orchestrator/internal/decision"
	"recon-orchestrator/internal/executor"
	"recon-orchestrator/internal/queue"
	"recon-orchestrator/internal/risk"
	"recon-orchestrator/internal/storage"
	"recon-orchestrator/internal/tier"
	"recon-orchestrator/internal/tool"
)

// Handlers wires the HTTP surface to the core. db and gate may be nil;
// endpoints that need them answer 503 instead.
type Handlers struct {
	queue    *queue.Queue
	gate     *decision.Gate
	registry *tool.Registry
	db       *storage.DB
}

// NewHandlers creates the handler set.
func NewHandlers(q *queue.Queue, gate *decision.Gate, registry *tool.Registry, db *storage.DB) *Handlers {
	return &Handlers{queue: q, gate: gate, registry: registry, db: db}
}

// HandleEnqueue schedules one tool execution.
func (h *Handlers) HandleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req EnqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid JSON body: "+err.Error())
		return
	}
	if req.Tool == "" || req.Target == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "tool and target are required")
		return
	}
	if _, err := h.registry.Get(req.Tool); err != nil {
		writeError(w, http.StatusBadRequest, "UNKNOWN_TOOL", err.Error())
		return
	}

	plan, inScope := h.resolveProject(r, &req)
	if !inScope {
		writeError(w, http.StatusUnprocessableEntity, "OUT_OF_SCOPE", "target is not in the project's declared scope")
		return
	}

	id, err := h.queue.Enqueue(r.Context(), queue.Submission{
		ProjectID:  req.ProjectID,
		UserID:     req.UserID,
		Tool:       req.Tool,
		Target:     req.Target,
		Plan:       plan,
		Confidence: req.Confidence,
		Credential: req.Credential,
		Headers:    req.Headers,
	})
	switch {
	case errors.Is(err, executor.ErrTierRestricted):
		writeError(w, http.StatusForbidden, "TIER_RESTRICTED", "tool requires upgrade or own credential")
		return
	case errors.Is(err, queue.ErrQuotaExceeded):
		writeError(w, http.StatusTooManyRequests, "QUOTA_EXCEEDED", "daily run quota exceeded")
		return
	case errors.Is(err, queue.ErrQueueFull):
		writeError(w, http.StatusServiceUnavailable, "QUEUE_FULL", "queue is full, retry later")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, EnqueueResponse{
		ID:       id,
		Status:   string(queue.StatusQueued),
		Priority: queue.Priority(plan, req.Tool, req.Confidence),
	})
}

// resolveProject fills the plan from the project's stored scope when the
// request omits it, and checks the target against that scope.
func (h *Handlers) resolveProject(r *http.Request, req *EnqueueRequest) (tier.Plan, bool) {
	if h.db == nil || req.ProjectID == "" {
		return tier.ParsePlan(req.Plan), true
	}

	ps, err := h.db.LoadProjectScope(r.Context(), req.ProjectID)
	if err != nil {
		// Unknown project or storage trouble: proceed on the request's
		// own plan, the audit trail still records the attempt.
		log.Warn().Err(err).Str("project_id", req.ProjectID).Msg("project scope unavailable")
		return tier.ParsePlan(req.Plan), true
	}

	if req.Plan == "" {
		req.Plan = ps.Plan
	}
	if ps.Target != "" && req.Target != ps.Target {
		in := false
		for _, s := range ps.Scope {
			if s == req.Target {
				in = true
				break
			}
		}
		if !in {
			return tier.ParsePlan(req.Plan), false
		}
	}
	return tier.ParsePlan(req.Plan), true
}

// HandleGetExecution returns live queue state, falling back to the audit
// store once the execution has been evicted.
func (h *Handlers) HandleGetExecution(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	ex, err := h.queue.Status(id)
	if err == nil {
		writeJSON(w, http.StatusOK, ex)
		return
	}
	if !errors.Is(err, queue.ErrUnknownExecution) {
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}

	if h.db != nil {
		if rec, derr := h.db.GetExecution(r.Context(), id); derr == nil {
			writeJSON(w, http.StatusOK, rec)
			return
		}
	}
	writeError(w, http.StatusNotFound, "NOT_FOUND", "unknown execution")
}

// HandleListExecutions queries the audit store.
func (h *Handlers) HandleListExecutions(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		writeError(w, http.StatusServiceUnavailable, "NO_STORAGE", "execution history requires a database")
		return
	}

	q := r.URL.Query()
	records, err := h.db.ListExecutions(r.Context(), storage.ExecutionFilter{
		ProjectID: q.Get("project_id"),
		Tool:      q.Get("tool"),
		Status:    q.Get("status"),
		Limit:     intParam(q.Get("limit")),
		Offset:    intParam(q.Get("offset")),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"executions": records, "count": len(records)})
}

// HandleCancel cancels a queued execution. Running and finished executions
// answer 409: cancellation is only supported before admission.
func (h *Handlers) HandleCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	ok, err := h.queue.Cancel(id)
	switch {
	case errors.Is(err, queue.ErrNotCancellable):
		writeError(w, http.StatusConflict, "NOT_CANCELLABLE", "execution already admitted; only queued executions can be cancelled")
	case err != nil:
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
	case !ok:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "unknown execution")
	default:
		writeJSON(w, http.StatusOK, CancelResponse{ID: id, Cancelled: true})
	}
}

// HandleStats reports queue depth, running count, and the ceiling.
func (h *Handlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatsResponse(h.queue.Stats()))
}

// HandleDecide runs the decision gate and, when asked and permitted,
// schedules the proposed batch.
func (h *Handlers) HandleDecide(w http.ResponseWriter, r *http.Request) {
	if h.gate == nil {
		writeError(w, http.StatusServiceUnavailable, "NO_REASONER", "decision gate is not configured")
		return
	}

	var req DecideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid JSON body: "+err.Error())
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "text is required")
		return
	}

	tc := decision.TierContext{
		Plan:   tier.ParsePlan(req.Plan),
		Target: req.Target,
		Scope:  req.Scope,
	}
	if h.db != nil && req.ProjectID != "" {
		if ps, err := h.db.LoadProjectScope(r.Context(), req.ProjectID); err == nil {
			if req.Plan == "" {
				tc.Plan = tier.ParsePlan(ps.Plan)
			}
			if tc.Target == "" {
				tc.Target = ps.Target
			}
			if len(tc.Scope) == 0 {
				tc.Scope = ps.Scope
			}
		}
	}

	d := h.gate.Decide(r.Context(), req.Text, tc)
	resp := DecideResponse{Decision: d}

	if req.Enqueue && d.AutoExecute {
		for _, a := range d.Actions {
			id, err := h.queue.Enqueue(r.Context(), queue.Submission{
				ProjectID:  req.ProjectID,
				Tool:       a.Tool,
				Target:     a.Target,
				Plan:       tc.Plan,
				Confidence: a.Confidence,
			})
			if err != nil {
				log.Warn().Err(err).Str("tool", a.Tool).Msg("auto-execute enqueue failed")
				continue
			}
			resp.ExecutionIDs = append(resp.ExecutionIDs, id)
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// HandleRiskAssessment scores a caller-supplied finding set.
func (h *Handlers) HandleRiskAssessment(w http.ResponseWriter, r *http.Request) {
	var req RiskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid JSON body: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, risk.Assess(req.Findings))
}

// HandleProjectRisk recomputes a project's risk from its stored findings.
func (h *Handlers) HandleProjectRisk(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		writeError(w, http.StatusServiceUnavailable, "NO_STORAGE", "project risk requires a database")
		return
	}

	findings, err := h.db.ListFindings(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, risk.Assess(findings))
}

func intParam(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
