package api

import (
	"encoding/json"
	"net/http"

	"recon-orchestrator/internal/decision"
	"recon-orchestrator/internal/finding"
	"recon-orchestrator/internal/queue"
)

// EnqueueRequest is the API-level request to schedule a tool execution.
type EnqueueRequest struct {
	ProjectID  string            `json:"project_id"`
	UserID     string            `json:"user_id,omitempty"`
	Tool       string            `json:"tool"`
	Target     string            `json:"target"`
	Plan       string            `json:"plan,omitempty"` // defaults to the project's plan, then free
	Confidence float64           `json:"confidence,omitempty"`
	Credential string            `json:"credential,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
}

// EnqueueResponse acknowledges an admitted execution.
type EnqueueResponse struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Priority int    `json:"priority"`
}

// CancelResponse reports a cancellation outcome.
type CancelResponse struct {
	ID        string `json:"id"`
	Cancelled bool   `json:"cancelled"`
}

// DecideRequest turns free text into proposed executions.
type DecideRequest struct {
	Text      string   `json:"text"`
	ProjectID string   `json:"project_id,omitempty"`
	Plan      string   `json:"plan,omitempty"`
	Target    string   `json:"target,omitempty"`
	Scope     []string `json:"scope,omitempty"`

	// Enqueue schedules the batch immediately when the gate marks it
	// auto-executable.
	Enqueue bool `json:"enqueue,omitempty"`
}

// DecideResponse is the gate's decision plus any executions it scheduled.
type DecideResponse struct {
	decision.Decision
	ExecutionIDs []string `json:"execution_ids,omitempty"`
}

// RiskRequest carries a finding set to score.
type RiskRequest struct {
	Findings []finding.Finding `json:"findings"`
}

// StatsResponse mirrors the queue's point-in-time stats.
type StatsResponse queue.Stats

// HealthResponse reports component health.
type HealthResponse struct {
	Status   string `json:"status"`
	Database bool   `json:"database"`
	Runner   bool   `json:"runner"`
	Uptime   string `json:"uptime"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg, Code: code})
}
