package storage

import "time"

// ExecutionRecord is the persisted form of a terminal execution.
type ExecutionRecord struct {
	ID               string     `json:"id" db:"id"`
	ProjectID        string     `json:"project_id" db:"project_id"`
	UserID           string     `json:"user_id,omitempty" db:"user_id"`
	Tool             string     `json:"tool" db:"tool"`
	Target           string     `json:"target" db:"target"`
	Plan             string     `json:"plan" db:"plan"`
	Priority         int        `json:"priority" db:"priority"`
	Status           string     `json:"status" db:"status"` // completed, failed
	Origin           string     `json:"origin,omitempty" db:"origin"`
	SimulationReason string     `json:"simulation_reason,omitempty" db:"simulation_reason"`
	Error            string     `json:"error,omitempty" db:"error"`
	FindingCount     int        `json:"finding_count" db:"finding_count"`
	DurationMS       int64      `json:"duration_ms" db:"duration_ms"`
	SubmittedAt      time.Time  `json:"submitted_at" db:"submitted_at"`
	FinishedAt       *time.Time `json:"finished_at,omitempty" db:"finished_at"`
}

// ProjectScope is what a project declares up front: the primary target,
// additional in-scope hosts, and the owner's plan.
type ProjectScope struct {
	ProjectID string   `json:"project_id" db:"project_id"`
	Target    string   `json:"target" db:"target"`
	Scope     []string `json:"scope" db:"scope"`
	Plan      string   `json:"plan" db:"plan"`
}

// ExecutionFilter provides criteria for querying executions.
type ExecutionFilter struct {
	ProjectID string
	Tool      string
	Status    string
	Limit     int
	Offset    int
}
