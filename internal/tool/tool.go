// Package tool defines the reconnaissance tools the orchestrator can run and
// a registry mapping tool names to their implementations. Each tool knows how
// to build its invocation, parse its raw output into normalized items, and
// produce a deterministic simulated result when the real run fails.
package tool

import (
	"context"
	"net/http"

	"recon-orchestrator/internal/tier"
)

// Kind distinguishes process-spawning tools from HTTP API tools.
type Kind string

const (
	KindProcess Kind = "process"
	KindAPI     Kind = "api"
)

// Descriptor is the static metadata for a tool. Loaded once at registry
// construction and immutable for the process lifetime.
type Descriptor struct {
	Name               string
	TierRequirement    tier.Plan
	RequiresCredential bool
	RateLimited        bool
	Category           string
	Kind               Kind
}

// Item is one normalized element of a tool's output. The finding extractor
// maps each item to zero or one findings.
type Item struct {
	Type     string            `json:"type"` // subdomain, endpoint, port, secret, vulnerability, record
	Value    string            `json:"value"`
	Detail   string            `json:"detail,omitempty"`
	Severity string            `json:"severity,omitempty"` // tool-provided hint, e.g. nuclei template severity
	Meta     map[string]string `json:"meta,omitempty"`
}

// Tool is one reconnaissance tool.
type Tool interface {
	Descriptor() Descriptor

	// Image returns the container image for containerized runs. Empty for
	// API tools.
	Image() string

	// Command returns the argv to run against a target. Empty for API tools.
	Command(target string) []string

	// Parse converts raw process or API output into normalized items.
	Parse(raw []byte) ([]Item, error)

	// Simulate returns a deterministic synthetic result for the target,
	// used when the real execution path fails.
	Simulate(target string) []Item
}

// APITool is a tool whose execution is an HTTP API call rather than a
// process. The credential is resolved by the executor (user-supplied first,
// then the credential store, then the shared developer key).
type APITool interface {
	Tool
	Call(ctx context.Context, client *http.Client, target, credential string) ([]byte, error)
}
