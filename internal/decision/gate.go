// Package decision turns free-text reconnaissance requests into proposed
// executions and classifies each batch as auto-executable or requiring
// human approval. The reasoning itself is delegated to an external
// collaborator; this package owns only the gate.
package decision

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"

	"recon-orchestrator/internal/monitor"
	"recon-orchestrator/internal/tier"
)

// safeTools may run without human approval. Everything outside this set —
// scanners, exploit checkers — always routes to approval.
var safeTools = map[string]struct{}{
	"subfinder": {},
	"httpx":     {},
	"dnsx":      {},
	"whois":     {},
}

const (
	autoExecuteThreshold = 0.8
	actionThreshold      = 0.7
)

// Action is one proposed tool execution.
type Action struct {
	Tool       string  `json:"tool"`
	Target     string  `json:"target"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason,omitempty"`
}

// Decision is the gate's output. AutoExecute applies to the batch as a
// whole: a single unsafe or low-confidence action routes everything to
// approval.
type Decision struct {
	Actions            []Action `json:"actions"`
	Reasoning          string   `json:"reasoning"`
	Confidence         float64  `json:"confidence"`
	NeedsClarification bool     `json:"needs_clarification"`
	AutoExecute        bool     `json:"auto_execute"`
}

// TierContext is what the caller knows about the requester.
type TierContext struct {
	Plan   tier.Plan
	Target string
	Scope  []string
}

// Gate wraps a Reasoner with the auto-execute policy.
type Gate struct {
	reasoner Reasoner
	metrics  *monitor.Metrics
	tracer   *monitor.Tracer
}

// NewGate creates a gate. metrics and tracer may be nil.
func NewGate(reasoner Reasoner, metrics *monitor.Metrics, tracer *monitor.Tracer) *Gate {
	return &Gate{reasoner: reasoner, metrics: metrics, tracer: tracer}
}

// Decide asks the reasoner for proposed executions and applies the gate.
// It never fails on bad collaborator output: inference errors and
// unparseable responses both degrade to an empty action list with a
// clarification request.
func (g *Gate) Decide(ctx context.Context, text string, tc TierContext) Decision {
	if g.tracer != nil {
		var span trace.Span
		ctx, span = g.tracer.StartSpan(ctx, "decide",
			monitor.AttrPlan.String(string(tc.Plan)),
			monitor.AttrTarget.String(tc.Target),
		)
		defer span.End()
	}

	raw, err := g.reasoner.Infer(ctx, g.prompt(text, tc))
	if err != nil {
		log.Warn().Err(err).Msg("reasoning collaborator failed, requesting clarification")
		return g.record(Decision{
			Reasoning:          "reasoning service unavailable, please retry or rephrase",
			NeedsClarification: true,
		})
	}

	d, ok := parseDecision(raw)
	if !ok {
		log.Warn().Str("raw", truncate(raw, 200)).Msg("unparseable reasoning output, requesting clarification")
		return g.record(Decision{
			Reasoning:          "could not understand the request, please rephrase",
			NeedsClarification: true,
		})
	}

	d.AutoExecute = autoExecutable(d)
	return g.record(d)
}

// autoExecutable applies the all-or-nothing gate: the batch runs without
// approval only when overall confidence clears the threshold, no
// clarification was requested, and every action uses a safe tool with its
// own confidence above the per-action floor.
func autoExecutable(d Decision) bool {
	if len(d.Actions) == 0 || d.NeedsClarification || d.Confidence < autoExecuteThreshold {
		return false
	}
	for _, a := range d.Actions {
		if _, safe := safeTools[a.Tool]; !safe {
			return false
		}
		if a.Confidence < actionThreshold {
			return false
		}
	}
	return true
}

func (g *Gate) prompt(text string, tc TierContext) string {
	var sb strings.Builder
	sb.WriteString("Request: ")
	sb.WriteString(text)
	sb.WriteString("\nPlan: ")
	sb.WriteString(string(tc.Plan))
	if tc.Target != "" {
		sb.WriteString("\nPrimary target: ")
		sb.WriteString(tc.Target)
	}
	if len(tc.Scope) > 0 {
		sb.WriteString("\nIn-scope: ")
		sb.WriteString(strings.Join(tc.Scope, ", "))
	}
	sb.WriteString("\nAvailable tools: ")
	sb.WriteString(strings.Join(tier.LimitsFor(tc.Plan).AllowedTools, ", "))
	return sb.String()
}

func (g *Gate) record(d Decision) Decision {
	if g.metrics != nil {
		outcome := "requires_approval"
		switch {
		case d.AutoExecute:
			outcome = "auto_execute"
		case d.NeedsClarification:
			outcome = "clarification"
		}
		g.metrics.RecordDecision(outcome, d.Confidence)
	}
	return d
}

// parseDecision pulls the decision JSON out of model output. Models wrap
// JSON in code fences or prose; the parser takes the outermost braces and
// tries from there.
func parseDecision(raw string) (Decision, bool) {
	s := strings.TrimSpace(raw)
	if start := strings.IndexByte(s, '{'); start >= 0 {
		if end := strings.LastIndexByte(s, '}'); end > start {
			s = s[start : end+1]
		}
	}

	var d Decision
	if err := json.Unmarshal([]byte(s), &d); err != nil {
		return Decision{}, false
	}
	if d.Actions == nil {
		d.Actions = []Action{}
	}
	return d, true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
