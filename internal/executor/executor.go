// Package executor produces a tool result for (tool, target, credentials,
// headers). The tier gate is checked before anything else; results are served
// from cache when fresh; a failed real execution degrades to a deterministic
// simulated result rather than an error — only the origin tag tells the
// caller which path produced the data.
package executor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"

	"recon-orchestrator/internal/cache"
	"recon-orchestrator/internal/finding"
	"recon-orchestrator/internal/monitor"
	"recon-orchestrator/internal/runner"
	"recon-orchestrator/internal/tier"
	"recon-orchestrator/internal/tool"
)

// Origin marks where a result's data came from.
type Origin string

const (
	OriginReal      Origin = "real"
	OriginCached    Origin = "cached"
	OriginSimulated Origin = "simulated"
)

// Request is one execution handed to the executor.
type Request struct {
	RunID      string
	ProjectID  string
	Tool       string
	Target     string
	Plan       tier.Plan
	UserID     string
	Credential string            // user-supplied key for the tool's service
	Headers    map[string]string // extra options; part of the cache key
}

// Result is the normalized outcome of an execution. Simulated results are
// successes: the origin and reason carry the degradation, not an error.
type Result struct {
	RunID            string            `json:"run_id"`
	Tool             string            `json:"tool"`
	Target           string            `json:"target"`
	Origin           Origin            `json:"origin"`
	SimulationReason string            `json:"simulation_reason,omitempty"`
	Items            []tool.Item       `json:"items"`
	Findings         []finding.Finding `json:"findings"`
	Duration         time.Duration     `json:"duration"`
}

// CredentialStore resolves a user's stored credential for a service.
// Lookup failures are treated as "no credential", never as execution errors.
type CredentialStore interface {
	Get(ctx context.Context, userID, service string) (string, error)
}

// Options tune the executor.
type Options struct {
	ToolTimeout    time.Duration
	StandardTTL    time.Duration
	ExtendedTTL    time.Duration
	RateLimitedTTL time.Duration

	// SharedCredentials are developer-level keys per service, used when
	// neither the request nor the credential store supplies one.
	SharedCredentials map[string]string
}

// Executor runs tools. All collaborators are injected; there is no package
// state.
type Executor struct {
	registry   *tool.Registry
	cache      *cache.Cache
	backend    runner.Backend
	creds      CredentialStore
	httpClient *http.Client
	metrics    *monitor.Metrics
	tracer     *monitor.Tracer
	opts       Options
}

// New creates an executor. creds, metrics, and tracer may be nil.
func New(registry *tool.Registry, c *cache.Cache, backend runner.Backend, creds CredentialStore, metrics *monitor.Metrics, tracer *monitor.Tracer, opts Options) *Executor {
	if opts.ToolTimeout == 0 {
		opts.ToolTimeout = 2 * time.Minute
	}
	if opts.StandardTTL == 0 {
		opts.StandardTTL = time.Minute
	}
	if opts.ExtendedTTL == 0 {
		opts.ExtendedTTL = 5 * time.Minute
	}
	if opts.RateLimitedTTL == 0 {
		opts.RateLimitedTTL = 5 * time.Minute
	}
	return &Executor{
		registry:   registry,
		cache:      c,
		backend:    backend,
		creds:      creds,
		httpClient: &http.Client{Timeout: opts.ToolTimeout},
		metrics:    metrics,
		tracer:     tracer,
		opts:       opts,
	}
}

// Execute runs one request. It returns an error only for the tier gate and
// unknown tools; every other failure degrades into a simulated success.
func (e *Executor) Execute(ctx context.Context, req Request) (*Result, error) {
	logger := log.With().
		Str("run_id", req.RunID).
		Str("tool", req.Tool).
		Str("target", req.Target).
		Logger()

	if e.tracer != nil {
		var span trace.Span
		ctx, span = e.tracer.StartSpan(ctx, "execute",
			monitor.AttrRunID.String(req.RunID),
			monitor.AttrTool.String(req.Tool),
			monitor.AttrTarget.String(req.Target),
			monitor.AttrPlan.String(string(req.Plan)),
		)
		defer span.End()
	}

	tl, err := e.registry.Get(req.Tool)
	if err != nil {
		return nil, &ExecutionError{RunID: req.RunID, Op: "resolve_tool", Err: fmt.Errorf("%w: %s", ErrUnknownTool, req.Tool)}
	}
	desc := tl.Descriptor()

	credential := e.resolveCredential(ctx, req, desc)
	hasOwn := req.Credential != "" || e.hasStoredCredential(ctx, req, desc)

	if decision := tier.IsToolAllowed(req.Tool, req.Plan, hasOwn); !decision.Allowed {
		if e.metrics != nil {
			e.metrics.TierRejections.WithLabelValues(string(req.Plan)).Inc()
		}
		logger.Info().Str("plan", string(req.Plan)).Msg("execution rejected by tier gate")
		return nil, &ExecutionError{RunID: req.RunID, Op: "tier_gate", Err: ErrTierRestricted}
	}

	key := cacheKey(req.Tool, req.Target, req.Headers)
	if payload, ok := e.cache.Get(key); ok {
		if items, ok := payload.([]tool.Item); ok {
			logger.Debug().Msg("serving result from cache")
			monitor.SpanFromContext(ctx).SetAttributes(monitor.AttrOrigin.String(string(OriginCached)))
			return e.finish(req, OriginCached, "", items, 0), nil
		}
	}

	start := time.Now()
	items, simReason := e.runReal(ctx, tl, desc, req, credential)
	duration := time.Since(start)

	origin := OriginReal
	if simReason != "" {
		origin = OriginSimulated
		items = tl.Simulate(req.Target)
		logger.Warn().Str("reason", simReason).Msg("falling back to simulated result")
	}

	e.cache.Set(key, items, e.ttlFor(desc, req.Plan, origin), cacheTypeFor(desc))

	monitor.SpanFromContext(ctx).SetAttributes(monitor.AttrOrigin.String(string(origin)))
	return e.finish(req, origin, simReason, items, duration), nil
}

// runReal attempts the tool's real execution path. A non-empty reason means
// the step failed and the caller should simulate.
func (e *Executor) runReal(ctx context.Context, tl tool.Tool, desc tool.Descriptor, req Request, credential string) ([]tool.Item, string) {
	var raw []byte

	switch desc.Kind {
	case tool.KindAPI:
		apiTool, ok := tl.(tool.APITool)
		if !ok {
			return nil, "tool is marked api but implements no API call"
		}
		if desc.RequiresCredential && credential == "" {
			return nil, "no credential available for " + desc.Name
		}
		callCtx, cancel := context.WithTimeout(ctx, e.opts.ToolTimeout)
		defer cancel()
		out, err := apiTool.Call(callCtx, e.httpClient, req.Target, credential)
		if err != nil {
			return nil, "api call failed: " + err.Error()
		}
		raw = out

	default:
		inv := runner.Invocation{
			RunID:   req.RunID,
			Tool:    desc.Name,
			Image:   tl.Image(),
			Args:    tl.Command(req.Target),
			Timeout: e.opts.ToolTimeout,
			Limits:  runner.LimitsForPlan(req.Plan),
		}
		out, err := e.backend.Run(ctx, inv)
		if err != nil {
			if runner.IsTimeout(err) {
				return nil, "tool execution timed out after " + e.opts.ToolTimeout.String()
			}
			return nil, "tool execution failed: " + err.Error()
		}
		if out.ExitCode != 0 {
			return nil, fmt.Sprintf("tool exited with code %d: %s", out.ExitCode, firstLine(out.Stderr))
		}
		raw = out.Stdout
	}

	items, err := tl.Parse(raw)
	if err != nil {
		return nil, "parsing tool output failed: " + err.Error()
	}
	return items, ""
}

func (e *Executor) finish(req Request, origin Origin, simReason string, items []tool.Item, duration time.Duration) *Result {
	findings := finding.Extract(finding.Run{
		ID:        req.RunID,
		ProjectID: req.ProjectID,
		Tool:      req.Tool,
		Target:    req.Target,
		At:        time.Now().UTC(),
	}, items)

	if e.metrics != nil {
		severities := make([]string, len(findings))
		for i, f := range findings {
			severities[i] = string(f.Severity)
		}
		e.metrics.RecordFindings(severities)
	}

	return &Result{
		RunID:            req.RunID,
		Tool:             req.Tool,
		Target:           req.Target,
		Origin:           origin,
		SimulationReason: simReason,
		Items:            items,
		Findings:         findings,
		Duration:         duration,
	}
}

// resolveCredential picks the key for an execution: the request's own,
// then the user's stored one, then the shared developer key.
func (e *Executor) resolveCredential(ctx context.Context, req Request, desc tool.Descriptor) string {
	if req.Credential != "" {
		return req.Credential
	}
	if stored := e.storedCredential(ctx, req, desc); stored != "" {
		return stored
	}
	return e.opts.SharedCredentials[desc.Name]
}

func (e *Executor) hasStoredCredential(ctx context.Context, req Request, desc tool.Descriptor) bool {
	return e.storedCredential(ctx, req, desc) != ""
}

func (e *Executor) storedCredential(ctx context.Context, req Request, desc tool.Descriptor) string {
	if e.creds == nil || req.UserID == "" {
		return ""
	}
	secret, err := e.creds.Get(ctx, req.UserID, desc.Name)
	if err != nil {
		log.Warn().Err(err).Str("user_id", req.UserID).Str("service", desc.Name).Msg("credential lookup failed, continuing without")
		return ""
	}
	return secret
}

func (e *Executor) ttlFor(desc tool.Descriptor, plan tier.Plan, origin Origin) time.Duration {
	// Real calls to rate-limited APIs get the long TTL to protect quota.
	if origin == OriginReal && desc.RateLimited {
		return e.opts.RateLimitedTTL
	}
	if origin == OriginReal && tier.LimitsFor(plan).CacheTTLClass == tier.TTLExtended {
		return e.opts.ExtendedTTL
	}
	return e.opts.StandardTTL
}

func cacheTypeFor(desc tool.Descriptor) cache.EntryType {
	if desc.Kind == tool.KindAPI {
		return cache.TypeAPIResponse
	}
	return cache.TypeToolResult
}

// cacheKey hashes (tool, target, headers) with explicit separators and
// sorted header keys: identical inputs always collide, distinct header sets
// never do.
func cacheKey(toolName, target string, headers map[string]string) string {
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(toolName)
	sb.WriteByte(0x1f)
	sb.WriteString(target)
	for _, k := range keys {
		sb.WriteByte(0x1f)
		sb.WriteString(k)
		sb.WriteByte(0x1e)
		sb.WriteString(headers[k])
	}
	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
