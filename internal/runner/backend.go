// Package runner executes reconnaissance tools. The containerd backend runs
// each tool's container image under per-tier resource limits; the exec
// backend falls back to tool binaries on the host PATH when containerd is
// unavailable. Either way the contract is the same: given an invocation,
// return raw output or fail — the executor above decides what a failure
// means.
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"recon-orchestrator/internal/config"
)

// Invocation is one tool run handed to a backend.
type Invocation struct {
	RunID   string
	Tool    string
	Image   string
	Args    []string
	Timeout time.Duration
	Limits  ResourceLimits
}

// RawOutput is the unparsed result of a tool run.
type RawOutput struct {
	Stdout   []byte
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Backend runs tool invocations.
type Backend interface {
	Run(ctx context.Context, inv Invocation) (*RawOutput, error)
	Close() error
}

// NewBackend picks the best available backend: containerd when reachable,
// host-exec otherwise.
func NewBackend(ctx context.Context, cfg *config.Config) (Backend, error) {
	preference := cfg.Runner.Backend
	if preference == "" {
		preference = "auto"
	}

	switch preference {
	case "containerd":
		return newContainerdBackend(ctx, cfg)
	case "exec":
		return NewExecBackend(), nil
	case "auto":
		backend, err := newContainerdBackend(ctx, cfg)
		if err == nil {
			log.Info().Msg("using containerd backend")
			return backend, nil
		}
		log.Warn().Err(err).Msg("containerd unavailable, falling back to host exec")
		return NewExecBackend(), nil
	default:
		return nil, fmt.Errorf("unknown backend %q: must be auto, containerd, or exec", preference)
	}
}

func newContainerdBackend(ctx context.Context, cfg *config.Config) (Backend, error) {
	client, err := NewClient(ctx, cfg.Runner.ContainerdSocket, cfg.Runner.Namespace)
	if err != nil {
		return nil, err
	}

	runner := NewContainerRunner(client)

	cleaned, err := runner.CleanupOrphaned(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("failed to cleanup orphaned tool containers")
	} else if cleaned > 0 {
		log.Info().Int("count", cleaned).Msg("cleaned orphaned tool containers on startup")
	}

	return runner, nil
}
