package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/rs/zerolog/log"
)

// ExecBackend runs tool binaries directly on the host. Used for development
// and for hosts without containerd; resource limits are not enforceable here
// and are ignored.
type ExecBackend struct{}

func NewExecBackend() *ExecBackend {
	log.Warn().Msg("using host exec backend — container resource limits are not enforced")
	return &ExecBackend{}
}

func (e *ExecBackend) Run(ctx context.Context, inv Invocation) (*RawOutput, error) {
	if len(inv.Args) == 0 {
		return nil, &RunError{RunID: inv.RunID, Tool: inv.Tool, Op: "build_command", Err: errors.New("empty argv")}
	}

	if _, err := exec.LookPath(inv.Args[0]); err != nil {
		return nil, &RunError{RunID: inv.RunID, Tool: inv.Tool, Op: "lookup_binary", Err: fmt.Errorf("%w: %s", ErrBinaryNotFound, inv.Args[0])}
	}

	timeout := inv.Timeout
	if timeout == 0 {
		timeout = 2 * time.Minute
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()

	cmd := exec.CommandContext(runCtx, inv.Args[0], inv.Args[1:]...) // #nosec G204 -- argv built by the tool registry, not user input
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	duration := time.Since(start)

	if runCtx.Err() == context.DeadlineExceeded {
		return nil, &RunError{RunID: inv.RunID, Tool: inv.Tool, Op: "wait", Err: ErrTimeout}
	}

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return nil, &RunError{RunID: inv.RunID, Tool: inv.Tool, Op: "run", Err: err}
		}
	}

	log.Info().
		Str("run_id", inv.RunID).
		Str("tool", inv.Tool).
		Int("exit_code", exitCode).
		Dur("duration", duration).
		Msg("tool run completed")

	return &RawOutput{
		Stdout:   truncateBytes(stdout.Bytes(), 1<<20),
		Stderr:   truncateString(stderr.String(), 256*1024),
		ExitCode: exitCode,
		Duration: duration,
	}, nil
}

func (e *ExecBackend) Close() error { return nil }
