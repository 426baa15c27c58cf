package runner

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/cio"
	"github.com/containerd/containerd/containers"
	"github.com/containerd/containerd/errdefs"
	"github.com/containerd/containerd/oci"
	specs "github.com/opencontainers/runtime-spec/specs-go"
	"github.com/rs/zerolog/log"
)

const containerPrefix = "recon-"

// ContainerRunner executes tools in containerd containers.
type ContainerRunner struct {
	client *Client
}

func NewContainerRunner(client *Client) *ContainerRunner {
	return &ContainerRunner{client: client}
}

// Prefetch pulls tool images ahead of the first execution.
func (r *ContainerRunner) Prefetch(ctx context.Context, refs []string) {
	r.client.PrefetchImages(ctx, refs)
}

// Run executes one tool invocation in a fresh container and returns its
// output. The container is always deleted afterwards, even on timeout.
func (r *ContainerRunner) Run(ctx context.Context, inv Invocation) (*RawOutput, error) {
	if inv.Image == "" {
		return nil, &RunError{RunID: inv.RunID, Tool: inv.Tool, Op: "resolve_image", Err: ErrNoImage}
	}

	logger := log.With().
		Str("run_id", inv.RunID).
		Str("tool", inv.Tool).
		Logger()

	timeout := inv.Timeout
	if timeout == 0 {
		timeout = 2 * time.Minute
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()

	image, err := r.client.PullImage(runCtx, inv.Image)
	if err != nil {
		return nil, &RunError{RunID: inv.RunID, Tool: inv.Tool, Op: "pull_image", Err: err}
	}

	containerID := containerPrefix + inv.RunID
	container, err := r.createContainer(runCtx, containerID, image, inv)
	if err != nil {
		return nil, &RunError{RunID: inv.RunID, Tool: inv.Tool, Op: "create_container", Err: err}
	}
	defer func() {
		if cleanErr := r.cleanupContainer(context.Background(), container); cleanErr != nil {
			logger.Error().Err(cleanErr).Msg("container cleanup failed")
		}
	}()

	var stdout, stderr bytes.Buffer
	task, err := container.NewTask(r.client.WithNamespace(runCtx),
		cio.NewCreator(cio.WithStreams(nil, &stdout, &stderr)),
	)
	if err != nil {
		return nil, &RunError{RunID: inv.RunID, Tool: inv.Tool, Op: "create_task", Err: err}
	}
	defer func() {
		if _, err := task.Delete(r.client.WithNamespace(context.Background()), containerd.WithProcessKill); err != nil {
			logger.Error().Err(err).Msg("task delete failed")
		}
	}()

	exitCh, err := task.Wait(r.client.WithNamespace(runCtx))
	if err != nil {
		return nil, &RunError{RunID: inv.RunID, Tool: inv.Tool, Op: "task_wait", Err: err}
	}

	if err := task.Start(r.client.WithNamespace(runCtx)); err != nil {
		return nil, &RunError{RunID: inv.RunID, Tool: inv.Tool, Op: "task_start", Err: err}
	}

	logger.Debug().Msg("tool task started")

	select {
	case status := <-exitCh:
		duration := time.Since(start)
		logger.Info().
			Uint32("exit_code", status.ExitCode()).
			Dur("duration", duration).
			Msg("tool run completed")

		return &RawOutput{
			Stdout:   truncateBytes(stdout.Bytes(), 1<<20),
			Stderr:   truncateString(stderr.String(), 256*1024),
			ExitCode: int(status.ExitCode()),
			Duration: duration,
		}, nil

	case <-runCtx.Done():
		logger.Warn().Dur("timeout", timeout).Msg("tool run timed out, killing task")
		if err := task.Kill(r.client.WithNamespace(context.Background()), 9); err != nil {
			logger.Error().Err(err).Msg("failed to kill timed out task")
		}
		<-exitCh

		return nil, &RunError{RunID: inv.RunID, Tool: inv.Tool, Op: "wait", Err: ErrTimeout}
	}
}

// Close shuts down the backend.
func (r *ContainerRunner) Close() error {
	return r.client.Close()
}

func (r *ContainerRunner) createContainer(
	ctx context.Context,
	id string,
	image containerd.Image,
	inv Invocation,
) (containerd.Container, error) {
	nsCtx := r.client.WithNamespace(ctx)

	container, err := r.client.Raw().NewContainer(nsCtx, id,
		containerd.WithImage(image),
		containerd.WithNewSnapshot(id+"-snapshot", image),
		containerd.WithNewSpec(
			oci.WithImageConfig(image),
			oci.WithProcessArgs(inv.Args...),
			oci.WithHostNamespace(specs.NetworkNamespace),
			oci.WithHostname("recon"),
			func(_ context.Context, _ oci.Client, _ *containers.Container, s *specs.Spec) error {
				ApplyHardeningProfile(s, DefaultHardeningProfile())
				ApplyResourceLimits(s, inv.Limits)

				s.Process.Env = []string{
					"PATH=/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin",
					"HOME=/tmp",
					"LANG=C.UTF-8",
				}
				return nil
			},
		),
	)
	if err != nil {
		return nil, fmt.Errorf("creating container: %w", err)
	}
	return container, nil
}

func (r *ContainerRunner) cleanupContainer(ctx context.Context, container containerd.Container) error {
	if container == nil {
		return nil
	}

	id := container.ID()
	logger := log.With().Str("container_id", id).Logger()

	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	cleanupCtx = r.client.WithNamespace(cleanupCtx)

	if task, err := container.Task(cleanupCtx, nil); err == nil {
		if status, err := task.Status(cleanupCtx); err == nil && status.Status != containerd.Stopped {
			logger.Debug().Msg("killing running task")
			_ = task.Kill(cleanupCtx, 9)

			waitCtx, waitCancel := context.WithTimeout(cleanupCtx, 5*time.Second)
			defer waitCancel()
			exitCh, _ := task.Wait(waitCtx)
			if exitCh != nil {
				select {
				case <-exitCh:
				case <-waitCtx.Done():
					logger.Warn().Msg("timed out waiting for task to stop")
				}
			}
		}

		if _, err := task.Delete(cleanupCtx, containerd.WithProcessKill); err != nil {
			if !errdefs.IsNotFound(err) {
				logger.Warn().Err(err).Msg("failed to delete task")
			}
		}
	}

	if err := container.Delete(cleanupCtx, containerd.WithSnapshotCleanup); err != nil {
		if !errdefs.IsNotFound(err) {
			logger.Error().Err(err).Msg("failed to delete container")
			return fmt.Errorf("deleting container %s: %w", id, err)
		}
	}

	logger.Debug().Msg("container cleaned up")
	return nil
}

// CleanupOrphaned removes tool containers left over from previous runs.
func (r *ContainerRunner) CleanupOrphaned(ctx context.Context) (int, error) {
	nsCtx := r.client.WithNamespace(ctx)

	containers, err := r.client.Raw().Containers(nsCtx)
	if err != nil {
		return 0, fmt.Errorf("listing containers: %w", err)
	}

	var cleaned int
	for _, c := range containers {
		if !strings.HasPrefix(c.ID(), containerPrefix) {
			continue
		}
		logger := log.With().Str("container_id", c.ID()).Logger()
		logger.Info().Msg("cleaning up orphaned tool container")

		if err := r.cleanupContainer(ctx, c); err != nil {
			logger.Error().Err(err).Msg("failed to clean orphaned container")
			continue
		}
		cleaned++
	}
	return cleaned, nil
}

func truncateBytes(b []byte, maxBytes int) []byte {
	if len(b) <= maxBytes {
		return b
	}
	return append(b[:maxBytes:maxBytes], []byte("\n... [output truncated]")...)
}

func truncateString(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	return s[:maxBytes] + "\n... [output truncated]"
}
