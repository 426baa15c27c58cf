// Package queue admits, orders, and bounds concurrent reconnaissance
// executions. A single scheduler loop drains the pending heap whenever a
// slot frees up; dispatched work runs in its own goroutine so one slow tool
// never blocks admission of others. Callers only enqueue, cancel, and read
// state — the scheduler alone moves executions between states.
package queue

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"recon-orchestrator/internal/executor"
	"recon-orchestrator/internal/monitor"
	"recon-orchestrator/internal/tier"
)

// Status is an execution's lifecycle state. The only legal transitions are
// queued -> running -> {completed, failed}; terminal states are final.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Submission is what a caller hands to Enqueue.
type Submission struct {
	ProjectID  string
	UserID     string
	Tool       string
	Target     string
	Plan       tier.Plan
	Confidence float64 // [0,1]; 0 when absent
	Credential string
	Headers    map[string]string
}

// Execution is one tracked request. The queue owns all mutation; callers
// see copies via Status.
type Execution struct {
	ID          string            `json:"id"`
	ProjectID   string            `json:"project_id"`
	UserID      string            `json:"user_id,omitempty"`
	Tool        string            `json:"tool"`
	Target      string            `json:"target"`
	Plan        tier.Plan         `json:"plan"`
	Confidence  float64           `json:"confidence"`
	Priority    int               `json:"priority"`
	Status      Status            `json:"status"`
	SubmittedAt time.Time         `json:"submitted_at"`
	StartedAt   time.Time         `json:"started_at,omitempty"`
	FinishedAt  time.Time         `json:"finished_at,omitempty"`
	Result      *executor.Result  `json:"result,omitempty"`
	Error       string            `json:"error,omitempty"`
	Credential  string            `json:"-"`
	Headers     map[string]string `json:"-"`

	seq   uint64
	index int
}

// Stats is a point-in-time view of the queue.
type Stats struct {
	Queued  int `json:"queued"`
	Running int `json:"running"`
	Ceiling int `json:"ceiling"`
}

// Executor runs one admitted execution to completion.
type Executor interface {
	Execute(ctx context.Context, req executor.Request) (*executor.Result, error)
}

// Store records terminal executions. Failures are logged and ignored; the
// audit trail is best-effort and never blocks scheduling.
type Store interface {
	SaveExecution(ctx context.Context, ex Execution) error
}

// Options tune the queue.
type Options struct {
	// Ceiling bounds concurrently running executions. Defaults to the
	// free plan's MaxConcurrent.
	Ceiling int

	// MaxQueued bounds pending executions. Defaults to 256.
	MaxQueued int

	// Creds resolves stored credentials so the enqueue-time tier gate
	// honors bring-your-own-key. Optional.
	Creds executor.CredentialStore

	Store   Store            // optional
	Metrics *monitor.Metrics // optional
}

// Queue is the scheduling queue.
type Queue struct {
	exec    Executor
	store   Store
	creds   executor.CredentialStore
	metrics *monitor.Metrics

	mu        sync.Mutex
	pending   pendingHeap
	byID      map[string]*Execution
	running   int
	ceiling   int
	maxQueued int
	nextSeq   uint64
	quota     map[string]*quotaWindow // project id -> usage

	wake chan struct{}
	done chan struct{}
	wg   sync.WaitGroup
}

type quotaWindow struct {
	day  time.Time // UTC midnight
	used int
}

// New creates a queue. Start must be called before Enqueue has any effect.
func New(exec Executor, opts Options) *Queue {
	if opts.Ceiling <= 0 {
		opts.Ceiling = tier.LimitsFor(tier.PlanFree).MaxConcurrent
	}
	if opts.MaxQueued <= 0 {
		opts.MaxQueued = 256
	}
	return &Queue{
		exec:      exec,
		store:     opts.Store,
		creds:     opts.Creds,
		metrics:   opts.Metrics,
		byID:      make(map[string]*Execution),
		ceiling:   opts.Ceiling,
		maxQueued: opts.MaxQueued,
		quota:     make(map[string]*quotaWindow),
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
}

// Start launches the scheduler loop. ctx is the parent for all dispatched
// executions.
func (q *Queue) Start(ctx context.Context) {
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		for {
			select {
			case <-q.done:
				return
			case <-ctx.Done():
				return
			case <-q.wake:
				q.admit(ctx)
			}
		}
	}()

	log.Info().Int("ceiling", q.ceiling).Int("max_queued", q.maxQueued).Msg("scheduling queue started")
}

// Stop shuts the scheduler down and waits for in-flight dispatches, up to
// ctx's deadline. Queued work stays queued; it is not failed or flushed.
func (q *Queue) Stop(ctx context.Context) error {
	close(q.done)

	waited := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(waited)
	}()

	select {
	case <-waited:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Enqueue admits a submission into the pending queue and returns its id.
// It rejects before queuing for tier restriction, daily quota exhaustion,
// and a full queue; everything after admission degrades instead of failing.
func (q *Queue) Enqueue(ctx context.Context, sub Submission) (string, error) {
	hasOwn := sub.Credential != ""
	if !hasOwn && q.creds != nil && sub.UserID != "" {
		secret, err := q.creds.Get(ctx, sub.UserID, sub.Tool)
		if err != nil {
			log.Warn().Err(err).Str("user_id", sub.UserID).Msg("credential lookup failed, assuming none")
		}
		hasOwn = secret != ""
	}
	if decision := tier.IsToolAllowed(sub.Tool, sub.Plan, hasOwn); !decision.Allowed {
		if q.metrics != nil {
			q.metrics.TierRejections.WithLabelValues(string(sub.Plan)).Inc()
		}
		return "", executor.ErrTierRestricted
	}

	now := time.Now().UTC()

	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) >= q.maxQueued {
		return "", ErrQueueFull
	}
	if err := q.consumeQuota(sub.ProjectID, sub.Plan, now); err != nil {
		return "", err
	}

	ex := &Execution{
		ID:          uuid.NewString(),
		ProjectID:   sub.ProjectID,
		UserID:      sub.UserID,
		Tool:        sub.Tool,
		Target:      sub.Target,
		Plan:        sub.Plan,
		Confidence:  sub.Confidence,
		Priority:    Priority(sub.Plan, sub.Tool, sub.Confidence),
		Status:      StatusQueued,
		SubmittedAt: now,
		Credential:  sub.Credential,
		Headers:     sub.Headers,
		seq:         q.nextSeq,
	}
	q.nextSeq++

	heap.Push(&q.pending, ex)
	q.byID[ex.ID] = ex
	if q.metrics != nil {
		q.metrics.QueueDepth.Set(float64(len(q.pending)))
	}

	log.Debug().
		Str("execution_id", ex.ID).
		Str("tool", ex.Tool).
		Int("priority", ex.Priority).
		Msg("execution queued")

	q.signal()
	return ex.ID, nil
}

// consumeQuota charges one run against the project's UTC-day window.
// Caller holds q.mu.
func (q *Queue) consumeQuota(projectID string, plan tier.Plan, now time.Time) error {
	day := now.Truncate(24 * time.Hour)
	w := q.quota[projectID]
	if w == nil || !w.day.Equal(day) {
		w = &quotaWindow{day: day}
		q.quota[projectID] = w
	}
	if w.used >= tier.LimitsFor(plan).MaxDailyRuns {
		return ErrQuotaExceeded
	}
	w.used++
	return nil
}

// Cancel removes a queued execution. A running or terminal execution is not
// cancellable; an unknown id reports false with no error.
func (q *Queue) Cancel(id string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	ex, ok := q.byID[id]
	if !ok {
		return false, nil
	}
	if ex.Status != StatusQueued {
		return false, ErrNotCancellable
	}

	heap.Remove(&q.pending, ex.index)
	delete(q.byID, id)
	if q.metrics != nil {
		q.metrics.QueueDepth.Set(float64(len(q.pending)))
	}
	log.Debug().Str("execution_id", id).Msg("execution cancelled")
	return true, nil
}

// Status returns a copy of the execution's current state.
func (q *Queue) Status(id string) (Execution, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	ex, ok := q.byID[id]
	if !ok {
		return Execution{}, ErrUnknownExecution
	}
	return *ex, nil
}

// Stats reports current depth, running count, and the admission ceiling.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{Queued: len(q.pending), Running: q.running, Ceiling: q.ceiling}
}

// SetCeiling changes the admission ceiling. Lowering it never preempts
// running work; the new value applies to future admissions only.
func (q *Queue) SetCeiling(n int) {
	if n < 1 {
		n = 1
	}
	q.mu.Lock()
	q.ceiling = n
	q.mu.Unlock()
	q.signal()
}

// signal nudges the scheduler. The channel is buffered with capacity one,
// so a pending nudge absorbs further ones and the loop stays quiescent
// when there is nothing to do.
func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// admit pops the highest-priority queued executions into running state
// until the queue empties or the ceiling is reached.
func (q *Queue) admit(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.pending) > 0 && q.running < q.ceiling {
		ex := heap.Pop(&q.pending).(*Execution)
		ex.Status = StatusRunning
		ex.StartedAt = time.Now().UTC()
		q.running++

		if q.metrics != nil {
			q.metrics.QueueDepth.Set(float64(len(q.pending)))
			q.metrics.RunningExecutions.Set(float64(q.running))
			q.metrics.QueueWaitSeconds.Observe(ex.StartedAt.Sub(ex.SubmittedAt).Seconds())
		}

		q.wg.Add(1)
		go q.dispatch(ctx, ex)
	}
}

// dispatch runs one admitted execution and records the terminal state.
// An executor error here is an infrastructure failure: the execution is
// marked failed with the error captured, and draining continues.
func (q *Queue) dispatch(ctx context.Context, ex *Execution) {
	defer q.wg.Done()

	res, err := q.exec.Execute(ctx, executor.Request{
		RunID:      ex.ID,
		ProjectID:  ex.ProjectID,
		Tool:       ex.Tool,
		Target:     ex.Target,
		Plan:       ex.Plan,
		UserID:     ex.UserID,
		Credential: ex.Credential,
		Headers:    ex.Headers,
	})

	q.mu.Lock()
	q.running--
	ex.FinishedAt = time.Now().UTC()
	if err != nil {
		ex.Status = StatusFailed
		ex.Error = err.Error()
	} else {
		ex.Status = StatusCompleted
		ex.Result = res
	}
	snapshot := *ex
	if q.metrics != nil {
		q.metrics.RunningExecutions.Set(float64(q.running))
	}
	q.mu.Unlock()

	if err != nil {
		log.Error().Err(err).Str("execution_id", ex.ID).Str("tool", ex.Tool).Msg("execution failed")
	}

	if q.metrics != nil {
		origin := ""
		if res != nil {
			origin = string(res.Origin)
		}
		q.metrics.RecordExecution(ex.Tool, string(snapshot.Status), origin, snapshot.FinishedAt.Sub(snapshot.StartedAt).Seconds())
	}

	// Terminal executions are evicted once the persistence collaborator has
	// them; without a store (or on a save failure) they stay resident so
	// Status still answers.
	if q.store != nil {
		if serr := q.store.SaveExecution(ctx, snapshot); serr != nil {
			log.Warn().Err(serr).Str("execution_id", ex.ID).Msg("recording execution failed")
		} else {
			q.mu.Lock()
			delete(q.byID, ex.ID)
			q.mu.Unlock()
		}
	}

	// A freed slot may unblock queued work.
	q.signal()
}
