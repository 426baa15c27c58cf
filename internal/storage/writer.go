package storage

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"recon-orchestrator/internal/finding"
	"recon-orchestrator/internal/queue"
)

// ErrBufferFull reports that the audit buffer had no room for an entry.
var ErrBufferFull = errors.New("audit buffer full")

// AuditWriter persists terminal executions and their findings off the
// scheduling path. Writes are buffered and retried; when the buffer is
// full the entry is dropped with a warning rather than blocking a
// dispatch goroutine.
type AuditWriter struct {
	db   *DB
	ch   chan auditEntry
	wg   sync.WaitGroup
	done chan struct{}
}

type auditEntry struct {
	exec     ExecutionRecord
	findings []finding.Finding
}

// NewAuditWriter creates a writer with the given buffer size.
func NewAuditWriter(db *DB, bufferSize int) *AuditWriter {
	if bufferSize < 1 {
		bufferSize = 10000
	}
	return &AuditWriter{
		db:   db,
		ch:   make(chan auditEntry, bufferSize),
		done: make(chan struct{}),
	}
}

// Start launches the write loop.
func (w *AuditWriter) Start() {
	w.wg.Add(1)
	go w.processLoop()
}

// SaveExecution implements the queue's store contract: it converts a
// terminal execution into its persisted form and buffers it. The returned
// error only reports a full buffer, which tells the queue to keep the
// execution resident instead of evicting it.
func (w *AuditWriter) SaveExecution(_ context.Context, ex queue.Execution) error {
	entry := auditEntry{exec: toRecord(ex)}
	if ex.Result != nil {
		entry.findings = ex.Result.Findings
	}

	select {
	case w.ch <- entry:
		return nil
	default:
		log.Warn().Str("execution_id", ex.ID).Msg("audit buffer full, dropping record")
		return ErrBufferFull
	}
}

func toRecord(ex queue.Execution) ExecutionRecord {
	rec := ExecutionRecord{
		ID:          ex.ID,
		ProjectID:   ex.ProjectID,
		UserID:      ex.UserID,
		Tool:        ex.Tool,
		Target:      ex.Target,
		Plan:        string(ex.Plan),
		Priority:    ex.Priority,
		Status:      string(ex.Status),
		Error:       ex.Error,
		SubmittedAt: ex.SubmittedAt,
	}
	if !ex.FinishedAt.IsZero() {
		t := ex.FinishedAt
		rec.FinishedAt = &t
		rec.DurationMS = ex.FinishedAt.Sub(ex.StartedAt).Milliseconds()
	}
	if ex.Result != nil {
		rec.Origin = string(ex.Result.Origin)
		rec.SimulationReason = ex.Result.SimulationReason
		rec.FindingCount = len(ex.Result.Findings)
	}
	return rec
}

// Flush drains remaining entries and stops the writer.
func (w *AuditWriter) Flush(timeout time.Duration) {
	close(w.done)

	doneCh := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(doneCh)
	}()

	select {
	case <-doneCh:
		log.Info().Msg("audit writer flushed")
	case <-time.After(timeout):
		log.Warn().Msg("audit writer flush timed out")
	}
}

func (w *AuditWriter) processLoop() {
	defer w.wg.Done()

	for {
		select {
		case entry := <-w.ch:
			w.writeWithRetry(entry)
		case <-w.done:
			// Drain remaining entries
			for {
				select {
				case entry := <-w.ch:
					w.writeWithRetry(entry)
				default:
					return
				}
			}
		}
	}
}

func (w *AuditWriter) writeWithRetry(entry auditEntry) {
	const maxRetries = 3

	for attempt := 0; attempt <= maxRetries; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := w.db.SaveExecution(ctx, entry.exec)
		if err == nil {
			err = w.db.SaveFindings(ctx, entry.findings)
		}
		cancel()

		if err == nil {
			return
		}

		if attempt < maxRetries {
			backoff := time.Duration(math.Pow(2, float64(attempt))) * 100 * time.Millisecond
			log.Warn().
				Err(err).
				Str("execution_id", entry.exec.ID).
				Int("attempt", attempt+1).
				Dur("backoff", backoff).
				Msg("audit write failed, retrying")
			time.Sleep(backoff)
		} else {
			log.Error().
				Err(err).
				Str("execution_id", entry.exec.ID).
				Msg("audit write failed permanently after retries")
		}
	}
}
