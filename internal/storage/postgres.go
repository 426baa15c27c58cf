// Package storage is the persistence collaborator: executions, findings,
// project scopes, and user credentials in PostgreSQL. The scheduling path
// treats every failure here as best-effort audit loss, never as a blocking
// error.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"recon-orchestrator/internal/finding"
)

// DB wraps a PostgreSQL connection pool.
type DB struct {
	pool *pgxpool.Pool
}

// New creates a new database connection pool.
func New(ctx context.Context, dsn string) (*DB, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing database DSN: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 2
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	log.Info().Msg("connected to PostgreSQL")
	return &DB{pool: pool}, nil
}

// Close shuts down the connection pool.
func (db *DB) Close() {
	db.pool.Close()
}

// Healthy checks database connectivity.
func (db *DB) Healthy(ctx context.Context) bool {
	return db.pool.Ping(ctx) == nil
}

// SaveExecution upserts a terminal execution record. Re-saving the same id
// replaces the row, so a retried write is harmless.
func (db *DB) SaveExecution(ctx context.Context, rec ExecutionRecord) error {
	query := `
		INSERT INTO executions (id, project_id, user_id, tool, target, plan,
			priority, status, origin, simulation_reason, error, finding_count,
			duration_ms, submitted_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			origin = EXCLUDED.origin,
			simulation_reason = EXCLUDED.simulation_reason,
			error = EXCLUDED.error,
			finding_count = EXCLUDED.finding_count,
			duration_ms = EXCLUDED.duration_ms,
			finished_at = EXCLUDED.finished_at`

	_, err := db.pool.Exec(ctx, query,
		rec.ID, rec.ProjectID, rec.UserID, rec.Tool, rec.Target, rec.Plan,
		rec.Priority, rec.Status, rec.Origin, rec.SimulationReason,
		truncateForDB(rec.Error, 4096), rec.FindingCount,
		rec.DurationMS, rec.SubmittedAt, rec.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting execution: %w", err)
	}
	return nil
}

// SaveFindings inserts a run's findings in one round trip.
func (db *DB) SaveFindings(ctx context.Context, findings []finding.Finding) error {
	if len(findings) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `
		INSERT INTO findings (id, project_id, run_id, type, severity, title,
			description, target, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING`

	for _, f := range findings {
		batch.Queue(query,
			f.ID, f.ProjectID, f.RunID, f.Type, string(f.Severity),
			f.Title, truncateForDB(f.Description, 4096), f.Target,
			f.Metadata, f.CreatedAt,
		)
	}

	results := db.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range findings {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("inserting finding: %w", err)
		}
	}
	return nil
}

// GetExecution retrieves a single execution by ID.
func (db *DB) GetExecution(ctx context.Context, id string) (*ExecutionRecord, error) {
	query := `
		SELECT id, project_id, user_id, tool, target, plan, priority, status,
			origin, simulation_reason, error, finding_count, duration_ms,
			submitted_at, finished_at
		FROM executions WHERE id = $1`

	var rec ExecutionRecord
	err := db.pool.QueryRow(ctx, query, id).Scan(
		&rec.ID, &rec.ProjectID, &rec.UserID, &rec.Tool, &rec.Target, &rec.Plan,
		&rec.Priority, &rec.Status, &rec.Origin, &rec.SimulationReason,
		&rec.Error, &rec.FindingCount, &rec.DurationMS,
		&rec.SubmittedAt, &rec.FinishedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("querying execution %s: %w", id, err)
	}
	return &rec, nil
}

// ListExecutions queries executions with optional filters.
func (db *DB) ListExecutions(ctx context.Context, filter ExecutionFilter) ([]ExecutionRecord, error) {
	query := `
		SELECT id, project_id, tool, target, plan, priority, status, origin,
			finding_count, duration_ms, submitted_at, finished_at
		FROM executions
		WHERE ($1 = '' OR project_id = $1)
		  AND ($2 = '' OR tool = $2)
		  AND ($3 = '' OR status = $3)
		ORDER BY submitted_at DESC
		LIMIT $4 OFFSET $5`

	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	rows, err := db.pool.Query(ctx, query,
		filter.ProjectID, filter.Tool, filter.Status, limit, filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("querying executions: %w", err)
	}
	defer rows.Close()

	var results []ExecutionRecord
	for rows.Next() {
		var rec ExecutionRecord
		if err := rows.Scan(
			&rec.ID, &rec.ProjectID, &rec.Tool, &rec.Target, &rec.Plan,
			&rec.Priority, &rec.Status, &rec.Origin,
			&rec.FindingCount, &rec.DurationMS,
			&rec.SubmittedAt, &rec.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning execution row: %w", err)
		}
		results = append(results, rec)
	}

	return results, rows.Err()
}

// ListFindings returns a project's findings, newest first.
func (db *DB) ListFindings(ctx context.Context, projectID string) ([]finding.Finding, error) {
	query := `
		SELECT id, project_id, run_id, type, severity, title, description,
			target, metadata, created_at
		FROM findings
		WHERE project_id = $1
		ORDER BY created_at DESC
		LIMIT 5000`

	rows, err := db.pool.Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("querying findings: %w", err)
	}
	defer rows.Close()

	var results []finding.Finding
	for rows.Next() {
		var f finding.Finding
		var severity string
		if err := rows.Scan(
			&f.ID, &f.ProjectID, &f.RunID, &f.Type, &severity,
			&f.Title, &f.Description, &f.Target, &f.Metadata, &f.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning finding row: %w", err)
		}
		f.Severity = finding.Severity(severity)
		results = append(results, f)
	}

	return results, rows.Err()
}

// LoadProjectScope returns a project's declared target, in-scope hosts,
// and plan.
func (db *DB) LoadProjectScope(ctx context.Context, projectID string) (*ProjectScope, error) {
	query := `SELECT project_id, target, scope, plan FROM project_scopes WHERE project_id = $1`

	var ps ProjectScope
	err := db.pool.QueryRow(ctx, query, projectID).Scan(&ps.ProjectID, &ps.Target, &ps.Scope, &ps.Plan)
	if err != nil {
		return nil, fmt.Errorf("querying project scope %s: %w", projectID, err)
	}
	return &ps, nil
}

// Credentials exposes the user credential table as the credential-store
// collaborator consumed by the executor and queue.
type Credentials struct {
	db *DB
}

// Credentials returns the credential store backed by this database.
func (db *DB) Credentials() *Credentials {
	return &Credentials{db: db}
}

// Get returns the user's stored secret for a service, or "" when none is
// stored. Only infrastructure failures surface as errors.
func (c *Credentials) Get(ctx context.Context, userID, service string) (string, error) {
	query := `SELECT secret FROM user_credentials WHERE user_id = $1 AND service = $2`

	var secret string
	err := c.db.pool.QueryRow(ctx, query, userID, service).Scan(&secret)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("querying credential: %w", err)
	}
	return secret, nil
}

func truncateForDB(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
