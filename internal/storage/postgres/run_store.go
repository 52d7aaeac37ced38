package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/literature-crawler/internal/store"
)

// RunStore implements store.RunRepository using Postgres.
type RunStore struct {
	db querier
}

var _ store.RunRepository = (*RunStore)(nil)

// NewRunStore wraps db, which is usually a *pgxpool.Pool.
func NewRunStore(db querier) (*RunStore, error) {
	if db == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &RunStore{db: db}, nil
}

// StartRun inserts a running row. Replays of the same start are no-ops.
func (s *RunStore) StartRun(ctx context.Context, runID uuid.UUID, keyword string, startedAt time.Time) error {
	query := `
		INSERT INTO crawl_runs (id, keyword, started_at, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING;
	`
	if _, err := s.db.Exec(ctx, query, runID, keyword, startedAt, string(store.RunRunning)); err != nil {
		return fmt.Errorf("failed to start run: %w", err)
	}
	return nil
}

// CompleteRun stores the final outcome of a run.
func (s *RunStore) CompleteRun(
	ctx context.Context,
	runID uuid.UUID,
	finishedAt time.Time,
	outcome store.RunOutcome,
) error {
	query := `
		UPDATE crawl_runs
		SET finished_at = $1, status = $2, found = $3, saved = $4, error_message = $5
		WHERE id = $6;
	`
	res, err := s.db.Exec(ctx, query,
		finishedAt, string(outcome.Status), outcome.Found, outcome.Saved, outcome.ErrMsg, runID)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	if res.RowsAffected() == 0 {
		return fmt.Errorf("complete run %s: %w", runID, store.ErrNotFound)
	}
	return nil
}

// UpsertSourceStats adds record and failure deltas for one source of a run.
func (s *RunStore) UpsertSourceStats(
	ctx context.Context,
	runID uuid.UUID,
	source string,
	deltaRecords,
	deltaFailures int64,
	at time.Time,
) error {
	query := `
		INSERT INTO crawl_run_sources (run_id, source, last_update, records, failures)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (run_id, source) DO UPDATE
		SET records = crawl_run_sources.records + EXCLUDED.records,
			failures = crawl_run_sources.failures + EXCLUDED.failures,
			last_update = GREATEST(crawl_run_sources.last_update, EXCLUDED.last_update);
	`
	if _, err := s.db.Exec(ctx, query, runID, source, at, deltaRecords, deltaFailures); err != nil {
		return fmt.Errorf("failed to upsert source stats: %w", err)
	}
	return nil
}

// GetRun retrieves a single run by its ID.
func (s *RunStore) GetRun(ctx context.Context, runID uuid.UUID) (store.CrawlRun, error) {
	query := `
		SELECT id, keyword, started_at, finished_at, status, found, saved, error_message
		FROM crawl_runs
		WHERE id = $1;
	`
	run, err := scanRun(s.db.QueryRow(ctx, query, runID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.CrawlRun{}, store.ErrNotFound
		}
		return store.CrawlRun{}, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns retrieves runs newest first, with optional status filtering.
func (s *RunStore) ListRuns(
	ctx context.Context,
	status *store.RunStatus,
	limit,
	offset int,
) ([]store.CrawlRun, error) {
	query := `
		SELECT id, keyword, started_at, finished_at, status, found, saved, error_message
		FROM crawl_runs
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3;
	`
	var filter *string
	if status != nil {
		v := string(*status)
		filter = &v
	}
	rows, err := s.db.Query(ctx, query, filter, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []store.CrawlRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// ListRunSources retrieves per-source statistics for a run.
func (s *RunStore) ListRunSources(
	ctx context.Context,
	runID uuid.UUID,
	limit,
	offset int,
) ([]store.SourceStats, error) {
	query := `
		SELECT run_id, source, last_update, records, failures
		FROM crawl_run_sources
		WHERE run_id = $1
		ORDER BY source
		LIMIT $2 OFFSET $3;
	`
	rows, err := s.db.Query(ctx, query, runID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list run sources: %w", err)
	}
	defer rows.Close()

	var stats []store.SourceStats
	for rows.Next() {
		var stat store.SourceStats
		if err := rows.Scan(
			&stat.RunID,
			&stat.Source,
			&stat.LastUpdate,
			&stat.Records,
			&stat.Failures,
		); err != nil {
			return nil, fmt.Errorf("failed to scan source stats row: %w", err)
		}
		stats = append(stats, stat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list run sources: %w", err)
	}
	return stats, nil
}

func scanRun(row pgx.Row) (store.CrawlRun, error) {
	var (
		run    store.CrawlRun
		status string
	)
	err := row.Scan(
		&run.ID,
		&run.Keyword,
		&run.StartedAt,
		&run.FinishedAt,
		&status,
		&run.Found,
		&run.Saved,
		&run.ErrorMessage,
	)
	if err != nil {
		return store.CrawlRun{}, err
	}
	run.Status = store.RunStatus(status)
	return run, nil
}
