// Package store declares interfaces for persisting crawl run history.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound signals that the requested run does not exist.
var ErrNotFound = errors.New("crawl run not found")

// RunStatus mirrors the crawl_runs status column.
type RunStatus string

// Crawl run statuses persisted in crawl_runs.status.
const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunError   RunStatus = "error"
)

// CrawlRun models the crawl_runs table for API responses.
type CrawlRun struct {
	// ID is the run identifier shared with progress events.
	ID uuid.UUID
	// Keyword is the search term the run was started for.
	Keyword string
	// StartedAt captures when the run was first marked running.
	StartedAt time.Time
	// FinishedAt is nil until the run is marked success/error.
	FinishedAt *time.Time
	// Status is running/success/error.
	Status RunStatus
	// Found and Saved are filled once the run finishes.
	Found int64
	Saved int64
	// ErrorMessage optionally stores the final failure reason.
	ErrorMessage *string
}

// SourceStats captures per-source aggregation for a run.
type SourceStats struct {
	RunID      uuid.UUID
	Source     string
	LastUpdate time.Time
	// Records counts records the adapter returned.
	Records int64
	// Failures counts adapter calls that ended in an error.
	Failures int64
}

// RunOutcome carries the final counters for CompleteRun.
type RunOutcome struct {
	Status RunStatus
	Found  int64
	Saved  int64
	ErrMsg *string
}

// RunRepository persists crawl run history.
type RunRepository interface {
	// StartRun inserts (or idempotently updates) the started_at timestamp.
	StartRun(ctx context.Context, runID uuid.UUID, keyword string, startedAt time.Time) error
	// CompleteRun marks the run finished with the provided outcome.
	CompleteRun(ctx context.Context, runID uuid.UUID, finishedAt time.Time, outcome RunOutcome) error
	// UpsertSourceStats applies record/failure deltas per (run, source).
	UpsertSourceStats(
		ctx context.Context,
		runID uuid.UUID,
		source string,
		deltaRecords int64,
		deltaFailures int64,
		at time.Time,
	) error

	// GetRun loads a single run or returns ErrNotFound.
	GetRun(ctx context.Context, runID uuid.UUID) (CrawlRun, error)
	// ListRuns returns runs filtered by optional status plus limit/offset.
	ListRuns(ctx context.Context, status *RunStatus, limit, offset int) ([]CrawlRun, error)
	// ListRunSources returns aggregated source stats for one run.
	ListRunSources(ctx context.Context, runID uuid.UUID, limit, offset int) ([]SourceStats, error)
}
