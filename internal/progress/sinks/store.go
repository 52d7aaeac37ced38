package sinks

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/literature-crawler/internal/progress"
	"github.com/JakeFAU/literature-crawler/internal/store"
)

// StoreSink persists run history via a store.RunRepository. Source outcomes
// are collapsed per (run, source) within a batch to reduce writes.
type StoreSink struct {
	repo   store.RunRepository
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided repository.
func NewStoreSink(repo store.RunRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

// Consume forwards run lifecycle events and collapsed source deltas to the
// repository. It respects ctx deadlines and returns repository errors wrapped.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	deltas := make(map[sourceKey]*sourceDelta)
	var order []sourceKey

	for _, evt := range batch {
		runID := evt.RunUUID()
		switch evt.Stage {
		case progress.StageCreated, progress.StageCompleted, progress.StageFailed:
			// Source rows must land before the run is closed.
			if evt.Stage.Terminal() {
				if err := s.flushSources(ctx, deltas, order); err != nil {
					return err
				}
				deltas = make(map[sourceKey]*sourceDelta)
				order = order[:0]
			}
			if err := s.handleRunEvent(ctx, runID, evt); err != nil {
				return err
			}
		case progress.StageSourceDone:
			key := sourceKey{runID: runID, source: evt.Source}
			d := deltas[key]
			if d == nil {
				d = &sourceDelta{}
				deltas[key] = d
				order = append(order, key)
			}
			d.records += evt.Found
			if evt.Failed {
				d.failures++
			}
			if evt.TS.After(d.at) {
				d.at = evt.TS
			}
		}
	}
	return s.flushSources(ctx, deltas, order)
}

func (s *StoreSink) handleRunEvent(ctx context.Context, runID uuid.UUID, evt progress.Event) error {
	switch evt.Stage {
	case progress.StageCreated:
		if err := s.repo.StartRun(ctx, runID, evt.Keyword, evt.TS); err != nil {
			return fmt.Errorf("start run: %w", err)
		}
	case progress.StageCompleted:
		outcome := store.RunOutcome{Status: store.RunSuccess, Found: evt.Found, Saved: evt.Saved}
		if err := s.repo.CompleteRun(ctx, runID, evt.TS, outcome); err != nil {
			return fmt.Errorf("complete run: %w", err)
		}
	case progress.StageFailed:
		outcome := store.RunOutcome{Status: store.RunError}
		if evt.Note != "" {
			note := evt.Note
			outcome.ErrMsg = &note
		}
		if err := s.repo.CompleteRun(ctx, runID, evt.TS, outcome); err != nil {
			return fmt.Errorf("complete run: %w", err)
		}
	}
	return nil
}

func (s *StoreSink) flushSources(ctx context.Context, deltas map[sourceKey]*sourceDelta, order []sourceKey) error {
	for _, key := range order {
		d := deltas[key]
		if d.records == 0 && d.failures == 0 {
			continue
		}
		if err := s.repo.UpsertSourceStats(ctx, key.runID, key.source, d.records, d.failures, d.at); err != nil {
			return fmt.Errorf("upsert source stats: %w", err)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}

type sourceKey struct {
	runID  uuid.UUID
	source string
}

type sourceDelta struct {
	records  int64
	failures int64
	at       time.Time
}
