package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/literature-crawler/internal/progress"
	"github.com/JakeFAU/literature-crawler/internal/store"
)

// TestStoreSinkPersistsEvents ensures source outcomes are collapsed before persisting.
func TestStoreSinkPersistsEvents(t *testing.T) {
	t.Parallel()

	repo := &fakeRunRepo{}
	sink := NewStoreSink(repo, nil)
	runUUID := uuid.New()
	runID := progress.UUIDToBytes(runUUID)
	now := time.Now()

	batch := []progress.Event{
		{RunID: runID, Stage: progress.StageCreated, Keyword: "glaucoma", TS: now},
		{RunID: runID, Stage: progress.StageFetching, TS: now},
		{RunID: runID, Stage: progress.StageSourceDone, Source: "arxiv", Found: 4, TS: now.Add(time.Second)},
		{RunID: runID, Stage: progress.StageSourceDone, Source: "arxiv", Found: 2, TS: now.Add(2 * time.Second)},
		{RunID: runID, Stage: progress.StageSourceDone, Source: "pubmed", Failed: true, TS: now.Add(2 * time.Second)},
		{RunID: runID, Stage: progress.StageCompleted, Found: 6, Saved: 5, TS: now.Add(3 * time.Second)},
	}

	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, []string{"start", "source:arxiv", "source:pubmed", "complete"}, repo.calls)
	require.Equal(t, "glaucoma", repo.keyword)
	require.Len(t, repo.sources, 2)
	require.Equal(t, int64(6), repo.sources[0].deltaRecords)
	require.Equal(t, now.Add(2*time.Second), repo.sources[0].at)
	require.Equal(t, int64(1), repo.sources[1].deltaFailures)
	require.Equal(t, store.RunSuccess, repo.outcome.Status)
	require.Equal(t, int64(5), repo.outcome.Saved)
}

// TestStoreSinkFailedRunCarriesNote ensures the failure message is persisted.
func TestStoreSinkFailedRunCarriesNote(t *testing.T) {
	t.Parallel()

	repo := &fakeRunRepo{}
	sink := NewStoreSink(repo, nil)
	runID := progress.UUIDToBytes(uuid.New())
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: runID, Stage: progress.StageFailed, Note: "crawl failed: boom", TS: time.Now()},
	}))
	require.Equal(t, store.RunError, repo.outcome.Status)
	require.NotNil(t, repo.outcome.ErrMsg)
	require.Equal(t, "crawl failed: boom", *repo.outcome.ErrMsg)
}

// TestStoreSinkHandlesErrors surfaces repository failures back to the caller.
func TestStoreSinkHandlesErrors(t *testing.T) {
	t.Parallel()

	repo := &fakeRunRepo{fail: true}
	sink := NewStoreSink(repo, nil)
	runID := progress.UUIDToBytes(uuid.New())
	err := sink.Consume(context.Background(), []progress.Event{
		{RunID: runID, Stage: progress.StageCreated, Keyword: "k", TS: time.Now()},
	})
	require.Error(t, err)
}

func TestStoreSinkNilRepo(t *testing.T) {
	t.Parallel()

	sink := NewStoreSink(nil, nil)
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{{Stage: progress.StageCreated}}))
}

type fakeRunRepo struct {
	fail    bool
	calls   []string
	keyword string
	outcome store.RunOutcome
	sources []sourceCall
}

type sourceCall struct {
	runID         uuid.UUID
	source        string
	deltaRecords  int64
	deltaFailures int64
	at            time.Time
}

func (f *fakeRunRepo) StartRun(_ context.Context, _ uuid.UUID, keyword string, _ time.Time) error {
	if f.fail {
		return assertErr("start")
	}
	f.calls = append(f.calls, "start")
	f.keyword = keyword
	return nil
}

func (f *fakeRunRepo) CompleteRun(_ context.Context, _ uuid.UUID, _ time.Time, outcome store.RunOutcome) error {
	if f.fail {
		return assertErr("complete")
	}
	f.calls = append(f.calls, "complete")
	f.outcome = outcome
	return nil
}

func (f *fakeRunRepo) UpsertSourceStats(
	_ context.Context,
	runID uuid.UUID,
	source string,
	deltaRecords int64,
	deltaFailures int64,
	at time.Time,
) error {
	if f.fail {
		return assertErr("source")
	}
	f.calls = append(f.calls, "source:"+source)
	f.sources = append(f.sources, sourceCall{
		runID:         runID,
		source:        source,
		deltaRecords:  deltaRecords,
		deltaFailures: deltaFailures,
		at:            at,
	})
	return nil
}

func (f *fakeRunRepo) GetRun(context.Context, uuid.UUID) (store.CrawlRun, error) {
	return store.CrawlRun{}, assertErr("read")
}

func (f *fakeRunRepo) ListRuns(context.Context, *store.RunStatus, int, int) ([]store.CrawlRun, error) {
	return nil, assertErr("list")
}

func (f *fakeRunRepo) ListRunSources(context.Context, uuid.UUID, int, int) ([]store.SourceStats, error) {
	return nil, assertErr("sources")
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
