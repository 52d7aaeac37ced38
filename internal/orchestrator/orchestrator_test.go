package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/literature-crawler/internal/crawler"
	"github.com/JakeFAU/literature-crawler/internal/pipeline"
	"github.com/JakeFAU/literature-crawler/internal/progress"
)

type harness struct {
	orch     *Orchestrator
	store    *fakeStore
	recorder *fakeRecorder
	pauser   *countingPauser
	events   *captureEmitter
}

func newHarness(t *testing.T, cfg Config, deps Dependencies, adapters ...*fakeAdapter) harness {
	t.Helper()
	h := harness{
		store:    &fakeStore{},
		recorder: &fakeRecorder{},
		pauser:   &countingPauser{},
		events:   &captureEmitter{},
	}
	if st, ok := deps.Store.(*fakeStore); ok {
		h.store = st
	}
	deps.Sources = newLookup(adapters...)
	deps.Store = h.store
	deps.Metrics = h.recorder
	deps.Pauser = h.pauser
	deps.Events = h.events
	deps.Clock = fixedClock{now: testNow}
	deps.Logger = zap.NewNop()
	orch, err := New(cfg, deps)
	require.NoError(t, err)
	h.orch = orch
	return h
}

func TestNewRequiresSourcesAndStore(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}, Dependencies{Store: &fakeStore{}})
	require.Error(t, err)
	_, err = New(Config{}, Dependencies{Sources: newLookup()})
	require.Error(t, err)
}

func TestCrawlPartialFailureIsolation(t *testing.T) {
	t.Parallel()

	a := &fakeAdapter{name: "alpha", capacity: 4}
	b := &fakeAdapter{name: "beta", err: errors.New("status 503")}
	c := &fakeAdapter{name: "gamma", capacity: 3}
	h := newHarness(t, enabledConfig("alpha", "beta", "gamma"), Dependencies{}, a, b, c)

	res := h.orch.Crawl(context.Background(), crawler.CrawlRequest{Keyword: "asthma", MaxResults: 100})

	require.Equal(t, 7, res.Found)
	require.Equal(t, 7, res.Saved)
	require.Equal(t, "asthma", res.Keyword)
	require.Equal(t, map[string]int{"alpha": 4, "beta": 0, "gamma": 3}, res.SourceStats)
	require.Equal(t, "crawl completed: found 7, saved 7", res.Message)
	require.Len(t, h.store.Inserted(), 7)
	for _, rec := range h.store.Inserted() {
		require.Equal(t, crawler.RecordStatusActive, rec.Status)
		require.Equal(t, pipeline.UnknownJournal, rec.Journal)
		require.Equal(t, testNow, rec.CreatedAt)
	}
}

func TestCrawlSequentialStopsAtMaxResults(t *testing.T) {
	t.Parallel()

	a := &fakeAdapter{name: "alpha", capacity: 10}
	b := &fakeAdapter{name: "beta", capacity: 10}
	h := newHarness(t, enabledConfig("alpha", "beta"), Dependencies{}, a, b)

	res := h.orch.Crawl(context.Background(), crawler.CrawlRequest{Keyword: "sepsis", MaxResults: 10})

	require.Equal(t, 10, res.Found)
	require.EqualValues(t, 1, a.calls.Load())
	require.EqualValues(t, 10, a.lastMax.Load())
	require.EqualValues(t, 0, b.calls.Load())
	require.EqualValues(t, 0, h.pauser.n.Load())
}

func TestCrawlSequentialCapsAndDelays(t *testing.T) {
	t.Parallel()

	a := &fakeAdapter{name: "alpha", capacity: 2}
	b := &fakeAdapter{name: "beta", capacity: 2}
	c := &fakeAdapter{name: "gamma", capacity: 2}
	cfg := enabledConfig("alpha", "beta", "gamma")
	cfg.MaxPerSource = 3
	cfg.SourceConfigs["gamma"] = SourceConfig{Enabled: true, MaxResults: 1}
	h := newHarness(t, cfg, Dependencies{}, a, b, c)

	res := h.orch.Crawl(context.Background(), crawler.CrawlRequest{Keyword: "gout", MaxResults: 50})

	require.Equal(t, 5, res.Found)
	require.EqualValues(t, 3, a.lastMax.Load())
	require.EqualValues(t, 3, b.lastMax.Load())
	require.EqualValues(t, 1, c.lastMax.Load())
	// Pauses between sources only, never after the last one.
	require.EqualValues(t, 2, h.pauser.n.Load())
}

func TestCrawlParallelSplitsMaxResults(t *testing.T) {
	t.Parallel()

	a := &fakeAdapter{name: "alpha", capacity: 10}
	b := &fakeAdapter{name: "beta", capacity: 10}
	cfg := enabledConfig("alpha", "beta")
	cfg.Parallel = true
	h := newHarness(t, cfg, Dependencies{Pool: NewPool(4)}, a, b)

	res := h.orch.Crawl(context.Background(), crawler.CrawlRequest{Keyword: "sepsis", MaxResults: 10})

	require.GreaterOrEqual(t, res.Found, 1)
	require.LessOrEqual(t, res.Found, 10)
	require.EqualValues(t, 5, a.lastMax.Load())
	require.EqualValues(t, 5, b.lastMax.Load())
	require.Equal(t, map[string]int{"alpha": 5, "beta": 5}, res.SourceStats)
	require.EqualValues(t, 0, h.pauser.n.Load())
}

func TestCrawlParallelPerSourceFloorIsOne(t *testing.T) {
	t.Parallel()

	a := &fakeAdapter{name: "alpha", capacity: 10}
	b := &fakeAdapter{name: "beta", capacity: 10}
	c := &fakeAdapter{name: "gamma", capacity: 10}
	cfg := enabledConfig("alpha", "beta", "gamma")
	cfg.Parallel = true
	h := newHarness(t, cfg, Dependencies{}, a, b, c)

	res := h.orch.Crawl(context.Background(), crawler.CrawlRequest{Keyword: "x", MaxResults: 2})

	require.Equal(t, 3, res.Found)
	require.EqualValues(t, 1, a.lastMax.Load())
}

func TestCrawlParallelAbandonsSlowSource(t *testing.T) {
	t.Parallel()

	fast := &fakeAdapter{name: "fast", capacity: 3}
	slow := &fakeAdapter{name: "slow", capacity: 3, sleep: 500 * time.Millisecond}
	cfg := enabledConfig("fast", "slow")
	cfg.Parallel = true
	cfg.TaskTimeout = 50 * time.Millisecond
	h := newHarness(t, cfg, Dependencies{}, fast, slow)

	began := time.Now()
	res := h.orch.Crawl(context.Background(), crawler.CrawlRequest{Keyword: "x", MaxResults: 6})

	require.Less(t, time.Since(began), 400*time.Millisecond)
	require.Equal(t, 3, res.Found)
	require.Equal(t, 0, res.SourceStats["slow"])
}

func TestCrawlParallelRespectsSharedPool(t *testing.T) {
	t.Parallel()

	var inFlight, peak atomic.Int32
	mk := func(name string) *fakeAdapter {
		return &fakeAdapter{name: name, capacity: 1, sleep: 20 * time.Millisecond, inFlight: &inFlight, peak: &peak}
	}
	a, b, c := mk("alpha"), mk("beta"), mk("gamma")
	cfg := enabledConfig("alpha", "beta", "gamma")
	cfg.Parallel = true
	h := newHarness(t, cfg, Dependencies{Pool: NewPool(1)}, a, b, c)

	res := h.orch.Crawl(context.Background(), crawler.CrawlRequest{Keyword: "x", MaxResults: 3})

	require.Equal(t, 3, res.Found)
	require.EqualValues(t, 1, peak.Load())
}

func TestCrawlParallelTimedOutCallKeepsPoolSlot(t *testing.T) {
	t.Parallel()

	var inFlight, peak atomic.Int32
	mk := func(name string) *fakeAdapter {
		return &fakeAdapter{name: name, capacity: 1, sleep: 300 * time.Millisecond, inFlight: &inFlight, peak: &peak}
	}
	a, b, c := mk("alpha"), mk("beta"), mk("gamma")
	cfg := enabledConfig("alpha", "beta", "gamma")
	cfg.Parallel = true
	cfg.TaskTimeout = 100 * time.Millisecond
	pool := NewPool(1)
	h := newHarness(t, cfg, Dependencies{Pool: pool}, a, b, c)

	res := h.orch.Crawl(context.Background(), crawler.CrawlRequest{Keyword: "x", MaxResults: 3})
	require.Zero(t, res.Found)

	require.Eventually(t, func() bool { return inFlight.Load() == 0 }, 2*time.Second, 10*time.Millisecond)
	require.EqualValues(t, 1, peak.Load())
	require.EqualValues(t, 1, a.calls.Load()+b.calls.Load()+c.calls.Load())

	// The slot comes back once the timed-out call finishes.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, pool.Acquire(ctx))
	pool.Release()
}

func TestCrawlAdapterPanicIsContained(t *testing.T) {
	t.Parallel()

	bad := &fakeAdapter{name: "bad", panics: true}
	good := &fakeAdapter{name: "good", capacity: 2}
	h := newHarness(t, enabledConfig("bad", "good"), Dependencies{}, bad, good)

	res := h.orch.Crawl(context.Background(), crawler.CrawlRequest{Keyword: "x", MaxResults: 5})

	require.Equal(t, 2, res.Found)
	require.Equal(t, 2, res.Saved)
}

func TestCrawlZeroMaxResultsCallsNoAdapter(t *testing.T) {
	t.Parallel()

	a := &fakeAdapter{name: "alpha", capacity: 5}
	h := newHarness(t, enabledConfig("alpha"), Dependencies{}, a)

	for _, n := range []int{0, -3} {
		res := h.orch.Crawl(context.Background(), crawler.CrawlRequest{Keyword: "x", MaxResults: n})
		require.Zero(t, res.Found)
		require.Zero(t, res.Saved)
		require.NotEmpty(t, res.Message)
	}
	require.EqualValues(t, 0, a.calls.Load())
	require.Empty(t, h.recorder.Calls())
}

func TestCrawlBlankKeyword(t *testing.T) {
	t.Parallel()

	a := &fakeAdapter{name: "alpha", capacity: 5}
	h := newHarness(t, enabledConfig("alpha"), Dependencies{}, a)

	res := h.orch.Crawl(context.Background(), crawler.CrawlRequest{Keyword: "   ", MaxResults: 5})
	require.Equal(t, "keyword is required", res.Message)
	require.EqualValues(t, 0, a.calls.Load())
}

func TestCrawlDisabled(t *testing.T) {
	t.Parallel()

	a := &fakeAdapter{name: "alpha", capacity: 5}
	cfg := enabledConfig("alpha")
	cfg.Enabled = false
	h := newHarness(t, cfg, Dependencies{}, a)

	res := h.orch.Crawl(context.Background(), crawler.CrawlRequest{Keyword: "x", MaxResults: 5})
	require.Equal(t, crawler.CrawlResult{Keyword: "x", Message: "crawler disabled"}, res)
	require.EqualValues(t, 0, a.calls.Load())
	require.Empty(t, h.events.Stages())
}

func TestCrawlResolvesSources(t *testing.T) {
	t.Parallel()

	a := &fakeAdapter{name: "alpha", capacity: 1}
	b := &fakeAdapter{name: "beta", capacity: 1}
	c := &fakeAdapter{name: "gamma", capacity: 1}
	cfg := enabledConfig("alpha", "beta", "gamma")
	cfg.SourceConfigs["beta"] = SourceConfig{Enabled: false}
	delete(cfg.SourceConfigs, "gamma")
	h := newHarness(t, cfg, Dependencies{}, a, b, c)

	res := h.orch.Crawl(context.Background(), crawler.CrawlRequest{Keyword: "x", MaxResults: 10})
	require.Equal(t, 1, res.Found)
	require.EqualValues(t, 0, b.calls.Load())
	require.EqualValues(t, 0, c.calls.Load())

	// Explicit sources bypass the enabled filter; unknown names are skipped.
	res = h.orch.Crawl(context.Background(), crawler.CrawlRequest{
		Keyword:    "y",
		MaxResults: 10,
		Sources:    []string{"beta", "nope"},
	})
	require.Equal(t, 1, res.Found)
	require.EqualValues(t, 1, b.calls.Load())
	require.NotContains(t, res.SourceStats, "nope")
}

func TestCrawlPersistenceFailureIsExcluded(t *testing.T) {
	t.Parallel()

	a := &fakeAdapter{name: "alpha", capacity: 3}
	st := &fakeStore{failOn: map[string]bool{"alpha paper 1 about x": true}}
	h := newHarness(t, enabledConfig("alpha"), Dependencies{Store: st}, a)

	res := h.orch.Crawl(context.Background(), crawler.CrawlRequest{Keyword: "x", MaxResults: 3})
	require.Equal(t, 3, res.Found)
	require.Equal(t, 2, res.Saved)
}

func TestCrawlPipelinePanicBecomesFailedResult(t *testing.T) {
	t.Parallel()

	a := &fakeAdapter{name: "alpha", capacity: 3}
	st := &fakeStore{panicOn: true}
	h := newHarness(t, enabledConfig("alpha"), Dependencies{Store: st}, a)

	res := h.orch.Crawl(context.Background(), crawler.CrawlRequest{Keyword: "x", MaxResults: 3})
	require.Zero(t, res.Found)
	require.Zero(t, res.Saved)
	require.True(t, strings.HasPrefix(res.Message, "crawl failed: "), res.Message)
	require.Contains(t, res.Message, "store exploded")

	calls := h.recorder.Calls()
	require.Len(t, calls, 1)
	require.False(t, calls[0].success)
	require.Equal(t, res.Message, calls[0].reason)

	stages := h.events.Stages()
	require.Equal(t, progress.StageFailed, stages[len(stages)-1])
}

func TestCrawlCanceledContextFails(t *testing.T) {
	t.Parallel()

	a := &fakeAdapter{name: "alpha", capacity: 3}
	h := newHarness(t, enabledConfig("alpha"), Dependencies{}, a)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := h.orch.Crawl(ctx, crawler.CrawlRequest{Keyword: "x", MaxResults: 3})
	require.True(t, strings.HasPrefix(res.Message, "crawl failed: "), res.Message)
	require.Empty(t, h.store.Inserted())
}

func TestCrawlDeduplicatesMergedBatch(t *testing.T) {
	t.Parallel()

	a := &fakeAdapter{name: "alpha", capacity: 3}
	st := &fakeStore{existing: []crawler.Record{{Title: "ALPHA paper 0 about x", Authors: "Doe J"}}}
	h := newHarness(t, enabledConfig("alpha"), Dependencies{Store: st}, a)

	res := h.orch.Crawl(context.Background(), crawler.CrawlRequest{Keyword: "x", MaxResults: 3})
	require.Equal(t, 3, res.Found)
	require.Equal(t, 2, res.Saved)
}

func TestCrawlNearDuplicateCheckBeforeInsert(t *testing.T) {
	t.Parallel()

	st := &fakeStore{existing: []crawler.Record{{Title: "Deep Learning for Cancer Detection", Authors: "Smith A"}}}
	near := pipeline.NewNearDuplicateChecker(st, 0.85, 100, zap.NewNop())
	adapter := &titledAdapter{name: "alpha", titles: []string{
		"Deep learning for cancer detection.",
		"Statistical Methods in Epidemiology",
	}}
	orch, err := New(enabledConfig("alpha"), Dependencies{
		Sources: newRegistry(adapter),
		Store:   st,
		NearDup: near,
		Pauser:  &countingPauser{},
		Clock:   fixedClock{now: testNow},
	})
	require.NoError(t, err)

	res := orch.Crawl(context.Background(), crawler.CrawlRequest{Keyword: "x", MaxResults: 5})
	require.Equal(t, 2, res.Found)
	require.Equal(t, 1, res.Saved)
	require.Equal(t, "Statistical Methods in Epidemiology", st.Inserted()[0].Title)
}

func TestCrawlClassification(t *testing.T) {
	t.Parallel()

	cfg := enabledConfig("alpha")
	cfg.ClassifyEnabled = true

	a := &fakeAdapter{name: "alpha", capacity: 2}
	h := newHarness(t, cfg, Dependencies{Classifier: staticClassifier{category: "oncology"}}, a)
	h.orch.Crawl(context.Background(), crawler.CrawlRequest{Keyword: "x", MaxResults: 2, ClassifyEnabled: true})
	for _, rec := range h.store.Inserted() {
		require.Equal(t, "oncology", rec.Category)
	}
	require.Contains(t, h.events.Stages(), progress.StageClassifying)

	b := &fakeAdapter{name: "alpha", capacity: 2}
	h2 := newHarness(t, cfg, Dependencies{Classifier: staticClassifier{category: "oncology"}}, b)
	h2.orch.Crawl(context.Background(), crawler.CrawlRequest{Keyword: "x", MaxResults: 2})
	for _, rec := range h2.store.Inserted() {
		require.Empty(t, rec.Category)
	}

	c := &fakeAdapter{name: "alpha", capacity: 2}
	h3 := newHarness(t, cfg, Dependencies{Classifier: staticClassifier{err: errors.New("nope")}}, c)
	res := h3.orch.Crawl(context.Background(), crawler.CrawlRequest{Keyword: "x", MaxResults: 2, ClassifyEnabled: true})
	require.Equal(t, 2, res.Saved)
}

func TestCrawlEmitsStagesInOrder(t *testing.T) {
	t.Parallel()

	a := &fakeAdapter{name: "alpha", capacity: 1}
	h := newHarness(t, enabledConfig("alpha"), Dependencies{}, a)
	h.orch.Crawl(context.Background(), crawler.CrawlRequest{Keyword: "x", MaxResults: 1})

	require.Equal(t, []progress.Stage{
		progress.StageCreated,
		progress.StageFetching,
		progress.StageSourceDone,
		progress.StageNormalizing,
		progress.StageDeduplicating,
		progress.StagePersisting,
		progress.StageCompleted,
	}, h.events.Stages())

	h.events.mu.Lock()
	defer h.events.mu.Unlock()
	runID := h.events.events[0].RunID
	for _, evt := range h.events.events {
		require.Equal(t, runID, evt.RunID)
	}
}

func TestCrawlReportsMetrics(t *testing.T) {
	t.Parallel()

	a := &fakeAdapter{name: "alpha", capacity: 2}
	h := newHarness(t, enabledConfig("alpha"), Dependencies{}, a)
	h.orch.Crawl(context.Background(), crawler.CrawlRequest{Keyword: "x", MaxResults: 2})

	empty := &fakeAdapter{name: "alpha"}
	h2 := newHarness(t, enabledConfig("alpha"), Dependencies{}, empty)
	res := h2.orch.Crawl(context.Background(), crawler.CrawlRequest{Keyword: "y", MaxResults: 2})

	calls := h.recorder.Calls()
	require.Len(t, calls, 1)
	require.True(t, calls[0].success)
	require.Equal(t, MetricsSourceLabel, calls[0].source)
	require.Equal(t, 2, calls[0].saved)

	calls = h2.recorder.Calls()
	require.Len(t, calls, 1)
	require.False(t, calls[0].success)
	require.Equal(t, res.Message, calls[0].reason)
}

func TestGetStatus(t *testing.T) {
	t.Parallel()

	a := &fakeAdapter{name: "alpha", available: true}
	b := &fakeAdapter{name: "beta", available: false}
	cfg := enabledConfig("alpha", "beta")
	cfg.SourceConfigs["beta"] = SourceConfig{Enabled: false}
	cfg.ClassifyEnabled = true
	h := newHarness(t, cfg, Dependencies{}, a, b)

	status := h.orch.GetStatus(context.Background())
	require.True(t, status.Enabled)
	require.True(t, status.ClassifyEnabled)
	require.Equal(t, 20, status.MaxPerSource)
	require.Equal(t, []string{"alpha", "beta"}, status.Sources)
	require.Equal(t, map[string]bool{"alpha": true, "beta": false}, status.SourceAvailability)
	require.Equal(t, []crawler.SourceStatus{
		{Name: "alpha", Enabled: true, Available: true},
		{Name: "beta", Enabled: false, Available: false},
	}, status.SourceStatuses)
}
