package orchestrator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/literature-crawler/internal/crawler"
)

type panickyRecorder struct{}

func (panickyRecorder) RecordSuccess(string, string, time.Time, int, int) { panic("sink down") }
func (panickyRecorder) RecordFailure(string, string, time.Time, string)   { panic("sink down") }

type startCapture struct {
	fakeRecorder
	start time.Time
}

func (s *startCapture) RecordSuccess(keyword, source string, start time.Time, found, saved int) {
	s.start = start
	s.fakeRecorder.RecordSuccess(keyword, source, start, found, saved)
}

func TestMetricsAdapterBackdatesStart(t *testing.T) {
	t.Parallel()

	rec := &startCapture{}
	m := NewMetricsAdapter(rec, fixedClock{now: testNow}, zap.NewNop())
	m.Record(crawler.CrawlResult{Keyword: "k", Found: 3, Saved: 1, DurationMs: 1500})

	require.Equal(t, testNow.Add(-1500*time.Millisecond), rec.start)
	require.Len(t, rec.Calls(), 1)
}

func TestMetricsAdapterSwallowsRecorderPanics(t *testing.T) {
	t.Parallel()

	m := NewMetricsAdapter(panickyRecorder{}, fixedClock{now: testNow}, zap.NewNop())
	require.NotPanics(t, func() {
		m.Record(crawler.CrawlResult{Saved: 1})
		m.Record(crawler.CrawlResult{Message: "nothing"})
	})
}

func TestMetricsAdapterNilRecorder(t *testing.T) {
	t.Parallel()

	var nilAdapter *MetricsAdapter
	require.NotPanics(t, func() {
		nilAdapter.Record(crawler.CrawlResult{})
		NewMetricsAdapter(nil, fixedClock{}, nil).Record(crawler.CrawlResult{Saved: 2})
	})
}

func TestPoolSize(t *testing.T) {
	t.Parallel()

	require.Equal(t, DefaultPoolSize, NewPool(0).Size())
	require.Equal(t, 2, NewPool(2).Size())
}
