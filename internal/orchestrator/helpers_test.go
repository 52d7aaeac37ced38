package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/JakeFAU/literature-crawler/internal/crawler"
	"github.com/JakeFAU/literature-crawler/internal/pipeline"
	"github.com/JakeFAU/literature-crawler/internal/progress"
	"github.com/JakeFAU/literature-crawler/internal/source"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

var testNow = time.Date(2024, 5, 2, 8, 0, 0, 0, time.UTC)

// fakeAdapter yields up to capacity records titled "<name> paper <i>".
type fakeAdapter struct {
	name      string
	capacity  int
	err       error
	panics    bool
	sleep     time.Duration
	available bool

	calls    atomic.Int32
	lastMax  atomic.Int32
	inFlight *atomic.Int32
	peak     *atomic.Int32
}

func (a *fakeAdapter) Name() string { return a.name }

func (a *fakeAdapter) Fetch(_ context.Context, keyword string, maxResults int) ([]crawler.Record, error) {
	a.calls.Add(1)
	a.lastMax.Store(int32(maxResults))
	if a.inFlight != nil {
		cur := a.inFlight.Add(1)
		defer a.inFlight.Add(-1)
		for {
			p := a.peak.Load()
			if cur <= p || a.peak.CompareAndSwap(p, cur) {
				break
			}
		}
	}
	if a.sleep > 0 {
		// Deliberately ignores ctx so the orchestrator has to abandon it.
		time.Sleep(a.sleep)
	}
	if a.panics {
		panic("adapter exploded")
	}
	if a.err != nil {
		return nil, a.err
	}
	n := min(a.capacity, maxResults)
	out := make([]crawler.Record, 0, n)
	for i := range n {
		out = append(out, crawler.Record{
			Title:        fmt.Sprintf("%s paper %d about %s", a.name, i, keyword),
			Authors:      "Doe J",
			SourceURL:    fmt.Sprintf("https://%s.example.org/%d", a.name, i),
			OriginSource: a.name,
		})
	}
	return out, nil
}

func (a *fakeAdapter) IsAvailable(context.Context) bool { return a.available }

func newLookup(adapters ...*fakeAdapter) *source.Registry {
	reg := source.NewRegistry()
	for _, a := range adapters {
		reg.Register(a)
	}
	return reg
}

type fakeStore struct {
	mu       sync.Mutex
	inserted []crawler.Record
	existing []crawler.Record
	failOn   map[string]bool
	panicOn  bool
}

func (s *fakeStore) ExistsExact(_ context.Context, normalizedTitle, authors string) (bool, error) {
	if s.panicOn {
		panic("store exploded")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range append(append([]crawler.Record(nil), s.existing...), s.inserted...) {
		if pipeline.NormalizeTitle(r.Title) == normalizedTitle && r.Authors == authors {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeStore) RecentWindow(_ context.Context, limit int) ([]crawler.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := append(append([]crawler.Record(nil), s.existing...), s.inserted...)
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

func (s *fakeStore) Insert(_ context.Context, record crawler.Record) (string, error) {
	if s.failOn[record.Title] {
		return "", errors.New("insert failed")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inserted = append(s.inserted, record)
	return fmt.Sprintf("id-%d", len(s.inserted)), nil
}

func (s *fakeStore) Inserted() []crawler.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]crawler.Record(nil), s.inserted...)
}

type recorderCall struct {
	success bool
	keyword string
	source  string
	found   int
	saved   int
	reason  string
}

type fakeRecorder struct {
	mu    sync.Mutex
	calls []recorderCall
}

func (r *fakeRecorder) RecordSuccess(keyword, source string, _ time.Time, found, saved int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, recorderCall{success: true, keyword: keyword, source: source, found: found, saved: saved})
}

func (r *fakeRecorder) RecordFailure(keyword, source string, _ time.Time, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, recorderCall{keyword: keyword, source: source, reason: reason})
}

func (r *fakeRecorder) Calls() []recorderCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recorderCall(nil), r.calls...)
}

type countingPauser struct{ n atomic.Int32 }

func (p *countingPauser) Pause(context.Context, time.Duration) { p.n.Add(1) }

type captureEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (c *captureEmitter) Emit(evt progress.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
}

func (c *captureEmitter) Stages() []progress.Stage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]progress.Stage, 0, len(c.events))
	for _, e := range c.events {
		out = append(out, e.Stage)
	}
	return out
}

type staticClassifier struct {
	category string
	err      error
}

func (c staticClassifier) Classify(crawler.Record) (string, error) { return c.category, c.err }

func enabledConfig(sources ...string) Config {
	cfg := Config{
		Enabled:       true,
		Sources:       sources,
		SourceConfigs: map[string]SourceConfig{},
		MaxPerSource:  20,
		TaskTimeout:   2 * time.Second,
	}
	for _, s := range sources {
		cfg.SourceConfigs[s] = SourceConfig{Enabled: true}
	}
	return cfg
}

// titledAdapter returns fixed titles with distinct authors and URLs.
type titledAdapter struct {
	name   string
	titles []string
}

func (a *titledAdapter) Name() string { return a.name }

func (a *titledAdapter) Fetch(_ context.Context, _ string, maxResults int) ([]crawler.Record, error) {
	out := make([]crawler.Record, 0, len(a.titles))
	for i, title := range a.titles {
		if i >= maxResults {
			break
		}
		out = append(out, crawler.Record{
			Title:     title,
			Authors:   fmt.Sprintf("Author %d", i),
			SourceURL: fmt.Sprintf("https://%s.example.org/t/%d", a.name, i),
		})
	}
	return out, nil
}

func (a *titledAdapter) IsAvailable(context.Context) bool { return true }

func newRegistry(adapters ...crawler.SourceAdapter) *source.Registry {
	return source.NewRegistry(adapters...)
}
