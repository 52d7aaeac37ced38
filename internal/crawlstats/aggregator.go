// Package crawlstats keeps in-process crawl statistics: running totals,
// per-source counters, a ring of recent crawls, hourly trends and a coarse
// health verdict. The Aggregator is the metrics collaborator the orchestrator
// reports to.
package crawlstats

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/literature-crawler/internal/crawler"
	"github.com/JakeFAU/literature-crawler/internal/metrics"
)

// DefaultRecentCapacity bounds the recent-crawl ring.
const DefaultRecentCapacity = 100

// Health verdicts.
const (
	HealthUp       = "UP"
	HealthDegraded = "DEGRADED"
	HealthDown     = "DOWN"
)

const (
	degradedBelow = 80.0
	downBelow     = 50.0
)

// CrawlRecord is one entry of the recent-crawl ring.
type CrawlRecord struct {
	Keyword    string    `json:"keyword"`
	Source     string    `json:"source"`
	StartTime  time.Time `json:"startTime"`
	EndTime    time.Time `json:"endTime"`
	DurationMs int64     `json:"durationMs"`
	Success    bool      `json:"success"`
	Found      int       `json:"papersFound"`
	Saved      int       `json:"papersSaved"`
	Error      string    `json:"errorMessage,omitempty"`
}

// Overall summarises every recorded crawl since start or the last Reset.
type Overall struct {
	TotalRequests    int     `json:"totalRequests"`
	SuccessfulCrawls int     `json:"successfulCrawls"`
	FailedCrawls     int     `json:"failedCrawls"`
	SuccessRate      float64 `json:"successRate"`
	AverageCrawlTime float64 `json:"averageCrawlTime"`
	TotalFound       int     `json:"totalPapersFound"`
	TotalSaved       int     `json:"totalPapersSaved"`
	SaveRate         float64 `json:"saveRate"`
}

// SourceSummary is the per-source view of the counters.
type SourceSummary struct {
	Requests    int     `json:"requests"`
	Successes   int     `json:"successes"`
	Failures    int     `json:"failures"`
	SuccessRate float64 `json:"successRate"`
	AverageTime float64 `json:"averageTime"`
	Found       int     `json:"papersFound"`
}

// TrendPoint buckets recent crawls by hour.
type TrendPoint struct {
	Hour      time.Time `json:"hour"`
	Successes int       `json:"successes"`
	Failures  int       `json:"failures"`
	Saved     int       `json:"papersSaved"`
}

// Health is the coarse service verdict derived from the success rate.
type Health struct {
	Status        string  `json:"status"`
	SuccessRate   float64 `json:"successRate"`
	TotalRequests int     `json:"totalRequests"`
	RecentCrawls  int     `json:"recentCrawls"`
}

type counters struct {
	requests  int
	successes int
	failures  int
	totalTime time.Duration
	found     int
	saved     int
}

func (c counters) successRate() float64 {
	if c.requests == 0 {
		return 0
	}
	return float64(c.successes) / float64(c.requests) * 100
}

func (c counters) averageMillis() float64 {
	if c.requests == 0 {
		return 0
	}
	return float64(c.totalTime.Milliseconds()) / float64(c.requests)
}

// Aggregator is a mutex-guarded crawl statistics store. It implements
// crawler.MetricsRecorder and mirrors every outcome into Prometheus.
type Aggregator struct {
	mu      sync.Mutex
	clock   crawler.Clock
	logger  *zap.Logger
	totals  counters
	sources map[string]*counters
	recent  []CrawlRecord
	next    int
	size    int
}

// NewAggregator builds an Aggregator keeping at most capacity recent crawls.
func NewAggregator(clock crawler.Clock, capacity int, logger *zap.Logger) *Aggregator {
	if capacity <= 0 {
		capacity = DefaultRecentCapacity
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		clock:   clock,
		logger:  logger,
		sources: make(map[string]*counters),
		recent:  make([]CrawlRecord, capacity),
	}
}

// RecordSuccess implements crawler.MetricsRecorder.
func (a *Aggregator) RecordSuccess(keyword, source string, start time.Time, found, saved int) {
	end := a.clock.Now()
	dur := nonNegative(end.Sub(start))

	a.mu.Lock()
	a.totals.requests++
	a.totals.successes++
	a.totals.totalTime += dur
	a.totals.found += found
	a.totals.saved += saved
	src := a.source(source)
	src.requests++
	src.successes++
	src.totalTime += dur
	src.found += found
	a.push(CrawlRecord{
		Keyword: keyword, Source: source, StartTime: start, EndTime: end,
		DurationMs: dur.Milliseconds(), Success: true, Found: found, Saved: saved,
	})
	a.mu.Unlock()

	metrics.ObserveCrawl("success", found, saved, dur)
	a.logger.Info("crawl succeeded",
		zap.String("keyword", keyword),
		zap.String("source", source),
		zap.Duration("duration", dur),
		zap.Int("found", found),
		zap.Int("saved", saved),
	)
}

// RecordFailure implements crawler.MetricsRecorder.
func (a *Aggregator) RecordFailure(keyword, source string, start time.Time, reason string) {
	end := a.clock.Now()
	dur := nonNegative(end.Sub(start))

	a.mu.Lock()
	a.totals.requests++
	a.totals.failures++
	a.totals.totalTime += dur
	src := a.source(source)
	src.requests++
	src.failures++
	src.totalTime += dur
	a.push(CrawlRecord{
		Keyword: keyword, Source: source, StartTime: start, EndTime: end,
		DurationMs: dur.Milliseconds(), Error: reason,
	})
	a.mu.Unlock()

	metrics.ObserveCrawl("failure", 0, 0, dur)
	a.logger.Warn("crawl failed",
		zap.String("keyword", keyword),
		zap.String("source", source),
		zap.Duration("duration", dur),
		zap.String("reason", reason),
	)
}

// Overall returns the aggregate counters.
func (a *Aggregator) Overall() Overall {
	a.mu.Lock()
	defer a.mu.Unlock()
	t := a.totals
	out := Overall{
		TotalRequests:    t.requests,
		SuccessfulCrawls: t.successes,
		FailedCrawls:     t.failures,
		SuccessRate:      t.successRate(),
		AverageCrawlTime: t.averageMillis(),
		TotalFound:       t.found,
		TotalSaved:       t.saved,
	}
	if t.found > 0 {
		out.SaveRate = float64(t.saved) / float64(t.found) * 100
	}
	return out
}

// Sources returns a per-source snapshot keyed by source label.
func (a *Aggregator) Sources() map[string]SourceSummary {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]SourceSummary, len(a.sources))
	for name, c := range a.sources {
		out[name] = SourceSummary{
			Requests:    c.requests,
			Successes:   c.successes,
			Failures:    c.failures,
			SuccessRate: c.successRate(),
			AverageTime: c.averageMillis(),
			Found:       c.found,
		}
	}
	return out
}

// Recent returns up to limit of the most recent crawls, oldest first.
func (a *Aggregator) Recent(limit int) []CrawlRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	all := a.snapshot()
	if limit > 0 && limit < len(all) {
		all = all[len(all)-limit:]
	}
	return all
}

// Trends buckets the recent crawls that started within the last hours by the
// hour they started in, ascending. hours <= 0 keeps every recent crawl.
func (a *Aggregator) Trends(hours int) []TrendPoint {
	now := a.clock.Now()
	a.mu.Lock()
	records := a.snapshot()
	a.mu.Unlock()

	var cutoff time.Time
	if hours > 0 {
		cutoff = now.Add(-time.Duration(hours) * time.Hour)
	}
	buckets := make(map[time.Time]*TrendPoint)
	for _, rec := range records {
		if rec.StartTime.Before(cutoff) {
			continue
		}
		hour := rec.StartTime.UTC().Truncate(time.Hour)
		p := buckets[hour]
		if p == nil {
			p = &TrendPoint{Hour: hour}
			buckets[hour] = p
		}
		if rec.Success {
			p.Successes++
			p.Saved += rec.Saved
		} else {
			p.Failures++
		}
	}
	out := make([]TrendPoint, 0, len(buckets))
	for _, p := range buckets {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hour.Before(out[j].Hour) })
	return out
}

// Health derives UP/DEGRADED/DOWN from the overall success rate. With no
// recorded crawls the service reports UP at 100%.
func (a *Aggregator) Health() Health {
	a.mu.Lock()
	defer a.mu.Unlock()
	rate := 100.0
	if a.totals.requests > 0 {
		rate = a.totals.successRate()
	}
	status := HealthUp
	switch {
	case rate < downBelow:
		status = HealthDown
	case rate < degradedBelow:
		status = HealthDegraded
	}
	return Health{
		Status:        status,
		SuccessRate:   rate,
		TotalRequests: a.totals.requests,
		RecentCrawls:  a.size,
	}
}

// Reset clears all counters and the recent ring.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	a.totals = counters{}
	a.sources = make(map[string]*counters)
	clear(a.recent)
	a.next, a.size = 0, 0
	a.mu.Unlock()
	a.logger.Info("crawl statistics reset")
}

func (a *Aggregator) source(name string) *counters {
	c, ok := a.sources[name]
	if !ok {
		c = &counters{}
		a.sources[name] = c
	}
	return c
}

func (a *Aggregator) push(rec CrawlRecord) {
	a.recent[a.next] = rec
	a.next = (a.next + 1) % len(a.recent)
	if a.size < len(a.recent) {
		a.size++
	}
}

// snapshot copies the ring oldest first. Callers hold mu.
func (a *Aggregator) snapshot() []CrawlRecord {
	out := make([]CrawlRecord, 0, a.size)
	start := (a.next - a.size + len(a.recent)) % len(a.recent)
	for i := 0; i < a.size; i++ {
		out = append(out, a.recent[(start+i)%len(a.recent)])
	}
	return out
}

func nonNegative(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
