package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/literature-crawler/internal/crawler"
	"github.com/JakeFAU/literature-crawler/internal/pipeline"
	"github.com/JakeFAU/literature-crawler/internal/progress"
)

const (
	tracerName   = "github.com/JakeFAU/literature-crawler/internal/orchestrator"
	probeTimeout = 10 * time.Second
)

// SourceLookup resolves adapters by name.
type SourceLookup interface {
	Get(name string) (crawler.SourceAdapter, error)
	Names() []string
}

// Dependencies are the collaborators an Orchestrator drives. Sources and Store
// are required; everything else has a usable default.
type Dependencies struct {
	Sources SourceLookup
	Store   crawler.RecordStore
	// Metrics receives one outcome per finished crawl.
	Metrics crawler.MetricsRecorder
	// Classifier tags survivors when both config and request enable it.
	Classifier crawler.Classifier
	// NearDup, when set, vets every survivor against recent persisted records
	// right before it is inserted.
	NearDup *pipeline.NearDuplicateChecker
	Pool    *Pool
	Pauser  crawler.Pauser
	Clock   crawler.Clock
	Events  progress.Emitter
	Logger  *zap.Logger
}

// Orchestrator runs crawls. It is safe for concurrent use.
type Orchestrator struct {
	cfg        Config
	sources    SourceLookup
	store      crawler.RecordStore
	normalizer *pipeline.Normalizer
	dedup      *pipeline.Deduplicator
	nearDup    *pipeline.NearDuplicateChecker
	classifier crawler.Classifier
	metrics    *MetricsAdapter
	pool       *Pool
	pauser     crawler.Pauser
	clock      crawler.Clock
	events     progress.Emitter
	tracer     trace.Tracer
	logger     *zap.Logger
}

// New wires an Orchestrator.
func New(cfg Config, deps Dependencies) (*Orchestrator, error) {
	if deps.Sources == nil {
		return nil, errors.New("orchestrator: source lookup is required")
	}
	if deps.Store == nil {
		return nil, errors.New("orchestrator: record store is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("orchestrator")
	clock := deps.Clock
	if clock == nil {
		clock = wallClock{}
	}
	pool := deps.Pool
	if pool == nil {
		pool = NewPool(DefaultPoolSize)
	}
	pauser := deps.Pauser
	if pauser == nil {
		pauser = crawler.TimerPauser{}
	}
	events := deps.Events
	if events == nil {
		events = progress.NopEmitter{}
	}
	return &Orchestrator{
		cfg:        cfg.withDefaults(),
		sources:    deps.Sources,
		store:      deps.Store,
		normalizer: pipeline.NewNormalizer(clock),
		dedup:      pipeline.NewDeduplicator(deps.Store, logger.Named("dedup")),
		nearDup:    deps.NearDup,
		classifier: deps.Classifier,
		metrics:    NewMetricsAdapter(deps.Metrics, clock, logger),
		pool:       pool,
		pauser:     pauser,
		clock:      clock,
		events:     events,
		tracer:     otel.Tracer(tracerName),
		logger:     logger,
	}, nil
}

// Crawl runs one keyword crawl and always returns a well-formed result.
// A MaxResults <= 0 or blank keyword returns immediately without calling any
// adapter.
func (o *Orchestrator) Crawl(ctx context.Context, req crawler.CrawlRequest) (result crawler.CrawlResult) {
	req.Keyword = strings.TrimSpace(req.Keyword)
	if !o.cfg.Enabled {
		return crawler.CrawlResult{Keyword: req.Keyword, Message: "crawler disabled"}
	}
	if req.Keyword == "" {
		return crawler.CrawlResult{Message: "keyword is required"}
	}
	if req.MaxResults <= 0 {
		return crawler.CrawlResult{Keyword: req.Keyword, Message: "maxResults must be positive"}
	}

	start := o.clock.Now()
	ctx, span := o.tracer.Start(ctx, "orchestrator.Crawl", trace.WithAttributes(
		attribute.String("crawl.keyword", req.Keyword),
		attribute.Int("crawl.max_results", req.MaxResults),
	))
	defer span.End()

	run := o.startRun(req)
	o.logger.Info("starting crawl",
		zap.String("run_id", run.id.String()),
		zap.String("keyword", req.Keyword),
		zap.Int("max_results", req.MaxResults),
	)

	var failure error
	defer func() {
		if r := recover(); r != nil {
			failure = fmt.Errorf("panic: %v", r)
			o.logger.Error("crawl panicked",
				zap.String("keyword", req.Keyword),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			result = o.failed(req, start, failure)
		}
		o.finish(span, run, start, result, failure)
	}()

	result, failure = o.run(ctx, run, req, start)
	if failure != nil {
		o.logger.Error("crawl failed", zap.String("keyword", req.Keyword), zap.Error(failure))
		return o.failed(req, start, failure)
	}
	o.logger.Info("crawl completed",
		zap.String("keyword", req.Keyword),
		zap.Int("found", result.Found),
		zap.Int("saved", result.Saved),
		zap.Int64("duration_ms", result.DurationMs),
	)
	return result
}

// finish closes out the run: span status, terminal progress event and the
// metrics report.
func (o *Orchestrator) finish(
	span trace.Span,
	run *runState,
	start time.Time,
	result crawler.CrawlResult,
	failure error,
) {
	if failure != nil {
		span.RecordError(failure)
		span.SetStatus(codes.Error, result.Message)
		run.emit(progress.Event{Stage: progress.StageFailed, Dur: o.since(start), Note: result.Message})
	} else {
		span.SetAttributes(attribute.Int("crawl.found", result.Found), attribute.Int("crawl.saved", result.Saved))
		run.emit(progress.Event{
			Stage: progress.StageCompleted,
			Found: int64(result.Found),
			Saved: int64(result.Saved),
			Dur:   o.since(start),
		})
	}
	o.metrics.Record(result)
}

const failedPrefix = "crawl failed: "

func (o *Orchestrator) run(
	ctx context.Context,
	run *runState,
	req crawler.CrawlRequest,
	start time.Time,
) (crawler.CrawlResult, error) {
	run.emit(progress.Event{Stage: progress.StageFetching})
	fetched := stage(ctx, o.tracer, "fetch", func(ctx context.Context) fetchResult {
		return o.fetch(ctx, run, req)
	})
	if err := ctx.Err(); err != nil {
		return crawler.CrawlResult{}, fmt.Errorf("fetch interrupted: %w", err)
	}
	batch := fetched.records

	run.emit(progress.Event{Stage: progress.StageNormalizing})
	o.normalizer.Normalize(batch)

	run.emit(progress.Event{Stage: progress.StageDeduplicating})
	survivors := stage(ctx, o.tracer, "deduplicate", func(ctx context.Context) []crawler.Record {
		return o.dedup.Deduplicate(ctx, batch)
	})

	if req.ClassifyEnabled && o.cfg.ClassifyEnabled && o.classifier != nil {
		run.emit(progress.Event{Stage: progress.StageClassifying})
		o.classify(survivors)
	}

	run.emit(progress.Event{Stage: progress.StagePersisting})
	saved := stage(ctx, o.tracer, "persist", func(ctx context.Context) int {
		return o.persist(ctx, survivors)
	})

	return crawler.CrawlResult{
		Keyword:     req.Keyword,
		Found:       len(batch),
		Saved:       saved,
		DurationMs:  o.since(start).Milliseconds(),
		Message:     fmt.Sprintf(crawler.CompletedPrefix+": found %d, saved %d", len(batch), saved),
		SourceStats: fetched.stats,
	}, nil
}

// stage wraps fn in a child span named after the pipeline step.
func stage[T any](ctx context.Context, tracer trace.Tracer, name string, fn func(context.Context) T) T {
	ctx, span := tracer.Start(ctx, "orchestrator."+name)
	defer span.End()
	return fn(ctx)
}

func (o *Orchestrator) classify(records []crawler.Record) {
	for i := range records {
		category, err := o.classifier.Classify(records[i])
		if err != nil {
			o.logger.Warn("classification failed", zap.String("title", records[i].Title), zap.Error(err))
			continue
		}
		records[i].Category = category
	}
}

func (o *Orchestrator) persist(ctx context.Context, records []crawler.Record) int {
	saved := 0
	for i, rec := range records {
		if o.nearDup != nil && o.nearDup.IsDuplicate(ctx, rec) {
			o.logger.Debug("skipping near duplicate", zap.String("title", rec.Title))
			continue
		}
		if _, err := o.store.Insert(ctx, rec); err != nil {
			o.logger.Warn("failed to persist record",
				zap.Int("index", i),
				zap.String("title", rec.Title),
				zap.Error(err),
			)
			continue
		}
		saved++
	}
	o.logger.Debug("persisted records", zap.Int("saved", saved), zap.Int("candidates", len(records)))
	return saved
}

func (o *Orchestrator) failed(req crawler.CrawlRequest, start time.Time, err error) crawler.CrawlResult {
	return crawler.CrawlResult{
		Keyword:    req.Keyword,
		DurationMs: o.since(start).Milliseconds(),
		Message:    failedPrefix + err.Error(),
	}
}

func (o *Orchestrator) since(start time.Time) time.Duration {
	return max(o.clock.Now().Sub(start), 0)
}

// GetStatus reports configuration plus a live probe of every registered
// adapter. Probes run concurrently and have no effect on crawl state.
func (o *Orchestrator) GetStatus(ctx context.Context) crawler.Status {
	names := o.sources.Names()
	available := make([]bool, len(names))
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	var wg sync.WaitGroup
	for i, name := range names {
		adapter, err := o.sources.Get(name)
		if err != nil {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			available[i] = adapter.IsAvailable(ctx)
		}()
	}
	wg.Wait()

	enabled := make(map[string]bool, len(o.cfg.Sources))
	for _, name := range o.cfg.enabledDefaults() {
		enabled[name] = true
	}
	status := crawler.Status{
		Enabled:            o.cfg.Enabled,
		Sources:            append([]string(nil), o.cfg.Sources...),
		ClassifyEnabled:    o.cfg.ClassifyEnabled,
		MaxPerSource:       o.cfg.MaxPerSource,
		SourceAvailability: make(map[string]bool, len(names)),
		SourceStatuses:     make([]crawler.SourceStatus, 0, len(names)),
	}
	for i, name := range names {
		status.SourceAvailability[name] = available[i]
		status.SourceStatuses = append(status.SourceStatuses, crawler.SourceStatus{
			Name:      name,
			Enabled:   enabled[name],
			Available: available[i],
		})
	}
	sort.Slice(status.SourceStatuses, func(i, j int) bool {
		return status.SourceStatuses[i].Name < status.SourceStatuses[j].Name
	})
	return status
}

// runState tags progress events with the run they belong to.
type runState struct {
	id     uuid.UUID
	events progress.Emitter
}

func (o *Orchestrator) startRun(req crawler.CrawlRequest) *runState {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	run := &runState{id: id, events: o.events}
	run.emit(progress.Event{Stage: progress.StageCreated, Keyword: req.Keyword})
	return run
}

func (r *runState) emit(evt progress.Event) {
	evt.RunID = progress.UUIDToBytes(r.id)
	r.events.Emit(evt)
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now().UTC() }
