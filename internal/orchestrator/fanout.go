package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/literature-crawler/internal/crawler"
	"github.com/JakeFAU/literature-crawler/internal/metrics"
	"github.com/JakeFAU/literature-crawler/internal/progress"
)

// fetchResult is what one source contributed to a crawl.
type fetchResult struct {
	records []crawler.Record
	stats   map[string]int
}

// resolveSources returns the request's sources verbatim, or the enabled
// defaults when the request names none.
func (o *Orchestrator) resolveSources(req crawler.CrawlRequest) []string {
	if len(req.Sources) > 0 {
		return append([]string(nil), req.Sources...)
	}
	return o.cfg.enabledDefaults()
}

func (o *Orchestrator) fetch(ctx context.Context, run *runState, req crawler.CrawlRequest) fetchResult {
	names := o.resolveSources(req)
	if o.cfg.Parallel && len(names) > 1 {
		return o.fetchParallel(ctx, run, req, names)
	}
	return o.fetchSequential(ctx, run, req, names)
}

func (o *Orchestrator) fetchSequential(
	ctx context.Context,
	run *runState,
	req crawler.CrawlRequest,
	names []string,
) fetchResult {
	out := fetchResult{stats: make(map[string]int, len(names))}
	remaining := req.MaxResults
	for i, name := range names {
		if remaining <= 0 || ctx.Err() != nil {
			break
		}
		adapter, err := o.sources.Get(name)
		if err != nil {
			o.logger.Warn("skipping unknown source", zap.String("source", name), zap.Error(err))
			continue
		}
		limit := min(remaining, o.cfg.sourceCap(name))
		taskCtx, cancel := context.WithTimeout(ctx, o.cfg.TaskTimeout)
		records := o.callSource(taskCtx, run, adapter, req.Keyword, limit, nil)
		cancel()

		out.records = append(out.records, records...)
		out.stats[name] = len(records)
		remaining -= len(records)

		if remaining > 0 && i < len(names)-1 {
			o.pauser.Pause(ctx, o.cfg.InterSourceDelay)
		}
	}
	return out
}

func (o *Orchestrator) fetchParallel(
	ctx context.Context,
	run *runState,
	req crawler.CrawlRequest,
	names []string,
) fetchResult {
	perSource := max(1, req.MaxResults/len(names))
	slots := make([][]crawler.Record, len(names))
	known := make([]bool, len(names))

	// Tasks never return errors so one slow or failing source cannot cancel
	// its siblings.
	var g errgroup.Group
	for i, name := range names {
		adapter, err := o.sources.Get(name)
		if err != nil {
			o.logger.Warn("skipping unknown source", zap.String("source", name), zap.Error(err))
			continue
		}
		known[i] = true
		g.Go(func() error {
			taskCtx, cancel := context.WithTimeout(ctx, o.cfg.TaskTimeout)
			defer cancel()
			if err := o.pool.Acquire(taskCtx); err != nil {
				o.logger.Warn("source task timed out waiting for a pool slot",
					zap.String("source", name), zap.Error(err))
				o.emitSource(run, name, 0, 0, err)
				return nil
			}
			// The slot is held until the adapter itself returns, even when the
			// task gives up on it first.
			slots[i] = o.callSource(taskCtx, run, adapter, req.Keyword, perSource, o.pool.Release)
			return nil
		})
	}
	_ = g.Wait()

	out := fetchResult{stats: make(map[string]int, len(names))}
	for i, name := range names {
		if !known[i] {
			continue
		}
		out.records = append(out.records, slots[i]...)
		out.stats[name] = len(slots[i])
	}
	return out
}

type adapterOutcome struct {
	records []crawler.Record
	err     error
}

// callSource runs one adapter call under ctx. If ctx ends first the source
// contributes nothing. Errors and panics are logged and reported as an empty
// contribution. release, when non-nil, runs once the adapter call returns.
func (o *Orchestrator) callSource(
	ctx context.Context,
	run *runState,
	adapter crawler.SourceAdapter,
	keyword string,
	limit int,
	release func(),
) []crawler.Record {
	name := adapter.Name()
	start := o.clock.Now()
	done := make(chan adapterOutcome, 1)
	go func() {
		if release != nil {
			defer release()
		}
		defer func() {
			if r := recover(); r != nil {
				done <- adapterOutcome{err: fmt.Errorf("adapter panic: %v", r)}
			}
		}()
		records, err := adapter.Fetch(ctx, keyword, limit)
		done <- adapterOutcome{records: records, err: err}
	}()

	var out adapterOutcome
	select {
	case out = <-done:
	case <-ctx.Done():
		out = adapterOutcome{err: fmt.Errorf("source %s timed out: %w", name, ctx.Err())}
	}
	elapsed := o.clock.Now().Sub(start)

	if out.err != nil {
		o.logger.Warn("source fetch failed",
			zap.String("source", name),
			zap.String("keyword", keyword),
			zap.Error(out.err),
		)
		metrics.ObserveSourceFetch(name, "error", 0, elapsed)
		o.emitSource(run, name, 0, elapsed, out.err)
		return nil
	}
	if len(out.records) > limit {
		out.records = out.records[:limit]
	}
	o.logger.Info("source fetch finished",
		zap.String("source", name),
		zap.Int("limit", limit),
		zap.Int("records", len(out.records)),
	)
	metrics.ObserveSourceFetch(name, "ok", len(out.records), elapsed)
	o.emitSource(run, name, len(out.records), elapsed, nil)
	return out.records
}

func (o *Orchestrator) emitSource(run *runState, name string, found int, elapsed time.Duration, err error) {
	evt := progress.Event{
		Stage:  progress.StageSourceDone,
		Source: name,
		Found:  int64(found),
		Dur:    max(elapsed, 0),
	}
	if err != nil {
		evt.Failed = true
		evt.Note = err.Error()
	}
	run.emit(evt)
}
