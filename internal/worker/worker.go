// Package worker runs queued crawl tasks against the orchestrator.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/literature-crawler/internal/crawler"
	"github.com/JakeFAU/literature-crawler/internal/metrics"
)

// Crawler runs one crawl. *orchestrator.Orchestrator satisfies it.
type Crawler interface {
	Crawl(ctx context.Context, req crawler.CrawlRequest) crawler.CrawlResult
}

// Config controls Worker behavior.
type Config struct {
	// Topic receives a completion notification per task. Empty disables publishing.
	Topic string
}

// Notification is the payload published when a task finishes.
type Notification struct {
	TaskID     string             `json:"task_id"`
	Status     crawler.TaskStatus `json:"status"`
	Keyword    string             `json:"keyword"`
	Found      int                `json:"found"`
	Saved      int                `json:"saved"`
	DurationMs int64              `json:"duration_ms"`
	Message    string             `json:"message"`
	FinishedAt string             `json:"finished_at"`
}

// Worker consumes queue items and runs each as a crawl.
type Worker struct {
	queue     crawler.Queue
	tasks     crawler.TaskStore
	crawler   Crawler
	publisher crawler.Publisher
	clock     crawler.Clock
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Worker. publisher may be nil.
func New(
	queue crawler.Queue,
	tasks crawler.TaskStore,
	c Crawler,
	publisher crawler.Publisher,
	clock crawler.Clock,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:     queue,
		tasks:     tasks,
		crawler:   c,
		publisher: publisher,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run blocks, consuming queue items until the context finishes or the queue closes.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, crawler.ErrQueueClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued task", zap.String("task_id", item.TaskID))
		w.processTask(ctx, item)
	}
}

func (w *Worker) processTask(ctx context.Context, item crawler.QueueItem) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	if err := w.tasks.MarkRunning(ctx, item.TaskID, w.clock.Now()); err != nil {
		// The task may have been evicted from history; the crawl still runs.
		w.logger.Warn("mark task running failed", zap.String("task_id", item.TaskID), zap.Error(err))
	}

	result := w.crawler.Crawl(ctx, item.Request)
	status := crawler.TaskStatusSucceeded
	if !result.Completed() {
		status = crawler.TaskStatusFailed
	}
	finished := w.clock.Now()

	if err := w.tasks.Complete(ctx, item.TaskID, status, result, finished); err != nil {
		w.logger.Warn("complete task failed", zap.String("task_id", item.TaskID), zap.Error(err))
	}
	if err := w.publishResult(ctx, item.TaskID, status, result, finished); err != nil {
		w.logger.Error("publish task result failed", zap.String("task_id", item.TaskID), zap.Error(err))
	}
	w.logger.Info("task finished",
		zap.String("task_id", item.TaskID),
		zap.String("status", string(status)),
		zap.Int("found", result.Found),
		zap.Int("saved", result.Saved),
	)
}

func (w *Worker) publishResult(
	ctx context.Context,
	taskID string,
	status crawler.TaskStatus,
	result crawler.CrawlResult,
	finished time.Time,
) error {
	if w.cfg.Topic == "" || w.publisher == nil {
		return nil
	}
	payload := Notification{
		TaskID:     taskID,
		Status:     status,
		Keyword:    result.Keyword,
		Found:      result.Found,
		Saved:      result.Saved,
		DurationMs: result.DurationMs,
		Message:    result.Message,
		FinishedAt: finished.UTC().Format(time.RFC3339),
	}
	id, err := w.publisher.Publish(ctx, w.cfg.Topic, payload)
	if err != nil {
		return fmt.Errorf("publish payload: %w", err)
	}
	w.logger.Debug("task result published", zap.String("task_id", taskID), zap.String("message_id", id))
	return nil
}
