// Package dispatcher accepts crawl tasks and fans them out to workers.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/JakeFAU/literature-crawler/internal/crawler"
	"github.com/JakeFAU/literature-crawler/internal/worker"
)

// Dispatcher records submitted tasks and fans queue work out to a pool of workers.
type Dispatcher struct {
	queue   crawler.Queue
	tasks   crawler.TaskStore
	ids     crawler.IDGenerator
	clock   crawler.Clock
	workers []*worker.Worker
}

// New creates a Dispatcher.
func New(
	queue crawler.Queue,
	tasks crawler.TaskStore,
	ids crawler.IDGenerator,
	clock crawler.Clock,
	workers []*worker.Worker,
) *Dispatcher {
	return &Dispatcher{
		queue:   queue,
		tasks:   tasks,
		ids:     ids,
		clock:   clock,
		workers: workers,
	}
}

// Run starts all workers and blocks until the context finishes.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	<-ctx.Done()
	wg.Wait()
}

// Submit stores a queued task for req and enqueues it. A task that cannot be
// enqueued is kept in history as failed.
func (d *Dispatcher) Submit(ctx context.Context, req crawler.CrawlRequest) (crawler.Task, error) {
	if strings.TrimSpace(req.Keyword) == "" {
		return crawler.Task{}, errors.New("keyword is required")
	}
	if req.MaxResults == 0 {
		req.MaxResults = crawler.DefaultMaxResults
	}
	id, err := d.ids.NewID()
	if err != nil {
		return crawler.Task{}, fmt.Errorf("task id: %w", err)
	}
	task := crawler.Task{
		ID:        id,
		Status:    crawler.TaskStatusQueued,
		Request:   req,
		Submitted: d.clock.Now(),
	}
	if err := d.tasks.CreateTask(ctx, task); err != nil {
		return crawler.Task{}, fmt.Errorf("create task: %w", err)
	}
	if err := d.Enqueue(ctx, crawler.QueueItem{
		TaskID:    id,
		Request:   req,
		Submitted: task.Submitted.UnixMilli(),
	}); err != nil {
		result := crawler.CrawlResult{Keyword: req.Keyword, Message: "crawl failed: " + err.Error()}
		if cerr := d.tasks.Complete(ctx, id, crawler.TaskStatusFailed, result, d.clock.Now()); cerr != nil {
			return crawler.Task{}, errors.Join(err, cerr)
		}
		return crawler.Task{}, err
	}
	return task, nil
}

// Enqueue proxies to the underlying queue.
func (d *Dispatcher) Enqueue(ctx context.Context, item crawler.QueueItem) error {
	if err := d.queue.Enqueue(ctx, item); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}
