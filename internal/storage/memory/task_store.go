package memory

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/literature-crawler/internal/crawler"
)

// DefaultTaskHistory bounds the task store when no size is configured.
const DefaultTaskHistory = 100

// TaskStore keeps the most recently submitted tasks. Once full, the oldest
// submission is evicted.
type TaskStore struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	tasks    map[string]*list.Element
}

// NewTaskStore constructs a TaskStore holding at most capacity tasks.
func NewTaskStore(capacity int) *TaskStore {
	if capacity <= 0 {
		capacity = DefaultTaskHistory
	}
	return &TaskStore{
		capacity: capacity,
		order:    list.New(),
		tasks:    make(map[string]*list.Element),
	}
}

// CreateTask stores a new task in queued status.
func (s *TaskStore) CreateTask(_ context.Context, task crawler.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[task.ID]; exists {
		return fmt.Errorf("%s: %w", task.ID, crawler.ErrTaskExists)
	}
	if task.Status == "" {
		task.Status = crawler.TaskStatusQueued
	}
	s.tasks[task.ID] = s.order.PushFront(&task)
	for s.order.Len() > s.capacity {
		oldest := s.order.Back()
		s.order.Remove(oldest)
		delete(s.tasks, oldest.Value.(*crawler.Task).ID)
	}
	return nil
}

// MarkRunning moves a task to running.
func (s *TaskStore) MarkRunning(_ context.Context, taskID string, started time.Time) error {
	return s.update(taskID, func(t *crawler.Task) {
		t.Status = crawler.TaskStatusRunning
		t.Started = pointerTime(started)
	})
}

// Complete records the terminal status and crawl result.
func (s *TaskStore) Complete(
	_ context.Context,
	taskID string,
	status crawler.TaskStatus,
	result crawler.CrawlResult,
	finished time.Time,
) error {
	return s.update(taskID, func(t *crawler.Task) {
		t.Status = status
		t.Result = &result
		t.Finished = pointerTime(finished)
	})
}

// GetTask fetches a task by ID.
func (s *TaskStore) GetTask(_ context.Context, taskID string) (crawler.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	el, ok := s.tasks[taskID]
	if !ok {
		return crawler.Task{}, fmt.Errorf("%s: %w", taskID, crawler.ErrTaskNotFound)
	}
	return *el.Value.(*crawler.Task), nil
}

// ListTasks returns the retained tasks, newest submission first.
func (s *TaskStore) ListTasks(_ context.Context) ([]crawler.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]crawler.Task, 0, s.order.Len())
	for el := s.order.Front(); el != nil; el = el.Next() {
		out = append(out, *el.Value.(*crawler.Task))
	}
	return out, nil
}

func (s *TaskStore) update(taskID string, fn func(*crawler.Task)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	el, ok := s.tasks[taskID]
	if !ok {
		return fmt.Errorf("%s: %w", taskID, crawler.ErrTaskNotFound)
	}
	fn(el.Value.(*crawler.Task))
	return nil
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}
