package crawler

import (
	"context"
	"time"
)

// SourceAdapter fetches records for a keyword from one external source.
type SourceAdapter interface {
	Name() string
	Fetch(ctx context.Context, keyword string, maxResults int) ([]Record, error)
	// IsAvailable runs a cheap probe and reports false on any error.
	IsAvailable(ctx context.Context) bool
}

// RecordStore persists records and answers duplicate lookups.
type RecordStore interface {
	ExistsExact(ctx context.Context, normalizedTitle, authors string) (bool, error)
	RecentWindow(ctx context.Context, limit int) ([]Record, error)
	Insert(ctx context.Context, record Record) (string, error)
}

// MetricsRecorder receives crawl outcomes.
type MetricsRecorder interface {
	RecordSuccess(keyword, source string, start time.Time, found, saved int)
	RecordFailure(keyword, source string, start time.Time, reason string)
}

// Classifier assigns a category to a record.
type Classifier interface {
	Classify(record Record) (string, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// RateLimiter blocks until a request to url may proceed.
type RateLimiter interface {
	Wait(ctx context.Context, url string) error
}

// TaskStore keeps the bounded history of asynchronous crawl tasks.
type TaskStore interface {
	CreateTask(ctx context.Context, task Task) error
	MarkRunning(ctx context.Context, taskID string, started time.Time) error
	Complete(ctx context.Context, taskID string, status TaskStatus, result CrawlResult, finished time.Time) error
	GetTask(ctx context.Context, taskID string) (Task, error)
	ListTasks(ctx context.Context) ([]Task, error)
}

// Queue provides enqueue/dequeue semantics for crawl tasks.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces record and task IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
