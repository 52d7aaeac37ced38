package crawler

import (
	"net/http"
	"strings"
	"time"
)

// RecordStatus marks whether a persisted record is visible.
type RecordStatus string

// Record status values.
const (
	RecordStatusActive  RecordStatus = "active"
	RecordStatusDeleted RecordStatus = "deleted"
)

// Record is a single bibliographic item produced by a source adapter.
type Record struct {
	ID           string       `json:"id,omitempty"`
	Title        string       `json:"title"`
	Authors      string       `json:"authors"`
	Journal      string       `json:"journal"`
	PublishDate  string       `json:"publish_date"`
	AbstractText string       `json:"abstract"`
	Keywords     string       `json:"keywords"`
	SourceURL    string       `json:"source_url"`
	OriginSource string       `json:"origin_source"`
	Category     string       `json:"category,omitempty"`
	Status       RecordStatus `json:"status"`
	CreatedAt    time.Time    `json:"created_at"`
}

// DefaultMaxResults is applied when a request leaves MaxResults unset.
const DefaultMaxResults = 10

// CrawlRequest describes one keyword-bounded crawl.
type CrawlRequest struct {
	Keyword         string   `json:"keyword"`
	MaxResults      int      `json:"max_results"`
	Sources         []string `json:"sources,omitempty"`
	ClassifyEnabled bool     `json:"classify_enabled"`
}

// CrawlResult is the outcome of a crawl. It is always well formed, even on failure.
type CrawlResult struct {
	Keyword     string         `json:"keyword" yaml:"keyword"`
	Found       int            `json:"found" yaml:"found"`
	Saved       int            `json:"saved" yaml:"saved"`
	DurationMs  int64          `json:"duration_ms" yaml:"duration_ms"`
	Message     string         `json:"message" yaml:"message"`
	SourceStats map[string]int `json:"source_stats,omitempty" yaml:"source_stats,omitempty"`
}

// CleanSourceNames lowercases and trims source names and drops blanks.
func CleanSourceNames(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// CompletedPrefix starts the message of every crawl that ran to the end of
// the pipeline.
const CompletedPrefix = "crawl completed"

// Completed reports whether the crawl ran to the end of the pipeline. Disabled,
// rejected and failed crawls report false.
func (r CrawlResult) Completed() bool {
	return strings.HasPrefix(r.Message, CompletedPrefix)
}

// TPS reports saved records per second, or zero when no time elapsed.
func (r CrawlResult) TPS() float64 {
	if r.DurationMs <= 0 {
		return 0
	}
	return float64(r.Saved) * 1000 / float64(r.DurationMs)
}

// SourceStatus is the live view of one adapter. It is never persisted.
type SourceStatus struct {
	Name      string `json:"name"`
	Enabled   bool   `json:"enabled"`
	Available bool   `json:"available"`
}

// Status is returned by the orchestrator status query.
type Status struct {
	Enabled            bool            `json:"enabled"`
	Sources            []string        `json:"sources"`
	ClassifyEnabled    bool            `json:"classify_enabled"`
	MaxPerSource       int             `json:"max_per_source"`
	SourceAvailability map[string]bool `json:"source_availability"`
	SourceStatuses     []SourceStatus  `json:"source_statuses"`
}

// FetchRequest captures everything an HTTP fetcher needs for one call.
type FetchRequest struct {
	URL     string
	Headers http.Header
	Timeout time.Duration
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// TaskStatus represents the lifecycle of an asynchronous crawl task.
type TaskStatus string

// Task status values.
const (
	TaskStatusQueued    TaskStatus = "queued"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusSucceeded TaskStatus = "succeeded"
	TaskStatusFailed    TaskStatus = "failed"
)

// Task tracks a crawl submitted for background execution.
type Task struct {
	ID        string       `json:"id"`
	Status    TaskStatus   `json:"status"`
	Request   CrawlRequest `json:"request"`
	Submitted time.Time    `json:"submitted_at"`
	Started   *time.Time   `json:"started_at,omitempty"`
	Finished  *time.Time   `json:"finished_at,omitempty"`
	Result    *CrawlResult `json:"result,omitempty"`
}

// QueueItem wraps a task ready to run.
type QueueItem struct {
	TaskID    string
	Request   CrawlRequest
	Submitted int64
}
