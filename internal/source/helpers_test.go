package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	collyfetcher "github.com/JakeFAU/literature-crawler/internal/fetcher/colly"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type noPause struct{}

func (noPause) Pause(context.Context, time.Duration) {}

type staticIDs struct{ id string }

func (s staticIDs) NewID() (string, error) { return s.id, nil }

type memoryArchive struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func newMemoryArchive() *memoryArchive {
	return &memoryArchive{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memoryArchive) PutObject(_ context.Context, path, contentType string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[path] = append([]byte(nil), data...)
	m.types[path] = contentType
	return "memory://" + path, nil
}

func newTestClient(t *testing.T, opts ...ClientOption) *Client {
	t.Helper()
	fetcher := collyfetcher.New(collyfetcher.Config{UserAgent: "litcrawler-test", Timeout: 2 * time.Second})
	return NewClient(fetcher, ClientConfig{UserAgent: "litcrawler-test", RequestTimeout: 2 * time.Second}, zap.NewNop(), opts...)
}

func newServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}
