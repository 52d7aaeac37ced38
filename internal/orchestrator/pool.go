package orchestrator

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"

	"github.com/JakeFAU/literature-crawler/internal/metrics"
)

// Pool bounds concurrent adapter calls across every crawl that shares it.
type Pool struct {
	sem  *semaphore.Weighted
	size int
}

// NewPool creates a pool with size slots; size <= 0 uses DefaultPoolSize.
func NewPool(size int) *Pool {
	if size <= 0 {
		size = DefaultPoolSize
	}
	return &Pool{sem: semaphore.NewWeighted(int64(size)), size: size}
}

// Size reports the number of slots.
func (p *Pool) Size() int { return p.size }

// Acquire blocks until a slot frees up or ctx ends.
func (p *Pool) Acquire(ctx context.Context) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquire pool slot: %w", err)
	}
	metrics.IncPoolInUse()
	return nil
}

// Release returns a slot taken by Acquire.
func (p *Pool) Release() {
	metrics.DecPoolInUse()
	p.sem.Release(1)
}
