package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/literature-crawler/internal/crawler"
)

// DefaultRecentWindow is how many persisted records a near-duplicate check scans.
const DefaultRecentWindow = 100

// WindowLookup is the slice of the record store the near-duplicate check needs.
type WindowLookup interface {
	ExactLookup
	RecentWindow(ctx context.Context, limit int) ([]crawler.Record, error)
}

// NearDuplicateChecker compares a candidate against the most recent persisted
// records using the combined title similarity score.
type NearDuplicateChecker struct {
	store     WindowLookup
	threshold float64
	window    int
	logger    *zap.Logger
}

// NewNearDuplicateChecker builds a checker. Non-positive threshold or window
// fall back to 0.85 and 100.
func NewNearDuplicateChecker(store WindowLookup, threshold float64, window int, logger *zap.Logger) *NearDuplicateChecker {
	if threshold <= 0 {
		threshold = DefaultNearDupScore
	}
	if window <= 0 {
		window = DefaultRecentWindow
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NearDuplicateChecker{store: store, threshold: threshold, window: window, logger: logger}
}

// Threshold reports the similarity score treated as a duplicate.
func (c *NearDuplicateChecker) Threshold() float64 { return c.threshold }

// IsDuplicate reports whether rec matches a persisted record exactly or closely.
// Store errors are logged and allow the insert.
func (c *NearDuplicateChecker) IsDuplicate(ctx context.Context, rec crawler.Record) bool {
	exists, err := c.store.ExistsExact(ctx, NormalizeTitle(rec.Title), rec.Authors)
	if err != nil {
		c.logger.Warn("exact duplicate lookup failed", zap.Error(err))
		return false
	}
	if exists {
		return true
	}
	recent, err := c.store.RecentWindow(ctx, c.window)
	if err != nil {
		c.logger.Warn("recent window lookup failed", zap.Error(err))
		return false
	}
	for _, prior := range recent {
		if !QuickCheck(rec.Title, prior.Title) {
			continue
		}
		if IsSimilar(rec.Title, prior.Title, c.threshold) {
			c.logger.Debug("near duplicate found",
				zap.String("title", rec.Title),
				zap.String("existing", prior.Title),
			)
			return true
		}
	}
	return false
}
