package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/literature-crawler/internal/crawler"
)

// ExactLookup is the slice of the record store the deduplicator needs.
type ExactLookup interface {
	ExistsExact(ctx context.Context, normalizedTitle, authors string) (bool, error)
}

// Deduplicator drops records already seen in the batch or already persisted.
type Deduplicator struct {
	store  ExactLookup
	logger *zap.Logger
}

// NewDeduplicator builds a Deduplicator. A nil store skips the persisted check.
func NewDeduplicator(store ExactLookup, logger *zap.Logger) *Deduplicator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Deduplicator{store: store, logger: logger}
}

// Deduplicate returns survivors in arrival order. The first duplicate signal
// wins: in-batch URL, in-batch normalized title, then a persisted exact match.
func (d *Deduplicator) Deduplicate(ctx context.Context, records []crawler.Record) []crawler.Record {
	if len(records) == 0 {
		return nil
	}
	seenURLs := make(map[string]struct{}, len(records))
	seenTitles := make(map[string]struct{}, len(records))
	out := make([]crawler.Record, 0, len(records))

	for _, rec := range records {
		if rec.SourceURL != "" {
			if _, dup := seenURLs[rec.SourceURL]; dup {
				d.logger.Debug("duplicate url in batch", zap.String("url", rec.SourceURL))
				continue
			}
		}
		key := NormalizeTitle(rec.Title)
		if _, dup := seenTitles[key]; dup {
			d.logger.Debug("duplicate title in batch", zap.String("title", rec.Title))
			continue
		}
		if d.persisted(ctx, key, rec.Authors) {
			d.logger.Debug("record already persisted", zap.String("title", rec.Title))
			continue
		}
		seenTitles[key] = struct{}{}
		if rec.SourceURL != "" {
			seenURLs[rec.SourceURL] = struct{}{}
		}
		out = append(out, rec)
	}
	return out
}

func (d *Deduplicator) persisted(ctx context.Context, normalizedTitle, authors string) bool {
	if d.store == nil {
		return false
	}
	exists, err := d.store.ExistsExact(ctx, normalizedTitle, authors)
	if err != nil {
		// A lookup failure never drops a record.
		d.logger.Warn("persisted duplicate check failed", zap.Error(err))
		return false
	}
	return exists
}
