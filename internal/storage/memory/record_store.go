package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/literature-crawler/internal/crawler"
	"github.com/JakeFAU/literature-crawler/internal/hash/sha256"
	"github.com/JakeFAU/literature-crawler/internal/id/uuid"
	"github.com/JakeFAU/literature-crawler/internal/pipeline"
)

// RecordStore keeps persisted records in insertion order with a fingerprint
// index for exact duplicate lookups.
type RecordStore struct {
	mu      sync.RWMutex
	ids     crawler.IDGenerator
	records []crawler.Record
	index   map[string]int
}

// NewRecordStore builds an empty store. A nil generator uses UUID v7.
func NewRecordStore(ids crawler.IDGenerator) *RecordStore {
	if ids == nil {
		ids = uuid.New()
	}
	return &RecordStore{ids: ids, index: make(map[string]int)}
}

// ExistsExact reports whether an active record has the same normalized title
// and authors.
func (s *RecordStore) ExistsExact(_ context.Context, normalizedTitle, authors string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[sha256.Fingerprint(normalizedTitle, authors)]
	if !ok {
		return false, nil
	}
	return s.records[i].Status != crawler.RecordStatusDeleted, nil
}

// RecentWindow returns up to limit active records, newest first.
func (s *RecordStore) RecentWindow(_ context.Context, limit int) ([]crawler.Record, error) {
	if limit <= 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]crawler.Record, 0, min(limit, len(s.records)))
	for i := len(s.records) - 1; i >= 0 && len(out) < limit; i-- {
		if s.records[i].Status == crawler.RecordStatusDeleted {
			continue
		}
		out = append(out, s.records[i])
	}
	return out, nil
}

// Insert stores record and returns its assigned ID.
func (s *RecordStore) Insert(_ context.Context, record crawler.Record) (string, error) {
	id, err := s.ids.NewID()
	if err != nil {
		return "", fmt.Errorf("assign record id: %w", err)
	}
	record.ID = id
	if record.Status == "" {
		record.Status = crawler.RecordStatusActive
	}
	key := sha256.Fingerprint(pipeline.NormalizeTitle(record.Title), record.Authors)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.index[key] = len(s.records)
	s.records = append(s.records, record)
	return id, nil
}

// Len reports how many records were inserted.
func (s *RecordStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
