package postgres

import (
	"context"
	"fmt"

	"github.com/JakeFAU/literature-crawler/internal/crawler"
	"github.com/JakeFAU/literature-crawler/internal/hash/sha256"
	"github.com/JakeFAU/literature-crawler/internal/pipeline"
)

// DefaultRecordTable is used when Config.RecordTable is empty.
const DefaultRecordTable = "literature_records"

const deletedStatus = string(crawler.RecordStatusDeleted)

const recordColumns = `id, title, authors, journal, publish_date, abstract, keywords,
	source_url, origin_source, category, status, created_at`

// RecordStore persists literature records. Exact duplicate lookups go
// through the indexed title_hash column.
type RecordStore struct {
	db    querier
	ids   crawler.IDGenerator
	table string
}

// NewRecordStore wraps db, which is usually a *pgxpool.Pool.
func NewRecordStore(db querier, ids crawler.IDGenerator, table string) (*RecordStore, error) {
	if db == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if ids == nil {
		return nil, fmt.Errorf("id generator is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &RecordStore{db: db, ids: ids, table: name}, nil
}

// ExistsExact reports whether an active row shares the title fingerprint.
func (s *RecordStore) ExistsExact(ctx context.Context, normalizedTitle, authors string) (bool, error) {
	query := fmt.Sprintf(
		`SELECT EXISTS (SELECT 1 FROM %s WHERE title_hash = $1 AND status <> $2)`, s.table)
	var exists bool
	err := s.db.QueryRow(ctx, query, sha256.Fingerprint(normalizedTitle, authors), deletedStatus).
		Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("exists exact: %w", err)
	}
	return exists, nil
}

// RecentWindow returns up to limit active records, newest first.
func (s *RecordStore) RecentWindow(ctx context.Context, limit int) ([]crawler.Record, error) {
	if limit <= 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE status <> $1 ORDER BY created_at DESC LIMIT $2`,
		recordColumns, s.table)
	rows, err := s.db.Query(ctx, query, deletedStatus, limit)
	if err != nil {
		return nil, fmt.Errorf("recent window: %w", err)
	}
	defer rows.Close()

	var out []crawler.Record
	for rows.Next() {
		var (
			rec    crawler.Record
			status string
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.Title,
			&rec.Authors,
			&rec.Journal,
			&rec.PublishDate,
			&rec.AbstractText,
			&rec.Keywords,
			&rec.SourceURL,
			&rec.OriginSource,
			&rec.Category,
			&status,
			&rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan record row: %w", err)
		}
		rec.Status = crawler.RecordStatus(status)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("recent window rows: %w", err)
	}
	return out, nil
}

// Insert writes record and returns the generated ID.
func (s *RecordStore) Insert(ctx context.Context, record crawler.Record) (string, error) {
	id, err := s.ids.NewID()
	if err != nil {
		return "", fmt.Errorf("assign record id: %w", err)
	}
	status := record.Status
	if status == "" {
		status = crawler.RecordStatusActive
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id, title, title_hash, authors, journal, publish_date, abstract, keywords,
	source_url, origin_source, category, status, created_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13
)`, s.table)

	args := []any{
		id,
		record.Title,
		sha256.Fingerprint(pipeline.NormalizeTitle(record.Title), record.Authors),
		record.Authors,
		record.Journal,
		record.PublishDate,
		record.AbstractText,
		record.Keywords,
		record.SourceURL,
		record.OriginSource,
		record.Category,
		string(status),
		record.CreatedAt,
	}
	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		return "", fmt.Errorf("insert record: %w", err)
	}
	return id, nil
}
