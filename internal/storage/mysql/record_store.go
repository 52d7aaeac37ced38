// Package mysql provides a gorm-backed MySQL record store.
package mysql

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	mysqldriver "gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/JakeFAU/literature-crawler/internal/crawler"
	"github.com/JakeFAU/literature-crawler/internal/hash/sha256"
	"github.com/JakeFAU/literature-crawler/internal/pipeline"
)

// Config captures the MySQL connection settings.
type Config struct {
	DSN      string
	DebugSQL bool
}

type recordRow struct {
	ID           string    `gorm:"primaryKey;type:char(36)"`
	Title        string    `gorm:"type:text;not null"`
	TitleHash    string    `gorm:"type:char(64);index;not null"`
	Authors      string    `gorm:"type:text"`
	Journal      string    `gorm:"type:varchar(512)"`
	PublishDate  string    `gorm:"type:varchar(32)"`
	Abstract     string    `gorm:"type:text"`
	Keywords     string    `gorm:"type:text"`
	SourceURL    string    `gorm:"type:varchar(1024)"`
	OriginSource string    `gorm:"type:varchar(64)"`
	Category     string    `gorm:"type:varchar(64)"`
	Status       string    `gorm:"type:varchar(16);index;not null"`
	CreatedAt    time.Time `gorm:"index"`
}

func (recordRow) TableName() string { return "literature_records" }

// Open connects to MySQL. SQL statements are logged through logger at Warn,
// or Info when DebugSQL is set.
func Open(cfg Config, log *zap.Logger) (*gorm.DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("storage.mysql.dsn is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	level := logger.Warn
	if cfg.DebugSQL {
		level = logger.Info
	}
	db, err := gorm.Open(mysqldriver.Open(cfg.DSN), &gorm.Config{
		Logger: logger.New(zapWriter{log.Named("gorm").Sugar()}, logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("connect mysql: %w", err)
	}
	return db, nil
}

type zapWriter struct{ s *zap.SugaredLogger }

func (w zapWriter) Printf(format string, args ...any) { w.s.Infof(format, args...) }

// RecordStore persists records in MySQL through gorm.
type RecordStore struct {
	db  *gorm.DB
	ids crawler.IDGenerator
}

// NewRecordStore wraps an open gorm handle.
func NewRecordStore(db *gorm.DB, ids crawler.IDGenerator) (*RecordStore, error) {
	if db == nil {
		return nil, fmt.Errorf("gorm db is required")
	}
	if ids == nil {
		return nil, fmt.Errorf("id generator is required")
	}
	return &RecordStore{db: db, ids: ids}, nil
}

// Migrate creates or updates the records table.
func (s *RecordStore) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&recordRow{}); err != nil {
		return fmt.Errorf("migrate records: %w", err)
	}
	return nil
}

// ExistsExact reports whether an active row shares the title fingerprint.
func (s *RecordStore) ExistsExact(ctx context.Context, normalizedTitle, authors string) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).
		Model(&recordRow{}).
		Where("title_hash = ? AND status <> ?", sha256.Fingerprint(normalizedTitle, authors), string(crawler.RecordStatusDeleted)).
		Limit(1).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("exists exact: %w", err)
	}
	return n > 0, nil
}

// RecentWindow returns up to limit active records, newest first.
func (s *RecordStore) RecentWindow(ctx context.Context, limit int) ([]crawler.Record, error) {
	if limit <= 0 {
		return nil, nil
	}
	var rows []recordRow
	err := s.db.WithContext(ctx).
		Where("status <> ?", string(crawler.RecordStatusDeleted)).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("recent window: %w", err)
	}
	out := make([]crawler.Record, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.record())
	}
	return out, nil
}

// Insert writes record and returns the generated ID.
func (s *RecordStore) Insert(ctx context.Context, record crawler.Record) (string, error) {
	id, err := s.ids.NewID()
	if err != nil {
		return "", fmt.Errorf("assign record id: %w", err)
	}
	row := newRow(id, record)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return "", fmt.Errorf("insert record: %w", err)
	}
	return id, nil
}

func newRow(id string, r crawler.Record) recordRow {
	status := r.Status
	if status == "" {
		status = crawler.RecordStatusActive
	}
	return recordRow{
		ID:           id,
		Title:        r.Title,
		TitleHash:    sha256.Fingerprint(pipeline.NormalizeTitle(r.Title), r.Authors),
		Authors:      r.Authors,
		Journal:      r.Journal,
		PublishDate:  r.PublishDate,
		Abstract:     r.AbstractText,
		Keywords:     r.Keywords,
		SourceURL:    r.SourceURL,
		OriginSource: r.OriginSource,
		Category:     r.Category,
		Status:       string(status),
		CreatedAt:    r.CreatedAt,
	}
}

func (row recordRow) record() crawler.Record {
	return crawler.Record{
		ID:           row.ID,
		Title:        row.Title,
		Authors:      row.Authors,
		Journal:      row.Journal,
		PublishDate:  row.PublishDate,
		AbstractText: row.Abstract,
		Keywords:     row.Keywords,
		SourceURL:    row.SourceURL,
		OriginSource: row.OriginSource,
		Category:     row.Category,
		Status:       crawler.RecordStatus(row.Status),
		CreatedAt:    row.CreatedAt,
	}
}
