// Package mongo provides a MongoDB record store.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/JakeFAU/literature-crawler/internal/crawler"
	"github.com/JakeFAU/literature-crawler/internal/hash/sha256"
	"github.com/JakeFAU/literature-crawler/internal/pipeline"
)

// Config captures the MongoDB connection settings.
type Config struct {
	URI        string
	Database   string
	Collection string
}

// Open connects and pings the server.
func Open(ctx context.Context, cfg Config) (*mongo.Client, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("storage.mongo.uri is required")
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, nil
}

type recordDoc struct {
	ID           string    `bson:"_id"`
	Title        string    `bson:"title"`
	TitleHash    string    `bson:"title_hash"`
	Authors      string    `bson:"authors"`
	Journal      string    `bson:"journal"`
	PublishDate  string    `bson:"publish_date"`
	Abstract     string    `bson:"abstract"`
	Keywords     string    `bson:"keywords"`
	SourceURL    string    `bson:"source_url"`
	OriginSource string    `bson:"origin_source"`
	Category     string    `bson:"category,omitempty"`
	Status       string    `bson:"status"`
	CreatedAt    time.Time `bson:"created_at"`
}

// RecordStore persists records as documents keyed by record ID.
type RecordStore struct {
	coll *mongo.Collection
	ids  crawler.IDGenerator
}

// NewRecordStore wraps a collection.
func NewRecordStore(coll *mongo.Collection, ids crawler.IDGenerator) (*RecordStore, error) {
	if coll == nil {
		return nil, fmt.Errorf("collection is required")
	}
	if ids == nil {
		return nil, fmt.Errorf("id generator is required")
	}
	return &RecordStore{coll: coll, ids: ids}, nil
}

// EnsureIndexes creates the fingerprint and recency indexes.
func (s *RecordStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "title_hash", Value: 1}}},
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("create indexes: %w", err)
	}
	return nil
}

// ExistsExact reports whether an active document shares the title fingerprint.
func (s *RecordStore) ExistsExact(ctx context.Context, normalizedTitle, authors string) (bool, error) {
	filter := bson.M{
		"title_hash": sha256.Fingerprint(normalizedTitle, authors),
		"status":     bson.M{"$ne": string(crawler.RecordStatusDeleted)},
	}
	opts := options.FindOne().SetProjection(bson.M{"_id": 1})
	var hit struct {
		ID string `bson:"_id"`
	}
	err := s.coll.FindOne(ctx, filter, opts).Decode(&hit)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("exists exact: %w", err)
	}
	return true, nil
}

// RecentWindow returns up to limit active records, newest first.
func (s *RecordStore) RecentWindow(ctx context.Context, limit int) ([]crawler.Record, error) {
	if limit <= 0 {
		return nil, nil
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit))
	cursor, err := s.coll.Find(ctx, bson.M{"status": bson.M{"$ne": string(crawler.RecordStatusDeleted)}}, opts)
	if err != nil {
		return nil, fmt.Errorf("recent window: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []recordDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	out := make([]crawler.Record, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.record())
	}
	return out, nil
}

// Insert writes record and returns the generated ID.
func (s *RecordStore) Insert(ctx context.Context, record crawler.Record) (string, error) {
	id, err := s.ids.NewID()
	if err != nil {
		return "", fmt.Errorf("assign record id: %w", err)
	}
	if _, err := s.coll.InsertOne(ctx, newDoc(id, record)); err != nil {
		return "", fmt.Errorf("insert record: %w", err)
	}
	return id, nil
}

func newDoc(id string, r crawler.Record) recordDoc {
	status := r.Status
	if status == "" {
		status = crawler.RecordStatusActive
	}
	return recordDoc{
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
		CreatedAt:    r.CreatedAt.UTC(),
	}
}

func (d recordDoc) record() crawler.Record {
	return crawler.Record{
		ID:           d.ID,
		Title:        d.Title,
		Authors:      d.Authors,
		Journal:      d.Journal,
		PublishDate:  d.PublishDate,
		AbstractText: d.Abstract,
		Keywords:     d.Keywords,
		SourceURL:    d.SourceURL,
		OriginSource: d.OriginSource,
		Category:     d.Category,
		Status:       crawler.RecordStatus(d.Status),
		CreatedAt:    d.CreatedAt,
	}
}
