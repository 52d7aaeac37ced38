// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Crawler  CrawlerConfig  `mapstructure:"crawler"`
	Dedup    DedupConfig    `mapstructure:"dedup"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Tasks    TasksConfig    `mapstructure:"tasks"`
	Progress ProgressConfig `mapstructure:"progress"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                   int `mapstructure:"port"`
	RequestTimeoutSeconds  int `mapstructure:"request_timeout_seconds"`
	ShutdownTimeoutSeconds int `mapstructure:"shutdown_timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// SourceConfig is one entry of crawler.source_configs.
type SourceConfig struct {
	APIURL     string `mapstructure:"api_url"`
	Enabled    bool   `mapstructure:"enabled"`
	MaxResults int    `mapstructure:"max_results"`
}

// CrawlerConfig governs source selection and the fan-out policy.
type CrawlerConfig struct {
	Enabled            bool                    `mapstructure:"enabled"`
	Sources            []string                `mapstructure:"sources"`
	MaxPerSource       int                     `mapstructure:"max_per_source"`
	ClassifyEnabled    bool                    `mapstructure:"classify_enabled"`
	Parallel           bool                    `mapstructure:"parallel"`
	RequestTimeoutMs   int                     `mapstructure:"request_timeout_ms"`
	RetryAttempts      int                     `mapstructure:"retry_attempts"`
	RetryDelayMs       int                     `mapstructure:"retry_delay_ms"`
	PoolSize           int                     `mapstructure:"pool_size"`
	TaskTimeoutSeconds int                     `mapstructure:"task_timeout_seconds"`
	UserAgent          string                  `mapstructure:"user_agent"`
	RatePerSecond      float64                 `mapstructure:"rate_per_second"`
	RateBurst          int                     `mapstructure:"rate_burst"`
	SourceConfigs      map[string]SourceConfig `mapstructure:"source_configs"`
}

// DedupConfig tunes the near-duplicate check run before each insert.
type DedupConfig struct {
	NearDuplicateThreshold float64 `mapstructure:"near_duplicate_threshold"`
	RecentWindow           int     `mapstructure:"recent_window"`
}

// PostgresConfig controls the pgx pool.
type PostgresConfig struct {
	DSN         string `mapstructure:"dsn"`
	RecordTable string `mapstructure:"record_table"`
	MaxConns    int32  `mapstructure:"max_conns"`
	MinConns    int32  `mapstructure:"min_conns"`
	Migrate     bool   `mapstructure:"migrate"`
}

// MySQLConfig controls the gorm connection.
type MySQLConfig struct {
	DSN      string `mapstructure:"dsn"`
	DebugSQL bool   `mapstructure:"debug_sql"`
	Migrate  bool   `mapstructure:"migrate"`
}

// MongoConfig controls the MongoDB client.
type MongoConfig struct {
	URI        string `mapstructure:"uri"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
}

// StorageConfig selects the record store backend.
type StorageConfig struct {
	Backend  string         `mapstructure:"backend"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	MySQL    MySQLConfig    `mapstructure:"mysql"`
	Mongo    MongoConfig    `mapstructure:"mongo"`
}

// ArchiveConfig selects where raw source responses are kept.
type ArchiveConfig struct {
	Backend string `mapstructure:"backend"`
	Bucket  string `mapstructure:"bucket"`
	Dir     string `mapstructure:"dir"`
	Prefix  string `mapstructure:"prefix"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// TasksConfig sizes the async task queue and history.
type TasksConfig struct {
	QueueDepth  int `mapstructure:"queue_depth"`
	Workers     int `mapstructure:"workers"`
	HistorySize int `mapstructure:"history_size"`
}

// ProgressConfig tunes the progress hub.
type ProgressConfig struct {
	BufferSize      int `mapstructure:"buffer_size"`
	BatchMax        int `mapstructure:"batch_max"`
	BatchIntervalMs int `mapstructure:"batch_interval_ms"`
}

// TracingConfig toggles the OpenTelemetry tracer provider.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 120)
	v.SetDefault("server.shutdown_timeout_seconds", 10)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")

	v.SetDefault("crawler.enabled", true)
	v.SetDefault("crawler.sources", []string{"arxiv", "pubmed"})
	v.SetDefault("crawler.max_per_source", 20)
	v.SetDefault("crawler.classify_enabled", false)
	v.SetDefault("crawler.parallel", false)
	v.SetDefault("crawler.request_timeout_ms", 30000)
	v.SetDefault("crawler.retry_attempts", 3)
	v.SetDefault("crawler.retry_delay_ms", 2000)
	v.SetDefault("crawler.pool_size", 4)
	v.SetDefault("crawler.task_timeout_seconds", 30)
	v.SetDefault("crawler.user_agent", "litcrawler/0.1 (+https://github.com/JakeFAU/literature-crawler)")
	v.SetDefault("crawler.rate_per_second", 1.0)
	v.SetDefault("crawler.rate_burst", 1)
	v.SetDefault("crawler.source_configs.arxiv.api_url", "http://export.arxiv.org/api/query")
	v.SetDefault("crawler.source_configs.arxiv.enabled", true)
	v.SetDefault("crawler.source_configs.arxiv.max_results", 15)
	v.SetDefault("crawler.source_configs.pubmed.api_url", "https://eutils.ncbi.nlm.nih.gov/entrez/eutils")
	v.SetDefault("crawler.source_configs.pubmed.enabled", true)
	v.SetDefault("crawler.source_configs.pubmed.max_results", 10)
	v.SetDefault("crawler.source_configs.biorxiv.api_url", "https://api.biorxiv.org")
	v.SetDefault("crawler.source_configs.biorxiv.enabled", false)
	v.SetDefault("crawler.source_configs.biorxiv.max_results", 10)
	v.SetDefault("crawler.source_configs.mock.enabled", false)
	v.SetDefault("crawler.source_configs.mock.max_results", 10)

	v.SetDefault("dedup.near_duplicate_threshold", 0.85)
	v.SetDefault("dedup.recent_window", 100)

	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.postgres.record_table", "literature_records")
	v.SetDefault("storage.postgres.migrate", true)
	v.SetDefault("storage.mysql.migrate", true)
	v.SetDefault("storage.mongo.database", "literature")
	v.SetDefault("storage.mongo.collection", "records")

	v.SetDefault("archive.backend", "none")
	v.SetDefault("archive.prefix", "raw")

	v.SetDefault("tasks.queue_depth", 64)
	v.SetDefault("tasks.workers", 2)
	v.SetDefault("tasks.history_size", 100)

	v.SetDefault("progress.buffer_size", 1024)
	v.SetDefault("progress.batch_max", 256)
	v.SetDefault("progress.batch_interval_ms", 500)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "litcrawler")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Crawler.MaxPerSource <= 0 {
		return fmt.Errorf("crawler.max_per_source must be > 0")
	}
	if c.Crawler.PoolSize <= 0 {
		return fmt.Errorf("crawler.pool_size must be > 0")
	}
	if c.Crawler.RequestTimeoutMs <= 0 {
		return fmt.Errorf("crawler.request_timeout_ms must be > 0")
	}
	if c.Crawler.RetryAttempts < 1 {
		return fmt.Errorf("crawler.retry_attempts must be >= 1")
	}
	if c.Crawler.RetryDelayMs < 0 {
		return fmt.Errorf("crawler.retry_delay_ms must be >= 0")
	}
	if c.Dedup.NearDuplicateThreshold < 0 || c.Dedup.NearDuplicateThreshold > 1 {
		return fmt.Errorf("dedup.near_duplicate_threshold must be within [0, 1]")
	}
	if err := c.Storage.validate(); err != nil {
		return err
	}
	if err := c.Archive.validate(); err != nil {
		return err
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic_name is set")
	}
	if c.Tasks.Workers <= 0 || c.Tasks.QueueDepth <= 0 {
		return fmt.Errorf("tasks.workers and tasks.queue_depth must be > 0")
	}
	return nil
}

func (s StorageConfig) validate() error {
	switch s.Backend {
	case "memory":
	case "postgres":
		if s.Postgres.DSN == "" {
			return fmt.Errorf("storage.postgres.dsn is required for the postgres backend")
		}
	case "mysql":
		if s.MySQL.DSN == "" {
			return fmt.Errorf("storage.mysql.dsn is required for the mysql backend")
		}
	case "mongo":
		if s.Mongo.URI == "" {
			return fmt.Errorf("storage.mongo.uri is required for the mongo backend")
		}
	default:
		return fmt.Errorf("unknown storage.backend %q", s.Backend)
	}
	return nil
}

func (a ArchiveConfig) validate() error {
	switch a.Backend {
	case "none", "memory":
	case "local":
		if a.Dir == "" {
			return fmt.Errorf("archive.dir is required for the local backend")
		}
	case "gcs":
		if a.Bucket == "" {
			return fmt.Errorf("archive.bucket is required for the gcs backend")
		}
	default:
		return fmt.Errorf("unknown archive.backend %q", a.Backend)
	}
	return nil
}

// RequestTimeout bounds a single adapter HTTP call.
func (c CrawlerConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMs) * time.Millisecond
}

// InterSourceDelay is the sequential-mode pause between sources.
func (c CrawlerConfig) InterSourceDelay() time.Duration {
	return time.Duration(c.RetryDelayMs) * time.Millisecond
}

// TaskTimeout bounds one parallel adapter task.
func (c CrawlerConfig) TaskTimeout() time.Duration {
	return time.Duration(c.TaskTimeoutSeconds) * time.Second
}

// BatchInterval is the progress hub flush interval.
func (c ProgressConfig) BatchInterval() time.Duration {
	return time.Duration(c.BatchIntervalMs) * time.Millisecond
}
