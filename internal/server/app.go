// Package server builds the application's dependency graph from config and
// runs the HTTP service.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/JakeFAU/literature-crawler/internal/api"
	"github.com/JakeFAU/literature-crawler/internal/classify"
	"github.com/JakeFAU/literature-crawler/internal/clock/system"
	"github.com/JakeFAU/literature-crawler/internal/config"
	"github.com/JakeFAU/literature-crawler/internal/crawler"
	"github.com/JakeFAU/literature-crawler/internal/crawlstats"
	"github.com/JakeFAU/literature-crawler/internal/dispatcher"
	collyfetcher "github.com/JakeFAU/literature-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/literature-crawler/internal/id/uuid"
	"github.com/JakeFAU/literature-crawler/internal/orchestrator"
	"github.com/JakeFAU/literature-crawler/internal/pipeline"
	"github.com/JakeFAU/literature-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/literature-crawler/internal/progress"
	progresssinks "github.com/JakeFAU/literature-crawler/internal/progress/sinks"
	memorypublisher "github.com/JakeFAU/literature-crawler/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/literature-crawler/internal/publisher/pubsub"
	queueMemory "github.com/JakeFAU/literature-crawler/internal/queue/memory"
	"github.com/JakeFAU/literature-crawler/internal/source"
	gcsstorage "github.com/JakeFAU/literature-crawler/internal/storage/gcs"
	localstorage "github.com/JakeFAU/literature-crawler/internal/storage/local"
	memoryStorage "github.com/JakeFAU/literature-crawler/internal/storage/memory"
	mongostore "github.com/JakeFAU/literature-crawler/internal/storage/mongo"
	mysqlstore "github.com/JakeFAU/literature-crawler/internal/storage/mysql"
	pgstore "github.com/JakeFAU/literature-crawler/internal/storage/postgres"
	"github.com/JakeFAU/literature-crawler/internal/store"
	"github.com/JakeFAU/literature-crawler/internal/telemetry"
	"github.com/JakeFAU/literature-crawler/internal/worker"
)

// eutils allows three requests per second without an API key.
const pubmedHost = "eutils.ncbi.nlm.nih.gov"

// App contains the application's dependencies.
type App struct {
	closeOnce       sync.Once
	cfg             config.Config
	logger          *zap.Logger
	clock           crawler.Clock
	ids             crawler.IDGenerator
	apiServer       *api.Server
	orchestrator    *orchestrator.Orchestrator
	stats           *crawlstats.Aggregator
	dispatch        *dispatcher.Dispatcher
	progressHub     *progress.Hub
	queue           *queueMemory.Queue
	records         crawler.RecordStore
	runRepo         store.RunRepository
	pgPool          *pgxpool.Pool
	mysqlDB         *gorm.DB
	mongoClient     *mongo.Client
	pubsubClient    *pubsub.Client
	pubsubPublisher *gcppublisher.Publisher
	storage         *storage.Client
	tracerShutdown  telemetry.ShutdownFunc
}

// Build creates the application's dependencies. On error every resource
// opened so far is released.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	app := &App{
		cfg:    cfg,
		logger: logger,
		clock:  system.New(),
		ids:    uuid.New(),
	}
	defer func() {
		if err != nil {
			app.closeInfrastructure(context.Background())
		}
	}()
	app.logger.Info("building application dependencies",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("storage_backend", cfg.Storage.Backend),
		zap.String("archive_backend", cfg.Archive.Backend),
		zap.Strings("sources", cfg.Crawler.Sources),
		zap.Bool("parallel", cfg.Crawler.Parallel),
	)

	if app.tracerShutdown, err = telemetry.Setup(ctx, cfg.Tracing.Enabled, cfg.Tracing.ServiceName); err != nil {
		return nil, fmt.Errorf("tracer init failed: %w", err)
	}

	archive, err := app.setupArchive(ctx)
	if err != nil {
		return nil, err
	}
	if err = app.setupRecordStore(ctx); err != nil {
		return nil, err
	}
	publisher, err := app.setupPublisher(ctx)
	if err != nil {
		return nil, err
	}
	events := app.setupProgress(ctx)

	app.stats = crawlstats.NewAggregator(app.clock, crawlstats.DefaultRecentCapacity, logger.Named("crawlstats"))
	if app.orchestrator, err = app.setupOrchestrator(app.setupSources(archive), events); err != nil {
		return nil, err
	}

	tasks := memoryStorage.NewTaskStore(cfg.Tasks.HistorySize)
	app.queue = queueMemory.NewQueue(cfg.Tasks.QueueDepth)
	app.dispatch = app.setupDispatcher(tasks, publisher)

	app.apiServer = api.NewServer(api.Dependencies{
		Crawler:   app.orchestrator,
		Tasks:     tasks,
		Submitter: app.dispatch,
		Stats:     app.stats,
		Runs:      app.runRepo,
		Logger:    logger.Named("api"),
	}, cfg)
	return app, nil
}

// Crawl runs one synchronous crawl through the orchestrator.
func (a *App) Crawl(ctx context.Context, req crawler.CrawlRequest) crawler.CrawlResult {
	return a.orchestrator.Crawl(ctx, req)
}

// GetStatus reports the crawler configuration and probes every default source.
func (a *App) GetStatus(ctx context.Context) crawler.Status {
	return a.orchestrator.GetStatus(ctx)
}

// Handler returns the HTTP handler of the API server.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Run starts the dispatcher and HTTP server and blocks until the context is
// canceled or a termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		a.logger.Info("dispatcher started", zap.Int("workers", a.cfg.Tasks.Workers))
		a.dispatch.Run(ctx)
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	timeout := time.Duration(a.cfg.Server.ShutdownTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	a.queue.Close()
	select {
	case <-dispatchDone:
	case <-shutdownCtx.Done():
		a.logger.Warn("workers did not drain before shutdown timeout")
	}
	return a.Close(shutdownCtx)
}

// Close gracefully shuts down the application. Calls after the first are no-ops.
func (a *App) Close(ctx context.Context) error {
	a.closeOnce.Do(func() {
		if a.queue != nil {
			a.queue.Close()
		}
		a.closeInfrastructure(ctx)
		a.closeObservability(ctx)
		a.logger.Info("shutdown complete")
	})
	return nil
}

func (a *App) closeInfrastructure(ctx context.Context) {
	if a.progressHub != nil {
		if err := a.progressHub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
		a.progressHub = nil
	}
	if a.pubsubPublisher != nil {
		a.pubsubPublisher.Close()
		a.pubsubPublisher = nil
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
		a.pubsubClient = nil
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
		a.storage = nil
	}
	if a.pgPool != nil {
		a.pgPool.Close()
		a.pgPool = nil
	}
	if a.mysqlDB != nil {
		if sqlDB, err := a.mysqlDB.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				a.logger.Warn("mysql close failed", zap.Error(err))
			}
		}
		a.mysqlDB = nil
	}
	if a.mongoClient != nil {
		if err := a.mongoClient.Disconnect(ctx); err != nil {
			a.logger.Warn("mongo disconnect failed", zap.Error(err))
		}
		a.mongoClient = nil
	}
}

func (a *App) closeObservability(ctx context.Context) {
	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
	// Sync fails on console sinks such as /dev/stderr; nothing to do about it.
	_ = a.logger.Sync()
}

func (a *App) setupArchive(ctx context.Context) (crawler.BlobStore, error) {
	switch a.cfg.Archive.Backend {
	case "gcs":
		a.logger.Info("using GCS archive backend", zap.String("bucket", a.cfg.Archive.Bucket))
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		a.storage = client
		blobStore, err := gcsstorage.New(client, gcsstorage.Config{Bucket: a.cfg.Archive.Bucket})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		return blobStore, nil
	case "local":
		a.logger.Info("using local archive backend", zap.String("path", a.cfg.Archive.Dir))
		blobStore, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Archive.Dir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		return blobStore, nil
	case "memory":
		a.logger.Info("using in-memory archive backend")
		return memoryStorage.NewBlobStore(), nil
	default:
		a.logger.Info("raw response archive disabled")
		return nil, nil
	}
}

func (a *App) setupRecordStore(ctx context.Context) error {
	var err error
	switch a.cfg.Storage.Backend {
	case "postgres":
		pg := a.cfg.Storage.Postgres
		a.pgPool, err = pgstore.Open(ctx, pgstore.Config{
			DSN:         pg.DSN,
			RecordTable: pg.RecordTable,
			MaxConns:    pg.MaxConns,
			MinConns:    pg.MinConns,
		})
		if err != nil {
			return fmt.Errorf("postgres init failed: %w", err)
		}
		if pg.Migrate {
			if err = pgstore.Migrate(ctx, a.pgPool, pg.RecordTable); err != nil {
				return fmt.Errorf("postgres migrate failed: %w", err)
			}
		}
		if a.records, err = pgstore.NewRecordStore(a.pgPool, a.ids, pg.RecordTable); err != nil {
			return fmt.Errorf("postgres record store init failed: %w", err)
		}
		if a.runRepo, err = pgstore.NewRunStore(a.pgPool); err != nil {
			return fmt.Errorf("postgres run store init failed: %w", err)
		}
		a.logger.Info("postgres record store initialized", zap.String("table", pg.RecordTable))
	case "mysql":
		my := a.cfg.Storage.MySQL
		if a.mysqlDB, err = mysqlstore.Open(mysqlstore.Config{DSN: my.DSN, DebugSQL: my.DebugSQL}, a.logger.Named("gorm")); err != nil {
			return fmt.Errorf("mysql init failed: %w", err)
		}
		records, err := mysqlstore.NewRecordStore(a.mysqlDB, a.ids)
		if err != nil {
			return fmt.Errorf("mysql record store init failed: %w", err)
		}
		if my.Migrate {
			if err := records.Migrate(ctx); err != nil {
				return fmt.Errorf("mysql migrate failed: %w", err)
			}
		}
		a.records = records
		a.logger.Info("mysql record store initialized")
	case "mongo":
		mc := a.cfg.Storage.Mongo
		if a.mongoClient, err = mongostore.Open(ctx, mongostore.Config{
			URI:        mc.URI,
			Database:   mc.Database,
			Collection: mc.Collection,
		}); err != nil {
			return fmt.Errorf("mongo init failed: %w", err)
		}
		records, err := mongostore.NewRecordStore(a.mongoClient.Database(mc.Database).Collection(mc.Collection), a.ids)
		if err != nil {
			return fmt.Errorf("mongo record store init failed: %w", err)
		}
		if err := records.EnsureIndexes(ctx); err != nil {
			return fmt.Errorf("mongo index init failed: %w", err)
		}
		a.records = records
		a.logger.Info("mongo record store initialized",
			zap.String("database", mc.Database),
			zap.String("collection", mc.Collection),
		)
	default:
		a.logger.Warn("using in-memory record store; records are lost on restart")
		a.records = memoryStorage.NewRecordStore(a.ids)
	}
	return nil
}

func (a *App) setupPublisher(ctx context.Context) (crawler.Publisher, error) {
	if a.cfg.PubSub.TopicName == "" || a.cfg.PubSub.ProjectID == "" {
		a.logger.Warn("no Pub/Sub topic configured, using in-memory publisher")
		return memorypublisher.New(), nil
	}
	var err error
	a.pubsubClient, err = pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	a.pubsubPublisher, err = gcppublisher.Open(ctx, a.pubsubClient, a.cfg.PubSub.TopicName)
	if err != nil {
		return nil, fmt.Errorf("pubsub publisher init failed: %w", err)
	}
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
	)
	return a.pubsubPublisher, nil
}

// setupProgress always starts a hub with the log sink; the Prometheus and run
// store sinks are added when available.
func (a *App) setupProgress(ctx context.Context) progress.Emitter {
	sinkList := []progress.Sink{progresssinks.NewLogSink(a.logger.Named("progress_log"))}
	promSink, err := progresssinks.NewPrometheusSink(prometheus.DefaultRegisterer)
	if err != nil {
		a.logger.Warn("progress prometheus sink disabled", zap.Error(err))
	} else {
		sinkList = append(sinkList, promSink)
	}
	if a.runRepo != nil {
		sinkList = append(sinkList, progresssinks.NewStoreSink(a.runRepo, a.logger.Named("progress_store")))
	}
	hubCfg := progress.Config{
		BufferSize:     a.cfg.Progress.BufferSize,
		MaxBatchEvents: a.cfg.Progress.BatchMax,
		MaxBatchWait:   a.cfg.Progress.BatchInterval(),
		BaseContext:    context.WithoutCancel(ctx),
		Logger:         a.logger.Named("progress_hub"),
	}
	a.progressHub = progress.NewHub(hubCfg, sinkList...)
	a.logger.Info("progress hub initialized",
		zap.Int("sinks", len(sinkList)),
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Int("max_batch_events", hubCfg.MaxBatchEvents),
		zap.Duration("max_batch_wait", hubCfg.MaxBatchWait),
	)
	return a.progressHub
}

func (a *App) setupSources(archive crawler.BlobStore) *source.Registry {
	cc := a.cfg.Crawler
	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent: cc.UserAgent,
		Timeout:   cc.RequestTimeout(),
	})
	opts := []source.ClientOption{
		source.WithRateLimiter(ratelimit.New(ratelimit.Config{
			DefaultRPS:   cc.RatePerSecond,
			DefaultBurst: cc.RateBurst,
			HostRPS:      map[string]float64{pubmedHost: 3},
		})),
		source.WithRetryPolicy(crawler.NewExponentialRetryPolicy(cc.RetryAttempts)),
	}
	if archive != nil {
		opts = append(opts, source.WithArchive(archive, a.ids, a.clock))
	}
	client := source.NewClient(fetcher, source.ClientConfig{
		UserAgent:      cc.UserAgent,
		RequestTimeout: cc.RequestTimeout(),
		ArchivePrefix:  a.cfg.Archive.Prefix,
	}, a.logger.Named("source_client"), opts...)

	logger := a.logger.Named("source")
	registry := source.NewRegistry(
		source.NewArxiv(client, cc.SourceConfigs[source.ArxivName].APIURL, logger),
		source.NewPubmed(client, cc.SourceConfigs[source.PubmedName].APIURL, logger),
		source.NewBiorxiv(client, cc.SourceConfigs[source.BiorxivName].APIURL, a.clock, logger),
		source.NewMock(source.MockConfig{Seed: uint64(a.clock.Now().UnixNano())}, a.clock),
	)
	a.logger.Info("source adapters registered",
		zap.Strings("names", registry.Names()),
		zap.String("user_agent", cc.UserAgent),
		zap.Int("retry_attempts", cc.RetryAttempts),
	)
	return registry
}

func (a *App) setupOrchestrator(sources *source.Registry, events progress.Emitter) (*orchestrator.Orchestrator, error) {
	cc := a.cfg.Crawler
	sourceConfigs := make(map[string]orchestrator.SourceConfig, len(cc.SourceConfigs))
	for name, sc := range cc.SourceConfigs {
		sourceConfigs[name] = orchestrator.SourceConfig{Enabled: sc.Enabled, MaxResults: sc.MaxResults}
	}
	deps := orchestrator.Dependencies{
		Sources:    sources,
		Store:      a.records,
		Metrics:    a.stats,
		Classifier: classify.NewKeywordClassifier(classify.DefaultRules()),
		Pool:       orchestrator.NewPool(cc.PoolSize),
		Clock:      a.clock,
		Events:     events,
		Logger:     a.logger,
	}
	if th := a.cfg.Dedup.NearDuplicateThreshold; th > 0 {
		deps.NearDup = pipeline.NewNearDuplicateChecker(a.records, th, a.cfg.Dedup.RecentWindow, a.logger.Named("near_dup"))
	}
	orch, err := orchestrator.New(orchestrator.Config{
		Enabled:          cc.Enabled,
		Sources:          cc.Sources,
		SourceConfigs:    sourceConfigs,
		MaxPerSource:     cc.MaxPerSource,
		ClassifyEnabled:  cc.ClassifyEnabled,
		Parallel:         cc.Parallel,
		InterSourceDelay: cc.InterSourceDelay(),
		TaskTimeout:      cc.TaskTimeout(),
	}, deps)
	if err != nil {
		return nil, fmt.Errorf("orchestrator init failed: %w", err)
	}
	return orch, nil
}

func (a *App) setupDispatcher(tasks crawler.TaskStore, publisher crawler.Publisher) *dispatcher.Dispatcher {
	workerCfg := worker.Config{Topic: a.cfg.PubSub.TopicName}
	if workerCfg.Topic == "" {
		workerCfg.Topic = "crawl-completed"
	}
	workers := make([]*worker.Worker, 0, a.cfg.Tasks.Workers)
	for i := 0; i < a.cfg.Tasks.Workers; i++ {
		workers = append(workers, worker.New(
			a.queue,
			tasks,
			a.orchestrator,
			publisher,
			a.clock,
			workerCfg,
			a.logger.Named("worker").With(zap.Int("index", i)),
		))
	}
	a.logger.Info("task workers configured",
		zap.Int("workers", len(workers)),
		zap.Int("queue_depth", a.cfg.Tasks.QueueDepth),
		zap.Int("history_size", a.cfg.Tasks.HistorySize),
	)
	return dispatcher.New(a.queue, tasks, a.ids, a.clock, workers)
}
