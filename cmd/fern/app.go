package main

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/pkg/catalog"
	"github.com/Ramsey-B/fern/pkg/entitystore"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/graph"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/linkstore"
	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/names"
	"github.com/Ramsey-B/fern/pkg/platform/database"
	"github.com/Ramsey-B/fern/pkg/platform/startup"
	"github.com/Ramsey-B/fern/pkg/platform/tracing"
	"github.com/Ramsey-B/fern/pkg/processor"
	"github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/registry"
	"github.com/Ramsey-B/fern/pkg/routes/health"
	"github.com/Ramsey-B/fern/pkg/searchindex"
	"github.com/Ramsey-B/fern/pkg/syncmanager"
)

// app holds the process-wide components. Everything is built once at startup and passed
// explicitly to the commands that need it.
type app struct {
	cfg       config.Config
	logger    ectologger.Logger
	startup   *startup.Startup
	names     *names.Translator
	producer  *kafka.Producer
	dlq       *redis.DeadLetterQueue
	registry  *registry.Registry
	manager   *syncmanager.Manager
	processor *processor.Processor
	checks    map[string]health.Check
}

func loadApp(ctx context.Context) (*app, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, syncLogs, err := newLogger(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build logger: %w", err)
	}

	shutdownTracing, err := tracing.Setup(ctx, tracing.ProviderConfig{
		ServiceName:  cfg.AppName,
		OTLPEndpoint: cfg.OTLPEndpoint,
		Insecure:     cfg.OTLPInsecure,
		Timeout:      5 * time.Second,
	})
	if err != nil {
		syncLogs()
		return nil, nil, err
	}

	a, err := newApp(ctx, cfg, logger)
	cleanup := func() {
		if a != nil {
			a.close()
		}
		_ = shutdownTracing(context.Background())
		syncLogs()
	}
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return a, cleanup, nil
}

func newApp(ctx context.Context, cfg config.Config, logger ectologger.Logger) (*app, error) {
	a := &app{
		cfg:     cfg,
		logger:  logger,
		startup: startup.NewStartup(logger, cfg.StartupMaxAttempts),
		names:   names.Default(),
		checks:  map[string]health.Check{},
	}

	var (
		db          database.DB
		redisClient *redis.Client
		graphClient *graph.Client
	)

	if cfg.StorageDriver == config.StorageDriverPostgres {
		a.startup.AddDependency(startup.Func{
			Name: "postgres",
			StartFunc: func(ctx context.Context) (err error) {
				db, err = database.Connect(ctx, postgresConfig(cfg), logger)
				return err
			},
			StopFunc: func(context.Context) error { return db.Close() },
		})
		if cfg.DatabaseMigrateOnStart {
			a.startup.AddDependency(startup.Func{
				Name:      "migrations",
				Upstream:  []string{"postgres"},
				StartFunc: func(context.Context) error { return migrate(cfg, db, logger) },
			})
		}
	}
	if cfg.RedisEnabled {
		a.startup.AddDependency(startup.Func{
			Name: "redis",
			StartFunc: func(ctx context.Context) (err error) {
				redisClient, err = redis.NewClient(ctx, redis.Config{
					Host:     cfg.RedisHost,
					Port:     cfg.RedisPort,
					Password: cfg.RedisPassword,
					DB:       cfg.RedisDB,
				}, logger)
				return err
			},
			StopFunc: func(context.Context) error { return redisClient.Close() },
		})
	}
	if cfg.GraphEnabled {
		a.startup.AddDependency(startup.Func{
			Name: "graph",
			StartFunc: func(ctx context.Context) (err error) {
				graphClient, err = graph.NewClient(graph.Config{
					Host:     cfg.GraphDBHost,
					Port:     cfg.GraphDBPort,
					Username: cfg.GraphDBUser,
					Password: cfg.GraphDBPassword,
					Database: cfg.GraphDBName,
				}, logger)
				if err != nil {
					return err
				}
				return graphClient.VerifyConnectivity(ctx)
			},
			StopFunc: func(ctx context.Context) error { return graphClient.Close(ctx) },
		})
	}

	if err := a.startup.Start(ctx); err != nil {
		return a, err
	}

	cat, err := catalog.Load(cfg.CatalogPath, logger)
	if err != nil {
		return a, err
	}

	fields := searchindex.DefaultFields()
	var (
		entities *entitystore.Store
		links    linkstore.Store
	)
	switch cfg.StorageDriver {
	case config.StorageDriverPostgres:
		entities = entitystore.NewPostgresStore(db, searchindex.NewPostgresIndex(db, fields, logger), fields, logger)
		links = linkstore.NewPostgresStore(db, logger)
		a.checks["database"] = db.PingContext
	case config.StorageDriverMemory:
		logger.Warn("Using in-memory storage; registry state is lost on restart")
		entities = entitystore.NewMemoryStore(searchindex.NewMemoryIndex(fields, logger), fields, logger)
		links = linkstore.NewMemoryStore()
	default:
		return a, fmt.Errorf("unknown STORAGE_DRIVER %q", cfg.StorageDriver)
	}

	if redisClient != nil {
		a.dlq = redis.NewDeadLetterQueue(redisClient, cfg.RedisDLQStream, logger)
		a.checks["redis"] = redisClient.Check
	}

	a.producer = kafka.NewProducer(kafka.ProducerConfig{
		Brokers: cfg.KafkaBrokers,
		Topics: kafka.Topics{
			Sync:   cfg.KafkaSyncTopic,
			Match:  cfg.KafkaMatchTopic,
			Output: cfg.KafkaOutputTopic,
		},
		BatchSize:    cfg.KafkaBatchSize,
		BatchTimeout: time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
		RequiredAcks: cfg.KafkaRequiredAcks,
		Compression:  cfg.KafkaCompression,
	}, logger)

	var (
		linkObservers []matching.LinkObserver
		syncObservers []syncmanager.SyncObserver
	)
	if cfg.EventsEnabled {
		emitter := events.NewEmitter(a.producer, logger)
		linkObservers = append(linkObservers, emitter)
		syncObservers = append(syncObservers, emitter)
	}
	if graphClient != nil {
		linkObservers = append(linkObservers, graph.NewProjector(graphClient, logger))
	}

	linker := matching.NewLinker(links, logger, matching.LinkerConfig{
		MaxAttempts:     cfg.LinkMaxAttempts,
		InitialInterval: cfg.LinkRetryInterval,
		MaxInterval:     cfg.LinkRetryMaxInterval,
	}, linkObservers...)
	engine := matching.NewEngine(logger, cat, entities, linker)

	a.manager = syncmanager.NewManager(logger, entities, a.producer, a.producer, a.names, syncObservers...)
	a.registry = registry.NewRegistry(logger, entities, links)
	a.processor = processor.NewProcessor(logger, a.manager, engine)
	return a, nil
}

func (a *app) consumer(topic, group string, handler kafka.MessageHandler) *kafka.Consumer {
	return kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers:         a.cfg.KafkaBrokers,
		Topic:           topic,
		ConsumerGroup:   group,
		MaxAttempts:     a.cfg.KafkaMaxAttempts,
		InitialInterval: a.cfg.KafkaRetryInterval,
		MaxInterval:     a.cfg.KafkaRetryMaxInterval,
	}, a.logger, handler, a.deadLetters())
}

// deadLetters avoids handing the consumer a typed nil when Redis is disabled.
func (a *app) deadLetters() kafka.DeadLetterQueue {
	if a.dlq == nil {
		return nil
	}
	return a.dlq
}

func (a *app) syncConsumer() *kafka.Consumer {
	return a.consumer(a.cfg.KafkaSyncTopic, a.cfg.KafkaSyncConsumerGroup, a.processor.HandleSync)
}

func (a *app) matchConsumer() *kafka.Consumer {
	return a.consumer(a.cfg.KafkaMatchTopic, a.cfg.KafkaMatchConsumerGroup, a.processor.HandleMatch)
}

// consume blocks until ctx is done and then closes the consumer's reader.
func consume(ctx context.Context, c *kafka.Consumer) error {
	defer func() { _ = c.Stop() }()
	return c.Run(ctx)
}

func (a *app) close() {
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.WithError(err).Warn("Failed to close kafka producer")
		}
	}
	if err := a.startup.Stop(context.Background()); err != nil {
		a.logger.WithError(err).Warn("Failed to stop dependencies")
	}
}

func migrate(cfg config.Config, db database.DB, logger ectologger.Logger) error {
	service := database.NewMigrationService(logger, &database.MigrationConfig{
		MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
		Version:             uint(cfg.DatabaseMigrationVersion),
		Force:               cfg.DatabaseMigrationForce,
		AutoRollback:        cfg.DatabaseMigrationAutoRollback,
	})
	return service.Migrate(cfg.DatabaseName, db)
}

func postgresConfig(cfg config.Config) database.Config {
	return database.Config{
		Driver:          "postgres",
		Host:            cfg.DatabaseHost,
		Port:            cfg.DatabasePort,
		UserName:        cfg.DatabaseUserName,
		Password:        cfg.DatabasePassword,
		Name:            cfg.DatabaseName,
		SSLMode:         cfg.DatabaseSSLMode,
		MaxOpenConns:    cfg.DatabaseMaxOpenConns,
		MaxIdleConns:    cfg.DatabaseMaxIdleConns,
		ConnMaxLifetime: cfg.DatabaseConnMaxLifetime,
	}
}
