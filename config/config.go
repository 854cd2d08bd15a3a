package config

import (
	"errors"
	"io/fs"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

const (
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"
)

type Config struct {
	AppName                       string   `env:"APP_NAME" env-default:"fern-api"`
	Version                       string   `env:"APP_VERSION" env-default:"dev"`
	Port                          int      `env:"PORT" env-default:"3004"`
	LogLevel                      string   `env:"LOG_LEVEL" env-default:"info"`
	PrettyLogs                    bool     `env:"PRETTY_LOGS" env-default:"false"`
	HttpServerWriteTimeoutSeconds int      `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerReadTimeoutSeconds  int      `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerIdleTimeoutSeconds  int      `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" env-default:"10"`
	MaxHeaderBytes                int      `env:"HTTP_SERVER_MAX_HEADER_BYTES" env-default:"64000"` // 64KB
	ReadHeaderTimeoutSeconds      int      `env:"HTTP_SERVER_READ_HEADER_TIMEOUT_SECONDS" env-default:"10"`
	AllowOrigins                  []string `env:"HTTP_SERVER_ALLOW_ORIGINS" env-default:"*"`
	AllowMethods                  []string `env:"HTTP_SERVER_ALLOW_METHODS" env-default:"GET,POST"`
	StartupMaxAttempts            int      `env:"STARTUP_MAX_ATTEMPTS" env-default:"5"`

	// Storage
	StorageDriver string `env:"STORAGE_DRIVER" env-default:"postgres"`
	CatalogPath   string `env:"CATALOG_PATH" env-default:"config/matching-profiles.yaml"`

	// PostgreSQL
	DatabaseHost                  string        `env:"DB_HOST" env-default:""`
	DatabasePort                  string        `env:"DB_PORT" env-default:"5432"`
	DatabaseUserName              string        `env:"DB_USER_NAME" env-default:""`
	DatabasePassword              string        `env:"DB_PASSWORD" env-default:""`
	DatabaseName                  string        `env:"DB_NAME" env-default:"fern"`
	DatabaseSSLMode               string        `env:"DB_SSL_MODE" env-default:"disable"`
	DatabaseMaxOpenConns          int           `env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	DatabaseMaxIdleConns          int           `env:"DB_MAX_IDLE_CONNS" env-default:"10"`
	DatabaseConnMaxLifetime       time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"10s"`
	DatabaseMigrationFolderPath   string        `env:"DB_MIGRATION_FOLDER_PATH" env-default:"db/pg"`
	DatabaseMigrationVersion      int           `env:"DB_MIGRATION_VERSION" env-default:"0"`
	DatabaseMigrationForce        int           `env:"DB_MIGRATION_FORCE" env-default:"0"`
	DatabaseMigrationAutoRollback bool          `env:"DB_MIGRATION_AUTO_ROLLBACK" env-default:"true"`
	DatabaseMigrateOnStart        bool          `env:"DB_MIGRATE_ON_START" env-default:"true"`

	// Graph projection (Memgraph/Neo4j)
	GraphEnabled    bool   `env:"GRAPH_ENABLED" env-default:"false"`
	GraphDBHost     string `env:"GRAPH_DB_HOST" env-default:"localhost"`
	GraphDBPort     int    `env:"GRAPH_DB_PORT" env-default:"7687"`
	GraphDBUser     string `env:"GRAPH_DB_USER" env-default:""`
	GraphDBPassword string `env:"GRAPH_DB_PASSWORD" env-default:""`
	GraphDBName     string `env:"GRAPH_DB_NAME" env-default:""`

	// Redis (dead letter queue)
	RedisEnabled   bool   `env:"REDIS_ENABLED" env-default:"true"`
	RedisHost      string `env:"REDIS_HOST" env-default:"localhost"`
	RedisPort      int    `env:"REDIS_PORT" env-default:"6379"`
	RedisPassword  string `env:"REDIS_PASSWORD" env-default:""`
	RedisDB        int    `env:"REDIS_DB" env-default:"0"`
	RedisDLQStream string `env:"REDIS_DLQ_STREAM" env-default:"fern:dlq"`

	// Kafka
	KafkaBrokers            []string      `env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	KafkaSyncTopic          string        `env:"KAFKA_SYNC_TOPIC" env-default:"fern-sync"`
	KafkaMatchTopic         string        `env:"KAFKA_MATCH_TOPIC" env-default:"fern-match"`
	KafkaOutputTopic        string        `env:"KAFKA_OUTPUT_TOPIC" env-default:"fern-events"`
	KafkaSyncConsumerGroup  string        `env:"KAFKA_SYNC_CONSUMER_GROUP" env-default:"fern-sync-consumer"`
	KafkaMatchConsumerGroup string        `env:"KAFKA_MATCH_CONSUMER_GROUP" env-default:"fern-match-consumer"`
	KafkaMaxAttempts        int           `env:"KAFKA_MAX_ATTEMPTS" env-default:"5"`
	KafkaRetryInterval      time.Duration `env:"KAFKA_RETRY_INTERVAL" env-default:"200ms"`
	KafkaRetryMaxInterval   time.Duration `env:"KAFKA_RETRY_MAX_INTERVAL" env-default:"10s"`
	KafkaBatchSize          int           `env:"KAFKA_BATCH_SIZE" env-default:"100"`
	KafkaBatchTimeout       int           `env:"KAFKA_BATCH_TIMEOUT_MS" env-default:"10"`
	KafkaRequiredAcks       int           `env:"KAFKA_REQUIRED_ACKS" env-default:"-1"`
	KafkaCompression        string        `env:"KAFKA_COMPRESSION" env-default:"snappy"`
	EventsEnabled           bool          `env:"EVENTS_ENABLED" env-default:"true"`

	// Linking
	LinkMaxAttempts      int           `env:"LINK_MAX_ATTEMPTS" env-default:"5"`
	LinkRetryInterval    time.Duration `env:"LINK_RETRY_INTERVAL" env-default:"25ms"`
	LinkRetryMaxInterval time.Duration `env:"LINK_RETRY_MAX_INTERVAL" env-default:"1s"`

	// Tracing
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" env-default:""`
	OTLPInsecure bool   `env:"OTEL_EXPORTER_OTLP_INSECURE" env-default:"true"`
}

// Load reads an optional .env file and then the environment.
func Load() (Config, error) {
	var cfg Config
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, err
	}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
