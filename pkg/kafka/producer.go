package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/platform/reqctx"
	"github.com/Ramsey-B/fern/pkg/platform/tracing"
)

// SchemaVersion is stamped on every registry event.
const SchemaVersion = "1.0"

// Writer is the subset of *kafka.Writer the producer uses.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Topics struct {
	Sync   string
	Match  string
	Output string
}

type ProducerConfig struct {
	Brokers      []string
	Topics       Topics
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks int
	Compression  string
}

// Producer publishes queue messages and registry events. Queue messages are keyed by
// "type:source:id" so every version of one entity lands on the same partition.
type Producer struct {
	writer Writer
	topics Topics
	logger ectologger.Logger
}

func NewProducer(cfg ProducerConfig, logger ectologger.Logger) *Producer {
	compression := kafka.Snappy
	switch cfg.Compression {
	case "gzip":
		compression = kafka.Gzip
	case "lz4":
		compression = kafka.Lz4
	case "zstd":
		compression = kafka.Zstd
	case "none":
		compression = 0
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:            compression,
		AllowAutoTopicCreation: true,
	}
	return NewProducerWithWriter(writer, cfg.Topics, logger)
}

func NewProducerWithWriter(writer Writer, topics Topics, logger ectologger.Logger) *Producer {
	return &Producer{
		writer: writer,
		topics: topics,
		logger: logger,
	}
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

// PublishSync enqueues an entity update for the sync worker.
func (p *Producer) PublishSync(ctx context.Context, item models.SyncQueueItem) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishSync")
	defer span.End()

	var key, entityType string
	if item.Entity != nil {
		key = item.Entity.Reference().String()
		entityType = item.Entity.Type
	}
	return p.publish(ctx, p.topics.Sync, key, item, map[string]string{
		HeaderEntityType:        entityType,
		HeaderInternalRequestID: item.InternalRequestID,
		HeaderExternalRequestID: item.ExternalRequestID,
	})
}

// PublishMatch enqueues a stored entity for the match worker.
func (p *Producer) PublishMatch(ctx context.Context, item models.EntityForMatching) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishMatch")
	defer span.End()

	return p.publish(ctx, p.topics.Match, item.Reference().String(), item, map[string]string{
		HeaderEntityType:        item.Type,
		HeaderInternalRequestID: reqctx.InternalRequestID(ctx),
		HeaderExternalRequestID: reqctx.ExternalRequestID(ctx),
	})
}

// EntityEvent is published after a version is stored.
type EntityEvent struct {
	EventType         string            `json:"eventType"`
	SchemaVersion     string            `json:"schemaVersion"`
	EntityType        string            `json:"entityType"`
	SourceSystemName  string            `json:"sourceSystemName"`
	SourceSystemID    string            `json:"sourceSystemId"`
	Data              map[string]string `json:"data"`
	ValidFrom         time.Time         `json:"validFrom"`
	InternalRequestID string            `json:"internalRequestId,omitempty"`
	ExternalRequestID string            `json:"externalRequestId,omitempty"`
	Timestamp         time.Time         `json:"timestamp"`
}

// LinkEvent is published after a link group is created or grows.
type LinkEvent struct {
	EventType     string                   `json:"eventType"`
	SchemaVersion string                   `json:"schemaVersion"`
	LinkType      string                   `json:"linkType"`
	LinkID        string                   `json:"linkId"`
	Version       int64                    `json:"version"`
	Members       []models.EntityReference `json:"members"`
	Added         []models.EntityReference `json:"added,omitempty"`
	Absorbed      []string                 `json:"absorbed,omitempty"`
	Timestamp     time.Time                `json:"timestamp"`
}

func (p *Producer) PublishEntityEvent(ctx context.Context, event *EntityEvent) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishEntityEvent")
	defer span.End()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	event.SchemaVersion = SchemaVersion

	key := models.NewEntityReference(event.EntityType, event.SourceSystemName, event.SourceSystemID).String()
	return p.publish(ctx, p.topics.Output, key, event, map[string]string{
		HeaderEventType:     event.EventType,
		HeaderEntityType:    event.EntityType,
		HeaderSchemaVersion: SchemaVersion,
	})
}

func (p *Producer) PublishLinkEvent(ctx context.Context, event *LinkEvent) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishLinkEvent")
	defer span.End()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	event.SchemaVersion = SchemaVersion

	return p.publish(ctx, p.topics.Output, event.LinkID, event, map[string]string{
		HeaderEventType:     event.EventType,
		HeaderSchemaVersion: SchemaVersion,
	})
}

func (p *Producer) publish(ctx context.Context, topic, key string, value any, hdrs map[string]string) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Topic:   topic,
		Key:     []byte(key),
		Value:   data,
		Headers: headers(hdrs),
	}

	log := p.logger.WithContext(ctx).WithFields(map[string]any{
		"topic": topic,
		"key":   key,
	})
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		log.WithError(err).Error("Failed to publish message")
		return err
	}

	log.Debug("Published message")
	return nil
}
