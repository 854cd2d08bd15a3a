package kafka

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"

	"github.com/Ramsey-B/fern/pkg/errs"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/platform/tracing"
	"github.com/Ramsey-B/fern/pkg/redis"
)

// MessageHandler processes one message. Validation and catalog errors drop the message;
// any other error is retried.
type MessageHandler func(ctx context.Context, msg *IncomingMessage) error

// Reader is the subset of *kafka.Reader the consumer uses.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type DeadLetterQueue interface {
	Add(ctx context.Context, entry *redis.DLQEntry) (string, error)
}

type ConsumerConfig struct {
	Brokers       []string
	Topic         string
	ConsumerGroup string
	// MaxAttempts bounds in-process attempts before a message is dead-lettered.
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Consumer reads one topic and commits each message once it is handled, dropped or
// dead-lettered.
type Consumer struct {
	reader  Reader
	topic   string
	config  ConsumerConfig
	logger  ectologger.Logger
	handler MessageHandler
	dlq     DeadLetterQueue
	wg      sync.WaitGroup
	cancel  context.CancelFunc
}

func NewConsumer(cfg ConsumerConfig, logger ectologger.Logger, handler MessageHandler, dlq DeadLetterQueue) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.ConsumerGroup,
		MinBytes:       10e3, // 10KB
		MaxBytes:       10e6, // 10MB
		MaxWait:        500 * time.Millisecond,
		StartOffset:    kafka.FirstOffset,
		CommitInterval: time.Second,
	})
	return NewConsumerWithReader(reader, cfg, logger, handler, dlq)
}

func NewConsumerWithReader(reader Reader, cfg ConsumerConfig, logger ectologger.Logger, handler MessageHandler, dlq DeadLetterQueue) *Consumer {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 100 * time.Millisecond
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 5 * time.Second
	}
	return &Consumer{
		reader:  reader,
		topic:   cfg.Topic,
		config:  cfg,
		logger:  logger,
		handler: handler,
		dlq:     dlq,
	}
}

// Start runs the consume loop in the background until Stop.
func (c *Consumer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		_ = c.Run(ctx)
	}()

	c.logger.WithContext(ctx).WithField("topic", c.topic).Info("Kafka consumer started")
	return nil
}

func (c *Consumer) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	return c.reader.Close()
}

// Run consumes until ctx is done.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				c.logger.WithContext(ctx).WithField("topic", c.topic).Info("Consumer loop stopping")
				return nil
			}
			c.logger.WithContext(ctx).WithError(err).Error("Failed to fetch message")
			continue
		}
		c.processMessage(ctx, msg)
	}
}

func (c *Consumer) processMessage(ctx context.Context, msg kafka.Message) {
	ctx, span := tracing.StartSpan(ctx, "kafka.Consumer.processMessage")
	defer span.End()

	incoming := newIncomingMessage(msg)
	log := c.logger.WithContext(ctx).WithFields(map[string]any{
		"topic":     msg.Topic,
		"partition": msg.Partition,
		"offset":    msg.Offset,
		"key":       incoming.Key,
	})

	attempts, err := c.handle(ctx, incoming)
	switch {
	case err == nil:
		metrics.MessagesTotal.WithLabelValues(msg.Topic, "processed").Inc()
	case ctx.Err() != nil:
		// Shutting down; the message is redelivered to the next consumer.
		log.WithError(err).Warn("Stopped processing message before completion")
		return
	case errs.Permanent(err):
		metrics.MessagesTotal.WithLabelValues(msg.Topic, "dropped").Inc()
		log.WithError(err).Warn("Dropping message that can never succeed")
	default:
		if !c.deadLetter(ctx, incoming, err, attempts) {
			metrics.MessagesTotal.WithLabelValues(msg.Topic, "failed").Inc()
			log.WithError(err).Error("Failed to process message (not committing)")
			return
		}
		metrics.MessagesTotal.WithLabelValues(msg.Topic, "dead_lettered").Inc()
	}

	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		log.WithError(err).Error("Failed to commit message")
	}
}

// handle runs the handler until it succeeds, fails permanently or runs out of attempts.
func (c *Consumer) handle(ctx context.Context, msg *IncomingMessage) (int, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.config.InitialInterval
	policy.MaxInterval = c.config.MaxInterval
	policy.MaxElapsedTime = 0

	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		err := c.handler(ctx, msg)
		if err == nil {
			return nil
		}
		if errs.Permanent(err) {
			return backoff.Permanent(err)
		}
		c.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"topic":   msg.Topic,
			"key":     msg.Key,
			"attempt": attempts,
		}).Warn("Message handler failed, retrying")
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.config.MaxAttempts-1)), ctx))
	return attempts, err
}

func (c *Consumer) deadLetter(ctx context.Context, msg *IncomingMessage, cause error, attempts int) bool {
	if c.dlq == nil {
		return false
	}

	_, err := c.dlq.Add(ctx, &redis.DLQEntry{
		Topic:        msg.Topic,
		Key:          msg.Key,
		Partition:    msg.Partition,
		Offset:       msg.Offset,
		Payload:      string(msg.Value),
		ErrorKind:    string(errs.KindOf(cause)),
		ErrorMessage: cause.Error(),
		Attempts:     attempts,
	})
	if err != nil {
		c.logger.WithContext(ctx).WithError(err).Error("Failed to dead-letter message")
		return false
	}
	metrics.DLQMessagesTotal.WithLabelValues(msg.Topic).Inc()
	return true
}

func (c *Consumer) Health() bool {
	return c.reader != nil
}
