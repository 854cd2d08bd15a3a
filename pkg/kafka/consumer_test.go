package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/errs"
	"github.com/Ramsey-B/fern/pkg/redis"
)

type fakeReader struct {
	mu        sync.Mutex
	messages  []kafka.Message
	committed []kafka.Message
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.messages) > 0 {
		msg := r.messages[0]
		r.messages = r.messages[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error { return nil }

func (r *fakeReader) commits() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.committed)
}

type fakeDLQ struct {
	entries []*redis.DLQEntry
	err     error
}

func (d *fakeDLQ) Add(_ context.Context, entry *redis.DLQEntry) (string, error) {
	if d.err != nil {
		return "", d.err
	}
	d.entries = append(d.entries, entry)
	return "1-0", nil
}

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func testConsumer(reader Reader, handler MessageHandler, dlq DeadLetterQueue) *Consumer {
	return NewConsumerWithReader(reader, ConsumerConfig{
		Topic:           "fern-sync",
		MaxAttempts:     3,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
	}, testLogger(), handler, dlq)
}

var message = kafka.Message{
	Topic:     "fern-sync",
	Key:       []byte("learning-provider:A:1"),
	Value:     []byte(`{"entity":{"type":"learning-provider"}}`),
	Partition: 2,
	Offset:    41,
	Headers:   []kafka.Header{{Key: HeaderEntityType, Value: []byte("learning-provider")}},
}

func TestConsumer_CommitsHandledMessage(t *testing.T) {
	reader := &fakeReader{}
	var got *IncomingMessage
	c := testConsumer(reader, func(_ context.Context, msg *IncomingMessage) error {
		got = msg
		return nil
	}, &fakeDLQ{})

	c.processMessage(context.Background(), message)

	require.NotNil(t, got)
	assert.Equal(t, "learning-provider:A:1", got.Key)
	assert.Equal(t, "learning-provider", got.Headers[HeaderEntityType])
	assert.Equal(t, int64(41), got.Offset)
	assert.Equal(t, 1, reader.commits())
}

func TestConsumer_ValidationFailureIsCommittedWithoutRetry(t *testing.T) {
	reader := &fakeReader{}
	dlq := &fakeDLQ{}
	calls := 0
	c := testConsumer(reader, func(_ context.Context, _ *IncomingMessage) error {
		calls++
		return errs.Validation("bad payload")
	}, dlq)

	c.processMessage(context.Background(), message)

	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, reader.commits())
	assert.Empty(t, dlq.entries)
}

func TestConsumer_RetriesThenSucceeds(t *testing.T) {
	reader := &fakeReader{}
	calls := 0
	c := testConsumer(reader, func(_ context.Context, _ *IncomingMessage) error {
		calls++
		if calls < 3 {
			return errs.Transient(errors.New("db down"), "store unavailable")
		}
		return nil
	}, &fakeDLQ{})

	c.processMessage(context.Background(), message)

	assert.Equal(t, 3, calls)
	assert.Equal(t, 1, reader.commits())
}

func TestConsumer_DeadLettersAfterMaxAttempts(t *testing.T) {
	reader := &fakeReader{}
	dlq := &fakeDLQ{}
	calls := 0
	c := testConsumer(reader, func(_ context.Context, _ *IncomingMessage) error {
		calls++
		return errs.Retryable(errors.New("version race"), "link conflicts exhausted")
	}, dlq)

	c.processMessage(context.Background(), message)

	assert.Equal(t, 3, calls)
	assert.Equal(t, 1, reader.commits())
	require.Len(t, dlq.entries, 1)
	entry := dlq.entries[0]
	assert.Equal(t, "fern-sync", entry.Topic)
	assert.Equal(t, "learning-provider:A:1", entry.Key)
	assert.Equal(t, string(message.Value), entry.Payload)
	assert.Equal(t, 3, entry.Attempts)
	assert.Equal(t, string(errs.KindRetryable), entry.ErrorKind)
}

func TestConsumer_DoesNotCommitWhenDeadLetterFails(t *testing.T) {
	reader := &fakeReader{}
	c := testConsumer(reader, func(_ context.Context, _ *IncomingMessage) error {
		return errors.New("boom")
	}, &fakeDLQ{err: errors.New("redis down")})

	c.processMessage(context.Background(), message)

	assert.Equal(t, 0, reader.commits())
}

func TestConsumer_RunStopsOnCancel(t *testing.T) {
	reader := &fakeReader{messages: []kafka.Message{message, message}}
	handled := make(chan struct{}, 2)
	c := testConsumer(reader, func(_ context.Context, _ *IncomingMessage) error {
		handled <- struct{}{}
		return nil
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	<-handled
	<-handled
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}
	assert.Equal(t, 2, reader.commits())
}

func TestIncomingMessage_DecodeMalformed(t *testing.T) {
	msg := &IncomingMessage{Topic: "fern-sync", Value: []byte("{not json")}
	var v map[string]any
	err := msg.Decode(&v)
	assert.True(t, errs.IsValidation(err))
}
