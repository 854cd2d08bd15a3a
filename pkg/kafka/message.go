package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Ramsey-B/fern/pkg/errs"
	"github.com/Ramsey-B/fern/pkg/platform/reqctx"
)

const (
	HeaderEntityType        = "entity_type"
	HeaderEventType         = "event_type"
	HeaderInternalRequestID = "internal_request_id"
	HeaderExternalRequestID = "external_request_id"
	HeaderSchemaVersion     = "schema_version"
)

// IncomingMessage wraps a raw Kafka message with parsed headers.
type IncomingMessage struct {
	Key       string
	Value     []byte
	Headers   map[string]string
	Partition int
	Offset    int64
	Timestamp time.Time
	Topic     string
}

func newIncomingMessage(msg kafka.Message) *IncomingMessage {
	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	return &IncomingMessage{
		Key:       string(msg.Key),
		Value:     msg.Value,
		Headers:   headers,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Timestamp: msg.Time,
		Topic:     msg.Topic,
	}
}

// Decode unmarshals the message value into v. A payload that cannot be decoded will never
// succeed on redelivery, so it is reported as a validation failure.
func (m *IncomingMessage) Decode(v any) error {
	if err := json.Unmarshal(m.Value, v); err != nil {
		return errs.WrapValidation(err, "malformed message on %s at offset %d", m.Topic, m.Offset)
	}
	return nil
}

// Context returns ctx carrying the request ids from the message headers.
func (m *IncomingMessage) Context(ctx context.Context) context.Context {
	return reqctx.WithRequestIDs(ctx, m.Headers[HeaderInternalRequestID], m.Headers[HeaderExternalRequestID])
}

func headers(values map[string]string) []kafka.Header {
	out := make([]kafka.Header, 0, len(values))
	for k, v := range values {
		if v == "" {
			continue
		}
		out = append(out, kafka.Header{Key: k, Value: []byte(v)})
	}
	return out
}
