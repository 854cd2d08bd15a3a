// Package events publishes registry lifecycle events to the output topic.
package events

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/platform/tracing"
)

type Publisher interface {
	PublishEntityEvent(ctx context.Context, event *kafka.EntityEvent) error
	PublishLinkEvent(ctx context.Context, event *kafka.LinkEvent) error
}

// Emitter observes stored versions and committed links. Publishing is best effort:
// failures are logged and never fail the write that triggered them.
type Emitter struct {
	producer Publisher
	logger   ectologger.Logger
}

func NewEmitter(producer Publisher, logger ectologger.Logger) *Emitter {
	return &Emitter{
		producer: producer,
		logger:   logger,
	}
}

// EntitySynced emits entity.synced.
func (e *Emitter) EntitySynced(ctx context.Context, entity models.RegisteredEntity, item models.SyncQueueItem) {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EntitySynced")
	defer span.End()

	event := &kafka.EntityEvent{
		EventType:         string(EventTypeEntitySynced),
		EntityType:        entity.Type,
		SourceSystemName:  entity.Pointer.SourceSystemName,
		SourceSystemID:    entity.Pointer.SourceSystemID,
		Data:              entity.Data,
		ValidFrom:         entity.ValidFrom,
		InternalRequestID: item.InternalRequestID,
		ExternalRequestID: item.ExternalRequestID,
	}

	if err := e.producer.PublishEntityEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithField("entity", entity.Reference().String()).Error("Failed to emit entity.synced event")
	}
}

// LinkCommitted emits link.created for a new group and link.merged when a group grows.
func (e *Emitter) LinkCommitted(ctx context.Context, change matching.LinkChange) {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.LinkCommitted")
	defer span.End()

	eventType := EventTypeLinkMerged
	if change.Kind == matching.ChangeCreated {
		eventType = EventTypeLinkCreated
	}

	event := &kafka.LinkEvent{
		EventType: string(eventType),
		LinkType:  change.Link.LinkType,
		LinkID:    change.Link.ID,
		Version:   change.Link.Version,
		Members:   change.Link.References(),
		Added:     change.Added,
		Absorbed:  change.Absorbed,
		Timestamp: change.Link.UpdatedAt,
	}

	if err := e.producer.PublishLinkEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"link_id":    change.Link.ID,
			"event_type": eventType,
		}).Error("Failed to emit link event")
	}
}
