// Package syncmanager ingests one queued entity update: it stores a new version and
// asks the matching pipeline to evaluate it.
package syncmanager

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/errs"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/names"
	"github.com/Ramsey-B/fern/pkg/platform/reqctx"
	"github.com/Ramsey-B/fern/pkg/platform/tracing"
)

type EntityWriter interface {
	Store(ctx context.Context, entity models.RegisteredEntity) error
}

type MatchPublisher interface {
	PublishMatch(ctx context.Context, item models.EntityForMatching) error
}

type SyncPublisher interface {
	PublishSync(ctx context.Context, item models.SyncQueueItem) error
}

// SyncObserver is told about every stored version. Observers are best effort.
type SyncObserver interface {
	EntitySynced(ctx context.Context, entity models.RegisteredEntity, item models.SyncQueueItem)
}

// IngestRequest is an entity update as received at the boundary.
type IngestRequest struct {
	SourceSystemName  string            `json:"sourceSystemName" validate:"required"`
	SourceSystemID    string            `json:"sourceSystemId" validate:"required"`
	Data              map[string]string `json:"data" validate:"required"`
	PointInTime       *time.Time        `json:"pointInTime,omitempty"`
	ExternalRequestID string            `json:"externalRequestId,omitempty"`
}

type Manager struct {
	logger    ectologger.Logger
	store     EntityWriter
	matches   MatchPublisher
	syncs     SyncPublisher
	names     *names.Translator
	validate  *validator.Validate
	observers []SyncObserver
	now       func() time.Time
}

func NewManager(logger ectologger.Logger, store EntityWriter, matches MatchPublisher, syncs SyncPublisher, translator *names.Translator, observers ...SyncObserver) *Manager {
	return &Manager{
		logger:    logger,
		store:     store,
		matches:   matches,
		syncs:     syncs,
		names:     translator,
		validate:  validator.New(),
		observers: observers,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ProcessSync stores item as a new version and enqueues its match request. A
// pointInTime older than the latest stored version is rejected as a validation
// failure so the message is dropped rather than redelivered.
func (m *Manager) ProcessSync(ctx context.Context, item models.SyncQueueItem) (*models.RegisteredEntity, error) {
	ctx, span := tracing.StartSpan(ctx, "syncmanager.Manager.ProcessSync")
	defer span.End()

	if err := m.validate.Struct(item); err != nil {
		metrics.SyncsTotal.WithLabelValues(entityType(item), "invalid").Inc()
		return nil, errs.WrapValidation(err, "invalid sync item")
	}
	if !m.names.IsCanonical(item.Entity.Type) {
		metrics.SyncsTotal.WithLabelValues(item.Entity.Type, "invalid").Inc()
		return nil, errs.Validation("unrecognized entity type %q", item.Entity.Type)
	}

	validFrom := m.now()
	if item.PointInTime != nil {
		validFrom = *item.PointInTime
	}

	entity := models.RegisteredEntity{
		Type: item.Entity.Type,
		Pointer: models.EntityPointer{
			SourceSystemName: item.Entity.SourceSystemName,
			SourceSystemID:   item.Entity.SourceSystemID,
		},
		Data:      item.Entity.Data,
		ValidFrom: models.NormalizeTime(validFrom),
	}

	log := m.logger.WithContext(ctx).WithFields(map[string]any{
		"entity":              entity.Reference().String(),
		"valid_from":          entity.ValidFrom,
		"internal_request_id": item.InternalRequestID,
		"external_request_id": item.ExternalRequestID,
	})

	ctx = reqctx.WithRequestIDs(ctx, item.InternalRequestID, item.ExternalRequestID)
	if err := m.store.Store(ctx, entity); err != nil {
		if errs.IsConflict(err) {
			metrics.SyncsTotal.WithLabelValues(entity.Type, "stale").Inc()
			log.WithError(err).Warn("Dropping sync item older than the latest version")
			return nil, errs.WrapValidation(err, "pointInTime is earlier than the latest version of %s", entity.Reference())
		}
		metrics.SyncsTotal.WithLabelValues(entity.Type, "failed").Inc()
		return nil, err
	}

	for _, o := range m.observers {
		o.EntitySynced(ctx, entity, item)
	}

	if err := m.matches.PublishMatch(ctx, models.EntityForMatching{
		Type:             entity.Type,
		SourceSystemName: entity.Pointer.SourceSystemName,
		SourceSystemID:   entity.Pointer.SourceSystemID,
	}); err != nil {
		metrics.SyncsTotal.WithLabelValues(entity.Type, "failed").Inc()
		log.WithError(err).Error("failed to enqueue match request")
		return nil, errs.Transient(err, "failed to enqueue match request for %s", entity.Reference())
	}

	metrics.SyncsTotal.WithLabelValues(entity.Type, "stored").Inc()
	log.Info("Synced entity")
	return &entity, nil
}

// Ingest translates the plural boundary type name and enqueues a sync item.
func (m *Manager) Ingest(ctx context.Context, pluralType string, req IngestRequest) (*models.SyncQueueItem, error) {
	ctx, span := tracing.StartSpan(ctx, "syncmanager.Manager.Ingest")
	defer span.End()

	entityType, ok := m.names.Singular(pluralType)
	if !ok {
		return nil, errs.Validation("unrecognized entity type %q", pluralType)
	}
	if err := m.validate.Struct(req); err != nil {
		return nil, errs.WrapValidation(err, "invalid %s payload", pluralType)
	}

	item := models.SyncQueueItem{
		Entity: &models.SyncEntity{
			Type:             entityType,
			SourceSystemName: req.SourceSystemName,
			SourceSystemID:   req.SourceSystemID,
			Data:             req.Data,
		},
		PointInTime:       req.PointInTime,
		InternalRequestID: reqctx.InternalRequestID(ctx),
		ExternalRequestID: req.ExternalRequestID,
	}
	if item.InternalRequestID == "" {
		item.InternalRequestID = uuid.NewString()
	}
	if item.ExternalRequestID == "" {
		item.ExternalRequestID = reqctx.ExternalRequestID(ctx)
	}

	if err := m.syncs.PublishSync(ctx, item); err != nil {
		m.logger.WithContext(ctx).WithError(err).WithField("entity", item.Entity.Reference().String()).Error("failed to enqueue sync item")
		return nil, errs.Transient(err, "failed to enqueue sync item")
	}

	m.logger.WithContext(ctx).WithFields(map[string]any{
		"entity":              item.Entity.Reference().String(),
		"internal_request_id": item.InternalRequestID,
	}).Debug("Enqueued sync item")
	return &item, nil
}

func entityType(item models.SyncQueueItem) string {
	if item.Entity == nil {
		return ""
	}
	return item.Entity.Type
}
