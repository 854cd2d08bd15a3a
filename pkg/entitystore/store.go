// Package entitystore is the append-only temporal store of entity versions.
package entitystore

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/errs"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/platform/database"
	"github.com/Ramsey-B/fern/pkg/platform/tracing"
	"github.com/Ramsey-B/fern/pkg/searchindex"
	"github.com/Ramsey-B/fern/pkg/storage"
)

const entitiesTable = "entities"

type entityRecord struct {
	EntityType       string                            `db:"entity_type"`
	SourceSystemName string                            `db:"source_system_name"`
	SourceSystemID   string                            `db:"source_system_id"`
	ValidFrom        time.Time                         `db:"valid_from"`
	Data             database.JSONB[map[string]string] `db:"data"`
}

// Mapping keys versions by pointer partition and validFrom row.
func Mapping() storage.Mapping[entityRecord, models.RegisteredEntity] {
	return storage.Mapping[entityRecord, models.RegisteredEntity]{
		Table:            entitiesTable,
		PartitionColumns: []string{"entity_type", "source_system_name", "source_system_id"},
		RowColumns:       []string{"valid_from"},
		KeyOf: func(e models.RegisteredEntity) storage.Key {
			return storage.Key{
				Partition: []any{e.Type, e.Pointer.SourceSystemName, e.Pointer.SourceSystemID},
				Row:       []any{models.NormalizeTime(e.ValidFrom)},
			}
		},
		ToRecord: func(e models.RegisteredEntity) (entityRecord, error) {
			return entityRecord{
				EntityType:       e.Type,
				SourceSystemName: e.Pointer.SourceSystemName,
				SourceSystemID:   e.Pointer.SourceSystemID,
				ValidFrom:        models.NormalizeTime(e.ValidFrom),
				Data:             database.NewJSONB(copyData(e.Data)),
			}, nil
		},
		ToModel: func(r entityRecord) (models.RegisteredEntity, error) {
			return models.RegisteredEntity{
				Type: r.EntityType,
				Pointer: models.EntityPointer{
					SourceSystemName: r.SourceSystemName,
					SourceSystemID:   r.SourceSystemID,
				},
				Data:      copyData(r.Data.GetValue()),
				ValidFrom: r.ValidFrom.UTC(),
			}, nil
		},
		CompareRows: func(a, b models.RegisteredEntity) int {
			return a.ValidFrom.Compare(b.ValidFrom)
		},
	}
}

func copyData(data map[string]string) map[string]string {
	out := make(map[string]string, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}

type Store struct {
	table  storage.Store[models.RegisteredEntity]
	index  searchindex.Index
	fields searchindex.Fields
	logger ectologger.Logger
}

func NewStore(table storage.Store[models.RegisteredEntity], index searchindex.Index, fields searchindex.Fields, logger ectologger.Logger) *Store {
	return &Store{
		table:  table,
		index:  index,
		fields: fields,
		logger: logger,
	}
}

func NewPostgresStore(db database.DB, index searchindex.Index, fields searchindex.Fields, logger ectologger.Logger) *Store {
	return NewStore(storage.NewPostgresTable(db, logger, Mapping()), index, fields, logger)
}

func NewMemoryStore(index searchindex.Index, fields searchindex.Fields, logger ectologger.Logger) *Store {
	return NewStore(storage.NewMemoryTable(Mapping()), index, fields, logger)
}

// Store appends a version and indexes it. A validFrom earlier than the pointer's
// latest version is a Conflict. The check reads the history before the insert and is
// not atomic with it, so writes for one pointer must be serialized by the caller; the
// sync topic is keyed by pointer for that reason. Storing an existing (pointer,
// validFrom) keeps the first version and only repeats the indexing.
func (s *Store) Store(ctx context.Context, entity models.RegisteredEntity) error {
	ctx, span := tracing.StartSpan(ctx, "entitystore.Store.Store")
	defer span.End()

	if entity.Type == "" || entity.Pointer.SourceSystemName == "" || entity.Pointer.SourceSystemID == "" {
		return errs.Validation("entity type, source system name and source system id are required")
	}
	entity.ValidFrom = models.NormalizeTime(entity.ValidFrom)
	log := s.logger.WithContext(ctx).WithFields(map[string]any{
		"entity":     entity.Reference().String(),
		"valid_from": entity.ValidFrom,
	})

	versions, err := s.history(ctx, entity.Reference())
	if err != nil {
		return err
	}
	if n := len(versions); n > 0 && versions[n-1].ValidFrom.After(entity.ValidFrom) {
		return errs.Conflict("version at %s is earlier than the latest version at %s for %s",
			entity.ValidFrom.Format(time.RFC3339Nano), versions[n-1].ValidFrom.Format(time.RFC3339Nano), entity.Reference())
	}

	inserted, err := s.table.Put(ctx, entity)
	if err != nil {
		return err
	}
	if !inserted {
		log.Debug("Version already stored")
	}

	if err := s.index.Index(ctx, s.fields.BuildDocument(entity)); err != nil {
		log.WithError(err).Error("failed to index entity version")
		return errs.Transient(err, "failed to index %s", entity.Reference())
	}

	log.Debug("Stored entity version")
	return nil
}

// Retrieve returns the latest version with validFrom at or before asOf.
func (s *Store) Retrieve(ctx context.Context, entityType, sourceSystemName, sourceSystemID string, asOf time.Time) (*models.RegisteredEntity, error) {
	ctx, span := tracing.StartSpan(ctx, "entitystore.Store.Retrieve")
	defer span.End()

	ref := models.NewEntityReference(entityType, sourceSystemName, sourceSystemID)
	versions, err := s.history(ctx, ref)
	if err != nil {
		return nil, err
	}
	asOf = models.NormalizeTime(asOf)
	for i := len(versions) - 1; i >= 0; i-- {
		if !versions[i].ValidFrom.After(asOf) {
			return &versions[i], nil
		}
	}
	return nil, errs.NotFound("%s not found as of %s", ref, asOf.Format(time.RFC3339Nano))
}

// History returns every version of one pointer, oldest first.
func (s *Store) History(ctx context.Context, entityType, sourceSystemName, sourceSystemID string) ([]models.RegisteredEntity, error) {
	return s.history(ctx, models.NewEntityReference(entityType, sourceSystemName, sourceSystemID))
}

func (s *Store) history(ctx context.Context, ref models.EntityReference) ([]models.RegisteredEntity, error) {
	return s.table.QueryPartition(ctx, ref.EntityType, ref.SourceSystemName, ref.SourceSystemID)
}

// ListCurrent returns the version current at asOf for every pointer of entityType.
func (s *Store) ListCurrent(ctx context.Context, entityType string, asOf time.Time) ([]models.RegisteredEntity, error) {
	ctx, span := tracing.StartSpan(ctx, "entitystore.Store.ListCurrent")
	defer span.End()

	return s.table.QueryLatest(ctx, models.NormalizeTime(asOf), entityType)
}

// Search answers a filtered, paged query through the search index.
func (s *Store) Search(ctx context.Context, req models.SearchRequest, entityType string, asOf time.Time) (*models.EntitySearchResult, error) {
	ctx, span := tracing.StartSpan(ctx, "entitystore.Store.Search")
	defer span.End()

	page, err := s.index.Search(ctx, req, entityType, asOf)
	if err != nil {
		return nil, err
	}

	result := &models.EntitySearchResult{
		Results:              make([]models.RegisteredEntity, 0, len(page.Results)),
		Skipped:              page.Skipped,
		Taken:                page.Taken,
		TotalNumberOfRecords: page.TotalNumberOfRecords,
	}
	for _, doc := range page.Results {
		result.Results = append(result.Results, models.RegisteredEntity{
			Type:      doc.EntityType,
			Pointer:   doc.Pointer,
			Data:      copyData(doc.Data),
			ValidFrom: doc.ValidFrom,
		})
	}
	return result, nil
}
