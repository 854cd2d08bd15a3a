package linkstore

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/errs"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/platform/database"
	"github.com/Ramsey-B/fern/pkg/platform/tracing"
	"github.com/Ramsey-B/fern/pkg/storage"
)

const (
	linksTable   = "links"
	membersTable = "link_members"
)

type linkRecord struct {
	ID        string    `db:"id"`
	LinkType  string    `db:"link_type"`
	Version   int64     `db:"version"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

type memberRecord struct {
	LinkID           string    `db:"link_id"`
	LinkType         string    `db:"link_type"`
	EntityType       string    `db:"entity_type"`
	SourceSystemName string    `db:"source_system_name"`
	SourceSystemID   string    `db:"source_system_id"`
	CreatedBy        string    `db:"created_by"`
	CreatedAt        time.Time `db:"created_at"`
	CreatedReason    string    `db:"created_reason"`
}

var (
	linkStruct   = database.NewStruct(new(linkRecord))
	memberStruct = database.NewStruct(new(memberRecord))
)

// membersMapping partitions members by link so one group reads as a single partition scan.
func membersMapping() storage.Mapping[memberRecord, models.LinkMember] {
	return storage.Mapping[memberRecord, models.LinkMember]{
		Table:            membersTable,
		PartitionColumns: []string{"link_id"},
		RowColumns:       []string{"entity_type", "source_system_name", "source_system_id"},
		ToModel: func(r memberRecord) (models.LinkMember, error) {
			return models.LinkMember{
				EntityReference: models.NewEntityReference(r.EntityType, r.SourceSystemName, r.SourceSystemID),
				CreatedBy:       r.CreatedBy,
				CreatedAt:       r.CreatedAt.UTC(),
				CreatedReason:   r.CreatedReason,
			}, nil
		},
	}
}

func toMemberRecord(linkID, linkType string, m models.LinkMember) memberRecord {
	return memberRecord{
		LinkID:           linkID,
		LinkType:         linkType,
		EntityType:       m.EntityType,
		SourceSystemName: m.SourceSystemName,
		SourceSystemID:   m.SourceSystemID,
		CreatedBy:        m.CreatedBy,
		CreatedAt:        models.NormalizeTime(m.CreatedAt),
		CreatedReason:    m.CreatedReason,
	}
}

type PostgresStore struct {
	db      database.DB
	logger  ectologger.Logger
	members *storage.PostgresTable[memberRecord, models.LinkMember]
}

func NewPostgresStore(db database.DB, logger ectologger.Logger) *PostgresStore {
	return &PostgresStore{
		db:      db,
		logger:  logger,
		members: storage.NewPostgresTable(db, logger, membersMapping()),
	}
}

func (s *PostgresStore) GetByMember(ctx context.Context, linkType string, ref models.EntityReference) (*models.Link, error) {
	ctx, span := tracing.StartSpan(ctx, "linkstore.PostgresStore.GetByMember")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("link_id").From(membersTable)
	sb.Where(
		sb.Equal("link_type", linkType),
		sb.Equal("entity_type", ref.EntityType),
		sb.Equal("source_system_name", ref.SourceSystemName),
		sb.Equal("source_system_id", ref.SourceSystemID),
	)

	query, args := sb.Build()
	var linkID string
	err := s.db.GetContext(ctx, &linkID, query, args...)
	if database.IsNoRows(err) {
		return nil, errs.NotFound("%s is not in a %s link", ref, linkType)
	}
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithField("entity", ref.String()).Error("failed to find link by member")
		return nil, errs.Transient(err, "failed to find %s link for %s", linkType, ref)
	}
	return s.Get(ctx, linkType, linkID)
}

func (s *PostgresStore) Get(ctx context.Context, linkType, id string) (*models.Link, error) {
	ctx, span := tracing.StartSpan(ctx, "linkstore.PostgresStore.Get")
	defer span.End()

	sb := linkStruct.SelectFrom(linksTable)
	sb.Where(sb.Equal("id", id), sb.Equal("link_type", linkType))

	query, args := sb.Build()
	var record linkRecord
	err := s.db.GetContext(ctx, &record, query, args...)
	if database.IsNoRows(err) {
		return nil, errs.NotFound("%s link %s not found", linkType, id)
	}
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithField("link_id", id).Error("failed to get link")
		return nil, errs.Transient(err, "failed to get link %s", id)
	}

	// Members are read after the version, so a concurrent change can only make the
	// version stale and fail the caller's commit.
	members, err := s.members.QueryPartition(ctx, id)
	if err != nil {
		return nil, err
	}

	return &models.Link{
		LinkType:  record.LinkType,
		ID:        record.ID,
		Version:   record.Version,
		CreatedAt: record.CreatedAt.UTC(),
		UpdatedAt: record.UpdatedAt.UTC(),
		Members:   members,
	}, nil
}

func (s *PostgresStore) ListByMember(ctx context.Context, ref models.EntityReference) ([]models.Link, error) {
	ctx, span := tracing.StartSpan(ctx, "linkstore.PostgresStore.ListByMember")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("link_type", "link_id").From(membersTable)
	sb.Where(
		sb.Equal("entity_type", ref.EntityType),
		sb.Equal("source_system_name", ref.SourceSystemName),
		sb.Equal("source_system_id", ref.SourceSystemID),
	)
	sb.OrderBy("link_type")

	query, args := sb.Build()
	var rows []struct {
		LinkType string `db:"link_type"`
		LinkID   string `db:"link_id"`
	}
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		s.logger.WithContext(ctx).WithError(err).WithField("entity", ref.String()).Error("failed to list links by member")
		return nil, errs.Transient(err, "failed to list links for %s", ref)
	}

	links := make([]models.Link, 0, len(rows))
	for _, row := range rows {
		link, err := s.Get(ctx, row.LinkType, row.LinkID)
		if errs.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		links = append(links, *link)
	}
	return links, nil
}

func (s *PostgresStore) Commit(ctx context.Context, c Commit) (*models.Link, error) {
	ctx, span := tracing.StartSpan(ctx, "linkstore.PostgresStore.Commit")
	defer span.End()

	log := s.logger.WithContext(ctx).WithFields(map[string]any{
		"link_type": c.LinkType,
		"link_id":   c.targetID(),
		"absorbed":  len(c.Absorbed),
		"added":     len(c.Added),
	})

	ctx, tx, err := s.db.GetTx(ctx, nil)
	if err != nil {
		return nil, errs.Transient(err, "failed to begin link commit")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	result := c.result()
	at := models.NormalizeTime(c.At)

	if c.Target == nil {
		ib := linkStruct.InsertInto(linksTable, &linkRecord{
			ID:        result.ID,
			LinkType:  c.LinkType,
			Version:   result.Version,
			CreatedAt: at,
			UpdatedAt: at,
		})
		query, args := ib.Build()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return nil, s.writeError(log, err, "failed to create link")
		}
	} else {
		ub := database.NewUpdateBuilder()
		ub.Update(linksTable).
			Set(ub.Incr("version"), ub.Assign("updated_at", at)).
			Where(ub.Equal("id", c.Target.ID), ub.Equal("version", c.Target.Version))
		if err := s.execVersioned(ctx, tx, log, ub.Build); err != nil {
			return nil, err
		}
	}

	for _, absorbed := range c.Absorbed {
		ub := database.NewUpdateBuilder()
		ub.Update(membersTable).
			Set(ub.Assign("link_id", result.ID)).
			Where(ub.Equal("link_id", absorbed.ID))
		query, args := ub.Build()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return nil, s.writeError(log, err, "failed to move link members")
		}

		del := database.NewDeleteBuilder()
		del.DeleteFrom(linksTable).Where(del.Equal("id", absorbed.ID), del.Equal("version", absorbed.Version))
		if err := s.execVersioned(ctx, tx, log, del.Build); err != nil {
			return nil, err
		}
	}

	added := make([]any, 0, len(c.Added))
	for _, m := range c.Added {
		if c.Target.HasMember(m.EntityReference) || absorbedMember(c, m.EntityReference) {
			continue
		}
		record := toMemberRecord(result.ID, c.LinkType, m)
		added = append(added, &record)
	}
	if len(added) > 0 {
		query, args := memberStruct.InsertInto(membersTable, added...).Build()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return nil, s.writeError(log, err, "failed to insert link members")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, s.writeError(log, err, "failed to commit link")
	}

	log.WithField("version", result.Version).Debug("Committed link")
	return result, nil
}

func absorbedMember(c Commit, ref models.EntityReference) bool {
	for _, absorbed := range c.Absorbed {
		if absorbed.HasMember(ref) {
			return true
		}
	}
	return false
}

// execVersioned runs a version-checked write. No affected row means another writer won.
func (s *PostgresStore) execVersioned(ctx context.Context, tx database.Tx, log ectologger.Logger, build func() (string, []any)) error {
	query, args := build()
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return s.writeError(log, err, "failed to write link")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return errs.Transient(err, "failed to read affected rows")
	}
	if affected == 0 {
		return errs.Conflict("link version changed during commit")
	}
	return nil
}

func (s *PostgresStore) writeError(log ectologger.Logger, err error, message string) error {
	if database.IsUniqueViolation(err) {
		log.WithError(err).Debug("link commit lost a race")
		return errs.WrapConflict(err, "%s", message)
	}
	log.WithError(err).Error(message)
	return errs.Transient(err, "%s", message)
}
