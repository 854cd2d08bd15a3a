package searchindex

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"
	"github.com/lib/pq"

	"github.com/Ramsey-B/fern/pkg/errs"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/platform/database"
	"github.com/Ramsey-B/fern/pkg/platform/tracing"
	"github.com/Ramsey-B/fern/pkg/storage"
)

const documentsTable = "search_documents"

type documentRecord struct {
	EntityType       string                            `db:"entity_type"`
	SourceSystemName string                            `db:"source_system_name"`
	SourceSystemID   string                            `db:"source_system_id"`
	ValidFrom        time.Time                         `db:"valid_from"`
	Document         database.JSONB[map[string]any]    `db:"document"`
	Data             database.JSONB[map[string]string] `db:"data"`
}

func postgresMapping(fields Fields) storage.Mapping[documentRecord, models.SearchDocument] {
	m := Mapping(fields)
	return storage.Mapping[documentRecord, models.SearchDocument]{
		Table:            documentsTable,
		PartitionColumns: m.PartitionColumns,
		RowColumns:       m.RowColumns,
		KeyOf:            m.KeyOf,
		ToRecord: func(d models.SearchDocument) (documentRecord, error) {
			return documentRecord{
				EntityType:       d.EntityType,
				SourceSystemName: d.Pointer.SourceSystemName,
				SourceSystemID:   d.Pointer.SourceSystemID,
				ValidFrom:        models.NormalizeTime(d.ValidFrom),
				Document:         database.NewJSONB(d.Fields),
				Data:             database.NewJSONB(d.Data),
			}, nil
		},
		ToModel: func(r documentRecord) (models.SearchDocument, error) {
			return fields.BuildDocument(models.RegisteredEntity{
				Type: r.EntityType,
				Pointer: models.EntityPointer{
					SourceSystemName: r.SourceSystemName,
					SourceSystemID:   r.SourceSystemID,
				},
				Data:      r.Data.GetValue(),
				ValidFrom: r.ValidFrom,
			}), nil
		},
	}
}

// PostgresIndex keeps every document version in a jsonb column and resolves the
// current version per pointer at query time.
type PostgresIndex struct {
	db     database.DB
	logger ectologger.Logger
	fields Fields
	table  *storage.PostgresTable[documentRecord, models.SearchDocument]
}

func NewPostgresIndex(db database.DB, fields Fields, logger ectologger.Logger) *PostgresIndex {
	return &PostgresIndex{
		db:     db,
		logger: logger,
		fields: fields,
		table:  storage.NewPostgresTable(db, logger, postgresMapping(fields)),
	}
}

func (i *PostgresIndex) Index(ctx context.Context, doc models.SearchDocument) error {
	_, err := i.table.Put(ctx, doc)
	return err
}

func (i *PostgresIndex) Search(ctx context.Context, req models.SearchRequest, entityType string, asOf time.Time) (*models.SearchIndexResult, error) {
	ctx, span := tracing.StartSpan(ctx, "searchindex.PostgresIndex.Search")
	defer span.End()

	q, err := i.fields.compile(req, entityType, asOf)
	if err != nil {
		return nil, err
	}

	cb := database.NewSelectBuilder()
	cb.Select("COUNT(*)")
	cb.From(cb.BuilderAs(currentVersions(entityType, q.asOf), "current"))
	q.where(cb)

	countQuery, countArgs := cb.Build()
	var total int
	if err := i.db.GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		i.logger.WithContext(ctx).WithError(err).WithField("entity_type", entityType).Error("failed to count search documents")
		return nil, errs.Transient(err, "failed to count search documents")
	}

	sb := database.NewSelectBuilder()
	sb.Select("current.entity_type", "current.source_system_name", "current.source_system_id", "current.valid_from", "current.document", "current.data")
	sb.From(sb.BuilderAs(currentVersions(entityType, q.asOf), "current"))
	q.where(sb)
	q.order(sb)
	sb.Limit(q.take).Offset(q.skip)

	query, args := sb.Build()
	var records []documentRecord
	if err := i.db.SelectContext(ctx, &records, query, args...); err != nil {
		i.logger.WithContext(ctx).WithError(err).WithField("entity_type", entityType).Error("failed to search documents")
		return nil, errs.Transient(err, "failed to search documents")
	}

	mapping := postgresMapping(i.fields)
	result := &models.SearchIndexResult{
		Results:              make([]models.SearchDocument, 0, len(records)),
		Skipped:              q.skip,
		TotalNumberOfRecords: total,
	}
	for _, r := range records {
		doc, err := mapping.ToModel(r)
		if err != nil {
			return nil, err
		}
		result.Results = append(result.Results, doc)
	}
	result.Taken = len(result.Results)
	return result, nil
}

func currentVersions(entityType string, asOf time.Time) *sqlbuilder.SelectBuilder {
	sb := database.NewSelectBuilder()
	sb.Select("DISTINCT ON (source_system_name, source_system_id) entity_type", "source_system_name", "source_system_id", "valid_from", "document", "data")
	sb.From(documentsTable)
	sb.Where(sb.Equal("entity_type", entityType), sb.LessEqualThan("valid_from", asOf))
	sb.OrderBy("source_system_name", "source_system_id", "valid_from DESC")
	return sb
}

func (q *query) where(sb *sqlbuilder.SelectBuilder) {
	if len(q.groups) == 0 {
		return
	}
	groups := make([]string, 0, len(q.groups))
	for _, g := range q.groups {
		if len(g.filters) == 0 {
			continue
		}
		conds := make([]string, 0, len(g.filters))
		for _, f := range g.filters {
			conds = append(conds, f.condition(sb))
		}
		if g.or {
			groups = append(groups, sb.Or(conds...))
		} else {
			groups = append(groups, sb.And(conds...))
		}
	}
	if len(groups) == 0 {
		return
	}
	if q.or {
		sb.Where(sb.Or(groups...))
	} else {
		sb.Where(groups...)
	}
}

func (q *query) order(sb *sqlbuilder.SelectBuilder) {
	tieBreak := []string{"current.entity_type", "current.source_system_name", "current.source_system_id"}
	if q.orderBy == nil {
		sb.OrderBy(tieBreak...)
		return
	}
	direction := "ASC"
	if q.desc {
		direction = "DESC"
	}
	sb.OrderBy(append([]string{fmt.Sprintf("%s %s NULLS LAST", typedExpr(*q.orderBy), direction)}, tieBreak...)...)
}

func textExpr(def FieldDefinition) string {
	return fmt.Sprintf("current.document->>'%s'", def.Name)
}

func jsonExpr(def FieldDefinition) string {
	return fmt.Sprintf("current.document->'%s'", def.Name)
}

func typedExpr(def FieldDefinition) string {
	switch def.Kind {
	case KindInteger:
		return fmt.Sprintf("(%s)::bigint", textExpr(def))
	case KindDate:
		return fmt.Sprintf("(%s)::timestamptz", textExpr(def))
	}
	return textExpr(def)
}

func likePattern(raw string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(strings.ToLower(raw))
	return "%" + escaped + "%"
}

func (f filter) condition(sb *sqlbuilder.SelectBuilder) string {
	switch f.operator {
	case models.OperatorIsNull:
		return sb.IsNull(textExpr(f.def))
	case models.OperatorIsNotNull:
		return sb.IsNotNull(textExpr(f.def))
	}

	if f.def.Kind == KindArray {
		switch f.operator {
		case models.OperatorEquals:
			return fmt.Sprintf("%s @> jsonb_build_array(%s::text)", jsonExpr(f.def), sb.Var(f.value))
		case models.OperatorIn:
			values := make([]string, 0, len(f.values))
			for _, v := range f.values {
				values = append(values, fmt.Sprint(v))
			}
			return fmt.Sprintf("jsonb_exists_any(%s, %s)", jsonExpr(f.def), sb.Var(pq.Array(values)))
		default:
			return fmt.Sprintf("EXISTS (SELECT 1 FROM jsonb_array_elements_text(%s) AS element(value) WHERE LOWER(element.value) LIKE %s)",
				jsonExpr(f.def), sb.Var(likePattern(f.raw)))
		}
	}

	expr := typedExpr(f.def)
	switch f.operator {
	case models.OperatorEquals:
		return sb.Equal(expr, f.value)
	case models.OperatorIn:
		if len(f.values) == 0 {
			return "FALSE"
		}
		return sb.In(expr, f.values...)
	case models.OperatorGreaterThan:
		return sb.GreaterThan(expr, f.value)
	case models.OperatorGreaterThanOrEqualTo:
		return sb.GreaterEqualThan(expr, f.value)
	case models.OperatorLessThan:
		return sb.LessThan(expr, f.value)
	case models.OperatorLessThanOrEqualTo:
		return sb.LessEqualThan(expr, f.value)
	default:
		return sb.Like(fmt.Sprintf("LOWER(%s)", textExpr(f.def)), likePattern(f.raw))
	}
}
