package storage

import (
	"context"
	"strings"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/errs"
	"github.com/Ramsey-B/fern/pkg/platform/database"
	"github.com/Ramsey-B/fern/pkg/platform/tracing"
)

// PostgresTable is a Store over one Postgres table. R must carry db tags for every column.
type PostgresTable[R any, M any] struct {
	db      database.DB
	logger  ectologger.Logger
	mapping Mapping[R, M]
	record  *database.Struct
}

func NewPostgresTable[R any, M any](db database.DB, logger ectologger.Logger, mapping Mapping[R, M]) *PostgresTable[R, M] {
	return &PostgresTable[R, M]{
		db:      db,
		logger:  logger,
		mapping: mapping,
		record:  database.NewStruct(new(R)),
	}
}

func (t *PostgresTable[R, M]) Get(ctx context.Context, key Key) (M, error) {
	ctx, span := tracing.StartSpan(ctx, "storage.PostgresTable.Get")
	defer span.End()

	var zero M
	if err := t.mapping.validateKey(key); err != nil {
		return zero, err
	}

	sb := t.record.SelectFrom(t.mapping.Table)
	sb.Where(t.keyConditions(sb.Equal, t.mapping.PartitionColumns, key.Partition)...)
	sb.Where(t.keyConditions(sb.Equal, t.mapping.RowColumns, key.Row)...)
	sb.Limit(1)

	query, args := sb.Build()
	var record R
	err := t.db.GetContext(ctx, &record, query, args...)
	if database.IsNoRows(err) {
		return zero, errs.NotFound("%s row %s not found", t.mapping.Table, key)
	}
	if err != nil {
		t.logger.WithContext(ctx).WithError(err).WithField("key", key.String()).Errorf("failed to get %s row", t.mapping.Table)
		return zero, errs.Transient(err, "failed to get %s row", t.mapping.Table)
	}
	return t.mapping.ToModel(record)
}

func (t *PostgresTable[R, M]) Put(ctx context.Context, model M) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "storage.PostgresTable.Put")
	defer span.End()

	key := t.mapping.KeyOf(model)
	if err := t.mapping.validateKey(key); err != nil {
		return false, err
	}
	record, err := t.mapping.ToRecord(model)
	if err != nil {
		return false, err
	}

	ib := t.record.InsertInto(t.mapping.Table, &record).OnConflictDoNothing()
	query, args := ib.Build()
	result, err := t.db.ExecContext(ctx, query, args...)
	if err != nil {
		t.logger.WithContext(ctx).WithError(err).WithField("key", key.String()).Errorf("failed to insert %s row", t.mapping.Table)
		return false, errs.Transient(err, "failed to insert %s row", t.mapping.Table)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, errs.Transient(err, "failed to read affected rows for %s", t.mapping.Table)
	}

	t.logger.WithContext(ctx).WithFields(map[string]any{
		"key":      key.String(),
		"inserted": affected > 0,
	}).Debugf("Put %s row", t.mapping.Table)
	return affected > 0, nil
}

func (t *PostgresTable[R, M]) QueryPartition(ctx context.Context, prefix ...any) ([]M, error) {
	ctx, span := tracing.StartSpan(ctx, "storage.PostgresTable.QueryPartition")
	defer span.End()

	if err := t.mapping.validatePrefix(prefix); err != nil {
		return nil, err
	}

	sb := t.record.SelectFrom(t.mapping.Table)
	if len(prefix) > 0 {
		sb.Where(t.keyConditions(sb.Equal, t.mapping.PartitionColumns[:len(prefix)], prefix)...)
	}
	order := append(append([]string{}, t.mapping.PartitionColumns...), t.mapping.RowColumns...)
	sb.OrderBy(order...).Asc()

	query, args := sb.Build()
	var records []R
	if err := t.db.SelectContext(ctx, &records, query, args...); err != nil {
		t.logger.WithContext(ctx).WithError(err).Errorf("failed to query %s partition", t.mapping.Table)
		return nil, errs.Transient(err, "failed to query %s partition", t.mapping.Table)
	}

	models := make([]M, 0, len(records))
	for _, r := range records {
		m, err := t.mapping.ToModel(r)
		if err != nil {
			return nil, err
		}
		models = append(models, m)
	}
	return models, nil
}

func (t *PostgresTable[R, M]) QueryLatest(ctx context.Context, upTo any, prefix ...any) ([]M, error) {
	ctx, span := tracing.StartSpan(ctx, "storage.PostgresTable.QueryLatest")
	defer span.End()

	if err := t.mapping.validateLatest(prefix); err != nil {
		return nil, err
	}

	rowColumn := t.mapping.RowColumns[0]
	cols := t.record.Columns()
	cols[0] = "DISTINCT ON (" + strings.Join(t.mapping.PartitionColumns, ", ") + ") " + cols[0]

	sb := database.NewSelectBuilder()
	sb.Select(cols...)
	sb.From(t.mapping.Table)
	if len(prefix) > 0 {
		sb.Where(t.keyConditions(sb.Equal, t.mapping.PartitionColumns[:len(prefix)], prefix)...)
	}
	sb.Where(sb.LessEqualThan(rowColumn, upTo))
	sb.OrderBy(append(append([]string{}, t.mapping.PartitionColumns...), rowColumn+" DESC")...)

	query, args := sb.Build()
	var records []R
	if err := t.db.SelectContext(ctx, &records, query, args...); err != nil {
		t.logger.WithContext(ctx).WithError(err).Errorf("failed to query latest %s rows", t.mapping.Table)
		return nil, errs.Transient(err, "failed to query latest %s rows", t.mapping.Table)
	}

	models := make([]M, 0, len(records))
	for _, r := range records {
		m, err := t.mapping.ToModel(r)
		if err != nil {
			return nil, err
		}
		models = append(models, m)
	}
	return models, nil
}

func (t *PostgresTable[R, M]) keyConditions(equal func(string, any) string, columns []string, values []any) []string {
	conds := make([]string, len(columns))
	for i, col := range columns {
		conds[i] = equal(col, values[i])
	}
	return conds
}
