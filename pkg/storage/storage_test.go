package storage

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/errs"
	"github.com/Ramsey-B/fern/pkg/platform/database"
)

type note struct {
	Topic string
	Seq   int
	Body  string
}

type noteRecord struct {
	Topic string `db:"topic"`
	Seq   int    `db:"seq"`
	Body  string `db:"body"`
}

func noteMapping() Mapping[noteRecord, note] {
	return Mapping[noteRecord, note]{
		Table:            "notes",
		PartitionColumns: []string{"topic"},
		RowColumns:       []string{"seq"},
		KeyOf:            func(n note) Key { return Key{Partition: []any{n.Topic}, Row: []any{n.Seq}} },
		ToRecord: func(n note) (noteRecord, error) {
			if strings.Contains(n.Body, "\x00") {
				return noteRecord{}, fmt.Errorf("invalid body")
			}
			return noteRecord{Topic: n.Topic, Seq: n.Seq, Body: n.Body}, nil
		},
		ToModel:     func(r noteRecord) (note, error) { return note{Topic: r.Topic, Seq: r.Seq, Body: r.Body}, nil },
		CompareRows: func(a, b note) int { return a.Seq - b.Seq },
	}
}

func TestMemoryTable(t *testing.T) {
	ctx := context.Background()
	table := NewMemoryTable(noteMapping())

	for _, n := range []note{{"b", 1, "b1"}, {"a", 10, "a10"}, {"a", 2, "a2"}} {
		inserted, err := table.Put(ctx, n)
		require.NoError(t, err)
		assert.True(t, inserted)
	}

	t.Run("put is insert only", func(t *testing.T) {
		inserted, err := table.Put(ctx, note{"a", 2, "changed"})
		require.NoError(t, err)
		assert.False(t, inserted)

		got, err := table.Get(ctx, Key{Partition: []any{"a"}, Row: []any{2}})
		require.NoError(t, err)
		assert.Equal(t, "a2", got.Body)
	})

	t.Run("get missing", func(t *testing.T) {
		_, err := table.Get(ctx, Key{Partition: []any{"a"}, Row: []any{3}})
		assert.True(t, errs.IsNotFound(err))
	})

	t.Run("query partition is ordered by row", func(t *testing.T) {
		got, err := table.QueryPartition(ctx, "a")
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, 2, got[0].Seq)
		assert.Equal(t, 10, got[1].Seq)
	})

	t.Run("empty prefix scans every partition", func(t *testing.T) {
		got, err := table.QueryPartition(ctx)
		require.NoError(t, err)
		assert.Len(t, got, 3)
		assert.Equal(t, "a", got[0].Topic)
		assert.Equal(t, "b", got[2].Topic)
	})

	t.Run("prefix longer than partition", func(t *testing.T) {
		_, err := table.QueryPartition(ctx, "a", 1)
		assert.Error(t, err)
	})

	t.Run("query latest keeps the newest row at or below the bound", func(t *testing.T) {
		got, err := table.QueryLatest(ctx, 5)
		require.NoError(t, err)
		assert.Equal(t, []note{{"a", 2, "a2"}, {"b", 1, "b1"}}, got)

		got, err = table.QueryLatest(ctx, 10, "a")
		require.NoError(t, err)
		assert.Equal(t, []note{{"a", 10, "a10"}}, got)

		got, err = table.QueryLatest(ctx, 0)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("query latest with a mismatched bound", func(t *testing.T) {
		_, err := table.QueryLatest(ctx, "five")
		assert.Error(t, err)
	})

	t.Run("conversion error", func(t *testing.T) {
		_, err := table.Put(ctx, note{"c", 1, "bad\x00"})
		assert.Error(t, err)
	})
}

func newMockTable(t *testing.T) (*PostgresTable[noteRecord, note], sqlmock.Sqlmock) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	db := database.NewDatabaseInstance(sqlx.NewDb(mockDB, "postgres"), logger)
	return NewPostgresTable(db, logger, noteMapping()), mock
}

func TestPostgresTable_Put(t *testing.T) {
	table, mock := newMockTable(t)

	mock.ExpectExec(`INSERT INTO notes .* ON CONFLICT DO NOTHING`).
		WithArgs("a", 1, "a1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO notes .* ON CONFLICT DO NOTHING`).
		WithArgs("a", 1, "a1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	inserted, err := table.Put(context.Background(), note{"a", 1, "a1"})
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = table.Put(context.Background(), note{"a", 1, "a1"})
	require.NoError(t, err)
	assert.False(t, inserted)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTable_PutDriverError(t *testing.T) {
	table, mock := newMockTable(t)

	mock.ExpectExec(`INSERT INTO notes`).WillReturnError(fmt.Errorf("connection reset"))

	_, err := table.Put(context.Background(), note{"a", 1, "a1"})
	assert.True(t, errs.IsTransient(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTable_Get(t *testing.T) {
	table, mock := newMockTable(t)

	mock.ExpectQuery(`SELECT .* FROM notes WHERE topic = \$1 AND seq = \$2`).
		WillReturnRows(sqlmock.NewRows([]string{"topic", "seq", "body"}).AddRow("a", 1, "a1"))
	mock.ExpectQuery(`SELECT .* FROM notes WHERE topic = \$1 AND seq = \$2`).
		WillReturnRows(sqlmock.NewRows([]string{"topic", "seq", "body"}))

	got, err := table.Get(context.Background(), Key{Partition: []any{"a"}, Row: []any{1}})
	require.NoError(t, err)
	assert.Equal(t, note{"a", 1, "a1"}, got)

	_, err = table.Get(context.Background(), Key{Partition: []any{"a"}, Row: []any{2}})
	assert.True(t, errs.IsNotFound(err))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTable_QueryPartition(t *testing.T) {
	table, mock := newMockTable(t)

	mock.ExpectQuery(`SELECT .* FROM notes WHERE topic = \$1 ORDER BY topic, seq ASC`).
		WithArgs("a").
		WillReturnRows(sqlmock.NewRows([]string{"topic", "seq", "body"}).
			AddRow("a", 1, "a1").
			AddRow("a", 2, "a2"))

	got, err := table.QueryPartition(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, []note{{"a", 1, "a1"}, {"a", 2, "a2"}}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTable_QueryLatest(t *testing.T) {
	table, mock := newMockTable(t)

	mock.ExpectQuery(`SELECT DISTINCT ON \(topic\) topic, seq, body FROM notes WHERE topic = \$1 AND seq <= \$2 ORDER BY topic, seq DESC`).
		WithArgs("a", 5).
		WillReturnRows(sqlmock.NewRows([]string{"topic", "seq", "body"}).AddRow("a", 2, "a2"))

	got, err := table.QueryLatest(context.Background(), 5, "a")
	require.NoError(t, err)
	assert.Equal(t, []note{{"a", 2, "a2"}}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryLatest_RequiresSingleRowColumn(t *testing.T) {
	mapping := noteMapping()
	mapping.RowColumns = []string{"seq", "body"}
	table := NewMemoryTable(mapping)

	_, err := table.QueryLatest(context.Background(), 1)
	assert.Error(t, err)
}
