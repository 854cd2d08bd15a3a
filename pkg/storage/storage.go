// Package storage is the generic table abstraction the registry stores are built on.
// A Store persists domain models of type M through a Mapping onto a record type R,
// keyed by partition columns and row columns.
package storage

import (
	"cmp"
	"context"
	"fmt"
	"strings"
	"time"
)

// Key locates one row. Partition values come first, in PartitionColumns order.
type Key struct {
	Partition []any
	Row       []any
}

func (k Key) String() string {
	return joinParts(k.Partition) + "/" + joinParts(k.Row)
}

type Store[M any] interface {
	// Get returns errs.NotFound when no row has the key.
	Get(ctx context.Context, key Key) (M, error)
	// Put inserts the model. An existing row with the same key is left untouched and
	// Put reports inserted=false.
	Put(ctx context.Context, model M) (inserted bool, err error)
	// QueryPartition returns every row whose partition starts with prefix, ordered
	// by partition then row key ascending.
	QueryPartition(ctx context.Context, prefix ...any) ([]M, error)
	// QueryLatest returns, for every partition that starts with prefix, the row with the
	// greatest row key at or below upTo, ordered by partition. The table must have a
	// single row column.
	QueryLatest(ctx context.Context, upTo any, prefix ...any) ([]M, error)
}

// Mapping converts between a domain model and its stored record.
type Mapping[R any, M any] struct {
	Table            string
	PartitionColumns []string
	RowColumns       []string
	KeyOf            func(M) Key
	ToRecord         func(M) (R, error)
	ToModel          func(R) (M, error)
	// CompareRows orders two models of the same partition by row key. Only the memory table uses it.
	CompareRows func(a, b M) int
}

func (m Mapping[R, M]) validatePrefix(prefix []any) error {
	if len(prefix) > len(m.PartitionColumns) {
		return fmt.Errorf("%s: partition prefix has %d parts, table has %d partition columns", m.Table, len(prefix), len(m.PartitionColumns))
	}
	return nil
}

func (m Mapping[R, M]) validateLatest(prefix []any) error {
	if len(m.RowColumns) != 1 {
		return fmt.Errorf("%s: latest row needs exactly one row column, table has %d", m.Table, len(m.RowColumns))
	}
	return m.validatePrefix(prefix)
}

func (m Mapping[R, M]) validateKey(key Key) error {
	if len(key.Partition) != len(m.PartitionColumns) || len(key.Row) != len(m.RowColumns) {
		return fmt.Errorf("%s: key %s does not match table key columns", m.Table, key)
	}
	return nil
}

func joinParts(parts []any) string {
	s := make([]string, len(parts))
	for i, p := range parts {
		s[i] = fmt.Sprint(p)
	}
	return strings.Join(s, "\x1f")
}

func compareKeyValue(a, b any) (int, error) {
	switch av := a.(type) {
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			return av.Compare(bv), nil
		}
	case int:
		if bv, ok := b.(int); ok {
			return cmp.Compare(av, bv), nil
		}
	case int64:
		if bv, ok := b.(int64); ok {
			return cmp.Compare(av, bv), nil
		}
	case string:
		if bv, ok := b.(string); ok {
			return cmp.Compare(av, bv), nil
		}
	}
	return 0, fmt.Errorf("cannot compare row key %T with %T", a, b)
}
