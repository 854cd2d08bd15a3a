package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/Ramsey-B/fern/pkg/errs"
)

type memoryRow[R any, M any] struct {
	key    Key
	record R
	model  M
}

// MemoryTable is a Store held in process memory. Records go through the mapping on
// every write and read so callers never share state with the table.
type MemoryTable[R any, M any] struct {
	mapping Mapping[R, M]

	mu   sync.RWMutex
	rows map[string]memoryRow[R, M]
}

func NewMemoryTable[R any, M any](mapping Mapping[R, M]) *MemoryTable[R, M] {
	return &MemoryTable[R, M]{
		mapping: mapping,
		rows:    make(map[string]memoryRow[R, M]),
	}
}

func (t *MemoryTable[R, M]) Get(ctx context.Context, key Key) (M, error) {
	var zero M
	if err := t.mapping.validateKey(key); err != nil {
		return zero, err
	}
	t.mu.RLock()
	row, ok := t.rows[key.String()]
	t.mu.RUnlock()
	if !ok {
		return zero, errs.NotFound("%s row %s not found", t.mapping.Table, key)
	}
	return t.mapping.ToModel(row.record)
}

func (t *MemoryTable[R, M]) Put(ctx context.Context, model M) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, errs.Transient(err, "put cancelled")
	}
	key := t.mapping.KeyOf(model)
	if err := t.mapping.validateKey(key); err != nil {
		return false, err
	}
	record, err := t.mapping.ToRecord(model)
	if err != nil {
		return false, err
	}
	stored, err := t.mapping.ToModel(record)
	if err != nil {
		return false, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	id := key.String()
	if _, exists := t.rows[id]; exists {
		return false, nil
	}
	t.rows[id] = memoryRow[R, M]{key: key, record: record, model: stored}
	return true, nil
}

func (t *MemoryTable[R, M]) QueryPartition(ctx context.Context, prefix ...any) ([]M, error) {
	if err := t.mapping.validatePrefix(prefix); err != nil {
		return nil, err
	}
	rows, err := t.scan(prefix, nil)
	if err != nil {
		return nil, err
	}
	return t.toModels(rows)
}

func (t *MemoryTable[R, M]) QueryLatest(ctx context.Context, upTo any, prefix ...any) ([]M, error) {
	if err := t.mapping.validateLatest(prefix); err != nil {
		return nil, err
	}
	rows, err := t.scan(prefix, func(row memoryRow[R, M]) (bool, error) {
		c, err := compareKeyValue(row.key.Row[0], upTo)
		return c <= 0, err
	})
	if err != nil {
		return nil, err
	}

	latest := make([]memoryRow[R, M], 0, len(rows))
	for _, row := range rows {
		if n := len(latest); n > 0 && joinParts(latest[n-1].key.Partition) == joinParts(row.key.Partition) {
			latest[n-1] = row
			continue
		}
		latest = append(latest, row)
	}
	return t.toModels(latest)
}

// scan returns the rows under prefix that pass keep, ordered by partition then row.
func (t *MemoryTable[R, M]) scan(prefix []any, keep func(memoryRow[R, M]) (bool, error)) ([]memoryRow[R, M], error) {
	t.mu.RLock()
	matched := make([]memoryRow[R, M], 0)
	for _, row := range t.rows {
		if !hasPrefix(row.key.Partition, prefix) {
			continue
		}
		if keep != nil {
			ok, err := keep(row)
			if err != nil {
				t.mu.RUnlock()
				return nil, err
			}
			if !ok {
				continue
			}
		}
		matched = append(matched, row)
	}
	t.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		pi, pj := joinParts(matched[i].key.Partition), joinParts(matched[j].key.Partition)
		if pi != pj {
			return pi < pj
		}
		if t.mapping.CompareRows != nil {
			return t.mapping.CompareRows(matched[i].model, matched[j].model) < 0
		}
		return joinParts(matched[i].key.Row) < joinParts(matched[j].key.Row)
	})
	return matched, nil
}

func (t *MemoryTable[R, M]) toModels(rows []memoryRow[R, M]) ([]M, error) {
	models := make([]M, 0, len(rows))
	for _, row := range rows {
		m, err := t.mapping.ToModel(row.record)
		if err != nil {
			return nil, err
		}
		models = append(models, m)
	}
	return models, nil
}

func hasPrefix(partition, prefix []any) bool {
	if len(prefix) > len(partition) {
		return false
	}
	for i := range prefix {
		if partition[i] != prefix[i] {
			return false
		}
	}
	return true
}
