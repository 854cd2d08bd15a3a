package searchindex

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/storage"
)

// Mapping is the storage mapping for search documents. Documents are stored as-is
// in memory; Fields are rebuilt from Data when read back.
func Mapping(fields Fields) storage.Mapping[models.SearchDocument, models.SearchDocument] {
	return storage.Mapping[models.SearchDocument, models.SearchDocument]{
		Table:            "search_documents",
		PartitionColumns: []string{"entity_type", "source_system_name", "source_system_id"},
		RowColumns:       []string{"valid_from"},
		KeyOf:            documentKey,
		ToRecord: func(d models.SearchDocument) (models.SearchDocument, error) {
			return d, nil
		},
		ToModel: func(d models.SearchDocument) (models.SearchDocument, error) {
			return rebuild(fields, d), nil
		},
		CompareRows: func(a, b models.SearchDocument) int {
			return a.ValidFrom.Compare(b.ValidFrom)
		},
	}
}

func documentKey(d models.SearchDocument) storage.Key {
	return storage.Key{
		Partition: []any{d.EntityType, d.Pointer.SourceSystemName, d.Pointer.SourceSystemID},
		Row:       []any{models.NormalizeTime(d.ValidFrom)},
	}
}

func rebuild(fields Fields, d models.SearchDocument) models.SearchDocument {
	return fields.BuildDocument(models.RegisteredEntity{
		Type:      d.EntityType,
		Pointer:   d.Pointer,
		Data:      d.Data,
		ValidFrom: d.ValidFrom,
	})
}

// MemoryIndex evaluates searches in process over a storage table of documents.
type MemoryIndex struct {
	fields Fields
	table  storage.Store[models.SearchDocument]
	logger ectologger.Logger
}

func NewMemoryIndex(fields Fields, logger ectologger.Logger) *MemoryIndex {
	return &MemoryIndex{
		fields: fields,
		table:  storage.NewMemoryTable(Mapping(fields)),
		logger: logger,
	}
}

func (i *MemoryIndex) Index(ctx context.Context, doc models.SearchDocument) error {
	_, err := i.table.Put(ctx, doc)
	return err
}

func (i *MemoryIndex) Search(ctx context.Context, req models.SearchRequest, entityType string, asOf time.Time) (*models.SearchIndexResult, error) {
	q, err := i.fields.compile(req, entityType, asOf)
	if err != nil {
		return nil, err
	}

	current, err := i.table.QueryLatest(ctx, q.asOf, entityType)
	if err != nil {
		return nil, err
	}

	matched := make([]models.SearchDocument, 0, len(current))
	for _, doc := range current {
		if q.matches(doc) {
			matched = append(matched, doc)
		}
	}
	q.sort(matched)

	result := &models.SearchIndexResult{
		Results:              []models.SearchDocument{},
		Skipped:              q.skip,
		TotalNumberOfRecords: len(matched),
	}
	if q.skip < len(matched) {
		end := q.skip + q.take
		if end > len(matched) {
			end = len(matched)
		}
		result.Results = matched[q.skip:end]
	}
	result.Taken = len(result.Results)

	i.logger.WithContext(ctx).WithFields(map[string]any{
		"entity_type": entityType,
		"total":       result.TotalNumberOfRecords,
		"taken":       result.Taken,
	}).Debug("Searched memory index")
	return result, nil
}

func (q *query) matches(doc models.SearchDocument) bool {
	if len(q.groups) == 0 {
		return true
	}
	for _, g := range q.groups {
		ok := g.matches(doc)
		if q.or && ok {
			return true
		}
		if !q.or && !ok {
			return false
		}
	}
	return !q.or
}

func (g group) matches(doc models.SearchDocument) bool {
	if len(g.filters) == 0 {
		return true
	}
	for _, f := range g.filters {
		ok := f.matches(doc)
		if g.or && ok {
			return true
		}
		if !g.or && !ok {
			return false
		}
	}
	return !g.or
}

func (f filter) matches(doc models.SearchDocument) bool {
	value, present := doc.Fields[f.def.Name]
	switch f.operator {
	case models.OperatorIsNull:
		return !present
	case models.OperatorIsNotNull:
		return present
	}
	if !present {
		return false
	}

	if f.def.Kind == KindArray {
		elements, _ := value.([]string)
		for _, el := range elements {
			if f.matchesScalar(el) {
				return true
			}
		}
		return false
	}
	return f.matchesScalar(value)
}

func (f filter) matchesScalar(value any) bool {
	switch f.operator {
	case models.OperatorEquals:
		return compare(value, f.value) == 0
	case models.OperatorIn:
		for _, candidate := range f.values {
			if compare(value, candidate) == 0 {
				return true
			}
		}
		return false
	case models.OperatorGreaterThan:
		return compare(value, f.value) > 0
	case models.OperatorGreaterThanOrEqualTo:
		return compare(value, f.value) >= 0
	case models.OperatorLessThan:
		return compare(value, f.value) < 0
	case models.OperatorLessThanOrEqualTo:
		return compare(value, f.value) <= 0
	case models.OperatorContains:
		s, _ := value.(string)
		needle, _ := f.value.(string)
		return strings.Contains(strings.ToLower(s), strings.ToLower(needle))
	}
	return false
}

func compare(a, b any) int {
	switch av := a.(type) {
	case int64:
		bv, _ := b.(int64)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
		return 0
	case time.Time:
		bv, _ := b.(time.Time)
		return av.Compare(bv)
	case string:
		bv, _ := b.(string)
		return strings.Compare(av, bv)
	}
	return -1
}

// sort orders by the requested field with absent values last, then by pointer.
func (q *query) sort(docs []models.SearchDocument) {
	sort.SliceStable(docs, func(i, j int) bool {
		if q.orderBy != nil {
			vi, iok := docs[i].Fields[q.orderBy.Name]
			vj, jok := docs[j].Fields[q.orderBy.Name]
			switch {
			case iok && !jok:
				return true
			case !iok && jok:
				return false
			case iok && jok:
				if c := compare(vi, vj); c != 0 {
					if q.desc {
						return c > 0
					}
					return c < 0
				}
			}
		}
		return docs[i].Reference().Less(docs[j].Reference())
	})
}
