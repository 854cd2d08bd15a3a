package searchindex

import (
	"context"
	"strings"
	"time"

	"github.com/Ramsey-B/fern/pkg/errs"
	"github.com/Ramsey-B/fern/pkg/models"
)

// Index is the write-through search index the entity store feeds.
type Index interface {
	Index(ctx context.Context, doc models.SearchDocument) error
	Search(ctx context.Context, req models.SearchRequest, entityType string, asOf time.Time) (*models.SearchIndexResult, error)
}

var comparisonOperators = []models.FilterOperator{
	models.OperatorEquals, models.OperatorIn, models.OperatorIsNull, models.OperatorIsNotNull,
	models.OperatorGreaterThan, models.OperatorGreaterThanOrEqualTo, models.OperatorLessThan,
	models.OperatorLessThanOrEqualTo,
}

var operatorsByKind = map[Kind][]models.FilterOperator{
	KindString: {
		models.OperatorEquals, models.OperatorIn, models.OperatorIsNull, models.OperatorIsNotNull,
		models.OperatorGreaterThan, models.OperatorGreaterThanOrEqualTo, models.OperatorLessThan,
		models.OperatorLessThanOrEqualTo, models.OperatorContains,
	},
	KindInteger: comparisonOperators,
	KindDate:    comparisonOperators,
	KindArray: {
		models.OperatorEquals, models.OperatorIn, models.OperatorIsNull, models.OperatorIsNotNull,
		models.OperatorContains,
	},
}

type filter struct {
	def      FieldDefinition
	operator models.FilterOperator
	raw      string
	value    any
	values   []any
}

type group struct {
	filters []filter
	or      bool
}

type query struct {
	groups     []group
	or         bool
	orderBy    *FieldDefinition
	desc       bool
	skip       int
	take       int
	asOf       time.Time
	entityType string
}

// compile checks the request against the field table and parses every filter value.
func (f Fields) compile(req models.SearchRequest, entityType string, asOf time.Time) (*query, error) {
	if entityType == "" {
		return nil, errs.Validation("entity type is required")
	}
	q := &query{
		or:         strings.EqualFold(string(req.CombinationOperator), string(models.CombineOr)),
		asOf:       models.NormalizeTime(asOf),
		entityType: entityType,
	}
	q.skip, q.take = req.Page()

	for gi, g := range req.Groups {
		cg := group{or: strings.EqualFold(string(g.CombinationOperator), string(models.CombineOr))}
		for fi, df := range g.Filter {
			def, ok := f.Lookup(df.Field)
			if !ok {
				return nil, errs.Validation("groups[%d].filter[%d]: unknown field %q", gi, fi, df.Field)
			}
			if !supports(def.Kind, df.Operator) {
				return nil, errs.Validation("groups[%d].filter[%d]: operator %q is not supported for %s field %q", gi, fi, df.Operator, def.Kind, df.Field)
			}
			cf := filter{def: def, operator: df.Operator, raw: df.Value}
			switch df.Operator {
			case models.OperatorIsNull, models.OperatorIsNotNull:
			case models.OperatorIn:
				for _, raw := range df.Values() {
					v, err := parseFilterValue(def, raw)
					if err != nil {
						return nil, err
					}
					cf.values = append(cf.values, v)
				}
			default:
				v, err := parseFilterValue(def, df.Value)
				if err != nil {
					return nil, err
				}
				cf.value = v
			}
			cg.filters = append(cg.filters, cf)
		}
		q.groups = append(q.groups, cg)
	}

	if req.OrderBy != nil && req.OrderBy.Field != "" {
		def, ok := f.Lookup(req.OrderBy.Field)
		if !ok {
			return nil, errs.Validation("orderBy: unknown field %q", req.OrderBy.Field)
		}
		if def.Kind == KindArray {
			return nil, errs.Validation("orderBy: cannot order by array field %q", def.Name)
		}
		q.orderBy = &def
		q.desc = strings.EqualFold(req.OrderBy.Direction, models.SortDescending)
	}
	return q, nil
}

func supports(kind Kind, op models.FilterOperator) bool {
	for _, allowed := range operatorsByKind[kind] {
		if allowed == op {
			return true
		}
	}
	return false
}

func parseFilterValue(def FieldDefinition, raw string) (any, error) {
	kind := def.Kind
	if kind == KindArray {
		kind = KindString
	}
	v, ok := ParseValue(kind, raw)
	if !ok {
		return nil, errs.Validation("value %q is not a valid %s for field %q", raw, def.Kind, def.Name)
	}
	return v, nil
}
