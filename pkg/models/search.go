package models

import (
	"strings"
	"time"
)

type FilterOperator string

const (
	OperatorEquals               FilterOperator = "equals"
	OperatorIn                   FilterOperator = "in"
	OperatorIsNull               FilterOperator = "isNull"
	OperatorIsNotNull            FilterOperator = "isNotNull"
	OperatorGreaterThan          FilterOperator = "greaterThan"
	OperatorGreaterThanOrEqualTo FilterOperator = "greaterThanOrEqualTo"
	OperatorLessThan             FilterOperator = "lessThan"
	OperatorLessThanOrEqualTo    FilterOperator = "lessThanOrEqualTo"
	OperatorContains             FilterOperator = "contains"
)

type CombinationOperator string

const (
	CombineAnd CombinationOperator = "and"
	CombineOr  CombinationOperator = "or"
)

const (
	SortAscending  = "asc"
	SortDescending = "desc"

	DefaultTake = 100
	MaxTake     = 1000
)

type DataFilter struct {
	Field    string         `json:"field" validate:"required"`
	Operator FilterOperator `json:"operator" validate:"required,oneof=equals in isNull isNotNull greaterThan greaterThanOrEqualTo lessThan lessThanOrEqualTo contains"`
	Value    string         `json:"value,omitempty"`
}

// Values splits the comma separated value of an "in" filter.
func (f DataFilter) Values() []string {
	parts := strings.Split(f.Value, ",")
	values := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			values = append(values, p)
		}
	}
	return values
}

type SearchGroup struct {
	Filter              []DataFilter        `json:"filter" validate:"dive"`
	CombinationOperator CombinationOperator `json:"combinationOperator" validate:"omitempty,oneof=and or"`
}

type OrderBy struct {
	Field     string `json:"field"`
	Direction string `json:"direction" validate:"omitempty,oneof=asc desc"`
}

type SearchRequest struct {
	Groups              []SearchGroup       `json:"groups" validate:"dive"`
	CombinationOperator CombinationOperator `json:"combinationOperator" validate:"omitempty,oneof=and or"`
	Skip                int                 `json:"skip" validate:"gte=0"`
	Take                int                 `json:"take" validate:"gte=0"`
	OrderBy             *OrderBy            `json:"orderBy,omitempty"`
}

// Page returns the effective skip and take after defaults and caps.
func (r SearchRequest) Page() (int, int) {
	skip, take := r.Skip, r.Take
	if skip < 0 {
		skip = 0
	}
	if take <= 0 {
		take = DefaultTake
	}
	if take > MaxTake {
		take = MaxTake
	}
	return skip, take
}

// SearchDocument is the denormalized projection of one entity version.
type SearchDocument struct {
	EntityType string            `json:"entityType"`
	Pointer    EntityPointer     `json:"pointer"`
	ValidFrom  time.Time         `json:"validFrom"`
	Fields     map[string]any    `json:"fields"`
	Data       map[string]string `json:"data"`
}

func (d SearchDocument) Reference() EntityReference {
	return EntityReference{EntityType: d.EntityType, EntityPointer: d.Pointer}
}

type SearchIndexResult struct {
	Results              []SearchDocument `json:"results"`
	Skipped              int              `json:"skipped"`
	Taken                int              `json:"taken"`
	TotalNumberOfRecords int              `json:"totalNumberOfRecords"`
}

type EntitySearchResult struct {
	Results              []RegisteredEntity `json:"results"`
	Skipped              int                `json:"skipped"`
	Taken                int                `json:"taken"`
	TotalNumberOfRecords int                `json:"totalNumberOfRecords"`
}
