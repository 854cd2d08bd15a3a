// Package searchindex keeps a denormalized SearchDocument for every entity version
// and answers filtered, paged, point-in-time searches over them.
package searchindex

import (
	"strconv"
	"strings"
	"time"

	"github.com/Ramsey-B/fern/pkg/models"
)

type Kind string

const (
	KindString  Kind = "string"
	KindInteger Kind = "integer"
	KindDate    Kind = "date"
	KindArray   Kind = "array"
)

const (
	FieldEntityType       = "entityType"
	FieldSourceSystemName = "sourceSystemName"
	FieldSourceSystemID   = "sourceSystemId"
	FieldValidFrom        = "validFrom"
)

// FieldDefinition declares one indexed field. Scalar kinds take the first source
// attribute present; arrays collect every present source attribute.
type FieldDefinition struct {
	Name    string
	Kind    Kind
	Sources []string
}

type Fields []FieldDefinition

// DefaultFields is the field table for learning providers and management groups.
func DefaultFields() Fields {
	return Fields{
		{Name: "name", Kind: KindString, Sources: []string{"name"}},
		{Name: "type", Kind: KindString, Sources: []string{"type"}},
		{Name: "subType", Kind: KindString, Sources: []string{"subType"}},
		{Name: "status", Kind: KindString, Sources: []string{"status"}},
		{Name: "urn", Kind: KindString, Sources: []string{"urn"}},
		{Name: "ukprn", Kind: KindString, Sources: []string{"ukprn"}},
		{Name: "code", Kind: KindString, Sources: []string{"code"}},
		{Name: "postcode", Kind: KindString, Sources: []string{"postcode"}},
		{Name: "establishmentNumber", Kind: KindInteger, Sources: []string{"establishmentNumber"}},
		{Name: "openDate", Kind: KindDate, Sources: []string{"openDate"}},
		{Name: "closeDate", Kind: KindDate, Sources: []string{"closeDate"}},
		{Name: "managementGroupCode", Kind: KindString, Sources: []string{"managementGroupCode"}},
		{Name: "managementGroupType", Kind: KindString, Sources: []string{"managementGroupType"}},
		{Name: "identifiers", Kind: KindArray, Sources: []string{"urn", "ukprn", "upin", "code"}},
	}
}

var builtinFields = Fields{
	{Name: FieldEntityType, Kind: KindString},
	{Name: FieldSourceSystemName, Kind: KindString},
	{Name: FieldSourceSystemID, Kind: KindString},
	{Name: FieldValidFrom, Kind: KindDate},
}

// Lookup finds a declared or builtin field.
func (f Fields) Lookup(name string) (FieldDefinition, bool) {
	for _, def := range builtinFields {
		if def.Name == name {
			return def, true
		}
	}
	for _, def := range f {
		if def.Name == name {
			return def, true
		}
	}
	return FieldDefinition{}, false
}

// BuildDocument projects one entity version onto the field table. Values that do
// not parse as their declared kind are left out of the document.
func (f Fields) BuildDocument(entity models.RegisteredEntity) models.SearchDocument {
	data := make(map[string]string, len(entity.Data))
	for k, v := range entity.Data {
		data[k] = v
	}

	validFrom := models.NormalizeTime(entity.ValidFrom)
	fields := map[string]any{
		FieldEntityType:       entity.Type,
		FieldSourceSystemName: entity.Pointer.SourceSystemName,
		FieldSourceSystemID:   entity.Pointer.SourceSystemID,
		FieldValidFrom:        validFrom,
	}

	for _, def := range f {
		if def.Kind == KindArray {
			values := make([]string, 0, len(def.Sources))
			for _, src := range def.Sources {
				if v, ok := data[src]; ok && v != "" {
					values = append(values, v)
				}
			}
			if len(values) > 0 {
				fields[def.Name] = values
			}
			continue
		}

		for _, src := range def.Sources {
			raw, ok := data[src]
			if !ok {
				continue
			}
			if v, ok := ParseValue(def.Kind, raw); ok {
				fields[def.Name] = v
			}
			break
		}
	}

	return models.SearchDocument{
		EntityType: entity.Type,
		Pointer:    entity.Pointer,
		ValidFrom:  validFrom,
		Fields:     fields,
		Data:       data,
	}
}

var dateLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02", "02/01/2006"}

// ParseValue converts a raw attribute into the Go type used for kind.
func ParseValue(kind Kind, raw string) (any, bool) {
	switch kind {
	case KindInteger:
		n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		return n, err == nil
	case KindDate:
		raw = strings.TrimSpace(raw)
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, raw); err == nil {
				return t.UTC(), true
			}
		}
		return nil, false
	default:
		return raw, true
	}
}
