package models

import (
	"fmt"
	"time"
)

// EntityPointer identifies one source system's claim about an entity.
type EntityPointer struct {
	SourceSystemName string `json:"sourceSystemName" validate:"required"`
	SourceSystemID   string `json:"sourceSystemId" validate:"required"`
}

func (p EntityPointer) String() string {
	return fmt.Sprintf("%s:%s", p.SourceSystemName, p.SourceSystemID)
}

// EntityReference is a typed pointer. It is the key of a link member.
type EntityReference struct {
	EntityType string `json:"entityType" validate:"required"`
	EntityPointer
}

func NewEntityReference(entityType, sourceSystemName, sourceSystemID string) EntityReference {
	return EntityReference{
		EntityType: entityType,
		EntityPointer: EntityPointer{
			SourceSystemName: sourceSystemName,
			SourceSystemID:   sourceSystemID,
		},
	}
}

func (r EntityReference) String() string {
	return fmt.Sprintf("%s:%s:%s", r.EntityType, r.SourceSystemName, r.SourceSystemID)
}

// Less orders references by entity type, then source system name, then source system id.
func (r EntityReference) Less(other EntityReference) bool {
	if r.EntityType != other.EntityType {
		return r.EntityType < other.EntityType
	}
	if r.SourceSystemName != other.SourceSystemName {
		return r.SourceSystemName < other.SourceSystemName
	}
	return r.SourceSystemID < other.SourceSystemID
}

// EntityLink is one linked pointer resolved onto a RegisteredEntity at read time.
type EntityLink struct {
	LinkType   string `json:"linkType"`
	LinkID     string `json:"linkId"`
	EntityType string `json:"entityType"`
	EntityPointer
}

// RegisteredEntity is one version of a pointer's reported data.
type RegisteredEntity struct {
	Type      string            `json:"type"`
	Pointer   EntityPointer     `json:"pointer"`
	Data      map[string]string `json:"data"`
	Links     []EntityLink      `json:"links,omitempty"`
	ValidFrom time.Time         `json:"validFrom"`
}

func (e RegisteredEntity) Reference() EntityReference {
	return EntityReference{EntityType: e.Type, EntityPointer: e.Pointer}
}

// Value returns the attribute and whether it is present. Empty strings are present.
func (e RegisteredEntity) Value(attribute string) (string, bool) {
	if e.Data == nil {
		return "", false
	}
	v, ok := e.Data[attribute]
	return v, ok
}

// NormalizeTime truncates t to microsecond precision in UTC, the resolution versions are stored at.
func NormalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// EndOfTime is the asOf that selects the latest version of every pointer.
var EndOfTime = time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC)
