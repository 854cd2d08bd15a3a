package models

import "time"

const (
	LinkTypeSynonym         = "synonym"
	LinkTypeManagementGroup = "managementgroup"
)

// LinkMember is one entity's membership in a link group.
type LinkMember struct {
	EntityReference
	CreatedBy     string    `json:"createdBy"`
	CreatedAt     time.Time `json:"createdAt"`
	CreatedReason string    `json:"createdReason"`
}

// Link is a synonym group. Membership is symmetric and transitive, and only grows.
type Link struct {
	LinkType  string       `json:"linkType"`
	ID        string       `json:"id"`
	Version   int64        `json:"version"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
	Members   []LinkMember `json:"members"`
}

func (l *Link) HasMember(ref EntityReference) bool {
	if l == nil {
		return false
	}
	for _, m := range l.Members {
		if m.EntityReference == ref {
			return true
		}
	}
	return false
}

func (l *Link) References() []EntityReference {
	refs := make([]EntityReference, 0, len(l.Members))
	for _, m := range l.Members {
		refs = append(refs, m.EntityReference)
	}
	return refs
}

// Older reports whether l was created before other, breaking ties by id.
func (l *Link) Older(other *Link) bool {
	if !l.CreatedAt.Equal(other.CreatedAt) {
		return l.CreatedAt.Before(other.CreatedAt)
	}
	return l.ID < other.ID
}

// SynonymousEntities is the externally visible view of a link group.
type SynonymousEntities struct {
	LinkType string            `json:"linkType"`
	LinkID   string            `json:"linkId"`
	Members  []EntityReference `json:"members"`
	Data     map[string]string `json:"data"`
}
