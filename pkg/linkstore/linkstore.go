// Package linkstore persists synonym groups. Groups only change through Commit,
// which applies one merge atomically against the versions the caller read.
package linkstore

import (
	"context"
	"time"

	"github.com/Ramsey-B/fern/pkg/models"
)

type Store interface {
	// GetByMember returns the group of linkType containing ref, or errs.NotFound.
	GetByMember(ctx context.Context, linkType string, ref models.EntityReference) (*models.Link, error)
	// Get returns errs.NotFound when the group does not exist.
	Get(ctx context.Context, linkType, id string) (*models.Link, error)
	// ListByMember returns every group, of any link type, containing ref.
	ListByMember(ctx context.Context, ref models.EntityReference) ([]models.Link, error)
	// Commit applies c in one transaction or not at all. A stale version or a member
	// already grouped elsewhere fails with errs.Conflict.
	Commit(ctx context.Context, c Commit) (*models.Link, error)
}

// Commit describes one merge. When Target is nil a new group with NewID is created.
// Every Absorbed group is folded into the target and deleted.
type Commit struct {
	LinkType string
	Target   *models.Link
	NewID    string
	Absorbed []*models.Link
	Added    []models.LinkMember
	At       time.Time
}

func (c Commit) targetID() string {
	if c.Target != nil {
		return c.Target.ID
	}
	return c.NewID
}

// result builds the group as it reads after c commits.
func (c Commit) result() *models.Link {
	at := models.NormalizeTime(c.At)
	link := &models.Link{
		LinkType:  c.LinkType,
		ID:        c.targetID(),
		Version:   1,
		CreatedAt: at,
		UpdatedAt: at,
	}
	if c.Target != nil {
		link.Version = c.Target.Version + 1
		link.CreatedAt = c.Target.CreatedAt
		link.Members = append(link.Members, c.Target.Members...)
	}
	for _, absorbed := range c.Absorbed {
		link.Members = append(link.Members, absorbed.Members...)
	}
	for _, m := range c.Added {
		if !link.HasMember(m.EntityReference) {
			link.Members = append(link.Members, m)
		}
	}
	return link
}
