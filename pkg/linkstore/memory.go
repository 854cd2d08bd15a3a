package linkstore

import (
	"context"
	"sort"
	"sync"

	"github.com/Ramsey-B/fern/pkg/errs"
	"github.com/Ramsey-B/fern/pkg/models"
)

type memberKey struct {
	linkType string
	ref      models.EntityReference
}

// MemoryStore keeps groups in process memory. Commit holds the lock for the whole
// merge so it is atomic like the Postgres transaction.
type MemoryStore struct {
	mu      sync.RWMutex
	links   map[string]*models.Link
	members map[memberKey]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		links:   make(map[string]*models.Link),
		members: make(map[memberKey]string),
	}
}

func (s *MemoryStore) GetByMember(ctx context.Context, linkType string, ref models.EntityReference) (*models.Link, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.members[memberKey{linkType: linkType, ref: ref}]
	if !ok {
		return nil, errs.NotFound("%s is not in a %s link", ref, linkType)
	}
	return clone(s.links[id]), nil
}

func (s *MemoryStore) Get(ctx context.Context, linkType, id string) (*models.Link, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	link, ok := s.links[id]
	if !ok || link.LinkType != linkType {
		return nil, errs.NotFound("%s link %s not found", linkType, id)
	}
	return clone(link), nil
}

func (s *MemoryStore) ListByMember(ctx context.Context, ref models.EntityReference) ([]models.Link, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	links := make([]models.Link, 0)
	for key, id := range s.members {
		if key.ref == ref {
			links = append(links, *clone(s.links[id]))
		}
	}
	sort.Slice(links, func(i, j int) bool { return links[i].LinkType < links[j].LinkType })
	return links, nil
}

func (s *MemoryStore) Commit(ctx context.Context, c Commit) (*models.Link, error) {
	if err := ctx.Err(); err != nil {
		return nil, errs.Transient(err, "commit cancelled")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if c.Target != nil {
		current, ok := s.links[c.Target.ID]
		if !ok || current.Version != c.Target.Version {
			return nil, errs.Conflict("link %s changed since version %d", c.Target.ID, c.Target.Version)
		}
	} else if _, exists := s.links[c.NewID]; exists {
		return nil, errs.Conflict("link %s already exists", c.NewID)
	}
	for _, absorbed := range c.Absorbed {
		current, ok := s.links[absorbed.ID]
		if !ok || current.Version != absorbed.Version {
			return nil, errs.Conflict("link %s changed since version %d", absorbed.ID, absorbed.Version)
		}
	}
	for _, m := range c.Added {
		if id, ok := s.members[memberKey{linkType: c.LinkType, ref: m.EntityReference}]; ok && id != c.targetID() && !absorbs(c, id) {
			return nil, errs.Conflict("%s already belongs to %s link %s", m.EntityReference, c.LinkType, id)
		}
	}

	link := c.result()
	for _, absorbed := range c.Absorbed {
		delete(s.links, absorbed.ID)
	}
	s.links[link.ID] = clone(link)
	for _, m := range link.Members {
		s.members[memberKey{linkType: c.LinkType, ref: m.EntityReference}] = link.ID
	}
	return link, nil
}

func absorbs(c Commit, id string) bool {
	for _, absorbed := range c.Absorbed {
		if absorbed.ID == id {
			return true
		}
	}
	return false
}

func clone(link *models.Link) *models.Link {
	if link == nil {
		return nil
	}
	out := *link
	out.Members = append([]models.LinkMember(nil), link.Members...)
	return &out
}
