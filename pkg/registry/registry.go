// Package registry answers reads against the consolidated view: one entity with its
// resolved links, a synonym group with merged data, or a filtered page of entities.
package registry

import (
	"context"
	"sort"
	"time"

	"github.com/Gobusters/ectolinq"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/errs"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/platform/tracing"
)

type EntityReader interface {
	Retrieve(ctx context.Context, entityType, sourceSystemName, sourceSystemID string, asOf time.Time) (*models.RegisteredEntity, error)
	Search(ctx context.Context, req models.SearchRequest, entityType string, asOf time.Time) (*models.EntitySearchResult, error)
}

type LinkReader interface {
	GetByMember(ctx context.Context, linkType string, ref models.EntityReference) (*models.Link, error)
	ListByMember(ctx context.Context, ref models.EntityReference) ([]models.Link, error)
}

type Registry struct {
	logger   ectologger.Logger
	entities EntityReader
	links    LinkReader
}

func NewRegistry(logger ectologger.Logger, entities EntityReader, links LinkReader) *Registry {
	return &Registry{
		logger:   logger,
		entities: entities,
		links:    links,
	}
}

// GetEntity returns the version current at asOf with every linked pointer resolved.
// A nil entity and nil error mean nothing was registered at asOf.
func (r *Registry) GetEntity(ctx context.Context, entityType, sourceSystemName, sourceSystemID string, asOf time.Time) (*models.RegisteredEntity, error) {
	ctx, span := tracing.StartSpan(ctx, "registry.Registry.GetEntity")
	defer span.End()

	entity, err := r.entities.Retrieve(ctx, entityType, sourceSystemName, sourceSystemID, asOf)
	if errs.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	groups, err := r.links.ListByMember(ctx, entity.Reference())
	if err != nil {
		return nil, err
	}
	entity.Links = resolveLinks(entity.Reference(), groups)
	return entity, nil
}

// GetLinks returns every group, of any link type, the entity belongs to.
func (r *Registry) GetLinks(ctx context.Context, entityType, sourceSystemName, sourceSystemID string) ([]models.Link, error) {
	ctx, span := tracing.StartSpan(ctx, "registry.Registry.GetLinks")
	defer span.End()

	groups, err := r.links.ListByMember(ctx, models.NewEntityReference(entityType, sourceSystemName, sourceSystemID))
	if err != nil {
		return nil, err
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].LinkType != groups[j].LinkType {
			return groups[i].LinkType < groups[j].LinkType
		}
		return groups[i].ID < groups[j].ID
	})
	return groups, nil
}

// GetSynonyms returns the entity's current synonym group with the members' current data
// merged. Members are folded oldest validFrom first so the most recently updated member
// wins each key. Nil means the entity or its group does not exist.
func (r *Registry) GetSynonyms(ctx context.Context, entityType, sourceSystemName, sourceSystemID string) (*models.SynonymousEntities, error) {
	ctx, span := tracing.StartSpan(ctx, "registry.Registry.GetSynonyms")
	defer span.End()

	entity, err := r.entities.Retrieve(ctx, entityType, sourceSystemName, sourceSystemID, models.EndOfTime)
	if errs.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	link, err := r.links.GetByMember(ctx, models.LinkTypeSynonym, entity.Reference())
	if errs.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	members := make([]models.RegisteredEntity, 0, len(link.Members))
	for _, m := range link.Members {
		if m.EntityReference == entity.Reference() {
			members = append(members, *entity)
			continue
		}
		current, err := r.entities.Retrieve(ctx, m.EntityType, m.SourceSystemName, m.SourceSystemID, models.EndOfTime)
		if errs.IsNotFound(err) {
			r.logger.WithContext(ctx).WithFields(map[string]any{
				"link_id": link.ID,
				"member":  m.EntityReference.String(),
			}).Warn("Synonym group member has no stored version")
			continue
		}
		if err != nil {
			return nil, err
		}
		members = append(members, *current)
	}

	sort.Slice(members, func(i, j int) bool {
		if !members[i].ValidFrom.Equal(members[j].ValidFrom) {
			return members[i].ValidFrom.Before(members[j].ValidFrom)
		}
		return members[i].Reference().Less(members[j].Reference())
	})

	data := make(map[string]string)
	for _, m := range members {
		for k, v := range m.Data {
			data[k] = v
		}
	}

	refs := link.References()
	sort.Slice(refs, func(i, j int) bool { return refs[i].Less(refs[j]) })

	return &models.SynonymousEntities{
		LinkType: link.LinkType,
		LinkID:   link.ID,
		Members:  refs,
		Data:     data,
	}, nil
}

// Search returns a page of entities of entityType current at asOf.
func (r *Registry) Search(ctx context.Context, req models.SearchRequest, entityType string, asOf time.Time) (*models.EntitySearchResult, error) {
	ctx, span := tracing.StartSpan(ctx, "registry.Registry.Search")
	defer span.End()

	return r.entities.Search(ctx, req, entityType, asOf)
}

func resolveLinks(self models.EntityReference, groups []models.Link) []models.EntityLink {
	links := make([]models.EntityLink, 0)
	for _, g := range groups {
		others := make([]models.EntityReference, 0, len(g.Members))
		for _, ref := range g.References() {
			if ref != self {
				others = append(others, ref)
			}
		}
		sort.Slice(others, func(i, j int) bool { return others[i].Less(others[j]) })
		links = append(links, ectolinq.Map(others, func(ref models.EntityReference) models.EntityLink {
			return models.EntityLink{
				LinkType:      g.LinkType,
				LinkID:        g.ID,
				EntityType:    ref.EntityType,
				EntityPointer: ref.EntityPointer,
			}
		})...)
	}
	sort.SliceStable(links, func(i, j int) bool {
		if links[i].LinkType != links[j].LinkType {
			return links[i].LinkType < links[j].LinkType
		}
		return links[i].LinkID < links[j].LinkID
	})
	return links
}
