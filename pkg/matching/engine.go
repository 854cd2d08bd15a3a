// Package matching evaluates a synced entity against the catalog's profiles and
// records every match as a link group membership.
package matching

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"

	"github.com/Ramsey-B/fern/pkg/catalog"
	"github.com/Ramsey-B/fern/pkg/errs"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/platform/tracing"
)

// EntitySource is the read side of the temporal entity store.
type EntitySource interface {
	Retrieve(ctx context.Context, entityType, sourceSystemName, sourceSystemID string, asOf time.Time) (*models.RegisteredEntity, error)
	ListCurrent(ctx context.Context, entityType string, asOf time.Time) ([]models.RegisteredEntity, error)
}

// Match is one satisfied (source, candidate) pair.
type Match struct {
	Profile   string
	Ruleset   string
	LinkType  string
	Source    models.EntityReference
	Candidate models.EntityReference
	LinkID    string
}

type Result struct {
	Entity  models.EntityReference
	Matches []Match
	Skipped []string
}

type Engine struct {
	logger   ectologger.Logger
	catalog  catalog.Catalog
	entities EntitySource
	linker   *Linker
	validate *validator.Validate
}

func NewEngine(logger ectologger.Logger, cat catalog.Catalog, entities EntitySource, linker *Linker) *Engine {
	return &Engine{
		logger:   logger,
		catalog:  cat,
		entities: entities,
		linker:   linker,
		validate: validator.New(),
	}
}

// ProcessMatch evaluates forward profiles (entity as source) and reverse profiles
// (entity as candidate, including same-type profiles whose criteria compare different
// attributes) so the order two entities are synced in never hides a match. Evaluation is idempotent; every link must commit for the
// request to succeed.
func (e *Engine) ProcessMatch(ctx context.Context, item models.EntityForMatching) (*Result, error) {
	ctx, span := tracing.StartSpan(ctx, "matching.Engine.ProcessMatch")
	defer span.End()

	if err := e.validate.Struct(item); err != nil {
		return nil, errs.WrapValidation(err, "invalid match request")
	}

	started := time.Now()
	defer func() {
		metrics.MatchDuration.WithLabelValues(item.Type).Observe(time.Since(started).Seconds())
	}()

	ref := item.Reference()
	log := e.logger.WithContext(ctx).WithField("entity", ref.String())

	// The current version of a pointer is its highest validFrom, even when that is
	// still in the future.
	asOf := models.EndOfTime
	entity, err := e.entities.Retrieve(ctx, item.Type, item.SourceSystemName, item.SourceSystemID, asOf)
	if errs.IsNotFound(err) {
		return nil, errs.WrapValidation(err, "entity %s has not been synced", ref)
	}
	if err != nil {
		return nil, err
	}

	forward, err := e.catalog.GetProfiles(ctx, item.Type)
	if err != nil {
		return nil, errs.Transient(err, "failed to load matching profiles for %s", item.Type)
	}
	reverse, err := e.catalog.GetProfilesForCandidate(ctx, item.Type)
	if err != nil {
		return nil, errs.Transient(err, "failed to load reverse matching profiles for %s", item.Type)
	}

	result := &Result{Entity: ref}
	candidates := newCandidateCache(e.entities, asOf)

	for _, profile := range forward {
		if err := e.evaluate(ctx, result, profile, candidates, *entity, false); err != nil {
			return nil, err
		}
	}
	for _, profile := range reverse {
		if err := e.evaluate(ctx, result, profile, candidates, *entity, true); err != nil {
			return nil, err
		}
	}

	log.WithFields(map[string]any{
		"matches":          len(result.Matches),
		"forward_profiles": len(forward),
		"reverse_profiles": len(reverse),
	}).Info("Processed match request")
	return result, nil
}

// evaluate runs one profile. When reversed, the synced entity takes the candidate
// role and the candidates come from the profile's source type.
func (e *Engine) evaluate(ctx context.Context, result *Result, profile models.MatchingProfile, candidates *candidateCache, entity models.RegisteredEntity, reversed bool) error {
	log := e.logger.WithContext(ctx).WithFields(map[string]any{
		"profile":  profile.Name,
		"entity":   entity.Reference().String(),
		"reversed": reversed,
	})

	if err := profile.Validate(); err != nil {
		catalogErr := errs.Catalog("matching profile %q is malformed: %v", profile.Name, err)
		metrics.CatalogErrorsTotal.WithLabelValues(profile.Name).Inc()
		log.WithError(catalogErr).Warn("Skipping malformed matching profile")
		result.Skipped = append(result.Skipped, profile.Name)
		return nil
	}

	otherType := profile.CandidateType
	if reversed {
		otherType = profile.SourceType
	}
	others, err := candidates.get(ctx, otherType)
	if err != nil {
		return err
	}

	for _, other := range others {
		if other.Reference() == entity.Reference() {
			continue
		}

		source, candidate := entity, other
		if reversed {
			source, candidate = other, entity
		}

		ruleset, ok := profile.Match(source, candidate)
		if !ok {
			continue
		}

		link, err := e.linker.Link(ctx, LinkRequest{
			LinkType:  profile.LinkType,
			Source:    source.Reference(),
			Candidate: candidate.Reference(),
			CreatedBy: profile.Name,
			Reason:    ruleset.Name,
		})
		if err != nil {
			log.WithError(err).WithField("candidate", other.Reference().String()).Error("failed to link matched entities")
			return err
		}

		metrics.MatchesTotal.WithLabelValues(profile.Name, profile.LinkType).Inc()
		result.Matches = append(result.Matches, Match{
			Profile:   profile.Name,
			Ruleset:   ruleset.Name,
			LinkType:  profile.LinkType,
			Source:    source.Reference(),
			Candidate: candidate.Reference(),
			LinkID:    link.ID,
		})
	}
	return nil
}

type candidateCache struct {
	source EntitySource
	asOf   time.Time
	byType map[string][]models.RegisteredEntity
}

func newCandidateCache(source EntitySource, asOf time.Time) *candidateCache {
	return &candidateCache{source: source, asOf: asOf, byType: make(map[string][]models.RegisteredEntity)}
}

func (c *candidateCache) get(ctx context.Context, entityType string) ([]models.RegisteredEntity, error) {
	if cached, ok := c.byType[entityType]; ok {
		return cached, nil
	}
	entities, err := c.source.ListCurrent(ctx, entityType, c.asOf)
	if err != nil {
		return nil, errs.Transient(err, "failed to fetch %s candidates", entityType)
	}
	c.byType[entityType] = entities
	return entities, nil
}
