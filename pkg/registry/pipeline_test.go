package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/catalog"
	"github.com/Ramsey-B/fern/pkg/entitystore"
	"github.com/Ramsey-B/fern/pkg/linkstore"
	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/names"
	"github.com/Ramsey-B/fern/pkg/searchindex"
	"github.com/Ramsey-B/fern/pkg/syncmanager"
)

// inlineMatches runs match requests in process instead of going through the match topic.
type inlineMatches struct {
	engine *matching.Engine
}

func (m inlineMatches) PublishMatch(ctx context.Context, item models.EntityForMatching) error {
	_, err := m.engine.ProcessMatch(ctx, item)
	return err
}

type pipeline struct {
	syncs    *syncmanager.Manager
	registry *Registry
}

func newPipeline(t *testing.T) *pipeline {
	t.Helper()
	profiles, err := catalog.Load("../../config/matching-profiles.yaml", testLogger())
	require.NoError(t, err)

	fields := searchindex.DefaultFields()
	entities := entitystore.NewMemoryStore(searchindex.NewMemoryIndex(fields, testLogger()), fields, testLogger())
	links := linkstore.NewMemoryStore()
	linker := matching.NewLinker(links, testLogger(), matching.LinkerConfig{
		MaxAttempts:     5,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
	})
	engine := matching.NewEngine(testLogger(), profiles, entities, linker)

	return &pipeline{
		syncs:    syncmanager.NewManager(testLogger(), entities, inlineMatches{engine: engine}, nil, names.Default()),
		registry: NewRegistry(testLogger(), entities, links),
	}
}

func (p *pipeline) sync(t *testing.T, entityType, source, id string, at time.Time, data map[string]string) {
	t.Helper()
	_, err := p.syncs.ProcessSync(context.Background(), models.SyncQueueItem{
		Entity: &models.SyncEntity{
			Type:             entityType,
			SourceSystemName: source,
			SourceSystemID:   id,
			Data:             data,
		},
		PointInTime: &at,
	})
	require.NoError(t, err)
}

func TestPipeline_SyncedProvidersBecomeSynonyms(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()

	p.sync(t, names.LearningProvider, "A", "100", day(1), map[string]string{"urn": "12345"})
	p.sync(t, names.LearningProvider, "B", "200", day(2), map[string]string{"urn": "12345"})

	for _, member := range []struct{ source, id string }{{"A", "100"}, {"B", "200"}} {
		got, err := p.registry.GetSynonyms(ctx, names.LearningProvider, member.source, member.id)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, models.LinkTypeSynonym, got.LinkType)
		assert.Equal(t, []models.EntityReference{
			models.NewEntityReference(names.LearningProvider, "A", "100"),
			models.NewEntityReference(names.LearningProvider, "B", "200"),
		}, got.Members)
		assert.Equal(t, map[string]string{"urn": "12345"}, got.Data)
	}
}

func TestPipeline_ProviderJoinsManagementGroup(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()

	p.sync(t, names.ManagementGroup, "M", "7", day(1), map[string]string{"code": "MG1"})
	p.sync(t, names.LearningProvider, "A", "100", day(2), map[string]string{"urn": "1", "managementGroupCode": "MG1"})

	groups, err := p.registry.GetLinks(ctx, names.LearningProvider, "A", "100")
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, models.LinkTypeManagementGroup, groups[0].LinkType)
	assert.ElementsMatch(t, []models.EntityReference{
		models.NewEntityReference(names.ManagementGroup, "M", "7"),
		models.NewEntityReference(names.LearningProvider, "A", "100"),
	}, groups[0].References())

	syn, err := p.registry.GetSynonyms(ctx, names.LearningProvider, "A", "100")
	require.NoError(t, err)
	assert.Nil(t, syn)
}
