package registry

import (
	"context"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/entitystore"
	"github.com/Ramsey-B/fern/pkg/linkstore"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/searchindex"
)

const provider = "learning-provider"

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

type fixture struct {
	entities *entitystore.Store
	links    *linkstore.MemoryStore
	registry *Registry
}

func newFixture() *fixture {
	fields := searchindex.DefaultFields()
	f := &fixture{
		entities: entitystore.NewMemoryStore(searchindex.NewMemoryIndex(fields, testLogger()), fields, testLogger()),
		links:    linkstore.NewMemoryStore(),
	}
	f.registry = NewRegistry(testLogger(), f.entities, f.links)
	return f
}

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func (f *fixture) store(t *testing.T, source, id string, at time.Time, data map[string]string) {
	t.Helper()
	require.NoError(t, f.entities.Store(context.Background(), models.RegisteredEntity{
		Type:      provider,
		Pointer:   models.EntityPointer{SourceSystemName: source, SourceSystemID: id},
		Data:      data,
		ValidFrom: at,
	}))
}

func (f *fixture) link(t *testing.T, linkType, id string, refs ...models.EntityReference) {
	t.Helper()
	members := make([]models.LinkMember, 0, len(refs))
	for _, ref := range refs {
		members = append(members, models.LinkMember{EntityReference: ref, CreatedBy: "test", CreatedAt: day(1)})
	}
	_, err := f.links.Commit(context.Background(), linkstore.Commit{LinkType: linkType, NewID: id, Added: members, At: day(1)})
	require.NoError(t, err)
}

func ref(source, id string) models.EntityReference {
	return models.NewEntityReference(provider, source, id)
}

func TestGetEntity_PointInTime(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.store(t, "A", "1", day(1), map[string]string{"name": "v1"})
	f.store(t, "A", "1", day(5), map[string]string{"name": "v2"})

	tests := []struct {
		name string
		asOf time.Time
		want string
	}{
		{"between versions", day(3), "v1"},
		{"after latest", day(10), "v2"},
		{"at second version", day(5), "v2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entity, err := f.registry.GetEntity(ctx, provider, "A", "1", tt.asOf)
			require.NoError(t, err)
			require.NotNil(t, entity)
			assert.Equal(t, tt.want, entity.Data["name"])
		})
	}

	entity, err := f.registry.GetEntity(ctx, provider, "A", "1", time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Nil(t, entity)

	entity, err = f.registry.GetEntity(ctx, provider, "Z", "9", day(10))
	require.NoError(t, err)
	assert.Nil(t, entity)
}

func TestGetEntity_ResolvesLinks(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.store(t, "A", "1", day(1), map[string]string{})
	f.store(t, "B", "2", day(1), map[string]string{})
	f.link(t, models.LinkTypeSynonym, "syn-1", ref("A", "1"), ref("B", "2"))
	group := models.NewEntityReference("management-group", "M", "7")
	f.link(t, models.LinkTypeManagementGroup, "mg-1", ref("A", "1"), group)

	entity, err := f.registry.GetEntity(ctx, provider, "A", "1", day(2))
	require.NoError(t, err)
	require.NotNil(t, entity)

	assert.Equal(t, []models.EntityLink{
		{LinkType: models.LinkTypeManagementGroup, LinkID: "mg-1", EntityType: "management-group", EntityPointer: group.EntityPointer},
		{LinkType: models.LinkTypeSynonym, LinkID: "syn-1", EntityType: provider, EntityPointer: ref("B", "2").EntityPointer},
	}, entity.Links)
}

func TestGetSynonyms_MergesMostRecentLast(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.store(t, "A", "1", day(1), map[string]string{"name": "Old Name", "urn": "100"})
	f.store(t, "B", "2", day(3), map[string]string{"name": "New Name", "ukprn": "555"})
	f.store(t, "C", "3", day(2), map[string]string{"name": "Middle Name", "postcode": "AB1"})
	f.link(t, models.LinkTypeSynonym, "syn-1", ref("B", "2"), ref("A", "1"), ref("C", "3"))

	for _, member := range []models.EntityReference{ref("A", "1"), ref("B", "2"), ref("C", "3")} {
		synonyms, err := f.registry.GetSynonyms(ctx, provider, member.SourceSystemName, member.SourceSystemID)
		require.NoError(t, err)
		require.NotNil(t, synonyms)

		assert.Equal(t, models.LinkTypeSynonym, synonyms.LinkType)
		assert.Equal(t, "syn-1", synonyms.LinkID)
		assert.Equal(t, []models.EntityReference{ref("A", "1"), ref("B", "2"), ref("C", "3")}, synonyms.Members)
		assert.Equal(t, map[string]string{
			"name":     "New Name",
			"urn":      "100",
			"ukprn":    "555",
			"postcode": "AB1",
		}, synonyms.Data)
	}
}

func TestGetSynonyms_TiesBreakByReference(t *testing.T) {
	f := newFixture()
	f.store(t, "A", "1", day(1), map[string]string{"name": "from A"})
	f.store(t, "B", "2", day(1), map[string]string{"name": "from B"})
	f.link(t, models.LinkTypeSynonym, "syn-1", ref("B", "2"), ref("A", "1"))

	synonyms, err := f.registry.GetSynonyms(context.Background(), provider, "A", "1")
	require.NoError(t, err)
	require.NotNil(t, synonyms)
	assert.Equal(t, "from B", synonyms.Data["name"])
}

func TestGetSynonyms_NotFound(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.store(t, "A", "1", day(1), map[string]string{})

	synonyms, err := f.registry.GetSynonyms(ctx, provider, "A", "1")
	require.NoError(t, err)
	assert.Nil(t, synonyms, "entity without a group")

	synonyms, err = f.registry.GetSynonyms(ctx, provider, "Z", "9")
	require.NoError(t, err)
	assert.Nil(t, synonyms, "unknown entity")
}

func TestGetLinks(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	group := models.NewEntityReference("management-group", "M", "7")
	f.link(t, models.LinkTypeSynonym, "syn-1", ref("A", "1"), ref("B", "2"))
	f.link(t, models.LinkTypeManagementGroup, "mg-1", ref("A", "1"), group)

	links, err := f.registry.GetLinks(ctx, provider, "A", "1")
	require.NoError(t, err)
	require.Len(t, links, 2)
	assert.Equal(t, "mg-1", links[0].ID)
	assert.Equal(t, "syn-1", links[1].ID)

	links, err = f.registry.GetLinks(ctx, provider, "Z", "9")
	require.NoError(t, err)
	assert.Empty(t, links)
}

func TestSearch(t *testing.T) {
	f := newFixture()
	f.store(t, "A", "1", day(1), map[string]string{"name": "Alpha"})
	f.store(t, "B", "2", day(1), map[string]string{"name": "Beta"})

	result, err := f.registry.Search(context.Background(), models.SearchRequest{
		Groups: []models.SearchGroup{{
			Filter: []models.DataFilter{{Field: "name", Operator: models.OperatorEquals, Value: "Beta"}},
		}},
	}, provider, day(2))
	require.NoError(t, err)
	assert.Equal(t, 1, result.TotalNumberOfRecords)
	require.Len(t, result.Results, 1)
	assert.Equal(t, "2", result.Results[0].Pointer.SourceSystemID)
}
