package syncmanager

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/entitystore"
	"github.com/Ramsey-B/fern/pkg/errs"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/names"
	"github.com/Ramsey-B/fern/pkg/searchindex"
)

type fakeQueue struct {
	matches []models.EntityForMatching
	syncs   []models.SyncQueueItem
	err     error
}

func (q *fakeQueue) PublishMatch(_ context.Context, item models.EntityForMatching) error {
	if q.err != nil {
		return q.err
	}
	q.matches = append(q.matches, item)
	return nil
}

func (q *fakeQueue) PublishSync(_ context.Context, item models.SyncQueueItem) error {
	if q.err != nil {
		return q.err
	}
	q.syncs = append(q.syncs, item)
	return nil
}

type syncRecorder struct{ synced []models.RegisteredEntity }

func (r *syncRecorder) EntitySynced(_ context.Context, entity models.RegisteredEntity, _ models.SyncQueueItem) {
	r.synced = append(r.synced, entity)
}

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func newManager() (*Manager, *entitystore.Store, *fakeQueue, *syncRecorder) {
	fields := searchindex.DefaultFields()
	store := entitystore.NewMemoryStore(searchindex.NewMemoryIndex(fields, testLogger()), fields, testLogger())
	queue := &fakeQueue{}
	recorder := &syncRecorder{}
	return NewManager(testLogger(), store, queue, queue, names.Default(), recorder), store, queue, recorder
}

func item(pointInTime *time.Time, data map[string]string) models.SyncQueueItem {
	return models.SyncQueueItem{
		Entity: &models.SyncEntity{
			Type:             names.LearningProvider,
			SourceSystemName: "A",
			SourceSystemID:   "100",
			Data:             data,
		},
		PointInTime:       pointInTime,
		InternalRequestID: "internal-1",
	}
}

func TestProcessSync_StoresAndEnqueuesMatch(t *testing.T) {
	ctx := context.Background()
	manager, store, queue, recorder := newManager()

	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	entity, err := manager.ProcessSync(ctx, item(&at, map[string]string{"urn": "12345"}))
	require.NoError(t, err)
	assert.Equal(t, at, entity.ValidFrom)

	stored, err := store.Retrieve(ctx, names.LearningProvider, "A", "100", at)
	require.NoError(t, err)
	assert.Equal(t, "12345", stored.Data["urn"])

	require.Len(t, queue.matches, 1)
	assert.Equal(t, models.EntityForMatching{Type: names.LearningProvider, SourceSystemName: "A", SourceSystemID: "100"}, queue.matches[0])
	assert.Len(t, recorder.synced, 1)
}

func TestProcessSync_DefaultsValidFromToNow(t *testing.T) {
	manager, _, _, _ := newManager()
	fixed := time.Date(2024, 6, 1, 12, 0, 0, 999, time.UTC)
	manager.now = func() time.Time { return fixed }

	entity, err := manager.ProcessSync(context.Background(), item(nil, map[string]string{}))
	require.NoError(t, err)
	assert.Equal(t, models.NormalizeTime(fixed), entity.ValidFrom)
}

func TestProcessSync_Idempotent(t *testing.T) {
	ctx := context.Background()
	manager, store, queue, _ := newManager()

	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	msg := item(&at, map[string]string{"urn": "12345"})
	_, err := manager.ProcessSync(ctx, msg)
	require.NoError(t, err)
	_, err = manager.ProcessSync(ctx, msg)
	require.NoError(t, err)

	history, err := store.History(ctx, names.LearningProvider, "A", "100")
	require.NoError(t, err)
	assert.Len(t, history, 1)
	assert.Len(t, queue.matches, 2, "the match request is repeated so a lost match can recover")
}

func TestProcessSync_StalePointInTimeIsDropped(t *testing.T) {
	ctx := context.Background()
	manager, _, queue, _ := newManager()

	later := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	earlier := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := manager.ProcessSync(ctx, item(&later, map[string]string{}))
	require.NoError(t, err)

	_, err = manager.ProcessSync(ctx, item(&earlier, map[string]string{}))
	assert.True(t, errs.IsValidation(err))
	assert.Len(t, queue.matches, 1)
}

func TestProcessSync_Validation(t *testing.T) {
	manager, _, queue, _ := newManager()
	ctx := context.Background()

	tests := []struct {
		name string
		item models.SyncQueueItem
	}{
		{"missing entity", models.SyncQueueItem{}},
		{"missing type", models.SyncQueueItem{Entity: &models.SyncEntity{SourceSystemName: "A", SourceSystemID: "1", Data: map[string]string{}}}},
		{"missing pointer", models.SyncQueueItem{Entity: &models.SyncEntity{Type: names.LearningProvider, Data: map[string]string{}}}},
		{"missing data", models.SyncQueueItem{Entity: &models.SyncEntity{Type: names.LearningProvider, SourceSystemName: "A", SourceSystemID: "1"}}},
		{"plural type", models.SyncQueueItem{Entity: &models.SyncEntity{Type: "learning-providers", SourceSystemName: "A", SourceSystemID: "1", Data: map[string]string{}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := manager.ProcessSync(ctx, tt.item)
			assert.True(t, errs.IsValidation(err), "got %v", err)
		})
	}
	assert.Empty(t, queue.matches)
}

func TestProcessSync_PublishFailureIsTransient(t *testing.T) {
	manager, _, queue, _ := newManager()
	queue.err = errors.New("broker down")

	_, err := manager.ProcessSync(context.Background(), item(nil, map[string]string{}))
	assert.True(t, errs.IsTransient(err))
}

func TestIngest(t *testing.T) {
	manager, _, queue, _ := newManager()
	ctx := context.Background()

	queued, err := manager.Ingest(ctx, "management-groups", IngestRequest{
		SourceSystemName: "M",
		SourceSystemID:   "55",
		Data:             map[string]string{"code": "C1"},
	})
	require.NoError(t, err)
	assert.Equal(t, names.ManagementGroup, queued.Entity.Type)
	assert.NotEmpty(t, queued.InternalRequestID)
	require.Len(t, queue.syncs, 1)

	_, err = manager.Ingest(ctx, "widgets", IngestRequest{SourceSystemName: "M", SourceSystemID: "55", Data: map[string]string{}})
	assert.True(t, errs.IsValidation(err))

	_, err = manager.Ingest(ctx, "management-groups", IngestRequest{SourceSystemName: "M"})
	assert.True(t, errs.IsValidation(err))
}
