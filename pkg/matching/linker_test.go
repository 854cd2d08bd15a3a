package matching

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/errs"
	"github.com/Ramsey-B/fern/pkg/linkstore"
	"github.com/Ramsey-B/fern/pkg/models"
)

type recordingObserver struct {
	mu      sync.Mutex
	changes []LinkChange
}

func (o *recordingObserver) LinkCommitted(_ context.Context, change LinkChange) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.changes = append(o.changes, change)
}

func linkRequest(a, b models.EntityReference) LinkRequest {
	return LinkRequest{LinkType: models.LinkTypeSynonym, Source: a, Candidate: b, CreatedBy: "test", Reason: "test"}
}

func TestLinker_CreateJoinMerge(t *testing.T) {
	ctx := context.Background()
	store := linkstore.NewMemoryStore()
	observer := &recordingObserver{}
	linker := newTestLinker(store, observer)

	a, b, c, d := ref(provider, "A", "1"), ref(provider, "B", "1"), ref(provider, "C", "1"), ref(provider, "D", "1")

	created, err := linker.Link(ctx, linkRequest(a, b))
	require.NoError(t, err)
	joined, err := linker.Link(ctx, linkRequest(c, b))
	require.NoError(t, err)
	assert.Equal(t, created.ID, joined.ID)

	_, err = linker.Link(ctx, linkRequest(d, ref(provider, "E", "1")))
	require.NoError(t, err)
	merged, err := linker.Link(ctx, linkRequest(a, d))
	require.NoError(t, err)
	assert.Equal(t, created.ID, merged.ID)
	assert.Len(t, merged.Members, 5)

	_, err = linker.Link(ctx, linkRequest(b, d))
	require.NoError(t, err)

	kinds := make([]ChangeKind, 0, len(observer.changes))
	for _, change := range observer.changes {
		kinds = append(kinds, change.Kind)
	}
	assert.Equal(t, []ChangeKind{ChangeCreated, ChangeJoined, ChangeCreated, ChangeMerged}, kinds)
	assert.Len(t, observer.changes[3].Absorbed, 1)
}

func TestLinker_ConcurrentMergeOfSameGroups(t *testing.T) {
	ctx := context.Background()
	store := linkstore.NewMemoryStore()
	linker := newTestLinker(store)

	a, b, c, d := ref(provider, "A", "1"), ref(provider, "B", "1"), ref(provider, "C", "1"), ref(provider, "D", "1")
	left, err := linker.Link(ctx, linkRequest(a, b))
	require.NoError(t, err)
	right, err := linker.Link(ctx, linkRequest(c, d))
	require.NoError(t, err)

	var wg sync.WaitGroup
	errCh := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := linkRequest(b, c)
			if i%2 == 0 {
				req = linkRequest(d, a)
			}
			_, err := linker.Link(ctx, req)
			errCh <- err
		}(i)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		require.NoError(t, err)
	}

	for _, r := range []models.EntityReference{a, b, c, d} {
		link, err := store.GetByMember(ctx, models.LinkTypeSynonym, r)
		require.NoError(t, err)
		assert.Equal(t, left.ID, link.ID)
		assert.ElementsMatch(t, []models.EntityReference{a, b, c, d}, link.References())
	}
	_, err = store.Get(ctx, models.LinkTypeSynonym, right.ID)
	assert.True(t, errs.IsNotFound(err))
}

type conflictingStore struct {
	linkstore.Store
	commits atomic.Int32
}

func (s *conflictingStore) GetByMember(context.Context, string, models.EntityReference) (*models.Link, error) {
	return nil, errs.NotFound("none")
}

func (s *conflictingStore) Commit(context.Context, linkstore.Commit) (*models.Link, error) {
	s.commits.Add(1)
	return nil, errs.Conflict("always loses")
}

func TestLinker_ExhaustedConflictsAreRetryable(t *testing.T) {
	store := &conflictingStore{}
	linker := newTestLinker(store)

	_, err := linker.Link(context.Background(), linkRequest(ref(provider, "A", "1"), ref(provider, "B", "1")))
	assert.True(t, errs.IsRetryable(err))
	assert.Equal(t, int32(5), store.commits.Load())
}

type brokenStore struct {
	linkstore.Store
	commits atomic.Int32
}

func (s *brokenStore) GetByMember(context.Context, string, models.EntityReference) (*models.Link, error) {
	return nil, errs.NotFound("none")
}

func (s *brokenStore) Commit(context.Context, linkstore.Commit) (*models.Link, error) {
	s.commits.Add(1)
	return nil, errs.Transient(nil, "database down")
}

func TestLinker_TransientErrorsAreNotRetriedInternally(t *testing.T) {
	store := &brokenStore{}
	linker := newTestLinker(store)

	_, err := linker.Link(context.Background(), linkRequest(ref(provider, "A", "1"), ref(provider, "B", "1")))
	assert.True(t, errs.IsTransient(err))
	assert.Equal(t, int32(1), store.commits.Load())
}

func TestLinker_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	linker := newTestLinker(linkstore.NewMemoryStore())
	_, err := linker.Link(ctx, linkRequest(ref(provider, "A", "1"), ref(provider, "B", "1")))
	assert.Error(t, err)
}
