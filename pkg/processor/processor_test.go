package processor

import (
	"context"
	"errors"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/errs"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/models"
)

type fakeSyncs struct {
	items []models.SyncQueueItem
	err   error
}

func (f *fakeSyncs) ProcessSync(_ context.Context, item models.SyncQueueItem) (*models.RegisteredEntity, error) {
	f.items = append(f.items, item)
	if f.err != nil {
		return nil, f.err
	}
	return &models.RegisteredEntity{Type: item.Entity.Type}, nil
}

type fakeMatches struct {
	items []models.EntityForMatching
	err   error
}

func (f *fakeMatches) ProcessMatch(_ context.Context, item models.EntityForMatching) (*matching.Result, error) {
	f.items = append(f.items, item)
	if f.err != nil {
		return nil, f.err
	}
	return &matching.Result{Entity: item.Reference()}, nil
}

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func TestHandleSync(t *testing.T) {
	syncs := &fakeSyncs{}
	p := NewProcessor(testLogger(), syncs, &fakeMatches{})

	err := p.HandleSync(context.Background(), &kafka.IncomingMessage{
		Topic: "fern-sync",
		Value: []byte(`{"entity":{"type":"learning-provider","sourceSystemName":"A","sourceSystemId":"1","data":{"urn":"12345"}},"internalRequestId":"req-1"}`),
	})
	require.NoError(t, err)
	require.Len(t, syncs.items, 1)
	assert.Equal(t, "learning-provider", syncs.items[0].Entity.Type)
	assert.Equal(t, "12345", syncs.items[0].Entity.Data["urn"])
	assert.Equal(t, "req-1", syncs.items[0].InternalRequestID)
}

func TestHandleSync_MalformedIsValidation(t *testing.T) {
	syncs := &fakeSyncs{}
	p := NewProcessor(testLogger(), syncs, &fakeMatches{})

	err := p.HandleSync(context.Background(), &kafka.IncomingMessage{Value: []byte(`[`)})
	assert.True(t, errs.IsValidation(err))
	assert.Empty(t, syncs.items)
}

func TestHandleMatch(t *testing.T) {
	matches := &fakeMatches{}
	p := NewProcessor(testLogger(), &fakeSyncs{}, matches)

	err := p.HandleMatch(context.Background(), &kafka.IncomingMessage{
		Value: []byte(`{"type":"management-group","sourceSystemName":"M","sourceSystemId":"7"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, []models.EntityForMatching{{Type: "management-group", SourceSystemName: "M", SourceSystemID: "7"}}, matches.items)
}

func TestHandleMatch_PropagatesErrors(t *testing.T) {
	cause := errs.Transient(errors.New("db down"), "candidate fetch failed")
	p := NewProcessor(testLogger(), &fakeSyncs{}, &fakeMatches{err: cause})

	err := p.HandleMatch(context.Background(), &kafka.IncomingMessage{Value: []byte(`{"type":"learning-provider"}`)})
	assert.True(t, errs.IsTransient(err))
}
