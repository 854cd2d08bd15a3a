package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/models"
)

type recordingWriter struct {
	batches [][]Statement
	err     error
}

func (w *recordingWriter) ExecuteWrite(_ context.Context, statements []Statement) error {
	w.batches = append(w.batches, statements)
	return w.err
}

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

var merged = &models.Link{
	LinkType: models.LinkTypeSynonym,
	ID:       "link-1",
	Version:  3,
	Members: []models.LinkMember{
		{EntityReference: models.NewEntityReference("learning-provider", "A", "1")},
		{EntityReference: models.NewEntityReference("learning-provider", "B", "2")},
	},
}

func TestProjector_WritesGroupInOneTransaction(t *testing.T) {
	writer := &recordingWriter{}
	NewProjector(writer, testLogger()).LinkCommitted(context.Background(), matching.LinkChange{
		Kind:     matching.ChangeMerged,
		Link:     merged,
		Absorbed: []string{"link-2"},
	})

	require.Len(t, writer.batches, 1)
	batch := writer.batches[0]
	require.Len(t, batch, 4)

	assert.Equal(t, deleteLinkCypher, batch[0].Cypher)
	assert.Equal(t, "link-2", batch[0].Params["id"])
	assert.Equal(t, upsertLinkCypher, batch[1].Cypher)
	assert.Equal(t, int64(3), batch[1].Params["version"])
	assert.Equal(t, "learning-provider:A:1", batch[2].Params["key"])
	assert.Equal(t, "link-1", batch[3].Params["link_id"])
}

func TestProjector_FailureIsLogged(t *testing.T) {
	writer := &recordingWriter{err: errors.New("bolt unavailable")}
	assert.NotPanics(t, func() {
		NewProjector(writer, testLogger()).LinkCommitted(context.Background(), matching.LinkChange{Kind: matching.ChangeCreated, Link: merged})
	})
}
