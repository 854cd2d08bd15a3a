// Package processor adapts queue messages onto the sync and match pipelines.
package processor

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/platform/reqctx"
	"github.com/Ramsey-B/fern/pkg/platform/tracing"
)

type SyncService interface {
	ProcessSync(ctx context.Context, item models.SyncQueueItem) (*models.RegisteredEntity, error)
}

type MatchService interface {
	ProcessMatch(ctx context.Context, item models.EntityForMatching) (*matching.Result, error)
}

// Processor holds the kafka.MessageHandler for each queue.
type Processor struct {
	logger  ectologger.Logger
	syncs   SyncService
	matches MatchService
}

func NewProcessor(logger ectologger.Logger, syncs SyncService, matches MatchService) *Processor {
	return &Processor{
		logger:  logger,
		syncs:   syncs,
		matches: matches,
	}
}

// HandleSync decodes a SyncQueueItem and stores it.
func (p *Processor) HandleSync(ctx context.Context, msg *kafka.IncomingMessage) error {
	ctx, span := tracing.StartSpan(ctx, "processor.Processor.HandleSync")
	defer span.End()

	var item models.SyncQueueItem
	if err := msg.Decode(&item); err != nil {
		return err
	}

	_, err := p.syncs.ProcessSync(ctx, item)
	return err
}

// HandleMatch decodes an EntityForMatching and runs the matching engine on it.
func (p *Processor) HandleMatch(ctx context.Context, msg *kafka.IncomingMessage) error {
	ctx, span := tracing.StartSpan(ctx, "processor.Processor.HandleMatch")
	defer span.End()

	var item models.EntityForMatching
	if err := msg.Decode(&item); err != nil {
		return err
	}
	ctx = msg.Context(ctx)

	result, err := p.matches.ProcessMatch(ctx, item)
	if err != nil {
		return err
	}

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"entity":  item.Reference().String(),
		"matches": len(result.Matches),
		"skipped": len(result.Skipped),
	}).WithFields(reqctx.Fields(ctx)).Debug("Processed match request")
	return nil
}
