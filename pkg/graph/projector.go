package graph

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/platform/tracing"
)

const (
	deleteLinkCypher = `
		MATCH (l:Link {id: $id})
		DETACH DELETE l
	`
	upsertLinkCypher = `
		MERGE (l:Link {id: $id})
		SET l.link_type = $link_type, l.version = $version, l.updated_at = $updated_at
	`
	upsertMemberCypher = `
		MERGE (e:Entity {key: $key})
		SET e.entity_type = $entity_type,
			e.source_system_name = $source_system_name,
			e.source_system_id = $source_system_id
		WITH e
		MATCH (l:Link {id: $link_id})
		MERGE (e)-[:MEMBER_OF]->(l)
	`
)

type Statement struct {
	Cypher string
	Params map[string]any
}

type StatementWriter interface {
	ExecuteWrite(ctx context.Context, statements []Statement) error
}

// Projector mirrors committed link groups into the graph. It is best effort: the link
// store stays the source of truth and a failed projection is only logged.
type Projector struct {
	writer StatementWriter
	logger ectologger.Logger
}

func NewProjector(writer StatementWriter, logger ectologger.Logger) *Projector {
	return &Projector{
		writer: writer,
		logger: logger,
	}
}

func (p *Projector) LinkCommitted(ctx context.Context, change matching.LinkChange) {
	ctx, span := tracing.StartSpan(ctx, "graph.Projector.LinkCommitted")
	defer span.End()

	if err := p.writer.ExecuteWrite(ctx, statements(change)); err != nil {
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"link_id":   change.Link.ID,
			"link_type": change.Link.LinkType,
		}).Error("Failed to project link into graph")
		return
	}

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"link_id": change.Link.ID,
		"members": len(change.Link.Members),
	}).Debug("Projected link into graph")
}

// statements drops absorbed groups, then upserts the surviving group and every member.
func statements(change matching.LinkChange) []Statement {
	link := change.Link
	out := make([]Statement, 0, len(change.Absorbed)+len(link.Members)+1)
	for _, id := range change.Absorbed {
		out = append(out, Statement{Cypher: deleteLinkCypher, Params: map[string]any{"id": id}})
	}
	out = append(out, Statement{
		Cypher: upsertLinkCypher,
		Params: map[string]any{
			"id":         link.ID,
			"link_type":  link.LinkType,
			"version":    link.Version,
			"updated_at": link.UpdatedAt,
		},
	})
	for _, m := range link.Members {
		out = append(out, memberStatement(link.ID, m.EntityReference))
	}
	return out
}

func memberStatement(linkID string, ref models.EntityReference) Statement {
	return Statement{
		Cypher: upsertMemberCypher,
		Params: map[string]any{
			"key":                ref.String(),
			"entity_type":        ref.EntityType,
			"source_system_name": ref.SourceSystemName,
			"source_system_id":   ref.SourceSystemID,
			"link_id":            linkID,
		},
	}
}
