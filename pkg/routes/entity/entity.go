package entity

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/errs"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/names"
	"github.com/Ramsey-B/fern/pkg/routes/params"
)

type Registry interface {
	GetEntity(ctx context.Context, entityType, sourceSystemName, sourceSystemID string, asOf time.Time) (*models.RegisteredEntity, error)
	GetSynonyms(ctx context.Context, entityType, sourceSystemName, sourceSystemID string) (*models.SynonymousEntities, error)
	GetLinks(ctx context.Context, entityType, sourceSystemName, sourceSystemID string) ([]models.Link, error)
}

type Handler struct {
	registry Registry
	names    *names.Translator
}

func NewHandler(registry Registry, translator *names.Translator) *Handler {
	return &Handler{
		registry: registry,
		names:    translator,
	}
}

func (h *Handler) Register(g *echo.Group) {
	g.GET("/:entityType/:sourceSystemName/:sourceSystemId", h.GetEntity)
	g.GET("/:entityType/:sourceSystemName/:sourceSystemId/synonyms", h.GetSynonyms)
	g.GET("/:entityType/:sourceSystemName/:sourceSystemId/links", h.GetLinks)
}

// GetEntity returns one entity as of ?pointInTime.
func (h *Handler) GetEntity(c echo.Context) error {
	ctx := c.Request().Context()

	entityType, err := params.CanonicalType(c, h.names)
	if err != nil {
		return err
	}
	asOf, err := params.PointInTime(c)
	if err != nil {
		return err
	}

	entity, err := h.registry.GetEntity(ctx, entityType, c.Param(params.SourceSystemName), c.Param(params.SourceSystemID), asOf)
	if err != nil {
		return err
	}
	if entity == nil {
		return errs.NotFound("%s %s:%s not found", entityType, c.Param(params.SourceSystemName), c.Param(params.SourceSystemID))
	}
	return c.JSON(http.StatusOK, entity)
}

// GetSynonyms returns the entity's synonym group with merged data.
func (h *Handler) GetSynonyms(c echo.Context) error {
	ctx := c.Request().Context()

	entityType, err := params.CanonicalType(c, h.names)
	if err != nil {
		return err
	}

	synonyms, err := h.registry.GetSynonyms(ctx, entityType, c.Param(params.SourceSystemName), c.Param(params.SourceSystemID))
	if err != nil {
		return err
	}
	if synonyms == nil {
		return errs.NotFound("no synonyms for %s %s:%s", entityType, c.Param(params.SourceSystemName), c.Param(params.SourceSystemID))
	}
	return c.JSON(http.StatusOK, synonyms)
}

// GetLinks returns every group the entity belongs to. An unlinked entity has none.
func (h *Handler) GetLinks(c echo.Context) error {
	ctx := c.Request().Context()

	entityType, err := params.CanonicalType(c, h.names)
	if err != nil {
		return err
	}

	links, err := h.registry.GetLinks(ctx, entityType, c.Param(params.SourceSystemName), c.Param(params.SourceSystemID))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, links)
}
