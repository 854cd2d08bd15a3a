package ingest

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/errs"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/routes/params"
	"github.com/Ramsey-B/fern/pkg/syncmanager"
)

type Ingester interface {
	Ingest(ctx context.Context, pluralType string, req syncmanager.IngestRequest) (*models.SyncQueueItem, error)
}

type Handler struct {
	ingester Ingester
}

func NewHandler(ingester Ingester) *Handler {
	return &Handler{ingester: ingester}
}

func (h *Handler) Register(g *echo.Group) {
	g.POST("/:entityType", h.Ingest)
}

// Ingest enqueues an entity update and answers 202 with the queued item.
func (h *Handler) Ingest(c echo.Context) error {
	ctx := c.Request().Context()

	var req syncmanager.IngestRequest
	if err := c.Bind(&req); err != nil {
		return errs.WrapValidation(err, "invalid entity payload")
	}

	item, err := h.ingester.Ingest(ctx, c.Param(params.EntityType), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, item)
}
