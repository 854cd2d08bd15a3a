package search

import (
	"context"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/errs"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/names"
	"github.com/Ramsey-B/fern/pkg/routes/params"
)

type Searcher interface {
	Search(ctx context.Context, req models.SearchRequest, entityType string, asOf time.Time) (*models.EntitySearchResult, error)
}

type Handler struct {
	searcher Searcher
	names    *names.Translator
	validate *validator.Validate
}

func NewHandler(searcher Searcher, translator *names.Translator) *Handler {
	return &Handler{
		searcher: searcher,
		names:    translator,
		validate: validator.New(),
	}
}

func (h *Handler) Register(g *echo.Group) {
	g.POST("/:entityType/search", h.Search)
}

// Search runs a filtered, paged query as of ?pointInTime.
func (h *Handler) Search(c echo.Context) error {
	ctx := c.Request().Context()

	entityType, err := params.CanonicalType(c, h.names)
	if err != nil {
		return err
	}
	asOf, err := params.PointInTime(c)
	if err != nil {
		return err
	}

	var req models.SearchRequest
	if err := c.Bind(&req); err != nil {
		return errs.WrapValidation(err, "invalid search request")
	}
	if err := h.validate.Struct(req); err != nil {
		return errs.WrapValidation(err, "invalid search request")
	}

	result, err := h.searcher.Search(ctx, req, entityType, asOf)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}
