// Package params reads path and query parameters shared by the registry routes.
package params

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/errs"
	"github.com/Ramsey-B/fern/pkg/names"
)

const (
	EntityType       = "entityType"
	SourceSystemName = "sourceSystemName"
	SourceSystemID   = "sourceSystemId"
	PointInTimeQuery = "pointInTime"
)

// CanonicalType translates the plural :entityType path segment.
func CanonicalType(c echo.Context, translator *names.Translator) (string, error) {
	plural := c.Param(EntityType)
	entityType, ok := translator.Singular(plural)
	if !ok {
		return "", errs.NotFound("unrecognized entity type %q", plural)
	}
	return entityType, nil
}

// PointInTime parses ?pointInTime as RFC 3339, defaulting to now.
func PointInTime(c echo.Context) (time.Time, error) {
	raw := c.QueryParam(PointInTimeQuery)
	if raw == "" {
		return time.Now().UTC(), nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, errs.WrapValidation(err, "invalid pointInTime %q", raw)
	}
	return t.UTC(), nil
}
