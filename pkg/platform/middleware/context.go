package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/platform/reqctx"
)

// Context assigns the internal request id (reusing X-Request-Id when the caller sent one)
// and records the caller's external id. Both are echoed back as response headers.
func Context() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()

			internalID := req.Header.Get(echo.HeaderXRequestID)
			if internalID == "" {
				internalID = uuid.NewString()
			}
			externalID := req.Header.Get(reqctx.HeaderExternalRequestID)

			c.Response().Header().Set(echo.HeaderXRequestID, internalID)
			if externalID != "" {
				c.Response().Header().Set(reqctx.HeaderExternalRequestID, externalID)
			}

			c.SetRequest(req.WithContext(reqctx.WithRequestIDs(req.Context(), internalID, externalID)))
			return next(c)
		}
	}
}
