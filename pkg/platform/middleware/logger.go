package middleware

import (
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/platform/reqctx"
)

// Logger writes one structured line per request. Health and metrics probes log at debug.
func Logger(logger ectologger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			if err := next(c); err != nil {
				c.Error(err)
			}

			req := c.Request()
			log := logger.WithContext(req.Context()).WithFields(reqctx.Fields(req.Context())).WithFields(map[string]any{
				"method":      req.Method,
				"route":       c.Path(),
				"uri":         req.RequestURI,
				"status":      c.Response().Status,
				"bytes_out":   c.Response().Size,
				"duration_ms": time.Since(start).Milliseconds(),
			})
			if probe(c.Path()) {
				log.Debug("Request")
				return nil
			}
			log.Info("Request")
			return nil
		}
	}
}

func probe(route string) bool {
	switch route {
	case "/metrics", "/api/v1/health", "/api/v1/health/live", "/api/v1/health/ready":
		return true
	}
	return false
}
