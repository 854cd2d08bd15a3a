package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/config"
)

func memoryConfig() config.Config {
	return config.Config{
		AppName:            "fern-test",
		Version:            "test",
		StorageDriver:      config.StorageDriverMemory,
		CatalogPath:        "../../config/matching-profiles.yaml",
		StartupMaxAttempts: 1,
		AllowOrigins:       []string{"*"},
		AllowMethods:       []string{http.MethodGet, http.MethodPost},
		KafkaBrokers:       []string{"localhost:9092"},
		KafkaSyncTopic:     "fern-sync",
		KafkaMatchTopic:    "fern-match",
		KafkaOutputTopic:   "fern-events",
		LinkMaxAttempts:    3,
	}
}

func newTestApp(t *testing.T, cfg config.Config) *app {
	t.Helper()
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	a, err := newApp(context.Background(), cfg, logger)
	require.NoError(t, err)
	t.Cleanup(a.close)
	return a
}

func TestNewApp_MemoryRoutes(t *testing.T) {
	a := newTestApp(t, memoryConfig())
	e := a.newEcho()

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		code   int
	}{
		{"health", http.MethodGet, "/api/v1/health", "", http.StatusOK},
		{"ready", http.MethodGet, "/api/v1/health/ready", "", http.StatusOK},
		{"metrics", http.MethodGet, "/metrics", "", http.StatusOK},
		{"missing entity", http.MethodGet, "/api/v1/learning-providers/A/100", "", http.StatusNotFound},
		{"unknown type", http.MethodGet, "/api/v1/widgets/A/100", "", http.StatusNotFound},
		{"empty search", http.MethodPost, "/api/v1/learning-providers/search", `{"groups":[],"take":10}`, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
			assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
		})
	}
}

func TestNewApp_Rejects(t *testing.T) {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})

	badDriver := memoryConfig()
	badDriver.StorageDriver = "sqlite"
	a, err := newApp(context.Background(), badDriver, logger)
	assert.ErrorContains(t, err, "sqlite")
	a.close()

	missingCatalog := memoryConfig()
	missingCatalog.CatalogPath = "does-not-exist.yaml"
	a, err = newApp(context.Background(), missingCatalog, logger)
	assert.Error(t, err)
	a.close()
}

func TestNewApp_WorkersDeadLetterOnlyWithRedis(t *testing.T) {
	a := newTestApp(t, memoryConfig())
	assert.Nil(t, a.deadLetters(), "no redis means no typed-nil dead letter queue")
	assert.NotNil(t, a.syncConsumer())
	assert.NotNil(t, a.matchConsumer())
}
