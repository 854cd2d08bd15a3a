package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"golang.org/x/sync/errgroup"

	"github.com/Ramsey-B/fern/pkg/platform/middleware"
	"github.com/Ramsey-B/fern/pkg/routes/entity"
	"github.com/Ramsey-B/fern/pkg/routes/health"
	"github.com/Ramsey-B/fern/pkg/routes/ingest"
	"github.com/Ramsey-B/fern/pkg/routes/metrics"
	"github.com/Ramsey-B/fern/pkg/routes/search"
)

var withWorkers bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and, unless disabled, the sync and match workers",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, cleanup, err := loadApp(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error { return a.serveHTTP(ctx) })
		if withWorkers {
			g.Go(func() error { return consume(ctx, a.syncConsumer()) })
			g.Go(func() error { return consume(ctx, a.matchConsumer()) })
		}
		return g.Wait()
	},
}

func init() {
	serveCmd.Flags().BoolVar(&withWorkers, "with-workers", true, "also consume the sync and match topics")
}

func (a *app) newEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(a.logger)

	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: a.cfg.AllowOrigins,
		AllowMethods: a.cfg.AllowMethods,
	}))
	e.Use(otelecho.Middleware(a.cfg.AppName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(a.logger))

	checker := health.NewChecker(a.cfg.Version, a.checks)
	checker.SetReady(true)
	checker.RegisterRoutes(e)
	metrics.Register(e)

	api := e.Group("/api/v1")
	search.NewHandler(a.registry, a.names).Register(api)
	ingest.NewHandler(a.manager).Register(api)
	entity.NewHandler(a.registry, a.names).Register(api)
	return e
}

func (a *app) serveHTTP(ctx context.Context) error {
	e := a.newEcho()
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Port),
		Handler:           e,
		ReadTimeout:       time.Duration(a.cfg.HttpServerReadTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(a.cfg.HttpServerWriteTimeoutSeconds) * time.Second,
		IdleTimeout:       time.Duration(a.cfg.HttpServerIdleTimeoutSeconds) * time.Second,
		ReadHeaderTimeout: time.Duration(a.cfg.ReadHeaderTimeoutSeconds) * time.Second,
		MaxHeaderBytes:    a.cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.WithField("port", a.cfg.Port).Info("Starting HTTP server")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	a.logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
