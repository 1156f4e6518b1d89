// Package server hosts the HTTP API over the analysis service and the store.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/repolens/repolens/analysis"
	"github.com/repolens/repolens/analysis/metrics"
	"github.com/repolens/repolens/internal/profile"
	apiv1 "github.com/repolens/repolens/server/router/api/v1"
	"github.com/repolens/repolens/store"
)

type Server struct {
	echo    *echo.Echo
	profile *profile.Profile
	store   *store.Store
}

// NewServer assembles the echo instance with the API v1 routes, the health
// check and the prometheus endpoint.
func NewServer(p *profile.Profile, st *store.Store, svc *analysis.Service, exporter *metrics.Exporter) (*Server, error) {
	if svc == nil {
		return nil, errors.New("server: analysis service is required")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			slog.Info("http request",
				"method", c.Request().Method,
				"uri", c.Request().RequestURI,
				"status", c.Response().Status,
				"duration", time.Since(start).Round(time.Microsecond),
				"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
			)
			return err
		}
	})

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	if exporter != nil {
		e.GET("/metrics", echo.WrapHandler(exporter.Handler()))
	}

	apiv1.NewAPIV1Service(p, st, svc).Register(e)

	return &Server{
		echo:    e,
		profile: p,
		store:   st,
	}, nil
}

// Start runs the server until the context is canceled, then shuts it down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.profile.Addr, s.profile.Port)
	slog.Info("server: listening", "addr", addr)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.echo.Start(addr)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server: listen failed")
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.echo.Shutdown(shutdownCtx)
	}
}
