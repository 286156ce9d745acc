package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/go-chi/chi/v5"
	"github.com/samber/do"
	"github.com/serroba/keythrottle/internal/container"
	"go.uber.org/zap"
)

const (
	readHeaderTimeout = 10 * time.Second
	drainTimeout      = 30 * time.Second
)

// app owns the injector and the HTTP server built from it.
type app struct {
	injector *do.Injector
	logger   *zap.Logger
	server   *http.Server
}

func newApp(options *container.Options) *app {
	injector := do.New()
	do.ProvideValue(injector, options)
	container.LoggerPackage(injector)
	container.RedisPackage(injector)
	container.PostgresPackage(injector)
	container.MetricsPackage(injector)
	container.RateLimitPackage(injector)
	container.PublisherGroupPackage(injector)
	container.HTTPPackage(injector)

	return &app{
		injector: injector,
		logger:   do.MustInvoke[*zap.Logger](injector),
	}
}

// serve builds the router and blocks until the server stops.
func (a *app) serve(options *container.Options) error {
	router, err := do.Invoke[*chi.Mux](a.injector)
	if err != nil {
		return err
	}

	// Routes are registered when the API is built.
	if _, err := do.Invoke[huma.API](a.injector); err != nil {
		return fmt.Errorf("build api: %w", err)
	}

	a.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", options.Port),
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	a.logger.Info("keythrottle listening",
		zap.String("addr", a.server.Addr),
		zap.String("backend", options.Backend),
		zap.Bool("audit_events", options.AuditEvents),
		zap.Bool("admin_routes", options.AdminToken != ""),
		zap.Bool("trust_proxy", options.TrustProxy),
	)

	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen: %w", err)
	}

	return nil
}

// stop drains in-flight requests, then shuts every provided service down.
func (a *app) stop() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			a.logger.Error("draining http server", zap.Error(err))
		}
	}

	if err := a.injector.Shutdown(); err != nil {
		a.logger.Error("stopping services", zap.Error(err))
	}

	a.logger.Info("keythrottle stopped")
	_ = a.logger.Sync()
}

func main() {
	cli := humacli.New(func(hooks humacli.Hooks, options *container.Options) {
		a := newApp(options)

		hooks.OnStart(func() {
			if err := a.serve(options); err != nil {
				a.logger.Fatal("server failed", zap.Error(err))
			}
		})

		hooks.OnStop(a.stop)
	})

	cli.Run()
}
