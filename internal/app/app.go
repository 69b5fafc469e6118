// Package app wires the Backend Registry, Stream Supervisor and HTTP
// server together into one running process, and coordinates graceful
// shutdown.
//
// Grounded on the teacher's internal/app/app.go Application struct (the
// http.Server + RouteRegistry + errCh shape), adapted so shutdown drains
// in-flight streams instead of the teacher's discovery-service stop.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ollamux/ollamux/internal/adapter/proxy"
	"github.com/ollamux/ollamux/internal/adapter/registry"
	"github.com/ollamux/ollamux/internal/config"
	"github.com/ollamux/ollamux/internal/core/domain"
	"github.com/ollamux/ollamux/internal/logger"
	"github.com/ollamux/ollamux/internal/router"
	"github.com/ollamux/ollamux/pkg/eventbus"
)

// ShutdownTimeout bounds how long Stop waits for in-flight streams to
// drain before giving up and returning anyway (spec.md §3 "Shutdown
// Coordinator": drain, never force-cancel, but a process can't wait
// forever).
const ShutdownTimeout = 30 * time.Second

// Application owns every long-lived component of one ollamux process.
type Application struct {
	cfg        *config.Config
	log        *logger.StyledLogger
	registry   *registry.Registry
	supervisor *proxy.Supervisor
	events     *eventbus.EventBus[domain.Outcome]
	stats      *statsSubscriber
	server     *http.Server

	inFlight sync.WaitGroup
	errCh    chan error
}

// New builds an Application ready to Start. It does not bind the listening
// socket yet; that happens in Start.
func New(cfg *config.Config, log *logger.StyledLogger) *Application {
	reg := registry.New(cfg.Servers)
	events := eventbus.New[domain.Outcome]()
	sv := proxy.NewSupervisor(cfg.SilenceTimeout, events)
	stats := newStatsSubscriber(events)

	a := &Application{
		cfg:        cfg,
		log:        log,
		registry:   reg,
		supervisor: sv,
		events:     events,
		stats:      stats,
		errCh:      make(chan error, 1),
	}

	mux := http.NewServeMux()
	routes := router.NewRouteRegistry(log)
	routes.Register("/", "POST", a.proxyHandler, "Ollama-compatible inference proxy")
	routes.Register("/internal/health", "GET", a.healthHandler, "Liveness probe")
	routes.Register("/internal/status", "GET", a.statusHandler, "Backend registry snapshot")
	routes.WireUp(mux)

	a.server = &http.Server{
		Addr:    cfg.Listen,
		Handler: mux,
	}
	return a
}

// Start begins accepting connections. Startup/runtime errors surface on
// the channel returned by Errors.
func (a *Application) Start() {
	go func() {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("http server error", "error", err)
			a.errCh <- err
		}
	}()
	a.log.Info("listening", "addr", a.cfg.Listen, "backends", len(a.cfg.Servers))
}

// Errors returns the channel startup/runtime errors are delivered on.
func (a *Application) Errors() <-chan error { return a.errCh }

// Stop stops accepting new connections and waits for in-flight streams to
// finish on their own, up to ShutdownTimeout. It never cancels a stream
// that is already proxying bytes (spec.md §3 "no forced cancellation").
func (a *Application) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, ShutdownTimeout)
	defer cancel()

	var g errgroup.Group
	g.Go(func() error {
		return a.server.Shutdown(shutdownCtx)
	})
	shutdownErr := g.Wait()

	drained := make(chan struct{})
	go func() {
		a.inFlight.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-shutdownCtx.Done():
		a.log.Warn("shutdown timeout reached with streams still in flight")
	}

	a.supervisor.Close()
	a.stats.close()
	a.events.Shutdown()

	if shutdownErr != nil {
		return fmt.Errorf("http server shutdown: %w", shutdownErr)
	}
	return nil
}
