// Package app wires the store, its observers and the outer surfaces into a
// single runnable process.
package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/kvobserve/internal/config"
	"github.com/dshills/kvobserve/internal/httpapi"
	"github.com/dshills/kvobserve/internal/logging"
	"github.com/dshills/kvobserve/internal/metrics"
	"github.com/dshills/kvobserve/internal/observer"
	"github.com/dshills/kvobserve/internal/observer/dispatch"
	"github.com/dshills/kvobserve/internal/script"
	"github.com/dshills/kvobserve/internal/store"
	"github.com/dshills/kvobserve/internal/watcher"
)

const shutdownTimeout = 5 * time.Second

// ErrAlreadyRunning is returned by Run when the application is running.
var ErrAlreadyRunning = errors.New("application already running")

// Options configures the application.
type Options struct {
	Config config.Config
	Logger zerolog.Logger

	// Registry receives the process metrics. A fresh registry is used when
	// nil.
	Registry *prometheus.Registry
}

// Application owns every long-lived component of the service.
type Application struct {
	cfg    config.Config
	logger zerolog.Logger

	registry *prometheus.Registry
	metrics  *metrics.Collector
	pool     *dispatch.Pool
	revision *store.Revision
	store    *store.Store
	watcher  *watcher.Watcher
	scripts  []*script.Observer
	handler  http.Handler

	running   atomic.Bool
	closeOnce sync.Once
}

// New creates the application and loads the initial values and scripts.
func New(opts Options) (*Application, error) {
	if err := opts.Config.Validate(); err != nil {
		return nil, &InitError{Component: "config", Err: err}
	}

	app := &Application{
		cfg:      opts.Config,
		logger:   opts.Logger,
		registry: opts.Registry,
		revision: &store.Revision{},
	}
	if app.registry == nil {
		app.registry = prometheus.NewRegistry()
		app.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	if err := app.bootstrap(); err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

// bootstrap initializes components in dependency order.
func (app *Application) bootstrap() error {
	app.metrics = metrics.New(app.registry)

	regOpts := []observer.Option{
		observer.WithName("values"),
		observer.WithTryWait(app.cfg.Registry.TryWait.Std()),
		observer.WithLogger(logging.Component(app.logger, "observer")),
		observer.WithMetrics(app.metrics),
	}

	if n := app.cfg.Registry.Workers; n > 0 {
		app.pool = dispatch.NewPool(
			dispatch.WithWorkerCount(n),
			dispatch.WithQueueSize(app.cfg.Registry.QueueSize),
			dispatch.WithPoolPanicHandler(func(v any, stack []byte) {
				app.logger.Error().Interface("panic", v).Bytes("stack", stack).Msg("delivery panicked")
			}),
		)
		if err := app.pool.Start(); err != nil {
			return &InitError{Component: "dispatch", Err: err}
		}
		app.metrics.WatchPool("delivery", app.pool)
		regOpts = append(regOpts, observer.WithSink(app.pool))
	}

	app.store = store.New(nil,
		store.WithBridge(app.revision),
		store.WithLogger(logging.Component(app.logger, "store")),
		store.WithRegistryOptions(regOpts...),
	)

	if path := app.cfg.ValuesFile; path != "" {
		w, err := watcher.New(path, app.store, watcher.WithLogger(logging.Component(app.logger, "watcher")))
		if err != nil {
			return &InitError{Component: "watcher", Err: err}
		}
		n, err := w.Reload()
		switch {
		case errors.Is(err, fs.ErrNotExist):
			app.logger.Warn().Str("path", w.Path()).Msg("values file does not exist yet, starting empty")
		case err != nil:
			return &InitError{Component: "values", Err: err}
		default:
			app.logger.Info().Int("keys", n).Str("path", w.Path()).Msg("values loaded")
		}
		app.watcher = w
	}

	for _, path := range app.cfg.Scripts {
		if err := app.loadScript(path); err != nil {
			return &InitError{Component: "script", Err: err}
		}
	}

	app.handler = httpapi.NewMux(app.store,
		httpapi.WithRevision(app.revision),
		httpapi.WithRequestObserver(app.metrics),
		httpapi.WithGatherer(app.registry),
		httpapi.WithCORS(app.cfg.CORSOrigins...),
		httpapi.WithLogger(logging.Component(app.logger, "http")),
	)
	return nil
}

// loadScript subscribes a script to the keys it declares, or to every key
// present at startup when it declares none.
func (app *Application) loadScript(path string) error {
	o, err := script.Load(path, script.WithLogger(logging.Component(app.logger, "script")))
	if err != nil {
		return err
	}
	keys := o.Keys()
	if len(keys) == 0 {
		keys = app.store.Keys()
	}
	app.store.Observe(keys, o.Reference())
	app.scripts = append(app.scripts, o)
	app.logger.Info().Str("script", o.Name()).Strs("keys", keys).Msg("script subscribed")
	return nil
}

// Run serves until ctx is done or a component fails.
func (app *Application) Run(ctx context.Context) error {
	if !app.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer app.running.Store(false)

	g, ctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:              app.cfg.Addr,
		Handler:           app.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.Go(func() error {
		app.logger.Info().Str("addr", app.cfg.Addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			app.logger.Warn().Err(err).Msg("graceful shutdown")
		}
		return nil
	})

	if app.watcher != nil {
		g.Go(func() error {
			return app.watcher.Run(ctx)
		})
	}

	if every := app.cfg.Registry.ReconcileInterval.Std(); every > 0 {
		g.Go(func() error {
			return observer.RunReconciler(ctx, every, app.store.Observers())
		})
	}

	return g.Wait()
}

// Close releases scripts and drains the delivery pool. It is safe to call
// more than once.
func (app *Application) Close() {
	app.closeOnce.Do(func() {
		for _, o := range app.scripts {
			_ = o.Close()
		}
		if app.pool != nil {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := app.pool.Stop(ctx); err != nil && !errors.Is(err, dispatch.ErrNotRunning) {
				app.logger.Warn().Err(err).Msg("delivery pool stop")
			}
		}
	})
}

// IsRunning returns true while Run is executing.
func (app *Application) IsRunning() bool {
	return app.running.Load()
}

// Store returns the value store.
func (app *Application) Store() *store.Store {
	return app.store
}

// Handler returns the HTTP API handler.
func (app *Application) Handler() http.Handler {
	return app.handler
}

// Revision returns the store revision counter.
func (app *Application) Revision() uint64 {
	return app.revision.Current()
}

// InitError represents an initialization error.
type InitError struct {
	Component string
	Err       error
}

func (e *InitError) Error() string {
	return "init " + e.Component + ": " + e.Err.Error()
}

func (e *InitError) Unwrap() error {
	return e.Err
}
