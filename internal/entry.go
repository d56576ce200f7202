// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/editor-server/internal/api"
	"github.com/starford/editor-server/internal/connector"
	"github.com/starford/editor-server/internal/connector/grow"
	"github.com/starford/editor-server/internal/events"
	"github.com/starford/editor-server/internal/history"
	"github.com/starford/editor-server/internal/mcpserver"
	"github.com/starford/editor-server/internal/report"
	"github.com/starford/editor-server/internal/storage"
)

// runtime holds the components shared by the HTTP and MCP front ends.
type runtime struct {
	cfg      *Config
	logger   *slog.Logger
	store    storage.Provider
	history  history.Recorder
	conn     connector.Connector
	connName string
	broker   *events.Broker
	watcher  *events.Watcher
}

func newApplication(opts []Option) (*application, error) {
	app := &application{version: "dev", logOutput: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if app.logger == nil {
		// Initialize structured JSON logger.
		app.logger = slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{
			Level: app.config.App.LogLevel,
		}))
	}
	return app, nil
}

// newStore builds the storage provider selected by the configuration.
func newStore(cfg *Config) (storage.Provider, error) {
	switch cfg.Storage.Driver {
	case StorageDriverS3:
		return storage.NewS3(cfg.Storage.S3.Provider())
	case StorageDriverLocal, "":
		return storage.NewFS(cfg.Project.Root)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

func openHistory(cfg *Config) (history.Recorder, error) {
	if !cfg.History.Enabled {
		return history.Nop{}, nil
	}
	return history.Open(cfg.History.Path)
}

// setup wires storage, history and the connector. The returned runtime must
// be closed.
func (app *application) setup(ctx context.Context) (*runtime, error) {
	cfg := app.config
	logger := app.logger

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("storage_driver", cfg.Storage.Driver),
		slog.String("project_root", cfg.Project.Root),
		slog.String("mode", cfg.App.Mode),
		slog.Bool("history", cfg.History.Enabled),
		slog.String("log_level", cfg.App.LogLevel.String()))

	store, err := newStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	rec, err := openHistory(cfg)
	if err != nil {
		return nil, fmt.Errorf("init history: %w", err)
	}

	filter, err := cfg.Grow.Filter.Build()
	if err != nil {
		_ = rec.Close()
		return nil, fmt.Errorf("grow filter: %w", err)
	}

	conn, name, err := connector.Select(ctx, connector.Env{
		Store:   store,
		History: rec,
		Logger:  logger,
	}, grow.NewFactory(
		grow.WithPartialsConcurrency(cfg.Partials.Concurrency),
		grow.WithImportDepth(cfg.Partials.ImportDepth),
		grow.WithHistoryLimit(cfg.History.Limit),
		grow.WithFilter(filter),
	))
	if err != nil {
		_ = rec.Close()
		return nil, fmt.Errorf("select connector: %w", err)
	}
	logger.Info("Connector selected", slog.String("connector", name))

	rt := &runtime{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		history:  rec,
		conn:     conn,
		connName: name,
	}

	// File events need a local checkout to watch.
	if fsStore, ok := store.(*storage.FS); ok && cfg.Events.Enabled {
		accept := func(string) bool { return true }
		if g, ok := conn.(*grow.Connector); ok {
			accept = g.Filter().Matches
		}
		rt.broker = events.NewBroker(cfg.Events.Throttle, events.WithURLResolver(grow.ServingURL))
		rt.watcher = events.NewWatcher(fsStore.Root(), accept, logger)
	}
	return rt, nil
}

// Close releases the history database and the event broker.
func (rt *runtime) Close() error {
	if rt.broker != nil {
		rt.broker.Close()
	}
	return rt.history.Close()
}

// handler builds the HTTP handler: health checks plus the editor API under /api.
func (rt *runtime) handler() http.Handler {
	deps := api.Deps{
		Connector:  rt.conn,
		Workspaces: rt.cfg.Workspace.Service(),
		Devices:    rt.cfg.Devices,
		Reporter:   report.NewReporter(rt.cfg.App.Mode, rt.logger),
		Logger:     rt.logger,
	}
	if rt.broker != nil {
		deps.Events = rt.broker
	}
	apiRouter := api.NewRouter(deps)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		ok, err := rt.store.ExistsFile(req.Context(), grow.PodspecPath)
		if err != nil || !ok {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, `{"status":"ok","connector":%q}`, rt.connName)
	})

	r.Mount("/api", apiRouter)
	return r
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	logger := app.logger
	slog.SetDefault(logger)

	rt, err := app.setup(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	httpServer := &http.Server{
		Addr:              app.config.App.HTTP.Address(),
		Handler:           rt.handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	if rt.watcher != nil {
		g.Go(func() error {
			if err := rt.watcher.Run(gCtx, rt.broker.PublishFileEvent); err != nil {
				// Editing keeps working without notifications.
				logger.Warn("file watcher stopped", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		// Streaming clients hold their requests open until the broker closes.
		if rt.broker != nil {
			rt.broker.Close()
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group once the server has been asked to stop, so
// the watcher exits too.
var errShutdown = errors.New("shutdown")

// RunMCP serves the MCP tools over stdio until stdin closes.
func RunMCP(ctx context.Context, opts ...Option) error {
	opts = append([]Option{WithLogOutput(os.Stderr)}, opts...)
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	slog.SetDefault(app.logger)

	rt, err := app.setup(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	app.logger.Info("Starting MCP server on stdio", slog.String("connector", rt.connName))
	return mcpserver.New(rt.conn, app.version).ServeStdio()
}
