// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/lexicon/internal/api"
	"github.com/starford/lexicon/internal/apperr"
	"github.com/starford/lexicon/internal/index"
	"github.com/starford/lexicon/internal/mcpserver"
	"github.com/starford/lexicon/internal/project"
	"github.com/starford/lexicon/internal/sse"
	"github.com/starford/lexicon/internal/termservice"
)

func newApplication(opts []Option, defaultOutput io.Writer) (*application, *slog.Logger, error) {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, nil, fmt.Errorf("config is required")
	}
	if app.logOutput == nil {
		app.logOutput = defaultOutput
	}

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{
		Level: app.config.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return app, logger, nil
}

// openProject loads the configured project, creating an empty one when
// the directory holds none yet.
func openProject(cfg *Config, logger *slog.Logger) (*project.Controller, error) {
	ctrl := project.New(project.WithLogger(logger))
	err := ctrl.LoadProject(cfg.Project.Path)
	if errors.Is(err, apperr.ErrNotFound) {
		logger.Info("Creating project", slog.String("path", cfg.Project.Path))
		err = ctrl.SaveProjectAs(cfg.Project.Path)
	}
	if err != nil {
		return nil, fmt.Errorf("open project: %w", err)
	}
	return ctrl, nil
}

// Init creates an empty project at the configured path. An existing project
// is left untouched and reported as an error.
func Init(_ context.Context, opts ...Option) error {
	app, logger, err := newApplication(opts, os.Stdout)
	if err != nil {
		return err
	}
	ctrl := project.New(project.WithLogger(logger))
	err = ctrl.LoadProject(app.config.Project.Path)
	switch {
	case err == nil:
		return fmt.Errorf("%w: project at %s", apperr.ErrAlreadyExists, app.config.Project.Path)
	case !errors.Is(err, apperr.ErrNotFound):
		return fmt.Errorf("open project: %w", err)
	}
	return ctrl.SaveProjectAs(app.config.Project.Path)
}

// Export writes a copy of the configured project to dst.
func Export(ctx context.Context, dst string, opts ...Option) error {
	app, logger, err := newApplication(opts, os.Stdout)
	if err != nil {
		return err
	}
	ctrl := project.New(project.WithLogger(logger))
	if err := ctrl.LoadProject(app.config.Project.Path); err != nil {
		return fmt.Errorf("open project: %w", err)
	}
	svc := termservice.New(ctrl, nil, termservice.WithLogger(logger))
	info, err := svc.Export(ctx, dst)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	logger.Info("Project exported", slog.String("path", info.Path), slog.Int("terms", info.Terms))
	return nil
}

// RunMCP serves the glossary over MCP on stdin/stdout until the client
// disconnects.
func RunMCP(_ context.Context, opts ...Option) error {
	app, logger, err := newApplication(opts, os.Stderr)
	if err != nil {
		return err
	}
	cfg := app.config

	ctrl, err := openProject(cfg, logger)
	if err != nil {
		return err
	}
	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init index: %w", err)
	}
	defer db.Close()

	if err := index.Sync(db, ctrl.Store(), logger); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	svc := termservice.New(ctrl, db,
		termservice.WithLogger(logger),
		termservice.WithStagingDir(cfg.Project.StagingDir))
	return mcpserver.New(svc).ServeStdio()
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, logger, err := newApplication(opts, os.Stdout)
	if err != nil {
		return err
	}
	cfg := app.config

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("project_path", cfg.Project.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	ctrl, err := openProject(cfg, logger)
	if err != nil {
		return err
	}

	// Initialize SQLite index.
	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init index: %w", err)
	}
	defer db.Close()

	// Run initial sync.
	if err := index.Sync(db, ctrl.Store(), logger); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	svc := termservice.New(ctrl, db,
		termservice.WithLogger(logger),
		termservice.WithNotifier(broker),
		termservice.WithStagingDir(cfg.Project.StagingDir))
	apiRouter := api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gCtx := errgroup.WithContext(ctx)

	// Reindex on edits made outside the server and announce them.
	g.Go(func() error {
		err := index.Watch(gCtx, db, ctrl.Store(), logger, func(kind, name string) {
			broker.PublishTermEvent(kind, name, "")
		})
		if err != nil {
			logger.Error("watcher stopped", slog.String("error", err.Error()))
		}
		return nil
	})

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

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

		shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
		defer stop()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		cancel()

		if svc.Project(context.Background()).Unsaved {
			logger.Warn("Unsaved changes discarded on shutdown")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}
