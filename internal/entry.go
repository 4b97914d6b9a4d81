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

	"github.com/starford/quire/internal/api"
	"github.com/starford/quire/internal/inbox"
	"github.com/starford/quire/internal/kv"
	"github.com/starford/quire/internal/mcpserver"
	"github.com/starford/quire/internal/notestore"
	"github.com/starford/quire/internal/notify"
	"github.com/starford/quire/internal/prefs"
	"github.com/starford/quire/internal/session"
	"github.com/starford/quire/internal/sse"
)

// Run starts the HTTP application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := newApplication(opts)
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	cfg := app.config

	logger := app.logger()
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("storage_driver", cfg.Storage.Driver),
		slog.String("storage_path", cfg.Storage.Path),
		slog.String("import_inbox", cfg.Import.Inbox),
		slog.String("log_level", cfg.App.LogLevel.String()))

	backend, closeBackend, err := openBackend(cfg.Storage)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	defer closeBackend()

	// SSE broker; it also carries notifications to the browser.
	broker := sse.NewBroker(100 * time.Millisecond)
	defer broker.Close()
	notifier := notify.Multi(notify.Log(logger), broker)

	store := notestore.New(backend,
		notestore.WithNotifier(notifier),
		notestore.WithLogger(logger),
		notestore.WithOnChange(func() { broker.Changed(sse.KindNotes) }),
	)
	if err := store.LoadAll(); err != nil {
		// Already reported; a corrupt blob was cleared.
		logger.Warn("load notes", slog.String("error", err.Error()))
	}
	logger.Info("Notes loaded", slog.Int("count", store.Len()))

	p := prefs.New(backend, cfg.Sidebar.MinWidth, cfg.Sidebar.MaxWidth, cfg.Sidebar.DefaultWidth)

	ctrl := session.New(store,
		session.WithAutosaveDelay(cfg.Session.AutosaveDelay),
		session.WithSearchDelay(cfg.Session.SearchDelay),
		session.WithNotifier(notifier),
		session.WithLogger(logger),
		session.WithOnChange(func() { broker.Changed(sse.KindSession) }),
	)
	defer func() {
		if err := ctrl.Close(); err != nil {
			logger.Warn("final commit failed", slog.String("error", err.Error()))
		}
		// Writes that failed earlier leave memory ahead of storage.
		if err := store.Persist(); err != nil {
			logger.Error("final save failed", slog.String("error", err.Error()))
		}
	}()

	h := api.NewHandler(ctrl, store, p, func() { broker.Changed(sse.KindPrefs) })
	apiRouter := api.NewRouter(h, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

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
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	if cfg.Import.Inbox != "" {
		g.Go(func() error {
			if err := inbox.Watch(gCtx, cfg.Import.Inbox, ctrl, logger, inbox.DefaultSettle); err != nil {
				logger.Error("inbox watcher failed", slog.String("error", err.Error()))
			}
			return nil
		})
	}

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

		logger.Info("Shutting down server...")

		// Streaming clients never finish on their own.
		broker.Close()

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

// errShutdown cancels the group so the inbox watcher stops with the server.
var errShutdown = errors.New("shutdown")

// RunMCP serves the MCP tools on stdin/stdout over the configured storage.
func RunMCP(_ context.Context, opts ...Option) error {
	app := newApplication(opts)
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	logger := app.logger()
	slog.SetDefault(logger)

	backend, closeBackend, err := openBackend(app.config.Storage)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	defer closeBackend()

	store := notestore.New(backend,
		notestore.WithNotifier(notify.Log(logger)),
		notestore.WithLogger(logger),
	)
	if err := store.LoadAll(); err != nil {
		logger.Warn("load notes", slog.String("error", err.Error()))
	}

	logger.Info("MCP server starting", slog.Int("notes", store.Len()))
	return mcpserver.New(store, logger).ServeStdio()
}

// openBackend opens the configured key-value store. The returned func
// releases it.
func openBackend(cfg StorageConfig) (kv.Store, func(), error) {
	switch cfg.Driver {
	case StorageFS:
		fs, err := kv.NewFS(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return fs, func() {}, nil
	case StorageSQLite:
		db, err := kv.OpenSQLite(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return db, func() { closeQuietly(db) }, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

func closeQuietly(c io.Closer) {
	if err := c.Close(); err != nil {
		slog.Warn("close storage", slog.String("error", err.Error()))
	}
}
