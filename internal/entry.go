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
	"sync/atomic"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/sidekick/internal/api"
	"github.com/starford/sidekick/internal/broker"
	"github.com/starford/sidekick/internal/engines"
	"github.com/starford/sidekick/internal/logseq"
	pkgconfig "github.com/starford/sidekick/pkg/config"
)

// logBadge is the default badge painter: it reports badge changes to the log.
// Host integrations replace it via WithBadgePainter.
type logBadge struct {
	logger *slog.Logger
}

func (b logBadge) SetBadge(tabID int, text string) {
	b.logger.Info("badge updated", slog.Int("tab", tabID), slog.String("text", text))
}

// logController is the default host controller; host integrations replace it
// via WithController.
type logController struct {
	logger *slog.Logger
}

func (c logController) OpenOptions() {
	c.logger.Info("control: open options requested")
}

func (c logController) OpenPage(url string) {
	c.logger.Info("control: open page requested", slog.String("url", url))
}

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("logseq_host", cfg.Logseq.HostName),
		slog.Int("logseq_port", cfg.Logseq.Port),
		slog.String("graph", cfg.Logseq.GraphName),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Live configuration holder. The watcher swaps in reloaded configs; the
	// note-store client and broker read through it on every use.
	var holder atomic.Pointer[Config]
	holder.Store(cfg)

	// Note-store client and service.
	client := logseq.NewClient(func() logseq.Endpoint {
		c := holder.Load()
		return logseq.Endpoint{
			Host:      c.Logseq.HostName,
			Port:      c.Logseq.Port,
			Graph:     c.Logseq.GraphName,
			AuthToken: c.Logseq.AuthToken,
		}
	}, logger)
	svc := logseq.NewService(client, logger)

	badge := app.badge
	if badge == nil {
		badge = logBadge{logger: logger}
	}
	control := app.control
	if control == nil {
		control = logController{logger: logger}
	}

	// Session broker.
	brk := broker.New(broker.Options{
		Service: svc,
		Badge:   badge,
		Control: control,
		ClipConfig: func() broker.ClipConfig {
			c := holder.Load()
			return broker.ClipConfig{
				Location:   c.Clip.Location,
				CustomPage: c.Clip.CustomPage,
				Template:   c.Clip.Template,
			}
		},
		Logger: logger,
	})
	defer brk.Close()

	// Provider detection registry.
	registry := engines.NewRegistry()

	// Build API router.
	apiRouter := api.NewRouter(brk, registry, cfg.Auth.AuthEnabled(), cfg.Auth.Token)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated). Liveness is the bridge
	// process itself; readiness probes the remote note-store.
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		healthy, err := svc.CheckHealth(req.Context())
		if err != nil || !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"degraded"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Watch the configuration file and forward changes to the broker.
	if app.configPath != "" {
		g.Go(func() error {
			return pkgconfig.Watch(gCtx, app.configPath, cfg, NewDefaultConfig, logger,
				func(next *Config, changes map[string]pkgconfig.Change) {
					if err := next.Validate(); err != nil {
						logger.Warn("reloaded config is invalid, keeping previous",
							slog.String("error", err.Error()))
						return
					}
					holder.Store(next)
					brk.ConfigChanged(changes)
				})
		})
	}

	// Start HTTP server.
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

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
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
