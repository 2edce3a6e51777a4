// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"encoding/json"
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
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/starford/craftwiki/internal/api"
	"github.com/starford/craftwiki/internal/cache"
	"github.com/starford/craftwiki/internal/mcpserver"
	"github.com/starford/craftwiki/internal/metrics"
	"github.com/starford/craftwiki/internal/sse"
	"github.com/starford/craftwiki/internal/storage"
	"github.com/starford/craftwiki/internal/store"
	"github.com/starford/craftwiki/internal/summary"
	"github.com/starford/craftwiki/internal/watch"
)

// outlineThrottle is the minimum gap between outline.synced events.
const outlineThrottle = 2 * time.Second

// Run starts the HTTP server, the SUMMARY.md watcher and the SSE feed.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	logger, closeLog := newLogger(cfg.App, os.Stdout)
	defer closeLog()
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("wiki_dir", cfg.Wiki.Dir),
		slog.String("store_driver", cfg.Store.Driver),
		slog.Bool("cache_enabled", cfg.Cache.RedisURL != ""),
		slog.String("log_level", cfg.App.LogLevel.String()))

	broker := sse.NewBroker(outlineThrottle)
	defer broker.Close()

	deps, err := open(ctx, cfg, logger, broker)
	if err != nil {
		return err
	}
	defer deps.close()
	svc := deps.svc
	deps.metrics.WatchSSEClients(broker.ClientCount)

	// Bring the mirror file and the store in line before serving.
	if deps.files != nil {
		res, err := svc.InitFile(ctx)
		switch {
		case err != nil:
			logger.Warn("initial outline sync failed", slog.String("error", err.Error()))
		case res != nil && !res.Success:
			logger.Warn("initial outline sync incomplete",
				slog.String("outcome", res.Outcome),
				slog.String("message", res.Message))
		}
	}

	apiRouter := api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		writeStatus(w, http.StatusOK, "ok")
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		pingCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := deps.db.Ping(pingCtx); err != nil {
			logger.Warn("readiness check failed", slog.String("error", err.Error()))
			writeStatus(w, http.StatusServiceUnavailable, "unavailable")
			return
		}
		writeStatus(w, http.StatusOK, "ok")
	})
	r.Handle("/metrics", deps.metrics.Handler())

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Apply edits made to the mirror file on disk.
	if deps.files != nil && cfg.Wiki.Watch {
		g.Go(func() error {
			return watch.File(gCtx, deps.files.Root(), svc.SummaryFile(), watch.DefaultDebounce, logger,
				func(ctx context.Context) {
					res, err := svc.ApplyOutlineFile(ctx)
					if err != nil {
						logger.Error("apply outline file failed", slog.String("error", err.Error()))
						return
					}
					if res != nil && !res.Success {
						logger.Warn("outline file not applied",
							slog.String("outcome", res.Outcome),
							slog.String("message", res.Message),
							slog.Int("line", res.Line))
					}
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
		defer signal.Stop(quit)

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

		// Stop the watcher too when shutdown came from a signal.
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

var errShutdown = errors.New("shutdown")

// Pull prints the current SUMMARY.md text generated from the store.
func Pull(ctx context.Context, opts ...Option) error {
	return oneShot(ctx, opts, func(ctx context.Context, app *application, svc *summary.Service) error {
		text, err := svc.PullCurrentOutlineText(ctx)
		if err != nil {
			return fmt.Errorf("pull outline: %w", err)
		}
		_, err = io.WriteString(app.out, text)
		return err
	})
}

// Apply applies the outline in file ("-" reads stdin) and prints the result.
// A result other than success is returned as an error.
func Apply(ctx context.Context, file string, opts ...Option) error {
	var (
		data []byte
		err  error
	)
	if file == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(file)
	}
	if err != nil {
		return fmt.Errorf("read outline: %w", err)
	}

	return oneShot(ctx, opts, func(ctx context.Context, app *application, svc *summary.Service) error {
		res := svc.ApplyOutlineText(ctx, string(data))
		if err := printJSON(app.out, res); err != nil {
			return err
		}
		if !res.Success {
			return fmt.Errorf("apply outline: %s: %s", res.Outcome, res.Message)
		}
		return nil
	})
}

// Export writes SUMMARY.md and the visible page bodies to the wiki directory.
func Export(ctx context.Context, opts ...Option) error {
	return oneShot(ctx, opts, func(ctx context.Context, app *application, svc *summary.Service) error {
		res, err := svc.Export(ctx)
		if err != nil {
			return fmt.Errorf("export: %w", err)
		}
		if err := printJSON(app.out, res); err != nil {
			return err
		}
		if len(res.Failed) > 0 {
			return fmt.Errorf("export: %d files failed", len(res.Failed))
		}
		return nil
	})
}

// ServeMCP runs the MCP server on stdin/stdout. Logs go to stderr.
func ServeMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	logger, closeLog := newLogger(app.config.App, os.Stderr)
	defer closeLog()
	slog.SetDefault(logger)

	deps, err := open(ctx, app.config, logger, nil)
	if err != nil {
		return err
	}
	defer deps.close()

	logger.Info("MCP server starting on stdio")
	return mcpserver.New(deps.svc, app.version).ServeStdio()
}

func newApplication(opts []Option) (*application, error) {
	app := &application{out: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// oneShot opens the dependencies for a CLI command, runs fn and tears them
// down. Logs go to stderr so that stdout carries only the command output.
func oneShot(ctx context.Context, opts []Option, fn func(context.Context, *application, *summary.Service) error) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	logger, closeLog := newLogger(app.config.App, os.Stderr)
	defer closeLog()
	slog.SetDefault(logger)

	deps, err := open(ctx, app.config, logger, nil)
	if err != nil {
		return err
	}
	defer deps.close()
	return fn(ctx, app, deps.svc)
}

// dependencies are the long-lived resources behind a summary.Service.
type dependencies struct {
	db      *store.DB
	cache   cache.Cache
	files   *storage.FS
	metrics *metrics.Metrics
	svc     *summary.Service
	log     *slog.Logger
}

// open connects the store and cache and builds the service. pub may be nil.
func open(ctx context.Context, cfg *Config, logger *slog.Logger, pub summary.Publisher) (*dependencies, error) {
	db, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DSN())
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Debug("store opened", slog.String("dialect", db.Dialect()))
	d := &dependencies{db: db, cache: cache.Nop{}, metrics: metrics.New(), log: logger}

	if cfg.Cache.RedisURL != "" {
		rc, err := cache.NewRedis(cfg.Cache.RedisURL, cfg.Cache.TTL)
		if err != nil {
			// The outline is always derivable from the store.
			logger.Warn("outline cache disabled", slog.String("error", err.Error()))
		} else {
			d.cache = rc
		}
	}

	svcOpts := []summary.Option{
		summary.WithCache(d.cache),
		summary.WithMetrics(d.metrics),
		summary.WithLogger(logger),
		summary.WithConcurrency(cfg.Store.SyncConcurrency),
	}
	if cfg.Wiki.Dir != "" {
		files, err := storage.NewFS(cfg.Wiki.Dir)
		if err != nil {
			d.close()
			return nil, fmt.Errorf("init wiki dir: %w", err)
		}
		d.files = files
		svcOpts = append(svcOpts, summary.WithFiles(files, cfg.Wiki.SummaryFile))
	}
	if pub != nil {
		svcOpts = append(svcOpts, summary.WithPublisher(pub))
	}

	d.svc = summary.NewService(db, svcOpts...)
	return d, nil
}

func (d *dependencies) close() {
	if err := d.cache.Close(); err != nil {
		d.log.Warn("close cache", slog.String("error", err.Error()))
	}
	if err := d.db.Close(); err != nil {
		d.log.Warn("close store", slog.String("error", err.Error()))
	}
}

// newLogger builds the JSON logger writing to console and, when configured,
// to a rotated log file. The returned func closes the file.
func newLogger(cfg ApplicationConfig, console io.Writer) (*slog.Logger, func()) {
	out := console
	closeFn := func() {}
	if cfg.LogFile.Path != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.LogFile.Path,
			MaxSize:    cfg.LogFile.MaxSizeMB,
			MaxBackups: cfg.LogFile.MaxBackups,
			MaxAge:     cfg.LogFile.MaxAgeDays,
			Compress:   true,
		}
		out = io.MultiWriter(console, lj)
		closeFn = func() { _ = lj.Close() }
	}
	return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	})), closeFn
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
