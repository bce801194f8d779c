package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"teampulse/internal/config"
	apierrors "teampulse/internal/errors"
	"teampulse/internal/files"
	"teampulse/internal/infrastructure"
	customMiddleware "teampulse/internal/middleware"
	"teampulse/internal/services"
	handlers "teampulse/internal/transport/http"
	"teampulse/internal/validation"
	"teampulse/pkg/contracts"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
)

// Application owns every long-lived piece of the web server: config, the
// router and listener, the services behind the handlers and the telemetry
// providers. Wiring happens once in NewApplication; Run drives the rest.
type Application struct {
	Config           *config.Config
	Router           *chi.Mux
	Server           *http.Server
	Paths            *config.Paths
	DashboardService *services.DashboardService
	HealthService    *services.HealthService
	Watcher          *files.Watcher
	Logger           *slog.Logger
	OTelProviders    *infrastructure.OTelProviders
	BusinessMetrics  *infrastructure.BusinessMetrics
	RuntimeSampler   *infrastructure.RuntimeSampler
}

// NewApplication wires the full server. Construction order matters: the
// logger needs the config, telemetry needs the logger, and the services
// need all three.
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Anchor the log file next to the executable before the logger opens it.
	cfg.Logging.FilePath = cfg.LogFilePath()
	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}

	logger.Info("TeamPulse starting",
		slog.String("version", contracts.Version),
		slog.String("commit", contracts.GitCommit))

	// Load already created the directory layout, this only re-reads it.
	paths, err := config.GetPaths()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve paths: %w", err)
	}
	paths.LogResolved(logger)

	// Missing Sheets credentials are not fatal: the source simply stays
	// unavailable until they are provided.
	if cfg.Source.Type == config.SourceTypeGSheet && cfg.Source.APIKey == "" &&
		cfg.Source.CredentialsFile == "" && !config.FileExists(paths.CredentialsFile) {
		logger.Warn("Google Sheets credentials not found",
			slog.String("path", paths.CredentialsFile),
			slog.String("action", "Provide credentials.json or an API key before reloading"))
	}

	otelProviders, err := infrastructure.InitializeOTel(infrastructure.OTelConfigFrom(cfg.Observability), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	app := &Application{
		Config:        cfg,
		Paths:         paths,
		Logger:        logger,
		OTelProviders: otelProviders,
	}
	if err := app.initializeServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.buildRouter()
	app.buildServer()
	return app, nil
}

// initializeServices builds the service layer over the already-initialized
// config, paths and telemetry.
func (a *Application) initializeServices() error {
	// The middleware chain and the services share one metrics instance.
	// Every recorder is nil-safe, so a metrics failure costs telemetry,
	// not the server.
	metrics, err := infrastructure.CreateBusinessMetrics(a.OTelProviders.Meter)
	if err != nil {
		a.Logger.Error("Failed to create business metrics", slog.String("error", err.Error()))
	}
	a.BusinessMetrics = metrics

	dashboardService, err := services.NewDashboardServiceWithMetrics(a.Config, a.Logger, a.BusinessMetrics)
	if err != nil {
		return fmt.Errorf("failed to initialize dashboard service: %w", err)
	}
	a.DashboardService = dashboardService

	a.HealthService = services.NewHealthService(a.Paths, a.DashboardService, a.Logger)

	if a.Config.Watch.Enabled {
		watcher, err := files.NewWatcher(a.Paths.UploadsDir, a.Config.Watch.SettleDelay)
		if err != nil {
			return fmt.Errorf("failed to initialize workbook watcher: %w", err)
		}
		a.Watcher = watcher
	}

	// Periodic runtime gauges flow through the same meter as the business
	// metrics; sampler failures only cost the gauges, not startup
	sampler, err := infrastructure.NewRuntimeSampler(a.OTelProviders.Meter, config.HealthCheckInterval)
	if err != nil {
		a.Logger.Error("Failed to create runtime sampler", slog.String("error", err.Error()))
	} else {
		a.RuntimeSampler = sampler
	}

	return nil
}

// buildRouter assembles the middleware chain and mounts every route.
func (a *Application) buildRouter() {
	r := chi.NewRouter()

	// Request identity first so everything downstream logs with it
	r.Use(customMiddleware.RequestID)
	r.Use(customMiddleware.RealIP)

	// Route group with the full middleware chain:
	// RequestID → RealIP → OTel → Metrics → Logger → Recoverer → Headers → CORS → RateLimit
	r.Group(func(r chi.Router) {
		// Spans and request metrics share the one BusinessMetrics instance
		r.Use(customMiddleware.NewOTelMiddleware(a.OTelProviders, a.BusinessMetrics).Handler)
		r.Use(customMiddleware.BusinessMetricsMiddleware(a.BusinessMetrics))
		r.Use(customMiddleware.StructuredLogger(a.Logger))
		r.Use(customMiddleware.Recoverer(a.Logger))
		// NOTE: Timeout middleware lives on the route groups below; status and
		// dashboard endpoints get different budgets
		r.Use(customMiddleware.SecurityHeaders)
		r.Use(cors.Handler(a.corsPolicy()))

		if a.Config.Security.RateLimit.Enabled {
			r.Use(customMiddleware.NewRateLimiter(
				a.Config.Security.RateLimit.RPS,
				a.Config.Security.RateLimit.Burst,
				a.Logger,
			).Handler)
		}

		a.mountAPI(r)
		a.mountPages(r)
	})

	// Prometheus scrapes bypass the middleware chain
	if a.OTelProviders.PrometheusHTTP != nil {
		r.Handle("/metrics", a.OTelProviders.PrometheusHTTP)
	}

	a.Router = r
}

// mountAPI wires the JSON surface under /api.
func (a *Application) mountAPI(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))

		// Unknown paths and methods under /api answer with problem details
		errorHandler := apierrors.NewErrorHandler(a.Logger, false)
		r.NotFound(errorHandler.NotFound)
		r.MethodNotAllowed(errorHandler.MethodNotAllowed)

		// Status endpoints with the standard timeout
		r.Group(func(r chi.Router) {
			r.Use(customMiddleware.Timeout(a.Config.Server.ReadTimeout, a.Logger))

			healthHandler := handlers.NewHealthHandler(a.HealthService, a.Logger)
			r.Get("/health", healthHandler.HealthCheck)
			r.Get("/health/ready", healthHandler.ReadinessCheck)
			r.Get("/health/live", healthHandler.LivenessCheck)
			r.Get("/health/stats", healthHandler.Stats)
			r.Get("/health/detailed", healthHandler.Detailed)
			r.Get("/version", healthHandler.Version)

			// Browser frontend forwards its console errors here; entries are
			// size-capped and JSON-checked before the handler decodes them
			logValidation := customMiddleware.NewValidationMiddleware(a.Logger, errorHandler)
			r.With(
				customMiddleware.ContentTypeValidator("application/json"),
				logValidation.ValidateRequest,
			).Post("/logs", handlers.NewClientLogHandler(a.Logger, logValidation).Handle)
		})

		// Dashboard endpoints with the longer request timeout; upload and
		// reload parse a whole workbook before responding
		r.Group(func(r chi.Router) {
			r.Use(customMiddleware.Timeout(a.Config.Server.RequestTimeout, a.Logger))

			validator := validation.NewFileValidator(a.Logger)
			dashboardHandler := handlers.NewDashboardHandler(a.DashboardService, validator, a.Logger)
			r.Mount("/dashboard", dashboardHandler.Routes())
		})
	})
}

// mountPages wires the browser-facing page and static assets.
func (a *Application) mountPages(r chi.Router) {
	webDir := a.Config.GetWebDir()

	r.Route("/static", func(r chi.Router) {
		r.Use(customMiddleware.Compress(5))
		assets := http.FileServer(http.Dir(filepath.Join(webDir, "static")))
		r.Handle("/*", http.StripPrefix("/static", assets))
	})

	r.Get("/", handlers.ServeDashboardPage(webDir))
	r.Get("/status", handlers.ServeStatusPage())
}

// corsPolicy builds the CORS allowlist. Development adds the local frontend
// dev server; production serves same-origin plus whatever the config
// explicitly allows.
func (a *Application) corsPolicy() cors.Options {
	origins := []string{"http://localhost:8080", "http://127.0.0.1:8080"}

	mode := "production"
	if a.inDevelopment() {
		mode = "development"
		origins = append(origins, "http://localhost:3000", "http://127.0.0.1:3000")
	} else if a.Config.Security.EnableCORS {
		origins = append(origins, a.Config.Security.AllowedOrigins...)
	}

	a.Logger.Info("CORS configured",
		slog.String("mode", mode),
		slog.Any("allowed_origins", origins))

	return cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID", "X-Requested-With"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}
}

// inDevelopment reports development mode. A set GO_ENV wins; the logging
// config is the fallback.
func (a *Application) inDevelopment() bool {
	if env := os.Getenv("GO_ENV"); env != "" {
		return env == "development"
	}
	return a.Config.Logging.Development
}

// buildServer sizes the HTTP listener from the config. Handler budgets are
// enforced per route group; these are the transport-level bounds.
func (a *Application) buildServer() {
	a.Server = &http.Server{
		Addr:           fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:        a.Router,
		ReadTimeout:    a.Config.Server.ReadTimeout,
		WriteTimeout:   a.Config.Server.WriteTimeout,
		IdleTimeout:    a.Config.Server.IdleTimeout,
		MaxHeaderBytes: a.Config.Server.MaxHeaderBytes,
	}
}

// Start brings the listener and the background workers up and warms the
// snapshot. cancel lets a fatal listener error tear the application down
// through the run context.
func (a *Application) Start(ctx context.Context, cancel context.CancelFunc) error {
	a.Logger.InfoContext(ctx, "Server starting",
		slog.Int("port", a.Config.Server.Port),
		slog.String("version", contracts.Version),
		slog.String("log_level", a.Config.Logging.Level))

	if a.Watcher != nil {
		go a.Watcher.Start(ctx)
		go a.consumeWatchEvents(ctx)
	}
	if a.RuntimeSampler != nil {
		go a.RuntimeSampler.Start(ctx)
	}

	go func() {
		err := a.Server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.ErrorContext(ctx, "Server failed", slog.String("error", err.Error()))
			cancel()
		}
	}()

	if err := a.checkDirectoriesWritable(ctx); err != nil {
		a.Logger.WarnContext(ctx, "Data directories not fully writable",
			slog.String("error", err.Error()))
	}

	a.performInitialLoad(ctx)

	a.Logger.InfoContext(ctx, "Server ready",
		slog.String("address", fmt.Sprintf("http://localhost:%d", a.Config.Server.Port)))
	return nil
}

// performInitialLoad attempts the startup snapshot load. A missing source is
// a cold start, not a startup failure; dashboard endpoints answer with a
// no-dataset problem until a load succeeds.
func (a *Application) performInitialLoad(ctx context.Context) {
	// Background loads get their own trace ID for log correlation, and a
	// deadline so a wedged source cannot stall "Server ready"
	ctx = infrastructure.ContextWithTraceID(ctx)
	ctx, cancel := context.WithTimeout(ctx, config.DefaultLoadTimeout)
	defer cancel()

	snap, err := a.DashboardService.LoadFromSource(ctx)
	if err != nil {
		if errors.Is(err, apierrors.ErrSourceUnavailable) {
			a.Logger.InfoContext(ctx, "No source workbook yet, starting cold",
				slog.String("source_type", a.Config.Source.Type))
			return
		}
		a.Logger.WarnContext(ctx, "Initial snapshot load failed",
			slog.String("source_type", a.Config.Source.Type),
			slog.String("error", err.Error()))
		return
	}

	a.Logger.InfoContext(ctx, "Initial snapshot loaded",
		slog.String("snapshot_id", snap.Info.ID),
		slog.String("source", snap.Info.SourceName),
		slog.Int("records", snap.Info.RecordCount))
}

// consumeWatchEvents reloads the snapshot whenever the watcher reports a
// settled workbook. Removals keep the installed snapshot; the dashboard never
// regresses to empty because a file went away.
func (a *Application) consumeWatchEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-a.Watcher.Events():
			if !ok {
				return
			}
			if event.Type != files.WatchSettled {
				a.Logger.InfoContext(ctx, "Watched workbook removed",
					slog.String("path", event.Path))
				continue
			}

			// One trace ID per reload so its log lines correlate
			reloadCtx := infrastructure.ContextWithTraceID(ctx)

			a.Logger.InfoContext(reloadCtx, "Watched workbook settled, reloading snapshot",
				slog.String("path", event.Path),
				slog.Int64("size_bytes", event.Size))

			snap, err := a.reloadFromFile(reloadCtx, event.Path)
			if err != nil {
				a.Logger.ErrorContext(reloadCtx, "Watcher reload failed",
					slog.String("path", event.Path),
					slog.String("error", err.Error()))
				continue
			}

			infrastructure.RecordWatcherReload(reloadCtx, a.BusinessMetrics, "settled")
			a.Logger.InfoContext(reloadCtx, "Watcher reload complete",
				slog.String("snapshot_id", snap.Info.ID),
				slog.Int("records", snap.Info.RecordCount))
		case err, ok := <-a.Watcher.Errors():
			if !ok {
				return
			}
			a.Logger.ErrorContext(ctx, "Workbook watcher error",
				slog.String("error", err.Error()))
		}
	}
}

// reloadFromFile runs one bounded snapshot load so a wedged parse cannot
// stall the watch loop and starve later events.
func (a *Application) reloadFromFile(ctx context.Context, path string) (*services.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, config.DefaultLoadTimeout)
	defer cancel()
	return a.DashboardService.LoadFromFile(ctx, path)
}

// Stop drains the listener and stops the background workers. Component
// failures are collected instead of aborting the sequence; a watcher that
// fails to close should not keep telemetry from flushing.
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "Stopping server")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("failed to drain http server: %w", err))
	}
	if a.Watcher != nil {
		if err := a.Watcher.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop workbook watcher: %w", err))
		}
	}
	if a.RuntimeSampler != nil {
		a.RuntimeSampler.Stop()
	}
	if a.OTelProviders != nil {
		if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shut down telemetry: %w", err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		a.Logger.ErrorContext(ctx, "Shutdown finished with errors",
			slog.String("error", err.Error()))
		return err
	}

	a.Logger.InfoContext(ctx, "Shutdown complete")
	return nil
}

// Run starts the application and blocks until an interrupt or a fatal
// server error, then shuts down cleanly.
func (a *Application) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Start(ctx, stop); err != nil {
		return err
	}

	<-ctx.Done()
	a.Logger.Info("Shutdown requested")

	// The run context is already cancelled here, so shutdown gets its own
	return a.Stop(context.Background())
}

// checkDirectoriesWritable probes every data directory with a throwaway
// write. Probed in a fixed order so repeated startups report the same
// first failure.
func (a *Application) checkDirectoriesWritable(ctx context.Context) error {
	dirs := []struct {
		name string
		path string
	}{
		{"data", a.Paths.DataDir},
		{"uploads", a.Paths.UploadsDir},
		{"reports", a.Paths.ReportsDir},
		{"logs", a.Paths.LogsDir},
	}

	var problems []error
	for _, d := range dirs {
		probe := filepath.Join(d.path, ".write_test")
		if err := os.WriteFile(probe, []byte("ok"), 0644); err != nil {
			problems = append(problems, fmt.Errorf("%s directory not writable: %s", d.name, d.path))
			continue
		}
		os.Remove(probe)
	}
	if err := errors.Join(problems...); err != nil {
		return err
	}

	a.Logger.DebugContext(ctx, "All data directories writable")
	return nil
}
