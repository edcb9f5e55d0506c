package app

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
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	vquant "github.com/edges-ai/vquant"
	"github.com/edges-ai/vquant/internal/config"
	apierrors "github.com/edges-ai/vquant/internal/errors"
	"github.com/edges-ai/vquant/internal/infrastructure"
	custommw "github.com/edges-ai/vquant/internal/middleware"
	"github.com/edges-ai/vquant/internal/operations"
	"github.com/edges-ai/vquant/internal/report"
	"github.com/edges-ai/vquant/internal/services"
	transport "github.com/edges-ai/vquant/internal/transport/http"
	ws "github.com/edges-ai/vquant/internal/websocket"
	"github.com/edges-ai/vquant/storage"
)

// ServiceContainer holds the application services.
type ServiceContainer struct {
	Data   *services.DataService
	Study  *services.StudyService
	Health *services.HealthService
}

// Application owns every long-lived component of the vquant service.
type Application struct {
	Config   *config.Config
	Paths    *config.Paths
	Logger   *slog.Logger
	OTel     *infrastructure.OTelProviders
	Client   *vquant.Client
	Hub      *ws.Hub
	Manager  *operations.Manager
	Services *ServiceContainer
	Router   chi.Router

	otelMiddleware *custommw.OTelMiddleware
	systemMetrics  *infrastructure.SystemMetricsCollector
	metricsCancel  context.CancelFunc
	server         *http.Server
	buildTime      string
}

// New builds a fully wired application from the environment and optional
// config file.
func New(buildTime string) (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return NewWithConfig(cfg, buildTime)
}

// NewWithConfig builds the application from an already loaded config.
func NewWithConfig(cfg *config.Config, buildTime string) (*Application, error) {
	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}

	paths, err := cfg.ResolvePaths()
	if err != nil {
		return nil, fmt.Errorf("resolve paths: %w", err)
	}
	if err := paths.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	providers, err := infrastructure.InitializeOTel(infrastructure.DefaultOTelConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("initialize otel: %w", err)
	}

	a := &Application{
		Config:    cfg,
		Paths:     paths,
		Logger:    logger,
		OTel:      providers,
		buildTime: buildTime,
	}

	if err := a.initializeServices(); err != nil {
		return nil, err
	}
	if err := a.setupRouter(); err != nil {
		return nil, err
	}
	a.createServer()

	logger.Info("application initialized",
		slog.String("market", cfg.Data.Market),
		slog.String("timeframe", cfg.Data.Timeframe),
		slog.String("base_url", cfg.Data.BaseURL),
		slog.Int("port", cfg.Server.Port))
	return a, nil
}

// initializeServices builds the research client, the operations pipeline
// and the service layer on top of them.
func (a *Application) initializeServices() error {
	client, err := a.openClient()
	if err != nil {
		return fmt.Errorf("open research client: %w", err)
	}
	a.Client = client

	a.Hub = ws.NewHub(a.Logger)
	a.Hub.Start()

	// The HTTP middleware owns the business metrics; the operation tracer
	// and the pipeline steps record into the same instruments.
	otelMiddleware, err := custommw.NewOTelMiddleware(a.OTel)
	if err != nil {
		return fmt.Errorf("create otel middleware: %w", err)
	}
	a.otelMiddleware = otelMiddleware
	metrics := otelMiddleware.BusinessMetrics()

	a.Manager = operations.NewManager(a.Hub, nil, nil)
	tracer, err := operations.NewOperationTracer(a.OTel, metrics)
	if err != nil {
		return fmt.Errorf("create operation tracer: %w", err)
	}
	a.Manager.SetTracer(tracer)

	reporter := report.NewWriter(a.Paths, a.Logger)
	if err := operations.RegisterResearchSteps(a.Manager, client, reporter, metrics); err != nil {
		return fmt.Errorf("register pipeline steps: %w", err)
	}

	if a.OTel.Meter != nil {
		collector, err := infrastructure.NewSystemMetricsCollector(a.OTel.Meter, 30*time.Second)
		if err != nil {
			return fmt.Errorf("create system metrics collector: %w", err)
		}
		a.systemMetrics = collector
		ctx, cancel := context.WithCancel(context.Background())
		a.metricsCancel = cancel
		go collector.Start(ctx)
	}

	a.Services = &ServiceContainer{
		Data:   services.NewDataService(client, a.Logger),
		Study:  services.NewStudyService(a.Manager, a.Config.Server.StudyTimeout, a.Logger),
		Health: services.NewHealthService(config.AppVersion, a.buildTime, client, a.Manager, a.Hub, a.Logger),
	}
	return nil
}

func (a *Application) openClient() (*vquant.Client, error) {
	opts := []vquant.Option{
		vquant.WithTimeframe(a.Config.Data.Timeframe),
		vquant.WithLogger(a.Logger),
		vquant.WithMaxConcurrency(a.Config.Data.MaxConcurrency),
		vquant.WithCacheDir(a.Paths.CacheDir),
	}
	if a.Config.Data.IsRemote() {
		remote := storage.DefaultRemoteConfig()
		if a.Config.Data.CacheTTL > 0 {
			remote.TTL = a.Config.Data.CacheTTL
		}
		opts = append(opts, vquant.WithRemoteConfig(remote))
	}
	return vquant.New(a.Config.Data.Market, a.Config.Data.BaseURL, opts...)
}

// setupRouter builds the chi router: request id and real ip everywhere, the
// WebSocket endpoint and Prometheus outside the heavy middleware, and the
// API behind tracing, recovery, CORS and rate limiting.
func (a *Application) setupRouter() error {
	errorHandler := apierrors.NewErrorHandler(a.Logger, false)

	dataHandler := transport.NewDataHandler(a.Services.Data, a.Logger, errorHandler)
	studyHandler := transport.NewStudyHandler(a.Services.Study, a.Logger, errorHandler)
	healthHandler := transport.NewHealthHandler(a.Services.Health, a.Logger)
	wsHandler := transport.NewWebSocketHandler(a.Hub, a.Config.Security.AllowedOrigins, a.Logger)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(custommw.RealIP)

	// WebSocket upgrades dislike wrapped ResponseWriters; keep this route
	// outside the middleware group.
	r.With(custommw.WebSocketTraceMiddleware(a.Logger)).Handle("/ws", wsHandler)

	if a.OTel.PrometheusHTTP != nil {
		r.Handle("/metrics", a.OTel.PrometheusHTTP)
	}

	r.Group(func(r chi.Router) {
		r.Use(a.otelMiddleware.Handler)
		if metrics := a.otelMiddleware.BusinessMetrics(); metrics != nil {
			r.Use(custommw.BusinessMetricsMiddleware(metrics))
		}
		r.Use(custommw.Recoverer(a.Logger))
		r.Use(custommw.DefaultSecureHeaders().Handler)

		if a.Config.Security.EnableCORS == nil || *a.Config.Security.EnableCORS {
			r.Use(custommw.CORS(custommw.CORSConfig{
				AllowedOrigins: a.Config.Security.AllowedOrigins,
				AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
				AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
			}))
		}
		if rl := a.Config.Security.RateLimit; rl.Enabled == nil || *rl.Enabled {
			r.Use(custommw.NewRateLimiter(rl.RPS, rl.Burst, a.Logger).Handler)
		}

		validation := custommw.NewValidationMiddleware(a.Logger, errorHandler)
		r.Route("/api/v1", func(r chi.Router) {
			r.Use(validation.ValidateRequest)
			r.Use(custommw.ContentTypeValidator("application/json"))
			r.Mount("/data", dataHandler.Routes())
			r.Mount("/studies", studyHandler.Routes())
		})
		r.Mount("/health", healthHandler.Routes())
	})

	a.Router = r
	return nil
}

func (a *Application) createServer() {
	a.server = &http.Server{
		Addr:           fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:        a.Router,
		ReadTimeout:    a.Config.Server.ReadTimeout,
		WriteTimeout:   a.Config.Server.WriteTimeout,
		IdleTimeout:    a.Config.Server.IdleTimeout,
		MaxHeaderBytes: a.Config.Server.MaxHeaderBytes,
	}
}

// Start runs the HTTP server until the context is cancelled or the server
// fails.
func (a *Application) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("http server listening", slog.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		return a.Stop()
	}
}

// Stop shuts the application down in reverse initialization order.
func (a *Application) Stop() error {
	timeout := a.Config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	a.Logger.Info("shutting down", slog.Duration("timeout", timeout))

	var errs []error
	if err := a.server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("server shutdown: %w", err))
	}

	a.Hub.Stop()
	a.Manager.Broadcaster().Stop()
	if a.metricsCancel != nil {
		a.metricsCancel()
	}

	if err := a.Client.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	if err := a.OTel.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("otel shutdown: %w", err))
	}
	if err := infrastructure.CloseLogFile(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// Run starts the application and blocks until SIGINT or SIGTERM.
func (a *Application) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.Start(ctx)
}
