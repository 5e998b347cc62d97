package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apihttp "github.com/GriffinCanCode/iosdriver/internal/api/http"
	"github.com/GriffinCanCode/iosdriver/internal/api/middleware"
	"github.com/GriffinCanCode/iosdriver/internal/api/ws"
	"github.com/GriffinCanCode/iosdriver/internal/domain/application"
	"github.com/GriffinCanCode/iosdriver/internal/domain/host"
	"github.com/GriffinCanCode/iosdriver/internal/domain/session"
	"github.com/GriffinCanCode/iosdriver/internal/driver"
	"github.com/GriffinCanCode/iosdriver/internal/infrastructure/config"
	"github.com/GriffinCanCode/iosdriver/internal/infrastructure/logging"
	"github.com/GriffinCanCode/iosdriver/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/iosdriver/internal/infrastructure/shutdown"
	"github.com/GriffinCanCode/iosdriver/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/iosdriver/internal/inspector"
	"github.com/GriffinCanCode/iosdriver/internal/instruments"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	router   *gin.Engine
	http     *http.Server
	sessions *session.Manager
	hooks    *shutdown.Registry
	host     *host.Info
	catalog  *application.Catalog
	logger   *logging.Logger
	config   *config.Config
	metrics  *monitoring.Metrics
	tracer   *tracing.Tracer
}

// Options replace collaborators NewServer would otherwise build from the
// configuration. Zero fields use the configured defaults.
type Options struct {
	Logger         *logging.Logger
	Metrics        *monitoring.Metrics
	Host           *host.Info
	Catalog        *application.Catalog
	NewInstruments func(port int) session.Instruments
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config, opts Options) (*Server, error) {
	logger := opts.Logger
	if logger == nil {
		var err error
		logger, err = logging.New(logging.Config{
			Level:       cfg.Logging.Level,
			Development: cfg.Logging.Development,
			OutputPaths: []string{"stdout"},
			Fields:      map[string]string{"service": "iosdriver"},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
	}

	logger.Info("Initializing iOS driver server",
		zap.Int("port", cfg.Server.Port),
		zap.String("instruments", cfg.Instruments.Command),
		zap.String("catalog", cfg.Catalog.Pattern),
	)

	metrics := opts.Metrics
	if metrics == nil {
		metrics = monitoring.NewRegistryMetrics()
	}
	tracer := tracing.New("iosdriver", logger)

	hostInfo := opts.Host
	if hostInfo == nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		hostInfo = host.Probe(ctx, host.ProbeConfig{
			Port:       cfg.Server.Port,
			SDKs:       cfg.Host.SDKs,
			DefaultSDK: cfg.Host.DefaultSDK,
			Probe:      cfg.Host.Probe,
			Command:    cfg.Host.ProbeCommand,
		}, logger)
		cancel()
	}

	catalog := opts.Catalog
	if catalog == nil {
		var err error
		catalog, err = application.LoadCatalog(cfg.Catalog.Pattern, logger)
		if err != nil {
			tracer.Close()
			return nil, fmt.Errorf("failed to load application catalog: %w", err)
		}
	}

	hooks := shutdown.NewRegistry(logger)
	sessions := session.NewManager(sessionDeps(cfg, opts, hostInfo, catalog, hooks, metrics, logger)).
		WithTracer(tracer)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		rl := middleware.DefaultRateLimitConfig()
		rl.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		rl.Burst = cfg.RateLimit.Burst
		router.Use(middleware.RateLimit(rl))
	}

	handlers := apihttp.NewHandlers(sessions, hostInfo, catalog, apihttp.NewHandlerMetrics(metrics), logger)
	handlers.Register(router)

	wsHandler := ws.NewHandler(sessions, logger)
	router.GET("/wd/hub/session/:id/channel", wsHandler.HandleConnection)

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics.Gatherer(), promhttp.HandlerOpts{})))

	logger.Info("Server initialized successfully",
		zap.Int("applications", catalog.Len()),
		zap.Strings("sdks", hostInfo.InstalledSDKs()),
	)

	return &Server{
		router: router,
		http: &http.Server{
			Addr:              net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		sessions: sessions,
		hooks:    hooks,
		host:     hostInfo,
		catalog:  catalog,
		logger:   logger,
		config:   cfg,
		metrics:  metrics,
		tracer:   tracer,
	}, nil
}

func sessionDeps(
	cfg *config.Config,
	opts Options,
	hostInfo *host.Info,
	catalog *application.Catalog,
	hooks *shutdown.Registry,
	metrics *monitoring.Metrics,
	logger *logging.Logger,
) session.Deps {
	newInstruments := opts.NewInstruments
	if newInstruments == nil {
		icfg := instruments.DefaultConfig()
		icfg.Command = cfg.Instruments.Command
		icfg.Args = cfg.Instruments.Args
		icfg.OutputRoot = cfg.Instruments.OutputRoot
		if cfg.Instruments.StopTimeout > 0 {
			icfg.StopTimeout = cfg.Instruments.StopTimeout
		}
		newInstruments = func(port int) session.Instruments {
			return instruments.NewManager(port, icfg, logger)
		}
	}

	dcfg := driver.DefaultConfig()
	dcfg.Timeout = cfg.Driver.Timeout
	dcfg.Retries = cfg.Driver.Retries
	dcfg.RequestsPerSecond = cfg.Driver.RequestsPerSecond

	inspectors := inspector.NewFactory(inspector.Config{
		Address: cfg.Inspector.Address,
		Timeout: cfg.Inspector.Timeout,
	}, logger)

	return session.Deps{
		Matcher:        catalog,
		Host:           hostInfo,
		NewInstruments: newInstruments,
		NewDriver: func(endpoint *url.URL, instrumentsSessionID string) session.NativeDriver {
			return driver.NewClient(endpoint, instrumentsSessionID, dcfg, logger)
		},
		NewInspector: func(ctx context.Context, d session.NativeDriver, bundleID string, owner *session.Session) (session.WebInspector, error) {
			in, err := inspectors.New(ctx, d, bundleID, owner)
			if err != nil {
				return nil, err
			}
			return in, nil
		},
		Hooks:   hooks,
		Metrics: metrics,
		Logger:  logger,
	}
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Sessions returns the live session registry
func (s *Server) Sessions() *session.Manager {
	return s.sessions
}

// Hooks returns the registry force-stopping sessions on abnormal exit
func (s *Server) Hooks() *shutdown.Registry {
	return s.hooks
}

// Run serves HTTP until ctx is done, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.http.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", zap.String("addr", ln.Addr().String()))
		errCh <- s.http.Serve(ln)
	}()

	var serveErr error
	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = fmt.Errorf("http server failed: %w", err)
		}
	case <-ctx.Done():
	}

	timeout := s.config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	return errors.Join(serveErr, s.Shutdown(shutdownCtx))
}

// Shutdown stops accepting requests, stops every session and flushes
// telemetry
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")

	var errs []error
	if err := s.http.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to shut down http server: %w", err))
	}
	if err := s.sessions.StopAll(ctx); err != nil {
		errs = append(errs, err)
	}

	// anything StopAll could not reach
	s.hooks.Run()
	s.tracer.Close()
	s.logger.Sync()

	return errors.Join(errs...)
}
