package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	cloudhttp "github.com/kanbang/xdesktop/internal/api/http"
	"github.com/kanbang/xdesktop/internal/api/middleware"
	"github.com/kanbang/xdesktop/internal/auth"
	"github.com/kanbang/xdesktop/internal/domain/archive"
	"github.com/kanbang/xdesktop/internal/domain/operations"
	"github.com/kanbang/xdesktop/internal/domain/vfs"
	"github.com/kanbang/xdesktop/internal/infrastructure/config"
	"github.com/kanbang/xdesktop/internal/infrastructure/logging"
	"github.com/kanbang/xdesktop/internal/infrastructure/monitoring"
	"github.com/kanbang/xdesktop/internal/infrastructure/tracing"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	router   *gin.Engine
	http     *http.Server
	registry *vfs.Registry
	tracer   *tracing.Tracer
	logger   *logging.Logger
	config   *config.Config
	metrics  *monitoring.Metrics
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config) (*Server, error) {
	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return newServer(cfg, logger)
}

func newServer(cfg *config.Config, logger *logging.Logger) (*Server, error) {
	specs, err := cfg.AdapterSpecs()
	if err != nil {
		return nil, fmt.Errorf("invalid adapter layout: %w", err)
	}

	logger.Info("Initializing file service",
		zap.String("port", cfg.Server.Port),
		zap.String("storage_root", cfg.Storage.Root),
		zap.Int("adapters", len(specs)),
	)

	metrics := monitoring.NewMetrics()
	tracer := tracing.New("vfs", logger.Logger)

	registry, err := vfs.NewRegistry(vfs.RegistryConfig{
		StorageRoot:   cfg.Storage.Root,
		Adapters:      specs,
		CacheCapacity: cfg.Storage.CacheCapacity,
		Logger:        logger.Logger,
	})
	if err != nil {
		tracer.Close()
		return nil, fmt.Errorf("failed to create adapter registry: %w", err)
	}

	authenticator, err := newAuthenticator(cfg.Auth, logger)
	if err != nil {
		tracer.Close()
		return nil, err
	}

	engine := archive.NewEngine(archive.Options{
		Level:    archive.DefaultOptions().Level,
		MaxFiles: cfg.Archive.MaxFiles,
		MaxBytes: cfg.Archive.MaxBytes,
	}, logger.Logger)

	opts := []operations.Option{
		operations.WithLogger(logger.Logger),
		operations.WithMetrics(metrics),
		operations.WithThumbnailSize(cfg.Preview.ThumbnailMax),
	}
	if !cfg.Auth.Required {
		logger.Warn("Authorization disabled, any caller may act on any principal")
		opts = append(opts, operations.WithAuthorizer(operations.AllowAll))
	}
	dispatcher := operations.NewDispatcher(registry, engine, opts...)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig().WithOrigins(cfg.Server.CORSOrigins)))
	if cfg.RateLimit.Enabled {
		useRateLimits(router, cfg.RateLimit, logger)
	}

	cloud := cloudhttp.NewCloudHandler(dispatcher, authenticator, cfg.Server.MaxUploadBytes, logger.Logger)
	status := cloudhttp.NewStatusHandlers(registry, metrics)

	router.GET("/", status.Root)
	router.GET("/health", status.Health)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	cloud.Register(router)

	logger.Info("Server initialized successfully")

	return &Server{
		router:   router,
		registry: registry,
		tracer:   tracer,
		logger:   logger,
		config:   cfg,
		metrics:  metrics,
		http: &http.Server{
			Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// useRateLimits installs the global limit, when configured, ahead of the
// per-client limit.
func useRateLimits(router *gin.Engine, cfg config.RateLimitConfig, logger *logging.Logger) {
	if cfg.GlobalRequestsPerSecond > 0 {
		burst := cfg.GlobalBurst
		if burst == 0 {
			burst = cfg.GlobalRequestsPerSecond
		}
		logger.Info("Global rate limiting enabled",
			zap.Int("rps", cfg.GlobalRequestsPerSecond),
			zap.Int("burst", burst),
		)
		router.Use(middleware.GlobalRateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.GlobalRequestsPerSecond,
			Burst:             burst,
		}))
	}

	logger.Info("Rate limiting enabled",
		zap.Int("rps", cfg.RequestsPerSecond),
		zap.Int("burst", cfg.Burst),
	)
	limits := middleware.DefaultRateLimitConfig()
	limits.RequestsPerSecond = cfg.RequestsPerSecond
	limits.Burst = cfg.Burst
	router.Use(middleware.RateLimit(limits))
}

func newAuthenticator(cfg config.AuthConfig, logger *logging.Logger) (auth.Authenticator, error) {
	if cfg.Tokens == "" {
		if cfg.Required {
			logger.Warn("No AUTH_TOKENS configured, only preview and download are available")
		}
		return auth.AnonymousOnly{}, nil
	}
	tokens, err := auth.ParseTokens(cfg.Tokens)
	if err != nil {
		return nil, fmt.Errorf("invalid AUTH_TOKENS: %w", err)
	}
	authenticator, err := auth.NewStaticTokens(tokens)
	if err != nil {
		return nil, fmt.Errorf("invalid AUTH_TOKENS: %w", err)
	}
	logger.Info("Token authentication enabled", zap.Int("tokens", len(tokens)))
	return authenticator, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until Shutdown is called.
func (s *Server) Run() error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Reload applies the settings of cfg that take effect without a restart.
// Only the log level does; everything else is read once at startup.
func (s *Server) Reload(cfg *config.Config) error {
	from := s.logger.Level()
	if err := s.logger.SetLevel(cfg.Logging.Level); err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.Logging.Level, err)
	}
	s.config.Logging.Level = cfg.Logging.Level

	if to := s.logger.Level(); to != from {
		s.logger.Warn("Log level changed", zap.String("from", from), zap.String("to", to))
	}
	return nil
}

// Shutdown drains in-flight requests and flushes the access log.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")

	err := s.http.Shutdown(ctx)
	if err != nil {
		s.logger.Error("Failed to drain HTTP server", zap.Error(err))
	}
	s.tracer.Close()
	_ = s.logger.Sync()

	return err
}
