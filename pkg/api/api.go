package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/devmail/webapp/pkg/apiresponses"
	"github.com/devmail/webapp/pkg/config"
	"github.com/devmail/webapp/pkg/metrics"
	"github.com/devmail/webapp/pkg/ratelimit"
	"github.com/devmail/webapp/pkg/system"
	"github.com/devmail/webapp/pkg/version"
)

const (
	shutdownTimeout   = 15 * time.Second
	readHeaderTimeout = 10 * time.Second
	healthTimeout     = 2 * time.Second
)

// APIController registers a group of routes below /api.
type APIController interface {
	BasePath() string
	Register(rg *gin.RouterGroup) error
	Handlers() []gin.HandlerFunc
}

// HealthChecker is satisfied by the persistence context.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

type Server struct {
	gin     *gin.Engine
	api     *gin.RouterGroup
	config  config.Config
	log     *zap.SugaredLogger
	health  HealthChecker
	limiter *ratelimit.IPRateLimiter
}

// NewServer builds the engine with the middleware pipeline in order:
// logging and recovery, tracing, request logger, HSTS and HTTPS redirection
// (production only), static files, CORS (debug only), and rate limiting on /api.
func NewServer(log *zap.Logger, cfg config.Config, debug bool, health HealthChecker) (*Server, error) {
	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}
	sugar := log.Sugar().Named("api")

	engine := gin.New()
	engine.Use(
		ginzap.Ginzap(log, time.RFC3339, true),
		ginzap.RecoveryWithZap(log, true),
		Tracing(),
		system.RequestLogger(sugar),
	)
	if len(cfg.Server.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
			return nil, fmt.Errorf("invalid server.trustedProxies: %w", err)
		}
	}

	if !cfg.IsDevelopment() {
		maxAge, err := cfg.HSTSMaxAge()
		if err != nil {
			return nil, err
		}
		engine.Use(HSTS(maxAge))
		if cfg.Server.HTTPSRedirect {
			engine.Use(HTTPSRedirect())
		}
	}

	engine.Use(ServeStatic("/", cfg.Server.StaticDir))

	if debug {
		engine.Use(
			cors.New(cors.Config{
				AllowOrigins: []string{"http://localhost:5173", "http://127.0.0.1:8080"},
				AllowMethods: []string{"GET", "POST", "OPTIONS"},
				AllowHeaders: []string{"Origin", "Content-Type"},
				MaxAge:       12 * time.Hour,
			}),
		)
	}

	s := &Server{
		gin:     engine,
		config:  cfg,
		log:     sugar,
		health:  health,
		limiter: ratelimit.New(ratelimit.FromConfig(cfg.RateLimit)),
	}

	engine.GET("/healthz", s.getHealth)
	engine.GET("/metrics", gin.WrapH(metrics.MetricsHandler()))
	engine.NoRoute(func(c *gin.Context) {
		apiresponses.RespondNotFound(c, "no route for "+c.Request.URL.Path)
	})

	s.api = engine.Group("api", s.limiter.Middleware())
	s.api.GET("version", s.getVersion)

	return s, nil
}

// RegisterAll mounts each controller below /api/<BasePath>.
func (s *Server) RegisterAll(controllers []APIController) error {
	for _, c := range controllers {
		if err := c.Register(s.api.Group(c.BasePath(), c.Handlers()...)); err != nil {
			return fmt.Errorf("register %s: %w", c.BasePath(), err)
		}
		s.log.Infow("Registered API controller", "basePath", "/api/"+c.BasePath())
	}
	return nil
}

// Handler exposes the engine, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.gin
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	defer s.limiter.Stop()

	srv := &http.Server{
		Addr:              s.config.Server.ListenAddress,
		Handler:           s.gin,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if s.config.Server.TLSCertFile != "" && s.config.Server.TLSKeyFile != "" {
			s.log.Infow("Listening with TLS", "address", srv.Addr)
			err = srv.ListenAndServeTLS(s.config.Server.TLSCertFile, s.config.Server.TLSKeyFile)
		} else {
			s.log.Infow("Listening", "address", srv.Addr)
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return <-errCh
}

type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

func (s *Server) getHealth(c *gin.Context) {
	if s.health == nil {
		c.JSON(http.StatusOK, HealthResponse{Status: "ok", Database: "not configured"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()
	if err := s.health.Ping(ctx); err != nil {
		system.GetReqLogger(c, s.log).Warnw("Health check failed", "error", err)
		apiresponses.RespondServiceUnavailable(c, "database")
		return
	}
	c.JSON(http.StatusOK, HealthResponse{Status: "ok", Database: "ok"})
}

func (s *Server) getVersion(c *gin.Context) {
	apiresponses.RespondOK(c, version.GetBuildInfo())
}
