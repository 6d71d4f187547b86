package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/jscsandbox/bridge"
	"github.com/GriffinCanCode/jscsandbox/internal/logging"
	"github.com/GriffinCanCode/jscsandbox/internal/monitoring"
	"github.com/GriffinCanCode/jscsandbox/internal/server/middleware"
)

// Gate is the view of the installer the status endpoints read.
type Gate interface {
	State() bridge.State
	IsAvailable() bool
	ModuleName() string
}

// Config contains server configuration
type Config struct {
	Addr        string
	CORS        middleware.CORSConfig
	RateLimit   middleware.RateLimitConfig
	Development bool
}

// DefaultConfig listens on loopback only.
func DefaultConfig() Config {
	return Config{
		Addr:      "127.0.0.1:9464",
		CORS:      middleware.DefaultCORSConfig(),
		RateLimit: middleware.DefaultRateLimitConfig(),
	}
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Server) { s.log = logging.OrNop(log) }
}

// WithMetrics attaches the collector behind /stats and the registry behind
// /metrics. A nil gatherer leaves /metrics unserved.
func WithMetrics(m *monitoring.Metrics, gatherer prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metrics = m
		s.gatherer = gatherer
	}
}

// Server wraps the status router and its listener
type Server struct {
	cfg      Config
	router   *gin.Engine
	gate     Gate
	metrics  *monitoring.Metrics
	gatherer prometheus.Gatherer
	log      *zap.Logger
	started  time.Time

	mu   sync.Mutex
	http *http.Server
	addr net.Addr
}

// New builds the router. Nothing listens until Start.
func New(cfg Config, gate Gate, opts ...Option) *Server {
	s := &Server{
		cfg:     cfg,
		gate:    gate,
		log:     zap.NewNop(),
		started: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if !cfg.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.CORS))
	router.Use(middleware.GlobalRateLimit(cfg.RateLimit))

	router.GET("/health", s.health)
	router.GET("/stats", s.stats)
	if s.gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	s.router = router
	return s
}

// Handler returns the router for embedding or tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.http != nil {
		return errors.New("server already started")
	}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}

	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.http = srv
	s.addr = ln.Addr()

	s.log.Info("Starting status server", zap.String("addr", s.addr.String()))
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("Status server stopped", zap.Error(err))
		}
	}()
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.addr == nil {
		return ""
	}
	return s.addr.String()
}

// Shutdown gracefully stops the listener. Safe to call when not started.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.http
	s.http = nil
	s.addr = nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	s.log.Info("Shutting down status server")
	return srv.Shutdown(ctx)
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status    string  `json:"status"`
	State     string  `json:"state"`
	Available bool    `json:"available"`
	Module    string  `json:"module"`
	Uptime    float64 `json:"uptime_seconds"`
}

func (s *Server) health(c *gin.Context) {
	available := s.gate.IsAvailable()
	resp := HealthResponse{
		Status:    "ok",
		State:     s.gate.State().String(),
		Available: available,
		Module:    s.gate.ModuleName(),
		Uptime:    time.Since(s.started).Seconds(),
	}

	code := http.StatusOK
	if !available {
		resp.Status = "unavailable"
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, resp)
}

// StatsResponse is the body of GET /stats
type StatsResponse struct {
	Evals    int64   `json:"evals"`
	Failures int64   `json:"failures"`
	Timeouts int64   `json:"timeouts"`
	TotalMS  float64 `json:"total_ms"`
	MeanMS   float64 `json:"mean_ms"`
}

func (s *Server) stats(c *gin.Context) {
	snap := s.metrics.GetSnapshot()
	resp := StatsResponse{
		Evals:    snap.Evals,
		Failures: snap.Failures,
		Timeouts: snap.Timeouts,
		TotalMS:  float64(snap.Total) / float64(time.Millisecond),
	}
	if snap.Evals > 0 {
		resp.MeanMS = resp.TotalMS / float64(snap.Evals)
	}
	c.JSON(http.StatusOK, resp)
}
