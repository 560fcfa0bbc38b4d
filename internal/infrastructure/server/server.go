package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/sjoerd104/OpenCentauri/internal/infrastructure/config"
	"github.com/sjoerd104/OpenCentauri/internal/infrastructure/monitoring"
)

const shutdownTimeout = 2 * time.Second

// StatusFunc reports the live state of the component being served.
type StatusFunc func() any

// Server wraps the status HTTP server and dependencies
type Server struct {
	router  *gin.Engine
	addr    string
	service string
	status  StatusFunc
	metrics *monitoring.Metrics
	logger  *zap.Logger
}

// New creates a status server. gatherer backs /metrics; status backs /status.
// metrics and status may be nil.
func New(service string, cfg config.ServerConfig, dev bool, metrics *monitoring.Metrics, gatherer prometheus.Gatherer, status StatusFunc, logger *zap.Logger) *Server {
	if !dev {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	s := &Server{
		router:  router,
		addr:    cfg.Addr,
		service: service,
		status:  status,
		metrics: metrics,
		logger:  logger,
	}

	router.Use(gin.Recovery())
	router.Use(monitoring.Middleware(metrics))
	if cfg.RateLimit > 0 {
		router.Use(RateLimit(cfg.RateLimit, cfg.RateBurst))
	}

	router.GET("/health", s.health)
	router.GET("/status", s.statusHandler)
	router.GET("/metrics", gin.WrapH(monitoring.Handler(gatherer)))
	router.GET("/metrics/json", s.metricsJSON)

	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) health(c *gin.Context) {
	body := gin.H{
		"status":  "healthy",
		"service": s.service,
	}
	if s.metrics != nil {
		body["uptime"] = s.metrics.UptimeSince().Round(time.Second).String()
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) statusHandler(c *gin.Context) {
	if s.status == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "status not available"})
		return
	}
	c.JSON(http.StatusOK, s.status())
}

func (s *Server) metricsJSON(c *gin.Context) {
	if s.metrics == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "metrics not available"})
		return
	}
	c.JSON(http.StatusOK, s.metrics.Snapshot())
}

// Run serves until ctx ends, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting status server", zap.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down status server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("Failed to shut down status server", zap.Error(err))
		return fmt.Errorf("failed to shut down status server: %w", err)
	}
	return nil
}
