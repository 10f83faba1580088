package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"clawav/internal/alerts"
	"clawav/internal/detect"
	"clawav/internal/firewall"
	"clawav/internal/logger"
)

// DropCounter reports alerts lost on the delivery channel.
type DropCounter interface {
	Dropped() uint64
}

// Config wires the read-only status surface.
type Config struct {
	Store    *alerts.Store
	Registry *detect.Registry
	Drops    DropCounter
	// Firewall enables POST /api/firewall/scan when set.
	Firewall *firewall.Firewall
	// Observe receives every scan result from the endpoint.
	Observe  func(firewall.Result)
	Gatherer prometheus.Gatherer

	ScanRatePerSecond float64
	ScanBurst         int
}

// Server serves alerts, registry status and the scan endpoint.
type Server struct {
	cfg     Config
	started time.Time
	limiter *rateLimiter
	rss     func() (uint64, error)
}

// NewServer creates a Server. Zero rate settings default to 5 req/s with a burst of 10.
func NewServer(cfg Config) *Server {
	if cfg.ScanRatePerSecond <= 0 {
		cfg.ScanRatePerSecond = 5
	}
	if cfg.ScanBurst <= 0 {
		cfg.ScanBurst = 10
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}
	return &Server{
		cfg:     cfg,
		started: time.Now(),
		limiter: newRateLimiter(cfg.ScanRatePerSecond, cfg.ScanBurst),
		rss:     processRSS,
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.GetHead)

	r.Route("/api", func(r chi.Router) {
		r.Get("/alerts", s.handleAlerts)
		r.Get("/status", s.handleStatus)
		r.Get("/health", s.handleHealth)
		r.With(s.limiter.middleware).Post("/firewall/scan", s.handleScan)
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.cfg.Gatherer, promhttp.HandlerOpts{}))
	return r
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Status API listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
