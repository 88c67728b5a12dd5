// Package server exposes the shipment operations over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/atelierops/fulfillment/internal/orchestrator"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Shipments is the set of orchestrator operations served over HTTP.
type Shipments interface {
	CreateLabel(ctx context.Context, req orchestrator.CreateLabelRequest) (*orchestrator.CreateLabelResult, error)
	ConfirmShipment(ctx context.Context, orgID, orderID, userID string) (*orchestrator.FulfillmentResult, error)
	ConfirmPickupReady(ctx context.Context, orgID, orderID, userID string) (*orchestrator.FulfillmentResult, error)
	ConfirmPickupCollected(ctx context.Context, orgID, orderID, userID string) (*orchestrator.FulfillmentResult, error)
	CancelLabel(ctx context.Context, req orchestrator.CancelLabelRequest) (*orchestrator.CancelLabelResult, error)
	GetShipment(ctx context.Context, orgID, orderID string) (*orchestrator.Shipment, error)
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Config holds server configuration.
type Config struct {
	Port int

	// Gatherer backs /metrics. Defaults to the global registry.
	Gatherer prometheus.Gatherer

	// Checks are run by /health, keyed by dependency name.
	Checks map[string]HealthCheck

	ShutdownTimeout time.Duration
}

// Server is the HTTP server for the fulfillment service.
type Server struct {
	port            int
	shipments       Shipments
	logger          *otelzap.Logger
	gatherer        prometheus.Gatherer
	checks          map[string]HealthCheck
	shutdownTimeout time.Duration
}

// New creates a new server instance.
func New(cfg Config, shipments Shipments, logger *otelzap.Logger) *Server {
	if logger == nil {
		logger = otelzap.New(zap.NewNop())
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	return &Server{
		port:            cfg.Port,
		shipments:       shipments,
		logger:          logger,
		gatherer:        cfg.Gatherer,
		checks:          cfg.Checks,
		shutdownTimeout: cfg.ShutdownTimeout,
	}
}

// Handler returns the router with every route mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/v1/orgs/{orgID}", func(r chi.Router) {
		r.Route("/orders/{orderID}", func(r chi.Router) {
			r.Post("/label", s.handleCreateLabel)
			r.Post("/ship", s.handleConfirmShipment)
			r.Post("/pickup-ready", s.handlePickupReady)
			r.Post("/pickup-collected", s.handlePickupCollected)
			r.Get("/shipment", s.handleGetShipment)
		})
		r.Post("/labels/{labelID}/cancel", s.handleCancelLabel)
	})

	return r
}

// Run starts the HTTP server and blocks until ctx is cancelled or the
// listener fails.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("Starting server", zap.Int("port", s.port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
			return
		}
		s.logger.Ctx(r.Context()).Info("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
