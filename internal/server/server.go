package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"parking-lot/internal/logging"
	"parking-lot/internal/parking"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Options struct {
	Port           string
	ServiceName    string
	RateLimitRPS   float64
	RateLimitBurst int
}

type Server struct {
	httpServer *http.Server
	handler    *Handler
	limiters   *ClientLimiters
}

// NewServer wires the lot, the chat assistant and the weather reporter behind
// the HTTP routes. A non-positive RateLimitRPS disables rate limiting.
func NewServer(opts Options, lot *parking.InstrumentedParkingLot, assistant ChatResponder, weather WeatherReporter) (*Server, error) {
	handler := NewHandler(lot, assistant, weather, opts.ServiceName)

	registry := prometheus.NewRegistry()
	if err := registry.Register(parking.NewCollector(lot.ParkingLot)); err != nil {
		return nil, fmt.Errorf("register parking collector: %w", err)
	}
	if err := registry.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("register go collector: %w", err)
	}

	r := chi.NewRouter()

	r.Use(RecoveryMiddleware)
	r.Use(RequestIDMiddleware)
	r.Use(TracingMiddleware)
	r.Use(LoggingMiddleware)
	r.Use(CORSMiddleware)

	var limiters *ClientLimiters
	if opts.RateLimitRPS > 0 {
		limiters = NewClientLimiters(opts.RateLimitRPS, opts.RateLimitBurst)
	}

	r.Get("/health", handler.HealthCheck)
	r.Get("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}).ServeHTTP)

	r.Group(func(r chi.Router) {
		if limiters != nil {
			r.Use(RateLimitMiddleware(limiters))
		}

		r.Post("/park", handler.Park)
		r.Post("/remove", handler.Remove)
		r.Post("/undo", handler.Undo)
		r.Post("/redo", handler.Redo)
		r.Get("/status", handler.GetStatus)
		r.Get("/find/{plate}", handler.FindByPlate)
		r.Post("/api/chat", handler.Chat)
		r.Get("/weather", handler.Weather)
	})

	httpServer := &http.Server{
		Addr:         ":" + opts.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 45 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		handler:    handler,
		limiters:   limiters,
	}, nil
}

func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start blocks serving requests until Shutdown. The limiter janitor stops with ctx.
func (s *Server) Start(ctx context.Context) error {
	if s.limiters != nil {
		s.limiters.StartJanitor(ctx, 2*time.Minute)
	}
	logging.Infof(ctx, "Starting HTTP server on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info(ctx, "Shutting down HTTP server...")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) GetAddress() string {
	return fmt.Sprintf("http://localhost%s", s.httpServer.Addr)
}
