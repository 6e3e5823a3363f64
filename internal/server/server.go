// Package server exposes the meter over HTTP: health, Prometheus metrics,
// JSON readings and the websocket feed.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"tracktweak/internal/log"
	"tracktweak/internal/meter"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	readTimeout     = 10 * time.Second
	writeTimeout    = 20 * time.Second
	shutdownTimeout = 5 * time.Second
)

// Meter is the read side of the meter the server reports on.
type Meter interface {
	ID() string
	SampleRate() float64
	DisplayBins() int
	FrequencyForDisplayBin(i int) float64
	SnapshotInto(s *meter.Snapshot)
	Stats() meter.Stats
}

// Options configures a Server.
type Options struct {
	Addr           string
	AllowedOrigins []string
	Gatherer       prometheus.Gatherer // Served on /metrics; nil disables the route.
	WebSocket      http.Handler        // Served on /ws; nil disables the route.
}

type Server struct {
	meter    Meter
	opts     Options
	router   chi.Router
	srv      *http.Server
	listener net.Listener
	sequence atomic.Uint64
	started  time.Time
}

// New builds the router. Nothing listens until Start.
func New(m Meter, opts Options) (*Server, error) {
	if m == nil {
		return nil, errors.New("server: meter cannot be nil")
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}

	s := &Server{meter: m, opts: opts, started: time.Now()}

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.RequestID)
	r.Use(requestLogger)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", s.health)
	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}
	if opts.WebSocket != nil {
		r.Handle("/ws", opts.WebSocket)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/snapshot", s.snapshot)
		r.Get("/spectrum", s.spectrum)
		r.Get("/stats", s.stats)
	})

	s.router = r
	s.srv = &http.Server{
		Addr:         opts.Addr,
		Handler:      r,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}
	return s, nil
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start binds the listener and serves in the background. Bind errors are
// returned; serve errors after that are logged.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("server: listen on %s: %w", s.opts.Addr, err)
	}
	s.listener = ln
	log.Infof("HTTP: listening on http://%s", ln.Addr())

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("HTTP: serve error: %v", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.opts.Addr
}

// Shutdown stops accepting connections and waits for in-flight requests,
// giving up after five seconds or when ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
