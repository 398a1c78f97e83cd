// Package server exposes a Translator over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/ZaguanLabs/phrasebook"
	"github.com/ZaguanLabs/phrasebook/cache"
	"github.com/ZaguanLabs/phrasebook/telemetry"
)

// Config holds the server configuration.
type Config struct {
	// Address to listen on (e.g., ":8080").
	Address string

	// Translator serves POST /v1/translate. Required.
	Translator *phrasebook.Translator

	// Quota serves GET /v1/quota/{provider}. Optional.
	Quota phrasebook.QuotaTracker

	// Cache serves POST /v1/cache/purge. Optional.
	Cache phrasebook.CacheStore

	// RequestTimeout bounds each request (default: 30s).
	RequestTimeout time.Duration

	// Logger for the server
	Logger *slog.Logger

	// Now is the clock used for purges (default: time.Now).
	Now func() time.Time
}

// Server is the HTTP front end of a translation engine.
type Server struct {
	config     Config
	httpServer *http.Server
	router     chi.Router
	reaper     *cache.Reaper
	logger     *slog.Logger
}

// New creates a server with the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.Translator == nil {
		return nil, errors.New("server: translator is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Address == "" {
		cfg.Address = ":8080"
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	s := &Server{
		config: cfg,
		logger: cfg.Logger,
	}
	if cfg.Cache != nil {
		s.reaper = cache.NewReaper(cfg.Cache,
			cache.WithReaperLogger(cfg.Logger),
			cache.WithReaperNow(cfg.Now),
		)
	}

	r := chi.NewRouter()
	r.Use(s.loggingMiddleware)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(cfg.RequestTimeout))

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", telemetry.PrometheusHandler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/translate", s.handleTranslate)
		r.Get("/quota/{provider}", s.handleQuota)
		r.Post("/cache/purge", s.handlePurge)
	})
	s.router = r

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      r,
		ReadTimeout:  cfg.RequestTimeout,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured address. It returns http.ErrServerClosed
// after Shutdown.
func (s *Server) Start() error {
	s.logger.Info("starting server", "address", s.config.Address)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")
	return s.httpServer.Shutdown(ctx)
}

// Address returns the server's listen address.
func (s *Server) Address() string {
	return s.config.Address
}

// loggingMiddleware assigns a request ID and logs each request.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)

		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		s.logger.Info("http request",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"bytes_sent", wrapped.bytesWritten,
			"duration_ms", duration.Milliseconds(),
			"remote_addr", r.RemoteAddr,
			"user_agent", r.UserAgent(),
			"http_version", fmt.Sprintf("%d.%d", r.ProtoMajor, r.ProtoMinor),
		)
	})
}

// responseWriter captures the status code and bytes written.
type responseWriter struct {
	http.ResponseWriter
	status       int
	bytesWritten int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}

// Unwrap returns the underlying ResponseWriter.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
