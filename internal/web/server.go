// Package web serves the tag editor API, job progress over websockets,
// health and Prometheus metrics, and the static frontend.
package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"musicmanager/internal/config"
	"musicmanager/internal/gateway"
	"musicmanager/internal/library"
	"musicmanager/internal/logger"
)

type Server struct {
	ctx      context.Context
	jobMgr   *JobManager
	config   config.Config
	logger   *logger.Logger
	store    *library.Store
	indexer  *library.Indexer
	importer *library.Importer

	registry    *prometheus.Registry
	gwMetrics   *gateway.Metrics
	gwOpts      []gateway.Option
	reqTotal    *prometheus.CounterVec
	reqDuration *prometheus.HistogramVec
}

// Option configures a Server.
type Option func(*Server)

// WithLibrary enables the library scan and import endpoints.
func WithLibrary(store *library.Store, ix *library.Indexer, imp *library.Importer) Option {
	return func(s *Server) {
		s.store = store
		s.indexer = ix
		s.importer = imp
	}
}

// WithGatewayOptions passes extra options to every gateway the server creates.
func WithGatewayOptions(opts ...gateway.Option) Option {
	return func(s *Server) {
		s.gwOpts = append(s.gwOpts, opts...)
	}
}

// NewServer builds the server. ctx bounds background jobs.
func NewServer(ctx context.Context, jobMgr *JobManager, cfg config.Config, log *logger.Logger, opts ...Option) *Server {
	reg := prometheus.NewRegistry()
	s := &Server{
		ctx:      ctx,
		jobMgr:   jobMgr,
		config:   cfg,
		logger:   log,
		registry: reg,
		reqTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "musicmanager_http_requests_total",
				Help: "Total HTTP requests by status code and method",
			},
			[]string{"code", "method"},
		),
		reqDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "musicmanager_http_request_duration_seconds",
				Help:    "HTTP request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),
	}
	reg.MustRegister(
		s.reqTotal,
		s.reqDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	s.gwMetrics = gateway.NewMetrics(reg)

	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registry exposes the server's metrics registry.
func (s *Server) Registry() *prometheus.Registry {
	return s.registry
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	// Static frontend
	if s.config.StaticDir != "" {
		static := http.FileServer(http.Dir(s.config.StaticDir))
		mux.Handle("GET /static/", http.StripPrefix("/static/", static))
		mux.Handle("GET /", static)
	}

	// Tag editor API
	mux.HandleFunc("POST /api/token/", s.handleToken)
	mux.HandleFunc("GET /api/record/", s.handleRecord)
	mux.HandleFunc("POST /api/file_list/", s.handleFileList)
	mux.HandleFunc("POST /api/music_id3/", s.handleMusicID3)
	mux.HandleFunc("POST /api/fetch_id3_by_title/", s.handleFetchID3ByTitle)
	mux.HandleFunc("POST /api/fetch_lyric/", s.handleFetchLyric)
	mux.HandleFunc("POST /api/update_id3", s.handleUpdateID3)
	mux.HandleFunc("GET /user/info", s.handleUserInfo)

	// Library jobs
	mux.HandleFunc("POST /api/scan", s.handleScan)
	mux.HandleFunc("POST /api/import", s.handleImport)
	mux.HandleFunc("GET /api/jobs", s.handleListJobs)
	mux.HandleFunc("GET /api/jobs/{id}", s.handleGetJob)
	mux.HandleFunc("POST /api/jobs/{id}/cancel", s.handleCancelJob)
	mux.HandleFunc("GET /ws", s.handleWebSocket)

	// Operations
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry}))

	return s.loggingMiddleware(mux)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	logged := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.logger.Debug("%s %s", r.Method, r.URL.Path)
		next.ServeHTTP(w, r)
	})
	return promhttp.InstrumentHandlerDuration(s.reqDuration,
		promhttp.InstrumentHandlerCounter(s.reqTotal, logged))
}

// Start serves on the configured address until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.config.Addr(),
		Handler:      s.Router(),
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("Server shutdown error: %v", err)
		}
	}()

	s.logger.Info("Starting web server on %s", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server failed: %w", err)
	}
	return nil
}
