// Package server exposes the processing pipeline over HTTP.
//
// Clients upload a G-code file, poll the job it created and download the
// processed file once the job has completed:
//
//	GET  /health
//	POST /api/v1/upload                 multipart: file, start_at_layer, extrusion_multiplier, priority
//	GET  /api/v1/jobs                   all jobs
//	GET  /api/v1/jobs/{id}              job status
//	POST /api/v1/jobs/{id}/cancel       cancel a pending or running job
//	GET  /api/v1/jobs/{id}/download     processed file
//
// Errors are RFC 7807 problem documents.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/matzehuels/bricklayers/pkg/buildinfo"
	"github.com/matzehuels/bricklayers/pkg/cache"
	"github.com/matzehuels/bricklayers/pkg/jobs"
	"github.com/matzehuels/bricklayers/pkg/observability"
	"github.com/matzehuels/bricklayers/pkg/pipeline"
	"github.com/matzehuels/bricklayers/pkg/storage"
)

// shutdownTimeout bounds graceful shutdown of open requests.
const shutdownTimeout = 10 * time.Second

// Server serves the HTTP API.
type Server struct {
	cfg    Config
	logger *log.Logger
	files  *storage.Store
	jobs   *jobs.Manager
	router chi.Router
}

// New creates a server over existing components. The caller owns files and
// mgr; Run starts and stops them.
func New(cfg Config, files *storage.Store, mgr *jobs.Manager, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	s := &Server{cfg: cfg, logger: logger, files: files, jobs: mgr}
	s.router = s.routes()
	return s
}

// Open builds a server and its components from cfg: Redis-backed jobs and
// cache when RedisURL is set, in-memory jobs and an optional file cache
// otherwise. The returned close function releases them.
func Open(ctx context.Context, cfg Config, logger *log.Logger) (*Server, func() error, error) {
	files, err := storage.New(cfg.Storage(), logger)
	if err != nil {
		return nil, nil, err
	}

	var (
		store jobs.Store
		c     cache.Cache
	)
	switch {
	case cfg.RedisURL != "":
		rs, err := jobs.NewRedisStore(ctx, cfg.RedisURL, cfg.FileRetention.Duration)
		if err != nil {
			return nil, nil, err
		}
		rc, err := cache.NewRedisCache(ctx, cfg.RedisURL)
		if err != nil {
			rs.Close()
			return nil, nil, err
		}
		store, c = rs, rc
	case cfg.CacheDir != "":
		fc, err := cache.NewFileCache(cfg.CacheDir)
		if err != nil {
			return nil, nil, err
		}
		store, c = jobs.NewMemoryStore(), fc
	default:
		store, c = jobs.NewMemoryStore(), cache.NewNullCache()
	}

	runner := pipeline.NewRunner(c, cache.NewScopedKeyer(nil, "server"), logger)
	runner.Hooks = observability.NewLogHooks(logger).All()
	mgr := jobs.NewManager(store, runner, cfg.Jobs(), logger)

	closeFn := func() error {
		return errors.Join(mgr.Close(), store.Close(), runner.Close())
	}
	return New(cfg, files, mgr, logger), closeFn, nil
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run starts the workers, the retention cleanup and the listener, and
// blocks until ctx is cancelled or the listener fails.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.jobs.Start()
	defer s.jobs.Close()

	cleanupCtx, stopCleanup := context.WithCancel(ctx)
	defer stopCleanup()
	go s.files.RunCleanup(cleanupCtx, s.cfg.CleanupInterval.Duration)

	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	s.logger.Info("server listening", "addr", ln.Addr().String(), "version", buildinfo.Version)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(securityHeaders)
	r.Use(cors(s.cfg.CORSOrigins))

	r.Get("/health", s.handleHealth)
	r.Route(s.cfg.APIPrefix, func(r chi.Router) {
		r.Post("/upload", s.handleUpload)
		r.Get("/jobs", s.handleListJobs)
		r.Route("/jobs/{id}", func(r chi.Router) {
			r.Get("/", s.handleStatus)
			r.Post("/cancel", s.handleCancel)
			r.Get("/download", s.handleDownload)
		})
		// Paths of the first API version.
		r.Get("/status/{id}", s.handleStatus)
		r.Get("/download/{id}", s.handleDownload)
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeProblem(w, http.StatusNotFound, "Not found", "No route for "+r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeProblem(w, http.StatusMethodNotAllowed, "Method not allowed", r.Method+" is not allowed on "+r.URL.Path)
	})
	return r
}
