// Package server exposes health, metrics and run triggers over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aatumaykin/odoosweep/internal/cleanup"
	"github.com/aatumaykin/odoosweep/internal/logger"
	"github.com/aatumaykin/odoosweep/internal/report"
)

// maxBodyBytes bounds trigger request bodies.
const maxBodyBytes = 64 << 10

// Instances lists the configured instances.
type Instances interface {
	Names() []string
	Has(name string) bool
}

// Defaults are the options used when a request leaves them out.
type Defaults struct {
	DaysThreshold int
	Reset         cleanup.ResetOptions
}

// Server is the HTTP front end of the sweeper.
type Server struct {
	runner    cleanup.Runner
	instances Instances
	gatherer  prometheus.Gatherer
	defaults  Defaults
	logger    *logger.Logger
	router    *chi.Mux

	mu     sync.Mutex
	server *http.Server
	closed bool
}

// New creates a Server. gatherer may be nil to disable /metrics.
func New(runner cleanup.Runner, instances Instances, gatherer prometheus.Gatherer, defaults Defaults, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Discard()
	}
	s := &Server{
		runner:    runner,
		instances: instances,
		gatherer:  gatherer,
		defaults:  defaults,
		logger:    log,
		router:    chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	if s.gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	s.router.Route("/v1/instances", func(r chi.Router) {
		r.Get("/", s.handleListInstances)
		r.Post("/{instance}/cleanup", s.handleCleanup)
		r.Post("/{instance}/reset", s.handleReset)
	})
}

// Start listens on addr until Shutdown is called. It returns nil at once
// when Shutdown came first.
func (s *Server) Start(addr string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.server = srv
	s.mu.Unlock()

	s.logger.Info("http server listening", logger.Field{Key: "addr", Value: addr})
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	srv := s.server
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		s.logger.Debug("http request",
			logger.Field{Key: "method", Value: r.Method},
			logger.Field{Key: "path", Value: r.URL.Path},
			logger.Field{Key: "status", Value: ww.Status()},
			logger.Field{Key: "duration_ms", Value: time.Since(start).Milliseconds()},
			logger.Field{Key: "request_id", Value: middleware.GetReqID(r.Context())})
	})
}

// ErrorResponse is the JSON body of a failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListInstances(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"instances": s.instances.Names()})
}

// CleanupRequest is the body of a cleanup trigger. Simulation defaults to true.
type CleanupRequest struct {
	Simulation    *bool    `json:"simulation"`
	DaysThreshold int      `json:"daysThreshold"`
	Groups        []string `json:"groups"`
}

// ResetRequest is the body of a reset trigger. A live reset needs Confirm.
type ResetRequest struct {
	Simulation          *bool `json:"simulation"`
	Confirm             bool  `json:"confirm"`
	KeepCompanyDefaults *bool `json:"keepCompanyDefaults"`
	KeepUserAccounts    *bool `json:"keepUserAccounts"`
	KeepMenus           *bool `json:"keepMenus"`
	KeepGroups          *bool `json:"keepGroups"`
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	instance, ok := s.instance(w, r)
	if !ok {
		return
	}

	var req CleanupRequest
	if !decode(w, r, &req) {
		return
	}
	if err := cleanup.ValidateGroups(req.Groups); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	opts := cleanup.Options{
		Simulation:    boolOr(req.Simulation, true),
		DaysThreshold: req.DaysThreshold,
		Groups:        req.Groups,
	}
	if opts.DaysThreshold == 0 {
		opts.DaysThreshold = s.defaults.DaysThreshold
	}
	if opts.DaysThreshold < 0 {
		writeError(w, http.StatusBadRequest, "daysThreshold must not be negative")
		return
	}

	rep, err := s.runner.Cleanup(runContext(r), instance, opts)
	s.respondRun(w, rep, err)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	instance, ok := s.instance(w, r)
	if !ok {
		return
	}

	var req ResetRequest
	if !decode(w, r, &req) {
		return
	}

	d := s.defaults.Reset
	opts := cleanup.ResetOptions{
		Simulation:          boolOr(req.Simulation, true),
		KeepCompanyDefaults: boolOr(req.KeepCompanyDefaults, d.KeepCompanyDefaults),
		KeepUserAccounts:    boolOr(req.KeepUserAccounts, d.KeepUserAccounts),
		KeepMenus:           boolOr(req.KeepMenus, d.KeepMenus),
		KeepGroups:          boolOr(req.KeepGroups, d.KeepGroups),
	}
	if !opts.Simulation && !req.Confirm {
		writeError(w, http.StatusBadRequest, "a live reset requires \"confirm\": true")
		return
	}

	rep, err := s.runner.Reset(runContext(r), instance, opts)
	s.respondRun(w, rep, err)
}

// runContext keeps request values but not its cancellation: a run that has
// started finishes even when the client goes away.
func runContext(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

func (s *Server) instance(w http.ResponseWriter, r *http.Request) (string, bool) {
	name := chi.URLParam(r, "instance")
	if !s.instances.Has(name) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown instance %q", name))
		return "", false
	}
	return name, true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.ContentLength == 0 {
		return true
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// respondRun maps a run outcome to a status code. A report produced by a
// failed run is still returned so callers can see what happened.
func (s *Server) respondRun(w http.ResponseWriter, rep *report.Report, err error) {
	switch {
	case errors.Is(err, cleanup.ErrBusy):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil && rep != nil:
		writeJSON(w, http.StatusBadGateway, rep)
	case err != nil:
		s.logger.Error("run failed", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, rep)
	}
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
