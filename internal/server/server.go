// Package server exposes the compiler over HTTP for dev servers and build
// tools that cannot link Go code.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/estrelajs/vite-plugin-estrela/internal/build"
	"github.com/estrelajs/vite-plugin-estrela/internal/observability"
	"github.com/estrelajs/vite-plugin-estrela/pkg/compiler"
)

const (
	defaultReadTimeout  = 10 * time.Second
	defaultWriteTimeout = 30 * time.Second
	defaultIdleTimeout  = 60 * time.Second
	defaultMaxBody      = 4 << 20
	shutdownTimeout     = 5 * time.Second
)

// TransformRequest is the body of POST /api/transform and /api/inspect.
type TransformRequest struct {
	Code string `json:"code"`
	ID   string `json:"id"`
}

// TransformResponse is the body returned by POST /api/transform.
type TransformResponse struct {
	Code     string             `json:"code"`
	Map      json.RawMessage    `json:"map,omitempty"`
	Tag      string             `json:"tag,omitempty"`
	Warnings []compiler.Warning `json:"warnings,omitempty"`
	Handled  bool               `json:"handled"`
	Cached   bool               `json:"cached,omitempty"`
}

// ErrorResponse is returned for failed requests.
type ErrorResponse struct {
	Error  string `json:"error"`
	Kind   string `json:"kind,omitempty"`
	Line   int    `json:"line,omitempty"`
	Column int    `json:"column,omitempty"`
}

// Config configures a Server.
type Config struct {
	Addr         string
	Version      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	// MaxBody limits request bodies in bytes.
	MaxBody int64
	// Metrics serves /metrics when non-nil.
	Metrics http.Handler
}

// Server serves the transform API.
type Server struct {
	svc    *build.Service
	cfg    Config
	tracer trace.Tracer
	logger *slog.Logger
}

// New creates a Server. A nil tracer or logger records nothing.
func New(svc *build.Service, cfg Config, tracer trace.Tracer, logger *slog.Logger) *Server {
	if tracer == nil {
		tracer = tracenoop.NewTracerProvider().Tracer("estrela.server")
	}

	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}

	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}

	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = defaultIdleTimeout
	}

	if cfg.MaxBody <= 0 {
		cfg.MaxBody = defaultMaxBody
	}

	return &Server{svc: svc, cfg: cfg, tracer: tracer, logger: logger}
}

// Handler returns the routed handler wrapped in tracing middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/transform", s.handleTransform)
	mux.HandleFunc("POST /api/inspect", s.handleInspect)
	mux.Handle("GET /healthz", observability.HealthHandler(s.cfg.Version))
	mux.Handle("GET /readyz", observability.ReadyHandler(s.ready))

	if s.cfg.Metrics != nil {
		mux.Handle("GET /metrics", s.cfg.Metrics)
	}

	return observability.HTTPMiddleware(s.tracer, s.logger, mux)
}

// ready compiles a trivial component so readiness covers grammar loading.
func (s *Server) ready(ctx context.Context) error {
	_, err := s.svc.Compiler().Compile(ctx, "<p></p>", "x-ready"+s.svc.Compiler().Options().Extension)
	if err != nil {
		return fmt.Errorf("compiler not ready: %w", err)
	}

	return nil
}

// Run listens on cfg.Addr and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	var lc net.ListenConfig

	listener, err := lc.Listen(ctx, "tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr, err)
	}

	return s.Serve(ctx, listener)
}

// Serve serves on listener until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	srv := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
		BaseContext:  func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errCh := make(chan error, 1)

	go func() {
		errCh <- srv.Serve(listener)
	}()

	s.logger.InfoContext(ctx, "transform server listening", "addr", listener.Addr().String())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	return nil
}

func (s *Server) decode(rw http.ResponseWriter, hr *http.Request) (TransformRequest, bool) {
	var req TransformRequest

	body := http.MaxBytesReader(rw, hr.Body, s.cfg.MaxBody)

	if err := json.NewDecoder(body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeJSON(hr.Context(), rw, http.StatusRequestEntityTooLarge, ErrorResponse{Error: "request body too large"})

			return req, false
		}

		s.writeJSON(hr.Context(), rw, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})

		return req, false
	}

	if req.ID == "" {
		s.writeJSON(hr.Context(), rw, http.StatusBadRequest, ErrorResponse{Error: "id is required"})

		return req, false
	}

	return req, true
}

func (s *Server) handleTransform(rw http.ResponseWriter, hr *http.Request) {
	req, ok := s.decode(rw, hr)
	if !ok {
		return
	}

	out, err := s.svc.Transform(hr.Context(), req.ID, req.Code)
	if err != nil {
		s.writeError(hr.Context(), rw, err)

		return
	}

	s.writeJSON(hr.Context(), rw, http.StatusOK, TransformResponse{
		Code:     out.Code,
		Map:      out.Map,
		Tag:      out.Tag,
		Warnings: out.Warnings,
		Handled:  out.Handled,
		Cached:   out.Cached,
	})
}

func (s *Server) handleInspect(rw http.ResponseWriter, hr *http.Request) {
	req, ok := s.decode(rw, hr)
	if !ok {
		return
	}

	report, err := s.svc.Compiler().Inspect(hr.Context(), req.Code, req.ID)
	if err != nil {
		s.writeError(hr.Context(), rw, err)

		return
	}

	s.writeJSON(hr.Context(), rw, http.StatusOK, report)
}

// writeError maps compile errors to 422 with their location and anything
// else to 500.
func (s *Server) writeError(ctx context.Context, rw http.ResponseWriter, err error) {
	span := trace.SpanFromContext(ctx)

	var compileErr *compiler.Error
	if errors.As(err, &compileErr) {
		observability.RecordSpanError(span, err, observability.ErrTypeCompile, observability.ErrSourceClient)

		resp := ErrorResponse{Error: compileErr.Err.Error(), Line: compileErr.Line, Column: compileErr.Column}
		if compileErr.Kind != nil {
			resp.Kind = compileErr.Kind.Error()
		}

		s.writeJSON(ctx, rw, http.StatusUnprocessableEntity, resp)

		return
	}

	observability.RecordSpanError(span, err, observability.ErrTypeIO, observability.ErrSourceServer)
	s.logger.ErrorContext(ctx, "transform failed", "error", err)
	s.writeJSON(ctx, rw, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
}

func (s *Server) writeJSON(ctx context.Context, rw http.ResponseWriter, code int, value any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(code)

	if err := json.NewEncoder(rw).Encode(value); err != nil {
		s.logger.ErrorContext(ctx, "failed to encode JSON response", "error", err)
	}
}
