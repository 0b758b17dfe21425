// Package http serves the orchestration core over HTTP with chi. The API is
// described by the embedded openapi.yaml, which is also used to validate
// request bodies before they reach the engine.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aretw0/tendril"
	"github.com/aretw0/tendril/internal/logging"
	"github.com/aretw0/tendril/pkg/domain"
	"github.com/aretw0/tendril/pkg/ports"
	"github.com/aretw0/tendril/pkg/runner"
	"github.com/aretw0/tendril/pkg/session"
	"github.com/aretw0/tendril/pkg/stream"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MaxBodySize bounds request bodies. Sessions travel in full, so this is generous.
const MaxBodySize = 8 << 20

const ndjson = "application/x-ndjson"

// Engine is the core as the HTTP adapter needs it.
type Engine interface {
	ports.Orchestrator
	Invoke(ctx context.Context, inv domain.Invocation, ch stream.Channel) error
}

// Server holds the handler dependencies.
type Server struct {
	engine   Engine
	runner   *runner.Runner
	sessions *session.Manager
	gatherer prometheus.Gatherer
	logger   *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithRunner enables POST /v1/sessions/{id}/turns.
func WithRunner(r *runner.Runner) Option {
	return func(s *Server) { s.runner = r }
}

// WithSessions enables the session inspection endpoints.
func WithSessions(m *session.Manager) Option {
	return func(s *Server) { s.sessions = m }
}

// WithGatherer serves the given registry on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// NewHandler creates the HTTP handler for the engine.
func NewHandler(engine Engine, opts ...Option) http.Handler {
	s := &Server{engine: engine, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(enableCORS)

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		_, _ = w.Write(rawSpec)
	})
	r.Get("/healthz", s.health)
	r.Get("/info", s.info)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/invocations", s.invoke)
		r.Post("/history", s.history)
		if s.sessions != nil {
			r.Get("/sessions", s.listSessions)
			r.Get("/sessions/{sessionId}", s.getSession)
			r.Delete("/sessions/{sessionId}", s.deleteSession)
		}
		if s.runner != nil {
			r.Post("/sessions/{sessionId}/turns", s.turn)
		}
	})
	return r
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// readInvocation decodes and validates an Invocation body, writing the error response itself.
func (s *Server) readInvocation(w http.ResponseWriter, r *http.Request) (domain.Invocation, bool) {
	var inv domain.Invocation
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "", fmt.Errorf("failed to read body: %w", err))
		return inv, false
	}
	if err := validateBody("Invocation", body); err != nil {
		s.logger.Warn("Invocation rejected by schema", "error", err)
		writeError(w, http.StatusBadRequest, "malformed_input", err)
		return inv, false
	}
	if err := json.Unmarshal(body, &inv); err != nil {
		writeError(w, http.StatusBadRequest, "malformed_input", err)
		return inv, false
	}
	return inv, true
}

func (s *Server) invoke(w http.ResponseWriter, r *http.Request) {
	inv, ok := s.readInvocation(w, r)
	if !ok {
		return
	}

	if strings.Contains(r.Header.Get("Accept"), ndjson) {
		s.invokeStream(w, r, inv)
		return
	}

	envs, err := s.engine.Decide(r.Context(), inv)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if len(envs) == 1 {
		writeJSON(w, http.StatusOK, envs[0])
		return
	}
	writeJSON(w, http.StatusOK, envs)
}

// invokeStream writes envelopes as NDJSON. Failures detected before the first
// envelope still get a proper status code since Invoke writes nothing on error.
func (s *Server) invokeStream(w http.ResponseWriter, r *http.Request, inv domain.Invocation) {
	sw := &lazyHeaderWriter{w: w}
	if err := s.engine.Invoke(r.Context(), inv, stream.NewWriterChannel(sw)); err != nil {
		if sw.started {
			s.logger.Error("Stream interrupted", "error", err)
			return
		}
		writeEngineError(w, err)
	}
}

type lazyHeaderWriter struct {
	w       http.ResponseWriter
	started bool
}

func (l *lazyHeaderWriter) Write(p []byte) (int, error) {
	if !l.started {
		l.w.Header().Set("Content-Type", ndjson)
		l.w.WriteHeader(http.StatusOK)
		l.started = true
	}
	return l.w.Write(p)
}

// Flush is a no-op until the first envelope is written so that a failed
// decision can still set its own status.
func (l *lazyHeaderWriter) Flush() {
	if !l.started {
		return
	}
	if f, ok := l.w.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	inv, ok := s.readInvocation(w, r)
	if !ok {
		return
	}
	msgs, err := s.engine.Reconstruct(inv)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

type turnRequest struct {
	Text                    string            `json:"text"`
	SessionAttributes       map[string]string `json:"sessionAttributes,omitempty"`
	PromptSessionAttributes map[string]string `json:"promptSessionAttributes,omitempty"`
}

type turnResponse struct {
	SessionID string `json:"sessionId"`
	Answer    string `json:"answer"`
	Steps     int    `json:"steps"`
	Blocked   bool   `json:"blocked"`
}

func (s *Server) turn(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "", err)
		return
	}
	if err := validateBody("TurnRequest", body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed_input", err)
		return
	}
	var req turnRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed_input", err)
		return
	}

	res, err := s.runner.Turn(r.Context(), runner.TurnRequest{
		SessionID:               chi.URLParam(r, "sessionId"),
		Text:                    req.Text,
		SessionAttributes:       req.SessionAttributes,
		PromptSessionAttributes: req.PromptSessionAttributes,
	})
	if err != nil {
		switch {
		case errors.Is(err, runner.ErrInputTooLarge), errors.Is(err, runner.ErrInvalidUTF8), errors.Is(err, runner.ErrEmptyInput):
			writeError(w, http.StatusBadRequest, "malformed_input", err)
		default:
			s.logger.Error("Turn failed", "error", err)
			writeError(w, http.StatusBadGateway, domain.ErrorKind(err), errors.New("unable to respond"))
		}
		return
	}
	writeJSON(w, http.StatusOK, turnResponse{
		SessionID: res.SessionID,
		Answer:    res.Answer,
		Steps:     res.Steps,
		Blocked:   res.Blocked,
	})
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	ids, err := s.sessions.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, ids)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	rec, err := s.sessions.Load(r.Context(), chi.URLParam(r, "sessionId"))
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "session_not_found", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Delete(r.Context(), chi.URLParam(r, "sessionId")); err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) info(w http.ResponseWriter, r *http.Request) {
	apiVersion := "unknown"
	if doc, err := GetSwagger(); err == nil && doc.Info != nil {
		apiVersion = doc.Info.Version
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"app":              "tendril-http",
		"version":          strings.TrimSpace(tendril.Version),
		"api_version":      apiVersion,
		"protocol_version": domain.ProtocolVersion,
		"terminal_tool":    s.engine.TerminalTool(),
	})
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// writeEngineError maps core failures: bad input is the caller's fault (422),
// anything else is ours (500).
func writeEngineError(w http.ResponseWriter, err error) {
	kind := domain.ErrorKind(err)
	status := http.StatusUnprocessableEntity
	if kind == "internal" || kind == "channel_closed" {
		status = http.StatusInternalServerError
	}
	writeError(w, status, kind, err)
}

func writeError(w http.ResponseWriter, status int, kind string, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error(), Kind: kind})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		slog.Error("Response encode failed", "error", err)
	}
}
