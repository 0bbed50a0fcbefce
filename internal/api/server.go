// Package api serves the gateway's HTTP surface: a streaming chat
// endpoint (SSE), abort control, conversation history, and health.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/hearthside-ai/hearthside/internal/buildinfo"
	"github.com/hearthside-ai/hearthside/internal/connwatch"
	"github.com/hearthside-ai/hearthside/internal/conversation"
	"github.com/hearthside-ai/hearthside/internal/homeassistant"
	"github.com/hearthside-ai/hearthside/internal/intent"
	"github.com/hearthside-ai/hearthside/internal/llm"
	"github.com/hearthside-ai/hearthside/internal/orchestrator"
)

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// Options wires the server's collaborators.
type Options struct {
	Address string
	Port    int

	Providers     *llm.Providers
	Classifier    *intent.Classifier
	Orchestrator  *orchestrator.Orchestrator
	HA            *homeassistant.Client
	Conversations *conversation.Store

	// HAWatch, when set, answers the health endpoint from its cached
	// status instead of a live ping. Optional.
	HAWatch *connwatch.Watcher

	// DefaultProvider and DefaultModel apply when neither the request
	// nor the stored selection names one.
	DefaultProvider string
	DefaultModel    string

	// Activity receives chat progress for external surfaces (the MQTT
	// publisher). Optional.
	Activity ActivityNotifier

	Logger *slog.Logger
}

// ActivityNotifier mirrors chat progress to an external surface.
type ActivityNotifier interface {
	Activity(session, state, detail string)
}

// Server is the HTTP API server.
type Server struct {
	opts   Options
	logger *slog.Logger
	server *http.Server

	mu       sync.Mutex
	sessions map[string]*session
}

// NewServer creates the API server. Call Start to serve.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		opts:     opts,
		logger:   logger.With("component", "api"),
		sessions: make(map[string]*session),
	}
}

// Handler builds the route table. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("POST /api/chat/abort", s.handleAbort)

	mux.HandleFunc("GET /api/conversations", s.handleConversationList)
	mux.HandleFunc("GET /api/conversations/{id}", s.handleConversationGet)
	mux.HandleFunc("DELETE /api/conversations/{id}", s.handleConversationDelete)

	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /", s.handleRoot)

	return s.withLogging(mux)
}

// Start begins serving HTTP requests.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.opts.Address, s.opts.Port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second, // long for streaming responses
	}

	addr := s.opts.Address
	if addr == "" {
		addr = "0.0.0.0"
	}
	s.logger.Info("starting API server", "address", addr, "port", s.opts.Port)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{
		"name":    "Hearthside",
		"version": buildinfo.Version,
		"status":  "ok",
	}, s.logger)
}

// handleHealth reports platform reachability and provider configuration
// so an install can be sanity-checked with one request.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	haStatus := "ok"
	if s.opts.HAWatch != nil {
		if !s.opts.HAWatch.IsReady() {
			haStatus = "unreachable"
		}
	} else {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := s.opts.HA.Ping(ctx); err != nil {
			haStatus = "unreachable"
			s.logger.Warn("health check: platform unreachable", "error", err)
		}
	}

	providers := s.opts.Providers.Names()
	status := "ok"
	if haStatus != "ok" || len(providers) == 0 {
		status = "degraded"
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"status":         status,
		"home_assistant": haStatus,
		"providers":      providers,
		"version":        buildinfo.Version,
	}, s.logger)
}

func (s *Server) errorResponse(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	writeJSON(w, map[string]any{
		"error": map[string]any{
			"message": message,
			"code":    code,
		},
	}, s.logger)
}

func parseIntParam(r *http.Request, name string, defaultVal int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return defaultVal
	}
	return n
}
