// Package http exposes the flow editor, the inbound channel endpoint and the monitor over HTTP.
package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/aretw0/flujos"
	"github.com/aretw0/flujos/internal/logging"
	"github.com/aretw0/flujos/internal/runtime"
	"github.com/aretw0/flujos/pkg/domain"
	"github.com/aretw0/flujos/pkg/flows"
	"github.com/aretw0/flujos/pkg/monitor"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// maxBodyBytes bounds every request body.
const maxBodyBytes = 1 << 20

// Config wires the handler to the application services.
type Config struct {
	Flows  *flows.Service
	Engine *flujos.Engine
	// Metrics serves GET /metrics. Defaults to the global Prometheus registry.
	Metrics http.Handler
	// OnInbound is called with the matcher decision of every handled inbound message.
	OnInbound func(decision string)
	Logger    *slog.Logger
}

// Server holds the request handlers.
type Server struct {
	flows     *flows.Service
	engine    *flujos.Engine
	monitor   *monitor.Service
	streams   *StreamManager
	onInbound func(string)
	logger    *slog.Logger
}

// NewHandler creates the HTTP handler.
func NewHandler(cfg Config) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = promhttp.Handler()
	}
	s := &Server{
		flows:     cfg.Flows,
		engine:    cfg.Engine,
		monitor:   cfg.Engine.Monitor(),
		streams:   NewStreamManager(logger),
		onInbound: cfg.OnInbound,
		logger:    logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(enableCORS)

	r.Get("/health", s.GetHealth)
	r.Method(http.MethodGet, "/metrics", metrics)

	r.Route("/flows", func(r chi.Router) {
		r.Post("/", s.CreateFlow)
		r.Get("/", s.ListFlows)
		r.Post("/validate", s.ValidateFlow)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.GetFlow)
			r.Delete("/", s.DeleteFlow)
			r.Get("/mermaid", s.FlowMermaid)
			r.Put("/graph", s.UpdateGraph)
			r.Put("/trigger", s.UpdateTrigger)
			r.Post("/activate", s.ActivateFlow)
			r.Post("/pause", s.PauseFlow)
			r.Post("/duplicate", s.DuplicateFlow)
			r.Post("/layout", s.LayoutFlow)
		})
	})

	r.Post("/inbound", s.Inbound)

	r.Route("/instances", func(r chi.Router) {
		r.Get("/", s.ListInstances)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.GetInstance)
			r.Get("/logs", s.InstanceLogs)
			r.Get("/replay", s.InstanceReplay)
			r.Get("/events", s.SubscribeEvents)
			r.Post("/detener", s.Detener)
			r.Post("/respond", s.Respond)
			r.Post("/close", s.CloseHandoff)
			r.Post("/resume", s.ResumeHandoff)
		})
	})

	return r
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error      string            `json:"error"`
	Violations []flows.Violation `json:"violations,omitempty"`
}

func statusOf(err error) int {
	switch {
	case flows.Violations(err) != nil:
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrFlowNotFound), errors.Is(err, domain.ErrInstanceNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrVersionConflict),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrInstanceClosed):
		return http.StatusConflict
	case errors.Is(err, flujos.ErrUnsupportedCanal),
		errors.Is(err, flujos.ErrMissingUsuario),
		errors.Is(err, flujos.ErrInputTooLarge),
		errors.Is(err, flujos.ErrInvalidUTF8),
		errors.Is(err, runtime.ErrNodeMissing):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	} else {
		s.logger.DebugContext(r.Context(), "request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, errorBody{Error: err.Error(), Violations: flows.Violations(err)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// decode reads a JSON body into v, answering 400 on failure.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body: " + err.Error()})
		return false
	}
	return true
}

// GetHealth handles GET /health.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func queryInt(r *http.Request, key string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
