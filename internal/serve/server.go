// Package serve provides the REST API for submitting and tracking index swaps.
package serve

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/joshlzx/starswap/internal/browser"
	"github.com/joshlzx/starswap/internal/events"
	"github.com/joshlzx/starswap/internal/ledger"
	"github.com/joshlzx/starswap/internal/orch"
)

// Error codes returned in API error envelopes.
const (
	ErrCodeBadRequest    = "BAD_REQUEST"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

type contextKey string

const requestIDKey contextKey = "request_id"

// Server exposes swap orchestration over HTTP.
type Server struct {
	ledger  *ledger.Ledger
	bus     *events.Bus
	manager *orch.Manager
	pool    *browser.Pool
	chrome  browser.ChromeInfo
	creds   *credStore
	logger  *slog.Logger

	startedAt time.Time
	now       func() time.Time
}

// Options configures a Server.
type Options struct {
	Ledger  *ledger.Ledger
	Bus     *events.Bus
	Manager *orch.Manager
	Pool    *browser.Pool
	Chrome  browser.ChromeInfo
	Logger  *slog.Logger
}

// NewServer builds a Server from its collaborators.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		ledger:    opts.Ledger,
		bus:       opts.Bus,
		manager:   opts.Manager,
		pool:      opts.Pool,
		chrome:    opts.Chrome,
		creds:     newCredStore(),
		logger:    logger,
		startedAt: time.Now(),
		now:       time.Now,
	}
}

// Router assembles the chi router with all API routes mounted under /api/v1.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(s.requestID)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		s.registerAuthRoutes(r)
		s.registerSwapRoutes(r)
		s.registerHealthRoutes(r)
	})
	return r
}

// requestID attaches a request ID to each request's context, honoring an
// inbound X-Request-ID header when present.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := context.WithValue(r.Context(), requestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", requestIDFromContext(r.Context()),
		)
	})
}

func requestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

type apiError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

type apiResponse struct {
	Success   bool      `json:"success"`
	Data      any       `json:"data,omitempty"`
	Error     *apiError `json:"error,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeSuccessResponse(w http.ResponseWriter, status int, data any, reqID string) {
	writeJSON(w, status, apiResponse{Success: true, Data: data, RequestID: reqID})
}

func writeErrorResponse(w http.ResponseWriter, status int, code, message string, details map[string]any, reqID string) {
	writeJSON(w, status, apiResponse{
		Success:   false,
		Error:     &apiError{Code: code, Message: message, Details: details},
		RequestID: reqID,
	})
}
