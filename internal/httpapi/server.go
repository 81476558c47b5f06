package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrAlreadyStarted is returned when Start is called twice
var ErrAlreadyStarted = errors.New("admin API already started")

// Server represents the admin HTTP API server
type Server struct {
	handlers   *Handlers
	middleware *Middleware
	server     *http.Server
	logger     zerolog.Logger

	mu       sync.Mutex
	listener net.Listener
}

// Config holds server configuration
type Config struct {
	Address string
	Logger  zerolog.Logger
}

// NewServer creates a new admin API server
func NewServer(h Hub, config Config) *Server {
	logger := config.Logger.With().Str("component", "httpapi").Logger()

	server := &Server{
		handlers:   NewHandlers(h, logger),
		middleware: NewMiddleware(logger),
		logger:     logger,
	}

	server.server = &http.Server{
		Addr:              config.Address,
		Handler:           server.setupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1MB
	}
	return server
}

// Handler returns the routed handler, middleware included
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start binds the configured address and serves in the background.
// Bind errors are returned here.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return ErrAlreadyStarted
	}
	l, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return err
	}
	s.listener = l

	go func() {
		if err := s.server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("Admin API stopped unexpectedly")
		}
	}()
	s.logger.Info().Str("address", l.Addr().String()).Msg("Admin API listening")
	return nil
}

// Addr returns the bound address, or nil before Start
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() http.Handler {
	mux := http.NewServeMux()

	withMiddleware := func(handler http.HandlerFunc) http.Handler {
		return s.middleware.Recovery(
			s.middleware.Logging(
				s.middleware.CORS(
					s.middleware.ContentType(handler))))
	}

	mux.Handle("/api/v1/events", withMiddleware(s.method(http.MethodPost, s.handlers.PublishEvent)))
	mux.Handle("/api/v1/admin/subscriptions", withMiddleware(s.method(http.MethodGet, s.handlers.AdminListSubscriptions)))
	mux.Handle("/api/v1/admin/stats", withMiddleware(s.method(http.MethodGet, s.handlers.AdminGetStats)))
	mux.Handle("/api/v1/health", withMiddleware(s.method(http.MethodGet, s.handlers.Health)))
	mux.Handle("/", withMiddleware(s.handleRoot))

	return mux
}

// method rejects requests that do not use the given HTTP method
func (s *Server) method(method string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			w.Header().Set("Allow", method)
			s.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		next(w, r)
	}
}

// handleRoot provides API information
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		s.writeError(w, "Not found", http.StatusNotFound)
		return
	}

	info := map[string]interface{}{
		"service":     "EventHub admin API",
		"description": "Administration and internal publishing for the EventHub pub/sub hub",
		"endpoints": map[string]string{
			"publish":       "POST /api/v1/events",
			"subscriptions": "GET /api/v1/admin/subscriptions",
			"stats":         "GET /api/v1/admin/stats",
			"health":        "GET /api/v1/health",
		},
	}
	s.writeJSON(w, info, http.StatusOK)
}

// writeError writes an error response as JSON
func (s *Server) writeError(w http.ResponseWriter, message string, statusCode int) {
	s.writeJSON(w, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	}, statusCode)
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Debug().Err(err).Msg("Failed to write response")
	}
}
