package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bryanchriswhite/CamWatch/internal/config"
	"github.com/bryanchriswhite/CamWatch/internal/logger"
	"github.com/bryanchriswhite/CamWatch/internal/metrics"
	"github.com/bryanchriswhite/CamWatch/internal/store"
	"github.com/bryanchriswhite/CamWatch/internal/stream"
	"github.com/gorilla/mux"
)

// HealthSource reports live connection health
type HealthSource interface {
	Health() stream.Health
}

// History records and lists accepted source changes
type History interface {
	Record(ctx context.Context, action, address string) error
	Recent(ctx context.Context, limit int) ([]store.SourceEvent, error)
}

// Options are the collaborators the HTTP surface exposes. Only State is
// required; the rest switch their routes off when nil.
type Options struct {
	State   *stream.State
	Health  HealthSource
	Config  *config.Manager
	Viewers http.Handler // websocket broadcast endpoint
	MJPEG   http.Handler
	Metrics *metrics.Metrics
	History History
}

// Server represents the HTTP API server
type Server struct {
	router     *mux.Router
	opts       Options
	httpServer *http.Server
}

// NewServer creates a new API server
func NewServer(opts Options) *Server {
	s := &Server{
		router: mux.NewRouter(),
		opts:   opts,
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	// Stream control
	api.HandleFunc("/stream/source", s.handleSetSource).Methods("POST")
	api.HandleFunc("/stream/stop", s.handleStopSource).Methods("POST")
	api.HandleFunc("/stream/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/stream/health", s.handleStreamHealth).Methods("GET")
	api.HandleFunc("/stream/history", s.handleHistory).Methods("GET")
	if s.opts.Viewers != nil {
		api.Handle("/stream/ws", s.opts.Viewers)
	}

	// Configuration
	api.HandleFunc("/config", s.handleGetConfig).Methods("GET")

	// Health check
	api.HandleFunc("/health", s.handleHealth).Methods("GET")

	// Routes kept for clients of the original server
	s.router.HandleFunc("/set_stream", s.handleLegacySetStream).Methods("POST")
	s.router.HandleFunc("/stop_stream", s.handleStopSource).Methods("POST")
	s.router.HandleFunc("/status", s.handleLegacyStatus).Methods("GET")

	if s.opts.MJPEG != nil {
		s.router.Handle("/stream.mjpeg", s.opts.MJPEG)
	}
	if s.opts.Metrics != nil {
		s.router.Handle("/metrics", s.opts.Metrics.Handler(nil)).Methods("GET")
	}

	s.router.HandleFunc("/", s.handleIndex).Methods("GET")
}

// Handler returns the router wrapped in the middleware chain
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.router
	h = metrics.RequestMiddleware(s.opts.Metrics)(h)
	h = requestLogger(h)
	return enableCORS(h)
}

// Start serves until Shutdown is called
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.WithComponent("api").Info().Str("addr", addr).Msg("Starting HTTP server")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{"ok": false, "error": msg})
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	if s.opts.Config == nil {
		writeError(w, http.StatusNotFound, "configuration not available")
		return
	}
	writeJSON(w, http.StatusOK, s.opts.Config.Get())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": Version,
	})
}
