package facade

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"iris/internal/logger"
	"iris/internal/power"
	"iris/internal/tv"
	"iris/internal/webos"
)

// Controller is the command surface the facade marshals over HTTP. It holds
// all control flow; the facade only translates requests and error kinds.
type Controller interface {
	PowerOnViaNetwork() error
	PowerOnViaSession(ctx context.Context, verify bool) error
	PowerOff(ctx context.Context) error
	Status(ctx context.Context) (*tv.Status, error)
	Diagnostics(ctx context.Context) tv.Diagnostics
	CurrentApp(ctx context.Context) (*webos.ForegroundApp, error)
	ListApps(ctx context.Context) ([]webos.App, error)
	LaunchApp(ctx context.Context, appID string) (string, error)
	SendButton(ctx context.Context, name string) error
	BeginPairing(ctx context.Context) error
	SessionState() string
	Paired() bool
}

// Server handles REST API requests.
type Server struct {
	controller Controller
	config     *Config
	logger     zerolog.Logger
	server     *http.Server
}

// NewServer creates a new facade server.
func NewServer(controller Controller, config *Config) *Server {
	return &Server{
		controller: controller,
		config:     config,
		logger:     logger.New(),
	}
}

// Router builds the HTTP routing table.
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()

	// Add middleware
	router.Use(s.loggingMiddleware)
	router.Use(s.corsMiddleware)

	api := router.PathPrefix("/api/v1").Subrouter()

	// Power operations
	api.HandleFunc("/power", s.handlePowerOn).Methods("POST")
	api.HandleFunc("/power/session", s.handlePowerOnSession).Methods("POST")
	api.HandleFunc("/poweroff", s.handlePowerOff).Methods("POST")

	// Status and apps
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/apps", s.handleListApps).Methods("GET")
	api.HandleFunc("/apps/current", s.handleCurrentApp).Methods("GET")
	api.HandleFunc("/apps/launch", s.handleLaunchApp).Methods("POST")

	// Remote control
	api.HandleFunc("/remote/button", s.handleSendButton).Methods("POST")

	// First-time pairing
	api.HandleFunc("/setup", s.handleSetup).Methods("POST")

	// Health check
	api.HandleFunc("/health", s.handleHealth).Methods("GET")

	return router
}

// Start starts the HTTP server. Write timeout covers the longest legitimate
// wait (pairing prompt, power-on verification), hence the generous default.
func (s *Server) Start() error {
	timeout := s.config.GetServerTimeout()

	s.server = &http.Server{
		Addr:         s.config.Server.Address,
		Handler:      s.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: timeout,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info().
		Str("address", s.config.Server.Address).
		Msg("Starting facade server")

	return s.server.ListenAndServe()
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// Middleware
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("API request")
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Response helpers
func (s *Server) sendJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) sendError(w http.ResponseWriter, status int, code, message string) {
	s.sendJSON(w, status, map[string]interface{}{
		"ok":        false,
		"error":     code,
		"message":   message,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// sendFailure maps an error kind to its stable code and status. Every kind
// stays distinguishable so a caller can tell "unreachable" from "needs
// pairing" from "still booting".
func (s *Server) sendFailure(w http.ResponseWriter, err error) {
	code, status := classify(err)
	s.sendError(w, status, code, err.Error())
}

// classify maps the error taxonomy to (code, HTTP status).
func classify(err error) (string, int) {
	switch {
	case errors.Is(err, webos.ErrConnectivity):
		return "tv_unreachable", http.StatusBadGateway
	case errors.Is(err, webos.ErrPairingTimeout):
		return "pairing_timeout", http.StatusGatewayTimeout
	case errors.Is(err, webos.ErrPairingRejected):
		return "pairing_rejected", http.StatusForbidden
	case errors.Is(err, webos.ErrCommandTimeout):
		return "command_timeout", http.StatusGatewayTimeout
	case errors.Is(err, power.ErrVerifyTimeout):
		return "power_verify_timeout", http.StatusGatewayTimeout
	case errors.Is(err, webos.ErrProtocol):
		return "protocol_error", http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return "command_timeout", http.StatusGatewayTimeout
	default:
		return "internal_error", http.StatusInternalServerError
	}
}

// Power endpoints

func (s *Server) handlePowerOn(w http.ResponseWriter, r *http.Request) {
	if err := s.controller.PowerOnViaNetwork(); err != nil {
		s.sendFailure(w, err)
		return
	}

	s.sendJSON(w, http.StatusOK, map[string]interface{}{
		"ok":     true,
		"method": "wake_on_lan",
	})
}

type powerSessionRequest struct {
	Verify *bool `json:"verify"`
}

func (s *Server) handlePowerOnSession(w http.ResponseWriter, r *http.Request) {
	verify := s.config.Power.VerifyDefault
	if r.Body != nil {
		var req powerSessionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil && req.Verify != nil {
			verify = *req.Verify
		}
	}

	if err := s.controller.PowerOnViaSession(r.Context(), verify); err != nil {
		s.sendFailure(w, err)
		return
	}

	s.sendJSON(w, http.StatusOK, map[string]interface{}{
		"ok":       true,
		"method":   "session",
		"verified": verify,
	})
}

func (s *Server) handlePowerOff(w http.ResponseWriter, r *http.Request) {
	if err := s.controller.PowerOff(r.Context()); err != nil {
		s.sendFailure(w, err)
		return
	}

	s.sendJSON(w, http.StatusOK, map[string]interface{}{
		"ok": true,
	})
}

// Status and app endpoints

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.controller.Status(r.Context())
	if err != nil {
		// Failed status still reports what can be seen from the outside.
		code, httpStatus := classify(err)
		s.sendJSON(w, httpStatus, map[string]interface{}{
			"ok":          false,
			"error":       code,
			"message":     err.Error(),
			"diagnostics": s.controller.Diagnostics(r.Context()),
		})
		return
	}

	s.sendJSON(w, http.StatusOK, map[string]interface{}{
		"ok":     true,
		"status": status,
	})
}

func (s *Server) handleListApps(w http.ResponseWriter, r *http.Request) {
	apps, err := s.controller.ListApps(r.Context())
	if err != nil {
		s.sendFailure(w, err)
		return
	}

	s.sendJSON(w, http.StatusOK, map[string]interface{}{
		"ok":   true,
		"apps": apps,
	})
}

func (s *Server) handleCurrentApp(w http.ResponseWriter, r *http.Request) {
	app, err := s.controller.CurrentApp(r.Context())
	if err != nil {
		s.sendFailure(w, err)
		return
	}

	s.sendJSON(w, http.StatusOK, map[string]interface{}{
		"ok":  true,
		"app": app,
	})
}

type launchRequest struct {
	AppID string `json:"app_id"`
}

func (s *Server) handleLaunchApp(w http.ResponseWriter, r *http.Request) {
	var req launchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid_request", "Request body must be JSON")
		return
	}

	launched, err := s.controller.LaunchApp(r.Context(), req.AppID)
	if err != nil {
		s.sendFailure(w, err)
		return
	}

	s.sendJSON(w, http.StatusOK, map[string]interface{}{
		"ok":     true,
		"app_id": launched,
	})
}

// Remote control

type buttonRequest struct {
	Button string `json:"button"`
}

func (s *Server) handleSendButton(w http.ResponseWriter, r *http.Request) {
	var req buttonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Button == "" {
		s.sendError(w, http.StatusBadRequest, "invalid_request", "Request body must be JSON with a button field")
		return
	}

	if _, ok := webos.ButtonCode(req.Button); !ok {
		s.sendError(w, http.StatusBadRequest, "unknown_button", "Unsupported button: "+req.Button)
		return
	}

	if err := s.controller.SendButton(r.Context(), req.Button); err != nil {
		s.sendFailure(w, err)
		return
	}

	s.sendJSON(w, http.StatusOK, map[string]interface{}{
		"ok":     true,
		"button": req.Button,
	})
}

// Pairing

func (s *Server) handleSetup(w http.ResponseWriter, r *http.Request) {
	if err := s.controller.BeginPairing(r.Context()); err != nil {
		code, status := classify(err)
		message := err.Error()
		if errors.Is(err, webos.ErrPairingTimeout) {
			message = "Pairing prompt was not accepted on the TV in time. Run setup again and accept the prompt."
		}
		s.sendError(w, status, code, message)
		return
	}

	s.sendJSON(w, http.StatusOK, map[string]interface{}{
		"ok":      true,
		"session": s.controller.SessionState(),
		"paired":  s.controller.Paired(),
	})
}

// Health check

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "healthy",
		"service":     "iris",
		"diagnostics": s.controller.Diagnostics(r.Context()),
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	})
}
