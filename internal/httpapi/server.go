// Package httpapi exposes the simulation controller over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rmacdonaldsmith/dronemesh-go/internal/config"
	"github.com/rmacdonaldsmith/dronemesh-go/internal/simulation"
	"github.com/rmacdonaldsmith/dronemesh-go/pkg/eventlog"
	"github.com/rmacdonaldsmith/dronemesh-go/pkg/packet"
	"go.uber.org/zap"
)

// defaultSecretKey signs tokens when no key is configured. Only fit for local runs.
const defaultSecretKey = "dronemesh-dev-secret-key-change-me"

// Simulation is the part of the controller the API drives
type Simulation interface {
	Nodes() []simulation.NodeInfo
	Edges() []config.Edge
	Health(ctx context.Context) (simulation.Health, error)
	NodeEvents(ctx context.Context, id packet.NodeID, offset int64, max int) ([]simulation.JournalEntry, error)
	Journal() eventlog.EventLog

	Crash(id packet.NodeID) error
	SetPacketDropRate(id packet.NodeID, pdr float64) error
	AddLink(a, b packet.NodeID) error
	RemoveLink(a, b packet.NodeID) error

	SendPacket(from packet.NodeID, p *packet.Packet) error
	SendMessage(route []packet.NodeID, msg []byte) (uint64, error)
	Route(ctx context.Context, from, to packet.NodeID, wait time.Duration) ([]packet.NodeID, error)
	Discover(ctx context.Context, from packet.NodeID, wait time.Duration) ([]packet.PathTrace, error)
}

var _ Simulation = (*simulation.Controller)(nil)

// Config holds server configuration
type Config struct {
	// Listen is the TCP address to serve on, e.g. ":8080"
	Listen string

	// SecretKey signs JWT tokens
	SecretKey string

	// NoAuth skips authentication on non-admin endpoints
	NoAuth bool

	// TokenTTL is the lifetime of issued tokens
	TokenTTL time.Duration

	// PollInterval is how often event streams look for new journal records
	PollInterval time.Duration

	// KeepAlive is the interval between SSE keepalive comments
	KeepAlive time.Duration

	// Logger defaults to a no-op logger
	Logger *zap.Logger
}

// SetDefaults fills in optional fields
func (c *Config) SetDefaults() {
	if c.Listen == "" {
		c.Listen = ":8080"
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 250 * time.Millisecond
	}
	if c.KeepAlive <= 0 {
		c.KeepAlive = 15 * time.Second
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

// Server represents the HTTP API server
type Server struct {
	sim        Simulation
	jwtAuth    *JWTAuth
	handlers   *Handlers
	middleware *Middleware
	server     *http.Server
	logger     *zap.Logger
}

// NewServer creates a new HTTP API server
func NewServer(sim Simulation, config Config) *Server {
	config.SetDefaults()

	secretKey := config.SecretKey
	if secretKey == "" {
		config.Logger.Warn("no http.secret_key configured, using the built-in development key")
		secretKey = defaultSecretKey
	}

	jwtAuth := NewJWTAuth(secretKey, config.TokenTTL)
	s := &Server{
		sim:        sim,
		jwtAuth:    jwtAuth,
		handlers:   NewHandlers(sim, jwtAuth, config),
		middleware: NewMiddleware(jwtAuth, config.Logger, config.NoAuth),
		logger:     config.Logger,
	}

	s.server = &http.Server{
		Addr:           config.Listen,
		Handler:        s.setupRoutes(),
		ReadTimeout:    30 * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1MB
	}
	return s
}

// Handler returns the root handler, for embedding or tests
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start serves until Stop is called. It returns nil after a graceful stop.
func (s *Server) Start() error {
	s.logger.Info("http api listening", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
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
	auth := func(handler http.HandlerFunc) http.Handler {
		return withMiddleware(s.middleware.AuthRequired(handler))
	}
	admin := func(handler http.HandlerFunc) http.Handler {
		return withMiddleware(s.middleware.AdminRequired(handler))
	}

	// No auth
	mux.Handle("POST /api/v1/auth/login", withMiddleware(s.handlers.Login))
	mux.Handle("GET /api/v1/health", withMiddleware(s.handlers.Health))

	// Network inspection and traffic
	mux.Handle("GET /api/v1/nodes", auth(s.handlers.ListNodes))
	mux.Handle("GET /api/v1/nodes/{id}/events", auth(s.handlers.ReadNodeEvents))
	mux.Handle("GET /api/v1/events/stream", auth(s.handlers.StreamEvents))
	mux.Handle("GET /api/v1/links", auth(s.handlers.ListLinks))
	mux.Handle("POST /api/v1/messages", auth(s.handlers.SendMessage))
	mux.Handle("POST /api/v1/packets", auth(s.handlers.SendPacket))
	mux.Handle("POST /api/v1/discover", auth(s.handlers.Discover))

	// Controller commands
	mux.Handle("POST /api/v1/admin/drones/{id}/crash", admin(s.handlers.CrashDrone))
	mux.Handle("PUT /api/v1/admin/drones/{id}/pdr", admin(s.handlers.SetDropRate))
	mux.Handle("POST /api/v1/admin/links", admin(s.handlers.AddLink))
	mux.Handle("DELETE /api/v1/admin/links/{a}/{b}", admin(s.handlers.RemoveLink))
	mux.Handle("GET /api/v1/admin/stats", admin(s.handlers.AdminStats))

	mux.Handle("/", withMiddleware(s.handleRoot))

	return mux
}

// handleRoot provides API information
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, "Not found", http.StatusNotFound)
		return
	}

	info := map[string]interface{}{
		"service":     "DroneMesh controller API",
		"description": "Inspect and drive a simulated drone network",
		"endpoints": map[string]interface{}{
			"auth": map[string]string{
				"login": "POST /api/v1/auth/login",
			},
			"network": map[string]string{
				"nodes":    "GET /api/v1/nodes",
				"events":   "GET /api/v1/nodes/{id}/events?offset={offset}&limit={limit}",
				"stream":   "GET /api/v1/events/stream?node={id}",
				"links":    "GET /api/v1/links",
				"messages": "POST /api/v1/messages",
				"packets":  "POST /api/v1/packets",
				"discover": "POST /api/v1/discover",
			},
			"admin": map[string]string{
				"crash":      "POST /api/v1/admin/drones/{id}/crash",
				"pdr":        "PUT /api/v1/admin/drones/{id}/pdr",
				"addLink":    "POST /api/v1/admin/links",
				"removeLink": "DELETE /api/v1/admin/links/{a}/{b}",
				"stats":      "GET /api/v1/admin/stats",
			},
			"health": "GET /api/v1/health",
		},
		"authentication": "Bearer JWT token required for most endpoints",
	}

	writeJSON(w, info, http.StatusOK)
}

// writeError writes an error response as JSON
func writeError(w http.ResponseWriter, message string, statusCode int) {
	writeJSON(w, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	}, statusCode)
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}
