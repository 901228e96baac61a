// Package gateway is the transport adapter spec.md §1 calls an
// "external duplex byte-stream server": it accepts WebSocket
// connections, upgrades them, reads the role off the handshake, and
// drives each connection's Session loop. Routing and authorization
// live one layer down in internal/broker and internal/validate.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/relaybus/internal/broker"
	"github.com/nextlevelbuilder/relaybus/internal/config"
	"github.com/nextlevelbuilder/relaybus/internal/policy"
	"github.com/nextlevelbuilder/relaybus/internal/store"
	"github.com/nextlevelbuilder/relaybus/internal/telemetry"
)

// Server accepts WebSocket connections on /ws and exposes a health
// endpoint. It holds the broker and the live compiled policy — the
// policy is stored behind an atomic pointer so a hot-reload (see
// internal/config's watcher) can swap it without a lock on the hot
// path of every frame.
type Server struct {
	cfg    *config.Config
	broker *broker.Broker
	logger *slog.Logger
	audit  store.AuditStore
	tracer *telemetry.Provider

	currentPolicyPtr atomic.Pointer[policy.Policy]

	upgrader    websocket.Upgrader
	rateLimiter *RateLimiter

	mu      sync.RWMutex
	clients map[string]*Client

	httpServer *http.Server
	mux        *http.ServeMux
}

// NewServer constructs a Server bound to cfg and b, starting with the
// given compiled policy. audit and tracer may both be nil — a nil
// audit store means connect/disconnect/delivery-failure events are
// simply not recorded, and a nil tracer disables spans.
func NewServer(cfg *config.Config, b *broker.Broker, p *policy.Policy, logger *slog.Logger, audit store.AuditStore, tracer *telemetry.Provider) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:         cfg,
		broker:      b,
		logger:      logger,
		audit:       audit,
		tracer:      tracer,
		rateLimiter: NewRateLimiter(cfg.Gateway.RateLimitRPS, cfg.Gateway.RateLimitBurst),
		clients:     make(map[string]*Client),
	}
	s.currentPolicyPtr.Store(p)
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// currentPolicy returns the policy in effect for newly arriving and
// in-flight frames. Safe for concurrent use with SetPolicy.
func (s *Server) currentPolicy() *policy.Policy {
	return s.currentPolicyPtr.Load()
}

// SetPolicy atomically swaps the live policy, used by the
// internal/config file watcher on a successful hot-reload. Connections
// accepted afterwards validate against the new policy. Connections
// already established keep validating against the policy their Session
// was created with; only their payload decoding uses the new one.
func (s *Server) SetPolicy(p *policy.Policy) {
	s.currentPolicyPtr.Store(p)
	s.logger.Info("gateway: policy reloaded")
}

// checkOrigin validates the WebSocket handshake's Origin header against
// the configured allow-list. No configured origins means allow all
// (the common single-operator deployment); a non-browser client with no
// Origin header is always allowed.
func (s *Server) checkOrigin(r *http.Request) bool {
	allowed := s.cfg.Gateway.AllowedOrigins
	if len(allowed) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, a := range allowed {
		if origin == a || a == "*" {
			return true
		}
	}
	s.logger.Warn("gateway: rejected origin", "origin", origin)
	return false
}

// BuildMux constructs and caches the HTTP mux serving /ws and /health.
func (s *Server) BuildMux() *http.ServeMux {
	if s.mux != nil {
		return s.mux
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	s.mux = mux
	return mux
}

// Start runs the HTTP server until ctx is canceled, then shuts down
// gracefully within a bounded window.
func (s *Server) Start(ctx context.Context) error {
	mux := s.BuildMux()
	addr := fmt.Sprintf("%s:%d", s.cfg.Gateway.Host, s.cfg.Gateway.Port)
	s.httpServer = &http.Server{Addr: addr, Handler: mux}

	s.logger.Info("gateway: listening", "addr", addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("gateway server: %w", err)
	}
	return nil
}

// handleWebSocket upgrades the connection, reads the role off the
// query string (spec.md §9's resolution of how role reaches the
// broker — the wire vocabulary has no connect frame), and runs the
// client's read/write pumps until it disconnects.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	role := r.URL.Query().Get("role")
	if role == "" {
		http.Error(w, "missing role query parameter", http.StatusBadRequest)
		return
	}
	if !s.currentPolicy().HasRole(role) {
		http.Error(w, fmt.Sprintf("unknown role %q", role), http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("gateway: upgrade failed", "error", err)
		return
	}

	client := NewClient(conn, role, s.currentPolicy(), s.broker, s)
	s.registerClient(client)
	defer s.unregisterClient(client)

	go client.writePump()
	client.readPump(s.rateLimiter)
}

// handleHealth reports liveness plus a coarse view of broker load,
// useful for the doctor CLI and uptime probes alike.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	connected := len(s.clients)
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status":"ok","connections":%d,"channels":%d}`, connected, len(s.broker.Stats()))
}

func (s *Server) registerClient(c *Client) {
	s.mu.Lock()
	s.clients[c.id] = c
	s.mu.Unlock()
	s.logger.Info("gateway: client connected", "conn", c.id, "role", c.role)
	if s.audit != nil {
		if err := s.audit.RecordConnect(context.Background(), c.id, c.role); err != nil {
			s.logger.Warn("gateway: audit record connect failed", "error", err)
		}
	}
}

func (s *Server) unregisterClient(c *Client) {
	s.mu.Lock()
	delete(s.clients, c.id)
	s.mu.Unlock()
	s.logger.Info("gateway: client disconnected", "conn", c.id, "role", c.role)
}

// recordDisconnect is called by Client.close with ownedChannels taken
// before the session tore its broker bindings down, so it still
// reflects what the connection was doing at the moment it dropped.
func (s *Server) recordDisconnect(connID string, ownedChannels []string) {
	if s.audit == nil {
		return
	}
	if err := s.audit.RecordDisconnect(context.Background(), connID, ownedChannels); err != nil {
		s.logger.Warn("gateway: audit record disconnect failed", "error", err)
	}
}

// recordDeliveryFailure is called by a Client when a frame it
// submitted was rejected, for reporting via doctor/Snapshot. Rejection
// here means validation failure, not a transport-level send failure —
// those are logged by internal/broker itself.
func (s *Server) recordDeliveryFailure(connID, channel, reason string) {
	if s.audit == nil {
		return
	}
	if err := s.audit.RecordDeliveryFailure(context.Background(), connID, channel, reason); err != nil {
		s.logger.Warn("gateway: audit record delivery failure failed", "error", err)
	}
}
