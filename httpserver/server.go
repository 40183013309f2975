// Package httpserver exposes the sensor buffer, the session history and the
// Prometheus metrics over HTTP for the rest of the host.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cyberinferno/sensorstream/cacher"
	"github.com/cyberinferno/sensorstream/logger"
	"github.com/cyberinferno/sensorstream/tcpserver"
)

// SnapshotKey is the cache key holding the /data copy of the buffer.
const SnapshotKey = "snapshot"

// Snapshotter is the read side of the sensor buffer.
type Snapshotter interface {
	String() string
	LineCount() int
}

// SessionLister reports the listener's session state.
type SessionLister interface {
	Connected() bool
	Sessions() []tcpserver.SessionSummary
}

// Options configures the HTTP server.
type Options struct {
	// Address is the listen address, e.g. "127.0.0.1:9470".
	Address string
	// SnapshotTTL is how long a copy of the buffer is reused by /data.
	SnapshotTTL time.Duration
}

// Server serves /metrics, /healthz, /data and /sessions.
type Server struct {
	server    *http.Server
	addr      net.Addr
	logger    logger.Logger
	snapshots cacher.Cacher[string]
	buffer    Snapshotter
	sessions  SessionLister
	ttl       time.Duration
}

type sessionsResponse struct {
	Connected bool                       `json:"connected"`
	Sessions  []tcpserver.SessionSummary `json:"sessions"`
}

// New builds the HTTP server. Nothing listens until Start.
//
// Parameters:
//   - opts: Listen address and snapshot TTL
//   - gatherer: Registry served on /metrics
//   - snapshots: Cache for buffer copies served on /data
//   - buffer: The shared sensor buffer
//   - sessions: The listener, for /sessions
//   - log: Logger for server lifecycle events
//
// Returns:
//   - A new Server
func New(
	opts Options,
	gatherer prometheus.Gatherer,
	snapshots cacher.Cacher[string],
	buffer Snapshotter,
	sessions SessionLister,
	log logger.Logger,
) *Server {
	s := &Server{
		logger:    log.With(logger.Field{Key: "component", Value: "httpserver"}),
		snapshots: snapshots,
		buffer:    buffer,
		sessions:  sessions,
		ttl:       opts.SnapshotTTL,
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.HandleFunc("/data", s.handleData)
	mux.HandleFunc("/sessions", s.handleSessions)

	s.server = &http.Server{
		Addr:              opts.Address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

// Handler returns the HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start binds the listen address and serves in a background goroutine.
//
// Parameters:
//   - errCh: Receives a serve failure after a successful bind
//
// Returns:
//   - An error if the address cannot be bound
func (s *Server) Start(errCh chan<- error) error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("http server: listen %s: %w", s.server.Addr, err)
	}

	s.addr = ln.Addr()
	s.logger.Info("http server started", logger.Field{Key: "addr", Value: s.addr.String()})

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	return s.addr
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snapshot, err := s.snapshots.GetOrFetch(r.Context(), SnapshotKey, s.ttl, func(context.Context) (string, error) {
		return s.buffer.String(), nil
	})
	if err != nil {
		s.logger.Warn("snapshot cache failed, serving buffer directly", logger.Field{Key: "error", Value: err.Error()})
		snapshot = s.buffer.String()
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(len(snapshot)))
	_, _ = w.Write([]byte(snapshot))
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	resp := sessionsResponse{
		Connected: s.sessions.Connected(),
		Sessions:  s.sessions.Sessions(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error("encode sessions failed", logger.Field{Key: "error", Value: err.Error()})
	}
}
