// Package tcpserver implements the single-client sensor stream listener. A
// SensorServer accepts one TCP connection at a time and hands it to a
// Receiver, which appends every newline-delimited record to a shared Sink
// until the sender signals END, goes idle, or the connection fails.
package tcpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/cyberinferno/sensorstream/idgenerator"
	"github.com/cyberinferno/sensorstream/logger"
	"github.com/cyberinferno/sensorstream/safemap"
)

const (
	// DefaultIdleTimeout is how long a connection may stay silent before it
	// is closed.
	DefaultIdleTimeout = 10 * time.Second
	// DefaultPollInterval is how often the listener checks for a free slot.
	DefaultPollInterval = time.Second
	// DefaultHistorySize is the number of finished sessions kept by Sessions.
	DefaultHistorySize = 64
)

var (
	// ErrBind is returned when the listening endpoint cannot be bound.
	ErrBind = errors.New("bind failed")
	// ErrAlreadyRunning is returned by Start when the server is already
	// listening. Nothing is changed in that case.
	ErrAlreadyRunning = errors.New("server already running")
)

// Sink receives the records read from the wire. Implementations must make
// each AppendLine atomic with respect to their readers.
type Sink interface {
	AppendLine(line string)
}

// Config holds the listener settings.
type Config struct {
	// Host is the interface to bind; empty means all interfaces.
	Host string
	// Port is the TCP port to bind; 0 picks a free port.
	Port int
	// IdleTimeout closes a connection that sends nothing for this long.
	IdleTimeout time.Duration
	// PollInterval is the delay between checks for a free connection slot.
	PollInterval time.Duration
	// HistorySize caps the number of finished sessions kept in memory.
	HistorySize int
}

// DefaultConfig returns a Config for port with the default timings.
func DefaultConfig(port int) Config {
	return Config{
		Port:         port,
		IdleTimeout:  DefaultIdleTimeout,
		PollInterval: DefaultPollInterval,
		HistorySize:  DefaultHistorySize,
	}
}

func (c Config) withDefaults() Config {
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.HistorySize <= 0 {
		c.HistorySize = DefaultHistorySize
	}

	return c
}

// Option customizes a SensorServer.
type Option func(*SensorServer)

// WithRecorder sets the Recorder notified of session lifecycle events.
func WithRecorder(r Recorder) Option {
	return func(s *SensorServer) {
		if r != nil {
			s.recorder = r
		}
	}
}

// SensorServer owns the bound endpoint and admits at most one connection at a
// time. It is safe for concurrent use; Start and Stop may be called from any
// goroutine.
type SensorServer struct {
	cfg      Config
	sink     Sink
	logger   logger.Logger
	recorder Recorder
	ids      *idgenerator.IdGenerator
	history  *safemap.SafeMap[uint32, SessionSummary]

	// lifecycle serializes Start and Stop, including the drain in Stop.
	lifecycle sync.Mutex

	mu       sync.Mutex
	listener net.Listener
	addr     net.Addr
	running  bool
	current  *Receiver
	cancel   context.CancelFunc
	loopDone chan struct{}
	sessions sync.WaitGroup
}

// New binds the endpoint described by cfg and returns a stopped server.
// Listening begins with Start.
//
// Parameters:
//   - cfg: Listener settings; zero timings fall back to the defaults
//   - sink: Destination for received records, owned by the caller
//   - log: Logger for lifecycle events
//   - opts: Optional settings such as WithRecorder
//
// Returns:
//   - The server, or an error wrapping ErrBind if the endpoint cannot be bound
func New(cfg Config, sink Sink, log logger.Logger, opts ...Option) (*SensorServer, error) {
	if sink == nil {
		return nil, errors.New("tcpserver: sink must not be nil")
	}
	if log == nil {
		log = logger.NewNopLogger()
	}

	s := &SensorServer{
		cfg:      cfg.withDefaults(),
		sink:     sink,
		logger:   log.With(logger.Field{Key: "component", Value: "tcpserver"}),
		recorder: nopRecorder{},
		ids:      idgenerator.NewIdGenerator(0),
		history:  safemap.NewSafeMap[uint32, SessionSummary](),
	}

	for _, opt := range opts {
		opt(s)
	}

	ln, err := s.bind(net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port)))
	if err != nil {
		return nil, err
	}

	s.listener = ln
	s.addr = ln.Addr()
	return s, nil
}

// Start launches the accept loop. A server stopped earlier is rebound to the
// address it was first bound to. Start called while Stop is draining waits
// for Stop to return.
//
// Returns:
//   - ErrAlreadyRunning if the server is listening, an error wrapping ErrBind
//     if rebinding fails, or nil
func (s *SensorServer) Start() error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		s.logger.Warn("server already running", logger.Field{Key: "addr", Value: s.addr.String()})
		return ErrAlreadyRunning
	}

	if s.listener == nil {
		ln, err := s.bind(s.addr.String())
		if err != nil {
			return err
		}

		s.listener = ln
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.running = true
	s.loopDone = make(chan struct{})

	s.logger.Info("listening started",
		logger.Field{Key: "addr", Value: s.addr.String()},
		logger.Field{Key: "idle_timeout", Value: s.cfg.IdleTimeout.String()},
		logger.Field{Key: "poll_interval", Value: s.cfg.PollInterval.String()},
	)
	go s.acceptLoop(ctx, s.listener, s.loopDone)

	return nil
}

// Stop closes the endpoint and any active connection, then waits for the
// accept loop and the receiver to return. Calling Stop on a stopped server
// only releases the endpoint if one is still bound. A Stop that overlaps
// another waits until the first has drained.
func (s *SensorServer) Stop() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	if !s.running {
		s.closeListener()
		s.mu.Unlock()
		return
	}

	s.running = false
	s.cancel()
	s.closeListener()
	loopDone := s.loopDone
	s.mu.Unlock()

	<-loopDone
	s.sessions.Wait()

	s.logger.Info("server stopped", logger.Field{Key: "addr", Value: s.addr.String()})
}

// Addr returns the address the server was bound to.
func (s *SensorServer) Addr() net.Addr {
	return s.addr
}

// Running reports whether the accept loop is active.
func (s *SensorServer) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.running
}

// Connected reports whether a client currently occupies the slot.
func (s *SensorServer) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.current != nil
}

// Sessions returns the most recent finished sessions, oldest first.
func (s *SensorServer) Sessions() []SessionSummary {
	sessions := s.history.Values()
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].ID < sessions[j].ID
	})

	return sessions
}

func (s *SensorServer) bind(addr string) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.logger.Error("bind failed", logger.Field{Key: "addr", Value: addr}, logger.Field{Key: "error", Value: err.Error()})
		return nil, fmt.Errorf("%w: %s: %w", ErrBind, addr, err)
	}

	return ln, nil
}

// closeListener must be called with s.mu held.
func (s *SensorServer) closeListener() {
	if s.listener == nil {
		return
	}

	if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		s.logger.Error("listener close failed", logger.Field{Key: "error", Value: err.Error()})
	}

	s.listener = nil
}

// acceptLoop admits one connection whenever the slot is free, checking every
// PollInterval. It is the only goroutine that fills the slot, so a free slot
// stays free until the next Accept returns.
func (s *SensorServer) acceptLoop(ctx context.Context, ln net.Listener, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if !s.Connected() {
			conn, err := ln.Accept()
			switch {
			case err == nil:
				s.dispatch(ctx, conn)
			case ctx.Err() != nil:
				return
			default:
				s.logger.Error("accept failed", logger.Field{Key: "error", Value: err.Error()})
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *SensorServer) dispatch(ctx context.Context, conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		_ = conn.Close()
		return
	}

	id := s.ids.Id()
	r := newReceiver(id, conn, s.sink, s.cfg.IdleTimeout, s.logger, s.recorder, s.release)
	s.current = r
	s.sessions.Add(1)

	go func() {
		defer s.sessions.Done()
		r.Run(ctx)
	}()
}

// release frees the slot held by r and records its summary. The connection
// is already closed when release runs.
func (s *SensorServer) release(r *Receiver, summary SessionSummary) {
	s.history.Store(summary.ID, summary)
	if limit := uint32(s.cfg.HistorySize); summary.ID > limit {
		s.history.Delete(summary.ID - limit)
	}

	s.mu.Lock()
	if s.current == r {
		s.current = nil
	}
	s.mu.Unlock()
}
