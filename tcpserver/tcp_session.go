package tcpserver

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cyberinferno/sensorstream/logger"
)

// Sentinel is the line a sender writes to end its session.
const Sentinel = "END"

// EndCause tells why a session ended.
type EndCause int

const (
	EndSentinel       EndCause = iota // Sender wrote the END line
	EndTimeout                        // Nothing was received within the idle timeout
	EndPeerClosed                     // Sender closed the connection without END
	EndTransportError                 // Any other read failure
	EndShutdown                       // The server was stopped
)

// String returns the cause name used in logs and metrics labels.
func (c EndCause) String() string {
	switch c {
	case EndSentinel:
		return "sentinel"
	case EndTimeout:
		return "timeout"
	case EndPeerClosed:
		return "peer_closed"
	case EndTransportError:
		return "transport_error"
	case EndShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// MarshalText encodes the cause by name.
func (c EndCause) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// SessionSummary describes one finished connection.
type SessionSummary struct {
	ID         uint32    `json:"id"`
	RemoteAddr string    `json:"remote_addr"`
	Lines      int       `json:"lines"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
	Cause      EndCause  `json:"cause"`
	Error      string    `json:"error,omitempty"`
}

// Receiver reads records from one accepted connection into the Sink. It owns
// the connection and closes it exactly once when Run returns.
type Receiver struct {
	id          uint32
	conn        net.Conn
	sink        Sink
	idleTimeout time.Duration
	logger      logger.Logger
	recorder    Recorder
	onExit      func(*Receiver, SessionSummary)

	closeOnce sync.Once
	stopping  atomic.Bool
	startedAt time.Time
	lines     int
}

func newReceiver(
	id uint32,
	conn net.Conn,
	sink Sink,
	idleTimeout time.Duration,
	log logger.Logger,
	recorder Recorder,
	onExit func(*Receiver, SessionSummary),
) *Receiver {
	return &Receiver{
		id:          id,
		conn:        conn,
		sink:        sink,
		idleTimeout: idleTimeout,
		logger: log.With(
			logger.Field{Key: "session_id", Value: id},
			logger.Field{Key: "remote_addr", Value: conn.RemoteAddr().String()},
		),
		recorder: recorder,
		onExit:   onExit,
	}
}

// Run reads lines until the sentinel, the idle timeout, a read error or the
// cancellation of ctx, then closes the connection and reports the session.
func (r *Receiver) Run(ctx context.Context) {
	r.startedAt = time.Now()
	r.recorder.SessionStarted()
	r.logger.Info("connection established")

	stop := context.AfterFunc(ctx, r.shutdown)
	defer stop()

	cause, err := r.receive()
	r.finish(cause, err)
}

func (r *Receiver) receive() (EndCause, error) {
	reader := bufio.NewReader(r.conn)

	for {
		if err := r.conn.SetReadDeadline(time.Now().Add(r.idleTimeout)); err != nil {
			return r.classify(err), err
		}

		raw, err := reader.ReadString('\n')
		if err != nil && (!errors.Is(err, io.EOF) || raw == "") {
			return r.classify(err), err
		}

		line := trimLineEnding(raw)
		if line == Sentinel {
			return EndSentinel, nil
		}

		r.sink.AppendLine(line)
		r.lines++
		r.recorder.LineReceived(len(raw))
		r.logger.Debug("record received", logger.Field{Key: "record", Value: line})

		// An unterminated last line is kept; the peer is gone after it.
		if err != nil {
			return EndPeerClosed, nil
		}
	}
}

func (r *Receiver) classify(err error) EndCause {
	var netErr net.Error

	switch {
	case r.stopping.Load():
		return EndShutdown
	case errors.Is(err, io.EOF):
		return EndPeerClosed
	case errors.Is(err, os.ErrDeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return EndTimeout
	default:
		return EndTransportError
	}
}

func (r *Receiver) finish(cause EndCause, err error) {
	r.close()

	summary := SessionSummary{
		ID:         r.id,
		RemoteAddr: r.conn.RemoteAddr().String(),
		Lines:      r.lines,
		StartedAt:  r.startedAt,
		EndedAt:    time.Now(),
		Cause:      cause,
	}

	fields := []logger.Field{
		{Key: "cause", Value: cause.String()},
		{Key: "lines", Value: r.lines},
	}

	switch cause {
	case EndSentinel:
		r.logger.Info("sender finished, connection closed", fields...)
	case EndTimeout:
		r.logger.Info("idle timeout, connection closed", fields...)
	case EndPeerClosed:
		r.logger.Info("peer disconnected", fields...)
	case EndShutdown:
		r.logger.Info("connection closed by shutdown", fields...)
	default:
		summary.Error = err.Error()
		r.logger.Warn("read failed, connection closed", append(fields, logger.Field{Key: "error", Value: err.Error()})...)
	}

	r.recorder.SessionEnded(cause)
	r.onExit(r, summary)
}

// shutdown closes the connection on behalf of Stop, unblocking a pending read.
func (r *Receiver) shutdown() {
	r.stopping.Store(true)
	r.close()
}

func (r *Receiver) close() {
	r.closeOnce.Do(func() {
		if err := r.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			r.logger.Error("connection close failed", logger.Field{Key: "error", Value: err.Error()})
		}
	})
}

// trimLineEnding strips the trailing "\n" and an optional "\r" before it.
func trimLineEnding(raw string) string {
	raw = strings.TrimSuffix(raw, "\n")
	return strings.TrimSuffix(raw, "\r")
}
