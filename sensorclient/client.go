// Package sensorclient streams CSV sensor records to a sensorstream server.
// It writes one record per line and ends a session with the END line.
package sensorclient

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"
)

// ConnectionState is the state of the client's connection.
type ConnectionState int

const (
	Disconnected ConnectionState = iota // Not connected
	Connecting                          // Dial in progress
	Connected                           // Ready to send
	Closed                              // Closed for good
)

// String returns a human-readable name for the state.
func (cs ConnectionState) String() string {
	switch cs {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// EndOfStream is the line that ends a session.
const EndOfStream = "END"

var (
	// ErrNotConnected is returned by send operations without a connection.
	ErrNotConnected = errors.New("not connected")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("client is closed")
)

// ConnectionStateEvent is passed to the state handler on every transition.
type ConnectionStateEvent struct {
	State     ConnectionState
	Address   string
	Timestamp time.Time
	Error     error
}

// ConnectionStateHandler receives state transitions. It is called
// synchronously from the goroutine that caused the transition.
type ConnectionStateHandler func(event ConnectionStateEvent)

// Config holds the client settings.
type Config struct {
	// Address is the "host:port" of the server.
	Address string
	// ConnectionTimeout bounds the dial.
	ConnectionTimeout time.Duration
	// WriteTimeout bounds each write; 0 means no timeout.
	WriteTimeout time.Duration
}

// DefaultConfig returns a Config for address with 10s dial and write timeouts.
func DefaultConfig(address string) Config {
	return Config{
		Address:           address,
		ConnectionTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// Client sends records over one TCP connection. It is safe for concurrent
// use; concurrent sends are serialized so lines never interleave.
type Client struct {
	config Config

	mu      sync.Mutex
	conn    net.Conn
	state   ConnectionState
	onState ConnectionStateHandler
}

// New returns a disconnected client.
func New(config Config) *Client {
	return &Client{
		config: config,
		state:  Disconnected,
	}
}

// OnConnectionState registers the state handler, replacing any previous one.
func (c *Client) OnConnectionState(handler ConnectionStateHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.onState = handler
}

// Connect dials the server.
//
// Returns:
//   - ErrClosed after Close, an error if already connected, or the dial error
func (c *Client) Connect() error {
	c.mu.Lock()
	switch c.state {
	case Closed:
		c.mu.Unlock()
		return ErrClosed
	case Connected, Connecting:
		c.mu.Unlock()
		return fmt.Errorf("already connected to %s", c.config.Address)
	}
	c.state = Connecting
	c.mu.Unlock()

	c.emit(Connecting, nil)

	dialer := net.Dialer{Timeout: c.config.ConnectionTimeout}
	conn, err := dialer.Dial("tcp", c.config.Address)
	if err != nil {
		c.setState(Disconnected, err)
		return fmt.Errorf("dial %s: %w", c.config.Address, err)
	}

	c.mu.Lock()
	if c.state == Closed {
		c.mu.Unlock()
		_ = conn.Close()
		return ErrClosed
	}
	c.conn = conn
	c.mu.Unlock()

	c.setState(Connected, nil)
	return nil
}

// SendLine writes line followed by '\n'. A line containing '\n' would be
// split by the server and is rejected.
func (c *Client) SendLine(line string) error {
	if strings.ContainsRune(line, '\n') {
		return fmt.Errorf("line must not contain a newline: %q", line)
	}

	return c.write(line + "\n")
}

// SendRecord writes fields as one comma-separated line.
func (c *Client) SendRecord(fields ...string) error {
	return c.SendLine(strings.Join(fields, ","))
}

// End writes the END line. The server closes the connection after reading it.
func (c *Client) End() error {
	return c.write(EndOfStream + "\n")
}

// Close closes the connection and moves the client to Closed. It is
// idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.state == Closed {
		c.mu.Unlock()
		return nil
	}

	var err error
	if c.conn != nil {
		err = c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()

	c.setState(Closed, err)
	return err
}

// State returns the current connection state.
func (c *Client) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

func (c *Client) write(payload string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == Closed {
		return ErrClosed
	}
	if c.state != Connected || c.conn == nil {
		return ErrNotConnected
	}

	if c.config.WriteTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout)); err != nil {
			return err
		}
	}

	if _, err := c.conn.Write([]byte(payload)); err != nil {
		return fmt.Errorf("write to %s: %w", c.config.Address, err)
	}

	return nil
}

func (c *Client) setState(state ConnectionState, err error) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()

	c.emit(state, err)
}

func (c *Client) emit(state ConnectionState, err error) {
	c.mu.Lock()
	handler := c.onState
	c.mu.Unlock()

	if handler != nil {
		handler(ConnectionStateEvent{
			State:     state,
			Address:   c.config.Address,
			Timestamp: time.Now(),
			Error:     err,
		})
	}
}
