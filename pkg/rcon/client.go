// Package rcon implements the framed TCP client for the game server's
// admin-console protocol. The client is a state machine around a single
// socket: Disconnected → Connecting → Authenticating → Ready. Any protocol
// or I/O error drops it back to Disconnected. Reconnection is the owning
// backend's responsibility, not the client's.
package rcon

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/craftlab/lodestone/pkg/fault"
)

// State is the connection state of the client.
type State int

const (
	Disconnected State = iota
	Connecting
	Authenticating
	Ready
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Authenticating:
		return "authenticating"
	case Ready:
		return "ready"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// DefaultReadTimeout is the socket-level read timeout applied to every
// response wait.
const DefaultReadTimeout = 5 * time.Second

// Client is a single-connection console client. At most one request is in
// flight at a time; request IDs increase monotonically and responses are
// matched by ID.
type Client struct {
	addr        string
	password    string
	readTimeout time.Duration

	mu     sync.Mutex
	conn   net.Conn
	state  State
	nextID int32

	// sockMu guards sock, a mirror of conn that Abandon reads while mu
	// is held by the in-flight call it unblocks.
	sockMu sync.Mutex
	sock   net.Conn
}

// Option configures a Client.
type Option func(*Client)

// WithReadTimeout overrides the socket read timeout.
func WithReadTimeout(d time.Duration) Option {
	return func(c *Client) { c.readTimeout = d }
}

// New creates a client for the given address. No connection is made until
// Connect.
func New(addr, password string, opts ...Option) *Client {
	c := &Client{
		addr:        addr,
		password:    password,
		readTimeout: DefaultReadTimeout,
		state:       Disconnected,
		nextID:      1,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect dials the server and authenticates. On any failure the client
// returns to Disconnected.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == Ready {
		return nil
	}
	c.dropLocked()

	c.state = Connecting
	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		c.state = Disconnected
		return fault.Wrap(fault.BackendTransport, err, "dial console %s", c.addr)
	}
	c.conn = conn
	c.setSock(conn)

	c.state = Authenticating
	id := c.nextID
	c.nextID++
	resp, err := c.roundTripLocked(ctx, &packet{RequestID: id, Type: typeLogin, Payload: c.password})
	if err != nil {
		c.dropLocked()
		return err
	}
	if resp.RequestID == -1 {
		c.dropLocked()
		return fault.New(fault.BackendProtocol, "console authentication rejected")
	}
	if resp.RequestID != id {
		c.dropLocked()
		return fault.New(fault.BackendProtocol, "login response id %d, want %d", resp.RequestID, id)
	}
	c.state = Ready
	return nil
}

// Command sends one command and returns the textual response. Only valid
// in the Ready state. A read timeout or cancellation drops the connection
// and fails with fault.Timeout / fault.Cancelled.
func (c *Client) Command(ctx context.Context, text string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Ready {
		return "", fault.New(fault.BackendTransport, "console not ready (state %s)", c.state)
	}
	id := c.nextID
	c.nextID++
	resp, err := c.roundTripLocked(ctx, &packet{RequestID: id, Type: typeCommand, Payload: text})
	if err != nil {
		c.dropLocked()
		return "", err
	}
	if resp.RequestID != id {
		c.dropLocked()
		return "", fault.New(fault.BackendProtocol, "response id %d, want %d", resp.RequestID, id)
	}
	return resp.Payload, nil
}

// Close tears down the connection. Safe to call in any state.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropLocked()
	return nil
}

// Abandon closes the socket out from under an in-flight call, unblocking
// it. Used by the orchestrator's deadline enforcement.
func (c *Client) Abandon() {
	// The main mutex is held by the in-flight Command being unblocked,
	// so only the socket mirror is safe to read here.
	c.sockMu.Lock()
	conn := c.sock
	c.sockMu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

func (c *Client) setSock(conn net.Conn) {
	c.sockMu.Lock()
	c.sock = conn
	c.sockMu.Unlock()
}

func (c *Client) dropLocked() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.setSock(nil)
	c.state = Disconnected
}

// roundTripLocked writes one packet and reads one response. Caller holds
// the mutex, which enforces the single-in-flight invariant.
func (c *Client) roundTripLocked(ctx context.Context, req *packet) (*packet, error) {
	deadline := time.Now().Add(c.readTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		return nil, fault.Wrap(fault.BackendTransport, err, "set deadline")
	}

	if _, err := c.conn.Write(req.encode()); err != nil {
		return nil, classifyIOErr(ctx, err, "write console frame")
	}
	resp, err := readPacket(c.conn)
	if err != nil {
		return nil, classifyIOErr(ctx, err, "read console frame")
	}
	return resp, nil
}

func classifyIOErr(ctx context.Context, err error, op string) error {
	if ctx.Err() == context.Canceled {
		return fault.Wrap(fault.Cancelled, err, "%s", op)
	}
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return fault.Wrap(fault.Timeout, err, "%s", op)
	}
	if ctx.Err() == context.DeadlineExceeded {
		return fault.Wrap(fault.Timeout, err, "%s", op)
	}
	return fault.Wrap(fault.BackendTransport, err, "%s", op)
}
