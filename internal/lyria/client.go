// Package lyria is a client for the Lyria RealTime bidirectional music
// generation socket. A Client serves exactly one connection attempt.
package lyria

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/satindergrewal/vibejockey/internal/wire"
)

const (
	DefaultEndpoint = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1alpha.GenerativeService.BidiGenerateMusic"
	DefaultModel    = "models/lyria-realtime-exp"
)

var (
	ErrNotReady     = errors.New("lyria: session not ready")
	ErrClientReused = errors.New("lyria: client already used; create a new one per connection")
)

// TransportError is a socket failure during one phase of the connection.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("lyria: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// State is the connection lifecycle of a Client.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateAwaitingHandshake
	StateReady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateAwaitingHandshake:
		return "awaiting_handshake"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// EventKind tags an Event.
type EventKind int

const (
	EventOpened EventKind = iota + 1
	EventReady
	EventMessage
	EventDecodeFailed
	EventClosed
)

// Event is delivered on Client.Events. Message is set for EventMessage and
// Err for EventDecodeFailed and EventClosed.
type Event struct {
	Kind    EventKind
	Message wire.Event
	Err     error
}

// Client owns one socket for one connection attempt.
type Client struct {
	dialer Dialer
	log    *slog.Logger
	events chan Event

	done     chan struct{}
	doneOnce sync.Once

	mu     sync.Mutex
	state  State
	conn   Conn
	cancel context.CancelFunc

	writeMu sync.Mutex
}

// NewClient returns an idle client. A nil dialer uses NewWebsocketDialer.
func NewClient(dialer Dialer, logger *slog.Logger) *Client {
	if dialer == nil {
		dialer = NewWebsocketDialer()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		dialer: dialer,
		log:    logger,
		events: make(chan Event, 64),
		done:   make(chan struct{}),
	}
}

// Events returns the inbound event stream. It is never closed; stop reading
// after EventClosed or Disconnect.
func (c *Client) Events() <-chan Event {
	return c.events
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect starts dialing endpoint and returns immediately. Failures are
// reported as EventClosed. A client that has left StateIdle cannot connect
// again.
func (c *Client) Connect(ctx context.Context, endpoint, apiKey, model string) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrClientReused
	}
	c.state = StateConnecting
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	target, err := dialURL(endpoint, apiKey)
	if err != nil {
		c.fail(&TransportError{Op: "dial", Err: err})
		return nil
	}
	go c.run(ctx, target, model)
	return nil
}

func dialURL(endpoint, apiKey string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("key", apiKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) run(ctx context.Context, target, model string) {
	conn, err := c.dialer.Dial(ctx, target)
	if err != nil {
		c.fail(&TransportError{Op: "dial", Err: err})
		return
	}

	c.mu.Lock()
	if c.state != StateConnecting {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.mu.Unlock()

	c.emit(Event{Kind: EventOpened})

	setup, err := wire.EncodeSetup(model)
	if err == nil {
		err = c.write(conn, setup)
	}
	if err != nil {
		c.fail(&TransportError{Op: "setup", Err: err})
		return
	}

	c.mu.Lock()
	if c.state == StateConnecting {
		c.state = StateAwaitingHandshake
	}
	c.mu.Unlock()
	c.log.Debug("lyria setup sent", "model", model)

	c.readLoop(conn)
}

func (c *Client) readLoop(conn Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.fail(&TransportError{Op: "read", Err: err})
			return
		}

		ev, err := wire.Decode(data)
		if err != nil {
			c.emit(Event{Kind: EventDecodeFailed, Err: err})
			continue
		}

		if _, ok := ev.(wire.HandshakeComplete); ok {
			c.mu.Lock()
			promote := c.state == StateAwaitingHandshake
			if promote {
				c.state = StateReady
			}
			c.mu.Unlock()
			if promote {
				c.emit(Event{Kind: EventReady})
			}
			continue
		}

		c.emit(Event{Kind: EventMessage, Message: ev})
	}
}

// fail closes the client after a transport failure and reports it once.
// After Disconnect it is silent.
func (c *Client) fail(err error) {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.state = StateClosed
	conn, cancel := c.conn, c.cancel
	c.conn = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close()
	}
	c.log.Debug("lyria transport closed", "err", err)
	c.emit(Event{Kind: EventClosed, Err: err})
}

// emit delivers ev unless the client has been disconnected.
func (c *Client) emit(ev Event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

// Disconnect closes the socket if open and leaves the client closed. It is
// safe to call more than once and from any state.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.state = StateClosed
	conn, cancel := c.conn, c.cancel
	c.conn = nil
	c.mu.Unlock()

	c.doneOnce.Do(func() { close(c.done) })
	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close()
	}
}

// SendPrompts replaces the service's prompt set.
func (c *Client) SendPrompts(prompts []wire.WeightedPrompt) error {
	return c.send(func() ([]byte, error) { return wire.EncodePrompts(prompts) })
}

// SendConfig replaces the service's generation config.
func (c *Client) SendConfig(cfg wire.GenerationConfig) error {
	return c.send(func() ([]byte, error) { return wire.EncodeConfig(cfg) })
}

// SendPlayback issues a transport command.
func (c *Client) SendPlayback(ctrl wire.PlaybackControl) error {
	return c.send(func() ([]byte, error) { return wire.EncodePlayback(ctrl) })
}

// send writes one frame if the handshake has completed. Nothing is written
// otherwise.
func (c *Client) send(encode func() ([]byte, error)) error {
	c.mu.Lock()
	if c.state != StateReady {
		c.mu.Unlock()
		return ErrNotReady
	}
	conn := c.conn
	c.mu.Unlock()

	data, err := encode()
	if err != nil {
		return err
	}
	if err := c.write(conn, data); err != nil {
		return &TransportError{Op: "write", Err: err}
	}
	return nil
}

func (c *Client) write(conn Conn, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, data)
}
