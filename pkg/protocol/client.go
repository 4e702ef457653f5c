// ABOUTME: WebSocket client for the roomcast signaling protocol
// ABOUTME: Handles connection, join, message routing and the close handshake
package protocol

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultCloseTimeout bounds how long Disconnect waits for the peer's close
	DefaultCloseTimeout = 2 * time.Second

	// DefaultReadLimit is the largest accepted inbound message in bytes
	DefaultReadLimit = 1 << 20

	writeWait = 5 * time.Second
)

var (
	// ErrTransport is wrapped by every TransportError
	ErrTransport = errors.New("transport error")
	// ErrNotConnected is returned when the client has no open session
	ErrNotConnected = errors.New("not connected")
	// ErrAlreadyConnected is returned by Connect on a client that is in use
	ErrAlreadyConnected = errors.New("already connected")
)

// TransportError reports a socket-level failure
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() []error {
	return []error{ErrTransport, e.Err}
}

// ConnState is the lifecycle state of a Client
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateClosing
	StateFailed
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("ConnState(%d)", int(s))
	}
}

// Config holds client configuration.
//
// Callbacks run on the client's read goroutine or on the goroutine calling
// Connect/Disconnect; they must not block and must not call Disconnect.
type Config struct {
	// Endpoint is a ws:// or wss:// URL; a bare host:port is dialed as ws://
	Endpoint string
	RoomID   string
	UserID   string

	// DialTimeout bounds the dial and join (0 = no timeout)
	DialTimeout time.Duration

	// CloseTimeout bounds the close handshake (default: 2s)
	CloseTimeout time.Duration

	// ReadLimit caps one inbound message; larger ones fail the session (default: 1 MiB)
	ReadLimit int64

	// OnOpen is called once the join has been sent
	OnOpen func()

	// OnFrame is called for every actionable inbound frame
	OnFrame func(Frame)

	// OnStateChange is called on every transition; reason is set for StateFailed
	OnStateChange func(state ConnState, reason error)

	// OnError is called when an established session fails
	OnError func(error)

	// OnClose is called when the peer closes the session
	OnClose func(code int, reason string)
}

// Client owns one WebSocket session with a signaling endpoint
type Client struct {
	config Config

	mu       sync.Mutex
	conn     *websocket.Conn
	state    ConnState
	readDone chan struct{}

	writeMu sync.Mutex
}

// NewClient creates a new WebSocket client
func NewClient(config Config) *Client {
	if config.CloseTimeout <= 0 {
		config.CloseTimeout = DefaultCloseTimeout
	}
	if config.ReadLimit <= 0 {
		config.ReadLimit = DefaultReadLimit
	}
	return &Client{
		config: config,
		state:  StateDisconnected,
	}
}

// NormalizeEndpoint turns host:port into a ws:// URL and validates the scheme
func NormalizeEndpoint(endpoint string) (string, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return "", fmt.Errorf("empty endpoint")
	}
	if !strings.Contains(endpoint, "://") {
		endpoint = "ws://" + endpoint
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", fmt.Errorf("invalid endpoint scheme %q (expected ws or wss)", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid endpoint %q: missing host", endpoint)
	}
	return u.String(), nil
}

// Connect dials the endpoint, sends the join message and starts reading.
// A failed dial or join returns a *TransportError; OnError is reserved for
// sessions that fail after Connect has returned.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.state = StateConnecting
	c.mu.Unlock()
	c.notifyState(StateConnecting, nil)

	endpoint, err := NormalizeEndpoint(c.config.Endpoint)
	if err != nil {
		return c.connectFailed(&TransportError{Op: "dial", Err: err})
	}

	if c.config.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.DialTimeout)
		defer cancel()
	}

	log.Info().Str("module", "protocol").Str("endpoint", endpoint).Msg("Connecting")

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return c.connectFailed(&TransportError{Op: "dial", Err: err})
	}
	conn.SetReadLimit(c.config.ReadLimit)

	c.mu.Lock()
	if c.state != StateConnecting {
		// Disconnect ran while we were dialing
		c.mu.Unlock()
		_ = conn.Close()
		return &TransportError{Op: "dial", Err: context.Canceled}
	}
	readDone := make(chan struct{})
	c.conn = conn
	c.readDone = readDone
	c.mu.Unlock()

	join, err := EncodeJoin(c.config.RoomID, c.config.UserID)
	if err != nil {
		_ = conn.Close()
		return c.connectFailed(&TransportError{Op: "join", Err: err})
	}
	if err := c.write(websocket.TextMessage, join); err != nil {
		_ = conn.Close()
		return c.connectFailed(&TransportError{Op: "join", Err: err})
	}

	if !c.transition(StateConnecting, StateConnected) {
		c.release(conn)
		close(readDone)
		return &TransportError{Op: "join", Err: context.Canceled}
	}
	log.Info().Str("module", "protocol").
		Str("room", c.config.RoomID).
		Str("user", c.config.UserID).
		Msg("Joined room")

	if c.config.OnOpen != nil {
		c.config.OnOpen()
	}

	go c.readMessages(conn, readDone)

	return nil
}

// connectFailed moves a connecting client through Failed to Disconnected
func (c *Client) connectFailed(err error) error {
	c.mu.Lock()
	if c.state != StateConnecting {
		c.mu.Unlock()
		return err
	}
	c.state = StateFailed
	c.conn = nil
	if c.readDone != nil {
		close(c.readDone)
		c.readDone = nil
	}
	c.mu.Unlock()

	log.Warn().Err(err).Str("module", "protocol").Msg("Connect failed")
	c.notifyState(StateFailed, err)
	c.setState(StateDisconnected)
	return err
}

// write sends one data message; gorilla allows a single concurrent writer
func (c *Client) write(messageType int, data []byte) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(messageType, data)
}

// SendText sends a raw text message on the open session
func (c *Client) SendText(data []byte) error {
	if c.State() != StateConnected {
		return ErrNotConnected
	}
	return c.write(websocket.TextMessage, data)
}

// readMessages reads and routes incoming messages
func (c *Client) readMessages(conn *websocket.Conn, done chan struct{}) {
	defer close(done)

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			c.handleReadError(conn, err)
			return
		}

		frame, err := Decode(MessageKind(messageType), data)
		if err != nil {
			log.Warn().Err(err).Str("module", "protocol").
				Str("kind", MessageKind(messageType).String()).
				Int("size", len(data)).
				Msg("Dropping undecodable message")
			continue
		}

		if ignored, ok := frame.(Ignored); ok {
			log.Debug().Str("module", "protocol").Str("type", ignored.Type).Msg("Ignoring message")
			continue
		}

		if c.config.OnFrame != nil {
			c.config.OnFrame(frame)
		}
	}
}

// handleReadError decides between a peer close, a failure, or our own close completing
func (c *Client) handleReadError(conn *websocket.Conn, err error) {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()

	if state == StateClosing || state == StateDisconnected {
		// Disconnect owns the rest of the teardown
		return
	}

	// gorilla reports a dropped socket as close code 1006
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) && closeErr.Code != websocket.CloseAbnormalClosure {
		log.Info().Str("module", "protocol").
			Int("code", closeErr.Code).
			Str("reason", closeErr.Text).
			Msg("Connection closed by peer")

		if !c.transition(StateConnected, StateClosing) {
			return
		}
		c.release(conn)
		c.setState(StateDisconnected)
		if c.config.OnClose != nil {
			c.config.OnClose(closeErr.Code, closeErr.Text)
		}
		return
	}

	log.Error().Err(err).Str("module", "protocol").Msg("Read error")

	terr := &TransportError{Op: "read", Err: err}
	c.mu.Lock()
	if c.state != StateConnected {
		c.mu.Unlock()
		return
	}
	c.state = StateFailed
	c.mu.Unlock()

	c.notifyState(StateFailed, terr)
	if c.config.OnError != nil {
		c.config.OnError(terr)
	}
	c.release(conn)
	c.setState(StateDisconnected)
}

// Disconnect sends a normal closure with reason and waits for the peer to
// acknowledge it, up to CloseTimeout. It is safe to call in any state.
func (c *Client) Disconnect(reason string) error {
	c.mu.Lock()
	switch c.state {
	case StateConnecting:
		// Connect notices and closes the socket it is dialing
		c.state = StateDisconnected
		c.mu.Unlock()
		c.notifyState(StateDisconnected, nil)
		return nil
	case StateConnected:
	default:
		c.mu.Unlock()
		return nil
	}
	c.state = StateClosing
	conn := c.conn
	readDone := c.readDone
	c.mu.Unlock()
	c.notifyState(StateClosing, nil)

	log.Info().Str("module", "protocol").Str("reason", reason).Msg("Disconnecting")

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	c.writeMu.Lock()
	err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	c.writeMu.Unlock()

	if err == nil {
		// the read loop returns once the peer echoes the close frame
		select {
		case <-readDone:
		case <-time.After(c.config.CloseTimeout):
			log.Warn().Str("module", "protocol").Msg("Close handshake timed out")
		}
	}

	c.release(conn)
	<-readDone
	c.setState(StateDisconnected)

	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		return &TransportError{Op: "close", Err: err}
	}
	return nil
}

// release closes the socket once
func (c *Client) release(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	_ = conn.Close()
}

// State returns the current connection state
func (c *Client) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected returns connection status
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

func (c *Client) transition(from, to ConnState) bool {
	c.mu.Lock()
	if c.state != from {
		c.mu.Unlock()
		return false
	}
	c.state = to
	c.mu.Unlock()
	c.notifyState(to, nil)
	return true
}

func (c *Client) setState(state ConnState) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
	c.notifyState(state, nil)
}

func (c *Client) notifyState(state ConnState, reason error) {
	log.Debug().Str("module", "protocol").Str("state", state.String()).Msg("Connection state")
	if c.config.OnStateChange != nil {
		c.config.OnStateChange(state, reason)
	}
}
