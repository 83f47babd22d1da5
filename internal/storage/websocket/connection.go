package websocket

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/doggo-app/locshare/pkg/streaming"
	ws "github.com/gorilla/websocket"
)

const (
	sendChSize   = 1024
	maxReconnect = 10
	maxBackoff   = 30 * time.Second
	writeWait    = 10 * time.Second
	ackTimeout   = 10 * time.Second
)

// ErrDisconnected ends requests and subscriptions that were in flight when
// the connection dropped.
var ErrDisconnected = errors.New("websocket disconnected")

// inbound is any server frame: acks use For/Error/Code, child events use ID
// as the subscription id.
type inbound struct {
	Type    string          `json:"type"`
	For     string          `json:"for"`
	ID      uint64          `json:"id"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
	Payload json.RawMessage `json:"payload"`
}

// connection manages a WebSocket connection with a single write goroutine.
type connection struct {
	mu      sync.Mutex
	conn    *ws.Conn
	sendCh  chan []byte
	pending map[uint64]chan streaming.AckMessage
	done    chan struct{} // closed on shutdown
	closed  bool

	wsURL  string
	secret string

	// onEvent receives child events; onDrop runs once per lost connection.
	onEvent func(streaming.Envelope)
	onDrop  func()

	logger *slog.Logger
}

func newConnection(logger *slog.Logger) *connection {
	return &connection{
		sendCh:  make(chan []byte, sendChSize),
		pending: make(map[uint64]chan streaming.AckMessage),
		done:    make(chan struct{}),
		onEvent: func(streaming.Envelope) {},
		onDrop:  func() {},
		logger:  logger,
	}
}

// dial connects to the WebSocket server and starts read/write loops.
func (c *connection) dial(rawURL, secret string) error {
	c.wsURL = rawURL
	c.secret = secret

	conn, err := c.dialOnce()
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	go c.writeLoop(conn)
	go c.readLoop(conn)

	return nil
}

// dialOnce performs a single WebSocket dial with the secret query param.
func (c *connection) dialOnce() (*ws.Conn, error) {
	u, err := url.Parse(c.wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid websocket URL: %w", err)
	}
	q := u.Query()
	q.Set("secret", c.secret)
	u.RawQuery = q.Encode()

	conn, _, err := ws.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return conn, nil
}

// writeLoop drains sendCh and writes messages to conn.
// It returns on error, shutdown, or when conn has been replaced.
func (c *connection) writeLoop(conn *ws.Conn) {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.sendCh:
			c.mu.Lock()
			current := c.conn
			c.mu.Unlock()

			if current != conn {
				// conn was dropped; hand the frame to the next writer
				c.requeue(data)
				return
			}

			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Warn("WebSocket SetWriteDeadline error", "error", err)
				c.drop(conn)
				return
			}
			if err := conn.WriteMessage(ws.TextMessage, data); err != nil {
				c.logger.Warn("WebSocket write error", "error", err)
				c.drop(conn)
				return
			}
		}
	}
}

// readLoop routes acks to their waiting request and child events to onEvent.
func (c *connection) readLoop(conn *ws.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				return
			default:
			}
			c.logger.Warn("WebSocket read error", "error", err)
			c.drop(conn)
			return
		}

		var msg inbound
		if err := json.Unmarshal(message, &msg); err != nil {
			c.logger.Debug("Malformed message received", "raw", string(message))
			continue
		}

		if msg.Type == streaming.TypeAck {
			c.resolve(streaming.AckMessage{
				Type:    msg.Type,
				For:     msg.For,
				ID:      msg.ID,
				Error:   msg.Error,
				Code:    msg.Code,
				Payload: msg.Payload,
			})
			continue
		}
		c.onEvent(streaming.Envelope{Type: msg.Type, ID: msg.ID, Payload: msg.Payload})
	}
}

func (c *connection) resolve(ack streaming.AckMessage) {
	c.mu.Lock()
	ch, ok := c.pending[ack.ID]
	delete(c.pending, ack.ID)
	c.mu.Unlock()

	if !ok {
		c.logger.Debug("Ack for unknown request", "for", ack.For, "id", ack.ID)
		return
	}
	ch <- ack
}

// drop tears down conn once, fails everything in flight and starts reconnecting.
func (c *connection) drop(conn *ws.Conn) {
	c.mu.Lock()
	if c.closed || c.conn != conn {
		c.mu.Unlock()
		return
	}
	_ = conn.Close()
	c.conn = nil
	pending := c.pending
	c.pending = make(map[uint64]chan streaming.AckMessage)
	c.mu.Unlock()

	for id, ch := range pending {
		ch <- streaming.AckMessage{Type: streaming.TypeAck, ID: id, Code: codeDisconnected}
	}
	c.onDrop()

	go c.reconnect()
}

// reconnect attempts to re-establish the WebSocket connection with
// exponential backoff and restarts the read/write loops on success.
func (c *connection) reconnect() {
	backoff := time.Second
	for attempt := 1; attempt <= maxReconnect; attempt++ {
		select {
		case <-c.done:
			return
		case <-time.After(backoff):
		}

		c.logger.Info("Reconnecting to WebSocket", "attempt", attempt, "backoff", backoff)

		conn, err := c.dialOnce()
		if err != nil {
			c.logger.Warn("Reconnect dial failed", "attempt", attempt, "error", err)
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			_ = conn.Close()
			return
		}
		c.conn = conn
		c.mu.Unlock()

		c.logger.Info("WebSocket reconnected", "attempt", attempt)
		go c.writeLoop(conn)
		go c.readLoop(conn)
		return
	}

	c.logger.Error("WebSocket reconnect failed after max attempts", "maxAttempts", maxReconnect)
}

// send pushes data to the write loop. Non-blocking; drops if channel full.
func (c *connection) send(data []byte) bool {
	select {
	case c.sendCh <- data:
		return true
	default:
		c.logger.Warn("WebSocket send channel full, dropping message")
		return false
	}
}

func (c *connection) requeue(data []byte) {
	select {
	case c.sendCh <- data:
	default:
	}
}

// sendAndWait sends data and blocks until the server acknowledges request id
// or the timeout expires.
func (c *connection) sendAndWait(data []byte, id uint64, timeout time.Duration) (streaming.AckMessage, error) {
	ch := make(chan streaming.AckMessage, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return streaming.AckMessage{}, errConnClosed
	}
	if c.conn == nil {
		c.mu.Unlock()
		return streaming.AckMessage{}, ErrDisconnected
	}
	c.pending[id] = ch
	c.mu.Unlock()

	forget := func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}

	if !c.send(data) {
		forget()
		return streaming.AckMessage{}, fmt.Errorf("send queue full")
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ack := <-ch:
		if ack.Code == codeDisconnected {
			return ack, ErrDisconnected
		}
		return ack, nil
	case <-timer.C:
		forget()
		return streaming.AckMessage{}, fmt.Errorf("timeout waiting for ack of request %d", id)
	case <-c.done:
		return streaming.AckMessage{}, errConnClosed
	}
}

// close sends a WebSocket close frame and shuts down all goroutines.
func (c *connection) close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = conn.WriteMessage(
			ws.CloseMessage,
			ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
		)
		return conn.Close()
	}
	return nil
}

// local-only code marking acks synthesized on disconnect
const codeDisconnected = "disconnected"

var errConnClosed = errors.New("connection closed")
