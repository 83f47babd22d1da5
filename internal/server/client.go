package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/doggo-app/locshare/internal/storage"
	"github.com/doggo-app/locshare/pkg/streaming"
	ws "github.com/gorilla/websocket"
)

const (
	sendChSize     = 1024
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 64 * 1024
)

// client is one WebSocket connection. Reads happen on the HTTP handler
// goroutine, writes on writeLoop.
type client struct {
	id     string
	conn   *ws.Conn
	sendCh chan []byte
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger

	mu   sync.Mutex
	subs map[uint64]*storage.Subscription
}

func newClient(id string, conn *ws.Conn, logger *slog.Logger) *client {
	ctx, cancel := context.WithCancel(context.Background())
	return &client{
		id:     id,
		conn:   conn,
		sendCh: make(chan []byte, sendChSize),
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
		subs:   make(map[uint64]*storage.Subscription),
	}
}

func (c *client) readLoop(handle func(*client, streaming.Envelope)) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if ws.IsUnexpectedCloseError(err, ws.CloseNormalClosure, ws.CloseGoingAway) {
				c.logger.Warn("WebSocket read error", "error", err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		var env streaming.Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			c.logger.Debug("Malformed message received", "raw", string(message))
			c.sendJSON(streaming.AckMessage{
				Type:  streaming.TypeAck,
				Error: "malformed envelope",
				Code:  streaming.CodeBadRequest,
			})
			continue
		}
		handle(c, env)
	}
}

func (c *client) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(ws.CloseMessage, ws.FormatCloseMessage(ws.CloseNormalClosure, ""))
			return
		case data := <-c.sendCh:
			if err := c.write(ws.TextMessage, data); err != nil {
				c.logger.Warn("WebSocket write error", "error", err)
				c.close()
				return
			}
		case <-ticker.C:
			if err := c.write(ws.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}

func (c *client) write(messageType int, data []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(messageType, data)
}

// send queues a frame. A client that cannot keep up is disconnected.
func (c *client) send(data []byte) bool {
	select {
	case <-c.ctx.Done():
		return false
	default:
	}

	select {
	case c.sendCh <- data:
		return true
	default:
		c.logger.Warn("Client send queue full, disconnecting")
		c.close()
		return false
	}
}

func (c *client) sendJSON(v any) bool {
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("Failed to marshal frame", "error", err)
		return false
	}
	return c.send(data)
}

// pump forwards subscription events tagged with the subscribe request id.
func (c *client) pump(id uint64, sub *storage.Subscription) {
	defer c.removeSubscription(id)

	for e := range sub.Events() {
		raw, err := json.Marshal(streaming.ChildPayload{Key: e.Key, Record: e.Record})
		if err != nil {
			c.logger.Error("Failed to marshal child event", "key", e.Key, "error", err)
			continue
		}
		if !c.sendJSON(streaming.Envelope{Type: frameType(e.Kind), ID: id, Payload: raw}) {
			sub.Close()
			return
		}
	}

	if err := sub.Err(); err != nil {
		c.logger.Warn("Subscription cancelled", "subscription", id, "error", err)
		raw, _ := json.Marshal(streaming.CancelledPayload{Error: err.Error()})
		c.sendJSON(streaming.Envelope{Type: streaming.TypeCancelled, ID: id, Payload: raw})
	}
}

func (c *client) addSubscription(id uint64, sub *storage.Subscription) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.subs[id]; exists {
		return false
	}
	c.subs[id] = sub
	return true
}

func (c *client) removeSubscription(id uint64) {
	c.mu.Lock()
	sub, ok := c.subs[id]
	delete(c.subs, id)
	c.mu.Unlock()

	if ok {
		sub.Close()
	}
}

func (c *client) subscriptionCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

// close cancels the connection context, which also ends every subscription
// opened with it. Safe to call more than once.
func (c *client) close() {
	c.cancel()

	c.mu.Lock()
	subs := c.subs
	c.subs = make(map[uint64]*storage.Subscription)
	c.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
	_ = c.conn.Close()
}

func frameType(k storage.EventKind) string {
	switch k {
	case storage.EventAdded:
		return streaming.TypeChildAdded
	case storage.EventChanged:
		return streaming.TypeChildChanged
	case storage.EventRemoved:
		return streaming.TypeChildRemoved
	default:
		return streaming.TypeChildMoved
	}
}
