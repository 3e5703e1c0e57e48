package room

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBufferSize = 256
)

// conn is one websocket client attached to a room. Outbound messages go
// through a buffered channel; a client that cannot keep up is dropped.
type conn struct {
	id   string
	room *Room
	ws   *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	closed bool
}

func newConn(id string, room *Room, ws *websocket.Conn) *conn {
	return &conn{
		id:   id,
		room: room,
		ws:   ws,
		send: make(chan []byte, sendBufferSize),
	}
}

// sendJSON marshals v onto the connection's send queue. Returns false
// when the queue is full, which marks the client as too slow to keep.
// Sends after close are dropped.
func (c *conn) sendJSON(v any) bool {
	data, err := json.Marshal(v)
	if err != nil {
		c.room.logger.Error("failed to marshal outbound message",
			zap.String("client", c.id), zap.Error(err))
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// close shuts the send queue exactly once, releasing writePump.
func (c *conn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// readPump reads client messages until the connection closes, then
// detaches the client from the room.
func (c *conn) readPump() {
	defer func() {
		c.room.detach(c)
		c.ws.Close()
	}()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.room.logger.Debug("websocket read error",
					zap.String("client", c.id), zap.Error(err))
			}
			return
		}
		c.room.handleMessage(c, data)
	}
}

// writePump drains the send queue onto the wire and keeps the
// connection alive with protocol pings.
func (c *conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
