package hub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/matheus3301/wahub/internal/bus"
	"go.uber.org/zap"
)

type client struct {
	hub   *Hub
	token string
	conn  *websocket.Conn

	mu    sync.RWMutex
	rooms map[string]struct{}

	out  chan []byte
	quit chan struct{}
	once sync.Once
}

func newClient(h *Hub, token string, conn *websocket.Conn) *client {
	return &client{
		hub:   h,
		token: token,
		conn:  conn,
		rooms: map[string]struct{}{bus.ClientRoom(token): {}},
		out:   make(chan []byte, sendBuffer),
		quit:  make(chan struct{}),
	}
}

func (c *client) inRoom(room string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.rooms[room]
	return ok
}

func (c *client) join(room string) {
	c.mu.Lock()
	c.rooms[room] = struct{}{}
	c.mu.Unlock()
}

// leave removes a room. The client's own room cannot be left.
func (c *client) leave(room string) bool {
	if room == bus.ClientRoom(c.token) {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.rooms[room]; !ok {
		return false
	}
	delete(c.rooms, room)
	return true
}

// enqueue queues an encoded frame. A full queue drops the frame.
func (c *client) enqueue(data []byte) {
	select {
	case c.out <- data:
	default:
		c.hub.logger.Debug("client queue full, frame dropped", zap.String("client", c.token))
	}
}

func (c *client) send(f Frame) {
	data, err := json.Marshal(f)
	if err != nil {
		c.hub.logger.Error("failed to encode frame", zap.String("event", f.Event), zap.Error(err))
		return
	}
	c.enqueue(data)
}

func (c *client) writeLoop() {
	for {
		select {
		case <-c.quit:
			return
		case data := <-c.out:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.hub.logger.Debug("websocket write failed", zap.String("client", c.token), zap.Error(err))
				_ = c.conn.Close()
				return
			}
		}
	}
}

func (c *client) readLoop() {
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", zap.String("client", c.token), zap.Error(err))
			}
			return
		}
		var f Frame
		if err := json.Unmarshal(raw, &f); err != nil {
			c.hub.logger.Warn("invalid websocket frame", zap.String("client", c.token), zap.Error(err))
			c.send(Frame{Event: EventInvalidRequest, Data: AckResult{Message: "frame is not valid JSON"}})
			continue
		}
		c.hub.handle(c, f)
	}
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.quit)
		_ = c.conn.Close()
	})
}
