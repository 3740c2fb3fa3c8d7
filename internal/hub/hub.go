// Package hub routes bus notifications to WebSocket clients by room and turns
// client requests into supervisor operations.
package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/matheus3301/wahub/internal/bus"
	"github.com/matheus3301/wahub/internal/supervisor"
	"go.uber.org/zap"
)

const (
	sendBuffer   = 64
	writeTimeout = 10 * time.Second
	opTimeout    = 30 * time.Second
)

// Controller is the set of instance operations clients may request.
type Controller interface {
	Create(ctx context.Context, id, requester string) error
	DeletePermanently(ctx context.Context, id string) error
	List() ([]supervisor.InstanceView, error)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Hub tracks connected clients and their room memberships.
type Hub struct {
	bus    *bus.Bus
	ctrl   Controller
	logger *zap.Logger

	mu      sync.RWMutex
	clients map[string]*client

	ctx    context.Context
	cancel context.CancelFunc
	unsub  func()
	done   chan struct{}
}

// New creates a hub. Call Start to begin routing bus events.
func New(b *bus.Bus, ctrl Controller, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		bus:     b,
		ctrl:    ctrl,
		logger:  logger,
		clients: make(map[string]*client),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start subscribes to every room on the bus and routes events to clients.
func (h *Hub) Start() {
	events, unsub := h.bus.Subscribe("*", 1024)
	h.unsub = unsub
	h.done = make(chan struct{})
	go func() {
		defer close(h.done)
		for {
			select {
			case <-h.ctx.Done():
				return
			case evt := <-events:
				h.route(evt)
			}
		}
	}()
}

// Stop closes every client connection and stops routing.
func (h *Hub) Stop() {
	h.cancel()
	if h.unsub != nil {
		h.unsub()
	}
	if h.done != nil {
		<-h.done
	}
	h.mu.Lock()
	for token, c := range h.clients {
		_ = c.conn.Close()
		delete(h.clients, token)
	}
	h.mu.Unlock()
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// route delivers one event to every client in its room. Broadcast events
// reach every client.
func (h *Hub) route(evt bus.Event) {
	data, err := json.Marshal(Frame{Event: evt.Name, Room: evt.Room, Data: evt.Payload})
	if err != nil {
		h.logger.Error("failed to encode event", zap.String("event", evt.Name), zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if evt.Room == bus.BroadcastRoom || c.inRoom(evt.Room) {
			c.enqueue(data)
		}
	}
}

// ServeHTTP upgrades the request and serves the client until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := newClient(h, uuid.NewString(), conn)
	h.mu.Lock()
	h.clients[c.token] = c
	h.mu.Unlock()

	h.logger.Info("websocket client connected", zap.String("client", c.token), zap.String("remote", r.RemoteAddr))
	h.monitor("connect", c.token, "", "client connected")

	go c.writeLoop()
	c.send(Frame{Event: EventConnected, Data: map[string]string{"clientId": c.token}})

	c.readLoop()

	h.mu.Lock()
	delete(h.clients, c.token)
	h.mu.Unlock()
	c.close()

	h.logger.Info("websocket client disconnected", zap.String("client", c.token))
	h.monitor("disconnect", c.token, "", "client disconnected")
}

// monitor publishes a diagnostics entry.
func (h *Hub) monitor(typ, clientID, room, msg string) {
	h.bus.Emit(bus.DiagnosticsRoom, EventMonitorUpdate, MonitorEntry{
		Type:      typ,
		ClientID:  clientID,
		Room:      room,
		Message:   msg,
		Timestamp: time.Now(),
	})
}
