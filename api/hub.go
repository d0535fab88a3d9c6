package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"trello-api/domain"
)

const (
	liveSendBuffer     = 64
	liveMaxMessageSize = 512
	livePingInterval   = 30 * time.Second
	livePongWait       = 60 * time.Second
	liveWriteWait      = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// origins are governed by the CORS middleware
		return true
	},
}

// Hub pushes change events to websocket clients. A client only receives
// events for entities its user owns; with authentication disabled every
// client receives every event.
type Hub struct {
	logger  *log.Logger
	clients map[*liveClient]struct{}
	mu      sync.RWMutex
}

type liveClient struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	userID string
}

func NewHub(logger *log.Logger) *Hub {
	return &Hub{logger: logger, clients: make(map[*liveClient]struct{})}
}

// Publish implements EventSink.
func (h *Hub) Publish(_ context.Context, events ...domain.Event) error {
	h.mu.RLock()
	clients := make([]*liveClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	if len(clients) == 0 {
		return nil
	}

	for _, ev := range events {
		data, err := sonic.Marshal(ev)
		if err != nil {
			return err
		}
		for _, c := range clients {
			if ev.OwnerID == "" || ev.OwnerID == c.userID {
				c.trySend(data)
			}
		}
	}
	return nil
}

func (h *Hub) register(c *liveClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.logger.WithField("clients", h.ClientCount()).Debug("live client connected")
}

// unregister is safe to call twice; only the first call closes send.
func (h *Hub) unregister(c *liveClient) {
	h.mu.Lock()
	_, existed := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()

	if existed {
		close(c.send)
	}
	h.logger.WithField("clients", h.ClientCount()).Debug("live client disconnected")
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		_ = c.conn.Close()
		delete(h.clients, c)
	}
}

func liveHandler(h *Hub) echo.HandlerFunc {
	return func(c echo.Context) error {
		conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			// the upgrader already wrote an error response
			h.logger.WithError(err).Warn("websocket upgrade failed")
			return nil
		}
		client := &liveClient{
			hub:    h,
			conn:   conn,
			send:   make(chan []byte, liveSendBuffer),
			userID: requester(c),
		}
		h.register(client)
		go client.writePump()
		go client.readPump()
		return nil
	}
}

func (c *liveClient) trySend(data []byte) {
	defer func() {
		// send was closed by a concurrent unregister
		_ = recover()
	}()
	select {
	case c.send <- data:
	default:
		c.hub.logger.WithField("user", c.userID).Warn("live client too slow; dropping event")
	}
}

// readPump only drains control frames; clients have nothing to say.
func (c *liveClient) readPump() {
	defer func() {
		c.hub.unregister(c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(liveMaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(livePongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(livePongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.WithError(err).Warn("websocket read error")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(livePongWait))
	}
}

func (c *liveClient) writePump() {
	ticker := time.NewTicker(livePingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
