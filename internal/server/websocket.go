package server

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/conneroisu/tdi/internal/logging"
	"github.com/conneroisu/tdi/internal/validation"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Send pings to peer with this period.
	pingPeriod = 54 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 512
)

// Client is one connected page.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
}

// Hub fans reload messages out to every connected page.
type Hub struct {
	logger     logging.Logger
	clients    map[*Client]struct{}
	mu         sync.RWMutex
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	done       chan struct{}
	closeOnce  sync.Once
}

// NewHub creates a hub. Run must be running for clients to connect.
func NewHub(logger logging.Logger) *Hub {
	return &Hub{
		logger:     logger,
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 16),
		done:       make(chan struct{}),
	}
}

// Run serves the hub until ctx is done or Close is called.
func (h *Hub) Run(ctx context.Context) {
	defer h.dropAll()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug(ctx, "client connected", "clients", count)

		case client := <-h.unregister:
			h.drop(client)
			h.logger.Debug(ctx, "client disconnected", "clients", h.Len())

		case message := <-h.broadcast:
			h.mu.RLock()
			var failed []*Client
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Client's send channel is full, mark for removal
					failed = append(failed, client)
				}
			}
			h.mu.RUnlock()

			for _, client := range failed {
				h.drop(client)
			}
		}
	}
}

func (h *Hub) drop(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
}

func (h *Hub) dropAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		delete(h.clients, client)
		close(client.send)
	}
}

// Broadcast queues message for every client. It returns without sending
// once the hub is closed.
func (h *Hub) Broadcast(message []byte) {
	select {
	case h.broadcast <- message:
	case <-h.done:
	}
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and stops Run.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

func (s *PreviewServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Validate origin before accepting connection
	origin, ok := s.checkOrigin(r)
	if !ok {
		http.Error(w, "Origin not allowed", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{origin.Host},
	})
	if err != nil {
		s.logger.Warn(r.Context(), err, "websocket upgrade failed")
		return
	}
	conn.SetReadLimit(maxMessageSize)

	client := &Client{
		conn: conn,
		send: make(chan []byte, 16),
		hub:  s.hub,
	}

	select {
	case s.hub.register <- client:
	case <-s.hub.done:
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}

	go client.writePump(s.logger)
	client.readPump(r.Context())
}

// checkOrigin validates the request origin. Same-host pages, loopback
// pages on the server port and configured origins are allowed.
func (s *PreviewServer) checkOrigin(r *http.Request) (*url.URL, bool) {
	origin := r.Header.Get("Origin")
	originURL, err := validation.ValidateOrigin(origin)
	if err != nil {
		s.logger.Debug(r.Context(), "rejected origin", "origin", origin, "reason", err.Error())
		return nil, false
	}

	if originURL.Host == r.Host {
		return originURL, true
	}

	port := s.config.Server.Port
	loopback := []string{
		fmt.Sprintf("localhost:%d", port),
		fmt.Sprintf("127.0.0.1:%d", port),
		fmt.Sprintf("[::1]:%d", port),
	}
	if slices.Contains(loopback, originURL.Host) {
		return originURL, true
	}

	allowed := s.config.Server.AllowedOrigins
	if slices.Contains(allowed, "*") || slices.Contains(allowed, origin) {
		return originURL, true
	}
	return nil, false
}

// readPump drains the connection until the page goes away. Pages never
// send anything meaningful.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	// Read also processes pongs; dead peers are caught by failed pings.
	for {
		if _, _, err := c.conn.Read(ctx); err != nil {
			return
		}
	}
}

// writePump pumps messages to the websocket connection
func (c *Client) writePump(logger logging.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	ctx := context.Background()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				c.conn.Close(websocket.StatusGoingAway, "")
				return
			}

			writeCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Write(writeCtx, websocket.MessageText, message)
			cancel()
			if err != nil {
				logger.Debug(ctx, "websocket write failed", "error", err.Error())
				return
			}

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
