package ws

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ──────────────────────────────────────────────────────────────────────────────
// Tunables
// ──────────────────────────────────────────────────────────────────────────────

const (
	writeDeadline  = 10 * time.Second
	pingInterval   = 30 * time.Second
	pongWait       = 35 * time.Second // must be > pingInterval
	maxMessageSize = 512              // bytes; clients only send pongs
	sendBufferSize = 64               // messages in each client send channel
)

// TokenParser resolves a bearer token to a user id.  Implemented by
// service.TokenService.
type TokenParser interface {
	ParseUserID(token string) (uuid.UUID, error)
}

// ──────────────────────────────────────────────────────────────────────────────
// Client
// ──────────────────────────────────────────────────────────────────────────────

// Client is one authenticated WebSocket connection.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte // buffered outbound message queue
	userID uuid.UUID
}

// ──────────────────────────────────────────────────────────────────────────────
// Hub
// ──────────────────────────────────────────────────────────────────────────────

type directMessage struct {
	userID uuid.UUID
	data   []byte
}

// Hub tracks sockets per user and delivers bet notifications to their owner.
// Run() must be called in a dedicated goroutine before ServeWs is used.
type Hub struct {
	mu      sync.RWMutex
	clients map[uuid.UUID]map[*Client]struct{}

	// channels consumed by Run()
	direct     chan directMessage
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	tokens   TokenParser
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewHub creates a Hub ready to be started with Run().
func NewHub(tokens TokenParser, allowedOrigins []string, logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[uuid.UUID]map[*Client]struct{}),
		direct:     make(chan directMessage, 512),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		tokens:     tokens,
		logger:     logger.With("component", "ws_hub"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if len(allowedOrigins) == 0 {
					return true // dev mode: allow all
				}
				origin := r.Header.Get("Origin")
				for _, o := range allowedOrigins {
					if o == "*" || o == origin {
						return true
					}
				}
				return false
			},
		},
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Run — hub event loop
// ──────────────────────────────────────────────────────────────────────────────

// Run processes registration, unregistration and delivery sequentially until
// Close is called.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for _, set := range h.clients {
				for c := range set {
					close(c.send)
				}
			}
			h.clients = make(map[uuid.UUID]map[*Client]struct{})
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			set, ok := h.clients[client.userID]
			if !ok {
				set = make(map[*Client]struct{})
				h.clients[client.userID] = set
			}
			set[client] = struct{}{}
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if set, ok := h.clients[client.userID]; ok {
				if _, ok := set[client]; ok {
					delete(set, client)
					close(client.send)
				}
				if len(set) == 0 {
					delete(h.clients, client.userID)
				}
			}
			h.mu.Unlock()

		case msg := <-h.direct:
			h.mu.RLock()
			for client := range h.clients[msg.userID] {
				select {
				case client.send <- msg.data:
				default:
					// Client's buffer full; drop for this socket.
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Close stops Run and closes every client.
func (h *Hub) Close() {
	select {
	case <-h.done:
	default:
		close(h.done)
	}
}

// ConnectedCount returns the number of open sockets.
func (h *Hub) ConnectedCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.clients {
		n += len(set)
	}
	return n
}

// ──────────────────────────────────────────────────────────────────────────────
// ServeWs — HTTP → WebSocket upgrade
// ──────────────────────────────────────────────────────────────────────────────

// ServeWs authenticates the caller from the ?token= query parameter (or a
// bearer Authorization header), upgrades the connection and starts the pumps.
// Unauthenticated requests get 401 before any upgrade.
func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		if hdr := r.Header.Get("Authorization"); len(hdr) > 7 && hdr[:7] == "Bearer " {
			token = hdr[7:]
		}
	}
	userID, err := h.tokens.ParseUserID(token)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", "err", err)
		return
	}

	client := &Client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		userID: userID,
	}
	select {
	case h.register <- client:
	case <-h.done:
		_ = conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// ──────────────────────────────────────────────────────────────────────────────
// Client pumps
// ──────────────────────────────────────────────────────────────────────────────

// writePump drains the client's send channel and writes messages to the
// WebSocket connection.  It also sends ping frames every pingInterval.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if !ok {
				// Hub closed the channel.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump only handles pongs; the protocol is server-push.  When the
// connection drops the client is unregistered.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debug("unexpected close", "user_id", c.userID, "err", err)
			}
			return
		}
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Delivery — implements service.Notifier
// ──────────────────────────────────────────────────────────────────────────────

// NotifyUser queues a message for every socket of userID.  Messages to users
// without a socket are dropped, as are messages when the queue is full.
func (h *Hub) NotifyUser(userID uuid.UUID, msgType string, payload any) {
	data, err := json.Marshal(Message{
		Type:      MsgType(msgType),
		Data:      payload,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		h.logger.Warn("marshal notification", "type", msgType, "err", err)
		return
	}
	select {
	case h.direct <- directMessage{userID: userID, data: data}:
	default:
		h.logger.Warn("notification queue full, message dropped", "user_id", userID, "type", msgType)
	}
}
