package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/benpaul2002/99/internal/game"
	"github.com/benpaul2002/99/internal/session"
	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"
)

const (
	pingInterval   = 15 * time.Second
	sendBuffer     = 64
	readLimit      = 8 << 10
	disconnectWait = 5 * time.Second
)

// errInternal is what a client is told when its action failed on the server side.
var errInternal = errors.New("internal error")

// Handler processes decoded actions. *game.Manager implements it.
type Handler interface {
	Handle(ctx context.Context, clientID string, act game.Action) error
	Refuse(clientID string, method game.Method, gameID, requestID string, err error)
	Disconnect(ctx context.Context, clientID string) error
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.done) })
}

// Hub owns the live connections, keyed by client id. It implements game.Notifier.
type Hub struct {
	sessions *session.Issuer
	origins  []string
	log      logrus.FieldLogger

	mu      sync.RWMutex
	clients map[string]*client
	handler Handler
}

// NewHub creates a hub that accepts upgrades from allowOrigins (full origins such as
// "http://localhost:3000"); requests from the server's own host are always accepted.
func NewHub(sessions *session.Issuer, allowOrigins []string, log logrus.FieldLogger) *Hub {
	var patterns []string
	for _, o := range allowOrigins {
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			patterns = append(patterns, u.Host)
		}
	}
	return &Hub{
		sessions: sessions,
		origins:  patterns,
		log:      log,
		clients:  make(map[string]*client),
	}
}

// Bind sets the handler for inbound actions. It must be called before serving.
func (h *Hub) Bind(handler Handler) {
	h.mu.Lock()
	h.handler = handler
	h.mu.Unlock()
}

// SendToClient queues msg for clientID. Messages for unknown clients are dropped, as are
// messages for a client whose buffer is full.
func (h *Hub) SendToClient(clientID string, msg game.Message) {
	h.mu.RLock()
	c := h.clients[clientID]
	h.mu.RUnlock()
	if c == nil {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.WithError(err).WithField("method", msg.Method).Error("Failed to encode message")
		return
	}
	select {
	case c.send <- data:
	case <-c.done:
	default:
		h.log.WithFields(logrus.Fields{"client": clientID, "method": msg.Method}).Warn("Send buffer full, dropping message")
	}
}

// Connected reports whether clientID has a live connection.
func (h *Hub) Connected(clientID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[clientID]
	return ok
}

// ServeWS upgrades the request and runs the connection until it closes.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	clientID, err := h.sessions.Ensure(w, r)
	if err != nil {
		h.log.WithError(err).Error("Failed to issue session")
		http.Error(w, "session unavailable", http.StatusInternalServerError)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		h.log.WithError(err).Debug("Upgrade rejected")
		return
	}
	conn.SetReadLimit(readLimit)

	c := &client{id: clientID, conn: conn, send: make(chan []byte, sendBuffer), done: make(chan struct{})}
	h.register(c)
	log := h.log.WithField("client", clientID)
	log.Info("Client connected")

	ctx := r.Context()
	go h.writeLoop(ctx, c)
	h.SendToClient(clientID, game.Message{Method: game.MethodConnect, ClientID: clientID})

	h.readLoop(ctx, c)

	c.close()
	if h.unregister(c) {
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), disconnectWait)
		defer cancel()
		if err := h.handlerOf().Disconnect(dctx, clientID); err != nil {
			log.WithError(err).Error("Failed to record disconnect")
		}
	}
	log.Info("Client disconnected")
}

func (h *Hub) readLoop(ctx context.Context, c *client) {
	for {
		typ, data, err := c.conn.Read(ctx)
		if err != nil {
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		h.dispatch(ctx, c.id, data)
	}
}

func (h *Hub) dispatch(ctx context.Context, clientID string, data []byte) {
	handler := h.handlerOf()
	act, err := game.DecodeAction(data)
	if err != nil {
		var env struct {
			Method    game.Method `json:"method"`
			GameID    string      `json:"gameId"`
			RequestID string      `json:"requestId"`
		}
		_ = json.Unmarshal(data, &env)
		h.log.WithError(err).WithField("client", clientID).Warn("Malformed action")
		handler.Refuse(clientID, env.Method, env.GameID, env.RequestID, err)
		return
	}
	// An action that has started runs to completion even if the socket drops.
	if err := handler.Handle(context.WithoutCancel(ctx), clientID, act); err != nil {
		handler.Refuse(clientID, act.Method(), act.Game(), act.Request(), errInternal)
	}
}

func (h *Hub) writeLoop(ctx context.Context, c *client) {
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	for {
		select {
		case msg := <-c.send:
			if err := c.conn.Write(ctx, websocket.MessageText, msg); err != nil {
				_ = c.conn.CloseNow()
				return
			}
		case <-ping.C:
			if err := c.conn.Ping(ctx); err != nil {
				_ = c.conn.CloseNow()
				return
			}
		case <-c.done:
			_ = c.conn.Close(websocket.StatusNormalClosure, "")
			return
		}
	}
}

// register installs c, closing any previous connection for the same client id.
func (h *Hub) register(c *client) {
	h.mu.Lock()
	prev := h.clients[c.id]
	h.clients[c.id] = c
	h.mu.Unlock()
	if prev != nil {
		go prev.conn.Close(websocket.StatusPolicyViolation, "replaced by a newer connection")
	}
}

// unregister removes c if it is still the registered connection for its id.
func (h *Hub) unregister(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c.id] != c {
		return false
	}
	delete(h.clients, c.id)
	return true
}

func (h *Hub) handlerOf() Handler {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.handler
}
