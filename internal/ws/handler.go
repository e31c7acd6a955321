package ws

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/remote-agent-terminal/claude-terminal/internal/bridge"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024

	// Replies queued for the write pump.
	replyQueueSize = 16
)

// Controller is the part of the session manager the socket drives.
type Controller interface {
	Write(id string, data []byte)
	Resize(id string, cols, rows uint16)
	Kill(id string)
	History(id string) ([]byte, bool)
}

// Handler upgrades HTTP requests to the event stream.
type Handler struct {
	bridge   *bridge.Bridge
	sessions Controller
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a new WebSocket handler. checkOrigin may be nil to
// accept same-origin requests only.
func NewHandler(b *bridge.Bridge, sessions Controller, logger *zap.Logger, checkOrigin func(r *http.Request) bool) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		bridge:   b,
		sessions: sessions,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
	}
}

// conn is one attached UI endpoint.
type conn struct {
	ws      *websocket.Conn
	sub     *bridge.Subscription
	replies chan *ServerMessage
	logger  *zap.Logger
}

// ServeHTTP upgrades the connection and subscribes it to the bridge. The
// previous connection, if any, is replaced.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	wsConn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	sub := h.bridge.Subscribe()
	c := &conn{
		ws:      wsConn,
		sub:     sub,
		replies: make(chan *ServerMessage, replyQueueSize),
		logger:  h.logger.With(zap.String("subscriber", sub.ID())),
	}

	go h.writePump(c)
	go h.readPump(c)
}

// readPump pumps messages from the WebSocket connection to the session manager.
func (h *Handler) readPump(c *conn) {
	defer func() {
		h.bridge.Unsubscribe(c.sub)
		c.ws.Close()
	}()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, frame, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("websocket closed", zap.Error(err))
			}
			return
		}

		msg, err := ParseClientMessage(frame)
		if err != nil {
			c.reply(&ServerMessage{Type: MessageTypeError, Error: "invalid message"})
			continue
		}
		h.handleMessage(c, msg)
	}
}

// handleMessage routes one client message.
func (h *Handler) handleMessage(c *conn, msg *ClientMessage) {
	switch msg.Type {
	case MessageTypeStdin:
		if len(msg.Data) > 0 {
			h.sessions.Write(msg.SessionID, msg.Data)
		}
	case MessageTypeResize:
		h.sessions.Resize(msg.SessionID, msg.Cols, msg.Rows)
	case MessageTypeKill:
		h.sessions.Kill(msg.SessionID)
	case MessageTypeHistory:
		history, ok := h.sessions.History(msg.SessionID)
		if !ok {
			c.reply(&ServerMessage{Type: MessageTypeError, SessionID: msg.SessionID, Error: "session not found"})
			return
		}
		c.reply(&ServerMessage{Type: MessageTypeHistory, SessionID: msg.SessionID, Data: history})
	case MessageTypePing:
		c.reply(&ServerMessage{Type: MessageTypePong})
	default:
		c.reply(&ServerMessage{Type: MessageTypeError, Error: "unknown message type: " + string(msg.Type)})
	}
}

// reply queues msg for the write pump. Replies beyond the queue are dropped.
func (c *conn) reply(msg *ServerMessage) {
	select {
	case c.replies <- msg:
	default:
		c.logger.Warn("reply dropped", zap.String("type", string(msg.Type)))
	}
}

// writePump pumps bridge events and replies to the WebSocket connection.
func (h *Handler) writePump(c *conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	events := c.sub.Events()
	for {
		select {
		case ev, ok := <-events:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The bridge ended the subscription
				c.ws.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "subscription ended"))
				return
			}
			if err := c.writeJSON(ev); err != nil {
				return
			}
		case msg := <-c.replies:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.writeJSON(msg); err != nil {
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

// writeJSON sends v in its own text frame so the UI can parse each frame.
func (c *conn) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("failed to marshal message", zap.Error(err))
		return nil
	}
	return c.ws.WriteMessage(websocket.TextMessage, data)
}
