package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vendlink/vendlink-core/internal/feed"
	"github.com/vendlink/vendlink-core/internal/infrastructure/config"
	"github.com/vendlink/vendlink-core/internal/infrastructure/logging"
)

// WSMessage is one frame sent to a WebSocket feed client.
type WSMessage struct {
	Type      string         `json:"type"`
	DeviceID  string         `json:"device_id"`
	State     map[string]any `json:"state"`
	Timestamp string         `json:"timestamp"`
}

// upgrader configures the WebSocket upgrader.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// wsClient is one WebSocket connection bound to a feed session.
type wsClient struct {
	conn    *websocket.Conn
	session *feed.Session
	cfg     config.FeedConfig
	logger  *logging.Logger
}

// handleWebSocket upgrades the connection and streams one device's feed.
// The device is selected with the required device query parameter.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("device")
	if deviceID == "" {
		writeBadRequest(w, "device query parameter is required")
		return
	}

	session, err := s.registry.Open(deviceID)
	if err != nil {
		writeBadRequest(w, "invalid device id")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		session.Close()
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &wsClient{
		conn:    conn,
		session: session,
		cfg:     s.feedCfg,
		logger:  s.logger,
	}

	s.logger.Debug("websocket feed opened", "device_id", deviceID)
	go client.writePump(s.done())
	go client.readPump()
}

// readPump drains inbound frames to process pong and close handling. Any
// read error closes the session, which in turn stops the write pump.
func (c *wsClient) readPump() {
	defer func() {
		c.session.Close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(int64(c.cfg.MaxMessageSize))
	pingInterval := time.Duration(c.cfg.PingInterval) * time.Second
	pongWait := time.Duration(c.cfg.PongTimeout) * time.Second
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read error", "error", err)
			} else {
				c.logger.Debug("websocket closed", "error", err)
			}
			return
		}
		// Any client frame resets the read deadline.
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	}
}

// writePump forwards session events to the connection and sends periodic
// protocol pings. It exits on session close, server shutdown, or write
// failure; every exit path closes the session.
func (c *wsClient) writePump(serverDone <-chan struct{}) {
	pingInterval := time.Duration(c.cfg.PingInterval) * time.Second
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.session.Close()
		c.conn.Close()
	}()

	writeWait := time.Duration(c.cfg.PongTimeout) * time.Second

	for {
		select {
		case ev := <-c.session.Events():
			data, err := json.Marshal(WSMessage{
				Type:      string(ev.Kind),
				DeviceID:  ev.DeviceID,
				State:     ev.Payload,
				Timestamp: ev.UpdatedAt.UTC().Format(time.RFC3339),
			})
			if err != nil {
				c.logger.Error("failed to marshal feed event", "error", err)
				continue
			}
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-c.session.Done():
			//nolint:errcheck // Best-effort close message
			c.conn.WriteMessage(websocket.CloseMessage, nil)
			return
		case <-serverDone:
			//nolint:errcheck // Best-effort close message
			c.conn.WriteMessage(websocket.CloseMessage, nil)
			return
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
