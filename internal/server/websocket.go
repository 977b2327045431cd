package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/convoflow/engine/internal/events"
	"github.com/convoflow/engine/pkg/api"
	"github.com/convoflow/engine/pkg/log"
)

// Client represents a WebSocket connection streaming one session's
// checkpoint events
type Client struct {
	conn      *websocket.Conn
	checkpnts <-chan *api.Checkpoint
	cancel    events.CancelFunc
	done      chan struct{}
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	wsBufferSize   = 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  wsBufferSize,
	WriteBufferSize: wsBufferSize,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func (s *Server) handleWebSocket(c *gin.Context) {
	sessionID, ok := s.sessionParam(c)
	if !ok {
		return
	}

	// subscribe before the handshake completes so no checkpoint committed
	// after the dial succeeds can be missed
	ch, cancel := s.hub.Subscribe(sessionID)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		cancel()
		slog.Error("WebSocket upgrade failed",
			log.SessionID(sessionID),
			log.Error(err))
		return
	}
	client := &Client{
		conn:      conn,
		checkpnts: ch,
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	s.registerWebSocket(client)
	go func() {
		defer s.unregisterWebSocket(client)
		client.run()
	}()
}

// Close shuts the connection down and detaches it from the hub
func (c *Client) Close() {
	select {
	case <-c.done:
	default:
		close(c.done)
	}
}

func (c *Client) run() {
	defer func() {
		c.cancel()
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	disconnected := make(chan struct{})
	go c.readUntilClosed(disconnected)

	for {
		select {
		case cp, ok := <-c.checkpnts:
			if !ok {
				_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if !c.sendCheckpoint(cp) {
				return
			}

		case <-ticker.C:
			if !c.sendPing() {
				return
			}

		case <-disconnected:
			return

		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

// readUntilClosed drains the connection so pong frames are processed and a
// peer close is noticed
func (c *Client) readUntilClosed(disconnected chan struct{}) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			close(disconnected)
			return
		}
	}
}

func (c *Client) sendCheckpoint(cp *api.Checkpoint) bool {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(cp); err != nil {
		slog.Debug("WebSocket write failed",
			log.SessionID(cp.SessionID),
			log.Error(err))
		return false
	}
	return true
}

func (c *Client) sendPing() bool {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.PingMessage, nil) == nil
}
