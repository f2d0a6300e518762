package handlers

import (
	"net/http"
	"sync"
	"time"

	"taskboard/internal/apierr"
	"taskboard/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	wsWriteWait    = 5 * time.Second
	wsPongWait     = 60 * time.Second
	wsPingInterval = 30 * time.Second
	wsMaxInbound   = 1024
)

// wsClient implements realtime.Client on a websocket connection. Writes from
// concurrent publishers and the heartbeat are serialized on mu.
type wsClient struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsClient) Send(message []byte) bool {
	if c == nil || c.conn == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return c.conn.WriteMessage(websocket.TextMessage, message) == nil
}

func (c *wsClient) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
}

func (c *wsClient) Close() {
	if c != nil && c.conn != nil {
		_ = c.conn.Close()
	}
}

// heartbeat pings until done is closed or a ping fails.
func (c *wsClient) heartbeat(done <-chan struct{}) {
	t := time.NewTicker(wsPingInterval)
	defer t.Stop()
	for {
		select {
		case <-done:
			return
		case <-t.C:
			if c.ping() != nil {
				return
			}
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// CORS is handled by the router middleware.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WebSocket upgrades the connection and subscribes it to its workspace's
// events. It requires the JWT and workspace middlewares. The stream is
// server to client only; inbound frames are read and dropped so control
// frames get processed.
func (h *Handler) WebSocket(c *gin.Context) {
	workspaceID := c.GetString(middleware.KeyWorkspaceID)
	if workspaceID == "" {
		apierr.Abort(c, http.StatusBadRequest, "workspace_id is required")
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.Log.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := &wsClient{conn: conn}
	h.Hub.Register(workspaceID, client)
	h.Log.Debug("event stream opened", "workspace_id", workspaceID, "user_id", c.GetString(middleware.KeyUserID))

	done := make(chan struct{})
	go client.heartbeat(done)
	defer func() {
		close(done)
		h.Hub.Unregister(workspaceID, client)
		client.Close()
		h.Log.Debug("event stream closed", "workspace_id", workspaceID)
	}()

	conn.SetReadLimit(wsMaxInbound)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
