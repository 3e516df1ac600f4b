package socket

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"voicethoughts/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 512
)

func (h *Hub) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
}

// checkOrigin accepts handshakes without an Origin header (non-browser
// clients) and browser handshakes from an allowed origin.
func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.allowedOrigins) == 0 {
		return true
	}
	return h.allowedOrigins["*"] || h.allowedOrigins[origin]
}

// Client is one live feed connection. It only ever receives events for
// OwnerID, the identity that opened it.
type Client struct {
	Hub     *Hub
	Conn    *websocket.Conn
	OwnerID string
	Send    chan []byte
}

// ServeWs upgrades the request and registers the connection with the hub.
// ownerID must come from a verified identity.
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request, ownerID string) {
	upgrader := hub.upgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Sugar.Error(err)
		return
	}

	client := &Client{
		Hub:     hub,
		Conn:    conn,
		OwnerID: ownerID,
		Send:    make(chan []byte, 256),
	}

	select {
	case hub.Register <- client:
	case <-hub.Done():
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// readPump drains the connection. Clients have nothing to say on this feed;
// reading is how close frames and pongs get noticed.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.Hub.Unregister <- c:
		case <-c.Hub.Done():
		}
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Sugar.Errorf("error: %v", err)
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
