package relay

import (
	"encoding/json"
	"time"

	"github.com/burntcarrot/docsync/commons"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Client is one WebSocket connection to a document.
type Client struct {
	id    uuid.UUID
	user  string
	docID string
	conn  *websocket.Conn
	send  chan []byte
	log   logrus.FieldLogger
}

// readPump forwards the client's operations to the hub until the connection
// fails.
func (c *Client) readPump(h *Hub, cfg Config) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.stopped:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(cfg.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Warnf("read error: %v", err)
			}
			return
		}

		var op commons.Operation
		if err := json.Unmarshal(data, &op); err != nil {
			c.log.Warnf("dropping malformed operation: %v", err)
			continue
		}
		if err := op.Validate(); err != nil {
			c.log.Warnf("dropping invalid operation: %v", err)
			continue
		}

		select {
		case h.submit <- submission{client: c, op: op}:
		case <-h.stopped:
			return
		}
	}
}

// writePump sends queued messages and keepalive pings. It closes the
// connection when the hub closes the send channel.
func (c *Client) writePump(cfg Config) {
	ticker := time.NewTicker(cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.log.Warnf("write error: %v", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
