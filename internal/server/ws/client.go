package ws

import (
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/atinyakov/GophSpend/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 16
)

// Client is one websocket subscriber of a collection.
type Client struct {
	Collection models.Collection
	// Send queues encoded frames. The hub closes it when the client is
	// dropped.
	Send chan []byte

	hub  *Hub
	conn *websocket.Conn
	log  *zap.Logger
}

// NewClient wraps an upgraded connection.
func NewClient(hub *Hub, conn *websocket.Conn, c models.Collection) *Client {
	return &Client{
		Collection: c,
		Send:       make(chan []byte, sendBuffer),
		hub:        hub,
		conn:       conn,
		log:        hub.log,
	}
}

// ReadPump discards inbound frames and keeps the read deadline moving on
// pongs. It returns when the peer goes away and unregisters the client.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug("subscriber read failed", zap.Error(err))
			}
			return
		}
	}
}

// WritePump writes queued frames and periodic pings until Send is closed
// or a write fails.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.Send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
