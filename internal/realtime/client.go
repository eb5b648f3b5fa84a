package realtime

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"karaoke-service/internal/logging"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 256
	invokeTimeout  = 15 * time.Second
)

var clientIDCounter atomic.Uint64

// Client is one device connection. The link token is read from the upgrade
// request and kept for the life of the connection.
type Client struct {
	id         uint64
	hub        *Hub
	dispatcher *Dispatcher
	conn       *websocket.Conn
	send       chan []byte
	token      string
}

func newClient(hub *Hub, d *Dispatcher, conn *websocket.Conn, token string) *Client {
	return &Client{
		id:         clientIDCounter.Add(1),
		hub:        hub,
		dispatcher: d,
		conn:       conn,
		send:       make(chan []byte, sendBuffer),
		token:      token,
	}
}

func (c *Client) closeConn() {
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

// readPump handles invocations one at a time, so a device's calls run in
// the order it sent them. Leaving the loop is an implicit leave of every
// group.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.closeConn()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logging.Error().Err(err).Msg("realtime: set read deadline")
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logging.Warn().Err(err).Uint64("client_id", c.id).Msg("realtime: unexpected close")
			}
			return
		}

		var in Inbound
		if err := json.Unmarshal(data, &in); err != nil {
			c.reply(Result{Type: TypeResult, Error: &ErrorBody{Code: "INVALID_ARGUMENT", Message: "invalid JSON frame"}})
			continue
		}

		switch in.Type {
		case TypePing:
			c.reply(map[string]string{"type": TypePong})
		case TypeInvoke:
			ctx, cancel := context.WithTimeout(context.Background(), invokeTimeout)
			data, err := c.dispatcher.Dispatch(ctx, c, in.Op, in.Args)
			cancel()
			c.reply(newResult(in.ID, data, err))
		default:
			c.reply(Result{Type: TypeResult, ID: in.ID, Error: &ErrorBody{Code: "INVALID_ARGUMENT", Message: "unknown frame type"}})
		}
	}
}

func (c *Client) reply(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		logging.Error().Err(err).Msg("realtime: encode reply")
		return
	}
	c.hub.sendTo(c, b)
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConn()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
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

func (c *Client) start() {
	go c.writePump()
	go c.readPump()
}
