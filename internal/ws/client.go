package ws

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"inbox/internal/constants"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// Clients only send control frames.
	maxMessageSize = 512

	registerTimeout = 5 * time.Second
)

// Client is one authenticated hint subscription. A user may hold several,
// one per open tab or watcher.
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan *WSMessage
	userID    string
	sessionID string

	registered atomic.Bool
	closed     atomic.Bool
	dropped    atomic.Int64
	closeConn  sync.Once
	closeQueue sync.Once
}

func NewClient(hub *Hub, conn *websocket.Conn, userID string) *Client {
	return &Client{
		hub:       hub,
		conn:      conn,
		send:      make(chan *WSMessage, constants.WSClientSendBufferSize),
		userID:    userID,
		sessionID: uuid.NewString(),
	}
}

func (c *Client) UserID() string    { return c.userID }
func (c *Client) SessionID() string { return c.sessionID }

// Registered reports whether the hub delivers hints to this client.
func (c *Client) Registered() bool {
	return c.registered.Load() && !c.closed.Load()
}

func (c *Client) Closed() bool {
	return c.closed.Load()
}

// Close drops the connection. The pumps notice and exit.
func (c *Client) Close() {
	c.closed.Store(true)
	c.closeConn.Do(func() {
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

// finish closes the send queue so WritePump sends a close frame. Only the
// hub calls it, after the client has left the hub's maps.
func (c *Client) finish() {
	c.closeQueue.Do(func() {
		c.closed.Store(true)
		close(c.send)
	})
}

// ReadPump discards anything the peer sends and keeps the read deadline
// moving on pongs. It unregisters the client when the connection ends.
func (c *Client) ReadPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.shutdown:
		}
		c.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Debug("websocket read error", "component", "ws", "error", err, "user_id", c.userID)
			}
			return
		}
	}
}

// WritePump owns all writes to the connection: queued messages and pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				slog.Debug("websocket write error", "component", "ws", "error", err, "user_id", c.userID)
				return
			}

		case <-ticker.C:
			if c.closed.Load() {
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendHello queues HELLO. Call it before the pumps start.
func (c *Client) SendHello() {
	c.send <- &WSMessage{
		Op:   OpHello,
		Data: HelloPayload{HeartbeatIntervalMS: pingPeriod.Milliseconds()},
	}
}

// queueReady puts READY on a fresh queue. Only the hub calls it, while
// registering the client.
func (c *Client) queueReady() {
	select {
	case c.send <- &WSMessage{
		Op: OpReady,
		Data: ReadyPayload{
			ProtocolVersion: ProtocolVersion,
			SessionID:       c.sessionID,
			UserID:          c.userID,
		},
	}:
	default:
		slog.Warn("ready dropped for full queue", "component", "hub", "user_id", c.userID)
	}
}
