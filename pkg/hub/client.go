package hub

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	maxFrameSize = 64 * 1024

	// sendBuffer frames queue per connection before the hub starts
	// dropping; a reader that far behind is better served by a reconnect
	// than by stalling the whole room.
	sendBuffer = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The HTTP layer fronting this is expected to enforce origins.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Client is one websocket connection registered with the hub. Identity and
// room fields are guarded by the hub mutex; the pumps own the socket.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan Event

	// guarded by hub.mu
	userID string
	name   string
	pageID string
	closed bool
}

// ServeWS upgrades the request to a websocket, registers the connection with
// the hub, and starts its pumps.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	c := &Client{
		hub:  h,
		conn: conn,
		send: make(chan Event, sendBuffer),
	}
	h.register(c)

	go c.writePump()
	go c.readPump()
}

// trySend queues ev for delivery without blocking. Frames to a full or
// closed connection are dropped. Callers hold hub.mu.
func (c *Client) trySend(ev Event) {
	if c.closed {
		return
	}
	select {
	case c.send <- ev:
	default:
		c.hub.log.Warn().Str("user", c.name).Str("type", string(ev.Type)).Msg("send buffer full, dropping frame")
	}
}

// readPump decodes inbound frames and dispatches them to the hub until the
// socket errors, then disconnects. Malformed frames and unknown types are
// logged and skipped.
func (c *Client) readPump() {
	defer func() {
		c.hub.Disconnect(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Warn().Err(err).Msg("websocket read error")
			}
			return
		}

		var f Frame
		if err := json.Unmarshal(msg, &f); err != nil {
			c.hub.log.Warn().Err(err).Msg("malformed frame")
			continue
		}

		switch f.Type {
		case EventAuthenticate:
			c.hub.Authenticate(c, f.UserID, f.Name)
		case EventJoinPage:
			c.hub.JoinRoom(c, f.PageID)
		case EventLeavePage:
			c.hub.LeaveRoom(c, f.PageID)
		case EventBlockOperation:
			c.hub.RelayOperation(c, f.Data)
		case EventCursorUpdate:
			c.hub.RelayCursor(c, f.BlockID, f.Position)
		default:
			c.hub.log.Warn().Str("type", string(f.Type)).Msg("unknown frame type")
		}
	}
}

// writePump drains the send channel onto the socket and keeps the connection
// alive with pings. It exits when the hub closes the channel or a write
// fails.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
