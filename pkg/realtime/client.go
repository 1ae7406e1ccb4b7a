package realtime

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// Client is one websocket participant in a room. canPublish mirrors the
// publish grant of the access token the connection was opened with; frames
// from subscribe-only participants are dropped server-side.
type Client struct {
	room       *Room
	conn       *websocket.Conn
	send       chan []byte
	identity   string
	canPublish bool
}

func newClient(room *Room, conn *websocket.Conn, identity string, canPublish bool) *Client {
	return &Client{
		room:       room,
		conn:       conn,
		send:       make(chan []byte, 256),
		identity:   identity,
		canPublish: canPublish,
	}
}

func (c *Client) queue(message []byte) {
	select {
	case c.send <- message:
	default:
	}
}

// leave hands the client back to the room's run loop. Once the room has shut
// down nothing receives on unregister anymore, so the send must not block.
func (c *Client) leave() {
	select {
	case c.room.unregister <- c:
	case <-c.room.shutdown:
	}
}

func (c *Client) ReadPump() {
	defer func() {
		c.leave()
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				zerolog.Ctx(c.room.ctx).Error().Err(err).Str("identity", c.identity).Msg("websocket read error")
			}
			break
		}

		if !c.canPublish {
			zerolog.Ctx(c.room.ctx).Warn().Str("identity", c.identity).Str("room", c.room.id).Msg("dropping frame from subscribe-only participant")
			continue
		}

		c.room.broadcast <- inbound{sender: c, data: message}
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				zerolog.Ctx(c.room.ctx).Error().Err(err).Str("identity", c.identity).Msg("websocket write error")
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
