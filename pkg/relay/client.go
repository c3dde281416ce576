package relay

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/LingByte/LingBridge/pkg/logger"
	"github.com/LingByte/LingBridge/pkg/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024

	sendQueueSize = 32
)

// Client is one WebSocket connection to the relay. userID is unknown until
// the client announces presence; room is set while joined.
type Client struct {
	conn *websocket.Conn

	mu     sync.Mutex
	userID string
	room   string

	out  chan outboundFrame
	once sync.Once
}

type outboundFrame struct {
	event   string
	payload interface{}
}

func newClient(conn *websocket.Conn) *Client {
	return &Client{
		conn: conn,
		out:  make(chan outboundFrame, sendQueueSize),
	}
}

func (c *Client) setUserID(id string) {
	c.mu.Lock()
	c.userID = id
	c.mu.Unlock()
}

func (c *Client) setRoom(room string) {
	c.mu.Lock()
	c.room = room
	c.mu.Unlock()
}

func (c *Client) identity() (userID, room string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID, c.room
}

// send queues one frame; slow consumers drop frames rather than stall the
// room.
func (c *Client) send(event string, payload interface{}) {
	select {
	case c.out <- outboundFrame{event: event, payload: payload}:
	default:
		logger.Warn("[Relay] client send queue full, dropping",
			zap.String("event", event))
	}
}

func (c *Client) closeOut() {
	c.once.Do(func() { close(c.out) })
}

// writePump serializes all writes for the connection, ping keepalive
// included.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.out:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			env, err := protocol.NewEnvelope(frame.event, frame.payload)
			if err != nil {
				logger.Error("[Relay] marshal failed", zap.String("event", frame.event), zap.Error(err))
				continue
			}
			if err := c.conn.WriteJSON(env); err != nil {
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
