package signaling

import (
	"encoding/json"
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

	// Transport-level reconnection: fixed backoff, bounded attempts.
	// Matches the relay client defaults the rest of the system assumes.
	reconnectDelay    = 1 * time.Second
	reconnectAttempts = 5
)

// Channel maintains one logical connection to the signaling relay per
// authenticated session. It is constructed at login and injected into the
// components that need it; there is no package-level singleton.
//
// Handler registration is single-slot: registering a handler for an event
// replaces the previous one. The call controller is the only consumer.
type Channel struct {
	url string

	mu       sync.Mutex
	conn     *websocket.Conn
	userID   string
	session  int // increments per Connect, stale pumps check it
	closed   bool
	handlers map[string]func(*protocol.Envelope)
	outgoing chan *protocol.Envelope
	quit     chan struct{}
}

// NewChannel creates a channel targeting the relay WebSocket endpoint.
func NewChannel(relayURL string) *Channel {
	return &Channel{
		url:      relayURL,
		handlers: make(map[string]func(*protocol.Envelope)),
	}
}

// Connect opens the connection and announces presence for userID. It is
// idempotent: an existing connection is torn down first. Transport errors
// after a successful Connect trigger automatic reconnection with fixed
// backoff up to a bounded attempt count; reconnection is not observable to
// callers beyond the implicit presence re-announcement.
func (c *Channel) Connect(userID string) error {
	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.closed = false
	c.userID = userID
	c.session++
	session := c.session
	c.outgoing = make(chan *protocol.Envelope, 32)
	if c.quit != nil {
		close(c.quit)
	}
	c.quit = make(chan struct{})
	c.mu.Unlock()

	conn, _, err := websocket.DefaultDialer.Dial(c.url, nil)
	if err != nil {
		logger.Error("[Signaling] connect failed", zap.String("url", c.url), zap.Error(err))
		return err
	}
	c.attach(conn, session)

	logger.Info("[Signaling] connected", zap.String("user_id", userID))
	c.announce()
	return nil
}

// attach installs conn as the live connection for session and starts pumps.
func (c *Channel) attach(conn *websocket.Conn, session int) {
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	go c.readPump(conn, session)
	go c.writePump(conn, session)
}

func (c *Channel) announce() {
	c.mu.Lock()
	userID := c.userID
	c.mu.Unlock()
	if userID != "" {
		c.Emit(protocol.EventUserOnline, protocol.PresencePayload{UserID: userID})
	}
}

func (c *Channel) readPump(conn *websocket.Conn, session int) {
	defer conn.Close()
	for {
		var env protocol.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			c.mu.Lock()
			stale := c.closed || c.session != session
			c.mu.Unlock()
			if !stale {
				logger.Warn("[Signaling] connection lost", zap.Error(err))
				go c.reconnect(session)
			}
			return
		}
		c.dispatch(&env)
	}
}

func (c *Channel) writePump(conn *websocket.Conn, session int) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	c.mu.Lock()
	outgoing := c.outgoing
	quit := c.quit
	c.mu.Unlock()

	for {
		select {
		case <-quit:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case env := <-outgoing:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(env); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// reconnect re-dials with fixed backoff. Gives up after reconnectAttempts;
// the failure is logged, not surfaced.
func (c *Channel) reconnect(session int) {
	for attempt := 1; attempt <= reconnectAttempts; attempt++ {
		time.Sleep(reconnectDelay)

		c.mu.Lock()
		if c.closed || c.session != session {
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()

		conn, _, err := websocket.DefaultDialer.Dial(c.url, nil)
		if err != nil {
			logger.Warn("[Signaling] reconnect attempt failed",
				zap.Int("attempt", attempt), zap.Error(err))
			continue
		}

		c.attach(conn, session)
		logger.Info("[Signaling] reconnected", zap.Int("attempt", attempt))
		c.announce()
		return
	}
	logger.Error("[Signaling] reconnect attempts exhausted")
}

func (c *Channel) dispatch(env *protocol.Envelope) {
	c.mu.Lock()
	handler := c.handlers[env.Event]
	c.mu.Unlock()
	if handler != nil {
		handler(env)
	}
}

// Emit sends one envelope, fire-and-forget. A full or closed channel drops
// the message with a log line rather than blocking the caller.
func (c *Channel) Emit(event string, payload interface{}) {
	env, err := protocol.NewEnvelope(event, payload)
	if err != nil {
		logger.Error("[Signaling] marshal failed", zap.String("event", event), zap.Error(err))
		return
	}

	c.mu.Lock()
	outgoing := c.outgoing
	closed := c.closed
	c.mu.Unlock()
	if closed || outgoing == nil {
		return
	}
	select {
	case outgoing <- env:
	default:
		logger.Warn("[Signaling] outgoing queue full, dropping", zap.String("event", event))
	}
}

// on registers the single active handler for event, replacing any previous
// registration.
func (c *Channel) on(event string, handler func(*protocol.Envelope)) {
	c.mu.Lock()
	c.handlers[event] = handler
	c.mu.Unlock()
}

// JoinRoom announces membership intent. No acknowledgement is awaited;
// membership is eventually consistent from the caller's perspective.
func (c *Channel) JoinRoom(room, userID string) {
	c.Emit(protocol.EventJoinRoom, protocol.RoomPayload{Room: room, UserID: userID})
}

// LeaveRoom announces the membership withdrawal, fire-and-forget.
func (c *Channel) LeaveRoom(room, userID string) {
	c.Emit(protocol.EventLeaveRoom, protocol.RoomPayload{Room: room, UserID: userID})
}

// SendOffer relays an SDP offer to the room. Only the initiator sends these.
func (c *Channel) SendOffer(room string, offer protocol.SDP, senderID string) {
	c.Emit(protocol.EventOffer, protocol.OfferPayload{Room: room, SenderID: senderID, Offer: offer})
}

// SendAnswer relays an SDP answer to the room. Only the responder sends these.
func (c *Channel) SendAnswer(room string, answer protocol.SDP, senderID string) {
	c.Emit(protocol.EventAnswer, protocol.AnswerPayload{Room: room, SenderID: senderID, Answer: answer})
}

// SendICECandidate relays one ICE candidate to the room.
func (c *Channel) SendICECandidate(room string, candidate json.RawMessage, senderID string) {
	c.Emit(protocol.EventICECandidate, protocol.CandidatePayload{Room: room, SenderID: senderID, Candidate: candidate})
}

// SendCaption broadcasts one caption to the whole room, sender included.
func (c *Channel) SendCaption(room, text string, kind protocol.CaptionKind, senderID, senderName string) {
	c.Emit(protocol.EventSendCaption, protocol.CaptionPayload{
		Room:       room,
		Caption:    text,
		Kind:       kind,
		SenderID:   senderID,
		SenderName: senderName,
		Timestamp:  time.Now(),
	})
}

// GetOnlineUsers requests the current online-user list; the reply arrives
// through the OnOnlineUsers handler.
func (c *Channel) GetOnlineUsers() {
	c.Emit(protocol.EventGetOnlineUsers, nil)
}

func (c *Channel) OnUserJoined(cb func(protocol.RoomPayload)) {
	c.on(protocol.EventUserJoined, func(env *protocol.Envelope) {
		var p protocol.RoomPayload
		if err := env.Decode(&p); err == nil {
			cb(p)
		}
	})
}

func (c *Channel) OnUserLeft(cb func(protocol.RoomPayload)) {
	c.on(protocol.EventUserLeft, func(env *protocol.Envelope) {
		var p protocol.RoomPayload
		if err := env.Decode(&p); err == nil {
			cb(p)
		}
	})
}

func (c *Channel) OnOffer(cb func(protocol.OfferPayload)) {
	c.on(protocol.EventOffer, func(env *protocol.Envelope) {
		var p protocol.OfferPayload
		if err := env.Decode(&p); err == nil {
			cb(p)
		}
	})
}

func (c *Channel) OnAnswer(cb func(protocol.AnswerPayload)) {
	c.on(protocol.EventAnswer, func(env *protocol.Envelope) {
		var p protocol.AnswerPayload
		if err := env.Decode(&p); err == nil {
			cb(p)
		}
	})
}

func (c *Channel) OnICECandidate(cb func(protocol.CandidatePayload)) {
	c.on(protocol.EventICECandidate, func(env *protocol.Envelope) {
		var p protocol.CandidatePayload
		if err := env.Decode(&p); err == nil {
			cb(p)
		}
	})
}

func (c *Channel) OnCaption(cb func(protocol.CaptionPayload)) {
	c.on(protocol.EventReceiveCaption, func(env *protocol.Envelope) {
		var p protocol.CaptionPayload
		if err := env.Decode(&p); err == nil {
			cb(p)
		}
	})
}

func (c *Channel) OnOnlineUsers(cb func(protocol.OnlineUsersPayload)) {
	c.on(protocol.EventOnlineUsers, func(env *protocol.Envelope) {
		var p protocol.OnlineUsersPayload
		if err := env.Decode(&p); err == nil {
			cb(p)
		}
	})
}

// RemoveAllListeners drops every registered handler. Must be called on every
// room-exit path so stale callbacks cannot fire into a destroyed peer
// session.
func (c *Channel) RemoveAllListeners() {
	c.mu.Lock()
	c.handlers = make(map[string]func(*protocol.Envelope))
	c.mu.Unlock()
}

// Close tears the connection down for good (logout). A closed channel does
// not reconnect. The outgoing queue is never closed: a concurrent Emit may
// still hold a reference to it, so the write pump is stopped through quit
// instead and queued envelopes are abandoned.
func (c *Channel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.session++
	c.outgoing = nil
	if c.quit != nil {
		close(c.quit)
		c.quit = nil
	}
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}
