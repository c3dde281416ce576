package relay

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/LingByte/LingBridge/pkg/logger"
	"github.com/LingByte/LingBridge/pkg/protocol"
)

// Server is the WebSocket signaling surface of the relay.
type Server struct {
	hub      *Hub
	upgrader websocket.Upgrader
}

func NewServer(hub *Hub) *Server {
	return &Server{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true // 开发环境允许所有来源
			},
		},
	}
}

// RegisterRoutes mounts the relay endpoints on a gin engine.
func (s *Server) RegisterRoutes(r *gin.Engine) {
	r.GET("/ws", s.handleWebSocket)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
	})
}

func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Error("[Relay] upgrade failed", zap.Error(err))
		return
	}

	client := newClient(conn)
	go client.writePump()
	s.readLoop(c.Request.Context(), client)
}

// readLoop processes envelopes for one connection until it drops.
func (s *Server) readLoop(ctx context.Context, client *Client) {
	conn := client.conn
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	defer func() {
		// Use a detached context: the request context is already done when
		// the connection drops.
		s.hub.Disconnect(context.WithoutCancel(ctx), client)
		client.closeOut()
		conn.Close()
	}()

	for {
		var env protocol.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("[Relay] read error", zap.Error(err))
			}
			return
		}
		s.handleEnvelope(ctx, client, &env)
	}
}

func (s *Server) handleEnvelope(ctx context.Context, client *Client, env *protocol.Envelope) {
	switch env.Event {
	case protocol.EventUserOnline:
		var p protocol.PresencePayload
		if err := env.Decode(&p); err != nil || p.UserID == "" {
			logger.Warn("[Relay] invalid presence payload")
			return
		}
		s.hub.Announce(ctx, client, p.UserID)

	case protocol.EventGetOnlineUsers:
		s.hub.OnlineUsers(ctx, client)

	case protocol.EventJoinRoom:
		var p protocol.RoomPayload
		if err := env.Decode(&p); err != nil || p.Room == "" || p.UserID == "" {
			logger.Warn("[Relay] invalid join payload")
			return
		}
		s.hub.Join(client, p.Room, p.UserID)

	case protocol.EventLeaveRoom:
		var p protocol.RoomPayload
		if err := env.Decode(&p); err != nil || p.Room == "" {
			return
		}
		s.hub.Leave(client, p.Room, p.UserID)

	case protocol.EventOffer:
		var p protocol.OfferPayload
		if err := env.Decode(&p); err != nil {
			return
		}
		s.hub.relayToRoom(p.Room, p.SenderID, protocol.EventOffer, p)

	case protocol.EventAnswer:
		var p protocol.AnswerPayload
		if err := env.Decode(&p); err != nil {
			return
		}
		s.hub.relayToRoom(p.Room, p.SenderID, protocol.EventAnswer, p)

	case protocol.EventICECandidate:
		var p protocol.CandidatePayload
		if err := env.Decode(&p); err != nil {
			return
		}
		s.hub.relayToRoom(p.Room, p.SenderID, protocol.EventICECandidate, p)

	case protocol.EventSendCaption:
		var p protocol.CaptionPayload
		if err := env.Decode(&p); err != nil {
			return
		}
		// Captions go to everyone in the room, the sender included, so both
		// participants render the same transcript.
		s.hub.relayToRoom(p.Room, "", protocol.EventReceiveCaption, p)

	default:
		logger.Debug("[Relay] unknown event", zap.String("event", env.Event))
	}
}
