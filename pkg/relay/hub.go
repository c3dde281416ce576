package relay

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/LingByte/LingBridge/pkg/logger"
	"github.com/LingByte/LingBridge/pkg/protocol"
)

// maxRoomSize caps a room at two participants: one initiator, one responder.
const maxRoomSize = 2

// Recorder is notified when a room becomes an active call (second
// participant joined) and when the call ends (room drained below two).
type Recorder interface {
	CallStarted(roomID string)
	CallEnded(roomID string)
}

// Hub owns every connected client and every live room. Rooms are created
// implicitly on first join (room codes are client-generated, no reservation
// step) and deleted when the last member leaves.
type Hub struct {
	mu       sync.RWMutex
	rooms    map[string]*Room
	users    map[string]*Client // by user ID, presence-announced clients only
	presence PresenceRepo
	recorder Recorder
}

// Room 房间信息
type Room struct {
	ID      string
	Members map[string]*Client
	active  bool // true once the room has seen two members
}

// NewHub creates a hub. presence may not be nil; recorder may be nil.
func NewHub(presence PresenceRepo, recorder Recorder) *Hub {
	return &Hub{
		rooms:    make(map[string]*Room),
		users:    make(map[string]*Client),
		presence: presence,
		recorder: recorder,
	}
}

// Announce marks a user online and broadcasts the updated user list.
func (h *Hub) Announce(ctx context.Context, c *Client, userID string) {
	c.setUserID(userID)

	h.mu.Lock()
	h.users[userID] = c
	h.mu.Unlock()

	if err := h.presence.SetOnline(ctx, userID); err != nil {
		logger.Warn("[Relay] presence update failed", zap.Error(err))
	}
	h.broadcastOnlineUsers(ctx)
	logger.Info("[Relay] user online", zap.String("user_id", userID))
}

// OnlineUsers replies to one client with the current online-user list.
func (h *Hub) OnlineUsers(ctx context.Context, c *Client) {
	users, err := h.presence.List(ctx)
	if err != nil {
		logger.Warn("[Relay] presence list failed", zap.Error(err))
		return
	}
	c.send(protocol.EventOnlineUsers, protocol.OnlineUsersPayload{Users: users})
}

// broadcastOnlineUsers pushes the online-user list to every announced client.
func (h *Hub) broadcastOnlineUsers(ctx context.Context) {
	users, err := h.presence.List(ctx)
	if err != nil {
		logger.Warn("[Relay] presence list failed", zap.Error(err))
		return
	}

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.users))
	for _, c := range h.users {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.send(protocol.EventOnlineUsers, protocol.OnlineUsersPayload{Users: users})
	}
}

// Join adds a client to a room, creating it on first join. Other members are
// notified with user_joined (the joiner itself is not). A full room rejects
// the join silently except for a log line: the joiner keeps waiting for a
// peer that never comes, which is the same observable outcome the original
// relay produced.
func (h *Hub) Join(c *Client, roomID, userID string) {
	h.mu.Lock()
	room := h.rooms[roomID]
	if room == nil {
		room = &Room{ID: roomID, Members: make(map[string]*Client)}
		h.rooms[roomID] = room
		logger.Info("[Relay] room created", zap.String("room", roomID))
	}
	if _, member := room.Members[userID]; !member && len(room.Members) >= maxRoomSize {
		h.mu.Unlock()
		logger.Warn("[Relay] join rejected, room full",
			zap.String("room", roomID), zap.String("user_id", userID))
		return
	}
	room.Members[userID] = c
	becameActive := !room.active && len(room.Members) == maxRoomSize
	if becameActive {
		room.active = true
	}
	h.mu.Unlock()

	c.setRoom(roomID)
	h.relayToRoom(roomID, userID, protocol.EventUserJoined,
		protocol.RoomPayload{Room: roomID, UserID: userID})
	logger.Info("[Relay] user joined room",
		zap.String("room", roomID), zap.String("user_id", userID))

	if becameActive && h.recorder != nil {
		h.recorder.CallStarted(roomID)
	}
}

// Leave removes a client from its room; remaining members get user_left.
// The last member out deletes the room.
func (h *Hub) Leave(c *Client, roomID, userID string) {
	h.mu.Lock()
	room := h.rooms[roomID]
	if room == nil {
		h.mu.Unlock()
		return
	}
	delete(room.Members, userID)
	remaining := len(room.Members)
	ended := room.active && remaining < maxRoomSize
	if ended {
		room.active = false
	}
	if remaining == 0 {
		delete(h.rooms, roomID)
		logger.Info("[Relay] room deleted", zap.String("room", roomID))
	}
	h.mu.Unlock()

	c.setRoom("")
	if remaining > 0 {
		h.relayToRoom(roomID, userID, protocol.EventUserLeft,
			protocol.RoomPayload{Room: roomID, UserID: userID})
	}
	logger.Info("[Relay] user left room",
		zap.String("room", roomID), zap.String("user_id", userID))

	if ended && h.recorder != nil {
		h.recorder.CallEnded(roomID)
	}
}

// relayToRoom delivers an event to every room member except excludeUserID.
// Pass "" to reach everyone (captions).
func (h *Hub) relayToRoom(roomID, excludeUserID, event string, payload interface{}) {
	h.mu.RLock()
	room := h.rooms[roomID]
	if room == nil {
		h.mu.RUnlock()
		return
	}
	targets := make([]*Client, 0, len(room.Members))
	for userID, member := range room.Members {
		if userID != excludeUserID {
			targets = append(targets, member)
		}
	}
	h.mu.RUnlock()

	for _, t := range targets {
		t.send(event, payload)
	}
}

// Disconnect cleans up after a dropped connection: presence, room
// membership, and notifications, same as an explicit leave.
func (h *Hub) Disconnect(ctx context.Context, c *Client) {
	userID, roomID := c.identity()

	if roomID != "" && userID != "" {
		h.Leave(c, roomID, userID)
	}

	if userID != "" {
		h.mu.Lock()
		if h.users[userID] == c {
			delete(h.users, userID)
		}
		h.mu.Unlock()

		if err := h.presence.SetOffline(ctx, userID); err != nil {
			logger.Warn("[Relay] presence removal failed", zap.Error(err))
		}
		h.broadcastOnlineUsers(ctx)
		logger.Info("[Relay] user offline", zap.String("user_id", userID))
	}
}

// RoomMembers returns the member IDs of a room, empty when absent.
func (h *Hub) RoomMembers(roomID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	room := h.rooms[roomID]
	if room == nil {
		return []string{}
	}
	members := make([]string, 0, len(room.Members))
	for userID := range room.Members {
		members = append(members, userID)
	}
	return members
}
