package relay

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LingByte/LingBridge/pkg/protocol"
)

type countingRecorder struct {
	mu      sync.Mutex
	started []string
	ended   []string
}

func (r *countingRecorder) CallStarted(roomID string) {
	r.mu.Lock()
	r.started = append(r.started, roomID)
	r.mu.Unlock()
}

func (r *countingRecorder) CallEnded(roomID string) {
	r.mu.Lock()
	r.ended = append(r.ended, roomID)
	r.mu.Unlock()
}

func (r *countingRecorder) counts() (started, ended int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.started), len(r.ended)
}

// testConn wraps a dialed websocket and collects incoming envelopes per
// event name.
type testConn struct {
	t    *testing.T
	conn *websocket.Conn

	mu     sync.Mutex
	inbox  map[string][]*protocol.Envelope
	closed bool
}

func newRelayServer(t *testing.T, recorder Recorder) (*httptest.Server, *Hub) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	hub := NewHub(NewMemoryPresence(), recorder)
	r := gin.New()
	NewServer(hub).RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, hub
}

func dial(t *testing.T, srv *httptest.Server) *testConn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	tc := &testConn{t: t, conn: conn, inbox: make(map[string][]*protocol.Envelope)}
	go tc.readLoop()
	t.Cleanup(tc.close)
	return tc
}

func (tc *testConn) readLoop() {
	for {
		var env protocol.Envelope
		if err := tc.conn.ReadJSON(&env); err != nil {
			return
		}
		tc.mu.Lock()
		tc.inbox[env.Event] = append(tc.inbox[env.Event], &env)
		tc.mu.Unlock()
	}
}

func (tc *testConn) close() {
	tc.mu.Lock()
	if tc.closed {
		tc.mu.Unlock()
		return
	}
	tc.closed = true
	tc.mu.Unlock()
	tc.conn.Close()
}

func (tc *testConn) emit(event string, payload interface{}) {
	env, err := protocol.NewEnvelope(event, payload)
	require.NoError(tc.t, err)
	require.NoError(tc.t, tc.conn.WriteJSON(env))
}

// waitFor blocks until at least n envelopes for event arrived.
func (tc *testConn) waitFor(event string, n int) []*protocol.Envelope {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		tc.mu.Lock()
		got := tc.inbox[event]
		tc.mu.Unlock()
		if len(got) >= n {
			return got
		}
		time.Sleep(10 * time.Millisecond)
	}
	tc.t.Fatalf("timed out waiting for %d %q envelopes", n, event)
	return nil
}

func (tc *testConn) count(event string) int {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return len(tc.inbox[event])
}

func (tc *testConn) online(userID string) {
	tc.emit(protocol.EventUserOnline, protocol.PresencePayload{UserID: userID})
}

func (tc *testConn) join(room, userID string) {
	tc.emit(protocol.EventJoinRoom, protocol.RoomPayload{Room: room, UserID: userID})
}

func TestPresenceBroadcast(t *testing.T) {
	srv, _ := newRelayServer(t, nil)
	a := dial(t, srv)
	b := dial(t, srv)

	a.online("alice")
	time.Sleep(50 * time.Millisecond)
	b.online("bob")

	// Both eventually see a list containing both users.
	envs := a.waitFor(protocol.EventOnlineUsers, 2)
	var p protocol.OnlineUsersPayload
	require.NoError(t, envs[len(envs)-1].Decode(&p))
	assert.ElementsMatch(t, []string{"alice", "bob"}, p.Users)
}

func TestJoinNotifiesOthersNotJoiner(t *testing.T) {
	srv, hub := newRelayServer(t, nil)
	a := dial(t, srv)
	b := dial(t, srv)
	a.online("alice")
	b.online("bob")

	a.join("AB12CD34", "alice")
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, a.count(protocol.EventUserJoined), "first joiner should hear nothing")

	b.join("AB12CD34", "bob")
	envs := a.waitFor(protocol.EventUserJoined, 1)
	var p protocol.RoomPayload
	require.NoError(t, envs[0].Decode(&p))
	assert.Equal(t, "bob", p.UserID)

	// The joiner never hears its own join.
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, b.count(protocol.EventUserJoined))

	assert.ElementsMatch(t, []string{"alice", "bob"}, hub.RoomMembers("AB12CD34"))
}

func TestThirdJoinRejected(t *testing.T) {
	srv, hub := newRelayServer(t, nil)
	a := dial(t, srv)
	b := dial(t, srv)
	c := dial(t, srv)
	a.online("alice")
	b.online("bob")
	c.online("carol")

	a.join("AB12CD34", "alice")
	time.Sleep(50 * time.Millisecond)
	b.join("AB12CD34", "bob")
	a.waitFor(protocol.EventUserJoined, 1)

	c.join("AB12CD34", "carol")
	time.Sleep(100 * time.Millisecond)

	assert.ElementsMatch(t, []string{"alice", "bob"}, hub.RoomMembers("AB12CD34"))
	// No one is told about the rejected join, the joiner included.
	assert.Equal(t, 1, a.count(protocol.EventUserJoined))
	assert.Zero(t, c.count(protocol.EventUserJoined))
}

func TestSignalForwardingExcludesSender(t *testing.T) {
	srv, _ := newRelayServer(t, nil)
	a := dial(t, srv)
	b := dial(t, srv)
	a.online("alice")
	b.online("bob")
	a.join("AB12CD34", "alice")
	time.Sleep(50 * time.Millisecond)
	b.join("AB12CD34", "bob")
	a.waitFor(protocol.EventUserJoined, 1)

	a.emit(protocol.EventOffer, protocol.OfferPayload{
		Room:     "AB12CD34",
		SenderID: "alice",
		Offer:    protocol.SDP{Type: "offer", SDP: "v=0..."},
	})

	envs := b.waitFor(protocol.EventOffer, 1)
	var offer protocol.OfferPayload
	require.NoError(t, envs[0].Decode(&offer))
	assert.Equal(t, "alice", offer.SenderID)
	assert.Equal(t, "v=0...", offer.Offer.SDP)

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, a.count(protocol.EventOffer), "sender must not receive its own offer")

	b.emit(protocol.EventAnswer, protocol.AnswerPayload{
		Room:     "AB12CD34",
		SenderID: "bob",
		Answer:   protocol.SDP{Type: "answer", SDP: "v=0..."},
	})
	a.waitFor(protocol.EventAnswer, 1)
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, b.count(protocol.EventAnswer))

	a.emit(protocol.EventICECandidate, protocol.CandidatePayload{
		Room:      "AB12CD34",
		SenderID:  "alice",
		Candidate: json.RawMessage(`{"candidate":"candidate:1"}`),
	})
	b.waitFor(protocol.EventICECandidate, 1)
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, a.count(protocol.EventICECandidate))
}

func TestCaptionReachesWholeRoom(t *testing.T) {
	srv, _ := newRelayServer(t, nil)
	a := dial(t, srv)
	b := dial(t, srv)
	a.online("alice")
	b.online("bob")
	a.join("AB12CD34", "alice")
	time.Sleep(50 * time.Millisecond)
	b.join("AB12CD34", "bob")
	a.waitFor(protocol.EventUserJoined, 1)

	a.emit(protocol.EventSendCaption, protocol.CaptionPayload{
		Room:       "AB12CD34",
		Caption:    "hello",
		Kind:       protocol.CaptionSpeech,
		SenderID:   "alice",
		SenderName: "Alice",
		Timestamp:  time.Now(),
	})

	for _, tc := range []*testConn{a, b} {
		envs := tc.waitFor(protocol.EventReceiveCaption, 1)
		var p protocol.CaptionPayload
		require.NoError(t, envs[0].Decode(&p))
		assert.Equal(t, "hello", p.Caption)
		assert.Equal(t, protocol.CaptionSpeech, p.Kind)
	}
}

func TestLeaveNotifiesAndDeletesEmptyRoom(t *testing.T) {
	srv, hub := newRelayServer(t, nil)
	a := dial(t, srv)
	b := dial(t, srv)
	a.online("alice")
	b.online("bob")
	a.join("AB12CD34", "alice")
	time.Sleep(50 * time.Millisecond)
	b.join("AB12CD34", "bob")
	a.waitFor(protocol.EventUserJoined, 1)

	b.emit(protocol.EventLeaveRoom, protocol.RoomPayload{Room: "AB12CD34", UserID: "bob"})
	envs := a.waitFor(protocol.EventUserLeft, 1)
	var p protocol.RoomPayload
	require.NoError(t, envs[0].Decode(&p))
	assert.Equal(t, "bob", p.UserID)

	a.emit(protocol.EventLeaveRoom, protocol.RoomPayload{Room: "AB12CD34", UserID: "alice"})
	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, hub.RoomMembers("AB12CD34"))
}

func TestDisconnectActsAsLeave(t *testing.T) {
	srv, hub := newRelayServer(t, nil)
	a := dial(t, srv)
	b := dial(t, srv)
	a.online("alice")
	b.online("bob")
	a.join("AB12CD34", "alice")
	time.Sleep(50 * time.Millisecond)
	b.join("AB12CD34", "bob")
	a.waitFor(protocol.EventUserJoined, 1)

	b.close()

	a.waitFor(protocol.EventUserLeft, 1)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(hub.RoomMembers("AB12CD34")) == 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	assert.ElementsMatch(t, []string{"alice"}, hub.RoomMembers("AB12CD34"))
}

func TestRecorderSeesCallLifecycle(t *testing.T) {
	rec := &countingRecorder{}
	srv, _ := newRelayServer(t, rec)
	a := dial(t, srv)
	b := dial(t, srv)
	a.online("alice")
	b.online("bob")

	a.join("AB12CD34", "alice")
	time.Sleep(50 * time.Millisecond)
	started, ended := rec.counts()
	assert.Zero(t, started, "one participant is not yet a call")
	assert.Zero(t, ended)

	b.join("AB12CD34", "bob")
	a.waitFor(protocol.EventUserJoined, 1)
	started, _ = rec.counts()
	assert.Equal(t, 1, started)

	b.emit(protocol.EventLeaveRoom, protocol.RoomPayload{Room: "AB12CD34", UserID: "bob"})
	a.waitFor(protocol.EventUserLeft, 1)
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, e := rec.counts(); e == 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	_, ended = rec.counts()
	assert.Equal(t, 1, ended)
}
