package peer

import (
	"testing"
	"time"

	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/LingByte/LingBridge/pkg/errors"
)

func newTestSession(t *testing.T, role Role) *Session {
	t.Helper()
	s, err := NewSession(role, nil, Option{})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestRoleFixedAtCreation(t *testing.T) {
	s := newTestSession(t, RoleInitiator)
	assert.Equal(t, RoleInitiator, s.Role())
	assert.Equal(t, RoleResponder, newTestSession(t, RoleResponder).Role())
}

func TestResponderCannotOffer(t *testing.T) {
	s := newTestSession(t, RoleResponder)

	err := s.CreateOffer()
	require.Error(t, err)
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeInvalidRole, appErr.Code)
}

func TestInitiatorCannotHandleOffer(t *testing.T) {
	s := newTestSession(t, RoleInitiator)

	err := s.HandleOffer(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0"})
	require.Error(t, err)
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeInvalidRole, appErr.Code)
}

func TestResponderCannotHandleAnswer(t *testing.T) {
	s := newTestSession(t, RoleResponder)

	err := s.HandleAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0"})
	require.Error(t, err)
}

func TestInitiatorEmitsOffer(t *testing.T) {
	s := newTestSession(t, RoleInitiator)

	got := make(chan webrtc.SessionDescription, 1)
	s.OnLocalDescription(func(desc webrtc.SessionDescription) { got <- desc })

	require.NoError(t, s.CreateOffer())

	select {
	case desc := <-got:
		assert.Equal(t, webrtc.SDPTypeOffer, desc.Type)
		assert.NotEmpty(t, desc.SDP)
	case <-time.After(2 * time.Second):
		t.Fatal("no offer emitted")
	}
}

func TestOfferAnswerExchange(t *testing.T) {
	initiator := newTestSession(t, RoleInitiator)
	responder := newTestSession(t, RoleResponder)

	offers := make(chan webrtc.SessionDescription, 1)
	initiator.OnLocalDescription(func(desc webrtc.SessionDescription) { offers <- desc })
	answers := make(chan webrtc.SessionDescription, 1)
	responder.OnLocalDescription(func(desc webrtc.SessionDescription) { answers <- desc })

	require.NoError(t, initiator.CreateOffer())

	var offer webrtc.SessionDescription
	select {
	case offer = <-offers:
	case <-time.After(2 * time.Second):
		t.Fatal("no offer")
	}

	require.NoError(t, responder.HandleOffer(offer))

	select {
	case answer := <-answers:
		assert.Equal(t, webrtc.SDPTypeAnswer, answer.Type)
		require.NoError(t, initiator.HandleAnswer(answer))
	case <-time.After(2 * time.Second):
		t.Fatal("no answer")
	}
}

func TestSignalsAfterCloseAreDroppedNoops(t *testing.T) {
	s, err := NewSession(RoleResponder, nil, Option{})
	require.NoError(t, err)
	s.Close()

	assert.NoError(t, s.HandleOffer(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0"}))
	assert.NoError(t, s.AddICECandidate(webrtc.ICECandidateInit{Candidate: "candidate:1"}))

	i, err := NewSession(RoleInitiator, nil, Option{})
	require.NoError(t, err)
	i.Close()
	assert.NoError(t, i.HandleAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0"}))
	assert.NoError(t, i.CreateOffer())
}

func TestCandidatesBufferedUntilRemoteDescription(t *testing.T) {
	initiator := newTestSession(t, RoleInitiator)
	responder := newTestSession(t, RoleResponder)

	offers := make(chan webrtc.SessionDescription, 1)
	initiator.OnLocalDescription(func(desc webrtc.SessionDescription) { offers <- desc })
	require.NoError(t, initiator.CreateOffer())
	offer := <-offers

	// Candidate arrives before the offer: must buffer, not error.
	require.NoError(t, responder.AddICECandidate(webrtc.ICECandidateInit{
		Candidate: "candidate:842163049 1 udp 1677729535 192.0.2.1 54321 typ srflx raddr 0.0.0.0 rport 0",
	}))
	require.NoError(t, responder.HandleOffer(offer))
}

func TestCloseIdempotent(t *testing.T) {
	s, err := NewSession(RoleInitiator, nil, Option{})
	require.NoError(t, err)

	var closes int
	done := make(chan struct{})
	s.OnClose(func() {
		closes++
		close(done)
	})

	s.Close()
	s.Close()
	s.Close()

	<-done
	assert.Equal(t, 1, closes)
	assert.True(t, s.Closed())
}
