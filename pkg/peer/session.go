package peer

import (
	"sync"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	apperrors "github.com/LingByte/LingBridge/pkg/errors"
	"github.com/LingByte/LingBridge/pkg/logger"
	"github.com/LingByte/LingBridge/pkg/media"
)

// Role fixes which side of the SDP exchange a session takes. It is set at
// creation and never changes for the life of the session.
type Role string

const (
	// RoleInitiator creates the offer. The user who created the room.
	RoleInitiator Role = "initiator"
	// RoleResponder answers the offer. The user who joined the room.
	RoleResponder Role = "responder"
)

// Option configures a session.
type Option struct {
	ICEServers []webrtc.ICEServer
}

// Session wraps a single peer connection for a two-party call. Methods on a
// closed session are dropped no-ops so late signaling cannot resurrect it.
type Session struct {
	role Role

	mu        sync.RWMutex
	pc        *webrtc.PeerConnection
	closed    bool
	remoteSet bool
	// candidates that arrived before the remote description
	pending []webrtc.ICECandidateInit

	onLocalDescription func(webrtc.SessionDescription)
	onLocalCandidate   func(webrtc.ICECandidateInit)
	onRemoteTrack      func(*webrtc.TrackRemote, *webrtc.RTPReceiver)
	onConnected        func()
	onClose            func()
}

// NewSession creates the peer connection and publishes the source's tracks.
func NewSession(role Role, source media.Source, opt Option) (*Session, error) {
	s := &Session{role: role}

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: opt.ICEServers})
	if err != nil {
		return nil, apperrors.WrapError(apperrors.ErrCodePeerFailed, err)
	}
	s.pc = pc

	published := make(map[webrtc.RTPCodecType]bool)
	if source != nil {
		for _, track := range source.Tracks() {
			if _, err := pc.AddTrack(track); err != nil {
				_ = pc.Close()
				return nil, apperrors.WrapError(apperrors.ErrCodePeerFailed, err)
			}
			published[track.Kind()] = true
		}
	}
	// Negotiate both kinds even when we publish only one, so the remote
	// party's media still flows in.
	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
		if published[kind] {
			continue
		}
		_, err := pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		})
		if err != nil {
			_ = pc.Close()
			return nil, apperrors.WrapError(apperrors.ErrCodePeerFailed, err)
		}
	}

	s.registerEventHandlers(pc)
	return s, nil
}

func (s *Session) registerEventHandlers(pc *webrtc.PeerConnection) {
	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			return
		}
		s.mu.RLock()
		cb := s.onLocalCandidate
		closed := s.closed
		s.mu.RUnlock()
		if closed || cb == nil {
			return
		}
		cb(candidate.ToJSON())
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		logger.Info("[Peer] Remote track received",
			zap.String("codec", track.Codec().MimeType),
			zap.String("kind", track.Kind().String()))
		s.mu.RLock()
		cb := s.onRemoteTrack
		s.mu.RUnlock()
		if cb != nil {
			cb(track, receiver)
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		logger.Debug("[Peer] Connection state changed", zap.String("state", state.String()))
		switch state {
		case webrtc.PeerConnectionStateConnected:
			s.mu.RLock()
			cb := s.onConnected
			s.mu.RUnlock()
			if cb != nil {
				cb()
			}
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			s.Close()
		}
	})
}

// Role returns the negotiation role fixed at creation.
func (s *Session) Role() Role {
	return s.role
}

// CreateOffer starts negotiation. Only the initiator may offer; the local
// description is delivered through OnLocalDescription and candidates trickle
// through OnLocalCandidate.
func (s *Session) CreateOffer() error {
	if s.role != RoleInitiator {
		return apperrors.NewAppErrorf(apperrors.ErrCodeInvalidRole, "role %s cannot create an offer", s.role)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.pc == nil {
		return nil
	}

	offer, err := s.pc.CreateOffer(nil)
	if err != nil {
		return apperrors.WrapError(apperrors.ErrCodePeerFailed, err)
	}
	if err := s.pc.SetLocalDescription(offer); err != nil {
		return apperrors.WrapError(apperrors.ErrCodePeerFailed, err)
	}

	if s.onLocalDescription != nil {
		go s.onLocalDescription(offer)
	}
	return nil
}

// HandleOffer applies the remote offer and produces an answer. Only the
// responder accepts offers; on a closed session it is a dropped no-op.
func (s *Session) HandleOffer(offer webrtc.SessionDescription) error {
	if s.role != RoleResponder {
		return apperrors.NewAppErrorf(apperrors.ErrCodeInvalidRole, "role %s cannot handle an offer", s.role)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.pc == nil {
		logger.Debug("[Peer] Dropping offer for closed session")
		return nil
	}

	if err := s.setRemoteDescriptionLocked(offer); err != nil {
		return err
	}

	answer, err := s.pc.CreateAnswer(nil)
	if err != nil {
		return apperrors.WrapError(apperrors.ErrCodePeerFailed, err)
	}
	if err := s.pc.SetLocalDescription(answer); err != nil {
		return apperrors.WrapError(apperrors.ErrCodePeerFailed, err)
	}

	if s.onLocalDescription != nil {
		go s.onLocalDescription(answer)
	}
	return nil
}

// HandleAnswer applies the remote answer. Only the initiator accepts answers;
// on a closed session it is a dropped no-op.
func (s *Session) HandleAnswer(answer webrtc.SessionDescription) error {
	if s.role != RoleInitiator {
		return apperrors.NewAppErrorf(apperrors.ErrCodeInvalidRole, "role %s cannot handle an answer", s.role)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.pc == nil {
		logger.Debug("[Peer] Dropping answer for closed session")
		return nil
	}

	return s.setRemoteDescriptionLocked(answer)
}

// AddICECandidate applies a remote candidate regardless of role. Candidates
// arriving before the remote description are buffered; candidates after close
// are dropped.
func (s *Session) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.pc == nil {
		logger.Debug("[Peer] Dropping candidate for closed session")
		return nil
	}

	if !s.remoteSet {
		s.pending = append(s.pending, candidate)
		return nil
	}

	if err := s.pc.AddICECandidate(candidate); err != nil {
		return apperrors.WrapError(apperrors.ErrCodePeerFailed, err)
	}
	return nil
}

func (s *Session) setRemoteDescriptionLocked(desc webrtc.SessionDescription) error {
	if err := s.pc.SetRemoteDescription(desc); err != nil {
		return apperrors.WrapError(apperrors.ErrCodePeerFailed, err)
	}
	s.remoteSet = true

	for _, candidate := range s.pending {
		if err := s.pc.AddICECandidate(candidate); err != nil {
			logger.Warn("[Peer] Failed to apply buffered candidate", zap.Error(err))
		}
	}
	s.pending = nil
	return nil
}

// OnLocalDescription registers the callback for locally produced offers and
// answers. Replaces any previous callback.
func (s *Session) OnLocalDescription(f func(webrtc.SessionDescription)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onLocalDescription = f
}

// OnLocalCandidate registers the callback for trickled local candidates.
func (s *Session) OnLocalCandidate(f func(webrtc.ICECandidateInit)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onLocalCandidate = f
}

// OnRemoteTrack registers the callback for the remote media tracks.
func (s *Session) OnRemoteTrack(f func(*webrtc.TrackRemote, *webrtc.RTPReceiver)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onRemoteTrack = f
}

// OnConnected registers the callback fired when the connection reaches the
// connected state.
func (s *Session) OnConnected(f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onConnected = f
}

// OnClose registers the callback fired exactly once when the session closes.
func (s *Session) OnClose(f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onClose = f
}

// State reports the current connection state, New when the session never
// connected or is closed.
func (s *Session) State() webrtc.PeerConnectionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.pc == nil {
		return webrtc.PeerConnectionStateNew
	}
	return s.pc.ConnectionState()
}

// Closed reports whether Close has run.
func (s *Session) Closed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// Close tears down the peer connection. Safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	pc := s.pc
	s.pc = nil
	s.pending = nil
	onClose := s.onClose
	s.mu.Unlock()

	if pc != nil {
		if err := pc.Close(); err != nil {
			logger.Warn("[Peer] Close failed", zap.Error(err))
		}
	}
	if onClose != nil {
		onClose()
	}
}
