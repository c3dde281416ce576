package call

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"github.com/LingByte/LingBridge/pkg/captions"
	apperrors "github.com/LingByte/LingBridge/pkg/errors"
	"github.com/LingByte/LingBridge/pkg/logger"
	"github.com/LingByte/LingBridge/pkg/media"
	"github.com/LingByte/LingBridge/pkg/peer"
	"github.com/LingByte/LingBridge/pkg/protocol"
	"github.com/LingByte/LingBridge/pkg/signaling"
	"github.com/LingByte/LingBridge/pkg/signdetect"
	"github.com/LingByte/LingBridge/pkg/utils"
)

// State is the controller's call lifecycle phase.
type State string

const (
	StateIdle     State = "idle"
	StateCreating State = "creating"
	StateJoining  State = "joining"
	StateActive   State = "active"
	StateEnded    State = "ended"
)

// EndReason explains why a call finished.
type EndReason string

const (
	EndReasonHangup     EndReason = "hangup"
	EndReasonRemoteLeft EndReason = "remote_left"
	EndReasonPeerClosed EndReason = "peer_closed"
	EndReasonMediaError EndReason = "media_error"
)

// Options configures a controller. Detector and Grabber are optional; leave
// them nil to run without sign detection. Recognizer nil disables speech
// captions.
type Options struct {
	UserID      string
	DisplayName string
	ICEServers  []webrtc.ICEServer
	Source      media.Source
	Recognizer  captions.Recognizer
	Detector    signdetect.Detector
	Grabber     media.FrameGrabber
	// SignInterval overrides the sign-detection polling cadence. Zero
	// keeps the signdetect default.
	SignInterval time.Duration
}

// Controller drives one call at a time over a signaling channel. It is the
// only component that ends a call; peers, producers and the channel report
// into it and it tears everything down in one place.
type Controller struct {
	channel *signaling.Channel
	opt     Options
	history *captions.History

	mu       sync.Mutex
	state    State
	roomID   string
	role     peer.Role
	session  *peer.Session
	speech   *captions.SpeechProducer
	signs    *signdetect.Producer
	muted    bool
	videoOff bool
	// generation stamps the armed callbacks; a callback whose stamp no
	// longer matches belongs to a finished call and must not run
	generation  int
	cancelMedia context.CancelFunc

	onStateChange func(State)
	onCaption     func(captions.Event)
	onRemoteTrack func(*webrtc.TrackRemote)
	onEnded       func(EndReason)
	onNotice      func(string)
}

func NewController(channel *signaling.Channel, opt Options) *Controller {
	return &Controller{
		channel: channel,
		opt:     opt,
		history: captions.NewHistory(),
		state:   StateIdle,
	}
}

// State returns the current lifecycle phase.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// RoomID returns the active room code, empty when idle.
func (c *Controller) RoomID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomID
}

// History returns the caption transcript for the current or last call.
func (c *Controller) History() *captions.History {
	return c.history
}

// OnStateChange registers the state transition callback.
func (c *Controller) OnStateChange(f func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onStateChange = f
}

// OnCaption registers the callback for every caption, local and remote.
func (c *Controller) OnCaption(f func(captions.Event)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onCaption = f
}

// OnRemoteTrack registers the callback for the remote party's media.
func (c *Controller) OnRemoteTrack(f func(*webrtc.TrackRemote)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onRemoteTrack = f
}

// OnEnded registers the callback fired once per call when it ends.
func (c *Controller) OnEnded(f func(EndReason)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onEnded = f
}

// OnNotice registers the callback for user-facing notices.
func (c *Controller) OnNotice(f func(string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onNotice = f
}

// Start creates a room and waits for the other party. The room code is
// generated locally; the room itself comes into being when the first join
// reaches the relay.
func (c *Controller) Start(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.state != StateIdle {
		state := c.state
		c.mu.Unlock()
		return "", apperrors.NewAppErrorf(apperrors.ErrCodeCallAlreadyActive, "cannot start a call in state %s", state)
	}

	roomID, err := utils.NewRoomCode()
	if err != nil {
		c.mu.Unlock()
		return "", err
	}

	c.setStateLocked(StateCreating)
	c.beginSessionLocked(roomID, peer.RoleInitiator)
	gen := c.generation
	c.mu.Unlock()

	if err := c.setupCall(ctx, gen); err != nil {
		c.endWith(gen, EndReasonMediaError)
		return "", err
	}

	c.mu.Lock()
	if gen == c.generation {
		c.setStateLocked(StateActive)
	}
	c.mu.Unlock()

	logger.Info("[Call] Room created", zap.String("room", roomID))
	return roomID, nil
}

// Join enters an existing room by code and answers the initiator's offer.
func (c *Controller) Join(ctx context.Context, code string) error {
	if !utils.ValidRoomCode(code) {
		return apperrors.NewAppErrorf(apperrors.ErrCodeInvalidRoomID, "invalid room code %q", code)
	}

	c.mu.Lock()
	if c.state != StateIdle {
		state := c.state
		c.mu.Unlock()
		return apperrors.NewAppErrorf(apperrors.ErrCodeCallAlreadyActive, "cannot join a call in state %s", state)
	}

	c.setStateLocked(StateJoining)
	c.beginSessionLocked(code, peer.RoleResponder)
	gen := c.generation
	c.mu.Unlock()

	if err := c.setupCall(ctx, gen); err != nil {
		c.endWith(gen, EndReasonMediaError)
		return err
	}

	// The responder's peer exists before the offer can arrive.
	if err := c.createPeer(gen, peer.RoleResponder); err != nil {
		c.endWith(gen, EndReasonMediaError)
		return err
	}

	c.mu.Lock()
	if gen == c.generation {
		c.setStateLocked(StateActive)
	}
	c.mu.Unlock()

	logger.Info("[Call] Joined room", zap.String("room", code))
	return nil
}

// beginSessionLocked resets per-call state and stamps a new generation.
func (c *Controller) beginSessionLocked(roomID string, role peer.Role) {
	c.generation++
	c.roomID = roomID
	c.role = role
	c.muted = false
	c.videoOff = false
	c.history.Clear()
}

// setupCall arms the channel listeners, starts local media and the caption
// producers, and joins the room.
func (c *Controller) setupCall(ctx context.Context, gen int) error {
	c.armListeners(gen)

	mediaCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancelMedia = cancel
	c.mu.Unlock()

	if c.opt.Source != nil {
		go func() {
			if err := c.opt.Source.Start(mediaCtx); err != nil {
				logger.Error("[Call] Media source failed", zap.Error(err))
				c.endWith(gen, EndReasonMediaError)
			}
		}()
	}

	c.startProducers(mediaCtx, gen)
	c.channel.JoinRoom(c.roomIDSnapshot(), c.opt.UserID)
	return nil
}

func (c *Controller) startProducers(ctx context.Context, gen int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		return
	}

	if c.opt.Recognizer != nil {
		c.speech = captions.NewSpeechProducer(c.opt.Recognizer, func(text string) {
			if text == captions.PermissionNotice {
				c.notice(text)
				return
			}
			c.publishCaption(gen, text, protocol.CaptionSpeech)
		})
		c.speech.SetEnabled(true)
		c.speech.Start(ctx)
	}

	if c.opt.Detector != nil && c.opt.Grabber != nil {
		c.signs = signdetect.NewProducer(c.opt.Detector, c.opt.Grabber, c.roomID, c.opt.UserID, func(sign string) {
			c.publishCaption(gen, sign, protocol.CaptionSign)
		})
		if c.opt.SignInterval > 0 {
			c.signs.SetInterval(c.opt.SignInterval)
		}
		c.signs.Start(ctx)
	}
}

// publishCaption appends a locally produced caption and sends it to the room.
func (c *Controller) publishCaption(gen int, text string, kind protocol.CaptionKind) {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return
	}
	roomID := c.roomID
	onCaption := c.onCaption
	c.mu.Unlock()

	event := captions.Event{
		Text:       text,
		Kind:       kind,
		SenderID:   c.opt.UserID,
		SenderName: c.opt.DisplayName,
		Timestamp:  time.Now(),
	}
	c.history.Append(event)
	c.channel.SendCaption(roomID, text, kind, c.opt.UserID, c.opt.DisplayName)
	if onCaption != nil {
		onCaption(event)
	}
}

// armListeners wires the channel events for this call. Every handler checks
// the generation first so a late event from a finished call is dropped.
func (c *Controller) armListeners(gen int) {
	c.channel.OnUserJoined(func(p protocol.RoomPayload) {
		if p.UserID == c.opt.UserID {
			return
		}
		if !c.generationCurrent(gen) {
			return
		}
		logger.Info("[Call] Remote user joined", zap.String("user", p.UserID))
		if c.roleSnapshot() == peer.RoleInitiator {
			if err := c.createPeer(gen, peer.RoleInitiator); err != nil {
				logger.Error("[Call] Failed to create peer", zap.Error(err))
				c.endWith(gen, EndReasonMediaError)
				return
			}
			c.withSession(func(s *peer.Session) {
				if err := s.CreateOffer(); err != nil {
					logger.Error("[Call] Offer failed", zap.Error(err))
				}
			})
		}
	})

	c.channel.OnUserLeft(func(p protocol.RoomPayload) {
		if p.UserID == c.opt.UserID || !c.generationCurrent(gen) {
			return
		}
		logger.Info("[Call] Remote user left", zap.String("user", p.UserID))
		c.endWith(gen, EndReasonRemoteLeft)
	})

	c.channel.OnOffer(func(p protocol.OfferPayload) {
		if !c.generationCurrent(gen) {
			return
		}
		c.withSession(func(s *peer.Session) {
			desc := webrtc.SessionDescription{Type: webrtc.NewSDPType(p.Offer.Type), SDP: p.Offer.SDP}
			if err := s.HandleOffer(desc); err != nil {
				logger.Error("[Call] Offer handling failed", zap.Error(err))
			}
		})
	})

	c.channel.OnAnswer(func(p protocol.AnswerPayload) {
		if !c.generationCurrent(gen) {
			return
		}
		c.withSession(func(s *peer.Session) {
			desc := webrtc.SessionDescription{Type: webrtc.NewSDPType(p.Answer.Type), SDP: p.Answer.SDP}
			if err := s.HandleAnswer(desc); err != nil {
				logger.Error("[Call] Answer handling failed", zap.Error(err))
			}
		})
	})

	c.channel.OnICECandidate(func(p protocol.CandidatePayload) {
		if !c.generationCurrent(gen) {
			return
		}
		var candidate webrtc.ICECandidateInit
		if err := json.Unmarshal(p.Candidate, &candidate); err != nil {
			logger.Warn("[Call] Malformed candidate", zap.Error(err))
			return
		}
		c.withSession(func(s *peer.Session) {
			if err := s.AddICECandidate(candidate); err != nil {
				logger.Warn("[Call] Candidate rejected", zap.Error(err))
			}
		})
	})

	c.channel.OnCaption(func(p protocol.CaptionPayload) {
		if !c.generationCurrent(gen) {
			return
		}
		if p.SenderID == c.opt.UserID {
			return // own caption echoed back by the relay
		}
		event := captions.Event{
			Text:       p.Caption,
			Kind:       p.Kind,
			SenderID:   p.SenderID,
			SenderName: p.SenderName,
			Timestamp:  p.Timestamp,
		}
		c.history.Append(event)
		c.mu.Lock()
		onCaption := c.onCaption
		c.mu.Unlock()
		if onCaption != nil {
			onCaption(event)
		}
	})
}

// createPeer builds the peer session for the current call if none exists.
func (c *Controller) createPeer(gen int, role peer.Role) error {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return nil
	}
	if c.session != nil {
		c.mu.Unlock()
		return nil
	}
	roomID := c.roomID
	c.mu.Unlock()

	session, err := peer.NewSession(role, c.opt.Source, peer.Option{ICEServers: c.opt.ICEServers})
	if err != nil {
		return err
	}

	session.OnLocalDescription(func(desc webrtc.SessionDescription) {
		if !c.generationCurrent(gen) {
			return
		}
		sdp := protocol.SDP{Type: desc.Type.String(), SDP: desc.SDP}
		switch desc.Type {
		case webrtc.SDPTypeOffer:
			c.channel.SendOffer(roomID, sdp, c.opt.UserID)
		case webrtc.SDPTypeAnswer:
			c.channel.SendAnswer(roomID, sdp, c.opt.UserID)
		}
	})

	session.OnLocalCandidate(func(candidate webrtc.ICECandidateInit) {
		if !c.generationCurrent(gen) {
			return
		}
		raw, err := json.Marshal(candidate)
		if err != nil {
			return
		}
		c.channel.SendICECandidate(roomID, raw, c.opt.UserID)
	})

	session.OnRemoteTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if !c.generationCurrent(gen) {
			return
		}
		c.mu.Lock()
		cb := c.onRemoteTrack
		c.mu.Unlock()
		if cb != nil {
			cb(track)
		}
	})

	session.OnClose(func() {
		c.endWith(gen, EndReasonPeerClosed)
	})

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		session.Close()
		return nil
	}
	c.session = session
	c.mu.Unlock()
	return nil
}

// ToggleMute flips the microphone and gates speech captions with it. Sign
// captions are unaffected. Returns the new muted state.
func (c *Controller) ToggleMute() bool {
	c.mu.Lock()
	c.muted = !c.muted
	muted := c.muted
	speech := c.speech
	active := c.state == StateActive
	c.mu.Unlock()

	if c.opt.Source != nil {
		c.opt.Source.SetMuted(muted)
	}
	if speech != nil {
		speech.SetEnabled(active && !muted)
	}
	return muted
}

// ToggleVideo flips the camera and gates sign detection with it. Returns the
// new video-off state.
func (c *Controller) ToggleVideo() bool {
	c.mu.Lock()
	c.videoOff = !c.videoOff
	videoOff := c.videoOff
	signs := c.signs
	c.mu.Unlock()

	if c.opt.Source != nil {
		c.opt.Source.SetVideoOff(videoOff)
	}
	if signs != nil {
		signs.SetEnabled(!videoOff)
	}
	return videoOff
}

// Muted reports the microphone state.
func (c *Controller) Muted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.muted
}

// End hangs up. Safe to call in any state.
func (c *Controller) End() {
	c.mu.Lock()
	gen := c.generation
	c.mu.Unlock()
	c.endWith(gen, EndReasonHangup)
}

// endWith is the single teardown path. It runs at most once per generation;
// every other trigger for the same call becomes a no-op.
func (c *Controller) endWith(gen int, reason EndReason) {
	c.mu.Lock()
	if gen != c.generation || c.state == StateIdle {
		c.mu.Unlock()
		return
	}
	c.generation++
	c.setStateLocked(StateEnded)

	roomID := c.roomID
	session := c.session
	speech := c.speech
	signs := c.signs
	cancelMedia := c.cancelMedia
	onEnded := c.onEnded

	c.session = nil
	c.speech = nil
	c.signs = nil
	c.cancelMedia = nil
	c.roomID = ""
	c.mu.Unlock()

	if speech != nil {
		speech.Stop()
	}
	if signs != nil {
		signs.Stop()
	}
	if cancelMedia != nil {
		cancelMedia()
	}
	if c.opt.Source != nil {
		c.opt.Source.Stop()
	}
	if session != nil {
		session.Close()
	}
	if roomID != "" {
		c.channel.LeaveRoom(roomID, c.opt.UserID)
	}
	c.channel.RemoveAllListeners()

	logger.Info("[Call] Ended", zap.String("room", roomID), zap.String("reason", string(reason)))
	if onEnded != nil {
		onEnded(reason)
	}

	c.mu.Lock()
	c.setStateLocked(StateIdle)
	c.mu.Unlock()
}

func (c *Controller) notice(msg string) {
	c.mu.Lock()
	cb := c.onNotice
	c.mu.Unlock()
	if cb != nil {
		cb(msg)
	}
}

func (c *Controller) setStateLocked(state State) {
	if c.state == state {
		return
	}
	c.state = state
	if c.onStateChange != nil {
		go c.onStateChange(state)
	}
}

func (c *Controller) generationCurrent(gen int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return gen == c.generation
}

func (c *Controller) roleSnapshot() peer.Role {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.role
}

func (c *Controller) roomIDSnapshot() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomID
}

// withSession runs f with the current peer session. Without one the signal
// is dropped, never an error.
func (c *Controller) withSession(f func(*peer.Session)) {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()
	if session == nil {
		logger.Debug("[Call] Dropping signal, no peer session")
		return
	}
	f(session)
}
