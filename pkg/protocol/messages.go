package protocol

import (
	"encoding/json"
	"time"
)

// Event names exchanged with the signaling relay. Presence, room membership
// and WebRTC payload relay all ride the same envelope.
const (
	EventUserOnline     = "user_online"
	EventGetOnlineUsers = "get_online_users"
	EventOnlineUsers    = "online_users_updated"

	EventJoinRoom   = "join_room"
	EventLeaveRoom  = "leave_room"
	EventUserJoined = "user_joined"
	EventUserLeft   = "user_left"

	EventOffer        = "webrtc_offer"
	EventAnswer       = "webrtc_answer"
	EventICECandidate = "webrtc_ice_candidate"

	EventSendCaption    = "send_caption"
	EventReceiveCaption = "receive_caption"
)

// CaptionKind distinguishes the two caption producers.
type CaptionKind string

const (
	CaptionSpeech CaptionKind = "speech"
	CaptionSign   CaptionKind = "sign"
)

// Envelope is the single wire frame: an event name plus an event-specific
// JSON payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals payload into an Envelope. Marshal failures are
// programmer errors (all payload types below are marshalable), so the error
// is returned rather than swallowed.
func NewEnvelope(event string, payload interface{}) (*Envelope, error) {
	if payload == nil {
		return &Envelope{Event: event}, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Envelope{Event: event, Data: raw}, nil
}

// Decode unmarshals the envelope payload into out.
func (e *Envelope) Decode(out interface{}) error {
	if len(e.Data) == 0 {
		return nil
	}
	return json.Unmarshal(e.Data, out)
}

// PresencePayload announces a user as online.
type PresencePayload struct {
	UserID string `json:"user_id"`
}

// OnlineUsersPayload lists currently-online user IDs.
type OnlineUsersPayload struct {
	Users []string `json:"users"`
}

// RoomPayload carries room membership intents and notifications.
type RoomPayload struct {
	Room   string `json:"room"`
	UserID string `json:"user_id"`
}

// SDP is the opaque session description produced by the peer-connection
// layer. Type is "offer" or "answer".
type SDP struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// OfferPayload relays an SDP offer. Offers are sent only by the call
// initiator.
type OfferPayload struct {
	Room     string `json:"room"`
	SenderID string `json:"sender_id"`
	Offer    SDP    `json:"offer"`
}

// AnswerPayload relays an SDP answer. Answers are sent only by the responder.
type AnswerPayload struct {
	Room     string `json:"room"`
	SenderID string `json:"sender_id"`
	Answer   SDP    `json:"answer"`
}

// CandidatePayload relays one ICE candidate; candidates flow either
// direction once the initial exchange happened.
type CandidatePayload struct {
	Room      string          `json:"room"`
	SenderID  string          `json:"sender_id"`
	Candidate json.RawMessage `json:"candidate"`
}

// CaptionPayload carries one caption to every room member, the sender
// included.
type CaptionPayload struct {
	Room       string      `json:"room"`
	Caption    string      `json:"caption"`
	Kind       CaptionKind `json:"type"`
	SenderID   string      `json:"sender_id"`
	SenderName string      `json:"sender_name"`
	Timestamp  time.Time   `json:"timestamp"`
}
