package ws

import (
	"encoding/json"
	"fmt"
)

// Kind enumerates every event that may cross the live channel. The
// wire format stays string-tagged for client compatibility, but
// internal dispatch switches on this closed set so an unknown event
// fails at the decode boundary instead of being silently ignored.
type Kind int

const (
	KindJoin Kind = iota + 1
	KindJoined
	KindHeartbeat
	KindPartnerHeartbeat
	KindPresence
	KindMomentAvailable
	KindMomentSent
	KindMomentDelivered
	KindMomentReceived
	KindTyping
	KindPartnerTyping
	KindPartnerDisconnected
	KindError
)

var kindNames = map[Kind]string{
	KindJoin:                "join",
	KindJoined:              "joined",
	KindHeartbeat:           "heartbeat",
	KindPartnerHeartbeat:    "partner_heartbeat",
	KindPresence:            "presence",
	KindMomentAvailable:     "moment_available",
	KindMomentSent:          "moment_sent",
	KindMomentDelivered:     "moment_delivered",
	KindMomentReceived:      "moment_received",
	KindTyping:              "typing",
	KindPartnerTyping:       "partner_typing",
	KindPartnerDisconnected: "partner_disconnected",
	KindError:               "error",
}

var kindsByName = func() map[string]Kind {
	m := make(map[string]Kind, len(kindNames))
	for k, name := range kindNames {
		m[name] = k
	}
	return m
}()

// String returns the wire tag for the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Event is one live-channel frame.
type Event interface {
	Kind() Kind
}

// Join is sent by the client after connecting to bind its channel.
type Join struct {
	PartyID string `json:"party_id"`
}

func (Join) Kind() Kind { return KindJoin }

// Joined acknowledges a join.
type Joined struct {
	PartyID string `json:"party_id"`
}

func (Joined) Kind() Kind { return KindJoined }

// Heartbeat is the client's periodic liveness signal.
type Heartbeat struct {
	PartyID string `json:"party_id"`
}

func (Heartbeat) Kind() Kind { return KindHeartbeat }

// PartnerHeartbeat is the derived heartbeat forwarded to the partner.
type PartnerHeartbeat struct {
	PartyID   string `json:"party_id"`
	Timestamp int64  `json:"timestamp"`
}

func (PartnerHeartbeat) Kind() Kind { return KindPartnerHeartbeat }

// Presence signals an online/offline transition of the partner.
type Presence struct {
	PartyID   string `json:"party_id"`
	IsOnline  bool   `json:"is_online"`
	Timestamp int64  `json:"timestamp"`
}

func (Presence) Kind() Kind { return KindPresence }

// MomentAvailable tells the receiver a new moment is ready. It carries
// a reference URL, never the photo payload, to keep the live channel
// lightweight.
type MomentAvailable struct {
	MomentID   string `json:"moment_id"`
	URL        string `json:"url"`
	SenderName string `json:"sender_name"`
	Timestamp  int64  `json:"timestamp"`
	Pending    bool   `json:"pending,omitempty"`
}

func (MomentAvailable) Kind() Kind { return KindMomentAvailable }

// MomentSent confirms to the sender that the submit was accepted.
type MomentSent struct {
	MomentID       string `json:"moment_id"`
	ClientMomentID string `json:"client_moment_id"`
}

func (MomentSent) Kind() Kind { return KindMomentSent }

// Delivery channels reported in MomentDelivered events.
const (
	ChannelLive   = "live"
	ChannelPush   = "push"
	ChannelQueued = "queued"
)

// MomentDelivered reports a per-channel delivery confirmation back to
// the sender. Live and push confirmations arrive independently.
type MomentDelivered struct {
	MomentID    string `json:"moment_id"`
	Channel     string `json:"channel"`
	DeliveredAt int64  `json:"delivered_at"`
}

func (MomentDelivered) Kind() Kind { return KindMomentDelivered }

// MomentReceived is the receiver's acknowledgment for a moment.
type MomentReceived struct {
	MomentID string `json:"moment_id"`
}

func (MomentReceived) Kind() Kind { return KindMomentReceived }

// Typing is a fire-and-forget indicator from the client.
type Typing struct{}

func (Typing) Kind() Kind { return KindTyping }

// PartnerTyping is the forwarded typing indicator.
type PartnerTyping struct{}

func (PartnerTyping) Kind() Kind { return KindPartnerTyping }

// PartnerDisconnected tells a party its partner's session ended.
type PartnerDisconnected struct {
	PartyID string `json:"party_id"`
	Reason  string `json:"reason,omitempty"`
}

func (PartnerDisconnected) Kind() Kind { return KindPartnerDisconnected }

// ErrorEvent reports a protocol-level problem to the client.
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (ErrorEvent) Kind() Kind { return KindError }

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Encode serializes an event into a wire frame.
func Encode(e Event) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Type: e.Kind().String(), Data: data})
}

// Decode parses a wire frame into a typed event. Unknown event tags
// are an error, never a silent no-op.
func Decode(b []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	kind, ok := kindsByName[env.Type]
	if !ok {
		return nil, fmt.Errorf("unknown event type %q", env.Type)
	}

	var event Event
	switch kind {
	case KindJoin:
		event = &Join{}
	case KindJoined:
		event = &Joined{}
	case KindHeartbeat:
		event = &Heartbeat{}
	case KindPartnerHeartbeat:
		event = &PartnerHeartbeat{}
	case KindPresence:
		event = &Presence{}
	case KindMomentAvailable:
		event = &MomentAvailable{}
	case KindMomentSent:
		event = &MomentSent{}
	case KindMomentDelivered:
		event = &MomentDelivered{}
	case KindMomentReceived:
		event = &MomentReceived{}
	case KindTyping:
		event = &Typing{}
	case KindPartnerTyping:
		event = &PartnerTyping{}
	case KindPartnerDisconnected:
		event = &PartnerDisconnected{}
	case KindError:
		event = &ErrorEvent{}
	}

	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, event); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", env.Type, err)
		}
	}
	return event, nil
}
