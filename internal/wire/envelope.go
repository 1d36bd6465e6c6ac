// Package wire implements the gateway's JSON wire protocol: the Envelope
// type every frame is shaped as, and the codec that decodes, validates, and
// re-encodes it.
//
// Grounded on the teacher's internal/validator package (go-playground/validator
// struct-tag validation) generalized from HTTP request bodies to WebSocket
// frames, and on internal/errors for the shape of a typed failure.
package wire

import (
	"time"
)

// ProtocolVersion is the only accepted value of Envelope.Version.
const ProtocolVersion = "1.0"

// Kind enumerates the closed set of frame types the gateway understands.
type Kind string

const (
	KindTell     Kind = "tell"
	KindEmote    Kind = "emote"
	KindEmoteTo  Kind = "emoteto"
	KindChannel  Kind = "channel"
	KindWho      Kind = "who"
	KindFinger   Kind = "finger"
	KindLocate   Kind = "locate"
	KindPresence Kind = "presence"
	KindAuth     Kind = "auth"
	KindPing     Kind = "ping"
	KindPong     Kind = "pong"
	KindError    Kind = "error"
	KindMudlist  Kind = "mudlist"
	KindChannels Kind = "channels"
)

// knownKinds is the closed set used by validation; a frame whose Type is
// absent from this set is rejected with UnknownType.
var knownKinds = map[Kind]bool{
	KindTell: true, KindEmote: true, KindEmoteTo: true, KindChannel: true,
	KindWho: true, KindFinger: true, KindLocate: true, KindPresence: true,
	KindAuth: true, KindPing: true, KindPong: true, KindError: true,
	KindMudlist: true, KindChannels: true,
}

// GatewayMud is the reserved destination name meaning "answered by the
// gateway itself, not forwarded."
const GatewayMud = "Gateway"

// BroadcastMud is the reserved destination name meaning "every authenticated
// peer except the sender."
const BroadcastMud = "*"

// Endpoint names one side of a routed message.
type Endpoint struct {
	Mud         string `json:"mud" validate:"required"`
	User        string `json:"user,omitempty"`
	Channel     string `json:"channel,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}

// Metadata carries rate-limit and TTL hints that ride along with every frame.
type Metadata struct {
	Priority int    `json:"priority" validate:"min=1,max=10"`
	TTL      int    `json:"ttl" validate:"min=1,max=3600"`
	Encoding string `json:"encoding,omitempty"`
	Language string `json:"language,omitempty"`
}

// Envelope is the top-level JSON object sent on every wire frame (spec §3).
type Envelope struct {
	Version   string          `json:"version" validate:"required"`
	ID        string          `json:"id" validate:"required,uuid4"`
	Timestamp time.Time       `json:"timestamp" validate:"required"`
	Type      Kind            `json:"type" validate:"required"`
	From      Endpoint        `json:"from" validate:"required"`
	To        Endpoint        `json:"to" validate:"required"`
	Payload   map[string]any  `json:"payload"`
	Metadata  Metadata        `json:"metadata"`
}

// IsExpired reports whether the envelope's TTL has elapsed as of now.
func (e Envelope) IsExpired(now time.Time) bool {
	if e.Metadata.TTL <= 0 {
		return false
	}
	return now.Sub(e.Timestamp) > time.Duration(e.Metadata.TTL)*time.Second
}

// payloadString reads a required string field from Payload.
func (e Envelope) payloadString(key string) (string, bool) {
	v, ok := e.Payload[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// PayloadBool reads a bool field from Payload, defaulting to false when absent.
func (e Envelope) PayloadBool(key string) bool {
	v, ok := e.Payload[key]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// PayloadStringOr reads a string field from Payload, returning def when absent.
func (e Envelope) PayloadStringOr(key, def string) string {
	if s, ok := e.payloadString(key); ok {
		return s
	}
	return def
}
