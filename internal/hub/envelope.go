package hub

import (
	"encoding/json"
	"regexp"
)

// Message types exchanged over the event rooms.
const (
	// server -> client
	MessageNewPhoto     = "new-photo"
	MessagePhotoDeleted = "photo-deleted"
	MessageJoined       = "joined"
	MessageLeft         = "left"
	MessageError        = "error"

	// client -> server
	MessageJoinEvent  = "join-event"
	MessageLeaveEvent = "leave-event"
)

// Envelope is the single frame format on the wire.
type Envelope struct {
	Type      string          `json:"type"`
	EventSlug string          `json:"eventSlug,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`

	raw []byte
}

// NewEnvelope encodes payload and the envelope once, so that fan-out does
// not marshal per subscriber.
func NewEnvelope(msgType, slug string, payload interface{}) (Envelope, error) {
	env := Envelope{Type: msgType, EventSlug: slug}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, err
		}
		env.Data = data
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return Envelope{}, err
	}
	env.raw = raw
	return env, nil
}

// Bytes returns the encoded frame.
func (e Envelope) Bytes() []byte {
	if e.raw != nil {
		return e.raw
	}
	b, _ := json.Marshal(e)
	return b
}

var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,63}$`)

// ValidSlug reports whether s looks like an event slug.
func ValidSlug(s string) bool { return slugPattern.MatchString(s) }

// RoomName is the name used for a slug's room in logs and diagnostics.
func RoomName(slug string) string { return "event:" + slug }
