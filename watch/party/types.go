package party

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"
)

// ErrMalformedPayload is wrapped by every parse failure in this package.
var ErrMalformedPayload = errors.New("malformed payload")

// Role describes what a participant claims to be. It is informational only.
type Role string

const (
	RoleParticipant   Role = "participant"
	RoleAdministrator Role = "administrator"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleParticipant || r == RoleAdministrator
}

// EventKind discriminates which playback action a PlayerState represents.
type EventKind string

const (
	EventNone          EventKind = "none"
	EventSourceChanged EventKind = "sourceChanged"
	EventPlay          EventKind = "play"
	EventPause         EventKind = "pause"
	EventStop          EventKind = "stop"
	EventSeek          EventKind = "seek"
	EventVolumeChanged EventKind = "volumeChanged"
	EventMuted         EventKind = "muted"
	EventUnmuted       EventKind = "unmuted"
)

var eventKinds = map[EventKind]bool{
	EventNone:          true,
	EventSourceChanged: true,
	EventPlay:          true,
	EventPause:         true,
	EventStop:          true,
	EventSeek:          true,
	EventVolumeChanged: true,
	EventMuted:         true,
	EventUnmuted:       true,
}

// Valid reports whether k is a known event kind.
func (k EventKind) Valid() bool {
	return eventKinds[k]
}

// EventKinds returns every known event kind in declaration order.
func EventKinds() []EventKind {
	return []EventKind{
		EventNone, EventSourceChanged, EventPlay, EventPause, EventStop,
		EventSeek, EventVolumeChanged, EventMuted, EventUnmuted,
	}
}

// Participant is a connected user as announced by its client
type Participant struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Role Role   `json:"role"`
}

// PlayerState is the shared description of what every player should be doing
type PlayerState struct {
	SourceReference   string    `json:"sourceReference,omitempty"`
	PlayableReference string    `json:"playableReference"`
	EventKind         EventKind `json:"eventKind"`
}

// Validate checks the required fields of a player state.
func (s PlayerState) Validate() error {
	if s.PlayableReference == "" {
		return fmt.Errorf("%w: playableReference is required", ErrMalformedPayload)
	}
	if !s.EventKind.Valid() {
		return fmt.Errorf("%w: unknown eventKind %q", ErrMalformedPayload, s.EventKind)
	}
	return nil
}

// ParseParticipant decodes a register-participant payload.
// A missing role defaults to RoleParticipant.
func ParseParticipant(payload []byte) (Participant, error) {
	obj, err := objectBytes(payload)
	if err != nil {
		return Participant{}, err
	}

	var p Participant
	if err := json.Unmarshal(obj, &p); err != nil {
		return Participant{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if p.ID == "" {
		return Participant{}, fmt.Errorf("%w: participant id is required", ErrMalformedPayload)
	}
	if p.Role == "" {
		p.Role = RoleParticipant
	}
	if !p.Role.Valid() {
		return Participant{}, fmt.Errorf("%w: unknown role %q", ErrMalformedPayload, p.Role)
	}
	return p, nil
}

// ParsePlayerState decodes and validates a player-state-changed payload.
// The returned raw message is the payload exactly as the client sent it,
// string-encoded or not, and is what gets relayed. A missing eventKind is
// treated as EventNone.
func ParsePlayerState(payload []byte) (PlayerState, json.RawMessage, error) {
	obj, err := objectBytes(payload)
	if err != nil {
		return PlayerState{}, nil, err
	}

	var s PlayerState
	if err := json.Unmarshal(obj, &s); err != nil {
		return PlayerState{}, nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if s.EventKind == "" {
		s.EventKind = EventNone
	}
	if err := s.Validate(); err != nil {
		return PlayerState{}, nil, err
	}

	trimmed := bytes.TrimSpace(payload)
	raw := make(json.RawMessage, len(trimmed))
	copy(raw, trimmed)
	return s, raw, nil
}

// objectBytes returns the JSON object carried by payload, unwrapping one level
// of string encoding if present.
func objectBytes(payload []byte) (json.RawMessage, error) {
	b := bytes.TrimSpace(payload)
	if len(b) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformedPayload)
	}
	// Relayed bytes go out in text frames, which must be UTF-8
	if !utf8.Valid(b) {
		return nil, fmt.Errorf("%w: invalid UTF-8", ErrMalformedPayload)
	}

	if b[0] == '"' {
		var inner string
		if err := json.Unmarshal(b, &inner); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		b = bytes.TrimSpace([]byte(inner))
	}

	if len(b) == 0 || b[0] != '{' || !json.Valid(b) {
		return nil, fmt.Errorf("%w: expected a JSON object", ErrMalformedPayload)
	}

	out := make(json.RawMessage, len(b))
	copy(out, b)
	return out, nil
}
