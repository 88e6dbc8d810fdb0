package realtime

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Client event types (bridge → session input buffer).
const (
	EventTypeInputAudioBufferAppend = "input_audio_buffer.append"
	EventTypeInputAudioBufferCommit = "input_audio_buffer.commit"
	EventTypeSessionUpdate          = "session.update"
)

// Upstream server event types the relay reacts to. Everything else is
// ignored.
const (
	EventTypeResponseAudioDelta = "response.audio.delta"
	EventTypeSessionCreated     = "session.created"
	EventTypeError              = "error"
)

// EventTypeAudio is the outbound event shape a session delivers to its
// transport: {"type":"audio","delta":"<base64 pcm16@24k>"}.
const EventTypeAudio = "audio"

// ClientEvent is an event sent into a session.
type ClientEvent struct {
	EventID string          `json:"event_id,omitempty"`
	Type    string          `json:"type"`
	Audio   string          `json:"audio,omitempty"`
	Session json.RawMessage `json:"session,omitempty"`
}

// ServerEvent is an event received from the upstream session, reduced
// to the fields the bridge needs.
type ServerEvent struct {
	EventID string `json:"event_id,omitempty"`
	Type    string `json:"type"`

	// Delta carries base64 PCM for response.audio.delta events and the
	// payload of outbound "audio" transport events.
	Delta string `json:"delta,omitempty"`

	// Error details, present on error events.
	Error *EventError `json:"error,omitempty"`
}

// EventError describes an upstream error event.
type EventError struct {
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

func newEventID() string {
	return "evt_" + uuid.New().String()[:12]
}
