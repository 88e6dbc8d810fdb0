// Package telephony terminates the media-stream WebSocket leg of a
// call and feeds it into a call handler. The wire protocol is the
// Twilio Media Streams JSON shape: every message carries an event name,
// audio travels as base64 payloads tagged with a stream identifier.
package telephony

import (
	"encoding/base64"
	"encoding/json"
)

// Wire event names.
const (
	EventConnected = "connected"
	EventStart     = "start"
	EventMedia     = "media"
	EventMark      = "mark"
	EventStop      = "stop"
	EventDTMF      = "dtmf"
)

// MediaMessage is one inbound or outbound wire message.
type MediaMessage struct {
	Event     string        `json:"event"`
	StreamSID string        `json:"streamSid,omitempty"`
	Start     *StartPayload `json:"start,omitempty"`
	Media     *MediaPayload `json:"media,omitempty"`
	Mark      *MarkPayload  `json:"mark,omitempty"`
	Stop      *StopPayload  `json:"stop,omitempty"`
	DTMF      *DTMFPayload  `json:"dtmf,omitempty"`
}

// StartPayload announces a new media stream.
type StartPayload struct {
	StreamSID    string            `json:"streamSid"`
	CallSID      string            `json:"callSid"`
	AccountSID   string            `json:"accountSid,omitempty"`
	Tracks       []string          `json:"tracks,omitempty"`
	MediaFormat  MediaFormat       `json:"mediaFormat"`
	CustomParams map[string]string `json:"customParameters,omitempty"`
}

// MediaFormat describes the stream's audio format.
type MediaFormat struct {
	Encoding   string `json:"encoding"`   // "audio/x-mulaw" or "audio/x-alaw"
	SampleRate int    `json:"sampleRate"` // 8000
	Channels   int    `json:"channels"`   // 1
}

// MediaPayload carries one frame of base64-encoded audio.
type MediaPayload struct {
	Track     string `json:"track,omitempty"`
	Chunk     string `json:"chunk,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   string `json:"payload"`
}

// MarkPayload is a synchronization marker.
type MarkPayload struct {
	Name string `json:"name"`
}

// StopPayload announces the end of the stream.
type StopPayload struct {
	CallSID    string `json:"callSid,omitempty"`
	AccountSID string `json:"accountSid,omitempty"`
}

// DTMFPayload carries one keypad digit.
type DTMFPayload struct {
	Track string `json:"track,omitempty"`
	Digit string `json:"digit"`
}

// OutboundMedia builds a serialized outbound media message carrying the
// given companded audio bytes, tagged with the stream identifier.
func OutboundMedia(streamID string, audio []byte) ([]byte, error) {
	return json.Marshal(MediaMessage{
		Event:     EventMedia,
		StreamSID: streamID,
		Media:     &MediaPayload{Payload: base64.StdEncoding.EncodeToString(audio)},
	})
}
