// Package realtime is the AI-session collaborator of the voice bridge.
//
// The bridge drives it through two narrow surfaces: SessionService
// creates and closes sessions keyed by a deterministic session key, and
// Transport is what a session uses in place of a native client socket
// to deliver its outbound events. The production implementation
// (Manager) relays between an upstream realtime WebSocket and the
// bound transport; tests substitute fakes for both sides.
package realtime

import "context"

// Transport is the capability a session needs from its client-facing
// connection: an open-state query, a send, an event-registration hook
// and a close. The bridge's upstream adapter implements it headlessly.
type Transport interface {
	// IsOpen reports whether the transport can still accept messages.
	IsOpen() bool

	// Send delivers one outbound session event, already serialized.
	Send(data []byte) error

	// OnEvent registers a handler for inbound transport events. The
	// bridge drives sessions directly and registers nothing.
	OnEvent(fn func(data []byte))

	// Close releases the transport. Implementations may treat this as
	// a no-op when the underlying connection is owned elsewhere.
	Close() error
}

// Session is an active AI session accepting input-buffer events.
type Session interface {
	// AppendAudio appends wideband 16-bit little-endian PCM to the
	// session's input audio buffer.
	AppendAudio(pcm []byte) error

	// CommitInput signals an utterance boundary on the input buffer.
	CommitInput() error
}

// SessionService creates and closes AI sessions. The bridge controller
// owns the session keys; one key maps to at most one live session.
type SessionService interface {
	CreateSession(ctx context.Context, transport Transport, sessionKey string) (Session, error)
	CloseSession(sessionKey string) error
}
