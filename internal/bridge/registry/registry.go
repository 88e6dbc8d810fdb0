// Package registry tracks the active bridge sessions of the process.
// It is the single source of truth for "is this call currently
// bridged"; components consult it rather than caching session state.
package registry

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/sebas/voicebridge/internal/realtime"
)

// ErrDuplicateSession is returned when a session is created for a call
// that already has one. Creating twice is a caller bug.
var ErrDuplicateSession = errors.New("session already exists for call")

// TelephonyConn is the write side of a live telephony media stream.
// The bridge does not own its lifecycle; it only observes the open
// state before writing.
type TelephonyConn interface {
	IsOpen() bool
	WriteMessage(data []byte) error
}

// CallSession identifies one active bridge: the AI-session handle, the
// telephony stream identifier and the telephony connection handle.
type CallSession struct {
	CallID        string
	AISessionID   string // derived deterministically from CallID
	StreamID      string // tags outbound telephony frames
	Encoding      string // telephony companding law, empty means µ-law
	TelephonyConn TelephonyConn
	AISession     realtime.Session
	Recording     io.WriteCloser // optional downlink tap, may be nil
	CreatedAt     time.Time
}

// SessionKey derives the AI session identifier for a call. The mapping
// is deterministic so a call can always be re-associated with its
// session.
func SessionKey(callID string) string {
	return "rt-" + callID
}

// Registry is a concurrency-safe map from call ID to active session.
// Insertion on start, deletion on stop; no other mutation. Sessions
// are created and destroyed explicitly - a leaked entry is a bug, not
// a tolerated state.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*CallSession
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		sessions: make(map[string]*CallSession),
	}
}

// Create registers the session for its call ID, filling in the derived
// session key and creation time. Fails with ErrDuplicateSession if the
// call is already bridged.
func (r *Registry) Create(sess *CallSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[sess.CallID]; exists {
		return ErrDuplicateSession
	}

	sess.AISessionID = SessionKey(sess.CallID)
	sess.CreatedAt = time.Now()
	r.sessions[sess.CallID] = sess

	slog.Info("[Registry] Session created",
		"call_id", sess.CallID, "ai_session_id", sess.AISessionID, "stream_id", sess.StreamID)
	return nil
}

// Get returns the active session for callID, if any.
func (r *Registry) Get(callID string) (*CallSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[callID]
	return sess, ok
}

// Destroy removes and returns the session for callID. Destroying an
// absent session is a no-op; shutdown races are expected.
func (r *Registry) Destroy(callID string) (*CallSession, bool) {
	r.mu.Lock()
	sess, ok := r.sessions[callID]
	delete(r.sessions, callID)
	r.mu.Unlock()

	if ok {
		slog.Info("[Registry] Session destroyed",
			"call_id", callID, "ai_session_id", sess.AISessionID,
			"lifetime", time.Since(sess.CreatedAt).Round(time.Millisecond))
	}
	return sess, ok
}

// Len returns the number of active sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CallIDs returns the IDs of all active sessions, for shutdown drains.
func (r *Registry) CallIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}
