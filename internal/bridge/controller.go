// Package bridge relays audio between a narrowband telephony call leg
// and a wideband realtime AI session, one isolated bridge per call.
package bridge

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/sebas/voicebridge/internal/bridge/media"
	"github.com/sebas/voicebridge/internal/bridge/registry"
	"github.com/sebas/voicebridge/internal/realtime"
)

// ErrAlreadyActive is returned by Start when the call is already
// bridged. Starting twice is a caller bug and is surfaced.
var ErrAlreadyActive = errors.New("bridge already active for call")

// Stats counts relayed and dropped frames across all calls, plus the
// wall-clock audio duration relayed per direction.
type Stats struct {
	UplinkFrames    atomic.Int64
	UplinkDropped   atomic.Int64
	DownlinkFrames  atomic.Int64
	DownlinkDropped atomic.Int64
	UplinkAudio     atomic.Int64 // nanoseconds
	DownlinkAudio   atomic.Int64 // nanoseconds
}

// StatsSnapshot is a point-in-time copy of the counters.
type StatsSnapshot struct {
	UplinkFrames    int64         `json:"uplink_frames"`
	UplinkDropped   int64         `json:"uplink_dropped"`
	DownlinkFrames  int64         `json:"downlink_frames"`
	DownlinkDropped int64         `json:"downlink_dropped"`
	UplinkAudio     time.Duration `json:"uplink_audio_ns"`
	DownlinkAudio   time.Duration `json:"downlink_audio_ns"`
}

// TapFactory opens a recording tap for a call's downlink audio. A nil
// factory, or a nil tap, disables recording for the call.
type TapFactory func(callID string) io.WriteCloser

// Controller is the orchestration surface of the bridge: start and
// stop a call's bridge, ingest inbound telephony audio, forward commit
// signals, and (through the adapters it builds) route AI events back
// to the telephony leg. Its four public operations are the complete
// contract other system parts may rely on.
type Controller struct {
	registry   *registry.Registry
	sessions   realtime.SessionService
	transcoder media.Transcoder
	tapFactory TapFactory
	stats      Stats
}

// NewController builds a controller over the given registry and
// AI-session service. The transcoder carries the leg sample rates; the
// per-call companding law is taken from each call's start message.
func NewController(reg *registry.Registry, sessions realtime.SessionService, transcoder media.Transcoder, tapFactory TapFactory) *Controller {
	return &Controller{
		registry:   reg,
		sessions:   sessions,
		transcoder: transcoder,
		tapFactory: tapFactory,
	}
}

// Start bridges a new call: builds the upstream adapter, asks the
// AI-session service for a session transported over it, and registers
// the call. Returns the AI session key, or ErrAlreadyActive.
func (c *Controller) Start(ctx context.Context, callID string, conn registry.TelephonyConn, streamID, encoding string) (string, error) {
	if _, exists := c.registry.Get(callID); exists {
		return "", fmt.Errorf("%w: %s", ErrAlreadyActive, callID)
	}

	transcoder := c.transcoder
	transcoder.Encoding = encoding

	var tap io.WriteCloser
	if c.tapFactory != nil {
		tap = c.tapFactory(callID)
	}

	sessionKey := registry.SessionKey(callID)
	adapter := NewAdapter(callID, streamID, conn, transcoder, tap, &c.stats)

	aiSession, err := c.sessions.CreateSession(ctx, adapter, sessionKey)
	if err != nil {
		if tap != nil {
			_ = tap.Close()
		}
		return "", fmt.Errorf("failed to create AI session for call %s: %w", callID, err)
	}

	err = c.registry.Create(&registry.CallSession{
		CallID:        callID,
		StreamID:      streamID,
		Encoding:      encoding,
		TelephonyConn: conn,
		AISession:     aiSession,
		Recording:     tap,
	})
	if err != nil {
		// Lost a start race; tear down the session we just created.
		_ = c.sessions.CloseSession(sessionKey)
		if tap != nil {
			_ = tap.Close()
		}
		return "", fmt.Errorf("%w: %s", ErrAlreadyActive, callID)
	}

	slog.Info("[Bridge] Started", "call_id", callID, "stream_id", streamID, "session_key", sessionKey)
	return sessionKey, nil
}

// HandleInboundAudio ingests one base64 companded payload from the
// telephony leg, runs the uplink pipeline and appends the wideband
// result to the AI session's input buffer. Frames for unknown calls
// are dropped silently; late frames after a hangup are expected.
func (c *Controller) HandleInboundAudio(callID, payloadB64 string) {
	sess, ok := c.registry.Get(callID)
	if !ok {
		return
	}

	payload, err := base64.StdEncoding.DecodeString(payloadB64)
	if err != nil {
		c.stats.UplinkDropped.Add(1)
		return
	}

	frame := media.Frame{Data: payload, Format: media.NarrowbandFormat(sess.Encoding)}

	transcoder := c.transcoder
	transcoder.Encoding = sess.Encoding
	pcm := transcoder.ToWideband(frame.Data)

	if err := sess.AISession.AppendAudio(pcm); err != nil {
		c.stats.UplinkDropped.Add(1)
		slog.Debug("[Bridge] AI session write failed, frame dropped", "call_id", callID, "error", err)
		return
	}
	c.stats.UplinkFrames.Add(1)
	c.stats.UplinkAudio.Add(int64(frame.Duration()))
}

// Commit signals an utterance boundary on the call's input buffer.
// No-op for unknown calls.
func (c *Controller) Commit(callID string) {
	sess, ok := c.registry.Get(callID)
	if !ok {
		return
	}
	if err := sess.AISession.CommitInput(); err != nil {
		slog.Debug("[Bridge] Commit failed", "call_id", callID, "error", err)
	}
}

// Stop tears the call's bridge down: closes the AI session, releases
// the recording tap and deregisters the call. Idempotent; safe to call
// concurrently with in-flight audio for the same call.
func (c *Controller) Stop(callID string) {
	sess, ok := c.registry.Destroy(callID)
	if !ok {
		return
	}

	if err := c.sessions.CloseSession(sess.AISessionID); err != nil {
		slog.Warn("[Bridge] Failed to close AI session", "call_id", callID, "error", err)
	}
	if sess.Recording != nil {
		_ = sess.Recording.Close()
	}

	slog.Info("[Bridge] Stopped", "call_id", callID)
}

// Stats returns a snapshot of the relay counters.
func (c *Controller) Stats() StatsSnapshot {
	return StatsSnapshot{
		UplinkFrames:    c.stats.UplinkFrames.Load(),
		UplinkDropped:   c.stats.UplinkDropped.Load(),
		DownlinkFrames:  c.stats.DownlinkFrames.Load(),
		DownlinkDropped: c.stats.DownlinkDropped.Load(),
		UplinkAudio:     time.Duration(c.stats.UplinkAudio.Load()),
		DownlinkAudio:   time.Duration(c.stats.DownlinkAudio.Load()),
	}
}
