package bridge

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"

	"github.com/sebas/voicebridge/internal/bridge/media"
	"github.com/sebas/voicebridge/internal/bridge/registry"
	"github.com/sebas/voicebridge/internal/telephony"
)

// Adapter is the transport shim handed to the AI-session subsystem in
// place of a native client connection: the session writes its outbound
// events into Send, and audio deltas come out the telephony leg as
// media messages. Everything else the transport interface requires is
// a no-op.
type Adapter struct {
	callID     string
	streamID   string
	conn       registry.TelephonyConn
	transcoder media.Transcoder
	tap        io.Writer // optional wideband downlink tap, may be nil
	stats      *Stats
}

// NewAdapter binds an adapter to one call's telephony leg.
func NewAdapter(callID, streamID string, conn registry.TelephonyConn, transcoder media.Transcoder, tap io.Writer, stats *Stats) *Adapter {
	return &Adapter{
		callID:     callID,
		streamID:   streamID,
		conn:       conn,
		transcoder: transcoder,
		tap:        tap,
		stats:      stats,
	}
}

// IsOpen reports the open state of the underlying telephony leg.
func (a *Adapter) IsOpen() bool {
	return a.conn.IsOpen()
}

// Send receives one outbound AI-session event. Audio deltas run the
// downlink pipeline and go out the telephony connection; anything
// unparseable or non-audio is discarded silently. A closed connection
// or failed write is a dropped frame, never an error for the session.
func (a *Adapter) Send(data []byte) error {
	var ev struct {
		Type  string `json:"type"`
		Delta string `json:"delta"`
	}
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil
	}
	if ev.Type != "audio" || ev.Delta == "" {
		return nil
	}

	pcm, err := base64.StdEncoding.DecodeString(ev.Delta)
	if err != nil {
		return nil
	}
	frame := media.Frame{Data: pcm, Format: media.WidebandPCM}

	if a.tap != nil {
		// Best effort; the tap never affects the call.
		_, _ = a.tap.Write(frame.Data)
	}

	payload := a.transcoder.ToNarrowband(frame.Data)
	msg, err := telephony.OutboundMedia(a.streamID, payload)
	if err != nil {
		a.stats.DownlinkDropped.Add(1)
		return nil
	}

	if !a.conn.IsOpen() {
		a.stats.DownlinkDropped.Add(1)
		return nil
	}
	if err := a.conn.WriteMessage(msg); err != nil {
		a.stats.DownlinkDropped.Add(1)
		slog.Debug("[Bridge] Telephony write failed, frame dropped", "call_id", a.callID, "error", err)
		return nil
	}

	a.stats.DownlinkFrames.Add(1)
	a.stats.DownlinkAudio.Add(int64(frame.Duration()))
	return nil
}

// OnEvent is a no-op; the bridge drives the session directly.
func (a *Adapter) OnEvent(fn func(data []byte)) {}

// Close is a no-op; the telephony leg's lifecycle is owned by its
// server, not by the AI session.
func (a *Adapter) Close() error {
	return nil
}
