package bridge

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/sebas/voicebridge/internal/bridge/media"
	"github.com/sebas/voicebridge/internal/telephony"
)

func audioEvent(t *testing.T, pcm []byte) []byte {
	t.Helper()
	data, err := json.Marshal(map[string]string{
		"type":  "audio",
		"delta": base64.StdEncoding.EncodeToString(pcm),
	})
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return data
}

func TestAdapterRelaysAudioDelta(t *testing.T) {
	conn := newFakeConn()
	var stats Stats
	a := NewAdapter("call-1", "stream-1", conn, media.Transcoder{}, nil, &stats)

	// 20ms of wideband PCM.
	pcm := make([]byte, 480*2)
	if err := a.Send(audioEvent(t, pcm)); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if conn.writeCount() != 1 {
		t.Fatalf("writes = %d, want 1", conn.writeCount())
	}

	var msg telephony.MediaMessage
	if err := json.Unmarshal(conn.writes[0], &msg); err != nil {
		t.Fatalf("unmarshal outbound message: %v", err)
	}
	if msg.Event != telephony.EventMedia {
		t.Errorf("event = %q, want %q", msg.Event, telephony.EventMedia)
	}
	if msg.StreamSID != "stream-1" {
		t.Errorf("streamSid = %q, want %q", msg.StreamSID, "stream-1")
	}

	payload, err := base64.StdEncoding.DecodeString(msg.Media.Payload)
	if err != nil {
		t.Fatalf("payload not base64: %v", err)
	}
	if len(payload) != 160 {
		t.Errorf("payload = %d µ-law bytes, want 160", len(payload))
	}

	if stats.DownlinkFrames.Load() != 1 {
		t.Errorf("DownlinkFrames = %d, want 1", stats.DownlinkFrames.Load())
	}
	// 480 wideband samples is 20ms of audio.
	if got := time.Duration(stats.DownlinkAudio.Load()); got != 20*time.Millisecond {
		t.Errorf("DownlinkAudio = %v, want 20ms", got)
	}
}

func TestAdapterDiscardsMalformedAndNonAudio(t *testing.T) {
	conn := newFakeConn()
	var stats Stats
	a := NewAdapter("call-1", "stream-1", conn, media.Transcoder{}, nil, &stats)

	events := [][]byte{
		[]byte("not json at all"),
		[]byte(`{"type":"response.done"}`),
		[]byte(`{"type":"audio"}`),         // audio without payload
		[]byte(`{"type":"audio","delta":"!!!not-base64!!!"}`),
		[]byte(`{}`),
	}
	for _, ev := range events {
		if err := a.Send(ev); err != nil {
			t.Errorf("Send(%q) returned error: %v", ev, err)
		}
	}

	if conn.writeCount() != 0 {
		t.Errorf("writes = %d, want 0", conn.writeCount())
	}
}

func TestAdapterDropsFrameOnClosedConn(t *testing.T) {
	conn := newFakeConn()
	conn.close()
	var stats Stats
	a := NewAdapter("call-1", "stream-1", conn, media.Transcoder{}, nil, &stats)

	if !conn.IsOpen() && a.IsOpen() {
		t.Fatal("adapter reports open on closed connection")
	}
	if err := a.Send(audioEvent(t, make([]byte, 960))); err != nil {
		t.Fatalf("Send on closed conn must not error, got %v", err)
	}
	if conn.writeCount() != 0 {
		t.Errorf("writes = %d, want 0", conn.writeCount())
	}
	if stats.DownlinkDropped.Load() != 1 {
		t.Errorf("DownlinkDropped = %d, want 1", stats.DownlinkDropped.Load())
	}
}

func TestAdapterSwallowsWriteFailure(t *testing.T) {
	conn := newFakeConn()
	conn.writeErr = bytes.ErrTooLarge
	var stats Stats
	a := NewAdapter("call-1", "stream-1", conn, media.Transcoder{}, nil, &stats)

	if err := a.Send(audioEvent(t, make([]byte, 960))); err != nil {
		t.Fatalf("Send must swallow write failures, got %v", err)
	}
	if stats.DownlinkDropped.Load() != 1 {
		t.Errorf("DownlinkDropped = %d, want 1", stats.DownlinkDropped.Load())
	}
}

type collectTap struct {
	bytes.Buffer
	closed bool
}

func (c *collectTap) Close() error {
	c.closed = true
	return nil
}

func TestAdapterFeedsDownlinkTap(t *testing.T) {
	conn := newFakeConn()
	var stats Stats
	tap := &collectTap{}
	a := NewAdapter("call-1", "stream-1", conn, media.Transcoder{}, tap, &stats)

	pcm := make([]byte, 960)
	for i := range pcm {
		pcm[i] = byte(i)
	}
	if err := a.Send(audioEvent(t, pcm)); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if !bytes.Equal(tap.Bytes(), pcm) {
		t.Error("tap did not receive the wideband frame")
	}
}
