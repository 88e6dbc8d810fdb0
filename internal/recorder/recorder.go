// Package recorder writes per-call WAV recordings of the downlink
// (AI → caller) audio. The tap sits off the real-time path: wideband
// PCM frames are pushed through a band-limited resampler down to the
// recording rate and appended to a PCM WAV file. Recording is best
// effort and never affects the bridge.
package recorder

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	resampling "github.com/tphakala/go-audio-resampling"
)

const (
	sourceRate    = 24000
	recordingRate = 16000
)

// Recorder opens recording taps in a base directory.
type Recorder struct {
	dir string
}

// New creates a recorder writing into dir, creating it if needed.
func New(dir string) (*Recorder, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create recording dir: %w", err)
	}
	return &Recorder{dir: dir}, nil
}

// Open starts a recording for the given call. Returns nil when the
// tap cannot be opened; the bridge treats a nil tap as no recording.
func (r *Recorder) Open(callID string) *Tap {
	path := filepath.Join(r.dir, callID+".wav")

	f, err := os.Create(path)
	if err != nil {
		slog.Warn("[Recorder] Failed to create recording file", "call_id", callID, "error", err)
		return nil
	}

	rs, err := resampling.New(&resampling.Config{
		InputRate:  float64(sourceRate),
		OutputRate: float64(recordingRate),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		slog.Warn("[Recorder] Failed to create resampler", "call_id", callID, "error", err)
		_ = f.Close()
		_ = os.Remove(path)
		return nil
	}

	// Reserve space for the header; it is patched on Close once the
	// data length is known.
	if err := writeWAVHeader(f, recordingRate, 0); err != nil {
		slog.Warn("[Recorder] Failed to write WAV header", "call_id", callID, "error", err)
		_ = f.Close()
		_ = os.Remove(path)
		return nil
	}

	slog.Info("[Recorder] Recording started", "call_id", callID, "path", path)
	return &Tap{callID: callID, file: f, resampler: rs}
}

// Tap is one call's recording sink. Write accepts little-endian 16-bit
// PCM at the wideband rate.
type Tap struct {
	callID    string
	file      *os.File
	resampler resampling.Resampler

	mu        sync.Mutex
	closed    bool
	leftover  []byte
	dataBytes int
}

// Write resamples and appends one wideband PCM buffer.
func (t *Tap) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return 0, os.ErrClosed
	}

	buf := p
	if len(t.leftover) > 0 {
		buf = append(t.leftover, p...)
		t.leftover = nil
	}
	if len(buf)%2 != 0 {
		t.leftover = []byte{buf[len(buf)-1]}
		buf = buf[:len(buf)-1]
	}
	if len(buf) == 0 {
		return len(p), nil
	}

	samples := make([]float64, len(buf)/2)
	for i := range samples {
		s := int16(buf[i*2]) | int16(buf[i*2+1])<<8
		samples[i] = float64(s) / 32768.0
	}

	out, err := t.resampler.Process(samples)
	if err != nil {
		return len(p), fmt.Errorf("resample failed: %w", err)
	}

	data := make([]byte, len(out)*2)
	for i, v := range out {
		if v > 1.0 {
			v = 1.0
		} else if v < -1.0 {
			v = -1.0
		}
		s := int16(v * 32767.0)
		data[i*2] = byte(s)
		data[i*2+1] = byte(s >> 8)
	}

	if _, err := t.file.Write(data); err != nil {
		return len(p), fmt.Errorf("recording write failed: %w", err)
	}
	t.dataBytes += len(data)

	return len(p), nil
}

// Close patches the WAV header with the final data length and closes
// the file. Safe to call more than once.
func (t *Tap) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true

	if _, err := t.file.Seek(0, 0); err == nil {
		_ = writeWAVHeader(t.file, recordingRate, t.dataBytes)
	}
	err := t.file.Close()

	slog.Info("[Recorder] Recording finished",
		"call_id", t.callID, "bytes", t.dataBytes)
	return err
}
