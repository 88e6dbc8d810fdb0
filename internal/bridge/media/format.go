package media

import "time"

// Audio encodings exchanged over the wire. The telephony leg announces
// its encoding in the stream start message using these MIME-style names.
const (
	EncodingMuLaw    = "audio/x-mulaw"
	EncodingALaw     = "audio/x-alaw"
	EncodingLinear16 = "audio/x-l16"
)

// Standard sample rates for the two legs of a bridge.
const (
	// NarrowbandRate is the telephone-audio sample rate.
	NarrowbandRate = 8000

	// WidebandRate is the sample rate the realtime AI session consumes
	// and produces.
	WidebandRate = 24000
)

// Format describes the shape of an audio byte sequence.
type Format struct {
	Encoding     string // EncodingMuLaw, EncodingALaw or EncodingLinear16
	SampleRateHz int
	Channels     int // always 1 for telephone audio
}

// NarrowbandMuLaw is the default telephony leg format.
var NarrowbandMuLaw = Format{Encoding: EncodingMuLaw, SampleRateHz: NarrowbandRate, Channels: 1}

// WidebandPCM is the realtime AI leg format.
var WidebandPCM = Format{Encoding: EncodingLinear16, SampleRateHz: WidebandRate, Channels: 1}

// NarrowbandFormat returns the telephony leg format for the given
// companding law. An empty encoding defaults to µ-law.
func NarrowbandFormat(encoding string) Format {
	f := NarrowbandMuLaw
	if encoding != "" {
		f.Encoding = encoding
	}
	return f
}

// Frame is one immutable unit of audio payload plus its format
// descriptor. Frames are produced by decoding a wire message, consumed
// by the transcoder, and discarded after relay; the bridge never
// buffers beyond the current frame.
type Frame struct {
	Data   []byte
	Format Format
}

// Samples returns the number of audio samples the frame carries.
func (f Frame) Samples() int {
	if f.Format.Encoding == EncodingLinear16 {
		return len(f.Data) / 2
	}
	return len(f.Data)
}

// Duration returns the wall-clock duration of the frame's audio.
func (f Frame) Duration() time.Duration {
	if f.Format.SampleRateHz <= 0 {
		return 0
	}
	return time.Duration(f.Samples()) * time.Second / time.Duration(f.Format.SampleRateHz)
}
