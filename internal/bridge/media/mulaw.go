package media

import "encoding/binary"

// G.711 µ-law companding constants. The codec operates in the 13-bit
// magnitude domain: bias 33, clip 0x1FFF, eight exponent segments with
// the segment boundary scanned from bit 12 down to bit 5.
const (
	muLawBias = 33
	muLawMax  = 0x1FFF
)

// EncodeMuLaw compresses one 16-bit linear sample to one µ-law byte.
// Defined for every input; magnitudes beyond the 13-bit domain clip.
func EncodeMuLaw(sample int16) byte {
	n := int(sample)
	sign := 0
	if n < 0 {
		sign = 0x80
		n = -n
	}

	n += muLawBias
	if n > muLawMax {
		n = muLawMax
	}

	// Find the segment: highest set bit between positions 12 and 5.
	position := 12
	mask := 0x1000
	for (n&mask) == 0 && position > 5 {
		mask >>= 1
		position--
	}

	mantissa := (n >> (position - 4)) & 0x0F
	return byte(^(sign | ((position - 5) << 4) | mantissa) & 0xFF)
}

// DecodeMuLaw expands one µ-law byte to a 16-bit linear sample.
func DecodeMuLaw(b byte) int16 {
	n := int(^b) & 0xFF
	sign := n & 0x80
	position := ((n & 0xF0) >> 4) + 5
	mantissa := n & 0x0F

	// Segment bit, mantissa bits, and the half-step rounding bit.
	decoded := (1 << position) | (mantissa << (position - 4)) | (1 << (position - 5))
	decoded -= muLawBias

	if sign != 0 {
		return int16(-decoded)
	}
	return int16(decoded)
}

// DecodeMuLawSamples expands µ-law bytes to linear samples.
func DecodeMuLawSamples(data []byte) []int16 {
	out := make([]int16, len(data))
	for i, b := range data {
		out[i] = DecodeMuLaw(b)
	}
	return out
}

// EncodeMuLawSamples compresses linear samples to µ-law bytes.
func EncodeMuLawSamples(samples []int16) []byte {
	out := make([]byte, len(samples))
	for i, s := range samples {
		out[i] = EncodeMuLaw(s)
	}
	return out
}

// BytesToPCM16 interprets little-endian 16-bit PCM bytes as samples.
// An odd trailing byte is excluded from sample interpretation.
func BytesToPCM16(data []byte) []int16 {
	n := len(data) / 2
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		out[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return out
}

// PCM16ToBytes serializes samples as little-endian 16-bit PCM bytes.
func PCM16ToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}
