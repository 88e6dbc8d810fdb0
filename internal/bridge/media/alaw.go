package media

import "github.com/zaf/g711"

// A-law companding for trunks outside the µ-law regions. Delegated to
// zaf/g711; the µ-law path stays in-repo because its 13-bit quantization
// domain must match the platform's reference tables (see mulaw.go).

// DecodeALawBytes expands A-law bytes to little-endian 16-bit PCM bytes.
func DecodeALawBytes(data []byte) []byte {
	return g711.DecodeAlaw(data)
}

// EncodeALawBytes compresses little-endian 16-bit PCM bytes to A-law.
// An odd trailing byte is excluded from sample interpretation.
func EncodeALawBytes(pcm []byte) []byte {
	return g711.EncodeAlaw(pcm[:len(pcm)/2*2])
}
