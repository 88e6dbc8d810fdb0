package media

// Resample converts a linear PCM sample sequence from srcRate to dstRate
// using nearest-neighbor selection. Output length is
// floor(len(samples) * dstRate / srcRate); output index i maps to source
// index floor(i * srcRate / dstRate), clamped to the last valid index.
//
// Nearest-neighbor is a deliberate low-latency, low-compute tradeoff for
// voice-band telephony audio. It is not band-limited; see the recorder
// package for the quality resampler used off the real-time path.
func Resample(samples []int16, srcRate, dstRate int) []int16 {
	if srcRate == dstRate || len(samples) == 0 {
		return samples
	}

	outLen := len(samples) * dstRate / srcRate
	out := make([]int16, outLen)
	last := len(samples) - 1
	for i := 0; i < outLen; i++ {
		idx := i * srcRate / dstRate
		if idx > last {
			idx = last
		}
		out[i] = samples[idx]
	}
	return out
}
