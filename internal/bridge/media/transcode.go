package media

// Transcoder composes the codec and the resampler into the two
// directional pipelines of a bridge: uplink (telephony → AI) and
// downlink (AI → telephony). It is frame-synchronous and holds no
// state between calls; every call operates on a complete,
// self-contained buffer.
type Transcoder struct {
	// Encoding is the telephony leg companding law, EncodingMuLaw or
	// EncodingALaw. Zero value defaults to µ-law.
	Encoding string

	// NarrowbandRate and WidebandRate override the leg sample rates.
	// Zero values default to 8000 and 24000.
	NarrowbandRateHz int
	WidebandRateHz   int
}

func (t Transcoder) rates() (nb, wb int) {
	nb, wb = t.NarrowbandRateHz, t.WidebandRateHz
	if nb == 0 {
		nb = NarrowbandRate
	}
	if wb == 0 {
		wb = WidebandRate
	}
	return nb, wb
}

// ToWideband runs the uplink pipeline: companded telephone bytes at the
// narrowband rate to little-endian 16-bit PCM at the wideband rate.
func (t Transcoder) ToWideband(encoded []byte) []byte {
	nb, wb := t.rates()

	var samples []int16
	if t.Encoding == EncodingALaw {
		samples = BytesToPCM16(DecodeALawBytes(encoded))
	} else {
		samples = DecodeMuLawSamples(encoded)
	}

	return PCM16ToBytes(Resample(samples, nb, wb))
}

// ToNarrowband runs the downlink pipeline: little-endian 16-bit PCM at
// the wideband rate to companded telephone bytes at the narrowband
// rate. An odd trailing byte is excluded from sample interpretation.
func (t Transcoder) ToNarrowband(pcm []byte) []byte {
	nb, wb := t.rates()

	samples := Resample(BytesToPCM16(pcm), wb, nb)
	if t.Encoding == EncodingALaw {
		return EncodeALawBytes(PCM16ToBytes(samples))
	}
	return EncodeMuLawSamples(samples)
}
