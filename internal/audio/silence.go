package audio

import "encoding/binary"

// DefaultSilenceAmplitude is the absolute 16-bit amplitude at or below which a sample counts as silent
const DefaultSilenceAmplitude = 500

// SilenceDetector classifies PCM units as silent or audible
type SilenceDetector struct {
	Threshold int
	// Stride is the number of samples advanced between checks. Values below 1 check every sample.
	Stride int
}

// NewSilenceDetector creates a detector; a non-positive threshold uses the default
func NewSilenceDetector(threshold, stride int) SilenceDetector {
	if threshold <= 0 {
		threshold = DefaultSilenceAmplitude
	}
	if stride < 1 {
		stride = 1
	}
	return SilenceDetector{Threshold: threshold, Stride: stride}
}

// IsSilent reports whether every examined sample of the WAV unit is at or below the threshold.
// A unit without samples is silent.
func (d SilenceDetector) IsSilent(wav []byte) bool {
	return d.IsSilentPCM(PCM(wav))
}

// IsSilentPCM is IsSilent for headerless 16-bit little-endian PCM
func (d SilenceDetector) IsSilentPCM(pcm []byte) bool {
	stride := d.Stride
	if stride < 1 {
		stride = 1
	}
	step := stride * 2
	limit := int32(d.Threshold)

	for i := 0; i+1 < len(pcm); i += step {
		sample := int32(int16(binary.LittleEndian.Uint16(pcm[i:])))
		if sample < 0 {
			sample = -sample
		}
		if sample > limit {
			return false
		}
	}
	return true
}

// PeakAmplitude returns the largest absolute sample value in the WAV unit
func PeakAmplitude(wav []byte) int {
	pcm := PCM(wav)
	var peak int32
	for i := 0; i+1 < len(pcm); i += 2 {
		sample := int32(int16(binary.LittleEndian.Uint16(pcm[i:])))
		if sample < 0 {
			sample = -sample
		}
		if sample > peak {
			peak = sample
		}
	}
	return int(peak)
}
