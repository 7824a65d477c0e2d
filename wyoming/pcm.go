package wyoming

import "encoding/binary"

// Audio format for the ASR exchange: mono 16 kHz signed 16-bit LE PCM.
const (
	SampleRate  = 16000
	SampleWidth = 2
	Channels    = 1
)

// Downmix averages interleaved multi-channel samples into mono. The input
// is returned unchanged for mono or unknown channel counts.
func Downmix(samples []float32, channels int) []float32 {
	if channels <= 1 {
		return samples
	}
	frames := len(samples) / channels
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for ch := 0; ch < channels; ch++ {
			sum += samples[i*channels+ch]
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// EncodePCM converts normalized float samples to 16-bit little-endian PCM.
// Values are clipped to [-1, 1] first so out-of-range input cannot wrap
// around during integer conversion.
func EncodePCM(samples []float32) []byte {
	out := make([]byte, len(samples)*SampleWidth)
	for i, v := range samples {
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v*32767)))
	}
	return out
}
