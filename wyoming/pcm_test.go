package wyoming

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestEncodePCMClipsBeforeConversion(t *testing.T) {
	clipped := EncodePCM([]float32{1.5, -2.0, 0.5})
	reference := EncodePCM([]float32{1.0, -1.0, 0.5})
	if !bytes.Equal(clipped, reference) {
		t.Errorf("out-of-range samples did not clip: %v != %v", clipped, reference)
	}
}

func TestEncodePCMValues(t *testing.T) {
	out := EncodePCM([]float32{0, 1, -1})
	want := []int16{0, 32767, -32767}
	for i, w := range want {
		got := int16(binary.LittleEndian.Uint16(out[i*2:]))
		if got != w {
			t.Errorf("sample %d = %d, want %d", i, got, w)
		}
	}
}

func TestDownmixStereo(t *testing.T) {
	stereo := []float32{0.2, 0.4, -1.0, 1.0}
	mono := Downmix(stereo, 2)
	if len(mono) != 2 {
		t.Fatalf("len = %d, want 2", len(mono))
	}
	if diff := mono[0] - 0.3; diff > 1e-6 || diff < -1e-6 {
		t.Errorf("mono[0] = %v, want 0.3", mono[0])
	}
	if mono[1] != 0 {
		t.Errorf("mono[1] = %v, want 0", mono[1])
	}
}

func TestDownmixMonoPassthrough(t *testing.T) {
	in := []float32{0.1, 0.2}
	if out := Downmix(in, 1); &out[0] != &in[0] {
		t.Error("mono input should pass through unchanged")
	}
}
