package audio

import (
	"encoding/binary"
	"testing"
)

func TestDecimate48kTo16kLength(t *testing.T) {
	for _, n := range []int{480, 4800, 4801, 1023} {
		in := make([]float32, n)
		out := Decimate(in, 48000.0/TargetSampleRate)
		want := float64(n) / 3
		if diff := float64(len(out)) - want; diff > 1 || diff < -1 {
			t.Errorf("n=%d: got %d samples, want %.1f ±1", n, len(out), want)
		}
	}
}

func TestDecimateNonIntegerRatio(t *testing.T) {
	in := make([]float32, 4410)
	out := Decimate(in, 44100.0/TargetSampleRate)
	if len(out) < 1599 || len(out) > 1601 {
		t.Errorf("got %d samples, want 1600 ±1", len(out))
	}
}

func TestDecimatePicksNearestIndex(t *testing.T) {
	in := []float32{0, 1, 2, 3, 4, 5, 6, 7, 8}
	got := Decimate(in, 3)
	want := []float32{0, 3, 6}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got %v, want %v", got, want)
			break
		}
	}
}

func TestDecimateKeepsAllAtTargetRate(t *testing.T) {
	in := []float32{0.1, 0.2, 0.3}
	if got := Decimate(in, 1); len(got) != 3 {
		t.Errorf("ratio 1: got %d samples, want 3", len(got))
	}
	if got := Decimate(nil, 3); len(got) != 0 {
		t.Errorf("empty input: got %d samples", len(got))
	}
}

func TestDownmix(t *testing.T) {
	got := Downmix([]float32{1, 0, 0.5, 0.5, -1, 1, 0.25}, 2)
	want := []float32{0.5, 0.5, 0}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("frame %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestToPCM16Clamps(t *testing.T) {
	for _, tt := range []struct {
		in   float32
		want int16
	}{
		{0, 0},
		{1, 32767},
		{-1, -32767},
		{2.5, 32767},
		{-7, -32767},
		{0.5, 16383},
	} {
		got := ToPCM16([]float32{tt.in})
		if got[0] != tt.want {
			t.Errorf("ToPCM16(%v) = %d, want %d", tt.in, got[0], tt.want)
		}
	}
}

func TestConvertStereo48k(t *testing.T) {
	f := Format{SampleRate: 48000, Channels: 2}
	in := make([]float32, 4800*2)
	for i := range in {
		in[i] = 0.5
	}
	frame := Convert(in, f)
	if len(frame) != 1600 {
		t.Fatalf("got %d samples, want 1600", len(frame))
	}
	for _, s := range frame {
		if s != 16383 {
			t.Fatalf("sample = %d, want 16383", s)
		}
	}
}

func TestFrameBytesLittleEndian(t *testing.T) {
	b := Frame{1, -2, 0x1234}.Bytes()
	if len(b) != 6 {
		t.Fatalf("len = %d, want 6", len(b))
	}
	if got := int16(binary.LittleEndian.Uint16(b[2:])); got != -2 {
		t.Errorf("sample 1 = %d, want -2", got)
	}
	if b[4] != 0x34 || b[5] != 0x12 {
		t.Errorf("sample 2 bytes = %x %x, want 34 12", b[4], b[5])
	}
}
