package audio

import "math"

// Downmix averages interleaved samples into one mono channel. A trailing
// partial frame is dropped.
func Downmix(samples []float32, channels int) []float32 {
	if channels <= 1 {
		out := make([]float32, len(samples))
		copy(out, samples)
		return out
	}
	n := len(samples) / channels
	out := make([]float32, n)
	for i := range n {
		var sum float32
		for _, s := range samples[i*channels : (i+1)*channels] {
			sum += s
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// Decimate keeps sample i when it starts a new output slot, that is when
// floor(i/ratio) differs from floor((i-1)/ratio), plus sample 0. There is no
// low-pass filter. A ratio at or below 1 keeps every sample.
func Decimate(samples []float32, ratio float64) []float32 {
	if ratio <= 1 {
		out := make([]float32, len(samples))
		copy(out, samples)
		return out
	}
	out := make([]float32, 0, int(float64(len(samples))/ratio)+1)
	for i, s := range samples {
		cur := math.Floor(float64(i) / ratio)
		prev := math.Floor(math.Max(float64(i-1), 0) / ratio)
		if i == 0 || cur != prev {
			out = append(out, s)
		}
	}
	return out
}

// ToPCM16 clamps to [-1, 1] and scales by 32767.
func ToPCM16(samples []float32) Frame {
	out := make(Frame, len(samples))
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		out[i] = int16(s * 32767)
	}
	return out
}

// Convert runs the full chain from interleaved native samples to a 16 kHz
// mono frame.
func Convert(samples []float32, f Format) Frame {
	mono := Downmix(samples, int(f.Channels))
	ratio := float64(f.SampleRate) / TargetSampleRate
	return ToPCM16(Decimate(mono, ratio))
}
