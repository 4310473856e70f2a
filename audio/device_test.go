package audio

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type listBackend struct {
	manualBackend
	devices []DeviceInfo
}

func (l *listBackend) Devices() ([]DeviceInfo, error) { return l.devices, nil }

func TestFindDevice(t *testing.T) {
	b := &listBackend{devices: []DeviceInfo{
		{ID: "alsa_input.usb-mic", Name: "USB Microphone"},
		{ID: "alsa_input.pci", Name: "Built-in Audio"},
	}}

	for _, tt := range []struct {
		query  string
		wantID string
	}{
		{"alsa_input.pci", "alsa_input.pci"},
		{"usb", "alsa_input.usb-mic"},
		{"  BUILT-IN ", "alsa_input.pci"},
	} {
		t.Run(tt.query, func(t *testing.T) {
			d, err := FindDevice(b, tt.query)
			if err != nil {
				t.Fatal(err)
			}
			if d.ID != tt.wantID {
				t.Errorf("got %q, want %q", d.ID, tt.wantID)
			}
		})
	}

	if d, err := FindDevice(b, ""); d != nil || err != nil {
		t.Errorf("empty query = (%v, %v), want default", d, err)
	}
	if _, err := FindDevice(b, "nope"); !errors.Is(err, ErrNoDevice) {
		t.Errorf("got %v, want ErrNoDevice", err)
	}
}

func TestPickerKey(t *testing.T) {
	for _, tt := range []struct {
		in   []byte
		want pickerAction
	}{
		{[]byte{13}, keyEnter},
		{[]byte{3}, keyAbort},
		{[]byte("k"), keyUp},
		{[]byte("j"), keyDown},
		{[]byte{0x1b, '[', 'A'}, keyUp},
		{[]byte{0x1b, '[', 'B'}, keyDown},
		{[]byte("x"), keyNone},
	} {
		if got := pickerKey(tt.in); got != tt.want {
			t.Errorf("pickerKey(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestIsBluetooth(t *testing.T) {
	if !IsBluetooth("AirPods Pro") {
		t.Error("AirPods should be detected")
	}
	if IsBluetooth("Built-in Microphone") {
		t.Error("built-in mic is not bluetooth")
	}
}

func writeWAV(t *testing.T, rate uint32, channels uint16, samples []int16) string {
	t.Helper()
	data := make([]byte, WAVHeaderSize+len(samples)*2)
	copy(data[0:], "RIFF")
	copy(data[8:], "WAVEfmt ")
	le := func(off int, v uint32, n int) {
		for i := range n {
			data[off+i] = byte(v >> (8 * i))
		}
	}
	le(16, 16, 4)
	le(20, 1, 2)
	le(22, uint32(channels), 2)
	le(24, rate, 4)
	le(34, 16, 2)
	copy(data[36:], "data")
	le(40, uint32(len(samples)*2), 4)
	for i, s := range samples {
		le(WAVHeaderSize+i*2, uint32(uint16(s)), 2)
	}
	path := filepath.Join(t.TempDir(), "in.wav")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFakeBackendFromWAV(t *testing.T) {
	path := writeWAV(t, 44100, 2, []int16{16384, -16384, 0, 0})
	fb, err := NewFakeBackendFromWAV(path, false)
	if err != nil {
		t.Fatal(err)
	}
	if fb.format != (Format{SampleRate: 44100, Channels: 2}) {
		t.Errorf("format = %v", fb.format)
	}
	if len(fb.samples) != 4 || fb.samples[0] != 0.5 || fb.samples[1] != -0.5 {
		t.Errorf("samples = %v", fb.samples)
	}

	if _, err := NewFakeBackendFromWAV(filepath.Join(t.TempDir(), "missing.wav"), false); err == nil {
		t.Error("expected error for missing file")
	}
}
