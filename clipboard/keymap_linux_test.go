package clipboard

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"
	"time"
)

func TestCharToKey(t *testing.T) {
	tests := []struct {
		c     byte
		code  uint16
		shift bool
		ok    bool
	}{
		{'a', 30, false, true},
		{'Z', 44, true, true},
		{'0', 11, false, true},
		{'1', 2, false, true},
		{' ', 57, false, true},
		{'\n', 28, false, true},
		{'?', 53, true, true},
		{'.', 52, false, true},
		{0xc3, 0, false, false},
	}
	for _, tt := range tests {
		code, shift, ok := charToKey(tt.c)
		if code != tt.code || shift != tt.shift || ok != tt.ok {
			t.Errorf("charToKey(%q) = %d, %v, %v; want %d, %v, %v", tt.c, code, shift, ok, tt.code, tt.shift, tt.ok)
		}
	}
}

func TestKeyCodes(t *testing.T) {
	var buf bytes.Buffer
	for _, ev := range []inputEvent{
		{Type: evKey, Code: keyLeftCtrl, Value: 1},
		{Type: evSyn},
		{Type: evKey, Code: keyV, Value: 1},
		{Type: evSyn},
		{Type: 0x04, Code: 0x04, Value: 47}, // EV_MSC scan code
	} {
		binary.Write(&buf, binary.LittleEndian, &ev)
	}
	// trailing partial event is ignored
	buf.Write([]byte{1, 2, 3})

	codes := keyCodes(buf.Bytes())
	if !codes[keyLeftCtrl] || !codes[keyV] {
		t.Errorf("codes = %v, want ctrl and v", codes)
	}
	if len(codes) != 2 {
		t.Errorf("codes = %v, want only key events", codes)
	}
}

func TestReadKeyCodesTimeout(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()
	if _, err := readKeyCodes(r, 20*time.Millisecond); err == nil {
		t.Error("want a timeout error")
	}
}
