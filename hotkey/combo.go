package hotkey

import "encoding/binary"

// Linux input event codes for the shortcut.
const (
	evKey       = 1
	keyPress    = 1
	keyRelease  = 0
	keyLAlt     = 56
	keyRAlt     = 100
	keyLShift   = 42
	keyRShift   = 54
	keyO        = 24
	inputEvSize = 24
)

// combo tracks modifier state from raw key events and reports edges of
// Alt+Shift+O. Auto-repeat events (value 2) never produce an edge.
type combo struct {
	alt, shift, held bool
}

func (c *combo) feed(code uint16, value int32) (down, up bool) {
	pressed := value == keyPress
	released := value == keyRelease

	switch code {
	case keyLAlt, keyRAlt:
		c.alt = pressed || (!released && c.alt)
	case keyLShift, keyRShift:
		c.shift = pressed || (!released && c.shift)
	case keyO:
		if pressed && !c.held && c.alt && c.shift {
			c.held = true
			return true, false
		}
		if released && c.held {
			c.held = false
			return false, true
		}
	}
	return false, false
}

// parseEvent decodes one 64-bit struct input_event.
func parseEvent(b []byte) (typ, code uint16, value int32) {
	typ = binary.LittleEndian.Uint16(b[16:])
	code = binary.LittleEndian.Uint16(b[18:])
	value = int32(binary.LittleEndian.Uint32(b[20:]))
	return typ, code, value
}
