//go:build linux

package clipboard

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// linux/uinput.h
const (
	uiSetEvbit  uint = 0x40045564
	uiSetKeybit uint = 0x40045565
	uiDevCreate uint = 0x5501
)

// linux/input-event-codes.h
const (
	evSyn = 0x00
	evKey = 0x01

	busVirtual = 0x06

	keyLeftCtrl  = 29
	keyLeftShift = 42
	keyV         = 47
)

const (
	deviceName = "voxkey-paste"

	// compositors need a moment to pick up a new input device, and drop
	// chords whose modifier arrives in the same frame as the key
	deviceSettle = 200 * time.Millisecond
	chordGap     = 5 * time.Millisecond
	verifyWait   = 500 * time.Millisecond
)

type inputEvent struct {
	Time  unix.Timeval
	Type  uint16
	Code  uint16
	Value int32
}

type inputID struct {
	Bustype uint16
	Vendor  uint16
	Product uint16
	Version uint16
}

type uinputUserDev struct {
	Name         [80]byte
	ID           inputID
	FfEffectsMax uint32
	Absmax       [64]int32
	Absmin       [64]int32
	Absfuzz      [64]int32
	Absflat      [64]int32
}

// vkbd is a virtual keyboard created through uinput.
type vkbd struct {
	mu sync.Mutex
	f  *os.File
}

var (
	kbd     *vkbd
	kbdOnce sync.Once
	kbdErr  error
)

// Init creates the virtual keyboard used for pasting and typing. It needs
// write access to /dev/uinput.
func Init() error {
	kbdOnce.Do(func() {
		kbd, kbdErr = openVkbd(deviceName)
	})
	return kbdErr
}

func uinputPath() (string, error) {
	for _, p := range []string{"/dev/uinput", "/dev/input/uinput"} {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", errors.New("uinput device not found, try: sudo modprobe uinput")
}

func openVkbd(name string) (*vkbd, error) {
	path, err := uinputPath()
	if err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, err
	}
	if err := registerKeyboard(f, name); err != nil {
		f.Close()
		return nil, fmt.Errorf("uinput setup: %w", err)
	}
	time.Sleep(deviceSettle)
	return &vkbd{f: f}, nil
}

// registerKeyboard declares every standard key so udev classifies the device
// as a keyboard, then creates it.
func registerKeyboard(f *os.File, name string) error {
	fd := int(f.Fd())
	for _, ev := range []int{evKey, evSyn} {
		if err := unix.IoctlSetInt(fd, uiSetEvbit, ev); err != nil {
			return err
		}
	}
	for code := range 256 {
		if err := unix.IoctlSetInt(fd, uiSetKeybit, code); err != nil {
			return err
		}
	}
	dev := uinputUserDev{ID: inputID{Bustype: busVirtual, Vendor: 0x1d6b, Product: 0x0104, Version: 1}}
	copy(dev.Name[:], name)
	if err := binary.Write(f, binary.LittleEndian, &dev); err != nil {
		return err
	}
	return unix.IoctlSetInt(fd, uiDevCreate, 0)
}

// edge writes one key transition followed by a sync report.
func (k *vkbd) edge(code uint16, down bool) error {
	ev := inputEvent{Type: evKey, Code: code}
	if down {
		ev.Value = 1
	}
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, &ev)
	binary.Write(&buf, binary.LittleEndian, &inputEvent{Type: evSyn})
	_, err := k.f.Write(buf.Bytes())
	return err
}

// chord presses mods in order, taps key, then releases mods in reverse.
func (k *vkbd) chord(key uint16, mods ...uint16) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	type step struct {
		code uint16
		down bool
	}
	seq := make([]step, 0, 2*len(mods)+2)
	for _, m := range mods {
		seq = append(seq, step{m, true})
	}
	seq = append(seq, step{key, true}, step{key, false})
	for i := len(mods) - 1; i >= 0; i-- {
		seq = append(seq, step{mods[i], false})
	}

	for i, s := range seq {
		if i > 0 && len(mods) > 0 {
			time.Sleep(chordGap)
		}
		if err := k.edge(s.code, s.down); err != nil {
			return err
		}
	}
	return nil
}

// Paste sends Ctrl+V through the virtual keyboard.
func Paste() error {
	if err := Init(); err != nil {
		return err
	}
	return kbd.chord(keyV, keyLeftCtrl)
}

// Verify sends Ctrl+V and reads it back from the virtual keyboard's event
// node to confirm the kernel delivered it.
func Verify() (string, error) {
	if err := Init(); err != nil {
		return "", fmt.Errorf("uinput init: %w", err)
	}
	node, err := findEventNode(deviceName)
	if err != nil {
		return "", err
	}
	f, err := os.Open(node)
	if err != nil {
		return "", fmt.Errorf("cannot open %s: %w", node, err)
	}
	defer f.Close()

	if err := Paste(); err != nil {
		return "", fmt.Errorf("paste send: %w", err)
	}
	codes, err := readKeyCodes(f, verifyWait)
	if err != nil {
		return "", err
	}
	if !codes[keyLeftCtrl] || !codes[keyV] {
		return "", fmt.Errorf("missing events (ctrl=%v, v=%v)", codes[keyLeftCtrl], codes[keyV])
	}
	return "Ctrl+V keystroke verified via " + node, nil
}

// findEventNode returns the /dev/input/event* path of the device called name.
func findEventNode(name string) (string, error) {
	entries, err := os.ReadDir("/sys/class/input")
	if err != nil {
		return "", fmt.Errorf("cannot scan input devices: %w", err)
	}
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), "event") {
			continue
		}
		data, err := os.ReadFile(filepath.Join("/sys/class/input", e.Name(), "device", "name"))
		if err == nil && strings.TrimSpace(string(data)) == name {
			return filepath.Join("/dev/input", e.Name()), nil
		}
	}
	return "", fmt.Errorf("%s evdev device not found", name)
}

func readKeyCodes(r io.Reader, timeout time.Duration) (map[uint16]bool, error) {
	type result struct {
		buf []byte
		err error
	}
	ch := make(chan result, 1)
	go func() {
		buf := make([]byte, 32*binary.Size(inputEvent{}))
		n, err := r.Read(buf)
		ch <- result{buf[:n], err}
	}()
	select {
	case res := <-ch:
		if res.err != nil {
			return nil, fmt.Errorf("reading events: %w", res.err)
		}
		return keyCodes(res.buf), nil
	case <-time.After(timeout):
		return nil, errors.New("timed out waiting for keystroke events")
	}
}

// keyCodes collects the codes of all key events in a raw evdev read.
func keyCodes(raw []byte) map[uint16]bool {
	codes := make(map[uint16]bool)
	r := bytes.NewReader(raw)
	for {
		var ev inputEvent
		if err := binary.Read(r, binary.LittleEndian, &ev); err != nil {
			return codes
		}
		if ev.Type == evKey {
			codes[ev.Code] = true
		}
	}
}
