package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// TargetSampleRate is the rate every Frame is delivered at.
	TargetSampleRate = 16000

	// PollInterval bounds how long the capture goroutine takes to notice Stop.
	PollInterval = 100 * time.Millisecond

	// FrameQueue is the capacity of the frame channel between the device
	// callback and the consumer.
	FrameQueue = 100

	WAVHeaderSize = 44
)

var btKeywords = []string{
	"airpods", "beats", "bose", "wh-1000", "wf-1000",
	"sony wh-", "sony wf-",
	"jabra", "galaxy buds", "pixel buds", "powerbeats",
	"jbl ", "sennheiser momentum", "plantronics",
	"tozo", "anker soundcore", "skullcandy",
	"bluetooth", " bt ", " bt)", " bt]",
}

func IsBluetooth(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range btKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Frame is one chunk of mono PCM16 audio at TargetSampleRate.
type Frame []int16

// Bytes encodes the frame as little-endian PCM16.
func (f Frame) Bytes() []byte {
	out := make([]byte, len(f)*2)
	for i, s := range f {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// Duration is the playback length of the frame at TargetSampleRate.
func (f Frame) Duration() time.Duration {
	return time.Duration(len(f)) * time.Second / TargetSampleRate
}

// Format describes what a device actually delivers.
type Format struct {
	SampleRate uint32
	Channels   uint32
}

func (f Format) String() string {
	return fmt.Sprintf("%d Hz, %d ch", f.SampleRate, f.Channels)
}

// DataCallback receives interleaved float32 samples in the stream's native
// format. It runs on the backend's own thread and must not block.
type DataCallback func(samples []float32)

type DeviceInfo struct {
	ID   string // opaque platform-specific identifier
	Name string
}

// Backend enumerates and opens capture devices. A nil device selects the
// system default input.
type Backend interface {
	Devices() ([]DeviceInfo, error)
	Open(device *DeviceInfo, cb DataCallback) (Stream, error)
	Close()
}

type Stream interface {
	Format() Format
	Start() error
	Stop()
	Name() string
}

// ErrNoDevice is returned by backends when no input device exists.
var ErrNoDevice = errors.New("no input device available")

type CaptureErrorKind int

const (
	NoDevice CaptureErrorKind = iota
	StreamInit
)

func (k CaptureErrorKind) String() string {
	switch k {
	case NoDevice:
		return "no device"
	case StreamInit:
		return "stream init"
	}
	return "unknown"
}

// CaptureError reports why an input stream could not be brought up.
type CaptureError struct {
	Kind CaptureErrorKind
	Err  error
}

func (e *CaptureError) Error() string {
	if e.Err == nil {
		return "audio capture: " + e.Kind.String()
	}
	return fmt.Sprintf("audio capture: %s: %v", e.Kind, e.Err)
}

func (e *CaptureError) Unwrap() error { return e.Err }

func captureError(err error) *CaptureError {
	if errors.Is(err, ErrNoDevice) {
		return &CaptureError{Kind: NoDevice, Err: err}
	}
	return &CaptureError{Kind: StreamInit, Err: err}
}
