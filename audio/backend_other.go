//go:build !linux

package audio

import (
	"encoding/hex"
	"fmt"
	"sync"
	"unsafe"

	"github.com/gen2brain/malgo"
)

type malgoBackend struct {
	ctx *malgo.AllocatedContext
}

func NewBackend() (Backend, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, &CaptureError{Kind: NoDevice, Err: fmt.Errorf("malgo: %w", err)}
	}
	return &malgoBackend{ctx: ctx}, nil
}

func (m *malgoBackend) Devices() ([]DeviceInfo, error) {
	devices, err := m.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("malgo devices: %w", err)
	}
	var result []DeviceInfo
	for _, d := range devices {
		result = append(result, DeviceInfo{
			ID:   hex.EncodeToString(d.ID[:]),
			Name: d.Name(),
		})
	}
	return result, nil
}

// Open requests float32 and lets the device keep its native rate and channel
// count; conversion to 16 kHz mono happens in Capture.
func (m *malgoBackend) Open(device *DeviceInfo, cb DataCallback) (Stream, error) {
	devices, err := m.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("malgo devices: %w", err)
	}
	if len(devices) == 0 {
		return nil, ErrNoDevice
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = 0
	deviceConfig.SampleRate = 0

	name := "system default"
	if device != nil {
		idBytes, err := hex.DecodeString(device.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid device ID: %v", ErrNoDevice, err)
		}
		var devID malgo.DeviceID
		copy(devID[:], idBytes)
		deviceConfig.Capture.DeviceID = devID.Pointer()
		name = device.Name
	}

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, frameCount uint32) {
			if len(input) < 4 {
				return
			}
			samples := unsafe.Slice((*float32)(unsafe.Pointer(&input[0])), len(input)/4)
			buf := make([]float32, len(samples))
			copy(buf, samples)
			cb(buf)
		},
	}

	dev, err := malgo.InitDevice(m.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return nil, fmt.Errorf("malgo init device: %w", err)
	}

	return &malgoStream{device: dev, name: name}, nil
}

func (m *malgoBackend) Close() {
	m.ctx.Uninit()
	m.ctx.Free()
}

type malgoStream struct {
	device *malgo.Device
	name   string
	once   sync.Once
}

func (s *malgoStream) Format() Format {
	return Format{SampleRate: s.device.SampleRate(), Channels: s.device.CaptureChannels()}
}

func (s *malgoStream) Start() error {
	return s.device.Start()
}

func (s *malgoStream) Stop() {
	s.once.Do(func() {
		s.device.Stop()
		s.device.Uninit()
	})
}

func (s *malgoStream) Name() string { return s.name }
