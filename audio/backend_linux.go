//go:build linux

package audio

import (
	"fmt"
	"sync"

	"github.com/jfreymuth/pulse"
)

// The server converts to what we ask for, so the stream format is fixed.
const (
	pulseSampleRate = 48000
	pulseChannels   = 2
)

type pulseBackend struct {
	client *pulse.Client
}

func NewBackend() (Backend, error) {
	c, err := pulse.NewClient()
	if err != nil {
		return nil, &CaptureError{Kind: NoDevice, Err: fmt.Errorf("pulse: %w", err)}
	}
	return &pulseBackend{client: c}, nil
}

func (p *pulseBackend) Devices() ([]DeviceInfo, error) {
	sources, err := p.client.ListSources()
	if err != nil {
		return nil, fmt.Errorf("pulse list sources: %w", err)
	}
	var devices []DeviceInfo
	for _, s := range sources {
		devices = append(devices, DeviceInfo{
			ID:   s.ID(),
			Name: s.Name(),
		})
	}
	return devices, nil
}

func (p *pulseBackend) Open(device *DeviceInfo, cb DataCallback) (Stream, error) {
	sources, err := p.client.ListSources()
	if err != nil {
		return nil, fmt.Errorf("pulse list sources: %w", err)
	}
	if len(sources) == 0 {
		return nil, ErrNoDevice
	}

	writer := pulse.Float32Writer(func(buf []float32) (int, error) {
		if len(buf) > 0 {
			cb(buf)
		}
		return len(buf), nil
	})

	opts := []pulse.RecordOption{
		pulse.RecordStereo,
		pulse.RecordSampleRate(pulseSampleRate),
		pulse.RecordLatency(0.05),
	}
	name := "system default"
	if device != nil {
		source, err := p.client.SourceByID(device.ID)
		if err != nil || source == nil {
			return nil, fmt.Errorf("%w: source %q", ErrNoDevice, device.Name)
		}
		opts = append(opts, pulse.RecordSource(source))
		name = device.Name
	}

	stream, err := p.client.NewRecord(writer, opts...)
	if err != nil {
		return nil, fmt.Errorf("pulse record: %w", err)
	}
	return &pulseStream{stream: stream, name: name}, nil
}

func (p *pulseBackend) Close() {
	p.client.Close()
}

type pulseStream struct {
	stream *pulse.RecordStream
	name   string
	once   sync.Once
}

func (s *pulseStream) Format() Format {
	return Format{SampleRate: pulseSampleRate, Channels: pulseChannels}
}

func (s *pulseStream) Start() error {
	s.stream.Start()
	return nil
}

func (s *pulseStream) Stop() {
	s.once.Do(func() {
		s.stream.Stop()
		s.stream.Close()
	})
}

func (s *pulseStream) Name() string { return s.name }
