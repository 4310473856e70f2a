package audio

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"
	"time"
)

const fakeChunkFrames = 1024

// FakeBackend replays a fixed buffer of interleaved samples, then silence
// until stopped. It is used by tests and the -test mode.
type FakeBackend struct {
	samples  []float32
	format   Format
	realtime bool

	// OpenErr and StartErr are returned by Open and Stream.Start when set.
	OpenErr  error
	StartErr error

	mu        sync.Mutex
	opens     int
	releases  int
	audioDone chan struct{}
}

func NewFakeBackend(samples []float32, f Format, realtime bool) *FakeBackend {
	return &FakeBackend{samples: samples, format: f, realtime: realtime, audioDone: make(chan struct{})}
}

// NewFakeBackendFromWAV loads a 16-bit PCM WAV file.
func NewFakeBackendFromWAV(path string, realtime bool) (*FakeBackend, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	samples, f, err := decodeWAV(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return NewFakeBackend(samples, f, realtime), nil
}

func decodeWAV(data []byte) ([]float32, Format, error) {
	if len(data) < WAVHeaderSize || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, Format{}, fmt.Errorf("not a WAV file")
	}
	channels := binary.LittleEndian.Uint16(data[22:24])
	rate := binary.LittleEndian.Uint32(data[24:28])
	bits := binary.LittleEndian.Uint16(data[34:36])
	if bits != 16 || channels == 0 || rate == 0 {
		return nil, Format{}, fmt.Errorf("unsupported WAV format: %d bit, %d ch, %d Hz", bits, channels, rate)
	}
	pcm := data[WAVHeaderSize:]
	samples := make([]float32, len(pcm)/2)
	for i := range samples {
		samples[i] = float32(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / 32768
	}
	return samples, Format{SampleRate: rate, Channels: uint32(channels)}, nil
}

func (f *FakeBackend) Devices() ([]DeviceInfo, error) {
	return []DeviceInfo{{ID: "fake", Name: "fake"}}, nil
}

func (f *FakeBackend) Close() {}

// Opens reports how many streams have been opened.
func (f *FakeBackend) Opens() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens
}

// Releases reports how many opened streams have been stopped.
func (f *FakeBackend) Releases() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.releases
}

// AudioDone is closed once the buffered samples have been delivered.
func (f *FakeBackend) AudioDone() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.audioDone
}

func (f *FakeBackend) Open(_ *DeviceInfo, cb DataCallback) (Stream, error) {
	if f.OpenErr != nil {
		return nil, f.OpenErr
	}
	f.mu.Lock()
	f.opens++
	done := make(chan struct{})
	f.audioDone = done
	f.mu.Unlock()
	return &fakeStream{backend: f, cb: cb, audioDone: done}, nil
}

type fakeStream struct {
	backend   *FakeBackend
	cb        DataCallback
	audioDone chan struct{}

	once     sync.Once
	stopCh   chan struct{}
	feedDone chan struct{}
}

func (s *fakeStream) Format() Format { return s.backend.format }
func (s *fakeStream) Name() string   { return "fake" }

func (s *fakeStream) Start() error {
	if s.backend.StartErr != nil {
		return s.backend.StartErr
	}
	s.stopCh = make(chan struct{})
	s.feedDone = make(chan struct{})

	f := s.backend.format
	channels := max(int(f.Channels), 1)
	chunk := fakeChunkFrames * channels
	interval := time.Millisecond
	if s.backend.realtime && f.SampleRate > 0 {
		interval = time.Duration(fakeChunkFrames) * time.Second / time.Duration(f.SampleRate)
	}

	go func() {
		defer close(s.feedDone)
		samples := s.backend.samples
		silence := make([]float32, chunk)
		finished := false
		for pos := 0; ; {
			select {
			case <-s.stopCh:
				return
			default:
			}
			if pos < len(samples) {
				end := min(pos+chunk, len(samples))
				buf := make([]float32, end-pos)
				copy(buf, samples[pos:end])
				s.cb(buf)
				pos = end
			} else {
				if !finished {
					finished = true
					close(s.audioDone)
				}
				s.cb(silence)
			}
			select {
			case <-s.stopCh:
				return
			case <-time.After(interval):
			}
		}
	}()
	return nil
}

func (s *fakeStream) Stop() {
	s.once.Do(func() {
		s.backend.mu.Lock()
		s.backend.releases++
		s.backend.mu.Unlock()
		if s.stopCh == nil {
			return
		}
		close(s.stopCh)
		<-s.feedDone
	})
}
