package audio

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"voxkey/log"
)

const stopTimeout = 2 * time.Second

var ErrAlreadyStarted = errors.New("audio capture already started")

type Config struct {
	Device       *DeviceInfo
	QueueSize    int           // defaults to FrameQueue
	PollInterval time.Duration // defaults to PollInterval
}

type Stats struct {
	Frames  uint64
	Samples uint64
	Dropped uint64
}

// Capture owns one input stream for one recording cycle. Frames are pushed
// from the device callback into a bounded channel; when the consumer falls
// behind the oldest queued frame is evicted.
type Capture struct {
	backend Backend
	cfg     Config

	startMu sync.Mutex
	started bool
	stream  Stream
	format  Format

	stopping atomic.Bool
	done     chan struct{}

	pushMu sync.Mutex
	closed bool
	frames chan Frame

	nFrames  atomic.Uint64
	nSamples atomic.Uint64
	nDropped atomic.Uint64
}

func NewCapture(backend Backend, cfg Config) *Capture {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = FrameQueue
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = PollInterval
	}
	return &Capture{
		backend: backend,
		cfg:     cfg,
		done:    make(chan struct{}),
		frames:  make(chan Frame, cfg.QueueSize),
	}
}

// Start opens the device and begins delivering frames. The returned channel
// is closed after Stop once the device has been released.
func (c *Capture) Start() (<-chan Frame, error) {
	c.startMu.Lock()
	defer c.startMu.Unlock()
	if c.started {
		return nil, ErrAlreadyStarted
	}

	stream, err := c.backend.Open(c.cfg.Device, c.onData)
	if err != nil {
		return nil, captureError(err)
	}
	c.stream = stream
	c.format = stream.Format()
	if c.format.SampleRate == 0 || c.format.Channels == 0 {
		stream.Stop()
		return nil, &CaptureError{Kind: StreamInit, Err: errors.New("device reported an empty format")}
	}

	if err := stream.Start(); err != nil {
		stream.Stop()
		return nil, &CaptureError{Kind: StreamInit, Err: err}
	}
	c.started = true
	log.Infof("capture_start device=%q format=%q", stream.Name(), c.format)

	go c.run()
	return c.frames, nil
}

func (c *Capture) run() {
	defer close(c.done)
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()
	for range ticker.C {
		if c.stopping.Load() {
			break
		}
	}

	c.stream.Stop()

	c.pushMu.Lock()
	c.closed = true
	close(c.frames)
	c.pushMu.Unlock()

	log.Infof("capture_stop frames=%d dropped=%d", c.nFrames.Load(), c.nDropped.Load())
}

// Stop requests shutdown and waits for the device to be released. It is safe
// to call more than once and before Start.
func (c *Capture) Stop() {
	c.stopping.Store(true)

	c.startMu.Lock()
	started := c.started
	c.startMu.Unlock()
	if !started {
		return
	}

	select {
	case <-c.done:
	case <-time.After(stopTimeout):
		log.Warn("capture stop timeout")
	}
}

func (c *Capture) Format() Format {
	c.startMu.Lock()
	defer c.startMu.Unlock()
	return c.format
}

func (c *Capture) Stats() Stats {
	return Stats{
		Frames:  c.nFrames.Load(),
		Samples: c.nSamples.Load(),
		Dropped: c.nDropped.Load(),
	}
}

func (c *Capture) onData(samples []float32) {
	if c.stopping.Load() || len(samples) == 0 {
		return
	}
	frame := Convert(samples, c.format)
	if len(frame) == 0 {
		return
	}
	c.push(frame)
}

func (c *Capture) push(frame Frame) {
	c.pushMu.Lock()
	defer c.pushMu.Unlock()
	if c.closed {
		return
	}
	// Only this function sends, under pushMu, so after one eviction there is
	// room for the new frame.
	for {
		select {
		case c.frames <- frame:
			c.nFrames.Add(1)
			c.nSamples.Add(uint64(len(frame)))
			return
		default:
		}
		select {
		case <-c.frames:
			c.nDropped.Add(1)
		default:
		}
	}
}
