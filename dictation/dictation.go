// Package dictation runs recording cycles: capture audio, stream it to the
// transcription service and deliver the result.
package dictation

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"voxkey/audio"
	"voxkey/log"
	"voxkey/recording"
	"voxkey/transcriber"

	"github.com/google/uuid"
)

const DefaultTypeDelay = 280 * time.Millisecond

// ErrCycleFinishing is returned by Start while the previous cycle is still
// draining or waiting to inject.
var ErrCycleFinishing = errors.New("previous recording is still finishing")

// Notifier receives cycle progress. Methods may be called from any goroutine.
type Notifier interface {
	RecordingStateChanged(active bool)
	TranscriptionUpdated(text string)
	TranscriptionFinished(text string)
	TranscriptionFailed(msg string)
}

// Injector delivers the final transcript to the focused application.
type Injector interface {
	Inject(text string) error
}

// Cues plays audible feedback. All methods must return promptly.
type Cues interface {
	PlayStart()
	PlayEnd()
	PlayError()
}

type Config struct {
	Model  string
	Device *audio.DeviceInfo

	// AutoPaste enables injection of the final transcript.
	AutoPaste bool

	// TypeDelay is waited before injecting so modifier keys are released and
	// focus returns to the target window.
	TypeDelay time.Duration

	Cues Cues
}

type cycle struct {
	id         string
	credential string
	ctx        context.Context
	cancel     context.CancelFunc
	cancelled  atomic.Bool
	started    time.Time
}

// Orchestrator owns at most one recording cycle at a time.
type Orchestrator struct {
	state       *recording.State
	backend     audio.Backend
	sessionOpts []transcriber.Option
	notifier    Notifier
	injector    Injector
	cfg         Config

	mu      sync.Mutex
	current *cycle
	wg      sync.WaitGroup
	cycles  atomic.Int64
}

// New wires an orchestrator to state. sessionOpts are applied to every
// session, typically the endpoint and dial options.
func New(state *recording.State, backend audio.Backend, sessionOpts []transcriber.Option, notifier Notifier, injector Injector, cfg Config) *Orchestrator {
	if cfg.TypeDelay < 0 {
		cfg.TypeDelay = 0
	}
	o := &Orchestrator{
		state:       state,
		backend:     backend,
		sessionOpts: sessionOpts,
		notifier:    notifier,
		injector:    injector,
		cfg:         cfg,
	}
	state.Subscribe(notifier.RecordingStateChanged)
	return o
}

// Start begins a cycle. Starting while recording is a no-op; starting after
// Stop but before the cycle has delivered returns ErrCycleFinishing.
func (o *Orchestrator) Start(ctx context.Context) error {
	if !o.state.HasCredential() {
		return recording.ErrNoCredential
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if c := o.current; c != nil {
		if o.state.IsActive() {
			return nil
		}
		log.Infof("start ignored: cycle %s still finishing", c.id)
		return ErrCycleFinishing
	}
	credential, started, err := o.state.Start()
	if err != nil {
		return err
	}
	if !started {
		return nil
	}

	cctx, cancel := context.WithCancel(ctx)
	c := &cycle{
		id:         uuid.NewString(),
		credential: credential,
		ctx:        cctx,
		cancel:     cancel,
		started:    time.Now(),
	}
	o.current = c
	o.cycles.Add(1)
	o.wg.Add(1)
	log.Infof("cycle_start id=%s", c.id)
	o.cue(Cues.PlayStart)
	go o.run(c)
	return nil
}

// Stop ends recording; the running cycle drains and delivers its transcript.
func (o *Orchestrator) Stop(reason string) {
	if o.state.Stop(reason) {
		o.cue(Cues.PlayEnd)
	}
}

// Cancel discards the running cycle. Nothing is injected.
func (o *Orchestrator) Cancel(reason string) {
	o.mu.Lock()
	c := o.current
	if c != nil {
		c.cancelled.Store(true)
	}
	o.mu.Unlock()

	o.state.Cancel(reason)
	if c == nil {
		o.notifier.TranscriptionFinished("")
		return
	}
	c.cancel()
}

func (o *Orchestrator) IsActive() bool {
	return o.state.IsActive()
}

// Wait blocks until no cycle is running.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Cycles reports how many cycles have been started.
func (o *Orchestrator) Cycles() int {
	return int(o.cycles.Load())
}

func (o *Orchestrator) run(c *cycle) {
	defer o.wg.Done()

	var (
		res     transcriber.Result
		err     error
		capture *audio.Capture
	)
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("cycle %s panic: %v\n%s", c.id, r, debug.Stack())
			err = fmt.Errorf("internal error: %v", r)
		}
		if capture != nil {
			capture.Stop()
		}
		c.cancel()
		o.state.Stop("cycle_end")
		o.finish(c, res, err, capture)

		o.mu.Lock()
		o.current = nil
		o.mu.Unlock()
	}()

	capture = audio.NewCapture(o.backend, audio.Config{Device: o.cfg.Device})
	frames, err := capture.Start()
	if err != nil {
		return
	}

	opts := make([]transcriber.Option, 0, len(o.sessionOpts)+2)
	opts = append(opts, o.sessionOpts...)
	opts = append(opts,
		transcriber.WithActive(o.state.IsActive),
		transcriber.WithUpdates(func(display string) {
			if c.cancelled.Load() {
				return
			}
			o.state.SetTranscript(display)
			o.notifier.TranscriptionUpdated(display)
		}),
	)
	sess := transcriber.NewSession(transcriber.NewConfig(c.credential, o.cfg.Model), opts...)
	res, err = sess.Run(c.ctx, frames, capture.Stop)
}

// finish emits exactly one terminal notification for the cycle.
func (o *Orchestrator) finish(c *cycle, res transcriber.Result, err error, capture *audio.Capture) {
	m := log.CycleMetrics{
		CycleID:      c.id,
		ConnectMs:    float64(res.Stats.ConnectDur.Milliseconds()),
		TotalMs:      float64(time.Since(c.started).Milliseconds()),
		AudioS:       res.Stats.AudioDuration(),
		SentFrames:   res.Stats.SentFrames,
		SentKB:       float64(res.Stats.SentBytes) / 1024,
		RecvMessages: res.Stats.RecvMessages,
		Malformed:    res.Stats.Malformed,
	}
	if capture != nil {
		m.DroppedFrame = capture.Stats().Dropped
	}

	switch {
	case c.cancelled.Load() || errors.Is(err, context.Canceled):
		m.Outcome = "cancelled"
		o.state.SetTranscript("")
		o.notifier.TranscriptionFinished("")

	case errors.Is(err, transcriber.ErrTransportDropped):
		// the session ends with what was accumulated before the drop
		m.Outcome = "dropped"
		m.FinalChars = len(res.Text)
		log.Warnf("cycle %s: %v", c.id, err)
		o.state.SetTranscript(res.Text)
		o.notifier.TranscriptionFinished(res.Text)
		o.inject(c, res.Text)

	case err != nil:
		// text received before a fatal error is reported but not typed
		m.Outcome = "failed"
		m.FinalChars = len(res.Text)
		log.Errorf("cycle %s failed: %v", c.id, err)
		o.cue(Cues.PlayError)
		o.state.SetTranscript(res.Text)
		o.notifier.TranscriptionFailed(err.Error())
		o.notifier.TranscriptionFinished(res.Text)

	default:
		m.Outcome = "finished"
		m.FinalChars = len(res.Text)
		o.state.SetTranscript(res.Text)
		o.notifier.TranscriptionFinished(res.Text)
		o.inject(c, res.Text)
	}
	log.Cycle(m)
}

func (o *Orchestrator) inject(c *cycle, text string) {
	if text == "" || !o.cfg.AutoPaste || o.injector == nil {
		return
	}
	if o.cfg.TypeDelay > 0 {
		time.Sleep(o.cfg.TypeDelay)
	}
	if c.cancelled.Load() {
		return
	}
	if err := o.injector.Inject(text); err != nil {
		log.Warnf("inject failed: %v", err)
	}
}

func (o *Orchestrator) cue(play func(Cues)) {
	if o.cfg.Cues == nil {
		return
	}
	go play(o.cfg.Cues)
}
