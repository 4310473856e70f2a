package transcriber

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"voxkey/audio"
	"voxkey/log"

	"nhooyr.io/websocket"
)

const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultDrainTimeout   = 5 * time.Second
	DefaultWriteTimeout   = 5 * time.Second
	closeWait             = time.Second
)

type SessionState int32

const (
	StateConnecting SessionState = iota
	StateConfiguring
	StatePriming
	StateStreaming
	StateDraining
	StateClosed
	StateError
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConfiguring:
		return "configuring"
	case StatePriming:
		return "priming"
	case StateStreaming:
		return "streaming"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	case StateError:
		return "error"
	}
	return "unknown"
}

type Stats struct {
	Network      *NetworkMetrics
	ConnectDur   time.Duration
	SentFrames   int
	SentBytes    uint64
	RecvMessages int
	Malformed    int
	TokenBatches int
	DrainDur     time.Duration
	TotalDur     time.Duration
}

// AudioDuration is the seconds of captured audio sent, priming excluded.
func (s Stats) AudioDuration() float64 {
	return float64(s.SentBytes) / float64(audio.TargetSampleRate*2)
}

type Result struct {
	Text    string // trimmed final text
	Display string // final plus pending at the time the session ended
	Stats   Stats
	Metrics []string // pre-formatted lines for the TUI
}

type Option func(*Session)

func WithEndpoint(url string) Option {
	return func(s *Session) {
		if url != "" {
			s.endpoint = url
		}
	}
}

func WithDialOptions(opts *websocket.DialOptions) Option {
	return func(s *Session) { s.dialOpts = opts }
}

func WithConnectTimeout(d time.Duration) Option {
	return func(s *Session) { s.connectTimeout = d }
}

func WithDrainTimeout(d time.Duration) Option {
	return func(s *Session) { s.drainTimeout = d }
}

// WithWriteTimeout bounds each audio frame write.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *Session) { s.writeTimeout = d }
}

// WithTick sets how often the send path re-checks the active predicate while
// no frame is available.
func WithTick(d time.Duration) Option {
	return func(s *Session) { s.tick = d }
}

// WithActive supplies the predicate that keeps the send path streaming,
// normally recording.State.IsActive.
func WithActive(active func() bool) Option {
	return func(s *Session) { s.active = active }
}

// WithUpdates registers a callback for display text. It runs on the receive
// goroutine, once per message that carried tokens.
func WithUpdates(fn func(display string)) Option {
	return func(s *Session) { s.onUpdate = fn }
}

// Session is one connect-stream-drain cycle against the transcription
// service. It is not reusable.
type Session struct {
	cfg            Config
	endpoint       string
	dialOpts       *websocket.DialOptions
	connectTimeout time.Duration
	drainTimeout   time.Duration
	writeTimeout   time.Duration
	tick           time.Duration
	active         func() bool
	onUpdate       func(string)

	state   atomic.Int32
	closing atomic.Bool
	ran     atomic.Bool

	mu    sync.Mutex
	err   error
	stats Stats
	acc   Accumulator
}

func NewSession(cfg Config, opts ...Option) *Session {
	s := &Session{
		cfg:            cfg,
		endpoint:       DefaultEndpoint,
		connectTimeout: DefaultConnectTimeout,
		drainTimeout:   DefaultDrainTimeout,
		writeTimeout:   DefaultWriteTimeout,
		tick:           audio.PollInterval,
		active:         func() bool { return true },
		onUpdate:       func(string) {},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

func (s *Session) setState(st SessionState) {
	s.state.Store(int32(st))
}

// Run streams frames until the active predicate turns false, frames is
// closed, the service ends the session or ctx is cancelled. stopCapture is
// called exactly once before Run returns. The returned Result carries the
// accumulated text even when err is non-nil.
func (s *Session) Run(ctx context.Context, frames <-chan audio.Frame, stopCapture func()) (Result, error) {
	var stopOnce sync.Once
	stop := func() {
		if stopCapture != nil {
			stopOnce.Do(stopCapture)
		}
	}
	defer stop()

	if !s.ran.CompareAndSwap(false, true) {
		return Result{}, errors.New("session already used")
	}
	started := time.Now()

	s.setState(StateConnecting)
	dialCtx, cancel := context.WithTimeout(ctx, s.connectTimeout)
	conn, metrics, err := dial(dialCtx, s.endpoint, s.dialOpts)
	cancel()
	s.mu.Lock()
	s.stats.Network = metrics
	s.stats.ConnectDur = metrics.Total
	s.mu.Unlock()
	if err != nil {
		return s.finish(started, err)
	}
	log.Infof("stream_connected connect_ms=%d tls=%s", metrics.Total.Milliseconds(), metrics.TLSProtocol)

	s.setState(StateConfiguring)
	payload, err := json.Marshal(s.cfg)
	if err == nil {
		err = conn.Write(ctx, websocket.MessageText, payload)
	}
	if err != nil {
		conn.CloseNow()
		return s.finish(started, fmt.Errorf("%w: %w", ErrConfigSendFailed, err))
	}

	s.setState(StatePriming)
	if err := conn.Write(ctx, websocket.MessageBinary, primingFrame()); err != nil {
		conn.CloseNow()
		return s.finish(started, fmt.Errorf("%w: %w", ErrPrimingFailed, err))
	}

	s.setState(StateStreaming)
	recvCtx, cancelRecv := context.WithCancel(ctx)
	defer cancelRecv()
	recvDone := make(chan struct{})
	go s.receive(recvCtx, conn, recvDone)

	s.send(ctx, conn, frames, recvDone)

	s.setState(StateDraining)
	drainStart := time.Now()
	stop()
	s.closing.Store(true)
	closeDone := make(chan struct{})
	go func() {
		defer close(closeDone)
		conn.Close(websocket.StatusNormalClosure, "")
	}()

	select {
	case <-recvDone:
	case <-time.After(s.drainTimeout):
		log.Warn("stream receiver drain timeout")
		cancelRecv()
		<-recvDone
	}
	select {
	case <-closeDone:
	case <-time.After(closeWait):
	}

	s.mu.Lock()
	s.stats.DrainDur = time.Since(drainStart)
	s.mu.Unlock()
	return s.finish(started, ctx.Err())
}

// send owns all writes while streaming.
func (s *Session) send(ctx context.Context, conn *websocket.Conn, frames <-chan audio.Frame, recvDone <-chan struct{}) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-recvDone:
			return
		case <-ticker.C:
			if !s.active() {
				return
			}
		case f, ok := <-frames:
			if !ok {
				return
			}
			data := f.Bytes()
			wctx, cancel := context.WithTimeout(ctx, s.writeTimeout)
			err := conn.Write(wctx, websocket.MessageBinary, data)
			cancel()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				// a server close also fails writes; the receive path classifies it
				select {
				case <-recvDone:
				case <-time.After(closeWait):
					s.setErr(fmt.Errorf("%w: send audio: %w", ErrTransportDropped, err))
				}
				return
			}
			s.mu.Lock()
			s.stats.SentFrames++
			s.stats.SentBytes += uint64(len(data))
			s.mu.Unlock()
		}
	}
}

// receive owns all reads. It ends on a finished message, a remote error, or
// when the connection goes away. A close frame from the server is a normal
// end of session.
func (s *Session) receive(ctx context.Context, conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			switch {
			case s.closing.Load():
			case websocket.CloseStatus(err) != -1:
				log.Infof("stream closed by server: %v", err)
			case !s.active():
				log.Infof("stream closed by server after stop: %v", err)
			case ctx.Err() != nil:
				s.setErr(ctx.Err())
			default:
				s.setErr(fmt.Errorf("%w: %w", ErrTransportDropped, err))
			}
			return
		}
		if typ != websocket.MessageText {
			continue
		}

		resp, err := parseResponse(data)
		s.mu.Lock()
		s.stats.RecvMessages++
		if err != nil {
			s.stats.Malformed++
		}
		s.mu.Unlock()
		if err != nil {
			log.Warnf("malformed stream message skipped: %v", err)
			continue
		}

		if rerr := resp.Err(); rerr != nil {
			log.Errorf("stream %v", rerr)
			s.setErr(rerr)
			return
		}

		s.mu.Lock()
		display, changed := s.acc.Apply(resp.Tokens)
		if changed {
			s.stats.TokenBatches++
		}
		s.mu.Unlock()
		if changed {
			s.onUpdate(display)
		}

		if resp.Finished {
			log.Info("stream finished by server")
			return
		}
	}
}

func (s *Session) setErr(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
}

func (s *Session) finish(started time.Time, err error) (Result, error) {
	if err != nil {
		s.setErr(err)
	}
	s.mu.Lock()
	s.stats.TotalDur = time.Since(started)
	stats := s.stats
	sessionErr := s.err
	r := Result{
		Text:    strings.TrimSpace(s.acc.Final()),
		Display: s.acc.Display(),
		Stats:   stats,
	}
	s.mu.Unlock()

	r.Metrics = formatMetrics(stats)
	if sessionErr != nil {
		s.setState(StateError)
	} else {
		s.setState(StateClosed)
	}
	return r, sessionErr
}

func formatMetrics(stats Stats) []string {
	lines := []string{
		fmt.Sprintf("audio:      %.1fs | %.1f KB PCM sent", stats.AudioDuration(), float64(stats.SentBytes)/1024),
		fmt.Sprintf("stream:     PCM16 %dHz mono", audio.TargetSampleRate),
		fmt.Sprintf("connect:    %dms", stats.ConnectDur.Milliseconds()),
	}
	if n := stats.Network; n != nil && (n.DNS > 0 || n.TLS > 0) {
		lines = append(lines, fmt.Sprintf("handshake:  dns %dms | tcp %dms | tls %dms %s | upgrade %dms",
			n.DNS.Milliseconds(), n.TCP.Milliseconds(), n.TLS.Milliseconds(), n.TLSProtocol, n.Upgrade.Milliseconds()))
	}
	lines = append(lines,
		fmt.Sprintf("sent:       %d frames", stats.SentFrames),
		fmt.Sprintf("recv:       %d msgs (%d with tokens, %d malformed)", stats.RecvMessages, stats.TokenBatches, stats.Malformed),
		fmt.Sprintf("drain:      %dms", stats.DrainDur.Milliseconds()),
		fmt.Sprintf("total:      %dms", stats.TotalDur.Milliseconds()),
	)
	return lines
}
