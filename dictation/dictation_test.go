package dictation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"voxkey/audio"
	"voxkey/recording"
	"voxkey/transcriber"
)

type fakeNotifier struct {
	mu       sync.Mutex
	events   []string
	updates  chan string
	finished chan string
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{updates: make(chan string, 64), finished: make(chan string, 8)}
}

func (n *fakeNotifier) add(e string) {
	n.mu.Lock()
	n.events = append(n.events, e)
	n.mu.Unlock()
}

func (n *fakeNotifier) RecordingStateChanged(active bool) { n.add(fmt.Sprintf("state:%v", active)) }
func (n *fakeNotifier) TranscriptionUpdated(text string) {
	n.add("update:" + text)
	n.updates <- text
}
func (n *fakeNotifier) TranscriptionFinished(text string) {
	n.add("finished:" + text)
	n.finished <- text
}
func (n *fakeNotifier) TranscriptionFailed(msg string) { n.add("failed:" + msg) }

func (n *fakeNotifier) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.events...)
}

func (n *fakeNotifier) withPrefix(p string) []string {
	var out []string
	for _, e := range n.all() {
		if strings.HasPrefix(e, p) {
			out = append(out, strings.TrimPrefix(e, p))
		}
	}
	return out
}

type fakeInjector struct {
	mu   sync.Mutex
	text []string
}

func (f *fakeInjector) Inject(text string) error {
	f.mu.Lock()
	f.text = append(f.text, text)
	f.mu.Unlock()
	return nil
}

func (f *fakeInjector) injected() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.text...)
}

type harness struct {
	state    *recording.State
	backend  *audio.FakeBackend
	server   *transcriber.FakeServer
	notifier *fakeNotifier
	injector *fakeInjector
	orch     *Orchestrator
}

func newHarness(t *testing.T, script transcriber.Script) *harness {
	t.Helper()
	h := &harness{
		state:    recording.New(),
		backend:  audio.NewFakeBackend(make([]float32, 1600), audio.Format{SampleRate: 16000, Channels: 1}, true),
		server:   transcriber.NewFakeServer(script),
		notifier: newFakeNotifier(),
		injector: &fakeInjector{},
	}
	t.Cleanup(h.server.Close)
	h.state.SetCredential("test-key")
	h.orch = New(h.state, h.backend,
		[]transcriber.Option{
			transcriber.WithEndpoint(h.server.URL()),
			transcriber.WithTick(10 * time.Millisecond),
			transcriber.WithDrainTimeout(time.Second),
		},
		h.notifier, h.injector,
		Config{AutoPaste: true, TypeDelay: time.Millisecond},
	)
	return h
}

func (h *harness) wait(t *testing.T) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		h.orch.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatalf("cycle did not finish, events: %q", h.notifier.all())
	}
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %s", what)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestStartWithoutCredential(t *testing.T) {
	h := newHarness(t, nil)
	h.state.SetCredential("")

	if err := h.orch.Start(context.Background()); !errors.Is(err, recording.ErrNoCredential) {
		t.Fatalf("got %v, want ErrNoCredential", err)
	}
	if h.orch.IsActive() {
		t.Error("should not be active")
	}
	if got := h.notifier.all(); len(got) != 0 {
		t.Errorf("unexpected events %q", got)
	}
	if h.backend.Opens() != 0 {
		t.Error("capture should not be opened")
	}
}

func TestCycleDeliversTranscript(t *testing.T) {
	h := newHarness(t, transcriber.ReplyScript(
		transcriber.PendingTokens("hello "),
		[]transcriber.Token{{Text: "hello ", IsFinal: true}, {Text: "world", IsFinal: true}},
	))

	if err := h.orch.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !h.orch.IsActive() {
		t.Fatal("should be active after Start")
	}
	for range 2 {
		select {
		case <-h.notifier.updates:
		case <-time.After(5 * time.Second):
			t.Fatalf("no transcript updates, events: %q", h.notifier.all())
		}
	}
	h.orch.Stop("hotkey")
	h.wait(t)

	if got := h.notifier.withPrefix("update:"); len(got) != 2 || got[0] != "hello " || got[1] != "hello world" {
		t.Errorf("updates = %q", got)
	}
	if got := h.notifier.withPrefix("finished:"); len(got) != 1 || got[0] != "hello world" {
		t.Errorf("finished = %q, want [hello world]", got)
	}
	if got := h.notifier.withPrefix("failed:"); len(got) != 0 {
		t.Errorf("unexpected failures %q", got)
	}
	if got := h.notifier.withPrefix("state:"); len(got) != 2 || got[0] != "true" || got[1] != "false" {
		t.Errorf("state changes = %q, want [true false]", got)
	}
	if got := h.injector.injected(); len(got) != 1 || got[0] != "hello world" {
		t.Errorf("injected = %q", got)
	}
	if h.orch.IsActive() {
		t.Error("should be inactive after the cycle")
	}
	if got := h.state.Transcript(); got != "hello world" {
		t.Errorf("state transcript = %q", got)
	}
}

func TestDoubleStartRunsOneSession(t *testing.T) {
	h := newHarness(t, transcriber.ReplyScript())

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := h.orch.Start(context.Background()); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()
	waitUntil(t, "session", func() bool { return h.server.Sessions() == 1 })

	h.orch.Stop("test")
	h.wait(t)

	if n := h.server.Sessions(); n != 1 {
		t.Errorf("sessions = %d, want 1", n)
	}
	if n := h.backend.Opens(); n != 1 {
		t.Errorf("capture opens = %d, want 1", n)
	}
	if n := h.orch.Cycles(); n != 1 {
		t.Errorf("cycles = %d, want 1", n)
	}
	if got := h.notifier.withPrefix("finished:"); len(got) != 1 {
		t.Errorf("finished = %q, want exactly one", got)
	}
}

func TestCancelFinishesEmpty(t *testing.T) {
	h := newHarness(t, transcriber.ReplyScript(transcriber.FinalTokens("should not be typed")))

	if err := h.orch.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitUntil(t, "session", func() bool { return h.server.Sessions() == 1 })
	h.orch.Cancel("escape")
	h.wait(t)

	if h.orch.IsActive() {
		t.Error("should be inactive after cancel")
	}
	if got := h.notifier.withPrefix("finished:"); len(got) != 1 || got[0] != "" {
		t.Errorf("finished = %q, want one empty finish", got)
	}
	if got := h.notifier.withPrefix("failed:"); len(got) != 0 {
		t.Errorf("cancel should not report failure, got %q", got)
	}
	if got := h.injector.injected(); len(got) != 0 {
		t.Errorf("cancel must not inject, got %q", got)
	}
	if got := h.state.Transcript(); got != "" {
		t.Errorf("transcript = %q, want empty", got)
	}
}

func TestCancelWhenIdle(t *testing.T) {
	h := newHarness(t, nil)
	h.orch.Cancel("escape")

	got := h.notifier.all()
	if len(got) != 2 || got[0] != "state:false" || got[1] != "finished:" {
		t.Errorf("events = %q, want [state:false finished:]", got)
	}
}

func TestRemoteErrorReported(t *testing.T) {
	h := newHarness(t, transcriber.ErrorScript(401, "bad key"))

	if err := h.orch.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	h.wait(t)

	failed := h.notifier.withPrefix("failed:")
	if len(failed) != 1 || !strings.Contains(failed[0], "401") || !strings.Contains(failed[0], "bad key") {
		t.Errorf("failed = %q, want one message with code and text", failed)
	}
	if got := h.notifier.withPrefix("finished:"); len(got) != 1 || got[0] != "" {
		t.Errorf("finished = %q, want one empty finish", got)
	}
	if h.orch.IsActive() {
		t.Error("state should be inactive after a remote error")
	}
	if got := h.injector.injected(); len(got) != 0 {
		t.Errorf("injected = %q", got)
	}
}

func TestRemoteErrorKeepsReceivedText(t *testing.T) {
	h := newHarness(t, func(ctx context.Context, c *transcriber.FakeConn) {
		<-c.FirstAudio()
		c.Send(ctx, transcriber.Response{Tokens: transcriber.FinalTokens("partial ", "text ")})
		code, msg := 503, "overloaded"
		c.Send(ctx, transcriber.Response{ErrorCode: &code, ErrorMessage: &msg})
		c.WaitClose(ctx)
	})

	if err := h.orch.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	h.wait(t)

	if failed := h.notifier.withPrefix("failed:"); len(failed) != 1 || !strings.Contains(failed[0], "overloaded") {
		t.Errorf("failed = %q", failed)
	}
	if got := h.notifier.withPrefix("finished:"); len(got) != 1 || got[0] != "partial text" {
		t.Errorf("finished = %q, want [partial text]", got)
	}
	if got := h.injector.injected(); len(got) != 0 {
		t.Errorf("a failed cycle must not inject, got %q", got)
	}
}

func TestServerFinishedWhileRecording(t *testing.T) {
	h := newHarness(t, func(ctx context.Context, c *transcriber.FakeConn) {
		<-c.FirstAudio()
		c.Send(ctx, transcriber.Response{Tokens: transcriber.FinalTokens(" hello ", "world ")})
		c.Send(ctx, transcriber.Response{Finished: true})
		c.WaitClose(ctx)
	})

	if err := h.orch.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	// no Stop: the server ends the session
	h.wait(t)

	if got := h.notifier.withPrefix("finished:"); len(got) != 1 || got[0] != "hello world" {
		t.Errorf("finished = %q, want [hello world]", got)
	}
	if got := h.injector.injected(); len(got) != 1 || got[0] != "hello world" {
		t.Errorf("injected = %q", got)
	}
	if got := h.notifier.withPrefix("failed:"); len(got) != 0 {
		t.Errorf("unexpected failures %q", got)
	}
	if h.orch.IsActive() {
		t.Error("state should be inactive")
	}
}

func TestServerCloseDeliversText(t *testing.T) {
	h := newHarness(t, func(ctx context.Context, c *transcriber.FakeConn) {
		<-c.FirstAudio()
		c.Send(ctx, transcriber.Response{Tokens: transcriber.FinalTokens("done ", "text ")})
		// returning closes with a normal closure
	})

	if err := h.orch.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	h.wait(t)

	if got := h.notifier.withPrefix("failed:"); len(got) != 0 {
		t.Errorf("a server close is not a failure, got %q", got)
	}
	if got := h.notifier.withPrefix("finished:"); len(got) != 1 || got[0] != "done text" {
		t.Errorf("finished = %q, want [done text]", got)
	}
	if got := h.injector.injected(); len(got) != 1 || got[0] != "done text" {
		t.Errorf("injected = %q", got)
	}
	if h.orch.IsActive() {
		t.Error("state should be inactive")
	}
}

func TestTransportDropDeliversText(t *testing.T) {
	h := newHarness(t, func(ctx context.Context, c *transcriber.FakeConn) {
		<-c.FirstAudio()
		c.Send(ctx, transcriber.Response{Tokens: transcriber.FinalTokens("hello ", "there ")})
		time.Sleep(50 * time.Millisecond)
		c.Drop()
	})

	if err := h.orch.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	h.wait(t)

	if got := h.notifier.withPrefix("finished:"); len(got) != 1 || got[0] != "hello there" {
		t.Errorf("finished = %q, want [hello there]", got)
	}
	if got := h.injector.injected(); len(got) != 1 || got[0] != "hello there" {
		t.Errorf("injected = %q", got)
	}
	if got := h.notifier.withPrefix("failed:"); len(got) != 0 {
		t.Errorf("unexpected failures %q", got)
	}
	if h.orch.IsActive() {
		t.Error("state should be inactive")
	}
}

func TestStartWhileFinishing(t *testing.T) {
	h := newHarness(t, transcriber.ReplyScript(transcriber.FinalTokens("first")))
	h.orch.cfg.TypeDelay = 500 * time.Millisecond

	if err := h.orch.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	select {
	case <-h.notifier.updates:
	case <-time.After(5 * time.Second):
		t.Fatal("no update")
	}
	h.orch.Stop("hotkey")
	waitUntil(t, "finished", func() bool { return len(h.notifier.withPrefix("finished:")) == 1 })

	// the cycle is now waiting to inject
	if err := h.orch.Start(context.Background()); !errors.Is(err, ErrCycleFinishing) {
		t.Errorf("got %v, want ErrCycleFinishing", err)
	}
	h.wait(t)

	if n := h.orch.Cycles(); n != 1 {
		t.Errorf("cycles = %d, want 1", n)
	}
	if got := h.injector.injected(); len(got) != 1 || got[0] != "first" {
		t.Errorf("injected = %q", got)
	}
}

func TestCaptureFailureAbortsCycle(t *testing.T) {
	h := newHarness(t, nil)
	h.backend.OpenErr = audio.ErrNoDevice

	if err := h.orch.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	h.wait(t)

	failed := h.notifier.withPrefix("failed:")
	if len(failed) != 1 || !strings.Contains(failed[0], "no input device") {
		t.Errorf("failed = %q", failed)
	}
	if h.server.Sessions() != 0 {
		t.Error("no session should be opened when capture fails")
	}
	if h.orch.IsActive() {
		t.Error("state should be inactive")
	}
}

type panicBackend struct{ audio.FakeBackend }

func (p *panicBackend) Open(*audio.DeviceInfo, audio.DataCallback) (audio.Stream, error) {
	panic("device exploded")
}

func TestCyclePanicRecovered(t *testing.T) {
	h := newHarness(t, nil)
	h.orch.backend = &panicBackend{}

	if err := h.orch.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	h.wait(t)

	failed := h.notifier.withPrefix("failed:")
	if len(failed) != 1 || !strings.Contains(failed[0], "device exploded") {
		t.Errorf("failed = %q", failed)
	}
	if h.orch.IsActive() {
		t.Error("state should be inactive after a panic")
	}

	// The orchestrator stays usable.
	h.orch.backend = h.backend
	if err := h.orch.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	h.orch.Stop("test")
	h.wait(t)
	if n := h.orch.Cycles(); n != 2 {
		t.Errorf("cycles = %d, want 2", n)
	}
}

func TestNoInjectionWhenAutoPasteOff(t *testing.T) {
	h := newHarness(t, transcriber.ReplyScript(transcriber.FinalTokens("typed?")))
	h.orch.cfg.AutoPaste = false

	if err := h.orch.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	select {
	case <-h.notifier.updates:
	case <-time.After(5 * time.Second):
		t.Fatal("no update")
	}
	h.orch.Stop("test")
	h.wait(t)

	if got := h.notifier.withPrefix("finished:"); len(got) != 1 || got[0] != "typed?" {
		t.Errorf("finished = %q", got)
	}
	if got := h.injector.injected(); len(got) != 0 {
		t.Errorf("injected = %q, want none", got)
	}
}
