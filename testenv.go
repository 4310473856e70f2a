package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"voxkey/audio"
	"voxkey/config"
	"voxkey/dictation"
	"voxkey/hotkey"
	"voxkey/log"
	"voxkey/recording"
	"voxkey/shutdown"
	"voxkey/transcriber"
)

// pressWait bounds how long a simulated key edge may take to turn into a
// toggle press. Edges swallowed by debounce or hold suppression time out.
const pressWait = 50 * time.Millisecond

// runTestMode runs headless with the WAV file as microphone, driven by
// commands on stdin. Injection is replaced by an INJECT line on stdout.
func runTestMode(wavPath string, cfg config.Config) int {
	backend, err := audio.NewFakeBackendFromWAV(wavPath, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading WAV: %v\n", err)
		return 1
	}

	out := newConsoleNotifier(os.Stdout, true)
	state := recording.New()
	state.SetCredential(cfg.APIKey)
	orch := dictation.New(state, backend,
		[]transcriber.Option{transcriber.WithEndpoint(cfg.Endpoint)},
		out, printInjector{out},
		dictation.Config{
			Model:     cfg.Model,
			AutoPaste: cfg.AutoPaste,
			TypeDelay: cfg.TypeDelay(),
		},
	)

	ctx, stop := shutdown.Context(context.Background())
	defer stop()
	a := &app{ctx: ctx, state: state, orch: orch, notifier: out}

	hk := hotkey.NewFake()
	toggle := hotkey.NewToggle(hk, cfg.Debounce())
	defer toggle.Close()

	driveTest(os.Stdin, a, hk, toggle.Presses(), backend)
	return 0
}

// driveTest executes one command per line until QUIT or end of input:
// START, STOP, TOGGLE, CANCEL, KEYDOWN, KEYUP, KEY <api key>, WAIT,
// WAIT_AUDIO_DONE, SLEEP <ms>.
func driveTest(r io.Reader, a *app, hk *hotkey.FakeHotkey, presses <-chan struct{}, backend *audio.FakeBackend) {
	scanner := bufio.NewScanner(r)
loop:
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		cmd, arg, _ := strings.Cut(line, " ")
		switch strings.ToUpper(cmd) {
		case "":
		case "START":
			a.start()
		case "STOP":
			a.stop("test")
		case "TOGGLE":
			a.toggle("test")
		case "CANCEL":
			a.cancel("test")
		case "KEYDOWN":
			hk.SimKeydown()
			select {
			case <-presses:
				a.toggle("hotkey")
			case <-time.After(pressWait):
			}
		case "KEYUP":
			hk.SimKeyup()
		case "KEY":
			if err := a.setKey(arg); err != nil {
				log.Warnf("test KEY: %v", err)
			}
		case "WAIT":
			a.orch.Wait()
		case "WAIT_AUDIO_DONE":
			waitAudioDone(backend)
		case "SLEEP":
			if ms, err := strconv.Atoi(strings.TrimSpace(arg)); err == nil {
				time.Sleep(time.Duration(ms) * time.Millisecond)
			}
		case "QUIT":
			break loop
		default:
			log.Warnf("unknown test command %q", line)
		}
	}
	if a.orch.IsActive() {
		a.cancel("quit")
	}
	a.orch.Wait()
	log.SessionEnd(a.orch.Cycles())
}

// waitAudioDone blocks until the WAV has been fed once. The capture is opened
// by the cycle goroutine, so the stream may not exist yet.
func waitAudioDone(backend *audio.FakeBackend) {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if done := backend.AudioDone(); done != nil {
			<-done
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	log.Warn("WAIT_AUDIO_DONE: no capture opened")
}
