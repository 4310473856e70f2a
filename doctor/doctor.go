// Package doctor runs non-destructive checks of everything a dictation cycle
// depends on.
package doctor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"voxkey/audio"
	"voxkey/clipboard"
	"voxkey/hotkey"
	"voxkey/shutdown"
	"voxkey/transcriber"
)

const (
	captureProbe  = time.Second
	endpointProbe = 10 * time.Second
)

// Options selects what is checked. Nil hooks fall back to the real system.
type Options struct {
	APIKey   string
	Model    string
	Endpoint string
	Device   string

	Backend     audio.Backend
	Hotkey      func() (string, error)
	Paste       func() (string, error)
	SessionOpts []transcriber.Option

	Out io.Writer
}

type check struct {
	name string
	run  func(ctx context.Context) (string, error)
}

// Run executes the checks in order and returns an exit code (0=all pass,
// 1=any fail). The endpoint check is skipped without a credential.
func Run(opts Options) int {
	resetTerminal()
	ctx, stop := shutdown.Context(context.Background())
	defer stop()
	return run(ctx, opts)
}

func run(ctx context.Context, opts Options) int {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Hotkey == nil {
		opts.Hotkey = hotkey.Diagnose
	}
	if opts.Paste == nil {
		opts.Paste = clipboard.Verify
	}
	out := opts.Out

	fmt.Fprintln(out, "voxkey doctor - system diagnostics")
	fmt.Fprintln(out, "==================================")

	checks := []check{
		{"Credential", func(context.Context) (string, error) { return checkCredential(opts.APIKey) }},
		{"Capture device", func(context.Context) (string, error) { return checkCapture(opts.Backend, opts.Device) }},
		{"Hotkey " + hotkey.Label, func(context.Context) (string, error) { return opts.Hotkey() }},
		{"Transcription endpoint", func(ctx context.Context) (string, error) { return checkEndpoint(ctx, opts) }},
		{"Keystroke output", func(context.Context) (string, error) { return opts.Paste() }},
	}

	allPass := true
	for i, c := range checks {
		fmt.Fprintln(out)
		fmt.Fprintf(out, "[%d/%d] %s\n", i+1, len(checks), c.name)
		if ctx.Err() != nil {
			fmt.Fprintln(out, "  SKIP: interrupted")
			allPass = false
			continue
		}
		msg, err := c.run(ctx)
		switch {
		case errors.Is(err, errSkipped):
			fmt.Fprintf(out, "  SKIP: %s\n", msg)
		case err != nil:
			fmt.Fprintf(out, "  FAIL: %v\n", err)
			allPass = false
		default:
			fmt.Fprintf(out, "  PASS: %s\n", msg)
		}
	}

	fmt.Fprintln(out)
	if allPass {
		fmt.Fprintln(out, "All checks passed!")
		return 0
	}
	fmt.Fprintln(out, "Some checks failed. See details above.")
	return 1
}

var errSkipped = errors.New("skipped")

func checkCredential(key string) (string, error) {
	if key == "" {
		return "", errors.New("no API key (set SONIOX_API_KEY or run with -setkey)")
	}
	return fmt.Sprintf("API key set (%d chars)", len(key)), nil
}

func checkCapture(b audio.Backend, query string) (string, error) {
	if b == nil {
		return "", errors.New("no audio backend")
	}
	dev, err := audio.FindDevice(b, query)
	if err != nil {
		return "", err
	}
	c := audio.NewCapture(b, audio.Config{Device: dev})
	frames, err := c.Start()
	if err != nil {
		return "", err
	}
	defer c.Stop()

	var n, peak int
	timeout := time.After(captureProbe)
loop:
	for {
		select {
		case f, ok := <-frames:
			if !ok {
				break loop
			}
			n += len(f)
			for _, s := range f {
				peak = max(peak, abs(int(s)))
			}
		case <-timeout:
			break loop
		}
	}
	if n == 0 {
		return "", fmt.Errorf("%s opened but delivered no audio", c.Format())
	}
	msg := fmt.Sprintf("captured %.1fs from %s, peak %d", float64(n)/audio.TargetSampleRate, c.Format(), peak)
	if dev != nil && audio.IsBluetooth(dev.Name) {
		msg += " (bluetooth device, expect added latency)"
	}
	return msg, nil
}

// checkEndpoint runs a short session of silence so the service validates the
// credential and model.
func checkEndpoint(ctx context.Context, opts Options) (string, error) {
	if opts.APIKey == "" {
		return "no API key", errSkipped
	}
	frames := make(chan audio.Frame, 10)
	for range cap(frames) {
		frames <- make(audio.Frame, audio.TargetSampleRate/10)
	}
	close(frames)

	sessOpts := append([]transcriber.Option{
		transcriber.WithEndpoint(opts.Endpoint),
		transcriber.WithDrainTimeout(2 * time.Second),
	}, opts.SessionOpts...)
	ctx, cancel := context.WithTimeout(ctx, endpointProbe)
	defer cancel()

	res, err := transcriber.NewSession(transcriber.NewConfig(opts.APIKey, opts.Model), sessOpts...).Run(ctx, frames, nil)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("session accepted, connect %dms, %d messages", res.Stats.ConnectDur.Milliseconds(), res.Stats.RecvMessages), nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
