package main

import (
	"fmt"
	"io"
	"sync"

	"voxkey/dictation"
)

// consoleNotifier prints cycle events one per line. It backs the headless
// mode and the stdin-driven test mode, whose harness parses the prefixes.
type consoleNotifier struct {
	mu      sync.Mutex
	w       io.Writer
	partial bool // print live updates
}

var _ dictation.Notifier = (*consoleNotifier)(nil)

func newConsoleNotifier(w io.Writer, partial bool) *consoleNotifier {
	return &consoleNotifier{w: w, partial: partial}
}

func (c *consoleNotifier) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, format+"\n", args...)
}

func (c *consoleNotifier) RecordingStateChanged(active bool) {
	if active {
		c.printf("RECORDING on")
	} else {
		c.printf("RECORDING off")
	}
}

func (c *consoleNotifier) TranscriptionUpdated(text string) {
	if c.partial {
		c.printf("PARTIAL %s", text)
	}
}

func (c *consoleNotifier) TranscriptionFinished(text string) {
	c.printf("FINAL %s", text)
}

func (c *consoleNotifier) TranscriptionFailed(msg string) {
	c.printf("ERROR %s", msg)
}

// printInjector stands in for keystroke injection in test mode.
type printInjector struct {
	n *consoleNotifier
}

func (p printInjector) Inject(text string) error {
	p.n.printf("INJECT %s", text)
	return nil
}
