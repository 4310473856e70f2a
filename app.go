package main

import (
	"context"
	"errors"
	"strings"

	"voxkey/config"
	"voxkey/dictation"
	"voxkey/log"
	"voxkey/recording"
)

// app holds the inbound triggers shared by the hotkey, the TUI and test mode.
type app struct {
	ctx      context.Context
	state    *recording.State
	orch     *dictation.Orchestrator
	notifier dictation.Notifier
	cfgPath  string
}

// toggle starts a cycle when idle and stops the running one otherwise.
func (a *app) toggle(reason string) {
	if a.orch.IsActive() {
		a.stop(reason)
		return
	}
	a.start()
}

func (a *app) start() {
	if err := a.orch.Start(a.ctx); err != nil {
		log.Warnf("start refused: %v", err)
		a.notifier.TranscriptionFailed(err.Error())
	}
}

func (a *app) stop(reason string) {
	a.orch.Stop(reason)
}

// cancel discards the running cycle and hides the transcript.
func (a *app) cancel(reason string) {
	a.orch.Cancel(reason)
}

// setKey stores the credential for the next cycle and persists it.
func (a *app) setKey(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("empty API key")
	}
	a.state.SetCredential(key)
	log.Info("credential_set")
	if a.cfgPath == "" {
		return nil
	}
	return config.SetAPIKey(a.cfgPath, key)
}

// hotkeyLoop toggles recording on every accepted press until ctx ends.
func (a *app) hotkeyLoop(ctx context.Context, presses <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-presses:
			if !ok {
				return
			}
			a.toggle("hotkey")
		}
	}
}
