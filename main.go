package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"voxkey/audio"
	"voxkey/beep"
	"voxkey/clipboard"
	"voxkey/config"
	"voxkey/dictation"
	"voxkey/doctor"
	"voxkey/hotkey"
	"voxkey/log"
	"voxkey/recording"
	"voxkey/shutdown"
	"voxkey/transcriber"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"
)

var version = "dev"

// shutdownWait bounds how long a running cycle may take to drain on exit.
const shutdownWait = 3 * time.Second

func run() {
	os.Exit(runMain())
}

func runMain() int {
	setKeyFlag := flag.String("setkey", "", "Save the Soniox API key to the config file")
	deviceFlag := flag.String("device", "", "Use named microphone device (name substring or id)")
	setupFlag := flag.Bool("setup", false, "Select microphone device interactively and save it")
	autoPasteFlag := flag.Bool("autopaste", true, "Paste the transcript into the focused window when a cycle ends")
	tuiFlag := flag.Bool("tui", true, "Run with terminal UI")
	logPathFlag := flag.String("logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)")
	doctorFlag := flag.Bool("doctor", false, "Run system diagnostics and exit")
	testFlag := flag.String("test", "", "Test mode: headless, stdin-driven, WAV file as microphone")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	configFlag := flag.String("config", "", "Config file path (default: <user config dir>/voxkey/config.toml)")
	endpointFlag := flag.String("endpoint", "", "Override the transcription websocket URL")
	modelFlag := flag.String("model", "", "Override the transcription model")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("voxkey %s\n", version)
		return 0
	}

	// Resolve log directory early
	logPath, err := log.ResolveDir(*logPathFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve log directory: %v\n", err)
		return 1
	}
	log.SetDir(logPath)
	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log directory: %v\n", err)
	}
	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
	defer log.Close()

	cfgPath := *configFlag
	if cfgPath == "" {
		if cfgPath, err = config.DefaultPath(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
	}
	if *setKeyFlag != "" {
		if err := config.SetAPIKey(cfgPath, *setKeyFlag); err != nil {
			fmt.Fprintf(os.Stderr, "Error: could not save API key: %v\n", err)
			return 1
		}
		fmt.Printf("API key saved to %s\n", cfgPath)
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "device":
			cfg.Device = *deviceFlag
		case "autopaste":
			cfg.AutoPaste = *autoPasteFlag
		case "endpoint":
			cfg.Endpoint = *endpointFlag
		case "model":
			cfg.Model = *modelFlag
		}
	})
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	log.SessionStart(version, cfg.Model)

	if *testFlag != "" {
		return runTestMode(*testFlag, cfg)
	}

	backend, err := audio.NewBackend()
	if err != nil {
		log.Errorf("audio backend init error: %v", err)
		fmt.Fprintf(os.Stderr, "Error initializing audio: %v\n", err)
		return 1
	}
	defer backend.Close()

	if *doctorFlag {
		return doctor.Run(doctor.Options{
			APIKey:   cfg.APIKey,
			Model:    cfg.Model,
			Endpoint: cfg.Endpoint,
			Device:   cfg.Device,
			Backend:  backend,
		})
	}

	if *setupFlag {
		dev, err := audio.SelectDevice(backend)
		switch {
		case errors.Is(err, audio.ErrPickerAborted):
			return 1
		case err != nil:
			log.Warnf("device selection failed: %v", err)
			fmt.Printf("Warning: device selection failed: %v\n", err)
			fmt.Println("Falling back to default device")
		case dev != nil:
			cfg.Device = dev.ID
			if err := saveDevice(cfgPath, dev.ID); err != nil {
				fmt.Printf("Warning: could not save device: %v\n", err)
			}
		}
	}

	device, err := audio.FindDevice(backend, cfg.Device)
	if err != nil {
		log.Warnf("device %q not found, using default: %v", cfg.Device, err)
		fmt.Printf("Warning: %v, using default device\n", err)
	}
	if device != nil {
		log.Info("recording_device: " + device.Name)
	}

	if cfg.AutoPaste {
		if err := clipboard.Init(); err != nil {
			fmt.Printf("Warning: paste init failed: %v\n", err)
			fmt.Println("Fix with: sudo chmod 660 /dev/uinput && sudo chgrp input /dev/uinput")
		}
	}

	useTUI := *tuiFlag && term.IsTerminal(int(os.Stdout.Fd()))
	tuiNotify := &tuiNotifier{}
	var notifier dictation.Notifier = newConsoleNotifier(os.Stdout, false)
	if useTUI {
		notifier = tuiNotify
	}

	cues := beep.New()
	go cues.Init()

	state := recording.New()
	state.SetCredential(cfg.APIKey)
	injector := clipboard.NewInjector()
	orch := dictation.New(state, backend,
		[]transcriber.Option{transcriber.WithEndpoint(cfg.Endpoint)},
		notifier, injector,
		dictation.Config{
			Model:     cfg.Model,
			Device:    device,
			AutoPaste: cfg.AutoPaste,
			TypeDelay: cfg.TypeDelay(),
			Cues:      cues,
		},
	)

	ctx, stop := shutdown.Context(context.Background())
	defer stop()
	a := &app{ctx: ctx, state: state, orch: orch, notifier: notifier, cfgPath: cfgPath}

	var p *tea.Program
	if useTUI {
		p = NewTUIProgram(newTUIModel(a, modeLineText(cfg), deviceLineText(device)))
		tuiNotify.p = p
	}
	// notices are shown once the UI is up
	var notices []string

	hk := hotkey.New()
	if err := hk.Register(); err != nil {
		log.Errorf("hotkey register error: %v", err)
		if !useTUI {
			fmt.Fprintf(os.Stderr, "Error registering hotkey: %v\n", err)
			return 1
		}
		notices = append(notices, "hotkey unavailable: "+err.Error())
	} else {
		defer hk.Unregister()
		toggle := hotkey.NewToggle(hk, cfg.Debounce())
		defer toggle.Close()
		go a.hotkeyLoop(ctx, toggle.Presses())
	}

	if !state.HasCredential() {
		log.Warn("no credential configured")
		if useTUI {
			notices = append(notices, "no API key: press k to enter one, or run with -setkey")
		} else {
			fmt.Fprintf(os.Stderr, "Warning: no API key: run with -setkey or set %s\n", config.EnvAPIKey)
		}
	}

	if useTUI {
		go func() {
			<-ctx.Done()
			p.Quit()
		}()
		go func() {
			for _, n := range notices {
				p.Send(failedMsg{n})
			}
		}()
		if _, err := p.Run(); err != nil {
			log.Errorf("TUI error: %v", err)
		}
		stop()
	} else {
		fmt.Printf("voxkey %s ready, press %s to dictate\n", version, hotkey.Label)
		<-ctx.Done()
	}

	gracefulShutdown(orch, injector)
	return 0
}

// gracefulShutdown cancels a running cycle and waits, bounded, for it to
// finish and for a pending clipboard restore.
func gracefulShutdown(orch *dictation.Orchestrator, injector *clipboard.Injector) {
	if orch.IsActive() {
		orch.Cancel("shutdown")
	}
	done := make(chan struct{})
	go func() {
		orch.Wait()
		injector.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdownWait):
		log.Warn("shutdown: cycle still running, exiting anyway")
	}
	log.SessionEnd(orch.Cycles())
}

func saveDevice(cfgPath, id string) error {
	c, err := config.LoadFile(cfgPath)
	if err != nil {
		return err
	}
	c.Device = id
	return c.Save(cfgPath)
}

func deviceLineText(dev *audio.DeviceInfo) string {
	name := "system default"
	suffix := ""
	if dev != nil {
		name = dev.Name
		if audio.IsBluetooth(dev.Name) {
			suffix = " (BT!)"
		}
	}
	return "mic: " + name + suffix
}

func modeLineText(cfg config.Config) string {
	return fmt.Sprintf("[PCM16 %dkHz | %s]", audio.TargetSampleRate/1000, cfg.Model)
}
