package log

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
)

const EnvLogPath = "VOXKEY_LOG_PATH"

var (
	diagLog  zerolog.Logger
	diagFile *os.File
	logMu    sync.Mutex
	logReady bool
	pid      int
	dir      string
)

// CycleMetrics summarizes one recording cycle for the diagnostics log.
type CycleMetrics struct {
	CycleID      string
	Outcome      string
	ConnectMs    float64
	TotalMs      float64
	AudioS       float64
	SentFrames   int
	SentKB       float64
	DroppedFrame uint64
	RecvMessages int
	Malformed    int
	FinalChars   int
}

func ResolveDir(flagPath string) (string, error) {
	// Priority 1: -logpath flag
	if flagPath != "" {
		return absPath(flagPath)
	}

	// Priority 2: VOXKEY_LOG_PATH environment variable
	if envPath := os.Getenv(EnvLogPath); envPath != "" {
		return absPath(envPath)
	}

	// Priority 3: Default OS-specific location
	return getDefaultDir()
}

func absPath(p string) (string, error) {
	if filepath.IsAbs(p) {
		return p, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, p), nil
}

func SetDir(d string) {
	dir = d
}

func Dir() string {
	return dir
}

func EnsureDir() error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	return nil
}

func Init() error {
	logMu.Lock()
	defer logMu.Unlock()

	if err := EnsureDir(); err != nil {
		return err
	}

	pid = os.Getpid()

	var err error
	diagPath := filepath.Join(dir, "diagnostics_log.txt")
	diagFile, err = os.OpenFile(diagPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	consoleWriter := zerolog.ConsoleWriter{
		Out:        diagFile,
		TimeFormat: "2006-01-02 15:04:05.000",
		NoColor:    true,
	}
	diagLog = zerolog.New(consoleWriter).With().Timestamp().Int("pid", pid).Logger()

	logReady = true
	return nil
}

func Close() {
	logMu.Lock()
	defer logMu.Unlock()
	if diagFile != nil {
		diagFile.Close()
		diagFile = nil
	}
	logReady = false
}

func Info(msg string) {
	if logReady {
		diagLog.Info().Msg(msg)
	}
}

func Infof(format string, args ...any) {
	if logReady {
		diagLog.Info().Msg(fmt.Sprintf(format, args...))
	}
}

func Error(msg string) {
	if logReady {
		diagLog.Error().Msg(msg)
	}
}

func Errorf(format string, args ...any) {
	if logReady {
		diagLog.Error().Msg(fmt.Sprintf(format, args...))
	}
}

func Warn(msg string) {
	if logReady {
		diagLog.Warn().Msg(msg)
	}
}

func Warnf(format string, args ...any) {
	if logReady {
		diagLog.Warn().Msg(fmt.Sprintf(format, args...))
	}
}

// Cycle logs the per-cycle summary. Transcript text is never logged, only its
// length.
func Cycle(m CycleMetrics) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("cycle", m.CycleID).
		Str("outcome", m.Outcome).
		Float64("connect_ms", m.ConnectMs).
		Float64("total_ms", m.TotalMs).
		Float64("audio_s", m.AudioS).
		Int("sent_frames", m.SentFrames).
		Float64("sent_kb", m.SentKB).
		Uint64("dropped_frames", m.DroppedFrame).
		Int("recv_messages", m.RecvMessages).
		Int("malformed", m.Malformed).
		Int("final_chars", m.FinalChars).
		Msg("cycle")
}

func SessionStart(version, model string) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("version", version).
		Str("model", model).
		Msg("session_start")
}

func SessionEnd(cycles int) {
	if !logReady {
		return
	}
	diagLog.Info().
		Int("cycles", cycles).
		Msg("session_end")
}
