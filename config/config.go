// Package config loads and persists user settings as TOML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"voxkey/dictation"
	"voxkey/hotkey"
	"voxkey/log"
	"voxkey/transcriber"

	"github.com/BurntSushi/toml"
)

const (
	EnvAPIKey   = "SONIOX_API_KEY"
	EnvModel    = "VOXKEY_MODEL"
	EnvEndpoint = "VOXKEY_ENDPOINT"

	fileName = "config.toml"
)

type Config struct {
	APIKey      string `toml:"api_key"`       // Soniox API key
	Model       string `toml:"model"`         // real-time model name
	Endpoint    string `toml:"endpoint"`      // websocket URL of the transcription service
	Device      string `toml:"device"`        // capture device name or id, empty for the default
	AutoPaste   bool   `toml:"auto_paste"`    // inject the transcript when a cycle ends
	DebounceMs  int    `toml:"debounce_ms"`   // minimum gap between accepted hotkey presses
	TypeDelayMs int    `toml:"type_delay_ms"` // wait before injecting
}

func Default() Config {
	return Config{
		Model:       transcriber.DefaultModel,
		Endpoint:    transcriber.DefaultEndpoint,
		AutoPaste:   true,
		DebounceMs:  int(hotkey.DefaultDebounce / time.Millisecond),
		TypeDelayMs: int(dictation.DefaultTypeDelay / time.Millisecond),
	}
}

// DefaultPath is <user config dir>/voxkey/config.toml.
func DefaultPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config dir: %w", err)
	}
	return filepath.Join(base, "voxkey", fileName), nil
}

// LoadFile reads path on top of the defaults. A missing file is not an error.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	meta, err := toml.DecodeFile(path, &cfg)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("failed to decode config file %s: %w", path, err)
	}
	for _, key := range meta.Undecoded() {
		log.Warnf("config: unknown key %q in %s", key.String(), path)
	}
	return cfg, nil
}

// Load reads path, applies environment overrides and validates the result.
func Load(path string) (Config, error) {
	cfg, err := LoadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg.ApplyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from the environment. getenv is os.Getenv outside
// of tests.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := strings.TrimSpace(getenv(EnvAPIKey)); v != "" {
		c.APIKey = v
	}
	if v := strings.TrimSpace(getenv(EnvModel)); v != "" {
		c.Model = v
	}
	if v := strings.TrimSpace(getenv(EnvEndpoint)); v != "" {
		c.Endpoint = v
	}
}

func (c Config) Validate() error {
	if c.Model == "" {
		return errors.New("model is required")
	}
	if !strings.HasPrefix(c.Endpoint, "ws://") && !strings.HasPrefix(c.Endpoint, "wss://") {
		return fmt.Errorf("invalid endpoint %q (must be ws:// or wss://)", c.Endpoint)
	}
	if c.DebounceMs < 0 {
		return fmt.Errorf("invalid debounce_ms: %d (must be >= 0)", c.DebounceMs)
	}
	if c.TypeDelayMs < 0 {
		return fmt.Errorf("invalid type_delay_ms: %d (must be >= 0)", c.TypeDelayMs)
	}
	return nil
}

func (c Config) Debounce() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}

func (c Config) TypeDelay() time.Duration {
	return time.Duration(c.TypeDelayMs) * time.Millisecond
}

// Save writes the config atomically. The file holds the API key so it is
// created owner-only.
func (c Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// SetAPIKey persists key into the file at path, leaving other settings and
// environment overrides untouched.
func SetAPIKey(path, key string) error {
	cfg, err := LoadFile(path)
	if err != nil {
		return err
	}
	cfg.APIKey = strings.TrimSpace(key)
	return cfg.Save(path)
}
