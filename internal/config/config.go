package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/caarlos0/env/v11"
	"github.com/pelletier/go-toml/v2"
)

const (
	defaultEndpoint       = "wss://dev-endpoint.wordly.ai/present"
	defaultConnectionCode = "wordly-join-app"
	defaultCooldown       = 1.0
	defaultStatusTail     = 10
	defaultStateDirLinux  = ".local/state/captionjoin"
	defaultConfigDir      = ".config/captionjoin"
)

// RecorderConfig is one recorder brought up when the daemon starts. With no
// [[recorders]] the daemon starts a single recorder on the default device.
type RecorderConfig struct {
	Name      string `toml:"name"`
	Language  string `toml:"language"`
	DeviceID  string `toml:"device_id"`
	Muted     bool   `toml:"muted"`
	Collapsed bool   `toml:"collapsed"`
}

// Config holds user configuration loaded from TOML.
type Config struct {
	Session struct {
		SessionID         string  `toml:"session_id"`
		Passcode          string  `toml:"passcode"`
		Endpoint          string  `toml:"endpoint"`
		ConnectionCode    string  `toml:"connection_code"`
		ConnectTimeoutSec float64 `toml:"connect_timeout_sec"`
		AutoJoin          bool    `toml:"auto_join"`
		Preset            string  `toml:"preset"` // loaded on start instead of [[recorders]]
	} `toml:"session"`

	Audio struct {
		SampleRate       int     `toml:"sample_rate"`
		BlockSize        int     `toml:"block_size"`
		FrameSamples     int     `toml:"frame_samples"`
		Gain             float64 `toml:"gain"`
		SilenceThreshold float64 `toml:"silence_threshold"`
		ArchiveDir       string  `toml:"archive_dir"` // empty disables WAV archiving
	} `toml:"audio"`

	Recorders []RecorderConfig `toml:"recorders"`

	Hook struct {
		Command     string            `toml:"command"`
		Args        []string          `toml:"args"`
		ArgLine     string            `toml:"arg_line"` // shell-style alternative to args
		Prefix      string            `toml:"prefix"`
		CooldownSec float64           `toml:"cooldown_sec"`
		MinChars    int               `toml:"min_chars"`
		QueueSize   int               `toml:"queue_size"`
		TimeoutSec  float64           `toml:"timeout_sec"`
		Env         map[string]string `toml:"env"`
		RedactPII   bool              `toml:"redact_pii"`
	} `toml:"hook"`

	Logging struct {
		Level  string `toml:"level"`  // debug, info, warn, error
		Format string `toml:"format"` // text, json
		Stdout bool   `toml:"stdout"`

		// rotation of log_path
		MaxSizeMB  int  `toml:"max_size_mb"`
		MaxBackups int  `toml:"max_backups"`
		MaxAgeDays int  `toml:"max_age_days"`
		Compress   bool `toml:"compress"`
	} `toml:"logging"`

	Paths struct {
		StateDir       string `toml:"state_dir"`
		LogPath        string `toml:"log_path"`
		TranscriptPath string `toml:"transcript_path"`
		SocketPath     string `toml:"socket_path"`
		PidPath        string `toml:"pid_path"`
		PresetPath     string `toml:"preset_path"`
		ConfigPath     string `toml:"-"`
	} `toml:"paths"`

	UI struct {
		StatusTail int `toml:"status_tail"`
	} `toml:"ui"`

	Metrics struct {
		Enabled bool   `toml:"enabled"`
		Addr    string `toml:"addr"`
	} `toml:"metrics"`

	Transcripts struct {
		Enabled bool `toml:"enabled"`
	} `toml:"transcripts"`
}

// Default returns Config populated with defaults.
func Default() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	stateDir := filepath.Join(home, defaultStateDirLinux)
	// macOS prefers ~/Library/Application Support/captionjoin for state/logs
	if isMac() {
		stateDir = filepath.Join(home, "Library", "Application Support", "captionjoin")
	}

	cfg := &Config{}

	cfg.Session.Endpoint = defaultEndpoint
	cfg.Session.ConnectionCode = defaultConnectionCode
	cfg.Session.ConnectTimeoutSec = 10
	cfg.Session.AutoJoin = true

	cfg.Audio.SampleRate = 16000
	cfg.Audio.BlockSize = 2048
	cfg.Audio.FrameSamples = 1600
	cfg.Audio.Gain = 1.5
	cfg.Audio.SilenceThreshold = 0.001

	cfg.Hook.Prefix = "${speaker}: "
	cfg.Hook.CooldownSec = defaultCooldown
	cfg.Hook.MinChars = 1
	cfg.Hook.QueueSize = 16
	cfg.Hook.TimeoutSec = 5
	cfg.Hook.Env = map[string]string{}

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "text"
	cfg.Logging.MaxSizeMB = 20
	cfg.Logging.MaxBackups = 3
	cfg.Logging.MaxAgeDays = 30

	cfg.Paths.StateDir = stateDir
	cfg.Paths.LogPath = filepath.Join(stateDir, "captionjoin.log")
	cfg.Paths.TranscriptPath = filepath.Join(stateDir, "transcripts.log")
	cfg.Paths.SocketPath = filepath.Join(stateDir, "captionjoin.sock")
	cfg.Paths.PidPath = filepath.Join(stateDir, "captionjoin.pid")
	cfg.Paths.PresetPath = filepath.Join(stateDir, "presets.toml")

	cfg.UI.StatusTail = defaultStatusTail

	cfg.Metrics.Enabled = false
	cfg.Metrics.Addr = "127.0.0.1:9318"

	cfg.Transcripts.Enabled = true

	return cfg, nil
}

// Load loads config from file, applying defaults.
func Load(path string) (*Config, error) {
	cfg, err := Default()
	if err != nil {
		return nil, err
	}

	if path == "" {
		path = DefaultPath()
	}

	// Read if exists; otherwise write template.
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if err := Save(cfg, path); err != nil {
				return nil, err
			}
			cfg.Paths.ConfigPath = path
			if err := applyEnvOverrides(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Paths.ConfigPath = path
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultPath is ~/.config/captionjoin/config.toml.
func DefaultPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, defaultConfigDir, "config.toml")
}

// Save writes cfg to path.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	out, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o600)
}

func isMac() bool {
	return runtime.GOOS == "darwin"
}

// MustStatePaths ensures state dirs exist.
func MustStatePaths(cfg *Config) error {
	dirs := []string{
		cfg.Paths.StateDir,
		filepath.Dir(cfg.Paths.LogPath),
		filepath.Dir(cfg.Paths.TranscriptPath),
		filepath.Dir(cfg.Paths.PresetPath),
		cfg.Audio.ArchiveDir,
	}
	for _, p := range dirs {
		if p == "" {
			continue
		}
		if err := os.MkdirAll(p, 0o755); err != nil {
			return err
		}
	}
	return nil
}

// envOverrides are read with caarlos0/env. Unset variables leave the
// pointers nil.
type envOverrides struct {
	SessionID   *string `env:"CAPTIONJOIN_SESSION_ID"`
	Passcode    *string `env:"CAPTIONJOIN_PASSCODE"`
	Endpoint    *string `env:"CAPTIONJOIN_ENDPOINT"`
	AutoJoin    *bool   `env:"CAPTIONJOIN_AUTO_JOIN"`
	MetricsAddr *string `env:"CAPTIONJOIN_METRICS_ADDR"`
	LogLevel    *string `env:"CAPTIONJOIN_LOG_LEVEL"`
	LogFormat   *string `env:"CAPTIONJOIN_LOG_FORMAT"`
	Transcripts *bool   `env:"CAPTIONJOIN_TRANSCRIPTS_ENABLED"`
	RedactPII   *bool   `env:"CAPTIONJOIN_REDACT_PII"`
}

func applyEnvOverrides(cfg *Config) error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("environment overrides: %w", err)
	}
	set := func(dst *string, v *string) {
		if v != nil && *v != "" {
			*dst = *v
		}
	}
	set(&cfg.Session.SessionID, o.SessionID)
	set(&cfg.Session.Passcode, o.Passcode)
	set(&cfg.Session.Endpoint, o.Endpoint)
	set(&cfg.Logging.Level, o.LogLevel)
	set(&cfg.Logging.Format, o.LogFormat)
	if o.MetricsAddr != nil && *o.MetricsAddr != "" {
		cfg.Metrics.Addr = *o.MetricsAddr
		cfg.Metrics.Enabled = true
	}
	if o.AutoJoin != nil {
		cfg.Session.AutoJoin = *o.AutoJoin
	}
	if o.Transcripts != nil {
		cfg.Transcripts.Enabled = *o.Transcripts
	}
	if o.RedactPII != nil {
		cfg.Hook.RedactPII = *o.RedactPII
	}
	return nil
}
