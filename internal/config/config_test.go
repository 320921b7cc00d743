package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestEnvOverrides(t *testing.T) {
	cfg, err := Default()
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	cfg.Paths.ConfigPath = "/tmp/config" // avoid creation

	t.Setenv("CAPTIONJOIN_SESSION_ID", "ABCD-1234")
	t.Setenv("CAPTIONJOIN_AUTO_JOIN", "false")
	t.Setenv("CAPTIONJOIN_METRICS_ADDR", "1.2.3.4:9999")
	t.Setenv("CAPTIONJOIN_LOG_LEVEL", "debug")
	t.Setenv("CAPTIONJOIN_LOG_FORMAT", "json")
	t.Setenv("CAPTIONJOIN_REDACT_PII", "true")

	if err := applyEnvOverrides(cfg); err != nil {
		t.Fatalf("overrides: %v", err)
	}

	if cfg.Session.SessionID != "ABCD-1234" {
		t.Fatalf("session id override failed: %q", cfg.Session.SessionID)
	}
	if cfg.Session.AutoJoin {
		t.Fatalf("auto join should be disabled via env")
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Addr != "1.2.3.4:9999" {
		t.Fatalf("metrics override failed: %+v", cfg.Metrics)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Fatalf("logging overrides failed: %+v", cfg.Logging)
	}
	if !cfg.Hook.RedactPII {
		t.Fatalf("redact override failed")
	}
	if !cfg.Transcripts.Enabled {
		t.Fatalf("unset variables must not change config")
	}
}

func TestEnvOverrideRejectsBadBool(t *testing.T) {
	cfg, err := Default()
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	t.Setenv("CAPTIONJOIN_AUTO_JOIN", "maybe")
	if err := applyEnvOverrides(cfg); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/config.toml"

	cfg, err := Default()
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	cfg.Paths.ConfigPath = path
	cfg.Hook.Command = "/bin/echo"
	cfg.Recorders = []RecorderConfig{
		{Name: "Host", Language: "en"},
		{Name: "Guest", Language: "es", DeviceID: "USB Mic", Muted: true},
	}

	if err := Save(cfg, path); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Hook.Command != "/bin/echo" {
		t.Fatalf("expected hook command to persist")
	}
	if len(loaded.Recorders) != 2 || loaded.Recorders[1].DeviceID != "USB Mic" || !loaded.Recorders[1].Muted {
		t.Fatalf("recorders did not persist: %+v", loaded.Recorders)
	}
	if loaded.Paths.ConfigPath != path {
		t.Fatalf("config path not recorded")
	}

	// cleanup to avoid residue
	_ = os.Remove(path)
}

func TestLoadWritesTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("template not written: %v", err)
	}
	if cfg.Session.Endpoint != defaultEndpoint || cfg.Audio.FrameSamples != 1600 {
		t.Fatalf("defaults missing: %+v", cfg.Session)
	}
}

func TestMustStatePaths(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Default()
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	cfg.Paths.StateDir = filepath.Join(dir, "state")
	cfg.Paths.LogPath = filepath.Join(dir, "logs", "c.log")
	cfg.Paths.TranscriptPath = filepath.Join(dir, "t", "t.log")
	cfg.Paths.PresetPath = filepath.Join(dir, "p", "presets.toml")
	cfg.Audio.ArchiveDir = filepath.Join(dir, "wav")
	if err := MustStatePaths(cfg); err != nil {
		t.Fatalf("state paths: %v", err)
	}
	for _, d := range []string{"state", "logs", "t", "p", "wav"} {
		if _, err := os.Stat(filepath.Join(dir, d)); err != nil {
			t.Fatalf("missing %s: %v", d, err)
		}
	}
}
