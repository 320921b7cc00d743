package service

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"captionjoin/internal/config"
)

func testConfig(t *testing.T, home string) *config.Config {
	t.Helper()
	cfg, err := config.Default()
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	cfg.Paths.ConfigPath = filepath.Join(home, ".config", "captionjoin", "config.toml")
	cfg.Paths.StateDir = filepath.Join(home, "state")
	cfg.Paths.LogPath = filepath.Join(home, "state", "captionjoin.log")
	return cfg
}

func TestInstallAndUninstall(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	if _, ok := Installed(Label); ok {
		t.Fatalf("plist should not exist yet")
	}
	agent := AgentFor(testConfig(t, home), "/usr/local/bin/captionjoin", Options{
		MetricsAddr: "127.0.0.1:9318",
		NoAutoJoin:  true,
	})
	path, err := Install(agent)
	if err != nil {
		t.Fatalf("install: %v", err)
	}
	if path != filepath.Join(home, "Library", "LaunchAgents", "com.captionjoin.agent.plist") {
		t.Fatalf("unexpected path %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	out := string(data)
	for _, want := range []string{
		"<string>serve</string>",
		"<key>CAPTIONJOIN_METRICS_ADDR</key><string>127.0.0.1:9318</string>",
		"<key>CAPTIONJOIN_AUTO_JOIN</key><string>false</string>",
		"<string>com.captionjoin.agent</string>",
		filepath.Join(home, "state", "launchd.log"),
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("plist missing %q:\n%s", want, out)
		}
	}
	if _, ok := Installed(Label); !ok {
		t.Fatalf("plist should be reported as installed")
	}

	removed, err := Uninstall(Label)
	if err != nil || !removed {
		t.Fatalf("uninstall: removed=%v err=%v", removed, err)
	}
	removed, err = Uninstall(Label)
	if err != nil || removed {
		t.Fatalf("second uninstall: removed=%v err=%v", removed, err)
	}
}

func TestRenderEscapesValues(t *testing.T) {
	a := Agent{Label: Label, Binary: "/opt/a&b/captionjoin", Env: map[string]string{"K": "<v>"}}
	data, err := a.Render()
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, "/opt/a&amp;b/captionjoin") || !strings.Contains(out, "&lt;v&gt;") {
		t.Fatalf("values not escaped:\n%s", out)
	}
}
