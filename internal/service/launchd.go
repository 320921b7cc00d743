// Package service installs captionjoin as a per-user launchd agent.
package service

import (
	"bytes"
	"encoding/xml"
	"os"
	"path/filepath"
	"text/template"

	"captionjoin/internal/config"
)

// Label is the launchd job label of the daemon.
const Label = "com.captionjoin.agent"

var plist = template.Must(template.New("launchd").Funcs(template.FuncMap{"x": escape}).Parse(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
  <key>Label</key><string>{{x .Label}}</string>
  <key>ProgramArguments</key>
  <array>
    <string>{{x .Binary}}</string>
    <string>serve</string>
    <string>--config</string>
    <string>{{x .Config}}</string>
  </array>
  <key>WorkingDirectory</key><string>{{x .StateDir}}</string>
  <key>RunAtLoad</key><true/>
  <key>KeepAlive</key><dict><key>SuccessfulExit</key><false/></dict>
  <key>ThrottleInterval</key><integer>10</integer>
  <key>StandardOutPath</key><string>{{x .Log}}</string>
  <key>StandardErrorPath</key><string>{{x .Log}}</string>
  {{- if .Env }}
  <key>EnvironmentVariables</key>
  <dict>
    {{- range $k, $v := .Env }}
    <key>{{x $k}}</key><string>{{x $v}}</string>
    {{- end }}
  </dict>
  {{- end }}
</dict>
</plist>
`))

// Agent describes the launchd job running the daemon.
type Agent struct {
	Label    string
	Binary   string
	Config   string
	StateDir string
	Log      string
	Env      map[string]string
}

// Options adjust the agent environment at install time.
type Options struct {
	Env         map[string]string
	MetricsAddr string
	NoAutoJoin  bool
}

// AgentFor builds the agent for cfg. The job writes stdout and stderr next
// to the daemon log so crashes before logging is configured are kept.
func AgentFor(cfg *config.Config, binary string, opts Options) Agent {
	env := make(map[string]string, len(opts.Env)+2)
	for k, v := range opts.Env {
		env[k] = v
	}
	if opts.MetricsAddr != "" {
		env["CAPTIONJOIN_METRICS_ADDR"] = opts.MetricsAddr
	}
	if opts.NoAutoJoin {
		env["CAPTIONJOIN_AUTO_JOIN"] = "false"
	}
	return Agent{
		Label:    Label,
		Binary:   binary,
		Config:   cfg.Paths.ConfigPath,
		StateDir: cfg.Paths.StateDir,
		Log:      filepath.Join(filepath.Dir(cfg.Paths.LogPath), "launchd.log"),
		Env:      env,
	}
}

// Render returns the plist document for a.
func (a Agent) Render() ([]byte, error) {
	var buf bytes.Buffer
	if err := plist.Execute(&buf, a); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// PlistPath returns the plist path for a label.
func PlistPath(label string) string {
	return filepath.Join(os.Getenv("HOME"), "Library", "LaunchAgents", label+".plist")
}

// Install writes the plist for a and returns its path.
func Install(a Agent) (string, error) {
	data, err := a.Render()
	if err != nil {
		return "", err
	}
	path := PlistPath(a.Label)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	if a.StateDir != "" {
		if err := os.MkdirAll(a.StateDir, 0o755); err != nil {
			return "", err
		}
	}
	return path, os.WriteFile(path, data, 0o644)
}

func escape(s string) (string, error) {
	var buf bytes.Buffer
	if err := xml.EscapeText(&buf, []byte(s)); err != nil {
		return "", err
	}
	return buf.String(), nil
}
