package doctor

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"strings"

	"captionjoin/internal/config"
	"captionjoin/internal/credentials"
	"captionjoin/internal/mic"
	"captionjoin/internal/preset"
)

// Result represents a diagnostic check.
type Result struct {
	Name   string
	Pass   bool
	Detail string
}

// Run executes doctor checks.
func Run(cfg *config.Config) []Result {
	results := []Result{
		checkFile("config path", cfg.Paths.ConfigPath),
		checkEndpoint(cfg.Session.Endpoint),
		checkCredentials(cfg.Session.SessionID, cfg.Session.Passcode),
		checkPresets(cfg.Paths.PresetPath, cfg.Session.Preset),
		checkHookExecutable(cfg.Hook.Command),
		checkPortAudioPkgConfig(),
	}
	results = append(results, checkPortAudio())
	return results
}

func checkFile(label, path string) Result {
	if path == "" {
		return Result{Name: label, Pass: false, Detail: "not set"}
	}
	if _, err := os.Stat(os.ExpandEnv(path)); err != nil {
		return Result{Name: label, Pass: false, Detail: err.Error()}
	}
	return Result{Name: label, Pass: true, Detail: path}
}

func checkEndpoint(raw string) Result {
	label := "endpoint"
	u, err := url.Parse(raw)
	if err != nil {
		return Result{Name: label, Pass: false, Detail: err.Error()}
	}
	if u.Scheme != "ws" && u.Scheme != "wss" || u.Host == "" {
		return Result{Name: label, Pass: false, Detail: fmt.Sprintf("%q is not a ws:// or wss:// URL", raw)}
	}
	return Result{Name: label, Pass: true, Detail: raw}
}

func checkCredentials(sessionID, passcode string) Result {
	label := "session"
	if sessionID == "" && passcode == "" {
		return Result{Name: label, Pass: true, Detail: "not configured (use: captionjoin login)"}
	}
	creds, err := credentials.New(sessionID, passcode)
	if err != nil {
		return Result{Name: label, Pass: false, Detail: err.Error()}
	}
	return Result{Name: label, Pass: true, Detail: creds.SessionID}
}

func checkPresets(path, startup string) Result {
	label := "presets"
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if startup != "" {
			return Result{Name: label, Pass: false, Detail: fmt.Sprintf("session.preset %q set but %s does not exist", startup, path)}
		}
		return Result{Name: label, Pass: true, Detail: "none saved"}
	}
	names, err := preset.NewFileStore(path).List()
	if err != nil {
		return Result{Name: label, Pass: false, Detail: err.Error()}
	}
	if startup != "" {
		found := false
		for _, n := range names {
			found = found || n == startup
		}
		if !found {
			return Result{Name: label, Pass: false, Detail: fmt.Sprintf("session.preset %q not found in %s", startup, path)}
		}
	}
	return Result{Name: label, Pass: true, Detail: fmt.Sprintf("%d saved in %s", len(names), path)}
}

func checkHookExecutable(cmd string) Result {
	label := "hook.command"
	if cmd == "" {
		return Result{Name: label, Pass: true, Detail: "not set (final phrases are not forwarded)"}
	}
	path := os.ExpandEnv(cmd)
	// If contains a path separator, treat as explicit path.
	if strings.Contains(path, "/") || strings.Contains(path, "\\") {
		info, err := os.Stat(path)
		if err != nil {
			return Result{Name: label, Pass: false, Detail: err.Error()}
		}
		if info.IsDir() {
			return Result{Name: label, Pass: false, Detail: "is a directory; set hook.command to an executable file"}
		}
		if info.Mode().Perm()&0o111 == 0 {
			return Result{Name: label, Pass: false, Detail: "not executable; chmod +x or choose another command"}
		}
		return Result{Name: label, Pass: true, Detail: path}
	}
	// Else search PATH.
	resolved, err := exec.LookPath(path)
	if err != nil {
		return Result{Name: label, Pass: false, Detail: err.Error()}
	}
	return Result{Name: label, Pass: true, Detail: resolved}
}

func checkPortAudioPkgConfig() Result {
	pkg, err := exec.LookPath("pkg-config")
	if err != nil {
		return Result{Name: "pkg-config", Pass: false, Detail: "pkg-config not found (brew install pkg-config)"}
	}
	cmd := exec.Command(pkg, "--exists", "portaudio-2.0")
	if err := cmd.Run(); err != nil {
		return Result{Name: "portaudio", Pass: false, Detail: "portaudio-2.0 not found (brew install portaudio)"}
	}
	// Optional display version
	versionCmd := exec.Command(pkg, "--modversion", "portaudio-2.0")
	if out, err := versionCmd.Output(); err == nil {
		return Result{Name: "portaudio", Pass: true, Detail: strings.TrimSpace(string(out))}
	}
	return Result{Name: "portaudio", Pass: true, Detail: "found via pkg-config"}
}

func checkPortAudio() Result {
	name, err := mic.DefaultInput()
	if err != nil {
		return Result{Name: "audio input", Pass: false, Detail: fmt.Sprintf("%v (install with: brew install portaudio)", err)}
	}
	return Result{Name: "audio input", Pass: true, Detail: name}
}
