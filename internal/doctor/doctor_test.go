package doctor

import (
	"os"
	"path/filepath"
	"testing"

	"captionjoin/internal/preset"
)

func TestCheckEndpoint(t *testing.T) {
	if r := checkEndpoint("wss://dev-endpoint.wordly.ai/present"); !r.Pass {
		t.Fatalf("expected wss endpoint to pass: %+v", r)
	}
	if r := checkEndpoint("https://example.com"); r.Pass {
		t.Fatalf("expected https endpoint to fail")
	}
}

func TestCheckCredentials(t *testing.T) {
	if r := checkCredentials("", ""); !r.Pass {
		t.Fatalf("unset credentials are fine: %+v", r)
	}
	if r := checkCredentials("abcd1234", "pw"); !r.Pass || r.Detail != "abcd-1234" {
		t.Fatalf("expected formatted id: %+v", r)
	}
	if r := checkCredentials("bad", "pw"); r.Pass {
		t.Fatalf("expected bad id to fail")
	}
}

func TestCheckPresets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "presets.toml")
	if r := checkPresets(path, ""); !r.Pass {
		t.Fatalf("missing store without startup preset passes: %+v", r)
	}
	if r := checkPresets(path, "panel"); r.Pass {
		t.Fatalf("startup preset without store should fail")
	}
	if err := preset.NewFileStore(path).Save("panel", preset.Preset{}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if r := checkPresets(path, "panel"); !r.Pass {
		t.Fatalf("expected pass: %+v", r)
	}
	if r := checkPresets(path, "other"); r.Pass {
		t.Fatalf("unknown startup preset should fail")
	}
}

func TestCheckHookExecutable(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "hook.sh")
	if err := os.WriteFile(script, []byte("#!/bin/sh\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if r := checkHookExecutable(script); r.Pass {
		t.Fatalf("non-executable hook should fail")
	}
	if err := os.Chmod(script, 0o755); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	if r := checkHookExecutable(script); !r.Pass {
		t.Fatalf("executable hook should pass: %+v", r)
	}
	if r := checkHookExecutable(dir); r.Pass {
		t.Fatalf("directory should fail")
	}
}
