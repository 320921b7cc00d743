package hook

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"captionjoin/internal/config"
	"captionjoin/internal/logging"
)

func TestShouldRunCooldown(t *testing.T) {
	cfg, _ := config.Default()
	cfg.Hook.Command = "/bin/echo"
	cfg.Hook.CooldownSec = 0.5
	r := NewRunner(cfg, logging.NewTestLogger())

	if !r.ShouldRun() {
		t.Fatalf("first call should run")
	}
	if err := r.Run(context.Background(), Job{Text: "test", Timestamp: time.Now()}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if r.ShouldRun() {
		t.Fatalf("cooldown should block immediate subsequent run")
	}
	time.Sleep(time.Duration(cfg.Hook.CooldownSec*float64(time.Second)) + 20*time.Millisecond)
	if !r.ShouldRun() {
		t.Fatalf("should run after cooldown")
	}
}

func TestRunUsesPrefixAndEnv(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.txt")
	cfg, _ := config.Default()
	cfg.Hook.Command = "/bin/sh"
	cfg.Hook.ArgLine = `-c 'printf "%s|%s|%s" "$CAPTIONJOIN_SPEAKER" "$CAPTIONJOIN_LANGUAGE" "$1" > "$OUT"' hook`
	cfg.Hook.Prefix = "[${speaker}] "
	cfg.Hook.Env = map[string]string{"OUT": out}

	r := NewRunner(cfg, logging.NewTestLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.Run(ctx, Job{Speaker: "Alice", Language: "fr", Text: "bonjour", Timestamp: time.Now()}); err != nil {
		t.Fatalf("run sh: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if got := string(data); got != "Alice|fr|[Alice] bonjour" {
		t.Fatalf("unexpected hook output %q", got)
	}
}

func TestRunWithoutCommand(t *testing.T) {
	cfg, _ := config.Default()
	r := NewRunner(cfg, logging.NewTestLogger())
	if r.Enabled() {
		t.Fatalf("default config has no hook")
	}
	if err := r.Run(context.Background(), Job{Text: "x"}); err == nil {
		t.Fatalf("expected error without command")
	}
}

func TestAcceptMinChars(t *testing.T) {
	cfg, _ := config.Default()
	cfg.Hook.MinChars = 4
	r := NewRunner(cfg, logging.NewTestLogger())
	if r.Accept(Job{Text: " ok "}) {
		t.Fatalf("short phrase accepted")
	}
	if !r.Accept(Job{Text: "hello"}) {
		t.Fatalf("long phrase rejected")
	}
}

func TestParseArgsAndRedact(t *testing.T) {
	args, err := ParseArgs(`send --to "ops room"`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if strings.Join(args, ",") != "send,--to,ops room" {
		t.Fatalf("args = %q", args)
	}
	got := redactPII("mail me at jo@example.com or +1 555 123 4567")
	if strings.Contains(got, "example.com") || strings.Contains(got, "555") {
		t.Fatalf("pii left in %q", got)
	}
}

func TestPayload(t *testing.T) {
	cfg, _ := config.Default()
	cfg.Hook.Prefix = "${speaker} (${language}): "
	cfg.Hook.RedactPII = true
	r := NewRunner(cfg, logging.NewTestLogger())

	p := r.Payload(Job{Speaker: "Bob", Language: "de", Text: "write to bob@example.org"})
	if p.Prefix != "Bob (de): " {
		t.Fatalf("prefix = %q", p.Prefix)
	}
	if p.Line() != "Bob (de): write to [redacted-email]" {
		t.Fatalf("line = %q", p.Line())
	}

	cfg.Hook.Prefix = ""
	if got := r.Payload(Job{Text: " hi "}).Line(); got != "hi" {
		t.Fatalf("line without prefix = %q", got)
	}
}

func TestRunTimeout(t *testing.T) {
	cfg, _ := config.Default()
	cfg.Hook.Command = "/bin/sh"
	cfg.Hook.ArgLine = `-c 'sleep 5' hook`
	cfg.Hook.TimeoutSec = 0.2
	r := NewRunner(cfg, logging.NewTestLogger())

	start := time.Now()
	err := r.Run(context.Background(), Job{Text: "slow"})
	if err == nil || !strings.Contains(err.Error(), "timed out") {
		t.Fatalf("expected timeout, got %v", err)
	}
	if time.Since(start) > 3*time.Second {
		t.Fatalf("timeout not enforced")
	}
}
