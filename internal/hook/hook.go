package hook

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"time"

	"captionjoin/internal/config"

	"github.com/google/shlex"
	"github.com/sirupsen/logrus"
)

// Job is one final phrase handed to the hook command.
type Job struct {
	Speaker   string
	Language  string
	Text      string
	Timestamp time.Time
}

// Runner executes hooks with cooldown and prefix handling.
type Runner struct {
	cfg      *config.Config
	logger   *logrus.Logger
	lastRun  time.Time
	mu       sync.Mutex
	hostname string
}

func NewRunner(cfg *config.Config, logger *logrus.Logger) *Runner {
	host, _ := os.Hostname()
	return &Runner{
		cfg:      cfg,
		logger:   logger,
		hostname: host,
	}
}

// Enabled reports whether a hook command is configured.
func (r *Runner) Enabled() bool { return strings.TrimSpace(r.cfg.Hook.Command) != "" }

// Accept reports whether the phrase is long enough to forward.
func (r *Runner) Accept(job Job) bool {
	return len([]rune(strings.TrimSpace(job.Text))) >= r.cfg.Hook.MinChars
}

// ShouldRun returns whether cooldown allows a new hook.
func (r *Runner) ShouldRun() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cfg.Hook.CooldownSec <= 0 {
		return true
	}
	return time.Since(r.lastRun).Seconds() >= r.cfg.Hook.CooldownSec
}

// Args returns the configured arguments: args first, then arg_line split
// shell-style.
func (r *Runner) Args() ([]string, error) {
	args := append([]string{}, r.cfg.Hook.Args...)
	extra, err := ParseArgs(r.cfg.Hook.ArgLine)
	if err != nil {
		return nil, fmt.Errorf("parse hook.arg_line: %w", err)
	}
	return append(args, extra...), nil
}

// Payload is what a hook invocation carries for one phrase.
type Payload struct {
	Prefix string
	Text   string // after PII redaction
}

// Line is the final argument passed to the command.
func (p Payload) Line() string { return strings.TrimSpace(p.Prefix + p.Text) }

// Payload expands the prefix template for job and applies redaction.
func (r *Runner) Payload(job Job) Payload {
	text := job.Text
	if r.cfg.Hook.RedactPII {
		text = redactPII(text)
	}
	prefix := strings.NewReplacer(
		"${hostname}", r.hostname,
		"${speaker}", job.Speaker,
		"${language}", job.Language,
	).Replace(r.cfg.Hook.Prefix)
	return Payload{Prefix: prefix, Text: text}
}

func (r *Runner) environ(job Job, p Payload) []string {
	env := os.Environ()
	for k, v := range r.cfg.Hook.Env {
		env = append(env, k+"="+v)
	}
	return append(env,
		"CAPTIONJOIN_TEXT="+p.Text,
		"CAPTIONJOIN_PREFIX="+p.Prefix,
		"CAPTIONJOIN_SPEAKER="+job.Speaker,
		"CAPTIONJOIN_LANGUAGE="+job.Language,
		"CAPTIONJOIN_TIMESTAMP="+job.Timestamp.UTC().Format(time.RFC3339),
	)
}

// Run executes the configured command with the phrase line as its last
// argument. hook.timeout_sec bounds each invocation.
func (r *Runner) Run(ctx context.Context, job Job) error {
	r.mu.Lock()
	r.lastRun = time.Now()
	r.mu.Unlock()

	if !r.Enabled() {
		return fmt.Errorf("no hook.command configured")
	}
	args, err := r.Args()
	if err != nil {
		return err
	}
	p := r.Payload(job)

	if r.cfg.Hook.TimeoutSec > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(r.cfg.Hook.TimeoutSec*float64(time.Second)))
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, r.cfg.Hook.Command, append(args, p.Line())...)
	cmd.Env = r.environ(job, p)
	cmd.WaitDelay = time.Second

	out, err := cmd.CombinedOutput()
	if trimmed := strings.TrimSpace(string(out)); trimmed != "" {
		r.logger.WithField("speaker", job.Speaker).Infof("hook output: %s", trimmed)
	}
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("hook timed out after %.1fs: %w", r.cfg.Hook.TimeoutSec, err)
		}
		return fmt.Errorf("hook failed: %w", err)
	}
	return nil
}

// ParseArgs splits a shell-style argument string.
func ParseArgs(raw string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return []string{}, nil
	}
	return shlex.Split(raw)
}

var (
	emailRE = regexp.MustCompile(`[\w.+-]+@[\w.-]+\.[A-Za-z]{2,}`)
	phoneRE = regexp.MustCompile(`\+?\d[\d\s\-\(\)]{6,}\d`)
)

func redactPII(s string) string {
	s = emailRE.ReplaceAllString(s, "[redacted-email]")
	s = phoneRE.ReplaceAllString(s, "[redacted-phone]")
	return s
}
