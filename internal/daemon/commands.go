package daemon

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"captionjoin/internal/app"
	"captionjoin/internal/config"
	"captionjoin/internal/control"
	"captionjoin/internal/logging"

	"github.com/spf13/cobra"
)

const (
	startWait = 3 * time.Second
	stopWait  = 5 * time.Second
)

var errNotRunning = errors.New("captionjoin is not running")

// runFlags are per-run overrides shared by start and serve. They travel to
// the daemon as environment overrides.
type runFlags struct {
	noAutoJoin  bool
	metricsAddr string
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.noAutoJoin, "no-auto-join", false, "add recorders without joining the session for this run")
	cmd.Flags().StringVar(&f.metricsAddr, "metrics-addr", "", "serve /metrics at address (e.g. 127.0.0.1:9318) for this run")
}

func (f runFlags) env() []string {
	var env []string
	if f.noAutoJoin {
		env = append(env, "CAPTIONJOIN_AUTO_JOIN=false")
	}
	if f.metricsAddr != "" {
		env = append(env, "CAPTIONJOIN_METRICS_ADDR="+f.metricsAddr)
	}
	return env
}

// NewStartCmd starts the daemon in the background.
func NewStartCmd(cfgPath *string) *cobra.Command {
	var flags runFlags
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start captionjoin daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			if err := ensureNotRunning(cfg); err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(cfg.Paths.PidPath), 0o755); err != nil {
				return err
			}
			self, err := os.Executable()
			if err != nil {
				return err
			}
			child := exec.Command(self, "serve", "--config", cfg.Paths.ConfigPath)
			child.Env = append(os.Environ(), flags.env()...)
			child.Stdout = os.Stdout
			child.Stderr = os.Stderr
			if err := child.Start(); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if err := waitForControl(cfg.Paths.SocketPath, startWait); err != nil {
				fmt.Fprintf(out, "captionjoin started (pid %d) but %v; see: captionjoin tail-log\n", child.Process.Pid, err)
				return nil
			}
			fmt.Fprintf(out, "captionjoin started (pid %d)\n", child.Process.Pid)
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

// NewServeCmd runs the daemon in the foreground.
func NewServeCmd(cfgPath *string) *cobra.Command {
	var flags runFlags
	cmd := &cobra.Command{
		Use:    "serve",
		Short:  "Run captionjoin daemon in the foreground",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, kv := range flags.env() {
				k, v, _ := strings.Cut(kv, "=")
				if err := os.Setenv(k, v); err != nil {
					return fmt.Errorf("set %s: %w", k, err)
				}
			}
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			logger, err := logging.Configure(cfg)
			if err != nil {
				return err
			}
			return app.Serve(cfg, logger)
		},
	}
	flags.register(cmd)
	return cmd
}

// NewStopCmd stops the daemon. Recorders leave the session before it exits.
func NewStopCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop captionjoin daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			if err := stopDaemon(cfg, stopWait); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "captionjoin stopped")
			return nil
		},
	}
}

// NewRestartCmd stops then starts.
func NewRestartCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "restart",
		Short: "Restart captionjoin daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			if err := stopDaemon(cfg, stopWait); err != nil && !errors.Is(err, errNotRunning) {
				return err
			}
			start := NewStartCmd(cfgPath)
			start.SetOut(cmd.OutOrStdout())
			return start.RunE(start, args)
		},
	}
}

// stopDaemon signals the daemon and waits for it to exit. A pid file left
// by a dead process is removed and reported as errNotRunning.
func stopDaemon(cfg *config.Config, timeout time.Duration) error {
	pid, err := readPID(cfg.Paths.PidPath)
	if err != nil {
		return errNotRunning
	}
	if !alive(pid) {
		_ = os.Remove(cfg.Paths.PidPath)
		return errNotRunning
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return err
	}
	return waitForShutdown(cfg.Paths.PidPath, timeout)
}

func ensureNotRunning(cfg *config.Config) error {
	pid, err := readPID(cfg.Paths.PidPath)
	if err != nil {
		return nil
	}
	if alive(pid) {
		return fmt.Errorf("already running with pid %d", pid)
	}
	return nil
}

func alive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

func readPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	var pid int
	if _, err := fmt.Sscanf(string(data), "%d", &pid); err != nil {
		return 0, err
	}
	return pid, nil
}

func waitForShutdown(pidPath string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		pid, err := readPID(pidPath)
		if err != nil {
			return nil
		}
		if !alive(pid) {
			_ = os.Remove(pidPath)
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("daemon did not stop within %s", timeout)
}

func waitForControl(socket string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	var err error
	for time.Now().Before(deadline) {
		if _, err = control.Do(socket, control.Request{Op: "health"}); err == nil {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("control socket not ready: %w", err)
}
