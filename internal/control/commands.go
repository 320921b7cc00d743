package control

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"captionjoin/internal/audio"
	"captionjoin/internal/config"
	"captionjoin/internal/doctor"
	"captionjoin/internal/hook"
	"captionjoin/internal/logging"

	"github.com/spf13/cobra"
)

// NewStatusCmd queries daemon status.
func NewStatusCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show session, recorders and last transcripts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			tail, _ := cmd.Flags().GetInt("tail")
			var status Status
			if err := Call(cfg.Paths.SocketPath, Request{Op: "status", Tail: tail}, &status); err != nil {
				return err
			}
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(status)
			}
			renderStatus(cmd.OutOrStdout(), status)
			return nil
		},
	}
	cmd.Flags().Bool("json", false, "output JSON")
	cmd.Flags().Int("tail", 0, "transcript lines per recorder (default ui.status_tail)")
	return cmd
}

func renderStatus(out io.Writer, status Status) {
	fmt.Fprintf(out, "running: %v\nuptime: %.1fs\n", status.Running, status.UptimeSec)
	if !status.LoggedIn {
		fmt.Fprintln(out, "session: not logged in (use: captionjoin login)")
	} else {
		fmt.Fprintf(out, "session: %s\n", status.SessionID)
	}
	for i, r := range status.Recorders {
		flags := []string{}
		if r.Muted {
			flags = append(flags, "muted")
		}
		if !r.JoinEnabled {
			flags = append(flags, "device busy")
		}
		if r.Collapsed {
			flags = append(flags, "collapsed")
		}
		fmt.Fprintf(out, "%d. %-16s %-12s %-20s %s", i+1, r.Name, r.Status, r.LanguageTag, r.DeviceName)
		if bars, ok := status.Levels[r.ID]; ok {
			fmt.Fprintf(out, "  [%-*s]", audio.LevelBarCount, strings.Repeat("|", bars))
		}
		if len(flags) > 0 {
			fmt.Fprintf(out, "  (%s)", strings.Join(flags, ", "))
		}
		fmt.Fprintln(out)
		if r.Collapsed {
			continue
		}
		for _, e := range r.Transcript {
			marker := " "
			if !e.Final {
				marker = "~"
			}
			fmt.Fprintf(out, "   %s %s  %s\n", marker, e.Created.Format("15:04:05"), e.Text)
		}
	}
	if len(status.Transcripts) > 0 {
		fmt.Fprintln(out, "final phrases:")
		for _, t := range status.Transcripts {
			fmt.Fprintf(out, "  %s  %s: %s\n", t.Timestamp.Format("15:04:05"), t.Speaker, t.Text)
		}
	}
	if len(status.Notices) > 0 {
		fmt.Fprintln(out, "notices:")
		for _, n := range status.Notices {
			fmt.Fprintf(out, "  %s  %-7s %s\n", n.Timestamp.Format("15:04:05"), n.Kind, n.Message)
		}
	}
}

// NewHealthCmd pings the control socket.
func NewHealthCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Ping the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return send(cmd, *cfgPath, Request{Op: "health"})
		},
	}
}

// NewTailLogCmd tails the main log file (simple last N lines).
func NewTailLogCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tail-log",
		Short: "Show last log lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			n, _ := cmd.Flags().GetInt("lines")
			return tailFile(cmd.OutOrStdout(), cfg.Paths.LogPath, n)
		},
	}
	cmd.Flags().IntP("lines", "n", 50, "number of lines")
	return cmd
}

func tailFile(out io.Writer, path string, n int) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			fmt.Fprintln(out, l)
		}
	}
	return nil
}

// NewTestHookCmd triggers hook manually.
func NewTestHookCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test-hook \"some text\"",
		Short: "Send sample text through hook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			logger, err := logging.Configure(cfg)
			if err != nil {
				return err
			}
			speaker, _ := cmd.Flags().GetString("speaker")
			lang, _ := cmd.Flags().GetString("language")
			r := hook.NewRunner(cfg, logger)
			if !r.Enabled() {
				return fmt.Errorf("hook.command is not set in %s", cfg.Paths.ConfigPath)
			}
			job := hook.Job{Speaker: speaker, Language: lang, Text: args[0], Timestamp: time.Now()}
			return r.Run(cmd.Context(), job)
		},
	}
	cmd.Flags().String("speaker", "Test Speaker", "speaker name passed to the hook")
	cmd.Flags().String("language", "en", "language code passed to the hook")
	return cmd
}

// NewDoctorCmd runs environment checks.
func NewDoctorCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check dependencies and config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			results := doctor.Run(cfg)
			exitCode := 0
			for _, r := range results {
				status := "ok"
				if !r.Pass {
					status = "fail"
					exitCode = 1
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-12s %-4s %s\n", r.Name, status, r.Detail)
			}
			if exitCode != 0 {
				return fmt.Errorf("doctor found issues")
			}
			return nil
		},
	}
}

// NewServiceCmd installs a launchd plist (macOS).
func NewServiceCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Manage launchd service (macOS)",
	}

	cmd.AddCommand(newServiceInstallCmd(cfgPath))
	cmd.AddCommand(newServiceUninstallCmd())
	cmd.AddCommand(newServiceStatusCmd())
	return cmd
}

// send runs one request against the daemon and prints its reply.
func send(cmd *cobra.Command, cfgPath string, req Request) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	msg, err := Do(cfg.Paths.SocketPath, req)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), msg)
	return nil
}

// parseOnOff reads an optional on/off argument. No argument means toggle.
func parseOnOff(args []string) (*bool, error) {
	if len(args) == 0 {
		return nil, nil
	}
	var v bool
	switch strings.ToLower(args[0]) {
	case "on", "true", "yes", "1":
		v = true
	case "off", "false", "no", "0":
		v = false
	default:
		return nil, fmt.Errorf("want on or off, got %q", args[0])
	}
	return &v, nil
}
