package main

import (
	"fmt"
	"os"

	"captionjoin/internal/control"
	"captionjoin/internal/daemon"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	root := &cobra.Command{
		Use:   "captionjoin",
		Short: "captionjoin — multi-speaker live captioning client",
		Long: `captionjoin streams one or more microphones into a live captioning session.
Every recorder is one speaker with its own input device and language; the daemon
keeps one websocket per recorder and collects the transcript it returns.

Key commands:
  start|stop|restart        Daemon lifecycle
  login|logout              Session credentials (id + passcode or weblink)
  status [--json]           Recorders, transcripts and notices
  rec add|remove|join|leave|mute|language|device|name|collapse
  mute-all|collapse-all     Bulk recorder controls
  end-session|disconnect    Session-wide controls
  preset list|save|load|delete|export|import
  devices|languages         Inputs and captioning languages
  doctor|health|tail-log|test-hook

Notable flags/env:
  --metrics-addr <addr>     Enable /metrics (Prometheus)
  --no-auto-join            Add recorders without joining
  Env overrides: CAPTIONJOIN_SESSION_ID, CAPTIONJOIN_PASSCODE, CAPTIONJOIN_ENDPOINT,
                 CAPTIONJOIN_AUTO_JOIN, CAPTIONJOIN_METRICS_ADDR,
                 CAPTIONJOIN_LOG_LEVEL/FORMAT, CAPTIONJOIN_TRANSCRIPTS_ENABLED,
                 CAPTIONJOIN_REDACT_PII`,
		Example: `  captionjoin login --link "https://attend.wordly.ai/join/ABCD1234?key=secret"
  captionjoin start --metrics-addr 127.0.0.1:9318
  captionjoin rec add --name Guest --language fr --device "USB Mic"
  captionjoin rec mute Guest
  captionjoin preset save panel
  captionjoin end-session`,
		DisableFlagsInUseLine: true,
	}

	root.Version = version
	root.SetVersionTemplate("captionjoin v{{.Version}}\n")

	cfgPath := root.PersistentFlags().StringP("config", "c", "", "Path to config file (TOML). Defaults to ~/.config/captionjoin/config.toml")
	root.CompletionOptions.DisableDefaultCmd = true

	root.AddCommand(daemon.NewStartCmd(cfgPath))
	root.AddCommand(daemon.NewStopCmd(cfgPath))
	root.AddCommand(daemon.NewRestartCmd(cfgPath))
	root.AddCommand(control.NewStatusCmd(cfgPath))
	root.AddCommand(control.NewHealthCmd(cfgPath))
	root.AddCommand(control.NewTailLogCmd(cfgPath))
	root.AddCommand(control.NewLoginCmd(cfgPath))
	root.AddCommand(control.NewLogoutCmd(cfgPath))
	root.AddCommand(control.NewRecorderCmd(cfgPath))
	root.AddCommand(control.NewMuteAllCmd(cfgPath))
	root.AddCommand(control.NewCollapseAllCmd(cfgPath))
	root.AddCommand(control.NewEndSessionCmd(cfgPath))
	root.AddCommand(control.NewDisconnectCmd(cfgPath))
	root.AddCommand(control.NewPresetCmd(cfgPath))
	root.AddCommand(control.NewDevicesCmd())
	root.AddCommand(control.NewLanguagesCmd())
	root.AddCommand(control.NewDoctorCmd(cfgPath))
	root.AddCommand(control.NewTestHookCmd(cfgPath))
	root.AddCommand(control.NewServiceCmd(cfgPath))

	// Hidden internal serve command used by start.
	root.AddCommand(daemon.NewServeCmd(cfgPath))

	applyColorHelp(root)

	if err := root.Execute(); err != nil {
		return err
	}
	return nil
}

func applyColorHelp(root *cobra.Command) {
	const (
		boldBlue = "\033[1;34m"
		green    = "\033[32m"
		bold     = "\033[1m"
		dim      = "\033[2m"
		reset    = "\033[0m"
	)
	root.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		if cmd != root {
			// Subcommands keep cobra's usage with their own flags.
			_, _ = fmt.Fprint(cmd.OutOrStdout(), cmd.UsageString())
			return
		}
		out := cmd.OutOrStdout()
		write := func(format string, args ...any) { _, _ = fmt.Fprintf(out, format, args...) }
		writeln := func(line string) { _, _ = fmt.Fprintln(out, line) }

		write("%scaptionjoin%s — multi-speaker live captioning client %s(v%s)%s\n", boldBlue, reset, dim, version, reset)
		write("%sStreams each recorder's microphone to the session and shows the captions it returns.%s\n\n", dim, reset)

		write("%sUsage%s\n", bold, reset)
		write("  captionjoin [command] [flags]\n\n")

		write("%sKey commands%s\n", bold, reset)
		writeln("  start|stop|restart          daemon lifecycle")
		writeln("  login|logout                session id + passcode, or --link")
		writeln("  status [--json]             recorders, transcripts, notices")
		writeln("  rec add|remove|join|leave   manage recorders (by id, name or number)")
		writeln("  rec mute|language|device|name|collapse")
		writeln("  mute-all [on|off]           mute every recorder")
		writeln("  end-session [--yes]         end the session for all participants")
		writeln("  disconnect                  leave with every recorder")
		writeln("  preset list|save|load|delete|export|import")
		writeln("  devices|languages           input devices / caption languages")
		writeln("  doctor                      check config/endpoint/hook/portaudio")
		writeln("  health|tail-log|test-hook   liveness, log tail, manual hook")
		writeln("")

		write("%sNotable flags & env%s\n", bold, reset)
		writeln("  --metrics-addr <addr>   enable /metrics (Prometheus)")
		writeln("  --no-auto-join          add recorders without joining")
		writeln("  -c, --config <path>     config file (default ~/.config/captionjoin/config.toml)")
		writeln("  Env: CAPTIONJOIN_SESSION_ID, CAPTIONJOIN_PASSCODE, CAPTIONJOIN_ENDPOINT,")
		writeln("       CAPTIONJOIN_AUTO_JOIN=false, CAPTIONJOIN_METRICS_ADDR=host:port,")
		writeln("       CAPTIONJOIN_LOG_LEVEL=debug, CAPTIONJOIN_LOG_FORMAT=json,")
		writeln("       CAPTIONJOIN_TRANSCRIPTS_ENABLED=false, CAPTIONJOIN_REDACT_PII=true")
		writeln("")

		write("%sExamples%s\n", bold, reset)
		writeln("  captionjoin login --session ABCD-1234 --passcode secret")
		writeln("  captionjoin start --metrics-addr 127.0.0.1:9318")
		writeln("  captionjoin rec add --name Guest --language fr --device \"USB Mic\"")
		writeln("  captionjoin rec language Guest es")
		writeln("  captionjoin preset export panel -o panel.json")
		writeln("  captionjoin end-session --yes")
		writeln("")

		write("%sCommands%s\n", bold, reset)
		for _, c := range cmd.Commands() {
			if c.Hidden {
				continue
			}
			write("  %s%-15s%s %s\n", green, c.Name(), reset, c.Short)
		}
	})
}
