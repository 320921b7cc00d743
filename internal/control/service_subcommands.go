package control

import (
	"fmt"
	"os"
	"strings"

	"captionjoin/internal/config"
	"captionjoin/internal/service"

	"github.com/spf13/cobra"
)

func newServiceInstallCmd(cfgPath *string) *cobra.Command {
	var (
		envPairs    []string
		metricsAddr string
		noAutoJoin  bool
	)
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Install the daemon as a launchd agent (macOS)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			exe, err := os.Executable()
			if err != nil {
				return err
			}
			env, err := parseEnvPairs(envPairs)
			if err != nil {
				return err
			}
			agent := service.AgentFor(cfg, exe, service.Options{
				Env:         env,
				MetricsAddr: metricsAddr,
				NoAutoJoin:  noAutoJoin,
			})
			path, err := service.Install(agent)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "launchd plist written: %s\n", path)
			fmt.Fprintf(out, "load:  launchctl bootstrap gui/$(id -u) %s\n", path)
			fmt.Fprintf(out, "stop:  launchctl bootout gui/$(id -u)/%s\n", agent.Label)
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&envPairs, "env", nil, "extra environment for the agent (KEY=VAL)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve /metrics at this address from the agent")
	cmd.Flags().BoolVar(&noAutoJoin, "no-auto-join", false, "start recorders without joining the session")
	return cmd
}

func parseEnvPairs(pairs []string) (map[string]string, error) {
	env := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("bad env %q, want KEY=VAL", p)
		}
		env[k] = v
	}
	return env, nil
}

func newServiceUninstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall",
		Short: "Remove the launchd agent plist (macOS)",
		RunE: func(cmd *cobra.Command, args []string) error {
			removed, err := service.Uninstall(service.Label)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !removed {
				fmt.Fprintln(out, "no launchd agent installed")
				return nil
			}
			fmt.Fprintf(out, "removed %s; unload with: launchctl bootout gui/$(id -u)/%s\n", service.PlistPath(service.Label), service.Label)
			return nil
		},
	}
}

func newServiceStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether the launchd agent is installed",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, ok := service.Installed(service.Label)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "label: %s\nplist: %s\n", service.Label, path)
			if ok {
				fmt.Fprintln(out, "status: installed")
			} else {
				fmt.Fprintln(out, "status: missing (install via: captionjoin service install)")
			}
			return nil
		},
	}
}
