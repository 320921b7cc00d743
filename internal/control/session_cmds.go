package control

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"captionjoin/internal/config"
	"captionjoin/internal/credentials"

	"github.com/spf13/cobra"
)

// NewLoginCmd stores session credentials and hands them to a running daemon.
func NewLoginCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in to a session by id and passcode or by weblink",
		Example: `  captionjoin login --session ABCD-1234 --passcode secret
  captionjoin login --link "https://attend.wordly.ai/join/ABCD1234?key=secret"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			link, _ := cmd.Flags().GetString("link")
			id, _ := cmd.Flags().GetString("session")
			pass, _ := cmd.Flags().GetString("passcode")
			var creds credentials.Credentials
			if link != "" {
				creds, err = credentials.FromWeblink(link)
			} else {
				creds, err = credentials.New(id, pass)
			}
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if noSave, _ := cmd.Flags().GetBool("no-save"); !noSave {
				cfg.Session.SessionID = creds.SessionID
				cfg.Session.Passcode = creds.Passcode
				if err := config.Save(cfg, cfg.Paths.ConfigPath); err != nil {
					return err
				}
				fmt.Fprintf(out, "credentials for %s saved to %s\n", creds.SessionID, cfg.Paths.ConfigPath)
			}
			if _, err := Do(cfg.Paths.SocketPath, Request{Op: "health"}); err != nil {
				fmt.Fprintln(out, "daemon not running; credentials are used on next start")
				return nil
			}
			msg, err := Do(cfg.Paths.SocketPath, Request{Op: "login", SessionID: creds.SessionID, Passcode: creds.Passcode})
			if err != nil {
				return err
			}
			fmt.Fprintln(out, msg)
			return nil
		},
	}
	cmd.Flags().String("session", "", "session id (XXXX-0000)")
	cmd.Flags().String("passcode", "", "session passcode")
	cmd.Flags().String("link", "", "shared presentation weblink")
	cmd.Flags().Bool("no-save", false, "do not store credentials in the config file")
	cmd.MarkFlagsMutuallyExclusive("link", "session")
	return cmd
}

// NewLogoutCmd forgets stored credentials and disconnects the daemon.
func NewLogoutCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Disconnect every recorder and forget stored credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			cfg.Session.SessionID = ""
			cfg.Session.Passcode = ""
			if err := config.Save(cfg, cfg.Paths.ConfigPath); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "credentials removed from %s\n", cfg.Paths.ConfigPath)
			if msg, err := Do(cfg.Paths.SocketPath, Request{Op: "disconnect"}); err == nil {
				fmt.Fprintln(out, msg)
			}
			return nil
		},
	}
}

// NewRecorderCmd groups per-recorder operations. Recorders are referenced by
// id, name or 1-based position.
func NewRecorderCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "rec",
		Aliases: []string{"recorder"},
		Short:   "Add, remove and control recorders",
	}

	add := &cobra.Command{
		Use:   "add",
		Short: "Add a recorder",
		RunE: func(cmd *cobra.Command, args []string) error {
			req := Request{Op: "add"}
			req.Name, _ = cmd.Flags().GetString("name")
			req.Language, _ = cmd.Flags().GetString("language")
			req.Device, _ = cmd.Flags().GetString("device")
			if cmd.Flags().Changed("join") {
				join, _ := cmd.Flags().GetBool("join")
				req.Enabled = &join
			}
			return send(cmd, *cfgPath, req)
		},
	}
	add.Flags().String("name", "", "speaker name (default Speaker N)")
	add.Flags().StringP("language", "l", "", "language code (see: captionjoin languages)")
	add.Flags().StringP("device", "d", "", "input device id (see: captionjoin devices)")
	add.Flags().Bool("join", true, "join the session right away (overrides session.auto_join)")

	single := func(use, op, short string) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <recorder>",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return send(cmd, *cfgPath, Request{Op: op, Recorder: args[0]})
			},
		}
	}
	withValue := func(use, op, short string) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <recorder> <value>",
			Short: short,
			Args:  cobra.MinimumNArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return send(cmd, *cfgPath, Request{Op: op, Recorder: args[0], Value: strings.Join(args[1:], " ")})
			},
		}
	}
	toggle := func(use, op, short string) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <recorder> [on|off]",
			Short: short,
			Args:  cobra.RangeArgs(1, 2),
			RunE: func(cmd *cobra.Command, args []string) error {
				v, err := parseOnOff(args[1:])
				if err != nil {
					return err
				}
				return send(cmd, *cfgPath, Request{Op: op, Recorder: args[0], Enabled: v})
			},
		}
	}

	cmd.AddCommand(add)
	cmd.AddCommand(single("remove", "remove", "Leave and remove a recorder"))
	cmd.AddCommand(single("join", "join", "Connect a recorder to the session"))
	cmd.AddCommand(single("leave", "leave", "Disconnect a recorder"))
	cmd.AddCommand(toggle("mute", "mute", "Mute, unmute or toggle a recorder"))
	cmd.AddCommand(toggle("collapse", "collapse", "Collapse or expand a recorder in status output"))
	cmd.AddCommand(withValue("language", "language", "Change a recorder's language"))
	cmd.AddCommand(withValue("device", "device", "Change a recorder's input device (\"default\" for the system default)"))
	cmd.AddCommand(withValue("name", "name", "Rename a recorder"))
	return cmd
}

// NewMuteAllCmd mutes or unmutes every recorder.
func NewMuteAllCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "mute-all [on|off]",
		Short: "Mute or unmute every recorder",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := parseOnOff(args)
			if err != nil {
				return err
			}
			return send(cmd, *cfgPath, Request{Op: "mute-all", Enabled: v})
		},
	}
}

// NewCollapseAllCmd collapses every recorder, or expands them all when all
// are collapsed already.
func NewCollapseAllCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "collapse-all",
		Short: "Collapse or expand every recorder",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return send(cmd, *cfgPath, Request{Op: "collapse-all"})
		},
	}
}

// NewEndSessionCmd ends the presentation for every participant.
func NewEndSessionCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "end-session",
		Short: "End the session for all participants",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if yes, _ := cmd.Flags().GetBool("yes"); !yes {
				if !confirm(cmd.InOrStdin(), cmd.OutOrStdout(), "End the session for ALL participants? [y/N] ") {
					fmt.Fprintln(cmd.OutOrStdout(), "cancelled")
					return nil
				}
			}
			return send(cmd, *cfgPath, Request{Op: "end-session"})
		},
	}
	cmd.Flags().BoolP("yes", "y", false, "skip confirmation")
	return cmd
}

// NewDisconnectCmd disconnects every recorder and logs out the daemon.
func NewDisconnectCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect",
		Short: "Disconnect every recorder and log out (keeps stored credentials)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return send(cmd, *cfgPath, Request{Op: "disconnect"})
		},
	}
}

func confirm(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprint(out, prompt)
	line, _ := bufio.NewReader(in).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}
