package control

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"captionjoin/internal/config"
	"captionjoin/internal/preset"

	"github.com/spf13/cobra"
)

// NewPresetCmd manages saved recorder layouts. Save and load go through the
// daemon; the rest work on the preset file directly.
func NewPresetCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preset",
		Short: "Save, load and share recorder layouts",
	}
	store := func() (*preset.FileStore, error) {
		cfg, err := config.Load(*cfgPath)
		if err != nil {
			return nil, err
		}
		return preset.NewFileStore(cfg.Paths.PresetPath), nil
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List saved presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := store()
			if err != nil {
				return err
			}
			names, err := s.List()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(names) == 0 {
				fmt.Fprintln(out, "no presets saved")
				return nil
			}
			for _, name := range names {
				p, err := s.Get(name)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%-24s %d recorders\n", name, len(p.Recorders))
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "save <name>",
		Short: "Save the daemon's current recorders as a preset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return send(cmd, *cfgPath, Request{Op: "preset-save", Name: args[0]})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "load <name>",
		Short: "Replace the daemon's recorders with a preset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return send(cmd, *cfgPath, Request{Op: "preset-load", Name: args[0]})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a preset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := store()
			if err != nil {
				return err
			}
			if err := s.Delete(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "preset %q deleted\n", args[0])
			return nil
		},
	})

	export := &cobra.Command{
		Use:   "export <name>",
		Short: "Write a preset as a portable JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := store()
			if err != nil {
				return err
			}
			p, err := s.Get(args[0])
			if err != nil {
				return err
			}
			data, err := preset.Marshal(args[0], p, time.Now())
			if err != nil {
				return err
			}
			path, _ := cmd.Flags().GetString("out")
			if path == "-" {
				_, err := cmd.OutOrStdout().Write(append(data, '\n'))
				return err
			}
			if path == "" {
				path = preset.FileName(args[0])
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(path, data, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "preset %q exported to %s\n", args[0], path)
			return nil
		},
	}
	export.Flags().StringP("out", "o", "", "output file (default captionjoin-preset-<name>.json, - for stdout)")
	cmd.AddCommand(export)

	imp := &cobra.Command{
		Use:   "import <file>",
		Short: "Import a preset exported with preset export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := store()
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			force, _ := cmd.Flags().GetBool("force")
			name, err := preset.Import(s, data, force)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "preset %q imported\n", name)
			return nil
		},
	}
	imp.Flags().BoolP("force", "f", false, "overwrite a preset with the same name")
	cmd.AddCommand(imp)
	return cmd
}
