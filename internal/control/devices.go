package control

import (
	"encoding/json"
	"fmt"
	"io"

	"captionjoin/internal/audio"
	"captionjoin/internal/language"
	"captionjoin/internal/logging"
	"captionjoin/internal/mic"

	"github.com/spf13/cobra"
)

// NewDevicesCmd lists audio input devices.
func NewDevicesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "devices",
		Aliases: []string{"mics"},
		Short:   "List audio input devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			pa := mic.New(logging.NewConsole("warn"))
			defer pa.Close()
			devs, err := pa.Devices()
			if err != nil {
				return err
			}
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(devs)
			}
			renderDevices(cmd.OutOrStdout(), devs)
			return nil
		},
	}
	cmd.Flags().Bool("json", false, "output JSON")
	return cmd
}

func renderDevices(out io.Writer, devs []audio.Device) {
	if len(devs) == 0 {
		fmt.Fprintln(out, "no input devices found")
		return
	}
	for i, d := range devs {
		def := ""
		if d.Default {
			def = " (default)"
		}
		fmt.Fprintf(out, "%2d. %s%s  channels=%d latency=%.1fms\n", i+1, d.Name, def, d.Channels, d.LatencyMs)
	}
	fmt.Fprintf(out, "use the device name with: captionjoin rec device <recorder> \"<name>\", or %s<path.wav> to replay a file\n", audio.FilePrefix)
}

// NewLanguagesCmd prints the language catalog.
func NewLanguagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "languages",
		Short: "List captioning languages",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, l := range language.All() {
				fmt.Fprintf(cmd.OutOrStdout(), "%-8s %s\n", l.Code, l.Name)
			}
			return nil
		},
	}
}
