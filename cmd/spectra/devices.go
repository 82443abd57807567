package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/petems/spectra/internal/audio"
	"github.com/spf13/cobra"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List input devices and the configuration capture would negotiate",
	Args:  cobra.NoArgs,
	RunE:  listDevices,
}

func init() {
	rootCmd.AddCommand(devicesCmd)
}

func listDevices(cmd *cobra.Command, args []string) error {
	backend, err := audio.New(cfg.Audio, log)
	if err != nil {
		return fmt.Errorf("failed to initialize audio: %w", err)
	}
	defer backend.Close()

	devices, err := backend.InputDevices()
	if err != nil {
		return fmt.Errorf("failed to list devices: %w", err)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "DEFAULT\tID\tNAME\tNEGOTIATED")
	for _, d := range devices {
		mark := ""
		if d.Default {
			mark = "*"
		}
		negotiated := "unsupported"
		if sc, err := audio.Negotiate(d); err == nil {
			negotiated = fmt.Sprintf("%d ch %s @ %.0f Hz", sc.Channels, sc.Format, sc.SampleRate)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", mark, d.ID, d.Name, negotiated)
	}
	return w.Flush()
}
