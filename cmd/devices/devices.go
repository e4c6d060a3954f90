package devices

import (
	"fmt"
	"io"

	"github.com/gen2brain/malgo"
	"github.com/spf13/cobra"

	"github.com/tphakala/portbridge/internal/app"
	"github.com/tphakala/portbridge/internal/server/malgoserver"
)

// Command creates the devices command, which lists soundcards usable by the malgo backend
func Command(_ *app.App) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List audio devices for the malgo backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			for _, kind := range []struct {
				title string
				kind  malgo.DeviceType
			}{
				{"Capture devices", malgo.Capture},
				{"Playback devices", malgo.Playback},
			} {
				devices, err := malgoserver.EnumerateDevices(kind.kind)
				if err != nil {
					return err
				}
				printDevices(out, kind.title, devices)
			}
			return nil
		},
	}
}

func printDevices(w io.Writer, title string, devices []malgoserver.DeviceInfo) {
	fmt.Fprintf(w, "%s:\n", title)
	if len(devices) == 0 {
		fmt.Fprintln(w, "  (none)")
		return
	}
	for _, d := range devices {
		marker := " "
		if d.Default {
			marker = "*"
		}
		fmt.Fprintf(w, " %s %d: %s (%s)\n", marker, d.Index, d.Name, d.ID)
	}
}
