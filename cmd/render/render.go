package render

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tphakala/portbridge/internal/app"
	"github.com/tphakala/portbridge/internal/render"
	"github.com/tphakala/portbridge/internal/routines"
)

// Command creates the render command, which processes a WAV file offline
func Command(a *app.App) *cobra.Command {
	var (
		channels    int
		blockFrames int
		bitDepth    int
	)

	cmd := &cobra.Command{
		Use:   "render [input.wav] [output.wav]",
		Short: "Process a WAV file through the routine",
		Long:  "Feed a WAV file block by block through a bridge client on the offline server and write the outputs to a new WAV file.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			routine, err := routines.ByName(a.Settings.Routine.Name)
			if err != nil {
				return err
			}
			if blockFrames == 0 {
				blockFrames = a.Settings.Server.PeriodFrames
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			res, err := render.File(ctx, render.Options{
				InputPath:   args[0],
				OutputPath:  args[1],
				ClientName:  a.Settings.Client.Name,
				Outputs:     channels,
				BlockFrames: blockFrames,
				BitDepth:    bitDepth,
				Routine:     routine,
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d frames, %d blocks, %d Hz, %d-bit, %d -> %d channels in %s\n",
				args[1], res.Frames, res.Blocks, res.SampleRate, res.BitDepth,
				res.InputChannels, res.OutputChannels, res.Elapsed.Round(1e6))
			return nil
		},
	}

	cmd.Flags().IntVar(&channels, "channels", 0, "Output channel count (default: same as input)")
	cmd.Flags().IntVar(&blockFrames, "block", 0, "Frames per block (default: server.periodframes)")
	cmd.Flags().IntVar(&bitDepth, "bit-depth", 0, "Output bit depth 16, 24 or 32 (default: same as input)")

	return cmd
}
