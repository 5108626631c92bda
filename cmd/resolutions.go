package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/smazurov/camnode/internal/camera"
	"github.com/smazurov/camnode/internal/logging"
	"github.com/spf13/cobra"
)

// CreateResolutionsCmd creates the resolutions command.
func CreateResolutionsCmd() *cobra.Command {
	var flags cameraFlags

	cmd := &cobra.Command{
		Use:   "resolutions",
		Short: "List frame sizes supported by a camera",
		Long: `Opens the camera and prints every discrete frame size of every format it offers, ` +
			`plus the common sizes covered by stepwise ranges, with the frame rates of each format.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := append([]camera.Option{camera.WithLogger(logging.GetLogger("camera"))}, cameraOptions...)
			cam := camera.New(opts...)
			defer cam.Destroy()

			if err := flags.connect(cam); err != nil {
				return err
			}
			sizes, err := cam.SupportedSizes()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%s)\n", cam.DevicePath(), cam.Status().Capability.Card)
			for _, r := range sizes {
				var rates []string
				for _, f := range camera.FrameFormats {
					fps, err := cam.FrameRates(f, r.Width, r.Height)
					if err != nil {
						return err
					}
					if len(fps) > 0 {
						rates = append(rates, fmt.Sprintf("%s: %s fps", f, joinFPS(fps)))
					}
				}
				if len(rates) == 0 {
					fmt.Fprintf(out, "  %s\n", r)
					continue
				}
				fmt.Fprintf(out, "  %s (%s)\n", r, strings.Join(rates, "; "))
			}
			return nil
		},
	}

	flags.bind(cmd)
	return cmd
}

func joinFPS(fps []float64) string {
	parts := make([]string, len(fps))
	for i, f := range fps {
		parts[i] = strconv.FormatFloat(f, 'f', -1, 64)
	}
	return strings.Join(parts, ", ")
}
