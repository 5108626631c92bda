package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/smazurov/camnode/internal/capture"
	"github.com/smazurov/camnode/internal/logging"
	"github.com/smazurov/camnode/internal/sinks"
	"github.com/spf13/cobra"
)

// CreateCaptureCmd creates the capture command.
func CreateCaptureCmd() *cobra.Command {
	var (
		flags   cameraFlags
		output  string
		skip    int
		quality int
		raw     bool
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Save one frame from a camera",
		Long: `Opens the camera, discards the first frames while exposure settles and writes the next one ` +
			`as JPEG, or as the raw delivered buffer with --raw.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc := capture.New(capture.Options{
				Logger:        logging.GetLogger("capture"),
				CameraOptions: cameraOptions,
				WatchRemoval:  noRemovalWatch,
			})
			defer svc.Destroy()

			cfg := flags.config()
			cfg.AutoStart = true
			if err := svc.Open(cfg); err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			f, err := svc.WaitForFrame(ctx, uint64(skip))
			if err != nil {
				return fmt.Errorf("no frame within %s: %w", timeout, err)
			}

			data := f.Data
			if !raw {
				if data, err = sinks.EncodeJPEG(f, quality); err != nil {
					return err
				}
			}
			if dir := filepath.Dir(output); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return err
				}
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved frame %d (%dx%d %s) to %s\n",
				f.Sequence, f.Width, f.Height, f.Layout, output)
			return nil
		},
	}

	flags.bind(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "snapshot.jpg", "Output file")
	cmd.Flags().IntVar(&skip, "skip", 5, "Frames to discard before saving")
	cmd.Flags().IntVarP(&quality, "quality", "q", sinks.DefaultJPEGQuality, "JPEG quality (1-100)")
	cmd.Flags().BoolVar(&raw, "raw", false, "Write the delivered buffer without encoding")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Maximum time to wait for a frame")
	return cmd
}
