// Package cmd holds the camnode subcommands that run without the HTTP
// service.
package cmd

import (
	"context"

	"github.com/smazurov/camnode/internal/camera"
	"github.com/smazurov/camnode/internal/capture"
	"github.com/smazurov/camnode/internal/config"
	"github.com/smazurov/camnode/pkg/linuxav/hotplug"
	"github.com/smazurov/camnode/pkg/linuxav/v4l2"
	"github.com/spf13/cobra"
)

// Hooks replaced by tests.
var (
	findDevices   = v4l2.FindDevices
	cameraOptions []camera.Option
	removalWatch  capture.RemovalWatcher
)

// noRemovalWatch is used by one-shot commands that exit on their own.
func noRemovalWatch(ctx context.Context, _ string, _ func(hotplug.Event)) error {
	<-ctx.Done()
	return nil
}

// cameraFlags selects and configures a camera from the command line.
type cameraFlags struct {
	device  string
	vendor  string
	product string
	width   int
	height  int
	format  string
}

func (f *cameraFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.device, "device", "d", "", "Device node, e.g. /dev/video0")
	cmd.Flags().StringVar(&f.vendor, "vendor", "", "USB vendor id in hex, used when --device is empty")
	cmd.Flags().StringVar(&f.product, "product", "", "USB product id in hex, used when --device is empty")
	cmd.Flags().IntVar(&f.width, "width", config.DefaultWidth, "Frame width")
	cmd.Flags().IntVar(&f.height, "height", config.DefaultHeight, "Frame height")
	cmd.Flags().StringVar(&f.format, "format", config.DefaultFormat, "Capture format: mjpeg or yuyv")
}

func (f *cameraFlags) config() config.CameraConfig {
	return config.CameraConfig{
		Device:    f.device,
		VendorID:  f.vendor,
		ProductID: f.product,
		Width:     f.width,
		Height:    f.height,
		Format:    f.format,
	}.WithDefaults()
}

// connect opens the selected camera without configuring it. A device
// path wins over a USB identity.
func (f *cameraFlags) connect(cam *camera.Camera) error {
	cfg := f.config()
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Device != "" {
		return cam.ConnectByPath(cfg.Device)
	}
	vendor, product, _, err := cfg.USBID()
	if err != nil {
		return err
	}
	return cam.ConnectByID(vendor, product)
}
