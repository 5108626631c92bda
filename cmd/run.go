package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/smazurov/camnode/internal/capture"
	"github.com/smazurov/camnode/internal/config"
	"github.com/smazurov/camnode/internal/events"
	"github.com/smazurov/camnode/internal/logging"
	"github.com/smazurov/camnode/internal/sinks"
	"github.com/spf13/cobra"
)

// ErrDeviceRemoved ends the run command when its camera is unplugged, so
// a supervisor can restart it.
var ErrDeviceRemoved = errors.New("camera removed")

// CreateRunCmd creates the run command.
func CreateRunCmd() *cobra.Command {
	var (
		configFile string
		natsURL    string
		interval   int
		logJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a headless capture session",
		Long: `Opens the camera described by the [camera] table of the config file and publishes its frames ` +
			`to NATS until interrupted. Exposure changes in the file are applied without a restart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			loggingConfig := config.LoadLoggingConfig(configFile)
			if logJSON {
				loggingConfig.Format = "json"
			}
			logging.Initialize(loggingConfig)
			logger := logging.GetLogger("run")

			cfg, err := config.LoadCameraConfig(configFile)
			if err != nil {
				return err
			}
			cfg.AutoStart = true

			svc := capture.New(capture.Options{
				NATSURL:        natsURL,
				NotifyInterval: interval,
				CameraOptions:  cameraOptions,
				WatchRemoval:   removalWatch,
			})
			defer svc.Destroy()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			ctx, cancel := context.WithCancelCause(ctx)
			defer cancel(nil)
			defer svc.Bus().Subscribe(func(e events.DeviceRemovedEvent) {
				logger.Warn("Camera removed, exiting", "path", e.DevicePath)
				cancel(ErrDeviceRemoved)
			})()

			if err := svc.Open(cfg); err != nil {
				return err
			}
			logger.Info("Capture session running", "device", svc.Camera().DevicePath(), "nats", natsURL)

			watcher := config.NewConfigWatcher(
				configFile,
				config.LoadCameraConfig,
				logger,
				config.WithDebounce[config.CameraConfig](config.DefaultDebounce),
			)
			current := cfg
			watcher.OnReload(func(next config.CameraConfig) {
				svc.Reload(current, next)
				current = next
			})
			if err := watcher.Start(); err != nil {
				logger.Warn("Failed to start config watcher, hot-reload disabled", "error", err)
			} else {
				defer func() { _ = watcher.Stop() }()
			}

			<-ctx.Done()
			if cause := context.Cause(ctx); errors.Is(cause, ErrDeviceRemoved) {
				return cause
			}
			logger.Info("Run command exiting", "frames", svc.Camera().Frames())
			return nil
		},
	}

	cmd.Flags().StringVar(&configFile, "config", "config.toml", "Path to configuration file")
	cmd.Flags().StringVar(&natsURL, "nats", "nats://127.0.0.1:4222", "NATS server URL, empty to disable publishing")
	cmd.Flags().IntVar(&interval, "event-interval", sinks.DefaultNotifyInterval, "Frames between frame statistics events")
	cmd.Flags().BoolVar(&logJSON, "log-json", false, "Use JSON log format")
	return cmd
}
