package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/smazurov/camnode/cmd"
	"github.com/smazurov/camnode/internal/api"
	"github.com/smazurov/camnode/internal/capture"
	"github.com/smazurov/camnode/internal/config"
	"github.com/smazurov/camnode/internal/events"
	"github.com/smazurov/camnode/internal/logging"
	"github.com/smazurov/camnode/internal/metrics/exporters"
	"github.com/smazurov/camnode/internal/nats"
	"github.com/smazurov/camnode/internal/sinks"
	"github.com/smazurov/camnode/internal/version"
	"github.com/smazurov/camnode/pkg/linuxav/hotplug"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	Port string `help:"Port to listen on" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`

	// Camera overrides; the rest of the [camera] table is read directly
	CameraDevice       string `help:"Camera device node, overrides [camera] device" toml:"camera.device" env:"CAMERA_DEVICE"`
	FrameEventInterval int    `help:"Frames between frame statistics events" default:"30" toml:"camera.event_interval" env:"CAMERA_EVENT_INTERVAL"`

	// NATS settings
	NatsEnabled bool   `help:"Publish frames and accept control messages over NATS" default:"true" toml:"nats.enabled" env:"NATS_ENABLED"`
	NatsServer  string `help:"External NATS server URL; empty runs an embedded server" toml:"nats.server" env:"NATS_SERVER"`
	NatsHost    string `help:"Embedded NATS listen host" default:"127.0.0.1" toml:"nats.host" env:"NATS_HOST"`
	NatsPort    int    `help:"Embedded NATS listen port" default:"4222" toml:"nats.port" env:"NATS_PORT"`

	// Auth settings
	AuthUsername string `help:"Basic auth username" default:"admin" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"password" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Logging settings
	LoggingLevel   string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat  string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingCamera  string `help:"Camera logging level" default:"info" toml:"logging.camera" env:"LOGGING_CAMERA"`
	LoggingDecoder string `help:"Decoder logging level" default:"info" toml:"logging.decoder" env:"LOGGING_DECODER"`
	LoggingCapture string `help:"Capture service logging level" default:"info" toml:"logging.capture" env:"LOGGING_CAPTURE"`
	LoggingDevices string `help:"Device discovery logging level" default:"info" toml:"logging.devices" env:"LOGGING_DEVICES"`
	LoggingNats    string `help:"NATS logging level" default:"info" toml:"logging.nats" env:"LOGGING_NATS"`
	LoggingAPI     string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
}

func main() {
	var cli humacli.CLI

	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		// Load configuration automatically
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		logging.Initialize(logging.Config{
			Level:  opts.LoggingLevel,
			Format: opts.LoggingFormat,
			Modules: map[string]string{
				"camera":  opts.LoggingCamera,
				"decoder": opts.LoggingDecoder,
				"capture": opts.LoggingCapture,
				"devices": opts.LoggingDevices,
				"nats":    opts.LoggingNats,
				"api":     opts.LoggingAPI,
			},
		})
		logger := logging.GetLogger("main")

		// Create event bus for in-process event handling
		eventBus := events.New()
		logging.SetLogCallback(func(entry logging.LogEntry) {
			eventBus.Publish(events.LogEntryEvent{
				Seq:        entry.Seq,
				Timestamp:  entry.Timestamp.Format(time.RFC3339Nano),
				Level:      entry.Level,
				Module:     entry.Module,
				Message:    entry.Message,
				Attributes: entry.Attributes,
			})
		})

		var (
			natsServer *nats.Server
			bridge     *nats.Bridge
			service    *capture.Service
			watcher    *config.Watcher[config.CameraConfig]
			server     *api.Server
			cancel     context.CancelFunc
		)

		hooks.OnStart(func() {
			logger.Info("Starting camnode", "version", version.Get().Version)

			var ctx context.Context
			ctx, cancel = context.WithCancel(context.Background())

			natsURL := ""
			if opts.NatsEnabled {
				natsURL = opts.NatsServer
				if natsURL == "" {
					natsServer = nats.NewServer(nats.ServerOptions{
						Host:   opts.NatsHost,
						Port:   opts.NatsPort,
						Logger: logging.GetLogger("nats"),
					})
					if startErr := natsServer.Start(); startErr != nil {
						logger.Error("Failed to start embedded NATS server", "error", startErr)
						os.Exit(1)
					}
					natsURL = natsServer.ClientURL()
				}

				bridge = nats.NewBridge(natsURL, eventBus, logging.GetLogger("nats"))
				if startErr := bridge.Start(); startErr != nil {
					logger.Warn("Failed to start NATS event bridge", "error", startErr)
				}
			}

			interval := opts.FrameEventInterval
			if interval <= 0 {
				interval = sinks.DefaultNotifyInterval
			}
			service = capture.New(capture.Options{
				Bus:            eventBus,
				NATSURL:        natsURL,
				NotifyInterval: interval,
				Logger:         logging.GetLogger("capture"),
				WatchRemoval:   hotplug.WatchRemoval,
			})

			cameraCfg, cfgErr := config.LoadCameraConfig(opts.Config)
			if cfgErr != nil {
				logger.Warn("Failed to load camera config", "error", cfgErr)
			}
			if opts.CameraDevice != "" {
				cameraCfg.Device = opts.CameraDevice
			}

			// A missing camera leaves the service idle; the API can connect later.
			if cameraCfg.Device != "" || cameraCfg.VendorID != "" {
				if openErr := service.Open(cameraCfg); openErr != nil {
					logger.Warn("Camera not opened at startup", "error", openErr)
				}
			}

			watcher = config.NewConfigWatcher(
				opts.Config,
				config.LoadCameraConfig,
				logging.GetLogger("config"),
				config.WithDebounce[config.CameraConfig](config.DefaultDebounce),
			)
			current := cameraCfg
			watcher.OnReload(func(next config.CameraConfig) {
				service.Reload(current, next)
				current = next
			})
			if watchErr := watcher.Start(); watchErr != nil {
				logger.Warn("Failed to start config watcher, hot-reload disabled", "error", watchErr)
				watcher = nil
			}

			go func() {
				if watchErr := capture.WatchDevices(ctx, eventBus, capture.NetlinkSource, logging.GetLogger("devices")); watchErr != nil {
					logger.Warn("Device discovery unavailable", "error", watchErr)
				}
			}()

			server = api.NewServer(&api.Options{
				AuthUsername:      opts.AuthUsername,
				AuthPassword:      opts.AuthPassword,
				Service:           service,
				PrometheusHandler: exporters.HTTPHandler(),
			})

			logger.Info("Starting HTTP server", "port", opts.Port)
			if startErr := server.Start(opts.Port); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", startErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down server")
			if server != nil {
				ctx, done := context.WithTimeout(context.Background(), 5*time.Second)
				if stopErr := server.Stop(ctx); stopErr != nil {
					logger.Error("Error stopping HTTP server", "error", stopErr)
				}
				done()
			}
			if cancel != nil {
				cancel()
			}
			if watcher != nil {
				_ = watcher.Stop()
			}

			// Destroy joins the capture loop before the broker goes away.
			if service != nil {
				service.Destroy()
			}
			if bridge != nil {
				bridge.Stop()
			}
			if natsServer != nil {
				natsServer.Stop()
			}
		})
	})

	cli.Root().Use = "camnode"
	cli.Root().Version = version.String()

	cli.Root().AddCommand(cmd.CreateDevicesCmd())
	cli.Root().AddCommand(cmd.CreateResolutionsCmd())
	cli.Root().AddCommand(cmd.CreateCaptureCmd())
	cli.Root().AddCommand(cmd.CreateRunCmd())
	cli.Root().AddCommand(cmd.CreateControlCmd())

	// Run the CLI
	cli.Run()
}
