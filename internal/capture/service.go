// Package capture runs one camera session for the camnode service. It
// wires the camera to its sinks, observers, NATS transport and hotplug
// watch so the API and CLI only deal with lifecycle calls.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smazurov/camnode/internal/camera"
	"github.com/smazurov/camnode/internal/config"
	"github.com/smazurov/camnode/internal/events"
	"github.com/smazurov/camnode/internal/logging"
	"github.com/smazurov/camnode/internal/metrics"
	"github.com/smazurov/camnode/internal/nats"
	"github.com/smazurov/camnode/internal/sinks"
	"github.com/smazurov/camnode/pkg/linuxav/hotplug"
)

// RemovalWatcher blocks until node disappears or ctx ends, calling
// onRemove on removal. hotplug.WatchRemoval is the production watcher.
type RemovalWatcher func(ctx context.Context, node string, onRemove func(hotplug.Event)) error

// Options configures a Service.
type Options struct {
	Bus            *events.Bus
	NATSURL        string // empty disables frame publishing and remote control
	NotifyInterval int    // frames between FrameEvents
	Logger         *slog.Logger
	CameraOptions  []camera.Option
	WatchRemoval   RemovalWatcher
}

// Service owns the camera session.
type Service struct {
	cam      *camera.Camera
	bus      *events.Bus
	latest   *sinks.LatestFrame
	natsURL  string
	interval int
	logger   *slog.Logger
	watch    RemovalWatcher

	mu          sync.Mutex
	client      atomic.Pointer[nats.Client]
	publisher   *sinks.NATSPublisher
	watchCancel context.CancelFunc
}

// New builds the service and its camera.
func New(opts Options) *Service {
	if opts.Bus == nil {
		opts.Bus = events.New()
	}
	if opts.Logger == nil {
		opts.Logger = logging.GetLogger("capture")
	}
	if opts.WatchRemoval == nil {
		opts.WatchRemoval = hotplug.WatchRemoval
	}

	s := &Service{
		bus:      opts.Bus,
		latest:   sinks.NewLatestFrame(),
		natsURL:  opts.NATSURL,
		interval: opts.NotifyInterval,
		logger:   opts.Logger,
		watch:    opts.WatchRemoval,
	}

	node := func() string { return s.cam.Node() }
	observer := camera.Observers(
		events.NewCameraObserver(s.bus, node),
		metrics.NewCameraObserver(node),
		&stateForwarder{s: s, node: node},
	)
	camOpts := append([]camera.Option{camera.WithObserver(observer)}, opts.CameraOptions...)
	s.cam = camera.New(camOpts...)
	return s
}

// Camera returns the underlying session controller.
func (s *Service) Camera() *camera.Camera { return s.cam }

// Bus returns the event bus the service publishes on.
func (s *Service) Bus() *events.Bus { return s.bus }

// Latest returns the render sink holding the most recent frame.
func (s *Service) Latest() *sinks.LatestFrame { return s.latest }

// ConnectByPath opens path and starts watching it for removal.
func (s *Service) ConnectByPath(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.cam.ConnectByPath(path); err != nil {
		return err
	}
	s.beginSession()
	return nil
}

// ConnectByID opens the first node with the given USB identity.
func (s *Service) ConnectByID(vendor, product uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.cam.ConnectByID(vendor, product); err != nil {
		return err
	}
	s.beginSession()
	return nil
}

// beginSession starts the per-device helpers. Callers hold mu.
func (s *Service) beginSession() {
	node := s.cam.Node()

	ctx, cancel := context.WithCancel(context.Background())
	s.watchCancel = cancel
	go func() {
		err := s.watch(ctx, node, func(hotplug.Event) { s.handleRemoval(node) })
		if err != nil {
			s.logger.Warn("Hotplug watch unavailable", "path", node, "error", err)
		}
	}()

	if s.natsURL == "" {
		return
	}
	client := nats.NewClient(s.natsURL, node, logging.GetLogger("nats"))
	client.OnControl(s.HandleControl)
	if err := client.Connect(); err != nil {
		s.logger.Warn("Frames will not be published until NATS is reachable", "error", err)
	}
	s.client.Store(client)
}

// endSession stops the per-device helpers. Callers hold mu.
func (s *Service) endSession() {
	if s.watchCancel != nil {
		s.watchCancel()
		s.watchCancel = nil
	}
	if client := s.client.Swap(nil); client != nil {
		client.Close()
	}
	s.publisher = nil
}

func (s *Service) handleRemoval(node string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cam.Node() != node {
		return
	}
	s.logger.Warn("Camera unplugged, destroying session", "path", node)
	s.cam.Destroy()
	s.endSession()
	metrics.DeleteDevice(node)
	s.bus.Publish(events.DeviceRemovedEvent{
		DevicePath: node,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	})
}

// Configure negotiates the format and registers the sinks: the latest
// frame holder as render sink, and the event notifier plus the NATS
// publisher as callback.
func (s *Service) Configure(width, height int, format camera.FrameFormat) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.cam.Configure(width, height, format); err != nil {
		return err
	}
	if err := s.cam.SetRenderSink(s.latest); err != nil {
		return err
	}

	callbacks := []camera.FrameSink{sinks.NewEventNotifier(s.bus, s.cam.Node, s.interval)}
	s.publisher = nil
	if client := s.client.Load(); client != nil {
		s.publisher = sinks.NewNATSPublisher(client)
		callbacks = append(callbacks, s.publisher)
	}
	return s.cam.SetFrameCallback(sinks.Tee(callbacks...))
}

// Start begins capturing.
func (s *Service) Start() error { return s.cam.Start() }

// Stop ends capturing and keeps the session configured.
func (s *Service) Stop() error { return s.cam.Stop() }

// Close releases a stopped session.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.cam.Close(); err != nil {
		return err
	}
	s.endSession()
	return nil
}

// Destroy ends the session from any state.
func (s *Service) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cam.Destroy()
	s.endSession()
}

// ApplyExposure writes the exposure settings present in cfg.
func (s *Service) ApplyExposure(cfg config.CameraConfig) error {
	var errs []error
	if cfg.AutoExposure != nil {
		if err := s.cam.SetAutoExposure(*cfg.AutoExposure); err != nil {
			errs = append(errs, err)
		}
	}
	if cfg.Exposure != nil {
		if err := s.cam.SetExposure(*cfg.Exposure); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Reload applies exposure changes from a reloaded configuration to an
// open session. Other settings take effect on the next session.
func (s *Service) Reload(prev, next config.CameraConfig) {
	if !prev.ExposureChanged(next) || s.cam.State() == camera.StateCreated {
		return
	}
	if err := s.ApplyExposure(next); err != nil {
		s.logger.Warn("Failed to apply reloaded exposure", "error", err)
		return
	}
	s.logger.Info("Exposure settings reloaded")
}

// Open connects, applies exposure and configures the camera described by
// cfg. With AutoStart set it also starts capturing. A failure after the
// device was opened destroys the session.
func (s *Service) Open(cfg config.CameraConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	format, err := camera.ParseFrameFormat(cfg.Format)
	if err != nil {
		return err
	}

	vendor, product, byID, err := cfg.USBID()
	if err != nil {
		return err
	}
	if cfg.Device != "" {
		err = s.ConnectByPath(cfg.Device)
	} else if byID {
		err = s.ConnectByID(vendor, product)
	}
	if err != nil {
		return err
	}

	if err := s.ApplyExposure(cfg); err != nil {
		s.logger.Warn("Exposure settings not applied", "error", err)
	}
	if err := s.Configure(cfg.Width, cfg.Height, format); err != nil {
		s.Destroy()
		return err
	}
	if !cfg.AutoStart {
		return nil
	}
	if err := s.Start(); err != nil {
		s.Destroy()
		return err
	}
	return nil
}

// HandleControl executes a command received over NATS.
func (s *Service) HandleControl(msg nats.ControlMessage) {
	var err error
	switch msg.Action {
	case nats.ActionDump:
		err = s.cam.RequestFrameDump(msg.Dir)
	case nats.ActionStart:
		err = s.Start()
	case nats.ActionStop:
		err = s.Stop()
	default:
		err = fmt.Errorf("unknown action %q", msg.Action)
	}
	if err != nil {
		s.logger.Warn("Control command failed", "action", msg.Action, "error", err)
	}
}

// NATSConnected reports whether the session's frame publisher is online.
func (s *Service) NATSConnected() bool {
	client := s.client.Load()
	return client != nil && client.IsConnected()
}

// PublishedFrames returns the frames published to NATS in the current
// configuration, and the frames skipped while offline.
func (s *Service) PublishedFrames() (published, skipped uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.publisher == nil {
		return 0, 0
	}
	return s.publisher.Published(), s.publisher.Skipped()
}

// stateForwarder mirrors state transitions onto NATS. It runs with the
// camera lock held, so it only touches the lock-free client pointer.
type stateForwarder struct {
	camera.NopObserver
	s    *Service
	node func() string
}

func (f *stateForwarder) StateChanged(from, to camera.State) {
	client := f.s.client.Load()
	if client == nil {
		return
	}
	client.PublishState(nats.StateMessage{
		Device:    f.node(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		From:      from.String(),
		To:        to.String(),
	})
}
