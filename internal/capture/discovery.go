package capture

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/smazurov/camnode/internal/events"
	"github.com/smazurov/camnode/pkg/linuxav/hotplug"
)

// EventSource delivers kernel uevents until ctx ends. The channel is
// closed when it returns.
type EventSource func(ctx context.Context, out chan<- hotplug.Event) error

// NetlinkSource is the EventSource backed by a video4linux netlink monitor.
func NetlinkSource(ctx context.Context, out chan<- hotplug.Event) error {
	m, err := hotplug.NewMonitor(hotplug.SubsystemVideo4Linux)
	if err != nil {
		close(out)
		return err
	}
	defer m.Close()
	return m.Run(ctx, out)
}

// WatchDevices publishes a DeviceDiscoveryEvent for every video4linux
// node that appears, changes or disappears. It returns when ctx ends.
func WatchDevices(ctx context.Context, bus *events.Bus, source EventSource, logger *slog.Logger) error {
	if source == nil {
		source = NetlinkSource
	}
	if logger == nil {
		logger = slog.Default()
	}

	ch := make(chan hotplug.Event, 16)
	errCh := make(chan error, 1)
	go func() { errCh <- source(ctx, ch) }()

	for e := range ch {
		node := e.Node()
		if node == "" {
			continue
		}
		logger.Debug("Device event", "action", e.Action, "path", node)
		bus.Publish(events.DeviceDiscoveryEvent{
			Action:     e.Action,
			DevicePath: node,
			Timestamp:  time.Now().UTC().Format(time.RFC3339),
		})
	}

	err := <-errCh
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
