package sinks

import (
	"time"

	"github.com/smazurov/camnode/internal/camera"
	"github.com/smazurov/camnode/internal/events"
)

// DefaultNotifyInterval publishes one FrameEvent per second at 30 fps.
const DefaultNotifyInterval = 30

// EventNotifier publishes a FrameEvent for every Nth delivered frame with
// the delivery rate measured since the previous sample. It only runs on
// the capture goroutine, so it keeps no locks.
type EventNotifier struct {
	bus    *events.Bus
	device func() string
	every  uint64
	now    func() time.Time

	count    uint64
	lastTime time.Time
}

// NewEventNotifier samples every Nth frame; every <= 0 selects
// DefaultNotifyInterval. device labels the events.
func NewEventNotifier(bus *events.Bus, device func() string, every int) *EventNotifier {
	if every <= 0 {
		every = DefaultNotifyInterval
	}
	if device == nil {
		device = func() string { return "" }
	}
	return &EventNotifier{bus: bus, device: device, every: uint64(every), now: time.Now}
}

// Deliver implements camera.FrameSink.
func (n *EventNotifier) Deliver(f camera.Frame) error {
	n.count++
	if n.count%n.every != 0 {
		return nil
	}

	now := n.now()
	var fps float64
	if !n.lastTime.IsZero() {
		if elapsed := now.Sub(n.lastTime).Seconds(); elapsed > 0 {
			fps = float64(n.every) / elapsed
		}
	}
	n.lastTime = now

	n.bus.Publish(events.FrameEvent{
		DevicePath: n.device(),
		Sequence:   f.Sequence,
		Width:      f.Width,
		Height:     f.Height,
		Layout:     f.Layout.String(),
		Bytes:      len(f.Data),
		FPS:        fps,
		Timestamp:  now.UTC().Format(time.RFC3339),
	})
	return nil
}

// Unregister resets the sampling state.
func (n *EventNotifier) Unregister() {
	n.count = 0
	n.lastTime = time.Time{}
}
