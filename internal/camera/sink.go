package camera

import (
	"time"

	"github.com/smazurov/camnode/internal/decoder"
)

// Frame is one delivered picture. Data belongs to the camera and is only
// valid until Deliver returns.
type Frame struct {
	Data      []byte
	Width     int
	Height    int
	Layout    decoder.Layout
	Sequence  uint64
	Timestamp time.Time
}

// FrameSink consumes frames on the capture goroutine. Deliver must not
// block for long and must copy Data if it keeps it. Unregister is called
// once when the sink is replaced or the session ends.
type FrameSink interface {
	Deliver(f Frame) error
	Unregister()
}

// SinkFunc adapts a function to a FrameSink with a no-op Unregister.
type SinkFunc func(f Frame) error

// Deliver implements FrameSink.
func (fn SinkFunc) Deliver(f Frame) error { return fn(f) }

// Unregister implements FrameSink.
func (SinkFunc) Unregister() {}

// SetFrameCallback registers the callback sink, replacing and
// unregistering the previous one. A nil sink clears the registration.
func (c *Camera) SetFrameCallback(sink FrameSink) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.require("set frame callback", StateConfigured); err != nil {
		return err
	}
	replaceSink(&c.callback, sink)
	return nil
}

// SetRenderSink registers the render sink, replacing and unregistering
// the previous one. A nil sink clears the registration.
func (c *Camera) SetRenderSink(sink FrameSink) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.require("set render sink", StateConfigured); err != nil {
		return err
	}
	replaceSink(&c.render, sink)
	return nil
}

func replaceSink(slot *FrameSink, sink FrameSink) {
	if *slot != nil {
		(*slot).Unregister()
	}
	*slot = sink
}
