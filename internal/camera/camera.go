// Package camera drives one V4L2 USB camera through its capture session:
// capability query, format negotiation, a fixed pool of memory-mapped
// buffers and a capture goroutine that hands frames to registered sinks.
//
// A Camera moves through Created, Opened, Configured and Running. Every
// operation checks the state it requires and fails with ErrWrongState
// otherwise, leaving the session untouched. Controller methods are
// serialised; the capture goroutine never takes the controller lock.
package camera

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smazurov/camnode/internal/decoder"
	"github.com/smazurov/camnode/internal/logging"
	"github.com/smazurov/camnode/pkg/linuxav/v4l2"
)

// Device is the V4L2 node a session runs on. *v4l2.Device implements it.
type Device interface {
	Capability() v4l2.Capability
	BufferAPI() v4l2.BufferAPI
	SetFormat(width, height, pixelFormat uint32, c v4l2.Colorimetry) (v4l2.PixFormat, error)
	SetFrameRate(fps uint32) error
	RequestBuffers(count uint32) (uint32, error)
	QueryBuffer(index uint32) (v4l2.BufferInfo, error)
	MapBuffer(info v4l2.BufferInfo) ([]byte, error)
	UnmapBuffer(mem []byte) error
	QueueBuffer(index uint32) error
	DequeueBuffer() (v4l2.DequeuedBuffer, error)
	StreamOn() error
	StreamOff() error
	WaitReadable(timeout time.Duration) (bool, error)
	SetControl(id uint32, value int32) error
	GetControl(id uint32) (int32, error)
	Formats() ([]v4l2.FormatInfo, error)
	FrameSizes(pixelFormat uint32) ([]v4l2.FrameSize, error)
	Framerates(pixelFormat, width, height uint32) ([]v4l2.Framerate, error)
	Close() error
}

// Opener opens and queries a device node.
type Opener func(path string) (Device, error)

// Locator resolves a USB vendor/product pair to a device node.
type Locator func(vendor, product uint16) (string, error)

// DefaultWaitTimeout bounds each readiness wait of the capture loop and
// therefore the latency of Stop.
const DefaultWaitTimeout = time.Second

// FrameRate is requested from the driver during Configure.
const FrameRate = 30

func openV4L2(path string) (Device, error) {
	d, err := v4l2.OpenDevice(path)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func statPath(path string) error {
	_, err := os.Stat(path)
	return err
}

// Option configures a Camera.
type Option func(*Camera)

// WithOpener replaces the V4L2 opener.
func WithOpener(open Opener) Option {
	return func(c *Camera) { c.open = open }
}

// WithLocator replaces the sysfs USB identity lookup.
func WithLocator(locate Locator) Option {
	return func(c *Camera) { c.locate = locate }
}

// WithPathCheck replaces the existence check done before opening a path.
func WithPathCheck(check func(path string) error) Option {
	return func(c *Camera) { c.checkPath = check }
}

// WithDecoderFactory sets the factory used for compressed formats.
func WithDecoderFactory(f decoder.Factory) Option {
	return func(c *Camera) { c.newDecoder = f }
}

// WithObserver registers a receiver for lifecycle and loop notifications.
func WithObserver(o Observer) Option {
	return func(c *Camera) { c.observer = o }
}

// WithLogger overrides the module logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Camera) { c.logger = l }
}

// WithWaitTimeout overrides DefaultWaitTimeout.
func WithWaitTimeout(d time.Duration) Option {
	return func(c *Camera) { c.waitTimeout = d }
}

// Camera is a single capture session controller.
type Camera struct {
	mu    sync.Mutex
	state atomic.Int32

	open        Opener
	locate      Locator
	checkPath   func(string) error
	newDecoder  decoder.Factory
	observer    Observer
	logger      *slog.Logger
	waitTimeout time.Duration

	// Session fields, reset by Close and Destroy.
	dev      Device
	path     string
	caps     v4l2.Capability
	format   StreamFormat
	scratch  []byte
	dec      decoder.Decoder
	pool     *bufferPool
	render   FrameSink
	callback FrameSink

	cancel  context.CancelFunc
	done    chan struct{}
	loopErr atomic.Pointer[Error]
	frames  atomic.Uint64
	dumpDir atomic.Pointer[string]
	node    atomic.Pointer[string]
}

// New returns a Camera in StateCreated.
func New(opts ...Option) *Camera {
	c := &Camera{
		open:        openV4L2,
		locate:      v4l2.FindDeviceByUSBID,
		checkPath:   statPath,
		newDecoder:  decoder.DefaultFactory,
		observer:    NopObserver{},
		waitTimeout: DefaultWaitTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logging.GetLogger("camera")
	}
	return c
}

// State returns the current lifecycle state.
func (c *Camera) State() State {
	return State(c.state.Load())
}

func (c *Camera) setState(next State) {
	prev := State(c.state.Swap(int32(next)))
	if prev != next {
		c.logger.Debug("State changed", "from", prev, "to", next)
		c.observer.StateChanged(prev, next)
	}
}

func (c *Camera) require(op string, want ...State) error {
	have := c.State()
	for _, s := range want {
		if have == s {
			return nil
		}
	}
	return wrongState(op, have, want...)
}

// Format returns the negotiated stream format. It is the zero value
// before Configure.
func (c *Camera) Format() StreamFormat {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.format
}

// ActualFrameSize returns the size the driver acknowledged in Configure.
func (c *Camera) ActualFrameSize() (width, height int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.format.Width, c.format.Height
}

// LoopErr returns the fault that ended the capture loop, if any.
func (c *Camera) LoopErr() error {
	if e := c.loopErr.Load(); e != nil {
		return e
	}
	return nil
}

// Frames returns the number of buffers dequeued in the current session.
func (c *Camera) Frames() uint64 {
	return c.frames.Load()
}

// Status is a point-in-time view of the session.
type Status struct {
	State      State
	DevicePath string
	Capability v4l2.Capability
	BufferAPI  v4l2.BufferAPI
	Format     StreamFormat
	Frames     uint64
	LoopErr    error
}

// Status returns a snapshot of the session.
func (c *Camera) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{
		State:      c.State(),
		DevicePath: c.path,
		Capability: c.caps,
		Format:     c.format,
		Frames:     c.frames.Load(),
		LoopErr:    c.LoopErr(),
	}
	if c.dev != nil {
		st.BufferAPI = c.dev.BufferAPI()
	}
	return st
}

// DevicePath returns the node of the open session.
func (c *Camera) DevicePath() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.path
}

// Node returns the device path without taking the controller lock, so
// observers may call it from a notification.
func (c *Camera) Node() string {
	if p := c.node.Load(); p != nil {
		return *p
	}
	return ""
}

// Close releases an idle configured session and returns to Created.
func (c *Camera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.require("close", StateConfigured); err != nil {
		return err
	}
	c.teardown()
	return nil
}

// Destroy ends the session from any state: it joins the capture loop,
// stops streaming, releases buffers and the decoder, unregisters sinks and
// closes the device. It is safe to call repeatedly.
func (c *Camera) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.State() == StateRunning {
		if err := c.stopStreaming(); err != nil {
			c.logger.Warn("Stop during destroy failed", "error", err)
		}
	}
	c.teardown()
}

// teardown releases everything the session holds and resets it to
// Created. The capture loop must not be running.
func (c *Camera) teardown() {
	if c.pool != nil {
		c.pool.release()
		c.pool = nil
	}
	if c.dec != nil {
		if err := c.dec.Close(); err != nil {
			c.logger.Warn("Failed to close decoder", "error", err)
		}
		c.dec = nil
	}
	if c.render != nil {
		c.render.Unregister()
		c.render = nil
	}
	if c.callback != nil {
		c.callback.Unregister()
		c.callback = nil
	}
	if c.dev != nil {
		if err := c.dev.Close(); err != nil {
			c.logger.Warn("Failed to close device", "path", c.path, "error", err)
		}
		c.dev = nil
	}

	c.path = ""
	c.caps = v4l2.Capability{}
	c.format = StreamFormat{}
	c.scratch = nil
	c.cancel = nil
	c.done = nil
	c.loopErr.Store(nil)
	c.frames.Store(0)
	c.dumpDir.Store(nil)

	c.setState(StateCreated)
	c.node.Store(nil)
}
