// Package camtest provides an in-memory V4L2 device for tests of code
// built on top of camera.Camera.
package camtest

import (
	"errors"
	"sync"
	"time"

	"github.com/smazurov/camnode/internal/camera"
	"github.com/smazurov/camnode/pkg/linuxav/v4l2"
)

// ErrNotReady is returned by DequeueBuffer when no frame is pending.
var ErrNotReady = errors.New("camtest: no frame pending")

// Device is a single-planar capture node that serves pushed frames.
type Device struct {
	mu       sync.Mutex
	notify   chan struct{}
	maps     map[uint32][]byte
	queue    []uint32
	pending  [][]byte
	controls map[uint32]int32
	rates    []v4l2.Framerate
	closed   bool

	// ControlErr fails every SetControl and GetControl when set.
	ControlErr error
	// Sizes is returned by FrameSizes for every pixel format.
	Sizes []v4l2.FrameSize
}

// NewDevice returns an idle device.
func NewDevice() *Device {
	return &Device{
		notify:   make(chan struct{}, 1),
		maps:     make(map[uint32][]byte),
		controls: make(map[uint32]int32),
		rates:    []v4l2.Framerate{{Numerator: 1, Denominator: 30}, {Numerator: 1, Denominator: 15}},
		Sizes: []v4l2.FrameSize{
			{Discrete: true, Min: v4l2.Resolution{Width: 640, Height: 480}, Max: v4l2.Resolution{Width: 640, Height: 480}},
			{Discrete: true, Min: v4l2.Resolution{Width: 1280, Height: 720}, Max: v4l2.Resolution{Width: 1280, Height: 720}},
		},
	}
}

// Options returns camera options that open d for any /dev/videoN path,
// resolve every USB identity to /dev/video0, and use a short readiness
// wait.
func Options(d *Device) []camera.Option {
	return []camera.Option{
		camera.WithOpener(func(string) (camera.Device, error) {
			d.mu.Lock()
			d.closed = false
			d.mu.Unlock()
			return d, nil
		}),
		camera.WithPathCheck(func(string) error { return nil }),
		camera.WithLocator(func(uint16, uint16) (string, error) { return "/dev/video0", nil }),
		camera.WithWaitTimeout(20 * time.Millisecond),
	}
}

// Push queues frames for the capture loop.
func (d *Device) Push(frames ...[]byte) {
	d.mu.Lock()
	d.pending = append(d.pending, frames...)
	d.mu.Unlock()
	d.wake()
}

// Control returns the last value written to a control.
func (d *Device) Control(id uint32) (int32, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.controls[id]
	return v, ok
}

// Closed reports whether Close was called since the last open.
func (d *Device) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *Device) wake() {
	select {
	case d.notify <- struct{}{}:
	default:
	}
}

func (d *Device) Capability() v4l2.Capability {
	return v4l2.Capability{
		Driver:       "camtest",
		Card:         "Test Camera",
		BusInfo:      "usb-test-1",
		Capabilities: v4l2.CapVideoCapture | v4l2.CapStreaming,
	}
}

func (d *Device) BufferAPI() v4l2.BufferAPI { return v4l2.SinglePlanar }

func (d *Device) SetFormat(width, height, pixelFormat uint32, c v4l2.Colorimetry) (v4l2.PixFormat, error) {
	return v4l2.PixFormat{Width: width, Height: height, PixelFormat: pixelFormat, Colorimetry: c}, nil
}

func (d *Device) SetFrameRate(uint32) error { return nil }

func (d *Device) RequestBuffers(count uint32) (uint32, error) {
	if count == 0 {
		d.mu.Lock()
		d.queue = nil
		d.mu.Unlock()
	}
	return count, nil
}

func (d *Device) QueryBuffer(index uint32) (v4l2.BufferInfo, error) {
	return v4l2.BufferInfo{Index: index, Length: 4 << 20}, nil
}

func (d *Device) MapBuffer(info v4l2.BufferInfo) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	mem := make([]byte, info.Length)
	d.maps[info.Index] = mem
	return mem, nil
}

func (d *Device) UnmapBuffer([]byte) error { return nil }

func (d *Device) QueueBuffer(index uint32) error {
	d.mu.Lock()
	d.queue = append(d.queue, index)
	d.mu.Unlock()
	d.wake()
	return nil
}

func (d *Device) DequeueBuffer() (v4l2.DequeuedBuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.pending) == 0 || len(d.queue) == 0 {
		return v4l2.DequeuedBuffer{}, ErrNotReady
	}
	data := d.pending[0]
	d.pending = d.pending[1:]
	idx := d.queue[0]
	d.queue = d.queue[1:]
	n := copy(d.maps[idx], data)
	return v4l2.DequeuedBuffer{Index: idx, BytesUsed: uint32(n)}, nil
}

func (d *Device) StreamOn() error { return nil }

func (d *Device) StreamOff() error {
	d.mu.Lock()
	d.queue = nil
	d.mu.Unlock()
	return nil
}

func (d *Device) ready() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending) > 0 && len(d.queue) > 0
}

func (d *Device) WaitReadable(timeout time.Duration) (bool, error) {
	deadline := time.After(timeout)
	for {
		if d.ready() {
			return true, nil
		}
		select {
		case <-d.notify:
		case <-deadline:
			return false, nil
		}
	}
}

func (d *Device) SetControl(id uint32, value int32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ControlErr != nil {
		return d.ControlErr
	}
	d.controls[id] = value
	return nil
}

func (d *Device) GetControl(id uint32) (int32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ControlErr != nil {
		return 0, d.ControlErr
	}
	return d.controls[id], nil
}

func (d *Device) Formats() ([]v4l2.FormatInfo, error) {
	return []v4l2.FormatInfo{
		{PixelFormat: v4l2.PixFmtMJPEG, FormatName: "Motion-JPEG", Compressed: true},
		{PixelFormat: v4l2.PixFmtYUYV, FormatName: "YUYV 4:2:2"},
	}, nil
}

func (d *Device) FrameSizes(uint32) ([]v4l2.FrameSize, error) { return d.Sizes, nil }

// SetRates replaces the frame intervals reported for every format and
// size. The default is 30 and 15 fps.
func (d *Device) SetRates(rates ...v4l2.Framerate) {
	d.mu.Lock()
	d.rates = rates
	d.mu.Unlock()
}

func (d *Device) Framerates(uint32, uint32, uint32) ([]v4l2.Framerate, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rates, nil
}

func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

var _ camera.Device = (*Device)(nil)
