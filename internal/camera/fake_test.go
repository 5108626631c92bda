package camera

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/smazurov/camnode/internal/decoder"
	"github.com/smazurov/camnode/pkg/linuxav/v4l2"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var errFake = errors.New("fake ioctl failure")

type fakeFrame struct {
	data      []byte
	bytesUsed uint32 // reported bytesused, len(data) when zero
}

// fakeDevice is an in-memory V4L2 node. Mapped buffers are plain slices.
type fakeDevice struct {
	mu sync.Mutex

	cap        v4l2.Capability
	bufLen     uint32
	grant      uint32 // buffers granted per request, BufferCount when zero
	substitute uint32 // pixel format reported back by SetFormat, requested when zero

	formatErr    error
	frameRateErr error
	reqErr       error
	queryFailAt  int
	mapFailAt    int
	qbufErr      error // applied while streaming
	streamOnErr  error
	streamOffErr error
	controlErr   error
	dqbufErr     error
	waitErr      error

	formats    []v4l2.FormatInfo
	frameSizes map[uint32][]v4l2.FrameSize
	framerates map[uint32][]v4l2.Framerate // by pixel format, any size
	rateErr    error

	// recorded state
	closed       int
	requests     []uint32
	maps         map[uint32][]byte
	unmaps       int
	queue        []uint32
	streaming    bool
	streamOns    int
	streamOffs   int
	waits        int
	dequeues     int
	controls     map[uint32]int32
	lastFormat   [3]uint32
	lastFPS      uint32
	pending      []fakeFrame
	notify       chan struct{}
	requeueFails int
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		cap: v4l2.Capability{
			Driver:       "uvcvideo",
			Card:         "Fake Webcam",
			BusInfo:      "usb-0000:00:14.0-1",
			Capabilities: v4l2.CapVideoCapture | v4l2.CapStreaming | v4l2.CapDeviceCaps,
			DeviceCaps:   v4l2.CapVideoCapture | v4l2.CapStreaming,
		},
		bufLen:      1 << 20,
		queryFailAt: -1,
		mapFailAt:   -1,
		maps:        make(map[uint32][]byte),
		controls:    make(map[uint32]int32),
		notify:      make(chan struct{}, 1),
	}
}

func (d *fakeDevice) Capability() v4l2.Capability { return d.cap }

func (d *fakeDevice) BufferAPI() v4l2.BufferAPI { return d.cap.BufferAPI() }

func (d *fakeDevice) SetFormat(width, height, pixelFormat uint32, c v4l2.Colorimetry) (v4l2.PixFormat, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.formatErr != nil {
		return v4l2.PixFormat{}, d.formatErr
	}
	d.lastFormat = [3]uint32{width, height, pixelFormat}
	pf := pixelFormat
	if d.substitute != 0 {
		pf = d.substitute
	}
	return v4l2.PixFormat{Width: width, Height: height, PixelFormat: pf, Colorimetry: c}, nil
}

func (d *fakeDevice) SetFrameRate(fps uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastFPS = fps
	return d.frameRateErr
}

func (d *fakeDevice) RequestBuffers(count uint32) (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.requests = append(d.requests, count)
	if count == 0 {
		d.queue = nil
		return 0, nil
	}
	if d.reqErr != nil {
		return 0, d.reqErr
	}
	if d.grant != 0 {
		return d.grant, nil
	}
	return count, nil
}

func (d *fakeDevice) QueryBuffer(index uint32) (v4l2.BufferInfo, error) {
	if int(index) == d.queryFailAt {
		return v4l2.BufferInfo{}, errFake
	}
	return v4l2.BufferInfo{Index: index, Offset: index * d.bufLen, Length: d.bufLen}, nil
}

func (d *fakeDevice) MapBuffer(info v4l2.BufferInfo) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if int(info.Index) == d.mapFailAt {
		return nil, errFake
	}
	mem := make([]byte, info.Length)
	d.maps[info.Index] = mem
	return mem, nil
}

func (d *fakeDevice) UnmapBuffer(mem []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, m := range d.maps {
		if len(m) > 0 && len(mem) > 0 && &m[0] == &mem[0] {
			delete(d.maps, i)
			d.unmaps++
			return nil
		}
	}
	return errors.New("unmap of unknown buffer")
}

func (d *fakeDevice) QueueBuffer(index uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.streaming && d.qbufErr != nil {
		d.requeueFails++
		return d.qbufErr
	}
	d.queue = append(d.queue, index)
	return nil
}

func (d *fakeDevice) DequeueBuffer() (v4l2.DequeuedBuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dequeues++
	if d.dqbufErr != nil {
		return v4l2.DequeuedBuffer{}, d.dqbufErr
	}
	if len(d.pending) == 0 || len(d.queue) == 0 {
		return v4l2.DequeuedBuffer{}, errors.New("EAGAIN")
	}
	fr := d.pending[0]
	d.pending = d.pending[1:]
	idx := d.queue[0]
	d.queue = d.queue[1:]

	mem := d.maps[idx]
	copy(mem, fr.data)
	used := fr.bytesUsed
	if used == 0 {
		used = uint32(len(fr.data))
	}
	return v4l2.DequeuedBuffer{Index: idx, BytesUsed: used}, nil
}

func (d *fakeDevice) StreamOn() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.streamOns++
	if d.streamOnErr != nil {
		return d.streamOnErr
	}
	d.streaming = true
	return nil
}

func (d *fakeDevice) StreamOff() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.streamOffs++
	d.streaming = false
	d.queue = nil
	return d.streamOffErr
}

func (d *fakeDevice) ready() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dqbufErr != nil || (len(d.pending) > 0 && len(d.queue) > 0)
}

func (d *fakeDevice) WaitReadable(timeout time.Duration) (bool, error) {
	d.mu.Lock()
	d.waits++
	waitErr := d.waitErr
	d.mu.Unlock()
	if waitErr != nil {
		return false, waitErr
	}

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

func (d *fakeDevice) SetControl(id uint32, value int32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.controlErr != nil {
		return d.controlErr
	}
	d.controls[id] = value
	return nil
}

func (d *fakeDevice) GetControl(id uint32) (int32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.controlErr != nil {
		return 0, d.controlErr
	}
	return d.controls[id], nil
}

func (d *fakeDevice) Formats() ([]v4l2.FormatInfo, error) { return d.formats, nil }

func (d *fakeDevice) Framerates(pixelFormat, _, _ uint32) ([]v4l2.Framerate, error) {
	if d.rateErr != nil {
		return nil, d.rateErr
	}
	return d.framerates[pixelFormat], nil
}

func (d *fakeDevice) FrameSizes(pixelFormat uint32) ([]v4l2.FrameSize, error) {
	return d.frameSizes[pixelFormat], nil
}

func (d *fakeDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed++
	return nil
}

// push makes frames available to the capture loop.
func (d *fakeDevice) push(frames ...fakeFrame) {
	d.mu.Lock()
	d.pending = append(d.pending, frames...)
	d.mu.Unlock()
	select {
	case d.notify <- struct{}{}:
	default:
	}
}

func (d *fakeDevice) set(fn func(d *fakeDevice)) {
	d.mu.Lock()
	fn(d)
	d.mu.Unlock()
	select {
	case d.notify <- struct{}{}:
	default:
	}
}

// deviceStats is a copy of the fake's recorded calls.
type deviceStats struct {
	closed       int
	requests     []uint32
	unmaps       int
	queued       int
	streaming    bool
	streamOns    int
	streamOffs   int
	waits        int
	dequeues     int
	lastFormat   [3]uint32
	lastFPS      uint32
	requeueFails int
	controls     map[uint32]int32
}

func (d *fakeDevice) stats() deviceStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	controls := make(map[uint32]int32, len(d.controls))
	for k, v := range d.controls {
		controls[k] = v
	}
	return deviceStats{
		closed:       d.closed,
		requests:     append([]uint32(nil), d.requests...),
		unmaps:       d.unmaps,
		queued:       len(d.queue),
		streaming:    d.streaming,
		streamOns:    d.streamOns,
		streamOffs:   d.streamOffs,
		waits:        d.waits,
		dequeues:     d.dequeues,
		lastFormat:   d.lastFormat,
		lastFPS:      d.lastFPS,
		requeueFails: d.requeueFails,
		controls:     controls,
	}
}

func (d *fakeDevice) liveMaps() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.maps)
}

// recordingObserver counts notifications.
type recordingObserver struct {
	mu          sync.Mutex
	transitions [][2]State
	delivered   int
	dropped     int
	idle        int
	requeue     int
	sinkFails   int
	loopErrs    []error
}

func (o *recordingObserver) StateChanged(from, to State) {
	o.mu.Lock()
	o.transitions = append(o.transitions, [2]State{from, to})
	o.mu.Unlock()
}

func (o *recordingObserver) FrameDelivered(Frame) {
	o.mu.Lock()
	o.delivered++
	o.mu.Unlock()
}

func (o *recordingObserver) FrameDropped(error) {
	o.mu.Lock()
	o.dropped++
	o.mu.Unlock()
}

func (o *recordingObserver) IdleTimeout() {
	o.mu.Lock()
	o.idle++
	o.mu.Unlock()
}

func (o *recordingObserver) RequeueFailed(uint32, error) {
	o.mu.Lock()
	o.requeue++
	o.mu.Unlock()
}

func (o *recordingObserver) SinkFailed(string, error) {
	o.mu.Lock()
	o.sinkFails++
	o.mu.Unlock()
}

func (o *recordingObserver) LoopFailed(err error) {
	o.mu.Lock()
	o.loopErrs = append(o.loopErrs, err)
	o.mu.Unlock()
}

func (o *recordingObserver) counts() (delivered, dropped, idle, requeue, sinkFails int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.delivered, o.dropped, o.idle, o.requeue, o.sinkFails
}

// collectSink copies every delivered frame.
type collectSink struct {
	mu           sync.Mutex
	frames       []Frame
	err          error
	unregistered int
}

func (s *collectSink) Deliver(f Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f.Data = append([]byte(nil), f.Data...)
	s.frames = append(s.frames, f)
	return s.err
}

func (s *collectSink) Unregister() {
	s.mu.Lock()
	s.unregistered++
	s.mu.Unlock()
}

func (s *collectSink) received() []Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Frame(nil), s.frames...)
}

func (s *collectSink) unregisterCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unregistered
}

// fakeDecoder produces a constant I420 frame and fails on inputs that
// start with "bad".
type fakeDecoder struct {
	out    []byte
	closed bool
}

func (d *fakeDecoder) Convert(src []byte) ([]byte, error) {
	if len(src) >= 3 && string(src[:3]) == "bad" {
		return nil, errors.New("corrupt frame")
	}
	d.out[0] = src[0]
	return d.out, nil
}

func (d *fakeDecoder) Layout() decoder.Layout { return decoder.LayoutI420 }

func (d *fakeDecoder) Close() error {
	d.closed = true
	return nil
}

type harness struct {
	cam      *Camera
	dev      *fakeDevice
	observer *recordingObserver
	opens    int
	decoders []*fakeDecoder
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{dev: newFakeDevice(), observer: &recordingObserver{}}
	base := []Option{
		WithLogger(testLogger()),
		WithObserver(h.observer),
		WithWaitTimeout(20 * time.Millisecond),
		WithPathCheck(func(string) error { return nil }),
		WithOpener(func(string) (Device, error) {
			h.opens++
			return h.dev, nil
		}),
		WithDecoderFactory(func(w, hgt int) (decoder.Decoder, error) {
			d := &fakeDecoder{out: make([]byte, w*hgt*3/2)}
			h.decoders = append(h.decoders, d)
			return d, nil
		}),
	}
	h.cam = New(append(base, opts...)...)
	t.Cleanup(h.cam.Destroy)
	return h
}

// advance drives the harness camera to state.
func (h *harness) advance(t *testing.T, state State) {
	t.Helper()
	if state >= StateOpened {
		if err := h.cam.ConnectByPath("/dev/video0"); err != nil {
			t.Fatalf("ConnectByPath: %v", err)
		}
	}
	if state >= StateConfigured {
		if err := h.cam.Configure(640, 480, FormatYUYV); err != nil {
			t.Fatalf("Configure: %v", err)
		}
	}
	if state >= StateRunning {
		if err := h.cam.Start(); err != nil {
			t.Fatalf("Start: %v", err)
		}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
