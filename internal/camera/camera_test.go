package camera

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/smazurov/camnode/internal/decoder"
	"github.com/smazurov/camnode/pkg/linuxav/v4l2"
)

func yuyvFrame(size int, tag byte) fakeFrame {
	data := make([]byte, size)
	for i := range data {
		data[i] = tag
	}
	return fakeFrame{data: data}
}

// Scenario A: YUYV capture end to end at 1280x720 with both sinks.
func TestScenarioYUYVCapture(t *testing.T) {
	const frameBytes = 1280 * 720 * 2

	h := newHarness(t)
	h.dev.bufLen = 2 << 20
	cam := h.cam

	if err := cam.ConnectByPath("/dev/video0"); err != nil {
		t.Fatalf("ConnectByPath: %v", err)
	}
	if cam.State() != StateOpened {
		t.Fatalf("state = %v, want opened", cam.State())
	}
	if cam.Node() != "/dev/video0" {
		t.Errorf("Node() = %q", cam.Node())
	}

	if err := cam.Configure(1280, 720, FormatYUYV); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if cam.State() != StateConfigured {
		t.Fatalf("state = %v, want configured", cam.State())
	}
	if got := cam.Format().PixelBytes; got != frameBytes {
		t.Fatalf("PixelBytes = %d, want %d", got, frameBytes)
	}

	render := &collectSink{}
	callback := &collectSink{}
	if err := cam.SetRenderSink(render); err != nil {
		t.Fatalf("SetRenderSink: %v", err)
	}
	if err := cam.SetFrameCallback(callback); err != nil {
		t.Fatalf("SetFrameCallback: %v", err)
	}
	if err := cam.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	h.dev.push(yuyvFrame(frameBytes, 1))
	waitFor(t, "first frame", func() bool {
		return len(render.received()) == 1 && len(callback.received()) == 1
	})
	waitFor(t, "slot requeued", func() bool { return h.dev.stats().queued == BufferCount })

	h.dev.push(yuyvFrame(frameBytes, 2), yuyvFrame(frameBytes, 3))
	waitFor(t, "three frames", func() bool {
		return len(render.received()) == 3 && len(callback.received()) == 3
	})
	waitFor(t, "all slots requeued", func() bool { return h.dev.stats().queued == BufferCount })

	for name, sink := range map[string]*collectSink{"render": render, "callback": callback} {
		for i, f := range sink.received() {
			if len(f.Data) != frameBytes {
				t.Errorf("%s frame %d: %d bytes, want %d", name, i, len(f.Data), frameBytes)
				continue
			}
			if f.Data[0] != byte(i+1) || f.Data[len(f.Data)-1] != byte(i+1) {
				t.Errorf("%s frame %d: content tag %d", name, i, f.Data[0])
			}
			if f.Width != 1280 || f.Height != 720 || f.Layout != decoder.LayoutYUYV {
				t.Errorf("%s frame %d: %dx%d %v", name, i, f.Width, f.Height, f.Layout)
			}
			if f.Sequence != uint64(i+1) {
				t.Errorf("%s frame %d: sequence %d", name, i, f.Sequence)
			}
		}
	}

	if err := cam.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if cam.State() != StateConfigured {
		t.Fatalf("state after stop = %v", cam.State())
	}
	if err := cam.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if cam.State() != StateCreated {
		t.Fatalf("state after close = %v", cam.State())
	}
	if cam.Node() != "" {
		t.Errorf("Node() after close = %q", cam.Node())
	}

	st := h.dev.stats()
	if st.closed != 1 {
		t.Errorf("device closed %d times, want 1", st.closed)
	}
	if st.dequeues != 3 {
		t.Errorf("dequeues = %d, want 3", st.dequeues)
	}
	if st.lastFormat != [3]uint32{1280, 720, v4l2.PixFmtYUYV} {
		t.Errorf("S_FMT request = %v", st.lastFormat)
	}
	if st.lastFPS != FrameRate {
		t.Errorf("frame rate = %d, want %d", st.lastFPS, FrameRate)
	}
	if render.unregisterCount() != 1 || callback.unregisterCount() != 1 {
		t.Errorf("unregistered render=%d callback=%d, want 1 each", render.unregisterCount(), callback.unregisterCount())
	}
}

// Scenario B: MJPEG with one corrupt frame in the middle.
func TestScenarioMJPEGCorruptFrame(t *testing.T) {
	h := newHarness(t)
	cam := h.cam

	if err := cam.ConnectByPath("/dev/video0"); err != nil {
		t.Fatal(err)
	}
	if err := cam.Configure(1280, 720, FormatMJPEG); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if got, want := cam.Format().PixelBytes, 1280*720*3/2; got != want {
		t.Fatalf("PixelBytes = %d, want %d", got, want)
	}

	sink := &collectSink{}
	if err := cam.SetFrameCallback(sink); err != nil {
		t.Fatal(err)
	}
	if err := cam.Start(); err != nil {
		t.Fatal(err)
	}

	h.dev.push(
		fakeFrame{data: []byte("\xff\xd8valid-1")},
		fakeFrame{data: []byte("bad frame")},
		fakeFrame{data: []byte("\xff\xd8valid-2")},
	)
	waitFor(t, "three dequeues", func() bool { return cam.Frames() == 3 })

	got := sink.received()
	if len(got) != 2 {
		t.Fatalf("delivered %d frames, want 2", len(got))
	}
	for _, f := range got {
		if len(f.Data) != 1280*720*3/2 {
			t.Errorf("frame size %d", len(f.Data))
		}
	}
	if cam.State() != StateRunning {
		t.Errorf("state = %v, want running", cam.State())
	}
	if _, dropped, _, _, _ := h.observer.counts(); dropped != 1 {
		t.Errorf("dropped = %d, want 1", dropped)
	}

	cam.Destroy()
	if !h.decoders[0].closed {
		t.Error("decoder not closed by Destroy")
	}
}

// Scenario C: an invalid path never reaches the opener.
func TestScenarioInvalidPath(t *testing.T) {
	paths := []string{"/dev/foo", "/dev/video", "/dev/video0/../video1", "video0", "/dev/videoX", ""}
	for _, p := range paths {
		t.Run(fmt.Sprintf("%q", p), func(t *testing.T) {
			h := newHarness(t)
			err := h.cam.ConnectByPath(p)
			if !errors.Is(err, ErrInvalidPath) {
				t.Fatalf("error = %v, want ErrInvalidPath", err)
			}
			if h.opens != 0 {
				t.Errorf("opener called %d times", h.opens)
			}
			if h.cam.State() != StateCreated {
				t.Errorf("state = %v", h.cam.State())
			}
		})
	}
}

func TestConnectMissingPath(t *testing.T) {
	h := newHarness(t, WithPathCheck(func(p string) error {
		return &os.PathError{Op: "stat", Path: p, Err: os.ErrNotExist}
	}))
	if err := h.cam.ConnectByPath("/dev/video9"); !errors.Is(err, ErrInvalidPath) {
		t.Fatalf("error = %v, want ErrInvalidPath", err)
	}
	if h.opens != 0 {
		t.Error("opener called for a missing path")
	}
}

func TestConnectOpenErrors(t *testing.T) {
	tests := []struct {
		name    string
		openErr error
		want    error
	}{
		{name: "permission denied", openErr: &os.PathError{Op: "open", Path: "/dev/video0", Err: syscall.EACCES}, want: ErrDeviceAccess},
		{name: "not permitted", openErr: syscall.EPERM, want: ErrDeviceAccess},
		{name: "busy", openErr: &os.PathError{Op: "open", Path: "/dev/video0", Err: syscall.EBUSY}, want: ErrDeviceUnavailable},
		{name: "querycap failed", openErr: fmt.Errorf("VIDIOC_QUERYCAP: %w", syscall.ENOTTY), want: ErrDeviceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, WithOpener(func(string) (Device, error) { return nil, tt.openErr }))
			err := h.cam.ConnectByPath("/dev/video0")
			if !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want %v", err, tt.want)
			}
			if !errors.Is(err, tt.openErr) {
				t.Errorf("cause not preserved: %v", err)
			}
			if h.cam.State() != StateCreated {
				t.Errorf("state = %v", h.cam.State())
			}
		})
	}
}

func TestConnectCapabilityUnsupported(t *testing.T) {
	h := newHarness(t)
	h.dev.cap = v4l2.Capability{Capabilities: v4l2.CapDeviceCaps | v4l2.CapVideoCapture, DeviceCaps: v4l2.CapStreaming}

	err := h.cam.ConnectByPath("/dev/video0")
	if !errors.Is(err, ErrCapabilityUnsupported) {
		t.Fatalf("error = %v, want ErrCapabilityUnsupported", err)
	}
	if h.dev.stats().closed != 1 {
		t.Error("device not closed after capability rejection")
	}
	if h.cam.State() != StateCreated {
		t.Errorf("state = %v", h.cam.State())
	}
}

func TestConnectMultiPlanar(t *testing.T) {
	h := newHarness(t)
	h.dev.cap = v4l2.Capability{Capabilities: v4l2.CapVideoCaptureMplane | v4l2.CapStreaming}

	if err := h.cam.ConnectByPath("/dev/video0"); err != nil {
		t.Fatal(err)
	}
	if api := h.cam.Status().BufferAPI; api != v4l2.MultiPlanar {
		t.Errorf("BufferAPI = %v, want multi-planar", api)
	}
}

func TestConnectByID(t *testing.T) {
	t.Run("match", func(t *testing.T) {
		var gotVendor, gotProduct uint16
		h := newHarness(t, WithLocator(func(v, p uint16) (string, error) {
			gotVendor, gotProduct = v, p
			return "/dev/video4", nil
		}))
		if err := h.cam.ConnectByID(0x046d, 0x0825); err != nil {
			t.Fatalf("ConnectByID: %v", err)
		}
		if gotVendor != 0x046d || gotProduct != 0x0825 {
			t.Errorf("locator got %04x:%04x", gotVendor, gotProduct)
		}
		if h.cam.DevicePath() != "/dev/video4" {
			t.Errorf("path = %q", h.cam.DevicePath())
		}
	})

	t.Run("no match", func(t *testing.T) {
		h := newHarness(t, WithLocator(func(uint16, uint16) (string, error) {
			return "", v4l2.ErrNoMatchingDevice
		}))
		err := h.cam.ConnectByID(0xdead, 0xbeef)
		if !errors.Is(err, ErrNoMatchingDevice) || !errors.Is(err, ErrDeviceUnavailable) {
			t.Fatalf("error = %v", err)
		}
		if !errors.Is(err, v4l2.ErrNoMatchingDevice) {
			t.Errorf("cause not preserved: %v", err)
		}
		if h.opens != 0 {
			t.Error("opener called without a match")
		}
	})

	t.Run("locator returns non video path", func(t *testing.T) {
		h := newHarness(t, WithLocator(func(uint16, uint16) (string, error) { return "/dev/media0", nil }))
		if err := h.cam.ConnectByID(1, 2); !errors.Is(err, ErrInvalidPath) {
			t.Fatalf("error = %v, want ErrInvalidPath", err)
		}
	})
}

func TestWrongStatePreconditions(t *testing.T) {
	ops := map[string]func(c *Camera) error{
		"connect":        func(c *Camera) error { return c.ConnectByPath("/dev/video0") },
		"connect by id":  func(c *Camera) error { return c.ConnectByID(1, 2) },
		"configure":      func(c *Camera) error { return c.Configure(640, 480, FormatYUYV) },
		"start":          func(c *Camera) error { return c.Start() },
		"stop":           func(c *Camera) error { return c.Stop() },
		"close":          func(c *Camera) error { return c.Close() },
		"frame callback": func(c *Camera) error { return c.SetFrameCallback(&collectSink{}) },
		"render sink":    func(c *Camera) error { return c.SetRenderSink(&collectSink{}) },
		"auto exposure":  func(c *Camera) error { return c.SetAutoExposure(true) },
		"exposure":       func(c *Camera) error { return c.SetExposure(100) },
		"sizes":          func(c *Camera) error { _, err := c.SupportedSizes(); return err },
	}

	tests := []struct {
		state State
		ops   []string
	}{
		{StateCreated, []string{"configure", "start", "stop", "close", "frame callback", "render sink", "auto exposure", "exposure", "sizes"}},
		{StateOpened, []string{"connect", "connect by id", "start", "stop", "close", "frame callback", "render sink"}},
		{StateConfigured, []string{"connect", "connect by id", "configure", "stop"}},
		{StateRunning, []string{"connect", "connect by id", "configure", "start", "close", "frame callback", "render sink"}},
	}

	for _, tt := range tests {
		for _, name := range tt.ops {
			t.Run(tt.state.String()+"/"+name, func(t *testing.T) {
				h := newHarness(t)
				h.advance(t, tt.state)
				before := h.dev.stats()

				err := ops[name](h.cam)
				if !errors.Is(err, ErrWrongState) {
					t.Fatalf("error = %v, want ErrWrongState", err)
				}
				if h.cam.State() != tt.state {
					t.Errorf("state changed to %v", h.cam.State())
				}
				after := h.dev.stats()
				if after.closed != before.closed || after.streamOns != before.streamOns || len(after.requests) != len(before.requests) {
					t.Error("rejected operation touched the device")
				}
			})
		}
	}
}

func TestDestroyFromEveryState(t *testing.T) {
	for _, state := range []State{StateCreated, StateOpened, StateConfigured, StateRunning} {
		t.Run(state.String(), func(t *testing.T) {
			h := newHarness(t)
			h.advance(t, state)
			cb := &collectSink{}
			if state == StateConfigured {
				if err := h.cam.SetFrameCallback(cb); err != nil {
					t.Fatal(err)
				}
			}

			h.cam.Destroy()
			h.cam.Destroy()

			if h.cam.State() != StateCreated {
				t.Fatalf("state = %v, want created", h.cam.State())
			}
			st := h.dev.stats()
			wantClosed := 0
			if state >= StateOpened {
				wantClosed = 1
			}
			if st.closed != wantClosed {
				t.Errorf("device closed %d times, want %d", st.closed, wantClosed)
			}
			if h.dev.liveMaps() != 0 {
				t.Errorf("%d buffers still mapped", h.dev.liveMaps())
			}
			if st.streaming {
				t.Error("still streaming")
			}
			if state == StateConfigured && cb.unregisterCount() != 1 {
				t.Errorf("callback unregistered %d times", cb.unregisterCount())
			}

			// The session can be reused after Destroy.
			h.advance(t, StateOpened)
		})
	}
}

func TestBufferPoolInvariant(t *testing.T) {
	h := newHarness(t)
	h.advance(t, StateRunning)

	if got := h.dev.liveMaps(); got != BufferCount {
		t.Fatalf("mapped = %d, want %d", got, BufferCount)
	}
	if got := h.dev.stats().queued; got != BufferCount {
		t.Fatalf("queued = %d, want %d", got, BufferCount)
	}
	if got := h.dev.stats().requests; len(got) != 1 || got[0] != BufferCount {
		t.Fatalf("REQBUFS calls = %v", got)
	}

	if err := h.cam.Stop(); err != nil {
		t.Fatal(err)
	}
	st := h.dev.stats()
	if h.dev.liveMaps() != 0 || st.unmaps != BufferCount {
		t.Errorf("after stop: live=%d unmaps=%d", h.dev.liveMaps(), st.unmaps)
	}
	if last := st.requests[len(st.requests)-1]; last != 0 {
		t.Errorf("last REQBUFS = %d, want 0", last)
	}

	// A second session maps a fresh pool.
	if err := h.cam.Start(); err != nil {
		t.Fatal(err)
	}
	if got := h.dev.liveMaps(); got != BufferCount {
		t.Errorf("restart mapped = %d", got)
	}
}

func TestBufferPoolPrepare(t *testing.T) {
	dev := newFakeDevice()
	pool := newBufferPool(dev, testLogger())
	if err := pool.prepare(); err != nil {
		t.Fatal(err)
	}
	for i, s := range pool.slots {
		if s.data == nil || s.owner != ownerKernel {
			t.Errorf("slot %d: data=%v owner=%d", i, s.data != nil, s.owner)
		}
	}

	pool.release()
	pool.release()
	if pool.count(ownerUnmapped) != BufferCount {
		t.Errorf("unmapped slots = %d", pool.count(ownerUnmapped))
	}
	if st := dev.stats(); st.unmaps != BufferCount || len(st.requests) != 2 {
		t.Errorf("unmaps=%d requests=%v", st.unmaps, st.requests)
	}
}

func TestStartRollback(t *testing.T) {
	tests := []struct {
		name  string
		setup func(d *fakeDevice)
		want  error
	}{
		{name: "reqbufs fails", setup: func(d *fakeDevice) { d.reqErr = errFake }, want: ErrBufferAllocation},
		{name: "too few buffers", setup: func(d *fakeDevice) { d.grant = 2 }, want: ErrBufferAllocation},
		{name: "querybuf fails", setup: func(d *fakeDevice) { d.queryFailAt = 1 }, want: ErrBufferAllocation},
		{name: "mmap fails", setup: func(d *fakeDevice) { d.mapFailAt = 2 }, want: ErrBufferAllocation},
		{name: "streamon fails", setup: func(d *fakeDevice) { d.streamOnErr = errFake }, want: ErrStreamControl},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.advance(t, StateConfigured)
			h.dev.set(tt.setup)

			err := h.cam.Start()
			if !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want %v", err, tt.want)
			}
			if h.cam.State() != StateConfigured {
				t.Errorf("state = %v", h.cam.State())
			}
			if h.dev.liveMaps() != 0 {
				t.Errorf("%d buffers leaked", h.dev.liveMaps())
			}
			st := h.dev.stats()
			if tt.name != "reqbufs fails" {
				if last := st.requests[len(st.requests)-1]; last != 0 {
					t.Errorf("reservation not dropped: %v", st.requests)
				}
			}
		})
	}
}

func TestFrameOrdering(t *testing.T) {
	const n = 25
	h := newHarness(t)
	h.advance(t, StateConfigured)

	render := &collectSink{}
	callback := &collectSink{}
	if err := h.cam.SetRenderSink(render); err != nil {
		t.Fatal(err)
	}
	if err := h.cam.SetFrameCallback(callback); err != nil {
		t.Fatal(err)
	}
	if err := h.cam.Start(); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < n; i++ {
		h.dev.push(fakeFrame{data: []byte{byte(i), 0xAA}})
	}
	waitFor(t, "all frames", func() bool { return len(callback.received()) == n })

	for _, sink := range []*collectSink{render, callback} {
		frames := sink.received()
		if len(frames) != n {
			t.Fatalf("received %d frames, want %d", len(frames), n)
		}
		for i, f := range frames {
			if f.Data[0] != byte(i) {
				t.Fatalf("frame %d carries tag %d", i, f.Data[0])
			}
			if f.Sequence != uint64(i+1) {
				t.Errorf("frame %d sequence = %d", i, f.Sequence)
			}
			// short frames are zero padded to the full size
			if len(f.Data) != 614400 || f.Data[1] != 0xAA || f.Data[2] != 0 {
				t.Errorf("frame %d not padded correctly", i)
			}
		}
	}
}

func TestIdleTimeoutsKeepRunning(t *testing.T) {
	h := newHarness(t)
	h.advance(t, StateRunning)

	waitFor(t, "several idle waits", func() bool { return h.dev.stats().waits >= 5 })

	if got := h.dev.stats().dequeues; got != 0 {
		t.Errorf("dequeues = %d, want 0", got)
	}
	if h.cam.State() != StateRunning {
		t.Errorf("state = %v", h.cam.State())
	}
	if err := h.cam.LoopErr(); err != nil {
		t.Errorf("LoopErr = %v", err)
	}
	if _, _, idle, _, _ := h.observer.counts(); idle < 4 {
		t.Errorf("idle notifications = %d", idle)
	}
}

func TestWaitErrorsKeepRunning(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		minWaits int
		maxWaits int
	}{
		{name: "interrupted wait retries at once", err: syscall.EINTR, minWaits: 10, maxWaits: math.MaxInt},
		{name: "failed wait backs off", err: syscall.EBADF, minWaits: 1, maxWaits: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.advance(t, StateRunning)
			before := h.dev.stats().waits
			h.dev.set(func(d *fakeDevice) { d.waitErr = tt.err })

			time.Sleep(50 * time.Millisecond)
			waits := h.dev.stats().waits - before
			if waits < tt.minWaits || waits > tt.maxWaits {
				t.Errorf("waits in 50ms = %d, want %d..%d", waits, tt.minWaits, tt.maxWaits)
			}
			if h.cam.State() != StateRunning || h.cam.LoopErr() != nil {
				t.Errorf("state=%v loopErr=%v", h.cam.State(), h.cam.LoopErr())
			}

			h.dev.set(func(d *fakeDevice) { d.waitErr = nil })
			h.dev.push(fakeFrame{data: []byte{1}})
			waitFor(t, "recovery", func() bool { return h.cam.Frames() == 1 })
		})
	}
}

func TestDequeueFaultEndsLoop(t *testing.T) {
	h := newHarness(t)
	h.advance(t, StateRunning)

	h.dev.set(func(d *fakeDevice) { d.dqbufErr = syscall.ENODEV })
	waitFor(t, "loop fault", func() bool { return h.cam.LoopErr() != nil })

	if !errors.Is(h.cam.LoopErr(), ErrIOFault) || !errors.Is(h.cam.LoopErr(), syscall.ENODEV) {
		t.Errorf("LoopErr = %v", h.cam.LoopErr())
	}
	if h.cam.State() != StateRunning {
		t.Errorf("state = %v, want running until stop", h.cam.State())
	}

	if err := h.cam.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if h.cam.State() != StateConfigured {
		t.Errorf("state = %v", h.cam.State())
	}
}

func TestRequeueFailureContinues(t *testing.T) {
	h := newHarness(t)
	h.advance(t, StateConfigured)
	sink := &collectSink{}
	if err := h.cam.SetFrameCallback(sink); err != nil {
		t.Fatal(err)
	}
	if err := h.cam.Start(); err != nil {
		t.Fatal(err)
	}

	h.dev.set(func(d *fakeDevice) { d.qbufErr = errFake })
	h.dev.push(fakeFrame{data: []byte{1}}, fakeFrame{data: []byte{2}})
	waitFor(t, "two frames", func() bool { return len(sink.received()) == 2 })

	if _, _, _, requeue, _ := h.observer.counts(); requeue != 2 {
		t.Errorf("requeue failures = %d, want 2", requeue)
	}
	if h.cam.State() != StateRunning || h.cam.LoopErr() != nil {
		t.Errorf("state=%v loopErr=%v", h.cam.State(), h.cam.LoopErr())
	}
}

func TestSinkErrorsAreContained(t *testing.T) {
	h := newHarness(t)
	h.advance(t, StateConfigured)
	failing := &collectSink{err: errors.New("consumer gone")}
	healthy := &collectSink{}
	if err := h.cam.SetRenderSink(failing); err != nil {
		t.Fatal(err)
	}
	if err := h.cam.SetFrameCallback(healthy); err != nil {
		t.Fatal(err)
	}
	if err := h.cam.Start(); err != nil {
		t.Fatal(err)
	}

	h.dev.push(fakeFrame{data: []byte{7}})
	waitFor(t, "callback delivery", func() bool { return len(healthy.received()) == 1 })
	if _, _, _, _, sinkFails := h.observer.counts(); sinkFails != 1 {
		t.Errorf("sink failures = %d", sinkFails)
	}
}

func TestBytesUsedClamped(t *testing.T) {
	h := newHarness(t)
	h.dev.bufLen = 1000
	h.advance(t, StateConfigured)
	sink := &collectSink{}
	if err := h.cam.SetFrameCallback(sink); err != nil {
		t.Fatal(err)
	}
	if err := h.cam.Start(); err != nil {
		t.Fatal(err)
	}

	h.dev.push(fakeFrame{data: []byte{9, 9, 9}, bytesUsed: 1 << 30})
	waitFor(t, "frame", func() bool { return len(sink.received()) == 1 })

	f := sink.received()[0]
	if f.Data[999] != 0 || f.Data[0] != 9 || len(f.Data) != 614400 {
		t.Errorf("unexpected clamped frame")
	}
}

func TestStopJoinsLoopBeforeClose(t *testing.T) {
	h := newHarness(t)
	h.advance(t, StateRunning)
	waitFor(t, "loop running", func() bool { return h.dev.stats().waits >= 1 })

	h.cam.mu.Lock()
	done := h.cam.done
	h.cam.mu.Unlock()

	if err := h.cam.Stop(); err != nil {
		t.Fatal(err)
	}
	select {
	case <-done:
	default:
		t.Fatal("Stop returned before the capture loop exited")
	}

	waits := h.dev.stats().waits
	if err := h.cam.Close(); err != nil {
		t.Fatal(err)
	}
	if got := h.dev.stats().waits; got != waits {
		t.Errorf("device waited %d more times after Stop", got-waits)
	}
	if h.dev.stats().streamOffs != 1 {
		t.Errorf("streamOffs = %d", h.dev.stats().streamOffs)
	}
}

func TestStopStreamOffFailure(t *testing.T) {
	h := newHarness(t)
	h.advance(t, StateRunning)
	h.dev.set(func(d *fakeDevice) { d.streamOffErr = errFake })

	err := h.cam.Stop()
	if !errors.Is(err, ErrStreamControl) {
		t.Fatalf("error = %v, want ErrStreamControl", err)
	}
	if h.cam.State() != StateConfigured {
		t.Errorf("state = %v", h.cam.State())
	}
	if h.dev.liveMaps() != 0 {
		t.Error("buffers not released")
	}
}

func TestConfigure(t *testing.T) {
	tests := []struct {
		name       string
		width      int
		height     int
		format     FrameFormat
		setup      func(h *harness)
		wantErr    error
		wantBytes  int
		wantLayout decoder.Layout
	}{
		{name: "yuyv vga", width: 640, height: 480, format: FormatYUYV, wantBytes: 614400, wantLayout: decoder.LayoutYUYV},
		{name: "mjpeg 720p i420", width: 1280, height: 720, format: FormatMJPEG, wantBytes: 1382400, wantLayout: decoder.LayoutI420},
		{
			name: "mjpeg 720p i422", width: 1280, height: 720, format: FormatMJPEG,
			setup: func(h *harness) {
				h.cam.newDecoder = func(w, hgt int) (decoder.Decoder, error) { return decoder.NewJPEG(w, hgt, decoder.LayoutI422) }
			},
			wantBytes: 1843200, wantLayout: decoder.LayoutI422,
		},
		{name: "driver refuses", width: 640, height: 480, format: FormatYUYV, setup: func(h *harness) { h.dev.formatErr = syscall.EINVAL }, wantErr: ErrFormatRejected},
		{name: "driver substitutes", width: 640, height: 480, format: FormatMJPEG, setup: func(h *harness) { h.dev.substitute = v4l2.PixFmtYUYV }, wantErr: ErrFormatRejected},
		{name: "zero size", width: 0, height: 480, format: FormatYUYV, wantErr: ErrFormatRejected},
		{name: "unknown format", width: 640, height: 480, format: FrameFormat(9), wantErr: ErrFormatRejected},
		{
			name: "decoder init fails", width: 640, height: 480, format: FormatMJPEG,
			setup: func(h *harness) {
				h.cam.newDecoder = func(int, int) (decoder.Decoder, error) { return nil, errors.New("no decoder") }
			},
			wantErr: ErrDecoderInitFailed,
		},
		{name: "frame rate refusal is not fatal", width: 640, height: 480, format: FormatYUYV, setup: func(h *harness) { h.dev.frameRateErr = syscall.EINVAL }, wantBytes: 614400, wantLayout: decoder.LayoutYUYV},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.advance(t, StateOpened)
			if tt.setup != nil {
				tt.setup(h)
			}

			err := h.cam.Configure(tt.width, tt.height, tt.format)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				if h.cam.State() != StateOpened {
					t.Errorf("state = %v", h.cam.State())
				}
				if h.cam.Format() != (StreamFormat{}) || h.cam.scratch != nil || h.cam.dec != nil {
					t.Error("failed configure retained state")
				}
				return
			}
			if err != nil {
				t.Fatalf("Configure: %v", err)
			}
			f := h.cam.Format()
			if f.PixelBytes != tt.wantBytes || f.Layout != tt.wantLayout {
				t.Errorf("format = %+v", f)
			}
			if w, hgt := h.cam.ActualFrameSize(); w != tt.width || hgt != tt.height {
				t.Errorf("ActualFrameSize = %dx%d", w, hgt)
			}
		})
	}
}

func TestSinkReplacement(t *testing.T) {
	h := newHarness(t)
	h.advance(t, StateConfigured)

	first, second := &collectSink{}, &collectSink{}
	if err := h.cam.SetFrameCallback(first); err != nil {
		t.Fatal(err)
	}
	if err := h.cam.SetFrameCallback(second); err != nil {
		t.Fatal(err)
	}
	if first.unregisterCount() != 1 || second.unregisterCount() != 0 {
		t.Fatalf("unregister counts: first=%d second=%d", first.unregisterCount(), second.unregisterCount())
	}
	if err := h.cam.SetFrameCallback(nil); err != nil {
		t.Fatal(err)
	}
	if second.unregisterCount() != 1 {
		t.Errorf("nil registration did not unregister")
	}

	if err := h.cam.Start(); err != nil {
		t.Fatal(err)
	}
	h.dev.push(fakeFrame{data: []byte{1}})
	waitFor(t, "dequeue", func() bool { return h.cam.Frames() == 1 })
	if len(first.received())+len(second.received()) != 0 {
		t.Error("unregistered sinks received frames")
	}
}

func TestSinkFunc(t *testing.T) {
	h := newHarness(t)
	h.advance(t, StateConfigured)

	got := make(chan uint64, 1)
	if err := h.cam.SetRenderSink(SinkFunc(func(f Frame) error {
		got <- f.Sequence
		return nil
	})); err != nil {
		t.Fatal(err)
	}
	if err := h.cam.Start(); err != nil {
		t.Fatal(err)
	}
	h.dev.push(fakeFrame{data: []byte{1}})
	waitFor(t, "render delivery", func() bool { return len(got) == 1 })
}

func TestExposureControls(t *testing.T) {
	for _, state := range []State{StateOpened, StateConfigured, StateRunning} {
		t.Run(state.String(), func(t *testing.T) {
			h := newHarness(t)
			h.advance(t, state)

			if err := h.cam.SetAutoExposure(false); err != nil {
				t.Fatal(err)
			}
			if err := h.cam.SetExposure(250); err != nil {
				t.Fatal(err)
			}
			c := h.dev.stats().controls
			if c[v4l2.CIDExposureAuto] != v4l2.ExposureManual || c[v4l2.CIDExposureAbsolute] != 250 {
				t.Errorf("controls = %v", c)
			}
			if got, err := h.cam.Exposure(); err != nil || got != (ExposureSettings{Auto: false, Level: 250}) {
				t.Errorf("Exposure() = %+v, %v", got, err)
			}

			if err := h.cam.SetAutoExposure(true); err != nil {
				t.Fatal(err)
			}
			if got := h.dev.stats().controls[v4l2.CIDExposureAuto]; got != v4l2.ExposureAuto {
				t.Errorf("auto exposure = %d", got)
			}
			if got, err := h.cam.Exposure(); err != nil || !got.Auto {
				t.Errorf("Exposure() = %+v, %v, want auto", got, err)
			}
		})
	}

	t.Run("driver rejects", func(t *testing.T) {
		h := newHarness(t)
		h.advance(t, StateOpened)
		h.dev.controlErr = syscall.ERANGE
		if err := h.cam.SetExposure(-5); !errors.Is(err, ErrControlFailed) {
			t.Errorf("error = %v, want ErrControlFailed", err)
		}
		if _, err := h.cam.Exposure(); !errors.Is(err, ErrControlFailed) {
			t.Errorf("Exposure() error = %v, want ErrControlFailed", err)
		}
	})

	t.Run("read before connect", func(t *testing.T) {
		h := newHarness(t)
		if _, err := h.cam.Exposure(); !errors.Is(err, ErrWrongState) {
			t.Errorf("Exposure() error = %v, want ErrWrongState", err)
		}
	})
}

func TestFrameRates(t *testing.T) {
	h := newHarness(t)
	if _, err := h.cam.FrameRates(FormatMJPEG, 640, 480); !errors.Is(err, ErrWrongState) {
		t.Errorf("before connect: error = %v, want ErrWrongState", err)
	}

	h.advance(t, StateOpened)
	h.dev.framerates = map[uint32][]v4l2.Framerate{
		v4l2.PixFmtMJPEG: {{Numerator: 1, Denominator: 30}, {Numerator: 1, Denominator: 15}, {Numerator: 0, Denominator: 0}},
	}

	tests := []struct {
		name   string
		format FrameFormat
		want   []float64
	}{
		{name: "discrete intervals", format: FormatMJPEG, want: []float64{30, 15}},
		{name: "format without intervals", format: FormatYUYV, want: []float64{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := h.cam.FrameRates(tt.format, 640, 480)
			if err != nil {
				t.Fatal(err)
			}
			if fmt.Sprint(got) != fmt.Sprint(tt.want) {
				t.Errorf("FrameRates() = %v, want %v", got, tt.want)
			}
		})
	}

	h.dev.rateErr = syscall.EIO
	if _, err := h.cam.FrameRates(FormatMJPEG, 640, 480); !errors.Is(err, ErrDeviceUnavailable) {
		t.Errorf("driver failure: error = %v, want ErrDeviceUnavailable", err)
	}
}

func TestSupportedSizes(t *testing.T) {
	tests := []struct {
		name    string
		formats []v4l2.FormatInfo
		sizes   map[uint32][]v4l2.FrameSize
		want    []v4l2.Resolution
	}{
		{
			name: "discrete across formats deduplicated",
			formats: []v4l2.FormatInfo{
				{PixelFormat: v4l2.PixFmtMJPEG, Compressed: true},
				{PixelFormat: v4l2.PixFmtYUYV},
			},
			sizes: map[uint32][]v4l2.FrameSize{
				v4l2.PixFmtMJPEG: {
					{Discrete: true, Min: v4l2.Resolution{Width: 1280, Height: 720}, Max: v4l2.Resolution{Width: 1280, Height: 720}},
					{Discrete: true, Min: v4l2.Resolution{Width: 640, Height: 480}, Max: v4l2.Resolution{Width: 640, Height: 480}},
				},
				v4l2.PixFmtYUYV: {
					{Discrete: true, Min: v4l2.Resolution{Width: 640, Height: 480}, Max: v4l2.Resolution{Width: 640, Height: 480}},
					{Discrete: true, Min: v4l2.Resolution{Width: 320, Height: 240}, Max: v4l2.Resolution{Width: 320, Height: 240}},
				},
			},
			want: []v4l2.Resolution{{Width: 1280, Height: 720}, {Width: 640, Height: 480}, {Width: 320, Height: 240}},
		},
		{
			name:    "stepwise range",
			formats: []v4l2.FormatInfo{{PixelFormat: v4l2.PixFmtYUYV}},
			sizes: map[uint32][]v4l2.FrameSize{
				v4l2.PixFmtYUYV: {{Min: v4l2.Resolution{Width: 48, Height: 32}, Max: v4l2.Resolution{Width: 1280, Height: 720}}},
			},
			want: []v4l2.Resolution{{Width: 1280, Height: 720}, {Width: 640, Height: 480}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.dev.formats = tt.formats
			h.dev.frameSizes = tt.sizes
			h.advance(t, StateOpened)

			got, err := h.cam.SupportedSizes()
			if err != nil {
				t.Fatal(err)
			}
			if fmt.Sprint(got) != fmt.Sprint(tt.want) {
				t.Errorf("SupportedSizes() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFrameDump(t *testing.T) {
	t.Run("yuyv", func(t *testing.T) {
		dir := t.TempDir()
		h := newHarness(t)
		// A request made before the session exists carries into it.
		if err := h.cam.RequestFrameDump(dir); err != nil {
			t.Fatal(err)
		}
		h.advance(t, StateRunning)

		h.dev.push(yuyvFrame(614400, 5))
		path := filepath.Join(dir, "frame_640x480_yuyv_raw.raw")
		waitFor(t, "dump file", func() bool {
			fi, err := os.Stat(path)
			return err == nil && fi.Size() == 614400
		})

		h.dev.push(yuyvFrame(614400, 6))
		waitFor(t, "second frame", func() bool { return h.cam.Frames() == 2 })
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		if data[0] != 5 {
			t.Error("dump is one-shot but was overwritten")
		}
	})

	t.Run("mjpeg", func(t *testing.T) {
		dir := t.TempDir()
		h := newHarness(t)
		h.advance(t, StateOpened)
		if err := h.cam.Configure(320, 240, FormatMJPEG); err != nil {
			t.Fatal(err)
		}
		if err := h.cam.Start(); err != nil {
			t.Fatal(err)
		}
		if err := h.cam.RequestFrameDump(dir); err != nil {
			t.Fatal(err)
		}
		h.dev.push(fakeFrame{data: []byte("\xff\xd8jpeg")})

		decoded := filepath.Join(dir, "frame_320x240_yuv_decoded.raw")
		waitFor(t, "decoded dump", func() bool {
			fi, err := os.Stat(decoded)
			return err == nil && fi.Size() == 320*240*3/2
		})
		if _, err := os.Stat(filepath.Join(dir, "frame_320x240_mjpeg.raw")); err != nil {
			t.Errorf("raw dump missing: %v", err)
		}
	})

	t.Run("empty dir", func(t *testing.T) {
		h := newHarness(t)
		h.advance(t, StateRunning)
		if err := h.cam.RequestFrameDump(""); !errors.Is(err, ErrInvalidPath) {
			t.Errorf("error = %v, want ErrInvalidPath", err)
		}
	})

	for _, end := range []string{"destroy", "close"} {
		t.Run("discarded by "+end, func(t *testing.T) {
			dir := t.TempDir()
			h := newHarness(t)
			h.advance(t, StateConfigured)
			if err := h.cam.RequestFrameDump(dir); err != nil {
				t.Fatal(err)
			}
			if end == "destroy" {
				h.cam.Destroy()
			} else if err := h.cam.Close(); err != nil {
				t.Fatal(err)
			}

			h.advance(t, StateRunning)
			h.dev.push(yuyvFrame(614400, 7))
			waitFor(t, "frame handled", func() bool {
				return h.cam.Frames() == 1 && h.dev.stats().queued == BufferCount
			})
			entries, err := os.ReadDir(dir)
			if err != nil {
				t.Fatal(err)
			}
			if len(entries) != 0 {
				t.Errorf("stale dump request ran in the next session: %v", entries)
			}
		})
	}
}

func TestComputeStats(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want frameStats
	}{
		{name: "empty", data: nil, want: frameStats{}},
		{name: "all zero", data: []byte{0, 0, 0, 0}, want: frameStats{Min: 0, Max: 0, Mean: 0, ZeroRatio: 1}},
		{name: "mixed", data: []byte{0, 10, 20, 50}, want: frameStats{Min: 0, Max: 50, Mean: 20, ZeroRatio: 0.25}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := computeStats(tt.data); got != tt.want {
				t.Errorf("computeStats() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestStateTransitionsObserved(t *testing.T) {
	h := newHarness(t)
	h.advance(t, StateRunning)
	if err := h.cam.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := h.cam.Close(); err != nil {
		t.Fatal(err)
	}

	want := [][2]State{
		{StateCreated, StateOpened},
		{StateOpened, StateConfigured},
		{StateConfigured, StateRunning},
		{StateRunning, StateConfigured},
		{StateConfigured, StateCreated},
	}
	h.observer.mu.Lock()
	got := h.observer.transitions
	h.observer.mu.Unlock()
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("transitions = %v, want %v", got, want)
	}
}

func TestParseFrameFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    FrameFormat
		wantErr bool
	}{
		{in: "mjpeg", want: FormatMJPEG},
		{in: "MJPG", want: FormatMJPEG},
		{in: " yuyv ", want: FormatYUYV},
		{in: "h264", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFrameFormat(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v", err)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorMessages(t *testing.T) {
	err := newError(KindFormatRejected, "configure", syscall.EINVAL)
	if got := err.Error(); got != "camera configure: format rejected by driver: invalid argument" {
		t.Errorf("Error() = %q", got)
	}
	if got := ErrWrongState.Error(); got != "camera: operation not allowed in current state" {
		t.Errorf("sentinel Error() = %q", got)
	}
	if errors.Is(err, ErrWrongState) {
		t.Error("kinds must not cross-match")
	}
	var ce *Error
	if !errors.As(fmt.Errorf("wrapped: %w", err), &ce) || ce.Kind != KindFormatRejected {
		t.Error("errors.As failed through wrapping")
	}
}
