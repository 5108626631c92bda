package camera

import (
	"context"
	"errors"
	"syscall"
	"time"
)

// frameLogInterval throttles the per-frame debug log.
const frameLogInterval = 30

// waitErrorBackoff spaces out retries when the readiness wait fails with
// anything but EINTR.
const waitErrorBackoff = 100 * time.Millisecond

// Start maps the buffer pool, starts streaming and launches the capture
// goroutine.
func (c *Camera) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.require("start", StateConfigured); err != nil {
		return err
	}

	pool := newBufferPool(c.dev, c.logger)
	if err := pool.prepare(); err != nil {
		return newError(KindBufferAllocation, "start", err)
	}
	if err := c.dev.StreamOn(); err != nil {
		pool.release()
		return newError(KindStreamControl, "start", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	c.pool = pool
	c.cancel = cancel
	c.done = done
	c.loopErr.Store(nil)
	c.frames.Store(0)
	c.setState(StateRunning)

	go c.run(ctx, pool, done)

	c.logger.Info("Capture started", "path", c.path, "format", c.format.Format, "width", c.format.Width, "height", c.format.Height)
	return nil
}

// Stop ends capture, waits for the capture goroutine to exit, stops
// streaming and releases the buffer pool. The session is back in
// Configured even when STREAMOFF fails.
func (c *Camera) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.require("stop", StateRunning); err != nil {
		return err
	}
	return c.stopStreaming()
}

func (c *Camera) stopStreaming() error {
	c.setState(StateConfigured)
	c.cancel()
	<-c.done
	c.cancel = nil
	c.done = nil

	var streamErr error
	if err := c.dev.StreamOff(); err != nil {
		streamErr = newError(KindStreamControl, "stop", err)
	}
	c.pool.release()
	c.pool = nil

	c.logger.Info("Capture stopped", "path", c.path, "frames", c.frames.Load())
	return streamErr
}

func (c *Camera) running(ctx context.Context) bool {
	return ctx.Err() == nil && c.State() == StateRunning
}

// run is the capture goroutine. It only touches the device, the pool,
// the decoder or scratch buffer and the sinks, all of which the controller
// leaves alone while the state is Running.
func (c *Camera) run(ctx context.Context, pool *bufferPool, done chan struct{}) {
	defer close(done)

	for c.running(ctx) {
		ready, err := c.dev.WaitReadable(c.waitTimeout)
		if errors.Is(err, syscall.EINTR) {
			continue
		}
		if err != nil {
			c.logger.Warn("Wait for frame failed", "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(waitErrorBackoff):
			}
			continue
		}
		if !ready {
			c.logger.Debug("No frame within timeout", "timeout", c.waitTimeout)
			c.observer.IdleTimeout()
			continue
		}

		buf, err := c.dev.DequeueBuffer()
		if err != nil {
			loopErr := newError(KindIOFault, "dequeue", err)
			c.loopErr.Store(loopErr)
			c.logger.Error("Capture loop terminated", "error", err)
			c.observer.LoopFailed(loopErr)
			return
		}

		raw, ok := pool.take(buf.Index, buf.BytesUsed)
		if !ok {
			c.logger.Warn("Driver returned unknown buffer", "index", buf.Index)
			continue
		}

		c.handleFrame(raw)

		if err := pool.requeue(buf.Index); err != nil {
			c.logger.Warn("Failed to requeue buffer", "index", buf.Index, "error", err)
			c.observer.RequeueFailed(buf.Index, err)
		}
	}
}

// handleFrame converts one dequeued buffer and hands it to the sinks.
func (c *Camera) handleFrame(raw []byte) {
	seq := c.frames.Add(1)
	if seq%frameLogInterval == 0 {
		c.logger.Debug("Received frame", "sequence", seq, "bytes", len(raw))
	}

	f := c.format
	var (
		payload []byte
		convErr error
	)
	if f.Format.Compressed() {
		payload, convErr = c.dec.Convert(raw)
	} else {
		n := copy(c.scratch, raw)
		clear(c.scratch[n:])
		payload = c.scratch
	}

	if dir := c.dumpDir.Swap(nil); dir != nil {
		c.dumpFrame(*dir, raw, payload, convErr == nil)
	}

	if convErr != nil {
		c.logger.Debug("Dropped frame", "sequence", seq, "error", convErr)
		c.observer.FrameDropped(convErr)
		return
	}

	frame := Frame{
		Data:      payload,
		Width:     f.Width,
		Height:    f.Height,
		Layout:    f.Layout,
		Sequence:  seq,
		Timestamp: time.Now(),
	}
	c.deliver("render", c.render, frame)
	c.deliver("callback", c.callback, frame)
	c.observer.FrameDelivered(frame)
}

func (c *Camera) deliver(name string, sink FrameSink, f Frame) {
	if sink == nil {
		return
	}
	if err := sink.Deliver(f); err != nil {
		c.logger.Debug("Sink failed", "sink", name, "sequence", f.Sequence, "error", err)
		c.observer.SinkFailed(name, err)
	}
}
