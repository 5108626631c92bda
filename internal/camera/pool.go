package camera

import (
	"fmt"
	"log/slog"
)

// BufferCount is the number of memory-mapped driver buffers per session.
const BufferCount = 4

type slotOwner uint8

const (
	ownerUnmapped slotOwner = iota
	ownerKernel             // queued with the driver
	ownerUser               // dequeued, being processed
	ownerLost               // requeue failed, out of rotation
)

type slot struct {
	data  []byte
	owner slotOwner
}

// bufferPool owns the mmap arena of a streaming session. All methods run
// on one goroutine at a time: the controller before Start and after the
// loop is joined, the loop in between.
type bufferPool struct {
	dev       Device
	logger    *slog.Logger
	slots     [BufferCount]slot
	requested bool
}

func newBufferPool(dev Device, logger *slog.Logger) *bufferPool {
	return &bufferPool{dev: dev, logger: logger}
}

// prepare requests, maps and enqueues every buffer. On failure everything
// acquired so far is released.
func (p *bufferPool) prepare() error {
	granted, err := p.dev.RequestBuffers(BufferCount)
	if err != nil {
		return fmt.Errorf("request %d buffers: %w", BufferCount, err)
	}
	p.requested = true
	if granted < BufferCount {
		p.release()
		return fmt.Errorf("driver granted %d of %d buffers", granted, BufferCount)
	}

	for i := range p.slots {
		info, err := p.dev.QueryBuffer(uint32(i))
		if err != nil {
			p.release()
			return err
		}
		mem, err := p.dev.MapBuffer(info)
		if err != nil {
			p.release()
			return err
		}
		p.slots[i] = slot{data: mem, owner: ownerUser}
	}

	for i := range p.slots {
		if err := p.dev.QueueBuffer(uint32(i)); err != nil {
			p.release()
			return err
		}
		p.slots[i].owner = ownerKernel
	}

	p.logger.Debug("Buffer pool ready", "count", BufferCount, "length", len(p.slots[0].data))
	return nil
}

// release unmaps every mapped slot and drops the driver reservation. It
// may be called repeatedly.
func (p *bufferPool) release() {
	for i := range p.slots {
		if p.slots[i].data == nil {
			continue
		}
		if err := p.dev.UnmapBuffer(p.slots[i].data); err != nil {
			p.logger.Warn("Failed to unmap buffer", "index", i, "error", err)
		}
		p.slots[i] = slot{}
	}

	if p.requested {
		if _, err := p.dev.RequestBuffers(0); err != nil {
			p.logger.Warn("Failed to free driver buffers", "error", err)
		}
		p.requested = false
	}
}

// take marks a dequeued buffer as owned by the loop and returns its first
// used bytes, clamped to the mapping.
func (p *bufferPool) take(index, used uint32) ([]byte, bool) {
	if index >= BufferCount || p.slots[index].data == nil {
		return nil, false
	}
	s := &p.slots[index]
	s.owner = ownerUser
	n := min(int(used), len(s.data))
	return s.data[:n], true
}

// requeue hands a buffer back to the driver. A buffer that cannot be
// requeued is taken out of rotation.
func (p *bufferPool) requeue(index uint32) error {
	if err := p.dev.QueueBuffer(index); err != nil {
		p.slots[index].owner = ownerLost
		return err
	}
	p.slots[index].owner = ownerKernel
	return nil
}

// count returns the number of slots with the given owner.
func (p *bufferPool) count(owner slotOwner) int {
	n := 0
	for i := range p.slots {
		if p.slots[i].owner == owner {
			n++
		}
	}
	return n
}
