package sinks

import (
	"errors"
	"sync/atomic"

	"github.com/smazurov/camnode/internal/camera"
	"github.com/smazurov/camnode/internal/nats"
)

// FramePublisher is the part of nats.Client the publisher sink uses.
type FramePublisher interface {
	PublishFrame(meta nats.FrameMeta, data []byte) error
}

// NATSPublisher forwards every frame to NATS. While the client is offline
// frames are counted as skipped instead of failing the delivery.
type NATSPublisher struct {
	client    FramePublisher
	published atomic.Uint64
	skipped   atomic.Uint64
	detached  atomic.Bool
}

// NewNATSPublisher wraps client. The client stays owned by the caller.
func NewNATSPublisher(client FramePublisher) *NATSPublisher {
	return &NATSPublisher{client: client}
}

// Deliver implements camera.FrameSink.
func (p *NATSPublisher) Deliver(f camera.Frame) error {
	if p.detached.Load() {
		return nil
	}
	err := p.client.PublishFrame(nats.FrameMeta{
		Width:     f.Width,
		Height:    f.Height,
		Layout:    f.Layout.String(),
		Sequence:  f.Sequence,
		Timestamp: f.Timestamp,
	}, f.Data)
	switch {
	case err == nil:
		p.published.Add(1)
		return nil
	case errors.Is(err, nats.ErrNotConnected):
		p.skipped.Add(1)
		return nil
	default:
		return err
	}
}

// Unregister stops forwarding.
func (p *NATSPublisher) Unregister() {
	p.detached.Store(true)
}

// Published returns the number of frames handed to NATS.
func (p *NATSPublisher) Published() uint64 { return p.published.Load() }

// Skipped returns the number of frames dropped while offline.
func (p *NATSPublisher) Skipped() uint64 { return p.skipped.Load() }
