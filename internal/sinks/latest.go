// Package sinks provides the frame consumers a capture session feeds:
// a latest-frame holder for the HTTP preview, a NATS publisher for other
// processes, and an event-bus notifier for frame statistics.
package sinks

import (
	"errors"
	"sync"

	"github.com/smazurov/camnode/internal/camera"
)

// ErrNoFrame is returned by Snapshot when no frame has arrived yet.
var ErrNoFrame = errors.New("no frame captured yet")

// LatestFrame keeps a copy of the most recent frame. Deliver writes into
// a spare buffer and swaps it in, so readers never see a partial frame
// and the capture goroutine never waits for a slow reader.
type LatestFrame struct {
	mu      sync.RWMutex
	current camera.Frame
	have    bool
	spare   []byte
	cleared bool
}

// NewLatestFrame returns an empty holder.
func NewLatestFrame() *LatestFrame {
	return &LatestFrame{}
}

// Deliver implements camera.FrameSink.
func (l *LatestFrame) Deliver(f camera.Frame) error {
	l.mu.RLock()
	buf := l.spare
	l.mu.RUnlock()

	if cap(buf) < len(f.Data) {
		buf = make([]byte, len(f.Data))
	}
	buf = buf[:len(f.Data)]
	copy(buf, f.Data)
	f.Data = buf

	l.mu.Lock()
	l.spare = l.current.Data
	l.current = f
	l.have = true
	l.cleared = false
	l.mu.Unlock()
	return nil
}

// Unregister drops the held frame.
func (l *LatestFrame) Unregister() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.current = camera.Frame{}
	l.spare = nil
	l.have = false
	l.cleared = true
}

// Snapshot returns a private copy of the latest frame.
func (l *LatestFrame) Snapshot() (camera.Frame, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if !l.have {
		return camera.Frame{}, ErrNoFrame
	}
	f := l.current
	f.Data = append([]byte(nil), l.current.Data...)
	return f, nil
}

// Unregistered reports whether the holder was detached from its session
// and has not received a frame since.
func (l *LatestFrame) Unregistered() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cleared
}
