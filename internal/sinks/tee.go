package sinks

import (
	"errors"

	"github.com/smazurov/camnode/internal/camera"
)

type tee []camera.FrameSink

// Tee delivers each frame to every sink in order, so several consumers
// can share the single callback registration of a camera. nil sinks are
// skipped.
func Tee(sinks ...camera.FrameSink) camera.FrameSink {
	t := make(tee, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			t = append(t, s)
		}
	}
	return t
}

func (t tee) Deliver(f camera.Frame) error {
	var errs []error
	for _, s := range t {
		if err := s.Deliver(f); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t tee) Unregister() {
	for _, s := range t {
		s.Unregister()
	}
}
