package events

import (
	"errors"
	"time"

	"github.com/smazurov/camnode/internal/camera"
)

// CameraObserver turns camera notifications into bus events.
type CameraObserver struct {
	camera.NopObserver

	bus  *Bus
	path func() string
	now  func() time.Time
}

// NewCameraObserver publishes on bus. path reports the device node of the
// session and may be nil.
func NewCameraObserver(bus *Bus, path func() string) *CameraObserver {
	if path == nil {
		path = func() string { return "" }
	}
	return &CameraObserver{bus: bus, path: path, now: time.Now}
}

func (o *CameraObserver) timestamp() string {
	return o.now().UTC().Format(time.RFC3339)
}

// StateChanged implements camera.Observer.
func (o *CameraObserver) StateChanged(from, to camera.State) {
	o.bus.Publish(StateChangedEvent{
		DevicePath: o.path(),
		From:       from.String(),
		To:         to.String(),
		Timestamp:  o.timestamp(),
	})
}

// LoopFailed implements camera.Observer.
func (o *CameraObserver) LoopFailed(err error) {
	o.publishError(err, true)
}

// RequeueFailed implements camera.Observer.
func (o *CameraObserver) RequeueFailed(_ uint32, err error) {
	o.publishError(err, false)
}

func (o *CameraObserver) publishError(err error, fatal bool) {
	kind := ""
	var ce *camera.Error
	if errors.As(err, &ce) {
		kind = string(ce.Kind)
	}
	o.bus.Publish(CaptureErrorEvent{
		DevicePath: o.path(),
		Kind:       kind,
		Error:      err.Error(),
		Fatal:      fatal,
		Timestamp:  o.timestamp(),
	})
}
