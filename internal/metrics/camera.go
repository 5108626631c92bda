// Package metrics exposes Prometheus metrics for the capture loop.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/smazurov/camnode/internal/camera"
)

const namespace = "camnode"

var (
	framesDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "camera",
		Name:      "frames_delivered_total",
		Help:      "Frames handed to the sinks",
	}, []string{"device"})

	framesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "camera",
		Name:      "frames_dropped_total",
		Help:      "Frames dropped because decoding failed",
	}, []string{"device"})

	idleTimeouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "camera",
		Name:      "idle_timeouts_total",
		Help:      "Readiness waits that ended without a frame",
	}, []string{"device"})

	requeueFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "camera",
		Name:      "requeue_failures_total",
		Help:      "Buffers that could not be handed back to the driver",
	}, []string{"device"})

	sinkFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "camera",
		Name:      "sink_failures_total",
		Help:      "Frame deliveries a sink rejected",
	}, []string{"device", "sink"})

	loopFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "camera",
		Name:      "loop_failures_total",
		Help:      "Capture loops ended by an I/O fault",
	}, []string{"device"})

	frameBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "camera",
		Name:      "frame_bytes",
		Help:      "Size of the last delivered frame",
	}, []string{"device"})

	cameraState = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "camera",
		Name:      "state",
		Help:      "Lifecycle state: 0 created, 1 opened, 2 configured, 3 running",
	})
)

// CameraObserver records camera notifications as metrics.
type CameraObserver struct {
	path func() string
}

// NewCameraObserver labels metrics with the node returned by path.
func NewCameraObserver(path func() string) *CameraObserver {
	if path == nil {
		path = func() string { return "" }
	}
	return &CameraObserver{path: path}
}

// StateChanged implements camera.Observer.
func (o *CameraObserver) StateChanged(_, to camera.State) {
	cameraState.Set(float64(to))
}

// FrameDelivered implements camera.Observer.
func (o *CameraObserver) FrameDelivered(f camera.Frame) {
	dev := o.path()
	framesDelivered.WithLabelValues(dev).Inc()
	frameBytes.WithLabelValues(dev).Set(float64(len(f.Data)))
}

// FrameDropped implements camera.Observer.
func (o *CameraObserver) FrameDropped(error) {
	framesDropped.WithLabelValues(o.path()).Inc()
}

// IdleTimeout implements camera.Observer.
func (o *CameraObserver) IdleTimeout() {
	idleTimeouts.WithLabelValues(o.path()).Inc()
}

// RequeueFailed implements camera.Observer.
func (o *CameraObserver) RequeueFailed(uint32, error) {
	requeueFailures.WithLabelValues(o.path()).Inc()
}

// SinkFailed implements camera.Observer.
func (o *CameraObserver) SinkFailed(sink string, _ error) {
	sinkFailures.WithLabelValues(o.path(), sink).Inc()
}

// LoopFailed implements camera.Observer.
func (o *CameraObserver) LoopFailed(error) {
	loopFailures.WithLabelValues(o.path()).Inc()
}

// DeleteDevice drops the per-device series of a node that went away.
func DeleteDevice(device string) {
	framesDelivered.DeleteLabelValues(device)
	framesDropped.DeleteLabelValues(device)
	idleTimeouts.DeleteLabelValues(device)
	requeueFailures.DeleteLabelValues(device)
	loopFailures.DeleteLabelValues(device)
	frameBytes.DeleteLabelValues(device)
	sinkFailures.DeletePartialMatch(prometheus.Labels{"device": device})
}
