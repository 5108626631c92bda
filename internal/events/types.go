package events

// Event type identifiers for kelindar/event.
const (
	TypeStateChanged uint32 = iota + 1
	TypeFrame
	TypeCaptureError
	TypeDeviceDiscovery
	TypeDeviceRemoved
	TypeLogEntry
)

// Event is implemented by everything published on the bus.
type Event interface {
	Type() uint32
}

// StateChangedEvent is published on every camera lifecycle transition.
type StateChangedEvent struct {
	DevicePath string `json:"device_path" example:"/dev/video0" doc:"Device node of the session"`
	From       string `json:"from" example:"configured" doc:"Previous state"`
	To         string `json:"to" example:"running" doc:"New state"`
	Timestamp  string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Transition time"`
}

// Type implements Event.
func (e StateChangedEvent) Type() uint32 { return TypeStateChanged }

// FrameEvent carries statistics for a delivered frame. It is sampled,
// not sent for every frame.
type FrameEvent struct {
	DevicePath string  `json:"device_path" example:"/dev/video0" doc:"Device node"`
	Sequence   uint64  `json:"sequence" example:"300" doc:"Frame sequence number in the session"`
	Width      int     `json:"width" example:"1280" doc:"Frame width"`
	Height     int     `json:"height" example:"720" doc:"Frame height"`
	Layout     string  `json:"layout" example:"i420" doc:"Pixel layout of the delivered buffer"`
	Bytes      int     `json:"bytes" example:"1382400" doc:"Frame size in bytes"`
	FPS        float64 `json:"fps" example:"29.97" doc:"Delivery rate since the previous sample"`
	Timestamp  string  `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Delivery time"`
}

// Type implements Event.
func (e FrameEvent) Type() uint32 { return TypeFrame }

// CaptureErrorEvent reports a runtime capture failure.
type CaptureErrorEvent struct {
	DevicePath string `json:"device_path" example:"/dev/video0" doc:"Device node"`
	Kind       string `json:"kind" example:"IO_FAULT" doc:"Error kind"`
	Error      string `json:"error" example:"capture I/O fault: no such device" doc:"Error description"`
	Fatal      bool   `json:"fatal" example:"true" doc:"Whether the capture loop stopped"`
	Timestamp  string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Error time"`
}

// Type implements Event.
func (e CaptureErrorEvent) Type() uint32 { return TypeCaptureError }

// DeviceDiscoveryEvent reports a video4linux node appearing or
// disappearing.
type DeviceDiscoveryEvent struct {
	Action     string `json:"action" example:"add" doc:"Kernel action: add, remove, change"`
	DevicePath string `json:"device_path" example:"/dev/video2" doc:"Device node"`
	Timestamp  string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event time"`
}

// Type implements Event.
func (e DeviceDiscoveryEvent) Type() uint32 { return TypeDeviceDiscovery }

// DeviceRemovedEvent is published when the node of the open session is
// unplugged and the session has been destroyed.
type DeviceRemovedEvent struct {
	DevicePath string `json:"device_path" example:"/dev/video0" doc:"Removed device node"`
	Timestamp  string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Removal time"`
}

// Type implements Event.
func (e DeviceRemovedEvent) Type() uint32 { return TypeDeviceRemoved }

// LogEntryEvent forwards a buffered log entry to SSE clients.
type LogEntryEvent struct {
	Seq        uint64         `json:"seq" example:"42" doc:"Monotonic sequence number for deduplication"`
	Timestamp  string         `json:"timestamp" example:"2025-01-09T10:30:00.123Z" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"camera" doc:"Source module"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured log attributes"`
}

// Type implements Event.
func (e LogEntryEvent) Type() uint32 { return TypeLogEntry }
