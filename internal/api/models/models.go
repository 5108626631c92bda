// Package models holds the request and response bodies of the camnode API.
package models

// Health check models
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Service status"`
	Message string `json:"message" example:"API is healthy" doc:"Status message"`
}

type HealthResponse struct {
	Body HealthData
}

// Version models
type VersionData struct {
	Version   string `json:"version" example:"1.0.0" doc:"Application version"`
	GitCommit string `json:"git_commit" example:"abc123" doc:"Git commit hash"`
	BuildDate string `json:"build_date" example:"2025-01-27T10:30:00Z" doc:"Build timestamp"`
	BuildID   string `json:"build_id" example:"42" doc:"Build identifier"`
	GoVersion string `json:"go_version" example:"go1.24.0" doc:"Go runtime version"`
	Compiler  string `json:"compiler" example:"gc" doc:"Go compiler"`
	Platform  string `json:"platform" example:"linux/arm64" doc:"Target platform"`
}

type VersionResponse struct {
	Body VersionData
}

// CapabilityData describes the opened node.
type CapabilityData struct {
	Driver       string   `json:"driver" example:"uvcvideo" doc:"Kernel driver"`
	Card         string   `json:"card" example:"HD Pro Webcam C920" doc:"Device name"`
	BusInfo      string   `json:"bus_info" example:"usb-0000:00:14.0-1" doc:"Bus location"`
	Version      string   `json:"version" example:"6.1.0" doc:"Driver version"`
	BufferAPI    string   `json:"buffer_api" example:"single-planar" doc:"Buffer API variant chosen at open"`
	Capabilities []string `json:"capabilities" doc:"Readable capability flags of the node"`
}

// FormatData is the negotiated stream format.
type FormatData struct {
	Width      int    `json:"width" example:"1280" doc:"Negotiated width"`
	Height     int    `json:"height" example:"720" doc:"Negotiated height"`
	Format     string `json:"format" example:"mjpeg" doc:"Capture pixel format"`
	Layout     string `json:"layout" example:"i420" doc:"Layout of delivered frames"`
	FrameBytes int    `json:"frame_bytes" example:"1382400" doc:"Size of every delivered frame"`
}

// CameraStatusData is a snapshot of the camera session.
type CameraStatusData struct {
	State         string          `json:"state" example:"running" doc:"Lifecycle state" enum:"created,opened,configured,running"`
	DevicePath    string          `json:"device_path,omitempty" example:"/dev/video0" doc:"Open device node"`
	Capability    *CapabilityData `json:"capability,omitempty" doc:"Queried capabilities"`
	Format        *FormatData     `json:"format,omitempty" doc:"Negotiated format"`
	Exposure      *ExposureData   `json:"exposure,omitempty" doc:"Exposure controls read back from the driver"`
	Frames        uint64          `json:"frames" example:"1024" doc:"Buffers dequeued in this session"`
	LoopError     string          `json:"loop_error,omitempty" doc:"Error that stopped the capture loop"`
	NATSConnected bool            `json:"nats_connected" doc:"Whether frames are being published to NATS"`
	FramesSent    uint64          `json:"frames_published" doc:"Frames published to NATS since configure"`
	FramesSkipped uint64          `json:"frames_skipped" doc:"Frames dropped while NATS was offline"`
}

type CameraStatusResponse struct {
	Body CameraStatusData
}

// ConnectRequest opens a camera by node path or USB identity.
type ConnectRequest struct {
	Body struct {
		Device    string `json:"device,omitempty" example:"/dev/video0" doc:"Device node path"`
		VendorID  string `json:"vendor_id,omitempty" example:"046d" doc:"USB vendor id in hex"`
		ProductID string `json:"product_id,omitempty" example:"082d" doc:"USB product id in hex"`
	}
}

// ConfigureRequest negotiates a capture format.
type ConfigureRequest struct {
	Body struct {
		Width  int    `json:"width" minimum:"1" example:"1280" doc:"Requested width"`
		Height int    `json:"height" minimum:"1" example:"720" doc:"Requested height"`
		Format string `json:"format" enum:"mjpeg,yuyv" default:"mjpeg" doc:"Capture pixel format"`
	}
}

// ExposureData is the current exposure state of the sensor.
type ExposureData struct {
	Auto  bool  `json:"auto" doc:"Automatic exposure enabled"`
	Level int32 `json:"level" example:"250" doc:"Absolute exposure level"`
}

// ExposureRequest writes exposure controls. Omitted fields are left as is.
type ExposureRequest struct {
	Body struct {
		Auto  *bool  `json:"auto,omitempty" doc:"Enable automatic exposure"`
		Level *int32 `json:"level,omitempty" example:"250" doc:"Absolute exposure level"`
	}
}

// DumpRequest arms a one-shot frame dump.
type DumpRequest struct {
	Body struct {
		Dir string `json:"dir" minLength:"1" example:"/tmp/camnode" doc:"Directory to write dump files into"`
	}
}

// MessageData is a generic acknowledgement.
type MessageData struct {
	Message string `json:"message" example:"camera started" doc:"Result message"`
}

type MessageResponse struct {
	Body MessageData
}

// ResolutionData is one supported frame size.
type ResolutionData struct {
	Width  uint32               `json:"width" example:"1920" doc:"Width in pixels"`
	Height uint32               `json:"height" example:"1080" doc:"Height in pixels"`
	FPS    map[string][]float64 `json:"fps,omitempty" doc:"Frame rates offered at this size, by format"`
}

type ResolutionsData struct {
	Resolutions []ResolutionData `json:"resolutions" doc:"Sizes supported by the open device"`
	Count       int              `json:"count" example:"5" doc:"Number of sizes"`
}

type ResolutionsResponse struct {
	Body ResolutionsData
}

// FrameRequest selects how the latest frame is returned.
type FrameRequest struct {
	Encoding string `query:"encoding" enum:"raw,jpeg" default:"raw" doc:"raw returns the delivered buffer, jpeg encodes it"`
	Quality  int    `query:"quality" minimum:"1" maximum:"100" default:"85" doc:"JPEG quality"`
}

// FrameResponse carries the frame bytes with their geometry in headers.
type FrameResponse struct {
	ContentType string `header:"Content-Type"`
	Width       string `header:"X-Frame-Width"`
	Height      string `header:"X-Frame-Height"`
	Layout      string `header:"X-Frame-Layout"`
	Sequence    string `header:"X-Frame-Sequence"`
	Body        []byte
}

// DeviceInfo is one V4L2 node found on the system.
type DeviceInfo struct {
	DevicePath   string   `json:"device_path" example:"/dev/video0" doc:"Device node"`
	DeviceName   string   `json:"device_name" example:"HD Pro Webcam C920" doc:"Device name"`
	DeviceID     string   `json:"device_id" example:"usb-046d_HD_Pro_Webcam_C920-video-index0" doc:"Stable identifier"`
	VendorID     string   `json:"vendor_id,omitempty" example:"046d" doc:"USB vendor id"`
	ProductID    string   `json:"product_id,omitempty" example:"082d" doc:"USB product id"`
	Caps         uint32   `json:"caps" doc:"Raw capability bits"`
	Capabilities []string `json:"capabilities" doc:"Readable capability flags"`
}

type DeviceData struct {
	Devices []DeviceInfo `json:"devices" doc:"Video devices"`
	Count   int          `json:"count" example:"2" doc:"Number of devices"`
}

type DeviceResponse struct {
	Body DeviceData
}

// LogsRequest filters buffered log entries.
type LogsRequest struct {
	Since  uint64 `query:"since" doc:"Only return entries with a higher sequence number"`
	Module string `query:"module" doc:"Only return entries from this module"`
}

// LogEntry is one buffered log record.
type LogEntry struct {
	Seq        uint64         `json:"seq" example:"42" doc:"Sequence number"`
	Timestamp  string         `json:"timestamp" example:"2025-01-09T10:30:00.123Z" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"camera" doc:"Source module"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured attributes"`
}

type LogsData struct {
	Entries []LogEntry `json:"entries" doc:"Buffered log entries, oldest first"`
	Count   int        `json:"count" doc:"Number of entries"`
}

type LogsResponse struct {
	Body LogsData
}

// LogLevelsRequest changes per-module log levels.
type LogLevelsRequest struct {
	Body struct {
		Modules map[string]string `json:"modules" doc:"Module name to level (debug, info, warn, error)"`
	}
}

type LogLevelsResponse struct {
	Body struct {
		Modules map[string]string `json:"modules" doc:"Effective module levels"`
	}
}
