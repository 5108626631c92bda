//go:build linux

package v4l2

import "fmt"

// DeviceInfo contains information about a V4L2 device.
type DeviceInfo struct {
	DevicePath string
	DeviceName string
	DeviceID   string // Stable identifier (from /dev/v4l/by-id/ or synthetic)
	Caps       uint32
	VendorID   uint16 // USB vendor, zero for non-USB devices
	ProductID  uint16
}

// FormatInfo contains information about a supported pixel format.
type FormatInfo struct {
	PixelFormat uint32
	FormatName  string
	Compressed  bool
	Emulated    bool
}

// Resolution represents a supported video resolution.
type Resolution struct {
	Width  uint32
	Height uint32
}

func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// FrameSize is one VIDIOC_ENUM_FRAMESIZES entry. Discrete entries carry
// Min == Max; stepwise and continuous entries describe a range.
type FrameSize struct {
	Discrete bool
	Min      Resolution
	Max      Resolution
	Step     Resolution
}

// Covers reports whether r lies inside the range described by s.
func (s FrameSize) Covers(r Resolution) bool {
	return r.Width >= s.Min.Width && r.Width <= s.Max.Width &&
		r.Height >= s.Min.Height && r.Height <= s.Max.Height
}

// Framerate represents a supported framerate as a fraction.
type Framerate struct {
	Numerator   uint32
	Denominator uint32
}

// FPS returns the framerate as frames per second.
func (f Framerate) FPS() float64 {
	if f.Numerator == 0 {
		return 0
	}
	return float64(f.Denominator) / float64(f.Numerator)
}

// Capability is the decoded result of VIDIOC_QUERYCAP.
type Capability struct {
	Driver       string
	Card         string
	BusInfo      string
	Version      uint32
	Capabilities uint32
	DeviceCaps   uint32
}

// Effective returns the capability bits of the opened node. Drivers that
// set CapDeviceCaps report per-node bits in DeviceCaps.
func (c Capability) Effective() uint32 {
	if c.Capabilities&CapDeviceCaps != 0 {
		return c.DeviceCaps
	}
	return c.Capabilities
}

// SupportsCapture reports whether the node can capture video through
// either buffer API.
func (c Capability) SupportsCapture() bool {
	return c.Effective()&(CapVideoCapture|CapVideoCaptureMplane) != 0
}

// BufferAPI returns the buffer API a session on this node must use.
func (c Capability) BufferAPI() BufferAPI {
	if c.Effective()&CapVideoCaptureMplane != 0 {
		return MultiPlanar
	}
	return SinglePlanar
}

// VersionString formats the kernel version field as major.minor.patch.
func (c Capability) VersionString() string {
	return fmt.Sprintf("%d.%d.%d", c.Version>>16&0xff, c.Version>>8&0xff, c.Version&0xff)
}

// BufferAPI selects between the single planar and multi planar V4L2
// buffer type.
type BufferAPI uint8

// Buffer API variants.
const (
	SinglePlanar BufferAPI = iota
	MultiPlanar
)

func (a BufferAPI) String() string {
	if a == MultiPlanar {
		return "multi-planar"
	}
	return "single-planar"
}

func (a BufferAPI) bufType() uint32 {
	if a == MultiPlanar {
		return bufTypeVideoCaptureMplane
	}
	return bufTypeVideoCapture
}

// Colorimetry holds the colour description sent with VIDIOC_S_FMT.
type Colorimetry struct {
	Colorspace   uint32
	YCbCrEnc     uint32
	Quantization uint32
	XferFunc     uint32
}

// Rec709FullRange is BT.709 primaries, matrix and transfer at full range.
var Rec709FullRange = Colorimetry{
	Colorspace:   ColorspaceRec709,
	YCbCrEnc:     YCbCrEnc709,
	Quantization: QuantizationFullRange,
	XferFunc:     XferFunc709,
}

// PixFormat is the format the driver acknowledged.
type PixFormat struct {
	Width        uint32
	Height       uint32
	PixelFormat  uint32
	BytesPerLine uint32
	SizeImage    uint32
	Colorimetry  Colorimetry
}

// BufferInfo locates one driver buffer for mmap.
type BufferInfo struct {
	Index  uint32
	Offset uint32
	Length uint32
}

// DequeuedBuffer describes a filled buffer returned by VIDIOC_DQBUF.
type DequeuedBuffer struct {
	Index     uint32
	BytesUsed uint32
	Sequence  uint32
}

// Capability flags.
const (
	CapVideoCapture       = 0x00000001
	CapVideoCaptureMplane = 0x00001000
	CapStreaming          = 0x04000000
	CapDeviceCaps         = 0x80000000
)

// Format flags.
const (
	fmtFlagCompressed = 0x0001
	fmtFlagEmulated   = 0x0002
)

// Pixel formats.
const (
	PixFmtYUYV  = 0x56595559 // 'YUYV'
	PixFmtMJPEG = 0x47504A4D // 'MJPG'
)

// Colorimetry values.
const (
	ColorspaceRec709      = 3
	YCbCrEnc709           = 2
	QuantizationFullRange = 1
	XferFunc709           = 1
)

// Controls.
const (
	CIDExposureAuto     = 0x009a0901
	CIDExposureAbsolute = 0x009a0902

	ExposureAuto   = 0
	ExposureManual = 1
)

// Frame size types.
const (
	frmsizeTypeDiscrete   = 1
	frmsizeTypeContinuous = 2
	frmsizeTypeStepwise   = 3
)

// Frame interval types.
const (
	frmivalTypeDiscrete   = 1
	frmivalTypeContinuous = 2
	frmivalTypeStepwise   = 3
)

// Buffer types, memory and field.
const (
	bufTypeVideoCapture       = 1
	bufTypeVideoCaptureMplane = 9
	memoryMmap                = 1
	fieldAny                  = 0
)
