package camera

import (
	"fmt"
	"strings"

	"github.com/smazurov/camnode/internal/decoder"
	"github.com/smazurov/camnode/pkg/linuxav/v4l2"
)

// FrameFormat is a pixel format the camera can stream.
type FrameFormat int

// Supported formats.
const (
	FormatMJPEG FrameFormat = iota
	FormatYUYV
)

// FrameFormats lists every format in preference order.
var FrameFormats = []FrameFormat{FormatMJPEG, FormatYUYV}

func (f FrameFormat) String() string {
	switch f {
	case FormatMJPEG:
		return "mjpeg"
	case FormatYUYV:
		return "yuyv"
	default:
		return fmt.Sprintf("format(%d)", int(f))
	}
}

// PixelFormat returns the V4L2 fourcc.
func (f FrameFormat) PixelFormat() uint32 {
	if f == FormatMJPEG {
		return v4l2.PixFmtMJPEG
	}
	return v4l2.PixFmtYUYV
}

// Compressed reports whether frames need decoding.
func (f FrameFormat) Compressed() bool {
	return f == FormatMJPEG
}

// ParseFrameFormat accepts "mjpeg", "mjpg" and "yuyv", case-insensitively.
func ParseFrameFormat(s string) (FrameFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mjpeg", "mjpg":
		return FormatMJPEG, nil
	case "yuyv", "yuy2":
		return FormatYUYV, nil
	default:
		return 0, fmt.Errorf("unsupported frame format %q", s)
	}
}

// StreamFormat is the negotiated format of a session.
type StreamFormat struct {
	Width      int
	Height     int
	Format     FrameFormat
	PixelBytes int // size of every delivered frame
	Layout     decoder.Layout
}

// Configure negotiates width x height in format with the driver and
// prepares the decoder or scratch buffer for it.
func (c *Camera) Configure(width, height int, format FrameFormat) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.require("configure", StateOpened); err != nil {
		return err
	}
	if width <= 0 || height <= 0 {
		return newError(KindFormatRejected, "configure", fmt.Errorf("invalid size %dx%d", width, height))
	}
	if format != FormatMJPEG && format != FormatYUYV {
		return newError(KindFormatRejected, "configure", fmt.Errorf("unsupported format %s", format))
	}

	pix, err := c.dev.SetFormat(uint32(width), uint32(height), format.PixelFormat(), v4l2.Rec709FullRange)
	if err != nil {
		return newError(KindFormatRejected, "configure", err)
	}
	if pix.PixelFormat != format.PixelFormat() {
		return newError(KindFormatRejected, "configure",
			fmt.Errorf("driver substituted %s for %s", v4l2.FormatFourCC(pix.PixelFormat), v4l2.FormatFourCC(format.PixelFormat())))
	}

	w, h := int(pix.Width), int(pix.Height)
	if w == 0 || h == 0 {
		w, h = width, height
	}
	if w != width || h != height {
		c.logger.Info("Driver adjusted frame size", "requested", fmt.Sprintf("%dx%d", width, height), "actual", fmt.Sprintf("%dx%d", w, h))
	}

	sf := StreamFormat{Width: w, Height: h, Format: format}
	var (
		dec     decoder.Decoder
		scratch []byte
	)
	if format.Compressed() {
		dec, err = c.newDecoder(w, h)
		if err != nil {
			return newError(KindDecoderInitFailed, "configure", err)
		}
		sf.Layout = dec.Layout()
		sf.PixelBytes = sf.Layout.FrameSize(w, h)
	} else {
		sf.Layout = decoder.LayoutYUYV
		sf.PixelBytes = sf.Layout.FrameSize(w, h)
		scratch = make([]byte, sf.PixelBytes)
	}

	if err := c.dev.SetFrameRate(FrameRate); err != nil {
		c.logger.Warn("Failed to set frame rate", "fps", FrameRate, "error", err)
	}

	c.logger.Info("Format configured",
		"path", c.path,
		"format", format,
		"width", w,
		"height", h,
		"layout", sf.Layout,
		"pixel_bytes", sf.PixelBytes)

	c.format = sf
	c.dec = dec
	c.scratch = scratch
	c.setState(StateConfigured)
	return nil
}
