// Package decoder turns compressed camera frames into planar YUV.
package decoder

import (
	"errors"
	"fmt"
)

// Layout is the pixel arrangement of a delivered frame.
type Layout int

const (
	// LayoutYUYV is packed 4:2:2, two bytes per pixel.
	LayoutYUYV Layout = iota
	// LayoutI420 is planar 4:2:0: Y, then U and V at quarter resolution.
	LayoutI420
	// LayoutI422 is planar 4:2:2: Y, then U and V at half width.
	LayoutI422
)

func (l Layout) String() string {
	switch l {
	case LayoutYUYV:
		return "yuyv"
	case LayoutI420:
		return "i420"
	case LayoutI422:
		return "i422"
	default:
		return fmt.Sprintf("layout(%d)", int(l))
	}
}

// FrameSize returns the number of bytes of a width x height frame.
func (l Layout) FrameSize(width, height int) int {
	if l == LayoutI420 {
		return width * height * 3 / 2
	}
	return width * height * 2
}

// ErrSizeMismatch is returned when a frame decodes to a size other than
// the one the decoder was created for.
var ErrSizeMismatch = errors.New("decoded frame size mismatch")

// Decoder converts one compressed frame per call. The returned slice is
// owned by the decoder and overwritten by the next Convert.
type Decoder interface {
	Convert(src []byte) ([]byte, error)
	Layout() Layout
	Close() error
}

// Factory creates a decoder for a configured frame size.
type Factory func(width, height int) (Decoder, error)

// DefaultFactory produces I420 JPEG decoders.
func DefaultFactory(width, height int) (Decoder, error) {
	return NewJPEG(width, height, LayoutI420)
}
