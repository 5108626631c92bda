//go:build linux

package v4l2

import (
	"errors"
	"fmt"
	"syscall"
	"unsafe"
)

// CanonicalSizes are reported for drivers that only advertise a stepwise or
// continuous frame size range.
var CanonicalSizes = []Resolution{
	{1920, 1080},
	{1280, 720},
	{640, 480},
}

// Formats returns every pixel format the node offers for the session's
// buffer API.
func (d *Device) Formats() ([]FormatInfo, error) {
	var formats []FormatInfo

	for i := uint32(0); ; i++ {
		desc := v4l2Fmtdesc{
			index: i,
			typ:   d.api.bufType(),
		}

		if err := ioctl(d.fd, vidiocEnumFmt, unsafe.Pointer(&desc)); err != nil {
			if errors.Is(err, syscall.EINVAL) {
				break // End of enumeration
			}
			return nil, fmt.Errorf("failed to enumerate format %d: %w", i, err)
		}

		formats = append(formats, FormatInfo{
			PixelFormat: desc.pixelformat,
			FormatName:  cstr(desc.description[:]),
			Compressed:  desc.flags&fmtFlagCompressed != 0,
			Emulated:    desc.flags&fmtFlagEmulated != 0,
		})
	}

	return formats, nil
}

// FrameSizes enumerates the frame sizes of pixelFormat. Drivers that do not
// implement the ioctl yield an empty list.
func (d *Device) FrameSizes(pixelFormat uint32) ([]FrameSize, error) {
	var sizes []FrameSize

	for i := uint32(0); ; i++ {
		frmsize := v4l2Frmsizeenum{
			index:       i,
			pixelFormat: pixelFormat,
		}

		if err := ioctl(d.fd, vidiocEnumFramesizes, unsafe.Pointer(&frmsize)); err != nil {
			if errors.Is(err, syscall.EINVAL) {
				break
			}
			if errors.Is(err, syscall.ENOTTY) {
				return []FrameSize{}, nil
			}
			return nil, fmt.Errorf("failed to enumerate frame size %d: %w", i, err)
		}

		switch frmsize.typ {
		case frmsizeTypeDiscrete:
			r := Resolution{Width: frmsize.discrete.width, Height: frmsize.discrete.height}
			sizes = append(sizes, FrameSize{Discrete: true, Min: r, Max: r})
		case frmsizeTypeContinuous, frmsizeTypeStepwise:
			sw := frmsize.stepwise()
			sizes = append(sizes, FrameSize{
				Min:  Resolution{Width: sw.minWidth, Height: sw.minHeight},
				Max:  Resolution{Width: sw.maxWidth, Height: sw.maxHeight},
				Step: Resolution{Width: sw.stepWidth, Height: sw.stepHeight},
			})
			return sizes, nil // A range is always the only entry
		}
	}

	return sizes, nil
}

// Framerates returns the frame intervals of a format at one size.
func (d *Device) Framerates(pixelFormat, width, height uint32) ([]Framerate, error) {
	var framerates []Framerate

	for i := uint32(0); ; i++ {
		frmival := v4l2Frmivalenum{
			index:       i,
			pixelFormat: pixelFormat,
			width:       width,
			height:      height,
		}

		if err := ioctl(d.fd, vidiocEnumFrameintervals, unsafe.Pointer(&frmival)); err != nil {
			if errors.Is(err, syscall.EINVAL) {
				break
			}
			return nil, fmt.Errorf("failed to enumerate frame interval %d: %w", i, err)
		}

		switch frmival.typ {
		case frmivalTypeDiscrete:
			framerates = append(framerates, Framerate{
				Numerator:   frmival.discrete.numerator,
				Denominator: frmival.discrete.denominator,
			})
		case frmivalTypeContinuous, frmivalTypeStepwise:
			return append(framerates, Framerate{1, 30}), nil
		}
	}

	return framerates, nil
}

// ExpandSizes flattens frame size entries into concrete resolutions.
// Ranges contribute the CanonicalSizes they cover.
func ExpandSizes(sizes []FrameSize) []Resolution {
	var out []Resolution
	for _, s := range sizes {
		if s.Discrete {
			out = append(out, s.Min)
			continue
		}
		for _, r := range CanonicalSizes {
			if s.Covers(r) {
				out = append(out, r)
			}
		}
	}
	return out
}

// SetFormat negotiates the capture format with VIDIOC_S_FMT using the
// session's buffer API and returns what the driver accepted.
func (d *Device) SetFormat(width, height, pixelFormat uint32, c Colorimetry) (PixFormat, error) {
	f := v4l2Format{typ: d.api.bufType()}

	if d.api == MultiPlanar {
		mp := f.pixMP()
		mp.width = width
		mp.height = height
		mp.pixelformat = pixelFormat
		mp.field = fieldAny
		mp.colorspace = c.Colorspace
		mp.ycbcrEnc = uint8(c.YCbCrEnc)
		mp.quantization = uint8(c.Quantization)
		mp.xferFunc = uint8(c.XferFunc)
		mp.numPlanes = 1
	} else {
		pix := f.pix()
		pix.width = width
		pix.height = height
		pix.pixelformat = pixelFormat
		pix.field = fieldAny
		pix.colorspace = c.Colorspace
		pix.ycbcrEnc = c.YCbCrEnc
		pix.quantization = c.Quantization
		pix.xferFunc = c.XferFunc
	}

	if err := ioctl(d.fd, vidiocSFmt, unsafe.Pointer(&f)); err != nil {
		return PixFormat{}, fmt.Errorf("VIDIOC_S_FMT %dx%d %s: %w", width, height, FormatFourCC(pixelFormat), err)
	}

	if d.api == MultiPlanar {
		mp := f.pixMP()
		return PixFormat{
			Width:        mp.width,
			Height:       mp.height,
			PixelFormat:  mp.pixelformat,
			BytesPerLine: mp.planeFmt[0].bytesperline,
			SizeImage:    mp.planeFmt[0].sizeimage,
			Colorimetry: Colorimetry{
				Colorspace:   mp.colorspace,
				YCbCrEnc:     uint32(mp.ycbcrEnc),
				Quantization: uint32(mp.quantization),
				XferFunc:     uint32(mp.xferFunc),
			},
		}, nil
	}

	pix := f.pix()
	return PixFormat{
		Width:        pix.width,
		Height:       pix.height,
		PixelFormat:  pix.pixelformat,
		BytesPerLine: pix.bytesperline,
		SizeImage:    pix.sizeimage,
		Colorimetry: Colorimetry{
			Colorspace:   pix.colorspace,
			YCbCrEnc:     pix.ycbcrEnc,
			Quantization: pix.quantization,
			XferFunc:     pix.xferFunc,
		},
	}, nil
}

// SetFrameRate requests fps frames per second with VIDIOC_S_PARM.
func (d *Device) SetFrameRate(fps uint32) error {
	if fps == 0 {
		return fmt.Errorf("invalid frame rate %d", fps)
	}
	parm := v4l2Streamparm{typ: d.api.bufType()}
	parm.capture.timeperframe = v4l2Fract{numerator: 1, denominator: fps}
	if err := ioctl(d.fd, vidiocSParm, unsafe.Pointer(&parm)); err != nil {
		return fmt.Errorf("VIDIOC_S_PARM 1/%d: %w", fps, err)
	}
	return nil
}

// FormatFourCC converts a 4-byte pixel format to a human-readable string.
func FormatFourCC(format uint32) string {
	b := make([]byte, 4)
	b[0] = byte(format & 0xFF)
	b[1] = byte((format >> 8) & 0xFF)
	b[2] = byte((format >> 16) & 0xFF)
	b[3] = byte((format >> 24) & 0xFF)
	return string(b)
}
