package sinks

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/smazurov/camnode/internal/camera"
	"github.com/smazurov/camnode/internal/decoder"
)

// DefaultJPEGQuality is used by the preview endpoint.
const DefaultJPEGQuality = 85

// ToImage wraps a frame as an image without colour conversion. I420 and
// I422 planes are referenced in place; YUYV is unpacked into new planes.
func ToImage(f camera.Frame) (*image.YCbCr, error) {
	w, h := f.Width, f.Height
	if w <= 0 || h <= 0 || w%2 != 0 {
		return nil, fmt.Errorf("unsupported frame size %dx%d", w, h)
	}
	if want := f.Layout.FrameSize(w, h); len(f.Data) < want {
		return nil, fmt.Errorf("short %s frame: %d bytes, want %d", f.Layout, len(f.Data), want)
	}

	rect := image.Rect(0, 0, w, h)
	cw := w / 2
	ysize := w * h

	switch f.Layout {
	case decoder.LayoutI420:
		if h%2 != 0 {
			return nil, fmt.Errorf("unsupported frame size %dx%d", w, h)
		}
		c := cw * (h / 2)
		return &image.YCbCr{
			Y: f.Data[:ysize], Cb: f.Data[ysize : ysize+c], Cr: f.Data[ysize+c : ysize+2*c],
			YStride: w, CStride: cw, SubsampleRatio: image.YCbCrSubsampleRatio420, Rect: rect,
		}, nil

	case decoder.LayoutI422:
		c := cw * h
		return &image.YCbCr{
			Y: f.Data[:ysize], Cb: f.Data[ysize : ysize+c], Cr: f.Data[ysize+c : ysize+2*c],
			YStride: w, CStride: cw, SubsampleRatio: image.YCbCrSubsampleRatio422, Rect: rect,
		}, nil

	case decoder.LayoutYUYV:
		img := image.NewYCbCr(rect, image.YCbCrSubsampleRatio422)
		for y := 0; y < h; y++ {
			row := f.Data[y*w*2 : (y+1)*w*2]
			for x := 0; x < cw; x++ {
				p := row[x*4 : x*4+4]
				img.Y[y*img.YStride+2*x] = p[0]
				img.Y[y*img.YStride+2*x+1] = p[2]
				img.Cb[y*img.CStride+x] = p[1]
				img.Cr[y*img.CStride+x] = p[3]
			}
		}
		return img, nil
	}
	return nil, fmt.Errorf("unsupported layout %s", f.Layout)
}

// EncodeJPEG encodes a frame for browsers and image viewers.
func EncodeJPEG(f camera.Frame, quality int) ([]byte, error) {
	img, err := ToImage(f)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
