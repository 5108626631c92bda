package decoder

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
)

var (
	errNotJPEG = errors.New("missing JPEG SOI marker")
	errClosed  = errors.New("decoder closed")
)

// JPEG decodes MJPEG frames of a fixed size into planar YUV.
type JPEG struct {
	width   int
	height  int
	layout  Layout
	out     []byte
	patched []byte
	closed  bool
}

// NewJPEG returns a decoder producing layout, which must be LayoutI420 or
// LayoutI422.
func NewJPEG(width, height int, layout Layout) (*JPEG, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", width, height)
	}
	if layout != LayoutI420 && layout != LayoutI422 {
		return nil, fmt.Errorf("unsupported output layout %s", layout)
	}
	return &JPEG{
		width:  width,
		height: height,
		layout: layout,
		out:    make([]byte, layout.FrameSize(width, height)),
	}, nil
}

// Layout implements Decoder.
func (j *JPEG) Layout() Layout { return j.layout }

// Close implements Decoder.
func (j *JPEG) Close() error {
	j.closed = true
	j.out = nil
	j.patched = nil
	return nil
}

// Convert implements Decoder.
func (j *JPEG) Convert(src []byte) (out []byte, err error) {
	if j.closed {
		return nil, errClosed
	}
	if len(src) < 4 || src[0] != 0xFF || src[1] != 0xD8 {
		return nil, errNotJPEG
	}

	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("decode jpeg: %v", r)
		}
	}()

	data := withHuffmanTables(j.patched, src)
	if len(data) != len(src) {
		j.patched = data
	}

	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode jpeg: %w", err)
	}

	b := img.Bounds()
	if b.Dx() != j.width || b.Dy() != j.height {
		return nil, fmt.Errorf("%w: got %dx%d, want %dx%d", ErrSizeMismatch, b.Dx(), b.Dy(), j.width, j.height)
	}

	switch m := img.(type) {
	case *image.YCbCr:
		j.fromYCbCr(m)
	case *image.Gray:
		j.fromGray(m)
	default:
		j.fromImage(img)
	}
	return j.out, nil
}

// planes splits the output buffer into Y, U and V.
func (j *JPEG) planes() (y, u, v []byte, cw, ch int) {
	cw = j.width / 2
	ch = j.height
	if j.layout == LayoutI420 {
		ch = j.height / 2
	}
	n := j.width * j.height
	c := cw * ch
	return j.out[:n], j.out[n : n+c], j.out[n+c : n+2*c], cw, ch
}

// chromaRow maps an output chroma row to a source row offset.
func (j *JPEG) chromaRow(cy int) int {
	if j.layout == LayoutI420 {
		return cy * 2
	}
	return cy
}

func (j *JPEG) fromYCbCr(m *image.YCbCr) {
	b := m.Rect
	yp, up, vp, cw, ch := j.planes()

	for row := 0; row < j.height; row++ {
		off := m.YOffset(b.Min.X, b.Min.Y+row)
		copy(yp[row*j.width:(row+1)*j.width], m.Y[off:off+j.width])
	}

	for cy := 0; cy < ch; cy++ {
		sy := b.Min.Y + j.chromaRow(cy)
		for cx := 0; cx < cw; cx++ {
			off := m.COffset(b.Min.X+cx*2, sy)
			up[cy*cw+cx] = m.Cb[off]
			vp[cy*cw+cx] = m.Cr[off]
		}
	}
}

func (j *JPEG) fromGray(m *image.Gray) {
	b := m.Rect
	yp, up, vp, _, _ := j.planes()

	for row := 0; row < j.height; row++ {
		off := m.PixOffset(b.Min.X, b.Min.Y+row)
		copy(yp[row*j.width:(row+1)*j.width], m.Pix[off:off+j.width])
	}
	for i := range up {
		up[i] = 128
		vp[i] = 128
	}
}

func (j *JPEG) fromImage(img image.Image) {
	b := img.Bounds()
	yp, up, vp, cw, ch := j.planes()

	for row := 0; row < j.height; row++ {
		for col := 0; col < j.width; col++ {
			c := color.YCbCrModel.Convert(img.At(b.Min.X+col, b.Min.Y+row)).(color.YCbCr)
			yp[row*j.width+col] = c.Y
		}
	}
	for cy := 0; cy < ch; cy++ {
		sy := b.Min.Y + j.chromaRow(cy)
		for cx := 0; cx < cw; cx++ {
			c := color.YCbCrModel.Convert(img.At(b.Min.X+cx*2, sy)).(color.YCbCr)
			up[cy*cw+cx] = c.Cb
			vp[cy*cw+cx] = c.Cr
		}
	}
}
