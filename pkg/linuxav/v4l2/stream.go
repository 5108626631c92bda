//go:build linux

package v4l2

import (
	"fmt"
	"os"
	"time"
	"unsafe"
)

// Device is an open V4L2 capture node. It is not safe for concurrent use:
// callers serialise configuration and streaming calls themselves.
type Device struct {
	fd   int
	path string
	cap  Capability
	api  BufferAPI

	// planes is handed to the kernel by pointer for multi planar buffer
	// ioctls, so it lives inside the heap allocated Device.
	planes [1]v4l2Plane
}

// OpenDevice opens path non-blocking for read/write and queries its
// capabilities. Open failures are returned as *os.PathError.
func OpenDevice(path string) (*Device, error) {
	fd, err := open(path)
	if err != nil {
		return nil, &os.PathError{Op: "open", Path: path, Err: err}
	}

	raw := v4l2Capability{}
	if err := ioctl(fd, vidiocQuerycap, unsafe.Pointer(&raw)); err != nil {
		closeFD(fd)
		return nil, fmt.Errorf("VIDIOC_QUERYCAP %s: %w", path, err)
	}

	c := capabilityFrom(&raw)
	return &Device{fd: fd, path: path, cap: c, api: c.BufferAPI()}, nil
}

// Path returns the node the device was opened from.
func (d *Device) Path() string { return d.path }

// Capability returns the capabilities reported at open.
func (d *Device) Capability() Capability { return d.cap }

// BufferAPI returns the buffer API fixed for this session.
func (d *Device) BufferAPI() BufferAPI { return d.api }

// Close releases the file descriptor. Closing twice is a no-op.
func (d *Device) Close() error {
	if d.fd < 0 {
		return nil
	}
	err := closeFD(d.fd)
	d.fd = -1
	return err
}

// RequestBuffers asks the driver for count memory-mapped buffers and
// returns how many it granted. A count of zero frees the reservation.
func (d *Device) RequestBuffers(count uint32) (uint32, error) {
	req := v4l2Requestbuffers{
		count:  count,
		typ:    d.api.bufType(),
		memory: memoryMmap,
	}
	if err := ioctl(d.fd, vidiocReqbufs, unsafe.Pointer(&req)); err != nil {
		return 0, fmt.Errorf("VIDIOC_REQBUFS(%d): %w", count, err)
	}
	return req.count, nil
}

func (d *Device) newBuffer(index uint32) v4l2Buffer {
	buf := v4l2Buffer{
		index:  index,
		typ:    d.api.bufType(),
		memory: memoryMmap,
	}
	if d.api == MultiPlanar {
		d.planes = [1]v4l2Plane{}
		buf.setPlanes(&d.planes[0], uint32(len(d.planes)))
	}
	return buf
}

// QueryBuffer returns the mmap offset and length of buffer index. For
// multi planar sessions plane 0 is reported.
func (d *Device) QueryBuffer(index uint32) (BufferInfo, error) {
	buf := d.newBuffer(index)
	if err := ioctl(d.fd, vidiocQuerybuf, unsafe.Pointer(&buf)); err != nil {
		return BufferInfo{}, fmt.Errorf("VIDIOC_QUERYBUF(%d): %w", index, err)
	}

	if d.api == MultiPlanar {
		return BufferInfo{Index: index, Offset: d.planes[0].memOffset(), Length: d.planes[0].length}, nil
	}
	return BufferInfo{Index: index, Offset: buf.offset(), Length: buf.length}, nil
}

// MapBuffer maps a buffer read/write and shared.
func (d *Device) MapBuffer(info BufferInfo) ([]byte, error) {
	mem, err := mmap(d.fd, info.Offset, info.Length)
	if err != nil {
		return nil, fmt.Errorf("mmap buffer %d: %w", info.Index, err)
	}
	return mem, nil
}

// UnmapBuffer releases a mapping returned by MapBuffer.
func (d *Device) UnmapBuffer(mem []byte) error {
	return munmap(mem)
}

// QueueBuffer hands buffer index to the driver.
func (d *Device) QueueBuffer(index uint32) error {
	buf := d.newBuffer(index)
	if err := ioctl(d.fd, vidiocQbuf, unsafe.Pointer(&buf)); err != nil {
		return fmt.Errorf("VIDIOC_QBUF(%d): %w", index, err)
	}
	return nil
}

// DequeueBuffer takes the oldest filled buffer from the driver.
func (d *Device) DequeueBuffer() (DequeuedBuffer, error) {
	buf := d.newBuffer(0)
	if err := ioctl(d.fd, vidiocDqbuf, unsafe.Pointer(&buf)); err != nil {
		return DequeuedBuffer{}, fmt.Errorf("VIDIOC_DQBUF: %w", err)
	}

	used := buf.bytesused
	if d.api == MultiPlanar {
		used = d.planes[0].bytesused
	}
	return DequeuedBuffer{Index: buf.index, BytesUsed: used, Sequence: buf.sequence}, nil
}

// StreamOn starts streaming.
func (d *Device) StreamOn() error {
	typ := d.api.bufType()
	if err := ioctl(d.fd, vidiocStreamon, unsafe.Pointer(&typ)); err != nil {
		return fmt.Errorf("VIDIOC_STREAMON: %w", err)
	}
	return nil
}

// StreamOff stops streaming and returns every buffer to userspace.
func (d *Device) StreamOff() error {
	typ := d.api.bufType()
	if err := ioctl(d.fd, vidiocStreamoff, unsafe.Pointer(&typ)); err != nil {
		return fmt.Errorf("VIDIOC_STREAMOFF: %w", err)
	}
	return nil
}

// WaitReadable waits up to timeout for a filled buffer. It returns false
// when the timeout expires.
func (d *Device) WaitReadable(timeout time.Duration) (bool, error) {
	return waitReadable(d.fd, timeout)
}

// SetControl writes a V4L2 control value.
func (d *Device) SetControl(id uint32, value int32) error {
	ctrl := v4l2Control{id: id, value: value}
	if err := ioctl(d.fd, vidiocSCtrl, unsafe.Pointer(&ctrl)); err != nil {
		return fmt.Errorf("VIDIOC_S_CTRL(0x%08x=%d): %w", id, value, err)
	}
	return nil
}

// GetControl reads a V4L2 control value.
func (d *Device) GetControl(id uint32) (int32, error) {
	ctrl := v4l2Control{id: id}
	if err := ioctl(d.fd, vidiocGCtrl, unsafe.Pointer(&ctrl)); err != nil {
		return 0, fmt.Errorf("VIDIOC_G_CTRL(0x%08x): %w", id, err)
	}
	return ctrl.value, nil
}
