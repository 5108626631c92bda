//go:build linux

// Package v4l2 provides pure Go bindings to the Video4Linux2 (V4L2) API
// for USB camera discovery, format negotiation and memory-mapped streaming.
//
// This package does not use cgo, enabling simple cross-compilation for
// different Linux architectures (amd64, arm64, arm).
//
// # Device Enumeration
//
// Use FindDevices to discover all V4L2 video capture devices, or
// FindDeviceByUSBID to resolve a USB vendor/product pair to a node:
//
//	path, err := v4l2.FindDeviceByUSBID(0x046d, 0x0825)
//
// # Streaming
//
// A Device wraps an open node. The buffer API (single or multi planar) is
// chosen once when the device is opened and every format and buffer call
// uses it:
//
//	dev, _ := v4l2.OpenDevice("/dev/video0")
//	defer dev.Close()
//	pix, _ := dev.SetFormat(1280, 720, v4l2.PixFmtMJPEG, v4l2.Rec709FullRange)
//	n, _ := dev.RequestBuffers(4)
//	for i := uint32(0); i < n; i++ {
//	    info, _ := dev.QueryBuffer(i)
//	    mem, _ := dev.MapBuffer(info)
//	    _ = dev.QueueBuffer(i)
//	}
//	_ = dev.StreamOn()
//	if ok, _ := dev.WaitReadable(time.Second); ok {
//	    buf, _ := dev.DequeueBuffer()
//	    // mem[:buf.BytesUsed] holds the frame
//	    _ = dev.QueueBuffer(buf.Index)
//	}
package v4l2
