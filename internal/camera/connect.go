package camera

import (
	"errors"
	"fmt"
	"regexp"
	"syscall"
)

var devicePathPattern = regexp.MustCompile(`^/dev/video[0-9]+$`)

// ConnectByPath opens a /dev/videoN node and checks it for video capture.
func (c *Camera) ConnectByPath(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.require("connect", StateCreated); err != nil {
		return err
	}
	return c.connect(path)
}

// ConnectByID opens the first video node whose USB identity matches.
func (c *Camera) ConnectByID(vendor, product uint16) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.require("connect", StateCreated); err != nil {
		return err
	}

	path, err := c.locate(vendor, product)
	if err != nil {
		return newError(KindNoMatchingDevice, "connect", err)
	}
	c.logger.Debug("Resolved USB identity", "vendor", fmt.Sprintf("%04x", vendor), "product", fmt.Sprintf("%04x", product), "path", path)
	return c.connect(path)
}

func (c *Camera) connect(path string) error {
	if !devicePathPattern.MatchString(path) {
		return newError(KindInvalidPath, "connect", fmt.Errorf("%q is not a /dev/videoN path", path))
	}
	if err := c.checkPath(path); err != nil {
		return newError(KindInvalidPath, "connect", err)
	}

	dev, err := c.open(path)
	if err != nil {
		if errors.Is(err, syscall.EACCES) || errors.Is(err, syscall.EPERM) {
			return newError(KindDeviceAccess, "connect", err)
		}
		return newError(KindDeviceUnavailable, "connect", err)
	}

	caps := dev.Capability()
	if !caps.SupportsCapture() {
		if cerr := dev.Close(); cerr != nil {
			c.logger.Warn("Failed to close device", "path", path, "error", cerr)
		}
		return newError(KindCapabilityUnsupported, "connect",
			fmt.Errorf("%s (%s) reports caps 0x%08x", path, caps.Card, caps.Effective()))
	}

	c.logger.Debug("Device opened",
		"path", path,
		"driver", caps.Driver,
		"card", caps.Card,
		"bus", caps.BusInfo,
		"version", caps.VersionString(),
		"caps", fmt.Sprintf("0x%08x", caps.Effective()),
		"buffer_api", dev.BufferAPI())

	c.dev = dev
	c.path = path
	c.caps = caps
	c.node.Store(&path)
	c.setState(StateOpened)
	return nil
}
