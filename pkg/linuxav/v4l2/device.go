//go:build linux

package v4l2

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unsafe"
)

// MaxDeviceIndex is the highest /dev/videoN index scanned by FindDeviceByUSBID.
const MaxDeviceIndex = 99

// ErrNoMatchingDevice is returned when no video node carries the requested
// USB identity.
var ErrNoMatchingDevice = errors.New("no video device matches the USB identity")

// sysfsRoot is the video4linux class directory. Tests point it at a
// temporary tree.
var sysfsRoot = "/sys/class/video4linux"

// FindDevices finds all V4L2 video capture devices on the system.
func FindDevices() ([]DeviceInfo, error) {
	entries, err := os.ReadDir(sysfsRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return []DeviceInfo{}, nil
		}
		return nil, fmt.Errorf("failed to read video4linux directory: %w", err)
	}

	var devices []DeviceInfo

	for _, entry := range entries {
		devicePath := "/dev/" + entry.Name()

		fd, err := open(devicePath)
		if err != nil {
			slog.With("component", "linuxav").Debug("failed to open video device", "path", devicePath, "error", err)
			continue
		}

		raw := v4l2Capability{}
		err = ioctl(fd, vidiocQuerycap, unsafe.Pointer(&raw))
		closeFD(fd)
		if err != nil {
			slog.With("component", "linuxav").Debug("failed to query device capabilities", "path", devicePath, "error", err)
			continue
		}

		c := capabilityFrom(&raw)
		if !c.SupportsCapture() {
			continue
		}

		indexValue := readSysfsInt(filepath.Join(sysfsRoot, entry.Name(), "index"))

		stableID := findStableID(entry.Name(), indexValue)
		if stableID == "" {
			if strings.HasPrefix(c.BusInfo, "usb-") {
				stableID = fmt.Sprintf("%s-video-index%d", c.BusInfo, indexValue)
			} else {
				stableID = fmt.Sprintf("platform-%s-video-index%d", c.BusInfo, indexValue)
			}
		}

		info := DeviceInfo{
			DevicePath: devicePath,
			DeviceName: c.Card,
			DeviceID:   stableID,
			Caps:       c.Effective(),
		}
		if vendor, product, err := readModalias(entry.Name()); err == nil {
			info.VendorID, info.ProductID = vendor, product
		}

		devices = append(devices, info)
	}

	return devices, nil
}

// FindDeviceByUSBID returns the first /dev/videoN node, N in [0, MaxDeviceIndex],
// whose USB modalias matches vendor and product.
func FindDeviceByUSBID(vendor, product uint16) (string, error) {
	for i := 0; i <= MaxDeviceIndex; i++ {
		name := "video" + strconv.Itoa(i)
		v, p, err := readModalias(name)
		if err != nil {
			continue
		}
		if v == vendor && p == product {
			return "/dev/" + name, nil
		}
	}
	return "", fmt.Errorf("%w: %04x:%04x", ErrNoMatchingDevice, vendor, product)
}

func readModalias(name string) (uint16, uint16, error) {
	data, err := os.ReadFile(filepath.Join(sysfsRoot, name, "device", "modalias"))
	if err != nil {
		return 0, 0, err
	}
	return ParseModalias(strings.TrimSpace(string(data)))
}

// ParseModalias extracts the vendor and product from a USB modalias such as
// "usb:v046Dp0825d0012dcEFdsc02dp01ic0Eisc01ip00in00".
func ParseModalias(s string) (vendor, product uint16, err error) {
	rest, ok := strings.CutPrefix(s, "usb:v")
	if !ok || len(rest) < 9 || rest[4] != 'p' {
		return 0, 0, fmt.Errorf("not a usb modalias: %q", s)
	}

	v, err := strconv.ParseUint(rest[:4], 16, 16)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid vendor in modalias %q: %w", s, err)
	}
	p, err := strconv.ParseUint(rest[5:9], 16, 16)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid product in modalias %q: %w", s, err)
	}

	return uint16(v), uint16(p), nil
}

// findStableID looks for a stable ID symlink in /dev/v4l/by-id/
func findStableID(deviceName string, indexValue int) string {
	byIDDir := "/dev/v4l/by-id"
	entries, err := os.ReadDir(byIDDir)
	if err != nil {
		return ""
	}

	expectedSuffix := fmt.Sprintf("-video-index%d", indexValue)

	for _, entry := range entries {
		if entry.Type()&os.ModeSymlink == 0 {
			continue
		}

		target, err := os.Readlink(filepath.Join(byIDDir, entry.Name()))
		if err != nil {
			continue
		}

		if filepath.Base(target) == deviceName && strings.HasSuffix(entry.Name(), expectedSuffix) {
			return entry.Name()
		}
	}

	return ""
}

func readSysfsInt(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	val, _ := strconv.Atoi(strings.TrimSpace(string(data)))
	return val
}

// cstr converts a null-terminated byte slice to a Go string.
func cstr(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}

func capabilityFrom(raw *v4l2Capability) Capability {
	return Capability{
		Driver:       cstr(raw.driver[:]),
		Card:         cstr(raw.card[:]),
		BusInfo:      cstr(raw.busInfo[:]),
		Version:      raw.version,
		Capabilities: raw.capabilities,
		DeviceCaps:   raw.deviceCaps,
	}
}
