package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/pelletier/go-toml/v2"
)

// CameraConfig is the [camera] table.
//
//	[camera]
//	device = "/dev/video0"     # or vendor_id/product_id
//	vendor_id = "0x046d"
//	product_id = "0x0825"
//	width = 1280
//	height = 720
//	format = "mjpeg"
//	auto_start = true
//	auto_exposure = false
//	exposure = 250
//	dump_dir = "/tmp/camnode"
type CameraConfig struct {
	Device       string `toml:"device"`
	VendorID     string `toml:"vendor_id"`
	ProductID    string `toml:"product_id"`
	Width        int    `toml:"width"`
	Height       int    `toml:"height"`
	Format       string `toml:"format"`
	AutoStart    bool   `toml:"auto_start"`
	AutoExposure *bool  `toml:"auto_exposure"`
	Exposure     *int32 `toml:"exposure"`
	DumpDir      string `toml:"dump_dir"`
}

// Default frame size when the file leaves it out.
const (
	DefaultWidth  = 1280
	DefaultHeight = 720
	DefaultFormat = "mjpeg"
)

// ErrNoDevice is returned by Validate when neither a path nor a USB
// identity is set.
var ErrNoDevice = errors.New("camera: device or vendor_id/product_id required")

// WithDefaults fills unset frame settings.
func (c CameraConfig) WithDefaults() CameraConfig {
	if c.Width == 0 {
		c.Width = DefaultWidth
	}
	if c.Height == 0 {
		c.Height = DefaultHeight
	}
	if c.Format == "" {
		c.Format = DefaultFormat
	}
	return c
}

// Validate checks that the section names a device and a positive size.
func (c CameraConfig) Validate() error {
	if c.Device == "" && (c.VendorID == "" || c.ProductID == "") {
		return ErrNoDevice
	}
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("camera: invalid size %dx%d", c.Width, c.Height)
	}
	return nil
}

// ExposureChanged reports whether the exposure settings differ.
func (c CameraConfig) ExposureChanged(other CameraConfig) bool {
	return !equalPtr(c.AutoExposure, other.AutoExposure) || !equalPtr(c.Exposure, other.Exposure)
}

func equalPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// LoadCameraConfig reads the [camera] table of path with defaults applied.
// A missing file yields the defaults.
func LoadCameraConfig(path string) (CameraConfig, error) {
	var raw struct {
		Camera CameraConfig `toml:"camera"`
	}
	if path == "" {
		return raw.Camera.WithDefaults(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return raw.Camera.WithDefaults(), nil
		}
		return CameraConfig{}, err
	}
	if err := toml.Unmarshal(data, &raw); err != nil {
		return CameraConfig{}, fmt.Errorf("failed to parse TOML config: %w", err)
	}
	return raw.Camera.WithDefaults(), nil
}

// ParseUSBID parses a vendor or product id written as hex, with or
// without a 0x prefix.
func ParseUSBID(s string) (uint16, error) {
	if len(s) > 2 && (s[:2] == "0x" || s[:2] == "0X") {
		s = s[2:]
	}
	v, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid USB id %q: %w", s, err)
	}
	return uint16(v), nil
}

// USBID returns the parsed vendor and product ids. ok is false when the
// section selects the camera by path.
func (c CameraConfig) USBID() (vendor, product uint16, ok bool, err error) {
	if c.VendorID == "" && c.ProductID == "" {
		return 0, 0, false, nil
	}
	if vendor, err = ParseUSBID(c.VendorID); err != nil {
		return 0, 0, false, err
	}
	if product, err = ParseUSBID(c.ProductID); err != nil {
		return 0, 0, false, err
	}
	return vendor, product, true, nil
}
