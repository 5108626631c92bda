package camera

import "github.com/smazurov/camnode/pkg/linuxav/v4l2"

// SetAutoExposure switches the sensor between automatic and manual
// exposure.
func (c *Camera) SetAutoExposure(enabled bool) error {
	mode := int32(v4l2.ExposureManual)
	if enabled {
		mode = v4l2.ExposureAuto
	}
	return c.setControl("set auto exposure", v4l2.CIDExposureAuto, mode)
}

// SetExposure sets the absolute exposure time in driver units, 100µs for
// UVC cameras. It only takes effect with auto exposure off.
func (c *Camera) SetExposure(level int32) error {
	return c.setControl("set exposure", v4l2.CIDExposureAbsolute, level)
}

func (c *Camera) setControl(op string, id uint32, value int32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.require(op, StateOpened, StateConfigured, StateRunning); err != nil {
		return err
	}
	if err := c.dev.SetControl(id, value); err != nil {
		return newError(KindControlFailed, op, err)
	}
	c.logger.Debug("Control set", "op", op, "value", value)
	return nil
}

// ExposureSettings is the exposure state reported by the driver.
type ExposureSettings struct {
	Auto  bool
	Level int32
}

// Exposure reads the exposure controls back from the driver.
func (c *Camera) Exposure() (ExposureSettings, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.require("get exposure", StateOpened, StateConfigured, StateRunning); err != nil {
		return ExposureSettings{}, err
	}
	mode, err := c.dev.GetControl(v4l2.CIDExposureAuto)
	if err != nil {
		return ExposureSettings{}, newError(KindControlFailed, "get exposure", err)
	}
	level, err := c.dev.GetControl(v4l2.CIDExposureAbsolute)
	if err != nil {
		return ExposureSettings{}, newError(KindControlFailed, "get exposure", err)
	}
	// UVC drivers also report aperture priority modes; only manual is off.
	return ExposureSettings{Auto: mode != v4l2.ExposureManual, Level: level}, nil
}
