package camera

import (
	"fmt"

	"github.com/smazurov/camnode/pkg/linuxav/v4l2"
)

// SupportedSizes lists the frame sizes of every format the device offers,
// without duplicates, in driver order. Formats that only advertise a
// range contribute the canonical sizes the range covers.
func (c *Camera) SupportedSizes() ([]v4l2.Resolution, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.require("supported sizes", StateOpened, StateConfigured, StateRunning); err != nil {
		return nil, err
	}

	formats, err := c.dev.Formats()
	if err != nil {
		return nil, newError(KindDeviceUnavailable, "supported sizes", err)
	}

	seen := make(map[v4l2.Resolution]struct{})
	var sizes []v4l2.Resolution
	for _, f := range formats {
		frameSizes, err := c.dev.FrameSizes(f.PixelFormat)
		if err != nil {
			return nil, newError(KindDeviceUnavailable, "supported sizes",
				fmt.Errorf("format %s: %w", v4l2.FormatFourCC(f.PixelFormat), err))
		}
		for _, r := range v4l2.ExpandSizes(frameSizes) {
			if _, dup := seen[r]; dup {
				continue
			}
			seen[r] = struct{}{}
			sizes = append(sizes, r)
		}
	}
	return sizes, nil
}

// FrameRates lists the frame rates in fps the device offers for format at
// width x height, in driver order. A size the format does not offer
// yields an empty list.
func (c *Camera) FrameRates(format FrameFormat, width, height uint32) ([]float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.require("frame rates", StateOpened, StateConfigured, StateRunning); err != nil {
		return nil, err
	}
	rates, err := c.dev.Framerates(format.PixelFormat(), width, height)
	if err != nil {
		return nil, newError(KindDeviceUnavailable, "frame rates",
			fmt.Errorf("%s %dx%d: %w", format, width, height, err))
	}
	fps := make([]float64, 0, len(rates))
	for _, r := range rates {
		if f := r.FPS(); f > 0 {
			fps = append(fps, f)
		}
	}
	return fps, nil
}
