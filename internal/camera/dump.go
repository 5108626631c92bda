package camera

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const dumpPreviewBytes = 64

var errEmptyDumpDir = errors.New("dump directory is empty")

// RequestFrameDump asks the capture loop to write the next frame to dir.
// It may be called in any state. The request waits for the next frame of
// the current or next session; Close and Destroy discard it.
func (c *Camera) RequestFrameDump(dir string) error {
	if dir == "" {
		return newError(KindInvalidPath, "frame dump", errEmptyDumpDir)
	}
	c.dumpDir.Store(&dir)
	c.logger.Info("Frame dump requested", "dir", dir)
	return nil
}

// frameStats summarises a byte buffer for the dump log.
type frameStats struct {
	Min       byte
	Max       byte
	Mean      float64
	ZeroRatio float64
}

func computeStats(data []byte) frameStats {
	if len(data) == 0 {
		return frameStats{}
	}
	st := frameStats{Min: 255}
	var sum uint64
	zeros := 0
	for _, b := range data {
		st.Min = min(st.Min, b)
		st.Max = max(st.Max, b)
		sum += uint64(b)
		if b == 0 {
			zeros++
		}
	}
	st.Mean = float64(sum) / float64(len(data))
	st.ZeroRatio = float64(zeros) / float64(len(data))
	return st
}

// dumpFileName returns frame_<w>x<h>_<suffix>.raw.
func dumpFileName(width, height int, suffix string) string {
	return fmt.Sprintf("frame_%dx%d_%s.raw", width, height, suffix)
}

// dumpFrame writes the raw buffer and, when decoding succeeded, the
// decoded frame. Called on the capture goroutine.
func (c *Camera) dumpFrame(dir string, raw, decoded []byte, decodedOK bool) {
	f := c.format
	if f.Format.Compressed() {
		c.writeDump(dir, dumpFileName(f.Width, f.Height, "mjpeg"), raw)
		if decodedOK {
			c.writeDump(dir, dumpFileName(f.Width, f.Height, "yuv_decoded"), decoded)
		}
		return
	}
	c.writeDump(dir, dumpFileName(f.Width, f.Height, "yuyv_raw"), raw)
}

func (c *Camera) writeDump(dir, name string, data []byte) {
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		c.logger.Warn("Failed to create dump directory", "dir", dir, "error", err)
		return
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		c.logger.Warn("Failed to write frame dump", "path", path, "error", err)
		return
	}

	st := computeStats(data)
	preview := data[:min(len(data), dumpPreviewBytes)]
	c.logger.Info("Frame dumped",
		"path", path,
		"bytes", len(data),
		"min", st.Min,
		"max", st.Max,
		"mean", fmt.Sprintf("%.2f", st.Mean),
		"zero_ratio", fmt.Sprintf("%.4f", st.ZeroRatio),
		"head", hex.EncodeToString(preview))
}
