package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/smazurov/camnode/internal/camera"
	"github.com/smazurov/camnode/internal/sinks"
)

// ErrNotRunning is returned by snapshot calls while no capture is active
// and no frame has been kept from an earlier one.
var ErrNotRunning = errors.New("camera is not capturing")

// Snapshot returns a copy of the latest frame.
func (s *Service) Snapshot() (camera.Frame, error) {
	f, err := s.latest.Snapshot()
	if errors.Is(err, sinks.ErrNoFrame) && s.cam.State() != camera.StateRunning {
		return camera.Frame{}, ErrNotRunning
	}
	return f, err
}

// SnapshotJPEG returns the latest frame encoded as JPEG.
func (s *Service) SnapshotJPEG(quality int) ([]byte, error) {
	f, err := s.Snapshot()
	if err != nil {
		return nil, err
	}
	return sinks.EncodeJPEG(f, quality)
}

// WaitForFrame waits until a frame newer than after has been captured,
// polling the latest frame holder.
func (s *Service) WaitForFrame(ctx context.Context, after uint64) (camera.Frame, error) {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for {
		if f, err := s.latest.Snapshot(); err == nil && f.Sequence > after {
			return f, nil
		}
		if s.cam.State() != camera.StateRunning {
			return camera.Frame{}, ErrNotRunning
		}
		select {
		case <-ctx.Done():
			return camera.Frame{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

// SaveSnapshot writes the latest frame as a JPEG file, creating the
// output directory when needed.
func (s *Service) SaveSnapshot(outputPath string, quality int) error {
	data, err := s.SnapshotJPEG(quality)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(outputPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(outputPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	s.logger.Info("Snapshot saved", "path", outputPath, "bytes", len(data))
	return nil
}
