package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/camnode/internal/api/models"
)

// capabilityNames maps V4L2_CAP_* bits (linux/videodev2.h) to readable
// names, in bit order.
var capabilityNames = []struct {
	bit  uint32
	name string
}{
	{0x00000001, "Video Capture"},
	{0x00000002, "Video Output"},
	{0x00000004, "Video Overlay"},
	{0x00000010, "VBI Capture"},
	{0x00000020, "VBI Output"},
	{0x00000040, "Sliced VBI Capture"},
	{0x00000080, "Sliced VBI Output"},
	{0x00000100, "RDS Capture"},
	{0x00000200, "Video Output Overlay"},
	{0x00000400, "Hardware Frequency Seek"},
	{0x00000800, "RDS Output"},
	{0x00001000, "Multi-planar Video Capture"},
	{0x00002000, "Multi-planar Video Output"},
	{0x00004000, "Multi-planar Memory-to-Memory"},
	{0x00008000, "Memory-to-Memory"},
	{0x00010000, "Tuner"},
	{0x00020000, "Audio"},
	{0x00040000, "Radio"},
	{0x00080000, "Modulator"},
	{0x00100000, "Software Defined Radio Capture"},
	{0x00200000, "Extended Pixel Format"},
	{0x00400000, "Software Defined Radio Output"},
	{0x00800000, "Metadata Capture"},
	{0x01000000, "Read/Write I/O"},
	{0x02000000, "Asynchronous I/O"},
	{0x04000000, "Streaming I/O"},
	{0x08000000, "Metadata Output"},
	{0x10000000, "Touch Device"},
	{0x20000000, "Media Controller I/O"},
}

// translateCapabilities converts V4L2 capability flags to readable strings.
func translateCapabilities(caps uint32) []string {
	out := []string{}
	for _, c := range capabilityNames {
		if caps&c.bit != 0 {
			out = append(out, c.name)
		}
	}
	return out
}

func usbID(id uint16) string {
	if id == 0 {
		return ""
	}
	return fmt.Sprintf("%04x", id)
}

// devicesData lists the video nodes on the system.
func (s *Server) devicesData() (models.DeviceData, error) {
	found, err := s.listDevices()
	if err != nil {
		return models.DeviceData{}, fmt.Errorf("failed to find devices: %w", err)
	}

	devices := make([]models.DeviceInfo, len(found))
	for i, d := range found {
		devices[i] = models.DeviceInfo{
			DevicePath:   d.DevicePath,
			DeviceName:   d.DeviceName,
			DeviceID:     d.DeviceID,
			VendorID:     usbID(d.VendorID),
			ProductID:    usbID(d.ProductID),
			Caps:         d.Caps,
			Capabilities: translateCapabilities(d.Caps),
		}
	}
	return models.DeviceData{Devices: devices, Count: len(devices)}, nil
}

func (s *Server) registerDeviceRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-devices",
		Method:      http.MethodGet,
		Path:        "/api/devices",
		Summary:     "List Devices",
		Description: "List all V4L2 video nodes with their USB identity",
		Tags:        []string{"devices"},
		Security:    withAuth(),
		Errors:      []int{401, 500},
	}, func(ctx context.Context, input *struct{}) (*models.DeviceResponse, error) {
		data, err := s.devicesData()
		if err != nil {
			return nil, huma.Error500InternalServerError("Failed to get devices", err)
		}
		return &models.DeviceResponse{Body: data}, nil
	})
}
