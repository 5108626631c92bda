package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/camnode/internal/api/models"
	"github.com/smazurov/camnode/internal/camera"
	"github.com/smazurov/camnode/internal/config"
	"github.com/smazurov/camnode/internal/sinks"
)

func (s *Server) cameraStatus() models.CameraStatusData {
	st := s.service.Camera().Status()
	data := models.CameraStatusData{
		State:         st.State.String(),
		DevicePath:    st.DevicePath,
		Frames:        st.Frames,
		NATSConnected: s.service.NATSConnected(),
	}
	data.FramesSent, data.FramesSkipped = s.service.PublishedFrames()

	if st.State != camera.StateCreated {
		data.Capability = &models.CapabilityData{
			Driver:       st.Capability.Driver,
			Card:         st.Capability.Card,
			BusInfo:      st.Capability.BusInfo,
			Version:      st.Capability.VersionString(),
			BufferAPI:    st.BufferAPI.String(),
			Capabilities: translateCapabilities(st.Capability.Effective()),
		}
	}
	if st.State == camera.StateConfigured || st.State == camera.StateRunning {
		data.Format = &models.FormatData{
			Width:      st.Format.Width,
			Height:     st.Format.Height,
			Format:     st.Format.Format.String(),
			Layout:     st.Format.Layout.String(),
			FrameBytes: st.Format.PixelBytes,
		}
	}
	if st.State != camera.StateCreated {
		// Not every driver exposes exposure controls.
		if exp, err := s.service.Camera().Exposure(); err == nil {
			data.Exposure = &models.ExposureData{Auto: exp.Auto, Level: exp.Level}
		}
	}
	if st.LoopErr != nil {
		data.LoopError = st.LoopErr.Error()
	}
	return data
}

func (s *Server) message(msg string) *models.MessageResponse {
	return &models.MessageResponse{Body: models.MessageData{Message: msg}}
}

// lifecycleRoute registers a body-less POST that runs one camera call.
func (s *Server) lifecycleRoute(id, path, summary, doc, done string, call func() error) {
	huma.Register(s.api, huma.Operation{
		OperationID: id,
		Method:      http.MethodPost,
		Path:        path,
		Summary:     summary,
		Description: doc,
		Tags:        []string{"camera"},
		Security:    withAuth(),
		Errors:      []int{401, 409, 500},
	}, func(ctx context.Context, input *struct{}) (*models.MessageResponse, error) {
		if err := call(); err != nil {
			return nil, toHTTPError(err)
		}
		return s.message(done), nil
	})
}

func (s *Server) registerCameraRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "camera-status",
		Method:      http.MethodGet,
		Path:        "/api/camera",
		Summary:     "Camera Status",
		Description: "Lifecycle state, queried capabilities and negotiated format of the camera session",
		Tags:        []string{"camera"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(ctx context.Context, input *struct{}) (*models.CameraStatusResponse, error) {
		return &models.CameraStatusResponse{Body: s.cameraStatus()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "camera-connect",
		Method:      http.MethodPost,
		Path:        "/api/camera/connect",
		Summary:     "Connect",
		Description: "Open a capture node by path, or the first node with the given USB vendor and product id",
		Tags:        []string{"camera"},
		Security:    withAuth(),
		Errors:      []int{400, 401, 403, 404, 409, 422, 500},
	}, func(ctx context.Context, input *models.ConnectRequest) (*models.CameraStatusResponse, error) {
		body := input.Body
		var err error
		switch {
		case body.Device != "":
			err = s.service.ConnectByPath(body.Device)
		case body.VendorID != "" && body.ProductID != "":
			vendor, verr := config.ParseUSBID(body.VendorID)
			product, perr := config.ParseUSBID(body.ProductID)
			if verr != nil || perr != nil {
				return nil, huma.Error400BadRequest("invalid USB id", errors.Join(verr, perr))
			}
			err = s.service.ConnectByID(vendor, product)
		default:
			return nil, huma.Error400BadRequest("device or vendor_id and product_id required")
		}
		if err != nil {
			return nil, toHTTPError(err)
		}
		return &models.CameraStatusResponse{Body: s.cameraStatus()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "camera-configure",
		Method:      http.MethodPost,
		Path:        "/api/camera/configure",
		Summary:     "Configure",
		Description: "Negotiate a capture format and prepare the decoder",
		Tags:        []string{"camera"},
		Security:    withAuth(),
		Errors:      []int{400, 401, 409, 422, 500},
	}, func(ctx context.Context, input *models.ConfigureRequest) (*models.CameraStatusResponse, error) {
		format, err := camera.ParseFrameFormat(input.Body.Format)
		if err != nil {
			return nil, huma.Error400BadRequest(err.Error())
		}
		if err := s.service.Configure(input.Body.Width, input.Body.Height, format); err != nil {
			return nil, toHTTPError(err)
		}
		return &models.CameraStatusResponse{Body: s.cameraStatus()}, nil
	})

	s.lifecycleRoute("camera-start", "/api/camera/start", "Start",
		"Start streaming frames to the registered sinks", "camera started", s.service.Start)
	s.lifecycleRoute("camera-stop", "/api/camera/stop", "Stop",
		"Stop streaming and keep the session configured", "camera stopped", s.service.Stop)
	s.lifecycleRoute("camera-close", "/api/camera/close", "Close",
		"Release a stopped session", "camera closed", s.service.Close)
	s.lifecycleRoute("camera-destroy", "/api/camera/destroy", "Destroy",
		"Tear the session down from any state", "camera destroyed", func() error {
			s.service.Destroy()
			return nil
		})

	huma.Register(s.api, huma.Operation{
		OperationID: "camera-exposure",
		Method:      http.MethodPut,
		Path:        "/api/camera/exposure",
		Summary:     "Exposure",
		Description: "Write the automatic exposure mode and the absolute exposure level",
		Tags:        []string{"camera"},
		Security:    withAuth(),
		Errors:      []int{400, 401, 409, 500},
	}, func(ctx context.Context, input *models.ExposureRequest) (*models.MessageResponse, error) {
		if input.Body.Auto == nil && input.Body.Level == nil {
			return nil, huma.Error400BadRequest("auto or level required")
		}
		err := s.service.ApplyExposure(config.CameraConfig{
			AutoExposure: input.Body.Auto,
			Exposure:     input.Body.Level,
		})
		if err != nil {
			return nil, toHTTPError(err)
		}
		return s.message("exposure updated"), nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "camera-resolutions",
		Method:      http.MethodGet,
		Path:        "/api/camera/resolutions",
		Summary:     "Resolutions",
		Description: "Frame sizes supported by the open device across all its formats, with the frame rates of each",
		Tags:        []string{"camera"},
		Security:    withAuth(),
		Errors:      []int{401, 404, 409},
	}, func(ctx context.Context, input *struct{}) (*models.ResolutionsResponse, error) {
		sizes, err := s.service.Camera().SupportedSizes()
		if err != nil {
			return nil, toHTTPError(err)
		}
		out := make([]models.ResolutionData, len(sizes))
		for i, r := range sizes {
			out[i] = models.ResolutionData{Width: r.Width, Height: r.Height}
			for _, f := range camera.FrameFormats {
				fps, err := s.service.Camera().FrameRates(f, r.Width, r.Height)
				if err != nil {
					return nil, toHTTPError(err)
				}
				if len(fps) == 0 {
					continue
				}
				if out[i].FPS == nil {
					out[i].FPS = make(map[string][]float64)
				}
				out[i].FPS[f.String()] = fps
			}
		}
		return &models.ResolutionsResponse{
			Body: models.ResolutionsData{Resolutions: out, Count: len(out)},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID:   "camera-dump",
		Method:        http.MethodPost,
		Path:          "/api/camera/dump",
		Summary:       "Dump Frame",
		Description:   "Write the next captured frame to files in dir for inspection",
		Tags:          []string{"camera", "debug"},
		Security:      withAuth(),
		DefaultStatus: http.StatusAccepted,
		Errors:        []int{400, 401, 409},
	}, func(ctx context.Context, input *models.DumpRequest) (*models.MessageResponse, error) {
		if s.service.Camera().State() != camera.StateRunning {
			return nil, huma.Error409Conflict("camera is not capturing")
		}
		if err := s.service.Camera().RequestFrameDump(input.Body.Dir); err != nil {
			return nil, toHTTPError(err)
		}
		return s.message("dump armed for next frame"), nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "camera-frame",
		Method:      http.MethodGet,
		Path:        "/api/camera/frame",
		Summary:     "Latest Frame",
		Description: "The most recent frame delivered to the render sink, raw or JPEG encoded",
		Tags:        []string{"camera"},
		Security:    withAuth(),
		Errors:      []int{401, 409, 422},
	}, func(ctx context.Context, input *models.FrameRequest) (*models.FrameResponse, error) {
		f, err := s.service.Snapshot()
		if err != nil {
			return nil, toHTTPError(err)
		}
		resp := &models.FrameResponse{
			ContentType: "application/octet-stream",
			Width:       strconv.Itoa(f.Width),
			Height:      strconv.Itoa(f.Height),
			Layout:      f.Layout.String(),
			Sequence:    strconv.FormatUint(f.Sequence, 10),
			Body:        f.Data,
		}
		if input.Encoding == "jpeg" {
			data, err := sinks.EncodeJPEG(f, input.Quality)
			if err != nil {
				return nil, huma.Error422UnprocessableEntity("frame cannot be encoded", err)
			}
			resp.ContentType = "image/jpeg"
			resp.Body = data
		}
		return resp, nil
	})
}
