package api

import (
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/camnode/internal/camera"
	"github.com/smazurov/camnode/internal/capture"
	"github.com/smazurov/camnode/internal/config"
	"github.com/smazurov/camnode/internal/sinks"
)

// statusForKind maps camera error kinds to HTTP status codes.
var statusForKind = map[camera.Kind]int{
	camera.KindWrongState:            http.StatusConflict,
	camera.KindInvalidPath:           http.StatusBadRequest,
	camera.KindDeviceAccess:          http.StatusForbidden,
	camera.KindDeviceUnavailable:     http.StatusNotFound,
	camera.KindNoMatchingDevice:      http.StatusNotFound,
	camera.KindCapabilityUnsupported: http.StatusUnprocessableEntity,
	camera.KindFormatRejected:        http.StatusUnprocessableEntity,
}

// toHTTPError converts a service error into a huma status error.
func toHTTPError(err error) error {
	if err == nil {
		return nil
	}

	var camErr *camera.Error
	if errors.As(err, &camErr) {
		status, ok := statusForKind[camErr.Kind]
		if !ok {
			status = http.StatusInternalServerError
		}
		return huma.NewError(status, err.Error(), &huma.ErrorDetail{
			Location: "camera",
			Message:  string(camErr.Kind),
		})
	}

	switch {
	case errors.Is(err, capture.ErrNotRunning), errors.Is(err, sinks.ErrNoFrame):
		return huma.Error409Conflict(err.Error())
	case errors.Is(err, config.ErrNoDevice):
		return huma.Error400BadRequest(err.Error())
	}
	return huma.Error500InternalServerError(err.Error())
}
