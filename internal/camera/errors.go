package camera

import "fmt"

// Kind classifies camera failures.
type Kind string

// Error kinds.
const (
	KindWrongState            Kind = "WRONG_STATE"
	KindInvalidPath           Kind = "INVALID_PATH"
	KindDeviceAccess          Kind = "DEVICE_ACCESS"
	KindDeviceUnavailable     Kind = "DEVICE_UNAVAILABLE"
	KindNoMatchingDevice      Kind = "NO_MATCHING_DEVICE"
	KindCapabilityUnsupported Kind = "CAPABILITY_UNSUPPORTED"
	KindFormatRejected        Kind = "FORMAT_REJECTED"
	KindDecoderInitFailed     Kind = "DECODER_INIT_FAILED"
	KindBufferAllocation      Kind = "BUFFER_ALLOCATION"
	KindStreamControl         Kind = "STREAM_CONTROL"
	KindIOFault               Kind = "IO_FAULT"
	KindControlFailed         Kind = "CONTROL_FAILED"
)

var kindMessages = map[Kind]string{
	KindWrongState:            "operation not allowed in current state",
	KindInvalidPath:           "invalid device path",
	KindDeviceAccess:          "permission denied opening device",
	KindDeviceUnavailable:     "device unavailable",
	KindNoMatchingDevice:      "no device matches the USB identity",
	KindCapabilityUnsupported: "device cannot capture video",
	KindFormatRejected:        "format rejected by driver",
	KindDecoderInitFailed:     "decoder initialisation failed",
	KindBufferAllocation:      "buffer allocation failed",
	KindStreamControl:         "stream control failed",
	KindIOFault:               "capture I/O fault",
	KindControlFailed:         "control write failed",
}

// Error is returned by every Camera operation.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	msg := kindMessages[e.Kind]
	if msg == "" {
		msg = string(e.Kind)
	}
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("camera %s: %s: %v", e.Op, msg, e.Err)
	case e.Op != "":
		return fmt.Sprintf("camera %s: %s", e.Op, msg)
	case e.Err != nil:
		return fmt.Sprintf("camera: %s: %v", msg, e.Err)
	default:
		return "camera: " + msg
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the kind sentinels below. A missing USB device also counts
// as an unavailable device.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Op != "" || t.Err != nil {
		return false
	}
	if e.Kind == t.Kind {
		return true
	}
	return e.Kind == KindNoMatchingDevice && t.Kind == KindDeviceUnavailable
}

// Sentinels for errors.Is.
var (
	ErrWrongState            = &Error{Kind: KindWrongState}
	ErrInvalidPath           = &Error{Kind: KindInvalidPath}
	ErrDeviceAccess          = &Error{Kind: KindDeviceAccess}
	ErrDeviceUnavailable     = &Error{Kind: KindDeviceUnavailable}
	ErrNoMatchingDevice      = &Error{Kind: KindNoMatchingDevice}
	ErrCapabilityUnsupported = &Error{Kind: KindCapabilityUnsupported}
	ErrFormatRejected        = &Error{Kind: KindFormatRejected}
	ErrDecoderInitFailed     = &Error{Kind: KindDecoderInitFailed}
	ErrBufferAllocation      = &Error{Kind: KindBufferAllocation}
	ErrStreamControl         = &Error{Kind: KindStreamControl}
	ErrIOFault               = &Error{Kind: KindIOFault}
	ErrControlFailed         = &Error{Kind: KindControlFailed}
)

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func wrongState(op string, have State, want ...State) *Error {
	return newError(KindWrongState, op, fmt.Errorf("state is %s, requires %v", have, want))
}
