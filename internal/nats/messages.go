package nats

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// Subject prefixes.
const (
	SubjectFramesPrefix  = "camnode.frames"
	SubjectStatePrefix   = "camnode.state"
	SubjectControlPrefix = "camnode.control"
	SubjectEventsPrefix  = "camnode.events"
)

// Frame message headers.
const (
	HeaderWidth     = "Camnode-Width"
	HeaderHeight    = "Camnode-Height"
	HeaderLayout    = "Camnode-Layout"
	HeaderSequence  = "Camnode-Sequence"
	HeaderTimestamp = "Camnode-Timestamp"
)

// Control actions.
const (
	ActionDump  = "dump"
	ActionStart = "start"
	ActionStop  = "stop"
)

// DeviceToken turns a device path into a subject token: /dev/video0
// becomes video0. Dots and wildcards are replaced with underscores.
func DeviceToken(device string) string {
	token := filepath.Base(device)
	if token == "." || token == "/" || token == "" {
		return "unknown"
	}
	return strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_").Replace(token)
}

// SubjectFrames returns the subject frames of device are published on.
func SubjectFrames(device string) string {
	return SubjectFramesPrefix + "." + DeviceToken(device)
}

// SubjectState returns the subject state changes of device are published on.
func SubjectState(device string) string {
	return SubjectStatePrefix + "." + DeviceToken(device)
}

// SubjectControl returns the subject device listens to for commands.
func SubjectControl(device string) string {
	return SubjectControlPrefix + "." + DeviceToken(device)
}

// SubjectEvent returns the subject a forwarded bus event of kind is
// published on.
func SubjectEvent(kind string) string {
	return SubjectEventsPrefix + "." + kind
}

// FrameMeta describes a frame payload. It travels in message headers so
// the body stays raw pixels.
type FrameMeta struct {
	Width     int
	Height    int
	Layout    string
	Sequence  uint64
	Timestamp time.Time
}

// Header encodes m as NATS headers.
func (m FrameMeta) Header() nats.Header {
	h := nats.Header{}
	h.Set(HeaderWidth, strconv.Itoa(m.Width))
	h.Set(HeaderHeight, strconv.Itoa(m.Height))
	h.Set(HeaderLayout, m.Layout)
	h.Set(HeaderSequence, strconv.FormatUint(m.Sequence, 10))
	h.Set(HeaderTimestamp, m.Timestamp.UTC().Format(time.RFC3339Nano))
	return h
}

// ParseFrameMeta decodes headers written by FrameMeta.Header.
func ParseFrameMeta(h nats.Header) (FrameMeta, error) {
	var (
		m   FrameMeta
		err error
	)
	if m.Width, err = strconv.Atoi(h.Get(HeaderWidth)); err != nil {
		return FrameMeta{}, fmt.Errorf("width header: %w", err)
	}
	if m.Height, err = strconv.Atoi(h.Get(HeaderHeight)); err != nil {
		return FrameMeta{}, fmt.Errorf("height header: %w", err)
	}
	if m.Sequence, err = strconv.ParseUint(h.Get(HeaderSequence), 10, 64); err != nil {
		return FrameMeta{}, fmt.Errorf("sequence header: %w", err)
	}
	if ts := h.Get(HeaderTimestamp); ts != "" {
		if m.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return FrameMeta{}, fmt.Errorf("timestamp header: %w", err)
		}
	}
	m.Layout = h.Get(HeaderLayout)
	return m, nil
}

// StateMessage reports a camera lifecycle transition.
type StateMessage struct {
	Device    string `json:"device"`
	Timestamp string `json:"timestamp"`
	From      string `json:"from"`
	To        string `json:"to"`
}

// Marshal serializes the message to JSON.
func (m StateMessage) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// ControlMessage is a command sent to a running node.
type ControlMessage struct {
	Action    string `json:"action"`
	Device    string `json:"device"`
	Dir       string `json:"dir,omitempty"` // dump target directory
	Timestamp string `json:"timestamp"`
	Reason    string `json:"reason,omitempty"`
}

// Marshal serializes the message to JSON.
func (m ControlMessage) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// UnmarshalState deserializes a StateMessage.
func UnmarshalState(data []byte) (StateMessage, error) {
	var m StateMessage
	err := json.Unmarshal(data, &m)
	return m, err
}

// UnmarshalControl deserializes a ControlMessage.
func UnmarshalControl(data []byte) (ControlMessage, error) {
	var m ControlMessage
	err := json.Unmarshal(data, &m)
	return m, err
}
