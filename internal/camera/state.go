package camera

// State is the lifecycle position of a Camera.
type State int32

// Lifecycle states. A session only moves forward one step at a time;
// Stop and Close step back and Destroy returns to Created from anywhere.
const (
	StateCreated State = iota
	StateOpened
	StateConfigured
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateOpened:
		return "opened"
	case StateConfigured:
		return "configured"
	case StateRunning:
		return "running"
	default:
		return "unknown"
	}
}
