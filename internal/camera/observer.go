package camera

// Observer receives lifecycle and capture loop notifications. Loop
// notifications arrive on the capture goroutine and must not block or call
// back into the Camera.
type Observer interface {
	StateChanged(from, to State)
	FrameDelivered(f Frame)
	FrameDropped(err error)
	IdleTimeout()
	RequeueFailed(index uint32, err error)
	SinkFailed(sink string, err error)
	LoopFailed(err error)
}

// NopObserver ignores every notification. Embed it to implement a subset.
type NopObserver struct{}

func (NopObserver) StateChanged(State, State) {}
func (NopObserver) FrameDelivered(Frame) {}
func (NopObserver) FrameDropped(error) {}
func (NopObserver) IdleTimeout() {}
func (NopObserver) RequeueFailed(uint32, error) {}
func (NopObserver) SinkFailed(string, error) {}
func (NopObserver) LoopFailed(error) {}

type multiObserver []Observer

// Observers fans notifications out to every observer in order.
func Observers(obs ...Observer) Observer {
	return multiObserver(obs)
}

func (m multiObserver) StateChanged(from, to State) {
	for _, o := range m {
		o.StateChanged(from, to)
	}
}

func (m multiObserver) FrameDelivered(f Frame) {
	for _, o := range m {
		o.FrameDelivered(f)
	}
}

func (m multiObserver) FrameDropped(err error) {
	for _, o := range m {
		o.FrameDropped(err)
	}
}

func (m multiObserver) IdleTimeout() {
	for _, o := range m {
		o.IdleTimeout()
	}
}

func (m multiObserver) RequeueFailed(index uint32, err error) {
	for _, o := range m {
		o.RequeueFailed(index, err)
	}
}

func (m multiObserver) SinkFailed(sink string, err error) {
	for _, o := range m {
		o.SinkFailed(sink, err)
	}
}

func (m multiObserver) LoopFailed(err error) {
	for _, o := range m {
		o.LoopFailed(err)
	}
}
