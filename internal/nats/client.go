package nats

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// ErrNotConnected is returned by publishes while the client is offline.
var ErrNotConnected = errors.New("nats: not connected")

// Client publishes the frames and state of one camera and receives its
// control commands. It keeps working without a server: publishes fail
// with ErrNotConnected and reconnects happen in the background.
type Client struct {
	url       string
	device    string
	logger    *slog.Logger
	mu        sync.RWMutex
	conn      *nats.Conn
	sub       *nats.Subscription
	onControl func(ControlMessage)
	connected bool
}

// NewClient returns an unconnected client for device.
func NewClient(url, device string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		url:    url,
		device: device,
		logger: logger.With("component", "nats-client", "device", device),
	}
}

// Connect dials the server. On failure the client stays usable offline.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn, err := nats.Connect(c.url,
		nats.Name("camnode-"+DeviceToken(c.device)),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			c.setConnected(false)
			if err != nil {
				c.logger.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			c.setConnected(true)
			c.logger.Info("NATS reconnected")
		}),
	)
	if err != nil {
		c.logger.Warn("Failed to connect to NATS, running in offline mode", "error", err)
		return err
	}

	c.conn = conn
	c.connected = true
	c.logger.Info("Connected to NATS", "url", c.url, "max_payload", conn.MaxPayload())
	c.subscribeControlLocked()
	return nil
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}

// subscribeControlLocked subscribes the control handler. Callers hold mu.
// The connection resubscribes by itself after a reconnect.
func (c *Client) subscribeControlLocked() {
	if c.conn == nil || c.onControl == nil {
		return
	}
	if c.sub != nil {
		_ = c.sub.Unsubscribe()
		c.sub = nil
	}

	handler := c.onControl
	sub, err := c.conn.Subscribe(SubjectControl(c.device), func(msg *nats.Msg) {
		ctrl, err := UnmarshalControl(msg.Data)
		if err != nil {
			c.logger.Warn("Failed to unmarshal control message", "error", err)
			return
		}
		c.logger.Info("Received control command", "action", ctrl.Action, "reason", ctrl.Reason)
		handler(ctrl)
	})
	if err != nil {
		c.logger.Warn("Failed to subscribe to control commands", "error", err)
		return
	}
	c.sub = sub
}

// OnControl installs the handler for commands sent to this device.
func (c *Client) OnControl(fn func(ControlMessage)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onControl = fn
	c.subscribeControlLocked()
}

func (c *Client) liveConn() *nats.Conn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.connected {
		return nil
	}
	return c.conn
}

// PublishFrame publishes one frame. data is copied into the connection
// buffer before PublishFrame returns.
func (c *Client) PublishFrame(meta FrameMeta, data []byte) error {
	conn := c.liveConn()
	if conn == nil {
		return ErrNotConnected
	}
	return conn.PublishMsg(&nats.Msg{
		Subject: SubjectFrames(c.device),
		Header:  meta.Header(),
		Data:    data,
	})
}

// PublishState publishes a lifecycle transition. It is a no-op offline.
func (c *Client) PublishState(m StateMessage) {
	conn := c.liveConn()
	if conn == nil {
		return
	}
	data, err := m.Marshal()
	if err != nil {
		c.logger.Warn("Failed to marshal state", "error", err)
		return
	}
	if err := conn.Publish(SubjectState(c.device), data); err != nil {
		c.logger.Warn("Failed to publish state", "error", err)
	}
}

// Flush waits until the server has processed everything published so far.
func (c *Client) Flush() error {
	conn := c.liveConn()
	if conn == nil {
		return ErrNotConnected
	}
	return conn.Flush()
}

// IsConnected reports whether the client has a live connection.
func (c *Client) IsConnected() bool {
	return c.liveConn() != nil
}

// Close drops the subscription and the connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sub != nil {
		_ = c.sub.Unsubscribe()
		c.sub = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connected = false
}

// ControlPublisher sends commands to running nodes.
type ControlPublisher struct {
	conn   *nats.Conn
	logger *slog.Logger
}

// NewControlPublisher connects to url.
func NewControlPublisher(url string, logger *slog.Logger) (*ControlPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := nats.Connect(url,
		nats.Name("camnode-control"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(5),
	)
	if err != nil {
		return nil, err
	}
	return &ControlPublisher{conn: conn, logger: logger.With("component", "nats-control")}, nil
}

// Send publishes msg to the control subject of msg.Device and flushes.
func (p *ControlPublisher) Send(msg ControlMessage) error {
	if msg.Timestamp == "" {
		msg.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	data, err := msg.Marshal()
	if err != nil {
		return err
	}
	if err := p.conn.Publish(SubjectControl(msg.Device), data); err != nil {
		return err
	}
	p.logger.Info("Sent control command", "device", msg.Device, "action", msg.Action)
	return p.conn.Flush()
}

// Dump asks device to write its next frame to dir.
func (p *ControlPublisher) Dump(device, dir, reason string) error {
	return p.Send(ControlMessage{Action: ActionDump, Device: device, Dir: dir, Reason: reason})
}

// Close closes the connection.
func (p *ControlPublisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}

// FrameSubscription receives frames published by a Client.
type FrameSubscription struct {
	conn *nats.Conn
	sub  *nats.Subscription
}

// SubscribeFrames calls fn for every frame of device. Messages with
// malformed headers are skipped.
func SubscribeFrames(url, device string, logger *slog.Logger, fn func(FrameMeta, []byte)) (*FrameSubscription, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := nats.Connect(url, nats.Name("camnode-viewer"))
	if err != nil {
		return nil, err
	}
	sub, err := conn.Subscribe(SubjectFrames(device), func(msg *nats.Msg) {
		meta, err := ParseFrameMeta(msg.Header)
		if err != nil {
			logger.Warn("Skipping frame with bad headers", "subject", msg.Subject, "error", err)
			return
		}
		fn(meta, msg.Data)
	})
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := conn.Flush(); err != nil {
		conn.Close()
		return nil, err
	}
	return &FrameSubscription{conn: conn, sub: sub}, nil
}

// Close unsubscribes and disconnects.
func (s *FrameSubscription) Close() {
	_ = s.sub.Unsubscribe()
	s.conn.Close()
}
