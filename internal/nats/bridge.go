package nats

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/smazurov/camnode/internal/events"
)

// Event kinds used as the last subject token of forwarded events.
const (
	EventKindState     = "state"
	EventKindError     = "error"
	EventKindDiscovery = "discovery"
	EventKindRemoved   = "removed"
)

// Bridge forwards camera events from the local bus to NATS so other
// processes can follow a node without polling its HTTP API.
type Bridge struct {
	url      string
	eventBus *events.Bus
	conn     *nats.Conn
	unsubs   []func()
	logger   *slog.Logger
	mu       sync.Mutex
}

// NewBridge creates a bus-to-NATS bridge.
func NewBridge(url string, eventBus *events.Bus, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}

	return &Bridge{
		url:      url,
		eventBus: eventBus,
		logger:   logger.With("component", "nats-bridge"),
	}
}

// Start connects to NATS and subscribes to the bus.
func (b *Bridge) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	conn, err := nats.Connect(b.url,
		nats.Name("camnode-bridge"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				b.logger.Warn("NATS bridge disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			b.logger.Info("NATS bridge reconnected")
		}),
	)
	if err != nil {
		return err
	}
	b.conn = conn

	b.unsubs = append(b.unsubs,
		b.eventBus.Subscribe(func(e events.StateChangedEvent) { b.forward(EventKindState, e) }),
		b.eventBus.Subscribe(func(e events.CaptureErrorEvent) { b.forward(EventKindError, e) }),
		b.eventBus.Subscribe(func(e events.DeviceDiscoveryEvent) { b.forward(EventKindDiscovery, e) }),
		b.eventBus.Subscribe(func(e events.DeviceRemovedEvent) { b.forward(EventKindRemoved, e) }),
	)

	b.logger.Info("NATS bridge started", "url", b.url)
	return nil
}

func (b *Bridge) forward(kind string, ev events.Event) {
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()
	if conn == nil {
		return
	}

	data, err := json.Marshal(ev)
	if err != nil {
		b.logger.Warn("Failed to marshal event", "kind", kind, "error", err)
		return
	}
	if err := conn.Publish(SubjectEvent(kind), data); err != nil {
		b.logger.Debug("Failed to forward event", "kind", kind, "error", err)
	}
}

// Stop unsubscribes from the bus and closes the connection.
func (b *Bridge) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, unsub := range b.unsubs {
		unsub()
	}
	b.unsubs = nil

	if b.conn != nil {
		_ = b.conn.Flush()
		b.conn.Close()
		b.conn = nil
	}
	b.logger.Info("NATS bridge stopped")
}
