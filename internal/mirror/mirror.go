package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/propcore/internal/codec"
	"github.com/nerrad567/propcore/internal/infrastructure/influxdb"
	"github.com/nerrad567/propcore/internal/infrastructure/mqtt"
	"github.com/nerrad567/propcore/internal/permission"
	"github.com/nerrad567/propcore/internal/property"
	"github.com/nerrad567/propcore/internal/store"
)

// queueSize is the number of events buffered between object writers and
// the publishing goroutine.
const queueSize = 1024

// GroupRemote is the permission group remote update documents are applied as.
const GroupRemote = "remote"

// Remote is the identity remote update documents are applied as.
var Remote = permission.User{ID: "mqtt", Groups: []string{GroupRemote}}

// ErrQueueFull is reported when an event is dropped because the publisher
// is not keeping up.
var ErrQueueFull = errors.New("mirror: event queue full")

// Publisher is the MQTT surface the mirror needs. *mqtt.Client implements it.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// Metrics receives telemetry. *influxdb.Client implements it.
type Metrics interface {
	WritePropertyValue(s influxdb.PropertySample) error
	WriteUpdateEnd(objectID string, changed int, at time.Time) error
}

// Broadcaster fans events out to WebSocket clients. *api.Hub implements it.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// Updater applies remote update documents. *store.Registry implements it.
type Updater interface {
	ApplyUpdate(ctx context.Context, id string, doc *property.Document, user permission.User) (property.Status, error)
}

// Logger defines the logging interface used by the Mirror.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config selects what the mirror forwards.
type Config struct {
	Topics mqtt.Topics
	QoS    byte

	// AcceptCBOR lets remote update documents be CBOR; otherwise JSON only.
	AcceptCBOR bool
}

// Mirror forwards the core events of registry objects to MQTT, InfluxDB
// and WebSocket clients, and applies update documents received over MQTT.
//
// Core events are raised while the object's configuration lock is held,
// so the trigger only encodes and queues them; Run publishes.
type Mirror struct {
	cfg     Config
	pub     Publisher
	metrics Metrics
	hub     Broadcaster
	updater Updater

	queue chan Event

	mu       sync.Mutex
	attached map[string]*property.Object

	logger Logger
}

// Option configures a Mirror.
type Option func(*Mirror)

// WithPublisher enables MQTT publishing and remote updates.
func WithPublisher(p Publisher) Option {
	return func(m *Mirror) { m.pub = p }
}

// WithMetrics enables telemetry writes.
func WithMetrics(mt Metrics) Option {
	return func(m *Mirror) { m.metrics = mt }
}

// WithBroadcaster enables WebSocket fan-out.
func WithBroadcaster(b Broadcaster) Option {
	return func(m *Mirror) { m.hub = b }
}

// WithUpdater sets the target of remote update documents.
func WithUpdater(u Updater) Option {
	return func(m *Mirror) { m.updater = u }
}

// New creates a mirror. Sinks left unset are skipped.
func New(cfg Config, opts ...Option) *Mirror {
	m := &Mirror{
		cfg:      cfg,
		queue:    make(chan Event, queueSize),
		attached: make(map[string]*property.Object),
		logger:   noopLogger{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetLogger sets the logger for the mirror.
func (m *Mirror) SetLogger(logger Logger) {
	m.logger = logger
}

// ObjectAdded implements store.Observer: it installs the core-event
// trigger on the object tree and enables it.
func (m *Mirror) ObjectAdded(e store.Entry) {
	obj := e.Object
	obj.SetCoreEventTrigger(m.trigger(e.ID, obj.ClassName()))
	obj.EnableCoreEventTrigger()

	m.mu.Lock()
	m.attached[e.ID] = obj
	m.mu.Unlock()
	m.logger.Debug("mirror attached", "object_id", e.ID, "name", e.Name)
}

// ObjectRemoved implements store.Observer.
func (m *Mirror) ObjectRemoved(e store.Entry) {
	m.mu.Lock()
	obj, ok := m.attached[e.ID]
	delete(m.attached, e.ID)
	m.mu.Unlock()
	if !ok {
		return
	}
	obj.DisableCoreEventTrigger()
	obj.SetCoreEventTrigger(nil)
	m.logger.Debug("mirror detached", "object_id", e.ID, "name", e.Name)
}

// Attached returns the number of objects the mirror follows.
func (m *Mirror) Attached() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.attached)
}

func (m *Mirror) trigger(objectID, className string) property.CoreEventTrigger {
	return func(_ *property.Object, ev property.CoreEvent) {
		event := newEvent(objectID, className, ev, time.Now().UTC())
		select {
		case m.queue <- event:
		default:
			m.logger.Warn("core event dropped", "object_id", objectID, "event", event.Event, "error", ErrQueueFull)
		}
	}
}

// Run publishes queued events until ctx is cancelled, then drains the queue.
func (m *Mirror) Run(ctx context.Context) {
	for {
		select {
		case ev := <-m.queue:
			m.dispatch(ev)
		case <-ctx.Done():
			for {
				select {
				case ev := <-m.queue:
					m.dispatch(ev)
				default:
					return
				}
			}
		}
	}
}

func (m *Mirror) dispatch(ev Event) {
	if m.pub != nil {
		payload, err := json.Marshal(ev)
		if err != nil {
			m.logger.Error("encoding mirror event", "object_id", ev.ObjectID, "error", err)
		} else if err := m.pub.Publish(m.cfg.Topics.ObjectEvent(ev.ObjectID, ev.Event), payload, m.cfg.QoS, false); err != nil {
			m.logger.Warn("publishing mirror event", "object_id", ev.ObjectID, "event", ev.Event, "error", err)
		}
	}
	if m.hub != nil {
		m.hub.Broadcast(Channel(ev.ObjectID), ev)
	}
	if m.metrics != nil {
		m.record(ev)
	}
}

// Channel returns the WebSocket channel carrying one object's events.
func Channel(objectID string) string {
	return "object." + objectID
}

func (m *Mirror) record(ev Event) {
	switch ev.Event {
	case property.CorePropertyValueChanged.String():
		m.writeSample(ev, ev.Name, ev.Value)
	case property.CoreUpdateEnd.String():
		for name, v := range ev.Changes {
			m.writeSample(ev, name, v)
		}
		if err := m.metrics.WriteUpdateEnd(ev.ObjectID, len(ev.Changes), ev.Time); err != nil {
			m.logger.Debug("update telemetry not written", "object_id", ev.ObjectID, "error", err)
		}
	}
}

// writeSample records numeric and boolean values; other kinds are skipped.
func (m *Mirror) writeSample(ev Event, name string, v any) {
	switch v.(type) {
	case int64, float64, bool:
	default:
		return
	}
	err := m.metrics.WritePropertyValue(influxdb.PropertySample{
		ObjectID:  ev.ObjectID,
		ClassName: ev.ClassName,
		Path:      joinPath(ev.Path, name),
		Value:     v,
		Time:      ev.Time,
	})
	if err != nil {
		m.logger.Debug("property telemetry not written", "object_id", ev.ObjectID, "path", name, "error", err)
	}
}

// Start subscribes to the update topic of every object. It is a no-op
// without a publisher or updater.
func (m *Mirror) Start(ctx context.Context) error {
	if m.pub == nil || m.updater == nil {
		return nil
	}
	topic := m.cfg.Topics.AllObjectUpdates()
	if err := m.pub.Subscribe(topic, m.cfg.QoS, m.updateHandler(ctx)); err != nil {
		return fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	m.logger.Info("mirror listening for remote updates", "topic", topic)
	return nil
}

// Stop removes the update subscription.
func (m *Mirror) Stop() error {
	if m.pub == nil || m.updater == nil {
		return nil
	}
	return m.pub.Unsubscribe(m.cfg.Topics.AllObjectUpdates())
}

func (m *Mirror) updateHandler(ctx context.Context) mqtt.MessageHandler {
	return func(topic string, payload []byte) error {
		id, err := m.cfg.Topics.ObjectIDFromUpdateTopic(topic)
		if err != nil {
			return err
		}
		var c codec.Codec = codec.JSON{}
		if m.cfg.AcceptCBOR {
			c = codec.Sniff(payload)
		}
		doc, err := c.Decode(payload)
		if err != nil {
			return fmt.Errorf("decoding update for %s: %w", id, err)
		}
		status, err := m.updater.ApplyUpdate(ctx, id, doc, Remote)
		if err != nil {
			return fmt.Errorf("applying update to %s: %w", id, err)
		}
		m.logger.Debug("remote update applied", "object_id", id, "status", status.String())
		return nil
	}
}
