package mqtt

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/propcore/internal/infrastructure/config"
)

// fakeToken completes immediately with err.
type fakeToken struct {
	err     error
	timeout bool
}

func (t *fakeToken) Wait() bool                     { return !t.timeout }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return !t.timeout }
func (t *fakeToken) Error() error                   { return t.err }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 0 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// fakePaho is an in-process broker: publishes are recorded and delivered
// synchronously to matching subscriptions.
type fakePaho struct {
	mu           sync.Mutex
	connected    bool
	published    []published
	handlers     map[string]pahomqtt.MessageHandler
	subscribeErr error
	disconnected bool
}

func newFakePaho() *fakePaho {
	return &fakePaho{connected: true, handlers: make(map[string]pahomqtt.MessageHandler)}
}

func (f *fakePaho) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakePaho) IsConnectionOpen() bool { return f.IsConnected() }

func (f *fakePaho) Connect() pahomqtt.Token {
	return &fakeToken{}
}

func (f *fakePaho) Disconnect(uint) {
	f.mu.Lock()
	f.connected, f.disconnected = false, true
	f.mu.Unlock()
}

func (f *fakePaho) Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token {
	var data []byte
	switch p := payload.(type) {
	case []byte:
		data = p
	case string:
		data = []byte(p)
	}
	f.mu.Lock()
	f.published = append(f.published, published{topic, qos, retained, data})
	var targets []pahomqtt.MessageHandler
	for filter, h := range f.handlers {
		if topicMatches(filter, topic) {
			targets = append(targets, h)
		}
	}
	f.mu.Unlock()
	for _, h := range targets {
		h(f, fakeMessage{topic: topic, payload: data})
	}
	return &fakeToken{}
}

func (f *fakePaho) Subscribe(topic string, _ byte, callback pahomqtt.MessageHandler) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribeErr != nil {
		return &fakeToken{err: f.subscribeErr}
	}
	f.handlers[topic] = callback
	return &fakeToken{}
}

func (f *fakePaho) SubscribeMultiple(map[string]byte, pahomqtt.MessageHandler) pahomqtt.Token {
	return &fakeToken{}
}

func (f *fakePaho) Unsubscribe(topics ...string) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range topics {
		delete(f.handlers, t)
	}
	return &fakeToken{}
}

func (f *fakePaho) AddRoute(string, pahomqtt.MessageHandler) {}
func (f *fakePaho) OptionsReader() pahomqtt.ClientOptionsReader {
	return pahomqtt.ClientOptionsReader{}
}

func (f *fakePaho) lastPublished() published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.published[len(f.published)-1]
}

// topicMatches implements MQTT filter matching for + and #.
func topicMatches(filter, topic string) bool {
	fp, tp := strings.Split(filter, "/"), strings.Split(topic, "/")
	for i, f := range fp {
		if f == "#" {
			return true
		}
		if i >= len(tp) || (f != "+" && f != tp[i]) {
			return false
		}
	}
	return len(fp) == len(tp)
}

func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{Host: "127.0.0.1", Port: 1883, ClientID: "propcore-test"},
		QoS:    1,
	}
}

func connectedClient(t *testing.T) (*Client, *fakePaho) {
	t.Helper()
	fake := newFakePaho()
	c := newClient(fake, testConfig(), Topics{Prefix: "lab"})
	c.handleConnect()
	return c, fake
}

type recordingLogger struct {
	mu    sync.Mutex
	warns []string
	errs  []string
}

func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}

func (l *recordingLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	l.errs = append(l.errs, msg)
	l.mu.Unlock()
}

func TestClient_ConnectPublishesOnlineStatus(t *testing.T) {
	c, fake := connectedClient(t)

	if !c.IsConnected() {
		t.Fatal("IsConnected() = false, want true")
	}
	status := fake.lastPublished()
	if status.topic != "lab/system/status" || !status.retained {
		t.Errorf("status publish = %+v, want retained on lab/system/status", status)
	}
	if !strings.Contains(string(status.payload), `"status":"online"`) {
		t.Errorf("status payload = %s", status.payload)
	}
}

func TestClient_Publish(t *testing.T) {
	tests := []struct {
		name    string
		topic   string
		qos     byte
		payload []byte
		wantErr error
	}{
		{"valid", "lab/event/a/x", 1, []byte("{}"), nil},
		{"nil payload", "lab/event/a/x", 0, nil, nil},
		{"empty topic", "", 1, nil, ErrInvalidTopic},
		{"invalid QoS", "lab/event/a/x", 3, nil, ErrInvalidQoS},
		{"oversized payload", "lab/event/a/x", 1, make([]byte, maxPayloadSize+1), ErrPublishFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := connectedClient(t)
			err := c.Publish(tt.topic, tt.payload, tt.qos, false)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("Publish() error = %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Publish() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestClient_PublishRetained(t *testing.T) {
	c, fake := connectedClient(t)
	if err := c.PublishRetained("lab/x", []byte("1")); err != nil {
		t.Fatalf("PublishRetained() error = %v", err)
	}
	if got := fake.lastPublished(); !got.retained || got.qos != 1 {
		t.Errorf("PublishRetained() sent %+v, want retained QoS 1", got)
	}
}

func TestClient_Disconnected(t *testing.T) {
	fake := newFakePaho()
	c := newClient(fake, testConfig(), Topics{})

	if err := c.Publish("x", nil, 0, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() error = %v, want ErrNotConnected", err)
	}
	if err := c.Subscribe("x", 0, func(string, []byte) error { return nil }); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Subscribe() error = %v, want ErrNotConnected", err)
	}
	if err := c.Unsubscribe("x"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Unsubscribe() error = %v, want ErrNotConnected", err)
	}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

func TestClient_SubscribeRoundtrip(t *testing.T) {
	c, _ := connectedClient(t)
	topics := c.Topics()

	var got []string
	err := c.Subscribe(topics.AllObjectUpdates(), 1, func(topic string, payload []byte) error {
		id, err := topics.ObjectIDFromUpdateTopic(topic)
		if err != nil {
			return err
		}
		got = append(got, id+"="+string(payload))
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if !c.HasSubscription("lab/update/+") || c.SubscriptionCount() != 1 {
		t.Errorf("subscription not tracked")
	}

	if err := c.Publish(topics.ObjectUpdate("obj-1"), []byte("doc"), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if err := c.Publish(topics.ObjectEvent("obj-1", "update_end"), []byte("ignored"), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if len(got) != 1 || got[0] != "obj-1=doc" {
		t.Errorf("received = %v, want [obj-1=doc]", got)
	}

	if err := c.Unsubscribe(topics.AllObjectUpdates()); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}
	if c.HasSubscription(topics.AllObjectUpdates()) {
		t.Error("HasSubscription() = true after Unsubscribe")
	}
}

func TestClient_SubscribeValidation(t *testing.T) {
	c, fake := connectedClient(t)
	noop := func(string, []byte) error { return nil }

	if err := c.Subscribe("", 1, noop); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Subscribe(\"\") error = %v, want ErrInvalidTopic", err)
	}
	if err := c.Subscribe("x", 3, noop); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("Subscribe(qos 3) error = %v, want ErrInvalidQoS", err)
	}
	if err := c.Subscribe("x", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("Subscribe(nil) error = %v, want ErrSubscribeFailed", err)
	}

	fake.subscribeErr = errors.New("not authorized")
	if err := c.Subscribe("x", 1, noop); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("Subscribe() broker error = %v, want ErrSubscribeFailed", err)
	}
	if c.HasSubscription("x") {
		t.Error("failed subscription still tracked")
	}
}

func TestClient_HandlerErrorsAndPanicsAreLogged(t *testing.T) {
	c, _ := connectedClient(t)
	logger := &recordingLogger{}
	c.SetLogger(logger)

	c.Subscribe("lab/err", 1, func(string, []byte) error { return errors.New("bad document") }) //nolint:errcheck // fake broker
	c.Subscribe("lab/panic", 1, func(string, []byte) error { panic("boom") })                   //nolint:errcheck // fake broker

	c.Publish("lab/err", nil, 1, false)   //nolint:errcheck // fake broker
	c.Publish("lab/panic", nil, 1, false) //nolint:errcheck // fake broker

	if len(logger.warns) != 1 || len(logger.errs) != 1 {
		t.Errorf("logged warns=%v errs=%v, want one of each", logger.warns, logger.errs)
	}
}

func TestClient_ReconnectRestoresSubscriptions(t *testing.T) {
	c, fake := connectedClient(t)
	c.Subscribe("lab/update/+", 1, func(string, []byte) error { return nil }) //nolint:errcheck // fake broker

	var lost error
	reconnected := 0
	c.SetOnDisconnect(func(err error) { lost = err })
	c.SetOnConnect(func() { reconnected++ })

	fake.mu.Lock()
	fake.handlers = make(map[string]pahomqtt.MessageHandler)
	fake.mu.Unlock()
	c.handleDisconnect(errors.New("network down"))
	if lost == nil || c.IsConnected() {
		t.Fatalf("after disconnect: lost=%v connected=%v", lost, c.IsConnected())
	}

	c.handleConnect()
	if reconnected != 1 {
		t.Errorf("onConnect calls = %d, want 1", reconnected)
	}
	fake.mu.Lock()
	_, restored := fake.handlers["lab/update/+"]
	fake.mu.Unlock()
	if !restored {
		t.Error("subscription not restored after reconnect")
	}
}

func TestClient_Close(t *testing.T) {
	c, fake := connectedClient(t)
	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !fake.disconnected || c.IsConnected() {
		t.Error("Close() did not disconnect")
	}
	if last := fake.published[len(fake.published)-1]; !strings.Contains(string(last.payload), "graceful_shutdown") {
		t.Errorf("last publish = %s, want graceful offline status", last.payload)
	}

	if err := (&Client{}).Close(); err != nil {
		t.Errorf("Close() on unconnected client error = %v", err)
	}
}

func TestHealthCheckCancelled(t *testing.T) {
	c, _ := connectedClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck() error = %v, want context.Canceled", err)
	}
	if err := c.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestTopics(t *testing.T) {
	lab := Topics{Prefix: "lab/"}
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"default prefix", Topics{}.SystemStatus(), "propcore/system/status"},
		{"trailing slash trimmed", lab.SystemStatus(), "lab/system/status"},
		{"object event", lab.ObjectEvent("id-1", "update_end"), "lab/event/id-1/update_end"},
		{"all events", lab.AllObjectEvents(), "lab/event/+/+"},
		{"object update", lab.ObjectUpdate("id-1"), "lab/update/id-1"},
		{"all updates", lab.AllObjectUpdates(), "lab/update/+"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("topic = %q, want %q", tt.got, tt.want)
			}
		})
	}

	if id, err := lab.ObjectIDFromUpdateTopic("lab/update/id-1"); err != nil || id != "id-1" {
		t.Errorf("ObjectIDFromUpdateTopic() = %q, %v", id, err)
	}
	for _, bad := range []string{"lab/update/", "lab/update/a/b", "other/update/a", "lab/event/a/x"} {
		if _, err := lab.ObjectIDFromUpdateTopic(bad); !errors.Is(err, ErrInvalidTopic) {
			t.Errorf("ObjectIDFromUpdateTopic(%q) error = %v, want ErrInvalidTopic", bad, err)
		}
	}
}
