package mqtt

import (
	"context"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeToken struct{}

func (fakeToken) Wait() bool                     { return true }
func (fakeToken) WaitTimeout(time.Duration) bool { return true }
func (fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (fakeToken) Error() error { return nil }

type published struct {
	topic    string
	payload  string
	retained bool
}

type fakeClient struct {
	paho.Client
	open     bool
	messages []published
}

func (f *fakeClient) IsConnectionOpen() bool { return f.open }

func (f *fakeClient) Publish(topic string, _ byte, retained bool, payload any) paho.Token {
	f.messages = append(f.messages, published{
		topic:    topic,
		payload:  payload.(string),
		retained: retained,
	})
	return fakeToken{}
}

func (f *fakeClient) Disconnect(uint) {}

type fakeMessage struct {
	paho.Message
	payload []byte
}

func (f fakeMessage) Topic() string   { return "eosconnect/control/mode_override" }
func (f fakeMessage) Payload() []byte { return f.payload }

func testClient(open bool) (*Client, *fakeClient) {
	fake := &fakeClient{open: open}
	return &Client{broker: "localhost:1883", prefix: "eosconnect", client: fake}, fake
}

func TestPublishValuesOnlySendsChanges(t *testing.T) {
	c, fake := testClient(true)

	c.PublishValues(map[string]any{"battery/soc": 50.0})
	require.Len(t, fake.messages, 1)
	assert.Equal(t, "eosconnect/battery/soc", fake.messages[0].topic)
	assert.Equal(t, "50", fake.messages[0].payload)
	assert.True(t, fake.messages[0].retained)

	// unchanged value is suppressed
	c.PublishValues(map[string]any{"battery/soc": 50.0})
	assert.Len(t, fake.messages, 1)

	c.PublishValues(map[string]any{"battery/soc": 51.5})
	require.Len(t, fake.messages, 2)
	assert.Equal(t, "51.5", fake.messages[1].payload)
}

func TestPublishValuesDroppedWhileDisconnected(t *testing.T) {
	c, fake := testClient(false)
	c.PublishValues(map[string]any{"battery/soc": 50.0})
	assert.Empty(t, fake.messages)

	var nilClient *Client
	nilClient.PublishValues(map[string]any{"battery/soc": 50.0})
}

func TestRenderValue(t *testing.T) {
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		in   any
		want string
	}{
		{"online", "online"},
		{0.5, "0.5"},
		{42, "42"},
		{true, "true"},
		{nil, "null"},
		{ts, "2025-06-01T12:00:00Z"},
		{map[string]int{"a": 1}, `{"a":1}`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, renderValue(tt.in))
	}
}

func TestHandleCommand(t *testing.T) {
	c, _ := testClient(true)

	type received struct {
		mode     int
		duration string
		powerW   float64
	}
	var got []received
	c.SetOverrideHandler(func(mode int, duration string, chargePowerW float64) {
		got = append(got, received{mode, duration, chargePowerW})
	})
	handler := c.handleCommand(context.Background())

	handler(nil, fakeMessage{payload: []byte(`{"mode":0,"duration":"02:00","charge_power":3000}`)})
	require.Len(t, got, 1)
	assert.Equal(t, received{0, "02:00", 3000}, got[0])

	// malformed payloads are ignored
	handler(nil, fakeMessage{payload: []byte(`not json`)})
	assert.Len(t, got, 1)
}

func TestDisabledClientIsNoop(t *testing.T) {
	c := &Client{}
	assert.False(t, c.Enabled())
	require.NoError(t, c.Connect(context.Background()))
	c.PublishValues(map[string]any{"battery/soc": 1.0})
	c.Shutdown()
}
