// Package mqtt publishes the daemon's state to an MQTT broker and accepts
// override commands from a control topic. All topics live under a
// configurable prefix and published values are retained so late subscribers
// see the last state.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/eosconnect/eosconnect/pkg/log"
)

const (
	connectTimeout       = 10 * time.Second
	connectRetryInterval = 5 * time.Second
	disconnectQuiesceMs  = 250
)

// OverrideHandler receives a decoded override command from the command
// topic. The charge power is in watts, the duration in "HH:MM" form.
type OverrideHandler func(mode int, duration string, chargePowerW float64)

// overrideCommand is the wire form of the command topic payload.
type overrideCommand struct {
	Mode        int     `json:"mode"`
	Duration    string  `json:"duration"`
	ChargePower float64 `json:"charge_power"`
}

// Client wraps a paho MQTT connection. Publishes are fire-and-forget: a
// disconnected broker drops values and the next change resends them.
type Client struct {
	broker   string
	username string
	password string
	prefix   string
	clientID string

	client paho.Client

	mu         sync.Mutex
	last       map[string]string
	onOverride OverrideHandler
}

// Enabled reports whether a broker is configured.
func (c *Client) Enabled() bool {
	return c != nil && c.broker != ""
}

// SetOverrideHandler installs the callback for the command topic. It must be
// set before Connect.
func (c *Client) SetOverrideHandler(fn OverrideHandler) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onOverride = fn
}

func (c *Client) topic(key string) string {
	return c.prefix + "/" + key
}

func (c *Client) options(ctx context.Context) *paho.ClientOptions {
	opts := paho.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", c.broker))
	opts.SetClientID(c.clientID)
	if c.username != "" {
		opts.SetUsername(c.username)
		opts.SetPassword(c.password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetryInterval(connectRetryInterval)
	opts.SetWill(c.topic("status"), "offline", 0, true)
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		log.Ctx(ctx).WarnContext(ctx, "mqtt connection lost",
			slog.String("error", err.Error()),
		)
	})
	opts.SetOnConnectHandler(func(client paho.Client) {
		log.Ctx(ctx).InfoContext(ctx, "mqtt connected",
			slog.String("broker", c.broker),
		)
		client.Publish(c.topic("status"), 0, true, "online")
		token := client.Subscribe(c.topic("control/mode_override"), 0, c.handleCommand(ctx))
		if token.Wait() && token.Error() != nil {
			log.Ctx(ctx).ErrorContext(ctx, "mqtt subscribe failed",
				slog.String("error", token.Error().Error()),
			)
		}
	})
	return opts
}

// Connect dials the configured broker. A failed initial connect is returned
// but the paho client keeps retrying in the background, so callers may treat
// the error as non-fatal.
func (c *Client) Connect(ctx context.Context) error {
	if !c.Enabled() {
		return nil
	}
	c.client = paho.NewClient(c.options(ctx))
	token := c.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("timed out connecting to mqtt broker %s", c.broker)
	}
	return token.Error()
}

func (c *Client) handleCommand(ctx context.Context) paho.MessageHandler {
	return func(_ paho.Client, msg paho.Message) {
		var cmd overrideCommand
		if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
			log.Ctx(ctx).WarnContext(ctx, "ignoring malformed override command",
				slog.String("topic", msg.Topic()),
				slog.String("error", err.Error()),
			)
			return
		}
		c.mu.Lock()
		fn := c.onOverride
		c.mu.Unlock()
		if fn == nil {
			return
		}
		log.Ctx(ctx).InfoContext(ctx, "override command received",
			slog.Int("mode", cmd.Mode),
		)
		fn(cmd.Mode, cmd.Duration, cmd.ChargePower)
	}
}

// PublishValues sends the given topic suffix to value map to the broker.
// Only values that differ from the last published payload go out, retained
// at QoS 0. Safe to call on a nil or disconnected client.
func (c *Client) PublishValues(values map[string]any) {
	if !c.Enabled() || c.client == nil || !c.client.IsConnectionOpen() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		c.last = make(map[string]string, len(values))
	}
	for key, value := range values {
		payload := renderValue(value)
		if prev, ok := c.last[key]; ok && prev == payload {
			continue
		}
		c.last[key] = payload
		c.client.Publish(c.topic(key), 0, true, payload)
	}
}

// renderValue turns a published value into its topic payload. Strings pass
// through, everything else serializes as JSON.
func renderValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	case time.Time:
		return t.Format(time.RFC3339)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

// Shutdown publishes the offline status and closes the connection.
func (c *Client) Shutdown() {
	if !c.Enabled() || c.client == nil {
		return
	}
	if c.client.IsConnectionOpen() {
		token := c.client.Publish(c.topic("status"), 0, true, "offline")
		token.WaitTimeout(time.Second)
	}
	c.client.Disconnect(disconnectQuiesceMs)
}
