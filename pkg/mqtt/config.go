package mqtt

import (
	"github.com/levenlabs/go-lflag"
)

// Configured sets up the Client based on flags. With no broker configured
// the client reports Enabled() == false and every method is a no-op.
func Configured() *Client {
	broker := lflag.String("mqtt-broker", "", "MQTT broker host:port (empty disables MQTT)")
	username := lflag.String("mqtt-username", "", "MQTT username")
	password := lflag.String("mqtt-password", "", "MQTT password")
	prefix := lflag.String("mqtt-prefix", "eosconnect", "Topic prefix for all published and subscribed topics")
	clientID := lflag.String("mqtt-client-id", "eosconnect", "MQTT client identifier")

	c := &Client{}
	lflag.Do(func() {
		c.broker = *broker
		c.username = *username
		c.password = *password
		c.prefix = *prefix
		c.clientID = *clientID
		if c.prefix == "" {
			panic("mqtt-prefix must not be empty")
		}
	})

	return c
}
