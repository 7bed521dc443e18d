package evcc

import (
	"time"

	"github.com/eosconnect/eosconnect/pkg/common"
	"github.com/levenlabs/go-lflag"
)

// Configured sets up the evcc Client based on flags. With no evcc URL the
// client reports Enabled() == false and callers skip the EV charger port.
func Configured() *Client {
	baseURL := lflag.String("evcc-url", "", "Base URL of the evcc instance (empty disables the EV charger port)")

	c := &Client{
		client: common.HTTPClient(6 * time.Second),
	}
	lflag.Do(func() {
		c.baseURL = *baseURL
	})

	return c
}

// Enabled reports whether an evcc instance is configured.
func (c *Client) Enabled() bool {
	return c.baseURL != ""
}
