package inverter

import (
	"context"
	"fmt"

	"github.com/eosconnect/eosconnect/pkg/common"
	"github.com/eosconnect/eosconnect/pkg/evcc"
	"github.com/eosconnect/eosconnect/pkg/log"
	"github.com/levenlabs/go-lflag"
)

// Settings carries the resolved inverter configuration shared with the
// control loop.
type Settings struct {
	Type               string
	MaxGridChargeRateW float64
	MaxPVChargeRateW   float64
}

// Configured sets up the inverter driver based on flags. The evcc client is
// only used when the inverter type is "evcc". Unknown types fall back to the
// show-only noop driver with a warning.
func Configured(evccClient *evcc.Client) (*Settings, Driver) {
	invType := lflag.String("inverter-type", "noop", "Inverter type (available: fronius_gen24, evcc, noop)")
	address := lflag.String("inverter-address", "", "Host or IP of the local inverter API")
	user := lflag.String("inverter-user", "customer", "Inverter login user")
	password := lflag.String("inverter-password", "", "Inverter login password")
	maxGridCharge := lflag.String("inverter-max-grid-charge-rate", "5000", "Maximum grid charge power in W")
	maxPVCharge := lflag.String("inverter-max-pv-charge-rate", "5000", "Maximum PV charge power in W")

	settings := &Settings{}
	d := &configuredDriver{}

	lflag.Do(func() {
		settings.Type = *invType
		settings.MaxGridChargeRateW = common.MustFloat("inverter-max-grid-charge-rate", *maxGridCharge)
		settings.MaxPVChargeRateW = common.MustFloat("inverter-max-pv-charge-rate", *maxPVCharge)

		switch *invType {
		case "fronius_gen24":
			if *address == "" {
				panic("inverter-address is required for fronius_gen24")
			}
			d.Driver = NewFronius(*address, *user, *password, settings.MaxPVChargeRateW)
		case "evcc":
			if evccClient == nil || !evccClient.Enabled() {
				panic("evcc-url is required for the evcc inverter type")
			}
			d.Driver = NewEVCC(evccClient)
		case "noop":
			d.Driver = Noop{}
		default:
			ctx := context.Background()
			log.Ctx(ctx).WarnContext(ctx, fmt.Sprintf("unknown inverter type %q, falling back to show-only mode", *invType))
			settings.Type = "noop"
			d.Driver = Noop{}
		}
	})

	return settings, d
}

// configuredDriver is the stable handle returned before flags resolve. Its
// method set hides the concrete driver's optional capabilities, so it
// implements Unwrapper and the As* helpers look through it.
type configuredDriver struct{ Driver }

func (c *configuredDriver) Unwrap() Driver { return c.Driver }
