package price

import (
	"fmt"

	"github.com/eosconnect/eosconnect/pkg/common"
	"github.com/levenlabs/go-lflag"
)

// Configured sets up the price Service based on flags.
func Configured() *Service {
	source := lflag.String("price-source", "akkudoktor", "Price source to use (available: akkudoktor, fixed_24h, default)")
	fixedPrices := lflag.String("price-fixed-24h", "", "Comma-separated list of 24 hourly prices in EUR/kWh for the fixed_24h source")
	feedInTariff := lflag.String("price-feed-in-tariff", "0", "Feed-in remuneration in EUR/kWh")
	negativeSwitch := lflag.Bool("price-negative-switch", false, "Zero the feed-in price in hours with a negative market price")

	akkudoktor := configuredAkkudoktor()

	s := &Service{}

	lflag.Do(func() {
		var p Provider
		switch *source {
		case "akkudoktor":
			if err := akkudoktor.Validate(); err != nil {
				panic(fmt.Sprintf("akkudoktor validation failed: %v", err))
			}
			p = akkudoktor
		case "fixed_24h":
			fixed, err := newFixed24h(*fixedPrices)
			if err != nil {
				panic(fmt.Sprintf("invalid -price-fixed-24h: %v", err))
			}
			p = fixed
		case "default":
			p = Static{}
		default:
			panic(fmt.Sprintf("unknown price source: %s", *source))
		}
		s.provider = p
		s.feedInTariffKWh = common.MustFloat("price-feed-in-tariff", *feedInTariff)
		s.negativeSwitch = *negativeSwitch
	})

	return s
}
