package battery

import (
	"fmt"

	"github.com/eosconnect/eosconnect/pkg/common"
	"github.com/levenlabs/go-lflag"
)

// Configured sets up the battery Service based on flags.
func Configured() *Service {
	source := lflag.String("battery-source", "manual", "Battery SoC source (available: homeassistant, manual)")
	baseURL := lflag.String("battery-url", "", "Base URL of the Home Assistant instance")
	token := lflag.String("battery-token", "", "Long-lived access token for Home Assistant")
	socSensor := lflag.String("battery-soc-sensor", "", "Entity ID of the battery state of charge sensor (%)")
	capacity := lflag.String("battery-capacity-wh", "11000", "Gross battery capacity in Wh")
	minSOC := lflag.String("battery-min-soc", "5", "Minimum state of charge in percent")
	maxSOC := lflag.String("battery-max-soc", "100", "Maximum state of charge in percent")
	maxCharge := lflag.String("battery-max-charge-power-w", "5000", "Maximum charge power in W")
	manualSOC := lflag.String("battery-manual-soc", "50", "Fixed SoC in percent for the manual source")

	s := &Service{}

	lflag.Do(func() {
		s.capacityWh = common.MustFloat("battery-capacity-wh", *capacity)
		s.minSOCPct = common.MustFloat("battery-min-soc", *minSOC)
		s.maxSOCPct = common.MustFloat("battery-max-soc", *maxSOC)
		s.maxChargePowerW = common.MustFloat("battery-max-charge-power-w", *maxCharge)
		s.soc = common.MustFloat("battery-manual-soc", *manualSOC)

		switch *source {
		case "homeassistant":
			ha := NewHomeAssistant(*baseURL, *token, *socSensor)
			if err := ha.Validate(); err != nil {
				panic(fmt.Sprintf("homeassistant battery validation failed: %v", err))
			}
			s.source = ha
		case "manual":
			// fixed SoC, no polling
		default:
			panic(fmt.Sprintf("unknown battery source: %s", *source))
		}
	})

	return s
}
