package load

import (
	"fmt"

	"github.com/levenlabs/go-lflag"
)

// Configured sets up the load Service based on flags.
func Configured() *Service {
	source := lflag.String("load-source", "default", "Load profile source to use (available: homeassistant, default)")
	baseURL := lflag.String("load-url", "", "Base URL of the Home Assistant instance")
	token := lflag.String("load-token", "", "Long-lived access token for Home Assistant")
	loadSensor := lflag.String("load-sensor", "", "Entity ID of the household power sensor (W)")
	carSensor := lflag.String("load-car-charge-sensor", "", "Entity ID of the EV charger power sensor, subtracted from the base load")
	additionalSensor := lflag.String("load-additional-sensor", "", "Entity ID of the deferrable appliance power sensor, subtracted from the base load")

	s := &Service{}

	lflag.Do(func() {
		switch *source {
		case "homeassistant":
			ha := NewHomeAssistant(*baseURL, *token, *loadSensor, *carSensor, *additionalSensor)
			if err := ha.Validate(); err != nil {
				panic(fmt.Sprintf("homeassistant load validation failed: %v", err))
			}
			s.source = ha
		case "default":
			// keep the built-in profile
		default:
			panic(fmt.Sprintf("unknown load source: %s", *source))
		}
	})

	return s
}
