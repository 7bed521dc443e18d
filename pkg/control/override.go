package control

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// maxOverrideDuration caps how long a user override may hold the inverter.
const maxOverrideDuration = 12 * time.Hour

// ParseOverrideDuration parses an override duration in "HH:MM" form.
func ParseOverrideDuration(s string) (time.Duration, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("duration %q is not in HH:MM form", s)
	}
	hours, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("duration %q is not in HH:MM form", s)
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil || minutes < 0 || minutes > 59 {
		return 0, fmt.Errorf("duration %q is not in HH:MM form", s)
	}
	if hours < 0 {
		return 0, fmt.Errorf("duration %q is not in HH:MM form", s)
	}
	return time.Duration(hours)*time.Hour + time.Duration(minutes)*time.Minute, nil
}

// ApplyOverride validates an external override request and installs it.
// Mode -1 clears any active override and skips the remaining checks. The
// HTTP endpoint and the MQTT command topic both go through here.
func (c *Controller) ApplyOverride(mode int, duration time.Duration, gridChargeKW float64) error {
	if mode < -2 || mode > 2 {
		return fmt.Errorf("invalid mode value %d", mode)
	}
	if mode < 0 {
		c.SetOverride(-1, 0, 0)
		return nil
	}
	if duration <= 0 || duration > maxOverrideDuration {
		return fmt.Errorf("duration must be greater than 0 and at most 12 hours")
	}
	maxKW := c.settings.MaxGridChargeRateW / 1000
	if gridChargeKW < 0.5 || gridChargeKW > maxKW {
		return fmt.Errorf("grid charge power must be between 0.5 and %.1f kW", maxKW)
	}
	c.SetOverride(mode, duration, gridChargeKW)
	return nil
}
