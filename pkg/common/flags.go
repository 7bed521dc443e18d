package common

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/levenlabs/go-lflag"
)

// MustFloat parses a float flag value and panics with the flag name on
// failure. Meant to be called inside lflag.Do once flags are resolved.
func MustFloat(name, value string) float64 {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		panic(fmt.Sprintf("invalid value for -%s: %q", name, value))
	}
	return f
}

var (
	timezoneOnce sync.Once
	timezoneFlag *string
)

// Timezone registers the shared -timezone flag on first use and returns a
// pointer to its value. Multiple packages schedule against the same zone, so
// the flag is registered once. Resolve with MustLocation inside lflag.Do.
func Timezone() *string {
	timezoneOnce.Do(func() {
		timezoneFlag = lflag.String("timezone", "Local", "IANA time zone for wall-clock scheduling")
	})
	return timezoneFlag
}

// MustLocation loads an IANA time zone and panics with the flag name on
// failure. Meant to be called inside lflag.Do once flags are resolved.
func MustLocation(name, value string) *time.Location {
	loc, err := time.LoadLocation(value)
	if err != nil {
		panic(fmt.Sprintf("invalid value for -%s: %q", name, value))
	}
	return loc
}
