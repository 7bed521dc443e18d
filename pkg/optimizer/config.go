package optimizer

import (
	"fmt"
	"time"

	"github.com/eosconnect/eosconnect/pkg/common"
	"github.com/levenlabs/go-lflag"
)

// Configured sets up the optimization backend based on flags.
func Configured() Backend {
	backend := lflag.String("optimizer-backend", "eos", "Optimization backend (available: eos, evopt)")
	baseURL := lflag.RequiredString("optimizer-url", "Base URL of the optimization server")
	timeout := lflag.Duration("optimizer-timeout", 180*time.Second, "Timeout for a single optimization run")
	quarterly := lflag.Bool("optimizer-quarterly", false, "Use 15-minute slots instead of hourly ones (evopt only)")
	timezone := common.Timezone()

	var b struct{ Backend }

	lflag.Do(func() {
		loc := common.MustLocation("timezone", *timezone)
		timeFrameBase := HourlyFrameBase
		if *quarterly {
			timeFrameBase = QuarterFrameBase
		}
		switch *backend {
		case "eos":
			b.Backend = NewEOS(*baseURL, *timeout, loc)
		case "evopt":
			b.Backend = NewEVopt(*baseURL, *timeout, timeFrameBase, loc)
		default:
			panic(fmt.Sprintf("unknown optimizer backend: %s", *backend))
		}
	})

	return &b
}
