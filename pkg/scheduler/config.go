package scheduler

import (
	"os"
	"path/filepath"
	"time"

	"github.com/eosconnect/eosconnect/pkg/common"
	"github.com/levenlabs/go-lflag"
)

// Configured sets up the Scheduler based on flags. The ports in deps come
// from their own Configured calls.
func Configured(deps Deps) *Scheduler {
	updateInterval := lflag.Duration("update-interval", 3*time.Minute, "Base interval between optimization runs")
	workDir := lflag.String("workdir", "", "Working directory for persisted artifacts and web overrides (default: the binary's directory)")
	dishwasherWh := lflag.String("dishwasher-consumption-wh", "1", "Energy of one deferrable appliance run in Wh")
	dishwasherH := lflag.String("dishwasher-duration-h", "1", "Duration of one deferrable appliance run in hours")
	timezone := common.Timezone()

	s := &Scheduler{
		deps:  deps,
		state: NewState(),
		stop:  make(chan struct{}),
	}

	lflag.Do(func() {
		loc := common.MustLocation("timezone", *timezone)
		s.now = func() time.Time { return time.Now().In(loc) }
		s.workDir = *workDir
		if s.workDir == "" {
			s.workDir = binaryDir()
		}
		s.updateInterval = *updateInterval
		if s.updateInterval <= 0 {
			panic("update-interval must be positive")
		}
		s.dishwasherWh = common.MustFloat("dishwasher-consumption-wh", *dishwasherWh)
		s.dishwasherH = common.MustFloat("dishwasher-duration-h", *dishwasherH)
	})

	return s
}

// binaryDir is the directory of the running binary, falling back to the
// current directory.
func binaryDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}
