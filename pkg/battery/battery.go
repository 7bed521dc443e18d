package battery

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/eosconnect/eosconnect/pkg/log"
)

const (
	pollInterval = 10 * time.Second

	// taperStartPct is the SoC above which the charge power limit derates
	// linearly, down to taperFloorFrac of the maximum at 100 %.
	taperStartPct  = 90.0
	taperFloorFrac = 0.10
)

// SOCSource reports the live battery state of charge.
type SOCSource interface {
	// CurrentSOC returns the state of charge in percent.
	CurrentSOC(ctx context.Context) (float64, error)
}

// Service tracks the battery state and derives charge limits from it. A
// background poll keeps the SoC fresh and notifies the observer when the
// dynamic charge limit moves.
type Service struct {
	source          SOCSource
	capacityWh      float64
	minSOCPct       float64
	maxSOCPct       float64
	maxChargePowerW float64

	mu       sync.Mutex
	soc      float64
	observer func(maxChargeW float64)
}

// Config carries the static battery parameters.
type Config struct {
	CapacityWh      float64
	MinSOCPct       float64
	MaxSOCPct       float64
	MaxChargePowerW float64
}

// NewService returns a Service. source may be nil for a fixed-SoC setup.
func NewService(source SOCSource, cfg Config, initialSOC float64) *Service {
	return &Service{
		source:          source,
		capacityWh:      cfg.CapacityWh,
		minSOCPct:       cfg.MinSOCPct,
		maxSOCPct:       cfg.MaxSOCPct,
		maxChargePowerW: cfg.MaxChargePowerW,
		soc:             initialSOC,
	}
}

// SetObserver registers a callback invoked when the dynamic max charge power
// changes between polls. Only one observer is supported.
func (s *Service) SetObserver(fn func(maxChargeW float64)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observer = fn
}

// CurrentSOC returns the last polled state of charge in percent.
func (s *Service) CurrentSOC() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.soc
}

// CapacityWh returns the configured gross capacity.
func (s *Service) CapacityWh() float64 {
	return s.capacityWh
}

// MinSOCPct returns the configured minimum state of charge.
func (s *Service) MinSOCPct() float64 {
	return s.minSOCPct
}

// MaxSOCPct returns the configured maximum state of charge.
func (s *Service) MaxSOCPct() float64 {
	return s.maxSOCPct
}

// UsableCapacityWh returns the energy currently stored above the minimum
// state of charge.
func (s *Service) UsableCapacityWh() float64 {
	soc := s.CurrentSOC()
	if soc <= s.minSOCPct {
		return 0
	}
	return (soc - s.minSOCPct) / 100 * s.capacityWh
}

// MaxChargePowerW returns the configured maximum charge power.
func (s *Service) MaxChargePowerW() float64 {
	return s.maxChargePowerW
}

// DynamicMaxChargePowerW returns the SoC-dependent charge power limit: full
// power up to taperStartPct, then a linear derate to taperFloorFrac of the
// maximum at 100 %.
func (s *Service) DynamicMaxChargePowerW() float64 {
	return dynamicLimit(s.CurrentSOC(), s.maxChargePowerW)
}

func dynamicLimit(soc, maxW float64) float64 {
	if soc <= taperStartPct {
		return maxW
	}
	soc = math.Min(soc, 100)
	frac := 1 - (1-taperFloorFrac)*(soc-taperStartPct)/(100-taperStartPct)
	return math.Round(maxW * frac)
}

// Run polls the SoC source until ctx is canceled. Poll failures keep the
// last known value.
func (s *Service) Run(ctx context.Context) {
	if s.source == nil {
		return
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.poll(ctx)
		}
	}
}

func (s *Service) poll(ctx context.Context) {
	soc, err := s.source.CurrentSOC(ctx)
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "battery soc poll failed",
			slog.String("error", err.Error()),
		)
		return
	}

	s.mu.Lock()
	oldLimit := dynamicLimit(s.soc, s.maxChargePowerW)
	s.soc = soc
	newLimit := dynamicLimit(s.soc, s.maxChargePowerW)
	observer := s.observer
	s.mu.Unlock()

	if observer != nil && oldLimit != newLimit {
		log.Ctx(ctx).DebugContext(ctx, "dynamic max charge power changed",
			slog.Float64("soc", soc),
			slog.Float64("maxChargeW", newLimit),
		)
		observer(newLimit)
	}
}
