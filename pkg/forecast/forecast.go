package forecast

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/eosconnect/eosconnect/pkg/log"
	"github.com/eosconnect/eosconnect/pkg/types"
)

// refreshInterval is how often the forecast is refetched.
const refreshInterval = time.Hour

// Plane describes one PV installation plane.
type Plane struct {
	PowerWp float64 `json:"power"`
	Azimuth float64 `json:"azimuth"`
	Tilt    float64 `json:"tilt"`
}

// Provider defines the interface for fetching a PV and temperature forecast.
type Provider interface {
	// Forecast returns hours of PV production (Wh per slot) and ambient
	// temperature (°C) starting at start.
	Forecast(ctx context.Context, hours int, start time.Time) (types.TimeSeries, types.TimeSeries, error)

	// Planes returns the number of configured planes, used to size the
	// startup warm-up.
	Planes() int
}

// Service caches the latest PV and temperature forecast and refreshes it
// periodically. Fetch failures keep the cached series.
type Service struct {
	provider Provider
	now      func() time.Time

	mu   sync.Mutex
	pv   types.TimeSeries
	temp types.TimeSeries
}

// NewService returns a Service on top of the given provider.
func NewService(p Provider) *Service {
	return &Service{
		provider: p,
		now:      time.Now,
	}
}

// Planes returns the number of configured PV planes.
func (s *Service) Planes() int {
	return s.provider.Planes()
}

// CurrentPVForecast returns a copy of the cached PV forecast in Wh per hour,
// 48 slots starting at today's midnight.
func (s *Service) CurrentPVForecast() types.TimeSeries {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pv.Clone()
}

// CurrentTempForecast returns a copy of the cached temperature forecast.
func (s *Service) CurrentTempForecast() types.TimeSeries {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.temp.Clone()
}

// Refresh fetches a fresh forecast, keeping the cache when the fetch fails.
func (s *Service) Refresh(ctx context.Context) {
	now := s.now()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	pv, temp, err := s.provider.Forecast(ctx, types.HorizonHours, start)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "pv forecast fetch failed, keeping cached forecast",
			slog.String("error", err.Error()),
		)
		return
	}

	s.mu.Lock()
	s.pv = pv.Normalize(types.HorizonHours)
	s.temp = temp.Normalize(types.HorizonHours)
	s.mu.Unlock()
}

// Run refreshes the forecast every refreshInterval until ctx is canceled.
// The first refresh happens immediately.
func (s *Service) Run(ctx context.Context) {
	s.Refresh(ctx)

	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Refresh(ctx)
		}
	}
}
