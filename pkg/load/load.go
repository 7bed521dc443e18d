package load

import (
	"context"
	"log/slog"
	"time"

	"github.com/eosconnect/eosconnect/pkg/log"
	"github.com/eosconnect/eosconnect/pkg/types"
)

// defaultProfile is the built-in hourly household consumption in Wh, used
// when no history source is configured or reachable.
var defaultProfile = types.TimeSeries{
	200, 200, 200, 200, 200, 300, 350, 400, 350, 300, 300, 550,
	450, 400, 300, 300, 400, 450, 500, 500, 500, 400, 300, 200,
}

// Source defines the interface for building a load profile from historical
// consumption data.
type Source interface {
	// LoadProfile returns hours of expected consumption in Wh per hour
	// starting at today's midnight.
	LoadProfile(ctx context.Context, hours int) (types.TimeSeries, error)
}

// Service wraps a Source and falls back to the built-in profile when the
// source fails or is absent.
type Service struct {
	source Source
}

// NewService returns a Service. source may be nil, in which case only the
// built-in profile is served.
func NewService(source Source) *Service {
	return &Service{source: source}
}

// LoadProfile returns hours of expected consumption in Wh per hour. It never
// fails; source errors are logged and answered with the built-in profile.
func (s *Service) LoadProfile(ctx context.Context, hours int) types.TimeSeries {
	if s.source != nil {
		profile, err := s.source.LoadProfile(ctx, hours)
		if err == nil && len(profile) > 0 {
			return profile.Normalize(hours)
		}
		if err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "load profile fetch failed, using default profile",
				slog.String("error", err.Error()),
			)
		}
	}
	return DefaultProfile(hours)
}

// DefaultProfile returns the built-in profile repeated over hours slots.
func DefaultProfile(hours int) types.TimeSeries {
	out := make(types.TimeSeries, hours)
	for i := range out {
		out[i] = defaultProfile[i%24]
	}
	return out
}

// midnight returns the start of now's day in its location.
func midnight(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}
