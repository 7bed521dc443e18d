package price

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/eosconnect/eosconnect/pkg/log"
	"github.com/eosconnect/eosconnect/pkg/types"
)

// maxFailures is the number of consecutive fetch failures after which the
// last successful prices are abandoned in favor of the static default.
const maxFailures = 24

// Service caches the latest import and feed-in price series from a Provider.
// The feed-in series is derived from the configured tariff and, optionally,
// the negative-price rule.
type Service struct {
	provider        Provider
	feedInTariffKWh float64
	negativeSwitch  bool

	mu                  sync.Mutex
	currentPrices       types.TimeSeries
	currentDirect       types.TimeSeries
	currentFeedin       types.TimeSeries
	lastSuccess         types.TimeSeries
	lastSuccessDirect   types.TimeSeries
	consecutiveFailures int
}

// NewService returns a Service on top of the given provider. feedInTariffKWh
// is the remuneration in EUR/kWh.
func NewService(p Provider, feedInTariffKWh float64, negativeSwitch bool) *Service {
	return &Service{
		provider:        p,
		feedInTariffKWh: feedInTariffKWh,
		negativeSwitch:  negativeSwitch,
	}
}

// UpdatePrices refreshes the cached series for hours slots starting at start.
// Fetch failures fall back to the last successful series, and after
// maxFailures in a row to the static default. UpdatePrices never fails; the
// caches always hold a usable series afterwards.
func (s *Service) UpdatePrices(ctx context.Context, hours int, start time.Time) {
	prices, direct, err := s.provider.FetchPrices(ctx, hours, start)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.consecutiveFailures++
		if s.consecutiveFailures <= maxFailures && len(s.lastSuccess) > 0 {
			log.Ctx(ctx).WarnContext(ctx, "price fetch failed, using last successful prices",
				slog.Int("failures", s.consecutiveFailures),
				slog.String("error", err.Error()),
			)
			prices = s.lastSuccess.Normalize(hours)
			direct = s.lastSuccessDirect.Normalize(hours)
		} else {
			log.Ctx(ctx).ErrorContext(ctx, "price fetch failed, using default prices",
				slog.Int("failures", s.consecutiveFailures),
				slog.String("error", err.Error()),
			)
			prices = types.Repeat(defaultPriceEurWh, hours)
			direct = prices.Clone()
		}
	} else {
		s.consecutiveFailures = 0
		s.lastSuccess = prices.Clone()
		s.lastSuccessDirect = direct.Clone()
	}

	s.currentPrices = prices
	s.currentDirect = direct
	s.currentFeedin = s.feedinFor(direct)
}

// feedinFor builds the feed-in series for the given raw market prices.
// Callers must hold s.mu.
func (s *Service) feedinFor(direct types.TimeSeries) types.TimeSeries {
	tariff := s.feedInTariffKWh / 1000
	out := make(types.TimeSeries, len(direct))
	for i, p := range direct {
		if s.negativeSwitch && p < 0 {
			out[i] = 0
		} else {
			out[i] = tariff
		}
	}
	return out
}

// CurrentPrices returns a copy of the cached import prices in EUR/Wh.
func (s *Service) CurrentPrices() types.TimeSeries {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentPrices.Clone()
}

// CurrentFeedinPrices returns a copy of the cached feed-in prices in EUR/Wh.
func (s *Service) CurrentFeedinPrices() types.TimeSeries {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentFeedin.Clone()
}

// Currency returns the currency code of the configured source.
func (s *Service) Currency() string {
	return s.provider.Currency()
}
