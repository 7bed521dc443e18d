package price

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/eosconnect/eosconnect/pkg/types"
)

// defaultPriceEurWh is used when no source delivers data, 10 ct/kWh.
const defaultPriceEurWh = 0.0001

// Fixed24h implements the Provider interface with a static 24-hour price
// array repeated over the horizon.
type Fixed24h struct {
	prices types.TimeSeries
}

// newFixed24h parses a comma-separated list of 24 prices in EUR/kWh.
func newFixed24h(spec string) (*Fixed24h, error) {
	parts := strings.Split(spec, ",")
	if len(parts) != 24 {
		return nil, fmt.Errorf("fixed 24h prices need 24 entries, got %d", len(parts))
	}
	prices := make(types.TimeSeries, 0, 24)
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid fixed price %q: %w", p, err)
		}
		prices = append(prices, v/1000)
	}
	return &Fixed24h{prices: prices}, nil
}

// Currency implements the Provider interface.
func (f *Fixed24h) Currency() string {
	return "EUR"
}

// FetchPrices implements the Provider interface.
func (f *Fixed24h) FetchPrices(_ context.Context, hours int, start time.Time) (types.TimeSeries, types.TimeSeries, error) {
	out := make(types.TimeSeries, hours)
	for i := 0; i < hours; i++ {
		out[i] = f.prices[(start.Hour()+i)%24]
	}
	return out, out.Clone(), nil
}

// Static implements the Provider interface with a constant fallback price.
type Static struct{}

// Currency implements the Provider interface.
func (Static) Currency() string {
	return "EUR"
}

// FetchPrices implements the Provider interface.
func (Static) FetchPrices(_ context.Context, hours int, _ time.Time) (types.TimeSeries, types.TimeSeries, error) {
	out := types.Repeat(defaultPriceEurWh, hours)
	return out, out.Clone(), nil
}
