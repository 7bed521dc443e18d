package price

import (
	"context"
	"time"

	"github.com/eosconnect/eosconnect/pkg/types"
)

// Provider defines the interface for fetching import electricity prices.
type Provider interface {
	// FetchPrices returns hours of prices in EUR/Wh starting at start. The
	// second series carries the raw market prices (before adders and
	// multipliers), used for the negative-price feed-in rule.
	FetchPrices(ctx context.Context, hours int, start time.Time) (types.TimeSeries, types.TimeSeries, error)

	// Currency returns the ISO 4217 currency code of the source.
	Currency() string
}
