package price

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/eosconnect/eosconnect/pkg/common"
	"github.com/eosconnect/eosconnect/pkg/log"
	"github.com/eosconnect/eosconnect/pkg/types"
	"github.com/levenlabs/go-lflag"
)

// Akkudoktor implements the Provider interface for the akkudoktor.net spot
// price API. Prices come back in Eurocent/kWh and are converted to EUR/Wh.
type Akkudoktor struct {
	apiURL             string
	fixedAdderCt       float64
	relativeMultiplier float64
	client             *http.Client
}

// configuredAkkudoktor sets up flags for Akkudoktor and returns the instance.
func configuredAkkudoktor() *Akkudoktor {
	a := &Akkudoktor{
		client: common.HTTPClient(10 * time.Second),
	}
	apiURL := lflag.String("akkudoktor-price-url", "https://api.akkudoktor.net/prices", "URL for the akkudoktor price API")
	adder := lflag.String("price-fixed-adder-ct", "0", "Fixed price adder in ct/kWh applied on top of the market price")
	multiplier := lflag.String("price-relative-multiplier", "0", "Relative multiplier applied to the market price plus adder (0.2 = +20%)")

	lflag.Do(func() {
		a.apiURL = *apiURL
		a.fixedAdderCt = common.MustFloat("price-fixed-adder-ct", *adder)
		a.relativeMultiplier = common.MustFloat("price-relative-multiplier", *multiplier)
	})

	return a
}

// Validate ensures the configuration is valid.
func (a *Akkudoktor) Validate() error {
	if a.apiURL == "" {
		return fmt.Errorf("akkudoktor-price-url is required")
	}
	return nil
}

// Currency implements the Provider interface.
func (a *Akkudoktor) Currency() string {
	return "EUR"
}

type akkudoktorPriceEntry struct {
	MarketPriceEurocentPerKWh float64 `json:"marketpriceEurocentPerKWh"`
}

type akkudoktorPriceResponse struct {
	Values []akkudoktorPriceEntry `json:"values"`
}

// FetchPrices implements the Provider interface. It fetches today and
// tomorrow, then slices hours slots starting at start's hour, wrapping with
// today's prices when tomorrow is not published yet.
func (a *Akkudoktor) FetchPrices(ctx context.Context, hours int, start time.Time) (types.TimeSeries, types.TimeSeries, error) {
	reqURL := fmt.Sprintf("%s?start=%s&end=%s",
		a.apiURL,
		start.Format("2006-01-02"),
		start.AddDate(0, 0, 1).Format("2006-01-02"),
	)
	log.Ctx(ctx).DebugContext(ctx, "fetching akkudoktor prices", slog.String("url", reqURL))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build akkudoktor request: %w", err)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch akkudoktor prices: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("unexpected akkudoktor status: %s", resp.Status)
	}

	var body akkudoktorPriceResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, nil, fmt.Errorf("failed to decode akkudoktor response: %w", err)
	}
	if len(body.Values) == 0 {
		return nil, nil, fmt.Errorf("akkudoktor returned no prices")
	}

	direct := make(types.TimeSeries, 0, len(body.Values))
	prices := make(types.TimeSeries, 0, len(body.Values))
	for _, v := range body.Values {
		market := v.MarketPriceEurocentPerKWh / 100000
		direct = append(direct, market)
		withAdder := market + a.fixedAdderCt/100000
		prices = append(prices, withAdder*(1+a.relativeMultiplier))
	}

	return sliceFromHour(prices, start.Hour(), hours), sliceFromHour(direct, start.Hour(), hours), nil
}

// sliceFromHour takes hours entries starting at hour h, wrapping back to the
// start of the series when the tail runs out.
func sliceFromHour(prices types.TimeSeries, h, hours int) types.TimeSeries {
	out := make(types.TimeSeries, 0, hours)
	for i := h; i < h+hours && i < len(prices); i++ {
		out = append(out, prices[i])
	}
	for i := 0; len(out) < hours && i < len(prices); i++ {
		out = append(out, prices[i])
	}
	return out.Normalize(hours)
}
