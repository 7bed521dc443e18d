package forecast

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/eosconnect/eosconnect/pkg/common"
	"github.com/eosconnect/eosconnect/pkg/log"
	"github.com/eosconnect/eosconnect/pkg/types"
)

// Akkudoktor implements the Provider interface for the akkudoktor.net PV
// forecast API. Each configured plane is passed as a repeated set of query
// parameters; the per-plane forecasts are summed.
type Akkudoktor struct {
	apiURL string
	lat    float64
	lon    float64
	planes []Plane
	client *http.Client
}

// NewAkkudoktor returns an Akkudoktor forecast provider.
func NewAkkudoktor(apiURL string, lat, lon float64, planes []Plane) *Akkudoktor {
	return &Akkudoktor{
		apiURL: apiURL,
		lat:    lat,
		lon:    lon,
		planes: planes,
		client: common.HTTPClient(10 * time.Second),
	}
}

// Validate ensures the configuration is valid.
func (a *Akkudoktor) Validate() error {
	if a.apiURL == "" {
		return fmt.Errorf("akkudoktor-forecast-url is required")
	}
	if len(a.planes) == 0 {
		return fmt.Errorf("at least one pv plane is required")
	}
	for i, p := range a.planes {
		if p.PowerWp <= 0 {
			return fmt.Errorf("pv plane %d has no peak power", i)
		}
	}
	return nil
}

// Planes implements the Provider interface.
func (a *Akkudoktor) Planes() int {
	return len(a.planes)
}

type akkudoktorForecastEntry struct {
	Datetime    time.Time `json:"datetime"`
	Power       float64   `json:"power"`
	Temperature float64   `json:"temperature"`
}

type akkudoktorForecastResponse struct {
	Values [][]akkudoktorForecastEntry `json:"values"`
}

// Forecast implements the Provider interface.
func (a *Akkudoktor) Forecast(ctx context.Context, hours int, start time.Time) (types.TimeSeries, types.TimeSeries, error) {
	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(a.lat, 'f', -1, 64))
	params.Set("lon", strconv.FormatFloat(a.lon, 'f', -1, 64))
	params.Set("timezone", start.Location().String())
	for _, p := range a.planes {
		params.Add("power", strconv.FormatFloat(p.PowerWp, 'f', -1, 64))
		params.Add("azimuth", strconv.FormatFloat(p.Azimuth, 'f', -1, 64))
		params.Add("tilt", strconv.FormatFloat(p.Tilt, 'f', -1, 64))
	}
	reqURL := a.apiURL + "?" + params.Encode()
	log.Ctx(ctx).DebugContext(ctx, "fetching akkudoktor pv forecast", slog.String("url", reqURL))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build forecast request: %w", err)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch pv forecast: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("unexpected forecast status: %s", resp.Status)
	}

	var body akkudoktorForecastResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, nil, fmt.Errorf("failed to decode forecast response: %w", err)
	}
	if len(body.Values) == 0 {
		return nil, nil, fmt.Errorf("forecast response has no values")
	}

	pv := make(types.TimeSeries, hours)
	temp := make(types.TimeSeries, hours)
	for planeIdx, plane := range body.Values {
		for _, entry := range plane {
			slot := int(entry.Datetime.Sub(start).Hours())
			if slot < 0 || slot >= hours {
				continue
			}
			pv[slot] += entry.Power
			if planeIdx == 0 {
				temp[slot] = entry.Temperature
			}
		}
	}
	return pv, temp, nil
}
