package forecast

import (
	"context"
	"math"
	"time"

	"github.com/eosconnect/eosconnect/pkg/types"
	"github.com/sixdouglas/suncalc"
)

// clearSkyFactor scales the zenith-normalized sun altitude to account for
// atmosphere and panel losses in the fallback forecast.
const clearSkyFactor = 0.75

// defaultTemperature is used when no weather source is available.
const defaultTemperature = 15.0

// ClearSky implements the Provider interface without any network calls. PV
// production is estimated from the sun altitude at each slot's midpoint,
// scaled by the summed peak power of the configured planes.
type ClearSky struct {
	lat    float64
	lon    float64
	planes []Plane
}

// NewClearSky returns a ClearSky forecast provider.
func NewClearSky(lat, lon float64, planes []Plane) *ClearSky {
	return &ClearSky{lat: lat, lon: lon, planes: planes}
}

// Planes implements the Provider interface.
func (c *ClearSky) Planes() int {
	return len(c.planes)
}

// Forecast implements the Provider interface.
func (c *ClearSky) Forecast(_ context.Context, hours int, start time.Time) (types.TimeSeries, types.TimeSeries, error) {
	var peakW float64
	for _, p := range c.planes {
		peakW += p.PowerWp
	}

	pv := make(types.TimeSeries, hours)
	temp := make(types.TimeSeries, hours)
	for i := 0; i < hours; i++ {
		mid := start.Add(time.Duration(i)*time.Hour + 30*time.Minute)
		pos := suncalc.GetPosition(mid, c.lat, c.lon)
		if factor := math.Sin(pos.Altitude); factor > 0 {
			pv[i] = peakW * factor * clearSkyFactor
		}
		temp[i] = defaultTemperature
	}
	return pv, temp, nil
}
