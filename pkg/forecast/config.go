package forecast

import (
	"fmt"

	"github.com/eosconnect/eosconnect/pkg/common"
	"github.com/levenlabs/go-lflag"
)

// Configured sets up the forecast Service based on flags.
func Configured() *Service {
	source := lflag.String("pv-source", "akkudoktor", "PV forecast source to use (available: akkudoktor, default)")
	apiURL := lflag.String("akkudoktor-forecast-url", "https://api.akkudoktor.net/forecast", "URL for the akkudoktor PV forecast API")
	lat := lflag.String("pv-lat", "0", "Latitude of the PV installation")
	lon := lflag.String("pv-lon", "0", "Longitude of the PV installation")
	var planes []Plane
	lflag.JSON(&planes, "pv-planes", planes, `JSON list of PV planes, e.g. [{"power":5000,"azimuth":0,"tilt":30}]`)

	s := NewService(nil)

	lflag.Do(func() {
		latF := common.MustFloat("pv-lat", *lat)
		lonF := common.MustFloat("pv-lon", *lon)
		if len(planes) == 0 {
			planes = []Plane{{PowerWp: 5000}}
		}

		switch *source {
		case "akkudoktor":
			a := NewAkkudoktor(*apiURL, latF, lonF, planes)
			if err := a.Validate(); err != nil {
				panic(fmt.Sprintf("akkudoktor forecast validation failed: %v", err))
			}
			s.provider = a
		case "default":
			s.provider = NewClearSky(latF, lonF, planes)
		default:
			panic(fmt.Sprintf("unknown pv source: %s", *source))
		}
	})

	return s
}
