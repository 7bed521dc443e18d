package optimizer

import (
	"fmt"
	"math"
	"time"

	"github.com/eosconnect/eosconnect/pkg/types"
)

// validateRequest checks the canonical request before translation. Findings
// describe problems with incoming port data and are surfaced to the caller.
func validateRequest(req types.OptimizeRequest) []string {
	var errs []string

	series := []struct {
		name string
		ts   types.TimeSeries
	}{
		{"pv_prognose_wh", req.EMS.PVForecastWh},
		{"strompreis_euro_pro_wh", req.EMS.PriceImport},
		{"einspeiseverguetung_euro_pro_wh", req.EMS.PriceFeedin},
		{"gesamtlast", req.EMS.LoadWh},
	}
	lengths := make(map[string]int)
	for _, s := range series {
		if len(s.ts) == 0 {
			errs = append(errs, fmt.Sprintf("ems.%s must not be empty", s.name))
			continue
		}
		for i, v := range s.ts {
			if math.IsNaN(v) {
				errs = append(errs, fmt.Sprintf("ems.%s[%d] is NaN", s.name, i))
			}
			if math.IsInf(v, 0) {
				errs = append(errs, fmt.Sprintf("ems.%s[%d] is infinite", s.name, i))
			}
		}
		lengths[s.name] = len(s.ts)
	}
	if len(lengths) >= 2 {
		first := -1
		for _, s := range series {
			n, ok := lengths[s.name]
			if !ok {
				continue
			}
			if first == -1 {
				first = n
			} else if n != first {
				errs = append(errs, fmt.Sprintf("ems time-series lengths mismatch: %v", lengths))
				break
			}
		}
	}

	if b := req.Battery; b != nil {
		if b.CapacityWh <= 0 {
			errs = append(errs, "pv_akku.capacity_wh must be > 0")
		}
		for _, pct := range []struct {
			name  string
			value float64
		}{
			{"initial_soc_percentage", b.InitialSOCPct},
			{"min_soc_percentage", b.MinSOCPct},
			{"max_soc_percentage", b.MaxSOCPct},
		} {
			if pct.value < 0 || pct.value > 100 {
				errs = append(errs, fmt.Sprintf("pv_akku.%s out of range 0-100: %v", pct.name, pct.value))
			}
		}
	}

	if req.Timestamp != "" {
		if _, err := time.Parse(time.RFC3339, req.Timestamp); err != nil {
			errs = append(errs, "timestamp not in a recognized ISO format")
		}
	}

	return errs
}

// validateEvoptRequest checks the shape of a built EVopt payload. Findings
// point at translation bugs, so they are logged rather than returned to the
// caller.
func validateEvoptRequest(req evoptRequest) []string {
	var errs []string

	if req.Strategy.ChargingStrategy == "" || req.Strategy.DischargingStrategy == "" {
		errs = append(errs, "strategy fields must be set")
	}

	n := len(req.TimeSeries.DT)
	if n == 0 {
		errs = append(errs, "time_series.dt must not be empty")
	}
	for _, s := range []struct {
		name string
		ts   types.TimeSeries
	}{
		{"gt", req.TimeSeries.Load},
		{"ft", req.TimeSeries.PV},
		{"p_N", req.TimeSeries.PriceImport},
		{"p_E", req.TimeSeries.PriceFeedin},
	} {
		if len(s.ts) != n {
			errs = append(errs, fmt.Sprintf("time_series.%s length %d does not match dt length %d", s.name, len(s.ts), n))
		}
		for i, v := range s.ts {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				errs = append(errs, fmt.Sprintf("time_series.%s[%d] is not finite", s.name, i))
			}
		}
	}

	if len(req.Batteries) == 0 {
		errs = append(errs, "batteries must not be empty")
	}
	for i, b := range req.Batteries {
		if b.SMin > b.SMax {
			errs = append(errs, fmt.Sprintf("batteries[%d].s_min exceeds s_max", i))
		}
		if len(b.PDemand) > 0 && len(b.PDemand) != n {
			errs = append(errs, fmt.Sprintf("batteries[%d].p_demand length does not match dt", i))
		}
		if len(b.SGoal) > 0 && len(b.SGoal) != n {
			errs = append(errs, fmt.Sprintf("batteries[%d].s_goal length does not match dt", i))
		}
	}

	return errs
}
