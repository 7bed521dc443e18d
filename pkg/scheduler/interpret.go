package scheduler

import "github.com/eosconnect/eosconnect/pkg/types"

func seriesAt(ts types.TimeSeries, i int) float64 {
	if i < 0 || i >= len(ts) {
		return 0
	}
	return ts[i]
}

func intsAt(is types.IntSeries, i int) int {
	if i < 0 || i >= len(is) {
		return 0
	}
	return is[i]
}

// interpretResponse extracts the control slots for the current and next hour
// from a full-day response. Responses without usable control arrays or
// without a warm-startable solution yield error-flagged slots, which keep the
// state machine in its previous state.
func interpretResponse(resp types.OptimizeResponse, hour int) types.ControlData {
	if !resp.HasControls() {
		return types.ErrorControlData(hour)
	}

	var data types.ControlData
	for i := range data {
		h := (hour + i) % 24
		idx := hour + i
		data[i] = types.ControlSlot{
			ACChargeDemand:   seriesAt(resp.ACCharge, idx),
			DCChargeDemand:   seriesAt(resp.DCCharge, idx),
			DischargeAllowed: intsAt(resp.DischargeAllowed, idx) != 0,
			Hour:             h,
		}
	}
	return data
}

// applianceRelease derives the household-appliance start hour and whether
// the current hour releases it.
func applianceRelease(resp types.OptimizeResponse, hour int) (*int, bool) {
	if resp.WashingStart == nil {
		return nil, false
	}
	return resp.WashingStart, *resp.WashingStart == hour
}
