package optimizer

import (
	"time"

	"github.com/eosconnect/eosconnect/pkg/types"
)

// Slot widths in seconds. The EVopt translation supports hourly and
// quarter-hour grids.
const (
	HourlyFrameBase  = 3600
	QuarterFrameBase = 900
)

type evoptStrategy struct {
	ChargingStrategy    string `json:"charging_strategy"`
	DischargingStrategy string `json:"discharging_strategy"`
}

type evoptGrid struct {
	MaxImportW       float64 `json:"p_max_imp"`
	MaxExportW       float64 `json:"p_max_exp"`
	ImportExcessCost float64 `json:"prc_p_imp_exc"`
}

type evoptBattery struct {
	DeviceID        string    `json:"device_id"`
	ChargeFromGrid  bool      `json:"charge_from_grid"`
	DischargeToGrid bool      `json:"discharge_to_grid"`
	SMin            float64   `json:"s_min"`
	SMax            float64   `json:"s_max"`
	SInitial        float64   `json:"s_initial"`
	PDemand         []float64 `json:"p_demand"`
	SGoal           []float64 `json:"s_goal"`
	CMin            float64   `json:"c_min"`
	CMax            float64   `json:"c_max"`
	DMax            float64   `json:"d_max"`
	PA              float64   `json:"p_a"`
}

type evoptTimeSeries struct {
	DT          []float64        `json:"dt"`
	Load        types.TimeSeries `json:"gt"`
	PV          types.TimeSeries `json:"ft"`
	PriceImport types.TimeSeries `json:"p_N"`
	PriceFeedin types.TimeSeries `json:"p_E"`
}

type evoptRequest struct {
	Strategy     evoptStrategy   `json:"strategy"`
	Grid         evoptGrid       `json:"grid"`
	Batteries    []evoptBattery  `json:"batteries"`
	TimeSeries   evoptTimeSeries `json:"time_series"`
	EtaCharge    float64         `json:"eta_c"`
	EtaDischarge float64         `json:"eta_d"`
}

type evoptBatteryResult struct {
	ChargingPowerW    []float64 `json:"charging_power"`
	DischargingPowerW []float64 `json:"discharging_power"`
	StateOfChargeWh   []float64 `json:"state_of_charge"`
}

type evoptEVResult struct {
	ChargeArray []float64 `json:"charge_array"`
}

type evoptResponse struct {
	Batteries     []evoptBatteryResult `json:"batteries"`
	GridImportWh  []float64            `json:"grid_import"`
	GridExportWh  []float64            `json:"grid_export"`
	StartSolution []float64            `json:"start_solution"`
	EV            *evoptEVResult       `json:"eauto_obj"`
	WashingStart  *int                 `json:"washingstart"`
}

// dropPast removes the first h entries when the series is long enough to
// cover them. Shorter series are assumed to already start at "now".
func dropPast(ts types.TimeSeries, h int) types.TimeSeries {
	if len(ts) > h {
		return ts[h:]
	}
	return ts
}

// rotateSlots rotates the series so the given slot comes first, wrapping
// around, and caps the result at max entries.
func rotateSlots(ts types.TimeSeries, slot, max int) types.TimeSeries {
	if len(ts) == 0 {
		return ts
	}
	slot = slot % len(ts)
	out := make(types.TimeSeries, 0, len(ts))
	out = append(out, ts[slot:]...)
	out = append(out, ts[:slot]...)
	if len(out) > max {
		out = out[:max]
	}
	return out
}

// workingLength is the minimum length among the present series, at least 1.
func workingLength(max int, series ...types.TimeSeries) int {
	n := 0
	for _, ts := range series {
		if len(ts) == 0 {
			continue
		}
		if n == 0 || len(ts) < n {
			n = len(ts)
		}
	}
	if n == 0 {
		n = 1
	}
	if n > max {
		n = max
	}
	return n
}

// translateRequest builds the EVopt charge-schedule request from the
// canonical request. The horizon starts at "now": hourly series drop the
// elapsed hours of today, quarter-hour series rotate with wrap-around.
func translateRequest(req types.OptimizeRequest, now time.Time, timeFrameBase int) evoptRequest {
	pv := req.EMS.PVForecastWh
	price := req.EMS.PriceImport
	feedin := req.EMS.PriceFeedin
	load := req.EMS.LoadWh

	var n int
	if timeFrameBase == QuarterFrameBase {
		slot := now.Hour()*4 + now.Minute()/15
		pv = rotateSlots(pv, slot, types.HorizonQuarters)
		price = rotateSlots(price, slot, types.HorizonQuarters)
		feedin = rotateSlots(feedin, slot, types.HorizonQuarters)
		load = rotateSlots(load, slot, types.HorizonQuarters)
		n = types.HorizonQuarters
	} else {
		h := now.Hour()
		pv = dropPast(pv, h)
		price = dropPast(price, h)
		feedin = dropPast(feedin, h)
		load = dropPast(load, h)
		n = workingLength(types.HorizonHours, pv, price, feedin, load)
	}

	secondsSinceMidnight := now.Hour()*3600 + now.Minute()*60 + now.Second()
	dt := make([]float64, n)
	dt[0] = float64(timeFrameBase - secondsSinceMidnight%timeFrameBase)
	for i := 1; i < n; i++ {
		dt[i] = float64(timeFrameBase)
	}

	battery := evoptBattery{
		DeviceID: "akku1",
		PDemand:  make([]float64, n),
		SGoal:    make([]float64, n),
	}
	etaCharge, etaDischarge := 0.95, 0.95
	if b := req.Battery; b != nil && b.CapacityWh > 0 {
		if b.DeviceID != "" {
			battery.DeviceID = b.DeviceID
		}
		battery.ChargeFromGrid = true
		battery.DischargeToGrid = true
		battery.SMin = b.CapacityWh * b.MinSOCPct / 100
		battery.SMax = b.CapacityWh * b.MaxSOCPct / 100
		battery.SInitial = b.CapacityWh * b.InitialSOCPct / 100
		battery.CMax = b.MaxChargePowerW
		battery.DMax = b.MaxChargePowerW
		if b.ChargeEfficiency > 0 {
			etaCharge = b.ChargeEfficiency
		}
		if b.DischargeEfficiency > 0 {
			etaDischarge = b.DischargeEfficiency
		}
	}

	return evoptRequest{
		Strategy: evoptStrategy{
			ChargingStrategy:    "charge_before_export",
			DischargingStrategy: "discharge_before_import",
		},
		Grid: evoptGrid{
			MaxImportW: 10000,
			MaxExportW: 10000,
		},
		Batteries: []evoptBattery{battery},
		TimeSeries: evoptTimeSeries{
			DT:          dt,
			Load:        load.Normalize(n),
			PV:          pv.Normalize(n),
			PriceImport: price.Normalize(n),
			PriceFeedin: feedin.Normalize(n),
		},
		EtaCharge:    etaCharge,
		EtaDischarge: etaDischarge,
	}
}

// takeN truncates or zero-pads the slice to exactly n entries.
func takeN(in []float64, n int) types.TimeSeries {
	out := make(types.TimeSeries, n)
	copy(out, in)
	return out
}

// translateResponse rebuilds a canonical response from the EVopt result.
// Control arrays cover the full day with zeros left-padded for the elapsed
// slots; result arrays start at "now". The translation is pure given now.
func translateResponse(evResp evoptResponse, evReq evoptRequest, now time.Time, timeFrameBase int) types.OptimizeResponse {
	currentHour := now.Hour()
	n := types.HorizonHours - currentHour
	padSlots := currentHour
	if timeFrameBase == QuarterFrameBase {
		n *= 4
		padSlots *= 4
	}

	var firstBattery evoptBatteryResult
	if len(evResp.Batteries) > 0 {
		firstBattery = evResp.Batteries[0]
	}
	charging := takeN(firstBattery.ChargingPowerW, n)
	discharging := takeN(firstBattery.DischargingPowerW, n)
	gridImport := takeN(evResp.GridImportWh, n)
	gridExport := takeN(evResp.GridExportWh, n)

	priceImport := evReq.TimeSeries.PriceImport.Normalize(n)
	priceFeedin := evReq.TimeSeries.PriceFeedin.Normalize(n)

	etaCharge, etaDischarge := evReq.EtaCharge, evReq.EtaDischarge
	if etaCharge == 0 {
		etaCharge = 0.95
	}
	if etaDischarge == 0 {
		etaDischarge = 0.95
	}

	var cMax, sMax float64
	if len(evReq.Batteries) > 0 {
		cMax = evReq.Batteries[0].CMax
		sMax = evReq.Batteries[0].SMax
	}
	if cMax <= 0 {
		for _, v := range charging {
			if v > cMax {
				cMax = v
			}
		}
		if cMax <= 0 {
			cMax = 1
		}
	}

	acCharge := make(types.TimeSeries, n)
	dcCharge := make(types.TimeSeries, n)
	dischargeAllowed := make(types.IntSeries, n)
	for i := 0; i < n; i++ {
		if gridImport[i] > 0 {
			frac := min(charging[i], gridImport[i]) / cMax
			acCharge[i] = max(0, min(1, frac))
		}
		if charging[i] > 0 {
			dcCharge[i] = 1
		}
		if discharging[i] > 1e-9 {
			dischargeAllowed[i] = 1
		}
	}

	startSolution := make(types.IntSeries, n)
	switch {
	case len(evResp.StartSolution) > 0:
		for i, v := range evResp.StartSolution {
			if i >= n {
				break
			}
			startSolution[i] = int(v)
		}
	case evResp.EV != nil && len(evResp.EV.ChargeArray) > 0:
		for i, v := range evResp.EV.ChargeArray {
			if i >= n {
				break
			}
			if v > 0 {
				startSolution[i] = 1
			}
		}
	}

	cost := make(types.TimeSeries, n)
	revenue := make(types.TimeSeries, n)
	losses := make(types.TimeSeries, n)
	var totalCost, totalRevenue, totalLosses float64
	for i := 0; i < n; i++ {
		cost[i] = gridImport[i] * priceImport[i]
		revenue[i] = gridExport[i] * priceFeedin[i]
		losses[i] = charging[i]*(1-etaCharge) + discharging[i]*(1-etaDischarge)
		totalCost += cost[i]
		totalRevenue += revenue[i]
		totalLosses += losses[i]
	}

	var socPct types.TimeSeries
	if len(firstBattery.StateOfChargeWh) > 0 {
		socWh := firstBattery.StateOfChargeWh
		if len(socWh) > n {
			socWh = socWh[:n]
		}
		ref := sMax
		if ref <= 0 {
			for _, v := range socWh {
				if v > ref {
					ref = v
				}
			}
		}
		socPct = make(types.TimeSeries, len(socWh))
		for i, v := range socWh {
			if ref > 0 {
				socPct[i] = v / ref * 100
			} else {
				socPct[i] = v
			}
		}
	}

	result := &types.OptimizeResult{
		LoadWhPerHour:          evReq.TimeSeries.Load.Normalize(n),
		RevenuePerHour:         revenue,
		CostPerHour:            cost,
		TotalLosses:            totalLosses,
		TotalBalance:           totalRevenue - totalCost,
		TotalRevenue:           totalRevenue,
		TotalCost:              totalCost,
		HomeApplianceWhPerHour: make(types.TimeSeries, n),
		GridImportWhPerHour:    gridImport,
		GridExportWhPerHour:    gridExport,
		LossesPerHour:          losses,
		BatterySOCPerHour:      socPct,
		ElectricityPrice:       priceImport,
	}

	pad := func(ts types.TimeSeries) types.TimeSeries {
		return append(make(types.TimeSeries, padSlots), ts...)
	}
	padInts := func(is types.IntSeries) types.IntSeries {
		return append(make(types.IntSeries, padSlots), is...)
	}

	return types.OptimizeResponse{
		ACCharge:         pad(acCharge),
		DCCharge:         pad(dcCharge),
		DischargeAllowed: padInts(dischargeAllowed),
		StartSolution:    padInts(startSolution),
		WashingStart:     evResp.WashingStart,
		Result:           result,
		Timestamp:        now.Format(time.RFC3339),
	}
}
