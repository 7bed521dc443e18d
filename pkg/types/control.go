package types

import "time"

// OverallState is the operating mode the control loop selects for the
// inverter each cycle.
type OverallState int

const (
	StateUninitialized         OverallState = -1
	StateChargeFromGrid        OverallState = 0
	StateAvoidDischarge        OverallState = 1
	StateDischargeAllowed      OverallState = 2
	StateAvoidDischargeEVFast  OverallState = 3
	StateDischargeAllowedEVPV  OverallState = 4
	StateDischargeAllowedEVMin OverallState = 5
)

// String implements fmt.Stringer.
func (s OverallState) String() string {
	switch s {
	case StateChargeFromGrid:
		return "CHARGE_FROM_GRID"
	case StateAvoidDischarge:
		return "AVOID_DISCHARGE"
	case StateDischargeAllowed:
		return "DISCHARGE_ALLOWED"
	case StateAvoidDischargeEVFast:
		return "AVOID_DISCHARGE_EV_FAST"
	case StateDischargeAllowedEVPV:
		return "DISCHARGE_ALLOWED_EV_PV"
	case StateDischargeAllowedEVMin:
		return "DISCHARGE_ALLOWED_EV_MIN_PV"
	case StateUninitialized:
		return "UNINITIALIZED"
	}
	return "UNKNOWN"
}

// ControlSlot holds the optimizer's decision for a single hour.
type ControlSlot struct {
	ACChargeDemand   float64 `json:"ac_charge_demand"`
	DCChargeDemand   float64 `json:"dc_charge_demand"`
	DischargeAllowed bool    `json:"discharge_allowed"`
	Error            bool    `json:"error"`
	Hour             int     `json:"hour"`
}

// ControlData pairs the current hour's decision with the next hour's.
type ControlData [2]ControlSlot

// ErrorControlData returns a pair flagged as erroneous for hour h and its
// successor, used when a response carried no usable control arrays.
func ErrorControlData(h int) ControlData {
	return ControlData{
		{Error: true, Hour: h},
		{Error: true, Hour: (h + 1) % 24},
	}
}

// ChargeMode is an EV charger charging mode as reported by evcc.
type ChargeMode string

const (
	ChargeModeOff   ChargeMode = "off"
	ChargeModePV    ChargeMode = "pv"
	ChargeModeMinPV ChargeMode = "minpv"
	ChargeModeNow   ChargeMode = "now"
)

// ValidChargeMode reports whether m is a mode evcc accepts.
func ValidChargeMode(m ChargeMode) bool {
	switch m {
	case ChargeModeOff, ChargeModePV, ChargeModeMinPV, ChargeModeNow:
		return true
	}
	return false
}

// Override is a user-requested forced state with an expiry. Mode -1 clears
// any active override.
type Override struct {
	Mode         int       `json:"mode"`
	EndTime      time.Time `json:"end_time"`
	GridChargeKW float64   `json:"grid_charge_power"`
}

// Active reports whether the override should still win over the optimizer.
func (o Override) Active(now time.Time) bool {
	return o.Mode >= 0 && now.Before(o.EndTime)
}
