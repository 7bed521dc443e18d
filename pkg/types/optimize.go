package types

// EMSData carries the per-slot forecast series of an optimization request.
// The wire names follow the EOS energy-management schema.
type EMSData struct {
	PVForecastWh      TimeSeries `json:"pv_prognose_wh"`
	PriceImport       TimeSeries `json:"strompreis_euro_pro_wh"`
	PriceFeedin       TimeSeries `json:"einspeiseverguetung_euro_pro_wh"`
	PriceBatteryPerWh float64    `json:"preis_euro_pro_wh_akku"`
	LoadWh            TimeSeries `json:"gesamtlast"`
}

// BatterySpec describes a stationary or EV battery for the optimizer.
// DeviceID is only set for servers that require device registration.
type BatterySpec struct {
	DeviceID            string  `json:"device_id,omitempty"`
	CapacityWh          float64 `json:"capacity_wh"`
	ChargeEfficiency    float64 `json:"charging_efficiency"`
	DischargeEfficiency float64 `json:"discharging_efficiency"`
	MaxChargePowerW     float64 `json:"max_charge_power_w"`
	InitialSOCPct       float64 `json:"initial_soc_percentage"`
	MinSOCPct           float64 `json:"min_soc_percentage"`
	MaxSOCPct           float64 `json:"max_soc_percentage"`
}

// InverterSpec describes the inverter limits for the optimizer.
type InverterSpec struct {
	DeviceID   string  `json:"device_id,omitempty"`
	MaxPowerWh float64 `json:"max_power_wh"`
	BatteryID  string  `json:"battery_id,omitempty"`
}

// ApplianceSpec describes a deferrable household load the optimizer may place
// anywhere in the horizon.
type ApplianceSpec struct {
	DeviceID      string  `json:"device_id,omitempty"`
	ConsumptionWh float64 `json:"consumption_wh"`
	DurationH     float64 `json:"duration_h"`
}

// OptimizeRequest is the canonical optimization request. It serializes
// directly as the native EOS payload; translating backends convert it.
type OptimizeRequest struct {
	EMS                 EMSData        `json:"ems"`
	Battery             *BatterySpec   `json:"pv_akku"`
	Inverter            *InverterSpec  `json:"inverter"`
	EV                  *BatterySpec   `json:"eauto"`
	Dishwasher          *ApplianceSpec `json:"dishwasher"`
	TemperatureForecast TimeSeries     `json:"temperature_forecast,omitempty"`
	StartSolution       IntSeries      `json:"start_solution"`
	Timestamp           string         `json:"timestamp,omitempty"`
}

// OptimizeResult holds the per-slot accounting arrays a response carries for
// display. Arrays start at "now" and are not padded for elapsed slots.
type OptimizeResult struct {
	LoadWhPerHour          TimeSeries `json:"Last_Wh_pro_Stunde"`
	EVSOCPerHour           TimeSeries `json:"EAuto_SoC_pro_Stunde,omitempty"`
	RevenuePerHour         TimeSeries `json:"Einnahmen_Euro_pro_Stunde"`
	CostPerHour            TimeSeries `json:"Kosten_Euro_pro_Stunde"`
	TotalLosses            float64    `json:"Gesamt_Verluste"`
	TotalBalance           float64    `json:"Gesamtbilanz_Euro"`
	TotalRevenue           float64    `json:"Gesamteinnahmen_Euro"`
	TotalCost              float64    `json:"Gesamtkosten_Euro"`
	HomeApplianceWhPerHour TimeSeries `json:"Home_appliance_wh_per_hour"`
	GridImportWhPerHour    TimeSeries `json:"Netzbezug_Wh_pro_Stunde"`
	GridExportWhPerHour    TimeSeries `json:"Netzeinspeisung_Wh_pro_Stunde"`
	LossesPerHour          TimeSeries `json:"Verluste_Pro_Stunde"`
	BatterySOCPerHour      TimeSeries `json:"akku_soc_pro_stunde,omitempty"`
	ElectricityPrice       TimeSeries `json:"Electricity_price"`
}

// OptimizeResponse is the canonical optimization response. Control arrays
// cover the whole day with zeros left-padded for elapsed slots.
type OptimizeResponse struct {
	ACCharge          TimeSeries      `json:"ac_charge,omitempty"`
	DCCharge          TimeSeries      `json:"dc_charge,omitempty"`
	DischargeAllowed  IntSeries       `json:"discharge_allowed,omitempty"`
	StartSolution     IntSeries       `json:"start_solution,omitempty"`
	WashingStart      *int            `json:"washingstart,omitempty"`
	EVChargeHoursFrac TimeSeries      `json:"eautocharge_hours_float"`
	Result            *OptimizeResult `json:"result,omitempty"`
	Timestamp         string          `json:"timestamp,omitempty"`
	Error             string          `json:"error,omitempty"`
}

// HasControls reports whether the response carries usable control arrays and
// a warm-startable solution vector.
func (r OptimizeResponse) HasControls() bool {
	if len(r.ACCharge) == 0 || len(r.DCCharge) == 0 || len(r.DischargeAllowed) == 0 {
		return false
	}
	return len(r.StartSolution) > 1
}
