package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/eosconnect/eosconnect/pkg/common"
	"github.com/eosconnect/eosconnect/pkg/control"
	"github.com/eosconnect/eosconnect/pkg/inverter"
	"github.com/eosconnect/eosconnect/pkg/log"
	"github.com/eosconnect/eosconnect/pkg/scheduler"
)

// apiVersion is the contract version of the JSON surface.
const apiVersion = "0.0.1"

type currentStates struct {
	ACChargeDemand   float64 `json:"current_ac_charge_demand"`
	DCChargeDemand   float64 `json:"current_dc_charge_demand"`
	DischargeAllowed bool    `json:"current_discharge_allowed"`
	InverterMode     string  `json:"inverter_mode"`
	InverterModeNum  int     `json:"inverter_mode_num"`
	OverrideActive   bool    `json:"override_active"`
	OverrideEndTime  string  `json:"override_end_time"`
}

type evccState struct {
	ChargingState   bool            `json:"charging_state"`
	ChargingMode    string          `json:"charging_mode"`
	CurrentSessions json.RawMessage `json:"current_sessions"`
}

type batteryState struct {
	SOC               float64 `json:"soc"`
	UsableCapacity    float64 `json:"usable_capacity"`
	MaxChargePowerDyn float64 `json:"max_charge_power_dyn"`
	MaxGridChargeRate float64 `json:"max_grid_charge_rate"`
}

type inverterState struct {
	SpecialData map[string]float64 `json:"inverter_special_data"`
}

type controlsView struct {
	CurrentStates currentStates      `json:"current_states"`
	EVCC          evccState          `json:"evcc"`
	Battery       batteryState       `json:"battery"`
	Inverter      inverterState      `json:"inverter"`
	State         scheduler.Snapshot `json:"state"`
	Version       string             `json:"eos_connect_version"`
	Timestamp     string             `json:"timestamp"`
	APIVersion    string             `json:"api_version"`
}

// controlsSnapshot aggregates the UI view of the whole daemon.
func (s *Server) controlsSnapshot(r *http.Request) controlsView {
	snap := s.controller.Snapshot()

	view := controlsView{
		CurrentStates: currentStates{
			ACChargeDemand:   snap.Slot.ACChargeDemand,
			DCChargeDemand:   snap.Slot.DCChargeDemand,
			DischargeAllowed: snap.Slot.DischargeAllowed,
			InverterMode:     snap.State.String(),
			InverterModeNum:  int(snap.State),
			OverrideActive:   snap.OverrideActive,
		},
		Battery: batteryState{
			SOC:               s.battery.CurrentSOC(),
			UsableCapacity:    s.battery.UsableCapacityWh(),
			MaxChargePowerDyn: s.battery.DynamicMaxChargePowerW(),
			MaxGridChargeRate: s.settings.MaxGridChargeRateW,
		},
		State:      s.sched.State().Snapshot(),
		Version:    common.Version(),
		Timestamp:  s.now().Format(time.RFC3339),
		APIVersion: apiVersion,
	}
	if !snap.Override.EndTime.IsZero() {
		view.CurrentStates.OverrideEndTime = snap.Override.EndTime.Format(time.RFC3339)
	}
	if s.evcc != nil && s.evcc.Enabled() {
		view.EVCC = evccState{
			ChargingState:   s.evcc.ChargingState(),
			ChargingMode:    string(s.evcc.ChargingMode()),
			CurrentSessions: s.evcc.CurrentSessions(),
		}
	}
	if provider, ok := inverter.AsTelemetryProvider(s.driver); ok {
		telemetry, err := provider.FetchTelemetry(r.Context())
		if err != nil {
			log.Ctx(r.Context()).WarnContext(r.Context(), "inverter telemetry fetch failed",
				slog.String("error", err.Error()),
			)
		} else {
			view.Inverter.SpecialData = telemetry
		}
	}
	return view
}

func (s *Server) handleCurrentControls(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.controlsSnapshot(r))
}

func (s *Server) handleOptimizeRequest(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.sched.State().LastRequest())
}

func (s *Server) handleOptimizeResponse(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.sched.State().LastResponse())
}

// handleModeOverride applies a user override to the control state machine.
// The payload mirrors the MQTT command topic except the charge power is in
// kilowatts.
func (s *Server) handleModeOverride(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Mode            *int     `json:"mode"`
		Duration        *string  `json:"duration"`
		GridChargePower *float64 `json:"grid_charge_power"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil ||
		body.Mode == nil || body.Duration == nil || body.GridChargePower == nil {
		writeJSONError(w, "invalid payload", http.StatusBadRequest)
		return
	}

	var duration time.Duration
	if *body.Mode >= 0 {
		var err error
		duration, err = control.ParseOverrideDuration(*body.Duration)
		if err != nil {
			writeJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	if err := s.controller.ApplyOverride(*body.Mode, duration, *body.GridChargePower); err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if *body.Mode < 0 {
		log.Ctx(r.Context()).InfoContext(r.Context(), "mode override deactivated")
	} else {
		log.Ctx(r.Context()).InfoContext(r.Context(), "mode override applied",
			slog.Int("mode", *body.Mode),
			slog.Duration("duration", duration),
		)
	}
	s.sched.Reevaluate(r.Context())

	writeJSON(w, struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}{Status: "success", Message: "Mode override applied"})
}
