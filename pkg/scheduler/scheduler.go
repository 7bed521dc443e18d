package scheduler

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/eosconnect/eosconnect/pkg/battery"
	"github.com/eosconnect/eosconnect/pkg/control"
	"github.com/eosconnect/eosconnect/pkg/evcc"
	"github.com/eosconnect/eosconnect/pkg/forecast"
	"github.com/eosconnect/eosconnect/pkg/inverter"
	"github.com/eosconnect/eosconnect/pkg/load"
	"github.com/eosconnect/eosconnect/pkg/log"
	"github.com/eosconnect/eosconnect/pkg/optimizer"
	"github.com/eosconnect/eosconnect/pkg/price"
	"github.com/eosconnect/eosconnect/pkg/types"
)

// telemetryInterval is the cadence of the inner inverter telemetry loop.
const telemetryInterval = 15 * time.Second

// Publisher receives topic/value pairs for external publication. Values are
// fire-and-forget; a nil Publisher drops everything.
type Publisher interface {
	PublishValues(values map[string]any)
}

// Deps are the ports the scheduler orchestrates.
type Deps struct {
	Backend    optimizer.Backend
	Prices     *price.Service
	Loads      *load.Service
	Battery    *battery.Service
	Forecast   *forecast.Service
	EVCC       *evcc.Client
	Controller *control.Controller
	Inverter   inverter.Driver
	Settings   *inverter.Settings
}

// Scheduler drives the periodic optimization cycle (outer loop) and the
// faster inverter telemetry refresh (inner loop).
type Scheduler struct {
	deps  Deps
	state *State
	now   func() time.Time

	workDir        string
	updateInterval time.Duration
	dishwasherWh   float64
	dishwasherH    float64

	publisher Publisher
	stop      chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// New returns a Scheduler over the given ports.
func New(deps Deps, loc *time.Location, workDir string, updateInterval time.Duration) *Scheduler {
	return &Scheduler{
		deps:           deps,
		state:          NewState(),
		now:            func() time.Time { return time.Now().In(loc) },
		workDir:        workDir,
		updateInterval: updateInterval,
		stop:           make(chan struct{}),
	}
}

// State returns the shared loop state for the UI and MQTT.
func (s *Scheduler) State() *State { return s.state }

// SetPublisher installs the MQTT publisher. Must be called before Run.
func (s *Scheduler) SetPublisher(p Publisher) { s.publisher = p }

// SetWorkDir overrides the working directory for persisted artifacts.
func (s *Scheduler) SetWorkDir(dir string) { s.workDir = dir }

// WorkDir returns the working directory for persisted artifacts.
func (s *Scheduler) WorkDir() string { return s.workDir }

func (s *Scheduler) publish(values map[string]any) {
	if s.publisher == nil {
		return
	}
	s.publisher.PublishValues(values)
}

// Run starts both loops in the background. Use Shutdown to stop them.
func (s *Scheduler) Run(ctx context.Context) {
	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.outerLoop(ctx)
	}()
	go func() {
		defer s.wg.Done()
		s.innerLoop(ctx)
	}()
}

// Shutdown signals both loops and waits for them with a bounded join.
func (s *Scheduler) Shutdown(ctx context.Context) {
	s.stopOnce.Do(func() { close(s.stop) })
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		log.Ctx(ctx).WarnContext(ctx, "scheduler loops did not stop in time, continuing shutdown")
	}
}

// sleepUntil sleeps in 1-second chunks so the stop signal is observed
// promptly. Returns false when the scheduler should exit.
func (s *Scheduler) sleepUntil(ctx context.Context, wake time.Time) bool {
	for {
		remaining := wake.Sub(s.now())
		if remaining <= 0 {
			return true
		}
		chunk := remaining
		if chunk > time.Second {
			chunk = time.Second
		}
		select {
		case <-s.stop:
			return false
		case <-ctx.Done():
			return false
		case <-time.After(chunk):
		}
	}
}

func (s *Scheduler) outerLoop(ctx context.Context) {
	for {
		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		default:
		}
		wake := s.runOnce(ctx)
		if !s.sleepUntil(ctx, wake) {
			return
		}
	}
}

// runOnce performs one optimization cycle and returns the next wake time.
func (s *Scheduler) runOnce(ctx context.Context) time.Time {
	now := s.now()
	log.Ctx(ctx).InfoContext(ctx, "starting optimization run")

	s.state.setRequestSent(now)
	s.publish(map[string]any{"optimization/state": RunStateRequestSent})

	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	s.deps.Prices.UpdatePrices(ctx, types.HorizonHours, midnight)

	req := s.buildRequest(ctx, now)
	s.writeArtifact(ctx, "optimize_request.json", req)

	resp, avgRuntime, err := s.deps.Backend.Optimize(ctx, req)
	respAt := s.now()
	s.state.setResponse(req, resp, respAt)
	s.writeArtifact(ctx, "optimize_response.json", resp)

	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "optimization failed, keeping previous controls",
			slog.String("error", err.Error()),
		)
	} else {
		s.applyResponse(ctx, resp, respAt.Hour())
	}

	avg := time.Duration(avgRuntime * float64(time.Second))
	next := NextRunTime(s.now(), avg, s.updateInterval)
	s.state.setNextRun(next)
	s.publish(map[string]any{
		"optimization/state":    RunStateResponseReceived,
		"optimization/last_run": respAt.Format(time.RFC3339),
		"optimization/next_run": next.Format(time.RFC3339),
	})
	log.Ctx(ctx).InfoContext(ctx, "next optimization scheduled",
		slog.Time("at", next),
		slog.Float64("avgRuntimeSeconds", avgRuntime),
	)
	return next
}

// buildRequest assembles the canonical request from the current port values.
// Missing forecasts do not abort the cycle; the request carries whatever is
// available, normalized to the horizon.
func (s *Scheduler) buildRequest(ctx context.Context, now time.Time) types.OptimizeRequest {
	req := types.OptimizeRequest{
		EMS: types.EMSData{
			PVForecastWh: s.deps.Forecast.CurrentPVForecast().Normalize(types.HorizonHours),
			PriceImport:  s.deps.Prices.CurrentPrices().Normalize(types.HorizonHours),
			PriceFeedin:  s.deps.Prices.CurrentFeedinPrices().Normalize(types.HorizonHours),
			LoadWh:       s.deps.Loads.LoadProfile(ctx, types.HorizonHours),
		},
		Battery: &types.BatterySpec{
			CapacityWh:          s.deps.Battery.CapacityWh(),
			ChargeEfficiency:    0.95,
			DischargeEfficiency: 0.95,
			MaxChargePowerW:     s.deps.Battery.MaxChargePowerW(),
			InitialSOCPct:       s.deps.Battery.CurrentSOC(),
			MinSOCPct:           s.deps.Battery.MinSOCPct(),
			MaxSOCPct:           s.deps.Battery.MaxSOCPct(),
		},
		Inverter: &types.InverterSpec{
			MaxPowerWh: s.deps.Settings.MaxGridChargeRateW,
		},
		Dishwasher: &types.ApplianceSpec{
			ConsumptionWh: s.dishwasherWh,
			DurationH:     s.dishwasherH,
		},
		TemperatureForecast: s.deps.Forecast.CurrentTempForecast().Normalize(types.HorizonHours),
		StartSolution:       s.state.StartSolution(),
		Timestamp:           now.Format(time.RFC3339),
	}
	return req
}

// applyResponse runs the response interpreter and hands the current slot to
// the control state machine.
func (s *Scheduler) applyResponse(ctx context.Context, resp types.OptimizeResponse, hour int) {
	data := interpretResponse(resp, hour)
	s.state.setControlData(data)
	if data[0].Error {
		log.Ctx(ctx).WarnContext(ctx, "response carries no usable control arrays")
	} else {
		s.state.setStartSolution(resp.StartSolution)
	}
	applianceHour, released := applianceRelease(resp, hour)
	s.state.setAppliance(applianceHour, released)

	s.Reevaluate(ctx)
	s.publishControls(data, applianceHour, released)
}

// Reevaluate feeds the current control slot and EV charger state into the
// state machine. Also invoked by the EV and battery observers.
func (s *Scheduler) Reevaluate(ctx context.Context) {
	data := s.state.ControlData()
	var charging bool
	var mode types.ChargeMode
	if s.deps.EVCC != nil && s.deps.EVCC.Enabled() {
		charging = s.deps.EVCC.ChargingState()
		mode = s.deps.EVCC.ChargingMode()
	}
	s.deps.Controller.Update(ctx, data[0], charging, mode)
}

func (s *Scheduler) publishControls(data types.ControlData, applianceHour *int, released bool) {
	snap := s.deps.Controller.Snapshot()
	values := map[string]any{
		"control/overall_state":              snap.State.String(),
		"control/eos_ac_charge_demand":       data[0].ACChargeDemand,
		"control/eos_dc_charge_demand":       data[0].DCChargeDemand,
		"control/eos_discharge_allowed":      data[0].DischargeAllowed,
		"control/override_active":            snap.OverrideActive,
		"control/override_end_time":          isoOrEmpty(snap.Override.EndTime),
		"control/override_charge_power":      snap.Override.GridChargeKW,
		"control/eos_homeappliance_released": released,
		"battery/soc":                        s.deps.Battery.CurrentSOC(),
		"battery/remaining_energy":           s.deps.Battery.UsableCapacityWh(),
		"battery/dyn_max_charge_power":       s.deps.Battery.DynamicMaxChargePowerW(),
	}
	if applianceHour != nil {
		values["control/eos_homeappliance_start_hour"] = *applianceHour
	}
	s.publish(values)
}

func (s *Scheduler) innerLoop(ctx context.Context) {
	for {
		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		default:
		}
		s.refreshTelemetry(ctx)
		if !s.sleepUntil(ctx, s.now().Add(telemetryInterval)) {
			return
		}
	}
}

// refreshTelemetry publishes inverter telemetry for drivers that expose it.
// Failures are logged and the next tick retries.
func (s *Scheduler) refreshTelemetry(ctx context.Context) {
	provider, ok := inverter.AsTelemetryProvider(s.deps.Inverter)
	if !ok {
		return
	}
	telemetry, err := provider.FetchTelemetry(ctx)
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "inverter telemetry refresh failed",
			slog.String("error", err.Error()),
		)
		return
	}
	values := make(map[string]any, len(telemetry))
	for key, value := range telemetry {
		values["inverter/special/"+key] = value
	}
	s.publish(values)
}

// writeArtifact persists a cycle artifact under <workdir>/json for debugging
// and for the UI JSON endpoints.
func (s *Scheduler) writeArtifact(ctx context.Context, name string, v any) {
	dir := filepath.Join(s.workDir, "json")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to create artifact directory",
			slog.String("error", err.Error()),
		)
		return
	}
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to encode artifact",
			slog.String("file", name),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to write artifact",
			slog.String("file", name),
			slog.String("error", err.Error()),
		)
	}
}
