package control

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/eosconnect/eosconnect/pkg/inverter"
	"github.com/eosconnect/eosconnect/pkg/log"
	"github.com/eosconnect/eosconnect/pkg/types"
)

// recencyWindow is how long after a state change commands are still
// reasserted to the inverter.
const recencyWindow = 180 * time.Second

// SelectState picks the overall state for the current hour. An active EV
// charging session wins over the optimizer's decision; otherwise the
// control slot decides.
func SelectState(slot types.ControlSlot, evCharging bool, evMode types.ChargeMode) types.OverallState {
	if evCharging {
		switch evMode {
		case types.ChargeModeNow:
			return types.StateAvoidDischargeEVFast
		case types.ChargeModePV:
			return types.StateDischargeAllowedEVPV
		case types.ChargeModeMinPV:
			return types.StateDischargeAllowedEVMin
		}
		// mode off or unknown falls through to the optimizer's decision
	}
	if slot.ACChargeDemand > 0 {
		return types.StateChargeFromGrid
	}
	if slot.DischargeAllowed {
		return types.StateDischargeAllowed
	}
	return types.StateAvoidDischarge
}

// BatteryLimits reports the SoC-dependent charge limit for target power
// computation.
type BatteryLimits interface {
	DynamicMaxChargePowerW() float64
}

// Controller is the serialized control state machine. It owns the current
// overall state, the user override, and the inverter dispatch.
type Controller struct {
	driver   inverter.Driver
	settings *inverter.Settings
	battery  BatteryLimits
	now      func() time.Time

	mu        sync.Mutex
	state     types.OverallState
	changedAt time.Time
	override  types.Override
	slot      types.ControlSlot
}

// New returns a Controller in the uninitialized state.
func New(driver inverter.Driver, settings *inverter.Settings, battery BatteryLimits) *Controller {
	return &Controller{
		driver:   driver,
		settings: settings,
		battery:  battery,
		now:      time.Now,
		state:    types.StateUninitialized,
	}
}

// SetOverride installs a user override. Mode -1 clears any active override.
func (c *Controller) SetOverride(mode int, duration time.Duration, gridChargeKW float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if mode == -1 {
		c.override = types.Override{Mode: -1}
		return
	}
	c.override = types.Override{
		Mode:         mode,
		EndTime:      c.now().Add(duration),
		GridChargeKW: gridChargeKW,
	}
}

// Override returns the current override.
func (c *Controller) Override() types.Override {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.override
}

// State returns the current overall state.
func (c *Controller) State() types.OverallState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// CurrentSlot returns the control slot the state machine last acted on.
func (c *Controller) CurrentSlot() types.ControlSlot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slot
}

// changedRecently reports whether the state changed within the recency
// window. Callers must hold c.mu.
func (c *Controller) changedRecently() bool {
	return !c.changedAt.IsZero() && c.now().Sub(c.changedAt) < recencyWindow
}

// Update recomputes the overall state from the control slot and the EV
// charger, then dispatches to the inverter when the state is fresh. It is
// the single entry point for the scheduler and all change callbacks, and
// runs serialized. Returns true when a command was sent.
func (c *Controller) Update(ctx context.Context, slot types.ControlSlot, evCharging bool, evMode types.ChargeMode) bool {
	c.mu.Lock()

	if slot.Error {
		log.Ctx(ctx).WarnContext(ctx, "control data flagged as erroneous, keeping previous state",
			slog.Int("hour", slot.Hour),
		)
		c.mu.Unlock()
		return false
	}
	c.slot = slot

	now := c.now()
	var next types.OverallState
	if c.override.Active(now) {
		next = types.OverallState(c.override.Mode)
	} else {
		next = SelectState(slot, evCharging, evMode)
	}

	if next != c.state {
		log.Ctx(ctx).InfoContext(ctx, "overall state changed",
			slog.String("from", c.state.String()),
			slog.String("to", next.String()),
		)
		c.state = next
		c.changedAt = now
	}

	if !c.changedRecently() {
		c.mu.Unlock()
		log.Ctx(ctx).DebugContext(ctx, "state unchanged for a while, not commanding inverter",
			slog.String("state", next.String()),
		)
		return false
	}

	state := c.state
	tgtAC := c.targetACWatts()
	tgtDC := c.targetDCWatts()
	c.mu.Unlock()

	return c.dispatch(ctx, state, tgtAC, tgtDC)
}

// targetACWatts computes the grid charge power for the current demand,
// bounded by the battery's dynamic limit. Callers must hold c.mu.
func (c *Controller) targetACWatts() float64 {
	dynMax := c.battery.DynamicMaxChargePowerW()
	if c.override.Active(c.now()) {
		return math.Min(c.override.GridChargeKW*1000, dynMax)
	}
	return math.Min(c.slot.ACChargeDemand*c.settings.MaxGridChargeRateW, dynMax)
}

// targetDCWatts computes the PV charge cap. Callers must hold c.mu.
func (c *Controller) targetDCWatts() float64 {
	dynMax := c.battery.DynamicMaxChargePowerW()
	return math.Min(c.slot.DCChargeDemand*c.settings.MaxPVChargeRateW, dynMax)
}

// dispatch sends the command matching the state to the inverter. Command
// failures are logged; the next cycle retries.
func (c *Controller) dispatch(ctx context.Context, state types.OverallState, tgtAC, tgtDC float64) bool {
	var err error
	switch state {
	case types.StateChargeFromGrid:
		err = c.driver.SetForceCharge(ctx, tgtAC)
	case types.StateAvoidDischarge, types.StateAvoidDischargeEVFast:
		err = c.driver.SetAvoidDischarge(ctx)
	case types.StateDischargeAllowed, types.StateDischargeAllowedEVPV, types.StateDischargeAllowedEVMin:
		err = c.driver.SetAllowDischarge(ctx)
	default:
		log.Ctx(ctx).WarnContext(ctx, "inverter mode not initialized yet")
		return false
	}
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "inverter command failed",
			slog.String("state", state.String()),
			slog.String("error", err.Error()),
		)
		return false
	}

	if limiter, ok := inverter.AsPVChargeLimiter(c.driver); ok && tgtDC > 0 {
		if err := limiter.SetMaxPVChargeRate(ctx, tgtDC); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to set pv charge cap",
				slog.String("error", err.Error()),
			)
		}
	}

	log.Ctx(ctx).InfoContext(ctx, "inverter mode set",
		slog.String("state", state.String()),
		slog.Float64("targetACWatts", tgtAC),
	)
	return true
}

// Snapshot is the UI/MQTT view of the state machine.
type Snapshot struct {
	State          types.OverallState
	StateChangedAt time.Time
	Slot           types.ControlSlot
	Override       types.Override
	OverrideActive bool
	TargetACWatts  float64
}

// Snapshot returns a consistent copy of the controller state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		State:          c.state,
		StateChangedAt: c.changedAt,
		Slot:           c.slot,
		Override:       c.override,
		OverrideActive: c.override.Active(c.now()),
		TargetACWatts:  c.targetACWatts(),
	}
}
