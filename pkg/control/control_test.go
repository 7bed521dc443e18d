package control

import (
	"context"
	"testing"
	"time"

	"github.com/eosconnect/eosconnect/pkg/inverter"
	"github.com/eosconnect/eosconnect/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectState(t *testing.T) {
	slot := func(ac, dc float64, discharge bool) types.ControlSlot {
		return types.ControlSlot{ACChargeDemand: ac, DCChargeDemand: dc, DischargeAllowed: discharge}
	}

	tests := []struct {
		name       string
		slot       types.ControlSlot
		evCharging bool
		evMode     types.ChargeMode
		want       types.OverallState
	}{
		{"ACChargeWins", slot(0.5, 0, false), false, "", types.StateChargeFromGrid},
		{"ACChargeEvenWithDischarge", slot(0.5, 1, true), false, "", types.StateChargeFromGrid},
		{"AllZero", slot(0, 0, false), false, "", types.StateAvoidDischarge},
		{"DCOnly", slot(0, 1, false), false, "", types.StateAvoidDischarge},
		{"DischargeAllowed", slot(0, 0, true), false, "", types.StateDischargeAllowed},
		{"DischargeWithDC", slot(0, 1, true), false, "", types.StateDischargeAllowed},
		{"EVNow", slot(0, 0, true), true, types.ChargeModeNow, types.StateAvoidDischargeEVFast},
		{"EVPV", slot(0.5, 0, false), true, types.ChargeModePV, types.StateDischargeAllowedEVPV},
		{"EVMinPV", slot(0, 0, false), true, types.ChargeModeMinPV, types.StateDischargeAllowedEVMin},
		{"EVChargingButOff", slot(0.5, 0, false), true, types.ChargeModeOff, types.StateChargeFromGrid},
		{"EVModeNotChargingIgnored", slot(0, 0, true), false, types.ChargeModeNow, types.StateDischargeAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SelectState(tt.slot, tt.evCharging, tt.evMode))
		})
	}
}

type fakeDriver struct {
	forceChargeW []float64
	avoids       int
	allows       int
	pvCaps       []float64
}

func (f *fakeDriver) Name() string { return "fake" }

func (f *fakeDriver) SetForceCharge(_ context.Context, watts float64) error {
	f.forceChargeW = append(f.forceChargeW, watts)
	return nil
}

func (f *fakeDriver) SetAvoidDischarge(context.Context) error {
	f.avoids++
	return nil
}

func (f *fakeDriver) SetAllowDischarge(context.Context) error {
	f.allows++
	return nil
}

func (f *fakeDriver) SetMaxPVChargeRate(_ context.Context, watts float64) error {
	f.pvCaps = append(f.pvCaps, watts)
	return nil
}

// resolvedDriver mimics the handle the flag layer hands out, which hides the
// concrete driver's method set.
type resolvedDriver struct{ inverter.Driver }

func (r *resolvedDriver) Unwrap() inverter.Driver { return r.Driver }

type fixedLimits struct{ limit float64 }

func (f fixedLimits) DynamicMaxChargePowerW() float64 { return f.limit }

func testController(driver inverter.Driver, dynMax float64) (*Controller, *time.Time) {
	settings := &inverter.Settings{
		Type:               "fake",
		MaxGridChargeRateW: 5000,
		MaxPVChargeRateW:   5000,
	}
	c := New(driver, settings, fixedLimits{limit: dynMax})
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	return c, &now
}

func TestUpdateDispatch(t *testing.T) {
	t.Run("ForceChargeWithClampedPower", func(t *testing.T) {
		driver := &fakeDriver{}
		c, _ := testController(driver, 10000)

		slot := types.ControlSlot{ACChargeDemand: 0.5, Hour: 12}
		require.True(t, c.Update(context.Background(), slot, false, ""))

		assert.Equal(t, types.StateChargeFromGrid, c.State())
		// 0.5 * 5000 below the dynamic limit
		assert.Equal(t, []float64{2500}, driver.forceChargeW)
	})

	t.Run("DynamicLimitCapsPower", func(t *testing.T) {
		driver := &fakeDriver{}
		c, _ := testController(driver, 1000)

		slot := types.ControlSlot{ACChargeDemand: 1, Hour: 12}
		require.True(t, c.Update(context.Background(), slot, false, ""))
		assert.Equal(t, []float64{1000}, driver.forceChargeW)
	})

	t.Run("StaleStateNotReasserted", func(t *testing.T) {
		driver := &fakeDriver{}
		c, now := testController(driver, 10000)

		slot := types.ControlSlot{DischargeAllowed: true, Hour: 12}
		require.True(t, c.Update(context.Background(), slot, false, ""))
		assert.Equal(t, 1, driver.allows)

		// same state 3 minutes later, outside the recency window
		*now = now.Add(181 * time.Second)
		assert.False(t, c.Update(context.Background(), slot, false, ""))
		assert.Equal(t, 1, driver.allows)

		// a state change re-arms dispatch
		slot = types.ControlSlot{ACChargeDemand: 1, Hour: 12}
		assert.True(t, c.Update(context.Background(), slot, false, ""))
		assert.Len(t, driver.forceChargeW, 1)
	})

	t.Run("ErrorSlotSkipsTransition", func(t *testing.T) {
		driver := &fakeDriver{}
		c, _ := testController(driver, 10000)

		require.True(t, c.Update(context.Background(), types.ControlSlot{DischargeAllowed: true}, false, ""))
		require.Equal(t, types.StateDischargeAllowed, c.State())

		assert.False(t, c.Update(context.Background(), types.ControlSlot{Error: true}, false, ""))
		assert.Equal(t, types.StateDischargeAllowed, c.State())
	})

	t.Run("PVCapForwarded", func(t *testing.T) {
		driver := &fakeDriver{}
		c, _ := testController(driver, 10000)

		slot := types.ControlSlot{DCChargeDemand: 1, DischargeAllowed: true, Hour: 12}
		require.True(t, c.Update(context.Background(), slot, false, ""))
		assert.Equal(t, 1, driver.allows)
		assert.Equal(t, []float64{5000}, driver.pvCaps)
	})

	t.Run("PVCapThroughResolvedDriver", func(t *testing.T) {
		driver := &fakeDriver{}
		c, _ := testController(&resolvedDriver{driver}, 10000)

		slot := types.ControlSlot{DCChargeDemand: 1, DischargeAllowed: true, Hour: 12}
		require.True(t, c.Update(context.Background(), slot, false, ""))
		assert.Equal(t, []float64{5000}, driver.pvCaps)
	})
}

func TestOverride(t *testing.T) {
	driver := &fakeDriver{}
	c, now := testController(driver, 10000)

	c.SetOverride(0, time.Hour, 3.0)
	require.True(t, c.Override().Active(*now))

	slot := types.ControlSlot{DischargeAllowed: true, Hour: 12}
	require.True(t, c.Update(context.Background(), slot, false, ""))

	// override forces charge-from-grid at its own power
	assert.Equal(t, types.StateChargeFromGrid, c.State())
	assert.Equal(t, []float64{3000}, driver.forceChargeW)

	t.Run("ClearedByMinusOne", func(t *testing.T) {
		c.SetOverride(-1, 0, 0)
		assert.False(t, c.Override().Active(*now))

		require.True(t, c.Update(context.Background(), slot, false, ""))
		assert.Equal(t, types.StateDischargeAllowed, c.State())
	})

	t.Run("ExpiresAtEndTime", func(t *testing.T) {
		c.SetOverride(1, time.Minute, 0.5)
		*now = now.Add(2 * time.Minute)
		require.True(t, c.Update(context.Background(), slot, false, ""))
		assert.Equal(t, types.StateDischargeAllowed, c.State())
	})
}

func TestSnapshot(t *testing.T) {
	driver := &fakeDriver{}
	c, now := testController(driver, 10000)

	slot := types.ControlSlot{ACChargeDemand: 0.5, Hour: 12}
	require.True(t, c.Update(context.Background(), slot, false, ""))

	snap := c.Snapshot()
	assert.Equal(t, types.StateChargeFromGrid, snap.State)
	assert.Equal(t, *now, snap.StateChangedAt)
	assert.Equal(t, slot, snap.Slot)
	assert.False(t, snap.OverrideActive)
	assert.Equal(t, 2500.0, snap.TargetACWatts)
}
