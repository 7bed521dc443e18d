package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeSeriesNormalize(t *testing.T) {
	t.Run("PadsWithLastValue", func(t *testing.T) {
		ts := TimeSeries{1, 2, 3}
		assert.Equal(t, TimeSeries{1, 2, 3, 3, 3}, ts.Normalize(5))
	})

	t.Run("Truncates", func(t *testing.T) {
		ts := TimeSeries{1, 2, 3, 4, 5}
		assert.Equal(t, TimeSeries{1, 2}, ts.Normalize(2))
	})

	t.Run("EmptyBecomesZeros", func(t *testing.T) {
		assert.Equal(t, TimeSeries{0, 0, 0}, TimeSeries{}.Normalize(3))
	})

	t.Run("DoesNotAliasInput", func(t *testing.T) {
		ts := TimeSeries{1, 2}
		out := ts.Normalize(2)
		out[0] = 99
		assert.Equal(t, 1.0, ts[0])
	})
}

func TestIntSeriesUnmarshal(t *testing.T) {
	t.Run("AcceptsFloats", func(t *testing.T) {
		var is IntSeries
		require.NoError(t, json.Unmarshal([]byte(`[0.0, 1.0, 1.0, 0.0]`), &is))
		assert.Equal(t, IntSeries{0, 1, 1, 0}, is)
	})

	t.Run("AcceptsInts", func(t *testing.T) {
		var is IntSeries
		require.NoError(t, json.Unmarshal([]byte(`[1, 0, 2]`), &is))
		assert.Equal(t, IntSeries{1, 0, 2}, is)
	})
}

func TestOptimizeResponseHasControls(t *testing.T) {
	resp := OptimizeResponse{
		ACCharge:         Repeat(0, 48),
		DCCharge:         Repeat(0, 48),
		DischargeAllowed: make(IntSeries, 48),
		StartSolution:    make(IntSeries, 48),
	}
	assert.True(t, resp.HasControls())

	t.Run("MissingArrays", func(t *testing.T) {
		r := resp
		r.ACCharge = nil
		assert.False(t, r.HasControls())
	})

	t.Run("ShortStartSolution", func(t *testing.T) {
		r := resp
		r.StartSolution = IntSeries{1}
		assert.False(t, r.HasControls())
	})
}

func TestOverallStateString(t *testing.T) {
	assert.Equal(t, "CHARGE_FROM_GRID", StateChargeFromGrid.String())
	assert.Equal(t, "DISCHARGE_ALLOWED_EV_MIN_PV", StateDischargeAllowedEVMin.String())
	assert.Equal(t, "UNINITIALIZED", StateUninitialized.String())
	assert.Equal(t, "UNKNOWN", OverallState(42).String())
}

func TestOverrideActive(t *testing.T) {
	now := time.Now()
	assert.True(t, Override{Mode: 0, EndTime: now.Add(time.Hour)}.Active(now))
	assert.False(t, Override{Mode: -1, EndTime: now.Add(time.Hour)}.Active(now))
	assert.False(t, Override{Mode: 1, EndTime: now.Add(-time.Second)}.Active(now))
}

func TestRequestWireNames(t *testing.T) {
	req := OptimizeRequest{
		EMS: EMSData{
			PVForecastWh: Repeat(0, 2),
			PriceImport:  Repeat(0.0003, 2),
			PriceFeedin:  Repeat(0.000075, 2),
			LoadWh:       Repeat(400, 2),
		},
		Battery: &BatterySpec{CapacityWh: 20000},
	}
	b, err := json.Marshal(req)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	ems, ok := m["ems"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, ems, "pv_prognose_wh")
	assert.Contains(t, ems, "strompreis_euro_pro_wh")
	assert.Contains(t, ems, "einspeiseverguetung_euro_pro_wh")
	assert.Contains(t, ems, "gesamtlast")
	assert.Contains(t, m, "pv_akku")
	// start_solution serializes as null when absent so the server falls back
	// to a cold start
	assert.Contains(t, m, "start_solution")
	assert.Nil(t, m["start_solution"])
}
