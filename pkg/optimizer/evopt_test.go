package optimizer

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/eosconnect/eosconnect/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBattery() *types.BatterySpec {
	return &types.BatterySpec{
		CapacityWh:          20000,
		ChargeEfficiency:    0.95,
		DischargeEfficiency: 0.95,
		MaxChargePowerW:     5000,
		InitialSOCPct:       20,
		MinSOCPct:           5,
		MaxSOCPct:           100,
	}
}

func testRequest() types.OptimizeRequest {
	return types.OptimizeRequest{
		EMS: types.EMSData{
			PVForecastWh: types.Repeat(0, 48),
			PriceImport:  types.Repeat(0.0003, 48),
			PriceFeedin:  types.Repeat(0.000075, 48),
			LoadWh:       types.Repeat(400, 48),
		},
		Battery: testBattery(),
	}
}

func indexSeries(n int) types.TimeSeries {
	out := make(types.TimeSeries, n)
	for i := range out {
		out[i] = float64(i)
	}
	return out
}

func TestTranslateRequestHourly(t *testing.T) {
	req := testRequest()
	req.EMS.LoadWh = indexSeries(48)
	now := time.Date(2025, 6, 1, 14, 30, 0, 0, time.UTC)

	evReq := translateRequest(req, now, HourlyFrameBase)

	// elapsed hours of today are dropped
	require.Len(t, evReq.TimeSeries.Load, 34)
	assert.Equal(t, 14.0, evReq.TimeSeries.Load[0])
	assert.Equal(t, 47.0, evReq.TimeSeries.Load[33])

	// first dt entry aligns to the next hour boundary
	require.Len(t, evReq.TimeSeries.DT, 34)
	assert.Equal(t, 1800.0, evReq.TimeSeries.DT[0])
	assert.Equal(t, 3600.0, evReq.TimeSeries.DT[1])

	assert.Equal(t, "charge_before_export", evReq.Strategy.ChargingStrategy)
	assert.Equal(t, "discharge_before_import", evReq.Strategy.DischargingStrategy)
	assert.Equal(t, 10000.0, evReq.Grid.MaxImportW)
	assert.Equal(t, 10000.0, evReq.Grid.MaxExportW)

	require.Len(t, evReq.Batteries, 1)
	b := evReq.Batteries[0]
	assert.Equal(t, "akku1", b.DeviceID)
	assert.True(t, b.ChargeFromGrid)
	assert.True(t, b.DischargeToGrid)
	assert.Equal(t, 1000.0, b.SMin)
	assert.Equal(t, 20000.0, b.SMax)
	assert.Equal(t, 4000.0, b.SInitial)
	assert.Equal(t, 5000.0, b.CMax)
	assert.Equal(t, 5000.0, b.DMax)
	assert.Len(t, b.PDemand, 34)
	assert.Len(t, b.SGoal, 34)
	assert.Equal(t, 0.95, evReq.EtaCharge)
	assert.Equal(t, 0.95, evReq.EtaDischarge)
}

func TestTranslateRequestQuarterly(t *testing.T) {
	req := testRequest()
	req.EMS.PVForecastWh = indexSeries(192)
	req.EMS.PriceImport = indexSeries(192)
	req.EMS.PriceFeedin = indexSeries(192)
	req.EMS.LoadWh = indexSeries(192)
	now := time.Date(2025, 6, 1, 1, 17, 0, 0, time.UTC)

	evReq := translateRequest(req, now, QuarterFrameBase)

	// rotated by hour*4 + minute/15 slots with wrap-around
	require.Len(t, evReq.TimeSeries.Load, 192)
	assert.Equal(t, 5.0, evReq.TimeSeries.Load[0])
	assert.Equal(t, 4.0, evReq.TimeSeries.Load[191])

	// 01:17:00 is 120 s into its quarter
	assert.Equal(t, 780.0, evReq.TimeSeries.DT[0])
	assert.Equal(t, 900.0, evReq.TimeSeries.DT[1])
}

func TestTranslateRequestWithoutBattery(t *testing.T) {
	req := testRequest()
	req.Battery = nil
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	evReq := translateRequest(req, now, HourlyFrameBase)

	require.Len(t, evReq.Batteries, 1)
	b := evReq.Batteries[0]
	assert.Equal(t, 0.0, b.SMax)
	assert.Equal(t, 0.0, b.CMax)
	assert.False(t, b.ChargeFromGrid)
	assert.Equal(t, 0.95, evReq.EtaCharge)
}

func TestValidateRequest(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		assert.Empty(t, validateRequest(testRequest()))
	})

	t.Run("EmptySeries", func(t *testing.T) {
		req := testRequest()
		req.EMS.PVForecastWh = nil
		errs := validateRequest(req)
		require.Len(t, errs, 1)
		assert.Contains(t, errs[0], "pv_prognose_wh")
	})

	t.Run("NaN", func(t *testing.T) {
		req := testRequest()
		req.EMS.LoadWh[3] = math.NaN()
		errs := validateRequest(req)
		require.Len(t, errs, 1)
		assert.Contains(t, errs[0], "gesamtlast[3] is NaN")
	})

	t.Run("LengthMismatch", func(t *testing.T) {
		req := testRequest()
		req.EMS.LoadWh = types.Repeat(400, 24)
		errs := validateRequest(req)
		require.Len(t, errs, 1)
		assert.Contains(t, errs[0], "lengths mismatch")
	})

	t.Run("BatteryCapacity", func(t *testing.T) {
		req := testRequest()
		req.Battery.CapacityWh = 0
		errs := validateRequest(req)
		require.Len(t, errs, 1)
		assert.Contains(t, errs[0], "capacity_wh")
	})

	t.Run("SOCOutOfRange", func(t *testing.T) {
		req := testRequest()
		req.Battery.InitialSOCPct = 150
		errs := validateRequest(req)
		require.Len(t, errs, 1)
		assert.Contains(t, errs[0], "initial_soc_percentage")
	})

	t.Run("BadTimestamp", func(t *testing.T) {
		req := testRequest()
		req.Timestamp = "yesterday"
		errs := validateRequest(req)
		require.Len(t, errs, 1)
		assert.Contains(t, errs[0], "timestamp")
	})
}

func TestValidateEvoptRequest(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	evReq := translateRequest(testRequest(), now, HourlyFrameBase)
	assert.Empty(t, validateEvoptRequest(evReq))

	evReq.TimeSeries.PV = evReq.TimeSeries.PV[:10]
	errs := validateEvoptRequest(evReq)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "time_series.ft")
}

// TestEvoptZeroPVRoundTrip drives a full optimize call against a mocked
// server that imports the whole load from the grid and never touches the
// battery. All control arrays must come back zero.
func TestEvoptZeroPVRoundTrip(t *testing.T) {
	now := time.Date(2025, 6, 1, 14, 0, 0, 0, time.UTC)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, evoptSchedulePath, r.URL.Path)
		var evReq evoptRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&evReq))

		n := len(evReq.TimeSeries.DT)
		zeros := make([]float64, n)
		soc := make([]float64, n)
		for i := range soc {
			soc[i] = 4000
		}
		json.NewEncoder(w).Encode(evoptResponse{
			Batteries: []evoptBatteryResult{{
				ChargingPowerW:    zeros,
				DischargingPowerW: zeros,
				StateOfChargeWh:   soc,
			}},
			GridImportWh: evReq.TimeSeries.Load,
			GridExportWh: zeros,
		})
	}))
	defer server.Close()

	b := NewEVopt(server.URL, 5*time.Second, HourlyFrameBase, time.UTC)
	b.now = func() time.Time { return now }

	resp, avgRuntime, err := b.Optimize(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Greater(t, avgRuntime, 0.0)
	assert.Empty(t, resp.Error)

	// control arrays cover the whole day and are all zero
	require.Len(t, resp.ACCharge, 48)
	require.Len(t, resp.DCCharge, 48)
	require.Len(t, resp.DischargeAllowed, 48)
	require.Len(t, resp.StartSolution, 48)
	for i := 0; i < 48; i++ {
		assert.Zero(t, resp.ACCharge[i])
		assert.Zero(t, resp.DCCharge[i])
		assert.Zero(t, resp.DischargeAllowed[i])
	}

	// result arrays start at "now" and run to the end of tomorrow
	require.NotNil(t, resp.Result)
	require.Len(t, resp.Result.GridImportWhPerHour, 34)
	assert.Equal(t, types.Repeat(400, 34), resp.Result.GridImportWhPerHour)
	assert.InDelta(t, 0.12, resp.Result.CostPerHour[0], 1e-9)
	assert.InDelta(t, 4.08, resp.Result.TotalCost, 1e-9)
	assert.Zero(t, resp.Result.TotalRevenue)
	assert.InDelta(t, 20.0, resp.Result.BatterySOCPerHour[0], 1e-9)
	assert.NotEmpty(t, resp.Timestamp)
}

func TestEvoptChargeFractionsAndPadding(t *testing.T) {
	now := time.Date(2025, 6, 1, 23, 0, 0, 0, time.UTC)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var evReq evoptRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&evReq))
		n := len(evReq.TimeSeries.DT)
		require.Equal(t, 25, n)

		charging := make([]float64, n)
		discharging := make([]float64, n)
		gridImport := make([]float64, n)
		charging[0] = 2500 // half of c_max, from the grid
		gridImport[0] = 3000
		charging[1] = 1000 // pv only, no import
		discharging[2] = 800
		json.NewEncoder(w).Encode(evoptResponse{
			Batteries: []evoptBatteryResult{{
				ChargingPowerW:    charging,
				DischargingPowerW: discharging,
			}},
			GridImportWh: gridImport,
		})
	}))
	defer server.Close()

	b := NewEVopt(server.URL, 5*time.Second, HourlyFrameBase, time.UTC)
	b.now = func() time.Time { return now }

	resp, _, err := b.Optimize(context.Background(), testRequest())
	require.NoError(t, err)

	// 23 elapsed hours are left-padded with zeros
	require.Len(t, resp.ACCharge, 48)
	for i := 0; i < 23; i++ {
		assert.Zero(t, resp.ACCharge[i], "pad slot %d", i)
	}

	assert.InDelta(t, 0.5, resp.ACCharge[23], 1e-9)
	assert.Equal(t, 1.0, resp.DCCharge[23])
	// charging without grid import is dc only
	assert.Zero(t, resp.ACCharge[24])
	assert.Equal(t, 1.0, resp.DCCharge[24])
	assert.Equal(t, 1, resp.DischargeAllowed[25])
}

func TestEvoptExternalValidationRejects(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer server.Close()

	b := NewEVopt(server.URL, 5*time.Second, HourlyFrameBase, time.UTC)

	req := testRequest()
	req.EMS.LoadWh = nil
	resp, _, err := b.Optimize(context.Background(), req)
	require.Error(t, err)
	assert.NotEmpty(t, resp.Error)
	assert.Zero(t, calls)
}

func TestEvoptServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	b := NewEVopt(server.URL, 5*time.Second, HourlyFrameBase, time.UTC)

	resp, _, err := b.Optimize(context.Background(), testRequest())
	require.Error(t, err)
	assert.Contains(t, resp.Error, "status")
}
