package evcc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/eosconnect/eosconnect/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(server *httptest.Server) *Client {
	c := New(server.URL)
	c.client = server.Client()
	return c
}

func TestPoll(t *testing.T) {
	state := `{"result":{"loadpoints":[{"charging":true,"mode":"pv","title":"Garage"}]}}`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/state", r.URL.Path)
		w.Write([]byte(state))
	}))
	defer server.Close()

	c := newTestClient(server)

	var gotCharging []bool
	var gotModes []types.ChargeMode
	c.SetOnChange(func(charging bool, mode types.ChargeMode) {
		gotCharging = append(gotCharging, charging)
		gotModes = append(gotModes, mode)
	})

	require.NoError(t, c.poll(context.Background()))
	assert.True(t, c.ChargingState())
	assert.Equal(t, types.ChargeModePV, c.ChargingMode())
	assert.Equal(t, []bool{true}, gotCharging)
	assert.Equal(t, []types.ChargeMode{types.ChargeModePV}, gotModes)
	assert.Contains(t, string(c.CurrentSessions()), "Garage")

	// unchanged state does not re-notify
	require.NoError(t, c.poll(context.Background()))
	assert.Len(t, gotCharging, 1)

	// mode change alone notifies
	state = `{"result":{"loadpoints":[{"charging":true,"mode":"now"}]}}`
	require.NoError(t, c.poll(context.Background()))
	assert.Equal(t, types.ChargeModeNow, c.ChargingMode())
	assert.Len(t, gotCharging, 2)
}

func TestPollInvalidMode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":{"loadpoints":[{"charging":false,"mode":"warp"}]}}`))
	}))
	defer server.Close()

	c := newTestClient(server)
	require.NoError(t, c.poll(context.Background()))
	assert.Equal(t, types.ChargeMode(""), c.ChargingMode())
}

func TestPollNoLoadpoints(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":{"loadpoints":[]}}`))
	}))
	defer server.Close()

	c := newTestClient(server)
	assert.Error(t, c.poll(context.Background()))
}

func TestSetExternalBatteryMode(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		assert.Equal(t, http.MethodPost, r.Method)
	}))
	defer server.Close()

	c := newTestClient(server)

	require.NoError(t, c.SetExternalBatteryMode(context.Background(), BatteryModeForceCharge))
	assert.Equal(t, "/api/batterymode/charge", gotPath)

	require.NoError(t, c.SetExternalBatteryMode(context.Background(), BatteryModeAvoidDischarge))
	assert.Equal(t, "/api/batterymode/hold", gotPath)

	require.NoError(t, c.SetExternalBatteryMode(context.Background(), BatteryModeDischargeAllowed))
	assert.Equal(t, "/api/batterymode/normal", gotPath)

	assert.Error(t, c.SetExternalBatteryMode(context.Background(), BatteryMode("bogus")))
}
