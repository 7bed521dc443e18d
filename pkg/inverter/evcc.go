package inverter

import (
	"context"

	"github.com/eosconnect/eosconnect/pkg/evcc"
)

// EVCC implements the Driver interface by delegating battery control to an
// evcc instance that owns the inverter.
type EVCC struct {
	client *evcc.Client
}

// NewEVCC returns an EVCC driver on top of the given client.
func NewEVCC(client *evcc.Client) *EVCC {
	return &EVCC{client: client}
}

// Name implements the Driver interface.
func (e *EVCC) Name() string { return "evcc" }

// SetForceCharge implements the Driver interface. evcc picks the charge
// power itself, the requested wattage is not forwarded.
func (e *EVCC) SetForceCharge(ctx context.Context, _ float64) error {
	return e.client.SetExternalBatteryMode(ctx, evcc.BatteryModeForceCharge)
}

// SetAvoidDischarge implements the Driver interface.
func (e *EVCC) SetAvoidDischarge(ctx context.Context) error {
	return e.client.SetExternalBatteryMode(ctx, evcc.BatteryModeAvoidDischarge)
}

// SetAllowDischarge implements the Driver interface.
func (e *EVCC) SetAllowDischarge(ctx context.Context) error {
	return e.client.SetExternalBatteryMode(ctx, evcc.BatteryModeDischargeAllowed)
}
