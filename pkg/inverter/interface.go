package inverter

import "context"

// Driver is the minimal control surface every inverter driver provides.
type Driver interface {
	// Name returns the config type string of the driver.
	Name() string

	// SetForceCharge commands charging from the grid at the given power.
	SetForceCharge(ctx context.Context, watts float64) error

	// SetAvoidDischarge holds the battery at its current state of charge.
	SetAvoidDischarge(ctx context.Context) error

	// SetAllowDischarge returns the battery to normal self-consumption.
	SetAllowDischarge(ctx context.Context) error
}

// PVChargeLimiter is implemented by drivers that can cap the PV-origin
// charge rate.
type PVChargeLimiter interface {
	SetMaxPVChargeRate(ctx context.Context, watts float64) error
}

// TelemetryProvider is implemented by drivers that expose live hardware
// telemetry (module temperatures, fan speeds) for publication.
type TelemetryProvider interface {
	FetchTelemetry(ctx context.Context) (map[string]float64, error)
}

// Unwrapper is implemented by holders that defer driver resolution until
// flag parse time. The holder's method set only carries the Driver methods,
// so capability checks must look through it.
type Unwrapper interface {
	Unwrap() Driver
}

func unwrap(d Driver) Driver {
	if u, ok := d.(Unwrapper); ok {
		return u.Unwrap()
	}
	return d
}

// AsPVChargeLimiter returns the optional PV charge cap capability of d,
// looking through flag-configured holders.
func AsPVChargeLimiter(d Driver) (PVChargeLimiter, bool) {
	l, ok := unwrap(d).(PVChargeLimiter)
	return l, ok
}

// AsTelemetryProvider returns the optional telemetry capability of d,
// looking through flag-configured holders.
func AsTelemetryProvider(d Driver) (TelemetryProvider, bool) {
	p, ok := unwrap(d).(TelemetryProvider)
	return p, ok
}
