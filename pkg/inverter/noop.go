package inverter

import (
	"context"
	"log/slog"

	"github.com/eosconnect/eosconnect/pkg/log"
)

// Noop implements the Driver interface without touching any hardware. Used
// for show-only setups and as the fallback for unknown inverter types.
type Noop struct{}

// Name implements the Driver interface.
func (Noop) Name() string { return "noop" }

// SetForceCharge implements the Driver interface.
func (Noop) SetForceCharge(ctx context.Context, watts float64) error {
	log.Ctx(ctx).InfoContext(ctx, "show-only mode, not forcing charge",
		slog.Float64("watts", watts),
	)
	return nil
}

// SetAvoidDischarge implements the Driver interface.
func (Noop) SetAvoidDischarge(ctx context.Context) error {
	log.Ctx(ctx).InfoContext(ctx, "show-only mode, not avoiding discharge")
	return nil
}

// SetAllowDischarge implements the Driver interface.
func (Noop) SetAllowDischarge(ctx context.Context) error {
	log.Ctx(ctx).InfoContext(ctx, "show-only mode, not allowing discharge")
	return nil
}
