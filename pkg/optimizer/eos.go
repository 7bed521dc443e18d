package optimizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/eosconnect/eosconnect/pkg/common"
	"github.com/eosconnect/eosconnect/pkg/log"
	"github.com/eosconnect/eosconnect/pkg/types"
)

// EOS server generations. Servers from 2025-04-09 on require device IDs on
// battery, inverter, EV and appliance objects.
const (
	eosVersionCurrent = ">=2025-04-09"
	eosVersionLegacy  = "<2025-04-09"
)

// EOS implements the Backend interface against a native EOS server. The
// canonical request already uses the EOS wire schema, so optimization is a
// pass-through plus a per-version decoration of the payload.
type EOS struct {
	client  *http.Client
	baseURL string
	timeout time.Duration
	now     func() time.Time

	ring        runtimeRing
	versionOnce sync.Once
	version     string
}

// NewEOS returns an EOS backend for the server at baseURL. The location
// anchors the start_hour query parameter to the configured wall clock.
func NewEOS(baseURL string, timeout time.Duration, loc *time.Location) *EOS {
	return &EOS{
		client:  common.HTTPClient(timeout),
		baseURL: baseURL,
		timeout: timeout,
		now:     func() time.Time { return time.Now().In(loc) },
		version: eosVersionCurrent,
	}
}

// Name implements the Backend interface.
func (e *EOS) Name() string { return "eos" }

// Version reports the detected server generation. The first call probes the
// health endpoint; unreachable servers keep the current-generation default.
func (e *EOS) Version(ctx context.Context) string {
	e.versionOnce.Do(func() {
		probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, e.baseURL+"/v1/health", nil)
		if err != nil {
			return
		}
		resp, err := e.client.Do(req)
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "eos version probe failed, assuming current generation",
				slog.String("error", err.Error()),
			)
			return
		}
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusNotFound {
			e.version = eosVersionLegacy
			return
		}
		var body struct {
			Status string `json:"status"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			log.Ctx(ctx).WarnContext(ctx, "eos version probe returned no status, assuming current generation",
				slog.String("error", err.Error()),
			)
			return
		}
		if body.Status == "alive" {
			e.version = eosVersionCurrent
		}
		log.Ctx(ctx).InfoContext(ctx, "detected eos server generation",
			slog.String("version", e.version),
		)
	})
	return e.version
}

// fixedEVSpec is the stand-in EV battery sent to EOS. The EV is steered by
// the charger, not by this daemon, so the optimizer only needs a plausible
// envelope to plan around.
func fixedEVSpec() *types.BatterySpec {
	return &types.BatterySpec{
		CapacityWh:          27000,
		ChargeEfficiency:    0.90,
		DischargeEfficiency: 0.95,
		MaxChargePowerW:     7360,
		InitialSOCPct:       50,
		MinSOCPct:           5,
		MaxSOCPct:           100,
	}
}

// decorate fills the blocks the native schema requires beyond the canonical
// request: a stand-in EV, an appliance object, and device IDs on servers
// that require registration.
func (e *EOS) decorate(ctx context.Context, req types.OptimizeRequest) types.OptimizeRequest {
	if req.EV == nil {
		req.EV = fixedEVSpec()
	}
	if req.Dishwasher == nil {
		req.Dishwasher = &types.ApplianceSpec{ConsumptionWh: 1, DurationH: 1}
	}

	if e.Version(ctx) != eosVersionCurrent {
		return req
	}
	if req.Battery != nil {
		battery := *req.Battery
		battery.DeviceID = "battery1"
		req.Battery = &battery
	}
	if req.Inverter != nil {
		inv := *req.Inverter
		inv.DeviceID = "inverter1"
		inv.BatteryID = "battery1"
		req.Inverter = &inv
	}
	ev := *req.EV
	ev.DeviceID = "ev1"
	req.EV = &ev
	dishwasher := *req.Dishwasher
	dishwasher.DeviceID = "additional_load_1"
	req.Dishwasher = &dishwasher
	return req
}

// Optimize implements the Backend interface.
func (e *EOS) Optimize(ctx context.Context, req types.OptimizeRequest) (types.OptimizeResponse, float64, error) {
	payload, err := json.Marshal(e.decorate(ctx, req))
	if err != nil {
		return errorResponse(err), e.ring.Average(), err
	}

	reqURL := fmt.Sprintf("%s/optimize?start_hour=%d", e.baseURL, e.now().Hour())
	log.Ctx(ctx).InfoContext(ctx, "requesting eos optimization",
		slog.String("url", reqURL),
		slog.Duration("timeout", e.timeout),
	)

	reqCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, reqURL, bytes.NewReader(payload))
	if err != nil {
		return errorResponse(err), e.ring.Average(), err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	start := e.now()
	httpResp, err := e.client.Do(httpReq)
	if err != nil {
		err = fmt.Errorf("eos server not reachable, trying again next cycle: %w", err)
		return errorResponse(err), e.ring.Average(), err
	}
	defer httpResp.Body.Close()
	elapsed := e.now().Sub(start).Seconds()

	if httpResp.StatusCode != http.StatusOK {
		err = fmt.Errorf("unexpected eos optimize status: %s", httpResp.Status)
		return errorResponse(err), e.ring.Average(), err
	}

	var resp types.OptimizeResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		err = fmt.Errorf("failed to decode eos response: %w", err)
		return errorResponse(err), e.ring.Average(), err
	}

	e.ring.Record(elapsed)
	resp.Timestamp = e.now().Format(time.RFC3339)
	log.Ctx(ctx).InfoContext(ctx, "eos optimization finished",
		slog.Float64("runtimeSeconds", elapsed),
	)
	return resp, e.ring.Average(), nil
}

// errorResponse wraps an error for persistence alongside normal responses.
func errorResponse(err error) types.OptimizeResponse {
	return types.OptimizeResponse{Error: err.Error()}
}
