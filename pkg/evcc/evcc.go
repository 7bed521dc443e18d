package evcc

import (
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

const pollInterval = 10 * time.Second

// BatteryMode is the externally commanded home-battery mode when evcc
// controls the battery.
type BatteryMode string

const (
	BatteryModeForceCharge      BatteryMode = "force_charge"
	BatteryModeAvoidDischarge   BatteryMode = "avoid_discharge"
	BatteryModeDischargeAllowed BatteryMode = "discharge_allowed"
)

// apiName maps the mode to evcc's battery mode API vocabulary.
func (m BatteryMode) apiName() (string, error) {
	switch m {
	case BatteryModeForceCharge:
		return "charge", nil
	case BatteryModeAvoidDischarge:
		return "hold", nil
	case BatteryModeDischargeAllowed:
		return "normal", nil
	}
	return "", fmt.Errorf("unknown battery mode: %s", m)
}

// Client polls an evcc instance for the first loadpoint's charging state and
// mode, and can command the external battery mode.
type Client struct {
	baseURL string
	client  *http.Client

	mu         sync.Mutex
	charging   bool
	mode       types.ChargeMode
	loadpoints json.RawMessage
	onChange   func(charging bool, mode types.ChargeMode)
}

// New returns a Client for the evcc instance at baseURL.
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		client:  common.HTTPClient(6 * time.Second),
	}
}

// SetOnChange registers a callback invoked whenever the charging state or
// the charging mode changes between polls.
func (c *Client) SetOnChange(fn func(charging bool, mode types.ChargeMode)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = fn
}

// ChargingState returns the last known charging state of loadpoint 0.
func (c *Client) ChargingState() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.charging
}

// ChargingMode returns the last known charging mode of loadpoint 0.
func (c *Client) ChargingMode() types.ChargeMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// CurrentSessions returns the raw loadpoint detail for the UI.
func (c *Client) CurrentSessions() json.RawMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadpoints
}

// Run polls the evcc state until ctx is canceled.
func (c *Client) Run(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.poll(ctx); err != nil {
				log.Ctx(ctx).ErrorContext(ctx, "failed to update evcc state",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

type stateResponse struct {
	Result struct {
		Loadpoints []json.RawMessage `json:"loadpoints"`
	} `json:"result"`
}

type loadpointState struct {
	Charging bool   `json:"charging"`
	Mode     string `json:"mode"`
}

func (c *Client) poll(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/state", nil)
	if err != nil {
		return fmt.Errorf("failed to build state request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch evcc state: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected evcc state status: %s", resp.Status)
	}

	var body stateResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("failed to decode evcc state: %w", err)
	}
	if len(body.Result.Loadpoints) == 0 {
		return fmt.Errorf("evcc state has no loadpoints")
	}
	var lp loadpointState
	if err := json.Unmarshal(body.Result.Loadpoints[0], &lp); err != nil {
		return fmt.Errorf("failed to decode loadpoint: %w", err)
	}

	mode := types.ChargeMode(lp.Mode)
	if !types.ValidChargeMode(mode) {
		log.Ctx(ctx).WarnContext(ctx, "evcc reported an invalid charging mode",
			slog.String("mode", lp.Mode),
		)
		mode = ""
	}

	loadpoints, err := json.Marshal(body.Result.Loadpoints)
	if err != nil {
		return fmt.Errorf("failed to re-encode loadpoints: %w", err)
	}

	c.mu.Lock()
	changed := lp.Charging != c.charging || mode != c.mode
	c.charging = lp.Charging
	c.mode = mode
	c.loadpoints = loadpoints
	onChange := c.onChange
	c.mu.Unlock()

	if changed {
		log.Ctx(ctx).InfoContext(ctx, "evcc charging state changed",
			slog.Bool("charging", lp.Charging),
			slog.String("mode", string(mode)),
		)
		if onChange != nil {
			onChange(lp.Charging, mode)
		}
	}
	return nil
}

// SetExternalBatteryMode commands the home-battery mode through evcc. Used
// when evcc rather than a local driver owns the inverter.
func (c *Client) SetExternalBatteryMode(ctx context.Context, mode BatteryMode) error {
	name, err := mode.apiName()
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/batterymode/"+name, nil)
	if err != nil {
		return fmt.Errorf("failed to build battery mode request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to set battery mode: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected battery mode status: %s", resp.Status)
	}
	log.Ctx(ctx).DebugContext(ctx, "external battery mode set",
		slog.String("mode", string(mode)),
	)
	return nil
}
