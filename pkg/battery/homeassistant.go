package battery

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/eosconnect/eosconnect/pkg/common"
)

// HomeAssistant implements the SOCSource interface by reading a state of
// charge sensor from the Home Assistant states API.
type HomeAssistant struct {
	baseURL   string
	token     string
	socSensor string
	client    *http.Client
}

// NewHomeAssistant returns a HomeAssistant SoC source.
func NewHomeAssistant(baseURL, token, socSensor string) *HomeAssistant {
	return &HomeAssistant{
		baseURL:   baseURL,
		token:     token,
		socSensor: socSensor,
		client:    common.HTTPClient(10 * time.Second),
	}
}

// Validate ensures the configuration is valid.
func (h *HomeAssistant) Validate() error {
	if h.baseURL == "" {
		return fmt.Errorf("battery-url is required")
	}
	if _, err := url.Parse(h.baseURL); err != nil {
		return fmt.Errorf("failed to parse battery url (%s): %w", h.baseURL, err)
	}
	if h.socSensor == "" {
		return fmt.Errorf("battery-soc-sensor is required")
	}
	return nil
}

type haStateResponse struct {
	State string `json:"state"`
}

// CurrentSOC implements the SOCSource interface.
func (h *HomeAssistant) CurrentSOC(ctx context.Context) (float64, error) {
	reqURL := h.baseURL + "/api/states/" + url.PathEscape(h.socSensor)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build state request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+h.token)

	resp, err := h.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch soc state: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected soc state status: %s", resp.Status)
	}

	var body haStateResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("failed to decode soc state: %w", err)
	}
	soc, err := strconv.ParseFloat(body.State, 64)
	if err != nil {
		return 0, fmt.Errorf("soc state %q is not numeric: %w", body.State, err)
	}
	if soc < 0 || soc > 100 {
		return 0, fmt.Errorf("soc state %v out of range", soc)
	}
	return soc, nil
}
