package load

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/eosconnect/eosconnect/pkg/common"
	"github.com/eosconnect/eosconnect/pkg/log"
	"github.com/eosconnect/eosconnect/pkg/types"
)

// HomeAssistant implements the Source interface against the Home Assistant
// history API. The 48-hour profile is built from the same weekday one and two
// weeks back (today's half) and the following weekday one and two weeks back
// (tomorrow's half), averaged where both weeks have data. Consumption from
// the EV charger and the deferrable appliance is subtracted so the optimizer
// only sees the uncontrollable base load.
type HomeAssistant struct {
	baseURL          string
	token            string
	loadSensor       string
	carChargeSensor  string
	additionalSensor string
	client           *http.Client
	now              func() time.Time
}

// NewHomeAssistant returns a HomeAssistant history source.
func NewHomeAssistant(baseURL, token, loadSensor, carChargeSensor, additionalSensor string) *HomeAssistant {
	return &HomeAssistant{
		baseURL:          baseURL,
		token:            token,
		loadSensor:       loadSensor,
		carChargeSensor:  carChargeSensor,
		additionalSensor: additionalSensor,
		client:           common.HTTPClient(10 * time.Second),
		now:              time.Now,
	}
}

// Validate ensures the configuration is valid.
func (h *HomeAssistant) Validate() error {
	if h.baseURL == "" {
		return fmt.Errorf("load-url is required")
	}
	if _, err := url.Parse(h.baseURL); err != nil {
		return fmt.Errorf("failed to parse load url (%s): %w", h.baseURL, err)
	}
	if h.loadSensor == "" {
		return fmt.Errorf("load-sensor is required")
	}
	return nil
}

// LoadProfile implements the Source interface.
func (h *HomeAssistant) LoadProfile(ctx context.Context, hours int) (types.TimeSeries, error) {
	today := midnight(h.now())

	firstHalf, err := h.averagedDay(ctx, today.AddDate(0, 0, -7), today.AddDate(0, 0, -14))
	if err != nil {
		return nil, err
	}
	secondHalf, err := h.averagedDay(ctx, today.AddDate(0, 0, -6), today.AddDate(0, 0, -13))
	if err != nil {
		return nil, err
	}

	profile := append(firstHalf, secondHalf...)
	return profile.Normalize(hours), nil
}

// averagedDay fetches the profile for two reference days and averages them
// hour by hour. If the older day is incomplete, the newer day is used as-is.
func (h *HomeAssistant) averagedDay(ctx context.Context, recent, older time.Time) (types.TimeSeries, error) {
	recentProfile, err := h.profileForDay(ctx, recent)
	if err != nil {
		return nil, err
	}
	olderProfile, err := h.profileForDay(ctx, older)
	if err != nil || len(olderProfile) < 24 {
		return recentProfile, nil
	}
	out := make(types.TimeSeries, len(recentProfile))
	for i := range recentProfile {
		out[i] = (recentProfile[i] + olderProfile[i]) / 2
	}
	return out, nil
}

// profileForDay builds 24 hourly Wh values for the day starting at start.
func (h *HomeAssistant) profileForDay(ctx context.Context, start time.Time) (types.TimeSeries, error) {
	log.Ctx(ctx).DebugContext(ctx, "creating day load profile",
		slog.Time("start", start),
	)

	profile := make(types.TimeSeries, 0, 24)
	for hour := 0; hour < 24; hour++ {
		from := start.Add(time.Duration(hour) * time.Hour)
		to := from.Add(time.Hour)

		energy, err := h.hourlyEnergy(ctx, h.loadSensor, from, to)
		if err != nil {
			return nil, err
		}

		var controllable float64
		if h.carChargeSensor != "" {
			carLoad, err := h.hourlyEnergy(ctx, h.carChargeSensor, from, to)
			if err == nil {
				controllable += math.Abs(carLoad)
			}
		}
		if h.additionalSensor != "" {
			addLoad, err := h.hourlyEnergy(ctx, h.additionalSensor, from, to)
			if err == nil {
				controllable += math.Abs(addLoad)
			}
		}

		energy = math.Abs(energy)
		if controllable <= energy {
			energy -= controllable
		} else {
			log.Ctx(ctx).ErrorContext(ctx, "base load smaller than controllable load",
				slog.Time("hour", from),
				slog.Float64("energyWh", energy),
				slog.Float64("controllableWh", controllable),
			)
		}
		profile = append(profile, energy)
	}
	return profile, nil
}

type haHistoryEntry struct {
	State       string    `json:"state"`
	LastUpdated time.Time `json:"last_updated"`
}

// hourlyEnergy fetches the history of a power sensor for one hour and
// returns the time-weighted average in Wh.
func (h *HomeAssistant) hourlyEnergy(ctx context.Context, entityID string, from, to time.Time) (float64, error) {
	reqURL := fmt.Sprintf("%s/api/history/period/%s?filter_entity_id=%s&end_time=%s",
		h.baseURL,
		url.PathEscape(from.Format(time.RFC3339)),
		url.QueryEscape(entityID),
		url.QueryEscape(to.Format(time.RFC3339)),
	)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build history request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+h.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch history for %s: %w", entityID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected history status for %s: %s", entityID, resp.Status)
	}

	// the history API nests entries in one list per entity
	var body [][]haHistoryEntry
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("failed to decode history for %s: %w", entityID, err)
	}
	var entries []haHistoryEntry
	for _, sublist := range body {
		entries = append(entries, sublist...)
	}
	return averagePower(entries), nil
}

// averagePower computes the time-weighted average of the state changes in
// Wh. Short windows are topped up to a full hour with the last state so a
// single reading still yields a usable value.
func averagePower(entries []haHistoryEntry) float64 {
	var totalEnergy, totalDuration, lastState float64
	var lastTime time.Time

	for i := 0; i+1 < len(entries); i++ {
		cur, next := entries[i], entries[i+1]
		if cur.State == "unavailable" || next.State == "unavailable" {
			continue
		}
		curState, err := parseState(cur.State)
		if err != nil {
			continue
		}
		nextState, err := parseState(next.State)
		if err != nil {
			continue
		}
		duration := next.LastUpdated.Sub(cur.LastUpdated).Seconds()
		totalEnergy += curState * duration
		totalDuration += duration
		lastState = nextState
		lastTime = cur.LastUpdated
	}

	if totalDuration < 3600 && !lastTime.IsZero() {
		fill := lastTime.Add(time.Hour).Truncate(time.Hour).Sub(lastTime).Seconds()
		totalEnergy += lastState * fill
		totalDuration += fill
	}
	if totalDuration > 0 {
		return math.Round(totalEnergy/totalDuration*10000) / 10000
	}
	return 0
}

func parseState(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}
