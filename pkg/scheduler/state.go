package scheduler

import (
	"sync"
	"time"

	"github.com/eosconnect/eosconnect/pkg/types"
)

// Run states published to MQTT and the UI.
const (
	RunStateRequestSent      = "request sent"
	RunStateResponseReceived = "response received"
)

// State is the shared view of the optimization loop. The scheduler is the
// only writer; the HTTP server and MQTT read snapshots.
type State struct {
	mu sync.Mutex

	requestState   string
	lastRequestAt  time.Time
	lastResponseAt time.Time
	nextRun        time.Time

	lastRequest  types.OptimizeRequest
	lastResponse types.OptimizeResponse

	controlData    types.ControlData
	startSolution  types.IntSeries
	applianceHour  *int
	applianceFreed bool
}

// NewState returns a State with error-flagged control data so the state
// machine stays idle until the first successful cycle.
func NewState() *State {
	return &State{controlData: types.ErrorControlData(0)}
}

// Snapshot is the serialized view served to the UI and MQTT.
type Snapshot struct {
	RequestState         string `json:"request_state"`
	LastRequestTimestamp string `json:"last_request_timestamp"`
	LastResponseTime     string `json:"last_response_timestamp"`
	NextRun              string `json:"next_run"`
}

func isoOrEmpty(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

// Snapshot returns a consistent copy of the loop state.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		RequestState:         s.requestState,
		LastRequestTimestamp: isoOrEmpty(s.lastRequestAt),
		LastResponseTime:     isoOrEmpty(s.lastResponseAt),
		NextRun:              isoOrEmpty(s.nextRun),
	}
}

func (s *State) setRequestSent(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requestState = RunStateRequestSent
	s.lastRequestAt = at
}

func (s *State) setResponse(req types.OptimizeRequest, resp types.OptimizeResponse, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requestState = RunStateResponseReceived
	s.lastResponseAt = at
	s.lastRequest = req
	s.lastResponse = resp
}

func (s *State) setNextRun(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextRun = at
}

func (s *State) setControlData(data types.ControlData) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.controlData = data
}

func (s *State) setStartSolution(sol types.IntSeries) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startSolution = sol
}

func (s *State) setAppliance(startHour *int, released bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applianceHour = startHour
	s.applianceFreed = released
}

// ControlData returns the control slots of the last interpreted response.
func (s *State) ControlData() types.ControlData {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.controlData
}

// StartSolution returns the warm-start vector of the last successful cycle,
// or nil so the serialized request carries an explicit null.
func (s *State) StartSolution() types.IntSeries {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.startSolution) == 0 {
		return nil
	}
	out := make(types.IntSeries, len(s.startSolution))
	copy(out, s.startSolution)
	return out
}

// Appliance returns the optional household-appliance start hour and whether
// the current hour releases it.
func (s *State) Appliance() (*int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applianceHour, s.applianceFreed
}

// LastRequest returns the last request sent to the optimizer.
func (s *State) LastRequest() types.OptimizeRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRequest
}

// LastResponse returns the last optimizer response, error responses included.
func (s *State) LastResponse() types.OptimizeResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastResponse
}
