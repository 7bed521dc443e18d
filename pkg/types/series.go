package types

import "encoding/json"

const (
	// HorizonHours is the number of hourly slots in a forecast horizon.
	HorizonHours = 48
	// HorizonQuarters is the number of 15-minute slots in a forecast horizon.
	HorizonQuarters = 192
)

// TimeSeries is an ordered sequence of per-slot values. Slot 0 is the slot
// containing "now".
type TimeSeries []float64

// Normalize returns a copy of exactly n entries. Short series are padded by
// repeating the last value, long series are truncated. An empty series
// normalizes to n zeros.
func (ts TimeSeries) Normalize(n int) TimeSeries {
	out := make(TimeSeries, n)
	if len(ts) == 0 {
		return out
	}
	for i := 0; i < n; i++ {
		if i < len(ts) {
			out[i] = ts[i]
		} else {
			out[i] = ts[len(ts)-1]
		}
	}
	return out
}

// Clone returns a copy of the series.
func (ts TimeSeries) Clone() TimeSeries {
	if ts == nil {
		return nil
	}
	out := make(TimeSeries, len(ts))
	copy(out, ts)
	return out
}

// Repeat returns a series of n copies of v.
func Repeat(v float64, n int) TimeSeries {
	out := make(TimeSeries, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// IntSeries is a sequence of small integer markers (solution vectors,
// discharge flags). Some servers serialize these as floats, so decoding
// accepts either.
type IntSeries []int

// UnmarshalJSON implements json.Unmarshaler.
func (is *IntSeries) UnmarshalJSON(b []byte) error {
	var raw []float64
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	out := make(IntSeries, len(raw))
	for i, v := range raw {
		out[i] = int(v)
	}
	*is = out
	return nil
}
