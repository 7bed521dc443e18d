package scheduler

import "time"

// NextRunTime computes the next optimization start so the run finishes on a
// quarter-hour boundary. avgRuntime is the trailing average backend runtime.
// When the wait until the aligned start would leave the system idle for more
// than twice the update interval, a filler run at now + updateInterval is
// scheduled instead and the aligned run follows it. Deterministic: identical
// inputs yield identical outputs.
func NextRunTime(now time.Time, avgRuntime, updateInterval time.Duration) time.Time {
	quarter := nextQuarter(now)
	start := quarter.Add(-avgRuntime)
	advanced := false
	if !start.After(now) {
		quarter = quarter.Add(15 * time.Minute)
		start = quarter.Add(-avgRuntime)
		advanced = true
	}
	until := start.Sub(now)

	// gap-fill only applies when the aligned start was not already pushed a
	// quarter out, otherwise a slow backend would never run aligned
	minGap := time.Duration(float64(updateInterval+avgRuntime) * 0.7)
	if minGap < 30*time.Second {
		minGap = 30 * time.Second
	}
	if !advanced && until >= 2*updateInterval && until >= minGap {
		return now.Add(updateInterval)
	}

	tooClose := avgRuntime / 2
	if tooClose < 30*time.Second {
		tooClose = 30 * time.Second
	}
	if until < tooClose {
		quarter = quarter.Add(15 * time.Minute)
		start = quarter.Add(-avgRuntime)
	}
	return start
}

// nextQuarter returns the first quarter-hour boundary strictly after t.
func nextQuarter(t time.Time) time.Time {
	t = t.Truncate(time.Minute)
	past := t.Minute() % 15
	add := 15 - past
	return t.Add(time.Duration(add) * time.Minute)
}
