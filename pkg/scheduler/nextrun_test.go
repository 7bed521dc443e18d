package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func at(h, m, s int) time.Time {
	return time.Date(2025, 1, 1, h, m, s, 0, time.UTC)
}

func TestNextRunTime(t *testing.T) {
	t.Run("QuarterAligned", func(t *testing.T) {
		// finish lands exactly on 00:15
		next := NextRunTime(at(0, 5, 0), 60*time.Second, 300*time.Second)
		assert.Equal(t, at(0, 14, 0), next)
	})

	t.Run("GapFill", func(t *testing.T) {
		// waiting until 00:14 would idle for more than twice the interval,
		// so a filler run is scheduled first
		next := NextRunTime(at(0, 0, 0), 60*time.Second, 60*time.Second)
		assert.Equal(t, at(0, 1, 0), next)
	})

	t.Run("QuarterStartInPast", func(t *testing.T) {
		// 00:15 - 60s is already behind, move to the 00:30 boundary
		next := NextRunTime(at(0, 14, 30), 60*time.Second, 300*time.Second)
		assert.Equal(t, at(0, 29, 0), next)
	})

	t.Run("TooCloseAdvances", func(t *testing.T) {
		// 15s until the aligned start is below the minimum lead time
		next := NextRunTime(at(0, 13, 45), 60*time.Second, 300*time.Second)
		assert.Equal(t, at(0, 29, 0), next)
	})

	t.Run("ZeroRuntimeGapFills", func(t *testing.T) {
		next := NextRunTime(at(0, 16, 0), 0, 300*time.Second)
		assert.Equal(t, at(0, 21, 0), next)
	})

	t.Run("Deterministic", func(t *testing.T) {
		now := at(9, 7, 13)
		first := NextRunTime(now, 42*time.Second, 180*time.Second)
		second := NextRunTime(now, 42*time.Second, 180*time.Second)
		assert.Equal(t, first, second)
	})
}

func TestNextQuarter(t *testing.T) {
	assert.Equal(t, at(0, 15, 0), nextQuarter(at(0, 5, 0)))
	assert.Equal(t, at(0, 15, 0), nextQuarter(at(0, 14, 59)))
	// exact boundaries move to the next quarter
	assert.Equal(t, at(0, 30, 0), nextQuarter(at(0, 15, 0)))
	assert.Equal(t, at(1, 0, 0), nextQuarter(at(0, 50, 0)))
}
