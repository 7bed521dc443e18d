package control

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOverrideDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"02:00", 2 * time.Hour, false},
		{"00:30", 30 * time.Minute, false},
		{"12:00", 12 * time.Hour, false},
		{"0:05", 5 * time.Minute, false},
		{"", 0, true},
		{"120", 0, true},
		{"01:60", 0, true},
		{"-1:00", 0, true},
		{"aa:bb", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseOverrideDuration(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestApplyOverride(t *testing.T) {
	t.Run("InstallsOverride", func(t *testing.T) {
		c, now := testController(&fakeDriver{}, 10000)
		require.NoError(t, c.ApplyOverride(0, 2*time.Hour, 3.0))
		assert.True(t, c.Override().Active(*now))
		assert.Equal(t, 3.0, c.Override().GridChargeKW)
	})

	t.Run("MinusOneClears", func(t *testing.T) {
		c, now := testController(&fakeDriver{}, 10000)
		require.NoError(t, c.ApplyOverride(0, time.Hour, 1.0))
		require.True(t, c.Override().Active(*now))

		// clearing skips the duration and power checks
		require.NoError(t, c.ApplyOverride(-1, 0, 0))
		assert.False(t, c.Override().Active(*now))
	})

	t.Run("RejectsBadInput", func(t *testing.T) {
		c, _ := testController(&fakeDriver{}, 10000)
		assert.Error(t, c.ApplyOverride(3, time.Hour, 1.0))
		assert.Error(t, c.ApplyOverride(-3, time.Hour, 1.0))
		assert.Error(t, c.ApplyOverride(0, 0, 1.0))
		assert.Error(t, c.ApplyOverride(0, 13*time.Hour, 1.0))
		assert.Error(t, c.ApplyOverride(0, time.Hour, 0.4))
		// 5 kW configured max grid charge rate
		assert.Error(t, c.ApplyOverride(0, time.Hour, 5.5))
	})
}
