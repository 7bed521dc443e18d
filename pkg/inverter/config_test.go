package inverter

import (
	"testing"

	"github.com/levenlabs/go-lflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfiguredFronius(t *testing.T) {
	defer lflag.Reset()
	settings, driver := Configured(nil)
	lflag.Parse(lflag.SourceStub{
		"inverter-type":    "fronius_gen24",
		"inverter-address": "192.0.2.10",
	})

	assert.Equal(t, "fronius_gen24", settings.Type)
	assert.Equal(t, 5000.0, settings.MaxGridChargeRateW)
	assert.Equal(t, "fronius_gen24", driver.Name())

	// the optional capabilities must survive the flag-resolution handle
	limiter, ok := AsPVChargeLimiter(driver)
	require.True(t, ok)
	assert.NotNil(t, limiter)
	provider, ok := AsTelemetryProvider(driver)
	require.True(t, ok)
	assert.NotNil(t, provider)
}

func TestConfiguredNoop(t *testing.T) {
	defer lflag.Reset()
	settings, driver := Configured(nil)
	lflag.Parse(lflag.SourceStub{})

	assert.Equal(t, "noop", settings.Type)
	assert.Equal(t, "noop", driver.Name())
	_, ok := AsPVChargeLimiter(driver)
	assert.False(t, ok)
	_, ok = AsTelemetryProvider(driver)
	assert.False(t, ok)
}

func TestConfiguredUnknownTypeFallsBack(t *testing.T) {
	defer lflag.Reset()
	settings, driver := Configured(nil)
	lflag.Parse(lflag.SourceStub{
		"inverter-type": "victron",
	})

	assert.Equal(t, "noop", settings.Type)
	assert.Equal(t, "noop", driver.Name())
}

func TestCapabilityHelpersPassThroughBareDrivers(t *testing.T) {
	f := NewFronius("192.0.2.10", "customer", "", 5000)
	limiter, ok := AsPVChargeLimiter(f)
	require.True(t, ok)
	assert.Equal(t, f, limiter)

	_, ok = AsTelemetryProvider(Noop{})
	assert.False(t, ok)
}
