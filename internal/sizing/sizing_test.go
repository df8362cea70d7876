package sizing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f(v float64) *float64 { return &v }

func TestDerateFactorBounds(t *testing.T) {
	for _, tc := range []struct {
		temp, rh float64
	}{
		{30, 80}, {25, 60}, {20, 50}, {10, 40}, {5, 30}, {-5, 90}, {40, 95},
	} {
		d := DerateFactor(tc.temp, tc.rh)
		assert.GreaterOrEqual(t, d, 0.1, "temp=%v rh=%v", tc.temp, tc.rh)
		assert.LessOrEqual(t, d, 1.0, "temp=%v rh=%v", tc.temp, tc.rh)
	}
}

func TestDerateFactorMonotonicInDewPoint(t *testing.T) {
	// Fixed temperature, rising RH raises dew point; derate must not decrease.
	prev := 0.0
	for rh := 10.0; rh <= 100; rh += 5 {
		d := DerateFactor(25, rh)
		assert.GreaterOrEqual(t, d, prev, "rh=%v", rh)
		prev = d
	}
}

func TestDewPointKnownValues(t *testing.T) {
	// 25°C at 60% RH has a dew point near 16.7°C.
	assert.InDelta(t, 16.7, DewPoint(25, 60), 0.3)
	// Saturated air: dew point equals dry bulb.
	assert.InDelta(t, 20.0, DewPoint(20, 100), 0.05)
	// Out-of-range RH yields the sentinel floor.
	assert.Equal(t, -100.0, DewPoint(25, 0))
	assert.Equal(t, -100.0, DewPoint(25, 101))
}

func TestHumidityRatioClampsRH(t *testing.T) {
	assert.Equal(t, HumidityRatio(25, 150), HumidityRatio(25, 100))
	assert.Equal(t, 0.0, HumidityRatio(25, -5))
}

func TestCalculateLoadBasicRoom(t *testing.T) {
	res, terr := CalculateLoad(LoadInput{
		Length: f(5), Width: f(4), Height: f(2.5),
		CurrentRH: f(70), TargetRH: f(55), IndoorTemp: f(25),
	})
	require.Nil(t, terr)
	assert.Equal(t, 50.0, res.VolumeM3)
	assert.Equal(t, 20.0, res.RoomAreaM2)
	// base 50*0.15*0.25 = 1.875, infiltration 50*0.5*0.02 = 0.5 → 2.4
	assert.Equal(t, 2.4, res.LatentLoadL24h)
	assert.Contains(t, res.CalculationNotes, "Volume=50.0")
}

func TestCalculateLoadPoolEvaporation(t *testing.T) {
	base, terr := CalculateLoad(LoadInput{
		Length: f(10), Width: f(6), Height: f(3),
		CurrentRH: f(75), TargetRH: f(60), IndoorTemp: f(28),
		PoolAreaM2: 30, WaterTempC: f(28),
	})
	require.Nil(t, terr)

	warmer, terr := CalculateLoad(LoadInput{
		Length: f(10), Width: f(6), Height: f(3),
		CurrentRH: f(75), TargetRH: f(60), IndoorTemp: f(28),
		PoolAreaM2: 30, WaterTempC: f(32),
	})
	require.Nil(t, terr)

	// 30 m² at 28°C contributes 99.9 L/day; +20%/°C above 28 raises it.
	assert.Greater(t, base.LatentLoadL24h, 99.0)
	assert.Greater(t, warmer.LatentLoadL24h, base.LatentLoadL24h)
}

func TestCalculateLoadValidation(t *testing.T) {
	_, terr := CalculateLoad(LoadInput{Length: f(5), Width: f(4)})
	require.NotNil(t, terr)
	assert.Equal(t, "VALIDATION_ERROR", terr.Error)

	// target >= current is a range error, not a panic.
	_, terr = CalculateLoad(LoadInput{
		Length: f(5), Width: f(4), Height: f(2.5),
		CurrentRH: f(55), TargetRH: f(70), IndoorTemp: f(25),
	})
	require.NotNil(t, terr)
	assert.Equal(t, "RANGE_ERROR", terr.Error)

	_, terr = CalculateLoad(LoadInput{
		Length: f(5), Width: f(4), Height: f(2.5),
		CurrentRH: f(70), TargetRH: f(55), IndoorTemp: f(60),
	})
	require.NotNil(t, terr)
	assert.Equal(t, "RANGE_ERROR", terr.Error)
}

func TestCalculateLoadRejectsNonPositiveDimensions(t *testing.T) {
	for _, tc := range []struct {
		name    string
		l, w, h float64
	}{
		{"negative length", -5, 4, 2.5},
		{"zero width", 5, 0, 2.5},
		{"negative height", 5, 4, -2.5},
	} {
		t.Run(tc.name, func(t *testing.T) {
			res, terr := CalculateLoad(LoadInput{
				Length: f(tc.l), Width: f(tc.w), Height: f(tc.h),
				CurrentRH: f(70), TargetRH: f(55), IndoorTemp: f(25),
			})
			require.NotNil(t, terr, "a non-positive dimension must not yield a load")
			assert.Nil(t, res)
			assert.Equal(t, "RANGE_ERROR", terr.Error)
			assert.Contains(t, terr.Message, "dimensions")
		})
	}
}
