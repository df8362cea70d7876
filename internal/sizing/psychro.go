// Package sizing holds psychrometric primitives and the latent moisture load
// heuristic. Everything here is a pure function so it can be property-tested.
package sizing

import "math"

const atmKPa = 101.325

// SaturationVP returns saturation vapor pressure in kPa using the Magnus
// formula.
func SaturationVP(tempC float64) float64 {
	return 0.61094 * math.Exp((17.625*tempC)/(tempC+243.04))
}

// HumidityRatio returns the humidity ratio W (kg water / kg dry air) at the
// given temperature and relative humidity, at standard pressure. RH is
// clamped to [0, 100].
func HumidityRatio(tempC, rhPercent float64) float64 {
	rh := math.Max(0, math.Min(100, rhPercent))
	pw := (rh / 100.0) * SaturationVP(tempC)
	return 0.62198 * pw / math.Max(atmKPa-pw, 1e-9)
}

// AirDensity approximates dry-air density in kg/m³ at the given temperature.
func AirDensity(tempC float64) float64 {
	return 1.2 * (293.15 / (273.15 + tempC))
}

// DewPoint returns the dew point temperature in °C. Out-of-range RH yields
// -100 as a sentinel floor.
func DewPoint(tempC, rhPercent float64) float64 {
	if rhPercent <= 0 || rhPercent > 100 {
		return -100.0
	}
	pv := (rhPercent / 100.0) * SaturationVP(tempC)
	if pv <= 0 {
		return -100.0
	}
	alpha := math.Log(pv / 0.61094)
	return 243.04 * alpha / (17.625 - alpha)
}

// DerateFactor returns the capacity derating factor for the given indoor
// conditions, clamped to [0.1, 1.0]. Rated capacities assume a warm, humid
// reference point; colder, drier air lowers the achievable extraction.
func DerateFactor(tempC, rhPercent float64) float64 {
	td := DewPoint(tempC, rhPercent)
	norm := math.Max(td, 0) / 26.0
	return math.Min(1.0, math.Max(0.1, math.Pow(norm, 1.5)))
}
