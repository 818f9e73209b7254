// Package units converts metric Netatmo readings for display and
// classifies air quality from CO2 levels.
package units

import (
	"fmt"
	"math"
	"time"
)

// CToF converts Celsius to Fahrenheit, rounded to 1 decimal
func CToF(c float64) float64 {
	return math.Round((c*9/5+32)*10) / 10
}

// MmToIn converts millimetres to inches, rounded to 2 decimals
func MmToIn(mm float64) float64 {
	return math.Round(mm*0.0393701*100) / 100
}

// KmhToMph converts km/h to mph, rounded to 1 decimal
func KmhToMph(kmh float64) float64 {
	return math.Round(kmh*0.621371*10) / 10
}

// AirQuality bands a CO2 reading the way the Netatmo app does
func AirQuality(co2 *int) string {
	switch {
	case co2 == nil:
		return "Unknown"
	case *co2 < 800:
		return "Good"
	case *co2 < 1200:
		return "Moderate"
	default:
		return "Poor"
	}
}

// ClockTime renders a unix timestamp as a local wall-clock time
func ClockTime(unix int64) string {
	return time.Unix(unix, 0).Format("3:04 PM")
}

// Missing is the placeholder rendered for an absent reading
const Missing = "—"

// FmtFloat renders an optional reading with a unit suffix, optionally
// passing it through a conversion first
func FmtFloat(v *float64, convert func(float64) float64, suffix string) string {
	if v == nil {
		return Missing
	}
	val := *v
	if convert != nil {
		val = convert(val)
	}
	return fmt.Sprintf("%g%s", val, suffix)
}

// FmtInt renders an optional integer reading with a unit suffix
func FmtInt(v *int, suffix string) string {
	if v == nil {
		return Missing
	}
	return fmt.Sprintf("%d%s", *v, suffix)
}
