// Package units provides shared constants and validation for pixel value units
package units

// Unit constants
const (
	Norm    = "norm"
	ADU8    = "adu8"
	ADU16   = "adu16"
	Percent = "percent"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{Norm, ADU8, ADU16, Percent}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return "norm, adu8, adu16, percent"
}

// ConvertValue converts a pixel value from the normalized [0, 1] scale
// to the target units. Buffers and the run archive store values normalized.
func ConvertValue(norm float64, targetUnits string) float64 {
	switch targetUnits {
	case ADU8:
		return norm * 255 // 8-bit detector counts
	case ADU16:
		return norm * 65535 // 16-bit detector counts
	case Percent:
		return norm * 100
	case Norm:
		return norm // no conversion needed
	default:
		return norm // default to normalized if unknown unit
	}
}
