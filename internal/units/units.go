// Package units converts raw motor controller speeds into mechanical units
package units

import (
	"fmt"
	"math"
	"strconv"
)

// Speed unit suffixes used in decoded column names
const (
	ERPM    = "eRPM"
	MechRPM = "mech_RPM"
)

// ValidatePolePairs rejects pole-pair counts that cannot describe a motor.
// Zero is valid and disables the mechanical conversion.
func ValidatePolePairs(polePairs int) error {
	if polePairs < 0 {
		return fmt.Errorf("invalid pole pairs %d: must be zero or positive", polePairs)
	}
	return nil
}

// MechanicalRPM converts electrical RPM to shaft RPM. The second return value
// is false when no pole-pair count is configured, in which case there is no
// mechanical speed at all.
func MechanicalRPM(speedERPM float64, polePairs int) (float64, bool) {
	if polePairs == 0 {
		return 0, false
	}
	return speedERPM / float64(polePairs), true
}

// Round rounds v to the given number of decimal places using the exact
// binary value of v, with exact halves going to the even digit: 0.3125
// rounds to 0.312 while 0.0005, stored just above the half, rounds to 0.001.
func Round(v float64, places int) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	r, _ := strconv.ParseFloat(strconv.FormatFloat(v, 'f', places, 64), 64)
	return r
}
