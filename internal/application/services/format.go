package services

import (
	"math"
	"strconv"
)

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// formatNumber prints v without trailing zeros (45, 18.5, 1200).
func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatPtr(v *float64, unit string) string {
	if v == nil {
		return MissingMarker
	}
	return formatNumber(roundTo(*v, 2)) + unit
}
