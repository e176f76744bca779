package astro

import (
	"math"
	"sort"
)

// madScale converts a median absolute deviation into a standard
// deviation estimate under a normal distribution.
const madScale = 1.4826

// median returns the middle value of xs, averaging the two middle
// values for even lengths. Returns 0 for an empty slice.
func median(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sorted := make([]float64, len(xs))
	copy(sorted, xs)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// medianAbsDeviation returns the median of |x - center| over xs.
func medianAbsDeviation(xs []float64, center float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	devs := make([]float64, len(xs))
	for i, x := range xs {
		devs[i] = math.Abs(x - center)
	}
	return median(devs)
}

// robustSigma estimates the spread of xs as MAD scaled to sigma units.
func robustSigma(xs []float64, center float64) float64 {
	return madScale * medianAbsDeviation(xs, center)
}
