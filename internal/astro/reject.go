package astro

// minRejectionSamples is the valid-sample floor below which clipping
// stops; robust statistics on fewer points are not meaningful.
const minRejectionSamples = 10

// sigmaFloor stops clipping once the robust spread collapses, which
// happens on noise-free synthetic data.
const sigmaFloor = 1e-6

// rejectOutliers iteratively flags samples outside the asymmetric
// median/MAD band [median - low*sigma, median + high*sigma]. Flags are
// only ever set, never cleared, so a converged set is a fixed point.
// Returns the per-iteration rejection counts; the slice length is the
// number of passes that ran.
func rejectOutliers(samples []Sample, lowSigma, highSigma float64, maxIterations int) []int {
	var perIteration []int
	values := make([]float64, 0, len(samples))
	for iter := 0; iter < maxIterations; iter++ {
		if countValid(samples) < minRejectionSamples {
			break
		}
		values = validValues(samples, values)
		center := median(values)
		sigma := robustSigma(values, center)
		if sigma < sigmaFloor {
			break
		}
		lo := center - lowSigma*sigma
		hi := center + highSigma*sigma
		rejected := 0
		for i := range samples {
			if samples[i].Rejected {
				continue
			}
			v := float64(samples[i].Value)
			if v < lo || v > hi {
				samples[i].Rejected = true
				rejected++
			}
		}
		perIteration = append(perIteration, rejected)
		if rejected == 0 {
			break
		}
	}
	return perIteration
}
