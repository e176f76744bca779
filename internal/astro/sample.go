package astro

// Sample is one background observation: a pixel coordinate, the value
// sampled there, and the rejection flag maintained by the outlier
// rejector. Samples are never removed from a run's sequence, only
// flagged, so indexes stay aligned with the generation order.
type Sample struct {
	X        int     `json:"x"`
	Y        int     `json:"y"`
	Value    float32 `json:"value"`
	Rejected bool    `json:"rejected"`
	Channel  int     `json:"channel,omitempty"`
}

// countValid returns the number of samples not flagged as rejected.
func countValid(samples []Sample) int {
	n := 0
	for i := range samples {
		if !samples[i].Rejected {
			n++
		}
	}
	return n
}

// validValues collects the values of non-rejected samples into dst,
// reusing its backing array when capacity allows.
func validValues(samples []Sample, dst []float64) []float64 {
	dst = dst[:0]
	for i := range samples {
		if !samples[i].Rejected {
			dst = append(dst, float64(samples[i].Value))
		}
	}
	return dst
}

// cloneSamples returns an independent copy of the sample sequence.
func cloneSamples(samples []Sample) []Sample {
	if samples == nil {
		return nil
	}
	out := make([]Sample, len(samples))
	copy(out, samples)
	return out
}
