package astro

import "errors"

// Extraction failures fall into four kinds. Every failure is wrapped
// around one of these sentinels so callers can match with errors.Is
// while the result carries the human-readable message.
var (
	// ErrConfiguration marks an invalid image or settings supplied to an
	// extraction or preview entry point.
	ErrConfiguration = errors.New("configuration error")

	// ErrSampling marks a run that produced fewer valid samples than the
	// configured minimum, even after the automatic-to-grid fallback.
	ErrSampling = errors.New("sampling error")

	// ErrFitting marks a sample count below the term requirement for the
	// chosen polynomial order, or a numerically unsolvable system.
	ErrFitting = errors.New("fitting error")

	// ErrRuntime marks any other failure surfaced during a run,
	// including recovered panics.
	ErrRuntime = errors.New("runtime error")
)

// ErrorKind returns a short stable label for the sentinel wrapped in
// err, or an empty string when err matches none of them.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrSampling):
		return "sampling"
	case errors.Is(err, ErrFitting):
		return "fitting"
	case errors.Is(err, ErrRuntime):
		return "runtime"
	default:
		return "runtime"
	}
}
