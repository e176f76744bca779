package astro

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/nightjar-data/gradient.report/internal/timeutil"
)

// Progress is one coarse milestone of a running extraction. Percent
// values follow a fixed schedule and are not proportional to remaining
// work.
type Progress struct {
	Percent int    `json:"percent"`
	Stage   string `json:"stage"`
}

// worker executes one extraction run over a private settings snapshot.
// It owns no shared state; the facade passes copies in and receives the
// terminal result back.
type worker struct {
	image    *Image
	settings Settings
	manual   []Sample
	clock    timeutil.Clock
	emit     func(Progress)
}

func newWorker(img *Image, s Settings, manual []Sample, clock timeutil.Clock, emit func(Progress)) *worker {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if emit == nil {
		emit = func(Progress) {}
	}
	return &worker{image: img, settings: s, manual: manual, clock: clock, emit: emit}
}

// run drives the stage sequence Sampling -> Rejection -> Fitting ->
// (Correction) and always returns a terminal result: done, failed with
// a kind and message, or cancelled. Panics are recovered into a failed
// result; nothing escapes the worker.
func (w *worker) run(ctx context.Context) (res *Result) {
	started := w.clock.Now()
	res = &Result{
		RunID:     uuid.New().String(),
		Width:     w.image.Width,
		Height:    w.image.Height,
		Channels:  w.image.Channels,
		Settings:  w.settings,
		StartedAt: started,
	}
	defer func() {
		if r := recover(); r != nil {
			w.fail(res, fmt.Errorf("%w: %v", ErrRuntime, r))
		}
		res.FinishedAt = w.clock.Now()
		res.Metrics.ElapsedMS = w.clock.Since(started).Milliseconds()
	}()

	w.emit(Progress{Percent: 0, Stage: "starting"})
	if err := w.settings.Validate(); err != nil {
		w.fail(res, err)
		return res
	}
	if ctx.Err() != nil {
		return w.finishCancelled(res, "start")
	}

	s := w.settings
	planes := planesFor(w.image, s.ChannelMode)
	perChannel := len(planes) > 1

	var models []*Model
	var perMetrics []Metrics
	for i, plane := range planes {
		first := i == 0
		if first {
			w.emit(Progress{Percent: 10, Stage: "generating samples"})
		}
		samples, err := generateSamples(ctx, plane.data, w.image.Width, w.image.Height, s, w.manual)
		if err != nil {
			if isCancellation(err) {
				return w.finishCancelled(res, "sampling")
			}
			w.fail(res, err)
			return res
		}

		if s.RejectionEnabled {
			if first {
				w.emit(Progress{Percent: 55, Stage: "rejecting outliers"})
			}
			counts := rejectOutliers(samples, s.RejectLowSigma, s.RejectHighSigma, s.RejectIterations)
			if first {
				res.RejectionCounts = counts
			}
		}
		if ctx.Err() != nil {
			return w.finishCancelled(res, "rejection")
		}

		if first {
			w.emit(Progress{Percent: 65, Stage: "fitting surface"})
		}
		fitter, err := fitterFor(s)
		if err != nil {
			w.fail(res, err)
			return res
		}
		model, err := fitter.Fit(ctx, samples, w.image.Width, w.image.Height)
		if err != nil {
			if isCancellation(err) {
				return w.finishCancelled(res, "fitting")
			}
			w.fail(res, err)
			return res
		}

		if first {
			w.emit(Progress{Percent: 80, Stage: "computing statistics"})
		}
		metrics := computeMetrics(samples, model)
		if s.MaxError > 0 && metrics.RMSError > s.MaxError {
			w.fail(res, fmt.Errorf("%w: rms error %.6f exceeds maximum %.6f",
				ErrFitting, metrics.RMSError, s.MaxError))
			return res
		}

		if perChannel {
			for j := range samples {
				samples[j].Channel = plane.channel
			}
		}
		res.Samples = append(res.Samples, samples...)
		models = append(models, model)
		perMetrics = append(perMetrics, metrics)
	}

	res.Model = models[0]
	if perChannel {
		res.ChannelModels = models
		res.ChannelMetrics = perMetrics
	}
	res.Metrics = aggregateMetrics(perMetrics)

	if s.ApplyCorrection {
		w.emit(Progress{Percent: 90, Stage: "applying correction"})
		corrected, err := correctImage(ctx, w.image, models, s.NormalizeOutput)
		if err != nil {
			if isCancellation(err) {
				return w.finishCancelled(res, "correction")
			}
			w.fail(res, err)
			return res
		}
		res.Corrected = corrected
	}

	if s.DiscardModel {
		res.Model = discardData(res.Model)
		for i, m := range res.ChannelModels {
			res.ChannelModels[i] = discardData(m)
		}
	}

	res.Success = true
	w.emit(Progress{Percent: 100, Stage: "done"})
	return res
}

// finishCancelled marks the result as user-stopped and emits the
// terminal progress event. Cancelled is a genuine third outcome, not a
// failure: ErrorKind stays empty.
func (w *worker) finishCancelled(res *Result, stage string) *Result {
	res.Cancelled = true
	res.Message = "cancelled during " + stage
	w.emit(Progress{Percent: 100, Stage: "cancelled"})
	return res
}

// fail records a failure kind and message on the result and emits the
// terminal progress event.
func (w *worker) fail(res *Result, err error) {
	res.Success = false
	res.Cancelled = false
	res.ErrorKind = ErrorKind(err)
	res.Message = err.Error()
	log.Printf("[Worker] run %s failed: %v", res.RunID, err)
	w.emit(Progress{Percent: 100, Stage: "failed"})
}

// isCancellation reports whether err came from the run context rather
// than a computation.
func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// discardData strips the dense buffer from a model, keeping the
// coefficients so the surface can be re-evaluated on demand.
func discardData(m *Model) *Model {
	if m == nil {
		return nil
	}
	return &Model{Width: m.Width, Height: m.Height, Order: m.Order, Coeffs: m.Coeffs}
}
