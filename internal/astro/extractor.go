package astro

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/nightjar-data/gradient.report/internal/monitoring"
	"github.com/nightjar-data/gradient.report/internal/timeutil"
)

// previewFloor is the smallest downsampled dimension a preview run will
// work on; anything smaller cannot produce a meaningful surface.
const previewFloor = 32

// Extractor is the public facade over the extraction pipeline. One
// mutex guards the settings, the last result, the manual sample list
// and the in-flight indicator; it is only held while taking or
// returning snapshots, never during computation. At most one run is in
// flight per Extractor.
type Extractor struct {
	name string

	mu       sync.Mutex
	settings Settings
	manual   []Sample
	result   *Result
	image    *Image
	inFlight bool
	cancel   context.CancelFunc

	progress chan Progress
	store    RunStore
	clock    timeutil.Clock
}

// NewExtractor creates a facade with the default preset and an empty
// result.
func NewExtractor(name string) *Extractor {
	return &Extractor{
		name:     name,
		settings: DefaultSettings(),
		result:   &Result{},
		progress: make(chan Progress, 16),
		clock:    timeutil.RealClock{},
	}
}

// Name returns the registry name of this facade.
func (e *Extractor) Name() string { return e.name }

// Settings returns a copy of the current configuration.
func (e *Extractor) Settings() Settings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.settings
}

// SetSettings replaces the configuration. Settings may only change
// between runs; a run in flight keeps its snapshot regardless.
func (e *Extractor) SetSettings(s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inFlight {
		return fmt.Errorf("extraction already in progress")
	}
	e.settings = s
	return nil
}

// ApplyPreset replaces the configuration with a named preset.
func (e *Extractor) ApplyPreset(name string) error {
	s, ok := PresetByName(name)
	if !ok {
		return fmt.Errorf("%w: unknown preset %q", ErrConfiguration, name)
	}
	return e.SetSettings(s)
}

// SetRunStore attaches an optional store; terminal results are
// persisted to it after each run.
func (e *Extractor) SetRunStore(store RunStore) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.store = store
}

// SetImage attaches the image subsequent monitor-triggered runs will
// process. Rejected while a run is in flight.
func (e *Extractor) SetImage(img *Image) error {
	if img != nil && !img.Valid() {
		return fmt.Errorf("%w: invalid image", ErrConfiguration)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inFlight {
		return fmt.Errorf("extraction already in progress")
	}
	e.image = img
	return nil
}

// CurrentImage returns the attached image. The image is treated as
// read-only by every consumer.
func (e *Extractor) CurrentImage() *Image {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.image
}

// InFlight reports whether a run is active.
func (e *Extractor) InFlight() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inFlight
}

// Progress returns the milestone channel for the facade. Events are
// dropped rather than blocking the worker when no one is draining.
func (e *Extractor) Progress() <-chan Progress {
	return e.progress
}

// Extract runs the pipeline synchronously on img. Returns false without
// starting when a run is already in flight or the image is invalid;
// otherwise blocks until the run completes and returns its success.
func (e *Extractor) Extract(img *Image) bool {
	run, ok := e.begin(img)
	if !ok {
		return false
	}
	res := run.execute()
	return res.Success
}

// ExtractAsync starts the pipeline on img without blocking. Returns
// false when a run is already in flight or the image is invalid; the
// terminal result is read through Result once InFlight drops.
func (e *Extractor) ExtractAsync(img *Image) bool {
	run, ok := e.begin(img)
	if !ok {
		return false
	}
	go run.execute()
	return true
}

// Cancel sets the cooperative cancellation signal observed by the
// active worker. No effect when no run is active.
func (e *Extractor) Cancel() {
	e.mu.Lock()
	cancel := e.cancel
	e.mu.Unlock()
	if cancel != nil {
		log.Printf("[Extractor] %s: cancellation requested", e.name)
		cancel()
	}
}

// GeneratePreview downsamples img so its longer side is at most maxSize
// and starts an asynchronous run over the reduced copy. Returns false
// when the image is invalid, the reduction lands under the 32x32
// floor, or a run is already in flight.
func (e *Extractor) GeneratePreview(img *Image, maxSize int) bool {
	if img == nil || !img.Valid() {
		e.captureConfigError(fmt.Errorf("%w: invalid image for preview", ErrConfiguration))
		return false
	}
	small, err := img.Downsample(maxSize)
	if err != nil {
		e.captureConfigError(err)
		return false
	}
	if small.Width < previewFloor || small.Height < previewFloor {
		e.captureConfigError(fmt.Errorf("%w: preview %dx%d below %dx%d floor",
			ErrConfiguration, small.Width, small.Height, previewFloor, previewFloor))
		return false
	}
	return e.ExtractAsync(small)
}

// Result returns a deep copy of the last terminal result, or nil when
// none exists yet.
func (e *Extractor) Result() *Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.result.Clone()
}

// HasResult reports whether a completed run's result is held.
func (e *Extractor) HasResult() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.result != nil && e.result.RunID != ""
}

// ClearResult resets the held result to an empty, unsuccessful one.
func (e *Extractor) ClearResult() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.result = &Result{}
}

// AddManualSample appends one externally chosen sample. The list is
// append-only and consumed only in manual sample mode.
func (e *Extractor) AddManualSample(x, y int, value float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.manual = append(e.manual, Sample{X: x, Y: y, Value: value})
}

// ClearManualSamples empties the manual sample list.
func (e *Extractor) ClearManualSamples() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.manual = nil
}

// ManualSampleCount returns the registered manual sample count.
func (e *Extractor) ManualSampleCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.manual)
}

// ManualSamples returns a copy of the registered manual samples.
func (e *Extractor) ManualSamples() []Sample {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Sample(nil), e.manual...)
}

// pendingRun carries everything a started run needs out of the lock.
type pendingRun struct {
	e      *Extractor
	worker *worker
	ctx    context.Context
	cancel context.CancelFunc
}

// begin takes the in-flight slot and snapshots the configuration.
// Returns ok=false, with no state change beyond error capture, when the
// slot is taken or the image is invalid.
func (e *Extractor) begin(img *Image) (*pendingRun, bool) {
	if img == nil || !img.Valid() {
		e.captureConfigError(fmt.Errorf("%w: invalid image", ErrConfiguration))
		return nil, false
	}
	e.mu.Lock()
	if e.inFlight {
		e.mu.Unlock()
		log.Printf("[Extractor] %s: extraction already in progress, rejecting", e.name)
		return nil, false
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.inFlight = true
	e.cancel = cancel
	s := e.settings
	manual := cloneSamples(e.manual)
	clock := e.clock
	e.mu.Unlock()

	w := newWorker(img, s, manual, clock, e.emitProgress)
	log.Printf("[Extractor] %s: starting extraction (%dx%dx%d, mode=%s, order=%d)",
		e.name, img.Width, img.Height, img.Channels, s.SampleMode, s.Order)
	return &pendingRun{e: e, worker: w, ctx: ctx, cancel: cancel}, true
}

// execute runs the worker to completion and publishes the terminal
// result.
func (p *pendingRun) execute() *Result {
	defer p.cancel()
	res := p.worker.run(p.ctx)
	p.e.finish(res)
	return res
}

// finish stores the terminal result, frees the in-flight slot, and
// persists the run when a store is attached.
func (e *Extractor) finish(res *Result) {
	res.Extractor = e.name
	e.mu.Lock()
	e.result = res
	e.inFlight = false
	e.cancel = nil
	store := e.store
	e.mu.Unlock()

	switch {
	case res.Cancelled:
		log.Printf("[Extractor] %s: run %s cancelled (%s)", e.name, res.RunID, res.Message)
	case res.Success:
		log.Printf("[Extractor] %s: run %s done, samples=%d rejected=%d rms=%.6f elapsed=%dms",
			e.name, res.RunID, res.Metrics.SampleCount, res.Metrics.RejectedCount,
			res.Metrics.RMSError, res.Metrics.ElapsedMS)
	default:
		log.Printf("[Extractor] %s: run %s failed: %s", e.name, res.RunID, res.Message)
	}
	if store != nil {
		e.persistResult(store, res)
	}
}

// captureConfigError records a fast-failure into the result slot so
// callers can inspect it, per the propagation policy: errors are
// captured, not thrown.
func (e *Extractor) captureConfigError(err error) {
	log.Printf("[Extractor] %s: %v", e.name, err)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inFlight {
		return
	}
	e.result = &Result{
		Extractor: e.name,
		Success:   false,
		ErrorKind: ErrorKind(err),
		Message:   err.Error(),
		Settings:  e.settings,
	}
}

// emitProgress forwards a milestone without ever blocking the worker.
func (e *Extractor) emitProgress(p Progress) {
	monitoring.Logf("[Extractor] %s: %d%% %s", e.name, p.Percent, p.Stage)
	select {
	case e.progress <- p:
	default:
	}
}

// Named extractors register here so HTTP handlers and tools can address
// them without plumbing references through every layer.
var (
	registryMu sync.RWMutex
	registry   = make(map[string]*Extractor)
)

// RegisterExtractor adds e to the registry, replacing any previous
// entry with the same name.
func RegisterExtractor(e *Extractor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[e.Name()] = e
}

// GetExtractor returns the named extractor or nil.
func GetExtractor(name string) *Extractor {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return registry[name]
}

// RemoveExtractor drops the named extractor from the registry.
func RemoveExtractor(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(registry, name)
}

// ListExtractors returns the registered names in sorted order.
func ListExtractors() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
