package monitor

import (
	"log"
	"sync"
	"time"
)

// StatsSnapshot represents a snapshot of current request statistics
type StatsSnapshot struct {
	Extracts  int64     `json:"extracts"`
	Previews  int64     `json:"previews"`
	Cancels   int64     `json:"cancels"`
	Busy      int64     `json:"busy"`
	Loads     int64     `json:"loads"`
	Saves     int64     `json:"saves"`
	Timestamp time.Time `json:"timestamp"`
}

// ServiceStats tracks request statistics with thread-safe operations.
// Counters are cumulative since start; LogStats reports deltas between
// calls so a quiet service stays quiet in the logs.
type ServiceStats struct {
	mu        sync.Mutex
	current   StatsSnapshot
	logged    StatsSnapshot
	startTime time.Time
}

// NewServiceStats creates a new ServiceStats instance
func NewServiceStats() *ServiceStats {
	return &ServiceStats{startTime: time.Now()}
}

// AddExtract increments the extraction request count
func (ss *ServiceStats) AddExtract() {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	ss.current.Extracts++
}

// AddPreview increments the preview request count
func (ss *ServiceStats) AddPreview() {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	ss.current.Previews++
}

// AddCancel increments the cancel request count
func (ss *ServiceStats) AddCancel() {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	ss.current.Cancels++
}

// AddBusy increments the count of requests refused because a run was
// already in flight
func (ss *ServiceStats) AddBusy() {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	ss.current.Busy++
}

// AddLoad increments the image load count
func (ss *ServiceStats) AddLoad() {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	ss.current.Loads++
}

// AddSave increments the image save count
func (ss *ServiceStats) AddSave() {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	ss.current.Saves++
}

// Snapshot returns the cumulative counters with a timestamp
func (ss *ServiceStats) Snapshot() StatsSnapshot {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	snap := ss.current
	snap.Timestamp = time.Now()
	return snap
}

// GetUptime returns time since the stats were created
func (ss *ServiceStats) GetUptime() time.Duration {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return time.Since(ss.startTime)
}

// LogStats logs activity since the previous call, if any
func (ss *ServiceStats) LogStats() {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	d := StatsSnapshot{
		Extracts: ss.current.Extracts - ss.logged.Extracts,
		Previews: ss.current.Previews - ss.logged.Previews,
		Cancels:  ss.current.Cancels - ss.logged.Cancels,
		Busy:     ss.current.Busy - ss.logged.Busy,
		Loads:    ss.current.Loads - ss.logged.Loads,
		Saves:    ss.current.Saves - ss.logged.Saves,
	}
	if d.Extracts == 0 && d.Previews == 0 && d.Cancels == 0 && d.Busy == 0 && d.Loads == 0 && d.Saves == 0 {
		return
	}

	log.Printf("Stats: %d extracts, %d previews, %d cancels, %d busy, %d loads, %d saves (up %s)",
		d.Extracts, d.Previews, d.Cancels, d.Busy, d.Loads, d.Saves,
		time.Since(ss.startTime).Round(time.Second))
	ss.logged = ss.current
}
