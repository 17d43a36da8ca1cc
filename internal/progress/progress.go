// Package progress tracks job-wide encode progress: a short rolling
// window for instantaneous frame rate, a paused-time-excluding average
// for ETA, and a clamped completion fraction.
package progress

import (
	"fmt"
	"sync"
	"time"
)

// windowDuration is the span of the instantaneous rate's sliding window.
const windowDuration = 4 * time.Second

// minElapsedForAverage is the minimum job elapsed time before the
// average rate (and therefore ETA) is considered meaningful.
const minElapsedForAverage = 4 * time.Second

type sample struct {
	ts     time.Time
	frames int64
}

// State accumulates progress samples for one job and produces
// point-in-time Snapshots. Safe for concurrent use.
type State struct {
	mu sync.Mutex

	total int64

	startedAt time.Time
	pausedFor time.Duration
	pauseMark time.Time
	paused    bool

	lastCount int64
	window    []sample
}

// New creates a State tracking progress toward total frames. now is the
// time the job starts.
func New(total int64, now time.Time) *State {
	return &State{total: total, startedAt: now}
}

// Pause marks the job as paused as of now; time spent paused is
// excluded from the average-rate/ETA calculation.
func (s *State) Pause(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paused {
		return
	}
	s.paused = true
	s.pauseMark = now
}

// Resume clears a pause started by Pause.
func (s *State) Resume(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.paused {
		return
	}
	s.paused = false
	s.pausedFor += now.Sub(s.pauseMark)
}

// Snapshot is a point-in-time progress report.
type Snapshot struct {
	Fraction    float64
	InstantRate float64
	AverageRate float64
	ETA         time.Duration
	FramesDone  int64
	FramesTotal int64
}

// Update records that framesDone frames have now been emitted in total,
// as observed at now, and returns a Snapshot.
func (s *State) Update(framesDone int64, now time.Time) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.recordWindow(framesDone, now)

	snap := Snapshot{
		FramesDone:  framesDone,
		FramesTotal: s.total,
		InstantRate: s.instantRate(now),
	}

	if s.total > 0 {
		snap.Fraction = float64(framesDone) / float64(s.total)
		if snap.Fraction > 1 {
			snap.Fraction = 1
		}
	}

	elapsed := now.Sub(s.startedAt) - s.pausedFor
	if elapsed > minElapsedForAverage && framesDone > 0 {
		avg := float64(framesDone) / elapsed.Seconds()
		snap.AverageRate = avg
		if avg > 0 && s.total > framesDone {
			remaining := float64(s.total-framesDone) / avg
			snap.ETA = time.Duration(remaining * float64(time.Second))
		}
	}

	return snap
}

// recordWindow appends the frames emitted since the last call and
// trims samples that have fallen out of windowDuration.
func (s *State) recordWindow(framesDone int64, now time.Time) {
	delta := framesDone - s.lastCount
	s.lastCount = framesDone
	if delta < 0 {
		delta = 0
	}

	s.window = append(s.window, sample{ts: now, frames: delta})

	cutoff := now.Add(-windowDuration)
	i := 0
	for i < len(s.window) && s.window[i].ts.Before(cutoff) {
		i++
	}
	s.window = s.window[i:]
}

// instantRate averages frames/second over the current window.
func (s *State) instantRate(now time.Time) float64 {
	if len(s.window) < 2 {
		return 0
	}
	dur := now.Sub(s.window[0].ts).Seconds()
	if dur <= 0 {
		return 0
	}
	var frames int64
	for _, w := range s.window {
		frames += w.frames
	}
	return float64(frames) / dur
}

// FormatETA renders a time.Duration as h:m:s, the format used by the
// job's progress output.
func FormatETA(d time.Duration) string {
	total := int64(d.Seconds())
	h := total / 3600
	m := (total % 3600) / 60
	sec := total % 60
	return fmt.Sprintf("%d:%02d:%02d", h, m, sec)
}
