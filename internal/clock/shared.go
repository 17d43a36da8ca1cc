// Package clock implements the shared clock state: the one piece of
// mutable state shared across the video worker and every audio worker
// in a job. It is reference-counted like a connection pool — constructed
// once per job, acquired once per worker, and torn down by whichever
// worker releases it last.
package clock

import "sync"

// Shared holds the cross-track slip counters and the job-wide emitted
// frame count. Every read or write of the pass-through slip, the video
// slip, and the frame count happens under mu; no condition variables are needed since
// workers only consult the counters, they never wait on them.
type Shared struct {
	mu    sync.Mutex
	ref   int
	ticks struct {
		passthruSlip int64
		videoSlip    int64
		frames       int64
	}
}

// New creates a Shared clock state with a reference count of zero. Call
// Acquire once per worker that will hold a reference to it.
func New() *Shared {
	return &Shared{}
}

// Acquire increments the reference count. Call once per worker
// constructed against this Shared.
func (s *Shared) Acquire() {
	s.mu.Lock()
	s.ref++
	s.mu.Unlock()
}

// Release decrements the reference count and reports whether this was
// the last reference. The caller that observes true is responsible for
// discarding its handle; the return value lets callers log "last worker
// closed".
func (s *Shared) Release() (last bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ref--
	return s.ref == 0
}

// AudioSlip returns the current audio pass-through slip under lock.
func (s *Shared) AudioSlip() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticks.passthruSlip
}

// VideoSlip returns the current video PTS slip under lock.
func (s *Shared) VideoSlip() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticks.videoSlip
}

// AddGapSlip is invoked by an audio worker that skips a gap on a
// pass-through (DCA-style) track instead of synthesizing silence: delta
// ticks are added to both the audio pass-through slip and the video PTS
// slip so the two tracks keep moving together.
func (s *Shared) AddGapSlip(delta int64) {
	s.mu.Lock()
	s.ticks.passthruSlip += delta
	s.ticks.videoSlip += delta
	s.mu.Unlock()
}

// AdjustVideoSlip adds delta (possibly negative) to the video PTS slip
// alone. Used by the video worker when crediting a dropped frame's
// positive delta back onto the skip counter.
func (s *Shared) AdjustVideoSlip(delta int64) {
	s.mu.Lock()
	s.ticks.videoSlip += delta
	s.mu.Unlock()
}

// IncFrames increments the job-wide emitted video frame count and
// returns the new value.
func (s *Shared) IncFrames() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ticks.frames++
	return s.ticks.frames
}

// Frames returns the current emitted video frame count.
func (s *Shared) Frames() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticks.frames
}
