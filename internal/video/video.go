// Package video implements the video sync worker: the one-frame
// look-ahead state machine that turns a raw decoded video stream into a
// monotone, contiguous output timeline, drops backwards-time frames
// while preserving chapter marks across the drop, and drives subtitle
// alignment for every subtitle track riding alongside the video.
package video

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/zsiec/syncstage/internal/buffer"
	"github.com/zsiec/syncstage/internal/clock"
	"github.com/zsiec/syncstage/internal/job"
	"github.com/zsiec/syncstage/internal/subtitle"
)

// Config describes the job parameters the video worker needs: the
// target output rate, an optional frame cap, and the subtitle tracks
// that align against this worker's look-ahead frame.
type Config struct {
	// VRate/VRateBase express the output frame rate as a ratio; the
	// nominal frame duration in 90kHz ticks is 90000*VRateBase/VRate.
	VRate     int
	VRateBase int

	FrameToStop int64

	Tracks []*subtitle.Track

	// Pass identifies this run as the first or second encoding pass
	// over the same source. OnInterPassClose fires only when Pass == 1.
	Pass     int
	Sequence int

	// OnInterPassClose, when non-nil, receives the inter-pass record on
	// close of a pass-1 run, for a later pass-2 run over the same
	// source to pick up via job.Job.InterPass.
	OnInterPassClose func(job.InterPassRecord)
}

func (c Config) nominalFrameDuration() int64 {
	if c.VRate == 0 {
		return 0
	}
	return int64(90000) * int64(c.VRateBase) / int64(c.VRate)
}

// ProgressFunc is invoked after every successfully emitted frame with
// the job-wide emitted frame count, for progress tracking.
type ProgressFunc func(framesEmitted int64)

// Worker drives the video sync state machine for the job's single
// video track.
type Worker struct {
	log    *slog.Logger
	shared *clock.Shared
	cfg    Config
	emit   func(*buffer.Buffer)
	onProgress ProgressFunc

	cur *buffer.Buffer

	ptsOffsetSet bool
	ptsSkip      int64
	nextStart    int64
	nextPTS      int64
	firstDrop    int64
	dropCount    int
	chapMark     int

	// Drops counts frames discarded by dropBackwards. This worker never
	// duplicates frames to hold a constant rate (it preserves source
	// timing), so there is no corresponding Dups counter.
	Drops atomic.Int64
}

// NewWorker creates a video sync worker. emit receives every buffer
// this worker produces, in order, including the terminal EOF sentinel.
// onProgress may be nil.
func NewWorker(cfg Config, shared *clock.Shared, emit func(*buffer.Buffer), onProgress ProgressFunc, log *slog.Logger) *Worker {
	if log == nil {
		log = slog.Default()
	}
	shared.Acquire()
	return &Worker{
		log:        log.With("component", "video-sync"),
		shared:     shared,
		cfg:        cfg,
		emit:       emit,
		onProgress: onProgress,
	}
}

// Run drains in until EOF, the frame cap is reached, or ctx is
// cancelled.
func (w *Worker) Run(ctx context.Context, in <-chan *buffer.Buffer) {
	defer w.shared.Release()

	for {
		select {
		case <-ctx.Done():
			return
		case buf, ok := <-in:
			if !ok {
				return
			}
			if w.step(buf) {
				return
			}
		}
	}
}

// step processes one input frame and reports whether the worker has
// reached a terminal state.
func (w *Worker) step(next *buffer.Buffer) (done bool) {
	// Cold start.
	if w.cur == nil {
		if next.IsEOF() {
			w.finish()
			return true
		}
		w.cur = next
		return false
	}

	// Frame cap.
	if w.cfg.FrameToStop > 0 && w.shared.Frames() > w.cfg.FrameToStop {
		w.finish()
		return true
	}

	// EOF with cur present: give cur one nominal frame length and stop.
	if next.IsEOF() {
		dur := w.cfg.nominalFrameDuration()
		w.emitCur(w.cur.Start + dur)
		w.finish()
		return true
	}

	w.forceFirstFramePTS()

	if w.dropBackwards(next) {
		return false
	}

	if w.firstDrop != 0 {
		w.log.Info("video time went backwards, dropped frames",
			"deltaMs", (w.cur.Start-w.firstDrop)/90,
			"drops", w.dropCount,
		)
		w.firstDrop = 0
		w.dropCount = 0
	}

	for _, t := range w.cfg.Tracks {
		t.Align(w.cur)
	}

	w.emitCur(next.Start)
	w.cur = next
	return false
}

// forceFirstFramePTS anchors the very first frame to timestamp 0, per
// the rule that the audio pipeline anchors to zero.
func (w *Worker) forceFirstFramePTS() {
	if w.ptsOffsetSet {
		return
	}
	w.ptsOffsetSet = true
	if w.cur.Start != 0 {
		w.cur.Start = 0
	}
}

// dropBackwards applies the backwards-time drop rule: if next does not
// advance time beyond cur once video_pts_slip is accounted for, next is
// discarded and cur is retained for the next iteration. Returns true if
// next was dropped.
func (w *Worker) dropBackwards(next *buffer.Buffer) bool {
	delta := next.Start - w.shared.VideoSlip() - w.cur.Start
	if delta > 0 {
		return false
	}

	if w.firstDrop == 0 {
		w.firstDrop = next.Start
	}
	w.dropCount++
	w.Drops.Add(1)

	if next.Start-w.cur.Start > 0 {
		credit := next.Start - w.cur.Start
		w.ptsSkip += credit
		w.shared.AdjustVideoSlip(-credit)
	}

	if next.NewChap != 0 {
		w.chapMark = next.NewChap
	}

	return true
}

// emitCur computes cur's duration from nextFrameStart, rotates the
// output timeline forward, attaches any deferred chapter mark, and
// pushes cur downstream.
func (w *Worker) emitCur(nextFrameStart int64) {
	duration := nextFrameStart - w.ptsSkip - w.cur.Start
	if duration <= 0 {
		w.log.Warn("non-positive video frame duration, emitting anyway", "duration", duration)
	}

	out := w.cur
	out.Start = w.nextStart
	out.Stop = w.nextStart + duration
	out.FrameType = buffer.FrameTypeVideo
	if w.chapMark != 0 {
		out.NewChap = w.chapMark
		w.chapMark = 0
	}

	w.nextStart += duration
	w.ptsSkip = 0
	w.nextPTS = nextFrameStart

	w.emit(out)
	frames := w.shared.IncFrames()
	if w.onProgress != nil {
		w.onProgress(frames)
	}
}

// finish flushes EOF downstream and to every subtitle track, surfaces
// the drop count, and, on a pass-1 run, hands the next pass an
// inter-pass record.
func (w *Worker) finish() {
	w.emit(buffer.EOF())
	for _, t := range w.cfg.Tracks {
		t.FlushEOF()
	}

	if drops := w.Drops.Load(); drops > 0 {
		w.log.Info("video sync closed", "drops", drops)
	}

	if w.cfg.Pass == 1 && w.cfg.OnInterPassClose != nil {
		w.cfg.OnInterPassClose(job.InterPassRecord{
			FrameCount: w.shared.Frames(),
			LastJob:    w.cfg.Sequence,
			TotalTime:  time.Duration(w.nextStart) * (time.Second / 90000),
		})
	}
}
