package audio

import (
	"context"
	"log/slog"

	"github.com/zsiec/syncstage/internal/buffer"
	"github.com/zsiec/syncstage/internal/clock"
)

// Worker drives one audio track's sync state machine, reading from a
// channel and writing re-stamped buffers to the emit callback supplied
// at construction.
type Worker struct {
	log    *slog.Logger
	shared *clock.Shared
	state  *State
	emit   func(*buffer.Buffer)

	trackID string
}

// NewWorker creates an Audio Sync Worker for one track. emit receives
// every buffer this worker produces, in order, including the terminal
// EOF sentinel.
func NewWorker(trackID string, cfg Config, shared *clock.Shared, emit func(*buffer.Buffer), log *slog.Logger) *Worker {
	if log == nil {
		log = slog.Default()
	}
	return &Worker{
		log:     log.With("component", "audio-sync", "track", trackID),
		shared:  shared,
		state:   NewState(cfg, shared),
		emit:    emit,
		trackID: trackID,
	}
}

// Run drains in until EOF, the job's frame cap is reached, or ctx is
// cancelled. It is the goroutine entry point for one audio track.
func (w *Worker) Run(ctx context.Context, in <-chan *buffer.Buffer) {
	defer w.state.Close()

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

// step processes one input buffer and reports whether the worker has
// reached a terminal state (EOF or frame cap).
func (w *Worker) step(buf *buffer.Buffer) (done bool) {
	start := buf.Start - w.shared.AudioSlip()

	// EOF.
	if buf.IsEOF() {
		w.emit(buffer.EOF())
		return true
	}

	// Frame-cap reached.
	if w.state.cfg.FrameToStop > 0 && w.shared.Frames() >= w.state.cfg.FrameToStop {
		w.emit(buffer.EOF())
		return true
	}

	// Regression.
	if start < w.state.NextPTS {
		if w.state.FirstDrop != 0 || w.state.NextStart-start > halfVideoFrameTicks {
			if w.state.FirstDrop == 0 {
				w.state.FirstDrop = w.state.NextPTS
			}
			w.state.DropCount++
			return false
		}
		w.state.NextPTS = start
	}

	// End of drop run.
	if w.state.FirstDrop != 0 {
		w.log.Info("audio time went backwards, dropped frames",
			"deltaMs", (w.state.NextPTS-w.state.FirstDrop)/90,
			"drops", w.state.DropCount,
			"next", w.state.FirstDrop,
			"current", w.state.NextPTS,
		)
		w.state.FirstDrop = 0
		w.state.DropCount = 0
		w.state.NextPTS = start
	}

	// Gap.
	if start-w.state.NextPTS >= gapThresholdTicks {
		gap := start - w.state.NextPTS
		if gap > corruptGapTicks {
			w.log.Warn("minute-scale time gap in audio, dropping buffer",
				"minutes", gap/(90000*60), "start", start, "next", w.state.NextPTS)
			return false
		}

		if w.state.cfg.OutCodec == CodecDCA {
			w.log.Info("audio gap, skipping frames on other tracks",
				"ms", gap/90, "start", start, "next", w.state.NextPTS)
			w.shared.AddGapSlip(gap)
			w.emit(buf)
			return false
		}

		w.log.Info("adding silence to audio", "ms", gap/90, "start", start, "next", w.state.NextPTS)
		InsertSilence(w.state, gap, w.log, w.emit)
		w.emit(OutputAudioFrame(buf, w.state, w.log))
		return false
	}

	// Normal case.
	w.emit(OutputAudioFrame(buf, w.state, w.log))
	return false
}
