// Package audio implements per-track audio timestamp reconciliation: an
// emitter that re-stamps buffers onto the output timeline (resampling or
// passing them through), a silence generator for closing timing gaps,
// and the worker state machine that drives both from an input stream.
package audio

import (
	"github.com/zsiec/syncstage/internal/buffer"
	"github.com/zsiec/syncstage/internal/clock"
	"github.com/zsiec/syncstage/internal/resample"
)

// OutputCodec tags the output audio codec's gap-handling and
// silence-representation policy. Each value corresponds to exactly one
// branch in OutputAudioFrame, InsertSilence, and the worker's gap
// handling.
type OutputCodec int

const (
	// CodecPCM is any resampled/decoded output that isn't pass-through.
	CodecPCM OutputCodec = iota
	// CodecAC3 is pass-through AC-3: gaps are filled with pre-encoded
	// silent AC-3 frames.
	CodecAC3
	// CodecDCA is pass-through DCA/DTS: DCA silence can't be
	// synthesized, so gaps are closed by skipping time on the other
	// tracks instead.
	CodecDCA
)

// IsPassthrough reports whether c carries the compressed input payload
// verbatim (no resampling is possible for these codecs).
func (c OutputCodec) IsPassthrough() bool {
	return c == CodecAC3 || c == CodecDCA
}

// ac3SamplesPerFrame is the fixed AC-3 frame size in samples — the
// atomic unit of pass-through silence.
const ac3SamplesPerFrame = 1536

// halfVideoFrameTicks approximates half a 30fps video frame in 90kHz
// ticks, kept as a literal constant rather than derived from the job's
// frame rate.
const halfVideoFrameTicks = 90 * 15

// gapThresholdTicks is the minimum gap that triggers silence insertion
// or a pass-through skip, ~70ms.
const gapThresholdTicks = 90 * 70

// corruptGapTicks is the gap beyond which a single buffer is treated as
// a corrupt timestamp and discarded outright.
const corruptGapTicks = 90000 * 60

// Config describes one audio track's conversion parameters, supplied by
// the job.
type Config struct {
	InRate     int
	OutRate    int
	Channels   int
	OutCodec   OutputCodec
	FrameToStop int64 // 0 means unbounded
}

// State is the per-track audio sync state: next output start, next
// input pts, coalesced drop-run bookkeeping, and either a resampler
// handle or a cached silence frame, depending on Config.OutCodec.
type State struct {
	cfg Config

	NextStart int64
	NextPTS   int64
	FirstDrop int64
	DropCount int

	resampler resample.Converter
	ac3Buf    []byte // nil until InitAC3Silence succeeds

	shared *clock.Shared
}

// NewState creates audio sync state for one track, acquiring a
// reference on shared.
func NewState(cfg Config, shared *clock.Shared) *State {
	shared.Acquire()
	return &State{cfg: cfg, shared: shared}
}

// SetResampler attaches the sample-rate converter used when InRate !=
// OutRate and OutCodec is not pass-through.
func (s *State) SetResampler(r resample.Converter) {
	s.resampler = r
}

// InitAC3Silence caches a pre-encoded silent AC-3 frame, built by
// encode (an injected collaborator — AC-3 encoding itself happens
// outside this package). If encode fails, ac3Buf stays nil and
// subsequent silence insertion for this track becomes a no-op.
func (s *State) InitAC3Silence(encode func(pcmZeros []byte) ([]byte, error)) error {
	zeros := make([]byte, ac3SamplesPerFrame*s.cfg.Channels*2) // 16-bit PCM zeros
	buf, err := encode(zeros)
	if err != nil {
		return err
	}
	s.ac3Buf = buf
	return nil
}

// Close releases this worker's reference on the shared clock and
// reports whether it was the last one, and releases the resampler if
// present.
func (s *State) Close() (lastRef bool) {
	if s.resampler != nil {
		s.resampler.Close()
	}
	return s.shared.Release()
}

// newBuffer is a tiny helper used by InsertSilence to build a fresh
// Buffer with the given payload and stamps.
func newBuffer(data []byte, start, stop int64) *buffer.Buffer {
	return &buffer.Buffer{Data: data, Start: start, Stop: stop}
}
