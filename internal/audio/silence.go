package audio

import (
	"log/slog"

	"github.com/zsiec/syncstage/internal/buffer"
)

// InsertSilence fills a gap of duration ticks with whole
// AC-3-frame-sized chunks of silence, pushing each through
// OutputAudioFrame so stamps stay coherent, and hands the results to
// emit.
func InsertSilence(s *State, duration int64, log *slog.Logger, emit func(*buffer.Buffer)) {
	frameDur := int64(90000*ac3SamplesPerFrame) / int64(s.cfg.InRate)
	if frameDur <= 0 {
		return
	}

	// Round to the nearest whole AC-3 frame so pass-through and
	// re-encoded audio stay mutually aligned.
	frameCount := (duration + frameDur/2) / frameDur

	for i := int64(0); i < frameCount; i++ {
		var silent *buffer.Buffer
		switch s.cfg.OutCodec {
		case CodecAC3:
			if s.ac3Buf == nil {
				// AC-3 silence encoder init failed earlier: silence
				// insertion for this track is a no-op.
				continue
			}
			data := make([]byte, len(s.ac3Buf))
			copy(data, s.ac3Buf)
			silent = newBuffer(data, s.NextPTS, s.NextPTS+frameDur)
		default:
			data := make([]byte, ac3SamplesPerFrame*s.cfg.Channels*bytesPerFloat32)
			silent = newBuffer(data, s.NextPTS, s.NextPTS+frameDur)
		}

		emit(OutputAudioFrame(silent, s, log))
	}
}
