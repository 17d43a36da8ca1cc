package audio

import (
	"log/slog"

	"github.com/zsiec/syncstage/internal/buffer"
)

const bytesPerFloat32 = 4

// OutputAudioFrame re-stamps buf onto the output timeline, resampling
// it first unless the track is a rate-matched or pass-through codec.
func OutputAudioFrame(buf *buffer.Buffer, s *State, log *slog.Logger) *buffer.Buffer {
	start := s.NextStart
	duration := buf.Duration()

	// Advance the *input* clock unconditionally — this tracks input
	// timing regardless of what the resampler below does to duration.
	s.NextPTS += duration

	if s.cfg.InRate == s.cfg.OutRate || s.cfg.OutCodec.IsPassthrough() {
		buf.FrameType = buffer.FrameTypeAudio
		buf.Start = start
		buf.Stop = start + duration
		s.NextStart = start + duration
		return buf
	}

	channelBytes := s.cfg.Channels * bytesPerFloat32
	countIn := len(buf.Data) / channelBytes

	// The +1 margin lets the resampler emit the accumulated fractional
	// sample it's been carrying, instead of truncating it — this is
	// what prevents cumulative drift at irrational ratios like 44.1kHz.
	countOut := int(duration)*s.cfg.OutRate/90000 + 1

	out := make([]float32, countOut*s.cfg.Channels)
	generated, err := s.resampler.Process(floatsFromBytes(buf.Data, countIn*s.cfg.Channels), out, countOut)
	if err != nil {
		// Degradation, not abort: continue with whatever was produced.
		log.Warn("resample failed, continuing with partial output", "error", err)
	}

	resampled := bytesFromFloats(out[:generated*s.cfg.Channels])
	duration = int64(generated) * 90000 / int64(s.cfg.OutRate)

	buf.Data = resampled
	buf.FrameType = buffer.FrameTypeAudio
	buf.Start = start
	buf.Stop = start + duration
	s.NextStart = start + duration
	return buf
}

func floatsFromBytes(b []byte, count int) []float32 {
	out := make([]float32, 0, count)
	for i := 0; i+bytesPerFloat32 <= len(b) && len(out) < count; i += bytesPerFloat32 {
		out = append(out, float32FromLE(b[i:i+bytesPerFloat32]))
	}
	return out
}

func bytesFromFloats(f []float32) []byte {
	out := make([]byte, len(f)*bytesPerFloat32)
	for i, v := range f {
		putFloat32LE(out[i*bytesPerFloat32:], v)
	}
	return out
}
