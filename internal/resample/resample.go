// Package resample wraps github.com/tphakala/go-audio-resampler behind
// the narrow call contract the audio emitter needs: hand it interleaved
// float32 samples and a target output-frame count, get back however
// many frames it actually produced. Reading back the generated count
// rather than assuming the requested count is what keeps audio aligned
// to video over long files at irrational ratios like 48kHz -> 44.1kHz.
package resample

import gar "github.com/tphakala/go-audio-resampler"

// Converter is the contract the Audio Frame Emitter needs from a
// resampler: process up to len(out)/channels frames of interleaved
// input and return how many output frames were actually generated.
type Converter interface {
	// Process resamples in (channels-interleaved float32 samples) into
	// out, which has capacity for requested output frames. It returns
	// the number of frames actually written into out.
	Process(in []float32, out []float32, requestedFrames int) (framesGenerated int, err error)

	// Close releases any resources held by the converter.
	Close()
}

// SRC wraps go-audio-resampler's sinc-based converter with a fixed
// channel count and conversion ratio.
type SRC struct {
	channels int
	ratio    float64
	conv     *gar.Resampler
}

// New creates a medium-quality sinc resampler for the given channel
// count and sample-rate ratio (outRate/inRate).
func New(channels int, ratio float64) (*SRC, error) {
	conv, err := gar.New(gar.QualityMedium, channels, ratio)
	if err != nil {
		return nil, err
	}
	return &SRC{channels: channels, ratio: ratio, conv: conv}, nil
}

// Process feeds in to the underlying converter and copies out up to
// requestedFrames of resampled output, returning how many frames were
// actually generated.
func (s *SRC) Process(in []float32, out []float32, requestedFrames int) (int, error) {
	generated, err := s.conv.Process(in, out[:requestedFrames*s.channels])
	if err != nil {
		return 0, err
	}
	return generated, nil
}

// Close releases the underlying converter's resources.
func (s *SRC) Close() {
	s.conv.Close()
}
