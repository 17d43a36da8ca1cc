// Package buffer defines the universal unit of flow between sync-stage
// workers: a timestamped payload with demuxer-assigned ordering, an
// optional chapter mark, and an optional attached subtitle overlay.
package buffer

import "github.com/zsiec/ccx"

// FrameType tags the kind of payload a Buffer carries once it has been
// stamped by a sync worker.
type FrameType int

// Frame type tags assigned by the emitters in this stage.
const (
	FrameTypeNone FrameType = iota
	FrameTypeAudio
	FrameTypeVideo
)

// Overlay is a rendered subtitle bitmap attached to a video Buffer for
// the renderer to burn in. It is copied onto a video frame's Sub field
// at most once per frame (see internal/subtitle).
type Overlay struct {
	Data   []byte
	X, Y   int
	Width  int
	Height int
}

// Buffer is the unit of flow between the demuxer and this stage, and
// between this stage and the renderer/encoder/muxer downstream. Start
// and Stop are presentation timestamps in 90 kHz ticks for video,
// subtitle and audio buffers alike. A Buffer with a zero-length Data is
// the end-of-stream sentinel (see IsEOF).
type Buffer struct {
	Data []byte

	Start int64
	Stop  int64

	// Sequence is the demuxer-assigned monotonic ordering, used to gate
	// subtitle display against the reader's physical position independent
	// of PTS.
	Sequence int64

	// NewChap is nonzero when this buffer begins chapter NewChap.
	NewChap int

	// Sub is a rendered subtitle overlay attached to a video Buffer.
	Sub *Overlay

	// CC is a decoded closed-caption frame attached to a video Buffer,
	// assigned at most once per frame like Sub.
	CC *ccx.CaptionFrame

	// X, Y, Width, Height position a bitmap subtitle buffer on the
	// video frame. Unused outside bitmap subtitle tracks.
	X, Y          int
	Width, Height int

	FrameType FrameType
}

// EOF builds the zero-payload sentinel that signals end of stream.
func EOF() *Buffer {
	return &Buffer{}
}

// IsEOF reports whether b is the end-of-stream sentinel (zero-length
// payload). A nil Buffer is not EOF — callers must check for nil first
// where the queue can return one.
func (b *Buffer) IsEOF() bool {
	return b != nil && len(b.Data) == 0
}

// Duration returns Stop - Start.
func (b *Buffer) Duration() int64 {
	return b.Stop - b.Start
}
