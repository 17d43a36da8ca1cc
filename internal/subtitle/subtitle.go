// Package subtitle implements per-track subtitle alignment against the
// video worker's one-frame look-ahead: timed-text tracks are drained in
// lockstep with the video timeline, bitmap tracks are peeked two entries
// deep to resolve author overlaps and decide display against the
// current video frame.
package subtitle

import (
	"log/slog"

	"github.com/zsiec/ccx"

	"github.com/zsiec/syncstage/internal/buffer"
	"github.com/zsiec/syncstage/internal/queue"
)

// Source distinguishes a subtitle track's encoding, which determines
// how it is drained against the video timeline.
type Source int

const (
	// SourceTimedText covers closed captions and SRT-style cues: plain
	// text payloads with no overlap resolution required.
	SourceTimedText Source = iota
	// SourceBitmap covers VOBSUB-style subpicture streams: bitmap
	// overlays that may overlap and may need display-duration extension.
	SourceBitmap
	// SourceClosedCaption covers CEA-608/708 caption payloads extracted
	// upstream: drained like timed text; a rendered track attaches each
	// cue to the video frame as a ccx.CaptionFrame, a pass-through track
	// forwards the raw cue.
	SourceClosedCaption
)

// Destination distinguishes how a displayed subtitle reaches the
// output: burned into the video frame, or carried alongside it.
type Destination int

const (
	// DestRendered subtitles are copied onto the video buffer's Sub
	// field for the downstream renderer to burn in.
	DestRendered Destination = iota
	// DestPassthrough subtitles are forwarded on the track's own output
	// FIFO, unmodified aside from stamp rewriting upstream.
	DestPassthrough
)

// shortSubtitleExtension is the minimum display duration enforced on
// bitmap subtitles, 2 seconds in 90kHz ticks.
const shortSubtitleExtension = 2 * 90000

// Track holds one subtitle track's raw input queue and the two FIFOs it
// can be routed to, plus its source/destination policy.
type Track struct {
	ID          string
	Source      Source
	Destination Destination

	Raw *queue.Queue[*buffer.Buffer]

	// Sync receives pass-through subtitles with rewritten stamps.
	// Out receives pass-through subtitles whose stamps need no rewrite
	// (forwarded unmodified, e.g. plain EOF propagation).
	Sync chan<- *buffer.Buffer
	Out  chan<- *buffer.Buffer

	log *slog.Logger
}

// NewTrack creates a Track. log may be nil.
func NewTrack(id string, src Source, dst Destination, sync, out chan<- *buffer.Buffer, log *slog.Logger) *Track {
	if log == nil {
		log = slog.Default()
	}
	return &Track{
		ID:          id,
		Source:      src,
		Destination: dst,
		Raw:         queue.New[*buffer.Buffer](),
		Sync:        sync,
		Out:         out,
		log:         log.With("component", "subtitle", "track", id),
	}
}

// FlushEOF pushes an EOF sentinel to whichever FIFO this track's
// destination uses, for the termination paths of the video worker's
// cold-start and EOF handling.
func (t *Track) FlushEOF() {
	if t.Destination == DestRendered {
		return
	}
	t.Out <- buffer.EOF()
}

// Align drains t's raw queue against cur, the video worker's current
// look-ahead frame, dispatching subtitles for display or discard per
// the track's source policy. cur.Sequence gates bitmap subtitles
// against the reader's physical position on the source medium.
func (t *Track) Align(cur *buffer.Buffer) {
	switch t.Source {
	case SourceTimedText:
		t.alignTimedText(cur)
	case SourceBitmap:
		t.alignBitmap(cur)
	case SourceClosedCaption:
		t.alignClosedCaption(cur)
	}
}

// alignTimedText drains every queued cue that starts before cur, with
// no rewriting across discontinuities: a cue spanning a PTS jump is
// forwarded exactly as queued, matching how the rest of this stage only
// repairs discontinuities, never subtitle content.
func (t *Track) alignTimedText(cur *buffer.Buffer) {
	for {
		head, ok := t.Raw.Peek()
		if !ok {
			return
		}
		if head.IsEOF() {
			t.Raw.Pop()
			t.Out <- buffer.EOF()
			return
		}
		if head.Start >= cur.Start {
			return
		}
		t.Raw.Pop()
		t.Out <- head
	}
}

// alignClosedCaption drains queued caption cues the same way
// alignTimedText does and hands each to dispatchCaption, which builds a
// ccx.CaptionFrame for a rendered track and forwards the raw cue for a
// pass-through track.
func (t *Track) alignClosedCaption(cur *buffer.Buffer) {
	for {
		head, ok := t.Raw.Peek()
		if !ok {
			return
		}
		if head.IsEOF() {
			t.Raw.Pop()
			t.Out <- buffer.EOF()
			return
		}
		if head.Start >= cur.Start {
			return
		}
		t.Raw.Pop()
		t.dispatchCaption(head, cur)
	}
}

// dispatchCaption routes a decoded caption cue to its destination: a
// rendered track attaches it to cur (once), a pass-through track
// forwards the raw cue on its own output FIFO.
func (t *Track) dispatchCaption(head, cur *buffer.Buffer) {
	switch t.Destination {
	case DestRendered:
		if cur.CC == nil {
			cur.CC = &ccx.CaptionFrame{
				PTS:     head.Start,
				Text:    string(head.Data),
				Channel: int(head.Sequence),
			}
		}
	case DestPassthrough:
		t.Out <- head
	}
}

// alignBitmap implements the VOBSUB-style two-entry lookahead: overlap
// clipping against the following entry, sequence gating against the
// reader's physical position, staleness discard, and short-subtitle
// extension.
func (t *Track) alignBitmap(cur *buffer.Buffer) {
	for {
		head, ok := t.Raw.Peek()
		if !ok {
			return
		}
		if head.IsEOF() {
			t.dispatchEOF()
			return
		}

		if s2, ok2 := t.Raw.Peek2(); ok2 && !s2.IsEOF() && head.Stop > s2.Start {
			head.Stop = s2.Start
		}

		if head.Sequence > cur.Sequence {
			return
		}
		if head.Stop <= cur.Start {
			t.Raw.Pop()
			continue
		}

		display := t.shouldDisplay(head, cur)
		if !display {
			return
		}

		if head.Stop > head.Start && head.Stop-head.Start < shortSubtitleExtension {
			head.Stop = head.Start + shortSubtitleExtension
			if s2, ok2 := t.Raw.Peek2(); ok2 && !s2.IsEOF() && head.Stop > s2.Start {
				head.Stop = s2.Start
			}
		}

		t.Raw.Pop()
		t.dispatch(head, cur)
		return
	}
}

// shouldDisplay decides whether head should be shown on cur, handling
// both the normal case and the wraparound case where stop <= start
// after a PTS discontinuity.
func (t *Track) shouldDisplay(head, cur *buffer.Buffer) bool {
	if head.Stop > head.Start {
		return head.Start < cur.Start && cur.Start < head.Stop
	}
	return cur.Start < head.Stop
}

// dispatch routes a displayed subtitle to its destination.
func (t *Track) dispatch(head, cur *buffer.Buffer) {
	switch t.Destination {
	case DestRendered:
		if cur.Sub == nil {
			cur.Sub = &buffer.Overlay{
				Data:   head.Data,
				X:      head.X,
				Y:      head.Y,
				Width:  head.Width,
				Height: head.Height,
			}
		}
	case DestPassthrough:
		t.Sync <- head
	}
}

func (t *Track) dispatchEOF() {
	t.Raw.Pop()
	if t.Destination == DestRendered {
		return
	}
	t.Out <- buffer.EOF()
}
