package subtitle

import (
	"testing"

	"github.com/zsiec/syncstage/internal/buffer"
)

func drainChan(t *testing.T, ch chan *buffer.Buffer) []*buffer.Buffer {
	t.Helper()
	var out []*buffer.Buffer
	for {
		select {
		case b := <-ch:
			out = append(out, b)
		default:
			return out
		}
	}
}

func TestAlignTimedTextDrainsBeforeCur(t *testing.T) {
	t.Parallel()

	out := make(chan *buffer.Buffer, 10)
	tr := NewTrack("cc1", SourceTimedText, DestPassthrough, nil, out, nil)

	tr.Raw.Push(&buffer.Buffer{Data: []byte{1}, Start: 1000, Stop: 2000})
	tr.Raw.Push(&buffer.Buffer{Data: []byte{2}, Start: 5000, Stop: 6000})
	tr.Raw.Push(&buffer.Buffer{Data: []byte{3}, Start: 9000, Stop: 10000})

	cur := &buffer.Buffer{Start: 6000}
	tr.Align(cur)

	got := drainChan(t, out)
	if len(got) != 2 {
		t.Fatalf("expected 2 cues drained before cur.start=6000, got %d", len(got))
	}
	if tr.Raw.Len() != 1 {
		t.Fatalf("expected 1 cue remaining in queue, got %d", tr.Raw.Len())
	}
}

func TestAlignTimedTextForwardsEOF(t *testing.T) {
	t.Parallel()

	out := make(chan *buffer.Buffer, 2)
	tr := NewTrack("cc1", SourceTimedText, DestPassthrough, nil, out, nil)
	tr.Raw.Push(buffer.EOF())

	tr.Align(&buffer.Buffer{Start: 1000})

	got := drainChan(t, out)
	if len(got) != 1 || !got[0].IsEOF() {
		t.Fatalf("expected a single EOF forwarded, got %+v", got)
	}
}

func TestAlignClosedCaptionRendersOntoCur(t *testing.T) {
	t.Parallel()

	tr := NewTrack("cc1", SourceClosedCaption, DestRendered, nil, nil, nil)
	tr.Raw.Push(&buffer.Buffer{Data: []byte("hello"), Start: 1000, Sequence: 3})

	cur := &buffer.Buffer{Start: 6000}
	tr.Align(cur)

	if cur.CC == nil {
		t.Fatal("expected a caption frame attached to cur.CC")
	}
	if cur.CC.Text != "hello" || cur.CC.PTS != 1000 || cur.CC.Channel != 3 {
		t.Fatalf("caption frame not built correctly: %+v", cur.CC)
	}

	// A second cue drained against the same cur must not overwrite it.
	existing := cur.CC
	tr.Raw.Push(&buffer.Buffer{Data: []byte("world"), Start: 2000, Sequence: 3})
	tr.Align(cur)
	if cur.CC != existing {
		t.Fatal("cur.CC must be assigned at most once per cur")
	}
}

func TestAlignClosedCaptionPassthroughForwardsRaw(t *testing.T) {
	t.Parallel()

	out := make(chan *buffer.Buffer, 10)
	tr := NewTrack("cc1", SourceClosedCaption, DestPassthrough, nil, out, nil)
	tr.Raw.Push(&buffer.Buffer{Data: []byte("hi"), Start: 1000})

	tr.Align(&buffer.Buffer{Start: 6000})

	got := drainChan(t, out)
	if len(got) != 1 || string(got[0].Data) != "hi" {
		t.Fatalf("expected raw cue forwarded, got %+v", got)
	}
}

func TestAlignBitmapStaleDiscarded(t *testing.T) {
	t.Parallel()

	sync := make(chan *buffer.Buffer, 10)
	tr := NewTrack("vobsub1", SourceBitmap, DestPassthrough, sync, nil, nil)
	// stop <= cur.start: stale, must be discarded without display.
	tr.Raw.Push(&buffer.Buffer{Data: []byte{1}, Start: 100, Stop: 5000, Sequence: 1})

	cur := &buffer.Buffer{Start: 6000, Sequence: 1}
	tr.Align(cur)

	if got := drainChan(t, sync); len(got) != 0 {
		t.Fatalf("expected no display for a stale subtitle, got %+v", got)
	}
	if tr.Raw.Len() != 0 {
		t.Fatalf("expected stale entry popped, queue len = %d", tr.Raw.Len())
	}
}

func TestAlignBitmapWaitsForSequence(t *testing.T) {
	t.Parallel()

	sync := make(chan *buffer.Buffer, 10)
	tr := NewTrack("vobsub1", SourceBitmap, DestPassthrough, sync, nil, nil)
	tr.Raw.Push(&buffer.Buffer{Data: []byte{1}, Start: 100, Stop: 50000, Sequence: 5})

	cur := &buffer.Buffer{Start: 100, Sequence: 1}
	tr.Align(cur)

	if got := drainChan(t, sync); len(got) != 0 {
		t.Fatalf("subtitle ahead of reader position must not display yet, got %+v", got)
	}
	if tr.Raw.Len() != 1 {
		t.Fatalf("entry ahead of sequence must stay queued, len = %d", tr.Raw.Len())
	}
}

func TestAlignBitmapOverlapClipped(t *testing.T) {
	t.Parallel()

	sync := make(chan *buffer.Buffer, 10)
	tr := NewTrack("vobsub1", SourceBitmap, DestPassthrough, sync, nil, nil)
	tr.Raw.Push(&buffer.Buffer{Data: []byte{1}, Start: 100000, Stop: 400000, Sequence: 1})
	tr.Raw.Push(&buffer.Buffer{Data: []byte{2}, Start: 200000, Stop: 500000, Sequence: 2})

	cur := &buffer.Buffer{Start: 150000, Sequence: 2}
	tr.Align(cur)

	got := drainChan(t, sync)
	if len(got) != 1 {
		t.Fatalf("expected exactly one displayed subtitle, got %d", len(got))
	}
	if got[0].Stop != 200000 {
		t.Fatalf("overlapping head.stop should clip to s2.start=200000, got %d", got[0].Stop)
	}
}

func TestAlignBitmapShortSubtitleExtended(t *testing.T) {
	t.Parallel()

	sync := make(chan *buffer.Buffer, 10)
	tr := NewTrack("vobsub1", SourceBitmap, DestPassthrough, sync, nil, nil)
	tr.Raw.Push(&buffer.Buffer{Data: []byte{1}, Start: 100000, Stop: 150000, Sequence: 1})

	cur := &buffer.Buffer{Start: 120000, Sequence: 1}
	tr.Align(cur)

	got := drainChan(t, sync)
	if len(got) != 1 {
		t.Fatalf("expected display, got %d entries", len(got))
	}
	if got[0].Stop != 280000 {
		t.Fatalf("short subtitle should extend to start+180000=280000, got %d", got[0].Stop)
	}
}

func TestAlignBitmapShortExtensionReClipped(t *testing.T) {
	t.Parallel()

	sync := make(chan *buffer.Buffer, 10)
	tr := NewTrack("vobsub1", SourceBitmap, DestPassthrough, sync, nil, nil)
	tr.Raw.Push(&buffer.Buffer{Data: []byte{1}, Start: 100000, Stop: 150000, Sequence: 1})
	tr.Raw.Push(&buffer.Buffer{Data: []byte{2}, Start: 200000, Stop: 260000, Sequence: 2})

	cur := &buffer.Buffer{Start: 120000, Sequence: 2}
	tr.Align(cur)

	got := drainChan(t, sync)
	if len(got) != 1 {
		t.Fatalf("expected display, got %d entries", len(got))
	}
	if got[0].Stop != 200000 {
		t.Fatalf("extended stop should re-clip to the following entry's start=200000, got %d", got[0].Stop)
	}
}

func TestAlignBitmapRenderedDispatchOnlyOnce(t *testing.T) {
	t.Parallel()

	tr := NewTrack("vobsub1", SourceBitmap, DestRendered, nil, nil, nil)
	tr.Raw.Push(&buffer.Buffer{Data: []byte{0xAA}, Start: 100000, Stop: 400000, Sequence: 1, X: 5, Y: 6, Width: 10, Height: 20})

	cur := &buffer.Buffer{Start: 150000, Sequence: 1}
	tr.Align(cur)

	if cur.Sub == nil {
		t.Fatal("expected subtitle rendered onto cur.Sub")
	}
	if cur.Sub.X != 5 || cur.Sub.Y != 6 || cur.Sub.Width != 10 || cur.Sub.Height != 20 {
		t.Fatalf("overlay geometry not copied: %+v", cur.Sub)
	}

	// A second call against the same cur must not overwrite its Sub.
	existing := cur.Sub
	tr.Raw.Push(&buffer.Buffer{Data: []byte{0xBB}, Start: 140000, Stop: 400000, Sequence: 1})
	tr.Align(cur)
	if cur.Sub != existing {
		t.Fatal("cur.Sub must be assigned at most once per cur")
	}
}
