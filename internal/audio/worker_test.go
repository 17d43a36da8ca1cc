package audio

import (
	"context"
	"testing"
	"time"

	"github.com/zsiec/syncstage/internal/buffer"
	"github.com/zsiec/syncstage/internal/clock"
)

func runWorker(t *testing.T, cfg Config, shared *clock.Shared, in []*buffer.Buffer) []*buffer.Buffer {
	t.Helper()

	var out []*buffer.Buffer
	w := NewWorker("t0", cfg, shared, func(b *buffer.Buffer) { out = append(out, b) }, newTestLogger())

	ch := make(chan *buffer.Buffer, len(in))
	for _, b := range in {
		ch <- b
	}
	close(ch)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	w.Run(ctx, ch)
	return out
}

func TestAudioWorkerForwardsEOF(t *testing.T) {
	t.Parallel()

	out := runWorker(t, Config{InRate: 48000, OutRate: 48000, Channels: 2, OutCodec: CodecPCM}, clock.New(), []*buffer.Buffer{
		buffer.EOF(),
	})

	if len(out) != 1 || !out[0].IsEOF() {
		t.Fatalf("expected a single EOF sentinel, got %+v", out)
	}
}

func TestAudioWorkerDCAGapSkipsOtherTracks(t *testing.T) {
	t.Parallel()

	shared := clock.New()
	cfg := Config{InRate: 48000, OutRate: 48000, Channels: 2, OutCodec: CodecDCA}

	in := []*buffer.Buffer{
		{Data: []byte{1}, Start: 0, Stop: 2880},
		{Data: []byte{2}, Start: 90000 + 6400, Stop: 90000 + 6400 + 2880},
		buffer.EOF(),
	}
	out := runWorker(t, cfg, shared, in)

	if shared.AudioSlip() == 0 || shared.VideoSlip() == 0 {
		t.Fatalf("expected both slip counters to move, got audio=%d video=%d", shared.AudioSlip(), shared.VideoSlip())
	}
	if shared.AudioSlip() != shared.VideoSlip() {
		t.Fatalf("audio and video slip diverged: %d vs %d", shared.AudioSlip(), shared.VideoSlip())
	}

	// The gap buffer must be forwarded with unmodified stamps.
	foundUnmodified := false
	for _, b := range out {
		if b.Start == 90000+6400 {
			foundUnmodified = true
		}
	}
	if !foundUnmodified {
		t.Fatal("expected the gap-triggering buffer forwarded with original stamps")
	}
}

func TestAudioWorkerSmallRegressionAccepted(t *testing.T) {
	t.Parallel()

	shared := clock.New()
	cfg := Config{InRate: 48000, OutRate: 48000, Channels: 2, OutCodec: CodecPCM}

	// Second buffer regresses by less than half a video frame and no
	// drop run is already active: it should be accepted, not dropped.
	in := []*buffer.Buffer{
		{Data: make([]byte, 8), Start: 0, Stop: 1000},
		{Data: make([]byte, 8), Start: 500, Stop: 1500},
		buffer.EOF(),
	}
	out := runWorker(t, cfg, shared, in)

	// EOF + 2 accepted audio frames.
	count := 0
	for _, b := range out {
		if !b.IsEOF() {
			count++
		}
	}
	if count != 2 {
		t.Fatalf("expected both frames accepted, got %d non-EOF frames of %d total", count, len(out))
	}
}

func TestAudioWorkerFrameCapStopsTrack(t *testing.T) {
	t.Parallel()

	shared := clock.New()
	shared.IncFrames() // count_frames = 1

	cfg := Config{InRate: 48000, OutRate: 48000, Channels: 2, OutCodec: CodecPCM, FrameToStop: 1}
	out := runWorker(t, cfg, shared, []*buffer.Buffer{
		{Data: make([]byte, 8), Start: 0, Stop: 1000},
	})

	if len(out) != 1 || !out[0].IsEOF() {
		t.Fatalf("expected immediate EOF once frame cap reached, got %+v", out)
	}
}
