// Package stage wires together the clock, audio, video, and subtitle
// workers into one running synchronization stage: one video track, any
// number of audio tracks sharing its clock, and any number of subtitle
// tracks aligned against its look-ahead, all feeding a caller-supplied
// Sink and, optionally, a progress monitor.
package stage

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zsiec/syncstage/internal/audio"
	"github.com/zsiec/syncstage/internal/buffer"
	"github.com/zsiec/syncstage/internal/clock"
	"github.com/zsiec/syncstage/internal/job"
	"github.com/zsiec/syncstage/internal/monitor"
	"github.com/zsiec/syncstage/internal/progress"
	"github.com/zsiec/syncstage/internal/subtitle"
	"github.com/zsiec/syncstage/internal/video"
)

// Sink receives the stage's synchronized output streams.
type Sink interface {
	EmitVideo(buf *buffer.Buffer)
	EmitAudio(trackID string, buf *buffer.Buffer)
	EmitSubtitle(trackID string, buf *buffer.Buffer)
}

// AudioInput pairs one audio track's worker configuration with the raw
// input FIFO it reads from.
type AudioInput struct {
	Config audio.Config
	In     <-chan *buffer.Buffer
}

// SubtitleInput pairs one subtitle track's alignment policy with the raw
// input FIFO it is pumped from.
type SubtitleInput struct {
	ID          string
	Source      subtitle.Source
	Destination subtitle.Destination
	In          <-chan *buffer.Buffer
}

// Config collects everything a Stage needs to run a single job.
type Config struct {
	Job       job.Job
	VideoIn   <-chan *buffer.Buffer
	Audio     map[string]AudioInput
	Subtitles []SubtitleInput
	Sink      Sink

	// Monitor, when non-nil, starts a progress-push server for the
	// duration of Run. Its Snapshot field is overwritten with the
	// stage's own progress source.
	Monitor *monitor.Config
}

// Stage runs one synchronization job: a clock shared by every track, a
// video worker, one audio worker per configured track, and subtitle
// alignment driven from the video worker's look-ahead.
type Stage struct {
	cfg    Config
	log    *slog.Logger
	shared *clock.Shared

	progress  atomic.Pointer[progress.State]
	interPass atomic.Pointer[job.InterPassRecord]
}

// New creates a Stage. log may be nil.
func New(cfg Config, log *slog.Logger) *Stage {
	if log == nil {
		log = slog.Default()
	}
	return &Stage{
		cfg:    cfg,
		log:    log.With("component", "stage"),
		shared: clock.New(),
	}
}

// Progress returns the stage's progress tracker, valid once Run has
// been called. Callers that want to report progress independent of the
// monitor (e.g. a CLI progress bar) can poll it directly.
func (s *Stage) Progress() *progress.State {
	return s.progress.Load()
}

// InterPassRecord returns the record the video worker wrote on close,
// valid once Run has returned from a pass-1 job. Returns nil for a
// pass-2 job, or before Run has finished closing the video worker.
func (s *Stage) InterPassRecord() *job.InterPassRecord {
	return s.interPass.Load()
}

// Run starts every worker and blocks until the source channels close,
// ctx is cancelled, or a worker returns an error. When a Monitor is
// configured, its server keeps serving until ctx is cancelled, so Run
// does not return before then even after every source has closed. It is
// a fan-out,
// fan-in operation: every worker shares the stage's clock, so the first
// worker to start or finish does not preempt the others.
func (s *Stage) Run(ctx context.Context) error {
	s.progress.Store(progress.New(s.cfg.Job.CountFramesMax(), time.Now()))

	tracks := make([]*subtitle.Track, 0, len(s.cfg.Subtitles))
	for _, si := range s.cfg.Subtitles {
		syncCh, outCh := s.subtitleOutChans(si.ID)
		tr := subtitle.NewTrack(si.ID, si.Source, si.Destination, syncCh, outCh, s.log)
		tracks = append(tracks, tr)
	}

	var monSrv *monitor.Server
	g, gctx := errgroup.WithContext(ctx)

	if s.cfg.Monitor != nil {
		monCfg := *s.cfg.Monitor
		monCfg.Snapshot = func() progress.Snapshot {
			return s.progress.Load().Update(s.shared.Frames(), time.Now())
		}
		monSrv = monitor.NewServer(monCfg, s.log)
		g.Go(func() error { return monSrv.Start(gctx) })
	}

	for _, tr := range tracks {
		tr := tr
		in := s.subtitleInputFor(tr.ID)
		g.Go(func() error { return s.pumpSubtitle(gctx, tr, in) })
	}

	for id, ai := range s.cfg.Audio {
		id, ai := id, ai
		g.Go(func() error { return s.runAudio(gctx, id, ai) })
	}

	g.Go(func() error { return s.runVideo(gctx, tracks) })

	return g.Wait()
}

func (s *Stage) subtitleInputFor(id string) <-chan *buffer.Buffer {
	for _, si := range s.cfg.Subtitles {
		if si.ID == id {
			return si.In
		}
	}
	return nil
}

// subtitleOutChans builds the Sync/Out channels a subtitle Track
// forwards pass-through cues on, wired directly to the Sink.
func (s *Stage) subtitleOutChans(id string) (sync, out chan *buffer.Buffer) {
	sync = make(chan *buffer.Buffer, 64)
	out = make(chan *buffer.Buffer, 64)
	go func() {
		for b := range sync {
			s.cfg.Sink.EmitSubtitle(id, b)
		}
	}()
	go func() {
		for b := range out {
			s.cfg.Sink.EmitSubtitle(id, b)
		}
	}()
	return sync, out
}

// pumpSubtitle copies raw cues from a track's input FIFO into its
// mutex-guarded lookahead queue, since the video worker's Align calls
// need to peek two entries deep, which a channel cannot do.
func (s *Stage) pumpSubtitle(ctx context.Context, tr *subtitle.Track, in <-chan *buffer.Buffer) error {
	if in == nil {
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case b, ok := <-in:
			if !ok {
				return nil
			}
			tr.Raw.Push(b)
			if b.IsEOF() {
				return nil
			}
		}
	}
}

func (s *Stage) runAudio(ctx context.Context, id string, ai AudioInput) error {
	w := audio.NewWorker(id, ai.Config, s.shared, func(b *buffer.Buffer) {
		s.cfg.Sink.EmitAudio(id, b)
	}, s.log.With("track", id))
	w.Run(ctx, ai.In)
	return nil
}

func (s *Stage) runVideo(ctx context.Context, tracks []*subtitle.Track) error {
	cfg := video.Config{
		VRate:       s.cfg.Job.VRate,
		VRateBase:   s.cfg.Job.VRateBase,
		FrameToStop: s.cfg.Job.FrameToStop,
		Tracks:      tracks,
		Pass:        s.cfg.Job.Pass,
		Sequence:    s.cfg.Job.Sequence,
		OnInterPassClose: func(rec job.InterPassRecord) {
			s.interPass.Store(&rec)
		},
	}
	w := video.NewWorker(cfg, s.shared, s.cfg.Sink.EmitVideo, func(frames int64) {
		if p := s.progress.Load(); p != nil {
			p.Update(frames, time.Now())
		}
	}, s.log)
	w.Run(ctx, s.cfg.VideoIn)
	return nil
}
