// Command syncstage is a demo harness for the sync stage: it generates a
// synthetic video track, one synthetic audio track, and one synthetic
// subtitle track, runs them through internal/stage, and logs the result.
// Job/configuration loading and demuxing are out of scope for the stage
// itself (see internal/job), so this harness builds a job.Job and its
// input channels directly rather than parsing a real source file.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zsiec/syncstage/internal/audio"
	"github.com/zsiec/syncstage/internal/buffer"
	"github.com/zsiec/syncstage/internal/certs"
	"github.com/zsiec/syncstage/internal/job"
	"github.com/zsiec/syncstage/internal/monitor"
	"github.com/zsiec/syncstage/internal/progress"
	"github.com/zsiec/syncstage/internal/stage"
	"github.com/zsiec/syncstage/internal/subtitle"
)

func main() {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	monitorAddr := envOr("MONITOR_ADDR", ":4443")
	vrate := 30

	j := job.Job{VRate: vrate, VRateBase: 1}

	var monCfg *monitor.Config
	if os.Getenv("DISABLE_MONITOR") == "" {
		slog.Info("generating self-signed certificate for progress monitor")
		cert, err := certs.Generate(14*24*time.Hour, "localhost")
		if err != nil {
			slog.Error("failed to generate cert", "error", err)
			os.Exit(1)
		}
		slog.Info("certificate generated", "fingerprint", cert.FingerprintBase64())
		monCfg = &monitor.Config{Addr: monitorAddr, Cert: cert}
	}

	sink := &logSink{log: slog.Default()}

	st := stage.New(stage.Config{
		Job:     j,
		VideoIn: demoVideoSource(vrate),
		Audio: map[string]stage.AudioInput{
			"a0": {
				Config: audio.Config{InRate: 48000, OutRate: 48000, Channels: 2, OutCodec: audio.CodecPCM},
				In:     demoAudioSource(),
			},
		},
		Subtitles: []stage.SubtitleInput{
			{ID: "s0", Source: subtitle.SourceTimedText, Destination: subtitle.DestPassthrough, In: demoSubtitleSource()},
		},
		Sink:    sink,
		Monitor: monCfg,
	}, nil)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return st.Run(gctx) })

	g.Go(func() error {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if p := st.Progress(); p != nil {
					snap := p.Update(sink.videoFrames(), time.Now())
					slog.Info("progress",
						"frames", snap.FramesDone,
						"fraction", snap.Fraction,
						"eta", progress.FormatETA(snap.ETA),
					)
				}
			}
		}
	})

	if err := g.Wait(); err != nil {
		slog.Error("stage error", "error", err)
		os.Exit(1)
	}
	slog.Info("done", "video_frames", sink.videoFrames(), "audio_frames", sink.audioFrames())
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// demoVideoSource generates a handful of 90kHz-stamped video buffers at
// vrate fps, terminated by EOF.
func demoVideoSource(vrate int) <-chan *buffer.Buffer {
	const frames = 150
	ch := make(chan *buffer.Buffer, 16)
	go func() {
		defer close(ch)
		dur := int64(90000) / int64(vrate)
		for i := 0; i < frames; i++ {
			ch <- &buffer.Buffer{
				Data:     []byte{byte(i)},
				Start:    int64(i) * dur,
				Stop:     int64(i+1) * dur,
				Sequence: int64(i),
			}
		}
		ch <- buffer.EOF()
	}()
	return ch
}

// demoAudioSource generates 20ms 48kHz stereo buffers, terminated by EOF.
func demoAudioSource() <-chan *buffer.Buffer {
	const buffers = 250
	const samplesPerBuf = 960                         // 20ms at 48kHz
	const ticksPerBuf = samplesPerBuf * 90000 / 48000 // 20ms in 90kHz ticks
	ch := make(chan *buffer.Buffer, 16)
	go func() {
		defer close(ch)
		for i := 0; i < buffers; i++ {
			ch <- &buffer.Buffer{
				Data:  make([]byte, samplesPerBuf*2*2), // stereo, 16-bit
				Start: int64(i) * ticksPerBuf,
				Stop:  int64(i+1) * ticksPerBuf,
			}
		}
		ch <- buffer.EOF()
	}()
	return ch
}

// demoSubtitleSource generates one timed-text cue, terminated by EOF.
func demoSubtitleSource() <-chan *buffer.Buffer {
	ch := make(chan *buffer.Buffer, 4)
	go func() {
		defer close(ch)
		ch <- &buffer.Buffer{Data: []byte("hello from syncstage"), Start: 45000, Stop: 90000}
		ch <- buffer.EOF()
	}()
	return ch
}

// logSink is a stage.Sink that counts delivered frames and logs a line
// per track on EOF, standing in for a real muxer/renderer.
type logSink struct {
	log *slog.Logger

	video atomic.Int64
	audio atomic.Int64
}

func (s *logSink) EmitVideo(b *buffer.Buffer) {
	if b.IsEOF() {
		s.log.Info("video track finished", "frames", s.video.Load())
		return
	}
	s.video.Add(1)
}

func (s *logSink) EmitAudio(trackID string, b *buffer.Buffer) {
	if b.IsEOF() {
		s.log.Info("audio track finished", "track", trackID)
		return
	}
	s.audio.Add(1)
}

func (s *logSink) EmitSubtitle(trackID string, b *buffer.Buffer) {
	if b.IsEOF() {
		return
	}
	s.log.Info("subtitle cue", "track", trackID, "start", b.Start, "text", string(b.Data))
}

func (s *logSink) videoFrames() int64 { return s.video.Load() }
func (s *logSink) audioFrames() int64 { return s.audio.Load() }
