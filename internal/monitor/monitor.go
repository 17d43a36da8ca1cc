// Package monitor exposes the stage's progress over a WebTransport
// endpoint: a viewer opens a session and receives a newline-delimited
// JSON snapshot every second for as long as the job runs.
package monitor

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"
	"github.com/quic-go/webtransport-go"

	"github.com/zsiec/syncstage/internal/certs"
	"github.com/zsiec/syncstage/internal/progress"
)

// pushInterval is how often a connected viewer receives a new snapshot.
const pushInterval = 1 * time.Second

// SnapshotFunc returns the current progress snapshot on demand.
type SnapshotFunc func() progress.Snapshot

// Config holds the monitor server's configuration.
type Config struct {
	Addr     string
	Cert     *certs.Cert
	Snapshot SnapshotFunc
}

// Server pushes periodic progress snapshots to WebTransport viewers.
type Server struct {
	cfg   Config
	log   *slog.Logger
	wtSrv *webtransport.Server
}

// NewServer creates a monitor Server. log may be nil.
func NewServer(cfg Config, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{cfg: cfg, log: log.With("component", "progress-monitor")}
}

// APIHandler returns the monitor's plain-HTTP endpoints, split out from
// Start so tests can drive it with httptest without standing up QUIC.
func (s *Server) APIHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/cert-hash", s.handleCertHash)
	return mux
}

type certHashResponse struct {
	Hash string `json:"hash"`
}

func (s *Server) handleCertHash(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(certHashResponse{Hash: s.cfg.Cert.FingerprintBase64()})
}

// Start serves the monitor endpoint until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/cert-hash", s.APIHandler())
	mux.HandleFunc("/progress", s.handleProgress)

	s.wtSrv = &webtransport.Server{
		H3: http3.Server{
			Addr:      s.cfg.Addr,
			Handler:   mux,
			TLSConfig: &tls.Config{Certificates: []tls.Certificate{s.cfg.Cert.TLSCert}},
			QUICConfig: &quic.Config{
				MaxIdleTimeout: 30 * time.Second,
			},
		},
		CheckOrigin: func(_ *http.Request) bool { return true },
	}

	s.log.Info("progress monitor listening", "addr", s.cfg.Addr)

	stop := context.AfterFunc(ctx, func() { s.wtSrv.Close() })
	defer stop()

	err := s.wtSrv.ListenAndServe()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// handleProgress upgrades the request to a WebTransport session and
// pushes a snapshot once per second until the session or the server
// closes.
func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	session, err := s.wtSrv.Upgrade(w, r)
	if err != nil {
		s.log.Warn("webtransport upgrade failed", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	ctx := session.Context()
	ticker := time.NewTicker(pushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.pushSnapshot(ctx, session); err != nil {
				s.log.Debug("progress push failed, closing session", "error", err)
				return
			}
		}
	}
}

func (s *Server) pushSnapshot(ctx context.Context, session *webtransport.Session) error {
	if s.cfg.Snapshot == nil {
		return nil
	}
	data, err := encodeSnapshot(s.cfg.Snapshot())
	if err != nil {
		return err
	}

	stream, err := session.OpenUniStreamSync(ctx)
	if err != nil {
		return err
	}
	defer stream.Close()

	_, err = stream.Write(data)
	return err
}

// encodeSnapshot marshals a snapshot as a newline-terminated JSON line.
func encodeSnapshot(snap progress.Snapshot) ([]byte, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
