package run

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"captionjoin/internal/audio"
	"captionjoin/internal/config"
	"captionjoin/internal/control"
	"captionjoin/internal/credentials"
	"captionjoin/internal/hook"
	"captionjoin/internal/loop"
	"captionjoin/internal/metrics"
	"captionjoin/internal/preset"
	"captionjoin/internal/session"
	"captionjoin/internal/transport"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Deps are the collaborators a Server is built from.
type Deps struct {
	Loop     *loop.Loop
	Dialer   transport.Dialer
	Capturer audio.Capturer
	Presets  preset.Store
	Hook     *hook.Runner
	Metrics  *metrics.Collector
}

// Server hosts the session manager on the event loop and serves the control
// socket, the hook worker and metrics.
type Server struct {
	cfg       *config.Config
	logger    *logrus.Logger
	loop      *loop.Loop
	presets   preset.Store
	hook      *hook.Runner
	metrics   *metrics.Collector
	presenter *presenter
	opts      session.Options
	deps      session.Deps
	startedAt time.Time

	// mgr is owned by the loop. It stays nil until the first login.
	mgr *session.Manager

	transcriptsMu sync.Mutex
	transcripts   []control.Transcript

	hookCh chan hook.Job
}

// New builds a server. Nothing runs until Serve.
func New(cfg *config.Config, logger *logrus.Logger, d Deps) *Server {
	srv := &Server{
		cfg:         cfg,
		logger:      logger,
		loop:        d.Loop,
		presets:     d.Presets,
		hook:        d.Hook,
		metrics:     d.Metrics,
		presenter:   newPresenter(logger, cfg.UI.StatusTail),
		opts:        SessionOptions(cfg),
		startedAt:   time.Now(),
		transcripts: make([]control.Transcript, 0, cfg.UI.StatusTail),
		hookCh:      make(chan hook.Job, max(1, cfg.Hook.QueueSize)),
	}
	srv.deps = session.Deps{
		Scheduler: d.Loop,
		Dialer:    d.Dialer,
		Capturer:  d.Capturer,
		Presenter: srv.presenter,
		Logger:    logger,
		Metrics:   d.Metrics,
		OnFinal:   srv.handleFinal,
	}
	return srv
}

// SessionOptions maps config onto session tunables.
func SessionOptions(cfg *config.Config) session.Options {
	opts := session.DefaultOptions()
	opts.Endpoint = cfg.Session.Endpoint
	opts.ConnectionCode = cfg.Session.ConnectionCode
	if cfg.Session.ConnectTimeoutSec > 0 {
		opts.ConnectTimeout = time.Duration(cfg.Session.ConnectTimeoutSec * float64(time.Second))
	}
	opts.AutoJoin = cfg.Session.AutoJoin
	opts.Stream = audio.StreamConfig{SampleRate: cfg.Audio.SampleRate, BlockSize: cfg.Audio.BlockSize}
	if cfg.Audio.FrameSamples > 0 {
		opts.Framer.FrameSamples = cfg.Audio.FrameSamples
	}
	if cfg.Audio.Gain > 0 {
		opts.Framer.Gain = cfg.Audio.Gain
	}
	if cfg.Audio.SilenceThreshold > 0 {
		opts.Framer.SilenceThreshold = cfg.Audio.SilenceThreshold
	}
	opts.ArchiveDir = cfg.Audio.ArchiveDir
	return opts
}

// Serve runs the daemon until interrupted.
func (s *Server) Serve() error {
	cfg, logger := s.cfg, s.logger
	if err := config.MustStatePaths(cfg); err != nil {
		return err
	}
	// Write pid file.
	if err := os.WriteFile(cfg.Paths.PidPath, []byte(fmt.Sprintf("%d", os.Getpid())), 0o644); err != nil {
		return err
	}
	defer func() {
		if err := os.Remove(cfg.Paths.PidPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warnf("remove pid file: %v", err)
		}
	}()
	// Ensure socket removed
	if err := os.Remove(cfg.Paths.SocketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Debugf("remove stale socket: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return s.loop.Run(gctx) })
	if err := s.loop.Call(gctx, s.bootstrap); err != nil {
		logger.Errorf("startup: %v", err)
	}

	g.Go(func() error { return s.controlLoop(gctx) })
	g.Go(func() error { s.hookWorker(gctx); return nil })
	if cfg.Metrics.Enabled {
		g.Go(func() error { return s.metrics.Serve(gctx, cfg.Metrics.Addr, logger) })
	}

	// Handle signals
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)
	select {
	case sig := <-sigCh:
		logger.Infof("received signal %s, shutting down", sig)
	case <-gctx.Done():
	}
	s.shutdown()
	cancel()
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// shutdown closes every recorder while the loop is still running.
func (s *Server) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := s.loop.Call(ctx, func() error {
		if s.mgr != nil && s.mgr.Active() {
			s.mgr.DisconnectAll()
		}
		return nil
	})
	if err != nil && !errors.Is(err, loop.ErrStopped) {
		s.logger.Warnf("shutdown: %v", err)
	}
}

// bootstrap logs in with configured credentials and restores the startup
// layout. It runs on the loop.
func (s *Server) bootstrap() error {
	creds := credentials.Credentials{SessionID: s.cfg.Session.SessionID, Passcode: s.cfg.Session.Passcode}
	if !creds.Complete() {
		s.logger.Info("no session credentials configured; waiting for login")
		return nil
	}
	return s.login(creds)
}

func (s *Server) login(creds credentials.Credentials) error {
	if s.mgr == nil {
		mgr, err := session.NewManager(creds, s.opts, s.deps)
		if err != nil {
			return err
		}
		s.mgr = mgr
	} else {
		if s.mgr.Active() {
			s.mgr.DisconnectAll()
		}
		if err := s.mgr.Login(creds); err != nil {
			return err
		}
		s.mgr.RefreshDevices()
	}
	s.mgr.Start()
	s.logger.Infof("logged in to session %s", creds.SessionID)
	return s.restoreLayout()
}

// restoreLayout brings up the configured preset, else the configured
// recorders, else one recorder on the default device.
func (s *Server) restoreLayout() error {
	if name := s.cfg.Session.Preset; name != "" {
		p, err := s.presets.Get(name)
		if err == nil {
			return s.mgr.ApplyPreset(p.Configs())
		}
		s.logger.Warnf("startup preset %q: %v", name, err)
	}
	if len(s.cfg.Recorders) == 0 {
		_, err := s.mgr.AddRecorder(session.RecorderConfig{})
		return err
	}
	for _, rc := range s.cfg.Recorders {
		_, err := s.mgr.AddRecorder(session.RecorderConfig{
			Name:      rc.Name,
			Language:  rc.Language,
			DeviceID:  rc.DeviceID,
			Muted:     rc.Muted,
			Collapsed: rc.Collapsed,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) handleFinal(p session.FinalPhrase) {
	s.recordTranscript(p)
	s.enqueueHook(p)
}

func (s *Server) recordTranscript(p session.FinalPhrase) {
	if !s.cfg.Transcripts.Enabled {
		return
	}
	entry := control.Transcript{
		Speaker:   p.Speaker,
		Language:  p.Language,
		Text:      p.Text,
		Timestamp: p.Time,
	}
	s.transcriptsMu.Lock()
	defer s.transcriptsMu.Unlock()
	s.transcripts = append(s.transcripts, entry)
	if len(s.transcripts) > s.cfg.UI.StatusTail {
		s.transcripts = s.transcripts[len(s.transcripts)-s.cfg.UI.StatusTail:]
	}
	// append to file
	f, err := os.OpenFile(s.cfg.Paths.TranscriptPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err == nil {
		if _, err := fmt.Fprintf(f, "%s\t%s\t%s\t%s\n", entry.Timestamp.Format(time.RFC3339), entry.Speaker, entry.Language, entry.Text); err != nil {
			s.logger.Warnf("write transcript: %v", err)
		}
		_ = f.Close()
	}
}

func (s *Server) copyTranscripts() []control.Transcript {
	s.transcriptsMu.Lock()
	defer s.transcriptsMu.Unlock()
	out := make([]control.Transcript, len(s.transcripts))
	copy(out, s.transcripts)
	return out
}

func (s *Server) controlLoop(ctx context.Context) error {
	ln, err := net.Listen("unix", s.cfg.Paths.SocketPath)
	if err != nil {
		return fmt.Errorf("control listen: %w", err)
	}
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Errorf("control accept: %v", err)
			continue
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer func() {
		if err := conn.Close(); err != nil && ctx.Err() == nil {
			s.logger.Warnf("control connection close: %v", err)
		}
	}()
	sc := bufio.NewScanner(conn)
	if !sc.Scan() {
		return
	}
	var req control.Request
	if err := json.Unmarshal(sc.Bytes(), &req); err != nil {
		_ = json.NewEncoder(conn).Encode(control.SimpleResponse{Message: "bad request"})
		return
	}
	reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_ = json.NewEncoder(conn).Encode(s.handle(reqCtx, req))
}
