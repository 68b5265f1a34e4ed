package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/auth"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/session"
	ws "github.com/stemsi/exstem-proctor/internal/websocket"
)

var (
	// ErrNoActiveExam is returned by session operations before an exam is opened.
	ErrNoActiveExam = errors.New("no exam opened")
	// ErrSessionBusy is returned when opening an exam while another session is live.
	ErrSessionBusy = errors.New("another exam session is in progress")
)

// Backend is everything the kiosk needs from the school backend.
type Backend interface {
	session.Backend
	session.ViolationReporter
	session.EvidenceUploader
	ListTodayExams(ctx context.Context, q model.LobbyQuery) (*model.LobbyPage, error)
}

// KioskConfig holds the knobs applied to every session.
type KioskConfig struct {
	AutoSubmitOnExpiry bool
	ReportTimeout      time.Duration
	DrainTimeout       time.Duration
	// NewTicker overrides the countdown ticker; nil means wall clock.
	NewTicker func(time.Duration) session.Ticker
}

// KioskService owns the single exam session of this workstation and
// builds a fresh controller, countdown, monitor and recorder per exam.
type KioskService struct {
	backend Backend
	hub     *ws.Hub
	devices session.Devices
	auth    *auth.Context
	cfg     KioskConfig
	log     zerolog.Logger

	mu      sync.Mutex
	current *session.Controller
	// proctors of the current exam, then of earlier sessions that may still
	// be reporting or uploading.
	proctors proctors
	retired  []proctors
}

// proctors is the monitor and recorder pair built for one exam.
type proctors struct {
	monitor  *session.IntegrityMonitor
	recorder *session.EvidenceRecorder
}

// idle reports whether the pair never captured, so nothing can be pending.
func (p proctors) idle() bool {
	return p.recorder == nil || p.recorder.State() == session.RecorderIdle
}

// settled reports whether the pair's upload can no longer be in flight.
func (p proctors) settled() bool {
	switch p.recorder.State() {
	case session.RecorderIdle, session.RecorderCaptureUnavailable, session.RecorderCaptureEmpty,
		session.RecorderDone, session.RecorderUploadFailed:
		return true
	}
	return false
}

// NewKioskService creates a new KioskService. devices may be nil when
// capture is disabled.
func NewKioskService(backend Backend, hub *ws.Hub, devices session.Devices, authCtx *auth.Context, cfg KioskConfig, log zerolog.Logger) *KioskService {
	return &KioskService{
		backend: backend,
		hub:     hub,
		devices: devices,
		auth:    authCtx,
		cfg:     cfg,
		log:     log.With().Str("component", "kiosk_service").Logger(),
	}
}

// Lobby returns today's exams for the student.
func (s *KioskService) Lobby(ctx context.Context, q model.LobbyQuery) (*model.LobbyPage, error) {
	page, err := s.backend.ListTodayExams(ctx, q)
	if err != nil {
		return nil, err
	}
	if page.Data == nil {
		page.Data = []model.Exam{}
	}
	return page, nil
}

// Open builds a controller for examID and loads it. An exam can be
// reopened freely until its session is started.
func (s *KioskService) Open(ctx context.Context, examID string) (session.View, error) {
	s.mu.Lock()
	if s.current != nil && s.current.State().Live() {
		s.mu.Unlock()
		return session.View{}, ErrSessionBusy
	}
	ctrl := s.build(examID)
	s.current = ctrl
	s.mu.Unlock()

	s.log.Info().Str("exam_id", examID).Msg("Opening exam")
	if err := ctrl.Load(ctx); err != nil {
		return ctrl.View(), err
	}
	return ctrl.View(), nil
}

func (s *KioskService) build(examID string) *session.Controller {
	opts := []session.CountdownOption{
		session.WithTickObserver(func(remaining int) {
			s.hub.Tick(remaining, session.FormatRemaining(remaining))
		}),
	}
	if s.cfg.NewTicker != nil {
		opts = append(opts, session.WithTicker(s.cfg.NewTicker))
	}
	timer := session.NewCountdown(opts...)
	monitor := session.NewIntegrityMonitor(s.backend, s.hub, s.cfg.ReportTimeout, s.log)
	recorder := session.NewEvidenceRecorder(s.devices, s.backend, s.cfg.DrainTimeout, s.log)

	s.replaceProctors(proctors{monitor: monitor, recorder: recorder})

	return session.NewController(session.Options{
		ExamID:             examID,
		Auth:               s.auth,
		AutoSubmitOnExpiry: s.cfg.AutoSubmitOnExpiry,
		OnStateChange:      func(st session.State) { s.hub.State(string(st)) },
	}, session.Deps{
		Backend:   s.backend,
		Screen:    s.hub,
		Navigator: s.hub,
		Notifier:  s.hub,
		Confirmer: s.hub,
		Timer:     timer,
		Monitor:   monitor,
		Recorder:  recorder,
	}, s.log)
}

// replaceProctors makes next the current pair. The previous pair is kept
// only while its session could still have a report or upload running.
// Callers hold s.mu.
func (s *KioskService) replaceProctors(next proctors) {
	kept := s.retired[:0]
	for _, p := range s.retired {
		if !p.settled() {
			kept = append(kept, p)
		}
	}
	if !s.proctors.idle() {
		kept = append(kept, s.proctors)
	}
	s.retired = kept
	s.proctors = next
}

func (s *KioskService) controller() (*session.Controller, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil, ErrNoActiveExam
	}
	return s.current, nil
}

// View returns the current session snapshot.
func (s *KioskService) View() (session.View, error) {
	ctrl, err := s.controller()
	if err != nil {
		return session.View{}, err
	}
	return ctrl.View(), nil
}

// Start begins the opened exam.
func (s *KioskService) Start(ctx context.Context) (session.View, error) {
	ctrl, err := s.controller()
	if err != nil {
		return session.View{}, err
	}
	if err := ctrl.Begin(ctx); err != nil {
		return ctrl.View(), err
	}
	return ctrl.View(), nil
}

// SetAnswer records one answer.
func (s *KioskService) SetAnswer(questionID model.ID, answer model.Answer) error {
	ctrl, err := s.controller()
	if err != nil {
		return err
	}
	return ctrl.SetAnswer(questionID, answer)
}

// Submit submits the exam, or retries a failed submission.
func (s *KioskService) Submit(ctx context.Context) (session.View, error) {
	ctrl, err := s.controller()
	if err != nil {
		return session.View{}, err
	}
	if err := ctrl.Submit(ctx); err != nil {
		return ctrl.View(), err
	}
	return ctrl.View(), nil
}

// Signal forwards a platform signal. Without an exam it is ignored.
func (s *KioskService) Signal(sig model.SignalType) session.Verdict {
	ctrl, err := s.controller()
	if err != nil {
		return session.Verdict{}
	}
	return ctrl.Signal(sig)
}

// Resolve answers a pending submit confirmation from the shell.
func (s *KioskService) Resolve(confirmed bool) bool {
	return s.hub.Resolve(confirmed)
}

// Shutdown tears down a live session and waits for in-flight violation
// reports and evidence uploads, or ctx.
func (s *KioskService) Shutdown(ctx context.Context) {
	s.mu.Lock()
	ctrl := s.current
	pending := append([]proctors(nil), s.retired...)
	if s.proctors.recorder != nil {
		pending = append(pending, s.proctors)
	}
	s.mu.Unlock()

	if ctrl != nil {
		ctrl.Close(ctx)
	}

	done := make(chan struct{})
	go func() {
		for _, p := range pending {
			p.monitor.Wait()
			p.recorder.Wait()
		}
		close(done)
	}()

	select {
	case <-done:
		s.log.Info().Msg("Pending reports and uploads finished")
	case <-ctx.Done():
		s.log.Warn().Msg("Shutdown deadline reached with uploads still running")
	}
	s.hub.Close()
}
