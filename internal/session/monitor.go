package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// violationMessages are the warnings shown for each reportable signal.
var violationMessages = map[model.SignalType]string{
	model.SignalFullscreenExit: "Anda keluar dari fullscreen!",
	model.SignalBlur:           "Jangan tinggalkan halaman ujian!",
	model.SignalHidden:         "Anda tidak boleh berpindah tab!",
}

// IntegrityMonitor turns shell signals into tab-switch violation reports.
// Reports are fire-and-forget: a failed report is logged and dropped.
type IntegrityMonitor struct {
	reporter ViolationReporter
	notifier Notifier
	timeout  time.Duration
	log      zerolog.Logger

	mu         sync.Mutex
	handle     model.SessionHandle
	guard      func() bool
	attached   bool
	violations int

	inflight sync.WaitGroup
}

// NewIntegrityMonitor creates a monitor; timeout bounds each report call.
func NewIntegrityMonitor(reporter ViolationReporter, notifier Notifier, timeout time.Duration, log zerolog.Logger) *IntegrityMonitor {
	return &IntegrityMonitor{
		reporter: reporter,
		notifier: notifier,
		timeout:  timeout,
		log:      log.With().Str("component", "integrity_monitor").Logger(),
	}
}

// Start attaches the monitor to a session. guard must report whether the
// session is still accepting violations.
func (m *IntegrityMonitor) Start(handle model.SessionHandle, guard func() bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handle = handle
	m.guard = guard
	m.attached = true
	m.violations = 0
}

// Stop detaches the monitor. It is safe to call more than once.
func (m *IntegrityMonitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attached = false
}

// Violations returns the number of violations observed since Start.
func (m *IntegrityMonitor) Violations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.violations
}

// Observe handles one platform signal and never blocks on the network.
func (m *IntegrityMonitor) Observe(sig model.SignalType) Verdict {
	m.mu.Lock()
	if !m.attached {
		m.mu.Unlock()
		return Verdict{}
	}
	if sig == model.SignalUnloadAttempt {
		m.mu.Unlock()
		return Verdict{ConfirmUnload: true}
	}
	msg, ok := violationMessages[sig]
	if !ok || (m.guard != nil && !m.guard()) {
		m.mu.Unlock()
		return Verdict{}
	}
	m.violations++
	handle, guard := m.handle, m.guard
	m.mu.Unlock()

	if m.notifier != nil {
		m.notifier.Notify(model.Notice{Level: model.NoticeWarning, Title: "Peringatan!", Message: msg})
	}

	m.inflight.Add(1)
	go m.report(handle, guard, sig)

	return Verdict{Reported: true}
}

func (m *IntegrityMonitor) report(handle model.SessionHandle, guard func() bool, sig model.SignalType) {
	defer m.inflight.Done()

	// The session may have entered submission while this goroutine was scheduled.
	if guard != nil && !guard() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	if err := m.reporter.ReportViolation(ctx, handle); err != nil {
		m.log.Warn().Err(err).
			Str("session_id", handle.String()).
			Str("signal", string(sig)).
			Msg("Violation report dropped")
		return
	}
	m.log.Info().
		Str("session_id", handle.String()).
		Str("signal", string(sig)).
		Msg("Violation reported")
}

// Wait blocks until in-flight reports have finished.
func (m *IntegrityMonitor) Wait() {
	m.inflight.Wait()
}
