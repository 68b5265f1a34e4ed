package session

import (
	"context"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// Backend is the subset of the school backend a session needs.
type Backend interface {
	FetchExam(ctx context.Context, examID string) (*model.Exam, error)
	FetchQuestions(ctx context.Context, examID string) ([]model.Question, error)
	StartSession(ctx context.Context, examID string) (model.SessionHandle, error)
	SubmitAnswers(ctx context.Context, examID string, answers []model.AnswerItem) error
	FinishSession(ctx context.Context, handle model.SessionHandle) error
}

// ViolationReporter delivers integrity violations.
type ViolationReporter interface {
	ReportViolation(ctx context.Context, handle model.SessionHandle) error
}

// EvidenceUploader delivers the session recording.
type EvidenceUploader interface {
	UploadEvidence(ctx context.Context, handle model.SessionHandle, ev *model.Evidence) error
}

// Screen controls the shell's fullscreen lock.
type Screen interface {
	RequestFullscreen(ctx context.Context) error
	ExitFullscreen(ctx context.Context) error
}

// Navigator moves the shell away from the exam page.
type Navigator interface {
	ToExamList(notice *model.Notice)
}

// Notifier surfaces non-blocking notices to the student.
type Notifier interface {
	Notify(notice model.Notice)
}

// Confirmer asks the student to confirm submission. It returns false when
// the student cancels and an error when no answer can be obtained.
type Confirmer interface {
	ConfirmSubmit(ctx context.Context) (bool, error)
}

// Timer is the countdown capability driven by the controller.
type Timer interface {
	Start(durationMinutes int, guard func() bool, onExpire func())
	Stop()
	Remaining() int
}

// Monitor is the integrity monitoring capability.
type Monitor interface {
	Start(handle model.SessionHandle, guard func() bool)
	Stop()
	Observe(sig model.SignalType) Verdict
	Violations() int
}

// Recorder is the evidence capture capability.
type Recorder interface {
	Start(ctx context.Context, handle model.SessionHandle) error
	Stop(ctx context.Context)
	State() RecorderState
}

// Verdict is the monitor's answer to a signal.
type Verdict struct {
	ConfirmUnload bool `json:"confirm_unload"`
	Reported      bool `json:"reported"`
}
