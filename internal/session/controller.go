package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/auth"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// Deps are the collaborators a Controller sequences.
type Deps struct {
	Backend   Backend
	Screen    Screen
	Navigator Navigator
	Notifier  Notifier
	Confirmer Confirmer
	Timer     Timer
	Monitor   Monitor
	Recorder  Recorder
}

// Options configure a Controller.
type Options struct {
	ExamID string
	Auth   *auth.Context
	// AutoSubmitOnExpiry sends whatever answers exist when time runs out.
	AutoSubmitOnExpiry bool
	// OnStateChange is called after every transition, outside any lock.
	OnStateChange func(State)
}

// View is a read-only snapshot of a session for the shell.
type View struct {
	State            State                     `json:"state"`
	ExamID           string                    `json:"exam_id"`
	Exam             *model.Exam               `json:"exam,omitempty"`
	Questions        []model.Question          `json:"questions"`
	Answers          map[model.ID]model.Answer `json:"answers"`
	SessionID        model.SessionHandle       `json:"session_id,omitempty"`
	Remaining        int                       `json:"remaining_seconds"`
	RemainingDisplay string                    `json:"remaining_display"`
	Violations       int                       `json:"violations"`
	Recorder         RecorderState             `json:"recorder"`
	Student          string                    `json:"student,omitempty"`
	LastNotice       *model.Notice             `json:"last_notice,omitempty"`
	Retryable        bool                      `json:"retryable"`
}

// Controller is the proctored exam session state machine.
//
// mu guards the fields below it; seq serializes the load, start, submit
// and expiry sequences so their steps never interleave.
type Controller struct {
	examID        string
	auth          *auth.Context
	autoSubmit    bool
	onStateChange func(State)
	deps          Deps
	answers       *AnswerStore
	log           zerolog.Logger

	seq sync.Mutex

	mu            sync.Mutex
	state         State
	exam          *model.Exam
	questions     []model.Question
	index         map[model.ID]model.Question
	handle        model.SessionHandle
	answersSent   bool
	finished      bool
	retryable     bool
	closed        bool
	lastNotice    *model.Notice
	confirmCancel context.CancelFunc
}

// NewController creates a controller in the LOADING state.
func NewController(opts Options, deps Deps, log zerolog.Logger) *Controller {
	l := log.With().Str("component", "session_controller").Str("exam_id", opts.ExamID)
	if opts.Auth != nil {
		l = l.Str("student", opts.Auth.Subject())
	}
	return &Controller{
		examID:        opts.ExamID,
		auth:          opts.Auth,
		autoSubmit:    opts.AutoSubmitOnExpiry,
		onStateChange: opts.OnStateChange,
		deps:          deps,
		answers:       NewAnswerStore(),
		log:           l.Logger(),
		state:         StateLoading,
	}
}

// ExamID returns the exam this controller serves.
func (c *Controller) ExamID() string { return c.examID }

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// InProgress is the guard handed to the countdown and the monitor.
func (c *Controller) InProgress() bool {
	return c.State() == StateInProgress
}

func (c *Controller) transition(to State) error {
	c.mu.Lock()
	from := c.state
	if !CanTransition(from, to) {
		c.mu.Unlock()
		return transitionError(from, to)
	}
	c.state = to
	c.mu.Unlock()

	c.log.Info().Str("from", string(from)).Str("to", string(to)).Msg("Session state changed")
	if c.onStateChange != nil {
		c.onStateChange(to)
	}
	return nil
}

func (c *Controller) notify(n model.Notice) {
	c.mu.Lock()
	c.lastNotice = &n
	c.mu.Unlock()
	c.deps.Notifier.Notify(n)
}

// Load fetches the exam and its questions. Any failure is final for this
// controller: it moves to ERROR and sends the student back to the list.
func (c *Controller) Load(ctx context.Context) error {
	c.seq.Lock()
	defer c.seq.Unlock()

	if s := c.State(); s != StateLoading {
		return transitionError(s, StateNotStarted)
	}

	exam, questions, err := c.fetch(ctx)
	if err != nil {
		c.log.Error().Err(err).Msg("Failed to load exam")
		_ = c.transition(StateError)
		notice := model.Notice{Level: model.NoticeError, Title: "Error", Message: "Gagal memuat ujian"}
		c.notify(notice)
		c.deps.Navigator.ToExamList(&notice)
		return fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}

	sorted := model.SortForDisplay(questions)
	index := make(map[model.ID]model.Question, len(sorted))
	for _, q := range sorted {
		index[q.ID] = q
	}

	c.mu.Lock()
	c.exam = exam
	c.questions = sorted
	c.index = index
	c.mu.Unlock()

	c.log.Info().
		Str("title", exam.Title).
		Int("duration_minutes", int(exam.Duration)).
		Int("questions", len(sorted)).
		Msg("Exam loaded")

	return c.transition(StateNotStarted)
}

func (c *Controller) fetch(ctx context.Context) (*model.Exam, []model.Question, error) {
	exam, err := c.deps.Backend.FetchExam(ctx, c.examID)
	if err != nil {
		return nil, nil, err
	}
	questions, err := c.deps.Backend.FetchQuestions(ctx, c.examID)
	if err != nil {
		return nil, nil, err
	}
	for _, q := range questions {
		if err := q.Validate(); err != nil {
			return nil, nil, fmt.Errorf("invalid question set: %w", err)
		}
	}
	return exam, questions, nil
}

// Begin starts the exam: session handle, fullscreen, recorder, countdown,
// monitor, in that order. If the session cannot be opened nothing else
// runs and the controller stays NOT_STARTED so the student can try again.
func (c *Controller) Begin(ctx context.Context) error {
	c.seq.Lock()
	defer c.seq.Unlock()

	if s := c.State(); s != StateNotStarted {
		return transitionError(s, StateInProgress)
	}

	if c.auth != nil {
		if err := c.auth.Valid(); err != nil {
			c.notify(model.Notice{Level: model.NoticeError, Title: "Error", Message: "Sesi login telah berakhir. Silakan login kembali."})
			return fmt.Errorf("%w: %w", ErrStartFailed, err)
		}
	}

	// 1. Session handle.
	handle, err := c.deps.Backend.StartSession(ctx, c.examID)
	if err != nil {
		c.log.Error().Err(err).Msg("Failed to start exam session")
		c.notify(model.Notice{Level: model.NoticeError, Title: "Error", Message: "Tidak bisa memulai sesi ujian", Retryable: true})
		return fmt.Errorf("%w: %w", ErrStartFailed, err)
	}

	c.mu.Lock()
	c.handle = handle
	duration := int(c.exam.Duration)
	c.mu.Unlock()

	if err := c.transition(StateInProgress); err != nil {
		return err
	}
	c.log = c.log.With().Str("session_id", handle.String()).Logger()

	// 2. Fullscreen.
	if err := c.deps.Screen.RequestFullscreen(ctx); err != nil {
		c.log.Warn().Err(err).Msg("Fullscreen request failed")
	}

	// 3. Recorder. The capture outlives this request.
	if err := c.deps.Recorder.Start(context.WithoutCancel(ctx), handle); err != nil {
		c.notify(model.Notice{
			Level:   model.NoticeWarning,
			Title:   "Kamera tidak tersedia",
			Message: "Rekaman pengawasan tidak dapat dimulai. Ujian tetap dapat dilanjutkan.",
		})
	}

	// 4. Countdown.
	c.deps.Timer.Start(duration, c.InProgress, c.expire)

	// 5. Monitor.
	c.deps.Monitor.Start(handle, c.InProgress)

	return nil
}

// SetAnswer records an answer while the exam is in progress. An answer
// without a kind takes the kind of its question.
func (c *Controller) SetAnswer(questionID model.ID, answer model.Answer) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateInProgress {
		return ErrNotInProgress
	}
	q, ok := c.index[questionID]
	if !ok {
		return ErrUnknownQuestion
	}
	if answer.Kind == "" {
		answer.Kind = kindFor(q.Type)
	}
	switch q.Type {
	case model.QuestionTypeMultipleChoice:
		if answer.Kind != model.AnswerKindSelection || !q.HasOption(answer.Value) {
			return ErrInvalidAnswer
		}
	case model.QuestionTypeEssay:
		if answer.Kind != model.AnswerKindText {
			return ErrInvalidAnswer
		}
	}

	c.answers.Set(questionID, answer)
	return nil
}

func kindFor(t model.QuestionType) model.AnswerKind {
	if t == model.QuestionTypeEssay {
		return model.AnswerKindText
	}
	return model.AnswerKindSelection
}

// Submit asks for confirmation and then runs the submit sequence. Called
// again while SUBMITTING it retries without asking, skipping the answers
// call if that already went through.
func (c *Controller) Submit(ctx context.Context) error {
	switch s := c.State(); s {
	case StateInProgress:
		ok, err := c.confirm(ctx)
		if err != nil {
			return fmt.Errorf("confirm submission: %w", err)
		}
		if !ok {
			c.notify(model.Notice{
				Level:   model.NoticeInfo,
				Title:   "Dibatalkan",
				Message: "Kamu bisa memeriksa kembali jawaban sebelum mengirim.",
			})
			return ErrSubmitCancelled
		}
	case StateSubmitting:
	default:
		return transitionError(s, StateSubmitting)
	}

	c.seq.Lock()
	defer c.seq.Unlock()

	switch s := c.State(); s {
	case StateInProgress:
		if err := c.transition(StateSubmitting); err != nil {
			return err
		}
	case StateSubmitting:
		c.log.Info().Msg("Retrying submission")
	default:
		// Time ran out while the confirmation was open.
		return transitionError(s, StateSubmitting)
	}

	c.notify(model.Notice{Level: model.NoticeInfo, Title: "Mengirim jawaban...", Message: "Mohon tunggu sebentar."})

	if err := c.sendSubmission(ctx); err != nil {
		c.log.Error().Err(err).Msg("Submission failed")
		c.mu.Lock()
		c.retryable = true
		c.mu.Unlock()
		c.notify(model.Notice{Level: model.NoticeError, Title: "Error", Message: "Gagal menyimpan jawaban", Retryable: true})
		return fmt.Errorf("%w: %w", ErrSubmitFailed, err)
	}

	c.teardown(ctx)

	c.mu.Lock()
	c.retryable = false
	c.mu.Unlock()
	if err := c.transition(StateCompleted); err != nil {
		return err
	}

	c.notify(model.Notice{
		Level:   model.NoticeSuccess,
		Title:   "Ujian Terkirim!",
		Message: "Jawaban kamu berhasil dikirim. Terima kasih sudah mengikuti ujian.",
	})
	c.deps.Navigator.ToExamList(nil)
	return nil
}

func (c *Controller) confirm(ctx context.Context) (bool, error) {
	cctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.confirmCancel = cancel
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.confirmCancel = nil
		c.mu.Unlock()
		cancel()
	}()

	return c.deps.Confirmer.ConfirmSubmit(cctx)
}

func (c *Controller) cancelConfirm() {
	c.mu.Lock()
	cancel := c.confirmCancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// sendSubmission runs steps 1 and 2 of the submit sequence, remembering
// which of them already succeeded.
func (c *Controller) sendSubmission(ctx context.Context) error {
	c.mu.Lock()
	sent, finished, handle := c.answersSent, c.finished, c.handle
	c.mu.Unlock()

	if !sent {
		snapshot := c.answers.Snapshot()
		if err := c.deps.Backend.SubmitAnswers(ctx, c.examID, snapshot); err != nil {
			return err
		}
		c.mu.Lock()
		c.answersSent = true
		c.mu.Unlock()
		c.log.Info().Int("answers", len(snapshot)).Msg("Answers submitted")
	}

	if !finished {
		if err := c.deps.Backend.FinishSession(ctx, handle); err != nil {
			return err
		}
		c.mu.Lock()
		c.finished = true
		c.mu.Unlock()
	}
	return nil
}

// teardown restores the window and releases every proctoring resource.
// It runs to completion even when the caller has gone away.
func (c *Controller) teardown(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	if err := c.deps.Screen.ExitFullscreen(ctx); err != nil {
		c.log.Warn().Err(err).Msg("Exit fullscreen failed")
	}
	c.deps.Recorder.Stop(ctx)
	c.deps.Monitor.Stop()
	c.deps.Timer.Stop()
}

// expire is the countdown's expiry callback.
func (c *Controller) expire() {
	c.cancelConfirm()

	c.seq.Lock()
	defer c.seq.Unlock()

	if c.State() != StateInProgress {
		return
	}
	if err := c.transition(StateExpired); err != nil {
		c.log.Error().Err(err).Msg("Expiry transition rejected")
		return
	}

	ctx := context.Background()
	if c.autoSubmit {
		if err := c.sendSubmission(ctx); err != nil {
			c.log.Error().Err(err).Int("answers", c.answers.Len()).Msg("Automatic submission on expiry failed")
			c.notify(model.Notice{Level: model.NoticeError, Title: "Error", Message: "Jawaban gagal terkirim otomatis."})
		}
	}

	c.teardown(ctx)

	notice := model.Notice{Level: model.NoticeWarning, Title: "Waktu Habis!", Message: "Ujian sudah selesai"}
	c.notify(notice)
	c.deps.Navigator.ToExamList(&notice)
}

// Signal forwards a platform signal to the integrity monitor.
func (c *Controller) Signal(sig model.SignalType) Verdict {
	return c.deps.Monitor.Observe(sig)
}

// Close tears down a live session when the agent shuts down. Answers that
// were not submitted are lost.
func (c *Controller) Close(ctx context.Context) {
	c.cancelConfirm()

	c.seq.Lock()
	defer c.seq.Unlock()

	c.mu.Lock()
	skip := c.closed || !c.state.Live()
	c.closed = true
	c.mu.Unlock()
	if skip {
		return
	}
	c.log.Warn().Int("answers", c.answers.Len()).Msg("Agent stopping with a live session, tearing down")
	c.teardown(ctx)
}

// View returns a snapshot for the shell.
func (c *Controller) View() View {
	c.mu.Lock()
	v := View{
		State:      c.state,
		ExamID:     c.examID,
		Exam:       c.exam,
		Questions:  c.questions,
		SessionID:  c.handle,
		LastNotice: c.lastNotice,
		Retryable:  c.retryable,
	}
	c.mu.Unlock()

	if v.Questions == nil {
		v.Questions = []model.Question{}
	}
	v.Answers = c.answers.Answers()
	if c.auth != nil {
		v.Student = c.auth.Claims().Name
	}
	switch {
	case v.State == StateNotStarted && v.Exam != nil:
		v.Remaining = v.Exam.Duration.Seconds()
	case v.State == StateInProgress || v.State == StateSubmitting:
		v.Remaining = c.deps.Timer.Remaining()
	}
	v.RemainingDisplay = FormatRemaining(v.Remaining)
	v.Violations = c.deps.Monitor.Violations()
	v.Recorder = c.deps.Recorder.State()
	return v
}
