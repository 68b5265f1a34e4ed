package session

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/model"
)

type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(c string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, c)
}

func (l *callLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

func (l *callLog) count(c string) int {
	n := 0
	for _, x := range l.list() {
		if x == c {
			n++
		}
	}
	return n
}

type fakeBackend struct {
	log *callLog

	exam      *model.Exam
	questions []model.Question

	fetchErr  error
	startErr  error
	submitErr error
	finishErr []error

	submitGate chan struct{}

	mu        sync.Mutex
	submitted [][]model.AnswerItem
}

func (b *fakeBackend) FetchExam(context.Context, string) (*model.Exam, error) {
	b.log.add("fetch_exam")
	if b.fetchErr != nil {
		return nil, b.fetchErr
	}
	return b.exam, nil
}

func (b *fakeBackend) FetchQuestions(context.Context, string) ([]model.Question, error) {
	b.log.add("fetch_questions")
	return b.questions, nil
}

func (b *fakeBackend) StartSession(context.Context, string) (model.SessionHandle, error) {
	b.log.add("start_session")
	if b.startErr != nil {
		return "", b.startErr
	}
	return "sess-1", nil
}

func (b *fakeBackend) SubmitAnswers(_ context.Context, _ string, answers []model.AnswerItem) error {
	if b.submitGate != nil {
		<-b.submitGate
	}
	b.log.add("submit_answers")
	b.mu.Lock()
	defer b.mu.Unlock()
	b.submitted = append(b.submitted, answers)
	return b.submitErr
}

func (b *fakeBackend) FinishSession(context.Context, model.SessionHandle) error {
	b.log.add("finish_session")
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.finishErr) > 0 {
		err := b.finishErr[0]
		b.finishErr = b.finishErr[1:]
		return err
	}
	return nil
}

type fakeScreen struct{ log *callLog }

func (s *fakeScreen) RequestFullscreen(context.Context) error {
	s.log.add("fullscreen_enter")
	return nil
}

func (s *fakeScreen) ExitFullscreen(context.Context) error {
	s.log.add("fullscreen_exit")
	return nil
}

type fakeNavigator struct {
	log     *callLog
	mu      sync.Mutex
	notices []*model.Notice
}

func (n *fakeNavigator) ToExamList(notice *model.Notice) {
	n.log.add("navigate")
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
}

func (n *fakeNavigator) last() *model.Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.notices) == 0 {
		return nil
	}
	return n.notices[len(n.notices)-1]
}

type fakeConfirmer struct {
	answer bool
	block  bool
	calls  int
	mu     sync.Mutex
}

func (f *fakeConfirmer) ConfirmSubmit(ctx context.Context) (bool, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return false, ctx.Err()
	}
	return f.answer, nil
}

type fakeTimer struct {
	log      *callLog
	mu       sync.Mutex
	minutes  int
	guard    func() bool
	onExpire func()
}

func (f *fakeTimer) Start(minutes int, guard func() bool, onExpire func()) {
	f.log.add("timer_start")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.minutes, f.guard, f.onExpire = minutes, guard, onExpire
}

func (f *fakeTimer) Stop()          { f.log.add("timer_stop") }
func (f *fakeTimer) Remaining() int { return 42 }

func (f *fakeTimer) expire() {
	f.mu.Lock()
	fn := f.onExpire
	f.mu.Unlock()
	fn()
}

type fakeRecorder struct {
	log      *callLog
	startErr error
	state    RecorderState
}

func (f *fakeRecorder) Start(context.Context, model.SessionHandle) error {
	f.log.add("recorder_start")
	if f.startErr != nil {
		f.state = RecorderCaptureUnavailable
		return f.startErr
	}
	f.state = RecorderCapturing
	return nil
}

func (f *fakeRecorder) Stop(context.Context) {
	f.log.add("recorder_stop")
	if f.state == RecorderCapturing {
		f.state = RecorderUploading
	}
}

func (f *fakeRecorder) State() RecorderState { return f.state }

type harness struct {
	log       *callLog
	backend   *fakeBackend
	nav       *fakeNavigator
	notes     *fakeNotifier
	confirmer *fakeConfirmer
	timer     *fakeTimer
	recorder  *fakeRecorder
	reporter  *fakeReporter
	monitor   *IntegrityMonitor
	ctrl      *Controller
	states    []State
}

func newHarness(t *testing.T, autoSubmit bool) *harness {
	t.Helper()
	log := &callLog{}
	h := &harness{
		log: log,
		backend: &fakeBackend{
			log:  log,
			exam: &model.Exam{ID: "7", Title: "Matematika", Duration: 90},
			questions: []model.Question{
				{ID: "q2", Question: "Jelaskan", Type: model.QuestionTypeEssay, Index: 1},
				{ID: "q1", Question: "2+2", Type: model.QuestionTypeMultipleChoice, Index: 2, Options: []model.Option{
					{Type: model.OptionTypeText, Value: "3"},
					{Type: model.OptionTypeText, Value: "4"},
				}},
			},
		},
		nav:       &fakeNavigator{log: log},
		notes:     &fakeNotifier{},
		confirmer: &fakeConfirmer{answer: true},
		timer:     &fakeTimer{log: log},
		recorder:  &fakeRecorder{log: log, state: RecorderIdle},
		reporter:  &fakeReporter{},
	}
	h.monitor = NewIntegrityMonitor(h.reporter, h.notes, time.Second, zerolog.Nop())
	h.ctrl = NewController(Options{
		ExamID:             "7",
		AutoSubmitOnExpiry: autoSubmit,
		OnStateChange:      func(s State) { h.states = append(h.states, s) },
	}, Deps{
		Backend:   h.backend,
		Screen:    &fakeScreen{log: log},
		Navigator: h.nav,
		Notifier:  h.notes,
		Confirmer: h.confirmer,
		Timer:     h.timer,
		Monitor:   h.monitor,
		Recorder:  h.recorder,
	}, zerolog.Nop())
	return h
}

func (h *harness) begin(t *testing.T) {
	t.Helper()
	if err := h.ctrl.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := h.ctrl.Begin(context.Background()); err != nil {
		t.Fatalf("begin: %v", err)
	}
}

func TestControllerHappyPath(t *testing.T) {
	h := newHarness(t, false)
	h.begin(t)

	if h.ctrl.State() != StateInProgress {
		t.Fatalf("state: %s", h.ctrl.State())
	}
	if h.timer.minutes != 90 {
		t.Fatalf("timer started with %d minutes", h.timer.minutes)
	}
	v := h.ctrl.View()
	if v.Questions[0].ID != "q1" {
		t.Fatalf("multiple choice should come first: %+v", v.Questions)
	}

	if err := h.ctrl.SetAnswer("q1", model.SelectionAnswer("4")); err != nil {
		t.Fatal(err)
	}
	if err := h.ctrl.SetAnswer("q2", model.TextAnswer("karena")); err != nil {
		t.Fatal(err)
	}
	if err := h.ctrl.Submit(context.Background()); err != nil {
		t.Fatalf("submit: %v", err)
	}

	if h.ctrl.State() != StateCompleted {
		t.Fatalf("state: %s", h.ctrl.State())
	}
	want := []string{
		"fetch_exam", "fetch_questions",
		"start_session", "fullscreen_enter", "recorder_start", "timer_start",
		"submit_answers", "finish_session", "fullscreen_exit", "recorder_stop", "timer_stop",
		"navigate",
	}
	if got := h.log.list(); !reflect.DeepEqual(got, want) {
		t.Fatalf("call order:\n got %v\nwant %v", got, want)
	}
	wantAnswers := []model.AnswerItem{{QuestionID: "q1", Answer: "4"}, {QuestionID: "q2", Answer: "karena"}}
	if !reflect.DeepEqual(h.backend.submitted[0], wantAnswers) {
		t.Fatalf("payload: %+v", h.backend.submitted[0])
	}
	if h.nav.last() != nil {
		t.Fatal("completed exam navigates without a notice")
	}
	if !h.notes.has("Ujian Terkirim!") {
		t.Fatal("missing success notice")
	}
	wantStates := []State{StateNotStarted, StateInProgress, StateSubmitting, StateCompleted}
	if !reflect.DeepEqual(h.states, wantStates) {
		t.Fatalf("states: %v", h.states)
	}
}

func TestControllerSubmitCancelled(t *testing.T) {
	h := newHarness(t, false)
	h.begin(t)
	h.confirmer.answer = false

	err := h.ctrl.Submit(context.Background())
	if !errors.Is(err, ErrSubmitCancelled) {
		t.Fatalf("err: %v", err)
	}
	if h.ctrl.State() != StateInProgress {
		t.Fatalf("state: %s", h.ctrl.State())
	}
	if h.log.count("submit_answers") != 0 {
		t.Fatal("cancelled submission reached the backend")
	}
}

func TestControllerExpiryWithoutAutoSubmit(t *testing.T) {
	h := newHarness(t, false)
	h.begin(t)
	_ = h.ctrl.SetAnswer("q1", model.SelectionAnswer("3"))

	h.timer.expire()

	if h.ctrl.State() != StateExpired {
		t.Fatalf("state: %s", h.ctrl.State())
	}
	if h.log.count("submit_answers") != 0 {
		t.Fatal("answers submitted without auto-submit")
	}
	for _, c := range []string{"fullscreen_exit", "recorder_stop", "timer_stop", "navigate"} {
		if h.log.count(c) != 1 {
			t.Fatalf("%s called %d times", c, h.log.count(c))
		}
	}
	if n := h.nav.last(); n == nil || n.Title != "Waktu Habis!" {
		t.Fatalf("navigate notice: %+v", n)
	}
	if err := h.ctrl.SetAnswer("q1", model.SelectionAnswer("4")); !errors.Is(err, ErrNotInProgress) {
		t.Fatalf("answer after expiry: %v", err)
	}
	if err := h.ctrl.Submit(context.Background()); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("submit after expiry: %v", err)
	}
}

func TestControllerExpiryAutoSubmits(t *testing.T) {
	h := newHarness(t, true)
	h.begin(t)
	_ = h.ctrl.SetAnswer("q2", model.TextAnswer("sebagian"))

	h.timer.expire()

	if h.ctrl.State() != StateExpired {
		t.Fatalf("state: %s", h.ctrl.State())
	}
	if len(h.backend.submitted) != 1 || h.backend.submitted[0][0].Answer != "sebagian" {
		t.Fatalf("submitted: %+v", h.backend.submitted)
	}
	if h.log.count("finish_session") != 1 {
		t.Fatal("session not finished")
	}
}

func TestControllerExpiryAutoSubmitFailureStillTearsDown(t *testing.T) {
	h := newHarness(t, true)
	h.begin(t)
	h.backend.submitErr = errors.New("offline")

	h.timer.expire()

	if h.ctrl.State() != StateExpired {
		t.Fatalf("state: %s", h.ctrl.State())
	}
	if h.log.count("recorder_stop") != 1 || h.log.count("navigate") != 1 {
		t.Fatalf("teardown incomplete: %v", h.log.list())
	}
}

func TestControllerNoViolationReportsWhileSubmitting(t *testing.T) {
	h := newHarness(t, false)
	h.begin(t)
	h.backend.submitGate = make(chan struct{})

	done := make(chan error, 1)
	go func() { done <- h.ctrl.Submit(context.Background()) }()

	deadline := time.Now().Add(time.Second)
	for h.ctrl.State() != StateSubmitting && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if h.ctrl.State() != StateSubmitting {
		t.Fatalf("state: %s", h.ctrl.State())
	}

	if v := h.ctrl.Signal(model.SignalBlur); v.Reported {
		t.Fatal("violation reported during submission")
	}
	if h.timer.guard() {
		t.Fatal("countdown guard must be false during submission")
	}

	close(h.backend.submitGate)
	if err := <-done; err != nil {
		t.Fatalf("submit: %v", err)
	}
	h.monitor.Wait()
	if h.reporter.count() != 0 {
		t.Fatalf("reports: %d", h.reporter.count())
	}
}

func TestControllerViolationWhileInProgress(t *testing.T) {
	h := newHarness(t, false)
	h.begin(t)

	if v := h.ctrl.Signal(model.SignalHidden); !v.Reported {
		t.Fatal("expected report")
	}
	h.monitor.Wait()
	if h.reporter.count() != 1 || h.reporter.handles[0] != "sess-1" {
		t.Fatalf("reports: %+v", h.reporter.handles)
	}
	if h.ctrl.View().Violations != 1 {
		t.Fatal("view should count the violation")
	}
}

func TestControllerStartFailureStartsNothing(t *testing.T) {
	h := newHarness(t, false)
	h.backend.startErr = errors.New("403")
	if err := h.ctrl.Load(context.Background()); err != nil {
		t.Fatal(err)
	}

	err := h.ctrl.Begin(context.Background())
	if !errors.Is(err, ErrStartFailed) {
		t.Fatalf("err: %v", err)
	}
	if h.ctrl.State() != StateNotStarted {
		t.Fatalf("state: %s", h.ctrl.State())
	}
	for _, c := range []string{"fullscreen_enter", "recorder_start", "timer_start"} {
		if h.log.count(c) != 0 {
			t.Fatalf("%s ran after failed start", c)
		}
	}
	if v := h.ctrl.Signal(model.SignalBlur); v.Reported {
		t.Fatal("monitor attached after failed start")
	}

	h.backend.startErr = nil
	if err := h.ctrl.Begin(context.Background()); err != nil {
		t.Fatalf("retry begin: %v", err)
	}
	if h.ctrl.State() != StateInProgress {
		t.Fatalf("state after retry: %s", h.ctrl.State())
	}
}

func TestControllerLoadFailure(t *testing.T) {
	h := newHarness(t, false)
	h.backend.fetchErr = errors.New("404")

	if err := h.ctrl.Load(context.Background()); !errors.Is(err, ErrLoadFailed) {
		t.Fatalf("err: %v", err)
	}
	if h.ctrl.State() != StateError {
		t.Fatalf("state: %s", h.ctrl.State())
	}
	if n := h.nav.last(); n == nil || n.Message != "Gagal memuat ujian" {
		t.Fatalf("navigate notice: %+v", n)
	}
	if err := h.ctrl.Begin(context.Background()); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("begin from error: %v", err)
	}
}

func TestControllerSubmitRetryAfterFinishFailure(t *testing.T) {
	h := newHarness(t, false)
	h.begin(t)
	h.backend.finishErr = []error{errors.New("502")}
	_ = h.ctrl.SetAnswer("q1", model.SelectionAnswer("4"))

	if err := h.ctrl.Submit(context.Background()); !errors.Is(err, ErrSubmitFailed) {
		t.Fatalf("first submit: %v", err)
	}
	if h.ctrl.State() != StateSubmitting {
		t.Fatalf("state: %s", h.ctrl.State())
	}
	v := h.ctrl.View()
	if !v.Retryable || v.LastNotice == nil || !v.LastNotice.Retryable {
		t.Fatalf("view should offer retry: %+v", v)
	}
	if h.log.count("recorder_stop") != 0 {
		t.Fatal("recorder stopped before a successful submission")
	}

	if err := h.ctrl.Submit(context.Background()); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if h.ctrl.State() != StateCompleted {
		t.Fatalf("state: %s", h.ctrl.State())
	}
	if h.log.count("submit_answers") != 1 {
		t.Fatal("answers resent on retry")
	}
	if h.log.count("finish_session") != 2 {
		t.Fatalf("finish calls: %d", h.log.count("finish_session"))
	}
	if h.confirmer.calls != 1 {
		t.Fatalf("retry asked for confirmation again: %d", h.confirmer.calls)
	}
}

func TestControllerExpiryCancelsPendingConfirmation(t *testing.T) {
	h := newHarness(t, false)
	h.begin(t)
	h.confirmer.block = true

	done := make(chan error, 1)
	go func() { done <- h.ctrl.Submit(context.Background()) }()

	deadline := time.Now().Add(time.Second)
	for {
		h.confirmer.mu.Lock()
		n := h.confirmer.calls
		h.confirmer.mu.Unlock()
		if n == 1 || time.Now().After(deadline) {
			break
		}
		time.Sleep(time.Millisecond)
	}

	h.timer.expire()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("submit should fail once time is up")
		}
	case <-time.After(time.Second):
		t.Fatal("pending confirmation was not cancelled")
	}
	if h.ctrl.State() != StateExpired {
		t.Fatalf("state: %s", h.ctrl.State())
	}
	if h.log.count("submit_answers") != 0 {
		t.Fatal("expired exam submitted through the stale confirmation")
	}
}

func TestControllerSetAnswerValidation(t *testing.T) {
	h := newHarness(t, false)
	if err := h.ctrl.SetAnswer("q1", model.SelectionAnswer("4")); !errors.Is(err, ErrNotInProgress) {
		t.Fatalf("before start: %v", err)
	}
	h.begin(t)

	cases := []struct {
		id   model.ID
		ans  model.Answer
		want error
	}{
		{"q9", model.TextAnswer("x"), ErrUnknownQuestion},
		{"q1", model.TextAnswer("4"), ErrInvalidAnswer},
		{"q1", model.SelectionAnswer("5"), ErrInvalidAnswer},
		{"q2", model.SelectionAnswer("a"), ErrInvalidAnswer},
		{"q1", model.SelectionAnswer("3"), nil},
		{"q2", model.TextAnswer(""), nil},
	}
	for _, tc := range cases {
		if err := h.ctrl.SetAnswer(tc.id, tc.ans); !errors.Is(err, tc.want) {
			t.Fatalf("%s %+v: got %v, want %v", tc.id, tc.ans, err, tc.want)
		}
	}
}

func TestControllerRecorderFailureWarnsAndContinues(t *testing.T) {
	h := newHarness(t, false)
	h.recorder.startErr = errors.New("no camera")
	h.begin(t)

	if h.ctrl.State() != StateInProgress {
		t.Fatalf("state: %s", h.ctrl.State())
	}
	if !h.notes.has("Kamera tidak tersedia") {
		t.Fatal("missing camera warning")
	}
	if h.ctrl.View().Recorder != RecorderCaptureUnavailable {
		t.Fatal("view should expose recorder state")
	}
}

func TestControllerViewBeforeStart(t *testing.T) {
	h := newHarness(t, false)
	if err := h.ctrl.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	v := h.ctrl.View()
	if v.State != StateNotStarted || v.Remaining != 90*60 || v.RemainingDisplay != "90:00" {
		t.Fatalf("view: %+v", v)
	}
}

func TestControllerCloseTearsDownLiveSession(t *testing.T) {
	h := newHarness(t, false)
	h.begin(t)

	h.ctrl.Close(context.Background())
	h.ctrl.Close(context.Background())

	if h.log.count("recorder_stop") != 1 {
		t.Fatalf("recorder stops: %d", h.log.count("recorder_stop"))
	}
	if v := h.ctrl.Signal(model.SignalBlur); v.Reported {
		t.Fatal("monitor still attached after close")
	}
}

func TestControllerSubmitRetryAfterAnswersFailure(t *testing.T) {
	h := newHarness(t, false)
	h.begin(t)
	_ = h.ctrl.SetAnswer("q1", model.SelectionAnswer("4"))
	h.backend.submitErr = errors.New("offline")

	if err := h.ctrl.Submit(context.Background()); !errors.Is(err, ErrSubmitFailed) {
		t.Fatalf("first submit: %v", err)
	}
	if h.ctrl.State() != StateSubmitting {
		t.Fatalf("state: %s", h.ctrl.State())
	}
	for _, step := range []string{"finish_session", "fullscreen_exit", "recorder_stop", "timer_stop", "navigate"} {
		if n := h.log.count(step); n != 0 {
			t.Fatalf("%s ran after the answers failed: %d", step, n)
		}
	}

	h.backend.submitErr = nil
	if err := h.ctrl.Submit(context.Background()); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if h.ctrl.State() != StateCompleted {
		t.Fatalf("state: %s", h.ctrl.State())
	}
	if h.log.count("submit_answers") != 2 || h.log.count("finish_session") != 1 {
		t.Fatalf("calls: %v", h.log.list())
	}
	if h.confirmer.calls != 1 {
		t.Fatalf("retry asked for confirmation again: %d", h.confirmer.calls)
	}
}

func TestControllerAnswerKindFollowsQuestion(t *testing.T) {
	h := newHarness(t, false)
	h.begin(t)

	if err := h.ctrl.SetAnswer("q2", model.Answer{Value: "uraian"}); err != nil {
		t.Fatalf("essay without kind: %v", err)
	}
	if err := h.ctrl.SetAnswer("q1", model.Answer{Value: "4"}); err != nil {
		t.Fatalf("choice without kind: %v", err)
	}
	answers := h.ctrl.View().Answers
	if answers["q2"] != model.TextAnswer("uraian") || answers["q1"] != model.SelectionAnswer("4") {
		t.Fatalf("answers: %+v", answers)
	}
}
