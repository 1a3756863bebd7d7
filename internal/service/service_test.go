package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-client/internal/gateway"
	"github.com/stemsi/exstem-client/internal/model"
	"github.com/stemsi/exstem-client/internal/proctor"
	"github.com/stemsi/exstem-client/internal/screen"
	"github.com/stemsi/exstem-client/internal/store"
	"github.com/stemsi/exstem-client/internal/testutil"
	"github.com/stemsi/exstem-client/internal/validator"
)

type hub struct {
	mu       sync.Mutex
	handlers map[int]func(proctor.Signal)
	next     int
}

func (h *hub) Subscribe(fn func(proctor.Signal)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.handlers == nil {
		h.handlers = make(map[int]func(proctor.Signal))
	}
	id := h.next
	h.next++
	h.handlers[id] = fn
	return func() {
		h.mu.Lock()
		delete(h.handlers, id)
		h.mu.Unlock()
	}
}

func (h *hub) Send(sig proctor.Signal) {
	h.mu.Lock()
	fns := make([]func(proctor.Signal), 0, len(h.handlers))
	for _, fn := range h.handlers {
		fns = append(fns, fn)
	}
	h.mu.Unlock()
	for _, fn := range fns {
		fn(sig)
	}
}

func (h *hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.handlers)
}

type memJournal struct {
	mu          sync.Mutex
	transitions []string
}

func (j *memJournal) RecordTransition(ctx context.Context, examID int64, from, to string, at time.Time) error {
	j.mu.Lock()
	j.transitions = append(j.transitions, from+">"+to)
	j.mu.Unlock()
	return nil
}

func (j *memJournal) List() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.transitions...)
}

type session struct {
	svc     *ExamService
	backend *testutil.FakeBackend
	signals *hub
	journal *memJournal
}

func newSession(t *testing.T, questions int) *session {
	t.Helper()
	backend := testutil.NewFakeBackend(t)
	backend.SeedQuestions(questions)

	sess := &session{backend: backend, signals: &hub{}, journal: &memJournal{}}
	sess.svc = New(Config{
		PollInterval: 5 * time.Millisecond,
		Proctor:      proctor.Config{Threshold: 4, LogSize: 5, PauseDefault: 15 * time.Second},
		PausePrint:   20 * time.Second,
	}, Deps{
		Backend: gateway.New(backend.URL(), 5*time.Second, zerolog.Nop()),
		Store:   store.New(),
		Screens: screen.NewController(),
		Signals: sess.signals,
		Journal: sess.journal,
	}, zerolog.Nop())
	t.Cleanup(sess.svc.Close)
	return sess
}

func validRequest() model.CreateExamRequest {
	duration := 60
	return model.CreateExamRequest{
		UserName:              "Asha",
		UserEmail:             "asha@example.com",
		Board:                 model.BoardCBSE,
		ClassNum:              10,
		Subject:               "Mathematics",
		DifficultyLevel:       model.DifficultyMedium,
		CustomDurationMinutes: &duration,
	}
}

// start creates and starts an exam, leaving the session on question 0.
func (s *session) start(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	if _, err := s.svc.CreateExam(ctx, validRequest(), nil); err != nil {
		t.Fatalf("CreateExam: %v", err)
	}
	if err := s.svc.StartExam(ctx); err != nil {
		t.Fatalf("StartExam: %v", err)
	}
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestCreateExamValidation(t *testing.T) {
	sess := newSession(t, 3)
	req := validRequest()
	req.UserEmail = "not-an-email"

	_, err := sess.svc.CreateExam(context.Background(), req, nil)
	var ve *validator.ValidationError
	if !errors.As(err, &ve) || !ve.Has("user_email") {
		t.Fatalf("expected user_email validation error, got %v", err)
	}
	if sess.backend.Calls("create") != 0 {
		t.Error("validation failure must not reach the backend")
	}
	if sess.svc.Screens().Current() != screen.Setup {
		t.Errorf("expected setup, got %s", sess.svc.Screens().Current())
	}
	if st := sess.svc.Status(); st.Kind != StatusError {
		t.Errorf("expected error status, got %+v", st)
	}

	if _, err := sess.svc.CreateExam(context.Background(), validRequest(), &File{Name: "syllabus.docx", Body: strings.NewReader("x")}); !errors.Is(err, ErrNotPDF) {
		t.Errorf("expected ErrNotPDF for syllabus, got %v", err)
	}
}

func TestCreateExamBackendFailure(t *testing.T) {
	sess := newSession(t, 3)
	sess.backend.Update(func(f *testutil.FakeBackend) { f.CreateError = "AI service unavailable" })

	if _, err := sess.svc.CreateExam(context.Background(), validRequest(), nil); err == nil {
		t.Fatal("expected error")
	}
	if st := sess.svc.Status(); st.Text != "Error: AI service unavailable" {
		t.Errorf("unexpected status %+v", st)
	}
	if sess.svc.Screens().Current() != screen.Setup {
		t.Error("backend failure must not change screen")
	}
}

func TestFullSession(t *testing.T) {
	sess := newSession(t, 5)
	svc := sess.svc
	ctx := context.Background()

	exam, err := svc.CreateExam(ctx, validRequest(), &File{Name: "Syllabus.PDF", Body: strings.NewReader("%PDF")})
	if err != nil {
		t.Fatalf("CreateExam: %v", err)
	}
	if sess.backend.Calls("syllabus") != 1 || svc.Screens().Current() != screen.Ready {
		t.Fatalf("expected syllabus upload and ready screen")
	}

	if err := svc.StartExam(ctx); err != nil {
		t.Fatalf("StartExam: %v", err)
	}
	if svc.Screens().Current() != screen.Exam || svc.Store().Screen() != screen.Exam {
		t.Fatalf("expected exam screen")
	}
	if svc.Store().Timer() != 3600 {
		t.Errorf("expected 3600s from server, got %d", svc.Store().Timer())
	}
	if !svc.Store().IsVisited(0) {
		t.Error("expected question 0 visited")
	}

	if err := svc.SelectOption("Z"); !errors.Is(err, ErrUnknownOption) {
		t.Errorf("expected ErrUnknownOption, got %v", err)
	}
	if err := svc.SelectOption("B"); err != nil {
		t.Fatalf("SelectOption: %v", err)
	}
	if !svc.Store().IsAnswered(0) {
		t.Error("selecting an option marks answered locally")
	}
	if _, err := svc.SaveAnswer(ctx); err != nil {
		t.Fatalf("SaveAnswer: %v", err)
	}

	if err := svc.Navigate(ctx, 1); err != nil {
		t.Fatalf("Navigate: %v", err)
	}
	if err := svc.SelectChoice(model.ChoiceAlternative); err != nil {
		t.Fatalf("SelectChoice: %v", err)
	}
	if _, err := svc.UploadPDF(ctx, File{Name: "notes.txt", Body: strings.NewReader("x")}); !errors.Is(err, ErrNotPDF) {
		t.Errorf("expected ErrNotPDF, got %v", err)
	}
	if sess.backend.Calls("upload") != 0 {
		t.Error("non-PDF must not be uploaded")
	}
	if _, err := svc.UploadPDF(ctx, File{Name: "work.PDF", Body: strings.NewReader("%PDF-1.4")}); err != nil {
		t.Fatalf("UploadPDF: %v", err)
	}
	if !svc.Store().IsUploaded(1) || !svc.Store().IsAnswered(1) {
		t.Error("upload marks uploaded and answered")
	}
	if d := svc.Draft(); len(d.Files) != 1 || d.Files[0].Filename != "work.PDF" {
		t.Errorf("expected reloaded file list, got %+v", d.Files)
	}

	if err := svc.Navigate(ctx, 4); err != nil {
		t.Fatalf("Navigate: %v", err)
	}
	if err := svc.Previous(ctx); err != nil {
		t.Fatalf("Previous: %v", err)
	}
	if err := svc.Navigate(ctx, 4); err != nil {
		t.Fatalf("Navigate: %v", err)
	}
	if err := svc.Navigate(ctx, -1); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("expected ErrOutOfRange, got %v", err)
	}

	snap := svc.Store().Snapshot()
	wantVisited := []int{0, 1, 3, 4}
	if len(snap.Visited) != len(wantVisited) {
		t.Fatalf("expected visited %v, got %v", wantVisited, snap.Visited)
	}
	for i, v := range wantVisited {
		if snap.Visited[i] != v {
			t.Errorf("expected visited %v, got %v", wantVisited, snap.Visited)
		}
	}

	if err := svc.Next(ctx); err != nil {
		t.Fatalf("Next past last: %v", err)
	}
	if svc.Screens().Current() != screen.Submission {
		t.Fatalf("expected submission, got %s", svc.Screens().Current())
	}
	if svc.Monitor().Status().Active {
		t.Error("leaving the exam screen stops proctoring")
	}

	if _, err := svc.FinalUpload(ctx, 0); !errors.Is(err, ErrNoFiles) {
		t.Errorf("expected ErrNoFiles, got %v", err)
	}
	if _, err := svc.FinalUpload(ctx, 0, File{Name: "sheet.pdf", Body: strings.NewReader("%PDF")}, File{Name: "x.png"}); !errors.Is(err, ErrNotPDF) {
		t.Errorf("expected ErrNotPDF, got %v", err)
	}
	files, err := svc.FinalUpload(ctx, 0, File{Name: "sheet.pdf", Body: strings.NewReader("%PDF")})
	if err != nil || len(files) != 1 {
		t.Fatalf("FinalUpload: %v %v", files, err)
	}
	if st := svc.Status(); st.Text != "1 answer sheet(s) uploaded successfully!" {
		t.Errorf("unexpected status %+v", st)
	}

	if err := svc.Submit(ctx); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if svc.Screens().Current() != screen.Evaluation {
		t.Fatalf("expected evaluation, got %s", svc.Screens().Current())
	}

	ev, err := svc.LoadEvaluation(ctx)
	if err != nil {
		t.Fatalf("LoadEvaluation: %v", err)
	}
	if ev.Report == nil || !strings.Contains(ev.Report.EvaluationReport, "Score") {
		t.Errorf("unexpected report %+v", ev.Report)
	}
	if ev.Summary.Status != model.ExamStatusEvaluated || ev.Summary.ExamID != exam.ID {
		t.Errorf("unexpected summary %+v", ev.Summary)
	}

	if _, err := svc.LoadEvaluation(ctx); err != nil {
		t.Fatalf("second LoadEvaluation: %v", err)
	}
	if sess.backend.Calls("evaluate") != 1 || sess.backend.Calls("report") != 1 {
		t.Errorf("expected stored report on reload, evaluate=%d report=%d",
			sess.backend.Calls("evaluate"), sess.backend.Calls("report"))
	}

	want := []string{"setup>ready", "ready>exam", "exam>submission", "submission>evaluation"}
	got := sess.journal.List()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("expected transitions %v, got %v", want, got)
	}
}

func TestSaveEmptyAnswerNeverCallsBackend(t *testing.T) {
	sess := newSession(t, 3)
	sess.start(t)

	for _, text := range []string{"", "   \n\t"} {
		sess.svc.SetTypedAnswer(text)
		if _, err := sess.svc.SaveAnswer(context.Background()); !errors.Is(err, ErrNoAnswer) {
			t.Errorf("expected ErrNoAnswer for %q, got %v", text, err)
		}
	}
	if sess.backend.Calls("save") != 0 {
		t.Errorf("expected no save calls, got %d", sess.backend.Calls("save"))
	}
	if st := sess.svc.Status(); st.Text != ErrNoAnswer.Error() {
		t.Errorf("unexpected status %+v", st)
	}
}

func TestSaveAndReloadTypedAnswer(t *testing.T) {
	sess := newSession(t, 5)
	sess.start(t)
	svc := sess.svc
	ctx := context.Background()

	if err := svc.Navigate(ctx, 2); err != nil {
		t.Fatalf("Navigate: %v", err)
	}
	svc.SetTypedAnswer("42")
	if _, err := svc.SaveAnswer(ctx); err != nil {
		t.Fatalf("SaveAnswer: %v", err)
	}

	svc.Navigate(ctx, 0)
	if err := svc.Navigate(ctx, 2); err != nil {
		t.Fatalf("Navigate: %v", err)
	}

	d := svc.Draft()
	if d.Typed != "42" || d.Answer == nil || d.Answer.Typed() != "42" {
		t.Errorf("expected reloaded typed answer 42, got %+v", d)
	}
	if !svc.Store().IsAnswered(2) {
		t.Error("expected index 2 answered")
	}
}

func TestStaleAnswerIsDiscarded(t *testing.T) {
	sess := newSession(t, 5)
	sess.start(t)
	svc := sess.svc
	ctx := context.Background()

	stale := "stale"
	gate := make(chan struct{})
	sess.backend.Update(func(f *testutil.FakeBackend) {
		f.Answers[3] = &model.Answer{ID: 900, QuestionID: 3, TypedAnswer: &stale}
		f.AnswerGates[3] = gate
	})

	before := sess.backend.Calls("get_answer")
	done := make(chan error, 1)
	go func() { done <- svc.Navigate(ctx, 2) }()
	waitUntil(t, "blocked answer fetch", func() bool { return sess.backend.Calls("get_answer") > before })

	if err := svc.Navigate(ctx, 3); err != nil {
		t.Fatalf("Navigate: %v", err)
	}
	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("stale Navigate: %v", err)
	}

	d := svc.Draft()
	if d.QuestionID != 4 || d.Typed != "" {
		t.Errorf("stale answer leaked into current draft: %+v", d)
	}
	if svc.Store().IsAnswered(2) {
		t.Error("stale answer must not mark its index answered")
	}
	if svc.Store().CurrentIndex() != 3 {
		t.Errorf("expected current index 3, got %d", svc.Store().CurrentIndex())
	}
}

func TestNavigatePastEndFinishesOnlyAtCount(t *testing.T) {
	sess := newSession(t, 5)
	sess.start(t)
	svc := sess.svc
	ctx := context.Background()

	for _, i := range []int{6, 41} {
		if err := svc.Navigate(ctx, i); !errors.Is(err, ErrOutOfRange) {
			t.Errorf("Navigate(%d): expected ErrOutOfRange, got %v", i, err)
		}
	}
	if got := svc.Screens().Current(); got != screen.Exam {
		t.Fatalf("out of range navigation left the exam: %s", got)
	}
	if svc.Store().CurrentIndex() != 0 {
		t.Errorf("expected index 0, got %d", svc.Store().CurrentIndex())
	}

	if err := svc.Navigate(ctx, 5); err != nil {
		t.Fatalf("Navigate(count): %v", err)
	}
	if got := svc.Screens().Current(); got != screen.Submission {
		t.Errorf("expected submission, got %s", got)
	}
}

// blockOn starts fn, waits until the backend saw the named call, then
// returns a channel carrying fn's error.
func blockOn(t *testing.T, sess *session, call string, fn func() error) <-chan error {
	t.Helper()
	before := sess.backend.Calls(call)
	done := make(chan error, 1)
	go func() { done <- fn() }()
	waitUntil(t, "blocked "+call, func() bool { return sess.backend.Calls(call) > before })
	return done
}

func TestStaleSaveLeavesNewQuestionAlone(t *testing.T) {
	sess := newSession(t, 5)
	sess.start(t)
	svc := sess.svc
	ctx := context.Background()

	gate := make(chan struct{})
	sess.backend.Update(func(f *testutil.FakeBackend) { f.SaveGates[3] = gate })

	if err := svc.Navigate(ctx, 2); err != nil {
		t.Fatalf("Navigate: %v", err)
	}
	if err := svc.SetTypedAnswer("answer for three"); err != nil {
		t.Fatal(err)
	}
	done := blockOn(t, sess, "save", func() error {
		_, err := svc.SaveAnswer(ctx)
		return err
	})

	if err := svc.Navigate(ctx, 3); err != nil {
		t.Fatalf("Navigate: %v", err)
	}
	if err := svc.SetTypedAnswer("mine"); err != nil {
		t.Fatal(err)
	}
	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("stale SaveAnswer: %v", err)
	}

	d := svc.Draft()
	if d.QuestionID != 4 || d.Typed != "mine" || d.Answer != nil {
		t.Errorf("stale save touched the current draft: %+v", d)
	}
	if st := svc.Status(); st.Text != "" {
		t.Errorf("stale save set status %q", st.Text)
	}
	if !svc.Store().IsAnswered(2) {
		t.Error("saved index must be marked answered")
	}
	if svc.Store().IsAnswered(3) {
		t.Error("current index must not be marked answered")
	}
}

func TestStaleUploadLeavesNewQuestionAlone(t *testing.T) {
	sess := newSession(t, 5)
	sess.start(t)
	svc := sess.svc
	ctx := context.Background()

	gate := make(chan struct{})
	sess.backend.Update(func(f *testutil.FakeBackend) { f.UploadGates[3] = gate })

	if err := svc.Navigate(ctx, 2); err != nil {
		t.Fatalf("Navigate: %v", err)
	}
	done := blockOn(t, sess, "upload", func() error {
		_, err := svc.UploadPDF(ctx, File{Name: "work.pdf", Body: strings.NewReader("%PDF-1.4")})
		return err
	})

	if err := svc.Navigate(ctx, 3); err != nil {
		t.Fatalf("Navigate: %v", err)
	}
	if err := svc.SetTypedAnswer("mine"); err != nil {
		t.Fatal(err)
	}
	fetches := sess.backend.Calls("get_answer")
	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("stale UploadPDF: %v", err)
	}

	d := svc.Draft()
	if d.QuestionID != 4 || d.Typed != "mine" || d.Answer != nil || len(d.Files) != 0 {
		t.Errorf("stale upload touched the current draft: %+v", d)
	}
	if st := svc.Status(); st.Text != "" {
		t.Errorf("stale upload set status %q", st.Text)
	}
	if !svc.Store().IsUploaded(2) {
		t.Error("uploaded index must be marked uploaded")
	}
	if got := sess.backend.Calls("get_answer"); got != fetches {
		t.Errorf("stale upload reloaded an answer (%d fetches, want %d)", got, fetches)
	}
}

func TestTimerAlwaysShowsServerValue(t *testing.T) {
	sess := newSession(t, 3)
	sess.start(t)

	sess.backend.Update(func(f *testutil.FakeBackend) { f.TimeRemaining = 1234 })
	waitUntil(t, "timer 1234", func() bool { return sess.svc.Store().Timer() == 1234 })

	sess.backend.Update(func(f *testutil.FakeBackend) { f.TimeRemaining = 2000 })
	waitUntil(t, "timer 2000", func() bool { return sess.svc.Store().Timer() == 2000 })

	sess.backend.Update(func(f *testutil.FakeBackend) { f.TimerFailures = 3 })
	calls := sess.backend.Calls("timer")
	waitUntil(t, "polls past failures", func() bool { return sess.backend.Calls("timer") > calls+4 })

	if sess.svc.Screens().Current() != screen.Exam {
		t.Error("poll failures must not change screen")
	}
	if st := sess.svc.Status(); st.Kind == StatusError {
		t.Errorf("poll failures must not be surfaced, got %+v", st)
	}
	if sess.svc.Store().Timer() != 2000 {
		t.Errorf("expected held value kept, got %d", sess.svc.Store().Timer())
	}
}

func TestTimerExpiryLeavesExamAndStopsPolling(t *testing.T) {
	sess := newSession(t, 3)
	sess.start(t)

	sess.backend.Update(func(f *testutil.FakeBackend) {
		f.TimeRemaining = 0
		f.AutoSubmit = true
	})
	waitUntil(t, "leaving exam", func() bool { return sess.svc.Screens().Current() != screen.Exam })
	waitUntil(t, "evaluation", func() bool { return sess.svc.Screens().Current() == screen.Evaluation })

	calls := sess.backend.Calls("timer")
	time.Sleep(30 * time.Millisecond)
	if sess.backend.Calls("timer") != calls {
		t.Error("expected no further timer polls")
	}
	if sess.backend.Calls("submit") != 1 {
		t.Errorf("expected one submit, got %d", sess.backend.Calls("submit"))
	}
	if sess.svc.Store().Exam().Status != model.ExamStatusSubmitted {
		t.Errorf("expected SUBMITTED, got %s", sess.svc.Store().Exam().Status)
	}
}

func TestTimerExpirySubmitFailureStaysOnSubmission(t *testing.T) {
	sess := newSession(t, 3)
	sess.start(t)

	sess.backend.Update(func(f *testutil.FakeBackend) {
		f.SubmitError = "Database unavailable"
		f.AutoSubmit = true
	})
	waitUntil(t, "submission", func() bool { return sess.svc.Screens().Current() == screen.Submission })
	waitUntil(t, "error status", func() bool { return sess.svc.Status().Kind == StatusError })

	if st := sess.svc.Status(); !strings.Contains(st.Text, "Database unavailable") {
		t.Errorf("unexpected status %+v", st)
	}
	time.Sleep(20 * time.Millisecond)
	if sess.svc.Screens().Current() != screen.Submission {
		t.Errorf("expected to stay on submission, got %s", sess.svc.Screens().Current())
	}
}

func TestViolationThresholdSubmitsOnce(t *testing.T) {
	sess := newSession(t, 3)
	sess.start(t)

	for i := 0; i < 4; i++ {
		sess.signals.Send(proctor.Signal{Kind: proctor.SignalBlur})
	}
	for i := 0; i < 3; i++ {
		sess.signals.Send(proctor.Signal{Kind: proctor.SignalVisibility, Hidden: true})
	}

	if n := sess.backend.Calls("submit"); n != 1 {
		t.Fatalf("expected exactly one submit, got %d", n)
	}
	if got := sess.svc.Store().Exam().Status; got != model.ExamStatusSubmitted {
		t.Errorf("expected SUBMITTED, got %s", got)
	}
	if cur := sess.svc.Screens().Current(); cur != screen.Evaluation {
		t.Errorf("expected evaluation, got %s", cur)
	}
	if sess.signals.Len() != 0 {
		t.Error("expected signal subscription released")
	}

	want := "ready>exam,exam>submission,submission>evaluation"
	got := strings.Join(sess.journal.List()[1:], ",")
	if got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestEscalationToleratesSubmissionAlreadyLeft(t *testing.T) {
	sess := newSession(t, 3)
	sess.start(t)
	svc := sess.svc

	svc.Screens().OnEnter(screen.Submission, func(from, to screen.Screen) {
		svc.Screens().TransitionFrom(screen.Submission, screen.Evaluation)
	})

	exam := svc.Store().Exam()
	if err := svc.escalate(context.Background(), exam.ID); err != nil {
		t.Fatalf("escalate: %v", err)
	}
	if got := svc.Screens().Current(); got != screen.Evaluation {
		t.Errorf("expected evaluation, got %s", got)
	}
	if sess.backend.Calls("submit") != 1 {
		t.Errorf("expected one submit, got %d", sess.backend.Calls("submit"))
	}
}

func TestViolationSubmitFailureStaysOnExam(t *testing.T) {
	sess := newSession(t, 3)
	sess.start(t)
	sess.backend.Update(func(f *testutil.FakeBackend) { f.SubmitError = "Database unavailable" })

	for i := 0; i < 4; i++ {
		sess.signals.Send(proctor.Signal{Kind: proctor.SignalBlur})
	}
	st := sess.svc.Monitor().Status()
	if st.LastMessage != "Auto submit failed: Database unavailable" || !st.NeedsFullscreen {
		t.Errorf("unexpected monitor status %+v", st)
	}

	sess.signals.Send(proctor.Signal{Kind: proctor.SignalBlur})
	if n := sess.backend.Calls("submit"); n != 1 {
		t.Errorf("expected one submit attempt, got %d", n)
	}
	if n := len(sess.svc.Monitor().Status().Violations); n != 5 {
		t.Errorf("expected later violations still recorded, got %d", n)
	}
	if cur := sess.svc.Screens().Current(); cur != screen.Exam {
		t.Errorf("expected to stay on exam, got %s", cur)
	}

	if err := sess.svc.SubmitNow(); err != nil {
		t.Fatalf("SubmitNow: %v", err)
	}
	if sess.svc.Screens().Current() != screen.Submission {
		t.Error("manual submission must still work after a failed escalation")
	}
}

func TestPaperDownloadPausesProctoring(t *testing.T) {
	sess := newSession(t, 3)
	sess.start(t)

	var b strings.Builder
	closed := make(chan struct{})
	if err := sess.svc.DownloadPaper(&b, closed); err != nil {
		t.Fatalf("DownloadPaper: %v", err)
	}
	if !strings.Contains(b.String(), "CBSE - Class 10 - Mathematics") {
		t.Error("paper missing title")
	}

	sess.signals.Send(proctor.Signal{Kind: proctor.SignalBlur})
	sess.signals.Send(proctor.Signal{Kind: proctor.SignalVisibility, Hidden: true})
	if n := len(sess.svc.Monitor().Status().Violations); n != 0 {
		t.Fatalf("expected no violations during pause, got %d", n)
	}

	close(closed)
	waitUntil(t, "pause lifted", func() bool { return !sess.svc.Monitor().Paused() })
	sess.signals.Send(proctor.Signal{Kind: proctor.SignalBlur})
	if n := len(sess.svc.Monitor().Status().Violations); n != 1 {
		t.Errorf("expected recording after close, got %d", n)
	}
}

func TestConcurrentSubmitIsSingleFlight(t *testing.T) {
	sess := newSession(t, 3)
	sess.start(t)

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := sess.svc.submitOnce(context.Background()); err != nil {
				t.Errorf("submitOnce: %v", err)
			}
		}()
	}
	wg.Wait()

	if n := sess.backend.Calls("submit"); n != 1 {
		t.Errorf("expected one submit call, got %d", n)
	}

	sess.svc.Store().SetExamStatus(model.ExamStatusInProgress)
	if err := sess.svc.submitOnce(context.Background()); err != nil {
		t.Errorf("already submitted must count as success, got %v", err)
	}
}

func TestResetRestoresInitialState(t *testing.T) {
	sess := newSession(t, 3)
	sess.start(t)
	sess.signals.Send(proctor.Signal{Kind: proctor.SignalBlur})

	sess.svc.Reset()

	snap := sess.svc.Store().Snapshot()
	if snap.Screen != screen.Setup || snap.Exam != nil || len(snap.Questions) != 0 || snap.TimerRemaining != 0 {
		t.Errorf("unexpected state after reset %+v", snap)
	}
	if len(snap.Visited)+len(snap.Answered)+len(snap.Uploaded) != 0 {
		t.Error("expected empty markers")
	}
	if sess.svc.Monitor().Status().Active || sess.signals.Len() != 0 {
		t.Error("expected proctoring stopped")
	}

	calls := sess.backend.Calls("timer")
	time.Sleep(20 * time.Millisecond)
	if sess.backend.Calls("timer") != calls {
		t.Error("expected polling stopped after reset")
	}
}

func TestEvaluateRequiresSubmission(t *testing.T) {
	backend := testutil.NewFakeBackend(t)
	backend.Update(func(f *testutil.FakeBackend) { f.Exam = model.Exam{ID: 5, Status: model.ExamStatusInProgress} })
	client := gateway.New(backend.URL(), time.Second, zerolog.Nop())

	if _, err := Evaluate(context.Background(), client, 5); !errors.Is(err, ErrNotSubmitted) {
		t.Errorf("expected ErrNotSubmitted, got %v", err)
	}
	if backend.Calls("evaluate") != 0 {
		t.Error("evaluate must not be called for an unsubmitted exam")
	}
}

func TestEvaluationPaperAndReport(t *testing.T) {
	sess := newSession(t, 3)
	sess.start(t)
	svc := sess.svc
	ctx := context.Background()

	var b strings.Builder
	if err := svc.WriteReport(&b); !errors.Is(err, ErrWrongScreen) {
		t.Errorf("expected ErrWrongScreen during the exam, got %v", err)
	}
	if err := svc.Navigate(ctx, 3); err != nil {
		t.Fatalf("Navigate: %v", err)
	}
	if err := svc.Submit(ctx); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := svc.WriteReport(&b); !errors.Is(err, ErrNoEvaluation) {
		t.Errorf("expected ErrNoEvaluation before loading, got %v", err)
	}
	if _, err := svc.LoadEvaluation(ctx); err != nil {
		t.Fatalf("LoadEvaluation: %v", err)
	}

	b.Reset()
	if err := svc.WriteReport(&b); err != nil {
		t.Fatalf("WriteReport: %v", err)
	}
	if out := b.String(); !strings.Contains(out, "Score: 42") || !strings.Contains(out, "Mathematics - CBSE Class 10") {
		t.Errorf("unexpected report:\n%s", out)
	}

	b.Reset()
	if err := svc.WriteQuestionPaper(&b); err != nil {
		t.Fatalf("WriteQuestionPaper: %v", err)
	}
	if out := b.String(); strings.Count(out, `<div class="question">`) != 3 {
		t.Errorf("expected 3 questions in paper:\n%s", out)
	}
	if svc.Monitor().Paused() {
		t.Error("paper after submission must not pause proctoring")
	}
}
