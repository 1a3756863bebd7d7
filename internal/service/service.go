// Package service drives one exam session across the five screens.
package service

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-client/internal/model"
	"github.com/stemsi/exstem-client/internal/proctor"
	"github.com/stemsi/exstem-client/internal/screen"
	"github.com/stemsi/exstem-client/internal/store"
	"github.com/stemsi/exstem-client/internal/validator"
	"github.com/stemsi/exstem-client/internal/worker"
)

var (
	ErrWrongScreen   = errors.New("action not available on this screen")
	ErrNoExam        = errors.New("no active exam")
	ErrOutOfRange    = errors.New("question index out of range")
	ErrNoAnswer      = errors.New("Please provide an answer (typed or MCQ selection)")
	ErrNotPDF        = errors.New("Only PDF files are allowed")
	ErrNoFiles       = errors.New("Please select at least one PDF file")
	ErrUnknownOption = errors.New("unknown option")
	ErrNoAlternative = errors.New("question has no alternative")
	ErrNotSubmitted  = errors.New("Exam is not submitted yet. Please submit before evaluation.")
	ErrNoEvaluation  = errors.New("no evaluation loaded")
)

// Backend is the subset of the backend API the session needs.
type Backend interface {
	CreateExam(ctx context.Context, req model.CreateExamRequest) (*model.Exam, error)
	UploadSyllabus(ctx context.Context, filename string, file io.Reader) (*model.SyllabusResult, error)
	StartExam(ctx context.Context, examID int64) error
	GetQuestions(ctx context.Context, examID int64) ([]model.Question, error)
	GetTimer(ctx context.Context, examID int64) (*model.TimerState, error)
	SubmitExam(ctx context.Context, examID int64) (*model.SubmitResult, error)
	AIInfo(ctx context.Context) (*model.AIInfo, error)

	SaveAnswer(ctx context.Context, req model.SaveAnswerRequest) (*model.Answer, error)
	GetAnswer(ctx context.Context, examID, questionID int64) (*model.Answer, error)
	UploadPDF(ctx context.Context, examID, questionID int64, filename string, file io.Reader) (*model.UploadedFile, error)
	FinalUpload(ctx context.Context, examID int64, questionNumber int, filename string, file io.Reader) (*model.UploadedFile, error)
	ListUploadedFiles(ctx context.Context, answerID int64) ([]model.UploadedFile, error)

	Evaluate(ctx context.Context, examID int64) (*model.EvaluationResult, error)
	GetReport(ctx context.Context, examID int64) (*model.EvaluationResult, error)
	GetSummary(ctx context.Context, examID int64) (*model.EvaluationSummary, error)
}

// TransitionJournal records screen changes.
type TransitionJournal interface {
	RecordTransition(ctx context.Context, examID int64, from, to string, at time.Time) error
}

// File is an upload candidate.
type File struct {
	Name string
	Body io.Reader
}

// IsPDF reports whether the file name ends in .pdf, ignoring case.
func (f File) IsPDF() bool {
	return validator.Var(f.Name, "required,pdf") == nil
}

// Config tunes the session.
type Config struct {
	PollInterval time.Duration
	Proctor      proctor.Config
	// PausePrint is the proctoring pause while the question paper is open.
	PausePrint time.Duration
	// SubmitTimeout bounds automatic submissions (timer expiry, violations).
	SubmitTimeout time.Duration
}

// Deps are the collaborators of a session. Backend, Store and Screens are required.
type Deps struct {
	Backend   Backend
	Store     *store.Store
	Screens   *screen.Controller
	Signals   proctor.SignalSource
	Requester proctor.FullscreenRequester
	// ViolationSink receives every recorded violation without blocking.
	ViolationSink chan<- model.Violation
	Journal       TransitionJournal
}

// ExamService implements the screen actions.
type ExamService struct {
	cfg     Config
	backend Backend
	store   *store.Store
	screens *screen.Controller
	signals proctor.SignalSource
	journal TransitionJournal
	poller  *worker.TimerPoller
	monitor *proctor.Monitor
	log     zerolog.Logger
	now     func() time.Time

	// submitMu makes submission single-flight.
	submitMu sync.Mutex

	mu         sync.Mutex
	draft      Draft
	status     Status
	evaluation Evaluation
}

// New wires a session and registers its screen hooks.
func New(cfg Config, deps Deps, log zerolog.Logger) *ExamService {
	if cfg.PausePrint <= 0 {
		cfg.PausePrint = 20 * time.Second
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = 60 * time.Second
	}

	s := &ExamService{
		cfg:     cfg,
		backend: deps.Backend,
		store:   deps.Store,
		screens: deps.Screens,
		signals: deps.Signals,
		journal: deps.Journal,
		log:     log.With().Str("component", "exam_service").Logger(),
		now:     time.Now,
	}
	s.poller = worker.NewTimerPoller(deps.Backend, cfg.PollInterval, log)

	opts := []proctor.Option{}
	if deps.Requester != nil {
		opts = append(opts, proctor.WithRequester(deps.Requester))
	}
	if deps.ViolationSink != nil {
		opts = append(opts, proctor.WithSink(deps.ViolationSink))
	}
	s.monitor = proctor.New(cfg.Proctor, proctor.EscalatorFunc(s.escalate), log, opts...)

	s.registerHooks()
	return s
}

func (s *ExamService) registerHooks() {
	for _, sc := range []screen.Screen{screen.Ready, screen.Exam, screen.Submission, screen.Evaluation} {
		s.screens.OnEnter(sc, s.onEnter)
	}
	s.screens.OnLeave(screen.Exam, func(from, to screen.Screen) {
		s.poller.Stop()
		s.monitor.Stop()
	})
	s.screens.OnReset(func() {
		s.poller.Stop()
		s.monitor.Stop()
		s.store.Reset()
		s.mu.Lock()
		s.draft = Draft{}
		s.status = Status{}
		s.evaluation = Evaluation{}
		s.mu.Unlock()
		s.recordTransition(0, "*", string(screen.Setup))
	})
}

func (s *ExamService) onEnter(from, to screen.Screen) {
	s.store.SetScreen(to)
	var examID int64
	if exam := s.store.Exam(); exam != nil {
		examID = exam.ID
	}
	s.log.Info().Str("from", string(from)).Str("to", string(to)).Int64("exam_id", examID).Msg("Screen changed")
	s.recordTransition(examID, string(from), string(to))
}

func (s *ExamService) recordTransition(examID int64, from, to string) {
	if s.journal == nil {
		return
	}
	if err := s.journal.RecordTransition(context.Background(), examID, from, to, s.now()); err != nil {
		s.log.Error().Err(err).Msg("Journal transition write failed")
	}
}

// Monitor exposes the proctoring monitor to the signal bridge and renderer.
func (s *ExamService) Monitor() *proctor.Monitor { return s.monitor }

// Store returns the session store.
func (s *ExamService) Store() *store.Store { return s.store }

// Screens returns the screen controller.
func (s *ExamService) Screens() *screen.Controller { return s.screens }

// Reset abandons the session and returns to setup.
func (s *ExamService) Reset() {
	s.screens.Reset()
}

// Close stops background loops.
func (s *ExamService) Close() {
	s.poller.Stop()
	s.monitor.Stop()
}

func (s *ExamService) requireScreen(want screen.Screen) error {
	if cur := s.screens.Current(); cur != want {
		return ErrWrongScreen
	}
	return nil
}

func (s *ExamService) activeExam() (*model.Exam, error) {
	exam := s.store.Exam()
	if exam == nil {
		return nil, ErrNoExam
	}
	return exam, nil
}
