package service

import (
	"context"
	"fmt"

	"github.com/stemsi/exstem-client/internal/model"
	"github.com/stemsi/exstem-client/internal/screen"
	"github.com/stemsi/exstem-client/internal/validator"
)

// AIInfo returns the backend model info shown on the setup screen.
func (s *ExamService) AIInfo(ctx context.Context) (*model.AIInfo, error) {
	return s.backend.AIInfo(ctx)
}

// CreateExam validates the setup form, uploads the optional syllabus, creates
// the exam and moves to the ready screen. Validation failures never reach
// the backend.
func (s *ExamService) CreateExam(ctx context.Context, req model.CreateExamRequest, syllabus *File) (*model.Exam, error) {
	if err := s.requireScreen(screen.Setup); err != nil {
		return nil, err
	}
	if err := validator.Struct(req); err != nil {
		return nil, s.fail(err)
	}
	if syllabus != nil && !syllabus.IsPDF() {
		return nil, s.fail(ErrNotPDF)
	}

	if syllabus != nil {
		s.setStatus(StatusInfo, "Uploading syllabus...")
		res, err := s.backend.UploadSyllabus(ctx, syllabus.Name, syllabus.Body)
		if err != nil {
			return nil, s.fail(fmt.Errorf("upload syllabus: %w", err))
		}
		req.SyllabusContent = res.SyllabusContent
	}

	s.setStatus(StatusInfo, "Generating exam with AI...")
	exam, err := s.backend.CreateExam(ctx, req)
	if err != nil {
		return nil, s.fail(fmt.Errorf("create exam: %w", err))
	}

	s.store.SetExam(exam)
	if err := s.screens.Transition(screen.Ready); err != nil {
		return nil, err
	}
	s.setStatus(StatusSuccess, "Exam created successfully!")
	s.log.Info().Int64("exam_id", exam.ID).Str("subject", exam.Subject).Msg("Exam created")
	return exam, nil
}

// StartExam starts the backend clock, loads timer and questions, enters the
// exam screen on question 0, and starts timer polling and proctoring.
func (s *ExamService) StartExam(ctx context.Context) error {
	if err := s.requireScreen(screen.Ready); err != nil {
		return err
	}
	exam, err := s.activeExam()
	if err != nil {
		return err
	}

	if err := s.backend.StartExam(ctx, exam.ID); err != nil {
		return s.fail(fmt.Errorf("start exam: %w", err))
	}
	s.store.ClearMarkers()
	s.store.SetExamStatus(model.ExamStatusInProgress)

	timer, err := s.backend.GetTimer(ctx, exam.ID)
	if err != nil {
		return s.fail(fmt.Errorf("load timer: %w", err))
	}
	if timer.TimeRemainingSeconds > 0 {
		s.store.SetTimer(timer.TimeRemainingSeconds)
	}

	questions, err := s.backend.GetQuestions(ctx, exam.ID)
	if err != nil {
		return s.fail(fmt.Errorf("load questions: %w", err))
	}
	s.store.SetQuestions(questions)
	s.store.SetCurrentIndex(0)

	if err := s.screens.Transition(screen.Exam); err != nil {
		return err
	}
	s.clearStatus()

	if s.store.Timer() > 0 {
		s.poller.Start(context.Background(), exam.ID, s.store.SetTimer, s.onTimerExpired)
	}
	s.monitor.Start(exam.ID, s.signals)

	s.log.Info().Int64("exam_id", exam.ID).Int("questions", len(questions)).Int("seconds", s.store.Timer()).Msg("Exam started")

	if len(questions) > 0 {
		return s.Navigate(ctx, 0)
	}
	return nil
}
