package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/stemsi/exstem-client/internal/gateway"
	"github.com/stemsi/exstem-client/internal/model"
	"github.com/stemsi/exstem-client/internal/screen"
)

// FinishExam leaves the exam for the submission screen. It serves both the
// "finish" after the last question and "submit now".
func (s *ExamService) FinishExam() error {
	if err := s.screens.TransitionFrom(screen.Exam, screen.Submission); err != nil {
		return err
	}
	s.clearStatus()
	return nil
}

// SubmitNow is FinishExam from the violation prompt or the top bar.
func (s *ExamService) SubmitNow() error {
	s.monitor.Dismiss()
	return s.FinishExam()
}

// ReturnToFullscreen asks the kiosk to re-enter fullscreen.
func (s *ExamService) ReturnToFullscreen(ctx context.Context) error {
	if err := s.requireScreen(screen.Exam); err != nil {
		return err
	}
	if err := s.monitor.ReturnToFullscreen(ctx); err != nil {
		s.setStatus(StatusError, err.Error())
		return err
	}
	return nil
}

// FinalUpload uploads answer sheets on the submission screen. questionNumber
// 0 marks a whole answer sheet. Every file must be a PDF; nothing is sent
// otherwise.
func (s *ExamService) FinalUpload(ctx context.Context, questionNumber int, files ...File) ([]model.UploadedFile, error) {
	if err := s.requireScreen(screen.Submission); err != nil {
		return nil, err
	}
	exam, err := s.activeExam()
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, s.fail(ErrNoFiles)
	}
	for _, f := range files {
		if !f.IsPDF() {
			return nil, s.fail(ErrNotPDF)
		}
	}
	if questionNumber < 0 || questionNumber > s.store.QuestionCount() {
		return nil, fmt.Errorf("%w: question %d", ErrOutOfRange, questionNumber)
	}

	s.setStatus(StatusInfo, "Uploading answer sheets...")
	uploaded := make([]model.UploadedFile, 0, len(files))
	for _, f := range files {
		uf, err := s.backend.FinalUpload(ctx, exam.ID, questionNumber, f.Name, f.Body)
		if err != nil {
			return uploaded, s.fail(fmt.Errorf("upload %s: %w", f.Name, err))
		}
		uploaded = append(uploaded, *uf)
	}

	s.setStatus(StatusSuccess, fmt.Sprintf("%d answer sheet(s) uploaded successfully!", len(uploaded)))
	return uploaded, nil
}

// Submit submits the exam from the submission screen and moves to evaluation.
func (s *ExamService) Submit(ctx context.Context) error {
	if err := s.requireScreen(screen.Submission); err != nil {
		return err
	}
	if err := s.submitOnce(ctx); err != nil {
		return s.fail(fmt.Errorf("submit exam: %w", err))
	}
	if err := s.screens.TransitionFrom(screen.Submission, screen.Evaluation); err != nil {
		return err
	}
	s.clearStatus()
	return nil
}

// submitOnce submits at most once per exam. A backend "already submitted"
// counts as success.
func (s *ExamService) submitOnce(ctx context.Context) error {
	s.submitMu.Lock()
	defer s.submitMu.Unlock()

	exam, err := s.activeExam()
	if err != nil {
		return err
	}
	if exam.Status.IsFinal() {
		return nil
	}

	_, err = s.backend.SubmitExam(ctx, exam.ID)
	if err != nil && !errors.Is(err, gateway.ErrAlreadySubmitted) {
		return err
	}
	s.store.SetExamStatus(model.ExamStatusSubmitted)
	s.log.Info().Int64("exam_id", exam.ID).Bool("already", err != nil).Msg("Exam submitted")
	return nil
}

// onTimerExpired runs when the backend signals auto-submit: the exam moves
// to submission and is submitted automatically.
func (s *ExamService) onTimerExpired() {
	if err := s.screens.TransitionFrom(screen.Exam, screen.Submission); err != nil {
		s.log.Debug().Err(err).Msg("Timer expired after leaving exam screen")
	}
	if s.screens.Current() != screen.Submission {
		return
	}
	s.store.SetTimer(0)

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.SubmitTimeout)
	defer cancel()

	if err := s.submitOnce(ctx); err != nil {
		s.log.Error().Err(err).Msg("Auto submit on timeout failed")
		s.setStatus(StatusError, "Time is up. Auto submit failed: "+gateway.Detail(err))
		return
	}
	if err := s.screens.TransitionFrom(screen.Submission, screen.Evaluation); err != nil {
		return
	}
	s.setStatus(StatusInfo, "Time is up. Your exam was submitted automatically.")
}

// escalate is the proctoring escalator: submit, then force the exam through
// submission to evaluation. The error text is shown to the candidate.
func (s *ExamService) escalate(ctx context.Context, examID int64) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.SubmitTimeout)
	defer cancel()

	if err := s.submitOnce(ctx); err != nil {
		return errors.New(gateway.Detail(err))
	}
	if err := s.screens.TransitionFrom(screen.Exam, screen.Submission); err != nil {
		// Someone else already left the exam screen; keep their path.
		s.log.Debug().Err(err).Msg("Escalation found exam screen already left")
		return nil
	}
	if err := s.screens.TransitionFrom(screen.Submission, screen.Evaluation); err != nil {
		if errors.Is(err, screen.ErrInvalidTransition) {
			s.log.Debug().Err(err).Msg("Escalation found submission screen already left")
			return nil
		}
		return err
	}
	s.setStatus(StatusError, "Exam submitted automatically after repeated proctoring violations.")
	return nil
}
