package service

import (
	"io"

	"github.com/stemsi/exstem-client/internal/render"
	"github.com/stemsi/exstem-client/internal/screen"
)

// DownloadPaper writes the printable question paper. Proctoring is paused
// while the paper is open; the pause ends at the print deadline or when
// closed fires, whichever comes first. A nil closed relies on the deadline.
func (s *ExamService) DownloadPaper(w io.Writer, closed <-chan struct{}) error {
	if err := s.requireScreen(screen.Exam); err != nil {
		return err
	}
	exam, err := s.activeExam()
	if err != nil {
		return err
	}

	s.monitor.PauseUntilClosed(s.cfg.PausePrint, closed)

	snap := s.store.Snapshot()
	if err := render.WritePaper(w, *exam, snap.Questions); err != nil {
		return s.fail(err)
	}
	return nil
}

// WriteQuestionPaper writes the question paper once the exam is over.
// Proctoring has ended by then, so nothing is paused.
func (s *ExamService) WriteQuestionPaper(w io.Writer) error {
	if err := s.requireScreen(screen.Evaluation); err != nil {
		return err
	}
	exam, err := s.activeExam()
	if err != nil {
		return err
	}
	if err := render.WritePaper(w, *exam, s.store.Snapshot().Questions); err != nil {
		return s.fail(err)
	}
	return nil
}

// WriteReport writes the loaded evaluation as a printable HTML report.
func (s *ExamService) WriteReport(w io.Writer) error {
	if err := s.requireScreen(screen.Evaluation); err != nil {
		return err
	}
	exam, err := s.activeExam()
	if err != nil {
		return err
	}
	ev := s.Evaluation()
	if ev.Summary == nil || ev.Report == nil {
		return ErrNoEvaluation
	}
	if err := render.WriteReport(w, *exam, ev.Summary, ev.Report, s.now()); err != nil {
		return s.fail(err)
	}
	return nil
}
