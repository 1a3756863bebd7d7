package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/stemsi/exstem-client/internal/gateway"
	"github.com/stemsi/exstem-client/internal/model"
	"github.com/stemsi/exstem-client/internal/screen"
)

// Evaluation is what the evaluation screen shows.
type Evaluation struct {
	Summary *model.EvaluationSummary `json:"summary,omitempty"`
	Report  *model.EvaluationResult  `json:"report,omitempty"`
}

// Evaluation returns the last loaded evaluation.
func (s *ExamService) Evaluation() Evaluation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.evaluation
}

// LoadEvaluation fetches the summary, then the stored report when the exam
// is already evaluated, or runs the evaluation and refreshes the summary.
func (s *ExamService) LoadEvaluation(ctx context.Context) (Evaluation, error) {
	if err := s.requireScreen(screen.Evaluation); err != nil {
		return Evaluation{}, err
	}
	exam, err := s.activeExam()
	if err != nil {
		return Evaluation{}, err
	}

	s.setStatus(StatusInfo, "Evaluating your answers...")
	ev, err := Evaluate(ctx, s.backend, exam.ID)
	if errors.Is(err, ErrNotSubmitted) {
		return ev, s.fail(err)
	}
	if err != nil {
		s.setStatus(StatusError, "Error during evaluation: "+gateway.Detail(errors.Unwrap(err)))
		return ev, err
	}

	if ev.Summary != nil {
		s.store.SetExamStatus(ev.Summary.Status)
	}
	s.mu.Lock()
	s.evaluation = ev
	s.mu.Unlock()
	s.clearStatus()
	return ev, nil
}

// EvaluationBackend is the part of the backend used by Evaluate.
type EvaluationBackend interface {
	Evaluate(ctx context.Context, examID int64) (*model.EvaluationResult, error)
	GetReport(ctx context.Context, examID int64) (*model.EvaluationResult, error)
	GetSummary(ctx context.Context, examID int64) (*model.EvaluationSummary, error)
}

// Evaluate loads or produces the evaluation of a submitted exam.
func Evaluate(ctx context.Context, b EvaluationBackend, examID int64) (Evaluation, error) {
	summary, err := b.GetSummary(ctx, examID)
	if err != nil {
		return Evaluation{}, fmt.Errorf("load summary: %w", err)
	}
	ev := Evaluation{Summary: summary}

	switch summary.Status {
	case model.ExamStatusEvaluated:
		report, err := b.GetReport(ctx, examID)
		if err != nil {
			return ev, fmt.Errorf("load report: %w", err)
		}
		ev.Report = report
		return ev, nil
	case model.ExamStatusSubmitted:
	default:
		return ev, ErrNotSubmitted
	}

	report, err := b.Evaluate(ctx, examID)
	if err != nil {
		return ev, fmt.Errorf("evaluate: %w", err)
	}
	ev.Report = report

	final, err := b.GetSummary(ctx, examID)
	if err != nil {
		return ev, fmt.Errorf("refresh summary: %w", err)
	}
	ev.Summary = final
	return ev, nil
}
