package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/stemsi/exstem-client/internal/model"
	"github.com/stemsi/exstem-client/internal/screen"
	"github.com/stemsi/exstem-client/internal/validator"
)

// SetTypedAnswer replaces the typed text of the draft.
func (s *ExamService) SetTypedAnswer(text string) error {
	if err := s.requireScreen(screen.Exam); err != nil {
		return err
	}
	s.mu.Lock()
	s.draft.Typed = text
	s.mu.Unlock()
	return nil
}

// SelectOption picks an MCQ option. Picking an option counts as answering
// locally, before it is saved.
func (s *ExamService) SelectOption(key string) error {
	if err := s.requireScreen(screen.Exam); err != nil {
		return err
	}
	i, q, ok := s.store.CurrentQuestion()
	if !ok {
		return ErrOutOfRange
	}
	if !q.Options.Has(key) {
		return fmt.Errorf("%w: %q", ErrUnknownOption, key)
	}

	s.mu.Lock()
	s.draft.Option = key
	s.mu.Unlock()
	s.store.MarkAnswered(i)
	return nil
}

// SelectChoice picks between the main question and its alternative.
func (s *ExamService) SelectChoice(choice model.Choice) error {
	if err := s.requireScreen(screen.Exam); err != nil {
		return err
	}
	_, q, ok := s.store.CurrentQuestion()
	if !ok {
		return ErrOutOfRange
	}
	if choice != model.ChoiceMain && choice != model.ChoiceAlternative {
		return fmt.Errorf("%w: %q", ErrNoAlternative, choice)
	}
	if choice == model.ChoiceAlternative && !q.HasAlternative() {
		return ErrNoAlternative
	}

	s.mu.Lock()
	s.draft.Choice = choice
	s.mu.Unlock()
	return nil
}

// SaveAnswer persists the draft of the displayed question. A draft with
// neither typed text nor an option fails without a backend call.
func (s *ExamService) SaveAnswer(ctx context.Context) (*model.Answer, error) {
	if err := s.requireScreen(screen.Exam); err != nil {
		return nil, err
	}
	exam, err := s.activeExam()
	if err != nil {
		return nil, err
	}
	i, q, ok := s.store.CurrentQuestion()
	if !ok {
		return nil, ErrOutOfRange
	}

	d := s.Draft()
	typed := strings.TrimSpace(d.Typed)
	if typed == "" && d.Option == "" {
		return nil, s.fail(ErrNoAnswer)
	}

	req := model.SaveAnswerRequest{
		ExamID:         exam.ID,
		QuestionID:     q.ID,
		SelectedChoice: d.Choice,
	}
	if typed != "" {
		req.TypedAnswer = &typed
	}
	if d.Option != "" {
		opt := d.Option
		req.SelectedOption = &opt
	}
	if err := validator.Struct(req); err != nil {
		return nil, s.fail(err)
	}

	epoch := s.screens.Epoch()
	answer, err := s.backend.SaveAnswer(ctx, req)
	if err != nil {
		return nil, s.fail(fmt.Errorf("save answer: %w", err))
	}

	// The backend holds the answer regardless; only the display is guarded.
	s.store.MarkAnswered(i)
	if !s.stillCurrent(epoch, q.ID) {
		s.log.Debug().Int64("question_id", q.ID).Msg("Save finished after navigation, not applied")
		return answer, nil
	}

	s.mu.Lock()
	s.draft.Answer = answer
	s.mu.Unlock()
	s.setStatus(StatusSuccess, "Answer saved successfully!")
	return answer, nil
}

// UploadPDF attaches a PDF to the displayed question and reloads its answer.
func (s *ExamService) UploadPDF(ctx context.Context, file File) (*model.UploadedFile, error) {
	if err := s.requireScreen(screen.Exam); err != nil {
		return nil, err
	}
	exam, err := s.activeExam()
	if err != nil {
		return nil, err
	}
	i, q, ok := s.store.CurrentQuestion()
	if !ok {
		return nil, ErrOutOfRange
	}
	if !file.IsPDF() {
		return nil, s.fail(ErrNotPDF)
	}

	epoch := s.screens.Epoch()
	uf, err := s.backend.UploadPDF(ctx, exam.ID, q.ID, file.Name, file.Body)
	if err != nil {
		return nil, s.fail(fmt.Errorf("upload pdf: %w", err))
	}

	s.store.MarkUploaded(i)
	if !s.stillCurrent(epoch, q.ID) {
		return uf, nil
	}
	s.setStatus(StatusSuccess, "PDF uploaded successfully!")

	if err := s.loadAnswer(ctx, exam.ID, i, q.ID); err != nil {
		s.log.Warn().Err(err).Msg("Reload after upload failed")
	}
	return uf, nil
}
