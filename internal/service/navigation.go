package service

import (
	"context"
	"fmt"

	"github.com/stemsi/exstem-client/internal/model"
	"github.com/stemsi/exstem-client/internal/screen"
)

// Draft is the local, unsaved state of the displayed question.
type Draft struct {
	Index      int                  `json:"index"`
	QuestionID int64                `json:"question_id"`
	Typed      string               `json:"typed"`
	Option     string               `json:"option"`
	Choice     model.Choice         `json:"choice"`
	Answer     *model.Answer        `json:"answer,omitempty"`
	Files      []model.UploadedFile `json:"files,omitempty"`
}

// Draft returns a copy of the current draft.
func (s *ExamService) Draft() Draft {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.draft
	d.Files = append([]model.UploadedFile(nil), s.draft.Files...)
	return d
}

// Navigate displays question i. The index one past the last question
// finishes the exam; anything further is out of range. The index is marked visited before the answer is fetched, and
// the fetched answer replaces any local selection.
func (s *ExamService) Navigate(ctx context.Context, i int) error {
	if err := s.requireScreen(screen.Exam); err != nil {
		return err
	}
	exam, err := s.activeExam()
	if err != nil {
		return err
	}

	count := s.store.QuestionCount()
	if i == count {
		return s.FinishExam()
	}
	if i < 0 || i > count {
		return fmt.Errorf("%w: %d", ErrOutOfRange, i)
	}

	q, _ := s.store.Question(i)
	s.store.SetCurrentIndex(i)
	s.store.MarkVisited(i)

	s.mu.Lock()
	s.draft = Draft{Index: i, QuestionID: q.ID, Choice: model.ChoiceMain}
	s.status = Status{}
	s.mu.Unlock()

	return s.loadAnswer(ctx, exam.ID, i, q.ID)
}

// Next moves forward, finishing the exam after the last question.
func (s *ExamService) Next(ctx context.Context) error {
	return s.Navigate(ctx, s.store.CurrentIndex()+1)
}

// Previous moves back; it does nothing on the first question.
func (s *ExamService) Previous(ctx context.Context) error {
	cur := s.store.CurrentIndex()
	if cur <= 0 {
		return nil
	}
	return s.Navigate(ctx, cur-1)
}

// stillCurrent reports whether a response captured at epoch for questionID
// may still be applied.
func (s *ExamService) stillCurrent(epoch uint64, questionID int64) bool {
	if s.screens.Epoch() != epoch {
		return false
	}
	_, q, ok := s.store.CurrentQuestion()
	return ok && q.ID == questionID
}

// loadAnswer fetches the persisted answer for question i and applies it
// if i is still displayed. Load failures reset the draft.
func (s *ExamService) loadAnswer(ctx context.Context, examID int64, i int, questionID int64) error {
	epoch := s.screens.Epoch()

	answer, err := s.backend.GetAnswer(ctx, examID, questionID)
	if err != nil {
		s.log.Warn().Err(err).Int64("question_id", questionID).Msg("Failed to load answer")
		if s.stillCurrent(epoch, questionID) {
			s.mu.Lock()
			s.draft = Draft{Index: i, QuestionID: questionID, Choice: model.ChoiceMain}
			s.mu.Unlock()
		}
		return fmt.Errorf("load answer: %w", err)
	}

	var files []model.UploadedFile
	if answer != nil && answer.HasUploadedFiles {
		files, err = s.backend.ListUploadedFiles(ctx, answer.ID)
		if err != nil {
			s.log.Warn().Err(err).Int64("answer_id", answer.ID).Msg("Failed to load uploaded files")
			files = nil
		}
	}

	if !s.stillCurrent(epoch, questionID) {
		s.log.Debug().Int64("question_id", questionID).Msg("Discarding stale answer")
		return nil
	}

	s.mu.Lock()
	s.draft = Draft{
		Index:      i,
		QuestionID: questionID,
		Typed:      answer.Typed(),
		Option:     answer.Option(),
		Choice:     answer.Choice(),
		Answer:     answer,
		Files:      files,
	}
	s.mu.Unlock()

	if answer != nil && answer.HasUploadedFiles {
		s.store.MarkUploaded(i)
	}
	if answer.HasContent() {
		s.store.MarkAnswered(i)
	}
	return nil
}
