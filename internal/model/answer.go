package model

import "strings"

// Choice selects between a question and its internal-choice alternative.
type Choice string

const (
	ChoiceMain        Choice = "main"
	ChoiceAlternative Choice = "alternative"
)

// Answer is the persisted answer for one question.
type Answer struct {
	ID               int64   `json:"id"`
	QuestionID       int64   `json:"question_id"`
	TypedAnswer      *string `json:"typed_answer"`
	SelectedChoice   *Choice `json:"selected_choice"`
	SelectedOption   *string `json:"selected_option"`
	FirstSavedAt     *string `json:"first_saved_at,omitempty"`
	LastEditedAt     *string `json:"last_edited_at,omitempty"`
	HasUploadedFiles bool    `json:"has_uploaded_files"`
}

// Typed returns the typed text or "".
func (a *Answer) Typed() string {
	if a == nil || a.TypedAnswer == nil {
		return ""
	}
	return *a.TypedAnswer
}

// Option returns the selected MCQ option key or "".
func (a *Answer) Option() string {
	if a == nil || a.SelectedOption == nil {
		return ""
	}
	return *a.SelectedOption
}

// Choice returns the selected choice, defaulting to main.
func (a *Answer) Choice() Choice {
	if a == nil || a.SelectedChoice == nil || *a.SelectedChoice == "" {
		return ChoiceMain
	}
	return *a.SelectedChoice
}

// HasContent reports whether a non-blank typed answer or an MCQ option is present.
func (a *Answer) HasContent() bool {
	return strings.TrimSpace(a.Typed()) != "" || a.Option() != ""
}

// SaveAnswerRequest is the payload for saving an answer.
// At least one of TypedAnswer and SelectedOption must be set.
type SaveAnswerRequest struct {
	ExamID         int64   `json:"exam_id" validate:"required"`
	QuestionID     int64   `json:"question_id" validate:"required"`
	TypedAnswer    *string `json:"typed_answer" validate:"required_without=SelectedOption"`
	SelectedOption *string `json:"selected_option" validate:"required_without=TypedAnswer"`
	SelectedChoice Choice  `json:"selected_choice" validate:"omitempty,oneof=main alternative"`
}

// UploadedFile describes one PDF attached to an answer.
type UploadedFile struct {
	ID         int64  `json:"id"`
	Filename   string `json:"filename"`
	FileSize   int64  `json:"file_size"`
	UploadedAt string `json:"uploaded_at,omitempty"`
}

// UploadedFiles is the response of the per-answer file listing.
type UploadedFiles struct {
	Files []UploadedFile `json:"files"`
	Count int            `json:"count"`
}
