package model

import "fmt"

// ExamStatus enumerates the lifecycle of an exam attempt as reported by the backend.
type ExamStatus string

const (
	ExamStatusCreated    ExamStatus = "CREATED"
	ExamStatusInProgress ExamStatus = "IN_PROGRESS"
	// ExamStatusStarted is accepted as a synonym of IN_PROGRESS.
	ExamStatusStarted   ExamStatus = "STARTED"
	ExamStatusSubmitted ExamStatus = "SUBMITTED"
	ExamStatusEvaluated ExamStatus = "EVALUATED"
)

// IsStarted reports whether the attempt is running.
func (s ExamStatus) IsStarted() bool {
	return s == ExamStatusInProgress || s == ExamStatusStarted
}

// IsFinal reports whether the attempt no longer accepts answers.
func (s ExamStatus) IsFinal() bool {
	return s == ExamStatusSubmitted || s == ExamStatusEvaluated
}

// Board is the examination board the paper is generated for.
type Board string

const (
	BoardCBSE  Board = "CBSE"
	BoardICSE  Board = "ICSE"
	BoardWBBSE Board = "WBBSE"
)

// Difficulty controls question generation on the backend.
type Difficulty string

const (
	DifficultyEasy         Difficulty = "easy"
	DifficultyMedium       Difficulty = "medium"
	DifficultyHard         Difficulty = "hard"
	DifficultyExtreme      Difficulty = "extreme"
	DifficultyUltraExtreme Difficulty = "ultra_extreme"
)

// Exam identifies the active exam attempt.
type Exam struct {
	ID                   int64      `json:"id"`
	Board                Board      `json:"board"`
	ClassNum             int        `json:"class_num"`
	Subject              string     `json:"subject"`
	ChapterFocus         *string    `json:"chapter_focus,omitempty"`
	DurationMinutes      int        `json:"duration_minutes"`
	TotalMarks           int        `json:"total_marks"`
	TotalQuestions       int        `json:"total_questions"`
	Status               ExamStatus `json:"status"`
	StartedAt            *string    `json:"started_at,omitempty"`
	CurrentQuestionIndex int        `json:"current_question_index"`
}

// Title is the heading used on the ready screen and the question paper.
func (e Exam) Title() string {
	return fmt.Sprintf("%s - Class %d - %s", e.Board, e.ClassNum, e.Subject)
}

// CreateExamRequest is the payload for generating a new exam.
type CreateExamRequest struct {
	UserName              string     `json:"user_name" validate:"required,max=200"`
	UserEmail             string     `json:"user_email" validate:"required,email"`
	Board                 Board      `json:"board" validate:"required,oneof=CBSE ICSE WBBSE"`
	ClassNum              int        `json:"class_num" validate:"required,min=6,max=12"`
	Subject               string     `json:"subject" validate:"required,max=100"`
	ChapterFocus          string     `json:"chapter_focus,omitempty"`
	DifficultyLevel       Difficulty `json:"difficulty_level,omitempty" validate:"omitempty,oneof=easy medium hard extreme ultra_extreme"`
	CustomDurationMinutes *int       `json:"custom_duration_minutes,omitempty" validate:"omitempty,min=1"`
	SyllabusContent       string     `json:"syllabus_content,omitempty"`
}

// StartExamRequest is the payload for starting an exam.
type StartExamRequest struct {
	ExamID int64 `json:"exam_id"`
}

// SyllabusResult is returned by the syllabus upload endpoint.
type SyllabusResult struct {
	SyllabusContent string `json:"syllabus_content"`
}

// SubmitResult is returned by the submit endpoint.
type SubmitResult struct {
	Message string     `json:"message"`
	ExamID  int64      `json:"exam_id"`
	Status  ExamStatus `json:"status,omitempty"`
}

// AIInfo is the non-secret AI runtime info the backend exposes.
type AIInfo struct {
	ConfiguredModel   string   `json:"configured_model"`
	FallbackModels    []string `json:"fallback_models"`
	APIKeysConfigured int      `json:"api_keys_configured"`
	LastModelUsed     *string  `json:"last_model_used"`
	LastAPIKeyIndex   *int     `json:"last_api_key_index"`
}
