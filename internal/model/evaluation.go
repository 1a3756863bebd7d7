package model

// EvaluationResult carries the AI-generated report (markdown with LaTeX).
type EvaluationResult struct {
	ExamID           int64  `json:"exam_id"`
	EvaluationReport string `json:"evaluation_report"`
	EvaluatedAt      string `json:"evaluated_at,omitempty"`
}

// EvaluationSummary is the post-exam overview.
type EvaluationSummary struct {
	ExamID              int64      `json:"exam_id"`
	Board               Board      `json:"board"`
	Class               int        `json:"class"`
	Subject             string     `json:"subject"`
	Status              ExamStatus `json:"status"`
	TotalQuestions      int        `json:"total_questions"`
	AnsweredQuestions   int        `json:"answered_questions"`
	UnansweredQuestions int        `json:"unanswered_questions"`
	TotalUploadedPDFs   int        `json:"total_uploaded_pdfs"`
	TotalMarks          int        `json:"total_marks"`
	MarksAchieved       *float64   `json:"marks_achieved"`
	Percentage          *float64   `json:"percentage"`
	DurationMinutes     int        `json:"duration_minutes"`
	TimeTakenMinutes    *int       `json:"time_taken_minutes"`
	StartedAt           *string    `json:"started_at,omitempty"`
	SubmittedAt         *string    `json:"submitted_at,omitempty"`
	EvaluatedAt         *string    `json:"evaluated_at,omitempty"`
}
