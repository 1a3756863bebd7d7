package model

import "time"

// Violation is one recorded proctoring signal.
type Violation struct {
	ID     string    `json:"id"`
	ExamID int64     `json:"exam_id"`
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}
