package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/stemsi/exstem-client/internal/model"
)

// CreateExam generates a new exam paper.
func (c *Client) CreateExam(ctx context.Context, req model.CreateExamRequest) (*model.Exam, error) {
	var exam model.Exam
	if err := c.doJSON(ctx, http.MethodPost, "/exam/create", req, &exam); err != nil {
		return nil, err
	}
	return &exam, nil
}

// UploadSyllabus extracts syllabus text from a PDF.
func (c *Client) UploadSyllabus(ctx context.Context, filename string, file io.Reader) (*model.SyllabusResult, error) {
	var res model.SyllabusResult
	if err := c.doMultipart(ctx, "/exam/upload-syllabus", "syllabus", filename, file, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// StartExam moves the exam to IN_PROGRESS and starts the server-side clock.
func (c *Client) StartExam(ctx context.Context, examID int64) error {
	return c.doJSON(ctx, http.MethodPost, "/exam/start", model.StartExamRequest{ExamID: examID}, nil)
}

// GetQuestions returns the ordered question list.
func (c *Client) GetQuestions(ctx context.Context, examID int64) ([]model.Question, error) {
	var questions []model.Question
	if err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/exam/%d/questions", examID), nil, &questions); err != nil {
		return nil, err
	}
	return questions, nil
}

// GetTimer returns the server's remaining time.
func (c *Client) GetTimer(ctx context.Context, examID int64) (*model.TimerState, error) {
	var state model.TimerState
	if err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/exam/%d/timer", examID), nil, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// SubmitExam submits the exam. An already-submitted exam yields ErrAlreadySubmitted.
func (c *Client) SubmitExam(ctx context.Context, examID int64) (*model.SubmitResult, error) {
	var res model.SubmitResult
	err := c.doJSON(ctx, http.MethodPost, fmt.Sprintf("/exam/%d/submit", examID), nil, &res)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusBadRequest &&
			strings.Contains(strings.ToLower(apiErr.Detail), "already submitted") {
			return nil, ErrAlreadySubmitted
		}
		return nil, err
	}
	if res.Status == "" {
		res.Status = model.ExamStatusSubmitted
	}
	return &res, nil
}

// AIInfo returns the backend's AI runtime info.
func (c *Client) AIInfo(ctx context.Context) (*model.AIInfo, error) {
	var info model.AIInfo
	if err := c.doJSON(ctx, http.MethodGet, "/ai/info", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}
