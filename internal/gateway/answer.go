package gateway

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/stemsi/exstem-client/internal/model"
)

// SaveAnswer creates or updates the answer for a question.
func (c *Client) SaveAnswer(ctx context.Context, req model.SaveAnswerRequest) (*model.Answer, error) {
	var answer model.Answer
	if err := c.doJSON(ctx, http.MethodPost, "/answer/save", req, &answer); err != nil {
		return nil, err
	}
	return &answer, nil
}

// GetAnswer returns the persisted answer, or nil when none exists yet.
func (c *Client) GetAnswer(ctx context.Context, examID, questionID int64) (*model.Answer, error) {
	var answer *model.Answer
	if err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/answer/get/%d/%d", examID, questionID), nil, &answer); err != nil {
		return nil, err
	}
	return answer, nil
}

// UploadPDF attaches a PDF to a question's answer.
func (c *Client) UploadPDF(ctx context.Context, examID, questionID int64, filename string, file io.Reader) (*model.UploadedFile, error) {
	var uf model.UploadedFile
	path := fmt.Sprintf("/answer/upload-pdf/%d/%d", examID, questionID)
	if err := c.doMultipart(ctx, path, "file", filename, file, nil, &uf); err != nil {
		return nil, err
	}
	return &uf, nil
}

// FinalUpload attaches a PDF during the submission phase. questionNumber 0
// uploads a whole answer sheet.
func (c *Client) FinalUpload(ctx context.Context, examID int64, questionNumber int, filename string, file io.Reader) (*model.UploadedFile, error) {
	var uf model.UploadedFile
	fields := map[string]string{"question_number": strconv.Itoa(questionNumber)}
	if err := c.doMultipart(ctx, fmt.Sprintf("/answer/final-upload/%d", examID), "file", filename, file, fields, &uf); err != nil {
		return nil, err
	}
	return &uf, nil
}

// ListUploadedFiles lists the PDFs attached to an answer.
func (c *Client) ListUploadedFiles(ctx context.Context, answerID int64) ([]model.UploadedFile, error) {
	var res model.UploadedFiles
	if err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/answer/%d/files", answerID), nil, &res); err != nil {
		return nil, err
	}
	return res.Files, nil
}
