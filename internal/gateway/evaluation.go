package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/stemsi/exstem-client/internal/model"
)

type evaluateRequest struct {
	ExamID int64 `json:"exam_id"`
}

// Evaluate runs the AI evaluation. It can take a while; the client timeout applies.
func (c *Client) Evaluate(ctx context.Context, examID int64) (*model.EvaluationResult, error) {
	var res model.EvaluationResult
	if err := c.doJSON(ctx, http.MethodPost, "/evaluation/evaluate", evaluateRequest{ExamID: examID}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// GetReport returns the stored report of an evaluated exam.
func (c *Client) GetReport(ctx context.Context, examID int64) (*model.EvaluationResult, error) {
	var res model.EvaluationResult
	if err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/evaluation/%d/report", examID), nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// GetSummary returns the post-exam summary.
func (c *Client) GetSummary(ctx context.Context, examID int64) (*model.EvaluationSummary, error) {
	var res model.EvaluationSummary
	if err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/evaluation/%d/summary", examID), nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}
