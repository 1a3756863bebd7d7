package service

import (
	"errors"

	"github.com/stemsi/exstem-client/internal/gateway"
	"github.com/stemsi/exstem-client/internal/validator"
)

// StatusKind classifies a status message.
type StatusKind string

const (
	StatusInfo    StatusKind = "info"
	StatusSuccess StatusKind = "success"
	StatusError   StatusKind = "error"
)

// Status is the last user-facing message.
type Status struct {
	Text string     `json:"text"`
	Kind StatusKind `json:"kind"`
}

// Status returns the last status message.
func (s *ExamService) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *ExamService) setStatus(kind StatusKind, text string) {
	s.mu.Lock()
	s.status = Status{Text: text, Kind: kind}
	s.mu.Unlock()
}

func (s *ExamService) clearStatus() {
	s.mu.Lock()
	s.status = Status{}
	s.mu.Unlock()
}

// fail records err as an error status and returns it.
func (s *ExamService) fail(err error) error {
	s.setStatus(StatusError, Message(err))
	return err
}

// Message renders err for the candidate: validation messages and backend
// details as-is, anything else prefixed with "Error: ".
func Message(err error) string {
	var ve *validator.ValidationError
	if errors.As(err, &ve) {
		return ve.Error()
	}
	var apiErr *gateway.APIError
	if errors.As(err, &apiErr) {
		return "Error: " + apiErr.Detail
	}
	for _, known := range []error{ErrNoAnswer, ErrNotPDF, ErrNoFiles, ErrNotSubmitted} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return "Error: " + err.Error()
}
