package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// QuestionType is the backend's question category.
type QuestionType string

const (
	QuestionTypeMCQ         QuestionType = "MCQ"
	QuestionTypeShortAnswer QuestionType = "Short Answer"
	QuestionTypeLongAnswer  QuestionType = "Long Answer"
	QuestionTypeCaseStudy   QuestionType = "Case Study"
	QuestionTypeNumerical   QuestionType = "Numerical"
)

// Question is immutable once fetched.
type Question struct {
	ID                      int64        `json:"id"`
	Section                 string       `json:"section"`
	SequenceNumber          int          `json:"sequence_number"`
	QuestionText            string       `json:"question_text"`
	QuestionType            QuestionType `json:"question_type"`
	Marks                   int          `json:"marks"`
	HasInternalChoice       bool         `json:"has_internal_choice"`
	AlternativeQuestionText *string      `json:"alternative_question_text,omitempty"`
	Options                 Options      `json:"options_json,omitempty"`
}

// IsMCQ reports whether the question is answered by picking an option.
func (q Question) IsMCQ() bool {
	return q.QuestionType == QuestionTypeMCQ && len(q.Options) > 0
}

// HasAlternative reports whether an internal-choice alternative can be answered instead.
func (q Question) HasAlternative() bool {
	return q.HasInternalChoice && q.AlternativeQuestionText != nil && *q.AlternativeQuestionText != ""
}

// Option is one MCQ option.
type Option struct {
	Key  string
	Text string
}

// Options is an ordered option-key → option-text mapping.
// It decodes from a JSON object and keeps the object's key order.
type Options []Option

// Has reports whether key is one of the options.
func (o Options) Has(key string) bool {
	for _, opt := range o {
		if opt.Key == key {
			return true
		}
	}
	return false
}

func (o *Options) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*o = nil
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("options: expected object, got %v", tok)
	}

	var out Options
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("options: expected string key, got %v", keyTok)
		}
		var text string
		if err := dec.Decode(&text); err != nil {
			return fmt.Errorf("options[%s]: %w", key, err)
		}
		out = append(out, Option{Key: key, Text: text})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	*o = out
	return nil
}

func (o Options) MarshalJSON() ([]byte, error) {
	if o == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, opt := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(opt.Key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(opt.Text)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
