package render

import (
	"embed"
	"fmt"
	"html/template"
	"io"

	"github.com/stemsi/exstem-client/internal/model"
)

//go:embed templates/*.html
var templateFS embed.FS

var paperTmpl = template.Must(template.ParseFS(templateFS, "templates/paper.html"))

var paperInstructions = []string{
	"Read all questions carefully before answering",
	"Answer questions in the provided answer sheet",
	"For questions with OR, answer only ONE option",
	"All questions are compulsory unless otherwise stated",
}

type paperView struct {
	Title        string
	TotalMarks   int
	Duration     string
	Instructions []string
	Questions    []model.Question
}

// WritePaper renders the printable question paper. Question text is written
// as-is (escaped), so TeX markup is left for the viewer to typeset.
func WritePaper(w io.Writer, exam model.Exam, questions []model.Question) error {
	view := paperView{
		Title:        exam.Title(),
		TotalMarks:   exam.TotalMarks,
		Duration:     FormatDuration(exam.DurationMinutes),
		Instructions: paperInstructions,
		Questions:    questions,
	}
	if err := paperTmpl.Execute(w, view); err != nil {
		return fmt.Errorf("render paper: %w", err)
	}
	return nil
}
