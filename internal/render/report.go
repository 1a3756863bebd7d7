package render

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/stemsi/exstem-client/internal/model"
)

var reportTmpl = template.Must(template.ParseFS(templateFS, "templates/report.html"))

type reportItem struct {
	Label string
	Value string
}

type reportView struct {
	Board     model.Board
	Class     int
	Subject   string
	Items     []reportItem
	Report    string
	Generated string
}

// WriteReport renders the evaluation summary and the markdown report as a
// printable page. The markdown is embedded as text and typeset by the viewer.
func WriteReport(w io.Writer, exam model.Exam, summary *model.EvaluationSummary, report *model.EvaluationResult, generated time.Time) error {
	view := reportView{
		Board:     exam.Board,
		Class:     exam.ClassNum,
		Subject:   exam.Subject,
		Generated: generated.Format("2006-01-02 15:04"),
	}
	if summary != nil {
		view.Items = summaryItems(summary)
	}
	if report != nil {
		view.Report = report.EvaluationReport
	}
	if err := reportTmpl.Execute(w, view); err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	return nil
}

func summaryItems(s *model.EvaluationSummary) []reportItem {
	items := []reportItem{
		{"Status", string(s.Status)},
		{"Questions Answered", fmt.Sprintf("%d / %d", s.AnsweredQuestions, s.TotalQuestions)},
		{"PDFs Uploaded", fmt.Sprint(s.TotalUploadedPDFs)},
	}
	if s.MarksAchieved != nil {
		items = append(items, reportItem{"Marks", fmt.Sprintf("%.1f / %d", *s.MarksAchieved, s.TotalMarks)})
	} else {
		items = append(items, reportItem{"Total Marks", fmt.Sprint(s.TotalMarks)})
	}
	if s.Percentage != nil {
		items = append(items, reportItem{"Percentage", fmt.Sprintf("%.1f%%", *s.Percentage)})
	}
	if s.TimeTakenMinutes != nil {
		items = append(items, reportItem{"Time Taken", FormatDuration(*s.TimeTakenMinutes)})
	}
	return append(items, reportItem{"Duration", FormatDuration(s.DurationMinutes)})
}
