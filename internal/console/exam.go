package console

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/stemsi/exstem-client/internal/model"
	"github.com/stemsi/exstem-client/internal/render"
	"github.com/stemsi/exstem-client/internal/screen"
)

const examHelp = `Commands:
  n, p                next or previous question (n on the last one finishes)
  g N                 go to question N
  t <text>            set the typed answer
  o <key>             select an MCQ option
  c main|alternative  choose which question to answer
  s                   save the answer
  u <file>            upload a PDF for this question
  paper <file>        save the question paper as HTML for printing
  fs                  return to fullscreen
  submit              finish the exam
  v                   list recorded violations
  ?                   this help
`

func (c *Console) exam(ctx context.Context) error {
	c.renderExam()

	snap := c.svc.Store().Snapshot()
	line, err := c.readLine(fmt.Sprintf("[%s] Q%d> ", render.FormatTime(snap.TimerRemaining), snap.CurrentIndex+1))
	if err != nil {
		return err
	}
	if c.svc.Screens().Current() != screen.Exam {
		c.printf("The exam screen has closed, %q was not applied.\n", line)
		c.showStatus()
		return nil
	}

	cmd, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch cmd {
	case "":
	case "n":
		c.report(c.svc.Next(ctx))
	case "p":
		c.report(c.svc.Previous(ctx))
	case "g":
		n, ok := parsePositive(rest)
		if !ok {
			c.printf("Usage: g N\n")
			return nil
		}
		c.report(c.svc.Navigate(ctx, n-1))
	case "t":
		c.report(c.svc.SetTypedAnswer(rest))
	case "o":
		c.report(c.svc.SelectOption(strings.ToUpper(rest)))
	case "c":
		c.report(c.svc.SelectChoice(model.Choice(strings.ToLower(rest))))
	case "s":
		_, err := c.svc.SaveAnswer(ctx)
		c.report(err)
	case "u":
		files, closeAll, err := c.openFiles([]string{rest})
		if err != nil {
			c.report(err)
			return nil
		}
		defer closeAll()
		_, err = c.svc.UploadPDF(ctx, files[0])
		c.report(err)
	case "paper":
		return c.paper(rest)
	case "fs":
		c.report(c.svc.ReturnToFullscreen(ctx))
	case "submit":
		c.report(c.svc.SubmitNow())
	case "v":
		c.printViolations()
	case "?", "help":
		c.printf("%s", examHelp)
	case "q":
		return ErrQuit
	default:
		c.printf("Unknown command %q, ? for help\n", cmd)
	}
	return nil
}

func (c *Console) renderExam() {
	snap := c.svc.Store().Snapshot()
	draft := c.svc.Draft()
	proctoring := c.svc.Monitor().Status()

	c.printf("\n")
	if class := render.TimerClass(snap.TimerRemaining); class != "" {
		c.printf("Time left: %s (%s)\n", render.FormatTime(snap.TimerRemaining), class)
	} else {
		c.printf("Time left: %s\n", render.FormatTime(snap.TimerRemaining))
	}
	c.printf("%s\n%s\n", render.Navigator(snap), render.NavigatorLegend)

	if proctoring.NeedsFullscreen {
		c.printf("\n!! %s (%d violation(s) recorded)\n", proctoring.LastMessage, len(proctoring.Violations))
		c.printf("!! fs to return to fullscreen, submit to finish now\n")
	}

	q, ok := snap.Current()
	if !ok {
		return
	}
	c.printf("\nQ%d. (Section %s) [%d marks]\n", q.SequenceNumber, q.Section, q.Marks)
	if q.HasAlternative() && draft.Choice == model.ChoiceAlternative {
		c.printf("%s\n", *q.AlternativeQuestionText)
		c.printf("(answering the alternative, c main to switch)\n")
	} else {
		c.printf("%s\n", q.QuestionText)
		if q.HasAlternative() {
			c.printf("OR: %s\n(c alternative to answer it instead)\n", *q.AlternativeQuestionText)
		}
	}

	for _, opt := range q.Options {
		mark := " "
		if opt.Key == draft.Option {
			mark = "x"
		}
		c.printf("  [%s] %s) %s\n", mark, opt.Key, opt.Text)
	}
	if draft.Typed != "" {
		c.printf("Your answer: %s\n", draft.Typed)
	}
	for _, f := range draft.Files {
		c.printf("Uploaded: %s (%d bytes)\n", f.Filename, f.FileSize)
	}
	c.showStatus()
}

// paper writes the question paper to path and keeps proctoring paused until
// the candidate confirms printing is done.
func (c *Console) paper(path string) error {
	if path == "" {
		c.printf("Usage: paper <file>\n")
		return nil
	}
	f, err := c.create(path)
	if err != nil {
		c.report(fmt.Errorf("create %s: %w", path, err))
		return nil
	}

	closed := make(chan struct{})
	defer close(closed)

	err = c.svc.DownloadPaper(f, closed)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		c.report(err)
		return nil
	}

	c.printf("Question paper saved to %s. Proctoring is paused while you print it.\n", path)
	_, err = c.readLine("Press Enter when done printing: ")
	return err
}

func (c *Console) printViolations() {
	st := c.svc.Monitor().Status()
	if len(st.Violations) == 0 {
		c.printf("No violations recorded.\n")
		return
	}
	for _, v := range st.Violations {
		c.printf("  %s  %s\n", v.At.Local().Format("15:04:05"), v.Reason)
	}
}

func parsePositive(s string) (int, bool) {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
