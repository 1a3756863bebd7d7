// Package console drives an exam session from a line-oriented terminal.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-client/internal/render"
	"github.com/stemsi/exstem-client/internal/screen"
	"github.com/stemsi/exstem-client/internal/service"
)

// ErrQuit is returned by Run when the candidate quits.
var ErrQuit = errors.New("quit")

// Console renders the current screen and reads commands for it.
type Console struct {
	svc *service.ExamService
	in  *bufio.Scanner
	out io.Writer
	log zerolog.Logger

	// open opens upload candidates; replaced in tests.
	open func(path string) (io.ReadCloser, error)
	// create creates the question paper file; replaced in tests.
	create func(path string) (io.WriteCloser, error)
}

// New creates a console reading commands from in and writing to out.
func New(svc *service.ExamService, in io.Reader, out io.Writer, log zerolog.Logger) *Console {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	return &Console{
		svc: svc,
		in:  sc,
		out: out,
		log: log.With().Str("component", "console").Logger(),
		open: func(path string) (io.ReadCloser, error) {
			return os.Open(path)
		},
		create: func(path string) (io.WriteCloser, error) {
			return os.Create(path)
		},
	}
}

// Run loops over screens until the input ends, the candidate quits, or ctx
// is cancelled. End of input and quitting both return nil.
func (c *Console) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		var err error
		switch c.svc.Screens().Current() {
		case screen.Setup:
			err = c.setup(ctx)
		case screen.Ready:
			err = c.ready(ctx)
		case screen.Exam:
			err = c.exam(ctx)
		case screen.Submission:
			err = c.submission(ctx)
		case screen.Evaluation:
			err = c.evaluation(ctx)
		}
		if errors.Is(err, io.EOF) || errors.Is(err, ErrQuit) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// readLine prints prompt and returns the next trimmed input line.
func (c *Console) readLine(prompt string) (string, error) {
	fmt.Fprint(c.out, prompt)
	if !c.in.Scan() {
		if err := c.in.Err(); err != nil {
			return "", err
		}
		fmt.Fprintln(c.out)
		return "", io.EOF
	}
	return strings.TrimSpace(c.in.Text()), nil
}

func (c *Console) printf(format string, args ...interface{}) {
	fmt.Fprintf(c.out, format, args...)
}

// showStatus prints the last status message, if any.
func (c *Console) showStatus() {
	st := c.svc.Status()
	if st.Text == "" {
		return
	}
	mark := "i"
	switch st.Kind {
	case service.StatusSuccess:
		mark = "+"
	case service.StatusError:
		mark = "!"
	}
	c.printf("[%s] %s\n", mark, st.Text)
}

// report prints err unless the service already surfaced it as status.
func (c *Console) report(err error) {
	if err == nil {
		c.showStatus()
		return
	}
	if st := c.svc.Status(); st.Kind == service.StatusError && st.Text != "" {
		c.showStatus()
		return
	}
	c.printf("[!] %s\n", service.Message(err))
}

func (c *Console) openFiles(paths []string) ([]service.File, func(), error) {
	var closers []io.Closer
	closeAll := func() {
		for _, cl := range closers {
			cl.Close()
		}
	}
	files := make([]service.File, 0, len(paths))
	for _, p := range paths {
		f, err := c.open(p)
		if err != nil {
			closeAll()
			return nil, func() {}, fmt.Errorf("open %s: %w", p, err)
		}
		closers = append(closers, f)
		files = append(files, service.File{Name: filepath.Base(p), Body: f})
	}
	return files, closeAll, nil
}

func (c *Console) ready(ctx context.Context) error {
	exam := c.svc.Store().Exam()
	if exam == nil {
		c.svc.Reset()
		return nil
	}
	c.printf("\n%s\n", exam.Title())
	c.printf("Total marks: %d   Duration: %s   Questions: %d\n",
		exam.TotalMarks, render.FormatDuration(exam.DurationMinutes), exam.TotalQuestions)
	c.printf("Proctoring is active once the exam starts: leaving the window or fullscreen is recorded.\n")

	line, err := c.readLine("Press Enter to start (q to quit): ")
	if err != nil {
		return err
	}
	if line == "q" {
		return ErrQuit
	}
	c.report(c.svc.StartExam(ctx))
	return nil
}

func (c *Console) submission(ctx context.Context) error {
	c.printf("\nSubmission. Upload answer sheets (PDF) or submit.\n")
	c.printf("  u [N] <file>...   upload sheets, optionally for question N\n")
	c.printf("  submit            submit the exam\n")
	c.showStatus()

	line, err := c.readLine("submission> ")
	if err != nil {
		return err
	}
	if c.svc.Screens().Current() != screen.Submission {
		return nil
	}

	cmd, args := splitCommand(line)
	switch cmd {
	case "":
	case "u":
		number := 0
		if len(args) > 1 {
			if n, ok := parsePositive(args[0]); ok {
				number, args = n, args[1:]
			}
		}
		files, closeAll, err := c.openFiles(args)
		if err != nil {
			c.report(err)
			return nil
		}
		defer closeAll()
		_, err = c.svc.FinalUpload(ctx, number, files...)
		c.report(err)
	case "submit":
		c.report(c.svc.Submit(ctx))
	case "q":
		return ErrQuit
	default:
		c.printf("Unknown command %q\n", cmd)
	}
	return nil
}

const evaluationHelp = `Commands:
  report <file>   save the evaluation report as HTML
  paper <file>    save the question paper as HTML
  r               evaluate again
  n               start a new exam
  q               quit
`

func (c *Console) evaluation(ctx context.Context) error {
	c.printf("\nEvaluating...\n")
	ev, err := c.svc.LoadEvaluation(ctx)
	if err != nil {
		c.report(err)
	} else {
		c.printEvaluation(ev)
	}
	fmt.Fprint(c.out, evaluationHelp)

	for {
		line, err := c.readLine("evaluation> ")
		if err != nil {
			return err
		}
		cmd, args := splitCommand(line)
		switch cmd {
		case "":
		case "r":
			return nil
		case "n":
			c.svc.Reset()
			return nil
		case "q":
			return ErrQuit
		case "report":
			c.save(cmd, strings.Join(args, " "), "Evaluation report", c.svc.WriteReport)
		case "paper":
			c.save(cmd, strings.Join(args, " "), "Question paper", c.svc.WriteQuestionPaper)
		default:
			c.printf("Unknown command %q\n", cmd)
		}
	}
}

// save writes one evaluation document to path.
func (c *Console) save(cmd, path, what string, write func(io.Writer) error) {
	if path == "" {
		c.printf("Usage: %s <file>\n", cmd)
		return
	}
	f, err := c.create(path)
	if err != nil {
		c.printf("[!] %s\n", service.Message(fmt.Errorf("create %s: %w", path, err)))
		return
	}
	err = write(f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		c.printf("[!] %s\n", service.Message(err))
		return
	}
	c.printf("%s saved to %s\n", what, path)
}

func (c *Console) printEvaluation(ev service.Evaluation) {
	WriteEvaluation(c.out, ev)
}

// WriteEvaluation prints the summary and report that are present in ev.
func WriteEvaluation(w io.Writer, ev service.Evaluation) {
	if s := ev.Summary; s != nil {
		fmt.Fprintf(w, "\nExam %d: %s - Class %d - %s [%s]\n", s.ExamID, s.Board, s.Class, s.Subject, s.Status)
		fmt.Fprintf(w, "Answered %d of %d, %d PDF(s) uploaded\n", s.AnsweredQuestions, s.TotalQuestions, s.TotalUploadedPDFs)
		if s.MarksAchieved != nil {
			fmt.Fprintf(w, "Marks: %.1f / %d", *s.MarksAchieved, s.TotalMarks)
			if s.Percentage != nil {
				fmt.Fprintf(w, " (%.1f%%)", *s.Percentage)
			}
			fmt.Fprintln(w)
		}
		if s.TimeTakenMinutes != nil {
			fmt.Fprintf(w, "Time taken: %s of %s\n", render.FormatDuration(*s.TimeTakenMinutes), render.FormatDuration(s.DurationMinutes))
		}
	}
	if ev.Report != nil {
		fmt.Fprintf(w, "\n%s\n", ev.Report.EvaluationReport)
	}
}

func splitCommand(line string) (string, []string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", nil
	}
	return fields[0], fields[1:]
}
