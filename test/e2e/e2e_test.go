//go:build e2e
// +build e2e

package e2e

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-client/internal/gateway"
	"github.com/stemsi/exstem-client/internal/model"
)

const (
	defaultBaseURL = "http://localhost:8000/api"
	// Exam generation calls the AI provider and can take minutes.
	requestTimeout = 5 * time.Minute
)

var client *gateway.Client

// minimalPDF is a one-page PDF small enough to inline.
var minimalPDF = []byte("%PDF-1.4\n1 0 obj<</Type/Catalog/Pages 2 0 R>>endobj\n" +
	"2 0 obj<</Type/Pages/Kids[3 0 R]/Count 1>>endobj\n" +
	"3 0 obj<</Type/Page/Parent 2 0 R/MediaBox[0 0 612 792]>>endobj\n" +
	"trailer<</Root 1 0 R>>\n%%EOF\n")

func TestMain(m *testing.M) {
	// Load .env if present (ignore error)
	_ = godotenv.Load("../../.env")

	baseURL := os.Getenv("EXSTEM_API_BASE_URL")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	client = gateway.New(baseURL, requestTimeout, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	_, err := client.AIInfo(ctx)
	cancel()
	if err != nil {
		fmt.Printf("Backend at %s is not reachable: %v\n", baseURL, err)
		os.Exit(1)
	}

	os.Exit(m.Run())
}

func TestE2EFlow(t *testing.T) {
	ctx := context.Background()
	var (
		exam      *model.Exam
		questions []model.Question
	)

	t.Run("CreateExam", func(t *testing.T) {
		duration := 30
		var err error
		exam, err = client.CreateExam(ctx, model.CreateExamRequest{
			UserName:              "E2E Candidate",
			UserEmail:             "e2e@example.com",
			Board:                 model.BoardCBSE,
			ClassNum:              10,
			Subject:               "Mathematics",
			DifficultyLevel:       model.DifficultyEasy,
			CustomDurationMinutes: &duration,
		})
		if err != nil {
			t.Fatalf("create exam: %s", gateway.Detail(err))
		}
		if exam.ID == 0 || exam.DurationMinutes != duration {
			t.Fatalf("unexpected exam: %+v", exam)
		}
		t.Logf("Exam %d created: %s", exam.ID, exam.Title())
	})
	if exam == nil {
		t.FailNow()
	}

	t.Run("StartAndFetchQuestions", func(t *testing.T) {
		if err := client.StartExam(ctx, exam.ID); err != nil {
			t.Fatalf("start exam: %s", gateway.Detail(err))
		}
		var err error
		questions, err = client.GetQuestions(ctx, exam.ID)
		if err != nil {
			t.Fatalf("questions: %s", gateway.Detail(err))
		}
		if len(questions) == 0 {
			t.Fatal("no questions generated")
		}
	})
	if len(questions) == 0 {
		t.FailNow()
	}

	t.Run("TimerIsRunning", func(t *testing.T) {
		timer, err := client.GetTimer(ctx, exam.ID)
		if err != nil {
			t.Fatalf("timer: %s", gateway.Detail(err))
		}
		if !timer.ExamStarted || timer.AutoSubmit {
			t.Errorf("unexpected timer state: %+v", timer)
		}
		if timer.TimeRemainingSeconds <= 0 || timer.TimeRemainingSeconds > exam.DurationMinutes*60 {
			t.Errorf("remaining %d outside (0, %d]", timer.TimeRemainingSeconds, exam.DurationMinutes*60)
		}
	})

	t.Run("SaveAndReloadAnswer", func(t *testing.T) {
		q := questions[0]
		req := model.SaveAnswerRequest{ExamID: exam.ID, QuestionID: q.ID, SelectedChoice: model.ChoiceMain}
		if q.IsMCQ() && len(q.Options) > 0 {
			key := q.Options[0].Key
			req.SelectedOption = &key
		} else {
			text := "e2e answer"
			req.TypedAnswer = &text
		}
		if _, err := client.SaveAnswer(ctx, req); err != nil {
			t.Fatalf("save: %s", gateway.Detail(err))
		}

		got, err := client.GetAnswer(ctx, exam.ID, q.ID)
		if err != nil {
			t.Fatalf("reload: %s", gateway.Detail(err))
		}
		if got == nil {
			t.Fatal("saved answer not returned")
		}
	})

	t.Run("UploadPDF", func(t *testing.T) {
		file, err := client.UploadPDF(ctx, exam.ID, questions[0].ID, "e2e.pdf", bytes.NewReader(minimalPDF))
		if err != nil {
			t.Fatalf("upload: %s", gateway.Detail(err))
		}
		if file.FileSize == 0 {
			t.Errorf("unexpected upload: %+v", file)
		}
	})

	t.Run("SubmitAndEvaluate", func(t *testing.T) {
		if _, err := client.SubmitExam(ctx, exam.ID); err != nil {
			t.Fatalf("submit: %s", gateway.Detail(err))
		}
		report, err := client.Evaluate(ctx, exam.ID)
		if err != nil {
			t.Fatalf("evaluate: %s", gateway.Detail(err))
		}
		if report.EvaluationReport == "" {
			t.Error("empty evaluation report")
		}

		summary, err := client.GetSummary(ctx, exam.ID)
		if err != nil {
			t.Fatalf("summary: %s", gateway.Detail(err))
		}
		if summary.AnsweredQuestions < 1 {
			t.Errorf("expected at least one answered question, got %+v", summary)
		}
	})
}
