// Package testutil provides an in-process fake of the exam backend.
package testutil

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-client/internal/model"
)

// FakeBackend is a gin server speaking the backend's REST API.
// Mutate its state only inside Update.
type FakeBackend struct {
	server *httptest.Server

	mu sync.Mutex

	Exam      model.Exam
	Questions []model.Question
	// Answers by question id.
	Answers map[int64]*model.Answer
	// Files by answer id.
	Files map[int64][]model.UploadedFile
	// FinalFiles keeps submission-phase uploads by question number.
	FinalFiles map[int][]model.UploadedFile

	TimeRemaining int
	AutoSubmit    bool
	// TimerFailures makes the next N timer polls fail with 500.
	TimerFailures int
	// SubmitError, when set, fails submit with 500 and this detail.
	SubmitError string
	// CreateError, when set, fails exam creation with 500 and this detail.
	CreateError string
	Report      string

	// AnswerGates block GET answer for a question id until the channel is closed.
	AnswerGates map[int64]chan struct{}
	// SaveGates and UploadGates hold answer saves and PDF uploads for a
	// question id the same way.
	SaveGates   map[int64]chan struct{}
	UploadGates map[int64]chan struct{}

	calls  map[string]int
	nextID int64
}

// NewFakeBackend starts the fake backend and stops it on test cleanup.
func NewFakeBackend(t *testing.T) *FakeBackend {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &FakeBackend{
		Answers:     make(map[int64]*model.Answer),
		Files:       make(map[int64][]model.UploadedFile),
		FinalFiles:  make(map[int][]model.UploadedFile),
		AnswerGates: make(map[int64]chan struct{}),
		SaveGates:   make(map[int64]chan struct{}),
		UploadGates: make(map[int64]chan struct{}),
		Report:      "## Report\n\nScore: 42",
		calls:       make(map[string]int),
		nextID:      100,
	}

	f.server = httptest.NewServer(f.routes())
	t.Cleanup(f.server.Close)
	return f
}

// URL is the API base URL to hand to the gateway.
func (f *FakeBackend) URL() string {
	return f.server.URL + "/api"
}

// Update runs fn with the backend state locked.
func (f *FakeBackend) Update(fn func(f *FakeBackend)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

// Calls returns how often the named route was hit.
func (f *FakeBackend) Calls(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

// SeedQuestions installs n questions. Even sequence numbers are MCQ,
// odd ones have an internal choice.
func (f *FakeBackend) SeedQuestions(n int) {
	f.Update(func(f *FakeBackend) {
		f.Questions = f.Questions[:0]
		for i := 0; i < n; i++ {
			q := model.Question{
				ID:             int64(i + 1),
				Section:        "A",
				SequenceNumber: i + 1,
				QuestionText:   fmt.Sprintf("Question %d", i+1),
				QuestionType:   model.QuestionTypeShortAnswer,
				Marks:          2,
			}
			if i%2 == 0 {
				q.QuestionType = model.QuestionTypeMCQ
				q.Marks = 1
				q.Options = model.Options{{Key: "A", Text: "alpha"}, {Key: "B", Text: "beta"}}
			} else {
				alt := fmt.Sprintf("Alternative %d", i+1)
				q.HasInternalChoice = true
				q.AlternativeQuestionText = &alt
			}
			f.Questions = append(f.Questions, q)
		}
		f.Exam.TotalQuestions = n
	})
}

func (f *FakeBackend) hit(name string) {
	f.mu.Lock()
	f.calls[name]++
	f.mu.Unlock()
}

func (f *FakeBackend) id() int64 {
	f.nextID++
	return f.nextID
}

func detail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"detail": msg})
}

func (f *FakeBackend) routes() http.Handler {
	r := gin.New()
	api := r.Group("/api")

	api.POST("/exam/create", f.createExam)
	api.POST("/exam/upload-syllabus", f.uploadSyllabus)
	api.POST("/exam/start", f.startExam)
	api.GET("/exam/:exam_id/questions", f.questions)
	api.GET("/exam/:exam_id/timer", f.timer)
	api.POST("/exam/:exam_id/submit", f.submit)

	api.POST("/answer/save", f.saveAnswer)
	api.GET("/answer/get/:exam_id/:question_id", f.getAnswer)
	api.POST("/answer/upload-pdf/:exam_id/:question_id", f.uploadPDF)
	api.POST("/answer/final-upload/:exam_id", f.finalUpload)
	api.GET("/answer/:answer_id/files", f.listFiles)

	api.POST("/evaluation/evaluate", f.evaluate)
	api.GET("/evaluation/:exam_id/report", f.report)
	api.GET("/evaluation/:exam_id/summary", f.summary)

	api.GET("/ai/info", f.aiInfo)
	return r
}

func (f *FakeBackend) createExam(c *gin.Context) {
	f.hit("create")
	var req model.CreateExamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"detail": []gin.H{
			{"loc": []string{"body"}, "msg": err.Error(), "type": "value_error"},
		}})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateError != "" {
		detail(c, http.StatusInternalServerError, f.CreateError)
		return
	}

	duration := 90
	if req.CustomDurationMinutes != nil {
		duration = *req.CustomDurationMinutes
	}
	f.Exam = model.Exam{
		ID:              f.id(),
		Board:           req.Board,
		ClassNum:        req.ClassNum,
		Subject:         req.Subject,
		DurationMinutes: duration,
		TotalMarks:      80,
		TotalQuestions:  len(f.Questions),
		Status:          model.ExamStatusCreated,
	}
	if f.TimeRemaining == 0 {
		f.TimeRemaining = duration * 60
	}
	c.JSON(http.StatusOK, f.Exam)
}

func (f *FakeBackend) uploadSyllabus(c *gin.Context) {
	f.hit("syllabus")
	fh, err := c.FormFile("syllabus")
	if err != nil {
		detail(c, http.StatusBadRequest, "Only PDF files are allowed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"syllabus_content": "extracted from " + fh.Filename})
}

func (f *FakeBackend) startExam(c *gin.Context) {
	f.hit("start")
	var req model.StartExamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		detail(c, http.StatusBadRequest, err.Error())
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if req.ExamID != f.Exam.ID {
		detail(c, http.StatusNotFound, "Exam not found")
		return
	}
	f.Exam.Status = model.ExamStatusInProgress
	c.JSON(http.StatusOK, gin.H{"message": "Exam started", "exam_id": f.Exam.ID})
}

func (f *FakeBackend) questions(c *gin.Context) {
	f.hit("questions")
	f.mu.Lock()
	defer f.mu.Unlock()
	c.JSON(http.StatusOK, f.Questions)
}

func (f *FakeBackend) timer(c *gin.Context) {
	f.hit("timer")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.TimerFailures > 0 {
		f.TimerFailures--
		detail(c, http.StatusInternalServerError, "timer unavailable")
		return
	}
	c.JSON(http.StatusOK, model.TimerState{
		TimeRemainingSeconds: f.TimeRemaining,
		ExamStarted:          f.Exam.Status.IsStarted(),
		AutoSubmit:           f.AutoSubmit,
	})
}

func (f *FakeBackend) submit(c *gin.Context) {
	f.hit("submit")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SubmitError != "" {
		detail(c, http.StatusInternalServerError, f.SubmitError)
		return
	}
	if f.Exam.Status.IsFinal() {
		detail(c, http.StatusBadRequest, "Exam already submitted")
		return
	}
	f.Exam.Status = model.ExamStatusSubmitted
	c.JSON(http.StatusOK, gin.H{"message": "Exam submitted successfully", "exam_id": f.Exam.ID})
}

func (f *FakeBackend) saveAnswer(c *gin.Context) {
	f.hit("save")
	var req model.SaveAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		detail(c, http.StatusBadRequest, err.Error())
		return
	}
	if !f.await(c, f.SaveGates, req.QuestionID) {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Exam.Status.IsFinal() {
		detail(c, http.StatusBadRequest, "Exam is not in progress")
		return
	}
	a := f.answerFor(req.QuestionID)
	a.TypedAnswer = req.TypedAnswer
	a.SelectedOption = req.SelectedOption
	if req.SelectedChoice != "" {
		choice := req.SelectedChoice
		a.SelectedChoice = &choice
	}
	c.JSON(http.StatusOK, a)
}

// answerFor returns the stored answer, creating an empty one. Caller holds mu.
func (f *FakeBackend) answerFor(questionID int64) *model.Answer {
	a, ok := f.Answers[questionID]
	if !ok {
		a = &model.Answer{ID: f.id(), QuestionID: questionID}
		f.Answers[questionID] = a
	}
	return a
}

func (f *FakeBackend) getAnswer(c *gin.Context) {
	f.hit("get_answer")
	qid, _ := strconv.ParseInt(c.Param("question_id"), 10, 64)
	if !f.await(c, f.AnswerGates, qid) {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.Answers[qid]
	if !ok {
		c.JSON(http.StatusOK, nil)
		return
	}
	copied := *a
	copied.HasUploadedFiles = len(f.Files[a.ID]) > 0
	c.JSON(http.StatusOK, copied)
}

// await blocks while gates holds an open channel for id. It reports false
// when the client went away first.
func (f *FakeBackend) await(c *gin.Context, gates map[int64]chan struct{}, id int64) bool {
	f.mu.Lock()
	gate := gates[id]
	f.mu.Unlock()
	if gate == nil {
		return true
	}
	select {
	case <-gate:
		return true
	case <-c.Request.Context().Done():
		return false
	}
}

func readUpload(c *gin.Context) (model.UploadedFile, bool) {
	fh, err := c.FormFile("file")
	if err != nil {
		detail(c, http.StatusBadRequest, "file is required")
		return model.UploadedFile{}, false
	}
	src, err := fh.Open()
	if err != nil {
		detail(c, http.StatusBadRequest, err.Error())
		return model.UploadedFile{}, false
	}
	defer src.Close()
	n, _ := io.Copy(io.Discard, src)
	return model.UploadedFile{Filename: fh.Filename, FileSize: n}, true
}

func (f *FakeBackend) uploadPDF(c *gin.Context) {
	f.hit("upload")
	qid, _ := strconv.ParseInt(c.Param("question_id"), 10, 64)
	uf, ok := readUpload(c)
	if !ok || !f.await(c, f.UploadGates, qid) {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	a := f.answerFor(qid)
	uf.ID = f.id()
	f.Files[a.ID] = append(f.Files[a.ID], uf)
	c.JSON(http.StatusOK, uf)
}

func (f *FakeBackend) finalUpload(c *gin.Context) {
	f.hit("final_upload")
	num, err := strconv.Atoi(c.PostForm("question_number"))
	if err != nil {
		num = 0
	}
	uf, ok := readUpload(c)
	if !ok {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	uf.ID = f.id()
	f.FinalFiles[num] = append(f.FinalFiles[num], uf)
	c.JSON(http.StatusOK, uf)
}

func (f *FakeBackend) listFiles(c *gin.Context) {
	f.hit("files")
	aid, _ := strconv.ParseInt(c.Param("answer_id"), 10, 64)
	f.mu.Lock()
	defer f.mu.Unlock()
	files := f.Files[aid]
	if files == nil {
		files = []model.UploadedFile{}
	}
	c.JSON(http.StatusOK, model.UploadedFiles{Files: files, Count: len(files)})
}

func (f *FakeBackend) evaluate(c *gin.Context) {
	f.hit("evaluate")
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.Exam.Status.IsFinal() {
		detail(c, http.StatusBadRequest, "Exam must be submitted before evaluation")
		return
	}
	f.Exam.Status = model.ExamStatusEvaluated
	c.JSON(http.StatusOK, model.EvaluationResult{ExamID: f.Exam.ID, EvaluationReport: f.Report})
}

func (f *FakeBackend) report(c *gin.Context) {
	f.hit("report")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Exam.Status != model.ExamStatusEvaluated {
		detail(c, http.StatusBadRequest, "Exam has not been evaluated yet")
		return
	}
	c.JSON(http.StatusOK, model.EvaluationResult{ExamID: f.Exam.ID, EvaluationReport: f.Report})
}

func (f *FakeBackend) summary(c *gin.Context) {
	f.hit("summary")
	f.mu.Lock()
	defer f.mu.Unlock()

	answered := 0
	uploads := 0
	for _, a := range f.Answers {
		if a.HasContent() || len(f.Files[a.ID]) > 0 {
			answered++
		}
		uploads += len(f.Files[a.ID])
	}
	for _, files := range f.FinalFiles {
		uploads += len(files)
	}
	c.JSON(http.StatusOK, model.EvaluationSummary{
		ExamID:              f.Exam.ID,
		Board:               f.Exam.Board,
		Class:               f.Exam.ClassNum,
		Subject:             f.Exam.Subject,
		Status:              f.Exam.Status,
		TotalQuestions:      len(f.Questions),
		AnsweredQuestions:   answered,
		UnansweredQuestions: len(f.Questions) - answered,
		TotalUploadedPDFs:   uploads,
		TotalMarks:          f.Exam.TotalMarks,
		DurationMinutes:     f.Exam.DurationMinutes,
	})
}

func (f *FakeBackend) aiInfo(c *gin.Context) {
	f.hit("ai_info")
	c.JSON(http.StatusOK, model.AIInfo{
		ConfiguredModel:   "gemini-test",
		FallbackModels:    []string{"gemini-lite"},
		APIKeysConfigured: 1,
	})
}
