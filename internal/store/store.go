// Package store holds the state of one exam session.
package store

import (
	"sort"
	"sync"

	"github.com/stemsi/exstem-client/internal/model"
	"github.com/stemsi/exstem-client/internal/screen"
)

// Snapshot is a point-in-time copy of the session for rendering.
type Snapshot struct {
	Screen         screen.Screen    `json:"screen"`
	Exam           *model.Exam      `json:"exam"`
	Questions      []model.Question `json:"questions"`
	CurrentIndex   int              `json:"current_index"`
	TimerRemaining int              `json:"timer_remaining"`
	Visited        []int            `json:"visited"`
	Answered       []int            `json:"answered"`
	Uploaded       []int            `json:"uploaded"`
}

// IsVisited reports whether i is in the visited set.
func (s Snapshot) IsVisited(i int) bool { return contains(s.Visited, i) }

// IsAnswered reports whether i is in the answered set.
func (s Snapshot) IsAnswered(i int) bool { return contains(s.Answered, i) }

// IsUploaded reports whether i is in the uploaded set.
func (s Snapshot) IsUploaded(i int) bool { return contains(s.Uploaded, i) }

// Current returns the question at CurrentIndex.
func (s Snapshot) Current() (model.Question, bool) {
	if s.CurrentIndex < 0 || s.CurrentIndex >= len(s.Questions) {
		return model.Question{}, false
	}
	return s.Questions[s.CurrentIndex], true
}

func contains(sorted []int, i int) bool {
	n := sort.SearchInts(sorted, i)
	return n < len(sorted) && sorted[n] == i
}

// Store is the single owner of session state. Safe for concurrent use.
type Store struct {
	mu sync.RWMutex

	screen         screen.Screen
	exam           *model.Exam
	questions      []model.Question
	currentIndex   int
	timerRemaining int

	visited  map[int]struct{}
	answered map[int]struct{}
	uploaded map[int]struct{}
}

// New returns a store in its initial state.
func New() *Store {
	s := &Store{}
	s.reset()
	return s
}

func (s *Store) reset() {
	s.screen = screen.Setup
	s.exam = nil
	s.questions = nil
	s.currentIndex = 0
	s.timerRemaining = 0
	s.visited = make(map[int]struct{})
	s.answered = make(map[int]struct{})
	s.uploaded = make(map[int]struct{})
}

// Reset restores every field to its initial value.
func (s *Store) Reset() {
	s.mu.Lock()
	s.reset()
	s.mu.Unlock()
}

func (s *Store) SetScreen(sc screen.Screen) {
	s.mu.Lock()
	s.screen = sc
	s.mu.Unlock()
}

func (s *Store) Screen() screen.Screen {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.screen
}

// SetExam stores a copy of exam.
func (s *Store) SetExam(exam *model.Exam) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if exam == nil {
		s.exam = nil
		return
	}
	e := *exam
	s.exam = &e
}

// Exam returns a copy of the active exam, or nil.
func (s *Store) Exam() *model.Exam {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.exam == nil {
		return nil
	}
	e := *s.exam
	return &e
}

// SetExamStatus updates the status of the active exam, if any.
func (s *Store) SetExamStatus(status model.ExamStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.exam != nil {
		s.exam.Status = status
	}
}

func (s *Store) SetQuestions(qs []model.Question) {
	s.mu.Lock()
	s.questions = append([]model.Question(nil), qs...)
	s.mu.Unlock()
}

// Question returns the question at index i.
func (s *Store) Question(i int) (model.Question, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i < 0 || i >= len(s.questions) {
		return model.Question{}, false
	}
	return s.questions[i], true
}

func (s *Store) QuestionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.questions)
}

func (s *Store) SetCurrentIndex(i int) {
	s.mu.Lock()
	s.currentIndex = i
	s.mu.Unlock()
}

func (s *Store) CurrentIndex() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentIndex
}

// CurrentQuestion returns the question at the current index.
func (s *Store) CurrentQuestion() (int, model.Question, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.currentIndex
	if i < 0 || i >= len(s.questions) {
		return i, model.Question{}, false
	}
	return i, s.questions[i], true
}

func (s *Store) SetTimer(seconds int) {
	s.mu.Lock()
	s.timerRemaining = seconds
	s.mu.Unlock()
}

func (s *Store) Timer() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.timerRemaining
}

// MarkVisited adds i to the visited set.
func (s *Store) MarkVisited(i int) {
	s.mu.Lock()
	s.visited[i] = struct{}{}
	s.mu.Unlock()
}

// MarkAnswered adds i to the answered set.
func (s *Store) MarkAnswered(i int) {
	s.mu.Lock()
	s.answered[i] = struct{}{}
	s.mu.Unlock()
}

// MarkUploaded adds i to the uploaded set, and to answered since an
// uploaded question always counts as answered.
func (s *Store) MarkUploaded(i int) {
	s.mu.Lock()
	s.uploaded[i] = struct{}{}
	s.answered[i] = struct{}{}
	s.mu.Unlock()
}

// ClearMarkers empties the visited, answered and uploaded sets.
func (s *Store) ClearMarkers() {
	s.mu.Lock()
	s.visited = make(map[int]struct{})
	s.answered = make(map[int]struct{})
	s.uploaded = make(map[int]struct{})
	s.mu.Unlock()
}

func (s *Store) IsVisited(i int) bool  { return s.has(&s.visited, i) }
func (s *Store) IsAnswered(i int) bool { return s.has(&s.answered, i) }
func (s *Store) IsUploaded(i int) bool { return s.has(&s.uploaded, i) }

func (s *Store) has(set *map[int]struct{}, i int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := (*set)[i]
	return ok
}

// Snapshot copies the whole state under one read lock.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Screen:         s.screen,
		Questions:      append([]model.Question(nil), s.questions...),
		CurrentIndex:   s.currentIndex,
		TimerRemaining: s.timerRemaining,
		Visited:        sortedKeys(s.visited),
		Answered:       sortedKeys(s.answered),
		Uploaded:       sortedKeys(s.uploaded),
	}
	if s.exam != nil {
		e := *s.exam
		snap.Exam = &e
	}
	return snap
}

func sortedKeys(set map[int]struct{}) []int {
	keys := make([]int, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
