package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-client/internal/database"
	"github.com/stemsi/exstem-client/internal/model"
)

func newTestJournal(t *testing.T) *JournalRepository {
	t.Helper()
	path := filepath.Join(t.TempDir(), "journal.db")
	db, err := database.OpenJournal(context.Background(), path, zerolog.Nop())
	if err != nil {
		t.Fatalf("OpenJournal: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewJournalRepository(db)
}

func TestJournalViolations(t *testing.T) {
	r := newTestJournal(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	vs := []model.Violation{
		{ID: "b", ExamID: 1, Reason: "Window blur detected", At: base.Add(time.Second)},
		{ID: "a", ExamID: 1, Reason: "Tab switch detected", At: base},
		{ID: "c", ExamID: 2, Reason: "Exited fullscreen", At: base},
	}
	for _, v := range vs {
		if err := r.RecordViolation(ctx, v); err != nil {
			t.Fatalf("RecordViolation: %v", err)
		}
	}
	if err := r.RecordViolation(ctx, vs[0]); err != nil {
		t.Fatalf("duplicate RecordViolation: %v", err)
	}

	got, err := r.ListViolations(ctx, 1)
	if err != nil {
		t.Fatalf("ListViolations: %v", err)
	}
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "b" {
		t.Fatalf("unexpected violations %+v", got)
	}
	if !got[1].At.Equal(base.Add(time.Second)) {
		t.Errorf("timestamp not preserved: %v", got[1].At)
	}
}

func TestJournalEntries(t *testing.T) {
	r := newTestJournal(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	r.RecordTransition(ctx, 1, "ready", "exam", base)
	r.RecordViolation(ctx, model.Violation{ID: "x", ExamID: 1, Reason: "Window blur detected", At: base.Add(time.Minute)})
	r.RecordTransition(ctx, 1, "exam", "submission", base.Add(2*time.Minute))
	r.RecordTransition(ctx, 2, "ready", "exam", base.Add(3*time.Minute))

	entries, err := r.Entries(ctx, 1, 10)
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].Kind != EntryTransition || entries[0].Detail != "exam -> submission" {
		t.Errorf("unexpected newest entry %+v", entries[0])
	}
	if entries[1].Kind != EntryViolation {
		t.Errorf("expected violation second, got %+v", entries[1])
	}

	all, err := r.Entries(ctx, 0, 2)
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(all) != 2 || all[0].ExamID != 2 {
		t.Errorf("unexpected entries %+v", all)
	}
}

func TestJournalRecordViolationsBatch(t *testing.T) {
	r := newTestJournal(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	batch := []model.Violation{
		{ID: "a", ExamID: 5, Reason: "Tab switch detected", At: base},
		{ID: "b", ExamID: 5, Reason: "Window blur detected", At: base.Add(time.Second)},
		{ID: "a", ExamID: 5, Reason: "Tab switch detected", At: base},
	}
	if err := r.RecordViolations(ctx, batch); err != nil {
		t.Fatalf("RecordViolations: %v", err)
	}

	got, err := r.ListViolations(ctx, 5)
	if err != nil {
		t.Fatalf("ListViolations: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected duplicate id to be ignored, got %+v", got)
	}
}
