package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/stemsi/exstem-client/internal/model"
)

// Journal entry kinds.
const (
	EntryViolation  = "violation"
	EntryTransition = "transition"
)

// recordedAtLayout is fixed width so text ordering matches time ordering.
const recordedAtLayout = "2006-01-02T15:04:05.000000000Z07:00"

// JournalEntry is one row of the merged journal listing.
type JournalEntry struct {
	Kind   string    `json:"kind"`
	ExamID int64     `json:"exam_id"`
	Detail string    `json:"detail"`
	At     time.Time `json:"at"`
}

// JournalRepository stores proctoring events in the local SQLite journal.
type JournalRepository struct {
	db *sql.DB
}

// NewJournalRepository creates a new JournalRepository.
func NewJournalRepository(db *sql.DB) *JournalRepository {
	return &JournalRepository{db: db}
}

// Ping checks the journal database is reachable.
func (r *JournalRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// RecordViolation inserts a violation. Re-recording the same id is a no-op.
func (r *JournalRepository) RecordViolation(ctx context.Context, v model.Violation) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO violations (id, exam_id, reason, recorded_at)
		 VALUES (?, ?, ?, ?)`,
		v.ID, v.ExamID, v.Reason, v.At.UTC().Format(recordedAtLayout),
	)
	if err != nil {
		return fmt.Errorf("insert violation: %w", err)
	}
	return nil
}

// RecordViolations inserts a batch of violations in one transaction. Any
// failing row rolls back the whole batch.
func (r *JournalRepository) RecordViolations(ctx context.Context, batch []model.Violation) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO violations (id, exam_id, reason, recorded_at)
		 VALUES (?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, v := range batch {
		if _, err := stmt.ExecContext(ctx, v.ID, v.ExamID, v.Reason, v.At.UTC().Format(recordedAtLayout)); err != nil {
			return fmt.Errorf("insert violation %s: %w", v.ID, err)
		}
	}
	return tx.Commit()
}

// RecordTransition inserts a screen transition.
func (r *JournalRepository) RecordTransition(ctx context.Context, examID int64, from, to string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO screen_transitions (exam_id, from_screen, to_screen, recorded_at)
		 VALUES (?, ?, ?, ?)`,
		examID, from, to, at.UTC().Format(recordedAtLayout),
	)
	if err != nil {
		return fmt.Errorf("insert transition: %w", err)
	}
	return nil
}

// ListViolations returns the violations of an exam, oldest first.
func (r *JournalRepository) ListViolations(ctx context.Context, examID int64) ([]model.Violation, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, exam_id, reason, recorded_at
		 FROM violations
		 WHERE exam_id = ?
		 ORDER BY recorded_at, id`,
		examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Violation
	for rows.Next() {
		var v model.Violation
		var at string
		if err := rows.Scan(&v.ID, &v.ExamID, &v.Reason, &at); err != nil {
			return nil, err
		}
		if v.At, err = time.Parse(recordedAtLayout, at); err != nil {
			return nil, fmt.Errorf("parse recorded_at: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Entries returns the newest limit journal rows, newest first. examID 0
// lists all exams.
func (r *JournalRepository) Entries(ctx context.Context, examID int64, limit int) ([]JournalEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT kind, exam_id, detail, recorded_at FROM (
		     SELECT 'violation' AS kind, exam_id, reason AS detail, recorded_at FROM violations
		     UNION ALL
		     SELECT 'transition', exam_id, from_screen || ' -> ' || to_screen, recorded_at FROM screen_transitions
		 )
		 WHERE ? = 0 OR exam_id = ?
		 ORDER BY recorded_at DESC
		 LIMIT ?`,
		examID, examID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []JournalEntry
	for rows.Next() {
		var e JournalEntry
		var at string
		if err := rows.Scan(&e.Kind, &e.ExamID, &e.Detail, &at); err != nil {
			return nil, err
		}
		if e.At, err = time.Parse(recordedAtLayout, at); err != nil {
			return nil, fmt.Errorf("parse recorded_at: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
