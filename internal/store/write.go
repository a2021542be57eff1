package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Run is one process run.
type Run struct {
	ID        string
	PID       int
	StartedAt time.Time
	Roots     []string
}

// Execution is one finished action.
type Execution struct {
	Seq        int64
	RunID      string
	Root       string
	Task       string
	Exit       bool
	StartedAt  time.Time
	FinishedAt time.Time

	// Error is empty when the action succeeded.
	Error string
}

// Snapshot is one recorded world-state dump. Body is the dump's JSON.
type Snapshot struct {
	Seq     int64
	RunID   string
	TakenAt time.Time
	Body    string
}

// RecordRun inserts the run row. Recording the same run id twice is a no-op.
func (s *Store) RecordRun(ctx context.Context, run Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, pid, started_at, roots)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		run.ID,
		run.PID,
		run.StartedAt.UnixNano(),
		strings.Join(run.Roots, ","),
	)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// RecordExecution appends a finished action. The run must exist.
func (s *Store) RecordExecution(ctx context.Context, ex Execution) error {
	var errText sql.NullString
	if ex.Error != "" {
		errText = sql.NullString{String: ex.Error, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO executions (run_id, root, task, is_exit, started_at, finished_at, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		ex.RunID,
		ex.Root,
		ex.Task,
		boolToInt(ex.Exit),
		ex.StartedAt.UnixNano(),
		ex.FinishedAt.UnixNano(),
		errText,
	)
	if err != nil {
		return fmt.Errorf("record execution %s: %w", ex.Task, err)
	}
	return nil
}

// RecordSnapshot appends a world-state dump. The run must exist.
func (s *Store) RecordSnapshot(ctx context.Context, runID string, takenAt time.Time, body []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO snapshots (run_id, taken_at, body)
		VALUES (?, ?, ?)
	`,
		runID,
		takenAt.UnixNano(),
		string(body),
	)
	if err != nil {
		return fmt.Errorf("record snapshot: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
