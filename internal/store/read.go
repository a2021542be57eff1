package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ReadRun returns the run with the given id.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, error) {
	var (
		run     Run
		started int64
		roots   string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, pid, started_at, roots FROM runs WHERE id = ?
	`, id).Scan(&run.ID, &run.PID, &started, &roots)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Run{}, fmt.Errorf("read run: %w", err)
	}
	run.StartedAt = time.Unix(0, started)
	if roots != "" {
		run.Roots = strings.Split(roots, ",")
	}
	return run, nil
}

// LatestRun returns the most recently started run.
func (s *Store) LatestRun(ctx context.Context) (Run, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM runs ORDER BY started_at DESC, id DESC LIMIT 1
	`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("latest run: %w", ErrNotFound)
	}
	if err != nil {
		return Run{}, fmt.Errorf("read latest run: %w", err)
	}
	return s.ReadRun(ctx, id)
}

// ReadExecutions returns a run's executions in insertion order.
//
// Returns an empty slice (not nil) if the run has none.
func (s *Store) ReadExecutions(ctx context.Context, runID string) ([]Execution, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, run_id, root, task, is_exit, started_at, finished_at, error
		FROM executions
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query executions: %w", err)
	}
	defer rows.Close()

	executions := []Execution{}
	for rows.Next() {
		var (
			ex                Execution
			isExit            int
			started, finished int64
			errText           sql.NullString
		)
		if err := rows.Scan(&ex.Seq, &ex.RunID, &ex.Root, &ex.Task, &isExit, &started, &finished, &errText); err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		ex.Exit = isExit != 0
		ex.StartedAt = time.Unix(0, started)
		ex.FinishedAt = time.Unix(0, finished)
		ex.Error = errText.String
		executions = append(executions, ex)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate executions: %w", err)
	}
	return executions, nil
}

// LatestSnapshot returns the last dump recorded for a run.
func (s *Store) LatestSnapshot(ctx context.Context, runID string) (Snapshot, error) {
	var (
		snap  Snapshot
		taken int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT seq, run_id, taken_at, body
		FROM snapshots
		WHERE run_id = ?
		ORDER BY seq DESC
		LIMIT 1
	`, runID).Scan(&snap.Seq, &snap.RunID, &taken, &snap.Body)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, fmt.Errorf("snapshot for run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("read snapshot: %w", err)
	}
	snap.TakenAt = time.Unix(0, taken)
	return snap, nil
}
