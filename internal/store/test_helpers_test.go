package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

var t0 = time.Unix(1_700_000_000, 0)

// createTestStore creates a new store in a temp directory for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRun records a run with minimal fields.
func createTestRun(t *testing.T, s *Store, id string, started time.Time) {
	t.Helper()
	run := Run{ID: id, PID: 42, StartedAt: started, Roots: []string{"main", "lights"}}
	if err := s.RecordRun(context.Background(), run); err != nil {
		t.Fatalf("RecordRun() failed: %v", err)
	}
}
