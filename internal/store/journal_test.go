package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordRun_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestRun(t, s, "run-1", t0)

	run, err := s.ReadRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "run-1", run.ID)
	assert.Equal(t, 42, run.PID)
	assert.True(t, run.StartedAt.Equal(t0))
	assert.Equal(t, []string{"main", "lights"}, run.Roots)

	// Second record is ignored.
	require.NoError(t, s.RecordRun(ctx, Run{ID: "run-1", PID: 7, StartedAt: t0}))
	run, err = s.ReadRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, 42, run.PID)
}

func TestReadRun_NotFound(t *testing.T) {
	s := createTestStore(t)
	_, err := s.ReadRun(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.LatestRun(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLatestRun(t *testing.T) {
	s := createTestStore(t)
	createTestRun(t, s, "old", t0)
	createTestRun(t, s, "new", t0.Add(time.Hour))

	run, err := s.LatestRun(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "new", run.ID)
}

func TestRecordExecution_OrderAndFields(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestRun(t, s, "run-1", t0)

	require.NoError(t, s.RecordExecution(ctx, Execution{
		RunID: "run-1", Root: "main", Task: "blink",
		StartedAt: t0, FinishedAt: t0.Add(10 * time.Millisecond),
	}))
	require.NoError(t, s.RecordExecution(ctx, Execution{
		RunID: "run-1", Root: "main", Task: "armed_exit", Exit: true,
		StartedAt: t0.Add(time.Second), FinishedAt: t0.Add(time.Second),
		Error: "display unavailable",
	}))

	got, err := s.ReadExecutions(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "blink", got[0].Task)
	assert.False(t, got[0].Exit)
	assert.Empty(t, got[0].Error)
	assert.True(t, got[0].FinishedAt.Equal(t0.Add(10*time.Millisecond)))

	assert.Equal(t, "armed_exit", got[1].Task)
	assert.True(t, got[1].Exit)
	assert.Equal(t, "display unavailable", got[1].Error)
	assert.Greater(t, got[1].Seq, got[0].Seq)
}

func TestReadExecutions_EmptyNotNil(t *testing.T) {
	s := createTestStore(t)
	got, err := s.ReadExecutions(context.Background(), "none")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestRecordExecution_UnknownRunFails(t *testing.T) {
	s := createTestStore(t)
	err := s.RecordExecution(context.Background(), Execution{RunID: "ghost", Root: "r", Task: "t", StartedAt: t0, FinishedAt: t0})
	assert.Error(t, err, "foreign key enforced")
}

func TestRecordSnapshot_Latest(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestRun(t, s, "run-1", t0)

	require.NoError(t, s.RecordSnapshot(ctx, "run-1", t0, []byte(`{"state":{"mode":"idle"}}`)))
	require.NoError(t, s.RecordSnapshot(ctx, "run-1", t0.Add(time.Minute), []byte(`{"state":{"mode":"auto"}}`)))

	snap, err := s.LatestSnapshot(ctx, "run-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"state":{"mode":"auto"}}`, snap.Body)
	assert.True(t, snap.TakenAt.Equal(t0.Add(time.Minute)))

	_, err = s.LatestSnapshot(ctx, "run-2")
	assert.ErrorIs(t, err, ErrNotFound)
}
