package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/taskdispatch/internal/condition"
	"github.com/roach88/taskdispatch/internal/tree"
	"github.com/roach88/taskdispatch/internal/world"
)

// DumpTaskName names the periodic state-dump task.
const DumpTaskName = "periodic_print_state_to_file"

// SnapshotRecorder stores dump bodies alongside the run.
// *store.Store implements it.
type SnapshotRecorder interface {
	RecordSnapshot(ctx context.Context, runID string, takenAt time.Time, body []byte) error
}

// DumpTask returns a root task that writes the world dump to dir every
// interval. When rec is non-nil each dump is also recorded there.
func DumpTask(dir string, every time.Duration, clock Clock, rec SnapshotRecorder) *tree.Task {
	if clock == nil {
		clock = SystemClock{}
	}
	return tree.NewTask(DumpTaskName).
		When(condition.Always()).
		Every(every).
		Do(func(ctx context.Context, w *world.World) error {
			now := clock.Now()
			if _, err := w.WriteDumpFile(dir, now); err != nil {
				return err
			}
			if rec == nil {
				return nil
			}
			body, err := w.Dump(now).JSON()
			if err != nil {
				return fmt.Errorf("encode snapshot: %w", err)
			}
			return rec.RecordSnapshot(ctx, w.RunID(), now, body)
		})
}
