package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/taskdispatch/internal/store"
)

// DumpOptions holds flags for the dump command.
type DumpOptions struct {
	*RootOptions
	Journal string
	RunID   string // optional - defaults to the latest run
}

// DumpResult is the JSON payload of the dump command.
type DumpResult struct {
	RunID    string          `json:"run_id"`
	TakenAt  string          `json:"taken_at"`
	Snapshot json.RawMessage `json:"snapshot"`
}

// NewDumpCommand creates the dump command.
func NewDumpCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DumpOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Print the last state dump recorded in a journal",
		Long: `Print the most recent world-state dump a run recorded in its journal.

Dumps are recorded when the dispatcher runs with both --journal and
--dump-every. Without --run the latest run is used.

Examples:
  taskdispatch dump --journal ./runs.db
  taskdispatch dump --journal ./runs.db --run 0190c2a4-... --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDump(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Journal, "journal", "", "path to the SQLite journal (required)")
	_ = cmd.MarkFlagRequired("journal")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run id (default: latest run)")

	return cmd
}

func runDump(opts *DumpOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	formatter := newFormatter(opts.RootOptions, cmd)

	st, err := openJournal(opts.Journal)
	if err != nil {
		return err
	}
	defer st.Close()

	run, err := resolveRun(ctx, st, opts.RunID)
	if err != nil {
		return err
	}

	snap, err := st.LatestSnapshot(ctx, run.ID)
	if errors.Is(err, store.ErrNotFound) {
		_ = formatter.Error(ErrCodeNotFound, fmt.Sprintf("run %s recorded no dumps", run.ID), nil)
		return NewExitError(ExitFailure, fmt.Sprintf("run %s recorded no dumps", run.ID))
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read snapshot", err)
	}

	if opts.Format == "json" {
		return formatter.Success(DumpResult{
			RunID:    snap.RunID,
			TakenAt:  snap.TakenAt.UTC().Format(timeLayout),
			Snapshot: json.RawMessage(snap.Body),
		})
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Run %s, dump #%d taken %s\n\n", snap.RunID, snap.Seq, snap.TakenAt.UTC().Format(timeLayout))
	fmt.Fprintln(w, snap.Body)
	return nil
}

// timeLayout renders journal timestamps.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// openJournal opens an existing journal. store.Open would create a
// missing file, which is never what a reader wants.
func openJournal(path string) (*store.Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("journal not found: %s", path), err)
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	return st, nil
}

// resolveRun returns the named run, or the latest one when id is empty.
func resolveRun(ctx context.Context, st *store.Store, id string) (store.Run, error) {
	var (
		run store.Run
		err error
	)
	if id == "" {
		run, err = st.LatestRun(ctx)
	} else {
		run, err = st.ReadRun(ctx, id)
	}
	if errors.Is(err, store.ErrNotFound) {
		if id == "" {
			return store.Run{}, NewExitError(ExitCommandError, "journal has no runs")
		}
		return store.Run{}, NewExitError(ExitCommandError, fmt.Sprintf("run not found: %s", id))
	}
	if err != nil {
		return store.Run{}, WrapExitError(ExitCommandError, "failed to read run", err)
	}
	return run, nil
}
