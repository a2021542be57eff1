package cli

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/taskdispatch/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Journal string
	RunID   string // optional - defaults to the latest run
	Task    string // optional - filter to one task
	Failed  bool   // only failed executions
}

// HistoryEvent is one journaled execution.
type HistoryEvent struct {
	Seq        int64  `json:"seq"`
	Root       string `json:"root"`
	Task       string `json:"task"`
	Exit       bool   `json:"exit,omitempty"`
	StartedAt  string `json:"started_at"`
	DurationMS int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// TaskStats summarizes one task's executions.
type TaskStats struct {
	Task     string `json:"task"`
	Runs     int    `json:"runs"`
	Failures int    `json:"failures"`
	MaxMS    int64  `json:"max_ms"`
}

// HistoryResult holds the complete history output.
type HistoryResult struct {
	RunID     string         `json:"run_id"`
	PID       int            `json:"pid"`
	StartedAt string         `json:"started_at"`
	Roots     []string       `json:"roots"`
	Timeline  []HistoryEvent `json:"timeline"`
	Stats     []TaskStats    `json:"stats"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List the executions a run recorded in its journal",
		Long: `List the finished actions of one run, in completion order, with a
per-task summary of runs, failures and the slowest duration.

Examples:
  taskdispatch history --journal ./runs.db
  taskdispatch history --journal ./runs.db --task fan_on
  taskdispatch history --journal ./runs.db --failed --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Journal, "journal", "", "path to the SQLite journal (required)")
	_ = cmd.MarkFlagRequired("journal")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run id (default: latest run)")
	cmd.Flags().StringVar(&opts.Task, "task", "", "filter to one task")
	cmd.Flags().BoolVar(&opts.Failed, "failed", false, "only show failed executions")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	st, err := openJournal(opts.Journal)
	if err != nil {
		return err
	}
	defer st.Close()

	run, err := resolveRun(ctx, st, opts.RunID)
	if err != nil {
		return err
	}

	execs, err := st.ReadExecutions(ctx, run.ID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read executions", err)
	}

	result := HistoryResult{
		RunID:     run.ID,
		PID:       run.PID,
		StartedAt: run.StartedAt.UTC().Format(timeLayout),
		Roots:     run.Roots,
		Timeline:  buildTimeline(execs, opts.Task, opts.Failed),
	}
	if result.Roots == nil {
		result.Roots = []string{}
	}
	result.Stats = buildStats(result.Timeline)

	if opts.Format == "json" {
		formatter := newFormatter(opts.RootOptions, cmd)
		return formatter.Success(result)
	}
	return outputHistoryText(cmd.OutOrStdout(), result)
}

// buildTimeline converts journal rows to timeline events, applying the
// task and failure filters.
func buildTimeline(execs []store.Execution, task string, failedOnly bool) []HistoryEvent {
	timeline := []HistoryEvent{}
	for _, ex := range execs {
		if task != "" && ex.Task != task {
			continue
		}
		if failedOnly && ex.Error == "" {
			continue
		}
		timeline = append(timeline, HistoryEvent{
			Seq:        ex.Seq,
			Root:       ex.Root,
			Task:       ex.Task,
			Exit:       ex.Exit,
			StartedAt:  ex.StartedAt.UTC().Format(timeLayout),
			DurationMS: ex.FinishedAt.Sub(ex.StartedAt).Milliseconds(),
			Error:      ex.Error,
		})
	}
	return timeline
}

// buildStats summarizes the timeline per task, sorted by task name.
func buildStats(timeline []HistoryEvent) []TaskStats {
	byTask := make(map[string]*TaskStats)
	for _, ev := range timeline {
		s, ok := byTask[ev.Task]
		if !ok {
			s = &TaskStats{Task: ev.Task}
			byTask[ev.Task] = s
		}
		s.Runs++
		if ev.Error != "" {
			s.Failures++
		}
		if ev.DurationMS > s.MaxMS {
			s.MaxMS = ev.DurationMS
		}
	}

	stats := make([]TaskStats, 0, len(byTask))
	for _, s := range byTask {
		stats = append(stats, *s)
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Task < stats[j].Task })
	return stats
}

// outputHistoryText outputs the history as text.
func outputHistoryText(w io.Writer, result HistoryResult) error {
	fmt.Fprintf(w, "Run: %s (pid %d)\n", result.RunID, result.PID)
	fmt.Fprintf(w, "Started: %s\n", result.StartedAt)
	fmt.Fprintf(w, "Roots: %v\n", result.Roots)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Timeline ===")
	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "  (no executions)")
	}
	for _, ev := range result.Timeline {
		kind := "TASK"
		if ev.Exit {
			kind = "EXIT"
		}
		fmt.Fprintf(w, "  [%d] %s %s %s/%s %s\n", ev.Seq, ev.StartedAt, kind, ev.Root, ev.Task,
			time.Duration(ev.DurationMS)*time.Millisecond)
		if ev.Error != "" {
			fmt.Fprintf(w, "       Error: %s\n", ev.Error)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	for _, s := range result.Stats {
		fmt.Fprintf(w, "  %-24s runs=%d failures=%d max=%dms\n", s.Task, s.Runs, s.Failures, s.MaxMS)
	}
	return nil
}
