package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/taskdispatch/internal/compiler"
	"github.com/roach88/taskdispatch/internal/engine"
	"github.com/roach88/taskdispatch/internal/gpio"
	"github.com/roach88/taskdispatch/internal/logsink"
	"github.com/roach88/taskdispatch/internal/store"
	"github.com/roach88/taskdispatch/internal/tree"
	"github.com/roach88/taskdispatch/internal/world"
)

// shutdownGrace bounds the wait for running actions after the loop stops.
const shutdownGrace = 5 * time.Second

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions

	Tick         time.Duration
	DumpEvery    time.Duration
	DumpDir      string
	LogFile      string
	LogLevel     string
	IgnoreErrors bool
	Config       string
	Display      string
	Journal      string
	OutputPins   []int
	Sim          bool

	// Driver overrides the pin driver (for testing).
	// If nil, --sim picks gpio.Sim and gpio.Sysfs is used otherwise.
	Driver gpio.Driver
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <trees-dir>",
		Short: "Start the dispatcher with the trees in a directory",
		Long: `Compile the CUE task trees in a directory and run the dispatcher
until interrupted.

Every tick input pins are sampled and each tree is walked once. Task
actions run in the background; a task never runs twice at the same
time. Errors raised by conditions and actions are logged and the loop
keeps going.

Examples:
  taskdispatch run ./trees
  taskdispatch run ./trees --tick 100ms --output-pin 17 --output-pin 18
  taskdispatch run ./trees --sim --journal ./runs.db --dump-every 10s
  taskdispatch run ./trees --config state.json --display /run/lcd.sock`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEngine(opts, args[0], cmd)
		},
	}

	f := cmd.Flags()
	f.DurationVar(&opts.Tick, "tick", engine.DefaultTickInterval, "time between ticks")
	f.DurationVar(&opts.DumpEvery, "dump-every", 0, "write a state dump this often (0 disables)")
	f.StringVar(&opts.DumpDir, "dump-dir", os.TempDir(), "directory for state dump files")
	f.StringVar(&opts.LogFile, "log-file", "", "also log to this file, truncated every 1000 lines")
	f.StringVar(&opts.LogLevel, "log-level", "info", "minimum log level (debug|info|warning|error)")
	f.BoolVar(&opts.IgnoreErrors, "ignore-errors", false, "reserved; has no effect")
	f.StringVar(&opts.Config, "config", "", "JSON file merged into application state at startup")
	f.StringVar(&opts.Display, "display", "", "unix socket of the display daemon")
	f.StringVar(&opts.Journal, "journal", "", "SQLite file recording runs, executions and dumps")
	f.IntSliceVar(&opts.OutputPins, "output-pin", nil, "output pin to open at startup (repeatable)")
	f.BoolVar(&opts.Sim, "sim", false, "use simulated in-memory pins")

	return cmd
}

func runEngine(opts *RunOptions, treesDir string, cmd *cobra.Command) error {
	level, err := logsink.ParseLevel(opts.LogLevel)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --log-level", err)
	}
	if opts.Verbose {
		level = slog.LevelDebug
	}
	if opts.Tick <= 0 {
		return NewExitError(ExitCommandError, "--tick must be positive")
	}
	if opts.DumpEvery < 0 {
		return NewExitError(ExitCommandError, "--dump-every must not be negative")
	}

	sinkOpts := []logsink.Option{
		logsink.WithConsole(cmd.ErrOrStderr()),
		logsink.WithLevel(level),
	}
	if opts.LogFile != "" {
		sinkOpts = append(sinkOpts, logsink.WithFile(opts.LogFile))
	}
	sink, err := logsink.New(sinkOpts...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open log sink", err)
	}
	defer sink.Close()
	logger := sink.Logger()
	prev := slog.Default()
	slog.SetDefault(logger)
	defer slog.SetDefault(prev)

	prog, err := loadProgram(treesDir, logger)
	if err != nil {
		return err
	}
	arenas, err := prog.Build()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build trees", err)
	}

	var journal *store.Store
	if opts.Journal != "" {
		journal, err = store.Open(opts.Journal)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open journal", err)
		}
		defer func() {
			if closeErr := journal.Close(); closeErr != nil {
				logger.Error("error closing journal", "error", closeErr)
			}
		}()
	}

	if opts.DumpEvery > 0 {
		var rec engine.SnapshotRecorder
		if journal != nil {
			rec = journal
		}
		dump, err := tree.Build(engine.DumpTask(opts.DumpDir, opts.DumpEvery, nil, rec))
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to build dump task", err)
		}
		arenas = append(arenas, dump)
	}

	w := world.New(worldOptions(opts, logger)...)
	defer w.Close()

	if opts.Config != "" {
		if err := w.LoadConfig(opts.Config, nil); err != nil {
			return WrapExitError(ExitCommandError, "failed to load config", err)
		}
	}

	engineOpts := []engine.EngineOption{
		engine.WithLogger(logger),
		engine.WithTickInterval(opts.Tick),
	}
	if journal != nil {
		engineOpts = append(engineOpts, engine.WithJournal(journal))
	}
	eng := engine.New(w, arenas, engineOpts...)

	ctx, cancel := signalContext(cmd, logger)
	defer cancel()

	if err := eng.Initialize(ctx); err != nil {
		return WrapExitError(ExitCommandError, "failed to initialize", err)
	}
	for _, pin := range append(append([]int(nil), prog.OutputPins...), opts.OutputPins...) {
		if err := w.AddOutputPin(pin, time.Now()); err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to open output pin %d", pin), err)
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Dispatcher started (run %s).\n", w.RunID())
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")

	runErr := eng.Run(ctx)

	settleCtx, settleCancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer settleCancel()
	if err := eng.Settle(settleCtx); err != nil {
		logger.Warn("actions still running at shutdown", "in_flight", eng.InFlight())
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) && !errors.Is(runErr, context.DeadlineExceeded) {
		return WrapExitError(ExitFailure, "engine error", runErr)
	}

	logger.Info("dispatcher stopped gracefully", "run_id", w.RunID())
	return nil
}

// loadProgram compiles and validates treesDir. Warnings are logged;
// errors abort startup.
func loadProgram(treesDir string, logger *slog.Logger) (*compiler.Program, error) {
	loadResult, err := LoadTrees(treesDir)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to compile trees", err)
	}
	logger.Info("trees compiled", "dir", treesDir, "trees", len(loadResult.Program.Trees))

	findings := compiler.Validate(loadResult.Program)
	for _, f := range findings {
		if f.Severity == compiler.SeverityWarning {
			logger.Warn("tree warning", "code", f.Code, "field", f.Field, "message", f.Message)
		}
	}
	if compiler.HasErrors(findings) {
		for _, f := range findings {
			if f.Severity == compiler.SeverityError {
				logger.Error("tree error", "code", f.Code, "field", f.Field, "message", f.Message)
			}
		}
		return nil, NewExitError(ExitCommandError, "trees failed validation")
	}
	return loadResult.Program, nil
}

func worldOptions(opts *RunOptions, logger *slog.Logger) []world.Option {
	driver := opts.Driver
	if driver == nil {
		if opts.Sim {
			driver = gpio.NewSim()
		} else {
			driver = gpio.NewSysfs()
		}
	}

	wopts := []world.Option{
		world.WithDriver(driver),
		world.WithLogger(logger),
		world.WithPID(os.Getpid()),
	}
	if opts.Display != "" {
		wopts = append(wopts, world.WithDisplay(opts.Display))
	}
	return wopts
}

// signalContext is cancelled on SIGINT, SIGTERM or when the command's
// own context ends.
func signalContext(cmd *cobra.Command, logger *slog.Logger) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
