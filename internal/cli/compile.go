package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/taskdispatch/internal/compiler"
	"github.com/roach88/taskdispatch/internal/condition"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// NodeOutline is the printable form of one compiled node.
type NodeOutline struct {
	Kind     string        `json:"kind"`
	Name     string        `json:"name"`
	When     string        `json:"when"`
	Stay     string        `json:"stay,omitempty"`
	Every    string        `json:"every,omitempty"`
	Do       []string      `json:"do,omitempty"`
	Exit     *NodeOutline  `json:"on_exit,omitempty"`
	Children []NodeOutline `json:"children,omitempty"`
}

// CompilationResult holds the outline of every compiled tree.
type CompilationResult struct {
	Trees      []NodeOutline `json:"trees"`
	OutputPins []int         `json:"output_pins"`
}

// CompilationStats holds summary statistics.
type CompilationStats struct {
	TreeCount    int
	ContextCount int
	TaskCount    int
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <trees-dir>",
		Short: "Compile CUE tree definitions and print their outline",
		Long: `Compile the CUE task trees in a directory and print every tree
with its conditions and actions, as the dispatcher will see them.

Examples:
  taskdispatch compile ./trees
  taskdispatch compile ./trees --format json -o outline.json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the JSON outline to this file")

	return cmd
}

func runCompile(opts *CompileOptions, treesDir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	loadResult, err := LoadTrees(treesDir)
	if err != nil {
		return outputLoadError(formatter, err)
	}
	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, treesDir)

	result := outlineProgram(loadResult.Program)
	stats := calculateStats(loadResult.Program)

	if opts.Output != "" {
		if err := writeOutlineToFile(result, opts.Output); err != nil {
			_ = formatter.Error(ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err), nil)
			return NewExitError(ExitCommandError, fmt.Sprintf("%s: writing output file", ErrCodeWriteFailed))
		}
	}

	return outputCompileSuccess(formatter, result, stats, opts.Output)
}

// outputLoadError reports a LoadTrees failure. Load failures are
// command-level errors (exit code 2).
func outputLoadError(formatter *OutputFormatter, err error) error {
	code, message := ErrCodeGeneric, err.Error()
	var details any
	var le *LoadError
	if errors.As(err, &le) {
		code, message = le.Code, le.Message
		if le.Pos.IsValid() {
			details = fmt.Sprintf("%s:%d:%d", le.Pos.Filename(), le.Pos.Line(), le.Pos.Column())
		}
	}
	_ = formatter.Error(code, message, details)
	return WrapExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message), nil)
}

// calculateStats counts the nodes of a program.
func calculateStats(prog *compiler.Program) CompilationStats {
	stats := CompilationStats{TreeCount: len(prog.Trees)}
	for i := range prog.Trees {
		prog.Trees[i].Walk(func(n *compiler.NodeSpec) {
			if n.Kind == compiler.KindTask {
				stats.TaskCount++
			} else {
				stats.ContextCount++
			}
		})
	}
	return stats
}

func outlineProgram(prog *compiler.Program) *CompilationResult {
	result := &CompilationResult{
		Trees:      make([]NodeOutline, 0, len(prog.Trees)),
		OutputPins: prog.OutputPins,
	}
	if result.OutputPins == nil {
		result.OutputPins = []int{}
	}
	for i := range prog.Trees {
		root := outlineNode(&prog.Trees[i])
		if prog.Trees[i].When == nil {
			root.When = "always"
		}
		result.Trees = append(result.Trees, root)
	}
	return result
}

func outlineNode(n *compiler.NodeSpec) NodeOutline {
	out := NodeOutline{
		Kind: n.Kind.String(),
		Name: n.Name,
		When: condition.Describe(n.When),
	}
	if n.Kind == compiler.KindTask {
		if n.Every > 0 {
			out.Every = n.Every.String()
		}
		out.Do = describeActions(n.Do)
		return out
	}

	if n.Stay != nil {
		out.Stay = condition.Describe(n.Stay)
	}
	if n.OnExit != nil {
		out.Exit = &NodeOutline{
			Kind: "exit",
			Name: n.OnExit.Name,
			When: "on exit",
			Do:   describeActions(n.OnExit.Do),
		}
	}
	for i := range n.Children {
		out.Children = append(out.Children, outlineNode(&n.Children[i]))
	}
	return out
}

func describeActions(steps []compiler.ActionSpec) []string {
	out := make([]string, 0, len(steps))
	for i := range steps {
		out = append(out, describeAction(&steps[i]))
	}
	return out
}

func describeAction(a *compiler.ActionSpec) string {
	switch a.Kind {
	case compiler.ActionSet:
		return fmt.Sprintf("set %s=%s", a.Key, a.Value)
	case compiler.ActionPin:
		level := "off"
		if a.Active {
			level = "on"
		}
		return fmt.Sprintf("pin %d %s", a.Pin, level)
	case compiler.ActionDisplay:
		var parts []string
		if a.Clear {
			parts = append(parts, "clear")
		}
		if a.Backlight != nil {
			parts = append(parts, fmt.Sprintf("backlight=%t", *a.Backlight))
		}
		if a.At != nil {
			parts = append(parts, fmt.Sprintf("at=%d,%d", a.At.X, a.At.Y))
		}
		if a.Text != "" {
			parts = append(parts, fmt.Sprintf("%q", a.Text))
		}
		return "display " + strings.Join(parts, " ")
	case compiler.ActionLog:
		return fmt.Sprintf("log %s %q", strings.ToLower(a.Level.String()), a.Message)
	default:
		return string(a.Kind)
	}
}

// outputCompileSuccess outputs successful compilation results.
func outputCompileSuccess(formatter *OutputFormatter, result *CompilationResult, stats CompilationStats, outputFile string) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "✓ Compiled %d tree(s): %d context(s), %d task(s)\n\n",
		stats.TreeCount, stats.ContextCount, stats.TaskCount)

	for i := range result.Trees {
		writeOutline(w, &result.Trees[i], 0)
	}
	if len(result.OutputPins) > 0 {
		fmt.Fprintf(w, "\nOutput pins: %v\n", result.OutputPins)
	}

	if outputFile != "" {
		fmt.Fprintf(w, "\nWrote outline to %s\n", outputFile)
	}
	return nil
}

func writeOutline(w io.Writer, n *NodeOutline, depth int) {
	indent := strings.Repeat("  ", depth)
	fmt.Fprintf(w, "%s%s %s  when %s", indent, n.Kind, n.Name, n.When)
	if n.Stay != "" {
		fmt.Fprintf(w, "  stay %s", n.Stay)
	}
	if n.Every != "" {
		fmt.Fprintf(w, "  every %s", n.Every)
	}
	fmt.Fprintln(w)
	for _, step := range n.Do {
		fmt.Fprintf(w, "%s  - %s\n", indent, step)
	}
	for i := range n.Children {
		writeOutline(w, &n.Children[i], depth+1)
	}
	if n.Exit != nil {
		fmt.Fprintf(w, "%s  exit %s\n", indent, n.Exit.Name)
		for _, step := range n.Exit.Do {
			fmt.Fprintf(w, "%s    - %s\n", indent, step)
		}
	}
}

// writeOutlineToFile writes the outline as indented JSON.
func writeOutlineToFile(result *CompilationResult, filename string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling outline: %w", err)
	}
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	return nil
}
