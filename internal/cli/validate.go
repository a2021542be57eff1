package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/taskdispatch/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool                       `json:"valid"`
	Errors   []compiler.ValidationError `json:"errors,omitempty"`
	Warnings []compiler.ValidationError `json:"warnings,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <trees-dir>",
		Short: "Check tree definitions without running them",
		Long: `Compile the CUE task trees in a directory and run the semantic
checks: unique node names, declared output pins, pin direction
conflicts and reserved state keys. Warnings flag tasks that can
never fire and contexts that can never be left.

Exit codes:
  0 - Trees are valid (warnings allowed)
  1 - One or more errors
  2 - Command error (missing directory, unreadable CUE)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, treesDir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	findings, err := ValidateTreesDir(treesDir)
	if err != nil {
		return outputLoadError(formatter, err)
	}

	var result ValidationResult
	for _, f := range findings {
		if f.Severity == compiler.SeverityError {
			result.Errors = append(result.Errors, f)
		} else {
			result.Warnings = append(result.Warnings, f)
		}
	}
	result.Valid = len(result.Errors) == 0

	if result.Valid {
		return outputValidateSuccess(formatter, result)
	}
	return outputValidationErrors(formatter, result)
}

// ValidateTreesDir compiles and checks the trees in a directory. A
// compile error in a tree definition is returned as a finding; only
// failures to read the directory or its CUE are returned as err.
func ValidateTreesDir(treesDir string) ([]compiler.ValidationError, error) {
	loadResult, err := LoadTrees(treesDir)
	if err != nil {
		var le *LoadError
		if errors.As(err, &le) && isDefinitionError(le.Code) {
			return []compiler.ValidationError{{
				Field:    "load",
				Message:  le.Message,
				Code:     le.Code,
				Severity: compiler.SeverityError,
				Line:     getLineFromCuePos(le),
			}}, nil
		}
		return nil, err
	}
	return compiler.Validate(loadResult.Program), nil
}

// isDefinitionError reports whether code blames the trees rather than the
// directory or the CUE toolchain.
func isDefinitionError(code string) bool {
	return strings.HasPrefix(code, "E1") || code == ErrCodeGeneric
}

// getLineFromCuePos extracts the line number of a load error.
func getLineFromCuePos(le *LoadError) int {
	if le.Pos.IsValid() {
		return le.Pos.Line()
	}
	return 0
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	writeFindings(formatter, result.Warnings)
	fmt.Fprintln(formatter.Writer, "✓ All trees valid")
	return nil
}

// outputValidationErrors outputs validation failures.
func outputValidationErrors(formatter *OutputFormatter, result ValidationResult) error {
	first := result.Errors[0]
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   result,
			Error: &CLIError{
				Code:    first.Code,
				Message: first.Message,
			},
		}
		if err := formatter.encode(response); err != nil {
			return err
		}
		// Validation failures = exit code 1
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(result.Errors)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	writeFindings(formatter, result.Errors)
	writeFindings(formatter, result.Warnings)

	// Validation failures = exit code 1
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(result.Errors)))
}

func writeFindings(formatter *OutputFormatter, findings []compiler.ValidationError) {
	for _, f := range findings {
		if f.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", f.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s %s: %s\n\n", f.Severity, f.Code, f.Message)
	}
}
