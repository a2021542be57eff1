package compiler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/taskdispatch/internal/condition"
)

// Validation error codes (E200-E299)
const (
	ErrDuplicateName     = "E201" // node or exit name used twice
	ErrUndeclaredOutput  = "E202" // pin action on a pin not declared as output
	ErrPinDirection      = "E203" // pin used as input and output
	ErrReservedKey       = "E204" // set action writes an "_executed" key
	WarnTaskNeverFires   = "W301" // task without a when condition
	WarnContextNeverExit = "W302" // context whose stay is literally always
)

// Severity of a validation finding.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// ValidationError represents a semantic problem in a compiled program.
type ValidationError struct {
	Field    string   `json:"field"`
	Message  string   `json:"message"`
	Code     string   `json:"code"`
	Severity Severity `json:"severity"`
	Line     int      `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// HasErrors reports whether any finding is an error rather than a warning.
func HasErrors(findings []ValidationError) bool {
	for _, f := range findings {
		if f.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Validate checks a compiled program for problems tree.Build cannot see:
// names shared between trees, pin direction conflicts, and pin actions on
// pins nothing opens as outputs. Returns all findings (does not fail-fast).
func Validate(p *Program) []ValidationError {
	if p == nil {
		return nil
	}

	var errs []ValidationError
	seen := make(map[string]string)
	inputs := make(map[int]bool)
	outputs := make(map[int]bool)
	for _, id := range p.OutputPins {
		outputs[id] = true
	}

	// First pass: names and the pins conditions open.
	for i := range p.Trees {
		root := &p.Trees[i]
		root.Walk(func(n *NodeSpec) {
			path := root.Name + "/" + n.Name
			errs = append(errs, claimName(seen, n.Name, path, n.Pos.Line())...)
			if n.OnExit != nil {
				errs = append(errs, claimName(seen, n.OnExit.Name, path+"/on_exit", n.Pos.Line())...)
			}
			for _, c := range []condition.Condition{n.When, n.Stay} {
				for _, req := range condition.Requirements(c) {
					if req.Kind != condition.RequirePin {
						continue
					}
					if req.Output {
						outputs[req.Pin] = true
					} else {
						inputs[req.Pin] = true
					}
				}
			}
		})
	}

	var shared []int
	for id := range inputs {
		if outputs[id] {
			shared = append(shared, id)
		}
	}
	sort.Ints(shared)
	for _, id := range shared {
		errs = append(errs, ValidationError{
			Field:    fmt.Sprintf("pin.%d", id),
			Message:  fmt.Sprintf("pin %d is used both as input and output", id),
			Code:     ErrPinDirection,
			Severity: SeverityError,
		})
	}

	// Second pass: actions and node shapes.
	for i := range p.Trees {
		root := &p.Trees[i]
		root.Walk(func(n *NodeSpec) {
			path := root.Name + "/" + n.Name
			errs = append(errs, checkSteps(n.Do, path, outputs)...)
			if n.OnExit != nil {
				errs = append(errs, checkSteps(n.OnExit.Do, path+"/on_exit", outputs)...)
			}

			if n.Kind == KindTask && n.When == nil {
				errs = append(errs, ValidationError{
					Field:    path,
					Message:  fmt.Sprintf("task %q has no when condition and will never fire", n.Name),
					Code:     WarnTaskNeverFires,
					Severity: SeverityWarning,
					Line:     n.Pos.Line(),
				})
			}
			stay := n.Stay
			if stay == nil {
				stay = n.When
			}
			if n.Kind == KindContext && n != root && alwaysTrue(stay) {
				errs = append(errs, ValidationError{
					Field:    path,
					Message:  fmt.Sprintf("context %q stays while always and can never be left", n.Name),
					Code:     WarnContextNeverExit,
					Severity: SeverityWarning,
					Line:     n.Pos.Line(),
				})
			}
		})
	}

	return errs
}

func claimName(seen map[string]string, name, path string, line int) []ValidationError {
	if prev, ok := seen[name]; ok {
		return []ValidationError{{
			Field:    path,
			Message:  fmt.Sprintf("name %q already used at %s", name, prev),
			Code:     ErrDuplicateName,
			Severity: SeverityError,
			Line:     line,
		}}
	}
	seen[name] = path
	return nil
}

func checkSteps(steps []ActionSpec, path string, outputs map[int]bool) []ValidationError {
	var errs []ValidationError
	for i, step := range steps {
		field := fmt.Sprintf("%s.do[%d]", path, i)
		switch step.Kind {
		case ActionPin:
			if !outputs[step.Pin] {
				errs = append(errs, ValidationError{
					Field:    field,
					Message:  fmt.Sprintf("pin %d is not declared in output_pins or any output pin condition", step.Pin),
					Code:     ErrUndeclaredOutput,
					Severity: SeverityError,
					Line:     step.Pos.Line(),
				})
			}
		case ActionSet:
			if strings.HasSuffix(step.Key, "_executed") {
				errs = append(errs, ValidationError{
					Field:    field,
					Message:  fmt.Sprintf("key %q is reserved for execution timestamps", step.Key),
					Code:     ErrReservedKey,
					Severity: SeverityError,
					Line:     step.Pos.Line(),
				})
			}
		}
	}
	return errs
}

// alwaysTrue reports whether c is a plain always with no delay or edge.
func alwaysTrue(c condition.Condition) bool {
	lit, ok := c.(*condition.Literal)
	return ok && lit.Delay == 0 && !lit.Edge
}
