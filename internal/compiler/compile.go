package compiler

import (
	"fmt"
	"log/slog"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/taskdispatch/internal/logsink"
	"github.com/roach88/taskdispatch/internal/state"
)

// Compile parses a CUE value holding tree definitions into a Program.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The value is the file's top level, e.g.:
//
//	tree: main: {
//		children: [
//			{task: "blink", when: {pin: {id: 4}}, do: [{pin: {id: 17, state: true}}]},
//		]
//	}
//	output_pins: [17]
func Compile(v cue.Value) (*Program, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	prog := &Program{}

	treesVal := v.LookupPath(cue.ParsePath("tree"))
	if !treesVal.Exists() {
		return nil, &CompileError{Field: "tree", Message: "at least one tree is required", Pos: v.Pos()}
	}
	iter, err := treesVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		root, err := parseRoot(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		prog.Trees = append(prog.Trees, root)
	}
	if len(prog.Trees) == 0 {
		return nil, &CompileError{Field: "tree", Message: "at least one tree is required", Pos: treesVal.Pos()}
	}

	pinsVal := v.LookupPath(cue.ParsePath("output_pins"))
	if pinsVal.Exists() {
		list, err := pinsVal.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for list.Next() {
			id, err := parsePinID(list.Value())
			if err != nil {
				return nil, err
			}
			prog.OutputPins = append(prog.OutputPins, id)
		}
	}

	return prog, nil
}

// CompileString compiles CUE source text. filename is used in error
// positions.
func CompileString(src, filename string) (*Program, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(src, cue.Filename(filename))
	return Compile(v)
}

// parseRoot parses tree.<name>. A root is a context whose entry and stay
// default to always.
func parseRoot(name string, v cue.Value) (NodeSpec, error) {
	node := NodeSpec{Kind: KindContext, Name: name, Pos: v.Pos()}
	if err := parseContextBody(&node, v); err != nil {
		return NodeSpec{}, err
	}
	return node, nil
}

// parseNode parses one element of a children list.
func parseNode(v cue.Value) (NodeSpec, error) {
	taskVal := v.LookupPath(cue.ParsePath("task"))
	ctxVal := v.LookupPath(cue.ParsePath("context"))

	switch {
	case taskVal.Exists() && ctxVal.Exists():
		return NodeSpec{}, &CompileError{
			Field:   v.Path().String(),
			Message: "node must be either a task or a context, not both",
			Pos:     v.Pos(),
		}

	case taskVal.Exists():
		name, err := nonEmptyString(taskVal)
		if err != nil {
			return NodeSpec{}, err
		}
		node := NodeSpec{Kind: KindTask, Name: name, Pos: v.Pos()}
		if err := parseTaskBody(&node, v); err != nil {
			return NodeSpec{}, err
		}
		return node, nil

	case ctxVal.Exists():
		name, err := nonEmptyString(ctxVal)
		if err != nil {
			return NodeSpec{}, err
		}
		node := NodeSpec{Kind: KindContext, Name: name, Pos: v.Pos()}
		if err := parseContextBody(&node, v); err != nil {
			return NodeSpec{}, err
		}
		return node, nil

	default:
		return NodeSpec{}, &CompileError{
			Field:   v.Path().String(),
			Message: "node needs a task or context name",
			Pos:     v.Pos(),
		}
	}
}

func parseTaskBody(node *NodeSpec, v cue.Value) error {
	var err error
	if node.When, err = optionalCondition(v, "when"); err != nil {
		return err
	}

	everyVal := v.LookupPath(cue.ParsePath("every"))
	if everyVal.Exists() {
		if node.Every, err = parseDuration(everyVal); err != nil {
			return err
		}
	}

	doVal := v.LookupPath(cue.ParsePath("do"))
	if !doVal.Exists() {
		return &CompileError{
			Field:   v.Path().String(),
			Message: fmt.Sprintf("task %q needs a do list", node.Name),
			Pos:     v.Pos(),
		}
	}
	node.Do, err = parseActionList(doVal)
	return err
}

func parseContextBody(node *NodeSpec, v cue.Value) error {
	var err error
	if node.When, err = optionalCondition(v, "when"); err != nil {
		return err
	}
	if node.Stay, err = optionalCondition(v, "stay"); err != nil {
		return err
	}

	childrenVal := v.LookupPath(cue.ParsePath("children"))
	if childrenVal.Exists() {
		list, err := childrenVal.List()
		if err != nil {
			return formatCUEError(err)
		}
		for list.Next() {
			child, err := parseNode(list.Value())
			if err != nil {
				return err
			}
			node.Children = append(node.Children, child)
		}
	}

	exitVal := v.LookupPath(cue.ParsePath("on_exit"))
	if exitVal.Exists() {
		exit := &ExitSpec{Name: node.Name + "_exit"}
		nameVal := exitVal.LookupPath(cue.ParsePath("name"))
		if nameVal.Exists() {
			if exit.Name, err = nonEmptyString(nameVal); err != nil {
				return err
			}
		}
		doVal := exitVal.LookupPath(cue.ParsePath("do"))
		if !doVal.Exists() {
			return &CompileError{
				Field:   exitVal.Path().String(),
				Message: "on_exit needs a do list",
				Pos:     exitVal.Pos(),
			}
		}
		if exit.Do, err = parseActionList(doVal); err != nil {
			return err
		}
		node.OnExit = exit
	}
	return nil
}

func parseActionList(v cue.Value) ([]ActionSpec, error) {
	list, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []ActionSpec
	for list.Next() {
		a, err := parseAction(list.Value())
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if len(out) == 0 {
		return nil, &CompileError{Field: v.Path().String(), Message: "do list is empty", Pos: v.Pos()}
	}
	return out, nil
}

func parseAction(v cue.Value) (ActionSpec, error) {
	kind, body, err := singleField(v, "action", "set", "pin", "display", "log")
	if err != nil {
		return ActionSpec{}, err
	}
	a := ActionSpec{Kind: ActionKind(kind), Pos: v.Pos()}

	switch a.Kind {
	case ActionSet:
		if a.Key, err = nonEmptyString(body.LookupPath(cue.ParsePath("key"))); err != nil {
			return ActionSpec{}, err
		}
		if a.Value, err = parseScalar(body.LookupPath(cue.ParsePath("value"))); err != nil {
			return ActionSpec{}, err
		}

	case ActionPin:
		if a.Pin, err = parsePinID(body.LookupPath(cue.ParsePath("id"))); err != nil {
			return ActionSpec{}, err
		}
		if a.Active, err = requiredBool(body.LookupPath(cue.ParsePath("state"))); err != nil {
			return ActionSpec{}, err
		}

	case ActionDisplay:
		if err := parseDisplay(&a, body); err != nil {
			return ActionSpec{}, err
		}

	case ActionLog:
		if a.Message, err = body.String(); err != nil {
			return ActionSpec{}, formatCUEError(err)
		}
		a.Level = slog.LevelInfo
		levelVal := v.LookupPath(cue.ParsePath("level"))
		if levelVal.Exists() {
			s, err := levelVal.String()
			if err != nil {
				return ActionSpec{}, formatCUEError(err)
			}
			if a.Level, err = logsink.ParseLevel(s); err != nil {
				return ActionSpec{}, &CompileError{Field: levelVal.Path().String(), Message: err.Error(), Pos: levelVal.Pos()}
			}
		}
	}
	return a, nil
}

func parseDisplay(a *ActionSpec, body cue.Value) error {
	textVal := body.LookupPath(cue.ParsePath("text"))
	if textVal.Exists() {
		s, err := textVal.String()
		if err != nil {
			return formatCUEError(err)
		}
		a.Text = s
	}

	clearVal := body.LookupPath(cue.ParsePath("clear"))
	if clearVal.Exists() {
		b, err := clearVal.Bool()
		if err != nil {
			return formatCUEError(err)
		}
		a.Clear = b
	}

	xVal := body.LookupPath(cue.ParsePath("x"))
	yVal := body.LookupPath(cue.ParsePath("y"))
	if xVal.Exists() || yVal.Exists() {
		pos := &Position{}
		if xVal.Exists() {
			x, err := xVal.Int64()
			if err != nil {
				return formatCUEError(err)
			}
			pos.X = int(x)
		}
		if yVal.Exists() {
			y, err := yVal.Int64()
			if err != nil {
				return formatCUEError(err)
			}
			pos.Y = int(y)
		}
		a.At = pos
	}

	lightVal := body.LookupPath(cue.ParsePath("backlight"))
	if lightVal.Exists() {
		b, err := lightVal.Bool()
		if err != nil {
			return formatCUEError(err)
		}
		a.Backlight = &b
	}
	return nil
}

// singleField returns the one field of v, which must be one of allowed.
func singleField(v cue.Value, what string, allowed ...string) (string, cue.Value, error) {
	iter, err := v.Fields()
	if err != nil {
		return "", cue.Value{}, formatCUEError(err)
	}

	var (
		label string
		body  cue.Value
		count int
	)
	for iter.Next() {
		l := iter.Label()
		if !contains(allowed, l) {
			// Modifiers sit beside the kind key; only "level" does today.
			if what == "action" && l == "level" {
				continue
			}
			return "", cue.Value{}, &CompileError{
				Field:   v.Path().String(),
				Message: fmt.Sprintf("unknown %s %q", what, l),
				Pos:     iter.Value().Pos(),
			}
		}
		label, body = l, iter.Value()
		count++
	}
	if count != 1 {
		return "", cue.Value{}, &CompileError{
			Field:   v.Path().String(),
			Message: fmt.Sprintf("%s must have exactly one of %v", what, allowed),
			Pos:     v.Pos(),
		}
	}
	return label, body, nil
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func nonEmptyString(v cue.Value) (string, error) {
	if !v.Exists() {
		return "", &CompileError{Field: v.Path().String(), Message: "value is required", Pos: v.Pos()}
	}
	s, err := v.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	if s == "" {
		return "", &CompileError{Field: v.Path().String(), Message: "must not be empty", Pos: v.Pos()}
	}
	return s, nil
}

func requiredBool(v cue.Value) (bool, error) {
	if !v.Exists() {
		return false, &CompileError{Field: v.Path().String(), Message: "value is required", Pos: v.Pos()}
	}
	b, err := v.Bool()
	if err != nil {
		return false, formatCUEError(err)
	}
	return b, nil
}

func parsePinID(v cue.Value) (int, error) {
	if !v.Exists() {
		return 0, &CompileError{Field: v.Path().String(), Message: "pin id is required", Pos: v.Pos()}
	}
	id, err := v.Int64()
	if err != nil {
		return 0, formatCUEError(err)
	}
	if id < 0 {
		return 0, &CompileError{Field: v.Path().String(), Message: "pin id must not be negative", Pos: v.Pos()}
	}
	return int(id), nil
}

func parseDuration(v cue.Value) (time.Duration, error) {
	s, err := v.String()
	if err != nil {
		return 0, formatCUEError(err)
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, &CompileError{Field: v.Path().String(), Message: err.Error(), Pos: v.Pos()}
	}
	if d < 0 {
		return 0, &CompileError{Field: v.Path().String(), Message: "duration must not be negative", Pos: v.Pos()}
	}
	return d, nil
}

// parseScalar converts a concrete CUE string, bool or number to a Value.
func parseScalar(v cue.Value) (state.Value, error) {
	if !v.Exists() {
		return nil, &CompileError{Field: v.Path().String(), Message: "value is required", Pos: v.Pos()}
	}
	switch v.Kind() {
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return state.String(s), nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return state.Bool(b), nil
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return state.Number(float64(n)), nil
	case cue.FloatKind, cue.NumberKind:
		f, err := v.Float64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return state.Number(f), nil
	default:
		return nil, &CompileError{
			Field:   v.Path().String(),
			Message: fmt.Sprintf("expected a string, number or bool, got %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}
