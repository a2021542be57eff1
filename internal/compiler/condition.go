package compiler

import (
	"fmt"

	"cuelang.org/go/cue"

	"github.com/roach88/taskdispatch/internal/condition"
)

// optionalCondition parses v.<field> if present. Absent yields nil.
func optionalCondition(v cue.Value, field string) (condition.Condition, error) {
	cv := v.LookupPath(cue.ParsePath(field))
	if !cv.Exists() {
		return nil, nil
	}
	return parseCondition(cv)
}

// parseCondition parses one cond value:
//
//	{always: {delay?: "1s", edge?: bool}}
//	{state: {key: "mode", equals: "auto"}}
//	{pin: {id: 4, output?: bool, equals?: bool, delay?: "50ms", edge?: bool}}
//	{direction: "return" | "descent"}
//	{all: [...]} | {any: [...]} | {not: cond}
func parseCondition(v cue.Value) (condition.Condition, error) {
	kind, body, err := singleField(v, "condition", "always", "state", "pin", "direction", "all", "any", "not")
	if err != nil {
		return nil, err
	}

	switch kind {
	case "always":
		lit := condition.Always()
		delayVal := body.LookupPath(cue.ParsePath("delay"))
		if delayVal.Exists() {
			d, err := parseDuration(delayVal)
			if err != nil {
				return nil, err
			}
			lit.After(d)
		}
		edge, err := optionalBool(body, "edge", false)
		if err != nil {
			return nil, err
		}
		if edge {
			lit.OnEdge()
		}
		return lit, nil

	case "state":
		key, err := nonEmptyString(body.LookupPath(cue.ParsePath("key")))
		if err != nil {
			return nil, err
		}
		val, err := parseScalar(body.LookupPath(cue.ParsePath("equals")))
		if err != nil {
			return nil, err
		}
		return condition.StateIs(key, val), nil

	case "pin":
		return parsePinCondition(body)

	case "direction":
		dir, err := body.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		switch dir {
		case "return":
			return condition.OnReturn(), nil
		case "descent":
			return condition.OnDescent(), nil
		default:
			return nil, &CompileError{
				Field:   body.Path().String(),
				Message: fmt.Sprintf("direction must be \"return\" or \"descent\", got %q", dir),
				Pos:     body.Pos(),
			}
		}

	case "all", "any":
		children, err := parseConditionList(body)
		if err != nil {
			return nil, err
		}
		if kind == "all" {
			return condition.All(children...), nil
		}
		return condition.Any(children...), nil

	case "not":
		inner, err := parseCondition(body)
		if err != nil {
			return nil, err
		}
		return condition.Negate(inner), nil
	}
	return nil, &CompileError{Field: v.Path().String(), Message: "unreachable condition kind " + kind, Pos: v.Pos()}
}

func parsePinCondition(body cue.Value) (condition.Condition, error) {
	id, err := parsePinID(body.LookupPath(cue.ParsePath("id")))
	if err != nil {
		return nil, err
	}
	output, err := optionalBool(body, "output", false)
	if err != nil {
		return nil, err
	}
	equals, err := optionalBool(body, "equals", true)
	if err != nil {
		return nil, err
	}
	edge, err := optionalBool(body, "edge", false)
	if err != nil {
		return nil, err
	}

	p := condition.InputPin(id)
	if output {
		p = condition.OutputPin(id)
	}
	if !equals {
		p.WhenLow()
	}
	delayVal := body.LookupPath(cue.ParsePath("delay"))
	if delayVal.Exists() {
		d, err := parseDuration(delayVal)
		if err != nil {
			return nil, err
		}
		p.After(d)
	}
	if edge {
		p.OnEdge()
	}
	return p, nil
}

func parseConditionList(v cue.Value) ([]condition.Condition, error) {
	list, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []condition.Condition
	for list.Next() {
		c, err := parseCondition(list.Value())
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func optionalBool(v cue.Value, field string, def bool) (bool, error) {
	bv := v.LookupPath(cue.ParsePath(field))
	if !bv.Exists() {
		return def, nil
	}
	b, err := bv.Bool()
	if err != nil {
		return false, formatCUEError(err)
	}
	return b, nil
}
