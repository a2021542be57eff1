package condition

import "fmt"

// Bind returns a deep copy of c whose stateful predicates own fresh slots
// from slots. A nil c binds to nil.
//
// Copying means one predicate value can be reused across several nodes
// without the nodes sharing bookkeeping.
func Bind(c Condition, slots *Slots) (Condition, error) {
	switch v := c.(type) {
	case nil:
		return nil, nil
	case *Literal:
		cp := *v
		cp.slot = slots.next()
		return &cp, nil
	case *PinEquals:
		cp := *v
		cp.slot = slots.next()
		return &cp, nil
	case *StateEquals:
		if v.Value == nil {
			return nil, &TriggerError{Code: ErrCodeInvalidCondition, Message: fmt.Sprintf("state condition %q has no value", v.Key)}
		}
		cp := *v
		return &cp, nil
	case *Direction:
		cp := *v
		return &cp, nil
	case *And:
		children, err := bindAll(v.Children, slots)
		if err != nil {
			return nil, err
		}
		return &And{Children: children}, nil
	case *Or:
		children, err := bindAll(v.Children, slots)
		if err != nil {
			return nil, err
		}
		return &Or{Children: children}, nil
	case *Not:
		inner, err := Bind(v.Inner, slots)
		if err != nil {
			return nil, err
		}
		return &Not{Inner: inner}, nil
	default:
		return nil, &TriggerError{Code: ErrCodeInvalidCondition, Message: fmt.Sprintf("unknown condition type %T", c)}
	}
}

func bindAll(conds []Condition, slots *Slots) ([]Condition, error) {
	out := make([]Condition, 0, len(conds))
	for i, c := range conds {
		if c == nil {
			return nil, &TriggerError{Code: ErrCodeInvalidCondition, Message: fmt.Sprintf("child %d is nil", i)}
		}
		bound, err := Bind(c, slots)
		if err != nil {
			return nil, err
		}
		out = append(out, bound)
	}
	return out, nil
}
