package condition

import "github.com/roach88/taskdispatch/internal/state"

// RequirementKind distinguishes the resources a predicate needs registered.
type RequirementKind int

const (
	// RequireState asks for an application-state key seeded with Default.
	RequireState RequirementKind = iota + 1
	// RequirePin asks for a digital pin to be opened.
	RequirePin
)

// Requirement is a resource that must exist in the world state before the
// polling loop starts.
type Requirement struct {
	Kind RequirementKind

	// Key and Default apply to RequireState.
	Key     string
	Default state.Value

	// Pin and Output apply to RequirePin.
	Pin    int
	Output bool
}

// Requirements lists what c needs pre-registered, in evaluation order.
// Composites return the union of their children.
func Requirements(c Condition) []Requirement {
	var out []Requirement
	collect(c, &out)
	return out
}

func collect(c Condition, out *[]Requirement) {
	switch v := c.(type) {
	case *StateEquals:
		*out = append(*out, Requirement{Kind: RequireState, Key: v.Key, Default: state.Default(v.Value)})
	case *PinEquals:
		*out = append(*out, Requirement{Kind: RequirePin, Pin: v.Pin, Output: v.Output})
	case *And:
		for _, child := range v.Children {
			collect(child, out)
		}
	case *Or:
		for _, child := range v.Children {
			collect(child, out)
		}
	case *Not:
		collect(v.Inner, out)
	case nil, *Literal, *Direction:
	}
}
