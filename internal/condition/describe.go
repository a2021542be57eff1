package condition

import (
	"fmt"
	"strings"

	"github.com/roach88/taskdispatch/internal/state"
)

// Describe renders c in a compact, human-readable form for logs and the
// validate command.
func Describe(c Condition) string {
	var b strings.Builder
	describe(&b, c)
	return b.String()
}

func describe(b *strings.Builder, c Condition) {
	switch v := c.(type) {
	case nil:
		b.WriteString("never")
	case *Literal:
		b.WriteString("always")
		writeModifiers(b, v.Delay.String(), v.Delay > 0, v.Edge)
	case *StateEquals:
		if _, isString := v.Value.(state.String); isString {
			fmt.Fprintf(b, "state(%s)==%q", v.Key, v.Value.String())
		} else {
			fmt.Fprintf(b, "state(%s)==%s", v.Key, v.Value)
		}
	case *PinEquals:
		kind := "in"
		if v.Output {
			kind = "out"
		}
		fmt.Fprintf(b, "pin(%s:%d)==%t", kind, v.Pin, v.State)
		writeModifiers(b, v.Delay.String(), v.Delay > 0, v.Edge)
	case *Direction:
		if v.OnReturn {
			b.WriteString("on-return")
		} else {
			b.WriteString("on-descent")
		}
	case *And:
		writeList(b, "all", v.Children)
	case *Or:
		writeList(b, "any", v.Children)
	case *Not:
		b.WriteString("not(")
		if v.Inner == nil {
			b.WriteString("always")
		} else {
			describe(b, v.Inner)
		}
		b.WriteString(")")
	default:
		fmt.Fprintf(b, "%T", c)
	}
}

func writeModifiers(b *strings.Builder, delay string, hasDelay, edge bool) {
	if hasDelay {
		b.WriteString(" after ")
		b.WriteString(delay)
	}
	if edge {
		b.WriteString(" on-edge")
	}
}

func writeList(b *strings.Builder, name string, children []Condition) {
	b.WriteString(name)
	b.WriteString("(")
	for i, child := range children {
		if i > 0 {
			b.WriteString(", ")
		}
		describe(b, child)
	}
	b.WriteString(")")
}
