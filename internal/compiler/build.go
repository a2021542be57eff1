package compiler

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/taskdispatch/internal/tree"
	"github.com/roach88/taskdispatch/internal/world"
)

// Clock supplies timestamps for pin commands issued by actions.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

type buildConfig struct {
	clock Clock
}

// BuildOption configures Build.
type BuildOption func(*buildConfig)

// WithClock sets the clock pin actions stamp changes with. Default: wall
// clock.
func WithClock(c Clock) BuildOption {
	return func(cfg *buildConfig) {
		cfg.clock = c
	}
}

// Build turns every tree of p into task-tree arenas, in declaration order.
func (p *Program) Build(opts ...BuildOption) ([]*tree.Arena, error) {
	cfg := buildConfig{clock: systemClock{}}
	for _, opt := range opts {
		opt(&cfg)
	}

	arenas := make([]*tree.Arena, 0, len(p.Trees))
	for i := range p.Trees {
		root, err := buildRoot(&p.Trees[i], cfg)
		if err != nil {
			return nil, err
		}
		arena, err := tree.Build(root)
		if err != nil {
			return nil, fmt.Errorf("tree %s: %w", p.Trees[i].Name, err)
		}
		arenas = append(arenas, arena)
	}
	return arenas, nil
}

func buildRoot(spec *NodeSpec, cfg buildConfig) (tree.Node, error) {
	children, err := buildChildren(spec.Children, cfg)
	if err != nil {
		return nil, err
	}
	root := tree.Root(spec.Name, children...)
	if spec.When != nil {
		root.When(spec.When)
	}
	if spec.Stay != nil {
		root.StayWhile(spec.Stay)
	}
	if spec.OnExit != nil {
		root.OnExit(buildExit(spec.OnExit, cfg))
	}
	return root, nil
}

func buildChildren(specs []NodeSpec, cfg buildConfig) ([]tree.Node, error) {
	out := make([]tree.Node, 0, len(specs))
	for i := range specs {
		n, err := buildNode(&specs[i], cfg)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func buildNode(spec *NodeSpec, cfg buildConfig) (tree.Node, error) {
	switch spec.Kind {
	case KindTask:
		t := tree.NewTask(spec.Name).Every(spec.Every).Do(actionFor(spec.Do, cfg))
		if spec.When != nil {
			t.When(spec.When)
		}
		return t, nil

	case KindContext:
		children, err := buildChildren(spec.Children, cfg)
		if err != nil {
			return nil, err
		}
		c := tree.NewContext(spec.Name).Add(children...)
		if spec.When != nil {
			c.When(spec.When)
		}
		if spec.Stay != nil {
			c.StayWhile(spec.Stay)
		}
		if spec.OnExit != nil {
			c.OnExit(buildExit(spec.OnExit, cfg))
		}
		return c, nil

	default:
		return nil, &CompileError{Field: spec.Name, Message: "unknown node kind", Pos: spec.Pos}
	}
}

func buildExit(spec *ExitSpec, cfg buildConfig) *tree.Task {
	return tree.NewTask(spec.Name).Do(actionFor(spec.Do, cfg))
}

// actionFor runs steps in order against the world.
func actionFor(steps []ActionSpec, cfg buildConfig) tree.Action {
	return func(ctx context.Context, w *world.World) error {
		for i := range steps {
			if err := runStep(ctx, &steps[i], w, cfg); err != nil {
				return fmt.Errorf("step %d (%s): %w", i+1, steps[i].Kind, err)
			}
		}
		return nil
	}
}

func runStep(ctx context.Context, step *ActionSpec, w *world.World, cfg buildConfig) error {
	switch step.Kind {
	case ActionSet:
		w.Set(step.Key, step.Value)
		return nil

	case ActionPin:
		return w.CommandPin(step.Pin, step.Active, cfg.clock.Now())

	case ActionDisplay:
		return runDisplay(step, w)

	case ActionLog:
		w.Logger().Log(ctx, step.Level, step.Message)
		return nil

	default:
		return fmt.Errorf("unknown action kind %q", step.Kind)
	}
}

func runDisplay(step *ActionSpec, w *world.World) error {
	if step.At == nil && step.Backlight == nil {
		return w.PrepareDisplay(step.Text, step.Clear)
	}

	client, err := w.Display()
	if err != nil {
		return err
	}
	if step.Backlight != nil {
		if err := client.Backlight(*step.Backlight); err != nil {
			return err
		}
	}
	if step.Clear {
		if err := client.Clear(); err != nil {
			return err
		}
	}
	if step.Text == "" {
		return nil
	}
	at := Position{}
	if step.At != nil {
		at = *step.At
	}
	if err := client.Move(at.X, at.Y); err != nil {
		return err
	}
	return client.Buffer(step.Text, true)
}
