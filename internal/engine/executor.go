package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/taskdispatch/internal/store"
	"github.com/roach88/taskdispatch/internal/tree"
	"github.com/roach88/taskdispatch/internal/world"
)

// fire stamps task's execution time and starts its action on a new
// goroutine. A task whose action is still running is never started twice.
func (e *Engine) fire(ctx context.Context, root string, task *tree.Task, now time.Time) {
	name := task.NodeName()
	if _, running := e.inflight[name]; running {
		return
	}

	e.world.MarkExecuted(name, now)
	e.inflight[name] = now
	e.logger.Debug("executing task", "root", root, "task", name)
	e.observer.OnFire(FireEvent{Time: now, Root: root, Task: name})

	actx := context.WithoutCancel(ctx)
	action := task.Action()
	go func() {
		err := runAction(actx, action, e.world)
		e.completions.Push(completion{
			root:     root,
			task:     name,
			started:  now,
			finished: e.clock.Now(),
			err:      err,
		})
	}()
}

// exit runs a context's exit action on the scheduler goroutine. It is not
// gated or de-duplicated; its execution time is stamped like a task's.
func (e *Engine) exit(ctx context.Context, root string, c *tree.Context, now time.Time) {
	task := c.ExitTask()
	if task == nil {
		return
	}
	name := task.NodeName()

	e.world.MarkExecuted(name, now)
	e.logger.Debug("executing exit task", "root", root, "context", c.NodeName(), "task", name)
	e.observer.OnFire(FireEvent{Time: now, Root: root, Task: name, Exit: true})

	err := runAction(context.WithoutCancel(ctx), task.Action(), e.world)
	e.finish(ctx, completion{
		root:     root,
		task:     name,
		started:  now,
		finished: e.clock.Now(),
		err:      err,
	}, true)
}

// reap collects finished background actions so their names become
// eligible again.
func (e *Engine) reap(ctx context.Context) {
	for _, c := range e.completions.Drain() {
		delete(e.inflight, c.task)
		e.finish(ctx, c, false)
	}
}

// finish logs, observes and journals one completed action.
func (e *Engine) finish(ctx context.Context, c completion, isExit bool) {
	var errText string
	if c.err != nil {
		code := ErrCodeActionFailed
		if isExit {
			code = ErrCodeExitFailed
		}
		if IsPanicError(c.err) {
			code = ErrCodeActionPanicked
		}
		c.err = &ActionError{Code: code, Root: c.root, Task: c.task, Err: unwrapPanic(c.err)}
		errText = c.err.Error()
		e.logger.Error("task failed",
			"root", c.root,
			"task", c.task,
			"error", c.err,
		)
	}

	e.observer.OnComplete(CompleteEvent{
		Root:     c.root,
		Task:     c.task,
		Exit:     isExit,
		Started:  c.started,
		Finished: c.finished,
		Err:      c.err,
	})

	if e.journal == nil {
		return
	}
	ex := store.Execution{
		RunID:      e.world.RunID(),
		Root:       c.root,
		Task:       c.task,
		Exit:       isExit,
		StartedAt:  c.started,
		FinishedAt: c.finished,
		Error:      errText,
	}
	if err := e.journal.RecordExecution(context.WithoutCancel(ctx), ex); err != nil {
		e.logger.Warn("journal write failed", "task", c.task, "error", err)
	}
}

// runAction calls action, turning a panic into an error.
func runAction(ctx context.Context, action tree.Action, w *world.World) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &ActionError{Code: ErrCodeActionPanicked, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	return action(ctx, w)
}

// unwrapPanic strips the placeholder ActionError runAction builds for a
// panic, so finish can rebuild it with root and task filled in.
func unwrapPanic(err error) error {
	if ae, ok := err.(*ActionError); ok && ae.Code == ErrCodeActionPanicked {
		return ae.Err
	}
	return err
}
