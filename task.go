package chordtest

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"
)

// TaskFunc is a unit of work spawned into a [Scope].
//
// The context carries the scope, so the task may spawn further tasks with [Spawn]. A returned
// error, a panic, or a runtime.Goexit is collected as a [TaskError] and reported when the
// scope exits.
type TaskFunc func(ctx context.Context) error

type task struct {
	name   string
	fn     TaskFunc
	scope  *Scope
	origin StackTrace
}

// Boundaries used for splicing. Frames of (*task).run and anything it calls internally are
// the wrapper; the exported Spawn calls are where scope management starts.
var (
	wrapperPrefix = pkgPath + ".(*task).run"
	scopeEntries  = []string{pkgPath + ".(*Scope).Spawn", pkgPath + ".Spawn"}
)

func isWrapperFrame(f StackFrame) bool {
	return strings.HasPrefix(f.Function, wrapperPrefix)
}

func isScopeFrame(f StackFrame) bool {
	return slices.Contains(scopeEntries, f.Function)
}

// newTask wraps fn, recording the stack of the goroutine that is spawning it. parent is the
// origin of the task doing the spawning, nil on the test goroutine.
//
// Must be called directly by the spawning code in this package.
func newTask(s *Scope, name string, fn TaskFunc, parent *StackTrace) *task {
	return &task{
		name:   name,
		fn:     fn,
		scope:  s,
		origin: originStack(getFrames(1), parent),
	}
}

// originStack keeps the part of a spawn-time stack that matters: from the first scope entry
// point (or the top, if there isn't one) down to, but not including, the wrapper of the task
// that is spawning, if any. What lies below the wrapper is worker plumbing; the parent link
// continues the chain from there.
func originStack(frames []StackFrame, parent *StackTrace) StackTrace {
	j := slices.IndexFunc(frames, isScopeFrame)
	if j == -1 {
		j = 0
	}
	frames = frames[j:]

	if k := slices.IndexFunc(frames, isWrapperFrame); k != -1 {
		frames = frames[:k]
	}

	return StackTrace{Frames: slices.Clip(frames), Parent: parent}
}

// splice joins the stack of a failure inside a task with the origin of that task: the task's
// frames up to (not including) the wrapper, then the origin chain.
func splice(taskFrames []StackFrame, origin *StackTrace) StackTrace {
	i := slices.IndexFunc(taskFrames, isWrapperFrame)
	if i == -1 {
		i = len(taskFrames)
	}
	return StackTrace{Frames: slices.Clip(taskFrames[:i]), Parent: origin}
}

// run executes the task on a worker. Nothing escapes it: errors, panics and Goexit are all
// recorded in the scope.
func (t *task) run(ctx context.Context, worker string) {
	defer t.scope.tasks.done(t.name)

	log := t.scope.log.WithFields(logrus.Fields{"task": t.name, "worker": worker})
	log.Info("task started")

	returned := false
	defer func() {
		if returned {
			return
		}

		cause := ErrTaskExited
		if r := recover(); r != nil {
			cause = &PanicError{Value: r}
		}
		t.fail(log, worker, cause, afterUnwind(getFrames(0)))
	}()

	err := t.fn(withOrigin(ctx, &t.origin))
	returned = true

	if err != nil {
		frames := errorFrames(err)
		if len(frames) == 0 {
			frames = []StackFrame{funcFrame(t.fn)}
		}
		t.fail(log, worker, err, frames)
		return
	}

	log.Info("task finished")
}

func (t *task) fail(log logrus.FieldLogger, worker string, cause error, frames []StackFrame) {
	te := &TaskError{
		Task:   t.name,
		Worker: worker,
		Err:    cause,
		Stack:  splice(frames, &t.origin),
	}
	log.WithError(cause).Warnf("task failed\n%s", te.Stack)
	t.scope.record(te)
}
