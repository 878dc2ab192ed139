package chordtest

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// ErrTaskExited is recorded for a task that stopped its goroutine with runtime.Goexit instead
// of returning, typically by calling t.FailNow (or t.Fatal) from inside a spawned task.
var ErrTaskExited = errors.New("task called runtime.Goexit; FailNow and friends only work on the test goroutine")

// TaskError is the failure of one spawned task, as collected by its [Scope].
//
// Stack is spliced: its Frames are where the task broke, its Parent chain shows who spawned
// the task, and who spawned them. Format with %+v to include it.
type TaskError struct {
	Task   string
	Worker string
	Err    error
	Stack  StackTrace
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %q failed: %v", e.Task, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

func (e *TaskError) Format(s fmt.State, verb rune) {
	switch {
	case verb == 'v' && s.Flag('+'):
		fmt.Fprintf(s, "%s (on %s)\n%s", e.Error(), e.Worker, e.Stack)
	case verb == 'q':
		fmt.Fprintf(s, "%q", e.Error())
	default:
		fmt.Fprint(s, e.Error())
	}
}

// PanicError is the error recorded for a task that panicked.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap gives the panic value, if the task panicked with an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// AggregateError is returned by [Scope.Exit] when at least one spawned task failed. Errors
// are in the order they were collected, which is the order the tasks failed in.
type AggregateError struct {
	Scope  string
	Errors []error
}

func (e *AggregateError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("scope %q: 1 spawned task failed: %v", e.Scope, e.Errors[0])
	}

	msgs := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("scope %q: %d spawned tasks failed: [%s]", e.Scope, len(e.Errors), strings.Join(msgs, "; "))
}

func (e *AggregateError) Unwrap() []error {
	return e.Errors
}

func (e *AggregateError) Format(s fmt.State, verb rune) {
	if verb != 'v' || !s.Flag('+') {
		fmt.Fprint(s, e.Error())
		return
	}

	fmt.Fprintf(s, "scope %q: %d spawned task(s) failed", e.Scope, len(e.Errors))
	for i, err := range e.Errors {
		fmt.Fprintf(s, "\n\n[%d] %+v", i+1, err)
	}
}

// DrainTimeoutError is returned by [Scope.Exit] when spawned work did not finish within
// [WaitCeiling]. It is reported in addition to any task failures, never instead of them.
type DrainTimeoutError struct {
	Scope   string
	Ceiling time.Duration
	// Running is what was still running when the wait gave up.
	Running Snapshot
	Err     error
}

func (e *DrainTimeoutError) Error() string {
	return fmt.Sprintf("scope %q: spawned tasks did not finish within %v", e.Scope, e.Ceiling)
}

func (e *DrainTimeoutError) Unwrap() error {
	return e.Err
}

func (e *DrainTimeoutError) Format(s fmt.State, verb rune) {
	if verb == 'v' && s.Flag('+') {
		fmt.Fprintf(s, "%s; still running:\n%s", e.Error(), e.Running)
		return
	}
	fmt.Fprint(s, e.Error())
}

// UsageError is the panic value for misuse of a [Scope]: spawning with no scope bound,
// entering a scope over an open one, spawning into or exiting a scope that already exited.
// These are bugs in the test, not test failures.
type UsageError struct {
	Op  string
	Msg string
}

func (e *UsageError) Error() string {
	return fmt.Sprintf("chordtest: %s: %s", e.Op, e.Msg)
}

func usageErrorf(op string, format string, args ...any) *UsageError {
	return &UsageError{Op: op, Msg: fmt.Sprintf(format, args...)}
}
