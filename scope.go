package chordtest

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
	"golang.org/x/exp/slices"
)

// Scope is the execution context of one test: a pool of worker goroutines, and the list of
// every failure raised by tasks spawned into it.
//
// Tasks are spawned with [Scope.Spawn] from the test goroutine, or with [Spawn] from any
// goroutine holding the scope's context, including tasks themselves, recursively. Spawning
// never blocks. A task's failure never reaches whoever spawned it; it is only reported by
// [Scope.Exit], together with every other failure.
//
// This means a test that never reaches its exit (because the test body itself hangs, say)
// does not see worker failures until teardown. Use the bounded waits ([AwaitLatch],
// [RequireDequeue], ...) so that it can't hang for long.
type Scope struct {
	name   string
	ctx    context.Context
	cancel context.CancelCauseFunc
	log    logrus.FieldLogger
	pool   *pool

	activity *tracker // root; tasks and workers are its subgroups
	tasks    *tracker
	workers  *tracker

	mu     sync.Mutex
	exited bool
	errs   []error
}

// Enter creates a scope named name and returns it with a context bound to it. Tasks spawned
// through the returned context, or the scope itself, run in the new scope's pool.
//
// Enter panics with *UsageError if ctx is already bound to a scope that has not exited.
// Every Enter must be paired with exactly one [Scope.Exit]; see [ForTest] to have that
// done by the testing package.
func Enter(ctx context.Context, name string, opts ...Option) (*Scope, context.Context) {
	if cur, ok := Current(ctx); ok {
		panic(usageErrorf("Enter", "scope %q is already active, cannot enter %q", cur.name, name))
	}

	cfg := settings{keepAlive: defaultKeepAlive}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = logrus.StandardLogger()
	}

	s := &Scope{
		name:     name,
		log:      cfg.logger.WithField("scope", name),
		activity: newTracker(name),
	}
	s.tasks = s.activity.subgroup("tasks")
	s.workers = s.activity.subgroup("workers")

	// The scope's context does not inherit cancellation from ctx: tasks are not
	// cancelled cooperatively, and exiting always waits for them.
	s.ctx, s.cancel = context.WithCancelCause(context.WithoutCancel(ctx))
	s.pool = newPool(s.tasks, newWorkerFactory(s), cfg.keepAlive)

	s.log.Debug("scope entered")
	return s, bind(s.ctx, s, "")
}

// ForTest enters a scope named after t and exits it in t.Cleanup, reporting anything Exit
// returns with t.Error. Logging goes to the test log unless [WithLogger] is given.
//
// Cleanup runs whether the test body passed, failed or panicked, and the body's own failure
// is reported by testing itself, so both show up.
func ForTest(t testing.TB, opts ...Option) *Scope {
	t.Helper()

	logger, w := newTestLogger(t, processConfig().LogLevel)
	s, _ := Enter(context.Background(), t.Name(), append([]Option{WithLogger(logger)}, opts...)...)

	t.Cleanup(func() {
		defer w.detach()
		if err := s.Exit(); err != nil {
			t.Errorf("%+v", err)
		}
	})
	return s
}

// Name returns the name given to [Enter].
func (s *Scope) Name() string {
	return s.name
}

// Context returns the scope's context. It is bound to the scope, so [Spawn] works with it;
// it is canceled once the scope has exited.
func (s *Scope) Context() context.Context {
	return bind(s.ctx, s, "")
}

// Spawn submits fn to run on one of the scope's workers, under the given name. It does not
// wait for fn. Tasks should spawn with [Spawn] and their own context instead, so that the
// origin of nested tasks is linked to the task spawning them.
//
// Spawn panics with *UsageError once the scope has started exiting.
func (s *Scope) Spawn(name string, fn TaskFunc) {
	s.spawn(name, fn, nil)
}

// Spawn submits fn to the scope bound to ctx. ctx is the context returned by [Enter] or
// [Scope.Context], or the context a task was given.
//
// Spawn panics with *UsageError if ctx has no scope, or its scope has exited.
func Spawn(ctx context.Context, name string, fn TaskFunc) {
	s, ok := Current(ctx)
	if !ok {
		panic(usageErrorf("Spawn", "no active scope in context, cannot spawn %q", name))
	}
	s.spawn(name, fn, originFrom(ctx))
}

func (s *Scope) spawn(name string, fn TaskFunc, parent *StackTrace) {
	if fn == nil {
		panic(usageErrorf("Spawn", "nil TaskFunc for task %q", name))
	}

	t := newTask(s, name, fn, parent)
	s.log.WithField("task", name).Debug("spawning task")
	s.pool.submit(t)
}

// record adds a failure to the scope. Safe for concurrent use.
func (s *Scope) record(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, err)
}

// Errors returns the failures collected so far, in the order they happened.
func (s *Scope) Errors() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.errs)
}

// Running returns what the scope currently has running: a "tasks" group and a "workers"
// group, each listed by name.
func (s *Scope) Running() Snapshot {
	return s.activity.snapshot()
}

func (s *Scope) hasExited() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exited
}

// Exit shuts the scope down: no more tasks are accepted, and Exit waits up to [WaitCeiling]
// for the ones already spawned to finish. Tasks are not interrupted while waiting.
//
// Exit returns nil if everything finished and nothing failed. Otherwise it returns an
// *AggregateError of every collected failure, a *DrainTimeoutError if tasks were still
// running at the ceiling, or both combined (see go.uber.org/multierr). After a drain
// timeout the scope's context is canceled with the DrainTimeoutError as its cause, which
// releases tasks stuck in bounded waits.
//
// Exit panics with *UsageError if called more than once.
func (s *Scope) Exit() error {
	s.mu.Lock()
	if s.exited {
		s.mu.Unlock()
		panic(usageErrorf("Exit", "scope %q already exited", s.name))
	}
	s.exited = true
	s.mu.Unlock()

	s.log.Debug("shutting down spawned tasks")
	s.pool.shutdown()

	s.log.Debug("waiting for spawned tasks to finish")
	var drainErr error
	if err := await(context.Background(), "drain", s.activity.wait()); err != nil {
		ceiling := WaitCeiling()
		var we *WaitError
		if errors.As(err, &we) {
			ceiling = we.Ceiling
		}
		drain := &DrainTimeoutError{
			Scope:   s.name,
			Ceiling: ceiling,
			Running: s.activity.snapshot(),
			Err:     err,
		}
		s.log.Errorf("%+v", drain)
		s.cancel(drain)
		drainErr = drain
	} else {
		s.log.Debug("spawned tasks finished")
		s.cancel(nil)
	}

	var taskErr error
	if errs := s.Errors(); len(errs) != 0 {
		taskErr = &AggregateError{Scope: s.name, Errors: errs}
	}

	s.log.Debug("scope exited")
	return multierr.Combine(drainErr, taskErr)
}
