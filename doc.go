// obligatory // comment

/*
Package chordtest helps test concurrent code: it runs work on goroutines spawned for one test,
collects every failure they raise, and reports them together when the test ends, with stack
traces that lead back to whoever spawned the failing goroutine. Bounded waits keep the test
from hanging on a broken interaction.

Broadly, the tools belong to a few distinct groups:

- Scopes: [Scope], [ForTest], [Enter], [Spawn]
- Stack traces across goroutines: [StackTrace], [GetStackTrace], [TaskError]
- Bounded waits: [AwaitLatch], [AwaitDequeue], [RequireBarrier], ..., with [Latch], [Barrier] and [Future]
- Failure matching: [Matcher], [ExpectPanic], [ExpectError]

# Scopes

A scope owns a pool of worker goroutines for the length of one test. [ForTest] is the usual
way in:

	func TestProducer(t *testing.T) {
		s := chordtest.ForTest(t)
		results := make(chan int, 1)

		s.Spawn("producer", func(ctx context.Context) error {
			results <- compute()
			return nil
		})

		got := chordtest.RequireDequeue(t, results)
		// ...
	}

Tasks receive a context bound to the scope and may spawn more tasks with [Spawn]; those run
in the same pool, and their failures land in the same place. A task fails by returning an
error, panicking, or calling runtime.Goexit. None of that reaches the spawner: when the test
ends, [Scope.Exit] waits (bounded) for the pool to drain, then returns an [AggregateError]
with every failure, which ForTest reports.

Misusing a scope, such as spawning with no scope bound or after it started exiting, panics
with a [UsageError].

# Stack traces

A goroutine's stack says nothing about who started it. A [TaskError] instead carries a
spliced [StackTrace]: the frames where the task broke, followed through [StackTrace.Parent]
by the stack where it was spawned and, for tasks spawned by tasks, where each ancestor was
spawned. Errors from github.com/pkg/errors contribute the stack recorded when they were
created; panics contribute the stack of the panic.

# Bounded waits

Every wait gives up after [WaitCeiling] (5s by default; set CHORDTEST_WAIT_CEILING to raise it
on slow machines). The Await functions return a [WaitError] saying whether the wait timed out,
was interrupted by its context, or found the channel closed; the Require functions fail the
test instead, and are for the test goroutine only.
*/
package chordtest
