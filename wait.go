package chordtest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Outcome is how a bounded wait ended.
type Outcome int

const (
	Succeeded Outcome = iota
	// TimedOut means the wait ceiling elapsed first.
	TimedOut
	// Interrupted means the context was done first.
	Interrupted
	// Closed means a channel was closed without delivering a value.
	Closed
	// Broken means another party gave up on a [Barrier].
	Broken
)

func (o Outcome) String() string {
	switch o {
	case Succeeded:
		return "succeeded"
	case TimedOut:
		return "timed out"
	case Interrupted:
		return "interrupted"
	case Closed:
		return "closed"
	case Broken:
		return "broken"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// WaitError is returned by the Await functions when a wait did not succeed. Outcome is
// never Succeeded.
type WaitError struct {
	Op      string
	Outcome Outcome
	Ceiling time.Duration
	// Err is the cause: the context's cause for Interrupted, nil otherwise.
	Err error
}

func (e *WaitError) Error() string {
	switch e.Outcome {
	case TimedOut:
		return fmt.Sprintf("chordtest: %s: timed out after %v", e.Op, e.Ceiling)
	case Interrupted:
		return fmt.Sprintf("chordtest: %s: interrupted: %v", e.Op, e.Err)
	case Closed:
		return fmt.Sprintf("chordtest: %s: channel closed without a value", e.Op)
	default:
		return fmt.Sprintf("chordtest: %s: %v", e.Op, e.Outcome)
	}
}

func (e *WaitError) Unwrap() error {
	return e.Err
}

// await waits until done is closed, ctx is done, or the ceiling elapses. If done is closed by
// the time either of the others fire, the wait still succeeds.
func await(ctx context.Context, op string, done <-chan struct{}) error {
	if isClosed(done) {
		return nil
	}

	ceiling := WaitCeiling()
	timer := time.NewTimer(ceiling)
	defer timer.Stop()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		if isClosed(done) {
			return nil
		}
		return &WaitError{Op: op, Outcome: Interrupted, Ceiling: ceiling, Err: context.Cause(ctx)}
	case <-timer.C:
		if isClosed(done) {
			return nil
		}
		return &WaitError{Op: op, Outcome: TimedOut, Ceiling: ceiling}
	}
}

// receive is await for a value. A closed channel is a failure (Closed), but a zero value
// that was actually sent is not.
func receive[T any](ctx context.Context, op string, ch <-chan T) (T, error) {
	var zero T
	closed := func() (T, error) {
		return zero, &WaitError{Op: op, Outcome: Closed}
	}

	if v, ok, got := tryRecv(ch); got {
		if !ok {
			return closed()
		}
		return v, nil
	}

	ceiling := WaitCeiling()
	timer := time.NewTimer(ceiling)
	defer timer.Stop()

	outcome := TimedOut
	var cause error
	select {
	case v, ok := <-ch:
		if !ok {
			return closed()
		}
		return v, nil
	case <-ctx.Done():
		outcome, cause = Interrupted, context.Cause(ctx)
	case <-timer.C:
	}

	if v, ok, got := tryRecv(ch); got {
		if !ok {
			return closed()
		}
		return v, nil
	}
	return zero, &WaitError{Op: op, Outcome: outcome, Ceiling: ceiling, Err: cause}
}

// AwaitLatch waits for l to reach zero.
func AwaitLatch(ctx context.Context, l *Latch) error {
	return await(ctx, "latch", l.Done())
}

// AwaitClosed waits for ch to be closed.
func AwaitClosed(ctx context.Context, ch <-chan struct{}) error {
	return await(ctx, "close", ch)
}

// AwaitWaitGroup waits for wg. On failure, a goroutine stays blocked in wg.Wait until the
// group does finish; sync.WaitGroup cannot be waited on any other way.
func AwaitWaitGroup(ctx context.Context, wg *sync.WaitGroup) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	return await(ctx, "wait group", done)
}

// AwaitResult waits for f to be resolved and returns its value and error. Only failures of
// the wait itself are *WaitError; f's own error is returned as is.
func AwaitResult[T any](ctx context.Context, f *Future[T]) (T, error) {
	if err := await(ctx, "result", f.Done()); err != nil {
		var zero T
		return zero, err
	}
	return f.Result()
}

// AwaitBarrier waits at b for the other parties; see [Barrier.Await].
func AwaitBarrier(ctx context.Context, b *Barrier) error {
	return b.Await(ctx)
}

// AwaitDequeue receives one value from ch. A closed channel counts as no value.
func AwaitDequeue[T any](ctx context.Context, ch <-chan T) (T, error) {
	return receive(ctx, "dequeue", ch)
}

// The Require functions are the Await functions for the test goroutine: a failed wait fails
// the test immediately. From a spawned task, use the Await functions and return the error, so
// that the scope collects it.

func RequireLatch(t testing.TB, l *Latch) {
	t.Helper()
	require.NoError(t, AwaitLatch(context.Background(), l))
}

func RequireClosed(t testing.TB, ch <-chan struct{}) {
	t.Helper()
	require.NoError(t, AwaitClosed(context.Background(), ch))
}

func RequireWaitGroup(t testing.TB, wg *sync.WaitGroup) {
	t.Helper()
	require.NoError(t, AwaitWaitGroup(context.Background(), wg))
}

func RequireResult[T any](t testing.TB, f *Future[T]) T {
	t.Helper()
	v, err := AwaitResult(context.Background(), f)
	require.NoError(t, err)
	return v
}

func RequireBarrier(t testing.TB, b *Barrier) {
	t.Helper()
	require.NoError(t, AwaitBarrier(context.Background(), b))
}

func RequireDequeue[T any](t testing.TB, ch <-chan T) T {
	t.Helper()
	v, err := AwaitDequeue(context.Background(), ch)
	require.NoError(t, err)
	return v
}
