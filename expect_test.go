package chordtest_test

import (
	"context"
	"fmt"
	"runtime"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sharnoff/chordtest"
)

type codeError struct {
	code int
}

func (e *codeError) Error() string {
	return fmt.Sprintf("code %d", e.code)
}

func TestHasTypeAndMessage(t *testing.T) {
	t.Parallel()

	m := chordtest.HasTypeAndMessage[*codeError]("code 7")

	assert.True(t, m.Matches(&codeError{code: 7}))
	assert.True(t, m.Matches(errors.Wrap(&codeError{code: 7}, "outer")), "matches anywhere in the chain")
	assert.True(t, m.Matches(&chordtest.TaskError{Task: "t", Err: &codeError{code: 7}}))
	assert.False(t, m.Matches(&codeError{code: 8}))
	assert.False(t, m.Matches(errors.New("code 7")), "same message, different type")
	assert.False(t, m.Matches("code 7"), "not an error")
	assert.False(t, m.Matches(nil))

	assert.Equal(t, `is *chordtest_test.codeError with message "code 7"`, m.Describe())
}

func TestHasType(t *testing.T) {
	t.Parallel()

	m := chordtest.HasType[*chordtest.UsageError]()
	assert.True(t, m.Matches(&chordtest.UsageError{Op: "Spawn", Msg: "anything"}))
	assert.False(t, m.Matches(&codeError{}))
	assert.Equal(t, "is *chordtest.UsageError", m.Describe())

	anyErr := chordtest.HasType[error]()
	assert.True(t, anyErr.Matches(&codeError{}))
	assert.False(t, anyErr.Matches(42))
	assert.Equal(t, "is error", anyErr.Describe())
}

func TestExpectPanic(t *testing.T) {
	t.Parallel()

	m := chordtest.HasType[*chordtest.UsageError]()

	// passes
	chordtest.ExpectPanic(t, m, func() {
		chordtest.Spawn(context.Background(), "orphan", func(context.Context) error { return nil })
	})

	fake := &fakeTB{name: t.Name()}
	chordtest.ExpectPanic(fake, m, func() {})
	chordtest.ExpectPanic(fake, m, func() { panic("a string") })
	require.Len(t, fake.errors, 2)
	assert.Equal(t, "expected panic that is *chordtest.UsageError, but there was none", fake.errors[0])
	assert.Equal(t, "expected panic that is *chordtest.UsageError, got string: a string", fake.errors[1])
}

// panic(nil) is still a panic; recover gives a *runtime.PanicNilError for it.
func TestExpectPanicNilValue(t *testing.T) {
	t.Parallel()

	fake := &fakeTB{name: t.Name()}
	chordtest.ExpectPanic(fake, chordtest.HasType[*runtime.PanicNilError](), func() {
		var err error
		panic(err)
	})
	assert.Empty(t, fake.errors)
}

func TestExpectError(t *testing.T) {
	t.Parallel()

	m := chordtest.HasTypeAndMessage[*chordtest.WaitError]("chordtest: dequeue: channel closed without a value")

	chordtest.ExpectError(t, m, func() error {
		ch := make(chan int)
		close(ch)
		_, err := chordtest.AwaitDequeue(context.Background(), ch)
		return err
	})

	fake := &fakeTB{name: t.Name()}
	chordtest.ExpectError(fake, m, func() error { return nil })
	chordtest.ExpectError(fake, m, func() error { return &codeError{code: 1} })
	require.Len(t, fake.errors, 2)
	assert.Contains(t, fake.errors[0], "but there was none")
	assert.Equal(t, `expected error that is *chordtest.WaitError with message "chordtest: dequeue: channel closed without a value", got *chordtest_test.codeError: code 1`, fake.errors[1])
}
